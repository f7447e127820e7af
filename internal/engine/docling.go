package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

const doclingPageBreak = "<!-- docparse:page-break -->"

// docling converts documents through a docling-serve instance.
type docling struct {
	baseURL string
	client  *retryablehttp.Client
	log     *slog.Logger
}

func newDocling(cfg Config, log *slog.Logger) *docling {
	return &docling{
		baseURL: strings.TrimRight(cfg.DoclingURL, "/"),
		client:  newHTTPClient(cfg.HTTPTimeout, cfg.HTTPRetries, log),
		log:     log,
	}
}

type doclingResponse struct {
	Document struct {
		Filename  string `json:"filename"`
		MdContent string `json:"md_content"`
	} `json:"document"`
	Status string `json:"status"`
	Errors []any  `json:"errors"`
}

func (e *docling) ID() ID { return Docling }

func (e *docling) Available() error {
	if e.baseURL == "" {
		return errors.New("DOCLING_URL not set")
	}
	return nil
}

func (e *docling) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	if err := e.Available(); err != nil {
		return nil, unavailable(Docling, err)
	}

	fields := map[string]string{
		"to_formats":                "md",
		"do_ocr":                    "true",
		"image_export_mode":         "placeholder",
		"md_page_break_placeholder": doclingPageBreak,
	}
	if opts.OCRLanguage != "" {
		fields["ocr_lang"] = opts.OCRLanguage
	}
	body, err := postFile(ctx, e.client, e.baseURL+"/v1alpha/convert/file", path, fields, nil)
	if err != nil {
		if unreachable(err) {
			return nil, unavailable(Docling, err)
		}
		return nil, failed(Docling, err)
	}

	var resp doclingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, failed(Docling, fmt.Errorf("decode response: %w", err))
	}
	if resp.Status != "success" {
		return nil, failed(Docling, fmt.Errorf("conversion status %q, errors: %v", resp.Status, resp.Errors))
	}

	parts := strings.Split(resp.Document.MdContent, doclingPageBreak)
	raw := &Raw{
		Paged:    true,
		Pages:    make([]RawPage, 0, len(parts)),
		Metadata: map[string]any{"page_count": len(parts), "service": e.baseURL},
	}
	for i, md := range parts {
		raw.Pages = append(raw.Pages, RawPage{Index: i, Text: strings.TrimSpace(md)})
	}
	e.log.Debug("docling conversion done", "engine", Docling, "pages", len(parts))
	return raw, nil
}
