package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
)

// unstructured partitions documents through unstructured-api.
type unstructured struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	log     *slog.Logger
}

func newUnstructured(cfg Config, log *slog.Logger) *unstructured {
	return &unstructured{
		baseURL: strings.TrimRight(cfg.UnstructuredURL, "/"),
		apiKey:  cfg.UnstructuredAPIKey,
		client:  newHTTPClient(cfg.HTTPTimeout, cfg.HTTPRetries, log),
		log:     log,
	}
}

type unstructuredElement struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		PageNumber int `json:"page_number"`
	} `json:"metadata"`
}

func (e *unstructured) ID() ID { return Unstructured }

func (e *unstructured) Available() error {
	if e.baseURL == "" {
		return errors.New("UNSTRUCTURED_URL not set")
	}
	return nil
}

func (e *unstructured) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	if err := e.Available(); err != nil {
		return nil, unavailable(Unstructured, err)
	}

	fields := map[string]string{"strategy": "auto"}
	if opts.OCRLanguage != "" {
		fields["languages"] = opts.OCRLanguage
	}
	var header http.Header
	if e.apiKey != "" {
		header = http.Header{"unstructured-api-key": {e.apiKey}}
	}
	body, err := postFile(ctx, e.client, e.baseURL+"/general/v0/general", path, fields, header)
	if err != nil {
		if unreachable(err) {
			return nil, unavailable(Unstructured, err)
		}
		return nil, failed(Unstructured, err)
	}

	var elements []unstructuredElement
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, failed(Unstructured, fmt.Errorf("decode response: %w", err))
	}
	texts := make([]string, 0, len(elements))
	for _, el := range elements {
		if t := strings.TrimSpace(el.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return &Raw{
		Content:  strings.Join(texts, "\n\n"),
		Metadata: map[string]any{"elements_count": len(elements)},
	}, nil
}
