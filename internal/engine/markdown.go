package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/microcosm-cc/bluemonday"
)

// pyMuPDF4LLM renders each page as markdown and reports layout blocks.
type pyMuPDF4LLM struct {
	policy *bluemonday.Policy
	log    *slog.Logger
}

func newPyMuPDF4LLM(log *slog.Logger) *pyMuPDF4LLM {
	return &pyMuPDF4LLM{policy: structurePolicy(), log: log}
}

// structurePolicy keeps document structure and drops images, inline styles
// and everything else.
func structurePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "b", "strong", "i", "em", "u", "sup", "sub",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "pre", "code",
		"blockquote", "table", "thead", "tbody", "tr", "th", "td")
	return p
}

func (e *pyMuPDF4LLM) ID() ID { return PyMuPDF4LLM }

func (e *pyMuPDF4LLM) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, failed(PyMuPDF4LLM, fmt.Errorf("open pdf: %w", err))
	}
	defer doc.Close()

	// Positioned text comes from a second reader; layout is best effort.
	var layout *pdf.Reader
	if f, r, err := pdf.Open(path); err != nil {
		e.log.Warn("text layout unavailable", "engine", PyMuPDF4LLM, "file", path, "error", err)
	} else {
		defer f.Close()
		layout = r
	}

	n := doc.NumPage()
	raw := &Raw{
		Paged:    true,
		Pages:    make([]RawPage, 0, n),
		Metadata: map[string]any{"page_count": n},
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, failed(PyMuPDF4LLM, err)
		}
		page, err := e.page(doc, layout, i)
		if err != nil {
			return nil, failed(PyMuPDF4LLM, err)
		}
		raw.Pages = append(raw.Pages, page)
	}

	if opts.ExtractImages {
		raw.Images = extractPDFImages(path, e.log.With("engine", PyMuPDF4LLM))
	}
	return raw, nil
}

func (e *pyMuPDF4LLM) page(doc *fitz.Document, layout *pdf.Reader, i int) (RawPage, error) {
	body, err := doc.HTML(i, false)
	if err != nil {
		return RawPage{}, fmt.Errorf("page %d html: %w", i+1, err)
	}
	md, err := htmltomarkdown.ConvertString(e.policy.Sanitize(body))
	if err != nil {
		return RawPage{}, fmt.Errorf("page %d markdown: %w", i+1, err)
	}

	meta := pageSize(doc, i)
	var text []Block
	var width float64
	if meta != nil {
		width = float64(meta["width"].(int))
		if layout != nil {
			runs, err := pageRuns(layout, i+1)
			if err != nil {
				e.log.Warn("text layout skipped", "engine", PyMuPDF4LLM, "page", i+1, "error", err)
			} else {
				text = textBlocks(runs, float64(meta["height"].(int)))
			}
		}
	}
	// Fonts without glyph widths give zero-width runs; MuPDF's line
	// positions are the better source then.
	if len(text) == 0 || hasDegenerate(text) {
		text = paragraphBlocks(body, width)
	}
	blocks := append([]Block{}, text...)
	blocks = append(blocks, imageBlocks(body)...)

	return RawPage{
		Index:    i,
		Text:     strings.TrimSpace(md),
		Blocks:   blocks,
		Metadata: meta,
	}, nil
}
