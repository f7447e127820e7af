package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gen2brain/go-fitz"
)

// pyMuPDF extracts plain text per page with MuPDF.
type pyMuPDF struct {
	log *slog.Logger
}

func newPyMuPDF(log *slog.Logger) *pyMuPDF { return &pyMuPDF{log: log} }

func (e *pyMuPDF) ID() ID { return PyMuPDF }

func (e *pyMuPDF) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, failed(PyMuPDF, fmt.Errorf("open pdf: %w", err))
	}
	defer doc.Close()

	n := doc.NumPage()
	raw := &Raw{
		Paged:    true,
		Pages:    make([]RawPage, 0, n),
		Metadata: map[string]any{"page_count": n},
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, failed(PyMuPDF, err)
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, failed(PyMuPDF, fmt.Errorf("page %d text: %w", i+1, err))
		}
		raw.Pages = append(raw.Pages, RawPage{
			Index:    i,
			Text:     text,
			Metadata: pageSize(doc, i),
		})
	}

	if opts.ExtractImages {
		raw.Images = extractPDFImages(path, e.log.With("engine", PyMuPDF))
	}
	return raw, nil
}

// pageSize returns the page width and height in points, or nil when MuPDF
// cannot load the page.
func pageSize(doc *fitz.Document, i int) map[string]any {
	b, err := doc.Bound(i)
	if err != nil {
		return nil
	}
	return map[string]any{"width": b.Dx(), "height": b.Dy()}
}
