// Package pdfinspect classifies PDF pages as digital, scanned or hybrid.
package pdfinspect

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docparse/internal/document"
)

// PageKind is the classification of a single page.
type PageKind string

const (
	PageScanned PageKind = "scanned"
	PageDigital PageKind = "digital"
	PageHybrid  PageKind = "hybrid"
)

// PageInfo is what the classifier needs to know about a page.
type PageInfo struct {
	Text   string
	Images int
}

// TextLen is the rune count of the trimmed page text.
func (p PageInfo) TextLen() int {
	return utf8.RuneCountInString(strings.TrimSpace(p.Text))
}

// PageSource gives sequential access to a PDF's pages. Page numbers are
// 1-based.
type PageSource interface {
	NumPages() int
	Page(n int) (PageInfo, error)
	Close() error
}

// Config holds the classification thresholds.
type Config struct {
	MinTextChars int     // text at or below this is "no meaningful text"
	SampleSize   int     // pages inspected by IsScanned
	ScannedRatio float64 // textless ratio that must be exceeded
}

func DefaultConfig() Config {
	return Config{MinTextChars: 50, SampleSize: 5, ScannedRatio: 0.7}
}

// Opener opens a PDF for inspection.
type Opener func(path string) (PageSource, error)

// Classifier classifies PDFs. It holds no per-document state and is safe for
// concurrent use.
type Classifier struct {
	cfg  Config
	open Opener
	log  *slog.Logger
}

// New creates a Classifier backed by the pure-Go PDF reader.
func New(cfg Config, log *slog.Logger) *Classifier {
	return NewWithOpener(cfg, OpenPDF, log)
}

// NewWithOpener creates a Classifier that opens documents with open. Zero
// config fields take their defaults.
func NewWithOpener(cfg Config, open Opener, log *slog.Logger) *Classifier {
	def := DefaultConfig()
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = def.MinTextChars
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.ScannedRatio <= 0 {
		cfg.ScannedRatio = def.ScannedRatio
	}
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{cfg: cfg, open: open, log: log}
}

// ClassifyPage labels one page. A page with neither meaningful text nor
// images counts as scanned.
func (c *Classifier) ClassifyPage(p PageInfo) PageKind {
	hasText := p.TextLen() > c.cfg.MinTextChars
	switch {
	case hasText && p.Images > 0:
		return PageHybrid
	case hasText:
		return PageDigital
	default:
		return PageScanned
	}
}

// ClassifySource visits every page of src once and builds the analysis.
func (c *Classifier) ClassifySource(src PageSource) (*document.PdfAnalysis, error) {
	n := src.NumPages()
	a := &document.PdfAnalysis{
		TotalPages:   n,
		ScannedPages: []int{},
		HybridPages:  []int{},
		DigitalPages: []int{},
	}
	for i := 1; i <= n; i++ {
		info, err := src.Page(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		switch c.ClassifyPage(info) {
		case PageHybrid:
			a.HybridPages = append(a.HybridPages, i)
		case PageDigital:
			a.DigitalPages = append(a.DigitalPages, i)
		default:
			a.ScannedPages = append(a.ScannedPages, i)
		}
	}

	switch {
	case len(a.ScannedPages) == n:
		a.Type = document.PdfScanned
	case len(a.DigitalPages) == n:
		a.Type = document.PdfDigital
	default:
		a.Type = document.PdfHybrid
	}
	a.HasText = len(a.DigitalPages) > 0 || len(a.HybridPages) > 0
	return a, nil
}

// Analyze classifies every page of the PDF at path. Any failure is logged
// and reported as a nil analysis.
func (c *Classifier) Analyze(path string) *document.PdfAnalysis {
	src, err := c.open(path)
	if err != nil {
		c.log.Warn("pdf analysis failed", "file", path, "error", err)
		return nil
	}
	defer src.Close()

	a, err := c.ClassifySource(src)
	if err != nil {
		c.log.Warn("pdf analysis failed", "file", path, "error", err)
		return nil
	}
	return a
}

// ScannedSource reports whether the sampled leading pages of src are
// mostly textless.
func (c *Classifier) ScannedSource(src PageSource) (bool, error) {
	sample := min(c.cfg.SampleSize, src.NumPages())
	if sample == 0 {
		return false, nil
	}
	textless := 0
	for i := 1; i <= sample; i++ {
		info, err := src.Page(i)
		if err != nil {
			return false, fmt.Errorf("page %d: %w", i, err)
		}
		if info.TextLen() < c.cfg.MinTextChars {
			textless++
		}
	}
	return float64(textless)/float64(sample) > c.cfg.ScannedRatio, nil
}

// IsScanned is the quick OCR-routing check. It never fails: an unreadable
// document is reported as not scanned.
func (c *Classifier) IsScanned(path string) bool {
	src, err := c.open(path)
	if err != nil {
		c.log.Warn("scan detection failed", "file", path, "error", err)
		return false
	}
	defer src.Close()

	scanned, err := c.ScannedSource(src)
	if err != nil {
		c.log.Warn("scan detection failed", "file", path, "error", err)
		return false
	}
	return scanned
}
