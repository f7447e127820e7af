// Package engine defines the extraction engines and the registry that maps
// engine ids to implementations and fallback policy.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ID identifies an extraction engine.
type ID string

const (
	PyMuPDF           ID = "pymupdf"
	PyMuPDF4LLM       ID = "pymupdf4llm"
	Docling           ID = "docling"
	Unstructured      ID = "unstructured"
	PDFPlumber        ID = "pdfplumber"
	WordReader        ID = "word-reader"
	PowerPointReader  ID = "powerpoint-reader"
	SpreadsheetReader ID = "spreadsheet-reader"
	OCRTesseract      ID = "ocr-tesseract"
	OCREasy           ID = "ocr-easy"
	BuiltinText       ID = "builtin-text"
)

// ErrUnknownTool is returned when a tool name does not name any engine.
var ErrUnknownTool = errors.New("unknown tool")

var aliases = map[string]ID{
	"python-docx":   WordReader,
	"python-pptx":   PowerPointReader,
	"openpyxl":      SpreadsheetReader,
	"tesseract":     OCRTesseract,
	"tesseract_ocr": OCRTesseract,
	"easyocr":       OCREasy,
	"text":          BuiltinText,
}

// ParseID resolves a user-supplied tool name to an engine ID.
func ParseID(s string) (ID, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if _, ok := specs[ID(name)]; ok {
		return ID(name), nil
	}
	if id, ok := aliases[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

// Options are per-call extraction settings.
type Options struct {
	OCRLanguage      string
	ExtractImages    bool
	RenderDPI        float64
	MaxParallelPages int
	// Ext is the detected file extension, for files whose name carries
	// none. Empty means use the path's own extension.
	Ext string
}

// Engine extracts raw content from a file on disk.
type Engine interface {
	ID() ID
	Extract(ctx context.Context, path string, opts Options) (*Raw, error)
}

// Prober is implemented by engines that can report whether their external
// dependency is present without running an extraction.
type Prober interface {
	Available() error
}

// Block types as reported by engines with layout geometry.
const (
	BlockText  = 0
	BlockImage = 1
	BlockTable = 2
)

// Raw is an engine's output before normalization.
type Raw struct {
	// Content is the engine's flattened text, used when the engine has no
	// page semantics.
	Content string
	Pages   []RawPage
	// Paged marks engines whose pages are real document pages. Content is
	// then rebuilt from Pages.
	Paged bool
	// PageLabel is the heading word for each page in Content ("Page" when
	// empty).
	PageLabel string
	Images    []RawImage
	Metadata  map[string]any
}

// RawPage is one page as the engine saw it. Index orders pages; it need
// not be contiguous or 1-based.
type RawPage struct {
	Index    int
	Text     string
	Blocks   []Block
	Tables   []Table
	Metadata map[string]any
}

// Block is a layout block with coordinates in page points.
type Block struct {
	Type           int
	X0, Y0, X1, Y1 float64
}

// Table is a grid of cell values; the first row is the header. Nil cells
// render empty.
type Table struct {
	Rows [][]any
}

// RawImage is an undecoded image. Page is the 1-based physical page, 0 for
// page-less formats. Ref is the engine's object reference and identifies
// the same image across pages; 0 means unknown.
type RawImage struct {
	Page int
	Ref  int
	Ext  string
	Data []byte
}
