package document

import "image"

// FileType is the coarse category an input file is routed by.
type FileType string

const (
	TypePDF        FileType = "pdf"
	TypeWord       FileType = "word"
	TypePowerPoint FileType = "powerpoint"
	TypeExcel      FileType = "excel"
	TypeText       FileType = "text"
	TypeUnknown    FileType = "unknown"
)

// Document is the normalized result of one parse call.
type Document struct {
	ToolUsed    string         `json:"tool_used"`
	FileName    string         `json:"file_name"`
	FileType    FileType       `json:"file_type"`
	FileSize    int64          `json:"file_size"`
	Content     string         `json:"content"`
	Pages       []Page         `json:"pages"`
	Images      []Image        `json:"images"`
	Metadata    map[string]any `json:"metadata"`
	PdfAnalysis *PdfAnalysis   `json:"pdf_analysis,omitempty"`
}

// Page is one page (or slide) of a document. PageNumber is 1-based and
// contiguous within a Document.
type Page struct {
	PageNumber int            `json:"page_number"`
	Content    string         `json:"content"`
	BBoxes     []BoundingBox  `json:"bboxes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// BoxType labels what a bounding box encloses.
type BoxType string

const (
	BoxText  BoxType = "text"
	BoxImage BoxType = "image"
	BoxTable BoxType = "table"
)

// BoundingBox is a rectangle in unscaled page points, origin top-left.
type BoundingBox struct {
	Type BoxType `json:"type"`
	X0   float64 `json:"x0"`
	Y0   float64 `json:"y0"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
}

// Scale returns the box multiplied by s. Used only at render time.
func (b BoundingBox) Scale(s float64) BoundingBox {
	return BoundingBox{Type: b.Type, X0: b.X0 * s, Y0: b.Y0 * s, X1: b.X1 * s, Y1: b.Y1 * s}
}

// PdfType is the document-level classification of a PDF.
type PdfType string

const (
	PdfScanned PdfType = "Scanned"
	PdfDigital PdfType = "Digital"
	PdfHybrid  PdfType = "Hybrid"
)

// PdfAnalysis holds per-page classification of a PDF. The three page sets
// are disjoint and together cover 1..TotalPages.
type PdfAnalysis struct {
	Type         PdfType `json:"type"`
	TotalPages   int     `json:"total_pages"`
	ScannedPages []int   `json:"scanned_pages"`
	HybridPages  []int   `json:"hybrid_pages"`
	DigitalPages []int   `json:"digital_pages"`
	HasText      bool    `json:"has_text"`
}

// Image is an extracted raster image. Page is 0 for page-less formats.
type Image struct {
	Page   int         `json:"page,omitempty"`
	Index  int         `json:"index"`
	Ext    string      `json:"ext"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Image  image.Image `json:"-"`
}
