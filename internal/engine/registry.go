package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dgallion1/docparse/internal/document"
)

// Spec describes an engine's capability and its place in the fallback chain.
type Spec struct {
	ID       ID
	FileType document.FileType
	// Fallback is tried once when this engine is unavailable. Empty means
	// the error propagates.
	Fallback ID
	// FallbackOnFailure extends the fallback to processing failures.
	FallbackOnFailure bool
	// MetadataKeys lists the document metadata keys the engine reports;
	// PageMetadataKeys the per-page ones.
	MetadataKeys     []string
	PageMetadataKeys []string
	Description      string
}

// Recoverable reports whether err from this engine should be retried via
// its fallback.
func (s Spec) Recoverable(err error) bool {
	if s.Fallback == "" || err == nil {
		return false
	}
	if IsUnavailable(err) {
		return true
	}
	return s.FallbackOnFailure
}

var order = []ID{
	PyMuPDF, PyMuPDF4LLM, Docling, Unstructured, PDFPlumber,
	WordReader, PowerPointReader, SpreadsheetReader,
	OCRTesseract, OCREasy, BuiltinText,
}

var specs = map[ID]Spec{
	PyMuPDF: {
		ID: PyMuPDF, FileType: document.TypePDF,
		MetadataKeys:     []string{"page_count"},
		PageMetadataKeys: []string{"width", "height"},
		Description:      "fast MuPDF text extraction",
	},
	PyMuPDF4LLM: {
		ID: PyMuPDF4LLM, FileType: document.TypePDF,
		MetadataKeys:     []string{"page_count"},
		PageMetadataKeys: []string{"width", "height"},
		Description:      "markdown per page with text and image bounding boxes",
	},
	Docling: {
		ID: Docling, FileType: document.TypePDF,
		Fallback: PyMuPDF, FallbackOnFailure: true,
		MetadataKeys: []string{"page_count", "service"},
		Description:  "docling-serve document conversion",
	},
	Unstructured: {
		ID: Unstructured, FileType: document.TypePDF,
		Fallback:     PyMuPDF,
		MetadataKeys: []string{"elements_count"},
		Description:  "unstructured-api element partitioning",
	},
	PDFPlumber: {
		ID: PDFPlumber, FileType: document.TypePDF,
		Fallback:         PyMuPDF,
		MetadataKeys:     []string{"page_count"},
		PageMetadataKeys: []string{"width", "height", "tables_count"},
		Description:      "row based text with table detection",
	},
	WordReader: {
		ID: WordReader, FileType: document.TypeWord,
		MetadataKeys: []string{"paragraphs", "tables"},
		Description:  "DOCX paragraphs and tables",
	},
	PowerPointReader: {
		ID: PowerPointReader, FileType: document.TypePowerPoint,
		MetadataKeys: []string{"slides"},
		Description:  "PPTX slide text",
	},
	SpreadsheetReader: {
		ID: SpreadsheetReader, FileType: document.TypeExcel,
		MetadataKeys: []string{"sheets"},
		Description:  "XLSX and CSV sheets as pipe rows",
	},
	OCRTesseract: {
		ID: OCRTesseract, FileType: document.TypePDF,
		MetadataKeys:     []string{"page_count", "ocr_language"},
		PageMetadataKeys: []string{"width", "height", "ocr_confidence"},
		Description:      "tesseract OCR over rendered pages",
	},
	OCREasy: {
		ID: OCREasy, FileType: document.TypePDF,
		MetadataKeys:     []string{"page_count", "ocr_language"},
		PageMetadataKeys: []string{"width", "height", "detections"},
		Description:      "EasyOCR over rendered pages",
	},
	BuiltinText: {
		ID: BuiltinText, FileType: document.TypeText,
		MetadataKeys: []string{"lines", "headings", "source_format"},
		Description:  "plain text, markdown and HTML",
	},
}

// SpecFor returns the static spec of id.
func SpecFor(id ID) (Spec, bool) {
	s, ok := specs[id]
	return s, ok
}

// IDs returns every engine id in listing order.
func IDs() []ID { return slices.Clone(order) }

// Config configures the engines that talk to external services or binaries.
type Config struct {
	DoclingURL         string
	UnstructuredURL    string
	UnstructuredAPIKey string
	HTTPTimeout        time.Duration
	HTTPRetries        int

	TesseractPath string
	EasyOCRPath   string

	// Disabled engines always report unavailable.
	Disabled []string
}

// Registry maps engine ids to implementations.
type Registry struct {
	mu      sync.RWMutex
	engines map[ID]Engine
	log     *slog.Logger
}

// NewRegistry builds a registry with every engine wired from cfg.
func NewRegistry(cfg Config, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Minute
	}
	r := &Registry{engines: make(map[ID]Engine), log: log}

	r.Register(newPyMuPDF(log))
	r.Register(newPyMuPDF4LLM(log))
	r.Register(newDocling(cfg, log))
	r.Register(newUnstructured(cfg, log))
	r.Register(newPDFPlumber(log))
	r.Register(newWordReader())
	r.Register(newPowerPointReader())
	r.Register(newSpreadsheetReader())
	r.Register(newTesseract(cfg.TesseractPath, log))
	r.Register(newEasyOCR(cfg.EasyOCRPath, log))
	r.Register(newBuiltinText())

	for _, name := range cfg.Disabled {
		id, err := ParseID(name)
		if err != nil {
			log.Warn("ignoring unknown disabled engine", "engine", name)
			continue
		}
		r.Register(disabledEngine{id: id})
	}
	return r
}

// Register installs e under its ID, replacing any existing engine.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.ID()] = e
}

// Get returns the engine for id.
func (r *Registry) Get(id ID) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, id)
	}
	return e, nil
}

// Spec returns the fallback policy for id.
func (r *Registry) Spec(id ID) Spec {
	return specs[id]
}

// Status is the listing view of one engine.
type Status struct {
	ID          ID                `json:"id"`
	FileType    document.FileType `json:"file_type"`
	Fallback    ID                `json:"fallback,omitempty"`
	Available   bool              `json:"available"`
	Reason      string            `json:"reason,omitempty"`
	Description string            `json:"description"`
}

// List reports every engine with its current availability.
func (r *Registry) List() []Status {
	out := make([]Status, 0, len(order))
	for _, id := range order {
		s := specs[id]
		st := Status{ID: id, FileType: s.FileType, Fallback: s.Fallback, Available: true, Description: s.Description}
		e, err := r.Get(id)
		if err != nil {
			st.Available = false
			st.Reason = "not registered"
		} else if p, ok := e.(Prober); ok {
			if err := p.Available(); err != nil {
				st.Available = false
				st.Reason = err.Error()
			}
		}
		out = append(out, st)
	}
	return out
}

var errDisabled = errors.New("disabled by configuration")

type disabledEngine struct{ id ID }

func (d disabledEngine) ID() ID { return d.id }

func (d disabledEngine) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	return nil, unavailable(d.id, errDisabled)
}

func (d disabledEngine) Available() error { return errDisabled }
