// Package selector chooses the extraction engine for a document and runs it
// with the registry's fallback policy.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docparse/internal/document"
	"github.com/dgallion1/docparse/internal/engine"
)

// ErrUnsupportedType is returned for file types no engine handles.
var ErrUnsupportedType = errors.New("unsupported document type")

// ScanDetector is the quick scanned-PDF check.
type ScanDetector interface {
	IsScanned(path string) bool
}

// Selector picks and invokes engines.
type Selector struct {
	registry *engine.Registry
	scans    ScanDetector
	log      *slog.Logger
}

func New(registry *engine.Registry, scans ScanDetector, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{registry: registry, scans: scans, log: log}
}

var defaultEngines = map[document.FileType]engine.ID{
	document.TypeWord:       engine.WordReader,
	document.TypePowerPoint: engine.PowerPointReader,
	document.TypeExcel:      engine.SpreadsheetReader,
	document.TypeText:       engine.BuiltinText,
}

// Select returns the engine for a document. An explicit tool always wins
// and is only checked for existence.
func (s *Selector) Select(ft document.FileType, explicit, path string, detectScanned bool) (engine.ID, error) {
	if explicit != "" {
		return engine.ParseID(explicit)
	}

	if ft == document.TypePDF {
		if detectScanned && s.scans != nil && s.scans.IsScanned(path) {
			s.log.Info("scanned pdf detected, routing to ocr", "file", path, "engine", engine.OCRTesseract)
			return engine.OCRTesseract, nil
		}
		return engine.PyMuPDF4LLM, nil
	}
	if id, ok := defaultEngines[ft]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ft)
}

// Invoke runs engine id on path. When the engine fails in a way its spec
// declares recoverable, the fallback engine runs once and its id is
// returned instead.
func (s *Selector) Invoke(ctx context.Context, id engine.ID, path string, opts engine.Options) (*engine.Raw, engine.ID, error) {
	raw, err := s.run(ctx, id, path, opts)
	if err == nil {
		return raw, id, nil
	}

	spec := s.registry.Spec(id)
	if !spec.Recoverable(err) {
		return nil, id, err
	}

	s.log.Warn("engine failed, using fallback",
		"engine", id, "fallback", spec.Fallback, "error", err)
	raw, ferr := s.run(ctx, spec.Fallback, path, opts)
	if ferr != nil {
		return nil, spec.Fallback, fmt.Errorf("fallback after %s: %w", id, ferr)
	}
	return raw, spec.Fallback, nil
}

func (s *Selector) run(ctx context.Context, id engine.ID, path string, opts engine.Options) (*engine.Raw, error) {
	e, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	raw, err := e.Extract(ctx, path, opts)
	if err != nil {
		return nil, engine.Classify(id, err)
	}
	return raw, nil
}
