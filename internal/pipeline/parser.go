package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dgallion1/docparse/internal/config"
	"github.com/dgallion1/docparse/internal/document"
	"github.com/dgallion1/docparse/internal/engine"
	"github.com/dgallion1/docparse/internal/fetch"
	"github.com/dgallion1/docparse/internal/normalize"
	"github.com/dgallion1/docparse/internal/pdfinspect"
	"github.com/dgallion1/docparse/internal/selector"
	"github.com/dgallion1/docparse/internal/stats"
)

// ErrNotFound is returned when the input path does not exist.
var ErrNotFound = errors.New("input not found")

// Options are the per-call parse settings.
type Options struct {
	Tool          string
	DetectScanned bool
	ExtractImages bool
	OCRLanguage   string
}

// Parser turns a file path or URL into a normalized Document. It is safe for
// concurrent use; each call shares no mutable state with others.
type Parser struct {
	registry   *engine.Registry
	selector   *selector.Selector
	classifier *pdfinspect.Classifier
	normalizer *normalize.Normalizer
	fetcher    *fetch.Downloader
	stats      *stats.Engines
	engineOpts engine.Options
	defaults   Options
	log        *slog.Logger
}

// Components are the collaborators a Parser delegates to.
type Components struct {
	Registry   *engine.Registry
	Classifier *pdfinspect.Classifier
	Normalizer *normalize.Normalizer
	Fetcher    *fetch.Downloader
	Stats      *stats.Engines
	Engine     engine.Options
	Defaults   Options
}

func NewParser(c Components, log *slog.Logger) *Parser {
	if log == nil {
		log = slog.Default()
	}
	var scans selector.ScanDetector
	if c.Classifier != nil {
		scans = c.Classifier
	}
	return &Parser{
		registry:   c.Registry,
		selector:   selector.New(c.Registry, scans, log),
		classifier: c.Classifier,
		normalizer: c.Normalizer,
		fetcher:    c.Fetcher,
		stats:      c.Stats,
		engineOpts: c.Engine,
		defaults:   c.Defaults,
		log:        log,
	}
}

// NewParserFromConfig wires every collaborator from cfg.
func NewParserFromConfig(cfg config.Config, st *stats.Engines, log *slog.Logger) *Parser {
	registry := engine.NewRegistry(engine.Config{
		DoclingURL:         cfg.DoclingURL,
		UnstructuredURL:    cfg.UnstructuredURL,
		UnstructuredAPIKey: cfg.UnstructuredAPIKey,
		HTTPTimeout:        cfg.EngineHTTPTimeout,
		HTTPRetries:        cfg.DownloadRetries,
		TesseractPath:      cfg.TesseractPath,
		EasyOCRPath:        cfg.EasyOCRPath,
		Disabled:           cfg.DisabledEngines,
	}, log)

	return NewParser(Components{
		Registry: registry,
		Classifier: pdfinspect.New(pdfinspect.Config{
			MinTextChars: cfg.MinTextChars,
			SampleSize:   cfg.ScannedSamplePages,
			ScannedRatio: cfg.ScannedThreshold,
		}, log),
		Normalizer: normalize.New(normalize.Config{
			MinImageWidth:    cfg.MinImageWidth,
			MinImageHeight:   cfg.MinImageHeight,
			MaxImagesPerPage: cfg.MaxImagesPerPage,
		}, log),
		Fetcher: fetch.New(fetch.Config{
			Timeout:  cfg.DownloadTimeout,
			Retries:  cfg.DownloadRetries,
			MaxBytes: cfg.MaxUploadBytes,
		}, log),
		Stats: st,
		Engine: engine.Options{
			OCRLanguage:      cfg.OCRLanguage,
			RenderDPI:        float64(cfg.RenderDPI),
			MaxParallelPages: cfg.MaxParallelPages,
		},
		Defaults: Options{
			Tool:          cfg.DefaultTool,
			DetectScanned: cfg.DetectScanned,
			ExtractImages: cfg.ExtractImages,
			OCRLanguage:   cfg.OCRLanguage,
		},
	}, log)
}

// Registry returns the engine registry used by the parser.
func (p *Parser) Registry() *engine.Registry { return p.registry }

// Defaults returns the configured default options.
func (p *Parser) Defaults() Options { return p.defaults }

// Parse extracts input, which is either a local path or an http(s) URL.
func (p *Parser) Parse(ctx context.Context, input string, opts Options) (*document.Document, error) {
	local, name := input, filepath.Base(input)
	if fetch.IsURL(input) {
		if p.fetcher == nil {
			return nil, fmt.Errorf("parse %s: downloads are not configured", input)
		}
		downloaded, cleanup, err := p.fetcher.Download(ctx, input)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		local, name = downloaded, urlFileName(input, downloaded)
	}

	info, err := os.Stat(local)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, input)
		}
		return nil, fmt.Errorf("stat %s: %w", input, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, input)
	}

	ft, ext := document.DetectType(local)
	id, err := p.selector.Select(ft, opts.Tool, local, opts.DetectScanned)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	eopts := p.engineOpts
	eopts.ExtractImages = opts.ExtractImages
	eopts.Ext = ext
	if opts.OCRLanguage != "" {
		eopts.OCRLanguage = opts.OCRLanguage
	}

	log := p.log.With("file", name, "engine", id)
	start := time.Now()
	raw, used, err := p.selector.Invoke(ctx, id, local, eopts)
	p.stats.Record(string(used), time.Since(start), err)
	if err != nil {
		log.Error("extraction failed", "error", err)
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	doc, err := p.normalizer.Normalize(used, raw, normalize.Info{
		FileName: name,
		FileType: ft,
		FileSize: info.Size(),
	})
	if err != nil {
		return nil, err
	}

	if ft == document.TypePDF && opts.DetectScanned && p.classifier != nil {
		doc.PdfAnalysis = p.classifier.Analyze(local)
	}

	log.Info("parsed document",
		"tool_used", doc.ToolUsed,
		"pages", len(doc.Pages),
		"images", len(doc.Images),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

// urlFileName prefers the last URL path segment, falling back to the
// downloaded file's name when the URL has none.
func urlFileName(rawURL, downloaded string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return filepath.Base(downloaded)
}
