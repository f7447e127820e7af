package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dgallion1/docparse/internal/chunker"
	"github.com/dgallion1/docparse/internal/config"
	"github.com/dgallion1/docparse/internal/document"
	"github.com/dgallion1/docparse/internal/fetch"
	"github.com/dgallion1/docparse/internal/pipeline"
	"github.com/dgallion1/docparse/internal/visualize"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch os.Args[1] {
	case "parse":
		err = cmdParse(ctx, cfg, log, os.Args[2:])
	case "chunks":
		err = cmdChunks(ctx, cfg, log, os.Args[2:])
	case "engines":
		err = cmdEngines(cfg, log)
	case "render":
		err = cmdRender(ctx, cfg, log, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `docparse: parse documents into normalized JSON

usage:
  docparse parse   [flags] <file|url>
  docparse chunks  [flags] <file|url>
  docparse engines
  docparse render  [flags] <file.pdf>

parse    Prints the normalized document.
chunks   Prints the document split into retrieval chunks.
engines  Lists parsing engines and whether they can run here.
render   Writes a PNG of a PDF page with layout boxes drawn over it.

Run "docparse <command> -h" for the flags of a command.
`)
}

// parseFlags are shared by every command that parses a document.
type parseFlags struct {
	tool          string
	detectScanned bool
	images        bool
	lang          string
}

func (p *parseFlags) register(fs *flag.FlagSet, cfg config.Config) {
	fs.StringVar(&p.tool, "tool", cfg.DefaultTool, "engine id or alias (empty selects automatically)")
	fs.BoolVar(&p.detectScanned, "detect-scanned", cfg.DetectScanned, "route scanned PDFs to OCR")
	fs.BoolVar(&p.images, "images", cfg.ExtractImages, "extract embedded images")
	fs.StringVar(&p.lang, "lang", cfg.OCRLanguage, "OCR language")
}

func (p *parseFlags) options() pipeline.Options {
	return pipeline.Options{
		Tool:          p.tool,
		DetectScanned: p.detectScanned,
		ExtractImages: p.images,
		OCRLanguage:   p.lang,
	}
}

func inputArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one input, got %d", fs.NArg())
	}
	return fs.Arg(0), nil
}

func cmdParse(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	var pf parseFlags
	pf.register(fs, cfg)
	fs.Parse(args)

	input, err := inputArg(fs)
	if err != nil {
		return err
	}
	doc, err := pipeline.NewParserFromConfig(cfg, nil, log).Parse(ctx, input, pf.options())
	if err != nil {
		return err
	}
	return printJSON(doc)
}

func cmdChunks(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("chunks", flag.ExitOnError)
	var pf parseFlags
	pf.register(fs, cfg)
	maxChars := fs.Int("max-chars", cfg.ChunkSize, "maximum characters per chunk")
	overlap := fs.Int("overlap", cfg.ChunkOverlap, "characters carried into the next chunk")
	fs.Parse(args)

	input, err := inputArg(fs)
	if err != nil {
		return err
	}
	doc, err := pipeline.NewParserFromConfig(cfg, nil, log).Parse(ctx, input, pf.options())
	if err != nil {
		return err
	}
	chunks := chunker.ChunkDocument(doc, chunker.Config{MaxChars: *maxChars, Overlap: *overlap})
	return chunker.WriteExport(os.Stdout, chunker.BuildExport(doc, chunks, time.Now()))
}

func cmdEngines(cfg config.Config, log *slog.Logger) error {
	return printJSON(pipeline.NewParserFromConfig(cfg, nil, log).Registry().List())
}

func cmdRender(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	var pf parseFlags
	pf.register(fs, cfg)
	page := fs.Int("page", 0, "0-based page to render; negative renders every page as a grid")
	scale := fs.Float64("scale", cfg.VisualizationScale, "render scale (1 = 72 DPI)")
	cols := fs.Int("cols", 2, "grid columns when rendering every page")
	out := fs.String("out", "page.png", "output PNG path")
	fs.Parse(args)

	input, err := inputArg(fs)
	if err != nil {
		return err
	}
	if fetch.IsURL(input) {
		return fmt.Errorf("render needs a local file")
	}
	// Boxes come from the layout engine unless another one is named.
	if pf.tool == "" {
		pf.tool = "pymupdf4llm"
	}
	doc, err := pipeline.NewParserFromConfig(cfg, nil, log).Parse(ctx, input, pf.options())
	if err != nil {
		return err
	}
	if doc.FileType != document.TypePDF {
		return fmt.Errorf("render needs a PDF, got %s", doc.FileType)
	}

	var img image.Image
	if *page >= 0 {
		img, err = visualize.Render(input, *page, pageBoxes(doc, *page), *scale)
		if err != nil {
			return err
		}
		if img == nil {
			return fmt.Errorf("page %d out of range", *page)
		}
	} else {
		n, err := visualize.PageCount(input)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s has no pages", input)
		}
		pages := make([]image.Image, 0, n)
		for i := 0; i < n; i++ {
			p, err := visualize.Render(input, i, pageBoxes(doc, i), *scale)
			if err != nil {
				return err
			}
			pages = append(pages, p)
		}
		img = visualize.Grid(pages, *cols)
	}

	if err := imaging.Save(img, *out); err != nil {
		return fmt.Errorf("save %s: %w", *out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
	return nil
}

func pageBoxes(doc *document.Document, index int) []document.BoundingBox {
	if index < 0 || index >= len(doc.Pages) {
		return nil
	}
	return doc.Pages[index].BBoxes
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
