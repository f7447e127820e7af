// Package normalize turns raw engine output into the canonical document
// model.
package normalize

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/dgallion1/docparse/internal/document"
	"github.com/dgallion1/docparse/internal/engine"
)

// Config bounds image extraction.
type Config struct {
	MinImageWidth    int
	MinImageHeight   int
	MaxImagesPerPage int
}

func DefaultConfig() Config {
	return Config{MinImageWidth: 50, MinImageHeight: 50, MaxImagesPerPage: 20}
}

// Info describes the source file.
type Info struct {
	FileName string
	FileType document.FileType
	FileSize int64
}

// Normalizer converts engine output to documents.
type Normalizer struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{cfg: cfg, log: log}
}

// Normalize builds the Document for raw produced by engine id.
func (n *Normalizer) Normalize(id engine.ID, raw *engine.Raw, info Info) (*document.Document, error) {
	if raw == nil {
		return nil, fmt.Errorf("normalize %s: no output", id)
	}

	doc := &document.Document{
		ToolUsed: string(id),
		FileName: info.FileName,
		FileType: info.FileType,
		FileSize: info.FileSize,
		Pages:    []document.Page{},
		Images:   []document.Image{},
		Metadata: make(map[string]any, len(raw.Metadata)),
	}
	for k, v := range raw.Metadata {
		doc.Metadata[k] = v
	}

	rawPages := slices.Clone(raw.Pages)
	slices.SortStableFunc(rawPages, func(a, b engine.RawPage) int { return cmp.Compare(a.Index, b.Index) })

	for i, rp := range rawPages {
		doc.Pages = append(doc.Pages, buildPage(i+1, rp))
	}

	if raw.Paged {
		doc.Content = joinPages(doc.Pages, raw.PageLabel)
	} else {
		doc.Content = raw.Content
	}

	if len(raw.Images) > 0 {
		doc.Images = n.images(raw.Images)
	}
	return doc, nil
}

func buildPage(num int, rp engine.RawPage) document.Page {
	p := document.Page{
		PageNumber: num,
		Content:    pageContent(rp),
		Metadata:   rp.Metadata,
	}
	if rp.Blocks != nil {
		p.BBoxes = boxes(rp.Blocks)
	}
	return p
}

// pageContent appends each table to the page text as a pipe table.
func pageContent(rp engine.RawPage) string {
	if len(rp.Tables) == 0 {
		return rp.Text
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(rp.Text, "\n"))
	for i, t := range rp.Tables {
		md := t.Markdown()
		if md == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "**Table %d:**\n\n%s", i+1, md)
	}
	return b.String()
}

// joinPages renders "## <label> N" before each page, pages separated by a
// blank line.
func joinPages(pages []document.Page, label string) string {
	if label == "" {
		label = "Page"
	}
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, fmt.Sprintf("## %s %d\n\n%s", label, p.PageNumber, strings.TrimRight(p.Content, "\n")))
	}
	return strings.Join(parts, "\n\n")
}

var blockTypes = map[int]document.BoxType{
	engine.BlockText:  document.BoxText,
	engine.BlockImage: document.BoxImage,
	engine.BlockTable: document.BoxTable,
}

// boxes maps engine blocks to bounding boxes with ordered corners. Blocks
// of unknown type or zero area are dropped.
func boxes(blocks []engine.Block) []document.BoundingBox {
	out := make([]document.BoundingBox, 0, len(blocks))
	for _, b := range blocks {
		typ, ok := blockTypes[b.Type]
		if !ok {
			continue
		}
		x0, x1 := min(b.X0, b.X1), max(b.X0, b.X1)
		y0, y1 := min(b.Y0, b.Y1), max(b.Y0, b.Y1)
		if x0 == x1 || y0 == y1 {
			continue
		}
		out = append(out, document.BoundingBox{Type: typ, X0: x0, Y0: y0, X1: x1, Y1: y1})
	}
	return out
}

// images decodes raw images once per object reference and drops the ones
// below the minimum size.
func (n *Normalizer) images(raw []engine.RawImage) []document.Image {
	seen := make(map[int]bool)
	perPage := make(map[int]int)
	var out []document.Image
	for _, ri := range raw {
		if ri.Ref != 0 {
			if seen[ri.Ref] {
				continue
			}
			seen[ri.Ref] = true
		}

		page := ri.Page
		if n.cfg.MaxImagesPerPage > 0 && perPage[page] >= n.cfg.MaxImagesPerPage {
			continue
		}

		img, err := imaging.Decode(bytes.NewReader(ri.Data))
		if err != nil {
			n.log.Warn("skipping undecodable image", "page", page, "ref", ri.Ref, "ext", ri.Ext, "error", err)
			continue
		}
		b := img.Bounds()
		if b.Dx() < n.cfg.MinImageWidth || b.Dy() < n.cfg.MinImageHeight {
			continue
		}

		out = append(out, document.Image{
			Page:   page,
			Index:  perPage[page],
			Ext:    ri.Ext,
			Width:  b.Dx(),
			Height: b.Dy(),
			Image:  img,
		})
		perPage[page]++
	}
	if out == nil {
		out = []document.Image{}
	}
	return out
}
