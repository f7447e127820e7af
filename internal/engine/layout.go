package engine

import (
	"cmp"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// textRun is a positioned piece of text in PDF user space (origin
// bottom-left).
type textRun struct {
	X, Y, W  float64
	FontSize float64
	S        string
}

// pageRuns reads the positioned text of page n (1-based).
func pageRuns(r *pdf.Reader, n int) (runs []textRun, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("read page %d content: %v", n, rec)
		}
	}()
	p := r.Page(n)
	if p.V.IsNull() {
		return nil, nil
	}
	for _, t := range p.Content().Text {
		runs = append(runs, textRun{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, S: t.S})
	}
	return runs, nil
}

type textLine struct {
	minX, maxX float64
	y          float64 // baseline
	font       float64
}

// groupLines clusters runs sharing a baseline into lines, top to bottom.
func groupLines(runs []textRun) []textLine {
	runs = slices.DeleteFunc(slices.Clone(runs), func(r textRun) bool {
		return strings.TrimSpace(r.S) == ""
	})
	slices.SortStableFunc(runs, func(a, b textRun) int {
		if c := cmp.Compare(b.Y, a.Y); c != 0 {
			return c
		}
		return cmp.Compare(a.X, b.X)
	})

	var lines []textLine
	for _, r := range runs {
		fs := math.Max(r.FontSize, 1)
		if n := len(lines); n > 0 && math.Abs(lines[n-1].y-r.Y) <= fs*0.5 {
			l := &lines[n-1]
			l.minX = math.Min(l.minX, r.X)
			l.maxX = math.Max(l.maxX, r.X+r.W)
			l.font = math.Max(l.font, fs)
			continue
		}
		lines = append(lines, textLine{minX: r.X, maxX: r.X + r.W, y: r.Y, font: fs})
	}
	return lines
}

// textBlocks merges lines into paragraph blocks and converts them to
// top-left page coordinates using pageHeight.
func textBlocks(runs []textRun, pageHeight float64) []Block {
	type span struct {
		minX, maxX, top, bottom, lastY, font float64
	}
	var spans []span
	for _, l := range groupLines(runs) {
		top := l.y + l.font
		bottom := l.y - l.font*0.2
		if n := len(spans); n > 0 {
			s := &spans[n-1]
			overlaps := l.minX < s.maxX && l.maxX > s.minX
			if overlaps && s.lastY-l.y <= math.Max(s.font, l.font)*1.6 {
				s.minX = math.Min(s.minX, l.minX)
				s.maxX = math.Max(s.maxX, l.maxX)
				s.bottom = math.Min(s.bottom, bottom)
				s.lastY = l.y
				s.font = math.Max(s.font, l.font)
				continue
			}
		}
		spans = append(spans, span{minX: l.minX, maxX: l.maxX, top: top, bottom: bottom, lastY: l.y, font: l.font})
	}

	blocks := make([]Block, 0, len(spans))
	for _, s := range spans {
		blocks = append(blocks, Block{
			Type: BlockText,
			X0:   s.minX,
			Y0:   clamp(pageHeight-s.top, 0, pageHeight),
			X1:   s.maxX,
			Y1:   clamp(pageHeight-s.bottom, 0, pageHeight),
		})
	}
	return blocks
}

func clamp(v, lo, hi float64) float64 {
	if hi <= lo {
		return v
	}
	return math.Min(math.Max(v, lo), hi)
}

// hasDegenerate reports whether any block has no width or height, which
// happens when the PDF font carries no glyph widths.
func hasDegenerate(blocks []Block) bool {
	return slices.ContainsFunc(blocks, func(b Block) bool {
		return b.X1 <= b.X0 || b.Y1 <= b.Y0
	})
}

// paragraphBlocks builds text blocks from the positioned <p> lines of
// MuPDF's HTML output. Line widths are estimated from the span font size.
func paragraphBlocks(doc string, pageWidth float64) []Block {
	type line struct {
		left, top, height, width float64
	}
	var (
		lines []line
		cur   *line
		font  float64
	)
	z := html.NewTokenizer(strings.NewReader(doc))
	for done := false; !done; {
		switch z.Next() {
		case html.ErrorToken:
			done = true
		case html.StartTagToken:
			tok := z.Token()
			st := parseStyle(attr(tok, "style"))
			switch tok.Data {
			case "p":
				top, okT := st["top"]
				left, okL := st["left"]
				if okT && okL {
					lines = append(lines, line{left: left, top: top, height: st["line-height"]})
					cur = &lines[len(lines)-1]
				}
			case "span":
				if fs, ok := st["font-size"]; ok {
					font = fs
				}
			}
		case html.EndTagToken:
			if tok := z.Token(); tok.Data == "p" {
				cur = nil
			}
		case html.TextToken:
			if cur == nil {
				continue
			}
			fs := font
			if fs <= 0 {
				fs = cur.height
			}
			cur.width += float64(len([]rune(string(z.Text())))) * fs * 0.5
		}
	}

	var blocks []Block
	for _, l := range lines {
		if l.width <= 0 {
			continue
		}
		height := l.height
		if height <= 0 {
			height = 12
		}
		b := Block{Type: BlockText, X0: l.left, Y0: l.top, X1: clamp(l.left+l.width, l.left, pageWidth), Y1: l.top + height}
		if n := len(blocks); n > 0 {
			prev := &blocks[n-1]
			overlaps := b.X0 < prev.X1 && b.X1 > prev.X0
			if overlaps && b.Y0-prev.Y1 <= height*0.6 && b.Y0 >= prev.Y0 {
				prev.X0 = math.Min(prev.X0, b.X0)
				prev.X1 = math.Max(prev.X1, b.X1)
				prev.Y1 = math.Max(prev.Y1, b.Y1)
				continue
			}
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// imageBlocks finds absolutely positioned <img> elements in MuPDF's HTML
// output. MuPDF places each image at its natural pixel size and moves it
// with a CSS transform about the element centre, in px. Older output uses
// top/left/width/height in points instead.
func imageBlocks(doc string) []Block {
	var blocks []Block
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return blocks
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		if tok.Data != "img" {
			continue
		}
		style := attr(tok, "style")
		if m, ok := cssMatrix(style); ok {
			w, h := naturalSize(tok)
			if w <= 0 || h <= 0 {
				continue
			}
			if b, ok := transformedBox(m, w, h); ok {
				blocks = append(blocks, b)
			}
			continue
		}
		st := parseStyle(style)
		top, okT := st["top"]
		left, okL := st["left"]
		w, okW := st["width"]
		h, okH := st["height"]
		if okT && okL && okW && okH && w > 0 && h > 0 {
			blocks = append(blocks, Block{Type: BlockImage, X0: left, Y0: top, X1: left + w, Y1: top + h})
		}
	}
}

const pxToPt = 0.75

// transformedBox maps the w x h element through the CSS matrix m about its
// centre and returns the bounding box in points.
func transformedBox(m [6]float64, w, h float64) (Block, bool) {
	cx, cy := w/2, h/2
	x0, y0 := math.Inf(1), math.Inf(1)
	x1, y1 := math.Inf(-1), math.Inf(-1)
	for _, p := range [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		dx, dy := p[0]-cx, p[1]-cy
		x := m[0]*dx + m[2]*dy + m[4] + cx
		y := m[1]*dx + m[3]*dy + m[5] + cy
		x0, x1 = math.Min(x0, x), math.Max(x1, x)
		y0, y1 = math.Min(y0, y), math.Max(y1, y)
	}
	b := Block{Type: BlockImage, X0: x0 * pxToPt, Y0: y0 * pxToPt, X1: x1 * pxToPt, Y1: y1 * pxToPt}
	return b, b.X1 > b.X0 && b.Y1 > b.Y0
}

// cssMatrix parses the transform:matrix(a,b,c,d,e,f) declaration of style.
func cssMatrix(style string) ([6]float64, bool) {
	var m [6]float64
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(k) != "transform" {
			continue
		}
		v = strings.TrimSpace(v)
		args, ok := strings.CutPrefix(v, "matrix(")
		if !ok {
			return m, false
		}
		parts := strings.Split(strings.TrimSuffix(args, ")"), ",")
		if len(parts) != 6 {
			return m, false
		}
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return m, false
			}
			m[i] = f
		}
		return m, true
	}
	return m, false
}

// naturalSize returns the pixel size of an <img>, from its width and height
// attributes or else by decoding the header of its data URI.
func naturalSize(tok html.Token) (float64, float64) {
	w, errW := strconv.ParseFloat(attr(tok, "width"), 64)
	h, errH := strconv.ParseFloat(attr(tok, "height"), 64)
	if errW == nil && errH == nil {
		return w, h
	}
	src := attr(tok, "src")
	_, payload, ok := strings.Cut(src, ";base64,")
	if !ok || !strings.HasPrefix(src, "data:") {
		return 0, 0
	}
	cfg, _, err := image.DecodeConfig(base64.NewDecoder(base64.StdEncoding, strings.NewReader(payload)))
	if err != nil {
		return 0, 0
	}
	return float64(cfg.Width), float64(cfg.Height)
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// parseStyle returns the numeric pt values of an inline style attribute.
func parseStyle(style string) map[string]float64 {
	out := make(map[string]float64)
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSuffix(strings.TrimSpace(v), "pt")
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(k)] = f
	}
	return out
}
