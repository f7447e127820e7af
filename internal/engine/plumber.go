package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Gaps between runs on a row, in multiples of the font size.
const (
	wordGap = 0.15
	cellGap = 1.5
)

// pdfPlumber reads text row by row and lifts aligned multi-column rows out
// as tables.
type pdfPlumber struct {
	log *slog.Logger
}

func newPDFPlumber(log *slog.Logger) *pdfPlumber { return &pdfPlumber{log: log} }

func (e *pdfPlumber) ID() ID { return PDFPlumber }

func (e *pdfPlumber) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, failed(PDFPlumber, fmt.Errorf("open pdf: %w", err))
	}
	defer f.Close()

	n := r.NumPage()
	raw := &Raw{
		Paged:    true,
		Pages:    make([]RawPage, 0, n),
		Metadata: map[string]any{"page_count": n},
	}
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, failed(PDFPlumber, err)
		}
		runs, err := pageRuns(r, i)
		if err != nil {
			return nil, failed(PDFPlumber, err)
		}
		text, tables := splitTables(rowsOf(runs))
		meta := map[string]any{"tables_count": len(tables)}
		if w, h, ok := mediaBox(r.Page(i)); ok {
			meta["width"], meta["height"] = w, h
		}
		raw.Pages = append(raw.Pages, RawPage{Index: i, Text: text, Tables: tables, Metadata: meta})
	}

	if opts.ExtractImages {
		raw.Images = extractPDFImages(path, e.log.With("engine", PDFPlumber))
	}
	return raw, nil
}

// row is one baseline of text split into cells at wide gaps.
type row struct {
	cells []string
}

func (r row) text() string { return strings.Join(r.cells, " ") }

// rowsOf groups runs into rows top to bottom and splits each row into cells.
func rowsOf(runs []textRun) []row {
	var clean []textRun
	for _, r := range runs {
		if r.S != "" {
			clean = append(clean, r)
		}
	}
	sort.SliceStable(clean, func(i, j int) bool {
		if clean[i].Y != clean[j].Y {
			return clean[i].Y > clean[j].Y
		}
		return clean[i].X < clean[j].X
	})

	var rows []row
	var cur []textRun
	flush := func() {
		if len(cur) > 0 {
			rows = append(rows, cellsOf(cur))
			cur = nil
		}
	}
	for _, r := range clean {
		if len(cur) > 0 && math.Abs(cur[0].Y-r.Y) > math.Max(cur[0].FontSize, 1)*0.5 {
			flush()
		}
		cur = append(cur, r)
	}
	flush()
	return rows
}

func cellsOf(runs []textRun) row {
	var cells []string
	var b strings.Builder
	end := math.Inf(-1)
	for _, r := range runs {
		fs := math.Max(r.FontSize, 1)
		gap := r.X - end
		switch {
		case b.Len() > 0 && gap > fs*cellGap:
			cells = append(cells, strings.TrimSpace(b.String()))
			b.Reset()
		case b.Len() > 0 && gap > fs*wordGap && !strings.HasSuffix(b.String(), " ") && !strings.HasPrefix(r.S, " "):
			b.WriteByte(' ')
		}
		b.WriteString(r.S)
		end = r.X + r.W
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		cells = append(cells, s)
	}
	return row{cells: cells}
}

// splitTables separates runs of two or more consecutive rows sharing the
// same column count (at least two) into tables. The remaining rows become
// the page text.
func splitTables(rows []row) (string, []Table) {
	var lines []string
	var tables []Table
	for i := 0; i < len(rows); {
		cols := len(rows[i].cells)
		j := i + 1
		if cols >= 2 {
			for j < len(rows) && len(rows[j].cells) == cols {
				j++
			}
		}
		if cols >= 2 && j-i >= 2 {
			t := Table{Rows: make([][]any, 0, j-i)}
			for _, r := range rows[i:j] {
				cells := make([]any, len(r.cells))
				for k, c := range r.cells {
					cells[k] = c
				}
				t.Rows = append(t.Rows, cells)
			}
			tables = append(tables, t)
			i = j
			continue
		}
		if s := rows[i].text(); s != "" {
			lines = append(lines, s)
		}
		i++
	}
	return strings.Join(lines, "\n"), tables
}

// mediaBox returns the page width and height from its MediaBox.
func mediaBox(p pdf.Page) (w, h float64, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	box := p.V.Key("MediaBox")
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return 0, 0, false
	}
	var c [4]float64
	for i := range c {
		v := box.Index(i)
		if v.Kind() == pdf.Integer {
			c[i] = float64(v.Int64())
		} else {
			c[i] = v.Float64()
		}
	}
	return math.Abs(c[2] - c[0]), math.Abs(c[3] - c[1]), true
}
