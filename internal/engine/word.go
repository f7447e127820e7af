package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"
)

var errLegacyFormat = errors.New("legacy binary office format is not supported")

// wordReader reads DOCX paragraphs and tables in body order.
type wordReader struct{}

func newWordReader() *wordReader { return &wordReader{} }

func (e *wordReader) ID() ID { return WordReader }

func (e *wordReader) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	if strings.EqualFold(filepath.Ext(path), ".doc") {
		return nil, failed(WordReader, errLegacyFormat)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, failed(WordReader, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, failed(WordReader, err)
	}

	doc, err := docx.Parse(f, st.Size())
	if err != nil {
		return nil, failed(WordReader, fmt.Errorf("parse docx: %w", err))
	}

	var blocks []string
	paragraphs, tables := 0, 0
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			text := docxParagraphText(it)
			if text == "" {
				continue
			}
			paragraphs++
			if level := docxHeadingLevel(it); level > 0 {
				text = strings.Repeat("#", level) + " " + text
			}
			blocks = append(blocks, text)
		case *docx.Table:
			tables++
			if t := docxTableText(it); t != "" {
				blocks = append(blocks, t)
			}
		}
	}

	content := strings.Join(blocks, "\n\n")
	return &Raw{
		Content:  content,
		Pages:    []RawPage{{Index: 1, Text: content}},
		Metadata: map[string]any{"paragraphs": paragraphs, "tables": tables},
	}, nil
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if rest, ok := strings.CutPrefix(style, "heading"); ok && len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
		return int(rest[0] - '0')
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// docxTableText renders the table as a pipe table with the first row as the
// header. Rows with no text are dropped.
func docxTableText(t *docx.Table) string {
	var rows [][]any
	for _, r := range t.TableRows {
		cells := make([]any, 0, len(r.TableCells))
		empty := true
		for _, c := range r.TableCells {
			var parts []string
			for _, p := range c.Paragraphs {
				if s := docxParagraphText(p); s != "" {
					parts = append(parts, s)
				}
			}
			cell := strings.Join(parts, " ")
			if cell != "" {
				empty = false
			}
			cells = append(cells, cell)
		}
		if !empty {
			rows = append(rows, cells)
		}
	}
	return Table{Rows: rows}.Markdown()
}
