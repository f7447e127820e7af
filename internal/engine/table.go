package engine

import (
	"fmt"
	"strings"
)

// Markdown renders the table as a pipe table. The first row is the header;
// short rows are padded and nil cells render empty. It returns "" for an
// empty table.
func (t Table) Markdown() string {
	rows := t.Rows
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	if width == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(r []any) {
		b.WriteByte('|')
		for i := 0; i < width; i++ {
			var cell string
			if i < len(r) {
				cell = cellString(r[i])
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteByte('\n')
	}

	writeRow(rows[0])
	b.WriteByte('|')
	for i := 0; i < width; i++ {
		b.WriteString(" --- |")
	}
	b.WriteByte('\n')
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimRight(b.String(), "\n")
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	var s string
	switch c := v.(type) {
	case string:
		s = c
	case *string:
		if c == nil {
			return ""
		}
		s = *c
	default:
		s = fmt.Sprint(c)
	}
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
