package engine

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// spreadsheetReader renders every sheet as pipe-delimited rows. It has no
// page semantics.
type spreadsheetReader struct{}

func newSpreadsheetReader() *spreadsheetReader { return &spreadsheetReader{} }

func (e *spreadsheetReader) ID() ID { return SpreadsheetReader }

type sheet struct {
	name string
	rows [][]string
}

func (e *spreadsheetReader) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	var sheets []sheet
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xls":
		return nil, failed(SpreadsheetReader, errLegacyFormat)
	case ".csv":
		sheets, err = readCSV(path)
	default:
		sheets, err = readXLSX(path)
	}
	if err != nil {
		return nil, failed(SpreadsheetReader, err)
	}

	parts := make([]string, 0, len(sheets))
	for _, s := range sheets {
		parts = append(parts, renderSheet(s))
	}
	return &Raw{
		Content:  strings.Join(parts, "\n\n"),
		Metadata: map[string]any{"sheets": len(sheets)},
	}, nil
}

func renderSheet(s sheet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Sheet: %s\n", s.name)
	for _, r := range s.rows {
		line := strings.Join(r, " | ")
		if strings.TrimSpace(strings.ReplaceAll(line, "|", "")) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n| %s |", line)
	}
	return b.String()
}

func readXLSX(path string) ([]sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var out []sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", name, err)
		}
		out = append(out, sheet{name: name, rows: rows})
	}
	return out, nil
}

func readCSV(path string) ([]sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return []sheet{{name: name, rows: rows}}, nil
}
