package chunker

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docparse/internal/document"
)

func TestChunkDocument_PerPage(t *testing.T) {
	doc := &document.Document{
		FileName: "a.pdf",
		FileType: document.TypePDF,
		ToolUsed: "pymupdf",
		Content:  "ignored when pages exist",
		Pages: []document.Page{
			{PageNumber: 1, Content: strings.Repeat("a", 1000)},
			{PageNumber: 2, Content: "   "},
			{PageNumber: 3, Content: "short"},
		},
	}
	chunks := ChunkDocument(doc, Config{MaxChars: 900, Overlap: 120})
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	wantPages := []int{1, 1, 3}
	wantIdx := []int{0, 1, 0}
	for i, c := range chunks {
		if c.Metadata.Page == nil || *c.Metadata.Page != wantPages[i] {
			t.Errorf("chunk %d page = %v, want %d", i, c.Metadata.Page, wantPages[i])
		}
		if c.Metadata.ChunkIndex != wantIdx[i] {
			t.Errorf("chunk %d index = %d, want %d", i, c.Metadata.ChunkIndex, wantIdx[i])
		}
		if c.Text == "" {
			t.Errorf("chunk %d empty", i)
		}
		if c.Metadata.FileName != "a.pdf" || c.Metadata.ToolUsed != "pymupdf" || c.Metadata.FileType != document.TypePDF {
			t.Errorf("chunk %d metadata = %+v", i, c.Metadata)
		}
		if c.ID != StableID("a.pdf", c.Metadata.Page, c.Metadata.ChunkIndex, c.Text) {
			t.Errorf("chunk %d id mismatch", i)
		}
	}
}

func TestChunkDocument_NoPages(t *testing.T) {
	doc := &document.Document{
		FileName: "b.xlsx",
		FileType: document.TypeExcel,
		ToolUsed: "spreadsheet-reader",
		Content:  strings.Repeat("row | ", 300),
	}
	chunks := ChunkDocument(doc, DefaultConfig())
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.Metadata.Page != nil {
			t.Errorf("chunk %d has page %d", i, *c.Metadata.Page)
		}
		if c.Metadata.ChunkIndex != i {
			t.Errorf("chunk %d index = %d", i, c.Metadata.ChunkIndex)
		}
	}
}

func TestChunkDocument_Empty(t *testing.T) {
	chunks := ChunkDocument(&document.Document{FileName: "e.txt"}, DefaultConfig())
	if chunks == nil || len(chunks) != 0 {
		t.Errorf("chunks = %v, want empty slice", chunks)
	}
}

func TestWriteExport(t *testing.T) {
	doc := &document.Document{
		FileName: "a.pdf",
		FileType: document.TypePDF,
		ToolUsed: "pymupdf4llm",
		FileSize: 1234,
		Pages:    []document.Page{{PageNumber: 1, Content: "hello <world> & more"}},
		PdfAnalysis: &document.PdfAnalysis{
			Type: document.PdfDigital, TotalPages: 1,
			ScannedPages: []int{}, HybridPages: []int{}, DigitalPages: []int{1}, HasText: true,
		},
	}
	now := time.Date(2026, 3, 4, 5, 6, 7, 890000000, time.UTC)
	exp := BuildExport(doc, ChunkDocument(doc, DefaultConfig()), now)

	var buf bytes.Buffer
	if err := WriteExport(&buf, exp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "hello <world> & more") {
		t.Errorf("html escaped in export: %s", buf.String())
	}

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["schema"] != "rag_chunks_v1" {
		t.Errorf("schema = %v", out["schema"])
	}
	if out["created_at"] != "2026-03-04T05:06:07.890000Z" {
		t.Errorf("created_at = %v", out["created_at"])
	}
	d := out["document"].(map[string]any)
	for _, k := range []string{"file_name", "file_type", "tool_used", "file_size", "pdf_analysis"} {
		if _, ok := d[k]; !ok {
			t.Errorf("document missing %q", k)
		}
	}
	if d["pdf_analysis"].(map[string]any)["type"] != "Digital" {
		t.Errorf("pdf_analysis = %v", d["pdf_analysis"])
	}
	chunks := out["chunks"].([]any)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %v", chunks)
	}
	meta := chunks[0].(map[string]any)["metadata"].(map[string]any)
	if meta["page"] != float64(1) || meta["chunk_index"] != float64(0) {
		t.Errorf("metadata = %v", meta)
	}
}

func TestWriteExport_PagelessOmitsPage(t *testing.T) {
	doc := &document.Document{FileName: "s.csv", FileType: document.TypeExcel, Content: "a"}
	var buf bytes.Buffer
	if err := WriteExport(&buf, BuildExport(doc, ChunkDocument(doc, DefaultConfig()), time.Now())); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), `"page"`) {
		t.Errorf("page present for page-less chunk: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"pdf_analysis": null`) {
		t.Errorf("pdf_analysis should be null: %s", buf.String())
	}
}
