package chunker

import (
	"encoding/json"
	"io"
	"time"

	"github.com/dgallion1/docparse/internal/document"
)

// Schema tags the export format.
const Schema = "rag_chunks_v1"

// Export is the JSON artifact handed to embedding pipelines.
type Export struct {
	Schema    string    `json:"schema"`
	CreatedAt string    `json:"created_at"`
	Document  ExportDoc `json:"document"`
	Chunks    []Chunk   `json:"chunks"`
}

// ExportDoc is the document header of an Export.
type ExportDoc struct {
	FileName    string                `json:"file_name"`
	FileType    document.FileType     `json:"file_type"`
	ToolUsed    string                `json:"tool_used"`
	FileSize    int64                 `json:"file_size"`
	PdfAnalysis *document.PdfAnalysis `json:"pdf_analysis"`
}

// BuildExport wraps chunks of doc with the document header.
func BuildExport(doc *document.Document, chunks []Chunk, now time.Time) Export {
	if chunks == nil {
		chunks = []Chunk{}
	}
	return Export{
		Schema:    Schema,
		CreatedAt: now.UTC().Format("2006-01-02T15:04:05.000000") + "Z",
		Document: ExportDoc{
			FileName:    doc.FileName,
			FileType:    doc.FileType,
			ToolUsed:    doc.ToolUsed,
			FileSize:    doc.FileSize,
			PdfAnalysis: doc.PdfAnalysis,
		},
		Chunks: chunks,
	}
}

// WriteExport writes e as indented JSON.
func WriteExport(w io.Writer, e Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(e)
}
