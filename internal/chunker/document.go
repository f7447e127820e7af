package chunker

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/dgallion1/docparse/internal/document"
)

// Chunk is a retrieval unit derived from a Document.
type Chunk struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Metadata records where a chunk came from. Page is nil for document-wide
// chunks.
type Metadata struct {
	FileName   string            `json:"file_name"`
	FileType   document.FileType `json:"file_type"`
	ToolUsed   string            `json:"tool_used"`
	Page       *int              `json:"page,omitempty"`
	ChunkIndex int               `json:"chunk_index"`
}

// ChunkDocument chunks each page separately when the document has pages,
// otherwise its whole content. Chunk indexes restart at 0 per page.
func ChunkDocument(doc *document.Document, cfg Config) []Chunk {
	cfg = cfg.withDefaults()
	chunks := []Chunk{}

	if len(doc.Pages) > 0 {
		for _, p := range doc.Pages {
			page := p.PageNumber
			for i, text := range ChunkText(p.Content, cfg.MaxChars, cfg.Overlap) {
				chunks = append(chunks, newChunk(doc, &page, i, text))
			}
		}
		return chunks
	}

	for i, text := range ChunkText(doc.Content, cfg.MaxChars, cfg.Overlap) {
		chunks = append(chunks, newChunk(doc, nil, i, text))
	}
	return chunks
}

func newChunk(doc *document.Document, page *int, index int, text string) Chunk {
	return Chunk{
		ID:   StableID(doc.FileName, page, index, text),
		Text: text,
		Metadata: Metadata{
			FileName:   doc.FileName,
			FileType:   doc.FileType,
			ToolUsed:   doc.ToolUsed,
			Page:       page,
			ChunkIndex: index,
		},
	}
}

// StableID derives a chunk id from its file, page ("doc" when nil), index
// and first 40 characters: 16 hex chars of a SHA-1 digest.
func StableID(fileName string, page *int, index int, text string) string {
	where := "doc"
	if page != nil {
		where = strconv.Itoa(*page)
	}
	prefix := []rune(text)
	if len(prefix) > 40 {
		prefix = prefix[:40]
	}
	sum := sha1.Sum([]byte(strings.Join([]string{fileName, where, strconv.Itoa(index), string(prefix)}, "|")))
	return hex.EncodeToString(sum[:])[:16]
}
