package pathstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Root is the key prefix all published documents live under.
const Root = "documents"

func DocumentKey(docID string) string { return Root + "/" + docID }

func MetaKey(docID string) string { return DocumentKey(docID) + "/meta" }

func ChunkKey(docID, chunkID string) string { return DocumentKey(docID) + "/chunks/" + chunkID }

// HashPrefix is the dedup index entry for a content hash. Each document with
// that content is a child keyed by its doc id.
func HashPrefix(contentHash string) string { return Root + "/by_hash/" + contentHash }

func HashKey(contentHash, docID string) string { return HashPrefix(contentHash) + "/" + docID }

// DocumentMeta is the value stored at MetaKey.
type DocumentMeta struct {
	DocID       string `json:"doc_id"`
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	FileSize    int64  `json:"file_size"`
	ToolUsed    string `json:"tool_used"`
	ContentHash string `json:"content_hash"`
	Pages       int    `json:"pages"`
	Chunks      int    `json:"chunks"`
	Scanned     *bool  `json:"scanned,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// FindDuplicate returns the doc id already indexed under contentHash, or ""
// when there is none.
func (c *Client) FindDuplicate(ctx context.Context, contentHash string) (string, error) {
	children, err := c.ListChildren(ctx, HashPrefix(contentHash), 1)
	if err != nil {
		return "", err
	}
	if len(children) == 0 {
		return "", nil
	}
	return lastSegment(children[0].Key), nil
}

// ListDocuments returns the meta nodes of every published document.
func (c *Client) ListDocuments(ctx context.Context, limit int) ([]ListChildrenResponse, error) {
	children, err := c.ListChildren(ctx, Root, limit)
	if err != nil {
		return nil, err
	}
	docs := make([]ListChildrenResponse, 0, len(children))
	for _, child := range children {
		if lastSegment(child.Key) == "meta" {
			docs = append(docs, child)
		}
	}
	return docs, nil
}

// DeleteResult reports what DeleteDocument removed.
type DeleteResult struct {
	DocID         string `json:"doc_id"`
	ChunksDeleted int    `json:"chunks_deleted"`
	HashRemoved   bool   `json:"hash_index_removed"`
}

// DeleteDocument removes a document's meta, chunks and hash index entry.
// It returns ErrNotFound when the document has no meta node.
func (c *Client) DeleteDocument(ctx context.Context, docID string) (DeleteResult, error) {
	res := DeleteResult{DocID: docID}
	meta, err := c.GetNode(ctx, MetaKey(docID))
	if err != nil {
		return res, err
	}
	if meta == nil {
		return res, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}

	chunks, err := c.ListChildren(ctx, DocumentKey(docID)+"/chunks", 0)
	if err != nil {
		return res, err
	}
	res.ChunksDeleted = len(chunks)

	if err := c.DeleteNode(ctx, DocumentKey(docID), true); err != nil && !errors.Is(err, ErrNotFound) {
		return res, err
	}

	if m, ok := meta.Value.(map[string]any); ok {
		if hash, _ := m["content_hash"].(string); hash != "" {
			res.HashRemoved = c.DeleteNode(ctx, HashKey(hash, docID), false) == nil
		}
	}
	return res, nil
}

// lastSegment handles both "/" and "." separated key paths.
func lastSegment(key string) string {
	if i := strings.LastIndexAny(key, "/."); i >= 0 {
		return key[i+1:]
	}
	return key
}
