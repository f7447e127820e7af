package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dgallion1/docparse/internal/pathstore"
	"github.com/go-chi/chi/v5"
)

// handleListDocuments lists the meta of every published document.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	nodes, err := s.orchestrator.PathstoreClient().ListDocuments(r.Context(), limit)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusBadGateway)
		return
	}

	docs := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		docs = append(docs, map[string]any{
			"key":   n.Key,
			"value": n.Value,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

// handleDeleteDocument deletes a document, its chunks and its hash index entry.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	res, err := s.orchestrator.PathstoreClient().DeleteDocument(r.Context(), docID)
	if errors.Is(err, pathstore.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusBadGateway)
		return
	}
	s.log.Info("document deleted", "doc_id", docID, "chunks", res.ChunksDeleted)
	writeJSON(w, http.StatusOK, res)
}
