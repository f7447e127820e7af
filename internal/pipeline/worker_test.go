package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docparse/internal/chunker"
	"github.com/dgallion1/docparse/internal/pathstore"
)

// recordingStore accepts every write and remembers the keys.
type recordingStore struct {
	mu        sync.Mutex
	puts      map[string]json.RawMessage
	links     int
	duplicate string
	failChunk bool
	// chunkLimit > 0 accepts only that many chunk writes.
	chunkLimit int
	chunkPuts  int
}

func (s *recordingStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.URL.Path == "/links":
		s.links++
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/*"):
		var nodes []pathstore.ListChildrenResponse
		if s.duplicate != "" && strings.Contains(r.URL.Path, "/by_hash/") {
			nodes = append(nodes, pathstore.ListChildrenResponse{Key: "documents.by_hash.x." + s.duplicate})
		}
		json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
	case r.Method == http.MethodPut:
		key := strings.TrimPrefix(r.URL.Path, "/kv/")
		if strings.Contains(key, "/chunks/") {
			if s.failChunk || (s.chunkLimit > 0 && s.chunkPuts >= s.chunkLimit) {
				http.Error(w, "disk full", http.StatusInsufficientStorage)
				return
			}
			s.chunkPuts++
		}
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		s.puts[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	default:
		http.NotFound(w, r)
	}
}

func (s *recordingStore) keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.puts {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func newTestWorker(t *testing.T, store *recordingStore) *Worker {
	t.Helper()
	store.puts = make(map[string]json.RawMessage)
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)
	p, _ := newTestParser(t)
	return NewWorker(p, pathstore.NewClient(srv.URL, "k"), nil, 4)
}

func newUploadJob(name, content string) *Job {
	now := time.Now()
	job := &Job{
		ID:        "job-1",
		DocID:     "doc-1",
		Status:    StatusQueued,
		Filename:  name,
		CreatedAt: now,
		UpdatedAt: now,
		Chunking:  chunker.Config{MaxChars: 20, Overlap: 5},
	}
	job.SetFileData([]byte(content))
	return job
}

func TestWorker_ProcessUpload(t *testing.T) {
	store := &recordingStore{}
	w := newTestWorker(t, store)
	job := newUploadJob("notes.txt", "The quick brown fox jumps over the lazy dog again and again.")

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %q (errors %v), want completed", snap.Status, snap.Progress.Errors)
	}
	if snap.ToolUsed != "builtin-text" {
		t.Errorf("ToolUsed = %q", snap.ToolUsed)
	}
	if snap.Progress.TotalChunks < 2 || snap.Progress.ChunksStored != snap.Progress.TotalChunks {
		t.Errorf("progress = %+v", snap.Progress)
	}
	if snap.Progress.EstimatedTokens == 0 {
		t.Error("expected a token estimate")
	}
	if got := len(store.keys("documents/doc-1/chunks/")); got != snap.Progress.TotalChunks {
		t.Errorf("stored %d chunk nodes, want %d", got, snap.Progress.TotalChunks)
	}
	if len(store.keys(pathstore.MetaKey("doc-1"))) != 1 {
		t.Error("expected a meta node")
	}
	if len(store.keys(pathstore.HashKey(snap.ContentHash, "doc-1"))) != 1 {
		t.Error("expected a hash index node")
	}
	if store.links != snap.Progress.TotalChunks-1 {
		t.Errorf("links = %d, want %d", store.links, snap.Progress.TotalChunks-1)
	}
	if job.FileData() != nil {
		t.Error("upload bytes should be released after parsing")
	}
}

func TestWorker_DuplicateSkipped(t *testing.T) {
	store := &recordingStore{duplicate: "older-doc"}
	w := newTestWorker(t, store)
	job := newUploadJob("notes.txt", "same content as before")

	w.Process(context.Background(), job)

	if got := job.Snapshot().Status; got != StatusDupSkipped {
		t.Fatalf("status = %q, want duplicate_skipped", got)
	}
	if len(store.keys("documents/")) != 0 {
		t.Error("duplicates must not be published")
	}
}

func TestWorker_ForceIgnoresDuplicate(t *testing.T) {
	store := &recordingStore{duplicate: "older-doc"}
	w := newTestWorker(t, store)
	job := newUploadJob("notes.txt", "same content as before")
	job.Force = true

	w.Process(context.Background(), job)

	if got := job.Snapshot().Status; got != StatusCompleted {
		t.Fatalf("status = %q, want completed", got)
	}
}

func TestWorker_ParseFailure(t *testing.T) {
	store := &recordingStore{}
	w := newTestWorker(t, store)
	job := newUploadJob("blob.xyz", "\x00\x01\x02")

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "parsing" {
		t.Fatalf("status = %q phase = %q, want failed/parsing", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 {
		t.Errorf("errors = %v", snap.Progress.Errors)
	}
}

func TestWorker_EmptyDocumentFails(t *testing.T) {
	store := &recordingStore{}
	w := newTestWorker(t, store)
	job := newUploadJob("empty.txt", "   \n\n  ")

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "chunking" {
		t.Fatalf("status = %q phase = %q, want failed/chunking", snap.Status, snap.Phase)
	}
}

func TestWorker_StoreFailure(t *testing.T) {
	store := &recordingStore{failChunk: true}
	w := newTestWorker(t, store)
	job := newUploadJob("notes.txt", "some text that will not be stored")

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", snap.Status)
	}
	if snap.Progress.ChunksStored != 0 || len(snap.Progress.Errors) == 0 {
		t.Errorf("progress = %+v", snap.Progress)
	}
}

func TestWorker_PartialStoreSkipsHashIndex(t *testing.T) {
	store := &recordingStore{chunkLimit: 1}
	w := newTestWorker(t, store)
	job := newUploadJob("notes.txt", "The quick brown fox jumps over the lazy dog again and again.")

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusPartial {
		t.Fatalf("status = %q, want partial", snap.Status)
	}
	if snap.Progress.ChunksStored != 1 {
		t.Errorf("ChunksStored = %d, want 1", snap.Progress.ChunksStored)
	}
	if len(store.keys(pathstore.MetaKey("doc-1"))) != 1 {
		t.Error("partial documents still get a meta node")
	}
	if len(store.keys("documents/by_hash/")) != 0 {
		t.Error("partial documents must not be indexed for dedup")
	}
	if store.links != 0 {
		t.Errorf("links = %d, want 0", store.links)
	}
}

func TestWorker_URLJob(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote document body"))
	}))
	defer src.Close()

	store := &recordingStore{}
	w := newTestWorker(t, store)
	job := &Job{ID: "job-url", DocID: "doc-url", SourceURL: src.URL + "/remote.txt", CreatedAt: time.Now()}

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("status = %q (errors %v)", snap.Status, snap.Progress.Errors)
	}
	if len(store.keys(pathstore.MetaKey("doc-url"))) != 1 {
		t.Error("expected a meta node")
	}
}
