package pathstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for the pathstore KV API.
type fakeStore struct {
	mu    sync.Mutex
	nodes map[string]any
	links []LinkRequest
	auth  []string
}

func newFakeStore(t *testing.T) (*fakeStore, *Client) {
	t.Helper()
	fs := &fakeStore{nodes: make(map[string]any)}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, NewClient(srv.URL+"/", "secret")
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	if r.URL.Path == "/links" {
		var link LinkRequest
		if err := json.NewDecoder(r.Body).Decode(&link); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.links = append(f.links, link)
		w.WriteHeader(http.StatusCreated)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch r.Method {
	case http.MethodPut:
		var req NodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		if prefix, ok := strings.CutSuffix(key, "/*"); ok {
			var nodes []ListChildrenResponse
			for k, v := range f.nodes {
				if strings.HasPrefix(k, prefix+"/") {
					nodes = append(nodes, ListChildrenResponse{Key: strings.ReplaceAll(k, "/", "."), Value: v})
				}
			}
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
			json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
			return
		}
		v, ok := f.nodes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(NodeResponse{Key: key, Value: v})
	case http.MethodDelete:
		if _, ok := f.nodes[key]; !ok && r.URL.Query().Get("children") != "true" {
			http.NotFound(w, r)
			return
		}
		delete(f.nodes, key)
		if r.URL.Query().Get("children") == "true" {
			for k := range f.nodes {
				if strings.HasPrefix(k, key+"/") {
					delete(f.nodes, k)
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "documents/d1/meta", MetaKey("d1"))
	assert.Equal(t, "documents/d1/chunks/c1", ChunkKey("d1", "c1"))
	assert.Equal(t, "documents/by_hash/abc/d1", HashKey("abc", "d1"))
}

func TestClient_PutGetNode(t *testing.T) {
	fs, c := newFakeStore(t)
	ctx := context.Background()

	err := c.PutNode(ctx, MetaKey("d1"), NodeRequest{Value: map[string]any{"file_name": "a.pdf"}})
	require.NoError(t, err)

	node, err := c.GetNode(ctx, MetaKey("d1"))
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "a.pdf", node.Value.(map[string]any)["file_name"])

	missing, err := c.GetNode(ctx, MetaKey("nope"))
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Equal(t, "Bearer secret", fs.auth[0])
}

func TestClient_PutNodeErrorStatus(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").PutNode(context.Background(), "k", NodeRequest{Value: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)
	assert.Equal(t, "k", se.Key)
	assert.Equal(t, int32(3), attempts.Load(), "server errors are retried twice")
}

func TestClient_BadRequestNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad key", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").ListChildren(context.Background(), "documents", 0)
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_FindDuplicate(t *testing.T) {
	_, c := newFakeStore(t)
	ctx := context.Background()

	id, err := c.FindDuplicate(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, c.PutNode(ctx, HashKey("abc", "doc-7"), NodeRequest{Value: map[string]any{}}))
	id, err = c.FindDuplicate(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "doc-7", id)
}

func TestClient_ListAndDeleteDocument(t *testing.T) {
	fs, c := newFakeStore(t)
	ctx := context.Background()

	require.NoError(t, c.PutNode(ctx, MetaKey("d1"), NodeRequest{Value: map[string]any{"content_hash": "h1"}}))
	require.NoError(t, c.PutNode(ctx, ChunkKey("d1", "c1"), NodeRequest{Value: "one"}))
	require.NoError(t, c.PutNode(ctx, ChunkKey("d1", "c2"), NodeRequest{Value: "two"}))
	require.NoError(t, c.PutNode(ctx, HashKey("h1", "d1"), NodeRequest{Value: map[string]any{}}))
	require.NoError(t, c.PutNode(ctx, MetaKey("d2"), NodeRequest{Value: map[string]any{}}))

	docs, err := c.ListDocuments(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	res, err := c.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChunksDeleted)
	assert.True(t, res.HashRemoved)

	fs.mu.Lock()
	_, metaLeft := fs.nodes[MetaKey("d1")]
	_, hashLeft := fs.nodes[HashKey("h1", "d1")]
	_, otherLeft := fs.nodes[MetaKey("d2")]
	fs.mu.Unlock()
	assert.False(t, metaLeft)
	assert.False(t, hashLeft)
	assert.True(t, otherLeft)

	_, err = c.DeleteDocument(ctx, "d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_PutLink(t *testing.T) {
	fs, c := newFakeStore(t)
	err := c.PutLink(context.Background(), LinkRequest{From: "a", To: "b", Weight: 1, Summary: "next"})
	require.NoError(t, err)
	require.Len(t, fs.links, 1)
	assert.Equal(t, "next", fs.links[0].Summary)
}
