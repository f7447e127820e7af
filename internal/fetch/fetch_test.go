package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.pdf"))
	assert.True(t, IsURL("http://localhost:8080/x"))
	assert.False(t, IsURL("/tmp/a.pdf"))
	assert.False(t, IsURL("file:///tmp/a.pdf"))
	assert.False(t, IsURL("https://"))
}

func TestDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/report.DOCX", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("docx-bytes"))
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!DOCTYPE html><html><head><title>t</title></head><body><p>hi</p></body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := New(Config{Timeout: 5 * time.Second}, nil)

	tests := []struct {
		path    string
		wantExt string
		body    string
	}{
		{"/docs/report.DOCX", ".docx", "docx-bytes"},
		{"/download", ".pdf", ""},
		{"/page", ".html", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, cleanup, err := d.Download(context.Background(), srv.URL+tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, filepath.Ext(p))
			if tt.body != "" {
				data, err := os.ReadFile(p)
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(data))
			}
			cleanup()
			_, err = os.Stat(p)
			assert.True(t, os.IsNotExist(err), "temp file not removed")
		})
	}
}

func TestDownload_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow.pdf":
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte("late"))
		case "/big.pdf":
			w.Write(make([]byte, 2048))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := New(Config{Timeout: 50 * time.Millisecond, MaxBytes: 1024}, nil)

	_, _, err := d.Download(context.Background(), srv.URL+"/slow.pdf")
	require.Error(t, err)
	assert.True(t, IsTemporary(err), "timeout should be temporary: %v", err)

	_, _, err = d.Download(context.Background(), srv.URL+"/missing.pdf")
	require.Error(t, err)
	assert.False(t, IsTemporary(err))
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, srv.URL+"/missing.pdf", fe.URL)

	d = New(Config{Timeout: 5 * time.Second, MaxBytes: 1024}, nil)
	_, _, err = d.Download(context.Background(), srv.URL+"/big.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	_, _, err = d.Download(context.Background(), "not a url")
	require.Error(t, err)
}

func TestDownload_TimeoutCoversRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
			w.Write([]byte("late"))
		}
	}))
	defer srv.Close()

	d := New(Config{Timeout: 300 * time.Millisecond, Retries: 3}, nil)

	start := time.Now()
	_, _, err := d.Download(context.Background(), srv.URL+"/slow.pdf")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsTemporary(err), "deadline should be temporary: %v", err)
	assert.Less(t, elapsed, time.Second, "retries ran past the download timeout")
	assert.LessOrEqual(t, hits.Load(), int32(2))
}
