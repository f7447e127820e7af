package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docparse/internal/chunker"
	"github.com/dgallion1/docparse/internal/document"
	"github.com/dgallion1/docparse/internal/engine"
	"github.com/dgallion1/docparse/internal/fetch"
	"github.com/dgallion1/docparse/internal/pipeline"
	"github.com/dgallion1/docparse/internal/selector"
)

// input is a document submitted either as an upload or as a URL.
type input struct {
	filename string
	data     []byte
	url      string
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"engines": s.parser.Registry().List()})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	doc, err := s.parseInput(r.Context(), in, s.parseOptions(r))
	if err != nil {
		s.writeParseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readInput(w, r)
	if !ok {
		return
	}
	doc, err := s.parseInput(r.Context(), in, s.parseOptions(r))
	if err != nil {
		s.writeParseError(w, err)
		return
	}
	chunks := chunker.ChunkDocument(doc, s.chunkConfig(r))

	w.Header().Set("Content-Type", "application/json")
	if err := chunker.WriteExport(w, chunker.BuildExport(doc, chunks, time.Now())); err != nil {
		s.log.Error("write export", "error", err)
	}
}

// parseInput runs the parser on an upload (via a temp file that keeps the
// upload's name) or on a URL.
func (s *Server) parseInput(ctx context.Context, in input, opts pipeline.Options) (*document.Document, error) {
	if in.url != "" {
		return s.parser.Parse(ctx, in.url, opts)
	}
	dir, err := os.MkdirTemp("", "docparse-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, in.filename)
	if err := os.WriteFile(path, in.data, 0o600); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	return s.parser.Parse(ctx, path, opts)
}

// readInput reads the "file" upload or the "url" field. It writes the error
// response itself and reports whether the caller should continue.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (input, bool) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := parseForm(r); err != nil {
		jsonError(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return input{}, false
	}

	if u := strings.TrimSpace(r.FormValue("url")); u != "" {
		if !fetch.IsURL(u) {
			jsonError(w, "url must be an absolute http(s) URL", http.StatusBadRequest)
			return input{}, false
		}
		return input{url: u}, true
	}

	if r.MultipartForm == nil {
		jsonError(w, "file or url is required", http.StatusBadRequest)
		return input{}, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file or url is required: "+err.Error(), http.StatusBadRequest)
		return input{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return input{}, false
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return input{}, false
	}

	filename := sanitizeFilename(header.Filename)
	if document.TypeForExtension(filepath.Ext(filename)) == document.TypeUnknown {
		// Extension-less or mislabelled uploads get a sniffed extension.
		ext := document.SniffBytes(data)
		if ext == "" {
			jsonError(w, fmt.Sprintf("unsupported file type %q (supported: %s)",
				filepath.Ext(filename), strings.Join(document.SupportedExtensions(), " ")), http.StatusUnsupportedMediaType)
			return input{}, false
		}
		filename = strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
	}
	return input{filename: filename, data: data}, true
}

// parseForm accepts both multipart and urlencoded bodies.
func parseForm(r *http.Request) error {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		return r.ParseMultipartForm(32 << 20)
	}
	return r.ParseForm()
}

func (s *Server) parseOptions(r *http.Request) pipeline.Options {
	opts := s.parser.Defaults()
	if v := r.FormValue("tool"); v != "" {
		opts.Tool = v
	}
	opts.DetectScanned = formBool(r, "detect_scanned", opts.DetectScanned)
	opts.ExtractImages = formBool(r, "extract_images", opts.ExtractImages)
	if v := r.FormValue("ocr_language"); v != "" {
		opts.OCRLanguage = v
	}
	return opts
}

func (s *Server) chunkConfig(r *http.Request) chunker.Config {
	cfg := chunker.Config{MaxChars: s.cfg.ChunkSize, Overlap: s.cfg.ChunkOverlap}
	if v := r.FormValue("max_chars"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxChars = n
		}
	}
	if v := r.FormValue("overlap"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Overlap = n
		}
	}
	return cfg
}

func formBool(r *http.Request, key string, fallback bool) bool {
	if v := r.FormValue(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// statusFor maps parse errors to HTTP status codes.
func statusFor(err error) int {
	var fe *fetch.Error
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, selector.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, engine.ErrUnknownTool):
		return http.StatusBadRequest
	case engine.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case engine.IsFailure(err):
		return http.StatusUnprocessableEntity
	case errors.As(err, &fe):
		if fe.Temporary {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeParseError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("parse request failed", "status", code, "error", err)
	}
	jsonError(w, err.Error(), code)
}
