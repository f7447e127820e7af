// Package fetch downloads remote documents to temporary files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/dgallion1/docparse/internal/document"
)

// Error is a failed download. Temporary errors (timeouts) may succeed when
// retried.
type Error struct {
	URL       string
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	kind := "download failed"
	if e.Temporary {
		kind = "download timed out"
	}
	return fmt.Sprintf("%s: %s: %v", kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTemporary reports whether err is a download error worth retrying.
func IsTemporary(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Temporary
}

// Config controls downloads.
type Config struct {
	Timeout  time.Duration
	Retries  int
	MaxBytes int64
}

// Downloader fetches URLs into temporary files.
type Downloader struct {
	client   *retryablehttp.Client
	timeout  time.Duration
	maxBytes int64
	log      *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := retryablehttp.NewClient()
	client.RetryMax = max(cfg.Retries, 0)
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = log
	return &Downloader{client: client, timeout: cfg.Timeout, maxBytes: cfg.MaxBytes, log: log}
}

// IsURL reports whether s is an http(s) URL.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Download saves rawURL to a temporary file. The configured timeout bounds
// the whole download, retries and body included. The caller must call
// cleanup once done with the file.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, func(), error) {
	u, err := url.Parse(rawURL)
	if err != nil || !IsURL(rawURL) {
		return "", nil, &Error{URL: rawURL, Err: fmt.Errorf("invalid url")}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	timedOut := func(err error) bool {
		return isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, &Error{URL: rawURL, Err: err}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", nil, &Error{URL: rawURL, Temporary: timedOut(err), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, &Error{URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}

	tmp, err := os.CreateTemp("", "docparse-*"+suffixFor(u))
	if err != nil {
		return "", nil, &Error{URL: rawURL, Err: err}
	}
	cleanup := func() { os.Remove(tmp.Name()) }

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, &Error{URL: rawURL, Temporary: timedOut(err), Err: err}
	}
	if d.maxBytes > 0 && n > d.maxBytes {
		cleanup()
		return "", nil, &Error{URL: rawURL, Err: fmt.Errorf("file exceeds %d bytes", d.maxBytes)}
	}

	// Extension-less URLs get a sniffed extension so type detection works.
	if path.Ext(u.Path) == "" {
		if ext := document.SniffExtension(tmp.Name()); ext != "" && ext != ".pdf" {
			renamed := strings.TrimSuffix(tmp.Name(), ".pdf") + ext
			if err := os.Rename(tmp.Name(), renamed); err == nil {
				cleanup = func() { os.Remove(renamed) }
				d.log.Debug("download", "url", rawURL, "path", renamed, "bytes", n)
				return renamed, cleanup, nil
			}
		}
	}
	d.log.Debug("download", "url", rawURL, "path", tmp.Name(), "bytes", n)
	return tmp.Name(), cleanup, nil
}

// suffixFor keeps the URL's extension, defaulting to .pdf.
func suffixFor(u *url.URL) string {
	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 10 {
		return ext
	}
	return ".pdf"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
