// Package fetcher downloads registry artifacts over HTTP(S) and FTP and parses
// them as CSV, XLSX, XML and JSON.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadIfChanged fetches the URL only if its ETag differs from etag.
	// When unchanged, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (body io.ReadCloser, newETag string, changed bool, err error)
}

// StatusError reports a non-200 response that was not retried away.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.Code, redactURL(e.URL))
}

// redactURL strips query strings so API keys never reach logs or errors.
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i] + "?..."
	}
	return raw
}

// Router sends ftp:// URLs to the FTP fetcher and everything else to HTTP.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

var _ Fetcher = (*Router)(nil)

func (r *Router) pick(url string) Fetcher {
	if strings.HasPrefix(strings.ToLower(url), "ftp://") && r.FTP != nil {
		return r.FTP
	}
	return r.HTTP
}

// Download implements Fetcher.
func (r *Router) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	return r.pick(url).Download(ctx, url)
}

// DownloadToFile implements Fetcher.
func (r *Router) DownloadToFile(ctx context.Context, url string, path string) (int64, error) {
	return r.pick(url).DownloadToFile(ctx, url, path)
}

// DownloadIfChanged implements Fetcher.
func (r *Router) DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error) {
	return r.pick(url).DownloadIfChanged(ctx, url, etag)
}

func isOK(code int) bool { return code == http.StatusOK }
