package rulings

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultFetchTimeout = 2 * time.Minute

// Fetcher opens the corpus stream. Callers close the returned reader.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// HTTPFetcher downloads the corpus with a GET request.
type HTTPFetcher struct {
	url       string
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher returns a fetcher for url with the given overall timeout.
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{
		url:       strings.TrimSpace(url),
		client:    &http.Client{Timeout: timeout},
		userAgent: "folio/1.0",
	}
}

// URL returns the corpus location.
func (f *HTTPFetcher) URL() string { return f.url }

// Fetch issues the request. Non-2xx responses are errors. Reads from the
// returned body fail as soon as ctx is cancelled.
func (f *HTTPFetcher) Fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrCorpusFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorpusFetch, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d from %s", ErrCorpusFetch, resp.StatusCode, f.url)
	}
	return &ctxReadCloser{ctx: ctx, rc: resp.Body}, nil
}

// ctxReadCloser checks for cancellation before every read.
type ctxReadCloser struct {
	ctx context.Context
	rc  io.ReadCloser
}

func (r *ctxReadCloser) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.rc.Read(p)
}

func (r *ctxReadCloser) Close() error {
	return r.rc.Close()
}
