package imagegrab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"folio/internal/config"
	"folio/internal/filter"
	"folio/internal/jobs"
	"folio/internal/logging"
)

const (
	defaultTimeout = 20 * time.Second
	scanMarker     = "scans"
	maxPageBytes   = 4 << 20
	cacheCapacity  = 256
)

// ErrLookup wraps transport failures and non-2xx responses from the search
// page.
var ErrLookup = errors.New("image lookup failed")

// Result is delivered to a Grab completion. URL is empty when the page held
// no scan image.
type Result struct {
	Query     string
	URL       string
	Err       error
	Cancelled bool
}

// Options configures a Grabber.
type Options struct {
	SearchURL string
	Timeout   time.Duration
	// CacheTTL keeps resolved URLs in memory; zero disables the cache.
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// Grabber looks up card images. At most one Grab runs at a time; concurrent
// Resolve calls for the same query share one request.
type Grabber struct {
	searchURL string
	client    *http.Client
	logger    *slog.Logger
	lookups   *jobs.Executor[string, string]
	inflight  singleflight.Group
	resolved  *ttlcache.Cache[string, string]

	mu     sync.Mutex
	shared map[string]*sharedLookup
}

// sharedLookup is the request context shared by every Resolve waiting on one
// query. It is cancelled once the last waiter leaves.
type sharedLookup struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// New returns a grabber for opts.
func New(opts Options) *Grabber {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	g := &Grabber{
		searchURL: strings.TrimSpace(opts.SearchURL),
		client:    &http.Client{Timeout: timeout},
		logger:    logging.NewComponentLogger(opts.Logger, "imagegrab"),
		shared:    map[string]*sharedLookup{},
	}
	if opts.CacheTTL > 0 {
		g.resolved = ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](opts.CacheTTL),
			ttlcache.WithCapacity[string, string](cacheCapacity),
			ttlcache.WithDisableTouchOnHit[string, string](),
		)
	}
	g.lookups = jobs.New("image-lookup", g.Resolve, opts.Logger)
	return g
}

// NewFromConfig builds a grabber from the [images] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Grabber {
	return New(Options{
		SearchURL: cfg.Images.SearchURL,
		Timeout:   cfg.ImageTimeout(),
		CacheTTL:  cfg.ImageCacheTTL(),
		Logger:    logger,
	})
}

// Grab renders f as a search query and resolves it in the background.
// It returns false, without calling onComplete, when a lookup is already in
// flight.
func (g *Grabber) Grab(ctx context.Context, f *filter.Filter, onComplete func(Result)) bool {
	query := f.BuildExternalQuery()
	return g.lookups.Submit(ctx, query, func(out jobs.Outcome[string]) {
		if onComplete == nil {
			return
		}
		onComplete(Result{
			Query:     query,
			URL:       out.Value,
			Err:       out.Err,
			Cancelled: out.Cancelled,
		})
	})
}

// Resolve fetches the search page for query and returns the first scan image
// URL on it, resolved against the page URL. It returns "" when none is found.
// Successful lookups are remembered for the configured TTL. Callers asking
// for the same query at once share one request; cancelling ctx abandons only
// this caller's wait.
func (g *Grabber) Resolve(ctx context.Context, query string) (string, error) {
	if g.resolved != nil {
		if item := g.resolved.Get(query); item != nil {
			g.logger.DebugContext(ctx, "image lookup served from memory", logging.String("query", query))
			return item.Value(), nil
		}
	}

	lookup := g.join(ctx, query)
	defer g.leave(query, lookup)

	ch := g.inflight.DoChan(query, func() (any, error) {
		src, err := g.fetch(lookup.ctx, query)
		if err == nil && g.resolved != nil {
			g.resolved.Set(query, src, ttlcache.DefaultTTL)
		}
		return src, err
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *Grabber) join(ctx context.Context, query string) *sharedLookup {
	g.mu.Lock()
	defer g.mu.Unlock()
	lookup, ok := g.shared[query]
	if !ok {
		lookupCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		lookup = &sharedLookup{ctx: lookupCtx, cancel: cancel}
		g.shared[query] = lookup
	}
	lookup.waiters++
	return lookup
}

// leave drops a waiter. The last one out cancels the request and forgets
// the flight so a later caller starts a fresh one.
func (g *Grabber) leave(query string, lookup *sharedLookup) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lookup.waiters--
	if lookup.waiters > 0 {
		return
	}
	lookup.cancel()
	delete(g.shared, query)
	g.inflight.Forget(query)
}

func (g *Grabber) fetch(ctx context.Context, query string) (string, error) {
	pageURL, err := g.pageURL(query)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: build request: %w", ErrLookup, err)
	}
	req.Header.Set("User-Agent", "folio/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %w", ErrLookup, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: unexpected status %d", ErrLookup, resp.StatusCode)
	}

	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	src, err := FindScanImage(io.LimitReader(resp.Body, maxPageBytes), base)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: read page: %w", ErrLookup, err)
	}
	if src == "" {
		g.logger.InfoContext(ctx, "no scan image found", logging.String("query", query))
	} else {
		g.logger.DebugContext(ctx, "scan image resolved", logging.String("query", query), logging.String("url", src))
	}
	return src, nil
}

// pageURL places query in the q parameter. The search grammar uses '+' as
// its term separator, so it is kept literal rather than escaped.
func (g *Grabber) pageURL(query string) (*url.URL, error) {
	u, err := url.Parse(g.searchURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse search url: %w", ErrLookup, err)
	}
	q := "q=" + strings.ReplaceAll(url.QueryEscape(query), "%2B", "+")
	if u.RawQuery != "" {
		q = u.RawQuery + "&" + q
	}
	u.RawQuery = q
	return u, nil
}

// Busy reports whether a lookup is in flight.
func (g *Grabber) Busy() bool { return g.lookups.Busy() }

// Cancel stops an in-flight lookup.
func (g *Grabber) Cancel() { g.lookups.Cancel() }

// Wait blocks until an in-flight lookup and its completion have returned.
func (g *Grabber) Wait() { g.lookups.Wait() }

// FindScanImage returns the src of the first <img> whose src contains
// "scans", resolved against base. It returns "" when there is none.
func FindScanImage(r io.Reader, base *url.URL) (string, error) {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			return "", nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" && strings.Contains(string(val), scanMarker) {
					return resolve(base, string(val)), nil
				}
				if !more {
					break
				}
			}
		}
	}
}

func resolve(base *url.URL, src string) string {
	src = strings.TrimSpace(src)
	ref, err := url.Parse(src)
	if err != nil || base == nil {
		return src
	}
	return base.ResolveReference(ref).String()
}
