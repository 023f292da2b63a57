package rulings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"folio/internal/card"
	"folio/internal/config"
	"folio/internal/filter"
	"folio/internal/jobs"
	"folio/internal/logging"
	"folio/internal/oracle"
)

const defaultRefreshInterval = 30 * 24 * time.Hour

// Options configures a Cache. Fetcher and Store are required.
type Options struct {
	SourceURL       string
	RefreshInterval time.Duration
	Fetcher         Fetcher
	Store           Store
	Logger          *slog.Logger
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// QueryResult is delivered to a Query completion.
type QueryResult struct {
	Records []card.Ruling
	// Err is set when a refresh was needed and failed. Records then holds
	// matches from the records held before the refresh.
	Err       error
	Cancelled bool
	// Refreshed reports that the query waited on a load or refresh.
	Refreshed bool
}

// Status summarises the in-memory cache.
type Status struct {
	Records    int
	Loaded     bool
	Expired    bool
	ExpiresAt  time.Time
	SourceURL  string
	StoreKind  string
	StorePath  string
	Refreshing bool
}

// Cache holds the rulings corpus in memory, backed by a Store and refreshed
// from a Fetcher when it expires. At most one refresh runs at a time.
type Cache struct {
	sourceURL string
	interval  time.Duration
	fetcher   Fetcher
	store     Store
	logger    *slog.Logger
	base      *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	records   []card.Ruling
	expiresAt time.Time
	loaded    bool

	// refreshMu serialises LoadOrRefresh against itself.
	refreshMu sync.Mutex
	refresher *jobs.Executor[bool, Snapshot]
}

// New builds a cache from opts. No I/O happens until the first query or
// refresh.
func New(opts Options) (*Cache, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("rulings cache requires a fetcher")
	}
	if opts.Store == nil {
		return nil, errors.New("rulings cache requires a store")
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := logging.NewComponentLogger(opts.Logger, "rulings")

	c := &Cache{
		sourceURL: opts.SourceURL,
		interval:  opts.RefreshInterval,
		fetcher:   opts.Fetcher,
		store:     opts.Store,
		logger:    logger,
		base:      opts.Logger,
		now:       opts.Now,
	}
	c.expiresAt = c.now()
	c.refresher = jobs.New("rulings-refresh", c.runRefresh, opts.Logger)
	return c, nil
}

// NewFromConfig wires the HTTP fetcher and the configured store.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Cache, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	store, err := OpenStore(cfg.Rulings.Store, cfg.Rulings.CacheFile)
	if err != nil {
		return nil, err
	}
	cache, err := New(Options{
		SourceURL:       cfg.Rulings.SourceURL,
		RefreshInterval: cfg.RefreshInterval(),
		Fetcher:         NewHTTPFetcher(cfg.Rulings.SourceURL, cfg.FetchTimeout()),
		Store:           store,
		Logger:          logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return cache, nil
}

// Query filters the records. A warm cache answers synchronously and
// onComplete runs before Query returns. A cold or expired cache hands the
// work to the background refresher and onComplete runs on its goroutine.
// Query returns false, without calling onComplete, when a refresh is already
// in flight.
func (c *Cache) Query(ctx context.Context, f *filter.Filter, onComplete func(QueryResult)) bool {
	if c.warm() {
		snap := c.Snapshot()
		if onComplete != nil {
			onComplete(QueryResult{Records: f.Apply(snap.Records)})
		}
		return true
	}

	accepted := c.refresher.Submit(ctx, false, func(out jobs.Outcome[Snapshot]) {
		if onComplete == nil {
			return
		}
		snap := out.Value
		if out.Cancelled || out.Err != nil {
			snap = c.Snapshot()
		}
		onComplete(QueryResult{
			Records:   f.Apply(snap.Records),
			Err:       out.Err,
			Cancelled: out.Cancelled,
			Refreshed: true,
		})
	})
	if !accepted {
		c.logger.Debug("query dropped; refresh in progress")
	}
	return accepted
}

// ForceRefresh refetches the corpus in the background regardless of expiry.
// It returns false when a refresh is already in flight.
func (c *Cache) ForceRefresh(ctx context.Context, onComplete func(error)) bool {
	return c.refresher.Submit(ctx, true, func(out jobs.Outcome[Snapshot]) {
		if onComplete != nil {
			onComplete(out.Err)
		}
	})
}

func (c *Cache) runRefresh(ctx context.Context, force bool) (Snapshot, error) {
	err := c.LoadOrRefresh(ctx, force)
	return c.Snapshot(), err
}

// LoadOrRefresh brings the in-memory records up to date synchronously. When
// force is false and the store holds an unexpired snapshot it is loaded
// without touching the network. Otherwise the corpus is fetched, parsed,
// swapped in and persisted.
func (c *Cache) LoadOrRefresh(ctx context.Context, force bool) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if !force {
		loaded, err := c.loadStored(ctx)
		if err != nil {
			return err
		}
		if loaded {
			return nil
		}
	}
	return c.refresh(ctx)
}

// loadStored swaps in the persisted snapshot when it has not expired.
func (c *Cache) loadStored(ctx context.Context) (bool, error) {
	snap, err := c.store.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoCache):
		c.logger.DebugContext(ctx, "no persisted rulings; fetching", logging.String("path", c.store.Path()))
		return false, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		logging.WarnWithContext(c.logger, "persisted rulings unreadable; fetching", "cache_read_failed",
			logging.String("path", c.store.Path()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "corpus will be downloaded again"),
		)
		return false, nil
	}

	if !c.now().Before(snap.ExpiresAt) {
		c.logger.InfoContext(ctx, "persisted rulings expired",
			logging.Time("expires_at", snap.ExpiresAt),
			logging.Int("records", len(snap.Records)),
		)
		return false, nil
	}

	c.swap(snap.Records, snap.ExpiresAt)
	c.logger.InfoContext(ctx, "rulings loaded from cache",
		logging.Int("records", len(snap.Records)),
		logging.Time("expires_at", snap.ExpiresAt),
		logging.String("store", c.store.Kind()),
	)
	return true, nil
}

func (c *Cache) refresh(ctx context.Context) error {
	started := c.now()
	c.logger.InfoContext(ctx, "fetching rulings corpus", logging.String("source_url", c.sourceURL))

	body, err := c.fetcher.Fetch(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, ErrCorpusFetch) {
			err = fmt.Errorf("%w: %w", ErrCorpusFetch, err)
		}
		return err
	}
	parser := oracle.NewParser(c.base)
	records, err := parser.Parse(body)
	_ = body.Close()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorpusFetch, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: corpus contained no records", ErrCorpusFetch)
	}

	expiresAt := c.now().Add(c.interval)
	c.swap(records, expiresAt)

	stats := parser.Stats()
	c.logger.InfoContext(ctx, "rulings corpus refreshed",
		logging.Int("records", len(records)),
		logging.Int("skipped_blocks", stats.SkippedBlocks),
		logging.Int("cost_misses", stats.CostMisses),
		logging.Duration("elapsed", c.now().Sub(started)),
		logging.Time("expires_at", expiresAt),
	)

	snap := Snapshot{
		Records:   records,
		ExpiresAt: expiresAt,
		SourceURL: c.sourceURL,
		SavedAt:   c.now(),
	}
	if err := c.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		logging.WarnWithContext(c.logger, "persist rulings failed", "cache_write_failed",
			logging.String("path", c.store.Path()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "records stay in memory; the next run fetches again"),
		)
		if !errors.Is(err, ErrCacheIO) {
			err = fmt.Errorf("%w: %w", ErrCacheIO, err)
		}
		return err
	}
	return nil
}

func (c *Cache) swap(records []card.Ruling, expiresAt time.Time) {
	c.mu.Lock()
	c.records = records
	c.expiresAt = expiresAt
	c.loaded = true
	c.mu.Unlock()
}

func (c *Cache) warm() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded && c.now().Before(c.expiresAt)
}

// Snapshot returns the current records and expiry. The slice is shared and
// must not be modified; a later refresh replaces it rather than mutating it.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Records:   c.records,
		ExpiresAt: c.expiresAt,
		SourceURL: c.sourceURL,
	}
}

// Stored returns what the store currently holds without touching memory.
func (c *Cache) Stored(ctx context.Context) (Snapshot, error) {
	return c.store.Load(ctx)
}

// Status reports the in-memory state.
func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Records:    len(c.records),
		Loaded:     c.loaded,
		Expired:    !c.now().Before(c.expiresAt),
		ExpiresAt:  c.expiresAt,
		SourceURL:  c.sourceURL,
		StoreKind:  c.store.Kind(),
		StorePath:  c.store.Path(),
		Refreshing: c.refresher.Busy(),
	}
}

// Clear drops the persisted snapshot and empties memory. The next query
// fetches again.
func (c *Cache) Clear(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.records = nil
	c.expiresAt = c.now()
	c.loaded = false
	c.mu.Unlock()
	return nil
}

// Cancel asks an in-flight refresh to stop. A cancelled refresh leaves the
// records untouched.
func (c *Cache) Cancel() {
	c.refresher.Cancel()
}

// Wait blocks until an in-flight refresh and its completion have returned.
func (c *Cache) Wait() {
	c.refresher.Wait()
}

// StorePath returns the location of the backing store.
func (c *Cache) StorePath() string { return c.store.Path() }

// StoreKind returns the backing store kind.
func (c *Cache) StoreKind() string { return c.store.Kind() }

// Close cancels any refresh, waits for it, and closes the store.
func (c *Cache) Close() error {
	c.Cancel()
	c.Wait()
	return c.store.Close()
}
