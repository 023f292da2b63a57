package rulings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"folio/internal/card"
	"folio/internal/config"
	"folio/internal/fileutil"
)

const (
	jsonCacheVersion = 1
	lockRetryDelay   = 50 * time.Millisecond
)

type jsonCacheFile struct {
	Version   int           `json:"version"`
	SourceURL string        `json:"source_url"`
	ExpiresAt time.Time     `json:"expires_at"`
	SavedAt   time.Time     `json:"saved_at"`
	Records   []card.Ruling `json:"records"`
}

// JSONStore keeps the snapshot in a single JSON document. Writes hold an
// exclusive lock on a sibling .lock file and readers hold a shared one, so a
// save never replaces the file while it is being read.
type JSONStore struct {
	path     string
	lockPath string
}

// NewJSONStore returns a store backed by path. Nothing is touched on disk
// until the first Load or Save.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, lockPath: path + ".lock"}
}

func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Kind() string { return config.StoreJSON }

func (s *JSONStore) Load(ctx context.Context) (Snapshot, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, ErrNoCache
		}
		return Snapshot{}, fmt.Errorf("%w: stat cache file: %w", ErrCacheIO, err)
	}

	unlock, err := s.lock(ctx, false)
	if err != nil {
		return Snapshot{}, err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, ErrNoCache
		}
		return Snapshot{}, fmt.Errorf("%w: read cache file: %w", ErrCacheIO, err)
	}
	if len(data) == 0 {
		return Snapshot{}, ErrNoCache
	}

	var file jsonCacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Snapshot{}, fmt.Errorf("%w: parse cache file: %w", ErrCacheIO, err)
	}
	if file.Version != jsonCacheVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported cache version %d", ErrCacheIO, file.Version)
	}

	return Snapshot{
		Records:   file.Records,
		ExpiresAt: file.ExpiresAt,
		SourceURL: file.SourceURL,
		SavedAt:   file.SavedAt,
	}, nil
}

func (s *JSONStore) Save(ctx context.Context, snap Snapshot) error {
	file := jsonCacheFile{
		Version:   jsonCacheVersion,
		SourceURL: snap.SourceURL,
		ExpiresAt: snap.ExpiresAt.UTC(),
		SavedAt:   snap.SavedAt.UTC(),
		Records:   snap.Records,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal cache: %w", ErrCacheIO, err)
	}

	unlock, err := s.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheIO, err)
	}
	return nil
}

func (s *JSONStore) Clear(ctx context.Context) error {
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove cache file: %w", ErrCacheIO, err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }

func (s *JSONStore) lock(ctx context.Context, exclusive bool) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache directory: %w", ErrCacheIO, err)
	}
	fl := flock.New(s.lockPath)
	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock cache file: %w", ErrCacheIO, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: cache file %s is locked", ErrCacheIO, s.path)
	}
	return func() { _ = fl.Unlock() }, nil
}
