package rulings

import (
	"context"
	"fmt"
	"time"

	"folio/internal/card"
	"folio/internal/config"
)

// Snapshot is one generation of the cache.
type Snapshot struct {
	Records   []card.Ruling
	ExpiresAt time.Time
	SourceURL string
	SavedAt   time.Time
}

// Store persists snapshots.
type Store interface {
	// Load returns the persisted snapshot, or an error wrapping ErrNoCache
	// when nothing has been saved.
	Load(ctx context.Context) (Snapshot, error)
	// Save replaces the persisted snapshot.
	Save(ctx context.Context, snap Snapshot) error
	// Clear removes the persisted snapshot.
	Clear(ctx context.Context) error
	Path() string
	Kind() string
	Close() error
}

// OpenStore opens the store selected by kind at path.
func OpenStore(kind, path string) (Store, error) {
	switch kind {
	case config.StoreJSON, "":
		return NewJSONStore(path), nil
	case config.StoreSQLite:
		store, err := OpenSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported rulings store %q", kind)
	}
}
