package rulings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"folio/internal/card"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Records: []card.Ruling{
			{
				Name:      "Shock",
				Cost:      card.MustParseCost("R"),
				Types:     card.Instant,
				RulesText: []string{"Deal 2 damage to any target."},
			},
			{
				Name:      "Ornithopter",
				Cost:      card.MustParseCost("0"),
				Types:     card.Artifact | card.Creature,
				RulesText: []string{},
			},
			{
				Name:      "Forest",
				Types:     card.Land,
				RulesText: []string{"Tap: Add G.", "(This is a basic land.)"},
			},
		},
		ExpiresAt: time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC),
		SavedAt:   time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC),
		SourceURL: "http://example.test/oracle.txt",
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	sqlite, err := OpenSQLiteStore(filepath.Join(dir, "rulings.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"json":   NewJSONStore(filepath.Join(dir, "rulings.json")),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleSnapshot()
			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got.Records, want.Records) {
				t.Fatalf("records = %+v\nwant %+v", got.Records, want.Records)
			}
			if !got.ExpiresAt.Equal(want.ExpiresAt) {
				t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, want.ExpiresAt)
			}
			if !got.SavedAt.Equal(want.SavedAt) {
				t.Fatalf("saved_at = %v, want %v", got.SavedAt, want.SavedAt)
			}
			if got.SourceURL != want.SourceURL {
				t.Fatalf("source_url = %q, want %q", got.SourceURL, want.SourceURL)
			}
		})
	}
}

func TestStoreSaveReplacesPreviousSnapshot(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, sampleSnapshot()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			next := sampleSnapshot()
			next.Records = next.Records[:1]
			if err := store.Save(ctx, next); err != nil {
				t.Fatalf("second Save: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got.Records) != 1 || got.Records[0].Name != "Shock" {
				t.Fatalf("records = %+v, want only Shock", got.Records)
			}
		})
	}
}

func TestStoreEmptyAndClearedReportNoCache(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Load(ctx); !errors.Is(err, ErrNoCache) {
				t.Fatalf("Load on empty store = %v, want ErrNoCache", err)
			}
			if err := store.Save(ctx, sampleSnapshot()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if _, err := store.Load(ctx); !errors.Is(err, ErrNoCache) {
				t.Fatalf("Load after Clear = %v, want ErrNoCache", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear twice: %v", err)
			}
		})
	}
}

func TestJSONStoreCorruptFileIsCacheIOError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewJSONStore(path).Load(context.Background())
	if !errors.Is(err, ErrCacheIO) {
		t.Fatalf("Load = %v, want ErrCacheIO", err)
	}
}

func TestOpenStoreSelectsKind(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind    string
		want    string
		wantErr bool
	}{
		{kind: "", want: "json"},
		{kind: "json", want: "json"},
		{kind: "sqlite", want: "sqlite"},
		{kind: "redis", wantErr: true},
	}
	for _, tt := range tests {
		store, err := OpenStore(tt.kind, filepath.Join(dir, "cache-"+tt.kind))
		if tt.wantErr {
			if err == nil {
				t.Fatalf("OpenStore(%q) expected error", tt.kind)
			}
			continue
		}
		if err != nil {
			t.Fatalf("OpenStore(%q): %v", tt.kind, err)
		}
		if store.Kind() != tt.want {
			t.Fatalf("OpenStore(%q).Kind() = %q, want %q", tt.kind, store.Kind(), tt.want)
		}
		_ = store.Close()
	}
}
