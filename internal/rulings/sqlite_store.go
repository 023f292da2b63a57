package rulings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"folio/internal/card"
	"folio/internal/config"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rulings (
	seq   INTEGER PRIMARY KEY,
	name  TEXT NOT NULL,
	cost  TEXT NOT NULL,
	types INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS rules_text (
	ruling_seq INTEGER NOT NULL REFERENCES rulings(seq) ON DELETE CASCADE,
	line_no    INTEGER NOT NULL,
	line       TEXT NOT NULL,
	PRIMARY KEY (ruling_seq, line_no)
);
CREATE INDEX IF NOT EXISTS idx_rulings_name ON rulings(name);
`

const (
	metaExpiresAt = "expires_at"
	metaSourceURL = "source_url"
	metaSavedAt   = "saved_at"
)

// SQLiteStore keeps the snapshot in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache directory: %w", ErrCacheIO, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %w", ErrCacheIO, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: apply pragma %q: %w", ErrCacheIO, pragma, execErr)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init schema: %w", ErrCacheIO, err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Kind() string { return config.StoreSQLite }

func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	meta, err := s.loadMeta(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	expiresRaw, ok := meta[metaExpiresAt]
	if !ok {
		return Snapshot{}, ErrNoCache
	}

	snap := Snapshot{SourceURL: meta[metaSourceURL]}
	if snap.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresRaw); err != nil {
		return Snapshot{}, fmt.Errorf("%w: parse expires_at: %w", ErrCacheIO, err)
	}
	if raw, ok := meta[metaSavedAt]; ok {
		if snap.SavedAt, err = time.Parse(time.RFC3339Nano, raw); err != nil {
			return Snapshot{}, fmt.Errorf("%w: parse saved_at: %w", ErrCacheIO, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, name, cost, types FROM rulings ORDER BY seq`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: query rulings: %w", ErrCacheIO, err)
	}
	index := make(map[int64]int)
	for rows.Next() {
		var (
			seq   int64
			name  string
			cost  string
			types int64
		)
		if err := rows.Scan(&seq, &name, &cost, &types); err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("%w: scan ruling: %w", ErrCacheIO, err)
		}
		parsed, err := card.ParseCost(cost)
		if err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("%w: ruling %q: %w", ErrCacheIO, name, err)
		}
		index[seq] = len(snap.Records)
		snap.Records = append(snap.Records, card.Ruling{
			Name:      name,
			Cost:      parsed,
			Types:     card.TypeSet(types),
			RulesText: []string{},
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Snapshot{}, fmt.Errorf("%w: iterate rulings: %w", ErrCacheIO, err)
	}
	rows.Close()

	lines, err := s.db.QueryContext(ctx, `SELECT ruling_seq, line FROM rules_text ORDER BY ruling_seq, line_no`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: query rules text: %w", ErrCacheIO, err)
	}
	defer lines.Close()
	for lines.Next() {
		var (
			seq  int64
			line string
		)
		if err := lines.Scan(&seq, &line); err != nil {
			return Snapshot{}, fmt.Errorf("%w: scan rules text: %w", ErrCacheIO, err)
		}
		i, ok := index[seq]
		if !ok {
			continue
		}
		snap.Records[i].RulesText = append(snap.Records[i].RulesText, line)
	}
	if err := lines.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: iterate rules text: %w", ErrCacheIO, err)
	}
	return snap, nil
}

func (s *SQLiteStore) loadMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM cache_meta`)
	if err != nil {
		return nil, fmt.Errorf("%w: query cache meta: %w", ErrCacheIO, err)
	}
	defer rows.Close()
	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("%w: scan cache meta: %w", ErrCacheIO, err)
		}
		meta[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate cache meta: %w", ErrCacheIO, err)
	}
	return meta, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	err := retryOnBusy(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			if err := clearTables(ctx, tx); err != nil {
				return err
			}
			meta := map[string]string{
				metaExpiresAt: snap.ExpiresAt.UTC().Format(time.RFC3339Nano),
				metaSourceURL: snap.SourceURL,
				metaSavedAt:   snap.SavedAt.UTC().Format(time.RFC3339Nano),
			}
			for key, value := range meta {
				if _, err := tx.ExecContext(ctx, `INSERT INTO cache_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
					return fmt.Errorf("insert meta %s: %w", key, err)
				}
			}

			insertRuling, err := tx.PrepareContext(ctx, `INSERT INTO rulings (seq, name, cost, types) VALUES (?, ?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("prepare rulings insert: %w", err)
			}
			defer insertRuling.Close()
			insertLine, err := tx.PrepareContext(ctx, `INSERT INTO rules_text (ruling_seq, line_no, line) VALUES (?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("prepare rules text insert: %w", err)
			}
			defer insertLine.Close()

			for seq, rec := range snap.Records {
				if _, err := insertRuling.ExecContext(ctx, seq, rec.Name, rec.Cost.Raw(), int64(rec.Types)); err != nil {
					return fmt.Errorf("insert ruling %q: %w", rec.Name, err)
				}
				for lineNo, line := range rec.RulesText {
					if _, err := insertLine.ExecContext(ctx, seq, lineNo, line); err != nil {
						return fmt.Errorf("insert rules text for %q: %w", rec.Name, err)
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%w: save snapshot: %w", ErrCacheIO, err)
	}
	// Fold the WAL back so the database file alone holds the snapshot.
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("%w: checkpoint: %w", ErrCacheIO, err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	err := retryOnBusy(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			return clearTables(ctx, tx)
		})
	})
	if err != nil {
		return fmt.Errorf("%w: clear: %w", ErrCacheIO, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{
		`DELETE FROM rules_text`,
		`DELETE FROM rulings`,
		`DELETE FROM cache_meta`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
