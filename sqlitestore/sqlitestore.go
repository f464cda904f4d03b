// Package sqlitestore provides a keyed-upsert backend over a SQLite
// database. Every entry is one row in a kv table keyed by the entry's
// canonical string key, so concurrent saves and deletes to different keys
// are independent rows; racing writes to the same key resolve last-writer-
// wins, matching the in-memory map's own semantics.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver" // SQLite driver (pure Go)
	_ "github.com/ncruces/go-sqlite3/embed"  // Embed SQLite WASM binary
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/persistmap"
)

var nopLogger = zap.NewNop()

// Store is a SQLite-backed keyed store bound to one database file.
type Store[K comparable, V any] struct {
	db     *sql.DB
	path   string
	codec  persistmap.Codec[K, V]
	logger *zap.Logger
}

// Option configures a Store during New.
type Option[K comparable, V any] func(*Store[K, V])

// WithLogger sets the logger for connection lifecycle messages. A nil
// logger disables logging.
func WithLogger[K comparable, V any](logger *zap.Logger) Option[K, V] {
	return func(s *Store[K, V]) { s.logger = logger }
}

// New opens (creating if needed) the database at path and ensures the kv
// schema exists. The parent directory is created when absent.
func New[K comparable, V any](ctx context.Context, path string, codec persistmap.Codec[K, V], opts ...Option[K, V]) (*Store[K, V], error) {
	if path == "" {
		return nil, errors.New("sqlitestore: empty path")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}

	// SQLite is single-writer; keep one connection and never expire it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: connect: %w", err)
	}

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)",
		"CREATE INDEX IF NOT EXISTS kv_key_idx ON kv (key)",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: init schema: %w", err)
		}
	}

	s := &Store[K, V]{db: db, path: path, codec: codec, logger: nopLogger}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = nopLogger
	}

	s.logger.Info("database ready", zap.String("path", path))
	return s, nil
}

// LoadAll scans the whole kv table.
func (s *Store[K, V]) LoadAll(ctx context.Context) (map[K]V, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM kv")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}
	defer rows.Close()

	all := make(map[K]V)
	for rows.Next() {
		var ks, vs string
		if err := rows.Scan(&ks, &vs); err != nil {
			return nil, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
		}

		key, err := s.codec.DecodeKey(ks)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", persistmap.ErrBadRecord, ks, err)
		}
		value, err := s.codec.DecodeValue([]byte(vs))
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", persistmap.ErrBadRecord, ks, err)
		}
		all[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}

	return all, nil
}

// Save upserts one row keyed by the entry's string key.
func (s *Store[K, V]) Save(ctx context.Context, key K, value V) error {
	ks, vs, err := s.encode(key, value)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", ks, vs); err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}
	return nil
}

// Delete removes one row. Deleting an absent key matches zero rows and
// succeeds.
func (s *Store[K, V]) Delete(ctx context.Context, key K) error {
	ks, err := s.codec.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", ks); err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
	}
	return nil
}

// Flush raises the durability mode so pending pages reach stable storage.
func (s *Store[K, V]) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous = FULL"); err != nil {
		return fmt.Errorf("sqlitestore: flush: %w", err)
	}
	return nil
}

// ContainsKey answers the existence check natively with a point query.
func (s *Store[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	ks, err := s.codec.EncodeKey(key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", persistmap.ErrBadRecord, err)
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM kv WHERE key = ?)", ks).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}
	return exists == 1, nil
}

// Len answers the entry count natively.
func (s *Store[K, V]) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}
	return n, nil
}

// Path returns the database file location.
func (s *Store[K, V]) Path() string {
	return s.path
}

// Close releases the database handle. The owning caller decides when; the
// map never closes its backend.
func (s *Store[K, V]) Close() error {
	return s.db.Close()
}

func (s *Store[K, V]) encode(key K, value V) (string, string, error) {
	ks, err := s.codec.EncodeKey(key)
	if err != nil {
		return "", "", err
	}
	vs, err := s.codec.EncodeValue(value)
	if err != nil {
		return "", "", err
	}
	return ks, string(vs), nil
}
