// Package store persists view counts and rendered diagrams in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements pageview.Store and diagram.BlobStore.
type SQLiteStore struct {
	db    *sql.DB
	mu    sync.RWMutex
	codec Codec
	now   func() time.Time
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway database.
func Open(path string, codec Codec) (*SQLiteStore, error) {
	if codec == "" {
		codec = CodecZstd
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, codec: codec, now: time.Now}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pageviews (
		key TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS pageview_dedup (
		key TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dedup_expires ON pageview_dedup(expires_at);
	CREATE TABLE IF NOT EXISTS diagram_cache (
		key TEXT PRIMARY KEY,
		codec TEXT NOT NULL,
		size INTEGER NOT NULL,
		markup BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO pageviews (key, count) VALUES (?, 1)
		 ON CONFLICT(key) DO UPDATE SET count = count + 1
		 RETURNING count`, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return n, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT count FROM pageviews WHERE key = ?", key).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return n, nil
}

func (s *SQLiteStore) MGet(ctx context.Context, keys []string) ([]int64, error) {
	out := make([]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := "SELECT key, count FROM pageviews WHERE key IN (?" + strings.Repeat(",?", len(keys)-1) + ")"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pageviews: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, len(keys))
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("scan pageview: %w", err)
		}
		counts[k] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	for i, k := range keys {
		out[i] = counts[k]
	}
	return out, nil
}

func (s *SQLiteStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pageview_dedup (key, expires_at) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET expires_at = excluded.expires_at
		 WHERE pageview_dedup.expires_at <= ?`,
		key, now.Add(ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", key, err)
	}
	return n > 0, nil
}

// PurgeExpired deletes expired dedup entries and returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM pageview_dedup WHERE expires_at <= ?", s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge dedup: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) GetDiagram(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var codec string
	var size int64
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT codec, size, markup FROM diagram_cache WHERE key = ?", key).Scan(&codec, &size, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get diagram %s: %w", key, err)
	}
	out, err := decompress(Codec(codec), blob, size)
	if err != nil {
		return "", false, fmt.Errorf("decode diagram %s: %w", key, err)
	}
	return string(out), true, nil
}

func (s *SQLiteStore) PutDiagram(ctx context.Context, key, markup string) error {
	blob, err := compress(s.codec, []byte(markup))
	if err != nil {
		return fmt.Errorf("encode diagram %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO diagram_cache (key, codec, size, markup, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET codec = excluded.codec, size = excluded.size,
		 markup = excluded.markup, updated_at = excluded.updated_at`,
		key, string(s.codec), len(markup), blob, s.now().Unix())
	if err != nil {
		return fmt.Errorf("put diagram %s: %w", key, err)
	}
	return nil
}

// PurgeDiagrams deletes cached diagrams not written since cutoff.
func (s *SQLiteStore) PurgeDiagrams(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM diagram_cache WHERE updated_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge diagrams: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
