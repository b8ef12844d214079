package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements Provider on top of a local SQLite database so
// cached entries survive process restarts. Opening the same file twice yields
// the same logical state (idempotent reload).
type SQLiteProvider struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);`

// NewSQLiteProvider opens (or creates) the cache database at path.
func NewSQLiteProvider(path string) (*SQLiteProvider, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// modernc sqlite serialises writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &SQLiteProvider{db: db}, nil
}

// Get returns the value for key or ErrCacheMiss when absent or expired.
func (p *SQLiteProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt int64
	)
	err := p.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if expiresAt > 0 && time.Now().UnixMilli() > expiresAt {
		_, _ = p.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
		return nil, ErrCacheMiss
	}
	return value, nil
}

// Set stores value under key with the provided TTL (zero means no expiry).
func (p *SQLiteProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiryMillis(ttl),
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// SetNX stores the value only when the key is absent or expired.
func (p *SQLiteProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, err := p.Get(ctx, key); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return false, err
	}
	if err := p.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

// Del removes a key.
func (p *SQLiteProvider) Del(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// Sweep removes all expired entries. Callers may run it periodically; Get
// already expires lazily so sweeping is purely a space optimisation.
func (p *SQLiteProvider) Sweep(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at < ?",
		time.Now().UnixMilli(),
	)
	return err
}

// Close closes the underlying database.
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

func expiryMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixMilli()
}
