package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finsync/internal/domain/offline"

	"github.com/rs/zerolog"
)

// NotifyChannel is the LISTEN/NOTIFY channel every cache write is announced on
const NotifyChannel = "finsync_cache"

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key  TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertEntry = `
WITH upserted AS (
	INSERT INTO cache_entries (cache_key, value, version, updated_at)
	VALUES ($1, $2, 1, NOW())
	ON CONFLICT (cache_key) DO UPDATE
	SET value = EXCLUDED.value,
	    version = cache_entries.version + 1,
	    updated_at = NOW()
	RETURNING cache_key, version, updated_at
)
SELECT cache_key, version, updated_at,
       pg_notify($3, json_build_object('cache_key', cache_key, 'version', version)::text)
FROM upserted`

// CacheStore keeps cache entries in a shared Postgres table so several
// processes on one host can serve the same cache
type CacheStore struct {
	db     *DB
	logger zerolog.Logger
}

// Ensure CacheStore implements offline.Store
var _ offline.Store = (*CacheStore)(nil)

func NewCacheStore(db *DB, logger zerolog.Logger) *CacheStore {
	return &CacheStore{
		db:     db,
		logger: logger.With().Str("component", "postgres_cache").Logger(),
	}
}

// Migrate creates the cache table if it does not exist
func (s *CacheStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate cache table: %w", err)
	}
	return nil
}

func (s *CacheStore) Get(ctx context.Context, key string) (*offline.Entry, error) {
	if key == "" {
		return nil, offline.ErrEmptyKey
	}

	entry := &offline.Entry{}
	err := s.db.QueryRowContext(ctx,
		`SELECT cache_key, value, version, updated_at FROM cache_entries WHERE cache_key = $1`, key,
	).Scan(&entry.Key, &entry.Value, &entry.Version, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, offline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return entry, nil
}

// Put upserts the whole value in one statement and notifies listeners on
// NotifyChannel. Concurrent writers serialize on the row lock.
func (s *CacheStore) Put(ctx context.Context, key string, value []byte) (*offline.Entry, error) {
	if key == "" {
		return nil, offline.ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}

	entry := &offline.Entry{Value: value}
	var notified sql.NullString
	err := s.db.QueryRowContext(ctx, upsertEntry, key, value, NotifyChannel).
		Scan(&entry.Key, &entry.Version, &entry.UpdatedAt, &notified)
	if err != nil {
		return nil, fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}

	s.logger.Debug().Str("cache_key", key).Int64("version", entry.Version).Int("bytes", len(value)).Msg("Cache entry written")
	return entry, nil
}

func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

func (s *CacheStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cache_key FROM cache_entries ORDER BY cache_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
