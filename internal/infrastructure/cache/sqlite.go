package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finsync/internal/domain/offline"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// cacheEntry is one row of the cache_entries table
type cacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:255"`
	Value     []byte    `gorm:"column:value;not null"`
	Version   int64     `gorm:"column:version;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (cacheEntry) TableName() string {
	return "cache_entries"
}

func (e *cacheEntry) toEntry() *offline.Entry {
	return &offline.Entry{Key: e.Key, Value: e.Value, Version: e.Version, UpdatedAt: e.UpdatedAt}
}

// OpenSQLite opens the on-device cache database with basic tuning
func OpenSQLite(path string, logMode bool) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	gormLogger := gormlogger.Default
	if !logMode {
		gormLogger = gormLogger.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY on concurrent Puts
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
	_, _ = sqlDB.Exec("PRAGMA synchronous = NORMAL;")
	_, _ = sqlDB.Exec("PRAGMA busy_timeout = 5000;")

	return db, nil
}

// SQLiteStore persists cache entries in SQLite through gorm
type SQLiteStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Ensure SQLiteStore implements offline.Store
var _ offline.Store = (*SQLiteStore)(nil)

// NewSQLiteStore migrates the cache table and returns the store
func NewSQLiteStore(db *gorm.DB, logger zerolog.Logger) (*SQLiteStore, error) {
	if err := db.AutoMigrate(&cacheEntry{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite_cache").Logger(),
	}, nil
}

// Get returns the entry under key
func (s *SQLiteStore) Get(ctx context.Context, key string) (*offline.Entry, error) {
	if key == "" {
		return nil, offline.ErrEmptyKey
	}

	var row cacheEntry
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, offline.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return row.toEntry(), nil
}

// Put replaces the value under key in a single transaction and bumps its version
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) (*offline.Entry, error) {
	if key == "" {
		return nil, offline.ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}

	var row cacheEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current cacheEntry
		version := int64(1)
		err := tx.Where("cache_key = ?", key).Take(&current).Error
		switch {
		case err == nil:
			version = current.Version + 1
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		row = cacheEntry{Key: key, Value: value, Version: version, UpdatedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "version", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}

	s.logger.Debug().Str("cache_key", key).Int64("version", row.Version).Int("bytes", len(value)).Msg("Cache entry written")
	return row.toEntry(), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&cacheEntry{}).Error; err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys in lexical order
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	keys := []string{}
	if err := s.db.WithContext(ctx).Model(&cacheEntry{}).Order("cache_key").Pluck("cache_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	return keys, nil
}

// Close releases the underlying database connection
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
