package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"finsync/internal/domain/offline"
	"finsync/internal/infrastructure/crypto"
	"finsync/internal/infrastructure/postgres"
	"finsync/internal/shared/config"
)

// Open builds the store selected by cfg.Driver, wrapped in an EncryptedStore
// when an encryption secret is set. The returned close function releases the
// underlying database.
func Open(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (offline.Store, func() error, error) {
	var (
		store   offline.Store
		closeFn = func() error { return nil }
	)

	switch cfg.Driver {
	case config.DriverMemory:
		store = NewMemoryStore()

	case config.DriverSQLite:
		db, err := OpenSQLite(cfg.Path, cfg.LogMode)
		if err != nil {
			return nil, nil, err
		}
		s, err := NewSQLiteStore(db, logger)
		if err != nil {
			return nil, nil, err
		}
		store, closeFn = s, s.Close

	case config.DriverPostgres:
		db, err := postgres.New(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := postgres.NewCacheStore(db, logger)
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store, closeFn = s, db.Close

	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}

	if cfg.EncryptionSecret != "" {
		enc, err := crypto.NewEncryptorFromSecret(cfg.EncryptionSecret, cfg.Driver)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		store = NewEncryptedStore(store, enc)
	}

	logger.Info().
		Str("driver", cfg.Driver).
		Bool("encrypted", cfg.EncryptionSecret != "").
		Msg("Cache store opened")
	return store, closeFn, nil
}
