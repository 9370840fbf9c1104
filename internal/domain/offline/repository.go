package offline

import (
	"context"
	"errors"
	"time"
)

// Cache keys shared by the collections service and the realtime channel
const (
	KeyTransactions = "cachedTransactions"
	KeyBudgets      = "cachedBudgets"
)

var (
	ErrNotFound = errors.New("cache entry not found")
	ErrEmptyKey = errors.New("cache key is required")
)

// Entry is one cached collection: a JSON-serialized list replaced as a whole
type Entry struct {
	Key       string
	Value     []byte
	Version   int64 // incremented on every write to the key
	UpdatedAt time.Time
}

// Store is the persistent key-value cache.
// Put must replace the whole value atomically; readers never observe a partial write.
type Store interface {
	// Get returns ErrNotFound when the key is absent
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, value []byte) (*Entry, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// NetworkMonitor reports device connectivity on demand
type NetworkMonitor interface {
	Online(ctx context.Context) bool
}
