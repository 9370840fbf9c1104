// Package cache provides the persistent key-value stores behind the sync engine
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"finsync/internal/domain/offline"
)

// MemoryStore keeps cache entries in memory. It is safe for concurrent use.
// Entries are lost on restart; use SQLiteStore or the postgres store to persist them.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]offline.Entry
	now     func() time.Time
}

// Ensure MemoryStore implements offline.Store
var _ offline.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]offline.Entry),
		now:     time.Now,
	}
}

// Get returns a copy of the entry under key
func (s *MemoryStore) Get(ctx context.Context, key string) (*offline.Entry, error) {
	if key == "" {
		return nil, offline.ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, offline.ErrNotFound
	}
	return copyEntry(entry), nil
}

// Put replaces the value under key and bumps its version
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) (*offline.Entry, error) {
	if key == "" {
		return nil, offline.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := offline.Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Version:   s.entries[key].Version + 1,
		UpdatedAt: s.now(),
	}
	s.entries[key] = entry
	return copyEntry(entry), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Keys lists the stored keys in lexical order
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func copyEntry(e offline.Entry) *offline.Entry {
	e.Value = append([]byte(nil), e.Value...)
	return &e
}
