package cache

import (
	"context"
	"fmt"

	"finsync/internal/domain/offline"
	"finsync/internal/infrastructure/crypto"
)

// EncryptedStore seals values before they reach the wrapped store.
// Keys stay in clear so they can be listed and deleted.
type EncryptedStore struct {
	inner     offline.Store
	encryptor *crypto.Encryptor
}

// Ensure EncryptedStore implements offline.Store
var _ offline.Store = (*EncryptedStore)(nil)

// NewEncryptedStore wraps inner with encryptor
func NewEncryptedStore(inner offline.Store, encryptor *crypto.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, encryptor: encryptor}
}

// Get opens the entry under key
func (s *EncryptedStore) Get(ctx context.Context, key string) (*offline.Entry, error) {
	entry, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.encryptor.Decrypt(string(entry.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt cache entry %s: %w", key, err)
	}
	entry.Value = []byte(plaintext)
	return entry, nil
}

// Put seals value and stores it under key
func (s *EncryptedStore) Put(ctx context.Context, key string, value []byte) (*offline.Entry, error) {
	sealed, err := s.encryptor.Encrypt(string(value))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt cache entry %s: %w", key, err)
	}

	entry, err := s.inner.Put(ctx, key, []byte(sealed))
	if err != nil {
		return nil, err
	}
	entry.Value = append([]byte(nil), value...)
	return entry, nil
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *EncryptedStore) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}
