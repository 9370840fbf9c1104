// Package crypto encrypts cache values at rest with AES-256-GCM
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32

	// cacheKeyInfo binds derived keys to cache encryption
	cacheKeyInfo = "finsync cache encryption v1"
)

var (
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes")
	ErrEmptySecret        = errors.New("encryption secret is empty")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Encryptor seals and opens strings with AES-256-GCM.
// Ciphertexts are base64(nonce || sealed).
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an encryptor from a raw 32-byte key
func NewEncryptor(key string) (*Encryptor, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// DeriveKey stretches a secret of any length into a 32-byte key with HKDF-SHA256
func DeriveKey(secret, salt string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	r := hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(cacheKeyInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}
	return string(key), nil
}

// NewEncryptorFromSecret derives the key from secret and creates an encryptor
func NewEncryptorFromSecret(secret, salt string) (*Encryptor, error) {
	key, err := DeriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(key)
}

// Encrypt seals plaintext. The empty string encrypts to the empty string.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
