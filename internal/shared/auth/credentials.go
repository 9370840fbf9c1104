// Package auth holds the bearer token shared by the REST client and the
// realtime channel.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finsync/internal/shared/broadcast"
)

var ErrNoExpiry = errors.New("token carries no exp claim")

// Credentials is the current access token. Subscribers are told about every
// change, including Clear, which announces the empty token.
type Credentials struct {
	mu        sync.RWMutex
	token     string
	listeners *broadcast.Registry[string]
}

func NewCredentials(token string) *Credentials {
	return &Credentials{
		token:     token,
		listeners: broadcast.NewRegistry[string](),
	}
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Set stores token and notifies subscribers when it differs from the current one
func (c *Credentials) Set(token string) {
	c.mu.Lock()
	if c.token == token {
		c.mu.Unlock()
		return
	}
	c.token = token
	c.mu.Unlock()

	c.listeners.Notify(token)
}

func (c *Credentials) Clear() {
	c.Set("")
}

// Subscribe registers fn for token changes and returns its cancel function
func (c *Credentials) Subscribe(fn func(token string)) func() {
	h := c.listeners.Add(fn)
	return func() { c.listeners.Remove(h) }
}

// Expiry reads the exp claim of the current token. The signature is not verified.
func (c *Credentials) Expiry() (time.Time, error) {
	token := c.Token()
	if token == "" {
		return time.Time{}, ErrNoExpiry
	}
	return Expiry(token)
}

// Expired reports whether the token's exp claim is before now.
// Tokens without exp never expire.
func (c *Credentials) Expired(now time.Time) bool {
	exp, err := c.Expiry()
	if err != nil {
		return false
	}
	return !now.Before(exp)
}

// Expiry parses an unverified JWT and returns its exp claim
func Expiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}
