// Package broadcast provides an ordered publish/subscribe registry used for
// listener fan-out (transaction pushes, connectivity changes, token changes).
package broadcast

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Handle identifies a subscription. The zero Handle is never issued.
type Handle uuid.UUID

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

type subscriber[T any] struct {
	handle Handle
	fn     func(T)
}

// Registry holds subscribers in registration order.
// Notify works on a snapshot, so subscribers may add or remove
// subscriptions (including their own) while being notified.
type Registry[T any] struct {
	mu   sync.RWMutex
	subs []subscriber[T]
}

// NewRegistry creates an empty registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Add registers fn and returns the handle needed to remove it
func (r *Registry[T]) Add(fn func(T)) Handle {
	h := Handle(uuid.New())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = append(r.subs, subscriber[T]{handle: h, fn: fn})
	return h
}

// Remove deregisters the subscription. Unknown handles are a no-op.
func (r *Registry[T]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.handle == h {
			subs := make([]subscriber[T], 0, len(r.subs)-1)
			subs = append(subs, r.subs[:i]...)
			subs = append(subs, r.subs[i+1:]...)
			r.subs = subs
			return true
		}
	}
	return false
}

// Len returns the number of subscribers
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Clear removes every subscriber
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = nil
}

// Notify calls every subscriber synchronously in registration order.
// A panicking subscriber does not stop delivery to the rest; its panic
// is returned as an error in the result.
func (r *Registry[T]) Notify(v T) []error {
	r.mu.RLock()
	snapshot := r.subs
	r.mu.RUnlock()

	var errs []error
	for _, s := range snapshot {
		if err := invoke(s, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func invoke[T any](s subscriber[T], v T) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("subscriber %s panicked: %v", s.handle, rec)
		}
	}()
	s.fn(v)
	return nil
}
