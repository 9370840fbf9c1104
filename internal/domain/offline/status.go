package offline

import "time"

// Status tags every load result with where its data came from
type Status string

const (
	// StatusFresh: fetched from the API and written to the cache
	StatusFresh Status = "fresh"
	// StatusOfflineCached: device offline, showing cached data
	StatusOfflineCached Status = "offline_cached"
	// StatusOfflineEmpty: device offline and nothing cached
	StatusOfflineEmpty Status = "offline_empty"
	// StatusDegraded: fetch failed, showing cached data
	StatusDegraded Status = "degraded"
	// StatusError: fetch failed and nothing cached
	StatusError Status = "error"
)

// FromCache reports whether the data was served from the cache
func (s Status) FromCache() bool {
	return s == StatusOfflineCached || s == StatusDegraded
}

// Offline reports whether the device was offline during the load
func (s Status) Offline() bool {
	return s == StatusOfflineCached || s == StatusOfflineEmpty
}

// HasData reports whether the status can carry items
func (s Status) HasData() bool {
	return s == StatusFresh || s.FromCache()
}

// Result is the outcome of loading a collection.
// Items is never nil; it is empty for StatusOfflineEmpty and StatusError.
type Result[T any] struct {
	Items  []T
	Status Status
	// Err is the fetch failure for StatusDegraded and StatusError
	Err error
	// CachedAt is the write time of the cache entry the items came from
	CachedAt time.Time
}

// ItemResult is the outcome of loading a single record
type ItemResult[T any] struct {
	Item     *T
	Status   Status
	Err      error
	CachedAt time.Time
}

// Outcome is the last recorded load result for a cache key
type Outcome struct {
	Key    string    `json:"key"`
	Status Status    `json:"status"`
	Count  int       `json:"count"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}
