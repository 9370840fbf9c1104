package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer          = otel.Tracer("finsync/offline")
	meter           = otel.Meter("finsync/offline")
	loadTotal, _    = meter.Int64Counter("offline.load.total", metric.WithDescription("Collection loads by result status"))
	loadDuration, _ = meter.Float64Histogram("offline.load.duration", metric.WithDescription("Collection load duration in seconds"), metric.WithUnit("s"))
)

// FetchFunc retrieves a collection from the remote API
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Engine reconciles remote fetches, the persistent cache and device
// connectivity. It is safe for concurrent use.
type Engine struct {
	store   Store
	monitor NetworkMonitor
	logger  zerolog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	outcomes map[string]Outcome
}

// NewEngine creates a sync engine backed by store and monitor
func NewEngine(store Store, monitor NetworkMonitor, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		monitor:  monitor,
		logger:   logger.With().Str("component", "sync_engine").Logger(),
		now:      time.Now,
		outcomes: make(map[string]Outcome),
	}
}

// Store returns the cache the engine reads and writes
func (e *Engine) Store() Store {
	return e.store
}

// Load produces the best available snapshot of the collection stored under key.
//
// Online, fetch is called and its result replaces the cache entry. Offline,
// fetch is never called and the cached value is returned. A failed fetch falls
// back to the cache. Load never returns an error: every failure path is folded
// into the Status of the result.
func Load[T any](ctx context.Context, e *Engine, key string, fetch FetchFunc[T]) Result[T] {
	ctx, span := tracer.Start(ctx, "offline.load", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()
	start := time.Now()

	res := load(ctx, e, key, fetch)

	span.SetAttributes(
		attribute.String("load.status", string(res.Status)),
		attribute.Int("load.items", len(res.Items)),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	if res.Status == StatusError {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	e.record(ctx, key, res.Status, len(res.Items), res.Err, start)
	return res
}

func load[T any](ctx context.Context, e *Engine, key string, fetch FetchFunc[T]) Result[T] {
	log := e.logger.With().Str("cache_key", key).Logger()

	if key == "" {
		return Result[T]{Items: []T{}, Status: StatusError, Err: ErrEmptyKey}
	}

	online := e.monitor.Online(ctx)
	if err := ctx.Err(); err != nil {
		return fallback[T](ctx, e, key, err)
	}

	if !online {
		items, entry, ok := readCached[T](ctx, e, key)
		if !ok {
			log.Info().Msg("Offline with no cached data")
			return Result[T]{Items: []T{}, Status: StatusOfflineEmpty}
		}
		log.Info().Int("items", len(items)).Msg("Offline, serving cached data")
		return Result[T]{Items: items, Status: StatusOfflineCached, CachedAt: entry.UpdatedAt}
	}

	items, err := callFetch(ctx, fetch)
	if err != nil {
		return fallback[T](ctx, e, key, err)
	}
	if items == nil {
		items = []T{}
	}

	cachedAt := e.now()
	if entry, err := writeCached(ctx, e, key, items); err != nil {
		// The fetched data is still the freshest view available.
		log.Error().Err(err).Msg("Failed to write cache")
	} else {
		cachedAt = entry.UpdatedAt
	}

	log.Debug().Int("items", len(items)).Msg("Loaded fresh data")
	return Result[T]{Items: items, Status: StatusFresh, CachedAt: cachedAt}
}

// fallback serves the cached value after a failed or cancelled fetch
func fallback[T any](ctx context.Context, e *Engine, key string, err error) Result[T] {
	log := e.logger.With().Str("cache_key", key).Logger()

	cached, entry, ok := readCached[T](ctx, e, key)
	if !ok {
		log.Error().Err(err).Msg("Fetch failed with no cached fallback")
		return Result[T]{Items: []T{}, Status: StatusError, Err: err}
	}
	log.Warn().Err(err).Int("items", len(cached)).Msg("Fetch failed, serving cached data")
	return Result[T]{Items: cached, Status: StatusDegraded, Err: err, CachedAt: entry.UpdatedAt}
}

func callFetch[T any](ctx context.Context, fetch FetchFunc[T]) (items []T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			items = nil
			err = fmt.Errorf("fetch panicked: %v", rec)
		}
	}()
	if fetch == nil {
		return nil, errors.New("no fetch function")
	}
	return fetch(ctx)
}

// readCached decodes the entry under key. A missing or undecodable entry is a miss.
func readCached[T any](ctx context.Context, e *Engine, key string) ([]T, *Entry, bool) {
	entry, err := e.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.logger.Error().Err(err).Str("cache_key", key).Msg("Failed to read cache")
		}
		return nil, nil, false
	}

	var items []T
	if err := json.Unmarshal(entry.Value, &items); err != nil {
		e.logger.Error().Err(err).Str("cache_key", key).Msg("Discarding undecodable cache entry")
		return nil, nil, false
	}
	if items == nil {
		items = []T{}
	}
	return items, entry, true
}

func writeCached[T any](ctx context.Context, e *Engine, key string, items []T) (*Entry, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	entry, err := e.store.Put(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", key, err)
	}
	return entry, nil
}

func (e *Engine) record(ctx context.Context, key string, status Status, count int, err error, start time.Time) {
	loadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	loadDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("status", string(status))))

	o := Outcome{Key: key, Status: status, Count: count, At: e.now()}
	if err != nil {
		o.Error = err.Error()
	}

	e.mu.Lock()
	e.outcomes[key] = o
	e.mu.Unlock()
}

// Outcomes returns the most recent load outcome per cache key, sorted by key
func (e *Engine) Outcomes() []Outcome {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Outcome, 0, len(e.outcomes))
	for _, o := range e.outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
