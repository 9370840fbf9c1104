package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ItemFetchFunc retrieves a single record from the remote API
type ItemFetchFunc[T any] func(ctx context.Context) (*T, error)

// FindCached returns the first record in the cached collection under key that
// satisfies match. Returns ErrNotFound when the key is absent or nothing matches.
func FindCached[T any](ctx context.Context, store Store, key string, match func(T) bool) (*T, error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var items []T
	if err := json.Unmarshal(entry.Value, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	for i := range items {
		if match(items[i]) {
			return &items[i], nil
		}
	}
	return nil, ErrNotFound
}

// UpsertCached replaces the record in the cached collection under key that
// same reports as equal to item, or appends item when there is none. The
// collection is rewritten as a whole.
func UpsertCached[T any](ctx context.Context, store Store, key string, item T, same func(a, b T) bool) (*Entry, error) {
	var items []T

	entry, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(entry.Value, &items); err != nil {
			// A corrupt entry is replaced rather than merged into
			items = nil
		}
	}

	replaced := false
	for i := range items {
		if same(items[i], item) {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return store.Put(ctx, key, data)
}

// LoadItem loads a single record that also lives inside the collection
// cached under key.
//
// Online, fetch is called and the result is upserted into the collection.
// Offline, or when the fetch fails, the record is looked up in the collection
// with same. Like Load, it never returns an error.
func LoadItem[T any](ctx context.Context, e *Engine, key string, probe T, same func(a, b T) bool, fetch ItemFetchFunc[T]) ItemResult[T] {
	ctx, span := tracer.Start(ctx, "offline.load_item", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()
	start := time.Now()

	res := loadItem(ctx, e, key, probe, same, fetch)

	span.SetAttributes(attribute.String("load.status", string(res.Status)))
	if res.Status == StatusError {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	count := 0
	if res.Item != nil {
		count = 1
	}
	e.record(ctx, key, res.Status, count, res.Err, start)
	return res
}

func loadItem[T any](ctx context.Context, e *Engine, key string, probe T, same func(a, b T) bool, fetch ItemFetchFunc[T]) ItemResult[T] {
	log := e.logger.With().Str("cache_key", key).Logger()
	match := func(v T) bool { return same(v, probe) }

	if key == "" {
		return ItemResult[T]{Status: StatusError, Err: ErrEmptyKey}
	}

	online := e.monitor.Online(ctx)
	if err := ctx.Err(); err != nil {
		return itemFallback(ctx, e, key, match, err)
	}

	if !online {
		item, err := FindCached(ctx, e.store, key, match)
		if err != nil {
			log.Info().Err(err).Msg("Offline with no cached record")
			return ItemResult[T]{Status: StatusOfflineEmpty}
		}
		return ItemResult[T]{Item: item, Status: StatusOfflineCached}
	}

	item, err := callItemFetch(ctx, fetch)
	if err == nil && item == nil {
		err = ErrNotFound
	}
	if err != nil {
		return itemFallback(ctx, e, key, match, err)
	}

	cachedAt := e.now()
	if entry, err := UpsertCached(ctx, e.store, key, *item, same); err != nil {
		log.Error().Err(err).Msg("Failed to upsert cached record")
	} else {
		cachedAt = entry.UpdatedAt
	}
	return ItemResult[T]{Item: item, Status: StatusFresh, CachedAt: cachedAt}
}

func itemFallback[T any](ctx context.Context, e *Engine, key string, match func(T) bool, err error) ItemResult[T] {
	log := e.logger.With().Str("cache_key", key).Logger()

	cached, findErr := FindCached(ctx, e.store, key, match)
	if findErr != nil {
		log.Error().Err(err).Msg("Record fetch failed with no cached fallback")
		return ItemResult[T]{Status: StatusError, Err: err}
	}
	log.Warn().Err(err).Msg("Record fetch failed, serving cached record")
	return ItemResult[T]{Item: cached, Status: StatusDegraded, Err: err}
}

func callItemFetch[T any](ctx context.Context, fetch ItemFetchFunc[T]) (item *T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			item = nil
			err = fmt.Errorf("fetch panicked: %v", rec)
		}
	}()
	if fetch == nil {
		return nil, errors.New("no fetch function")
	}
	return fetch(ctx)
}
