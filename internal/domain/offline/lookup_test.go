package offline

import (
	"context"
	"errors"
	"testing"
)

func sameRecord(a, b record) bool { return a.ID == b.ID }

func TestFindCached(t *testing.T) {
	store := newFakeStore()
	store.seed(t, "records", []record{{ID: 1, Label: "Coffee"}, {ID: 2, Label: "Rent"}})

	got, err := FindCached(context.Background(), store, "records", func(r record) bool { return r.ID == 2 })
	if err != nil {
		t.Fatalf("FindCached() error = %v", err)
	}
	if got.Label != "Rent" {
		t.Errorf("Label = %q, want Rent", got.Label)
	}

	if _, err := FindCached(context.Background(), store, "records", func(r record) bool { return r.ID == 9 }); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id error = %v, want ErrNotFound", err)
	}
	if _, err := FindCached(context.Background(), store, "absent", func(record) bool { return true }); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key error = %v, want ErrNotFound", err)
	}
}

func TestUpsertCached(t *testing.T) {
	tests := []struct {
		name string
		seed []record
		item record
		want []record
	}{
		{
			name: "replace existing keeps order",
			seed: []record{{ID: 1, Label: "Food"}, {ID: 2, Label: "Travel"}},
			item: record{ID: 1, Label: "Groceries"},
			want: []record{{ID: 1, Label: "Groceries"}, {ID: 2, Label: "Travel"}},
		},
		{
			name: "append new",
			seed: []record{{ID: 1, Label: "Food"}},
			item: record{ID: 3, Label: "Fun"},
			want: []record{{ID: 1, Label: "Food"}, {ID: 3, Label: "Fun"}},
		},
		{
			name: "empty cache",
			item: record{ID: 3, Label: "Fun"},
			want: []record{{ID: 3, Label: "Fun"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			if tt.seed != nil {
				store.seed(t, "budgets", tt.seed)
			}

			if _, err := UpsertCached(context.Background(), store, "budgets", tt.item, sameRecord); err != nil {
				t.Fatalf("UpsertCached() error = %v", err)
			}
			if got := store.cached(t, "budgets"); !equalRecords(got, tt.want) {
				t.Errorf("cache = %v, want %v", got, tt.want)
			}
			if store.puts != 1 {
				t.Errorf("Put called %d times, want exactly one whole-value write", store.puts)
			}
		})
	}
}

func TestLoadItem(t *testing.T) {
	seed := []record{{ID: 1, Label: "Food"}, {ID: 2, Label: "Travel"}}
	probe := record{ID: 2}

	tests := []struct {
		name       string
		online     bool
		fetch      ItemFetchFunc[record]
		wantStatus Status
		wantLabel  string
		wantCache  []record
	}{
		{
			name:   "online upserts fetched record",
			online: true,
			fetch: func(context.Context) (*record, error) {
				return &record{ID: 2, Label: "Holidays"}, nil
			},
			wantStatus: StatusFresh,
			wantLabel:  "Holidays",
			wantCache:  []record{{ID: 1, Label: "Food"}, {ID: 2, Label: "Holidays"}},
		},
		{
			name:       "offline finds cached record",
			online:     false,
			fetch:      func(context.Context) (*record, error) { t.Fatal("unexpected fetch"); return nil, nil },
			wantStatus: StatusOfflineCached,
			wantLabel:  "Travel",
			wantCache:  seed,
		},
		{
			name:       "fetch failure finds cached record",
			online:     true,
			fetch:      func(context.Context) (*record, error) { return nil, errors.New("502") },
			wantStatus: StatusDegraded,
			wantLabel:  "Travel",
			wantCache:  seed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.seed(t, "budgets", seed)
			engine := newTestEngine(store, online(tt.online))

			res := LoadItem(context.Background(), engine, "budgets", probe, sameRecord, tt.fetch)

			if res.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", res.Status, tt.wantStatus)
			}
			if res.Item == nil || res.Item.Label != tt.wantLabel {
				t.Errorf("Item = %+v, want label %q", res.Item, tt.wantLabel)
			}
			if got := store.cached(t, "budgets"); !equalRecords(got, tt.wantCache) {
				t.Errorf("cache = %v, want %v", got, tt.wantCache)
			}
		})
	}
}

func TestLoadItem_NotCached(t *testing.T) {
	store := newFakeStore()
	probe := record{ID: 7}

	offline := LoadItem(context.Background(), newTestEngine(store, online(false)), "budgets", probe, sameRecord, nil)
	if offline.Status != StatusOfflineEmpty || offline.Item != nil {
		t.Errorf("offline = %+v, want empty", offline)
	}

	failed := LoadItem(context.Background(), newTestEngine(store, online(true)), "budgets", probe, sameRecord,
		func(context.Context) (*record, error) { return nil, errors.New("404") })
	if failed.Status != StatusError || failed.Err == nil {
		t.Errorf("failed = %+v, want error status", failed)
	}
}

func TestLoadItem_CancelledContextIsNotOffline(t *testing.T) {
	store := newFakeStore()
	store.seed(t, "budgets", []record{{ID: 2, Label: "Travel"}})
	engine := newTestEngine(store, &MockMonitor{OnlineFunc: func(ctx context.Context) bool { return ctx.Err() == nil }})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := LoadItem(ctx, engine, "budgets", record{ID: 2}, sameRecord, func(context.Context) (*record, error) {
		t.Error("fetch called on a cancelled context")
		return nil, nil
	})
	if res.Status != StatusDegraded || res.Item == nil || res.Item.Label != "Travel" {
		t.Errorf("LoadItem() = %+v, want the cached Travel record as degraded", res)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
}
