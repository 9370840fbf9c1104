package listener

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseChange(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Change
		wantErr bool
	}{
		{"full", `{"cache_key":"cachedTransactions","version":4}`, Change{Key: "cachedTransactions", Version: 4}, false},
		{"scoped key", `{"cache_key":"cachedTransactions_budget_7","version":1}`, Change{Key: "cachedTransactions_budget_7", Version: 1}, false},
		{"garbage", `not json`, Change{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChange(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseChange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseChange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHandleNotification_FansOut(t *testing.T) {
	l := NewCacheListener("", "finsync_cache", zerolog.New(io.Discard))

	var first, second []Change
	l.Subscribe(func(c Change) { first = append(first, c) })
	h := l.Subscribe(func(c Change) { panic("boom") })
	l.Subscribe(func(c Change) { second = append(second, c) })

	l.handleNotification(`{"cache_key":"cachedBudgets","version":2}`)
	l.Unsubscribe(h)
	l.handleNotification(`{"cache_key":"spending_DAY","version":1}`)
	l.handleNotification(`{broken`)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("deliveries = %d/%d, want 2/2", len(first), len(second))
	}
	if first[1].Key != "spending_DAY" {
		t.Errorf("second change = %+v", first[1])
	}
}
