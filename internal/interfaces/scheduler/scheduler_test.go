package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"finsync/internal/domain/ledger"
	"finsync/internal/domain/offline"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func countingProvider(executed *atomic.Int32) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		return []Job{&MockJob{key: "cachedTransactions", ExecuteFunc: func(ctx context.Context) error {
			executed.Add(1)
			return nil
		}}}, nil
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	if _, err := NewScheduler(Config{Interval: 0, JobProvider: countingProvider(new(atomic.Int32))}, discard); err == nil {
		t.Error("NewScheduler() accepted a zero interval")
	}
	if _, err := NewScheduler(Config{Interval: time.Minute}, discard); err == nil {
		t.Error("NewScheduler() accepted a nil provider")
	}
}

func TestScheduler_RunOnStartupAndTrigger(t *testing.T) {
	var executed atomic.Int32
	s, err := NewScheduler(Config{
		Interval:     time.Hour,
		WorkerCount:  1,
		QueueSize:    4,
		RunOnStartup: true,
		JobProvider:  countingProvider(&executed),
	}, discard)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.Start()
	waitFor(t, func() bool { return executed.Load() == 1 })

	s.Trigger()
	waitFor(t, func() bool { return executed.Load() == 2 })

	s.Stop(time.Second)

	if _, runs := s.LastRun(); runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
}

func TestScheduler_Interval(t *testing.T) {
	var executed atomic.Int32
	s, _ := NewScheduler(Config{
		Interval:    10 * time.Millisecond,
		WorkerCount: 1,
		QueueSize:   4,
		JobProvider: countingProvider(&executed),
	}, discard)

	s.Start()
	waitFor(t, func() bool { return executed.Load() >= 3 })
	s.Stop(time.Second)
}

func TestScheduler_TriggersCoalesce(t *testing.T) {
	var executed atomic.Int32
	s, _ := NewScheduler(Config{
		Interval:    time.Hour,
		WorkerCount: 1,
		QueueSize:   8,
		JobProvider: countingProvider(&executed),
	}, discard)

	for i := 0; i < 5; i++ {
		s.Trigger()
	}
	s.Start()
	waitFor(t, func() bool { return executed.Load() == 1 })
	s.Stop(time.Second)

	if executed.Load() != 1 {
		t.Errorf("executed = %d, want pending triggers to collapse into 1 run", executed.Load())
	}
}

func TestRefreshJob_Execute(t *testing.T) {
	tests := []struct {
		name    string
		status  offline.Status
		err     error
		wantErr string
	}{
		{"fresh", offline.StatusFresh, nil, ""},
		{"offline cached", offline.StatusOfflineCached, nil, "offline_cached"},
		{"degraded", offline.StatusDegraded, errors.New("HTTP 503"), "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewRefreshJob(ledger.Refresher{
				Key: offline.KeyBudgets,
				Load: func(ctx context.Context) (offline.Status, error) {
					return tt.status, tt.err
				},
			})

			if job.Key() != offline.KeyBudgets {
				t.Errorf("Key() = %q", job.Key())
			}

			err := job.Execute(context.Background())
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Execute() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Execute() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
