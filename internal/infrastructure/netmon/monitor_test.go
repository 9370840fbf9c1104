package netmon

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var discard = zerolog.New(io.Discard)

type switchProbe struct {
	up atomic.Bool
}

func (p *switchProbe) probe(ctx context.Context) error {
	if p.up.Load() {
		return nil
	}
	return errors.New("network unreachable")
}

func TestMonitor_NotifiesTransitionsOnly(t *testing.T) {
	p := &switchProbe{}
	p.up.Store(true)
	m := NewMonitor(p.probe, time.Hour, time.Second, discard)

	var got []bool
	cancel := m.Subscribe(func(online bool) { got = append(got, online) })
	defer cancel()

	ctx := context.Background()
	m.Online(ctx)
	m.Online(ctx)
	p.up.Store(false)
	if m.Online(ctx) {
		t.Error("Online() = true with the probe failing")
	}
	m.Online(ctx)
	p.up.Store(true)
	m.Online(ctx)

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("transitions = %v, want [false true]", got)
	}
	if online, ok := m.Last(); !ok || !online {
		t.Errorf("Last() = (%v, %v), want (true, true)", online, ok)
	}
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	blocking := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	m := NewMonitor(blocking, time.Hour, 10*time.Millisecond, discard)

	start := time.Now()
	if m.Online(context.Background()) {
		t.Error("Online() = true for a probe that never answers")
	}
	if time.Since(start) > time.Second {
		t.Error("probe timeout not applied")
	}
}

func TestMonitor_StartStop(t *testing.T) {
	p := &switchProbe{}
	p.up.Store(true)
	m := NewMonitor(p.probe, 5*time.Millisecond, time.Second, discard)

	var mu sync.Mutex
	var got []bool
	m.Subscribe(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	m.Start(context.Background())
	m.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := m.Last(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no probe ran after Start")
		}
		time.Sleep(time.Millisecond)
	}
	p.up.Store(false)

	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("offline transition not observed")
		}
		time.Sleep(time.Millisecond)
	}

	m.Stop()
	m.Stop()
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	if err := TCPProbe(addr)(context.Background()); err != nil {
		t.Errorf("probe of a listening port failed: %v", err)
	}

	ln.Close()
	if err := TCPProbe(addr)(context.Background()); err == nil {
		t.Error("probe of a closed port succeeded")
	}
}

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"https://api.example.com", "api.example.com:443", false},
		{"http://localhost:3000/api", "localhost:3000", false},
		{"wss://push.example.com/socket.io", "push.example.com:443", false},
		{"http://[::1]:8080", "[::1]:8080", false},
		{"not a url", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := ProbeAddr(tt.base)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProbeAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ProbeAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonitor_CancelledCallerKeepsLastState(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	m := NewMonitor(TCPProbe(ln.Addr().String()), time.Hour, time.Second, discard)
	var events []bool
	unsubscribe := m.Subscribe(func(online bool) { events = append(events, online) })
	defer unsubscribe()

	if !m.Online(context.Background()) {
		t.Fatal("Online() = false with the listener reachable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !m.Online(ctx) {
		t.Error("Online() with a cancelled context = false, want the last known true")
	}
	if len(events) != 0 {
		t.Errorf("transitions = %v, want none", events)
	}
	if online, ok := m.Last(); !ok || !online {
		t.Errorf("Last() = (%v, %v), want (true, true)", online, ok)
	}

	deadline, cancelDeadline := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelDeadline()
	if !m.Online(deadline) || len(events) != 0 {
		t.Errorf("expired deadline reported offline, transitions = %v", events)
	}
}
