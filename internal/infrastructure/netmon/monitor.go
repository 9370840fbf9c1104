// Package netmon answers "is the backend reachable" on demand and watches for
// connectivity changes in the background.
package netmon

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"finsync/internal/domain/offline"
	"finsync/internal/shared/broadcast"
)

// Probe returns nil when the network is usable
type Probe func(ctx context.Context) error

// TCPProbe dials addr and closes the connection straight away
func TCPProbe(addr string) Probe {
	var d net.Dialer
	return func(ctx context.Context) error {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// ProbeAddr derives host:port from a base URL, defaulting the port by scheme
func ProbeAddr(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", baseURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", baseURL)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "wss":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Monitor implements offline.NetworkMonitor with a probe and broadcasts
// online/offline transitions observed by its periodic check
type Monitor struct {
	probe    Probe
	timeout  time.Duration
	interval time.Duration
	logger   zerolog.Logger

	listeners *broadcast.Registry[bool]

	mu     sync.Mutex
	known  bool
	online bool
	cancel context.CancelFunc
	done   chan struct{}
}

var _ offline.NetworkMonitor = (*Monitor)(nil)

func NewMonitor(probe Probe, interval, timeout time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		probe:     probe,
		timeout:   timeout,
		interval:  interval,
		logger:    logger.With().Str("component", "netmon").Logger(),
		listeners: broadcast.NewRegistry[bool](),
	}
}

// Online checks connectivity now and feeds change notifications. If ctx ends
// before the check completes it returns the last known state and notifies nobody.
func (m *Monitor) Online(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.probe(probeCtx)
	if ctx.Err() != nil {
		online, _ := m.Last()
		m.logger.Debug().Err(ctx.Err()).Bool("last_known", online).Msg("Connectivity check abandoned by caller")
		return online
	}
	online := err == nil
	if err != nil {
		m.logger.Debug().Err(err).Msg("Connectivity probe failed")
	}
	m.observe(online)
	return online
}

// Last returns the most recent probe result; ok is false before the first probe
func (m *Monitor) Last() (online, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online, m.known
}

// Subscribe registers fn for connectivity transitions and returns its cancel function
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	h := m.listeners.Add(fn)
	return func() { m.listeners.Remove(h) }
}

func (m *Monitor) observe(online bool) {
	m.mu.Lock()
	changed := m.known && m.online != online
	m.known = true
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	if online {
		m.logger.Info().Msg("Network is back online")
	} else {
		m.logger.Warn().Msg("Network went offline")
	}
	for _, err := range m.listeners.Notify(online) {
		m.logger.Error().Err(err).Msg("Connectivity subscriber failed")
	}
}

// Start probes every interval until Stop or ctx cancellation
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)

		m.Online(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Online(ctx)
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
