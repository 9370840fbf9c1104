package realtime

import (
	"math"
	"time"
)

// State of the push connection
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Policy controls connection attempts. Attempts are counted per connection
// cycle; the timeout bounds each individual attempt.
type Policy struct {
	MaxAttempts       int
	ReconnectDelay    time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
	ConnectTimeout    time.Duration
}

// DefaultPolicy returns 5 attempts, a fixed 1s delay and a 20s timeout
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       5,
		ReconnectDelay:    time.Second,
		BackoffMultiplier: 1,
		MaxDelay:          30 * time.Second,
		ConnectTimeout:    20 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.ReconnectDelay < 0 {
		p.ReconnectDelay = 0
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 1
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = d.ConnectTimeout
	}
	return p
}

// Delay returns the wait after the given failed attempt (1-based)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}

	d := time.Duration(float64(p.ReconnectDelay) * math.Pow(mult, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
