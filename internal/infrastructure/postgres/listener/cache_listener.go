package listener

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"finsync/internal/shared/broadcast"
)

const reconnectInterval = 5 * time.Second

// Change is the payload a cache write publishes with pg_notify
type Change struct {
	Key     string `json:"cache_key"`
	Version int64  `json:"version"`
}

// CacheListener listens for cache writes announced on a Postgres channel and
// fans them out to subscribers
type CacheListener struct {
	connStr   string
	channel   string
	logger    zerolog.Logger
	listeners *broadcast.Registry[Change]

	stopOnce   sync.Once
	shutdownCh chan struct{}
	done       chan struct{}
}

func NewCacheListener(connStr, channel string, logger zerolog.Logger) *CacheListener {
	return &CacheListener{
		connStr:    connStr,
		channel:    channel,
		logger:     logger.With().Str("component", "cache_listener").Logger(),
		listeners:  broadcast.NewRegistry[Change](),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Subscribe registers fn for every change notification
func (l *CacheListener) Subscribe(fn func(Change)) broadcast.Handle {
	return l.listeners.Add(fn)
}

func (l *CacheListener) Unsubscribe(h broadcast.Handle) {
	l.listeners.Remove(h)
}

// Start begins listening in a background goroutine
func (l *CacheListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.logger.Info().Str("channel", l.channel).Msg("Cache change listener started")
}

// Stop shuts the listener down and waits for it to exit
func (l *CacheListener) Stop() {
	l.stopOnce.Do(func() { close(l.shutdownCh) })
	<-l.done
	l.logger.Info().Msg("Cache change listener stopped")
}

func (l *CacheListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			l.logger.Info().Msg("Reconnecting to PostgreSQL for cache notifications")
		}
	}
}

func (l *CacheListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.logger.Info().Msg("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			l.logger.Warn().Err(err).Msg("Disconnected from PostgreSQL notification channel")
		case pq.ListenerEventReconnected:
			l.logger.Info().Msg("Reconnected to PostgreSQL notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			l.logger.Warn().Err(err).Msg("Notification connection attempt failed")
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.channel); err != nil {
		l.logger.Error().Err(err).Str("channel", l.channel).Msg("Failed to listen")
		return
	}

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// connection lost
				return
			}
			l.handleNotification(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn().Err(err).Msg("Listener ping failed")
				}
			}()
		}
	}
}

func (l *CacheListener) handleNotification(payload string) {
	change, err := ParseChange(payload)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to parse cache notification")
		return
	}

	l.logger.Debug().Str("cache_key", change.Key).Int64("version", change.Version).Msg("Cache entry changed")
	for _, err := range l.listeners.Notify(change) {
		l.logger.Error().Err(err).Str("cache_key", change.Key).Msg("Cache change subscriber failed")
	}
}

// ParseChange decodes a notification payload
func ParseChange(payload string) (Change, error) {
	var c Change
	err := json.Unmarshal([]byte(payload), &c)
	return c, err
}
