package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"finsync/internal/domain/offline"
	"finsync/internal/domain/transaction"
	"finsync/internal/shared/broadcast"
	"finsync/internal/shared/logger"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer              = otel.Tracer("finsync/realtime")
	meter               = otel.Meter("finsync/realtime")
	connectAttempts, _  = meter.Int64Counter("realtime.connect.attempts", metric.WithDescription("Connection attempts by result"))
	messagesTotal, _    = meter.Int64Counter("realtime.messages.total", metric.WithDescription("Inbound messages by event name"))
	listenerFailures, _ = meter.Int64Counter("realtime.listener.failures", metric.WithDescription("Listener invocations that panicked"))
)

// TransactionsListener receives every pushed transactions snapshot.
// Listeners share the slice and must not modify it.
type TransactionsListener func(items []transaction.Transaction)

// Options configures a Channel
type Options struct {
	URL    string
	Path   string
	Policy Policy
}

// Channel maintains one logical push connection: it authenticates, reconnects
// according to its Policy, resubscribes after reconnects and fans pushed
// transaction snapshots out to listeners after writing them to the cache.
//
// Connect, Disconnect and SubscribeToTransactions never block on the network
// and never return errors; failures are logged and counted.
type Channel struct {
	transport Transport
	store     offline.Store
	opts      Options
	logger    zerolog.Logger

	mu         sync.Mutex
	state      State
	token      string
	conn       Conn
	cancel     context.CancelFunc
	running    bool   // a connection goroutine is alive
	gen        uint64 // bumped by Disconnect so stale goroutines stop touching state
	wanted     bool   // Connect was called without a later Disconnect
	subscribed bool
	unsubCreds func()
	wg         sync.WaitGroup

	listeners      *broadcast.Registry[[]transaction.Transaction]
	stateListeners *broadcast.Registry[State]
}

// NewChannel creates a disconnected channel
func NewChannel(transport Transport, store offline.Store, opts Options, log zerolog.Logger) *Channel {
	opts.Policy = opts.Policy.normalized()
	return &Channel{
		transport:      transport,
		store:          store,
		opts:           opts,
		logger:         logger.Component(log, "realtime"),
		state:          StateDisconnected,
		listeners:      broadcast.NewRegistry[[]transaction.Transaction](),
		stateListeners: broadcast.NewRegistry[State](),
	}
}

// Initialize takes the current token from provider and follows its changes
func (c *Channel) Initialize(provider CredentialProvider) {
	c.mu.Lock()
	prev := c.unsubCreds
	c.unsubCreds = nil
	c.mu.Unlock()
	if prev != nil {
		prev()
	}

	c.SetToken(provider.Token())
	unsub := provider.Subscribe(c.SetToken)

	c.mu.Lock()
	c.unsubCreds = unsub
	c.mu.Unlock()
}

// SetToken sets the credential used by the next connection handshake
func (c *Channel) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	c.logger.Info().Str("token", logger.TokenPrefix(token)).Msg("Token set")
}

// Connect starts connecting in the background. It is a no-op while a
// connection is established or being established.
func (c *Channel) Connect() {
	c.mu.Lock()
	c.wanted = true
	if c.running {
		c.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	gen := c.gen
	changed := c.setStateLocked(StateConnecting)
	c.wg.Add(1)
	c.mu.Unlock()

	if changed {
		c.notifyState(StateConnecting)
	}
	c.logger.Info().Str("url", c.opts.URL).Msg("Connecting")

	go c.run(ctx, gen)
}

// Disconnect tears down the connection. Listeners and the subscription
// request are kept, so a later Connect resumes delivery.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.wanted = false
	if !c.running && c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}

	c.gen++
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Error closing connection")
		}
	}
	if changed {
		c.notifyState(StateDisconnected)
	}
	c.logger.Info().Msg("Disconnected")
}

// SubscribeToTransactions asks the server to push the transactions
// collection. While disconnected it starts a connection and the request is
// sent once connected; it is also repeated after every reconnect.
func (c *Channel) SubscribeToTransactions() {
	c.mu.Lock()
	c.subscribed = true
	conn := c.conn
	connected := c.state == StateConnected && conn != nil
	c.mu.Unlock()

	if !connected {
		c.Connect()
		return
	}
	c.emitSubscribe(conn)
}

// HandleConnectivity reacts to network transitions. Regaining connectivity
// restarts a wanted connection whose retries were exhausted.
func (c *Channel) HandleConnectivity(online bool) {
	c.mu.Lock()
	restart := online && c.wanted && !c.running
	c.mu.Unlock()

	c.logger.Debug().Bool("online", online).Bool("restart", restart).Msg("Connectivity changed")
	if restart {
		c.Connect()
	}
}

// AddTransactionsListener registers fn for pushed snapshots
func (c *Channel) AddTransactionsListener(fn TransactionsListener) broadcast.Handle {
	return c.listeners.Add(fn)
}

// RemoveTransactionsListener deregisters a listener. Unknown handles are ignored.
func (c *Channel) RemoveTransactionsListener(h broadcast.Handle) bool {
	return c.listeners.Remove(h)
}

// AddStateListener registers fn for state transitions
func (c *Channel) AddStateListener(fn func(State)) broadcast.Handle {
	return c.stateListeners.Add(fn)
}

// RemoveStateListener deregisters a state listener
func (c *Channel) RemoveStateListener(h broadcast.Handle) bool {
	return c.stateListeners.Remove(h)
}

// State returns the current connection state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection is established
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// Shutdown disconnects, stops following credential changes, drops every
// listener and the subscription request, and waits for background work.
func (c *Channel) Shutdown(ctx context.Context) error {
	c.Disconnect()

	c.mu.Lock()
	unsub := c.unsubCreds
	c.unsubCreds = nil
	c.subscribed = false
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.listeners.Clear()
	c.stateListeners.Clear()
	c.logger.Info().Msg("Channel shut down")
	return nil
}

func (c *Channel) run(ctx context.Context, gen uint64) {
	defer c.wg.Done()
	defer c.stop(gen)

	for {
		conn, err := c.dialWithRetry(ctx, gen)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error().Err(err).Int("max_attempts", c.opts.Policy.MaxAttempts).Msg("Giving up connecting")
			}
			return
		}

		if !c.attach(gen, conn) {
			conn.Close()
			return
		}

		err = c.readLoop(ctx, conn)
		c.detach(gen, conn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn().Err(err).Str("conn_id", conn.ID()).Msg("Connection lost, reconnecting")
	}
}

// stop marks the goroutine for gen as finished
func (c *Channel) stop(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.conn = nil
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if changed {
		c.notifyState(StateDisconnected)
	}
}

func (c *Channel) dialWithRetry(ctx context.Context, gen uint64) (Conn, error) {
	policy := c.opts.Policy
	c.transition(gen, StateConnecting)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		conn, err := c.dial(ctx, attempt)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Error().Err(err).Str("event", EventConnectError).Int("attempt", attempt).Msg("Connection attempt failed")
		if attempt == policy.MaxAttempts {
			break
		}

		timer := time.NewTimer(policy.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, ErrReconnectExhausted
}

func (c *Channel) dial(ctx context.Context, attempt int) (Conn, error) {
	c.mu.Lock()
	req := DialRequest{URL: c.opts.URL, Path: c.opts.Path, Token: c.token}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Policy.ConnectTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "realtime.dial", trace.WithAttributes(attribute.Int("attempt", attempt)))
	defer span.End()

	conn, err := c.transport.Dial(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		connectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failure")))
		return nil, err
	}
	connectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "success")))
	return conn, nil
}

// attach publishes conn as the live connection, unless Disconnect won the race
func (c *Channel) attach(gen uint64, conn Conn) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	changed := c.setStateLocked(StateConnected)
	subscribe := c.subscribed
	c.mu.Unlock()

	c.logger.Info().Str("conn_id", conn.ID()).Msg("Connected")
	if changed {
		c.notifyState(StateConnected)
	}
	if subscribe {
		c.emitSubscribe(conn)
	}
	return true
}

func (c *Channel) detach(gen uint64, conn Conn) {
	c.mu.Lock()
	changed := false
	if c.gen == gen && c.conn == conn {
		c.conn = nil
		changed = c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	conn.Close()
	if changed {
		c.notifyState(StateDisconnected)
	}
}

func (c *Channel) readLoop(ctx context.Context, conn Conn) error {
	for {
		ev, err := conn.Receive()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.handle(ctx, ev)
	}
}

func (c *Channel) handle(ctx context.Context, ev Event) {
	messagesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", ev.Name)))

	switch ev.Name {
	case EventTransactionsUpdate:
		c.deliver(ctx, ev.Payload)
	case EventError, EventConnectError:
		c.logger.Error().Str("event", ev.Name).RawJSON("payload", rawOrNull(ev.Payload)).Msg("Server reported an error")
	default:
		c.logger.Debug().Str("event", ev.Name).Msg("Ignoring event")
	}
}

// deliver writes the snapshot to the cache, then hands it to every listener in
// registration order. A snapshot that arrives after Disconnect is dropped
// whole; once accepted it reaches both the cache and the listeners.
func (c *Channel) deliver(ctx context.Context, payload json.RawMessage) {
	if ctx.Err() != nil {
		c.logger.Debug().Msg("Dropping transactions_update received after disconnect")
		return
	}

	ctx, span := tracer.Start(ctx, "realtime.deliver")
	defer span.End()

	var items []transaction.Transaction
	if err := json.Unmarshal(payload, &items); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		c.logger.Error().Err(err).Msg("Discarding undecodable transactions_update")
		return
	}
	if items == nil {
		items = []transaction.Transaction{}
	}
	items = transaction.NormalizeAll(items)
	span.SetAttributes(attribute.Int("transactions", len(items)))

	if data, err := json.Marshal(items); err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode transactions for cache")
	} else if _, err := c.store.Put(context.WithoutCancel(ctx), offline.KeyTransactions, data); err != nil {
		c.logger.Error().Err(err).Msg("Failed to write pushed transactions to cache")
	}

	c.logger.Debug().Int("transactions", len(items)).Int("listeners", c.listeners.Len()).Msg("Delivering transactions_update")
	for _, err := range c.listeners.Notify(items) {
		listenerFailures.Add(ctx, 1)
		span.RecordError(err)
		c.logger.Error().Err(err).Msg("Transactions listener failed")
	}
}

func (c *Channel) emitSubscribe(conn Conn) {
	if err := conn.Emit(EventSubscribeTransactions, nil); err != nil {
		c.logger.Error().Err(err).Msg("Failed to send subscribe_transactions")
		return
	}
	c.logger.Info().Msg("Subscribed to transactions")
}

func (c *Channel) transition(gen uint64, s State) {
	c.mu.Lock()
	changed := c.gen == gen && c.setStateLocked(s)
	c.mu.Unlock()
	if changed {
		c.notifyState(s)
	}
}

func (c *Channel) setStateLocked(s State) bool {
	if c.state == s {
		return false
	}
	c.state = s
	return true
}

func (c *Channel) notifyState(s State) {
	for _, err := range c.stateListeners.Notify(s) {
		c.logger.Error().Err(err).Msg("State listener failed")
	}
}

func rawOrNull(b json.RawMessage) []byte {
	if len(b) == 0 || !json.Valid(b) {
		return []byte("null")
	}
	return b
}
