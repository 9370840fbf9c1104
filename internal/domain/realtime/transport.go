package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// Events exchanged with the push server
const (
	EventTransactionsUpdate    = "transactions_update"
	EventSubscribeTransactions = "subscribe_transactions"
	EventConnectError          = "connect_error"
	EventError                 = "error"
)

var (
	ErrReconnectExhausted = errors.New("reconnection attempts exhausted")
	ErrConnClosed         = errors.New("connection closed")
)

// Event is one named message received from the server
type Event struct {
	Name    string
	Payload json.RawMessage
}

// DialRequest describes one connection attempt
type DialRequest struct {
	URL   string
	Path  string
	Token string
}

// Transport opens authenticated connections to the push server
type Transport interface {
	// Dial must return once the server has accepted the handshake,
	// or fail when ctx expires.
	Dial(ctx context.Context, req DialRequest) (Conn, error)
}

// Conn is an established push connection.
// Emit may be called concurrently with Receive.
type Conn interface {
	ID() string
	Emit(event string, payload any) error
	// Receive blocks until the next event arrives or the connection is closed
	Receive() (Event, error)
	Close() error
}

// CredentialProvider supplies the bearer token and announces changes to it
type CredentialProvider interface {
	Token() string
	// Subscribe registers fn for token changes and returns a function that cancels it
	Subscribe(fn func(token string)) func()
}
