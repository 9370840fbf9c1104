package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"finsync/internal/domain/realtime"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultPath      = "/socket.io"
	writeWait        = 10 * time.Second
	handshakeTimeout = 20 * time.Second
)

// ErrConnectRejected is returned when the server refuses the namespace connect
var ErrConnectRejected = errors.New("socket.io connect rejected")

// Transport dials Socket.IO servers over websockets
type Transport struct {
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// Ensure Transport implements realtime.Transport
var _ realtime.Transport = (*Transport)(nil)

// NewTransport creates a websocket transport
func NewTransport(logger zerolog.Logger) *Transport {
	return &Transport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger.With().Str("component", "socketio").Logger(),
	}
}

// Endpoint builds the websocket URL for base and path. The token travels in
// the query string as well as in the Authorization header.
func Endpoint(base, path, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid push url %q: %w", base, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported push url scheme %q", u.Scheme)
	}

	if path == "" {
		path = defaultPath
	}
	u.Path = strings.TrimRight(path, "/") + "/"

	q := url.Values{}
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the websocket and completes the Engine.IO and Socket.IO
// handshakes before returning
func (t *Transport) Dial(ctx context.Context, req realtime.DialRequest) (realtime.Conn, error) {
	endpoint, err := Endpoint(req.URL, req.Path, req.Token)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if req.Token != "" {
		header.Set("Authorization", "Bearer "+req.Token)
	}

	ws, resp, err := t.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket upgrade failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial push server: %w", err)
	}

	conn := &Conn{ws: ws, logger: t.logger}

	// Closing the socket unblocks the handshake reads when ctx ends first
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	err = conn.handshake(ctx, req.Token)
	if !stop() {
		ws.Close()
		return nil, fmt.Errorf("socket.io handshake aborted: %w", ctx.Err())
	}
	if err != nil {
		ws.Close()
		return nil, err
	}

	t.logger.Debug().Str("sid", conn.sid).Dur("ping_interval", conn.pingInterval).Msg("Socket.IO session open")
	return conn, nil
}

// Conn is an established Socket.IO session on the default namespace
type Conn struct {
	ws     *websocket.Conn
	logger zerolog.Logger

	sid          string
	pingInterval time.Duration
	pingTimeout  time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Ensure Conn implements realtime.Conn
var _ realtime.Conn = (*Conn)(nil)

func (c *Conn) handshake(ctx context.Context, token string) error {
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetReadDeadline(deadline)
	}

	open, err := c.readPacket()
	if err != nil {
		return fmt.Errorf("failed to read open packet: %w", err)
	}
	if open.Engine != engineOpen {
		return fmt.Errorf("%w: expected open packet, got %q", ErrMalformedPacket, open.Engine)
	}

	var payload OpenPayload
	if err := json.Unmarshal(open.Data, &payload); err != nil {
		return fmt.Errorf("%w: open payload: %v", ErrMalformedPacket, err)
	}
	c.pingInterval = time.Duration(payload.PingInterval) * time.Millisecond
	c.pingTimeout = time.Duration(payload.PingTimeout) * time.Millisecond

	var auth map[string]string
	if token != "" {
		auth = map[string]string{"token": token}
	}
	frame, err := EncodeConnect(auth)
	if err != nil {
		return err
	}
	if err := c.write(frame); err != nil {
		return fmt.Errorf("failed to send connect: %w", err)
	}

	for {
		p, err := c.readPacket()
		if err != nil {
			return fmt.Errorf("failed to read connect ack: %w", err)
		}

		switch {
		case p.Engine == enginePing:
			if err := c.write(append([]byte{enginePong}, p.Data...)); err != nil {
				return err
			}
		case p.Engine == engineMessage && p.Socket == socketConnect:
			var ack ConnectPayload
			if len(p.Data) > 0 {
				json.Unmarshal(p.Data, &ack)
			}
			c.sid = ack.SID
			if c.sid == "" {
				c.sid = payload.SID
			}
			c.ws.SetReadDeadline(time.Time{})
			return nil
		case p.Engine == engineMessage && p.Socket == socketConnectError:
			var ack ConnectPayload
			json.Unmarshal(p.Data, &ack)
			return fmt.Errorf("%w: %s", ErrConnectRejected, ack.Message)
		case p.Engine == engineClose:
			return fmt.Errorf("%w: server closed during handshake", realtime.ErrConnClosed)
		}
	}
}

// ID returns the Socket.IO session id
func (c *Conn) ID() string {
	return c.sid
}

// Emit sends an event. A nil payload sends the event name alone.
func (c *Conn) Emit(event string, payload any) error {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return c.write(frame)
}

// Receive answers heartbeats until an event arrives. Server disconnects,
// missed heartbeats and socket errors all end the session.
func (c *Conn) Receive() (realtime.Event, error) {
	for {
		c.extendDeadline()

		p, err := c.readPacket()
		if err != nil {
			if errors.Is(err, ErrEmptyPacket) || errors.Is(err, ErrMalformedPacket) {
				c.logger.Debug().Err(err).Msg("Skipping unreadable packet")
				continue
			}
			return realtime.Event{}, fmt.Errorf("%w: %v", realtime.ErrConnClosed, err)
		}

		switch p.Engine {
		case enginePing:
			if err := c.write(append([]byte{enginePong}, p.Data...)); err != nil {
				return realtime.Event{}, fmt.Errorf("%w: pong failed: %v", realtime.ErrConnClosed, err)
			}
		case engineClose:
			return realtime.Event{}, fmt.Errorf("%w: server closed the session", realtime.ErrConnClosed)
		case engineMessage:
			switch p.Socket {
			case socketEvent:
				name, payload, err := DecodeEvent(p.Data)
				if err != nil {
					c.logger.Debug().Err(err).Msg("Skipping malformed event")
					continue
				}
				return realtime.Event{Name: name, Payload: payload}, nil
			case socketDisconnect:
				return realtime.Event{}, fmt.Errorf("%w: server disconnected the namespace", realtime.ErrConnClosed)
			case socketConnectError:
				payload := json.RawMessage(p.Data)
				if !json.Valid(payload) {
					payload = json.RawMessage("null")
				}
				return realtime.Event{Name: realtime.EventConnectError, Payload: payload}, nil
			}
		}
	}
}

// Close leaves the namespace and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.write([]byte{engineMessage, socketDisconnect})
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readPacket() (Packet, error) {
	for {
		typ, raw, err := c.ws.ReadMessage()
		if err != nil {
			return Packet{}, err
		}
		if typ != websocket.TextMessage {
			continue
		}
		return ParsePacket(raw)
	}
}

func (c *Conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// extendDeadline expects a ping within one interval plus the timeout
func (c *Conn) extendDeadline() {
	if c.pingInterval <= 0 {
		return
	}
	c.ws.SetReadDeadline(time.Now().Add(c.pingInterval + c.pingTimeout))
}
