// Package socketio speaks the Socket.IO v5 protocol over an Engine.IO v4
// websocket transport, the subset needed by a push client: handshake,
// heartbeat, events and server-initiated disconnects.
package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Engine.IO packet types
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineNoop    byte = '6'
)

// Socket.IO packet types, carried inside Engine.IO messages
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketConnectError byte = '4'
)

var (
	ErrEmptyPacket     = errors.New("empty packet")
	ErrMalformedPacket = errors.New("malformed packet")
)

// Packet is one decoded frame. Socket is zero unless Engine is a message.
type Packet struct {
	Engine byte
	Socket byte
	Data   []byte
}

// OpenPayload is the Engine.IO handshake sent by the server
type OpenPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// ConnectPayload is the body of a namespace connect acknowledgement
type ConnectPayload struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}

// ParsePacket decodes a websocket text frame
func ParsePacket(raw []byte) (Packet, error) {
	if len(raw) == 0 {
		return Packet{}, ErrEmptyPacket
	}

	p := Packet{Engine: raw[0], Data: raw[1:]}
	if p.Engine != engineMessage {
		return p, nil
	}
	if len(p.Data) == 0 {
		return Packet{}, fmt.Errorf("%w: message without socket type", ErrMalformedPacket)
	}

	p.Socket = p.Data[0]
	p.Data = stripNamespace(p.Data[1:])
	return p, nil
}

// stripNamespace drops a leading "/nsp," and an ack id
func stripNamespace(data []byte) []byte {
	if len(data) > 0 && data[0] == '/' {
		if i := bytes.IndexByte(data, ','); i >= 0 {
			data = data[i+1:]
		} else {
			data = nil
		}
	}
	i := 0
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	return data[i:]
}

// EncodeEvent builds a 42["name",payload] frame. A nil payload sends the name only.
func EncodeEvent(name string, payload any) ([]byte, error) {
	args := []any{name}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", name, err)
	}
	return append([]byte{engineMessage, socketEvent}, body...), nil
}

// EncodeConnect builds the namespace connect frame, with auth when provided
func EncodeConnect(auth map[string]string) ([]byte, error) {
	frame := []byte{engineMessage, socketConnect}
	if len(auth) == 0 {
		return frame, nil
	}
	body, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("failed to encode connect auth: %w", err)
	}
	return append(frame, body...), nil
}

// DecodeEvent splits an event body into its name and first argument.
// A missing argument is returned as JSON null.
func DecodeEvent(data []byte) (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: event without name", ErrMalformedPacket)
	}

	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name is not a string", ErrMalformedPacket)
	}
	if len(args) == 1 {
		return name, json.RawMessage("null"), nil
	}
	return name, args[1], nil
}
