package socketio

import (
	"errors"
	"testing"
)

func TestParsePacket(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantEngine byte
		wantSocket byte
		wantData   string
		wantErr    error
	}{
		{"open", `0{"sid":"abc"}`, engineOpen, 0, `{"sid":"abc"}`, nil},
		{"ping", "2", enginePing, 0, "", nil},
		{"ping probe", "2probe", enginePing, 0, "probe", nil},
		{"event", `42["transactions_update",[]]`, engineMessage, socketEvent, `["transactions_update",[]]`, nil},
		{"event with ack id", `4217["x"]`, engineMessage, socketEvent, `["x"]`, nil},
		{"event in namespace", `42/admin,["x"]`, engineMessage, socketEvent, `["x"]`, nil},
		{"connect ack", `40{"sid":"s1"}`, engineMessage, socketConnect, `{"sid":"s1"}`, nil},
		{"disconnect", "41", engineMessage, socketDisconnect, "", nil},
		{"empty", "", 0, 0, "", ErrEmptyPacket},
		{"message without type", "4", 0, 0, "", ErrMalformedPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePacket([]byte(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParsePacket() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePacket() error = %v", err)
			}
			if p.Engine != tt.wantEngine || p.Socket != tt.wantSocket || string(p.Data) != tt.wantData {
				t.Errorf("ParsePacket() = (%q, %q, %q), want (%q, %q, %q)",
					p.Engine, p.Socket, p.Data, tt.wantEngine, tt.wantSocket, tt.wantData)
			}
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	frame, err := EncodeEvent("subscribe_transactions", nil)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if got := string(frame); got != `42["subscribe_transactions"]` {
		t.Errorf("EncodeEvent() = %s", got)
	}

	frame, err = EncodeEvent("ping_me", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if got := string(frame); got != `42["ping_me",{"n":1}]` {
		t.Errorf("EncodeEvent() = %s", got)
	}
}

func TestEncodeConnect(t *testing.T) {
	frame, _ := EncodeConnect(nil)
	if string(frame) != "40" {
		t.Errorf("EncodeConnect(nil) = %s, want 40", frame)
	}

	frame, _ = EncodeConnect(map[string]string{"token": "abc"})
	if string(frame) != `40{"token":"abc"}` {
		t.Errorf("EncodeConnect(auth) = %s", frame)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantName    string
		wantPayload string
		wantErr     bool
	}{
		{"with payload", `["transactions_update",[{"id":1}]]`, "transactions_update", `[{"id":1}]`, false},
		{"name only", `["ready"]`, "ready", "null", false},
		{"empty array", `[]`, "", "", true},
		{"numeric name", `[1,2]`, "", "", true},
		{"not json", `nope`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, payload, err := DecodeEvent([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if name != tt.wantName || string(payload) != tt.wantPayload {
				t.Errorf("DecodeEvent() = (%q, %s), want (%q, %s)", name, payload, tt.wantName, tt.wantPayload)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base, path, token string
		want              string
		wantErr           bool
	}{
		{"http://10.0.0.1:8080", "", "tok", "ws://10.0.0.1:8080/socket.io/?EIO=4&token=tok&transport=websocket", false},
		{"https://api.example.com", "/push/", "", "wss://api.example.com/push/?EIO=4&transport=websocket", false},
		{"ftp://example.com", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := Endpoint(tt.base, tt.path, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Endpoint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Endpoint() = %s, want %s", got, tt.want)
			}
		})
	}
}
