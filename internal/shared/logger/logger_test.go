package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New("debug", "json")
	if log.GetLevel() != zerolog.DebugLevel {
		t.Errorf("GetLevel() = %v, want debug", log.GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"chatty", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	retrieved := FromContext(ctx)
	retrieved.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}

func TestWithFieldsAndComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := Component(WithFields(NewWithWriter(buf), map[string]interface{}{"cache_key": "cachedBudgets"}), "engine")

	log.Info().Msg("loaded")

	output := buf.String()
	if !strings.Contains(output, "cachedBudgets") {
		t.Errorf("Expected output to contain cache_key field, got: %s", output)
	}
	if !strings.Contains(output, `"component":"engine"`) {
		t.Errorf("Expected output to contain component field, got: %s", output)
	}
}

func TestTokenPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "null"},
		{"abcd", "ab..."},
		{"eyJhbGciOiJIUzI1NiJ9.payload", "eyJhbGciOi..."},
	}

	for _, tt := range tests {
		if got := TokenPrefix(tt.input); got != tt.want {
			t.Errorf("TokenPrefix(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
