package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatalf("SignedString() failed: %v", err)
	}
	return token
}

func TestCredentials_SetNotifies(t *testing.T) {
	c := NewCredentials("")

	var got []string
	cancel := c.Subscribe(func(token string) { got = append(got, token) })

	c.Set("first")
	c.Set("first")
	c.Set("second")
	c.Clear()
	cancel()
	c.Set("after cancel")

	want := []string{"first", "second", ""}
	if len(got) != len(want) {
		t.Fatalf("notifications = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %q, want %q", i, got[i], want[i])
		}
	}
	if c.Token() != "after cancel" {
		t.Errorf("Token() = %q", c.Token())
	}
}

func TestExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)

	tests := []struct {
		name    string
		token   string
		want    time.Time
		wantErr error
	}{
		{
			name:  "exp claim",
			token: signed(t, jwt.RegisteredClaims{Subject: "maria", ExpiresAt: jwt.NewNumericDate(exp)}),
			want:  exp,
		},
		{
			name:    "no exp",
			token:   signed(t, jwt.RegisteredClaims{Subject: "maria"}),
			wantErr: ErrNoExpiry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expiry(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expiry() error = %v, want %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Expiry() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := Expiry("not-a-jwt"); err == nil {
		t.Error("Expiry() accepted a malformed token")
	}
}

func TestCredentials_Expired(t *testing.T) {
	now := time.Now()
	past := signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))})
	future := signed(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	opaque := "opaque-session-token"

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"expired", past, true},
		{"valid", future, false},
		{"opaque token never expires", opaque, false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewCredentials(tt.token).Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
