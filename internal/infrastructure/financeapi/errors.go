package financeapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyToken is returned when a login response carries no access token
	ErrEmptyToken = errors.New("login response has no access token")
	// ErrEmptyRecord is a successful response that holds no record (null or no id)
	ErrEmptyRecord = errors.New("response holds no record")
)

// NetworkError is a request that never produced a response (timeout, DNS, refused connection)
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is a response with a failure status. Message holds the
// server's explanation when it sent one.
type ServerError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API request failed with status %d", e.StatusCode)
}

// IsNetworkError reports whether err is or wraps a NetworkError
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsServerError reports whether err is or wraps a ServerError
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// IsUnauthorized reports whether the server rejected the credential
func IsUnauthorized(err error) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
	}
	return false
}
