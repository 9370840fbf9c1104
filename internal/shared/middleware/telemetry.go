package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Telemetry wraps a handler with otelhttp server instrumentation
func Telemetry(operation string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(operation)
}
