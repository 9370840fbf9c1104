package middleware

import (
	"net"
	"net/http"
	"strings"
)

// AllowedHosts rejects requests whose Host header is not in hosts.
// The status server binds to loopback; this keeps DNS-rebound pages from reading it.
func AllowedHosts(hosts []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsHostAllowed(r.Host, hosts) {
				http.Error(w, "Invalid host", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsHostAllowed compares hostnames with ports ignored.
// An empty allow list allows every host.
func IsHostAllowed(host string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}

	name := hostname(host)
	for _, allowed := range allowedHosts {
		if name == hostname(allowed) {
			return true
		}
	}
	return false
}

func hostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
