// Package utils provides helpers shared by the HTTP layer: client IP
// extraction, JSON responses, pagination and retry with backoff.
package utils

import (
	"net"
	"net/http"
	"strings"
)

// ExtractClientIP returns the originating client IP. It checks, in order:
// the first X-Forwarded-For entry, X-Real-IP, then RemoteAddr without its
// port. The service runs behind a reverse proxy, which sets these headers.
func ExtractClientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		// "client, proxy1, proxy2"
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
