package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// loggingMiddleware records one line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Server: request handled", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(started))
	})
}

// clientID extracts the opaque per-client identifier the rate limiter keys
// on: X-Forwarded-For (first hop), then X-Real-IP, then the remote address.
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
