// Package ratelimit provides a coarse fixed-window request limiter keyed by
// an opaque client identifier. It protects the turn endpoint from runaway
// clients; it is not a fairness scheduler.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Defaults match the deployed limits: 10 turns per minute per client.
const (
	DefaultLimit  = 10
	DefaultWindow = 60 * time.Second
)

type windowEntry struct {
	count       int
	windowStart time.Time
}

// Limiter is a fixed-window counter per client. Windows reset wholesale
// rather than sliding; the coarseness is acceptable for abuse protection.
type Limiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	clients   map[string]*windowEntry
	now       func() time.Time
	lastPrune time.Time
}

// NewLimiter creates a limiter allowing limit requests per window. Non-positive
// arguments fall back to the defaults.
func NewLimiter(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// Allow reports whether a request from clientID may proceed, counting it if
// so. Excess requests are rejected, never queued. Expired entries are pruned
// opportunistically, at most once per window, so the client map stays bounded
// on long-running processes.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) >= l.window {
		l.pruneLocked(now)
		l.lastPrune = now
	}

	e, ok := l.clients[clientID]
	if !ok || now.Sub(e.windowStart) >= l.window {
		l.clients[clientID] = &windowEntry{count: 1, windowStart: now}
		return true
	}
	if e.count >= l.limit {
		slog.Debug("Limiter.Allow: rejecting over-limit client", "clientID", clientID, "count", e.count)
		return false
	}
	e.count++
	return true
}

// Prune drops window entries older than one full window. Allow calls it
// on its own; exposed for callers that want an explicit sweep.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for id, e := range l.clients {
		if e.windowStart.Before(cutoff) {
			delete(l.clients, id)
		}
	}
}
