// Package notify delivers crisis alerts to the configured support contact.
//
// The flow engine calls it at most once per session when crisis language is
// detected. Delivery failures are the caller's to log; they must never fail
// a conversation turn.
package notify

import (
	"context"
	"log/slog"
)

// Notifier sends an out-of-band alert that a session raised the crisis flag.
type Notifier interface {
	SendCrisisAlert(ctx context.Context, sessionID string) error
}

// NoopNotifier is used when no alerting transport is configured. It logs at
// warn level so the event is still visible in operational logs.
type NoopNotifier struct{}

// NewNoopNotifier creates a notifier that only logs.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

// SendCrisisAlert records the alert in the log and reports success.
func (n *NoopNotifier) SendCrisisAlert(ctx context.Context, sessionID string) error {
	slog.Warn("NoopNotifier.SendCrisisAlert: crisis alert with no transport configured", "sessionID", sessionID)
	return nil
}
