// Package store provides storage backends for TapFlow.
//
// It includes an in-memory store for tests and development, plus SQLite and
// PostgreSQL backends for persistent deployments. All backends implement the
// Store interface; the flow engine and API layer never see a concrete type.
package store

import (
	"strings"

	"github.com/tapflow/tapflow/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	// DSN is the data source name: a file path for SQLite, a connection
	// string for PostgreSQL.
	DSN string
}

// Option defines a functional option for store configuration.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DSNType identifies which backend a DSN selects.
type DSNType string

const (
	DSNTypeSQLite   DSNType = "sqlite"
	DSNTypePostgres DSNType = "postgres"
)

// DetectDSNType classifies a DSN string. Connection strings with a postgres
// scheme or key=value pairs select PostgreSQL; everything else is treated as
// a SQLite file path.
func DetectDSNType(dsn string) DSNType {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Store defines the persistence operations TapFlow needs. Implementations
// must be safe for concurrent use.
type Store interface {
	// Flow state persistence for the conversation state machine.
	SaveFlowState(state models.FlowState) error
	GetFlowState(participantID, flowType string) (*models.FlowState, error)
	DeleteFlowState(participantID, flowType string) error

	// Chat session lifecycle.
	CreateSession(session models.ChatSession) error
	GetSession(sessionID string) (*models.ChatSession, error)
	ListSessions(participantID string) ([]models.ChatSession, error)
	UpdateSession(session models.ChatSession) error
	DeleteSession(sessionID string) error

	// Transcript persistence. Messages are append-only.
	AddMessage(msg models.Message) error
	GetMessages(sessionID string) ([]models.Message, error)

	Close() error
}
