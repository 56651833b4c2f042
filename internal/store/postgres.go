// Package store provides storage backends for TapFlow.
//
// This file implements a PostgreSQL-backed store for flow states, sessions,
// and transcripts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/tapflow/tapflow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveFlowState stores or updates flow state for a participant.
func (s *PostgresStore) SaveFlowState(state models.FlowState) error {
	var stateDataJSON interface{}
	if len(state.StateData) > 0 {
		data, err := json.Marshal(state.StateData)
		if err != nil {
			slog.Error("PostgresStore SaveFlowState JSON marshal failed", "error", err, "participantID", state.ParticipantID)
			return fmt.Errorf("failed to marshal state data: %w", err)
		}
		stateDataJSON = string(data)
	}
	_, err := s.db.Exec(`
		INSERT INTO flow_states (participant_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (participant_id, flow_type)
		DO UPDATE SET current_state = EXCLUDED.current_state, state_data = EXCLUDED.state_data, updated_at = EXCLUDED.updated_at`,
		state.ParticipantID, string(state.FlowType), string(state.CurrentState), stateDataJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState failed", "error", err, "participantID", state.ParticipantID, "flowType", state.FlowType)
		return fmt.Errorf("failed to save flow state: %w", err)
	}
	slog.Debug("PostgresStore SaveFlowState succeeded", "participantID", state.ParticipantID, "flowType", state.FlowType, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves flow state for a participant. Returns nil when no
// state exists.
func (s *PostgresStore) GetFlowState(participantID, flowType string) (*models.FlowState, error) {
	var state models.FlowState
	var stateDataJSON sql.NullString
	var flowTypeStr, currentStateStr string
	err := s.db.QueryRow(`
		SELECT participant_id, flow_type, current_state, state_data, created_at, updated_at
		  FROM flow_states WHERE participant_id = $1 AND flow_type = $2`,
		participantID, flowType).Scan(&state.ParticipantID, &flowTypeStr, &currentStateStr, &stateDataJSON, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetFlowState not found", "participantID", participantID, "flowType", flowType)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowState failed", "error", err, "participantID", participantID, "flowType", flowType)
		return nil, fmt.Errorf("failed to get flow state: %w", err)
	}
	state.FlowType = models.FlowType(flowTypeStr)
	state.CurrentState = models.ChatState(currentStateStr)
	if stateDataJSON.Valid && stateDataJSON.String != "" {
		if err := json.Unmarshal([]byte(stateDataJSON.String), &state.StateData); err != nil {
			slog.Error("PostgresStore GetFlowState JSON unmarshal failed", "error", err, "participantID", participantID)
			return nil, fmt.Errorf("failed to unmarshal state data: %w", err)
		}
	}
	slog.Debug("PostgresStore GetFlowState found", "participantID", participantID, "flowType", flowType, "state", state.CurrentState)
	return &state, nil
}

// DeleteFlowState removes flow state for a participant.
func (s *PostgresStore) DeleteFlowState(participantID, flowType string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE participant_id = $1 AND flow_type = $2`, participantID, flowType)
	if err != nil {
		slog.Error("PostgresStore DeleteFlowState failed", "error", err, "participantID", participantID, "flowType", flowType)
		return fmt.Errorf("failed to delete flow state: %w", err)
	}
	slog.Debug("PostgresStore DeleteFlowState succeeded", "participantID", participantID, "flowType", flowType)
	return nil
}

// CreateSession stores a new chat session.
func (s *PostgresStore) CreateSession(session models.ChatSession) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_sessions (id, participant_id, name, state, crisis_detected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.ParticipantID, nilIfEmpty(session.Name), string(session.State), session.CrisisDetected, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	slog.Debug("PostgresStore CreateSession succeeded", "sessionID", session.ID, "participantID", session.ParticipantID)
	return nil
}

// GetSession retrieves a chat session by ID. Returns nil when not found.
func (s *PostgresStore) GetSession(sessionID string) (*models.ChatSession, error) {
	row := s.db.QueryRow(`
		SELECT id, participant_id, name, state, crisis_detected, created_at, updated_at
		  FROM chat_sessions WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &session, nil
}

// ListSessions returns all sessions for a participant, newest first.
func (s *PostgresStore) ListSessions(participantID string) ([]models.ChatSession, error) {
	rows, err := s.db.Query(`
		SELECT id, participant_id, name, state, crisis_detected, created_at, updated_at
		  FROM chat_sessions WHERE participant_id = $1 ORDER BY updated_at DESC`, participantID)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		session, err := scanSessionRows(rows)
		if err != nil {
			slog.Error("PostgresStore ListSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("PostgresStore ListSessions succeeded", "participantID", participantID, "count", len(sessions))
	return sessions, nil
}

// UpdateSession replaces a stored session.
func (s *PostgresStore) UpdateSession(session models.ChatSession) error {
	res, err := s.db.Exec(`
		UPDATE chat_sessions SET name = $1, state = $2, crisis_detected = $3, updated_at = $4
		 WHERE id = $5`,
		nilIfEmpty(session.Name), string(session.State), session.CrisisDetected, session.UpdatedAt, session.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSessionNotFound
	}
	slog.Debug("PostgresStore UpdateSession succeeded", "sessionID", session.ID, "state", session.State)
	return nil
}

// DeleteSession removes a session and its transcript.
func (s *PostgresStore) DeleteSession(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = $1`, sessionID); err != nil {
		slog.Error("PostgresStore DeleteSession messages delete failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete messages for session %s: %w", sessionID, err)
	}
	if _, err := s.db.Exec(`DELETE FROM chat_sessions WHERE id = $1`, sessionID); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "sessionID", sessionID)
	return nil
}

// AddMessage appends a message to a session transcript.
func (s *PostgresStore) AddMessage(msg models.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, session_id, role, content, timestamp)
		VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "sessionID", msg.SessionID)
		return fmt.Errorf("failed to insert message for session %s: %w", msg.SessionID, err)
	}
	slog.Debug("PostgresStore AddMessage succeeded", "sessionID", msg.SessionID, "role", msg.Role)
	return nil
}

// GetMessages returns a session transcript in chronological order.
func (s *PostgresStore) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, timestamp
		  FROM messages WHERE session_id = $1 ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		slog.Error("PostgresStore GetMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Timestamp); err != nil {
			slog.Error("PostgresStore GetMessages scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = models.MessageRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	slog.Debug("PostgresStore GetMessages succeeded", "sessionID", sessionID, "count", len(msgs))
	return msgs, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
