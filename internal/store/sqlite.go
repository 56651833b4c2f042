// Package store provides storage backends for TapFlow.
//
// This file implements an SQLite-backed store for flow states, sessions, and
// transcripts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/tapflow/tapflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveFlowState stores or updates flow state for a participant.
func (s *SQLiteStore) SaveFlowState(state models.FlowState) error {
	var stateDataJSON interface{}
	if len(state.StateData) > 0 {
		data, err := json.Marshal(state.StateData)
		if err != nil {
			slog.Error("SQLiteStore SaveFlowState JSON marshal failed", "error", err, "participantID", state.ParticipantID)
			return fmt.Errorf("failed to marshal state data: %w", err)
		}
		stateDataJSON = string(data)
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO flow_states (participant_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		state.ParticipantID, string(state.FlowType), string(state.CurrentState), stateDataJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState failed", "error", err, "participantID", state.ParticipantID, "flowType", state.FlowType)
		return fmt.Errorf("failed to save flow state: %w", err)
	}
	slog.Debug("SQLiteStore SaveFlowState succeeded", "participantID", state.ParticipantID, "flowType", state.FlowType, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves flow state for a participant. Returns nil when no
// state exists.
func (s *SQLiteStore) GetFlowState(participantID, flowType string) (*models.FlowState, error) {
	var state models.FlowState
	var stateDataJSON sql.NullString
	var flowTypeStr, currentStateStr string
	err := s.db.QueryRow(`
		SELECT participant_id, flow_type, current_state, state_data, created_at, updated_at
		  FROM flow_states WHERE participant_id = ? AND flow_type = ?`,
		participantID, flowType).Scan(&state.ParticipantID, &flowTypeStr, &currentStateStr, &stateDataJSON, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetFlowState not found", "participantID", participantID, "flowType", flowType)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowState failed", "error", err, "participantID", participantID, "flowType", flowType)
		return nil, fmt.Errorf("failed to get flow state: %w", err)
	}
	state.FlowType = models.FlowType(flowTypeStr)
	state.CurrentState = models.ChatState(currentStateStr)
	if stateDataJSON.Valid && stateDataJSON.String != "" {
		if err := json.Unmarshal([]byte(stateDataJSON.String), &state.StateData); err != nil {
			slog.Error("SQLiteStore GetFlowState JSON unmarshal failed", "error", err, "participantID", participantID)
			return nil, fmt.Errorf("failed to unmarshal state data: %w", err)
		}
	}
	slog.Debug("SQLiteStore GetFlowState found", "participantID", participantID, "flowType", flowType, "state", state.CurrentState)
	return &state, nil
}

// DeleteFlowState removes flow state for a participant.
func (s *SQLiteStore) DeleteFlowState(participantID, flowType string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE participant_id = ? AND flow_type = ?`, participantID, flowType)
	if err != nil {
		slog.Error("SQLiteStore DeleteFlowState failed", "error", err, "participantID", participantID, "flowType", flowType)
		return fmt.Errorf("failed to delete flow state: %w", err)
	}
	slog.Debug("SQLiteStore DeleteFlowState succeeded", "participantID", participantID, "flowType", flowType)
	return nil
}

// CreateSession stores a new chat session.
func (s *SQLiteStore) CreateSession(session models.ChatSession) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_sessions (id, participant_id, name, state, crisis_detected, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.ParticipantID, nilIfEmpty(session.Name), string(session.State), session.CrisisDetected, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to create session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "sessionID", session.ID, "participantID", session.ParticipantID)
	return nil
}

// GetSession retrieves a chat session by ID. Returns nil when not found.
func (s *SQLiteStore) GetSession(sessionID string) (*models.ChatSession, error) {
	row := s.db.QueryRow(`
		SELECT id, participant_id, name, state, crisis_detected, created_at, updated_at
		  FROM chat_sessions WHERE id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &session, nil
}

// ListSessions returns all sessions for a participant, newest first.
func (s *SQLiteStore) ListSessions(participantID string) ([]models.ChatSession, error) {
	rows, err := s.db.Query(`
		SELECT id, participant_id, name, state, crisis_detected, created_at, updated_at
		  FROM chat_sessions WHERE participant_id = ? ORDER BY updated_at DESC`, participantID)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err, "participantID", participantID)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		session, err := scanSessionRows(rows)
		if err != nil {
			slog.Error("SQLiteStore ListSessions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListSessions rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	slog.Debug("SQLiteStore ListSessions succeeded", "participantID", participantID, "count", len(sessions))
	return sessions, nil
}

// UpdateSession replaces a stored session.
func (s *SQLiteStore) UpdateSession(session models.ChatSession) error {
	res, err := s.db.Exec(`
		UPDATE chat_sessions SET name = ?, state = ?, crisis_detected = ?, updated_at = ?
		 WHERE id = ?`,
		nilIfEmpty(session.Name), string(session.State), session.CrisisDetected, session.UpdatedAt, session.ID)
	if err != nil {
		slog.Error("SQLiteStore UpdateSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrSessionNotFound
	}
	slog.Debug("SQLiteStore UpdateSession succeeded", "sessionID", session.ID, "state", session.State)
	return nil
}

// DeleteSession removes a session and its transcript.
func (s *SQLiteStore) DeleteSession(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		slog.Error("SQLiteStore DeleteSession messages delete failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete messages for session %s: %w", sessionID, err)
	}
	if _, err := s.db.Exec(`DELETE FROM chat_sessions WHERE id = ?`, sessionID); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "sessionID", sessionID)
	return nil
}

// AddMessage appends a message to a session transcript.
func (s *SQLiteStore) AddMessage(msg models.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, session_id, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "sessionID", msg.SessionID)
		return fmt.Errorf("failed to insert message for session %s: %w", msg.SessionID, err)
	}
	slog.Debug("SQLiteStore AddMessage succeeded", "sessionID", msg.SessionID, "role", msg.Role)
	return nil
}

// GetMessages returns a session transcript in chronological order.
func (s *SQLiteStore) GetMessages(sessionID string) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, timestamp
		  FROM messages WHERE session_id = ? ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore GetMessages query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Timestamp); err != nil {
			slog.Error("SQLiteStore GetMessages scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Role = models.MessageRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetMessages rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	slog.Debug("SQLiteStore GetMessages succeeded", "sessionID", sessionID, "count", len(msgs))
	return msgs, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
