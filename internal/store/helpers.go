package store

import (
	"database/sql"

	"github.com/tapflow/tapflow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanSession scans a ChatSession from a single sql.Row.
func scanSession(row *sql.Row) (models.ChatSession, error) {
	var s models.ChatSession
	var name sql.NullString
	var state string
	err := row.Scan(&s.ID, &s.ParticipantID, &name, &state, &s.CrisisDetected, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.Name = name.String
	s.State = models.ChatState(state)
	return s, nil
}

// scanSessionRows scans a ChatSession from sql.Rows.
func scanSessionRows(rows *sql.Rows) (models.ChatSession, error) {
	var s models.ChatSession
	var name sql.NullString
	var state string
	err := rows.Scan(&s.ID, &s.ParticipantID, &name, &state, &s.CrisisDetected, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	s.Name = name.String
	s.State = models.ChatState(state)
	return s, nil
}
