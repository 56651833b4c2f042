// Package models defines the core data structures for TapFlow.
//
// It includes types for chat sessions, messages, session context, and the
// API response envelope, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxUserMessageLength defines the maximum allowed length for a user turn, in runes
	MaxUserMessageLength = 1000
	// MinIntensity is the lowest accepted intensity rating
	MinIntensity = 0
	// MaxIntensity is the highest accepted intensity rating
	MaxIntensity = 10
	// MaxSetupStatements is the most setup statements one round carries
	MaxSetupStatements = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptyParticipant    = errors.New("participant_id cannot be empty")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrMessageTooLong      = errors.New("message exceeds maximum length")
	ErrIntensityOutOfRange = errors.New("intensity must be between 0 and 10")
	ErrSessionNotFound     = errors.New("session not found")
)

// MessageRole identifies who produced a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	// RoleSystem marks internal markers (crisis notices, retry notices)
	// that are stored but never sent to the director model as history.
	RoleSystem MessageRole = "system"
)

// Message is a single entry in a session transcript. Messages are immutable
// once created; history is only ever appended or window-truncated for
// prompting.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ChatSession is one guided tapping conversation.
type ChatSession struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Name          string    `json:"name,omitempty"`
	State         ChatState `json:"state"`
	// CrisisDetected is monotonic within a session: once true it is never
	// cleared by normal flow, only by an explicit override in the UI
	// collaborator (which creates a fresh session).
	CrisisDetected bool      `json:"crisis_detected"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionCreateRequest is the payload for creating a session.
type SessionCreateRequest struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name,omitempty"`
}

// Validate checks a SessionCreateRequest.
func (r *SessionCreateRequest) Validate() error {
	if r.ParticipantID == "" {
		return ErrEmptyParticipant
	}
	return nil
}

// ContextUpdate carries the structured fields a UI turn may submit alongside
// free text (slider ratings, captured answers). Pointer fields distinguish
// "absent" from zero values.
type ContextUpdate struct {
	Intensity    *int   `json:"intensity,omitempty"`
	Problem      string `json:"problem,omitempty"`
	Feeling      string `json:"feeling,omitempty"`
	BodyLocation string `json:"body_location,omitempty"`
}

// Validate rejects out-of-range update shapes before they reach the state
// machine.
func (u *ContextUpdate) Validate() error {
	if u == nil {
		return nil
	}
	if u.Intensity != nil && (*u.Intensity < MinIntensity || *u.Intensity > MaxIntensity) {
		return ErrIntensityOutOfRange
	}
	return nil
}

// TurnRequest is the payload for POST /sessions/{id}/turns.
type TurnRequest struct {
	Message string         `json:"message"`
	Context *ContextUpdate `json:"context,omitempty"`
}

// Validate checks a TurnRequest. An empty message is allowed when the turn
// carries an intensity rating (slider-only submissions).
func (r *TurnRequest) Validate() error {
	if r.Message == "" && (r.Context == nil || r.Context.Intensity == nil) {
		return ErrEmptyMessage
	}
	if len([]rune(r.Message)) > MaxUserMessageLength {
		return ErrMessageTooLong
	}
	return r.Context.Validate()
}

// Correction reports one typo substitution applied before prompting, so the
// UI can surface a "did you mean" notice.
type Correction struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
}

// TurnResult is what one processed turn returns to the UI collaborator.
type TurnResult struct {
	Messages       []Message      `json:"messages"`
	State          ChatState      `json:"state"`
	Context        SessionContext `json:"context"`
	CrisisDetected bool           `json:"crisis_detected"`
	Corrections    []Correction   `json:"corrections,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRateLimited indicates the caller exceeded the request rate.
	APIStatusRateLimited APIStatus = "rate_limited"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// RateLimited creates the distinct rate-limited API response.
func RateLimited(message string) APIResponse {
	return APIResponse{Status: string(APIStatusRateLimited), Message: message}
}
