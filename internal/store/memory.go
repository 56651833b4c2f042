// Package store provides storage backends for TapFlow.
//
// This file implements an in-memory store used in tests and single-process
// development runs. Data does not survive a restart.
package store

import (
	"sort"
	"sync"

	"github.com/tapflow/tapflow/internal/models"
)

// InMemoryStore is a mutex-guarded map-backed Store implementation.
type InMemoryStore struct {
	mu         sync.RWMutex
	flowStates map[string]models.FlowState   // key: participantID + "|" + flowType
	sessions   map[string]models.ChatSession // key: session ID
	messages   map[string][]models.Message   // key: session ID
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flowStates: make(map[string]models.FlowState),
		sessions:   make(map[string]models.ChatSession),
		messages:   make(map[string][]models.Message),
	}
}

func flowStateKey(participantID, flowType string) string {
	return participantID + "|" + flowType
}

// SaveFlowState stores or updates flow state for a participant.
func (s *InMemoryStore) SaveFlowState(state models.FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flowStates[flowStateKey(state.ParticipantID, string(state.FlowType))] = state
	return nil
}

// GetFlowState retrieves flow state for a participant. Returns nil when no
// state exists, matching the persistent backends.
func (s *InMemoryStore) GetFlowState(participantID, flowType string) (*models.FlowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.flowStates[flowStateKey(participantID, flowType)]
	if !ok {
		return nil, nil
	}
	cp := state
	return &cp, nil
}

// DeleteFlowState removes flow state for a participant.
func (s *InMemoryStore) DeleteFlowState(participantID, flowType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flowStates, flowStateKey(participantID, flowType))
	return nil
}

// CreateSession stores a new chat session.
func (s *InMemoryStore) CreateSession(session models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

// GetSession retrieves a chat session by ID. Returns nil when not found.
func (s *InMemoryStore) GetSession(sessionID string) (*models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := session
	return &cp, nil
}

// ListSessions returns all sessions for a participant, newest first.
func (s *InMemoryStore) ListSessions(participantID string) ([]models.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ChatSession
	for _, session := range s.sessions {
		if session.ParticipantID == participantID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// UpdateSession replaces a stored session.
func (s *InMemoryStore) UpdateSession(session models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return models.ErrSessionNotFound
	}
	s.sessions[session.ID] = session
	return nil
}

// DeleteSession removes a session and its transcript.
func (s *InMemoryStore) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

// AddMessage appends a message to a session transcript.
func (s *InMemoryStore) AddMessage(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

// GetMessages returns a session transcript in insertion order.
func (s *InMemoryStore) GetMessages(sessionID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
