package models

import "time"

// FlowState represents the current state of a participant in a conversation flow.
type FlowState struct {
	ParticipantID string            `json:"participant_id"`
	FlowType      FlowType          `json:"flow_type"`
	CurrentState  ChatState         `json:"current_state"`
	StateData     map[string]string `json:"state_data,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
