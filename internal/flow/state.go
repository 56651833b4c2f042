package flow

import (
	"context"

	"github.com/tapflow/tapflow/internal/models"
)

// StateManager defines how conversation state and per-session data blobs are
// persisted between turns. Keys are session IDs; one flow state row exists
// per (session, flow type) pair.
type StateManager interface {
	GetCurrentState(ctx context.Context, sessionID string, flowType models.FlowType) (models.ChatState, error)
	SetCurrentState(ctx context.Context, sessionID string, flowType models.FlowType, state models.ChatState) error
	GetStateData(ctx context.Context, sessionID string, flowType models.FlowType, key models.DataKey) (string, error)
	SetStateData(ctx context.Context, sessionID string, flowType models.FlowType, key models.DataKey, value string) error
	ResetState(ctx context.Context, sessionID string, flowType models.FlowType) error
}
