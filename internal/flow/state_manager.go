// Package flow provides concrete implementations of state management.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/tapflow/tapflow/internal/models"
	"github.com/tapflow/tapflow/internal/store"
)

// StoreBasedStateManager implements StateManager using a Store backend.
type StoreBasedStateManager struct {
	store store.Store
}

// NewStoreBasedStateManager creates a new StateManager backed by a Store.
func NewStoreBasedStateManager(st store.Store) *StoreBasedStateManager {
	slog.Debug("Creating StoreBasedStateManager")
	return &StoreBasedStateManager{store: st}
}

// GetCurrentState retrieves the current state for a session in a flow.
func (sm *StoreBasedStateManager) GetCurrentState(ctx context.Context, sessionID string, flowType models.FlowType) (models.ChatState, error) {
	slog.Debug("StateManager GetCurrentState", "sessionID", sessionID, "flowType", flowType)

	flowState, err := sm.store.GetFlowState(sessionID, string(flowType))
	if err != nil {
		slog.Error("StateManager GetCurrentState error", "error", err, "sessionID", sessionID, "flowType", flowType)
		return "", err
	}

	if flowState == nil {
		slog.Debug("StateManager GetCurrentState not found", "sessionID", sessionID, "flowType", flowType)
		return "", nil
	}

	slog.Debug("StateManager GetCurrentState found", "sessionID", sessionID, "flowType", flowType, "state", flowState.CurrentState)
	return flowState.CurrentState, nil
}

// SetCurrentState updates the current state for a session in a flow.
func (sm *StoreBasedStateManager) SetCurrentState(ctx context.Context, sessionID string, flowType models.FlowType, state models.ChatState) error {
	slog.Debug("StateManager SetCurrentState", "sessionID", sessionID, "flowType", flowType, "state", state)

	// Get existing state or create new one
	flowState, err := sm.store.GetFlowState(sessionID, string(flowType))
	if err != nil {
		slog.Error("StateManager SetCurrentState get error", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}

	now := time.Now()
	if flowState == nil {
		flowState = &models.FlowState{
			ParticipantID: sessionID,
			FlowType:      flowType,
			CurrentState:  state,
			StateData:     make(map[string]string),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	} else {
		flowState.CurrentState = state
		flowState.UpdatedAt = now
	}

	if err := sm.store.SaveFlowState(*flowState); err != nil {
		slog.Error("StateManager SetCurrentState save error", "error", err, "sessionID", sessionID, "flowType", flowType, "state", state)
		return err
	}

	slog.Debug("StateManager SetCurrentState succeeded", "sessionID", sessionID, "flowType", flowType, "state", state)
	return nil
}

// GetStateData retrieves additional data associated with the session's state.
func (sm *StoreBasedStateManager) GetStateData(ctx context.Context, sessionID string, flowType models.FlowType, key models.DataKey) (string, error) {
	slog.Debug("StateManager GetStateData", "sessionID", sessionID, "flowType", flowType, "key", key)

	flowState, err := sm.store.GetFlowState(sessionID, string(flowType))
	if err != nil {
		slog.Error("StateManager GetStateData error", "error", err, "sessionID", sessionID, "flowType", flowType, "key", key)
		return "", err
	}

	if flowState == nil || flowState.StateData == nil {
		return "", nil
	}
	return flowState.StateData[string(key)], nil
}

// SetStateData stores additional data associated with the session's state.
func (sm *StoreBasedStateManager) SetStateData(ctx context.Context, sessionID string, flowType models.FlowType, key models.DataKey, value string) error {
	slog.Debug("StateManager SetStateData", "sessionID", sessionID, "flowType", flowType, "key", key)

	flowState, err := sm.store.GetFlowState(sessionID, string(flowType))
	if err != nil {
		slog.Error("StateManager SetStateData get error", "error", err, "sessionID", sessionID, "flowType", flowType, "key", key)
		return err
	}

	now := time.Now()
	if flowState == nil {
		flowState = &models.FlowState{
			ParticipantID: sessionID,
			FlowType:      flowType,
			CurrentState:  models.StateInitial,
			StateData:     make(map[string]string),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	if flowState.StateData == nil {
		flowState.StateData = make(map[string]string)
	}
	flowState.StateData[string(key)] = value
	flowState.UpdatedAt = now

	if err := sm.store.SaveFlowState(*flowState); err != nil {
		slog.Error("StateManager SetStateData save error", "error", err, "sessionID", sessionID, "flowType", flowType, "key", key)
		return err
	}

	slog.Debug("StateManager SetStateData succeeded", "sessionID", sessionID, "flowType", flowType, "key", key)
	return nil
}

// ResetState removes all stored state for a session in a flow.
func (sm *StoreBasedStateManager) ResetState(ctx context.Context, sessionID string, flowType models.FlowType) error {
	slog.Debug("StateManager ResetState", "sessionID", sessionID, "flowType", flowType)

	if err := sm.store.DeleteFlowState(sessionID, string(flowType)); err != nil {
		slog.Error("StateManager ResetState error", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}

	slog.Debug("StateManager ResetState succeeded", "sessionID", sessionID, "flowType", flowType)
	return nil
}
