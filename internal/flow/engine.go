package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openai/openai-go"

	"github.com/tapflow/tapflow/internal/models"
	"github.com/tapflow/tapflow/internal/store"
	"github.com/tapflow/tapflow/internal/util"
)

// ReplyGenerator is the outbound text-generation collaborator. It is the
// sole suspending operation in a turn and must honor the context deadline.
type ReplyGenerator interface {
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// CrisisNotifier is told once per session when crisis language is detected.
// Failures are logged by the engine and never block the turn.
type CrisisNotifier interface {
	SendCrisisAlert(ctx context.Context, sessionID string) error
}

// SessionFlow orchestrates tapping sessions turn by turn: persistence,
// crisis handling, prompting, directive application, and state advancement.
type SessionFlow struct {
	store    store.Store
	states   StateManager
	genai    ReplyGenerator
	notifier CrisisNotifier

	// One turn at a time per session. Independent sessions proceed
	// concurrently; the lock map itself is guarded by mu.
	mu        sync.Mutex
	turnLocks map[string]*sync.Mutex
}

// NewSessionFlow creates a session flow engine. The notifier may be a no-op
// implementation when crisis alerting is not configured.
func NewSessionFlow(st store.Store, states StateManager, gen ReplyGenerator, notifier CrisisNotifier) *SessionFlow {
	slog.Debug("Creating SessionFlow")
	return &SessionFlow{
		store:     st,
		states:    states,
		genai:     gen,
		notifier:  notifier,
		turnLocks: make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the per-session turn mutex, creating it on first use.
func (f *SessionFlow) sessionLock(sessionID string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.turnLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		f.turnLocks[sessionID] = l
	}
	return l
}

// greetingMessage opens every new session.
const greetingMessage = "Hi, I'm really glad you're here. I'll guide you through a short tapping session to help with whatever is weighing on you. To start, can you tell me what's troubling you today?"

// StartSession creates a new session for a participant, seeds the opening
// assistant message, and initializes flow state.
func (f *SessionFlow) StartSession(ctx context.Context, participantID, name string) (*models.ChatSession, *models.Message, error) {
	now := time.Now()
	session := models.ChatSession{
		ID:            util.GenerateSessionID(),
		ParticipantID: participantID,
		Name:          name,
		State:         models.StateInitial,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := f.store.CreateSession(session); err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := f.states.SetCurrentState(ctx, session.ID, models.FlowTypeEFT, models.StateInitial); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize flow state: %w", err)
	}

	greeting := models.Message{
		ID:        util.GenerateMessageID(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   greetingMessage,
		Timestamp: now,
	}
	if err := f.store.AddMessage(greeting); err != nil {
		return nil, nil, fmt.Errorf("failed to seed greeting: %w", err)
	}
	slog.Info("SessionFlow.StartSession: session created", "sessionID", session.ID, "participantID", participantID)
	return &session, &greeting, nil
}

// EndSession removes a session, its transcript, and its flow state.
func (f *SessionFlow) EndSession(ctx context.Context, sessionID string) error {
	if err := f.states.ResetState(ctx, sessionID, models.FlowTypeEFT); err != nil {
		return fmt.Errorf("failed to reset flow state: %w", err)
	}
	if err := f.store.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	f.mu.Lock()
	delete(f.turnLocks, sessionID)
	f.mu.Unlock()
	slog.Info("SessionFlow.EndSession: session removed", "sessionID", sessionID)
	return nil
}

// LoadContext returns the persisted session context, or a zero-valued one
// when none has been saved yet.
func (f *SessionFlow) LoadContext(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	raw, err := f.states.GetStateData(ctx, sessionID, models.FlowTypeEFT, models.DataKeySessionContext)
	if err != nil {
		return nil, fmt.Errorf("failed to load session context: %w", err)
	}
	sc := &models.SessionContext{}
	if raw == "" {
		return sc, nil
	}
	if err := json.Unmarshal([]byte(raw), sc); err != nil {
		return nil, fmt.Errorf("failed to decode session context: %w", err)
	}
	return sc, nil
}

func (f *SessionFlow) saveContext(ctx context.Context, sessionID string, sc *models.SessionContext) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to encode session context: %w", err)
	}
	if err := f.states.SetStateData(ctx, sessionID, models.FlowTypeEFT, models.DataKeySessionContext, string(data)); err != nil {
		return fmt.Errorf("failed to save session context: %w", err)
	}
	return nil
}

// ProcessTurn runs one conversation turn end to end. The user message is
// recorded before the model call; everything else is persisted only after
// the call succeeds, so a failed turn leaves the session in its pre-turn
// state and a retry is safe.
func (f *SessionFlow) ProcessTurn(ctx context.Context, sessionID, userText string, update *models.ContextUpdate) (*models.TurnResult, error) {
	lock := f.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := f.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, models.ErrSessionNotFound
	}

	current, err := f.states.GetCurrentState(ctx, sessionID, models.FlowTypeEFT)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow state: %w", err)
	}
	if current == "" {
		current = session.State
	}
	if current == "" {
		current = models.StateInitial
	}

	sc, err := f.LoadContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	applyContextUpdate(current, sc, userText, update)

	// Transcript window for the prompt, loaded before the user message is
	// appended so the current turn is not doubled.
	history, err := f.store.GetMessages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	userMsg := models.Message{
		ID:        util.GenerateMessageID(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   userText,
		Timestamp: time.Now(),
	}
	if err := f.store.AddMessage(userMsg); err != nil {
		return nil, fmt.Errorf("failed to record user message: %w", err)
	}

	sanitized := Sanitize(userText)
	corrected, corrections := CorrectTypos(sanitized)

	// Crisis language short-circuits the turn before the model is called,
	// so a model outage can never drop a crisis. The scan runs on the
	// corrected text: the tables carry apostrophes, and a dropped one in
	// "cant take it anymore" must not slip past.
	if trigger := DetectCrisisWithTrigger(corrected); trigger != TriggerNone {
		return f.completeCrisisTurn(ctx, session, sc, userMsg, trigger)
	}

	prompt := ComposePrompt(current, session.Name, sc, history, corrected)
	reply, err := f.genai.GenerateWithMessages(ctx, prompt)
	if err != nil {
		// Turn aborted: user message is recorded, state and context are
		// untouched, retry is safe.
		slog.Error("SessionFlow.ProcessTurn: model call failed", "error", err, "sessionID", sessionID, "state", current)
		return nil, fmt.Errorf("text generation failed: %w", err)
	}

	directive, visible := ParseDirective(reply)
	next := Advance(current, directive, visible, sc)

	if err := f.states.SetCurrentState(ctx, sessionID, models.FlowTypeEFT, next); err != nil {
		return nil, err
	}
	if err := f.saveContext(ctx, sessionID, sc); err != nil {
		return nil, err
	}
	session.State = next
	session.UpdatedAt = time.Now()
	if err := f.store.UpdateSession(*session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	assistantMsg := models.Message{
		ID:        util.GenerateMessageID(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   visible,
		Timestamp: time.Now(),
	}
	if err := f.store.AddMessage(assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to record assistant message: %w", err)
	}

	slog.Info("SessionFlow.ProcessTurn: turn completed", "sessionID", sessionID, "from", current, "to", next, "directive", directive != nil)
	return &models.TurnResult{
		Messages:       []models.Message{userMsg, assistantMsg},
		State:          next,
		Context:        *sc,
		CrisisDetected: session.CrisisDetected,
		Corrections:    corrections,
	}, nil
}

// completeCrisisTurn forces the terminal state, stores the support message,
// and fires the crisis alert at most once per session.
func (f *SessionFlow) completeCrisisTurn(ctx context.Context, session *models.ChatSession, sc *models.SessionContext, userMsg models.Message, trigger CrisisTrigger) (*models.TurnResult, error) {
	sessionID := session.ID
	slog.Warn("SessionFlow: crisis language detected", "sessionID", sessionID, "trigger", trigger)

	if err := f.states.SetCurrentState(ctx, sessionID, models.FlowTypeEFT, models.StateComplete); err != nil {
		return nil, err
	}
	if err := f.saveContext(ctx, sessionID, sc); err != nil {
		return nil, err
	}
	session.State = models.StateComplete
	session.CrisisDetected = true
	session.UpdatedAt = time.Now()
	if err := f.store.UpdateSession(*session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}

	support := models.Message{
		ID:        util.GenerateMessageID(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   CrisisSupportMessage(session.Name),
		Timestamp: time.Now(),
	}
	if err := f.store.AddMessage(support); err != nil {
		return nil, fmt.Errorf("failed to record support message: %w", err)
	}

	f.notifyCrisisOnce(ctx, sessionID)

	return &models.TurnResult{
		Messages:       []models.Message{userMsg, support},
		State:          models.StateComplete,
		Context:        *sc,
		CrisisDetected: true,
	}, nil
}

// notifyCrisisOnce sends the crisis alert unless one was already sent for
// this session. Notification failures are logged and swallowed; the turn
// must never fail because an SMS did not go out.
func (f *SessionFlow) notifyCrisisOnce(ctx context.Context, sessionID string) {
	if f.notifier == nil {
		return
	}
	sent, err := f.states.GetStateData(ctx, sessionID, models.FlowTypeEFT, models.DataKeyCrisisNotified)
	if err != nil {
		slog.Error("SessionFlow.notifyCrisisOnce: marker lookup failed", "error", err, "sessionID", sessionID)
		return
	}
	if sent != "" {
		return
	}
	if err := f.notifier.SendCrisisAlert(ctx, sessionID); err != nil {
		slog.Error("SessionFlow.notifyCrisisOnce: alert failed", "error", err, "sessionID", sessionID)
		return
	}
	if err := f.states.SetStateData(ctx, sessionID, models.FlowTypeEFT, models.DataKeyCrisisNotified, time.Now().Format(time.RFC3339)); err != nil {
		slog.Error("SessionFlow.notifyCrisisOnce: marker save failed", "error", err, "sessionID", sessionID)
	}
}

// applyContextUpdate folds the turn's structured fields and, where the
// current state implies it, the free text itself into the session context.
func applyContextUpdate(current models.ChatState, sc *models.SessionContext, userText string, update *models.ContextUpdate) {
	text := Sanitize(userText)

	if update != nil {
		if update.Problem != "" {
			sc.Problem = Sanitize(update.Problem)
		}
		if update.Feeling != "" {
			sc.Feeling = Sanitize(update.Feeling)
		}
		if update.BodyLocation != "" {
			sc.BodyLocation = Sanitize(update.BodyLocation)
		}
		if update.Intensity != nil {
			sc.RecordIntensity(*update.Intensity)
		}
	}

	// Free text answers the question the current state asked.
	if text == "" {
		return
	}
	switch current {
	case models.StateInitial:
		if sc.Problem == "" {
			sc.Problem = text
		}
	case models.StateGatheringFeeling:
		if update == nil || update.Feeling == "" {
			sc.Feeling = text
		}
	case models.StateGatheringLocation:
		if update == nil || update.BodyLocation == "" {
			sc.BodyLocation = text
		}
	}
}
