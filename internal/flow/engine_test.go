package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go"

	"github.com/tapflow/tapflow/internal/models"
	"github.com/tapflow/tapflow/internal/store"
)

// mockGenerator returns queued replies in order, or an error.
type mockGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	lastMsg []openai.ChatCompletionMessageParamUnion
}

func (m *mockGenerator) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastMsg = messages
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "okay", nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockNotifier) SendCrisisAlert(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

func newTestFlow(t *testing.T, gen *mockGenerator, notifier CrisisNotifier) (*SessionFlow, *models.ChatSession) {
	t.Helper()
	st := store.NewInMemoryStore()
	f := NewSessionFlow(st, NewStoreBasedStateManager(st), gen, notifier)
	session, greeting, err := f.StartSession(context.Background(), "p_test", "Sam")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if greeting == nil || greeting.Role != models.RoleAssistant {
		t.Fatalf("greeting not seeded: %+v", greeting)
	}
	return f, session
}

func TestProcessTurnDirectiveDriven(t *testing.T) {
	gen := &mockGenerator{replies: []string{
		`I understand, Sam. What's the most intense negative emotion you're feeling right now? [[EFT]]{"next_state": "gathering-feeling"}[[/EFT]]`,
	}}
	f, session := newTestFlow(t, gen, nil)

	res, err := f.ProcessTurn(context.Background(), session.ID, "I'm worried about my job", nil)
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.State != models.StateGatheringFeeling {
		t.Errorf("state = %v, want %v", res.State, models.StateGatheringFeeling)
	}
	if res.Context.Problem != "I'm worried about my job" {
		t.Errorf("problem not captured: %q", res.Context.Problem)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("turn returned %d messages, want 2", len(res.Messages))
	}
	if strings.Contains(res.Messages[1].Content, "[[EFT]]") {
		t.Errorf("assistant message contains directive syntax: %q", res.Messages[1].Content)
	}

	// The advanced state survives a reload.
	state, err := f.states.GetCurrentState(context.Background(), session.ID, models.FlowTypeEFT)
	if err != nil || state != models.StateGatheringFeeling {
		t.Errorf("persisted state = %v (%v)", state, err)
	}
	sc, err := f.LoadContext(context.Background(), session.ID)
	if err != nil || sc.Problem == "" {
		t.Errorf("persisted context = %+v (%v)", sc, err)
	}
}

func TestProcessTurnFallbackWhenDirectiveAbsent(t *testing.T) {
	gen := &mockGenerator{replies: []string{
		"Can you tell me where do you feel it in your body?",
	}}
	f, session := newTestFlow(t, gen, nil)
	if err := f.states.SetCurrentState(context.Background(), session.ID, models.FlowTypeEFT, models.StateGatheringFeeling); err != nil {
		t.Fatal(err)
	}

	res, err := f.ProcessTurn(context.Background(), session.ID, "mostly dread", nil)
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.State != models.StateGatheringLocation {
		t.Errorf("state = %v, want fallback-inferred %v", res.State, models.StateGatheringLocation)
	}
	if res.Context.Feeling != "mostly dread" {
		t.Errorf("feeling not captured: %q", res.Context.Feeling)
	}
}

func TestProcessTurnMalformedDirectiveFallsBack(t *testing.T) {
	gen := &mockGenerator{replies: []string{
		`Now I need you to rate that feeling on a scale of 0-10. [[EFT]]{"next_state": broken`,
	}}
	f, session := newTestFlow(t, gen, nil)
	if err := f.states.SetCurrentState(context.Background(), session.ID, models.FlowTypeEFT, models.StateGatheringLocation); err != nil {
		t.Fatal(err)
	}

	res, err := f.ProcessTurn(context.Background(), session.ID, "in my chest", nil)
	if err != nil {
		t.Fatalf("ProcessTurn should not propagate a parse failure: %v", err)
	}
	if res.State != models.StateGatheringIntensity {
		t.Errorf("state = %v, want %v via fallback", res.State, models.StateGatheringIntensity)
	}
	if strings.Contains(res.Messages[1].Content, "[[EFT]]") {
		t.Errorf("directive debris shown to user: %q", res.Messages[1].Content)
	}
}

func TestProcessTurnHoldsWithoutInference(t *testing.T) {
	gen := &mockGenerator{replies: []string{"Thank you for sharing."}}
	f, session := newTestFlow(t, gen, nil)
	if err := f.states.SetCurrentState(context.Background(), session.ID, models.FlowTypeEFT, models.StateGatheringFeeling); err != nil {
		t.Fatal(err)
	}

	res, err := f.ProcessTurn(context.Background(), session.ID, "hm", nil)
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.State != models.StateGatheringFeeling {
		t.Errorf("state = %v, want hold on %v", res.State, models.StateGatheringFeeling)
	}
}

func TestProcessTurnIntensityUpdate(t *testing.T) {
	gen := &mockGenerator{replies: []string{
		`Thank you for rating that. [[EFT]]{"next_state": "tapping-point", "tapping_point": 0, "setup_statements": ["Even though I feel this dread in my chest, I'd like to be at peace", "I feel dread in my chest, but I'd like to relax now", "This dread, but I want to let it go"], "statement_order": [0,1,2,0,1,2,0,1]}[[/EFT]]`,
	}}
	f, session := newTestFlow(t, gen, nil)
	if err := f.states.SetCurrentState(context.Background(), session.ID, models.FlowTypeEFT, models.StateGatheringIntensity); err != nil {
		t.Fatal(err)
	}

	res, err := f.ProcessTurn(context.Background(), session.ID, "8", &models.ContextUpdate{Intensity: intp(8)})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Context.LatestIntensity() != 8 {
		t.Errorf("currentIntensity = %d, want 8", res.Context.LatestIntensity())
	}
	if res.Context.InitialIntensity == nil || *res.Context.InitialIntensity != 8 {
		t.Errorf("initialIntensity = %v", res.Context.InitialIntensity)
	}
	if res.Context.Round != 1 {
		t.Errorf("round = %d, want 1 at first tapping entry", res.Context.Round)
	}
	if len(res.Context.SetupStatements) != 3 || len(res.Context.StatementOrder) != models.NumTappingPoints {
		t.Errorf("round not fully populated: %+v", res.Context)
	}
}

func TestProcessTurnCrisisShortCircuits(t *testing.T) {
	gen := &mockGenerator{replies: []string{"should never be used"}}
	notifier := &mockNotifier{}
	f, session := newTestFlow(t, gen, notifier)
	if err := f.states.SetCurrentState(context.Background(), session.ID, models.FlowTypeEFT, models.StateTappingPoint); err != nil {
		t.Fatal(err)
	}

	res, err := f.ProcessTurn(context.Background(), session.ID, "I cant go on and want to hurt myself", nil)
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.State != models.StateComplete {
		t.Errorf("state = %v, want forced %v", res.State, models.StateComplete)
	}
	if !res.CrisisDetected {
		t.Error("crisis flag not set")
	}
	if gen.calls != 0 {
		t.Errorf("model was called %d times on a crisis turn", gen.calls)
	}
	if notifier.calls != 1 {
		t.Errorf("notifier fired %d times, want 1", notifier.calls)
	}
	if !strings.Contains(res.Messages[1].Content, "support resources") {
		t.Errorf("support message missing: %q", res.Messages[1].Content)
	}

	// A second crisis turn keeps the flag and does not re-alert.
	res2, err := f.ProcessTurn(context.Background(), session.ID, "I want to die", nil)
	if err != nil {
		t.Fatalf("second crisis turn failed: %v", err)
	}
	if !res2.CrisisDetected {
		t.Error("crisis flag not monotonic")
	}
	if notifier.calls != 1 {
		t.Errorf("notifier fired %d times across two crisis turns, want 1", notifier.calls)
	}
}

func TestProcessTurnCrisisDetectedAfterTypoCorrection(t *testing.T) {
	// The crisis tables carry apostrophes; a dropped one must not let the
	// message through. "cant" only matches after correction to "can't".
	gen := &mockGenerator{replies: []string{"should never be used"}}
	notifier := &mockNotifier{}
	f, session := newTestFlow(t, gen, notifier)

	res, err := f.ProcessTurn(context.Background(), session.ID, "I cant take it anymore", nil)
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if !res.CrisisDetected {
		t.Error("typo'd crisis message was not detected")
	}
	if res.State != models.StateComplete {
		t.Errorf("state = %v, want forced %v", res.State, models.StateComplete)
	}
	if gen.calls != 0 {
		t.Errorf("model was called %d times on a crisis turn", gen.calls)
	}
	if notifier.calls != 1 {
		t.Errorf("notifier fired %d times, want 1", notifier.calls)
	}
}

func TestProcessTurnCrisisFlagMonotonic(t *testing.T) {
	gen := &mockGenerator{replies: []string{"crisis turn unused", "Take a breath."}}
	f, session := newTestFlow(t, gen, &mockNotifier{})

	if _, err := f.ProcessTurn(context.Background(), session.ID, "thinking about suicide", nil); err != nil {
		t.Fatalf("crisis turn failed: %v", err)
	}
	// A calm follow-up turn must not clear the flag.
	res, err := f.ProcessTurn(context.Background(), session.ID, "thank you, I feel a bit better", nil)
	if err != nil {
		t.Fatalf("follow-up turn failed: %v", err)
	}
	if !res.CrisisDetected {
		t.Error("crisis flag was reset by a calm turn")
	}
}

func TestProcessTurnNotifierFailureDoesNotFailTurn(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("twilio down")}
	f, session := newTestFlow(t, &mockGenerator{}, notifier)
	res, err := f.ProcessTurn(context.Background(), session.ID, "no point living", nil)
	if err != nil {
		t.Fatalf("turn failed because of notifier: %v", err)
	}
	if res.State != models.StateComplete {
		t.Errorf("state = %v", res.State)
	}
}

func TestProcessTurnModelFailureIsRetrySafe(t *testing.T) {
	gen := &mockGenerator{err: errors.New("upstream quota exceeded")}
	f, session := newTestFlow(t, gen, nil)
	if err := f.states.SetCurrentState(context.Background(), session.ID, models.FlowTypeEFT, models.StateGatheringFeeling); err != nil {
		t.Fatal(err)
	}

	_, err := f.ProcessTurn(context.Background(), session.ID, "anxious", nil)
	if err == nil {
		t.Fatal("expected error from failed model call")
	}

	// State and context untouched; the user message is recorded.
	state, _ := f.states.GetCurrentState(context.Background(), session.ID, models.FlowTypeEFT)
	if state != models.StateGatheringFeeling {
		t.Errorf("state mutated on failed turn: %v", state)
	}
	sc, _ := f.LoadContext(context.Background(), session.ID)
	if sc.Feeling != "" {
		t.Errorf("context mutated on failed turn: %+v", sc)
	}
	msgs, _ := f.store.GetMessages(session.ID)
	var userMsgs int
	for _, m := range msgs {
		if m.Role == models.RoleUser {
			userMsgs++
		}
	}
	if userMsgs != 1 {
		t.Errorf("user message count = %d, want 1", userMsgs)
	}

	// Retry succeeds once the generator recovers.
	gen.mu.Lock()
	gen.err = nil
	gen.replies = []string{"Can you tell me where do you feel it in your body?"}
	gen.mu.Unlock()
	res, err := f.ProcessTurn(context.Background(), session.ID, "anxious", nil)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if res.State != models.StateGatheringLocation {
		t.Errorf("retry state = %v", res.State)
	}
}

func TestProcessTurnCorrectionsReported(t *testing.T) {
	gen := &mockGenerator{replies: []string{"I hear you."}}
	f, session := newTestFlow(t, gen, nil)
	res, err := f.ProcessTurn(context.Background(), session.ID, "I feel anxios and overwelmed", nil)
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if len(res.Corrections) != 2 {
		t.Errorf("corrections = %+v, want 2 entries", res.Corrections)
	}
	// The stored message keeps the user's original spelling.
	if res.Messages[0].Content != "I feel anxios and overwelmed" {
		t.Errorf("original text not preserved: %q", res.Messages[0].Content)
	}
}

func TestProcessTurnSessionNotFound(t *testing.T) {
	f, _ := newTestFlow(t, &mockGenerator{}, nil)
	_, err := f.ProcessTurn(context.Background(), "s_nope", "hello", nil)
	if !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestEndSessionRemovesEverything(t *testing.T) {
	f, session := newTestFlow(t, &mockGenerator{}, nil)
	if err := f.EndSession(context.Background(), session.ID); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	got, err := f.store.GetSession(session.ID)
	if err != nil || got != nil {
		t.Errorf("session survived EndSession: %+v (%v)", got, err)
	}
	state, err := f.states.GetCurrentState(context.Background(), session.ID, models.FlowTypeEFT)
	if err != nil || state != "" {
		t.Errorf("flow state survived EndSession: %v (%v)", state, err)
	}
}
