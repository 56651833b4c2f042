package flow

import (
	"testing"

	"github.com/tapflow/tapflow/internal/models"
)

func intp(v int) *int { return &v }

func TestInferRatingCueFromGatheringLocation(t *testing.T) {
	// Scenario: the reply asks for a 0-10 rating on a scale.
	reply := "Now I need you to rate that feeling on a scale of 0-10, where 0 means no intensity and 10 is the strongest you can imagine."
	got := InferNextState(models.StateGatheringLocation, reply, &models.SessionContext{})
	if got != models.StateGatheringIntensity {
		t.Errorf("infer = %v, want %v", got, models.StateGatheringIntensity)
	}
}

func TestInferHoldsWithoutRatingCue(t *testing.T) {
	reply := "Thank you for sharing that with me."
	if got := InferNextState(models.StateGatheringLocation, reply, &models.SessionContext{}); got != "" {
		t.Errorf("infer = %v, want hold", got)
	}
}

func TestInferInitialToGatheringFeeling(t *testing.T) {
	reply := "What's the utmost negative emotion you're feeling right now?"
	if got := InferNextState(models.StateInitial, reply, &models.SessionContext{}); got != models.StateGatheringFeeling {
		t.Errorf("infer = %v", got)
	}
}

func TestInferFeelingToLocation(t *testing.T) {
	reply := "Can you tell me where do you feel it in your body?"
	if got := InferNextState(models.StateGatheringFeeling, reply, &models.SessionContext{}); got != models.StateGatheringLocation {
		t.Errorf("infer = %v", got)
	}
}

func TestInferTappingPointUsesCounterNotText(t *testing.T) {
	sc := &models.SessionContext{TappingPoint: 3}
	if got := InferNextState(models.StateTappingPoint, "anything at all", sc); got != models.StateTappingPoint {
		t.Errorf("mid-round infer = %v, want self-loop", got)
	}
	sc.TappingPoint = models.NumTappingPoints - 1
	if got := InferNextState(models.StateTappingPoint, "anything at all", sc); got != models.StateTappingBreathing {
		t.Errorf("last-point infer = %v, want %v", got, models.StateTappingBreathing)
	}
}

func TestInferPostTappingBranchesOnIntensity(t *testing.T) {
	// Scenario: currentIntensity 6 loops back into tapping.
	sc := &models.SessionContext{CurrentIntensity: intp(6)}
	if got := InferNextState(models.StatePostTapping, "", sc); got != models.StateTappingPoint {
		t.Errorf("high intensity infer = %v, want %v", got, models.StateTappingPoint)
	}

	// Scenario: currentIntensity 0 proceeds to advice.
	sc = &models.SessionContext{CurrentIntensity: intp(0)}
	if got := InferNextState(models.StatePostTapping, "", sc); got != models.StateAdvice {
		t.Errorf("low intensity infer = %v, want %v", got, models.StateAdvice)
	}

	// Boundary: exactly the threshold does not loop.
	sc = &models.SessionContext{CurrentIntensity: intp(IntensityLoopThreshold)}
	if got := InferNextState(models.StatePostTapping, "", sc); got != models.StateAdvice {
		t.Errorf("threshold intensity infer = %v, want %v", got, models.StateAdvice)
	}
}

func TestInferBreathingToPostTapping(t *testing.T) {
	reply := "Please rate that feeling again on a scale of 0-10."
	if got := InferNextState(models.StateTappingBreathing, reply, &models.SessionContext{}); got != models.StatePostTapping {
		t.Errorf("infer = %v", got)
	}
}

func TestInferAdviceToComplete(t *testing.T) {
	reply := "You have done AMAZING work here today. Why don't you head over to the meditation library?"
	if got := InferNextState(models.StateAdvice, reply, &models.SessionContext{}); got != models.StateComplete {
		t.Errorf("infer = %v", got)
	}
}

func TestExtractSetupStatements(t *testing.T) {
	reply := `Here are your statements:
1. "Even though I feel this anxiety in my chest because of work, I'd like to be at peace"
2. "Even though this keeps happening, I choose calm"
- Even though I feel stuck, I want to let it go
Even though a fourth appears, it is dropped
Choose one that resonates with you.`
	got := ExtractSetupStatements(reply)
	if len(got) != models.MaxSetupStatements {
		t.Fatalf("extracted %d statements, want %d: %v", len(got), models.MaxSetupStatements, got)
	}
	for _, s := range got {
		if len(s) < len("Even though") || s[:10] != "Even thoug" {
			t.Errorf("statement does not start with the setup preamble: %q", s)
		}
	}
}

func TestStatementOrderValidation(t *testing.T) {
	if !ValidStatementOrder(DefaultStatementOrder()) {
		t.Error("default order should be valid")
	}
	if ValidStatementOrder([]int{0, 1, 2}) {
		t.Error("short order should be invalid")
	}
	if ValidStatementOrder([]int{0, 1, 2, 3, 0, 1, 2, 0}) {
		t.Error("out-of-range index should be invalid")
	}
	if ValidStatementOrder(nil) {
		t.Error("nil order should be invalid")
	}
}
