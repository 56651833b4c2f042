package flow

import (
	"strings"

	"github.com/tapflow/tapflow/internal/models"
)

// fallbackRule maps a set of substring triggers (all must be present) to a
// target state. Rules for a state are checked in order; first match wins.
type fallbackRule struct {
	triggers [][]string // outer: alternatives, inner: all-of substring set
	target   models.ChatState
}

// fallbackRules is consulted only when no directive was parsable. Each
// current state has its own trigger vocabulary keyed off the phrasing the
// stage guidance makes the model likely to use.
var fallbackRules = map[models.ChatState][]fallbackRule{
	models.StateInitial: {
		{triggers: [][]string{{"utmost negative emotion"}, {"what are you feeling"}, {"most intense negative emotion"}}, target: models.StateGatheringFeeling},
	},
	models.StateGatheringFeeling: {
		{triggers: [][]string{{"where do you feel it"}, {"feel it in your body"}, {"where in your body"}}, target: models.StateGatheringLocation},
	},
	models.StateGatheringLocation: {
		{triggers: [][]string{{"rate", "scale", "0", "10"}}, target: models.StateGatheringIntensity},
	},
	models.StateTappingBreathing: {
		{triggers: [][]string{{"rate", "scale"}, {"how are you feeling now"}, {"intensity now"}}, target: models.StatePostTapping},
	},
	models.StateAdvice: {
		{triggers: [][]string{{"amazing work"}, {"meditation library"}, {"whenever you need me"}}, target: models.StateComplete},
	},
}

// InferNextState guesses the next conversation state from the model's
// visible reply when no directive is present. An empty return means no rule
// matched and the state holds. For states whose progress cannot be read from
// text (tapping points, intensity branches) the session context is
// consulted instead of the reply.
func InferNextState(current models.ChatState, visibleReply string, sc *models.SessionContext) models.ChatState {
	lower := strings.ToLower(visibleReply)

	switch current {
	case models.StateGatheringIntensity:
		// Once a rating is in hand, the only forward move is into the
		// first tapping round.
		return models.StateTappingPoint

	case models.StateTappingPoint:
		// The model's free text cannot reliably signal numeric progress,
		// so the embedded point counter decides.
		if sc != nil && sc.TappingPoint >= models.NumTappingPoints-1 {
			return models.StateTappingBreathing
		}
		return models.StateTappingPoint

	case models.StatePostTapping:
		// Branch purely on the latest rating.
		if sc != nil && sc.LatestIntensity() > IntensityLoopThreshold {
			return models.StateTappingPoint
		}
		return models.StateAdvice
	}

	for _, rule := range fallbackRules[current] {
		for _, set := range rule.triggers {
			if containsAll(lower, set) {
				return rule.target
			}
		}
	}
	return ""
}

// IntensityLoopThreshold is the post-tapping branch point: ratings above it
// loop back into another round, ratings at or below it move on to advice.
const IntensityLoopThreshold = 3

func containsAll(text string, subs []string) bool {
	for _, s := range subs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
