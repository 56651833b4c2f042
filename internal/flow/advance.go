package flow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tapflow/tapflow/internal/models"
)

// expectedTransitions is the machine's own view of the legal state graph.
// It is advisory only: a directive that contradicts it is logged as a
// warning and obeyed anyway, because the upstream director sees the whole
// conversation and the local table does not.
var expectedTransitions = map[models.ChatState][]models.ChatState{
	models.StateQuestionnaire:      {models.StateInitial},
	models.StateInitial:            {models.StateGatheringFeeling},
	models.StateGatheringFeeling:   {models.StateGatheringLocation},
	models.StateGatheringLocation:  {models.StateGatheringIntensity},
	models.StateGatheringIntensity: {models.StateTappingPoint},
	models.StateTappingPoint:       {models.StateTappingPoint, models.StateTappingBreathing},
	models.StateTappingBreathing:   {models.StatePostTapping},
	models.StatePostTapping:        {models.StateTappingPoint, models.StateAdvice},
	models.StateAdvice:             {models.StateComplete},
	models.StateComplete:           {},
}

func isExpectedTransition(from, to models.ChatState) bool {
	for _, t := range expectedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Advance applies one turn's transition to the session context and returns
// the next state. The directive, when present with a next_state, is
// authoritative; otherwise the fallback inferrer decides from the visible
// reply. An empty inference holds the current state. Crisis handling is the
// caller's concern and happens before Advance is reached.
func Advance(current models.ChatState, d *models.Directive, visibleReply string, sc *models.SessionContext) models.ChatState {
	if d.Empty() {
		// An all-empty block gives the machine nothing to act on; treat it
		// exactly like an absent directive.
		d = nil
	}

	if d != nil && d.TappingPoint != nil {
		// Any integer tapping_point overwrites the counter, supporting both
		// forward advancement and guided resets.
		sc.TappingPoint = *d.TappingPoint
	}

	if d != nil && d.NextState != "" {
		next := d.NextState
		if !models.KnownStates[next] {
			slog.Warn("flow.Advance: directive carries unknown state tag, obeying anyway", "from", current, "to", next)
		} else if !isExpectedTransition(current, next) {
			slog.Warn("flow.Advance: unexpected transition requested by directive", "from", current, "to", next)
		}
		if next == models.StateTappingPoint && d.TappingPoint != nil && *d.TappingPoint == 0 {
			beginRound(sc, d.SetupStatements, d.StatementOrder, visibleReply)
		}
		return next
	}

	// No usable directive: best-effort inference from the visible text.
	next := InferNextState(current, visibleReply, sc)
	if next == "" {
		slog.Debug("flow.Advance: no inferable transition, state holds", "state", current)
		return current
	}

	switch {
	case next == models.StateTappingPoint && current != models.StateTappingPoint:
		// Entering a fresh round from gathering-intensity or post-tapping.
		beginRound(sc, nil, nil, visibleReply)
	case next == models.StateTappingPoint && current == models.StateTappingPoint:
		// Self-loop: advance the embedded point counter.
		if sc.TappingPoint < models.NumTappingPoints-1 {
			sc.TappingPoint++
		}
	}
	return next
}

// beginRound starts a tapping round: bumps the round counter, resets the
// point cursor, and (re)populates setup statements and statement order.
// Directive values win; existing context values survive when the directive
// omits them; the visible reply and a generic default are the last resorts,
// so a round never starts without statements to say.
func beginRound(sc *models.SessionContext, statements []string, order []int, visibleReply string) {
	sc.BeginRound()

	if len(statements) > 0 {
		if len(statements) > models.MaxSetupStatements {
			statements = statements[:models.MaxSetupStatements]
		}
		sc.SetupStatements = statements
	}
	if len(sc.SetupStatements) == 0 {
		sc.SetupStatements = ExtractSetupStatements(visibleReply)
	}
	if len(sc.SetupStatements) == 0 {
		sc.SetupStatements = defaultSetupStatements(sc)
	}
	sc.ReminderPhrases = reminderPhrases(sc.SetupStatements)

	if ValidStatementOrder(order) {
		sc.StatementOrder = order
	} else {
		if order != nil {
			slog.Warn("flow.beginRound: invalid statement order from directive, using default", "length", len(order))
		}
		if !ValidStatementOrder(sc.StatementOrder) {
			sc.StatementOrder = DefaultStatementOrder()
		}
	}
	slog.Debug("flow.beginRound: round started", "round", sc.Round, "statements", len(sc.SetupStatements))
}

// defaultSetupStatements builds a generic statement set from whatever the
// context holds, used only when neither the directive nor the reply supplied
// any.
func defaultSetupStatements(sc *models.SessionContext) []string {
	feeling := orDefault(sc.Feeling, "feeling")
	where := ""
	if sc.BodyLocation != "" {
		where = fmt.Sprintf(" in my %s", sc.BodyLocation)
	}
	return []string{
		fmt.Sprintf("Even though I feel this %s%s, I'd like to be at peace", feeling, where),
		fmt.Sprintf("I feel %s%s, but I'd like to relax now", feeling, where),
		fmt.Sprintf("This %s%s, but I want to let it go", feeling, where),
	}
}

// reminderPhrases derives short per-point phrases from the setup statements.
func reminderPhrases(statements []string) []string {
	phrases := make([]string, 0, len(statements))
	for _, s := range statements {
		phrases = append(phrases, shortenStatement(s))
	}
	return phrases
}

// shortenStatement trims the "Even though" preamble so the phrase fits a
// single tap. "Even though I feel this anxiety..." becomes "this anxiety...".
func shortenStatement(s string) string {
	const prefix = "Even though I feel "
	if len(s) > len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}
