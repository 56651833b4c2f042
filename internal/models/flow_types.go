// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents a specific type of guided flow
type FlowType string

// ChatState represents a specific state within the tapping conversation.
// The tags are exchanged verbatim with the director model and the UI,
// which is why they are kebab-case rather than SCREAMING_SNAKE.
type ChatState string

// DataKey represents a key for storing state-specific data
type DataKey string

// Flow type constants.
const (
	FlowTypeEFT FlowType = "eft"
)

// State constants for the tapping conversation flow.
const (
	// StateQuestionnaire is the optional pre-chat assessment. It is owned
	// by the UI collaborator; the tag is reserved here so directives and
	// snapshots referencing it stay readable.
	StateQuestionnaire ChatState = "questionnaire"

	StateInitial            ChatState = "initial"
	StateGatheringFeeling   ChatState = "gathering-feeling"
	StateGatheringLocation  ChatState = "gathering-location"
	StateGatheringIntensity ChatState = "gathering-intensity"
	StateTappingPoint       ChatState = "tapping-point"
	StateTappingBreathing   ChatState = "tapping-breathing"
	StatePostTapping        ChatState = "post-tapping"
	StateAdvice             ChatState = "advice"
	StateComplete           ChatState = "complete"
)

// Data key constants for the tapping conversation flow.
const (
	DataKeySessionContext DataKey = "sessionContext" // JSON-encoded SessionContext snapshot
	DataKeyCrisisNotified DataKey = "crisisNotified" // set once the crisis alert has been sent
)

// KnownStates is the set of locally known state tags. Directives may carry
// tags outside this set; the machine obeys them anyway and only warns (the
// upstream director is trusted over the local table).
var KnownStates = map[ChatState]bool{
	StateQuestionnaire:      true,
	StateInitial:            true,
	StateGatheringFeeling:   true,
	StateGatheringLocation:  true,
	StateGatheringIntensity: true,
	StateTappingPoint:       true,
	StateTappingBreathing:   true,
	StatePostTapping:        true,
	StateAdvice:             true,
	StateComplete:           true,
}

// NumTappingPoints is the number of points in one tapping round.
const NumTappingPoints = 8

// TappingPointNames lists the points in tapping order, zero-indexed.
var TappingPointNames = [NumTappingPoints]string{
	"eyebrow",
	"side of eye",
	"under eye",
	"under nose",
	"chin",
	"collarbone",
	"under arm",
	"top of head",
}
