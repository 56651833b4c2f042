package models

// IntensityReading is one recorded rating and the round it was taken in.
type IntensityReading struct {
	Round     int `json:"round"`
	Intensity int `json:"intensity"`
}

// SessionContext is the structured picture of a tapping session that the
// flow engine maintains across turns. It is stored as a JSON blob in the
// flow state and serialized back to the UI collaborator on every turn.
type SessionContext struct {
	Problem          string             `json:"problem,omitempty"`
	Feeling          string             `json:"feeling,omitempty"`
	BodyLocation     string             `json:"body_location,omitempty"`
	InitialIntensity *int               `json:"initial_intensity,omitempty"`
	CurrentIntensity *int               `json:"current_intensity,omitempty"`
	Round            int                `json:"round"`
	TappingPoint     int                `json:"tapping_point"`
	SetupStatements  []string           `json:"setup_statements,omitempty"`
	ReminderPhrases  []string           `json:"reminder_phrases,omitempty"`
	StatementOrder   []int              `json:"statement_order,omitempty"`
	SayIndex         int                `json:"say_index"`
	IntensityHistory []IntensityReading `json:"intensity_history,omitempty"`
}

// RecordIntensity appends a reading for the current round and keeps
// CurrentIntensity in sync with the latest entry. The first recorded reading
// also becomes InitialIntensity.
func (c *SessionContext) RecordIntensity(intensity int) {
	v := intensity
	if c.InitialIntensity == nil {
		c.InitialIntensity = &v
	}
	cur := v
	c.CurrentIntensity = &cur
	c.IntensityHistory = append(c.IntensityHistory, IntensityReading{Round: c.Round, Intensity: intensity})
}

// LatestIntensity returns the most recent rating, or -1 when none exists.
func (c *SessionContext) LatestIntensity() int {
	if c.CurrentIntensity == nil {
		return -1
	}
	return *c.CurrentIntensity
}

// BeginRound advances to the next tapping round and resets the per-round
// point cursor. Setup statements carry over until replaced.
func (c *SessionContext) BeginRound() {
	c.Round++
	c.TappingPoint = 0
	c.SayIndex = 0
}

// CurrentPointName returns the human name of the active tapping point.
func (c *SessionContext) CurrentPointName() string {
	i := c.TappingPoint
	if i < 0 || i >= NumTappingPoints {
		i = 0
	}
	return TappingPointNames[i]
}
