package models

// Directive is the machine-readable block the director model embeds in its
// reply. Every field is optional; absent fields leave the corresponding
// session state untouched. Pointer fields distinguish "absent" from a real
// zero value (tapping point 0 is the eyebrow).
type Directive struct {
	NextState       ChatState `json:"next_state,omitempty"`
	TappingPoint    *int      `json:"tapping_point,omitempty"`
	SetupStatements []string  `json:"setup_statements,omitempty"`
	StatementOrder  []int     `json:"statement_order,omitempty"`
	SayIndex        *int      `json:"say_index,omitempty"`
	Collect         string    `json:"collect,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

// Collect field values: what the UI should solicit next.
const (
	CollectText      = "text"
	CollectIntensity = "intensity"
	CollectNone      = "none"
)

// Empty reports whether the directive carries no instructions at all.
func (d *Directive) Empty() bool {
	if d == nil {
		return true
	}
	return d.NextState == "" && d.TappingPoint == nil && len(d.SetupStatements) == 0 &&
		len(d.StatementOrder) == 0 && d.SayIndex == nil && d.Collect == "" && d.Notes == ""
}
