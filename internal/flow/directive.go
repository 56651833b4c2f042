package flow

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tapflow/tapflow/internal/models"
)

// Directive block markers. The director model is instructed to append
// exactly one block of the form [[EFT]]{...}[[/EFT]] to its reply. Models
// reliably drop the final bracket often enough that the one-character-short
// closer is tolerated.
const (
	directiveOpen         = "[[EFT]]"
	directiveClose        = "[[/EFT]]"
	directiveCloseLenient = "[[/EFT]"
)

// ParseDirective extracts the embedded directive block from a model reply.
// It returns the parsed directive (nil when no block is found or its JSON
// payload does not parse) and the user-visible text with the block stripped.
// The visible text never contains the opening marker, regardless of which
// closing form the model produced or whether the payload was valid. Never
// panics; every failure path degrades to (nil, visible).
func ParseDirective(reply string) (*models.Directive, string) {
	start := strings.Index(reply, directiveOpen)
	if start < 0 {
		return nil, reply
	}

	payloadStart := start + len(directiveOpen)
	rest := reply[payloadStart:]

	// The well-formed closer is checked first; the lenient form is its
	// prefix and would otherwise shadow it.
	payloadEnd := strings.Index(rest, directiveClose)
	closeLen := len(directiveClose)
	if payloadEnd < 0 {
		payloadEnd = strings.Index(rest, directiveCloseLenient)
		closeLen = len(directiveCloseLenient)
	}

	var payload, visible string
	if payloadEnd < 0 {
		// No closer at all (truncated output). Everything from the opening
		// marker on is directive territory, not user-visible content.
		payload = rest
		visible = reply[:start]
	} else {
		payload = rest[:payloadEnd]
		visible = reply[:start] + rest[payloadEnd+closeLen:]
	}
	visible = strings.TrimSpace(visible)

	var d models.Directive
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &d); err != nil {
		slog.Warn("flow.ParseDirective: directive payload did not parse", "error", err, "payloadLength", len(payload))
		return nil, visible
	}
	slog.Debug("flow.ParseDirective: directive parsed", "nextState", d.NextState, "tappingPointSet", d.TappingPoint != nil)
	return &d, visible
}
