// Package flow implements the guided tapping conversation core: the state
// machine, directive parsing, fallback state inference, crisis detection,
// typo correction, and prompt composition.
package flow

import (
	"regexp"
	"strings"

	"github.com/tapflow/tapflow/internal/models"
)

// typoEntry pairs a common misspelling with its correction. The dictionary
// covers the emotion, body, and contraction vocabulary users actually type
// during sessions. Matching is whole-word and case-insensitive.
type typoEntry struct {
	typo      string
	corrected string
	re        *regexp.Regexp
}

func entry(typo, corrected string) typoEntry {
	return typoEntry{typo: typo, corrected: corrected, re: regexp.MustCompile(`(?i)\b` + typo + `\b`)}
}

var typoDictionary = []typoEntry{
	entry("anxios", "anxious"), entry("anxiuos", "anxious"), entry("anixous", "anxious"),
	entry("stresed", "stressed"), entry("stresd", "stressed"),
	entry("depresed", "depressed"), entry("depress", "depressed"),
	entry("worryed", "worried"), entry("woried", "worried"),
	entry("scaed", "scared"), entry("afraaid", "afraid"),
	entry("overwelmed", "overwhelmed"), entry("overwhelmd", "overwhelmed"),
	entry("panicced", "panicked"), entry("terified", "terrified"),
	entry("hopeles", "hopeless"), entry("helpeles", "helpless"),
	entry("fustrated", "frustrated"), entry("frustraited", "frustrated"),
	entry("stomache", "stomach"), entry("stomch", "stomach"), entry("shouldor", "shoulder"),
	entry("throut", "throat"), entry("throaht", "throat"), entry("forhead", "forehead"),
	entry("cant", "can't"), entry("wont", "won't"), entry("dont", "don't"), entry("isnt", "isn't"),
}

// CorrectTypos applies whole-word dictionary substitutions and reports every
// change made so the caller can surface a "did you mean" notice. Text outside
// dictionary matches is never altered. The corrected text feeds the director
// model; the original user text is what gets stored and displayed.
func CorrectTypos(text string) (string, []models.Correction) {
	corrected := text
	var changes []models.Correction
	for _, e := range typoDictionary {
		if e.re.MatchString(corrected) {
			corrected = e.re.ReplaceAllString(corrected, e.corrected)
			changes = append(changes, models.Correction{Original: e.typo, Corrected: e.corrected})
		}
	}
	return corrected, changes
}

// Sanitize trims whitespace and caps the text at the maximum user message
// length. It does not correct typos; callers compose Sanitize and
// CorrectTypos explicitly.
func Sanitize(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) > models.MaxUserMessageLength {
		return string(runes[:models.MaxUserMessageLength])
	}
	return trimmed
}
