package flow

import "strings"

// Crisis detection is deliberately high-recall, low-precision: a false
// positive costs the user an unnecessary resources screen, a false negative
// could cost far more. The tables are fixed and auditable; do not replace
// them with a learned classifier.

// crisisKeywords matches as a substring anywhere in the lowercased message.
var crisisKeywords = []string{
	// Immediate danger keywords
	"suicide", "kill myself", "end it all", "hurt myself", "die", "death", "want to die",
	"self harm", "cutting", "overdose", "jump off", "hang myself", "pills",

	// Severe emotional distress
	"better off dead", "no point living", "can't go on", "no way out", "give up",
	"hopeless", "worthless", "pointless", "no hope", "escape this pain",
}

// crisisPhrases are longer expressions matched as substrings.
var crisisPhrases = []string{
	"want to hurt myself",
	"thoughts of dying",
	"end the pain",
	"make it stop",
	"can't take it anymore",
	"life isn't worth",
	"world without me",
	"planning to hurt",
	"thinking about suicide",
	"no point in living",
	"better off dead",
	"can't go on",
	"no way out",
}

// concerningCombinations trigger when both words appear anywhere in the same
// message, order-independent.
var concerningCombinations = [][2]string{
	{"hurt", "myself"},
	{"end", "life"},
	{"kill", "me"},
	{"want", "die"},
	{"can't", "anymore"},
	{"no", "hope"},
	{"give", "up"},
	{"escape", "pain"},
}

// CrisisTrigger identifies which rule class fired.
type CrisisTrigger string

const (
	TriggerNone        CrisisTrigger = ""
	TriggerKeyword     CrisisTrigger = "keyword"
	TriggerPhrase      CrisisTrigger = "phrase"
	TriggerCombination CrisisTrigger = "combination"
)

// DetectCrisis checks sanitized user text against all three rule classes and
// reports whether any fired.
func DetectCrisis(text string) bool {
	return DetectCrisisWithTrigger(text) != TriggerNone
}

// DetectCrisisWithTrigger returns the first rule class that fires, checked in
// keyword, phrase, combination order, or TriggerNone. Matching is
// case-insensitive on the whole message.
func DetectCrisisWithTrigger(text string) CrisisTrigger {
	lower := strings.ToLower(text)
	for _, kw := range crisisKeywords {
		if strings.Contains(lower, kw) {
			return TriggerKeyword
		}
	}
	for _, phrase := range crisisPhrases {
		if strings.Contains(lower, phrase) {
			return TriggerPhrase
		}
	}
	for _, pair := range concerningCombinations {
		if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
			return TriggerCombination
		}
	}
	return TriggerNone
}

// CrisisSupportMessage is the reply shown instead of the model's output when
// crisis language is detected. Name defaults to "Friend" when unknown.
func CrisisSupportMessage(name string) string {
	if name == "" {
		name = "Friend"
	}
	return name + ", I can see you're going through a really difficult time right now. " +
		"Your safety and wellbeing are the most important thing. I want to connect you with people " +
		"who are specially trained to help in these situations. Please know that you're not alone, " +
		"and there are people who care about you and want to help. Let me show you some immediate support resources."
}
