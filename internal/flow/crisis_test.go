package flow

import (
	"strings"
	"testing"
)

func TestDetectCrisisKeyword(t *testing.T) {
	cases := []string{
		"I have been thinking about suicide",
		"sometimes I want to hurt myself",
		"there is no way out for me",
		"I feel completely hopeless",
	}
	for _, msg := range cases {
		if !DetectCrisis(msg) {
			t.Errorf("DetectCrisis(%q) = false, want true", msg)
		}
	}
}

func TestDetectCrisisPhrase(t *testing.T) {
	// Phrase match fires even with surrounding text and mixed case.
	msg := "Honestly I Can't Take It Anymore with this job"
	if trigger := DetectCrisisWithTrigger(msg); trigger == TriggerNone {
		t.Errorf("phrase was not detected in %q", msg)
	}
}

func TestDetectCrisisCombination(t *testing.T) {
	// Neither word alone is a keyword hit, but the pair co-occurring is.
	msg := "I just want to escape all this pain somehow"
	if got := DetectCrisisWithTrigger(msg); got == TriggerNone {
		t.Errorf("combination was not detected in %q", msg)
	}
}

func TestDetectCrisisOrdinaryText(t *testing.T) {
	cases := []string{
		"I feel anxious about my presentation",
		"my shoulders are tense",
		"I would rate it a 7",
		"the tapping helped a little",
	}
	for _, msg := range cases {
		if DetectCrisis(msg) {
			t.Errorf("DetectCrisis(%q) = true for ordinary text", msg)
		}
	}
}

func TestDetectCrisisScenarioPhraseMatch(t *testing.T) {
	// Both "can't go on" (after correction) and "want to hurt myself" are
	// present; either alone should be sufficient.
	msg := strings.ToLower("I cant go on and want to hurt myself")
	corrected, _ := CorrectTypos(msg)
	if !DetectCrisis(corrected) {
		t.Errorf("crisis not detected in %q", corrected)
	}
}

func TestCrisisSupportMessage(t *testing.T) {
	if got := CrisisSupportMessage("Sam"); !strings.HasPrefix(got, "Sam,") {
		t.Errorf("support message should open with the user's name: %q", got)
	}
	if got := CrisisSupportMessage(""); !strings.HasPrefix(got, "Friend,") {
		t.Errorf("support message should default to Friend: %q", got)
	}
}
