package flow

import (
	"strings"
	"testing"
)

func TestCorrectTypos(t *testing.T) {
	got, changes := CorrectTypos("I feel so anxios and my stomache hurts")
	if !strings.Contains(got, "anxious") || !strings.Contains(got, "stomach") {
		t.Errorf("corrections not applied: %q", got)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 reported changes, got %d: %+v", len(changes), changes)
	}
	for _, c := range changes {
		if c.Original == "" || c.Corrected == "" {
			t.Errorf("change missing fields: %+v", c)
		}
	}
}

func TestCorrectTyposWholeWordOnly(t *testing.T) {
	// "cant" inside a longer word must not be touched.
	got, changes := CorrectTypos("the decanting process")
	if got != "the decanting process" {
		t.Errorf("text outside dictionary matches was altered: %q", got)
	}
	if len(changes) != 0 {
		t.Errorf("reported phantom changes: %+v", changes)
	}
}

func TestCorrectTyposContractions(t *testing.T) {
	got, _ := CorrectTypos("I cant do this and I dont know why")
	if !strings.Contains(got, "can't") || !strings.Contains(got, "don't") {
		t.Errorf("contractions not corrected: %q", got)
	}
}

func TestCorrectTyposCaseInsensitive(t *testing.T) {
	got, changes := CorrectTypos("Anxios about everything")
	if !strings.Contains(got, "anxious") {
		t.Errorf("case-insensitive match failed: %q", got)
	}
	if len(changes) != 1 {
		t.Errorf("expected one change, got %+v", changes)
	}
}

func TestCorrectTyposCleanText(t *testing.T) {
	in := "I feel anxious about my presentation tomorrow"
	got, changes := CorrectTypos(in)
	if got != in {
		t.Errorf("clean text was altered: %q", got)
	}
	if len(changes) != 0 {
		t.Errorf("reported changes for clean text: %+v", changes)
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("  hello  "); got != "hello" {
		t.Errorf("Sanitize trim failed: %q", got)
	}
	long := strings.Repeat("a", 1500)
	if got := Sanitize(long); len([]rune(got)) != 1000 {
		t.Errorf("Sanitize cap failed: length %d", len([]rune(got)))
	}
}
