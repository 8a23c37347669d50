package transcript_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/polyglot/internal/transcript"
)

// stubMatcher matches windows by exact lower-case lookup.
type stubMatcher struct {
	mu      sync.Mutex
	terms   map[string]string
	windows []string
}

func (m *stubMatcher) Match(word string, _ []string) (string, float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, word)
	if t, ok := m.terms[strings.ToLower(word)]; ok {
		return t, 0.9, true
	}
	return word, 0, false
}

func TestGlossaryCorrector_Phonetic(t *testing.T) {
	t.Parallel()

	c := transcript.NewGlossaryCorrector(nil)
	res, err := c.Correct(context.Background(), "I visited barselona yesterday.", []string{"Barcelona"})
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if res.Corrected != "I visited Barcelona yesterday." {
		t.Errorf("Corrected = %q", res.Corrected)
	}
	if len(res.Corrections) != 1 {
		t.Fatalf("corrections = %+v", res.Corrections)
	}
	got := res.Corrections[0]
	if got.Original != "barselona" || got.Corrected != "Barcelona" || got.Method != "phonetic" {
		t.Errorf("correction = %+v", got)
	}
	if !res.Changed() {
		t.Error("Changed() = false")
	}
}

func TestGlossaryCorrector_MultiWordKeepsPunctuation(t *testing.T) {
	t.Parallel()

	m := &stubMatcher{terms: map[string]string{"tower of wispers": "Tower of Whispers"}}
	c := transcript.NewGlossaryCorrector(m)

	res, err := c.Correct(context.Background(), "we met at the tower of wispers, then left.", []string{"Tower of Whispers"})
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if res.Corrected != "we met at the Tower of Whispers, then left." {
		t.Errorf("Corrected = %q", res.Corrected)
	}
	if len(res.Corrections) != 1 || res.Corrections[0].Original != "tower of wispers" {
		t.Errorf("corrections = %+v", res.Corrections)
	}
}

func TestGlossaryCorrector_WindowsDoNotCrossPunctuation(t *testing.T) {
	t.Parallel()

	m := &stubMatcher{terms: map[string]string{}}
	c := transcript.NewGlossaryCorrector(m)

	if _, err := c.Correct(context.Background(), "tower. of wispers", []string{"Tower of Whispers"}); err != nil {
		t.Fatalf("Correct: %v", err)
	}
	for _, w := range m.windows {
		if strings.Contains(w, "tower of") {
			t.Errorf("window %q spans a sentence boundary", w)
		}
	}
}

func TestGlossaryCorrector_NoChange(t *testing.T) {
	t.Parallel()

	m := &stubMatcher{terms: map[string]string{"barcelona": "Barcelona"}}
	c := transcript.NewGlossaryCorrector(m)

	text := "Barcelona  is   lovely"
	res, err := c.Correct(context.Background(), text, []string{"Barcelona"})
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if res.Corrected != text {
		t.Errorf("Corrected = %q, want original spacing preserved", res.Corrected)
	}
	if res.Changed() || res.Corrections == nil {
		t.Errorf("corrections = %#v, want empty non-nil", res.Corrections)
	}
}

func TestGlossaryCorrector_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := &stubMatcher{}
	c := transcript.NewGlossaryCorrector(m)

	for _, tc := range []struct {
		text     string
		glossary []string
	}{
		{"hola", nil},
		{"   ", []string{"Barcelona"}},
		{"hola", []string{"  "}},
	} {
		res, err := c.Correct(context.Background(), tc.text, tc.glossary)
		if err != nil {
			t.Fatalf("Correct: %v", err)
		}
		if res.Corrected != tc.text || res.Changed() {
			t.Errorf("Correct(%q, %q) = %+v", tc.text, tc.glossary, res)
		}
	}
	if len(m.windows) != 0 {
		t.Errorf("matcher called %d times for empty inputs", len(m.windows))
	}
}
