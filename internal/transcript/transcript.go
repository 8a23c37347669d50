// Package transcript corrects speech-to-text output against a user glossary
// before it is translated.
//
// Names, places and jargon are frequently misheard ("barselona" for
// "Barcelona"). A translator cannot repair such errors, so the [Corrector]
// rewrites transcript spans that sound like a glossary term into the term's
// canonical spelling. Each [Correction] records what was replaced and how
// confident the match was so callers can log or display it.
//
// Implementations must be safe for concurrent use.
package transcript

import "context"

// Correction captures a single substitution.
type Correction struct {
	// Original is the span as produced by the STT provider.
	Original string

	// Corrected is the glossary term that replaced it.
	Corrected string

	// Confidence is the similarity score of the match (0.0–1.0).
	Confidence float64

	// Method names the stage that produced the substitution, e.g. "phonetic".
	Method string
}

// Result is the output of a [Corrector.Correct] call.
type Result struct {
	// Original is the raw transcript text.
	Original string

	// Corrected is the text with all substitutions applied. Equals Original
	// when nothing changed.
	Corrected string

	// Corrections lists every substitution in text order. An empty (non-nil)
	// slice means no corrections were necessary.
	Corrections []Correction
}

// Changed reports whether any substitution was applied.
func (r *Result) Changed() bool {
	return r != nil && len(r.Corrections) > 0
}

// Corrector rewrites misheard glossary terms in a transcript.
type Corrector interface {
	// Correct returns text with glossary terms restored. A nil or empty
	// glossary returns text unchanged.
	Correct(ctx context.Context, text string, glossary []string) (*Result, error)
}

// PhoneticMatcher resolves a word or n-gram to a glossary term based on
// pronunciation similarity. It must be fast enough for the real-time path.
type PhoneticMatcher interface {
	// Match returns the best glossary term for word. When matched is false,
	// corrected equals word unchanged and confidence is 0.
	Match(word string, glossary []string) (corrected string, confidence float64, matched bool)
}
