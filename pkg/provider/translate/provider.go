// Package translate defines the Provider interface for text translation
// backends such as DeepL or a prompt-driven LLM.
//
// Language arguments are ISO-639-1 codes ("es", "en"). Implementations map
// them to whatever their backend expects. An empty source language asks the
// backend to detect it.
//
// Implementations must be safe for concurrent use.
package translate

import (
	"context"

	"github.com/MrWong99/polyglot/pkg/types"
)

// Provider translates text.
type Provider interface {
	// Translate returns text rendered in target. source may be empty for
	// automatic detection. An empty translation is not an error at this layer.
	Translate(ctx context.Context, text, target, source string) (string, error)
}

// Detector is implemented by providers that can identify the language of a
// text without translating it for the caller.
type Detector interface {
	// DetectLanguage returns the ISO-639-1 code of text's language.
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// Lister is implemented by providers that can report their target languages.
type Lister interface {
	// SupportedLanguages returns the languages the backend can translate into.
	SupportedLanguages(ctx context.Context) ([]types.Language, error)
}
