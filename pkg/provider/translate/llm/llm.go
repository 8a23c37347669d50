// Package llm implements translate.Provider on top of any llm.Provider by
// prompting the model to return the translation and nothing else.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/polyglot/pkg/provider/llm"
	"github.com/MrWong99/polyglot/pkg/provider/translate"
	"github.com/MrWong99/polyglot/pkg/types"
)

// defaultTemperature keeps output close to deterministic. Zero cannot be used
// because llm.CompletionRequest treats it as "provider default".
const defaultTemperature = 0.2

var (
	_ translate.Provider = (*Translator)(nil)
	_ translate.Detector = (*Translator)(nil)
)

// Option configures a Translator.
type Option func(*Translator)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(tr *Translator) { tr.temperature = t }
}

// WithMaxTokens caps the completion length. Zero leaves the provider default.
func WithMaxTokens(n int) Option {
	return func(tr *Translator) { tr.maxTokens = n }
}

// Translator translates text with a language model.
type Translator struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns a Translator backed by p.
func New(p llm.Provider, opts ...Option) (*Translator, error) {
	if p == nil {
		return nil, errors.New("translate/llm: llm provider must not be nil")
	}
	tr := &Translator{llm: p, temperature: defaultTemperature}
	for _, o := range opts {
		o(tr)
	}
	return tr, nil
}

// Translate implements translate.Provider.
func (t *Translator) Translate(ctx context.Context, text, target, source string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", errors.New("translate/llm: target language must not be empty")
	}

	var sys strings.Builder
	sys.WriteString("You are a professional interpreter. Translate the user's message")
	if source != "" {
		fmt.Fprintf(&sys, " from %s", languageName(source))
	}
	fmt.Fprintf(&sys, " into %s. ", languageName(target))
	sys.WriteString("Reply with the translation only. Do not add explanations, notes, quotes or transliterations. ")
	sys.WriteString("Keep names, numbers and punctuation intact.")

	out, err := t.complete(ctx, sys.String(), text)
	if err != nil {
		return "", err
	}
	return cleanReply(out), nil
}

// DetectLanguage implements translate.Detector.
func (t *Translator) DetectLanguage(ctx context.Context, text string) (string, error) {
	out, err := t.complete(ctx,
		"Identify the language of the user's message. Reply with its two-letter ISO 639-1 code only.",
		text)
	if err != nil {
		return "", err
	}
	return types.NormalizeLanguage(cleanReply(out)), nil
}

func (t *Translator) complete(ctx context.Context, system, text string) (string, error) {
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []types.Message{{Role: types.RoleUser, Content: text}},
		Temperature:  t.temperature,
		MaxTokens:    t.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("translate/llm: complete: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("translate/llm: %w", llm.ErrEmptyResponse)
	}
	return resp.Content, nil
}

// languageName renders code as "Spanish (es)" when it is in the catalogue.
func languageName(code string) string {
	if l, ok := types.LookupLanguage(code); ok {
		return fmt.Sprintf("%s (%s)", l.Name, l.Code)
	}
	return code
}

// cleanReply strips whitespace and one layer of wrapping quotes that models
// like to add.
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}, {"«", "»"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
