// Package mock provides a test double for the translate package interfaces.
//
// Provider implements translate.Provider, translate.Detector and
// translate.Lister and records every call:
//
//	p := &mock.Provider{Result: "Hello"}
//	out, _ := p.Translate(ctx, "Hola", "en", "es")
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/polyglot/pkg/provider/translate"
	"github.com/MrWong99/polyglot/pkg/types"
)

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	Text   string
	Target string
	Source string
}

// Provider is a mock translator.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Translate when Err is nil.
	Result string

	// Err, if non-nil, is returned as the error from Translate.
	Err error

	// Delay, if positive, makes Translate block for that long (or until ctx
	// is done) before returning.
	Delay time.Duration

	// Detected and DetectErr are returned by DetectLanguage.
	Detected  string
	DetectErr error

	// Languages and ListErr are returned by SupportedLanguages.
	Languages []types.Language
	ListErr   error

	// Calls records every call to Translate.
	Calls []TranslateCall

	// DetectCalls records the text of every DetectLanguage call.
	DetectCalls []string
}

// Translate records the call and returns Result, Err.
func (p *Provider) Translate(ctx context.Context, text, target, source string) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranslateCall{Text: text, Target: target, Source: source})
	delay, result, err := p.Delay, p.Result, p.Err
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return result, nil
}

// DetectLanguage records the call and returns Detected, DetectErr.
func (p *Provider) DetectLanguage(_ context.Context, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DetectCalls = append(p.DetectCalls, text)
	return p.Detected, p.DetectErr
}

// SupportedLanguages returns Languages, ListErr.
func (p *Provider) SupportedLanguages(context.Context) ([]types.Language, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Languages, p.ListErr
}

// CallCount returns the number of Translate calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent Translate call and true, or false when
// there was none. Thread-safe.
func (p *Provider) LastCall() (TranslateCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return TranslateCall{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.DetectCalls = nil
}

// Compile-time interface assertions.
var (
	_ translate.Provider = (*Provider)(nil)
	_ translate.Detector = (*Provider)(nil)
	_ translate.Lister   = (*Provider)(nil)
)
