// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to script transcripts and verify which clips and options the
// caller sent:
//
//	p := &mock.Provider{Result: stt.Transcript{Text: "Hola"}}
//	tr, _ := p.Transcribe(ctx, clip, stt.Options{Language: "es"})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Clip is the clip passed to Transcribe.
	Clip *audio.Clip
	// Opts is the Options value passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Delay, if positive, makes Transcribe block for that long (or until ctx
	// is done) before returning.
	Delay time.Duration

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, clip *audio.Clip, opts stt.Options) (stt.Transcript, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Clip: clip, Opts: opts})
	delay, result, err := p.Delay, p.Result, p.Err
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return result, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent call and true, or false when there was
// none. Thread-safe.
func (p *Provider) LastCall() (TranscribeCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return TranscribeCall{}, false
	}
	return p.Calls[len(p.Calls)-1], true
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
