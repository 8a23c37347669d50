// Package mock provides an in-memory tts.Provider for tests.
//
// The zero Provider accepts every voice and returns a short silent PCM
// payload. Set Voices to make it reject unknown voice IDs the way real
// backends do.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/polyglot/pkg/provider/tts"
	"github.com/MrWong99/polyglot/pkg/types"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall is one recorded Synthesize invocation.
type SynthesizeCall struct {
	Text    string
	VoiceID string
}

// Provider is a scriptable tts.Provider. Configure fields before first use.
type Provider struct {
	// Voices is the catalogue returned by ListVoices. When non-empty,
	// Synthesize rejects voice IDs not in it. CloneVoice appends to it.
	Voices []types.VoiceProfile

	// Audio replaces the default silent payload.
	Audio *types.SynthesizedAudio

	// SynthesizeErr, ListVoicesErr and CloneVoiceErr fail the matching call.
	SynthesizeErr error
	ListVoicesErr error
	CloneVoiceErr error

	// Delay is waited out, honouring ctx, before Synthesize returns.
	Delay time.Duration

	mu     sync.Mutex
	calls  []SynthesizeCall
	lists  int
	clones []string
}

// Synthesize records the call and returns audio tagged with voiceID.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (*types.SynthesizedAudio, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, VoiceID: voiceID})
	known := len(p.Voices) == 0 || slices.ContainsFunc(p.Voices, func(v types.VoiceProfile) bool { return v.ID == voiceID })
	p.mu.Unlock()

	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	switch {
	case p.SynthesizeErr != nil:
		return nil, p.SynthesizeErr
	case !known:
		return nil, fmt.Errorf("mock: unknown voice %q", voiceID)
	}

	out := types.SynthesizedAudio{
		Data:       []byte{0, 0},
		Format:     types.FormatPCM16,
		SampleRate: 16000,
		Channels:   1,
	}
	if p.Audio != nil {
		out = *p.Audio
	}
	out.VoiceID = voiceID
	return &out, nil
}

// ListVoices returns a copy of Voices.
func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return slices.Clone(p.Voices), nil
}

// CloneVoice adds a voice named name to the catalogue.
func (p *Provider) CloneVoice(_ context.Context, name string, samples [][]byte) (*types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clones = append(p.clones, name)
	if p.CloneVoiceErr != nil {
		return nil, p.CloneVoiceErr
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("mock: clone %q: no samples", name)
	}
	v := types.VoiceProfile{ID: fmt.Sprintf("clone-%d", len(p.clones)), Name: name}
	p.Voices = append(p.Voices, v)
	return &v, nil
}

// Calls returns the recorded Synthesize calls in order.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// CallCount returns the number of Synthesize calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// LastCall returns the latest Synthesize call, if any.
func (p *Provider) LastCall() (SynthesizeCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return SynthesizeCall{}, false
	}
	return p.calls[len(p.calls)-1], true
}

// ListCount returns the number of ListVoices calls.
func (p *Provider) ListCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lists
}

// Clones returns the names passed to CloneVoice in order.
func (p *Provider) Clones() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.clones)
}
