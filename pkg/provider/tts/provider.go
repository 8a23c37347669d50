// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Coqui server). Polyglot synthesizes one translated utterance at a time, so
// the interface is a single blocking call that returns the complete audio.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/polyglot/pkg/types"
)

// ErrCloneUnsupported is returned by CloneVoice on backends or modes that
// cannot create voices.
var ErrCloneUnsupported = errors.New("tts: voice cloning not supported")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the voice identified by voiceID and returns
	// the complete audio. voiceID must name a voice known to the backend;
	// providers return an error when it is empty or unknown.
	//
	// Returns an error if the request fails, the backend returns no audio, or
	// ctx is cancelled.
	Synthesize(ctx context.Context, text, voiceID string) (*types.SynthesizedAudio, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// CloneVoice creates a new voice named name by training on the supplied
	// audio samples. Each sample is a WAV-encoded recording.
	//
	// This is an expensive operation and should not be called in the hot path.
	// An empty samples slice returns an error rather than panicking.
	CloneVoice(ctx context.Context, name string, samples [][]byte) (*types.VoiceProfile, error)
}
