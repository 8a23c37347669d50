// Package types defines the shared types used across all Polyglot packages.
//
// These types are passed between providers, the translation pipeline, the
// relay and the history store. Each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// DefaultConfidence is reported on a [TranslationResult] when the
// transcription backend does not return a confidence score of its own.
const DefaultConfidence = 0.95

// TranslationResult is the output of one successful pipeline run.
// It is immutable once produced; ownership passes to the caller.
type TranslationResult struct {
	// ID uniquely identifies the pipeline run that produced this result.
	ID string `json:"id"`

	// OriginalText is the (possibly glossary-corrected) transcript.
	OriginalText string `json:"original"`

	// TranslatedText is the translation of OriginalText.
	TranslatedText string `json:"translated"`

	// FromLanguage is the ISO 639-1 code of the spoken language.
	FromLanguage string `json:"fromLanguage"`

	// ToLanguage is the ISO 639-1 code of the translation target.
	ToLanguage string `json:"toLanguage"`

	// Confidence is the transcription confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Timestamp is when the result was produced.
	Timestamp time.Time `json:"timestamp"`

	// Audio holds the synthesized translation. Nil when synthesis was skipped
	// or failed.
	Audio *SynthesizedAudio `json:"-"`
}

// HasAudio reports whether r carries synthesized speech.
func (r *TranslationResult) HasAudio() bool {
	return r != nil && r.Audio != nil && len(r.Audio.Data) > 0
}

// AudioFormat names the encoding of a [SynthesizedAudio] payload.
type AudioFormat string

const (
	// FormatPCM16 is raw 16-bit little-endian signed PCM.
	FormatPCM16 AudioFormat = "pcm_s16le"

	// FormatWAV is a RIFF/WAVE container.
	FormatWAV AudioFormat = "wav"

	// FormatMP3 is MPEG layer 3.
	FormatMP3 AudioFormat = "mp3"
)

// SynthesizedAudio is speech produced by a TTS provider.
type SynthesizedAudio struct {
	// Data is the encoded audio.
	Data []byte

	// Format describes how Data is encoded.
	Format AudioFormat

	// SampleRate in Hz. Zero when the format is self-describing.
	SampleRate int

	// Channels is 1 for mono. Zero when the format is self-describing.
	Channels int

	// VoiceID is the provider voice used for synthesis.
	VoiceID string
}

// VoiceProfile describes a TTS voice available from a provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `json:"provider"`

	// Category is the provider classification, e.g. "premade" or "cloned".
	Category string `json:"category,omitempty"`

	// Metadata holds provider-specific attributes (gender, accent, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
