// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (Groq or any other
// OpenAI-compatible endpoint, Deepgram, or a local whisper.cpp server or model)
// and exposes a uniform call: one finalized utterance clip in, one transcript
// out. Language detection is requested by leaving Options.Language empty.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
)

// Options carries per-call recognition hints.
type Options struct {
	// Language is the ISO-639-1 code of the spoken language (e.g., "es").
	// An empty string asks the provider to detect the language.
	Language string

	// Prompt is optional vocabulary context, typically glossary terms such as
	// proper nouns. Providers without prompt support ignore it.
	Prompt string
}

// Transcript is the result of transcribing one clip.
type Transcript struct {
	// Text is the transcribed speech. It may be empty when the clip contained
	// no recognisable speech; callers decide whether that is an error.
	Text string

	// Language is the language the provider detected, when it reports one.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). Zero means the
	// provider does not report confidence.
	Confidence float64

	// Duration is the audio duration the provider processed, when reported.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe sends clip to the backend and returns its transcript.
	//
	// Returns an error for transport, authentication or decoding failures.
	// An empty transcript is not an error at this layer.
	Transcribe(ctx context.Context, clip *audio.Clip, opts Options) (Transcript, error)
}
