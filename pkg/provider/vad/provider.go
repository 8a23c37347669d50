// Package vad defines frame-level voice activity classifiers.
//
// Utterances are segmented by loudness in the detector; an Engine is only
// consulted afterwards as a speech filter, so clips that are loud but
// voiceless (a door, a cough, keyboard noise) never reach the STT provider.
// See [HasSpeech].
package vad

import "fmt"

// Config describes the PCM stream a session classifies. Frames are 16-bit
// little-endian mono.
type Config struct {
	SampleRate int

	// FrameSizeMs is the frame length in milliseconds. Zero selects
	// DefaultFrameSizeMs.
	FrameSizeMs int

	// MinVoiced is the number of consecutive voiced frames that count as
	// speech. Zero means a single frame.
	MinVoiced int
}

// FrameBytes returns the byte length of one frame.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

func (c Config) withDefaults() (Config, error) {
	if c.SampleRate <= 0 {
		return c, fmt.Errorf("vad: invalid sample rate %d", c.SampleRate)
	}
	if c.FrameSizeMs <= 0 {
		c.FrameSizeMs = DefaultFrameSizeMs
	}
	c.MinVoiced = max(c.MinVoiced, 1)
	return c, nil
}

// Decision is the classification of one frame.
type Decision struct {
	Voiced bool

	// Probability is the speech likelihood in [0, 1]. Binary engines report
	// 0 or 1.
	Probability float64
}

// Session classifies the frames of one stream. It is not safe for concurrent
// use.
type Session interface {
	// Classify reports whether frame contains speech. frame must be exactly
	// Config.FrameBytes long.
	Classify(frame []byte) (Decision, error)

	// Close releases the session. Classify fails afterwards.
	Close() error
}

// Engine creates sessions. Implementations are safe for concurrent use.
type Engine interface {
	// NewSession validates cfg and returns a ready session.
	NewSession(cfg Config) (Session, error)
}
