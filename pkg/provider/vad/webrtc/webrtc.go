// Package webrtc implements vad.Engine with the WebRTC voice activity
// detector via github.com/maxhawkins/go-webrtcvad.
//
// The detector is binary, so every Decision has probability 0 or 1. Frames
// must be 10, 20 or 30 ms of 16-bit mono PCM at 8, 16, 32 or 48 kHz.
package webrtc

import (
	"errors"
	"fmt"
	"slices"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/polyglot/pkg/provider/vad"
)

// DefaultMode is the aggressiveness used when none is configured.
const DefaultMode = 2

var (
	sampleRates = []int{8000, 16000, 32000, 48000}
	frameSizes  = []int{10, 20, 30}

	errClosed = errors.New("webrtc: session closed")
)

var (
	_ vad.Engine  = (*Engine)(nil)
	_ vad.Session = (*session)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithMode sets the aggressiveness from 0 (keeps most audio as speech) to 3
// (filters hardest).
func WithMode(mode int) Option {
	return func(e *Engine) { e.mode = mode }
}

// Engine creates WebRTC VAD sessions.
type Engine struct {
	mode int
}

// New returns an Engine. An out-of-range mode fails here rather than on the
// first clip.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{mode: DefaultMode}
	for _, o := range opts {
		o(e)
	}
	if e.mode < 0 || e.mode > 3 {
		return nil, fmt.Errorf("webrtc: mode %d out of range 0..3", e.mode)
	}
	return e, nil
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if !slices.Contains(sampleRates, cfg.SampleRate) {
		return nil, fmt.Errorf("webrtc: unsupported sample rate %d (want one of %v)", cfg.SampleRate, sampleRates)
	}
	if !slices.Contains(frameSizes, cfg.FrameSizeMs) {
		return nil, fmt.Errorf("webrtc: unsupported frame size %d ms (want one of %v)", cfg.FrameSizeMs, frameSizes)
	}

	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc: create detector: %w", err)
	}
	if err := det.SetMode(e.mode); err != nil {
		return nil, fmt.Errorf("webrtc: set mode %d: %w", e.mode, err)
	}
	return &session{det: det, rate: cfg.SampleRate, size: cfg.FrameBytes()}, nil
}

type session struct {
	det  *webrtcvad.VAD
	rate int
	size int
}

func (s *session) Classify(frame []byte) (vad.Decision, error) {
	if s.det == nil {
		return vad.Decision{}, errClosed
	}
	if len(frame) != s.size {
		return vad.Decision{}, fmt.Errorf("webrtc: frame is %d bytes, want %d", len(frame), s.size)
	}
	voiced, err := s.det.Process(s.rate, frame)
	if err != nil {
		return vad.Decision{}, fmt.Errorf("webrtc: classify: %w", err)
	}
	if !voiced {
		return vad.Decision{}, nil
	}
	return vad.Decision{Voiced: true, Probability: 1}, nil
}

func (s *session) Close() error {
	s.det = nil
	return nil
}
