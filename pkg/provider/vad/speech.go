package vad

import (
	"errors"
	"fmt"
)

// DefaultFrameSizeMs is the frame length used when Config leaves it unset.
const DefaultFrameSizeMs = 30

// Summary counts the classified frames of a clip.
type Summary struct {
	Frames int
	Voiced int

	// Longest is the longest run of consecutive voiced frames.
	Longest int
}

// Ratio returns the voiced share of frames.
func (s Summary) Ratio() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.Voiced) / float64(s.Frames)
}

// HasSpeech reports whether pcm holds at least cfg.MinVoiced consecutive
// voiced frames. It stops at the first qualifying run.
func HasSpeech(e Engine, cfg Config, pcm []byte) (bool, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return false, err
	}
	s, err := scan(e, cfg, pcm, cfg.MinVoiced)
	if err != nil {
		return false, err
	}
	return s.Longest >= cfg.MinVoiced, nil
}

// Analyze classifies every frame of pcm.
func Analyze(e Engine, cfg Config, pcm []byte) (Summary, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return Summary{}, err
	}
	return scan(e, cfg, pcm, 0)
}

// scan classifies pcm frame by frame. A trailing partial frame is ignored.
// When stopAt is positive, scanning ends once a voiced run reaches it.
func scan(e Engine, cfg Config, pcm []byte, stopAt int) (Summary, error) {
	if e == nil {
		return Summary{}, errors.New("vad: nil engine")
	}
	sess, err := e.NewSession(cfg)
	if err != nil {
		return Summary{}, fmt.Errorf("vad: new session: %w", err)
	}
	defer sess.Close()

	var s Summary
	run := 0
	n := cfg.FrameBytes()
	for off := 0; off+n <= len(pcm); off += n {
		d, err := sess.Classify(pcm[off : off+n])
		if err != nil {
			return s, fmt.Errorf("vad: frame %d: %w", s.Frames, err)
		}
		s.Frames++
		if !d.Voiced {
			run = 0
			continue
		}
		s.Voiced++
		run++
		s.Longest = max(s.Longest, run)
		if stopAt > 0 && run >= stopAt {
			break
		}
	}
	return s, nil
}
