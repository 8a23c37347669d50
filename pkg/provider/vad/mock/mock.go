// Package mock provides a scripted vad.Engine for tests.
//
//	eng := &mock.Engine{Session: &mock.Session{Script: []bool{false, true}}}
package mock

import (
	"sync"

	"github.com/MrWong99/polyglot/pkg/provider/vad"
)

var (
	_ vad.Engine  = (*Engine)(nil)
	_ vad.Session = (*Session)(nil)
)

// Engine hands out Session, or a silent session when Session is nil, and
// records the configs it was asked for.
type Engine struct {
	Session       *Session
	NewSessionErr error

	mu      sync.Mutex
	configs []vad.Config
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session == nil {
		return &Session{}, nil
	}
	return e.Session, nil
}

// Configs returns the configs passed to NewSession in order.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

// Session classifies frames from Script, one entry per call, then falls back
// to Voiced.
type Session struct {
	Script      []bool
	Voiced      bool
	ClassifyErr error

	mu     sync.Mutex
	frames int
	closed int
}

// Classify implements vad.Session.
func (s *Session) Classify(_ []byte) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.frames
	s.frames++
	if s.ClassifyErr != nil {
		return vad.Decision{}, s.ClassifyErr
	}
	voiced := s.Voiced
	if i < len(s.Script) {
		voiced = s.Script[i]
	}
	d := vad.Decision{Voiced: voiced}
	if voiced {
		d.Probability = 1
	}
	return d, nil
}

// Close implements vad.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Frames returns how many frames were classified.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Closed returns how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
