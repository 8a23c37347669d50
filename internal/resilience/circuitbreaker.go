// Package resilience keeps the translation pipeline running when a cloud
// provider misbehaves.
//
// A [CircuitBreaker] stops calling a backend after repeated failures and
// probes it again after a cool-down. A [FallbackGroup] puts a breaker in
// front of each configured backend and walks them in order. The typed
// chains ([STTFallback], [TranslateFallback], [TTSFallback], [LLMFallback])
// satisfy the provider interfaces, so the pipeline cannot tell them from a
// single backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probes.
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Breaker defaults.
const (
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 1
)

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values select the
// Default* constants.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and callbacks, usually the provider.
	Name string

	// MaxFailures consecutive failures open the breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenMax successful probes close the breaker again. It is also the
	// number of probes allowed in flight.
	HalfOpenMax int

	// OnStateChange, if set, is called after every transition. It runs with
	// the breaker locked and must not call back into it.
	OnStateChange func(name string, from, to State)

	// Now replaces time.Now in tests.
	Now func() time.Time
}

// CircuitBreaker is a three-state circuit breaker.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu        sync.Mutex
	state     State
	gen       uint64 // bumped on every transition
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = DefaultHalfOpenMax
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Allow reserves a call. On success the caller must pass the call's outcome
// to report exactly once. Errors matching context.Canceled or
// context.DeadlineExceeded are not counted against the backend.
func (cb *CircuitBreaker) Allow() (report func(error), err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return nil, ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
	}
	probe := cb.state == StateHalfOpen
	if probe {
		if cb.inFlight >= cb.cfg.HalfOpenMax {
			return nil, ErrCircuitOpen
		}
		cb.inFlight++
	}

	gen := cb.gen
	var once sync.Once
	return func(err error) {
		once.Do(func() { cb.record(gen, probe, err) })
	}, nil
}

// Execute runs fn when the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	report, err := cb.Allow()
	if err != nil {
		return err
	}
	err = fn()
	report(err)
	return err
}

func (cb *CircuitBreaker) record(gen uint64, probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Outcomes admitted before the last transition are stale.
	if gen != cb.gen {
		return
	}
	if probe {
		cb.inFlight--
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	case err != nil && probe:
		slog.Warn("resilience: probe failed, circuit re-opened", "provider", cb.cfg.Name, "error", err)
		cb.trip()
	case err != nil:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			slog.Warn("resilience: circuit opened", "provider", cb.cfg.Name, "consecutive_failures", cb.failures)
			cb.trip()
		}
	case probe:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			slog.Info("resilience: circuit closed after successful probe", "provider", cb.cfg.Name)
			cb.setState(StateClosed)
		}
	default:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.cfg.Now()
	cb.setState(StateOpen)
}

// setState moves to s, clearing the counters. cb.mu must be held.
func (cb *CircuitBreaker) setState(s State) {
	from := cb.state
	cb.state = s
	cb.gen++
	cb.failures, cb.successes, cb.inFlight = 0, 0, 0
	if from == s {
		return
	}
	if s == StateHalfOpen {
		slog.Info("resilience: circuit half-open, probing", "provider", cb.cfg.Name)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, s)
	}
}

// State returns the current state. An open breaker whose timeout has
// elapsed reports StateHalfOpen; the transition happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.cfg.Name }

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	slog.Info("resilience: circuit manually reset", "provider", cb.cfg.Name)
}
