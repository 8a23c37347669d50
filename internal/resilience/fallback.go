package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllFailed is returned when every member of a [FallbackGroup] failed or
// was skipped by its breaker. The last member error is wrapped alongside it.
var ErrAllFailed = errors.New("resilience: all providers failed")

// ErrNoCapableProvider is returned when no member supports an optional
// capability.
var ErrNoCapableProvider = errors.New("resilience: no provider supports this operation")

// ErrAttemptTimeout is returned for a member that overran
// FallbackConfig.AttemptTimeout. Unlike a caller deadline it counts against
// the member's breaker.
var ErrAttemptTimeout = errors.New("resilience: provider attempt timed out")

// FallbackConfig configures a [FallbackGroup].
type FallbackConfig struct {
	// CircuitBreaker is the template for each member's breaker. Its Name is
	// replaced by the member name.
	CircuitBreaker CircuitBreakerConfig

	// AttemptTimeout bounds each member call so a hanging primary leaves
	// time for the fallbacks. Zero disables it.
	AttemptTimeout time.Duration
}

// Member is one named backend of a fallback chain.
type Member[T any] struct {
	Name     string
	Provider T
}

type guarded[T any] struct {
	Member[T]
	breaker *CircuitBreaker
}

// FallbackGroup tries its members in order, each behind its own
// [CircuitBreaker]. Membership is fixed at construction.
type FallbackGroup[T any] struct {
	members []guarded[T]
	timeout time.Duration
}

// NewFallbackGroup returns a group trying primary first, then rest in order.
func NewFallbackGroup[T any](cfg FallbackConfig, primary Member[T], rest ...Member[T]) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{timeout: cfg.AttemptTimeout}
	for _, m := range append([]Member[T]{primary}, rest...) {
		bc := cfg.CircuitBreaker
		bc.Name = m.Name
		fg.members = append(fg.members, guarded[T]{Member: m, breaker: NewCircuitBreaker(bc)})
	}
	return fg
}

// Names returns the member names in try order.
func (fg *FallbackGroup[T]) Names() []string {
	out := make([]string, len(fg.members))
	for i, m := range fg.members {
		out[i] = m.Name
	}
	return out
}

// Primary returns the first member's provider.
func (fg *FallbackGroup[T]) Primary() T { return fg.members[0].Provider }

// Breaker returns the named member's breaker, or nil.
func (fg *FallbackGroup[T]) Breaker(name string) *CircuitBreaker {
	for _, m := range fg.members {
		if m.Name == name {
			return m.breaker
		}
	}
	return nil
}

// Call runs fn against each member until one succeeds and returns its
// result. Members with an open breaker are skipped. Once ctx is done no
// further member is tried and the context error is returned.
func Call[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	return call(ctx, fg, nil, fn)
}

// call is Call restricted to members accepted by capable. A nil capable
// accepts every member.
func call[T, R any](ctx context.Context, fg *FallbackGroup[T], capable func(T) bool, fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
		tried   bool
	)
	for i, m := range fg.members {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if capable != nil && !capable(m.Provider) {
			continue
		}
		tried = true

		report, err := m.breaker.Allow()
		if err != nil {
			slog.Debug("resilience: skipping provider, circuit open", "provider", m.Name)
			lastErr = fmt.Errorf("%s: %w", m.Name, err)
			continue
		}
		res, err := attempt(ctx, fg.timeout, m.Provider, fn)
		report(err)
		if err == nil {
			if i > 0 {
				slog.Info("resilience: served by fallback", "provider", m.Name)
			}
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		slog.Warn("resilience: provider failed, trying next", "provider", m.Name, "error", err)
		lastErr = fmt.Errorf("%s: %w", m.Name, err)
	}
	if !tried {
		return zero, ErrNoCapableProvider
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// attempt calls fn, bounded by timeout when it is positive.
func attempt[T, R any](ctx context.Context, timeout time.Duration, p T, fn func(context.Context, T) (R, error)) (R, error) {
	if timeout <= 0 {
		return fn(ctx, p)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := fn(actx, p)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w after %v", ErrAttemptTimeout, timeout)
	}
	return res, err
}
