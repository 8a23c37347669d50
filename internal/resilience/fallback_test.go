package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

type namedErr string

func (e namedErr) Error() string { return string(e) }

func pair(cfg FallbackConfig) *FallbackGroup[string] {
	return NewFallbackGroup(cfg, Member[string]{"a", "primary"}, Member[string]{"b", "secondary"})
}

func TestCall_PrimarySuccess(t *testing.T) {
	t.Parallel()

	var used []string
	got, err := Call(context.Background(), pair(FallbackConfig{}), func(_ context.Context, v string) (string, error) {
		used = append(used, v)
		return v + "!", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "primary!" || !slices.Equal(used, []string{"primary"}) {
		t.Errorf("result = %q, used = %v", got, used)
	}
}

func TestCall_Failover(t *testing.T) {
	t.Parallel()

	got, err := Call(context.Background(), pair(FallbackConfig{}), func(_ context.Context, v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "secondary" {
		t.Errorf("result = %q, want secondary", got)
	}
}

func TestCall_AllFailed(t *testing.T) {
	t.Parallel()

	_, err := Call(context.Background(), pair(FallbackConfig{}), func(_ context.Context, v string) (int, error) {
		return 0, namedErr(v + " down")
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("error = %v, want ErrAllFailed", err)
	}
	var last namedErr
	if !errors.As(err, &last) || last != "secondary down" {
		t.Errorf("last error = %v, want secondary down", last)
	}
}

func TestCall_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := pair(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}})

	calls := map[string]int{}
	fn := func(_ context.Context, v string) (struct{}, error) {
		calls[v]++
		if v == "primary" {
			return struct{}{}, errTest
		}
		return struct{}{}, nil
	}
	for range 3 {
		if _, err := Call(context.Background(), fg, fn); err != nil {
			t.Fatal(err)
		}
	}
	if calls["primary"] != 1 || calls["secondary"] != 3 {
		t.Errorf("calls = %v, want primary once and secondary three times", calls)
	}
	if fg.Breaker("a").State() != StateOpen {
		t.Errorf("breaker a = %v, want open", fg.Breaker("a").State())
	}
	if fg.Breaker("missing") != nil {
		t.Error("Breaker(missing) should be nil")
	}
}

func TestCall_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var used []string
	_, err := Call(ctx, pair(FallbackConfig{}), func(_ context.Context, v string) (int, error) {
		used = append(used, v)
		cancel()
		return 0, context.Canceled
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("error = %v, want bare context.Canceled", err)
	}
	if len(used) != 1 {
		t.Errorf("tried %v, want only the primary", used)
	}
}

func TestCall_AttemptTimeout(t *testing.T) {
	t.Parallel()
	fg := pair(FallbackConfig{
		AttemptTimeout: 20 * time.Millisecond,
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})

	got, err := Call(context.Background(), fg, func(ctx context.Context, v string) (string, error) {
		if v == "primary" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return v, nil
	})
	if err != nil || got != "secondary" {
		t.Fatalf("Call = %q, %v; want the fallback after the primary hung", got, err)
	}
	if fg.Breaker("a").State() != StateOpen {
		t.Errorf("breaker a = %v, want open: a hung attempt counts as a failure", fg.Breaker("a").State())
	}
}

func TestCall_AttemptTimeoutError(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(FallbackConfig{AttemptTimeout: time.Millisecond}, Member[string]{"only", "x"})

	_, err := Call(context.Background(), fg, func(ctx context.Context, _ string) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want ErrAttemptTimeout only", err)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(FallbackConfig{},
		Member[int]{"groq", 1}, Member[int]{"whisper", 2}, Member[int]{"deepgram", 3})
	if got := fg.Names(); !slices.Equal(got, []string{"groq", "whisper", "deepgram"}) {
		t.Errorf("Names() = %v", got)
	}
	if fg.Primary() != 1 {
		t.Errorf("Primary() = %d", fg.Primary())
	}
}

func TestFallbackGroup_BreakerCallback(t *testing.T) {
	t.Parallel()
	var tripped []string
	fg := pair(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures: 1,
		OnStateChange: func(name string, _, to State) {
			if to == StateOpen {
				tripped = append(tripped, name)
			}
		},
	}})

	_, _ = Call(context.Background(), fg, func(_ context.Context, _ string) (int, error) { return 0, errTest })
	if !slices.Equal(tripped, []string{"a", "b"}) {
		t.Errorf("tripped = %v, want both members by name", tripped)
	}
}
