package session_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/polyglot/internal/relay"
	"github.com/MrWong99/polyglot/internal/session"
)

// flakyRelay fails the first failures joins.
type flakyRelay struct {
	hub      *relay.Hub
	failures int

	mu    sync.Mutex
	calls int
}

func (r *flakyRelay) Join(ctx context.Context, room string) (relay.Channel, error) {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.failures
	r.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return r.hub.Join(ctx, room)
}

func TestReconnector_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	fr := &flakyRelay{hub: relay.NewMemoryHub(), failures: 2}
	r := session.NewReconnector(session.ReconnectorConfig{
		Relay:   fr,
		Room:    "AB12CD",
		Backoff: time.Millisecond,
	})

	ch, err := r.Reconnect(context.Background())
	if err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	defer ch.Close()
	if fr.calls != 3 {
		t.Errorf("join attempts = %d, want 3", fr.calls)
	}
}

func TestReconnector_OnRetry(t *testing.T) {
	t.Parallel()

	var (
		attempts []int
		lastErrs []error
	)
	fr := &flakyRelay{hub: relay.NewMemoryHub(), failures: 3}
	r := session.NewReconnector(session.ReconnectorConfig{
		Relay:      fr,
		Room:       "AB12CD",
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
		OnRetry: func(attempt int, err error) {
			attempts = append(attempts, attempt)
			lastErrs = append(lastErrs, err)
		},
	})

	ch, err := r.Reconnect(context.Background())
	if err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	defer ch.Close()

	if want := []int{2, 3, 4}; !slices.Equal(attempts, want) {
		t.Errorf("retries = %v, want %v", attempts, want)
	}
	for i, e := range lastErrs {
		if e == nil {
			t.Errorf("retry %d: lastErr is nil", i)
		}
	}
}

func TestReconnector_GivesUp(t *testing.T) {
	t.Parallel()

	fr := &flakyRelay{hub: relay.NewMemoryHub(), failures: 100}
	r := session.NewReconnector(session.ReconnectorConfig{
		Relay:      fr,
		Room:       "AB12CD",
		MaxRetries: 3,
		Backoff:    time.Millisecond,
	})

	_, err := r.Reconnect(context.Background())
	if !errors.Is(err, session.ErrReconnectFailed) {
		t.Fatalf("err = %v, want ErrReconnectFailed", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v, want the last join error included", err)
	}
	if fr.calls != 3 {
		t.Errorf("join attempts = %d, want 3", fr.calls)
	}
	if session.UserMessage(err) != session.MessageNetwork {
		t.Errorf("message = %q", session.UserMessage(err))
	}
}

func TestReconnector_StopsOnCancel(t *testing.T) {
	t.Parallel()

	fr := &flakyRelay{hub: relay.NewMemoryHub(), failures: 100}
	r := session.NewReconnector(session.ReconnectorConfig{
		Relay:   fr,
		Room:    "AB12CD",
		Backoff: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Reconnect(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Reconnect did not stop on cancel")
	}
}

func TestConnect_WrapsError(t *testing.T) {
	t.Parallel()

	fr := &flakyRelay{hub: relay.NewMemoryHub(), failures: 1}
	r := session.NewReconnector(session.ReconnectorConfig{Relay: fr, Room: "AB12CD"})
	if _, err := r.Connect(context.Background()); err == nil {
		t.Fatal("expected error from first Connect")
	}
	ch, err := r.Connect(context.Background())
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	_ = ch.Close()
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]session.Mode{"host": session.ModeHost, " JOIN ": session.ModeJoin, "solo": session.ModeSolo} {
		got, err := session.ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := session.ParseMode("spectator"); !errors.Is(err, session.ErrInvalidMode) {
		t.Errorf("err = %v", err)
	}
}

func TestEventType_String(t *testing.T) {
	t.Parallel()
	if session.EventSessionEnded.String() != "session_ended" || session.EventType(99).String() != "event(99)" {
		t.Error("unexpected event names")
	}
}
