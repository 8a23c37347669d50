package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/polyglot/internal/relay"
)

func recv(t *testing.T, ch relay.Channel) relay.Message {
	t.Helper()
	select {
	case m, ok := <-ch.Messages():
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return relay.Message{}
}

func expectNone(t *testing.T, ch relay.Channel) {
	t.Helper()
	select {
	case m, ok := <-ch.Messages():
		if ok {
			t.Fatalf("unexpected message %+v", m)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_FanOutSkipsSender(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var h relay.Hub
	host, err := h.Join(ctx, "ab12cd")
	if err != nil {
		t.Fatal(err)
	}
	defer host.Close()
	a, _ := h.Join(ctx, "AB12CD")
	defer a.Close()
	b, _ := h.Join(ctx, "AB12CD")
	defer b.Close()
	other, _ := h.Join(ctx, "ZZZZZZ")
	defer other.Close()

	if n := h.Members("AB12CD"); n != 3 {
		t.Fatalf("Members = %d, want 3", n)
	}

	sent := relay.NewSessionEnded("AB12CD", time.Now())
	if err := host.Publish(ctx, sent); err != nil {
		t.Fatal(err)
	}
	for _, ch := range []relay.Channel{a, b} {
		if got := recv(t, ch); got.ID != sent.ID {
			t.Errorf("got %q, want %q", got.ID, sent.ID)
		}
	}
	expectNone(t, host)
	expectNone(t, other)
}

func TestHub_ClosedChannel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var h relay.Hub
	ch, _ := h.Join(ctx, "AB12CD")
	if err := ch.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, ok := <-ch.Messages(); ok {
		t.Error("Messages should be closed")
	}
	if err := ch.Publish(ctx, relay.Message{Type: relay.TypeText}); !errors.Is(err, relay.ErrClosed) {
		t.Errorf("Publish err = %v, want ErrClosed", err)
	}
	if n := h.Members("AB12CD"); n != 0 {
		t.Errorf("Members = %d, want 0", n)
	}
}

func TestHub_InvalidRoom(t *testing.T) {
	t.Parallel()

	var h relay.Hub
	if _, err := h.Join(context.Background(), "nope"); !errors.Is(err, relay.ErrInvalidRoom) {
		t.Errorf("err = %v, want ErrInvalidRoom", err)
	}
}
