package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/polyglot/internal/relay"
)

// ErrReconnectFailed is returned when every rejoin attempt failed.
var ErrReconnectFailed = errors.New("session: reconnect failed")

// ReconnectorConfig configures a [Reconnector]. Zero durations and counts
// select the defaults noted on each field.
type ReconnectorConfig struct {
	Relay relay.Relay
	Room  string

	// MaxRetries caps the rejoin attempts. Default 10.
	MaxRetries int

	// Backoff is the wait after the first failed attempt. It doubles after
	// each further failure. Default 1s.
	Backoff time.Duration

	// MaxBackoff caps the wait. Default 30s.
	MaxBackoff time.Duration

	// OnRetry, if set, is called before every rejoin attempt after a failed
	// one. attempt counts from 1.
	OnRetry func(attempt int, lastErr error)
}

func (c ReconnectorConfig) withDefaults() ReconnectorConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	c.MaxBackoff = max(c.MaxBackoff, c.Backoff)
	return c
}

// delay returns the wait after the n-th failed attempt (n >= 1).
func (c ReconnectorConfig) delay(n int) time.Duration {
	d := c.Backoff
	for range n - 1 {
		if d >= c.MaxBackoff/2 {
			return c.MaxBackoff
		}
		d *= 2
	}
	return d
}

// Reconnector joins a relay room and rejoins it with exponential backoff
// after the transport drops.
type Reconnector struct {
	cfg ReconnectorConfig
}

// NewReconnector returns a [Reconnector] for cfg.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	return &Reconnector{cfg: cfg.withDefaults()}
}

// Connect performs the initial join. It does not retry.
func (r *Reconnector) Connect(ctx context.Context) (relay.Channel, error) {
	ch, err := r.cfg.Relay.Join(ctx, r.cfg.Room)
	if err != nil {
		return nil, fmt.Errorf("session: join %s: %w", relay.ChannelName(r.cfg.Room), err)
	}
	return ch, nil
}

// Reconnect rejoins the room until an attempt succeeds, ctx is done or
// MaxRetries attempts have failed.
func (r *Reconnector) Reconnect(ctx context.Context) (relay.Channel, error) {
	channel := relay.ChannelName(r.cfg.Room)
	log := slog.With("channel", channel)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			wait := time.NewTimer(r.cfg.delay(attempt - 1))
			select {
			case <-ctx.Done():
				wait.Stop()
				return nil, ctx.Err()
			case <-wait.C:
			}
			if r.cfg.OnRetry != nil {
				r.cfg.OnRetry(attempt, lastErr)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ch, err := r.cfg.Relay.Join(ctx, r.cfg.Room)
		if err == nil {
			log.Info("session: rejoined room", "attempt", attempt)
			return ch, nil
		}
		lastErr = err
		log.Warn("session: rejoin failed", "attempt", attempt, "of", r.cfg.MaxRetries, "error", err)
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrReconnectFailed, channel, r.cfg.MaxRetries, lastErr)
}
