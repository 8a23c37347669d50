package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrDeviceUnavailable is returned by [Capture.Start] when the input
	// device cannot be opened (permission denied, no device present, ...).
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")

	// ErrAlreadyActive is returned by [Capture.Start] when capture is running.
	ErrAlreadyActive = errors.New("audio: capture already active")
)

// DefaultFrameSize is the number of samples per channel in one frame
// (32 ms at 16 kHz).
const DefaultFrameSize = 512

// subscriberBuffer is the frame backlog kept per subscriber before frames
// are dropped. 256 frames of 32 ms hold roughly eight seconds.
const subscriberBuffer = 256

// InputDevice acquires an audio input such as a microphone.
type InputDevice interface {
	// Open acquires the device and returns a stream producing frames of
	// frameSize samples per channel in the requested format.
	Open(ctx context.Context, format Format, frameSize int) (InputStream, error)
}

// InputStream is an open device stream.
type InputStream interface {
	// Read blocks until the next frame of PCM is available. The returned
	// slice must not be reused by the stream.
	Read() ([]byte, error)

	// Close releases the device. It unblocks a pending Read, which then
	// returns an error. Close must be safe to call more than once.
	Close() error
}

// CaptureOption is a functional option for [NewCapture].
type CaptureOption func(*Capture)

// WithFormat sets the capture format. Defaults to [DefaultFormat].
func WithFormat(f Format) CaptureOption {
	return func(c *Capture) { c.format = f }
}

// WithFrameSize sets the samples per channel in each frame. Defaults to
// [DefaultFrameSize].
func WithFrameSize(n int) CaptureOption {
	return func(c *Capture) {
		if n > 0 {
			c.frameSize = n
		}
	}
}

// WithLevelInterval sets the loudness tick. Defaults to
// [DefaultLevelInterval].
func WithLevelInterval(d time.Duration) CaptureOption {
	return func(c *Capture) { c.levelInterval = d }
}

// Capture owns one input device for the duration of a listening session. It
// fans raw frames out to subscribers and feeds a [LevelMonitor].
//
// All methods are safe for concurrent use. Stop is the single teardown path
// and may be called any number of times, from any goroutine.
type Capture struct {
	dev           InputDevice
	format        Format
	frameSize     int
	levelInterval time.Duration
	monitor       *LevelMonitor

	mu       sync.Mutex
	active   bool
	stopping bool
	stream   InputStream
	done     chan struct{}
	released chan struct{}
	subs     map[int]chan AudioFrame
	nextSub  int
	onError  []func(error)
}

// NewCapture returns a stopped capture reading from dev.
func NewCapture(dev InputDevice, opts ...CaptureOption) *Capture {
	c := &Capture{
		dev:       dev,
		format:    DefaultFormat,
		frameSize: DefaultFrameSize,
		subs:      make(map[int]chan AudioFrame),
	}
	for _, o := range opts {
		o(c)
	}
	c.monitor = NewLevelMonitor(c.levelInterval)
	return c
}

// Format returns the capture format.
func (c *Capture) Format() Format { return c.format }

// Monitor returns the level monitor fed by this capture.
func (c *Capture) Monitor() *LevelMonitor { return c.monitor }

// OnLevel registers a per-tick loudness observer. See [LevelMonitor.OnLevel].
func (c *Capture) OnLevel(fn func(Level)) {
	c.monitor.OnLevel(fn)
}

// OnError registers fn to be called once when the device fails while
// capturing. Capture has already released the device when fn runs.
func (c *Capture) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

// Active reports whether the device is currently open.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Start opens the device and begins reading frames.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrAlreadyActive
	}
	if c.dev == nil {
		return fmt.Errorf("%w: no device configured", ErrDeviceUnavailable)
	}

	stream, err := c.dev.Open(ctx, c.format, c.frameSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	c.active = true
	c.stopping = false
	c.stream = stream
	c.done = make(chan struct{})
	c.released = make(chan struct{})
	c.monitor.Start()
	go c.readLoop(stream, c.done)

	slog.Debug("audio capture started", "format", c.format.String(), "frame_size", c.frameSize)
	return nil
}

// Stop releases the device and every derived resource. It always succeeds and
// is idempotent. When Stop returns, no further frame, level or error callback
// is delivered. A Stop racing a device failure waits for that teardown.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.active {
		released := c.released
		c.mu.Unlock()
		if released != nil {
			<-released
		}
		return nil
	}
	c.active = false
	c.stopping = true
	stream, done, released := c.stream, c.done, c.released
	c.stream = nil
	c.mu.Unlock()

	if err := stream.Close(); err != nil {
		slog.Debug("audio capture: close stream", "error", err)
	}
	<-done
	c.monitor.Stop()
	c.closeSubscribers()
	close(released)

	slog.Debug("audio capture stopped")
	return nil
}

// Subscribe returns a channel receiving every captured frame and a cancel
// function. Delivery never blocks the device: a subscriber that falls more
// than a few seconds behind loses frames. The channel is closed when the
// capture stops or cancel is called. Subscribing to an inactive capture
// returns a closed channel.
func (c *Capture) Subscribe() (<-chan AudioFrame, func()) {
	ch := make(chan AudioFrame, subscriberBuffer)

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		sub, ok := c.subs[id]
		delete(c.subs, id)
		c.mu.Unlock()
		if ok {
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Capture) readLoop(stream InputStream, done chan<- struct{}) {
	defer close(done)

	var elapsed time.Duration
	for {
		data, err := stream.Read()
		if err != nil {
			c.fail(stream, err)
			return
		}
		frame := AudioFrame{
			Data:       data,
			SampleRate: c.format.SampleRate,
			Channels:   c.format.Channels,
			Timestamp:  elapsed,
		}
		elapsed += frame.Duration()

		c.monitor.Observe(frame)
		c.publish(frame)
	}
}

// publish hands frame to every subscriber without blocking. The lock is held
// while sending so that cancel never closes a channel mid-send.
func (c *Capture) publish(frame AudioFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return
	}
	for id, ch := range c.subs {
		select {
		case ch <- frame:
		default:
			slog.Debug("audio capture: subscriber behind, dropping frame", "subscriber", id)
		}
	}
}

// fail handles a read error. An error caused by Stop closing the stream is
// silent; anything else self-stops the capture and is reported once.
func (c *Capture) fail(stream InputStream, err error) {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.stopping = true
	c.stream = nil
	observers := c.onError
	released := c.released
	c.mu.Unlock()

	_ = stream.Close()
	c.monitor.Stop()
	c.closeSubscribers()
	close(released)

	slog.Warn("audio capture failed", "error", err)
	deviceErr := fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	for _, fn := range observers {
		fn(deviceErr)
	}
}

func (c *Capture) closeSubscribers() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[int]chan AudioFrame)
	c.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}
