// Package mock provides a scripted in-memory implementation of
// [audio.InputDevice] for use in unit tests.
//
// The device records every Open call. Each opened [Stream] yields exactly the
// frames the test pushes, and can be made to fail on demand:
//
//	dev := &mock.Device{}
//	capture := audio.NewCapture(dev)
//	_ = capture.Start(ctx)
//	dev.LastStream().Push(pcm)
//	dev.LastStream().Fail(errors.New("unplugged"))
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/polyglot/pkg/audio"
)

// ErrStreamClosed is returned by [Stream.Read] after Close.
var ErrStreamClosed = errors.New("mock: stream closed")

// Compile-time interface assertions.
var (
	_ audio.InputDevice = (*Device)(nil)
	_ audio.InputStream = (*Stream)(nil)
)

// Device is a mock [audio.InputDevice].
type Device struct {
	mu sync.Mutex

	// OpenErr is returned by Open when non-nil.
	OpenErr error

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// LastFormat and LastFrameSize record the arguments of the last Open.
	LastFormat    audio.Format
	LastFrameSize int

	// CloseHook, when set, runs inside the first Close of every opened
	// stream before the stream reports itself closed.
	CloseHook func()

	streams []*Stream
}

// Open implements [audio.InputDevice].
func (d *Device) Open(_ context.Context, format audio.Format, frameSize int) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountOpen++
	d.LastFormat = format
	d.LastFrameSize = frameSize
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := NewStream()
	s.closeHook = d.CloseHook
	d.streams = append(d.streams, s)
	return s, nil
}

// LastStream returns the most recently opened stream, or nil.
func (d *Device) LastStream() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// OpenStreams returns the number of opened streams that are not closed.
func (d *Device) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.streams {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// Stream is a mock [audio.InputStream] fed by the test.
type Stream struct {
	frames chan []byte
	errs   chan error
	closed chan struct{}
	once   sync.Once

	closeHook func()

	mu         sync.Mutex
	closeCount int
}

// NewStream returns an open stream.
func NewStream() *Stream {
	return &Stream{
		frames: make(chan []byte),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// Push hands pcm to the next Read. It blocks until the frame is read and
// returns false if the stream was closed first.
func (s *Stream) Push(pcm []byte) bool {
	select {
	case s.frames <- pcm:
		return true
	case <-s.closed:
		return false
	}
}

// Fail makes the next Read return err.
func (s *Stream) Fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// Read implements [audio.InputStream].
func (s *Stream) Read() ([]byte, error) {
	select {
	case <-s.closed:
		return nil, ErrStreamClosed
	default:
	}
	select {
	case b := <-s.frames:
		return b, nil
	case err := <-s.errs:
		return nil, err
	case <-s.closed:
		return nil, ErrStreamClosed
	}
}

// Close implements [audio.InputStream].
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	s.once.Do(func() {
		if s.closeHook != nil {
			s.closeHook()
		}
		close(s.closed)
	})
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// CloseCount returns how many times Close was called.
func (s *Stream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}
