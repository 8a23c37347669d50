// Package portaudio implements microphone input and speaker output on top of
// the PortAudio C library via github.com/gordonklaus/portaudio.
//
// PortAudio reference-counts Initialize/Terminate, so every opened stream
// initializes the library and terminates it again on Close.
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/polyglot/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.InputDevice = (*Device)(nil)
	_ audio.InputStream = (*inputStream)(nil)
)

// ErrDeviceNotFound is returned when a named device does not exist or has no
// input channels.
var ErrDeviceNotFound = errors.New("portaudio: device not found")

// Device is an [audio.InputDevice] backed by a PortAudio input device.
type Device struct {
	name string
}

// NewDevice returns a device that opens the input named name. An empty name
// or "default" selects the system default input.
func NewDevice(name string) *Device {
	return &Device{name: name}
}

// Open implements [audio.InputDevice].
func (d *Device) Open(ctx context.Context, format audio.Format, frameSize int) (audio.InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	buf := make([]int16, frameSize*format.Channels)
	stream, err := d.openStream(format, frameSize, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	slog.Debug("portaudio input opened", "device", d.deviceLabel(), "format", format.String())
	return &inputStream{stream: stream, buf: buf, closed: make(chan struct{})}, nil
}

func (d *Device) openStream(format audio.Format, frameSize int, buf []int16) (*pa.Stream, error) {
	if d.name == "" || d.name == "default" {
		stream, err := pa.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), frameSize, buf)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open default input: %w", err)
		}
		return stream, nil
	}

	info, err := findInput(d.name)
	if err != nil {
		return nil, err
	}
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   info,
			Channels: format.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: frameSize,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input %q: %w", d.name, err)
	}
	return stream, nil
}

func (d *Device) deviceLabel() string {
	if d.name == "" {
		return "default"
	}
	return d.name
}

func findInput(name string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// inputStream adapts a blocking PortAudio stream to [audio.InputStream].
type inputStream struct {
	stream *pa.Stream
	buf    []int16

	// readMu serialises Read against Close so the buffer is never released
	// underneath a read in progress.
	readMu sync.Mutex
	once   sync.Once
	closed chan struct{}
}

// Read implements [audio.InputStream].
func (s *inputStream) Read() ([]byte, error) {
	if s.isClosed() {
		return nil, errStreamClosed
	}
	s.readMu.Lock()
	err := s.stream.Read()
	pcm := make([]byte, len(s.buf)*2)
	for i, v := range s.buf {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	s.readMu.Unlock()

	if s.isClosed() {
		return nil, errStreamClosed
	}
	if err != nil {
		// Input overflow only means samples were lost; the stream is healthy.
		if errors.Is(err, pa.InputOverflowed) {
			slog.Debug("portaudio input overflowed")
			return pcm, nil
		}
		return nil, fmt.Errorf("portaudio: read: %w", err)
	}
	return pcm, nil
}

// Close implements [audio.InputStream].
func (s *inputStream) Close() error {
	var errs []error
	s.once.Do(func() {
		close(s.closed)
		// Stop unblocks a pending Read.
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
		}
		s.readMu.Lock()
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
		}
		s.readMu.Unlock()
		if err := pa.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
		}
	})
	return errors.Join(errs...)
}

var errStreamClosed = errors.New("portaudio: stream closed")

func (s *inputStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
