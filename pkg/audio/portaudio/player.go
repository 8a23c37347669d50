package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/types"
)

const playbackFrames = 1024

// ErrUnsupportedFormat is returned for synthesized audio the player cannot
// decode (only raw PCM and WAV are supported).
var ErrUnsupportedFormat = errors.New("portaudio: unsupported audio format")

// Player plays synthesized speech on the default output device. Only one
// clip plays at a time; Play blocks until playback ends or ctx is done.
type Player struct {
	mu     sync.Mutex
	volume atomic.Uint64 // math.Float64bits of the gain
}

// NewPlayer returns a Player at full volume.
func NewPlayer() *Player {
	p := &Player{}
	p.SetVolume(1)
	return p
}

// SetVolume sets the playback gain, clamped to [0, 1]. It applies from the
// next Play call.
func (p *Player) SetVolume(v float64) {
	p.volume.Store(math.Float64bits(max(0, min(v, 1))))
}

// Volume returns the playback gain.
func (p *Player) Volume() float64 { return math.Float64frombits(p.volume.Load()) }

// Play writes a to the default output device.
func (p *Player) Play(ctx context.Context, a *types.SynthesizedAudio) error {
	pcm, format, err := decode(a)
	if err != nil {
		return err
	}
	pcm = audio.ScaleVolume(pcm, p.Volume())

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	defer pa.Terminate()

	buf := make([]int16, playbackFrames*format.Channels)
	stream, err := pa.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), playbackFrames, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output: %w", err)
	}
	defer stream.Stop()

	samples := len(pcm) / 2
	for pos := 0; pos < samples; pos += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range buf {
			if pos+i < samples {
				buf[i] = int16(binary.LittleEndian.Uint16(pcm[(pos+i)*2:]))
			} else {
				buf[i] = 0
			}
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

func decode(a *types.SynthesizedAudio) ([]byte, audio.Format, error) {
	if a == nil || len(a.Data) == 0 {
		return nil, audio.Format{}, fmt.Errorf("%w: empty audio", ErrUnsupportedFormat)
	}
	switch a.Format {
	case types.FormatWAV:
		pcm, f, err := audio.DecodeWAV(a.Data)
		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("portaudio: %w", err)
		}
		return pcm, f, nil
	case types.FormatPCM16:
		f := audio.Format{SampleRate: a.SampleRate, Channels: a.Channels}
		if f.SampleRate <= 0 {
			f.SampleRate = audio.DefaultFormat.SampleRate
		}
		if f.Channels <= 0 {
			f.Channels = 1
		}
		return a.Data, f, nil
	default:
		return nil, audio.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, a.Format)
	}
}
