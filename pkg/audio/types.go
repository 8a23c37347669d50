// Package audio provides microphone capture, loudness monitoring and the
// clip container shared by the recorder and the translation pipeline.
//
// All PCM handled by this package is 16-bit little-endian signed integers,
// interleaved when there is more than one channel.
package audio

import (
	"fmt"
	"time"
)

// AudioFrame is a fixed-size block of PCM samples read from an input device.
// Frames are ephemeral: they are produced continuously while capture is active
// and consumed by both the level monitor and the recorder.
type AudioFrame struct {
	// Data is 16-bit little-endian signed PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame.
func (f AudioFrame) Duration() time.Duration {
	return pcmDuration(len(f.Data), f.SampleRate, f.Channels)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16 kHz mono, the rate expected by every supported
// transcription backend.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Level is a loudness sample: the RMS of the normalized samples of one frame
// multiplied by 1000, so it ranges from 0 (silence) to 1000 (full scale).
// Detection thresholds are expressed in this unit.
type Level float64

// pcmDuration converts a 16-bit PCM byte count to a duration.
func pcmDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
