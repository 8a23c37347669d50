package audio

import (
	"bytes"
	"io"
	"time"
)

// Clip is a finalized utterance: WAV-encoded audio plus timing metadata.
//
// A Clip is immutable. Its payload is only reachable through [Clip.Bytes] and
// [Clip.Reader], which never expose the internal buffer, so ownership can pass
// from the recorder to the pipeline without copying on every hop.
type Clip struct {
	data []byte

	// Format of the encoded samples.
	Format Format

	// StartedAt is the wall-clock time recording began.
	StartedAt time.Time

	// EndedAt is the wall-clock time recording stopped.
	EndedAt time.Time

	// Duration is the length of the encoded audio.
	Duration time.Duration
}

// NewClip encodes pcm as WAV and returns a finalized clip. pcm is copied.
func NewClip(pcm []byte, format Format, startedAt, endedAt time.Time) *Clip {
	return &Clip{
		data:      EncodeWAV(pcm, format),
		Format:    format,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Duration:  pcmDuration(len(pcm), format.SampleRate, format.Channels),
	}
}

// ClipFromWAV parses a WAV file into a clip. The timestamps are set to now
// minus the audio duration and now.
func ClipFromWAV(wav []byte, now time.Time) (*Clip, error) {
	pcm, format, err := DecodeWAV(wav)
	if err != nil {
		return nil, err
	}
	d := pcmDuration(len(pcm), format.SampleRate, format.Channels)
	return &Clip{
		data:      bytes.Clone(wav),
		Format:    format,
		StartedAt: now.Add(-d),
		EndedAt:   now,
		Duration:  d,
	}, nil
}

// Bytes returns a copy of the WAV-encoded clip.
func (c *Clip) Bytes() []byte {
	return bytes.Clone(c.data)
}

// Reader returns a reader over the WAV-encoded clip.
func (c *Clip) Reader() io.Reader {
	return bytes.NewReader(c.data)
}

// Size returns the encoded size in bytes.
func (c *Clip) Size() int {
	return len(c.data)
}

// PCM returns a copy of the raw samples without the WAV header.
func (c *Clip) PCM() []byte {
	pcm, _, err := DecodeWAV(c.data)
	if err != nil {
		return nil
	}
	return bytes.Clone(pcm)
}

// ContentType is the MIME type of the encoded clip.
func (c *Clip) ContentType() string {
	return "audio/wav"
}

// Filename is the upload name used by multipart transcription APIs.
func (c *Clip) Filename() string {
	return "audio.wav"
}
