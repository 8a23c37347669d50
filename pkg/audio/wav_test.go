package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
)

func TestEncodeDecodeWAV(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{1, -1, 1000, -1000})
	wav := audio.EncodeWAV(pcm, audio.DefaultFormat)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len(wav) = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header")
	}

	got, f, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f != audio.DefaultFormat {
		t.Errorf("format = %+v, want %+v", f, audio.DefaultFormat)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm mismatch")
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{7, 8, 9})
	canonical := audio.EncodeWAV(pcm, audio.Format{SampleRate: 22050, Channels: 1})

	// Insert an odd-sized LIST chunk between fmt and data.
	var buf bytes.Buffer
	buf.Write(canonical[:36])
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0}) // padded to even
	buf.Write(canonical[36:])

	got, f, err := audio.DecodeWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", f.SampleRate)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm mismatch")
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string][]byte{
		"empty":     nil,
		"not riff":  []byte("RIFX0000WAVE"),
		"no data":   audio.EncodeWAV(nil, audio.DefaultFormat)[:36],
		"truncated": []byte("RIFF"),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := audio.DecodeWAV(in); !errors.Is(err, audio.ErrInvalidWAV) {
				t.Errorf("err = %v, want ErrInvalidWAV", err)
			}
		})
	}
}

func TestClip(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pcm := make([]byte, 32000) // one second at 16 kHz mono
	clip := audio.NewClip(pcm, audio.DefaultFormat, start, start.Add(time.Second))

	if clip.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", clip.Duration)
	}
	if clip.Size() != 44+len(pcm) {
		t.Errorf("Size = %d, want %d", clip.Size(), 44+len(pcm))
	}

	// Mutating the returned copy must not touch the clip.
	b := clip.Bytes()
	b[0] = 'X'
	if string(clip.Bytes()[0:4]) != "RIFF" {
		t.Error("clip was mutated through Bytes()")
	}
	pcm[0] = 0xFF
	if clip.PCM()[0] != 0 {
		t.Error("clip shares memory with the input pcm")
	}
}

func TestClipFromWAV(t *testing.T) {
	t.Parallel()

	now := time.Now()
	wav := audio.EncodeWAV(make([]byte, 16000), audio.DefaultFormat)
	clip, err := audio.ClipFromWAV(wav, now)
	if err != nil {
		t.Fatalf("ClipFromWAV: %v", err)
	}
	if clip.Duration != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", clip.Duration)
	}
	if !clip.EndedAt.Equal(now) || !clip.StartedAt.Equal(now.Add(-500*time.Millisecond)) {
		t.Errorf("timestamps = %v..%v", clip.StartedAt, clip.EndedAt)
	}
}
