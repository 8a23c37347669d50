package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const bitsPerSample = 16

// ErrInvalidWAV is returned by [DecodeWAV] for data that is not a 16-bit PCM
// RIFF/WAVE container.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// EncodeWAV wraps 16-bit PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.SampleRate * f.Channels * bitsPerSample / 8
	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV walks the RIFF chunks of wav and returns the PCM payload (a
// sub-slice of wav) and its format. The fmt chunk may be longer than 16 bytes
// and unknown chunks (LIST, fact, ...) are skipped.
func DecodeWAV(wav []byte) ([]byte, Format, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, Format{}, ErrInvalidWAV
	}

	var (
		f        Format
		foundFmt bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			if tag := binary.LittleEndian.Uint16(wav[body : body+2]); tag != 1 {
				return nil, Format{}, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, tag)
			}
			if bps := binary.LittleEndian.Uint16(wav[body+14 : body+16]); bps != bitsPerSample {
				return nil, Format{}, fmt.Errorf("%w: %d bits per sample", ErrInvalidWAV, bps)
			}
			f.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, Format{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}
			end := body + size
			if end > len(wav) {
				end = len(wav)
			}
			return wav[body:end], f, nil
		}

		offset = body + size
		if size%2 != 0 {
			offset++
		}
	}
	return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}
