package audio

import "encoding/binary"

// Convert returns 16-bit PCM in format from re-encoded in format to.
// Channels are mixed down before resampling and up after it, so the
// resampler sees as few channels as possible. Matching formats return pcm
// itself. Only mono and stereo targets are supported; any other channel
// count is treated as mono.
func Convert(pcm []byte, from, to Format) []byte {
	if from.SampleRate == to.SampleRate && from.Channels == to.Channels {
		return pcm
	}
	channels := max(from.Channels, 1)
	if to.Channels < channels {
		pcm, channels = DownmixToMono(pcm, channels), 1
	}
	if from.SampleRate != to.SampleRate {
		pcm = resample(pcm, channels, from.SampleRate, to.SampleRate)
	}
	if channels == 1 && to.Channels == 2 {
		pcm = upmix(pcm)
	}
	return pcm
}

// DownmixToMono averages the channels of each interleaved frame.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	in := samples(pcm)
	out := make([]int16, len(in)/channels)
	for i := range out {
		var sum int32
		for _, s := range in[i*channels : (i+1)*channels] {
			sum += int32(s)
		}
		out[i] = int16(sum / int32(channels))
	}
	return encode(out)
}

// resample converts interleaved pcm from srcRate to dstRate by linear
// interpolation, each channel independently. Invalid rates return pcm.
func resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2*channels {
		return pcm
	}
	in := samples(pcm)
	srcFrames := len(in) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		next := min(j+1, srcFrames-1)
		for ch := range channels {
			a := float64(in[j*channels+ch])
			b := float64(in[next*channels+ch])
			out[i*channels+ch] = int16(a + (b-a)*frac)
		}
	}
	return encode(out)
}

// upmix duplicates each mono sample into a left and right pair.
func upmix(pcm []byte) []byte {
	out := make([]byte, 0, len(pcm)&^1*2)
	for i := 0; i+1 < len(pcm); i += 2 {
		out = append(out, pcm[i], pcm[i+1], pcm[i], pcm[i+1])
	}
	return out
}

// PCMToFloat32 converts 16-bit PCM to mono float32 samples in [-1, 1).
func PCMToFloat32(pcm []byte, channels int) []float32 {
	in := samples(DownmixToMono(pcm, channels))
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768
	}
	return out
}

// ScaleVolume multiplies every sample by gain, clamping to the 16-bit range.
// Gain 1 returns pcm itself; negative gain mutes.
func ScaleVolume(pcm []byte, gain float64) []byte {
	if gain == 1 {
		return pcm
	}
	gain = max(gain, 0)
	in := samples(pcm)
	for i, s := range in {
		in[i] = int16(max(min(float64(s)*gain, 32767), -32768))
	}
	return encode(in)
}

func samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func encode(s []int16) []byte {
	out := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}
