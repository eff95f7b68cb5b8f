package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Downmix averages interleaved multi-channel samples into a new mono slice.
// Mono input is copied. A trailing partial frame is ignored.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	inv := 1 / float32(channels)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum * inv
	}
	return out
}

// FillInterleaved writes one mono sample per frame into every channel of out.
// It returns the number of frames written.
func FillInterleaved(out []float32, mono []float32, channels int) int {
	if channels < 1 {
		channels = 1
	}
	frames := min(len(out)/channels, len(mono))
	for i := range frames {
		v := mono[i]
		for c := range channels {
			out[i*channels+c] = v
		}
	}
	return frames
}

// RMS returns the root-mean-square energy of samples. Empty input yields 0.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// S16ToFloat32 decodes little-endian signed 16-bit PCM into float32 samples
// scaled by 1/32768. A trailing odd byte is ignored.
func S16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}

// U8ToFloat32 decodes unsigned 8-bit PCM (silence at 128) into float32.
func U8ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm))
	for i, b := range pcm {
		out[i] = (float32(b) - 128) / 128
	}
	return out
}

// F32LEToFloat32 decodes little-endian IEEE-754 float32 samples.
func F32LEToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 4
	out := make([]float32, n)
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
	}
	return out
}

// PutFloat32LE encodes samples as little-endian float32 into dst and returns
// the number of samples written.
func PutFloat32LE(dst []byte, samples []float32) int {
	n := min(len(dst)/4, len(samples))
	for i := range n {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(samples[i]))
	}
	return n
}

// Float32ToS16 encodes samples as little-endian signed 16-bit PCM. Values
// outside [-1, 1] are clamped.
func Float32ToS16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	PutS16LE(out, samples)
	return out
}

// PutS16LE encodes samples as clamped little-endian int16 into dst and returns
// the number of samples written.
func PutS16LE(dst []byte, samples []float32) int {
	n := min(len(dst)/2, len(samples))
	for i := range n {
		v := samples[i]
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v*32767)))
	}
	return n
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}
