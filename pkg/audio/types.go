// Package audio holds the sample-level types and conversions shared by the
// capture, processing and playback stages of the pipeline.
//
// All processing happens on mono float32 samples nominally in [-1, 1].
// Multi-channel and integer device formats are converted at the hardware
// boundary (see [Downmix], [S16ToFloat32], [U8ToFloat32]).
package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Frame is a block of mono samples flowing from the capture callback into
// the VAD engine, or from the synthesiser towards playback.
type Frame struct {
	// Samples are mono float32 values nominally in [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g. 48000 for a typical microphone, 22050 for piper).
	SampleRate int
}

// Duration returns the playback duration of the frame. Returns 0 for an
// invalid sample rate.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// SamplesDuration returns how long n mono samples last at rate Hz.
func SamplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// SamplesFor returns the number of mono samples spanning d at rate Hz,
// truncated towards zero.
func SamplesFor(d time.Duration, rate int) int {
	if rate <= 0 || d <= 0 {
		return 0
	}
	return int(int64(rate) * int64(d) / int64(time.Second))
}
