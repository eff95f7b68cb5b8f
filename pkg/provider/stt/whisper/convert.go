package whisper

import (
	"fmt"

	"github.com/MrWong99/parrot/pkg/audio/resample"
)

const (
	// modelSampleRate is the only input rate whisper models accept.
	modelSampleRate = 16000

	// minSamples pads short clips to 1.1 s. whisper.cpp rejects or
	// hallucinates on inputs shorter than one second.
	minSamples = 17600
)

// prepareSamples resamples mono samples from rate to 16 kHz and zero-pads the
// result to at least minSamples. The input slice is never modified.
func prepareSamples(samples []float32, rate int) ([]float32, error) {
	out, err := resample.Resample(samples, rate, modelSampleRate)
	if err != nil {
		return nil, fmt.Errorf("whisper: resample %d Hz: %w", rate, err)
	}
	if len(out) < minSamples {
		padded := make([]float32, minSamples)
		copy(padded, out)
		out = padded
	}
	return out, nil
}
