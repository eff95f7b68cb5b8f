package whisper

import (
	"errors"
	"testing"

	"github.com/MrWong99/parrot/pkg/audio/resample"
)

func TestPrepareSamples_PadsShortClips(t *testing.T) {
	in := make([]float32, 1600)
	for i := range in {
		in[i] = 0.25
	}
	out, err := prepareSamples(in, modelSampleRate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != minSamples {
		t.Fatalf("len = %d, want %d", len(out), minSamples)
	}
	if out[0] != 0.25 || out[1599] != 0.25 {
		t.Error("original samples not preserved at the start")
	}
	if out[1600] != 0 || out[minSamples-1] != 0 {
		t.Error("padding is not zero")
	}
}

func TestPrepareSamples_ResamplesTo16k(t *testing.T) {
	in := make([]float32, 48000*2) // 2 s at 48 kHz
	out, err := prepareSamples(in, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 32000 {
		t.Fatalf("len = %d, want 32000", len(out))
	}
}

func TestPrepareSamples_DoesNotMutateInput(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	if _, err := prepareSamples(in, modelSampleRate); err != nil {
		t.Fatal(err)
	}
	if in[0] != 0.1 || in[1] != 0.2 || in[2] != 0.3 || len(in) != 3 {
		t.Errorf("input mutated: %v", in)
	}
}

func TestPrepareSamples_InvalidRate(t *testing.T) {
	_, err := prepareSamples([]float32{0}, 0)
	if !errors.Is(err, resample.ErrInvalidRate) {
		t.Errorf("err = %v, want ErrInvalidRate", err)
	}
}
