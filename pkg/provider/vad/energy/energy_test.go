package energy_test

import (
	"testing"

	"github.com/MrWong99/parrot/pkg/provider/vad/energy"
)

func constant(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		frame  []float32
		speech bool
	}{
		{"silence", constant(0, 480), false},
		{"empty frame", nil, false},
		{"below threshold", constant(0.005, 480), false},
		{"at threshold is silence", constant(0.01, 480), false},
		{"speech", constant(0.05, 480), true},
		{"negative speech", constant(-0.2, 480), true},
	}
	c := energy.New(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Classify(tt.frame)
			if d.Speech != tt.speech {
				t.Errorf("Speech = %v, want %v (level %v)", d.Speech, tt.speech, d.Level)
			}
		})
	}
}

func TestClassify_ZeroValueUsesDefault(t *testing.T) {
	var c energy.Classifier
	if !c.Classify(constant(0.02, 10)).Speech {
		t.Error("zero-value classifier did not use default threshold")
	}
	if c.Classify(constant(0.009, 10)).Speech {
		t.Error("zero-value classifier classified quiet frame as speech")
	}
}

func TestClassify_CustomThreshold(t *testing.T) {
	c := energy.New(0.1)
	if c.Classify(constant(0.05, 10)).Speech {
		t.Error("0.05 classified as speech with threshold 0.1")
	}
	if d := c.Classify(constant(0.2, 10)); !d.Speech {
		t.Errorf("0.2 not classified as speech (level %v)", d.Level)
	}
}
