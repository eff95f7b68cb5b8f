// Package energy implements a vad.Classifier that treats any frame whose RMS
// energy exceeds a fixed threshold as speech.
package energy

import (
	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/provider/vad"
)

// DefaultThreshold is the RMS level above which a frame counts as speech.
const DefaultThreshold = 0.01

// Classifier is an RMS threshold detector. The zero value uses
// DefaultThreshold.
type Classifier struct {
	// Threshold is compared with strict greater-than against the frame RMS.
	Threshold float64
}

// New returns a Classifier with the given threshold. Non-positive values
// select DefaultThreshold.
func New(threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Classifier{Threshold: threshold}
}

// Classify implements vad.Classifier.
func (c *Classifier) Classify(frame []float32) vad.Decision {
	th := c.Threshold
	if th <= 0 {
		th = DefaultThreshold
	}
	rms := audio.RMS(frame)
	return vad.Decision{Speech: rms > th, Level: rms}
}

var _ vad.Classifier = (*Classifier)(nil)
