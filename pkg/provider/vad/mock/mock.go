// Package mock provides a test double for the vad.Classifier interface.
//
// Use Classifier to script speech decisions independent of frame content.
//
// Example:
//
//	c := &mock.Classifier{Decisions: []vad.Decision{{Speech: true}, {Speech: false}}}
package mock

import (
	"sync"

	"github.com/MrWong99/parrot/pkg/provider/vad"
)

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Decisions is consumed in order. Once exhausted, Default is returned.
	Decisions []vad.Decision

	// Default is returned when Decisions is exhausted.
	Default vad.Decision

	// Frames records the length of every classified frame.
	Frames []int
}

// Classify records the frame length and returns the next scripted decision.
func (c *Classifier) Classify(frame []float32) vad.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.Frames)
	c.Frames = append(c.Frames, len(frame))
	if idx < len(c.Decisions) {
		return c.Decisions[idx]
	}
	return c.Default
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
