// Package vad defines the Classifier interface for frame-level voice activity
// decisions.
//
// A Classifier looks at a single mono frame and decides whether it contains
// speech. It is called from the real-time capture callback, so it must be
// fast, allocation-free and must never block.
package vad

// Decision is the result of classifying one frame.
type Decision struct {
	// Speech reports whether the frame counts as speech.
	Speech bool

	// Level is the measurement the decision was based on (for the energy
	// classifier, the frame RMS).
	Level float64
}

// Classifier decides whether a frame of mono samples is speech.
//
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(frame []float32) Decision
}
