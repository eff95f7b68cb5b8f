// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns one complete speech segment into text. Segments are
// handed over as mono float32 samples at the capture device's native rate;
// each provider resamples to whatever rate its model expects and pads clips
// that are too short for it. Providers never modify the caller's buffer.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrModelNotLoaded is returned by Transcribe when the backend has no model
// to run inference with.
var ErrModelNotLoaded = errors.New("stt: model not loaded")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the recognised text for samples recorded at rate Hz.
	// The text is returned untrimmed; an empty string means nothing was
	// recognised. Transcribe blocks until inference completes or ctx is done.
	Transcribe(ctx context.Context, samples []float32, rate int) (string, error)
}

// Loader is implemented by providers whose model can be (re)loaded at runtime
// from a file on disk.
type Loader interface {
	// LoadModel loads the model at path, replacing any previously loaded one.
	// On failure the previous model stays active.
	LoadModel(path string) error

	// Loaded reports whether a model is currently available.
	Loaded() bool
}
