// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider synthesises a complete utterance into mono float32 samples
// at the provider's native rate. Callers resample to their output device.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by Synthesize when the backend lacks what it
// needs to run (executable, voice, credentials).
var ErrNotConfigured = errors.New("tts: not configured")

// Audio is the result of one synthesis call.
type Audio struct {
	// Samples are mono float32 values nominally in [-1, 1].
	Samples []float32

	// SampleRate is the rate of Samples in Hz.
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text to audio. Empty or whitespace-only text yields
	// empty Audio and a nil error. Returns ErrNotConfigured (possibly wrapped)
	// when the provider is not ready.
	Synthesize(ctx context.Context, text string) (Audio, error)

	// SampleRate returns the native output rate in Hz.
	SampleRate() int

	// Ready reports whether Synthesize can currently succeed.
	Ready() bool
}

// Voice describes one selectable synthesis voice.
type Voice struct {
	// ID is the stable identifier used for selection and persistence.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// ModelPath is the voice model on disk (piper .onnx). Empty for hosted voices.
	ModelPath string `json:"model_path,omitempty"`

	// ConfigPath is the model's companion config (piper .onnx.json).
	ConfigPath string `json:"config_path,omitempty"`
}

// VoiceManager is implemented by providers that run a local executable with
// selectable voices.
type VoiceManager interface {
	// SetExecutable sets the synthesiser binary. The path must exist.
	SetExecutable(path string) error

	// AddVoice registers or replaces a voice. Backends that need model files
	// on disk reject voices whose files are missing.
	AddVoice(v Voice) error

	// SelectVoice makes the voice with id active.
	SelectVoice(id string) error

	// ListVoices returns the registered voices in registration order.
	ListVoices() []Voice

	// ActiveVoice returns the selected voice and whether one is selected.
	ActiveVoice() (Voice, bool)
}
