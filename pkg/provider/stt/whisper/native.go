// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/parrot/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertions that NativeProvider satisfies the stt interfaces.
var (
	_ stt.Provider = (*NativeProvider)(nil)
	_ stt.Loader   = (*NativeProvider)(nil)
)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO). The model can be swapped at runtime via LoadModel; in-flight
// inference finishes on the old model before it is released.
type NativeProvider struct {
	language string

	// mu guards model. Inference holds the read lock for its whole
	// duration so LoadModel cannot close a model that is still in use.
	mu        sync.RWMutex
	model     whisperlib.Model
	modelPath string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider. When modelPath is non-empty the model
// is loaded immediately; otherwise Transcribe returns stt.ErrModelNotLoaded
// until LoadModel succeeds. The caller must call Close when the provider is
// no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	p := &NativeProvider{language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	if modelPath != "" {
		if err := p.LoadModel(modelPath); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LoadModel implements stt.Loader. The new model is loaded before the old
// one is released, so a failed load leaves the provider unchanged.
func (p *NativeProvider) LoadModel(path string) error {
	if path == "" {
		return errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(path)
	if err != nil {
		return fmt.Errorf("whisper: load model %q: %w", path, err)
	}

	p.mu.Lock()
	old := p.model
	p.model = model
	p.modelPath = path
	p.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			slog.Warn("whisper: failed to release previous model", "err", err)
		}
	}
	slog.Info("whisper model loaded", "path", path)
	return nil
}

// Loaded implements stt.Loader.
func (p *NativeProvider) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model != nil
}

// ModelPath returns the path of the active model, or "" when none is loaded.
func (p *NativeProvider) ModelPath() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modelPath
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	p.modelPath = ""
	return err
}

// Transcribe implements stt.Provider. Decoding is greedy with the
// configured language; all segments are trimmed and joined by spaces.
func (p *NativeProvider) Transcribe(ctx context.Context, samples []float32, rate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	prepared, err := prepareSamples(samples, rate)
	if err != nil {
		return "", err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return "", stt.ErrModelNotLoaded
	}

	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}

	if err := wctx.Process(prepared, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
