// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to return controlled transcripts and to inspect which speech
// segments were submitted for transcription.
//
// Example:
//
//	p := &mock.Provider{Text: "hello there"}
//	text, _ := p.Transcribe(ctx, samples, 48000)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parrot/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Samples is a copy of the samples passed to Transcribe.
	Samples []float32
	// Rate is the sample rate passed to Transcribe.
	Rate int
}

// Provider is a mock implementation of stt.Provider and stt.Loader.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe when Texts is exhausted or empty.
	Text string

	// Texts, if non-empty, is consumed in order: call i returns Texts[i].
	Texts []string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Hook, if non-nil, runs inside Transcribe before it returns. Tests use
	// it to block or to observe call timing.
	Hook func(ctx context.Context)

	// LoadErr, if non-nil, is returned from LoadModel.
	LoadErr error

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall

	// LoadedPaths records every successful LoadModel path.
	LoadedPaths []string
}

// Transcribe records the call and returns the configured text or error.
func (p *Provider) Transcribe(ctx context.Context, samples []float32, rate int) (string, error) {
	p.mu.Lock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	idx := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Samples: cp, Rate: rate})
	hook := p.Hook
	p.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	if idx < len(p.Texts) {
		return p.Texts[idx], nil
	}
	return p.Text, nil
}

// LoadModel records path and returns LoadErr.
func (p *Provider) LoadModel(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LoadErr != nil {
		return p.LoadErr
	}
	p.LoadedPaths = append(p.LoadedPaths, path)
	return nil
}

// Loaded reports whether LoadModel has succeeded at least once.
func (p *Provider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.LoadedPaths) > 0
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// CallsSnapshot returns a copy of the recorded calls. Thread-safe.
func (p *Provider) CallsSnapshot() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.Calls))
	copy(out, p.Calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.LoadedPaths = nil
}

// Ensure Provider implements the stt interfaces at compile time.
var (
	_ stt.Provider = (*Provider)(nil)
	_ stt.Loader   = (*Provider)(nil)
)
