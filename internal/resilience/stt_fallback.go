package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/parrot/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across several
// transcription backends, each behind its own circuit breaker. A missing
// model is not counted against a backend's breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var (
	_ stt.Provider = (*STTFallback)(nil)
	_ stt.Loader   = (*STTFallback)(nil)
)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	cfg.CircuitBreaker.Ignore = ignoring(cfg.CircuitBreaker.Ignore, stt.ErrModelNotLoaded)
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every backend.
func (f *STTFallback) States() []EntryState { return f.group.States() }

// Transcribe returns the text from the first backend that succeeds.
func (f *STTFallback) Transcribe(ctx context.Context, samples []float32, rate int) (string, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, samples, rate)
	})
}

// LoadModel loads path into the first backend that supports model loading.
func (f *STTFallback) LoadModel(path string) error {
	for _, p := range f.group.Values() {
		if l, ok := p.(stt.Loader); ok {
			return l.LoadModel(path)
		}
	}
	return errors.New("resilience: no stt backend supports model loading")
}

// Loaded reports whether any backend is ready to transcribe. Backends
// without a loadable model count as loaded.
func (f *STTFallback) Loaded() bool {
	for _, p := range f.group.Values() {
		l, ok := p.(stt.Loader)
		if !ok || l.Loaded() {
			return true
		}
	}
	return false
}

// ignoring extends an Ignore predicate with sentinel errors.
func ignoring(base func(error) bool, sentinels ...error) func(error) bool {
	return func(err error) bool {
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return true
			}
		}
		return base != nil && base(err)
	}
}
