package resilience

import (
	"context"

	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across several
// synthesis backends, each behind its own circuit breaker. Backends may
// produce audio at different rates; the returned [tts.Audio] carries the rate
// of whichever backend answered.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	cfg.CircuitBreaker.Ignore = ignoring(cfg.CircuitBreaker.Ignore, tts.ErrNotConfigured)
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every backend.
func (f *TTSFallback) States() []EntryState { return f.group.States() }

// Synthesize returns audio from the first backend that succeeds.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Audio, error) {
		return p.Synthesize(ctx, text)
	})
}

// SampleRate returns the primary backend's native rate.
func (f *TTSFallback) SampleRate() int {
	return f.group.Primary().SampleRate()
}

// Ready reports whether any backend can synthesise.
func (f *TTSFallback) Ready() bool {
	for _, p := range f.group.Values() {
		if p.Ready() {
			return true
		}
	}
	return false
}

// VoiceManager returns the first backend that manages local voices, if any.
func (f *TTSFallback) VoiceManager() (tts.VoiceManager, bool) {
	for _, p := range f.group.Values() {
		if vm, ok := p.(tts.VoiceManager); ok {
			return vm, true
		}
	}
	return nil, false
}
