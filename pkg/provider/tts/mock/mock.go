// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio and to verify which texts reached
// the synthesis backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Audio:     tts.Audio{Samples: make([]float32, 2205), SampleRate: 22050},
//	    ReadyFlag: true,
//	}
//	audio, _ := p.Synthesize(ctx, "hello")
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider and tts.VoiceManager.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize for non-empty text.
	Audio tts.Audio

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Rate is returned by SampleRate. Defaults to Audio.SampleRate when zero.
	Rate int

	// ReadyFlag is returned by Ready.
	ReadyFlag bool

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall

	voices     []tts.Voice
	active     string
	executable string
}

// Synthesize records the call and returns Audio or Err. Whitespace-only text
// returns empty audio without error.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Text: text})
	if p.Err != nil {
		return tts.Audio{}, p.Err
	}
	if strings.TrimSpace(text) == "" {
		return tts.Audio{SampleRate: p.sampleRateLocked()}, nil
	}
	out := tts.Audio{Samples: make([]float32, len(p.Audio.Samples)), SampleRate: p.Audio.SampleRate}
	copy(out.Samples, p.Audio.Samples)
	return out, nil
}

// SampleRate returns Rate, or Audio.SampleRate when Rate is zero.
func (p *Provider) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampleRateLocked()
}

func (p *Provider) sampleRateLocked() int {
	if p.Rate != 0 {
		return p.Rate
	}
	return p.Audio.SampleRate
}

// Ready returns ReadyFlag.
func (p *Provider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ReadyFlag
}

// SetExecutable records path.
func (p *Provider) SetExecutable(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executable = path
	return nil
}

// Executable returns the last path passed to SetExecutable.
func (p *Provider) Executable() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.executable
}

// AddVoice registers v, replacing any voice with the same ID.
func (p *Provider) AddVoice(v tts.Voice) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.voices {
		if p.voices[i].ID == v.ID {
			p.voices[i] = v
			return nil
		}
	}
	p.voices = append(p.voices, v)
	return nil
}

// SelectVoice selects a previously added voice.
func (p *Provider) SelectVoice(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.voices {
		if v.ID == id {
			p.active = id
			return nil
		}
	}
	return tts.ErrNotConfigured
}

// ListVoices returns the added voices.
func (p *Provider) ListVoices() []tts.Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Voice, len(p.voices))
	copy(out, p.voices)
	return out
}

// ActiveVoice returns the selected voice.
func (p *Provider) ActiveVoice() (tts.Voice, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.voices {
		if v.ID == p.active {
			return v, true
		}
	}
	return tts.Voice{}, false
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Texts returns the texts passed to Synthesize in order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements the tts interfaces at compile time.
var (
	_ tts.Provider     = (*Provider)(nil)
	_ tts.VoiceManager = (*Provider)(nil)
)
