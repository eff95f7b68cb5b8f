// Package piper provides a TTS provider that runs the piper neural
// synthesiser as a subprocess.
//
// Each Synthesize call starts one piper process:
//
//	piper --model <voice.onnx> --config <voice.onnx.json> --output-raw
//
// The text is written to its stdin and raw signed 16-bit little-endian mono
// PCM at 22050 Hz is read from its stdout.
//
// Typical usage:
//
//	p := piper.New()
//	_ = p.SetExecutable("/opt/piper/piper")
//	_ = p.AddVoice(tts.Voice{ID: "lessac", Name: "Lessac (Neutral)",
//	    ModelPath: "voices/en_US-lessac-medium.onnx",
//	    ConfigPath: "voices/en_US-lessac-medium.onnx.json"})
//	_ = p.SelectVoice("lessac")
//	audio, err := p.Synthesize(ctx, "Hello there.")
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/MrWong99/parrot/pkg/audio"
	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// SampleRate is the output rate of the medium-quality piper voices.
const SampleRate = 22050

// ErrUnknownVoice is returned by SelectVoice for an unregistered id.
var ErrUnknownVoice = errors.New("piper: unknown voice")

// Compile-time interface assertions.
var (
	_ tts.Provider     = (*Provider)(nil)
	_ tts.VoiceManager = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithExtraArgs appends arguments to every piper invocation (for example
// "--length_scale", "1.1").
func WithExtraArgs(args ...string) Option {
	return func(p *Provider) {
		p.extraArgs = append(p.extraArgs, args...)
	}
}

// Provider implements tts.Provider and tts.VoiceManager. All methods are safe
// for concurrent use; configuration is snapshotted at the start of each
// Synthesize call so it is never held locked while piper runs.
type Provider struct {
	extraArgs []string

	mu         sync.RWMutex
	executable string
	voices     []tts.Voice
	active     string
}

// New returns an unconfigured Provider. Synthesize returns
// tts.ErrNotConfigured until an executable and a voice are set.
func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetExecutable implements tts.VoiceManager.
func (p *Provider) SetExecutable(path string) error {
	if err := requireFile(path); err != nil {
		return fmt.Errorf("piper: executable: %w", err)
	}
	p.mu.Lock()
	p.executable = path
	p.mu.Unlock()
	slog.Info("piper executable set", "path", path)
	return nil
}

// Executable returns the configured executable path.
func (p *Provider) Executable() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.executable
}

// AddVoice implements tts.VoiceManager. Both model and config files must
// exist. A voice with an existing id replaces the earlier registration.
func (p *Provider) AddVoice(v tts.Voice) error {
	if v.ID == "" {
		return errors.New("piper: voice id must not be empty")
	}
	if err := requireFile(v.ModelPath); err != nil {
		return fmt.Errorf("piper: voice %q model: %w", v.ID, err)
	}
	if err := requireFile(v.ConfigPath); err != nil {
		return fmt.Errorf("piper: voice %q config: %w", v.ID, err)
	}

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

// SelectVoice implements tts.VoiceManager.
func (p *Provider) SelectVoice(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.voices {
		if v.ID == id {
			p.active = id
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownVoice, id)
}

// ListVoices implements tts.VoiceManager.
func (p *Provider) ListVoices() []tts.Voice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]tts.Voice, len(p.voices))
	copy(out, p.voices)
	return out
}

// ActiveVoice implements tts.VoiceManager.
func (p *Provider) ActiveVoice() (tts.Voice, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activeLocked()
}

func (p *Provider) activeLocked() (tts.Voice, bool) {
	if p.active == "" {
		return tts.Voice{}, false
	}
	for _, v := range p.voices {
		if v.ID == p.active {
			return v, true
		}
	}
	return tts.Voice{}, false
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int { return SampleRate }

// Ready implements tts.Provider: an executable and an active voice are set.
func (p *Provider) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.activeLocked()
	return p.executable != "" && ok
}

// Synthesize implements tts.Provider. A non-zero piper exit status is
// returned as an error that includes piper's stderr.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	p.mu.RLock()
	exe := p.executable
	voice, ok := p.activeLocked()
	p.mu.RUnlock()

	if exe == "" {
		return tts.Audio{}, fmt.Errorf("piper: %w: executable not set", tts.ErrNotConfigured)
	}
	if !ok {
		return tts.Audio{}, fmt.Errorf("piper: %w: no voice selected", tts.ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return tts.Audio{SampleRate: SampleRate}, nil
	}

	args := []string{"--model", voice.ModelPath, "--config", voice.ConfigPath, "--output-raw"}
	args = append(args, p.extraArgs...)

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return tts.Audio{}, fmt.Errorf("piper: run %s: %w", exe, err)
		}
		return tts.Audio{}, fmt.Errorf("piper: run %s: %w: %s", exe, err, msg)
	}

	return tts.Audio{Samples: audio.S16ToFloat32(stdout.Bytes()), SampleRate: SampleRate}, nil
}

// requireFile returns an error unless path names an existing regular file.
func requireFile(path string) error {
	if path == "" {
		return errors.New("path must not be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
