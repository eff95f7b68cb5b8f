package health

import (
	"context"
	"errors"

	"github.com/MrWong99/parrot/pkg/audio/device"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// STTModel fails while the transcription backend has no model loaded.
// Providers that do not load models always pass.
func STTModel(p stt.Provider) Checker {
	return Checker{Name: "stt_model", Check: func(context.Context) error {
		if l, ok := p.(stt.Loader); ok && !l.Loaded() {
			return stt.ErrModelNotLoaded
		}
		return nil
	}}
}

// TTSVoice fails while the synthesis backend cannot speak.
func TTSVoice(p tts.Provider) Checker {
	return Checker{Name: "tts_voice", Check: func(context.Context) error {
		if p == nil || !p.Ready() {
			return tts.ErrNotConfigured
		}
		return nil
	}}
}

// Devices fails when the selected (or default) input or output device
// cannot be resolved.
func Devices(m *device.Manager) Checker {
	return Checker{Name: "audio_devices", Check: func(context.Context) error {
		var errs []error
		if _, err := m.InputName(); err != nil {
			errs = append(errs, err)
		}
		if _, err := m.OutputName(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}}
}
