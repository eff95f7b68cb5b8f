package control

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/observe"
)

// ApplySettings pushes persisted choices into the live components: device
// selections, the active voice, and the silence duration. Fields that cannot
// be applied are reported together; the rest still take effect.
func (s *Server) ApplySettings(st config.Settings) error {
	var errs []error
	if st.InputDevice != nil {
		if err := s.devices.SetInput(*st.InputDevice); err != nil {
			errs = append(errs, fmt.Errorf("input device: %w", err))
		}
	}
	if st.OutputDevice != nil {
		if err := s.devices.SetOutput(*st.OutputDevice); err != nil {
			errs = append(errs, fmt.Errorf("output device: %w", err))
		}
	}
	if st.VoiceID != nil {
		if s.voices == nil {
			errs = append(errs, errors.New("voice: synthesis backend has no selectable voices"))
		} else if err := s.voices.SelectVoice(*st.VoiceID); err != nil {
			errs = append(errs, fmt.Errorf("voice: %w", err))
		}
	}
	if st.SilenceDurationMs > 0 {
		s.pipe.SetSilenceDuration(time.Duration(st.SilenceDurationMs) * time.Millisecond)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("control: apply settings: %w", err)
	}
	return nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		http.Error(w, "settings persistence is disabled", http.StatusNotImplemented)
		return
	}
	st, err := s.settings.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings validates, applies, and then saves. Nothing is saved if
// any field cannot be applied.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		http.Error(w, "settings persistence is disabled", http.StatusNotImplemented)
		return
	}
	st := config.DefaultSettings()
	if !decode(w, r, &st) {
		return
	}
	if err := st.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ApplySettings(st); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := s.settings.Save(st); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	observe.Logger(r.Context()).Info("control: settings saved", "path", s.settings.Path())
	writeJSON(w, http.StatusOK, st)
}
