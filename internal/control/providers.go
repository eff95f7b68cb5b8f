package control

import (
	"net/http"

	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/pkg/provider/tts"
)

type pathBody struct {
	Path string `json:"path"`
}

type voiceID struct {
	ID string `json:"id"`
}

type voiceList struct {
	Voices []tts.Voice `json:"voices"`
	Active *string     `json:"active"`
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		http.Error(w, "transcription backend does not load models", http.StatusNotImplemented)
		return
	}
	var body pathBody
	if !decode(w, r, &body) {
		return
	}
	if body.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	if err := s.model.LoadModel(body.Path); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	observe.Logger(r.Context()).Info("control: stt model loaded", "path", body.Path)
	w.WriteHeader(http.StatusNoContent)
}

// voiceManager answers 501 and returns false when synthesis has no local
// voices to manage.
func (s *Server) voiceManager(w http.ResponseWriter) (tts.VoiceManager, bool) {
	if s.voices == nil {
		http.Error(w, "synthesis backend has no selectable voices", http.StatusNotImplemented)
		return nil, false
	}
	return s.voices, true
}

func (s *Server) handleSetExecutable(w http.ResponseWriter, r *http.Request) {
	vm, ok := s.voiceManager(w)
	if !ok {
		return
	}
	var body pathBody
	if !decode(w, r, &body) {
		return
	}
	if err := vm.SetExecutable(body.Path); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	vm, ok := s.voiceManager(w)
	if !ok {
		return
	}
	res := voiceList{Voices: vm.ListVoices()}
	if res.Voices == nil {
		res.Voices = []tts.Voice{}
	}
	if v, ok := vm.ActiveVoice(); ok {
		res.Active = &v.ID
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAddVoice(w http.ResponseWriter, r *http.Request) {
	vm, ok := s.voiceManager(w)
	if !ok {
		return
	}
	var v tts.Voice
	if !decode(w, r, &v) {
		return
	}
	if v.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if v.Name == "" {
		v.Name = v.ID
	}
	if err := vm.AddVoice(v); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleSelectVoice(w http.ResponseWriter, r *http.Request) {
	vm, ok := s.voiceManager(w)
	if !ok {
		return
	}
	var body voiceID
	if !decode(w, r, &body) {
		return
	}
	if err := vm.SelectVoice(body.ID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
