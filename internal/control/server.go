// Package control exposes the pipeline's controls over HTTP.
//
// Every operation the user can perform (start and stop the pipeline, pick
// devices, load the transcription model, manage synthesis voices, tune the
// silence duration, read and write the persisted settings) has one JSON
// endpoint. Status changes are pushed to websocket clients as they happen.
//
// Request errors are answered with a plain-text body and a 4xx status.
// Operations whose backend is absent answer 501.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/health"
	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/internal/pipeline"
	"github.com/MrWong99/parrot/pkg/audio/device"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Pipeline is the part of [pipeline.Controller] the control surface drives.
type Pipeline interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
	SilenceDuration() time.Duration
	SetSilenceDuration(d time.Duration)
	Subscribe(size int) (<-chan pipeline.Event, func())
	Status() pipeline.Event
}

// Config holds the collaborators of a [Server].
type Config struct {
	// Pipeline is required.
	Pipeline Pipeline

	// Devices is required.
	Devices *device.Manager

	// Model receives model (re)load requests. Nil disables /api/stt/model.
	Model stt.Loader

	// Voices manages the synthesis executable and voices. Nil disables the
	// /api/tts endpoints.
	Voices tts.VoiceManager

	// Settings persists user choices. Nil disables /api/settings.
	Settings *config.SettingsStore

	// Health, when set, serves /healthz and /readyz.
	Health *health.Handler

	// Metrics, when set, is served at /metrics.
	Metrics http.Handler

	// HTTPMetrics records request latency. Defaults to
	// [observe.DefaultMetrics].
	HTTPMetrics *observe.Metrics

	// BaseContext parents every pipeline run started through the API and
	// every status stream. Defaults to [context.Background].
	BaseContext context.Context
}

// Server routes control requests to the pipeline and its providers.
type Server struct {
	pipe     Pipeline
	devices  *device.Manager
	model    stt.Loader
	voices   tts.VoiceManager
	settings *config.SettingsStore
	baseCtx  context.Context

	handler http.Handler
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("control: pipeline is required")
	}
	if cfg.Devices == nil {
		return nil, errors.New("control: device manager is required")
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.HTTPMetrics == nil {
		cfg.HTTPMetrics = observe.DefaultMetrics()
	}

	s := &Server{
		pipe:     cfg.Pipeline,
		devices:  cfg.Devices,
		model:    cfg.Model,
		voices:   cfg.Voices,
		settings: cfg.Settings,
		baseCtx:  cfg.BaseContext,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/pipeline/start", s.handleStart)
	mux.HandleFunc("POST /api/pipeline/stop", s.handleStop)
	mux.HandleFunc("GET /api/pipeline/running", s.handleRunning)
	mux.HandleFunc("GET /api/silence", s.handleGetSilence)
	mux.HandleFunc("PUT /api/silence", s.handleSetSilence)
	mux.HandleFunc("GET /api/status", s.handleStatusStream)
	mux.HandleFunc("GET /api/status/current", s.handleStatusCurrent)

	mux.HandleFunc("GET /api/devices/{kind}", s.handleListDevices)
	mux.HandleFunc("GET /api/devices/{kind}/default", s.handleDefaultDevice)
	mux.HandleFunc("PUT /api/devices/{kind}", s.handleSelectDevice)

	mux.HandleFunc("POST /api/stt/model", s.handleLoadModel)
	mux.HandleFunc("PUT /api/tts/executable", s.handleSetExecutable)
	mux.HandleFunc("GET /api/tts/voices", s.handleListVoices)
	mux.HandleFunc("POST /api/tts/voices", s.handleAddVoice)
	mux.HandleFunc("PUT /api/tts/voice", s.handleSelectVoice)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)

	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	s.handler = observe.Middleware(cfg.HTTPMetrics)(mux)
	return s, nil
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler { return s.handler }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v, rejecting unknown fields. On failure it
// answers 400 and returns false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
