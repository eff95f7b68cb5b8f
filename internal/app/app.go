// Package app wires parrot's subsystems into a running process.
//
// New builds the device manager, wraps the configured transcription and
// synthesis backends in circuit-breaking fallback groups, loads bundled
// resources and persisted settings, and creates the pipeline controller and
// its HTTP control surface. Run serves the control surface and follows
// config file edits until the context ends. Shutdown releases native
// resources.
//
// For testing, inject a listener, a settings store or a metrics handler via
// functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/control"
	"github.com/MrWong99/parrot/internal/health"
	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/internal/pipeline"
	"github.com/MrWong99/parrot/internal/resilience"
	"github.com/MrWong99/parrot/internal/transcript"
	"github.com/MrWong99/parrot/pkg/audio/device"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	"github.com/MrWong99/parrot/pkg/provider/vad"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Backend is one named provider instance. The name labels metrics, logs and
// breaker states.
type Backend[T any] struct {
	Name     string
	Provider T
}

// Providers holds the instantiated backends. The first STT and TTS entries
// are the primaries; the rest are fallbacks in order. Populated by main via
// the config registry.
type Providers struct {
	STT   []Backend[stt.Provider]
	TTS   []Backend[tts.Provider]
	VAD   vad.Classifier
	Audio device.Host
}

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	providers  *Providers
	configPath string
	level      *slog.LevelVar
	store      *config.SettingsStore
	listener   net.Listener
	metrics    *observe.Metrics
	promHTTP   http.Handler
	autoStart  bool

	devices    *device.Manager
	stt        *resilience.STTFallback
	tts        *resilience.TTSFallback
	voices     tts.VoiceManager
	corrector  *transcript.Corrector
	controller *pipeline.Controller
	control    *control.Server
	server     *http.Server

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithConfigPath enables hot reload of the YAML file at path during Run.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLevelVar lets config reloads change the log level of the handler
// built around v.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithSettingsStore sets where user settings are persisted. Without it,
// settings are neither loaded nor saved.
func WithSettingsStore(s *config.SettingsStore) Option {
	return func(a *App) { a.store = s }
}

// WithListener serves the control surface on l instead of listening on
// cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithMetrics records instrumentation into m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics instead of the default Prometheus
// registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promHTTP = h }
}

// WithAutoStart starts the pipeline as soon as Run begins.
func WithAutoStart() Option {
	return func(a *App) { a.autoStart = true }
}

// New creates an App by wiring all subsystems together. ctx parents every
// pipeline run; cancelling it stops the pipeline.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.promHTTP == nil {
		a.promHTTP = promhttp.Handler()
	}

	if providers.Audio == nil {
		return nil, errors.New("app: audio backend is required")
	}
	if len(providers.STT) == 0 {
		return nil, errors.New("app: at least one stt provider is required")
	}
	if c, ok := providers.Audio.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.initDevices()
	a.initProviders()
	a.initVoices()

	a.corrector = transcript.NewCorrector(cfg.Pipeline.Vocabulary)
	ctrl, err := pipeline.New(pipeline.Config{
		Devices:         a.devices,
		STT:             a.stt,
		TTS:             a.ttsProvider(),
		Corrector:       a.corrector,
		STTName:         providers.STT[0].Name,
		TTSName:         a.ttsName(),
		Classifier:      providers.VAD,
		Metrics:         a.metrics,
		PollInterval:    cfg.Pipeline.PollInterval(),
		SilenceDuration: cfg.Pipeline.SilenceDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: create pipeline: %w", err)
	}
	a.controller = ctrl

	if err := a.initControl(ctx); err != nil {
		return nil, fmt.Errorf("app: create control surface: %w", err)
	}
	a.applySettings()

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.control.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return a, nil
}

// initDevices selects the configured devices. A device that has gone away
// is reported and the host default is used instead.
func (a *App) initDevices() {
	a.devices = device.NewManager(a.providers.Audio)
	if name := a.cfg.Audio.InputDevice; name != "" {
		if err := a.devices.SetInput(name); err != nil {
			slog.Warn("configured input device unavailable, using default", "device", name, "err", err)
		}
	}
	if name := a.cfg.Audio.OutputDevice; name != "" {
		if err := a.devices.SetOutput(name); err != nil {
			slog.Warn("configured output device unavailable, using default", "device", name, "err", err)
		}
	}
}

// initProviders wraps the backends in fallback groups with one breaker each.
func (a *App) initProviders() {
	cb := a.cfg.Providers.CircuitBreaker
	fbCfg := resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		MaxFailures:  cb.MaxFailures,
		ResetTimeout: time.Duration(cb.ResetTimeoutSeconds) * time.Second,
		HalfOpenMax:  cb.HalfOpenMax,
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("provider circuit breaker changed state", "provider", name, "from", from, "to", to)
		},
	}}

	primary := a.providers.STT[0]
	a.stt = resilience.NewSTTFallback(primary.Provider, primary.Name, fbCfg)
	for _, b := range a.providers.STT {
		if c, ok := b.Provider.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	for _, b := range a.providers.STT[1:] {
		a.stt.AddFallback(b.Name, b.Provider)
	}

	if len(a.providers.TTS) == 0 {
		slog.Warn("no tts provider configured; transcripts will not be spoken")
		return
	}
	primaryTTS := a.providers.TTS[0]
	a.tts = resilience.NewTTSFallback(primaryTTS.Provider, primaryTTS.Name, fbCfg)
	for _, b := range a.providers.TTS[1:] {
		a.tts.AddFallback(b.Name, b.Provider)
	}
	if vm, ok := a.tts.VoiceManager(); ok {
		a.voices = vm
	}
}

// ttsProvider returns the synthesis group as a [tts.Provider], or a nil
// interface when synthesis is not configured.
func (a *App) ttsProvider() tts.Provider {
	if a.tts == nil {
		return nil
	}
	return a.tts
}

func (a *App) ttsName() string {
	if len(a.providers.TTS) == 0 {
		return ""
	}
	return a.providers.TTS[0].Name
}

// modelLoader returns the transcription group when a backend can load
// models.
func (a *App) modelLoader() stt.Loader {
	for _, b := range a.providers.STT {
		if _, ok := b.Provider.(stt.Loader); ok {
			return a.stt
		}
	}
	return nil
}

// initVoices registers configured voices, then fills in whatever bundled
// resources discovery finds, and selects the first voice if none is active.
func (a *App) initVoices() {
	if a.voices != nil {
		for _, v := range a.cfg.Voices {
			a.addVoice(v)
		}
	}

	if !a.cfg.Resources.SkipDiscovery {
		dirs := SearchDirs(a.cfg.Resources.SearchDirs)
		slog.Info("looking for bundled resources", "dirs", dirs)
		a.applyResources(Discover(dirs))
	}

	if a.voices == nil {
		return
	}
	if _, ok := a.voices.ActiveVoice(); ok {
		return
	}
	if vs := a.voices.ListVoices(); len(vs) > 0 {
		if err := a.voices.SelectVoice(vs[0].ID); err != nil {
			slog.Error("failed to select default voice", "voice", vs[0].ID, "err", err)
			return
		}
		slog.Info("selected default voice", "voice", vs[0].ID)
	}
}

func (a *App) addVoice(v config.VoiceConfig) {
	voice := tts.Voice{
		ID:         v.ID,
		Name:       v.Name,
		ModelPath:  v.ModelPath,
		ConfigPath: v.ResolvedConfigPath(),
	}
	if voice.Name == "" {
		voice.Name = v.ID
	}
	if err := a.voices.AddVoice(voice); err != nil {
		slog.Error("failed to add voice", "voice", v.ID, "err", err)
		return
	}
	slog.Info("added voice", "voice", v.ID)
}

// applyResources loads a discovered model unless one is already loaded, and
// hands a discovered executable and voices to the synthesis backend.
func (a *App) applyResources(res Resources) {
	if loader := a.modelLoader(); loader != nil && !loader.Loaded() {
		if res.Model == "" {
			slog.Warn("whisper model not found")
		} else if err := loader.LoadModel(res.Model); err != nil {
			slog.Error("failed to load whisper model", "path", res.Model, "err", err)
		} else {
			slog.Info("whisper model loaded", "path", res.Model)
		}
	}

	if a.voices == nil {
		return
	}
	if res.Executable == "" {
		slog.Warn("piper executable not found")
		return
	}
	if err := a.voices.SetExecutable(res.Executable); err != nil {
		slog.Error("failed to set piper executable", "path", res.Executable, "err", err)
		return
	}
	for _, v := range res.Voices {
		if err := a.voices.AddVoice(v); err != nil {
			slog.Error("failed to add voice", "voice", v.ID, "err", err)
			continue
		}
		slog.Info("added voice", "voice", v.ID, "name", v.Name)
	}
}

func (a *App) initControl(ctx context.Context) error {
	checks := []health.Checker{
		health.STTModel(a.stt),
		health.Devices(a.devices),
	}
	if a.tts != nil {
		checks = append(checks, health.TTSVoice(a.tts))
	}
	srv, err := control.New(control.Config{
		Pipeline:    a.controller,
		Devices:     a.devices,
		Model:       a.modelLoader(),
		Voices:      a.voices,
		Settings:    a.store,
		Health:      health.New(checks...),
		Metrics:     a.promHTTP,
		HTTPMetrics: a.metrics,
		BaseContext: ctx,
	})
	if err != nil {
		return err
	}
	a.control = srv
	return nil
}

// applySettings applies the persisted settings file, when there is one, on
// top of the YAML config.
func (a *App) applySettings() {
	if a.store == nil {
		return
	}
	if _, err := os.Stat(a.store.Path()); errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no persisted settings", "path", a.store.Path())
		return
	}
	st, err := a.store.Load()
	if err != nil {
		slog.Warn("failed to load settings", "err", err)
		return
	}
	if err := a.control.ApplySettings(st); err != nil {
		slog.Warn("some persisted settings could not be applied", "err", err)
	}
	slog.Info("persisted settings applied", "path", a.store.Path())
}

// Controller returns the pipeline controller.
func (a *App) Controller() *pipeline.Controller { return a.controller }

// Handler returns the control surface.
func (a *App) Handler() http.Handler { return a.control.Handler() }

// Run serves the control surface until ctx is cancelled or the server fails,
// then stops the pipeline and waits for its run to end.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}
	g.Go(func() error { return a.serve() })
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			slog.Warn("control server shutdown error", "err", err)
		}
		return nil
	})

	if a.autoStart {
		a.controller.Start(gctx)
	}
	slog.Info("app running", "addr", a.addr())

	err := g.Wait()
	a.controller.Stop()
	if werr := a.controller.Wait(); werr != nil {
		slog.Warn("pipeline ended with error", "err", werr)
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (a *App) addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.server.Addr
}

func (a *App) serve() error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
		}
	}

	var err error
	if tls := a.cfg.Server.TLS; tls != nil {
		err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
	} else {
		err = a.server.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("app: serve: %w", err)
}

// onConfigChange applies the hot-reloadable part of a config edit.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SilenceChanged {
		silence := time.Duration(d.NewSilenceMs) * time.Millisecond
		if silence <= 0 {
			silence = time.Duration(config.DefaultSilenceMs) * time.Millisecond
		}
		a.controller.SetSilenceDuration(silence)
		slog.Info("silence duration changed", "silence", silence)
	}
	if d.InputDeviceChanged {
		if err := a.devices.SetInput(new.Audio.InputDevice); err != nil {
			slog.Warn("failed to select input device", "device", new.Audio.InputDevice, "err", err)
		}
	}
	if d.OutputDeviceChanged {
		if err := a.devices.SetOutput(new.Audio.OutputDevice); err != nil {
			slog.Warn("failed to select output device", "device", new.Audio.OutputDevice, "err", err)
		}
	}
	if d.VocabularyChanged {
		a.corrector.SetVocabulary(d.NewVocabulary)
		slog.Info("vocabulary changed", "terms", a.corrector.Terms())
	}
	if a.voices != nil {
		for _, v := range d.AddedVoices {
			a.addVoice(v)
		}
	}
	if len(d.RemovedVoices) > 0 {
		slog.Info("removed voices stay available until restart", "voices", d.RemovedVoices)
	}
	if d.RestartRequired {
		slog.Warn("config changes outside the hot-reloadable set need a restart")
	}
}

// Shutdown stops the pipeline and releases native resources in order. It
// respects the context deadline: if ctx expires before all closers finish,
// the remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.controller.Stop()
		_ = a.controller.Wait()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
