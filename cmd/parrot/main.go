// Command parrot runs the conversational audio pipeline behind an HTTP
// control surface.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/parrot/internal/app"
	"github.com/MrWong99/parrot/internal/config"
	"github.com/MrWong99/parrot/internal/observe"
	"github.com/MrWong99/parrot/pkg/audio/device"
	malgohost "github.com/MrWong99/parrot/pkg/audio/device/malgo"
	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/parrot/pkg/provider/stt/mock"
	oaistt "github.com/MrWong99/parrot/pkg/provider/stt/openai"
	"github.com/MrWong99/parrot/pkg/provider/stt/whisper"
	"github.com/MrWong99/parrot/pkg/provider/tts"
	"github.com/MrWong99/parrot/pkg/provider/tts/coqui"
	"github.com/MrWong99/parrot/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/MrWong99/parrot/pkg/provider/tts/mock"
	oaitts "github.com/MrWong99/parrot/pkg/provider/tts/openai"
	"github.com/MrWong99/parrot/pkg/provider/tts/piper"
	"github.com/MrWong99/parrot/pkg/provider/vad"
	"github.com/MrWong99/parrot/pkg/provider/vad/energy"
)

// version is set at build time via -ldflags.
var version = "dev"

const defaultListenAddr = "127.0.0.1:8750"

// Provider names used when the config leaves a slot empty.
const (
	defaultSTT   = "whisper-native"
	defaultTTS   = "piper"
	defaultVAD   = "energy"
	defaultAudio = "malgo"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	settingsPath := flag.String("settings", "", "path to the persisted settings file (default: user config dir)")
	autoStart := flag.Bool("start", false, "start the pipeline immediately")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parrot: %v\n", err)
			return 1
		}
	}
	cfg.Server.ListenAddr = cmp.Or(cfg.Server.ListenAddr, defaultListenAddr)

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(level))

	slog.Info("parrot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", level.Level(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Setup(ctx, observe.Options{Version: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Settings ──────────────────────────────────────────────────────────────
	path := *settingsPath
	if path == "" {
		path, err = config.DefaultSettingsPath()
		if err != nil {
			slog.Warn("settings will not be persisted", "err", err)
		}
	}

	opts := []app.Option{
		app.WithLevelVar(level),
		app.WithMetricsHandler(tel.MetricsHandler()),
	}
	if path != "" {
		opts = append(opts, app.WithSettingsStore(config.NewSettingsStore(path)))
	}
	if *configPath != "" {
		opts = append(opts, app.WithConfigPath(*configPath))
	}
	if *autoStart {
		opts = append(opts, app.WithAutoStart())
	}

	printStartupSummary(cfg, path)

	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if temp, ok := entry.FloatOption("temperature"); ok {
			opts = append(opts, whisper.WithTemperature(temp))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// whisper-native may start without a model; discovery or the control
	// surface loads one later.
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if p, ok := entry.StringOption("model_path"); ok && modelPath == "" {
			modelPath = p
		}
		var opts []whisper.NativeOption
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if d := optSeconds(entry, "timeout_seconds"); d > 0 {
			opts = append(opts, oaistt.WithTimeout(d))
		}
		return oaistt.New(apiKey(entry, "OPENAI_API_KEY"), entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if kws := deepgramKeywords(entry); len(kws) > 0 {
			opts = append(opts, deepgram.WithKeywords(kws...))
		}
		return deepgram.New(apiKey(entry, "DEEPGRAM_API_KEY"), opts...)
	})

	reg.RegisterSTT("mock", func(entry config.ProviderEntry) (stt.Provider, error) {
		text, _ := entry.StringOption("text")
		return &sttmock.Provider{Text: text}, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []piper.Option
		if ls, ok := entry.FloatOption("length_scale"); ok {
			opts = append(opts, piper.WithExtraArgs("--length_scale", strconv.FormatFloat(ls, 'f', -1, 64)))
		}
		p := piper.New(opts...)
		if exe, ok := entry.StringOption("executable"); ok {
			if err := p.SetExecutable(exe); err != nil {
				return nil, err
			}
		}
		return p, nil
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if voice, ok := entry.StringOption("voice"); ok {
			opts = append(opts, oaitts.WithVoice(voice))
		}
		if d := optSeconds(entry, "timeout_seconds"); d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(apiKey(entry, "OPENAI_API_KEY"), entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		if voice, ok := entry.StringOption("voice"); ok {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if f, ok := entry.StringOption("output_format"); ok {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		return elevenlabs.New(apiKey(entry, "ELEVENLABS_API_KEY"), opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if mode, ok := entry.StringOption("api_mode"); ok {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if lang, ok := entry.StringOption("language"); ok {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker, ok := entry.StringOption("speaker"); ok {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if d := optSeconds(entry, "timeout_seconds"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(cmp.Or(entry.BaseURL, "http://localhost:5002"), opts...)
	})

	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{ReadyFlag: true, Rate: 22050}, nil
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Classifier, error) {
		threshold, _ := entry.FloatOption("threshold")
		return energy.New(threshold), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("malgo", func(config.AudioConfig) (device.Host, error) {
		return malgohost.New()
	})

	for _, kind := range []string{"stt", "tts", "vad", "audio"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the providers named in cfg, filling empty
// slots with the built-in defaults.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	sttEntries := append([]config.ProviderEntry{withDefault(cfg.Providers.STT, defaultSTT)}, cfg.Providers.STTFallback...)
	for _, entry := range sttEntries {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		ps.STT = append(ps.STT, app.Backend[stt.Provider]{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}

	ttsEntries := append([]config.ProviderEntry{withDefault(cfg.Providers.TTS, defaultTTS)}, cfg.Providers.TTSFallback...)
	for _, entry := range ttsEntries {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		ps.TTS = append(ps.TTS, app.Backend[tts.Provider]{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "tts", "name", entry.Name)
	}

	vadEntry := withDefault(cfg.Providers.VAD, defaultVAD)
	classifier, err := reg.CreateVAD(vadEntry)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", vadEntry.Name, err)
	}
	ps.VAD = classifier

	audioCfg := cfg.Audio
	audioCfg.Backend = cmp.Or(audioCfg.Backend, defaultAudio)
	host, err := reg.CreateAudio(audioCfg)
	if err != nil {
		return nil, fmt.Errorf("create audio backend %q: %w", audioCfg.Backend, err)
	}
	ps.Audio = host
	slog.Info("provider created", "kind", "audio", "name", audioCfg.Backend)

	return ps, nil
}

func withDefault(entry config.ProviderEntry, name string) config.ProviderEntry {
	entry.Name = cmp.Or(entry.Name, name)
	return entry
}

// apiKey returns the configured key, falling back to OPENAI_API_KEY.
// apiKey returns the configured key, falling back to the env variable.
func apiKey(entry config.ProviderEntry, env string) string {
	return cmp.Or(entry.APIKey, os.Getenv(env))
}

// deepgramKeywords reads the "keywords" option, a map of term to boost.
func deepgramKeywords(entry config.ProviderEntry) []deepgram.Keyword {
	m, ok := entry.Options["keywords"].(map[string]any)
	if !ok {
		return nil
	}
	kws := make([]deepgram.Keyword, 0, len(m))
	for word, v := range m {
		boost := 1.0
		switch b := v.(type) {
		case int:
			boost = float64(b)
		case float64:
			boost = b
		}
		kws = append(kws, deepgram.Keyword{Keyword: word, Boost: boost})
	}
	slices.SortFunc(kws, func(a, b deepgram.Keyword) int { return strings.Compare(a.Keyword, b.Keyword) })
	return kws
}

func optSeconds(entry config.ProviderEntry, key string) time.Duration {
	s, ok := entry.FloatOption(key)
	if !ok || s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, settingsPath string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          parrot: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", withDefault(cfg.Providers.STT, defaultSTT).Name, cfg.Providers.STT.Model)
	printRow("TTS", withDefault(cfg.Providers.TTS, defaultTTS).Name, cfg.Providers.TTS.Model)
	printRow("VAD", withDefault(cfg.Providers.VAD, defaultVAD).Name, "")
	printRow("Audio", cmp.Or(cfg.Audio.Backend, defaultAudio), "")
	printRow("Fallbacks", strconv.Itoa(len(cfg.Providers.STTFallback)+len(cfg.Providers.TTSFallback)), "")
	printRow("Voices", strconv.Itoa(len(cfg.Voices)), "")
	printRow("Listen addr", cfg.Server.ListenAddr, "")
	if settingsPath == "" {
		settingsPath = "(not persisted)"
	}
	printRow("Settings", settingsPath, "")
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value, detail string) {
	if detail != "" {
		value += " / " + detail
	}
	if len(value) > 19 {
		value = "…" + value[len(value)-18:]
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
