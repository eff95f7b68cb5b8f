// Package config provides the configuration schema, loader, hot-reload watcher,
// persisted user settings, and provider registry for parrot.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog returns the matching [slog.Level]. Unset or unknown levels map to
// info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure, usually loaded from YAML with
// [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Providers ProvidersConfig `yaml:"providers"`
	Voices    []VoiceConfig   `yaml:"voices"`
	Resources ResourcesConfig `yaml:"resources"`
}

// ServerConfig holds the control surface address and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP control surface
	// (e.g., "127.0.0.1:8750").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS on the control surface. When nil, plain HTTP is used.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds PEM certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AudioConfig selects the audio backend and the initial devices.
type AudioConfig struct {
	// Backend names the registered device host. Empty selects "malgo".
	Backend string `yaml:"backend"`

	// InputDevice and OutputDevice select devices by name. Empty uses the
	// host default. Persisted settings take precedence.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

// PipelineConfig tunes the controller loop.
type PipelineConfig struct {
	// SilenceDurationMs is the trailing silence that ends an utterance.
	// Zero uses the 700 ms default. Hot-reloadable.
	SilenceDurationMs int `yaml:"silence_duration_ms"`

	// PollIntervalMs is how often the controller checks for a complete
	// segment. Zero uses 50 ms.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// Vocabulary lists names and jargon that transcripts are corrected
	// towards before synthesis. Hot-reloadable.
	Vocabulary []string `yaml:"vocabulary"`
}

// SilenceDuration returns SilenceDurationMs as a duration, or zero when unset.
func (p PipelineConfig) SilenceDuration() time.Duration {
	return time.Duration(p.SilenceDurationMs) * time.Millisecond
}

// PollInterval returns PollIntervalMs as a duration, or zero when unset.
func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// ProvidersConfig declares the speech backends. Each entry selects a factory
// registered in the [Registry] by name.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`

	// STTFallback and TTSFallback are tried in order when the primary
	// fails or its circuit breaker is open.
	STTFallback []ProviderEntry `yaml:"stt_fallback"`
	TTSFallback []ProviderEntry `yaml:"tts_fallback"`

	// CircuitBreaker tunes the per-backend breakers.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "whisper", "piper").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted APIs.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model. For whisper-native this is the ggml model path.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] when it is a string.
func (e ProviderEntry) StringOption(key string) (string, bool) {
	v, ok := e.Options[key].(string)
	return v, ok
}

// FloatOption returns Options[key] when it is numeric.
func (e ProviderEntry) FloatOption(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// CircuitBreakerConfig tunes provider circuit breakers. Zero values take the
// breaker defaults.
type CircuitBreakerConfig struct {
	MaxFailures         int `yaml:"max_failures"`
	ResetTimeoutSeconds int `yaml:"reset_timeout_seconds"`
	HalfOpenMax         int `yaml:"half_open_max"`
}

// VoiceConfig registers a local piper voice.
type VoiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// ModelPath is the .onnx voice model.
	ModelPath string `yaml:"model_path"`

	// ConfigPath is the voice's JSON config. Empty uses ModelPath + ".json".
	ConfigPath string `yaml:"config_path"`
}

// ResolvedConfigPath returns ConfigPath, or the piper convention of the model
// path with a ".json" suffix.
func (v VoiceConfig) ResolvedConfigPath() string {
	if v.ConfigPath != "" {
		return v.ConfigPath
	}
	return v.ModelPath + ".json"
}

// ResourcesConfig controls startup discovery of bundled models and voices.
type ResourcesConfig struct {
	// SearchDirs are searched before the built-in locations.
	SearchDirs []string `yaml:"search_dirs"`

	// SkipDiscovery disables the startup search entirely.
	SkipDiscovery bool `yaml:"skip_discovery"`
}
