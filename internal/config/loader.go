package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per kind. [Validate] warns
// about names outside this list; third-party factories may still be
// registered under them.
var ValidProviderNames = map[string][]string{
	"stt":   {"whisper", "whisper-native", "openai", "mock"},
	"tts":   {"piper", "openai", "mock"},
	"vad":   {"energy"},
	"audio": {"malgo"},
}

// Bounds for pipeline timing values in milliseconds.
const (
	minSilenceMs = 100
	maxSilenceMs = 10_000
	maxPollMs    = 1_000
)

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates it. Unknown keys
// are rejected. An empty document yields the zero Config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns every failure joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	if ms := cfg.Pipeline.SilenceDurationMs; ms != 0 && (ms < minSilenceMs || ms > maxSilenceMs) {
		errs = append(errs, fmt.Errorf("pipeline.silence_duration_ms %d is out of range [%d, %d]", ms, minSilenceMs, maxSilenceMs))
	}
	if ms := cfg.Pipeline.PollIntervalMs; ms < 0 || ms > maxPollMs {
		errs = append(errs, fmt.Errorf("pipeline.poll_interval_ms %d is out of range [0, %d]", ms, maxPollMs))
	}

	validateProviderName("audio", cfg.Audio.Backend)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	errs = append(errs, validateEntry("providers.stt", "stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("providers.tts", "tts", cfg.Providers.TTS)...)
	for i, e := range cfg.Providers.STTFallback {
		prefix := fmt.Sprintf("providers.stt_fallback[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		errs = append(errs, validateEntry(prefix, "stt", e)...)
	}
	for i, e := range cfg.Providers.TTSFallback {
		prefix := fmt.Sprintf("providers.tts_fallback[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		errs = append(errs, validateEntry(prefix, "tts", e)...)
	}
	if cfg.Providers.STT.Name == "" && len(cfg.Providers.STTFallback) > 0 {
		errs = append(errs, errors.New("providers.stt_fallback requires providers.stt"))
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Providers.TTSFallback) > 0 {
		errs = append(errs, errors.New("providers.tts_fallback requires providers.tts"))
	}

	cb := cfg.Providers.CircuitBreaker
	if cb.MaxFailures < 0 || cb.ResetTimeoutSeconds < 0 || cb.HalfOpenMax < 0 {
		errs = append(errs, errors.New("providers.circuit_breaker values must not be negative"))
	}

	seen := make(map[string]int, len(cfg.Voices))
	for i, v := range cfg.Voices {
		prefix := fmt.Sprintf("voices[%d]", i)
		if v.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := seen[v.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of voices[%d]", prefix, v.ID, prev))
			}
			seen[v.ID] = i
		}
		if v.ModelPath == "" {
			errs = append(errs, fmt.Errorf("%s.model_path is required", prefix))
		}
	}
	if len(cfg.Voices) > 0 && cfg.Providers.TTS.Name != "" && cfg.Providers.TTS.Name != "piper" {
		slog.Warn("voices are configured but the primary tts provider is not piper; they apply only to a piper fallback",
			"tts_provider", cfg.Providers.TTS.Name)
	}

	return errors.Join(errs...)
}

// validateEntry checks the provider-specific requirements of e.
func validateEntry(prefix, kind string, e ProviderEntry) []error {
	if e.Name == "" {
		return nil
	}
	validateProviderName(kind, e.Name)

	var errs []error
	switch {
	case kind == "stt" && e.Name == "whisper" && e.BaseURL == "":
		errs = append(errs, fmt.Errorf("%s.base_url is required for the whisper server provider", prefix))
	case e.Name == "openai" && e.APIKey == "" && os.Getenv("OPENAI_API_KEY") == "":
		slog.Warn("openai provider has no api_key and OPENAI_API_KEY is unset", "entry", prefix)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not listed in
// [ValidProviderNames] for kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
