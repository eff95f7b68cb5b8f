package config_test

import (
	"testing"

	"github.com/MrWong99/parrot/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{ListenAddr: ":8750", LogLevel: config.LogInfo},
		Audio:    config.AudioConfig{InputDevice: "mic"},
		Pipeline: config.PipelineConfig{SilenceDurationMs: 700},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "whisper-native", Model: "/m/ggml-tiny.en.bin"},
			TTS: config.ProviderEntry{Name: "piper", Options: map[string]any{"executable": "/bin/piper"}},
		},
		Voices: []config.VoiceConfig{
			{ID: "lessac", ModelPath: "/v/lessac.onnx"},
			{ID: "ryan", ModelPath: "/v/ryan.onnx"},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("Changed() = true for identical configs: %+v", d)
	}
	if d.RestartRequired {
		t.Error("RestartRequired = true for identical configs")
	}
}

func TestDiff_HotReloadableFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		check  func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("log level diff = %v/%q", d.LogLevelChanged, d.NewLogLevel)
				}
			},
		},
		{
			name:   "silence",
			mutate: func(c *config.Config) { c.Pipeline.SilenceDurationMs = 1200 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.SilenceChanged || d.NewSilenceMs != 1200 {
					t.Errorf("silence diff = %v/%d", d.SilenceChanged, d.NewSilenceMs)
				}
			},
		},
		{
			name:   "devices",
			mutate: func(c *config.Config) { c.Audio.InputDevice = ""; c.Audio.OutputDevice = "headset" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.InputDeviceChanged || !d.OutputDeviceChanged {
					t.Errorf("device diff = %v/%v", d.InputDeviceChanged, d.OutputDeviceChanged)
				}
			},
		},
		{
			name:   "vocabulary",
			mutate: func(c *config.Config) { c.Pipeline.Vocabulary = []string{"Gandalf"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.VocabularyChanged || len(d.NewVocabulary) != 1 || d.NewVocabulary[0] != "Gandalf" {
					t.Errorf("vocabulary diff = %v/%q", d.VocabularyChanged, d.NewVocabulary)
				}
				if d.RestartRequired {
					t.Error("vocabulary change should not require a restart")
				}
			},
		},
		{
			name: "voices",
			mutate: func(c *config.Config) {
				c.Voices = []config.VoiceConfig{
					{ID: "lessac", ModelPath: "/v/lessac-high.onnx"},
					{ID: "alba", ModelPath: "/v/alba.onnx"},
				}
			},
			check: func(t *testing.T, d config.ConfigDiff) {
				if len(d.AddedVoices) != 2 {
					t.Errorf("added voices = %+v, want changed lessac and new alba", d.AddedVoices)
				}
				if len(d.RemovedVoices) != 1 || d.RemovedVoices[0] != "ryan" {
					t.Errorf("removed voices = %v, want [ryan]", d.RemovedVoices)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			next := baseConfig()
			tc.mutate(next)
			d := config.Diff(baseConfig(), next)
			if !d.Changed() {
				t.Error("Changed() = false")
			}
			if d.RestartRequired {
				t.Error("RestartRequired = true for a hot-reloadable change")
			}
			tc.check(t, d)
		})
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9000" }},
		{"backend", func(c *config.Config) { c.Audio.Backend = "other" }},
		{"stt model", func(c *config.Config) { c.Providers.STT.Model = "/m/ggml-base.en.bin" }},
		{"tts option", func(c *config.Config) { c.Providers.TTS.Options["executable"] = "/opt/piper" }},
		{"fallback added", func(c *config.Config) {
			c.Providers.TTSFallback = []config.ProviderEntry{{Name: "openai"}}
		}},
		{"circuit breaker", func(c *config.Config) { c.Providers.CircuitBreaker.MaxFailures = 2 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			next := baseConfig()
			tc.mutate(next)
			if d := config.Diff(baseConfig(), next); !d.RestartRequired {
				t.Error("RestartRequired = false")
			}
		})
	}
}
