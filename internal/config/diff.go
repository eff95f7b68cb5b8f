package config

import "slices"

// ConfigDiff describes the hot-reloadable differences between two configs.
// Everything else (listen address, providers, backend) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SilenceChanged bool
	NewSilenceMs   int

	InputDeviceChanged  bool
	OutputDeviceChanged bool

	VocabularyChanged bool
	NewVocabulary     []string

	// AddedVoices lists voices that are new or whose paths changed.
	AddedVoices []VoiceConfig
	// RemovedVoices lists the IDs of voices no longer configured.
	RemovedVoices []string

	// RestartRequired is set when a field outside the hot-reloadable set
	// changed.
	RestartRequired bool
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SilenceChanged || d.InputDeviceChanged ||
		d.OutputDeviceChanged || d.VocabularyChanged || len(d.AddedVoices) > 0 || len(d.RemovedVoices) > 0
}

// Diff compares old and new and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Pipeline.SilenceDurationMs != new.Pipeline.SilenceDurationMs {
		d.SilenceChanged = true
		d.NewSilenceMs = new.Pipeline.SilenceDurationMs
	}
	d.InputDeviceChanged = old.Audio.InputDevice != new.Audio.InputDevice
	d.OutputDeviceChanged = old.Audio.OutputDevice != new.Audio.OutputDevice
	if !slices.Equal(old.Pipeline.Vocabulary, new.Pipeline.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = new.Pipeline.Vocabulary
	}

	oldVoices := make(map[string]VoiceConfig, len(old.Voices))
	for _, v := range old.Voices {
		oldVoices[v.ID] = v
	}
	newIDs := make(map[string]bool, len(new.Voices))
	for _, v := range new.Voices {
		newIDs[v.ID] = true
		if prev, ok := oldVoices[v.ID]; !ok || prev != v {
			d.AddedVoices = append(d.AddedVoices, v)
		}
	}
	for _, v := range old.Voices {
		if !newIDs[v.ID] {
			d.RemovedVoices = append(d.RemovedVoices, v.ID)
		}
	}

	d.RestartRequired = old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Audio.Backend != new.Audio.Backend ||
		old.Pipeline.PollIntervalMs != new.Pipeline.PollIntervalMs ||
		!providersEqual(old.Providers, new.Providers)

	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) && entryEqual(a.TTS, b.TTS) && entryEqual(a.VAD, b.VAD) &&
		slices.EqualFunc(a.STTFallback, b.STTFallback, entryEqual) &&
		slices.EqualFunc(a.TTSFallback, b.TTSFallback, entryEqual) &&
		a.CircuitBreaker == b.CircuitBreaker
}

// entryEqual compares the scalar fields of two entries. Options are compared
// by key set and formatted value.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !sameOption(av, bv) {
			return false
		}
	}
	return true
}

func sameOption(a, b any) bool {
	switch av := a.(type) {
	case string, bool, int, float64:
		return a == b
	case []any:
		bv, ok := b.([]any)
		return ok && slices.EqualFunc(av, bv, sameOption)
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !sameOption(v, bv[k]) {
				return false
			}
		}
		return true
	}
	return false
}
