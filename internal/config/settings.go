package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultSilenceMs is the end-of-utterance silence used when nothing else is
// configured.
const DefaultSilenceMs = 700

// Settings are the user choices persisted between runs. A nil pointer means
// "not chosen"; the host default or the YAML config applies instead.
type Settings struct {
	InputDevice       *string `json:"input_device"`
	OutputDevice      *string `json:"output_device"`
	VoiceID           *string `json:"voice_id"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// DefaultSettings returns settings with nothing selected and the default
// silence duration.
func DefaultSettings() Settings {
	return Settings{SilenceDurationMs: DefaultSilenceMs}
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	return ValidateSilenceMs(s.SilenceDurationMs)
}

// ValidateSilenceMs reports whether ms is an acceptable end-of-utterance
// silence duration.
func ValidateSilenceMs(ms int) error {
	if ms < minSilenceMs || ms > maxSilenceMs {
		return fmt.Errorf("config: silence_duration_ms %d is out of range [%d, %d]", ms, minSilenceMs, maxSilenceMs)
	}
	return nil
}

// DefaultSettingsPath returns <user config dir>/parrot/settings.json.
func DefaultSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate user config dir: %w", err)
	}
	return filepath.Join(dir, "parrot", "settings.json"), nil
}

// SettingsStore reads and writes [Settings] at a fixed path. It is safe for
// concurrent use.
type SettingsStore struct {
	path string

	mu sync.Mutex
}

// NewSettingsStore returns a store backed by path.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Path returns the backing file.
func (s *SettingsStore) Path() string { return s.path }

// Load reads the settings file. A missing file yields [DefaultSettings]. A
// zero silence value in the file is replaced by the default.
func (s *SettingsStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *SettingsStore) loadLocked() (Settings, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("config: read settings %q: %w", s.path, err)
	}

	st := DefaultSettings()
	if err := json.Unmarshal(data, &st); err != nil {
		return Settings{}, fmt.Errorf("config: decode settings %q: %w", s.path, err)
	}
	if st.SilenceDurationMs == 0 {
		st.SilenceDurationMs = DefaultSilenceMs
	}
	return st, nil
}

// Save validates st and writes it, creating parent directories. The file is
// replaced atomically.
func (s *SettingsStore) Save(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(st)
}

func (s *SettingsStore) saveLocked(st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("config: create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("config: write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("config: replace settings: %w", err)
	}
	return nil
}

// Update loads the settings, applies fn, and saves the result as one step.
func (s *SettingsStore) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLocked()
	if err != nil {
		return Settings{}, err
	}
	fn(&st)
	if err := s.saveLocked(st); err != nil {
		return Settings{}, err
	}
	return st, nil
}
