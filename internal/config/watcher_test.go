package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/parrot/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
pipeline:
  silence_duration_ms: 700
providers:
  stt:
    name: whisper-native
    model: /models/ggml-tiny.en.bin
  tts:
    name: piper
voices:
  - id: lessac
    model_path: /voices/en_US-lessac-medium.onnx
`

const watcherUpdatedYAML = `
server:
  log_level: debug
pipeline:
  silence_duration_ms: 900
providers:
  stt:
    name: whisper-native
    model: /models/ggml-tiny.en.bin
  tts:
    name: piper
voices:
  - id: lessac
    model_path: /voices/en_US-lessac-medium.onnx
  - id: ryan
    model_path: /voices/en_US-ryan-high.onnx
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// rewrite replaces the file and moves its mtime forward so the change is
// visible even on filesystems with coarse timestamps.
func rewrite(t *testing.T, path, content string, bump time.Duration) {
	t.Helper()
	writeFile(t, path, content)
	mt := time.Now().Add(bump)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func newWatchedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parrot.yaml")
	writeFile(t, path, watcherValidYAML)
	return path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, err := config.NewWatcher(newWatchedFile(t), nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level = %q, want info", got)
	}
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestWatcher_ReloadAppliesChange(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	var gotOld, gotNew *config.Config
	w, err := config.NewWatcher(path, func(old, new *config.Config) { gotOld, gotNew = old, new })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	if changed, err := w.Reload(); changed || err != nil {
		t.Fatalf("Reload without edit = (%v, %v)", changed, err)
	}

	rewrite(t, path, watcherUpdatedYAML, time.Second)
	changed, err := w.Reload()
	if !changed || err != nil {
		t.Fatalf("Reload = (%v, %v), want applied", changed, err)
	}
	if gotOld.Server.LogLevel != config.LogInfo || gotNew.Server.LogLevel != config.LogDebug {
		t.Errorf("callback levels = %q -> %q", gotOld.Server.LogLevel, gotNew.Server.LogLevel)
	}
	d := config.Diff(gotOld, gotNew)
	if !d.SilenceChanged || d.NewSilenceMs != 900 {
		t.Errorf("silence diff = %v/%d, want 900", d.SilenceChanged, d.NewSilenceMs)
	}
	if len(d.AddedVoices) != 1 || d.AddedVoices[0].ID != "ryan" {
		t.Errorf("added voices = %+v, want [ryan]", d.AddedVoices)
	}
	if w.Current() != gotNew {
		t.Error("Current is not the applied config")
	}
}

func TestWatcher_InvalidEditRejectedOnce(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	calls := 0
	w, err := config.NewWatcher(path, func(_, _ *config.Config) { calls++ })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	rewrite(t, path, watcherInvalidYAML, time.Second)
	if changed, err := w.Reload(); changed || err == nil {
		t.Fatalf("first Reload of invalid file = (%v, %v), want error", changed, err)
	}
	rewrite(t, path, watcherInvalidYAML, 2*time.Second)
	if changed, err := w.Reload(); changed || err != nil {
		t.Errorf("second Reload of same invalid content = (%v, %v), want quiet", changed, err)
	}
	if calls != 0 {
		t.Errorf("callback fired %d times for invalid content", calls)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current log_level = %q, want previous info", got)
	}

	rewrite(t, path, watcherUpdatedYAML, 3*time.Second)
	if changed, err := w.Reload(); !changed || err != nil {
		t.Errorf("Reload after fix = (%v, %v)", changed, err)
	}
}

func TestWatcher_TouchWithoutContentChange(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	w, err := config.NewWatcher(path, func(_, _ *config.Config) { t.Error("callback fired for touch") })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	mt := time.Now().Add(time.Second)
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if changed, err := w.Reload(); changed || err != nil {
		t.Errorf("Reload after touch = (%v, %v)", changed, err)
	}
}

func TestWatcher_RunPollsUntilCancelled(t *testing.T) {
	t.Parallel()
	path := newWatchedFile(t)

	applied := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, new *config.Config) { applied <- new },
		config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rewrite(t, path, watcherUpdatedYAML, time.Second)
	select {
	case cfg := <-applied:
		if cfg.Pipeline.SilenceDurationMs != 900 {
			t.Errorf("silence = %d, want 900", cfg.Pipeline.SilenceDurationMs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not apply the edit")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
