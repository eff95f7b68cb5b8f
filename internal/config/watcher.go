package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Run] looks at the file.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps the last valid revision of a config file and hands every new
// valid revision to a callback. Edits that fail to parse or validate are
// rejected once and the previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	seen     revision
	rejected [sha256.Size]byte
}

// revision identifies file content. size and modTime short-circuit the hash.
type revision struct {
	size    int64
	modTime time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval of [Watcher.Run].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	cfg, rev, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, rev
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Current returns the most recent valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run calls Reload every interval until ctx is done. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Reload(); err != nil {
				slog.Warn("config reload rejected, keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Reload checks the file once. It reports whether a new config was applied.
// A rejected revision returns its error the first time and is ignored until
// the content changes again.
func (w *Watcher) Reload() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("config: stat %s: %w", w.path, err)
	}
	w.mu.Lock()
	same := info.Size() == w.seen.size && info.ModTime().Equal(w.seen.modTime)
	w.mu.Unlock()
	if same {
		return false, nil
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("config: read %s: %w", w.path, err)
	}
	rev := revision{size: info.Size(), modTime: info.ModTime(), sum: sha256.Sum256(data)}

	w.mu.Lock()
	if rev.sum == w.seen.sum || rev.sum == w.rejected {
		w.seen.size, w.seen.modTime = rev.size, rev.modTime
		w.mu.Unlock()
		return false, nil
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(data))

	w.mu.Lock()
	if err != nil {
		w.rejected = rev.sum
		w.mu.Unlock()
		return false, err
	}
	old := w.current
	w.current, w.seen = cfg, rev
	w.mu.Unlock()

	slog.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

func load(path string) (*Config, revision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, revision{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, revision{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, revision{}, err
	}
	return cfg, revision{size: info.Size(), modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
