package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is the polling period unless [WithInterval] is given.
const DefaultWatchInterval = 2 * time.Second

// ChangeFunc receives the previous and the freshly loaded config together
// with their [ConfigDiff].
type ChangeFunc func(old, new *Config, d ConfigDiff)

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling period. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// Watcher keeps the config file and a running process in sync. Edits are
// picked up by polling in [Watcher.Run] or on demand through
// [Watcher.Reload]; edits that fail validation are rejected and the previous
// config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc

	mu      sync.Mutex
	current *Config
	raw     []byte
	stamp   fileStamp
}

// fileStamp is the cheap part of change detection. Only a differing stamp
// causes the file to be read.
type fileStamp struct {
	size int64
	mod  time.Time
}

func stampOf(fi os.FileInfo) fileStamp {
	return fileStamp{size: fi.Size(), mod: fi.ModTime()}
}

// NewWatcher loads path and returns a Watcher for it. Polling starts with
// [Watcher.Run].
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, o := range opts {
		o(w)
	}
	raw, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.raw, w.stamp = cfg, raw, stamp
	return w, nil
}

// Current returns the config in effect.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done and always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}

		fi, err := os.Stat(w.path)
		if err != nil {
			slog.Warn("config: cannot stat watched file", "path", w.path, "err", err)
			continue
		}
		w.mu.Lock()
		same := stampOf(fi) == w.stamp
		w.mu.Unlock()
		if same {
			continue
		}
		if _, err := w.Reload(); err != nil {
			slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		}
	}
}

// Reload reads the file now and applies it when its content differs from
// the config in effect. It reports whether a new config was applied.
func (w *Watcher) Reload() (bool, error) {
	raw, stamp, err := w.read()
	if err != nil {
		return false, fmt.Errorf("config: reload %q: %w", w.path, err)
	}

	w.mu.Lock()
	w.stamp = stamp
	if bytes.Equal(raw, w.raw) {
		w.mu.Unlock()
		return false, nil
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(raw))
	if err != nil {
		return false, fmt.Errorf("config: reload %q: %w", w.path, err)
	}

	w.mu.Lock()
	old := w.current
	w.current, w.raw = cfg, raw
	w.mu.Unlock()

	d := Diff(old, cfg)
	slog.Info("config: reloaded", "path", w.path,
		"translation", d.TranslationChanged,
		"voices", d.VoicesChanged,
		"vad", d.VADChanged,
		"log_level", d.LogLevelChanged,
	)
	if d.RestartRequired {
		slog.Warn("config: some changed settings only take effect after a restart", "path", w.path)
	}
	if w.onChange != nil {
		w.onChange(old, cfg, d)
	}
	return true, nil
}

func (w *Watcher) read() ([]byte, fileStamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fileStamp{}, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, fileStamp{}, err
	}
	return buf.Bytes(), stampOf(fi), nil
}
