package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fingerprint identifies one observed on-disk state of the config file.
type fingerprint struct {
	mtime time.Time
	hash  [sha256.Size]byte
}

// Watcher polls a config file for edits. The running pipeline never
// hot-reloads: when a valid change lands on disk the onChange callback
// receives a [Diff] against the boot config, so the caller can flip the log
// level and tell subscribers that a restart is required. Detection is by
// polling; there is no fsnotify dependency.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(Diff, *Config)

	boot *Config // loaded once in NewWatcher, never replaced

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides the default 5 second polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path — the result becomes the immutable boot config — and
// starts polling it in a background goroutine. Every valid edit is reported
// to onChange as a diff against the boot config together with the newly
// parsed file; invalid edits are logged and left for the operator to fix.
func NewWatcher(path string, onChange func(Diff, *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.snapshot()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.boot = cfg

	go w.poll(fp)
	return w, nil
}

// Boot returns the config the process started with. It never changes for the
// lifetime of the watcher, so callers may hold on to it.
func (w *Watcher) Boot() *Config {
	return w.boot
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// poll re-checks the file every interval until Stop. All change-detection
// state lives on this goroutine's stack; boot is immutable, so the watcher
// needs no locking.
func (w *Watcher) poll(last fingerprint) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			last = w.inspect(last)
		}
	}
}

// inspect compares the on-disk file against the last seen fingerprint and
// reports a diff when the content changed. It returns the fingerprint the
// next round compares against.
func (w *Watcher) inspect(last fingerprint) fingerprint {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config file unreadable", "path", w.path, "err", err)
		return last
	}
	// Hash only when the mtime moved; editors touch files far more often
	// than operators change them.
	if info.ModTime().Equal(last.mtime) {
		return last
	}

	cfg, fp, err := w.snapshot()
	if err != nil {
		slog.Warn("edited config is invalid, keeping the running one",
			"path", w.path, "err", err)
		return last
	}
	if fp.hash == last.hash {
		// Touched, content identical.
		return fp
	}

	diff := Compare(w.boot, cfg)
	if diff.Empty() {
		return fp
	}
	if len(diff.RestartRequired) > 0 {
		slog.Info("config changed on disk, restart required to apply",
			"path", w.path, "sections", diff.RestartRequired)
	}
	if w.onChange != nil {
		w.onChange(diff, cfg)
	}
	return fp
}

// snapshot reads, parses and validates the file, returning the config and
// the fingerprint of the bytes it was parsed from. Stat precedes the read so
// a replacement landing in between is picked up again on the next tick.
func (w *Watcher) snapshot() (*Config, fingerprint, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{mtime: info.ModTime(), hash: sha256.Sum256(data)}, nil
}
