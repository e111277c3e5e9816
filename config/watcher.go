package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/GoCodeAlone/pageview/fswatch"
)

// ChangeEvent is emitted when the watched configuration file changes.
type ChangeEvent struct {
	Path    string
	OldHash string
	NewHash string
	Config  *Config
	Time    time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchDebounce sets the debounce duration for file change events.
func WithWatchDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatchLogger sets the logger for the watcher.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// Watcher reloads a configuration file when its content changes. A file that
// fails to load is logged and the previous configuration stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func(ChangeEvent)

	fs       *fswatch.Watcher
	lastHash string
}

// NewWatcher creates a Watcher for the file at path.
func NewWatcher(path string, onChange func(ChangeEvent), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching the directory of the file, so that atomic saves
// (rename over) are seen.
func (w *Watcher) Start() error {
	hash, err := hashFile(w.path)
	if err != nil {
		return fmt.Errorf("config watcher: initial hash: %w", err)
	}
	w.lastHash = hash

	// Any write in the directory may be a symlink swap of the file
	// (ConfigMap mounts); the hash check filters the rest.
	w.fs = fswatch.New(func(string) { w.processChange() },
		fswatch.WithDebounce(w.debounce),
		fswatch.WithLogger(w.logger),
	)
	if err := w.fs.Start(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	return nil
}

// Stop terminates the watcher. It is safe to call Stop multiple times.
func (w *Watcher) Stop() error {
	if w.fs == nil {
		return nil
	}
	return w.fs.Stop()
}

func (w *Watcher) processChange() {
	newHash, err := hashFile(w.path)
	if err != nil {
		w.logger.Error("config watcher: failed to hash config", "path", w.path, "err", err)
		return
	}
	if newHash == w.lastHash {
		w.logger.Debug("config watcher: content unchanged, skipping", "path", w.path)
		return
	}

	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Error("config watcher: failed to load config", "path", w.path, "err", err)
		return
	}

	oldHash := w.lastHash
	w.lastHash = newHash
	w.logger.Info("config changed", "path", w.path, "old_hash", oldHash[:8], "new_hash", newHash[:8])

	w.onChange(ChangeEvent{
		Path:    w.path,
		OldHash: oldHash,
		NewHash: newHash,
		Config:  cfg,
		Time:    time.Now(),
	})
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
