package source

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/pageview/fswatch"
)

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

// Watcher monitors the files of a FileSource and reports page models whose
// content changed.
type Watcher struct {
	source   *FileSource
	debounce time.Duration
	logger   *slog.Logger
	onChange func(ChangeEvent)

	fs *fswatch.Watcher

	mu     sync.Mutex
	hashes map[string]string // path -> content hash
}

// NewWatcher creates a Watcher for source. onChange is called from the
// watcher goroutine.
func NewWatcher(source *FileSource, onChange func(ChangeEvent), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		source:   source,
		debounce: 300 * time.Millisecond,
		logger:   slog.Default(),
		onChange: onChange,
		hashes:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start records the current file hashes and begins watching every directory
// below the root.
func (w *Watcher) Start() error {
	files, err := w.source.Files()
	if err != nil {
		return fmt.Errorf("source watcher: list %s: %w", w.source.Root(), err)
	}
	for _, path := range files {
		if h, err := hashFile(path); err == nil {
			w.hashes[path] = h
		}
	}

	var dirs []string
	err = filepath.WalkDir(w.source.Root(), func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			dirs = append(dirs, path)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("source watcher: walk %s: %w", w.source.Root(), err)
	}

	w.fs = fswatch.New(w.processChange,
		fswatch.WithDebounce(w.debounce),
		fswatch.WithLogger(w.logger),
		fswatch.WithOps(fswatch.DefaultOps|fsnotify.Remove),
		fswatch.WithFilter(isModelFile),
	)
	if err := w.fs.Start(dirs...); err != nil {
		return fmt.Errorf("source watcher: %w", err)
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

// processChange calls onChange when the content of path differs from the last
// known hash. A removed file counts as a change to the empty hash.
func (w *Watcher) processChange(path string) {
	u, ok := w.source.URL(path)
	if !ok {
		return
	}
	newHash, err := hashFile(path)
	if err != nil {
		newHash = ""
	}

	w.mu.Lock()
	oldHash := w.hashes[path]
	if newHash == oldHash {
		w.mu.Unlock()
		w.logger.Debug("source watcher: content unchanged, skipping", "path", path)
		return
	}
	if newHash == "" {
		delete(w.hashes, path)
	} else {
		w.hashes[path] = newHash
	}
	w.mu.Unlock()

	w.logger.Info("page model changed", "path", path, "url", u)
	w.onChange(ChangeEvent{
		Source:  w.source.Name(),
		URL:     u,
		OldHash: oldHash,
		NewHash: newHash,
		Time:    time.Now(),
	})
}
