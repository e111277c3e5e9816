// Package fswatch reports file changes below a set of directories once the
// events for a path have settled.
package fswatch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultOps are the operations that mark a path as changed.
const DefaultOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a path must be quiet before it is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger for fsnotify errors.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithOps sets the operations that mark a path as changed.
func WithOps(ops fsnotify.Op) Option {
	return func(w *Watcher) { w.ops = ops }
}

// WithFilter drops events for paths for which keep returns false.
func WithFilter(keep func(path string) bool) Option {
	return func(w *Watcher) { w.keep = keep }
}

// Watcher debounces fsnotify events per path and calls onReady from its own
// goroutine for every path whose last event is older than the debounce
// interval.
type Watcher struct {
	debounce time.Duration
	logger   *slog.Logger
	ops      fsnotify.Op
	keep     func(string) bool
	onReady  func(path string)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a Watcher. Nothing is watched until Start.
func New(onReady func(path string), opts ...Option) *Watcher {
	w := &Watcher{
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		ops:      DefaultOps,
		onReady:  onReady,
		done:     make(chan struct{}),
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start watches dirs. Directories are not watched recursively.
func (w *Watcher) Start(dirs ...string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify: %w", err)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.fsWatcher = fsw

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher. It is safe to call Stop multiple times, and
// before or after a failed Start.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&w.ops != 0 && (w.keep == nil || w.keep(event.Name)) {
				w.mu.Lock()
				w.pending[event.Name] = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "err", err)

		case <-ticker.C:
			for _, path := range w.due() {
				w.onReady(path)
			}
		}
	}
}

// due removes and returns the settled paths.
func (w *Watcher) due() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	var ready []string
	for path, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}
