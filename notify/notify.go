// Package notify carries user-facing notices (toasts) from operations to the
// rendered page.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level of a notice.
type Level string

const (
	LevelLoading Level = "loading"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is one toast.
type Notice struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier shows notices to the user. Loading returns an id that Dismiss
// removes.
type Notifier interface {
	Loading(msg string) string
	Dismiss(id string)
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// Recorder is a Notifier that keeps notices until they are drained into a
// rendered page.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
	limit   int
	now     func() time.Time
}

// NewRecorder creates a Recorder keeping at most limit notices; older ones
// are dropped first. A limit of zero keeps 20.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 20
	}
	return &Recorder{limit: limit, now: time.Now}
}

func (r *Recorder) add(level Level, msg string) string {
	n := Notice{ID: uuid.NewString(), Level: level, Message: msg, At: r.now()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	if over := len(r.notices) - r.limit; over > 0 {
		r.notices = r.notices[over:]
	}
	return n.ID
}

func (r *Recorder) Loading(msg string) string { return r.add(LevelLoading, msg) }
func (r *Recorder) Success(msg string)        { r.add(LevelSuccess, msg) }
func (r *Recorder) Error(msg string)          { r.add(LevelError, msg) }
func (r *Recorder) Info(msg string)           { r.add(LevelInfo, msg) }

// Dismiss removes a notice by id.
func (r *Recorder) Dismiss(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.notices {
		if n.ID == id {
			r.notices = append(r.notices[:i], r.notices[i+1:]...)
			return
		}
	}
}

// Pending returns the current notices without removing them.
func (r *Recorder) Pending() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Drain returns the current notices and forgets them.
func (r *Recorder) Drain() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.notices
	r.notices = nil
	return out
}
