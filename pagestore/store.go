// Package pagestore holds the per-route reactive state of a page: named data
// buckets, opaque per-view state and the effects map used to tell renderers
// that a bucket must be reloaded.
package pagestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Mode selects how SetData writes a bucket.
type Mode int

const (
	// Replace overwrites the bucket wholesale.
	Replace Mode = iota
	// Merge shallow-spreads a map onto the existing map bucket.
	Merge
)

// ErrSuperseded is returned by FetchData when a newer fetch for the same
// bucket was started before this one completed. The payload is discarded.
var ErrSuperseded = errors.New("pagestore: fetch superseded by a newer request")

// Getter performs the GET behind FetchData. The returned payload is the
// unwrapped envelope data.
type Getter interface {
	Get(ctx context.Context, url string, params map[string]any) (any, error)
}

// Option configures a PageStore.
type Option func(*PageStore)

// WithLogger sets the logger used for failed fetches.
func WithLogger(l *slog.Logger) Option {
	return func(s *PageStore) { s.logger = l }
}

// WithLastWriteWins disables fetch generation fencing: every completed fetch
// is written, in completion order.
func WithLastWriteWins() Option {
	return func(s *PageStore) { s.fenced = false }
}

// PageStore is the state of one page route. All methods are safe for
// concurrent use; each mutation is a single critical section.
type PageStore struct {
	path   string
	getter Getter
	logger *slog.Logger
	fenced bool

	mu        sync.RWMutex
	data      map[string]any
	viewState map[string]any
	effects   map[string]int64
	clock     int64
	gen       map[string]uint64

	subMu       sync.RWMutex
	subscribers []chan Change
	active      atomic.Int64
}

// New creates an empty store for path. getter may be nil when the store is
// never asked to fetch.
func New(path string, getter Getter, opts ...Option) *PageStore {
	s := &PageStore{
		path:      path,
		getter:    getter,
		logger:    slog.Default(),
		fenced:    true,
		data:      make(map[string]any),
		viewState: make(map[string]any),
		effects:   make(map[string]int64),
		gen:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the route path this store partitions.
func (s *PageStore) Path() string { return s.path }

// Data returns the value of bucket id.
func (s *PageStore) Data(id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[id]
	return v, ok
}

// Snapshot returns a shallow copy of all buckets.
func (s *PageStore) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

// ViewState returns the scratch state stored for a view.
func (s *PageStore) ViewState(id string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewState[id]
}

// Effect returns the stamp of id, or 0 when id was never marked.
func (s *PageStore) Effect(id string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.effects[id]
}

// Effects returns a copy of the effects map.
func (s *PageStore) Effects() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.effects)
}

// SetData writes one bucket. Under Merge a map value is spread onto the
// existing map bucket; when the bucket does not hold a map the spread of value
// replaces it. A non-map value under Merge behaves like Replace.
func (s *PageStore) SetData(id string, value any, mode Mode) {
	s.mu.Lock()
	if patch, ok := value.(map[string]any); ok && mode == Merge {
		merged := make(map[string]any)
		if cur, ok := s.data[id].(map[string]any); ok {
			maps.Copy(merged, cur)
		}
		maps.Copy(merged, patch)
		value = merged
	}
	s.data[id] = value
	rev := s.clock
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeData, IDs: []string{id}, At: rev})
}

// SetDatas replaces several buckets at once.
func (s *PageStore) SetDatas(patch map[string]any) {
	if len(patch) == 0 {
		return
	}
	ids := make([]string, 0, len(patch))
	s.mu.Lock()
	for id, v := range patch {
		s.data[id] = v
		ids = append(ids, id)
	}
	rev := s.clock
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeData, IDs: ids, At: rev})
}

// SetViewState replaces the scratch state of a view.
func (s *PageStore) SetViewState(id string, value any) {
	s.mu.Lock()
	s.viewState[id] = value
	rev := s.clock
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeViewState, IDs: []string{id}, At: rev})
}

// SetEffects marks ids dirty. Every call advances the store clock once and
// stamps all ids with the new value, so a later call always yields a larger
// stamp than an earlier one.
func (s *PageStore) SetEffects(ids []string) int64 {
	s.mu.Lock()
	s.clock++
	stamp := s.clock
	for _, id := range ids {
		s.effects[id] = stamp
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.publish(Change{Kind: ChangeEffects, IDs: append([]string(nil), ids...), At: stamp})
	}
	return stamp
}

// FetchData GETs url and stores the payload in bucket id. On failure the
// bucket is left untouched and the error is logged and returned; callers use
// it only for sequencing. With fencing enabled a completion that is older
// than the newest fetch started for the same bucket is dropped and
// ErrSuperseded is returned.
func (s *PageStore) FetchData(ctx context.Context, id, url string, params map[string]any, opts ...FetchOption) error {
	fo := fetchOptions{getter: s.getter}
	for _, opt := range opts {
		opt(&fo)
	}
	if fo.getter == nil {
		return fmt.Errorf("pagestore: fetch %q: no getter configured", id)
	}

	s.mu.Lock()
	s.gen[id]++
	mine := s.gen[id]
	s.mu.Unlock()

	payload, err := fo.getter.Get(ctx, url, params)
	if err == nil && fo.selector != "" {
		payload, err = selectPayload(fo.selector, payload)
	}
	var state map[string]any
	if err == nil && fo.transform != nil {
		payload, state = fo.transform(payload)
	}
	if err != nil {
		s.logger.Error("data bucket fetch failed", "path", s.path, "bucket", id, "url", url, "error", err)
		return fmt.Errorf("pagestore: fetch %q: %w", id, err)
	}

	s.mu.Lock()
	if s.fenced && s.gen[id] != mine {
		s.mu.Unlock()
		s.logger.Debug("stale data bucket fetch discarded", "path", s.path, "bucket", id, "url", url)
		return ErrSuperseded
	}
	s.data[id] = payload
	for k, v := range state {
		s.viewState[k] = v
	}
	rev := s.clock
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeData, IDs: []string{id}, At: rev})
	if len(state) > 0 {
		ids := make([]string, 0, len(state))
		for k := range state {
			ids = append(ids, k)
		}
		slices.Sort(ids)
		s.publish(Change{Kind: ChangeViewState, IDs: ids, At: rev})
	}
	return nil
}

// Clear drops all buckets, view state and effects.
func (s *PageStore) Clear() {
	s.mu.Lock()
	s.data = make(map[string]any)
	s.viewState = make(map[string]any)
	s.effects = make(map[string]int64)
	s.gen = make(map[string]uint64)
	rev := s.clock
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeCleared, At: rev})
}
