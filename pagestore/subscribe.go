package pagestore

import "sync"

// ChangeKind classifies a store change.
type ChangeKind string

const (
	ChangeData      ChangeKind = "data"
	ChangeViewState ChangeKind = "viewState"
	ChangeEffects   ChangeKind = "effects"
	ChangeCleared   ChangeKind = "cleared"
)

// Change describes one store mutation. At is the store clock after the
// mutation; for effects it is the stamp written.
type Change struct {
	Kind ChangeKind `json:"kind"`
	IDs  []string   `json:"ids,omitempty"`
	At   int64      `json:"at"`
}

// Subscribe registers a listener for store changes. The returned function
// unsubscribes and closes the channel; it must be called to release the
// subscription. A subscriber that does not keep up loses events.
func (s *PageStore) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 64)

	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	s.active.Add(1)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, sub := range s.subscribers {
				if sub == ch {
					s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
					break
				}
			}
			close(ch)
			s.active.Add(-1)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (s *PageStore) Subscribers() int64 {
	return s.active.Load()
}

func (s *PageStore) publish(c Change) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- c:
		default:
			s.logger.Warn("store change dropped for slow subscriber", "path", s.path, "kind", c.Kind)
		}
	}
}
