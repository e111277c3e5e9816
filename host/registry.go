package host

import (
	"github.com/GoCodeAlone/pageview/cache"
	"github.com/GoCodeAlone/pageview/metrics"
)

// DefaultCapacity is the number of routes a Registry keeps mounted.
const DefaultCapacity = 10

// Registry keeps the hosts of recently opened routes. When it is full the
// host inserted first is evicted and its data dropped.
type Registry struct {
	hosts   *cache.Bounded[*Host]
	metrics *metrics.Collector
}

// NewRegistry creates a registry holding up to capacity hosts. m may be nil.
func NewRegistry(capacity int, m *metrics.Collector) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	r := &Registry{metrics: m}
	r.hosts = cache.NewBounded(cache.Config{MaxSize: capacity, Policy: cache.InsertionOrder}, r.evicted)
	return r
}

func (r *Registry) evicted(route string, h *Host) {
	h.logger.Debug("evicting page host", "route", route)
	h.Close()
	if h.release() {
		r.metrics.HostMounted(-1)
	}
	r.metrics.HostEvicted()
}

// Get returns the host of route.
func (r *Registry) Get(route string) (*Host, bool) {
	return r.hosts.Get(route)
}

// GetOrCreate returns the host of route, creating it with create when there
// is none. Concurrent callers for the same route share one host.
func (r *Registry) GetOrCreate(route string, create func() (*Host, error)) (*Host, error) {
	return r.hosts.GetOrSet(route, create)
}

// Delete closes and removes the host of route.
func (r *Registry) Delete(route string) {
	h, ok := r.hosts.Get(route)
	if !ok {
		return
	}
	r.hosts.Delete(route)
	h.Close()
	if h.release() {
		r.metrics.HostMounted(-1)
	}
}

// Clear closes and removes every host.
func (r *Registry) Clear() {
	for _, route := range r.hosts.Keys() {
		r.Delete(route)
	}
}

// Routes returns the routes from oldest to newest.
func (r *Registry) Routes() []string { return r.hosts.Keys() }

// Len returns the number of hosts.
func (r *Registry) Len() int { return r.hosts.Len() }
