package builder

import (
	"maps"
	"slices"
	"sync"

	"github.com/GoCodeAlone/pageview/render"
)

// Renderer turns one view object into a render node.
type Renderer interface {
	Render(caps *Capabilities, props Props) *render.Node
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(caps *Capabilities, props Props) *render.Node

func (f RendererFunc) Render(caps *Capabilities, props Props) *render.Node {
	return f(caps, props)
}

// Registry maps view-object tags to renderers. Registering an existing tag
// replaces its renderer.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]Renderer)}
}

// Register binds tag to r. A nil renderer removes the tag.
func (r *Registry) Register(tag string, rr Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rr == nil {
		delete(r.renderers, tag)
		return
	}
	r.renderers[tag] = rr
}

// RegisterFunc binds tag to fn.
func (r *Registry) RegisterFunc(tag string, fn func(*Capabilities, Props) *render.Node) {
	r.Register(tag, RendererFunc(fn))
}

// Lookup returns the renderer bound to tag.
func (r *Registry) Lookup(tag string) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rr, ok := r.renderers[tag]
	return rr, ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.renderers))
}
