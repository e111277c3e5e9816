// Package builder dispatches view objects to renderers by their `object` tag
// and resolves children recursively.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/GoCodeAlone/pageview/binding"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/notify"
	"github.com/GoCodeAlone/pageview/operation"
	"github.com/GoCodeAlone/pageview/pagestore"
	"github.com/GoCodeAlone/pageview/render"
)

// Client is the backend access renderers need.
type Client interface {
	Get(ctx context.Context, url string, params map[string]any) (any, error)
	Dict(ctx context.Context, url string, params map[string]any) (model.MappingDict, error)
}

// Actions are the page host callbacks available to renderers.
type Actions interface {
	ShowView(name string, record map[string]any)
	CloseView(name string)
	Effects(ids []string)
	Perform(ctx context.Context, opID string, override, record map[string]any) (operation.Result, error)
}

// PageView identifies the top-level view a subtree belongs to.
type PageView struct {
	ID     string
	Config model.ViewObject
}

// Capabilities is everything a renderer may use. Model, Store, Builder,
// Engine and Actions are required.
type Capabilities struct {
	Context   context.Context
	Model     *model.PageModel
	Store     *pagestore.PageStore
	Builder   *Builder
	Engine    *binding.Engine
	Client    Client
	Actions   Actions
	Notices   notify.Notifier
	Logger    *slog.Logger
	Record    map[string]any
	URLVars   map[string]any
	Query     url.Values
	BasePath  string
	Container string
	View      PageView
}

// Validate reports missing required capabilities.
func (c *Capabilities) Validate() error {
	if c == nil {
		return errors.New("builder: nil capabilities")
	}
	var missing []string
	if c.Model == nil {
		missing = append(missing, "model")
	}
	if c.Store == nil {
		missing = append(missing, "store")
	}
	if c.Builder == nil {
		missing = append(missing, "builder")
	}
	if c.Engine == nil {
		missing = append(missing, "engine")
	}
	if c.Actions == nil {
		missing = append(missing, "actions")
	}
	if len(missing) > 0 {
		return fmt.Errorf("builder: missing capabilities: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Ctx returns the request context, or context.Background.
func (c *Capabilities) Ctx() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

// Log returns the logger, or slog.Default.
func (c *Capabilities) Log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// WithView returns a copy scoped to the top-level view id.
func (c *Capabilities) WithView(id string, vo model.ViewObject) *Capabilities {
	cp := *c
	cp.View = PageView{ID: id, Config: vo}
	return &cp
}

// WithRecord returns a copy whose current record is rec.
func (c *Capabilities) WithRecord(rec map[string]any) *Capabilities {
	cp := *c
	cp.Record = rec
	return &cp
}

// Build is shorthand for c.Builder.Build(c, props).
func (c *Capabilities) Build(props Props) *render.Node {
	return c.Builder.Build(c, props)
}

// Params returns the template scope for a view: URL variables overlaid with
// the current record.
func (c *Capabilities) Params() map[string]any {
	out := make(map[string]any, len(c.URLVars)+len(c.Record))
	for k, v := range c.URLVars {
		out[k] = v
	}
	for k, v := range c.Record {
		out[k] = v
	}
	return out
}

const depsSuffix = "#deps"

// FetchOnce runs fetch when deps differs from the dependency key recorded for
// id by the previous successful run. It reports whether fetch ran.
func (c *Capabilities) FetchOnce(id, deps string, fetch func(ctx context.Context) error) bool {
	key := id + depsSuffix
	if prev, ok := c.Store.ViewState(key).(string); ok && prev == deps {
		return false
	}
	if err := fetch(c.Ctx()); err != nil {
		if errors.Is(err, pagestore.ErrSuperseded) {
			c.Log().Debug("view fetch superseded", "view", id)
		} else {
			c.Log().Warn("view fetch failed", "view", id, "error", err)
		}
		return true
	}
	c.Store.SetViewState(key, deps)
	return true
}

// Props are the inputs of one Build call.
type Props struct {
	VO model.ViewObject
	// ID overrides the store bucket a renderer reads; defaults to VO.ID().
	ID string
	// Data, when set, is the scope bound attributes are evaluated against.
	Data map[string]any
	// Key is the reconciliation key of the produced node.
	Key string
}

// BucketID returns the store bucket of the view.
func (p Props) BucketID() string {
	if p.ID != "" {
		return p.ID
	}
	return p.VO.ID()
}

// Builder dispatches view objects through a Registry.
type Builder struct {
	registry *Registry
}

// New creates a Builder over registry.
func New(registry *Registry) *Builder {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Builder{registry: registry}
}

// Registry returns the registry used for dispatch.
func (b *Builder) Registry() *Registry { return b.registry }

// Build renders props.VO. With props.Data the view object is first passed
// through the template engine. Unknown tags render as a plain container of
// their children.
func (b *Builder) Build(caps *Capabilities, props Props) *render.Node {
	if props.VO == nil {
		return nil
	}
	if props.Data != nil {
		props.VO = caps.Engine.TransformView(props.VO, props.Data)
	}
	if props.Key == "" {
		props.Key = props.VO.ID()
		if props.Key == "" {
			props.Key = props.VO.Object()
		}
	}

	var node *render.Node
	if r, ok := b.registry.Lookup(props.VO.Object()); ok {
		node = r.Render(caps, props)
	} else {
		node = b.Container(caps, props)
	}
	if node != nil && node.Key == "" {
		node.Key = props.Key
	}
	return node
}

// Container is the fallback renderer: a div holding the built children.
func (b *Builder) Container(caps *Capabilities, props Props) *render.Node {
	return render.Element("div", b.Children(caps, props)...).
		Class("pv-container", props.VO.ClassName())
}

// Children builds every child of props.VO that has an object tag. Each child
// gets the key "<parent key>/child-<index>-<tag>" and inherits props.Data.
func (b *Builder) Children(caps *Capabilities, props Props) []*render.Node {
	var out []*render.Node
	for idx, child := range props.VO.Children() {
		tag := child.Object()
		if tag == "" {
			continue
		}
		out = append(out, b.Build(caps, Props{
			VO:   child,
			Data: props.Data,
			Key:  ChildKey(props.Key, idx, tag),
		}))
	}
	return out
}

// ChildKey derives the key of the child at idx.
func ChildKey(parent string, idx int, tag string) string {
	return fmt.Sprintf("%s/child-%d-%s", parent, idx, tag)
}
