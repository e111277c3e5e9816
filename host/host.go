// Package host owns one mounted page: it loads the page model, seeds and
// fetches the data buckets, keeps the stack of visible views and renders them.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GoCodeAlone/pageview/binding"
	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/metrics"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/notify"
	"github.com/GoCodeAlone/pageview/operation"
	"github.com/GoCodeAlone/pageview/pagestore"
	"github.com/GoCodeAlone/pageview/render"
	"github.com/GoCodeAlone/pageview/renderers"
	"github.com/GoCodeAlone/pageview/source"
)

// State is the lifecycle state of a Host.
type State string

const (
	StateLoadingConfig State = "loading-config"
	StateConfigError   State = "config-error"
	StateConfigReady   State = "config-ready"
	StateLoadingData   State = "loading-initial-data"
	StateReady         State = "ready"
)

// ErrNotMounted is returned by operations that need a loaded page model.
var ErrNotMounted = errors.New("host: page model not loaded")

// Messages shown in place of the page.
const (
	MsgConfigError = "Failed to load the page configuration"
	MsgLoading     = "Loading..."
)

// Backend is the API client a host fetches and performs operations through;
// *client.Client implements it.
type Backend interface {
	builder.Client
	operation.Doer
}

// Config identifies the page a host serves.
type Config struct {
	// Route is the application route, used as the store path and registry key.
	Route string
	// ModelURL is where the page model is published.
	ModelURL string
	// Query is the query of the mounting request; it is forwarded when the
	// model is loaded.
	Query url.Values
	// URLVars are the route variables templates are evaluated against.
	URLVars map[string]any
	// BasePath is the URL prefix operation and close requests post to.
	BasePath string
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithMetrics records mounts and render timings.
func WithMetrics(m *metrics.Collector) Option {
	return func(h *Host) { h.metrics = m }
}

// WithRegistry sets the renderer registry. Defaults to the built-in renderers.
func WithRegistry(r *builder.Registry) Option {
	return func(h *Host) { h.builder = builder.New(r) }
}

// WithEngine sets the template engine.
func WithEngine(e *binding.Engine) Option {
	return func(h *Host) { h.engine = e }
}

// WithStoreOptions passes options to the page store.
func WithStoreOptions(opts ...pagestore.Option) Option {
	return func(h *Host) { h.storeOpts = append(h.storeOpts, opts...) }
}

// WithNoticeLimit bounds the number of pending notices kept for rendering.
func WithNoticeLimit(n int) Option {
	return func(h *Host) { h.notices = notify.NewRecorder(n) }
}

// Host is the page host of one route. It is safe for concurrent use.
type Host struct {
	cfg        Config
	source     source.Source
	backend    Backend
	store      *pagestore.PageStore
	builder    *builder.Builder
	engine     *binding.Engine
	dispatcher *operation.Dispatcher
	notices    *notify.Recorder
	logger     *slog.Logger
	metrics    *metrics.Collector
	storeOpts  []pagestore.Option

	mountMu   sync.Mutex
	attempted bool

	mu      sync.RWMutex
	state   State
	err     error
	model   *model.PageModel
	visible []string
	record  map[string]any
	loaded  chan struct{}
	claimed bool // loaded belongs to a mount
	cancel  context.CancelFunc
	mounted bool
}

// New creates a host for cfg. Nothing is loaded until Mount.
func New(cfg Config, src source.Source, backend Backend, opts ...Option) *Host {
	h := &Host{
		cfg:     cfg,
		source:  src,
		backend: backend,
		engine:  binding.NewEngine(),
		notices: notify.NewRecorder(20),
		logger:  slog.Default(),
		state:   StateLoadingConfig,
		record:  map[string]any{},
		loaded:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.builder == nil {
		h.builder = builder.New(renderers.NewRegistry())
	}
	if h.cfg.URLVars == nil {
		h.cfg.URLVars = map[string]any{}
	}
	h.logger = h.logger.With("route", cfg.Route)

	var getter pagestore.Getter
	if backend != nil {
		getter = backend
	}
	h.store = pagestore.New(cfg.Route, getter, append([]pagestore.Option{pagestore.WithLogger(h.logger)}, h.storeOpts...)...)
	h.dispatcher = operation.NewDispatcher(backend,
		operation.WithLogger(h.logger),
		operation.WithMetrics(h.metrics),
		operation.WithEngine(h.engine),
	)
	return h
}

// Route returns the route the host serves.
func (h *Host) Route() string { return h.cfg.Route }

// ModelURL returns the url the page model is loaded from.
func (h *Host) ModelURL() string { return h.cfg.ModelURL }

// Store returns the page store.
func (h *Host) Store() *pagestore.PageStore { return h.store }

// Notices returns the notices raised by operations.
func (h *Host) Notices() *notify.Recorder { return h.notices }

// State returns the lifecycle state and, in config-error, the load error.
func (h *Host) State() (State, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state, h.err
}

// Model returns the mounted page model, or nil.
func (h *Host) Model() *model.PageModel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.model
}

// Visible returns the ids of the visible views, bottom first.
func (h *Host) Visible() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.visible)
}

// Record returns the current record.
func (h *Host) Record() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.record
}

// Mount loads the page model and starts loading the initial data. It returns
// once the model is loaded; the buckets are fetched in the background, one at
// a time, and Wait reports when they are done. A load or validation error
// leaves the host in config-error and is returned.
func (h *Host) Mount(ctx context.Context) error {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.state, h.err = StateLoadingConfig, nil
	if h.claimed {
		h.loaded = make(chan struct{})
	}
	h.claimed = true
	loaded := h.loaded
	h.mu.Unlock()

	pm, err := h.source.Load(ctx, h.cfg.ModelURL, h.cfg.Query)
	if err == nil {
		err = pm.Validate()
	}
	if err != nil {
		h.logger.Error("page model load failed", "url", h.cfg.ModelURL, "error", err)
		h.mu.Lock()
		h.state, h.err = StateConfigError, err
		h.mu.Unlock()
		close(loaded)
		return fmt.Errorf("host: mount %s: %w", h.cfg.Route, err)
	}

	var visible []string
	if pm.MainView != "" {
		visible = []string{pm.MainView}
	}
	views := sortedKeys(pm.PageView)

	h.mu.Lock()
	h.model = pm
	h.visible = visible
	h.record = map[string]any{}
	h.state = StateConfigReady
	first := !h.mounted
	h.mounted = true
	h.mu.Unlock()

	if first {
		h.metrics.HostMounted(1)
	}
	h.store.SetEffects(views)

	seed := make(map[string]any, len(pm.DataStore))
	for id, ds := range pm.DataStore {
		seed[id] = ds.EmptyValue()
	}
	h.store.SetDatas(seed)

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.mu.Lock()
	h.state = StateLoadingData
	h.cancel = cancel
	h.mu.Unlock()

	go h.loadInitial(bg, pm, loaded)
	return nil
}

// EnsureMounted mounts the host unless a mount was already attempted. It
// returns the load error of a failed mount.
func (h *Host) EnsureMounted(ctx context.Context) error {
	h.mountMu.Lock()
	defer h.mountMu.Unlock()
	if h.attempted {
		if state, err := h.State(); state == StateConfigError {
			return err
		}
		return nil
	}
	h.attempted = true
	return h.Mount(ctx)
}

// loadInitial fetches every bucket that declares an api, in id order, one at
// a time. A failed bucket is logged and keeps its seed value.
func (h *Host) loadInitial(ctx context.Context, pm *model.PageModel, loaded chan struct{}) {
	defer close(loaded)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)
	for _, id := range sortedKeys(pm.DataStore) {
		ds := pm.DataStore[id]
		if ds.API == "" {
			continue
		}
		g.Go(func() error {
			target := h.engine.Evaluate(ds.API, h.cfg.URLVars)
			var opts []pagestore.FetchOption
			if ds.Select != "" {
				opts = append(opts, pagestore.WithSelect(ds.Select))
			}
			if err := h.store.FetchData(gctx, id, target, nil, opts...); err != nil {
				h.logger.Warn("initial bucket load failed", "bucket", id, "url", target, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	h.mu.Lock()
	if h.state == StateLoadingData && h.model == pm {
		h.state = StateReady
	}
	h.mu.Unlock()
}

// Wait blocks until the initial data of the current mount is loaded or ctx
// is done.
func (h *Host) Wait(ctx context.Context) error {
	h.mu.RLock()
	loaded := h.loaded
	h.mu.RUnlock()
	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops background loading and drops the page data.
func (h *Host) Close() {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()
	h.store.Clear()
}

// release reports whether the host was counted as mounted and stops counting
// it.
func (h *Host) release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	was := h.mounted
	h.mounted = false
	return was
}

// ShowView pushes name onto the visible stack unless it is already there.
// A non-nil record becomes the current record either way.
func (h *Host) ShowView(name string, record map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if record != nil {
		h.record = record
	}
	if !slices.Contains(h.visible, name) {
		h.visible = append(h.visible, name)
	}
}

// CloseView removes name from the visible stack.
func (h *Host) CloseView(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visible = slices.DeleteFunc(h.visible, func(v string) bool { return v == name })
}

// Effects marks ids as changed so the views reading them fetch again.
func (h *Host) Effects(ids []string) {
	h.store.SetEffects(ids)
}

// Perform runs the operation opID of the page model with the call-site
// override applied, on behalf of record.
func (h *Host) Perform(ctx context.Context, opID string, override, record map[string]any) (operation.Result, error) {
	pm := h.Model()
	if pm == nil {
		return operation.Result{}, ErrNotMounted
	}
	op, err := model.LookupOperation(pm.Operations, opID, override)
	if err != nil {
		return operation.Result{}, fmt.Errorf("host: %w", err)
	}
	return h.dispatcher.Perform(ctx, operation.Request{
		Operation: op,
		Host:      h,
		Notifier:  h.notices,
		Record:    record,
		URLVars:   h.cfg.URLVars,
	})
}

// Capabilities returns the capability bundle renderers receive for a request
// with the given query.
func (h *Host) Capabilities(ctx context.Context, query url.Values) *builder.Capabilities {
	h.mu.RLock()
	pm, record := h.model, h.record
	h.mu.RUnlock()

	if query == nil {
		query = url.Values{}
	}
	caps := &builder.Capabilities{
		Context:   ctx,
		Model:     pm,
		Store:     h.store,
		Builder:   h.builder,
		Engine:    h.engine,
		Actions:   h,
		Notices:   h.notices,
		Logger:    h.logger,
		Record:    record,
		URLVars:   h.cfg.URLVars,
		Query:     query,
		BasePath:  h.cfg.BasePath,
		Container: containerID(h.cfg.Route),
	}
	if h.backend != nil {
		caps.Client = h.backend
	}
	return caps
}

// Render renders the page: an error panel when the model failed to load, a
// spinner before it is loaded, otherwise every visible view in stack order
// with a blocking overlay while the initial data is still loading.
func (h *Host) Render(ctx context.Context, query url.Values) *render.Node {
	start := time.Now()
	state, err := h.State()
	defer func() { h.metrics.RecordRender(string(state), time.Since(start)) }()

	root := render.Element("div").
		Class("pv-page").
		Set("id", containerID(h.cfg.Route)).
		Set("data-route", h.cfg.Route).
		Set("data-state", string(state))

	switch state {
	case StateConfigError:
		h.logger.Debug("rendering config error", "error", err)
		return root.Append(errorPanel(MsgConfigError))
	case StateLoadingConfig:
		return root.Append(spinner())
	}

	caps := h.Capabilities(ctx, query)
	for _, id := range h.Visible() {
		vo, ok := caps.Model.View(id)
		if !ok {
			h.logger.Warn("visible view not declared", "view", id)
			continue
		}
		root.Append(caps.WithView(id, vo).Build(builder.Props{VO: vo, ID: vo.ID(), Key: id}))
	}
	if state == StateLoadingData {
		root.Append(render.Element("div", spinner()).Class("pv-loading-overlay"))
	}
	return root
}

func errorPanel(msg string) *render.Node {
	return render.Element("div",
		render.Element("div",
			render.Element("h4", render.Text("Error")).Class("pv-alert-title"),
			render.Element("p", render.Text(msg)).Class("pv-alert-description"),
		).Class("pv-alert", "pv-alert-destructive").Set("role", "alert"),
	).Class("pv-error-panel")
}

func spinner() *render.Node {
	return render.Element("div",
		render.Element("span").Class("pv-spinner-icon"),
		render.Element("span", render.Text(MsgLoading)).Class("pv-sr-only"),
	).Class("pv-spinner").Set("role", "status")
}

func containerID(route string) string {
	return "pv-page-" + fmt.Sprintf("%x", route)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
