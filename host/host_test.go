package host

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/pageview/metrics"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/pagestore"
	"github.com/GoCodeAlone/pageview/render"
)

type staticSource struct {
	pm    *model.PageModel
	err   error
	calls int
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Load(context.Context, string, url.Values) (*model.PageModel, error) {
	s.calls++
	return s.pm, s.err
}

type doCall struct {
	method string
	url    string
	body   any
}

type fakeBackend struct {
	mu       sync.Mutex
	gate     chan struct{}
	gets     []string
	inFlight int
	maxInFl  int
	fail     map[string]bool
	dos      []doCall
}

func (b *fakeBackend) Get(_ context.Context, u string, _ map[string]any) (any, error) {
	b.mu.Lock()
	b.gets = append(b.gets, u)
	b.inFlight++
	b.maxInFl = max(b.maxInFl, b.inFlight)
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inFlight--
	if b.fail[u] {
		return nil, errors.New("boom")
	}
	return []any{map[string]any{"url": u}}, nil
}

func (b *fakeBackend) Dict(context.Context, string, map[string]any) (model.MappingDict, error) {
	return model.MappingDict{}, nil
}

func (b *fakeBackend) Do(_ context.Context, method, u string, _ map[string]any, body any) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dos = append(b.dos, doCall{method: method, url: u, body: body})
	return map[string]any{"ok": true}, nil
}

func pageModel() *model.PageModel {
	return &model.PageModel{
		MainView: "home",
		DataStore: map[string]*model.DataObject{
			"orders":  {ID: "orders", Type: model.BucketList, API: "/api/${tenant}/orders"},
			"profile": {ID: "profile", Type: model.BucketObject, API: "/api/profile"},
			"local":   {ID: "local", Type: model.BucketList},
		},
		PageView: map[string]model.ViewObject{
			"home":   {"object": "Text", "value": "home view"},
			"editor": {"object": "Text", "value": "editor view"},
		},
		Operations: map[string]*model.Operation{
			"open":   {ID: "open", ActionType: model.ActionView, View: "editor"},
			"remove": {ID: "remove", ActionType: model.ActionAPI, API: "/api/orders/${id}", Method: "DELETE", Effects: "orders, home"},
		},
	}
}

func newHost(src *staticSource, backend *fakeBackend) *Host {
	return New(Config{
		Route:    "/orders",
		ModelURL: "/pages/orders",
		URLVars:  map[string]any{"tenant": "acme"},
		BasePath: "/page/orders",
	}, src, backend)
}

func waitLoaded(t *testing.T, h *Host) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("initial data did not load: %v", err)
	}
}

func TestMountSeedsBucketsBeforeData(t *testing.T) {
	backend := &fakeBackend{gate: make(chan struct{})}
	h := newHost(&staticSource{pm: pageModel()}, backend)

	if err := h.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if st, _ := h.State(); st != StateLoadingData {
		t.Errorf("expected %s, got %s", StateLoadingData, st)
	}
	for id, want := range map[string]any{"orders": []any{}, "profile": map[string]any{}, "local": []any{}} {
		if got, _ := h.Store().Data(id); !reflect.DeepEqual(got, want) {
			t.Errorf("bucket %s seeded with %#v, want %#v", id, got, want)
		}
	}
	if overlay := h.Render(context.Background(), nil).FindClass("pv-loading-overlay"); len(overlay) != 1 {
		t.Error("expected a loading overlay while initial data loads")
	}

	close(backend.gate)
	waitLoaded(t, h)

	if st, _ := h.State(); st != StateReady {
		t.Errorf("expected %s, got %s", StateReady, st)
	}
	got, _ := h.Store().Data("orders")
	if list, ok := got.([]any); !ok || len(list) != 1 {
		t.Errorf("orders not loaded: %#v", got)
	}
	if len(h.Render(context.Background(), nil).FindClass("pv-loading-overlay")) != 0 {
		t.Error("overlay should disappear once data is loaded")
	}
}

func TestMountFetchesSequentiallyWithTemplates(t *testing.T) {
	backend := &fakeBackend{fail: map[string]bool{"/api/acme/orders": true}}
	h := newHost(&staticSource{pm: pageModel()}, backend)
	if err := h.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	waitLoaded(t, h)

	if want := []string{"/api/acme/orders", "/api/profile"}; !reflect.DeepEqual(backend.gets, want) {
		t.Errorf("fetched %v, want %v", backend.gets, want)
	}
	if backend.maxInFl != 1 {
		t.Errorf("expected one fetch at a time, saw %d", backend.maxInFl)
	}
	if got, _ := h.Store().Data("orders"); !reflect.DeepEqual(got, []any{}) {
		t.Errorf("a failed bucket keeps its seed, got %#v", got)
	}
	if got, _ := h.Store().Data("profile"); got == nil {
		t.Error("a failure must not stop the remaining buckets")
	}
	for _, view := range []string{"home", "editor"} {
		if h.Store().Effect(view) == 0 {
			t.Errorf("view %s has no effect stamp after mount", view)
		}
	}
}

func TestMountConfigError(t *testing.T) {
	src := &staticSource{err: errors.New("unreachable")}
	h := newHost(src, &fakeBackend{})

	if err := h.EnsureMounted(context.Background()); err == nil {
		t.Fatal("expected a mount error")
	}
	st, err := h.State()
	if st != StateConfigError || err == nil {
		t.Errorf("expected config-error with the cause, got %s %v", st, err)
	}
	page := h.Render(context.Background(), nil)
	if panel := page.FindClass("pv-error-panel"); len(panel) != 1 || !strings.Contains(panel[0].TextContent(), MsgConfigError) {
		t.Errorf("expected the error panel, got %s", render.HTML(page))
	}
	if err := h.EnsureMounted(context.Background()); err == nil || src.calls != 1 {
		t.Errorf("a failed mount is not retried implicitly: calls=%d err=%v", src.calls, err)
	}
	if _, err := h.Perform(context.Background(), "open", nil, nil); !errors.Is(err, ErrNotMounted) {
		t.Errorf("expected ErrNotMounted, got %v", err)
	}
}

func TestMountRejectsUndeclaredMainView(t *testing.T) {
	pm := pageModel()
	pm.MainView = "missing"
	h := newHost(&staticSource{pm: pm}, &fakeBackend{})
	if err := h.Mount(context.Background()); err == nil {
		t.Fatal("expected a validation error")
	}
	if st, _ := h.State(); st != StateConfigError {
		t.Errorf("expected config-error, got %s", st)
	}
}

func TestShowAndCloseView(t *testing.T) {
	h := newHost(&staticSource{pm: pageModel()}, &fakeBackend{})
	if err := h.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	waitLoaded(t, h)

	h.ShowView("editor", map[string]any{"id": "7"})
	h.ShowView("editor", nil)
	if got := h.Visible(); !reflect.DeepEqual(got, []string{"home", "editor"}) {
		t.Errorf("show must be idempotent, got %v", got)
	}
	if h.Record()["id"] != "7" {
		t.Errorf("record not seeded: %v", h.Record())
	}
	h.ShowView("editor", map[string]any{"id": "8"})
	if h.Record()["id"] != "8" {
		t.Error("showing a visible view still replaces the record")
	}

	if got := h.Render(context.Background(), nil).TextContent(); got != "home vieweditor view" {
		t.Errorf("unexpected page text %q", got)
	}

	h.CloseView("editor")
	h.CloseView("unknown")
	if got := h.Visible(); !reflect.DeepEqual(got, []string{"home"}) {
		t.Errorf("unexpected stack after close %v", got)
	}
}

func TestPerformThroughDispatcher(t *testing.T) {
	backend := &fakeBackend{}
	h := newHost(&staticSource{pm: pageModel()}, backend)
	if err := h.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	waitLoaded(t, h)

	res, err := h.Perform(context.Background(), "open", nil, map[string]any{"id": "3"})
	if err != nil || !res.OK {
		t.Fatalf("perform view: %+v %v", res, err)
	}
	if got := h.Visible(); len(got) != 2 || got[1] != "editor" || h.Record()["id"] != "3" {
		t.Errorf("view operation did not show the editor: %v %v", got, h.Record())
	}

	before := h.Store().Effect("orders")
	res, err = h.Perform(context.Background(), "remove", nil, map[string]any{"id": "3"})
	if err != nil || !res.OK {
		t.Fatalf("perform api: %+v %v", res, err)
	}
	if len(backend.dos) != 1 || backend.dos[0].method != "DELETE" || backend.dos[0].url != "/api/orders/3" {
		t.Errorf("unexpected backend calls %+v", backend.dos)
	}
	if h.Store().Effect("orders") <= before || h.Store().Effect("home") <= before {
		t.Error("effects of the operation were not stamped")
	}
	if notices := h.Notices().Drain(); len(notices) == 0 {
		t.Error("expected a success notice")
	}

	if _, err := h.Perform(context.Background(), "nope", nil, nil); err == nil {
		t.Error("unknown operations without override should fail")
	}
}

func TestRegistryEvictsOldestAndClearsStore(t *testing.T) {
	reg := NewRegistry(2, nil)
	mk := func(route string) *Host {
		h, err := reg.GetOrCreate(route, func() (*Host, error) {
			return New(Config{Route: route}, &staticSource{pm: pageModel()}, &fakeBackend{}), nil
		})
		if err != nil {
			t.Fatalf("create %s: %v", route, err)
		}
		return h
	}

	a := mk("/a")
	a.Store().SetData("x", 1, pagestore.Replace)
	mk("/b")
	if again := mk("/a"); again != a {
		t.Error("expected the existing host for /a")
	}
	mk("/c")

	if _, ok := reg.Get("/a"); ok {
		t.Error("oldest host should have been evicted")
	}
	if _, ok := a.Store().Data("x"); ok {
		t.Error("eviction should clear the host store")
	}
	if got := reg.Routes(); !reflect.DeepEqual(got, []string{"/b", "/c"}) {
		t.Errorf("unexpected routes %v", got)
	}

	b, _ := reg.Get("/b")
	b.Store().SetData("y", 1, pagestore.Replace)
	reg.Delete("/b")
	if _, ok := b.Store().Data("y"); ok || reg.Len() != 1 {
		t.Error("delete should close the host")
	}
	reg.Clear()
	if reg.Len() != 0 {
		t.Errorf("expected an empty registry, got %d", reg.Len())
	}
}

func scrapeMetrics(t *testing.T, m *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestRegistryActiveHostsGauge(t *testing.T) {
	m := metrics.New("test")
	reg := NewRegistry(1, m)
	ctx := context.Background()
	mount := func(route string, src *staticSource) error {
		h, err := reg.GetOrCreate(route, func() (*Host, error) {
			return New(Config{Route: route}, src, &fakeBackend{}, WithMetrics(m)), nil
		})
		if err != nil {
			t.Fatalf("create %s: %v", route, err)
		}
		return h.EnsureMounted(ctx)
	}

	for range 3 {
		if err := mount("/broken", &staticSource{err: errors.New("boom")}); err == nil {
			t.Fatal("expected the mount to fail")
		}
		reg.Delete("/broken")
	}
	if body := scrapeMetrics(t, m); !strings.Contains(body, "pageview_active_hosts 0") {
		t.Errorf("failed mounts must not move the gauge:\n%s", body)
	}

	if err := mount("/ok", &staticSource{pm: pageModel()}); err != nil {
		t.Fatalf("mount: %v", err)
	}
	if body := scrapeMetrics(t, m); !strings.Contains(body, "pageview_active_hosts 1") {
		t.Errorf("expected one active host:\n%s", body)
	}

	// evicts /ok, then the unmounted host is deleted
	_ = mount("/other", &staticSource{err: errors.New("boom")})
	reg.Delete("/other")
	body := scrapeMetrics(t, m)
	for _, want := range []string{"pageview_active_hosts 0", "pageview_host_evictions_total 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in:\n%s", want, body)
		}
	}
}
