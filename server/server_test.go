package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoCodeAlone/pageview/client"
	"github.com/GoCodeAlone/pageview/config"
	"github.com/GoCodeAlone/pageview/host"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/pagestore"
	"github.com/GoCodeAlone/pageview/urlstate"
)

type staticSource struct {
	mu   sync.Mutex
	pm   *model.PageModel
	err  error
	urls []string
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) loads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

func (s *staticSource) Load(_ context.Context, u string, _ url.Values) (*model.PageModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, u)
	return s.pm, s.err
}

type fakeBackend struct {
	mu  sync.Mutex
	dos []string
}

func (b *fakeBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.dos...)
}

func (b *fakeBackend) Get(_ context.Context, u string, _ map[string]any) (any, error) {
	return []any{map[string]any{"url": u}}, nil
}

func (b *fakeBackend) Dict(context.Context, string, map[string]any) (model.MappingDict, error) {
	return model.MappingDict{}, nil
}

func (b *fakeBackend) Do(_ context.Context, method, u string, _ map[string]any, _ any) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dos = append(b.dos, method+" "+u)
	return map[string]any{"removed": true}, nil
}

func pageModel() *model.PageModel {
	return &model.PageModel{
		MainView: "home",
		DataStore: map[string]*model.DataObject{
			"orders": {ID: "orders", Type: model.BucketList, API: "/api/orders"},
		},
		PageView: map[string]model.ViewObject{
			"home":   {"object": "Text", "value": "home view"},
			"editor": {"object": "Text", "value": "editor view"},
		},
		Operations: map[string]*model.Operation{
			"open":   {ID: "open", ActionType: model.ActionView, View: "editor"},
			"search": {ID: "search", ActionType: model.ActionView, View: "home"},
			"remove": {ID: "remove", ActionType: model.ActionAPI, API: "/api/orders/${id}", Method: "DELETE", Effects: "orders"},
			"export": {ID: "export", ActionType: model.ActionExport},
		},
	}
}

type harness struct {
	srv     *Server
	ts      *httptest.Server
	http    *http.Client
	source  *staticSource
	backend *fakeBackend
}

func newHarness(t *testing.T, src *staticSource) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RenderWait = time.Second
	backend := &fakeBackend{}
	srv := New(cfg, src, backend)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	hc := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &harness{srv: srv, ts: ts, http: hc, source: src, backend: backend}
}

func (h *harness) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := h.http.Get(h.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (h *harness) postForm(t *testing.T, path, referer string, form url.Values) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, h.ts.URL+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if referer != "" {
		req.Header.Set("Referer", h.ts.URL+referer)
	}
	resp, err := h.http.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func (h *harness) postJSON(t *testing.T, path string, body any) (*http.Response, actionResponse) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, h.ts.URL+path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.http.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func (h *harness) host(t *testing.T, route string) *host.Host {
	t.Helper()
	u, _ := url.Parse(h.ts.URL)
	for _, c := range h.http.Jar.Cookies(u) {
		if c.Name != h.srv.config().Server.SessionCookie {
			continue
		}
		sess, ok := h.srv.sessions.Get(c.Value)
		if !ok {
			t.Fatal("session not found")
		}
		ph, ok := sess.hosts.Get(route)
		if !ok {
			t.Fatalf("no host for %s", route)
		}
		return ph
	}
	t.Fatal("no session cookie")
	return nil
}

func TestPageRendersMainView(t *testing.T) {
	h := newHarness(t, &staticSource{pm: pageModel()})

	resp, body := h.get(t, "/page/orders?tenant=acme")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
	for _, want := range []string{"<!DOCTYPE html>", "home view", `data-route="/orders"`, `data-state="ready"`, `data-live="/live/orders"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "editor view") {
		t.Error("overlay view rendered before it was opened")
	}
	if got := h.source.loads(); len(got) != 1 || got[0] != "/api/pages/orders" {
		t.Errorf("unexpected model loads %v", got)
	}

	ph := h.host(t, "/orders")
	if got := ph.Record(); len(got) != 0 {
		t.Errorf("expected an empty record, got %v", got)
	}
	if data, _ := ph.Store().Data("orders"); data == nil {
		t.Error("initial data not loaded")
	}

	// a second request reuses the mounted host
	h.get(t, "/page/orders?page=2")
	if n := len(h.source.loads()); n != 1 {
		t.Errorf("expected one model load, got %d", n)
	}
}

func TestOpenAndCloseView(t *testing.T) {
	h := newHarness(t, &staticSource{pm: pageModel()})
	h.get(t, "/page/orders")

	resp := h.postForm(t, "/page/orders/op/open", "/page/orders?page=2", url.Values{"__record": {`{"id":"7"}`}})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/page/orders?page=2" {
		t.Errorf("unexpected redirect %q", loc)
	}

	_, body := h.get(t, "/page/orders?page=2")
	if !strings.Contains(body, "editor view") || !strings.Contains(body, "home view") {
		t.Error("expected both views after opening the overlay")
	}
	if got := h.host(t, "/orders").Record()["id"]; got != "7" {
		t.Errorf("expected the posted record, got %v", got)
	}

	resp = h.postForm(t, "/page/orders/close/editor", "/page/orders", nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	_, body = h.get(t, "/page/orders")
	if strings.Contains(body, "editor view") {
		t.Error("overlay still rendered after close")
	}
}

func TestFilterSubmissionRewritesQuery(t *testing.T) {
	h := newHarness(t, &staticSource{pm: pageModel()})
	h.get(t, "/page/orders")

	form := url.Values{"__filter": {"1"}, "f.name": {"bob"}}
	resp := h.postForm(t, "/page/orders/op/search", "/page/orders?page=3&tenant=acme", form)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	q := loc.Query()
	if q.Has("page") {
		t.Error("filtering must reset the page")
	}
	if q.Get("tenant") != "acme" {
		t.Errorf("unrelated query lost: %v", q)
	}
	f, err := urlstate.DecodeFilter(q.Get("filter"))
	if err != nil {
		t.Fatalf("decode filter: %v", err)
	}
	if len(f.Items) != 1 || f.Items[0].Key != "name" || f.Items[0].Value != "bob" {
		t.Errorf("unexpected filter %+v", f)
	}

	// reset clears it
	resp = h.postForm(t, "/page/orders/op/search", loc.String(), url.Values{"__filter": {"1"}, "__reset": {"1"}})
	if q := mustLocation(t, resp).Query(); q.Has("filter") {
		t.Errorf("expected the filter to be cleared, got %v", q)
	}
}

func mustLocation(t *testing.T, resp *http.Response) *url.URL {
	t.Helper()
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func TestJSONOperation(t *testing.T) {
	h := newHarness(t, &staticSource{pm: pageModel()})
	h.get(t, "/page/orders")

	resp, out := h.postJSON(t, "/page/orders/op/remove", actionRequest{Record: map[string]any{"id": "7"}})
	if resp.StatusCode != http.StatusOK || !out.OK {
		t.Fatalf("expected success, got %d %+v", resp.StatusCode, out)
	}
	if dos := h.backend.calls(); len(dos) != 1 || dos[0] != "DELETE /api/orders/7" {
		t.Errorf("unexpected backend calls %v", dos)
	}
	if len(out.Notices) == 0 || out.Notices[len(out.Notices)-1].Message != "Operation succeeded" {
		t.Errorf("expected a success notice, got %+v", out.Notices)
	}

	resp, out = h.postJSON(t, "/page/orders/op/export", actionRequest{})
	if resp.StatusCode != http.StatusNotImplemented || out.OK {
		t.Errorf("expected 501, got %d %+v", resp.StatusCode, out)
	}

	resp, _ = h.postJSON(t, "/page/orders/op/missing", actionRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown operation, got %d", resp.StatusCode)
	}
}

func TestConfigErrorRendersPanel(t *testing.T) {
	src := &staticSource{err: &client.APIError{Status: http.StatusInternalServerError, Message: "down"}}
	h := newHarness(t, src)

	resp, body := h.get(t, "/page/orders")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "pv-error-panel") || !strings.Contains(body, host.MsgConfigError) {
		t.Error("expected the error panel")
	}

	// the failed host is dropped so the next request retries
	src.mu.Lock()
	src.err, src.pm = nil, pageModel()
	src.mu.Unlock()
	resp, body = h.get(t, "/page/orders")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "home view") {
		t.Errorf("expected a retry to succeed, got %d", resp.StatusCode)
	}
}

func TestAuthErrorRedirectsToLogin(t *testing.T) {
	h := newHarness(t, &staticSource{err: &client.APIError{Status: http.StatusUnauthorized}})

	resp, _ := h.get(t, "/page/orders")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	loc := mustLocation(t, resp)
	if loc.Path != "/auth/login" || loc.Query().Get("next") != "/page/orders" {
		t.Errorf("unexpected redirect %s", loc)
	}

	h.source.mu.Lock()
	h.source.err = &client.APIError{Status: http.StatusForbidden}
	h.source.mu.Unlock()
	resp, _ = h.get(t, "/page/orders")
	if loc := mustLocation(t, resp); loc.Path != "/auth/forbidden" {
		t.Errorf("unexpected redirect %s", loc)
	}
}

func TestPageModelChangedDropsHosts(t *testing.T) {
	h := newHarness(t, &staticSource{pm: pageModel()})
	h.get(t, "/page/orders")
	h.get(t, "/page/customers")

	h.srv.PageModelChanged("/api/pages/orders")
	h.get(t, "/page/orders")
	h.get(t, "/page/customers")

	var orders, customers int
	for _, u := range h.source.loads() {
		switch u {
		case "/api/pages/orders":
			orders++
		case "/api/pages/customers":
			customers++
		}
	}
	if orders != 2 || customers != 1 {
		t.Errorf("expected orders reloaded once and customers kept, got %d and %d", orders, customers)
	}

	cfg := config.Default()
	h.srv.Reload(cfg)
	h.get(t, "/page/customers")
	if n := len(h.source.loads()); n != 4 {
		t.Errorf("expected a reload to drop every host, got %d loads", n)
	}
}

func TestLiveStreamsChanges(t *testing.T) {
	h := newHarness(t, &staticSource{pm: pageModel()})
	h.get(t, "/page/orders")
	ph := h.host(t, "/orders")

	u, _ := url.Parse(h.ts.URL)
	header := http.Header{}
	for _, c := range h.http.Jar.Cookies(u) {
		header.Add("Cookie", c.Name+"="+c.Value)
	}
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/live/orders"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ph.Store().Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	ph.Effects([]string{"orders"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var c pagestore.Change
	if err := conn.ReadJSON(&c); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if c.Kind != pagestore.ChangeEffects || len(c.IDs) != 1 || c.IDs[0] != "orders" {
		t.Errorf("unexpected change %+v", c)
	}
}

func TestLiveRequiresMountedPage(t *testing.T) {
	h := newHarness(t, &staticSource{pm: pageModel()})
	resp, _ := h.get(t, "/live/orders")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without a session, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, &staticSource{pm: pageModel()})
	resp, body := h.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"status":"ok"`) {
		t.Errorf("unexpected health response %d %s", resp.StatusCode, body)
	}
}
