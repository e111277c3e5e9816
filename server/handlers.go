package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/GoCodeAlone/pageview/client"
	"github.com/GoCodeAlone/pageview/host"
	"github.com/GoCodeAlone/pageview/notify"
	"github.com/GoCodeAlone/pageview/operation"
	"github.com/GoCodeAlone/pageview/renderers"
	"github.com/GoCodeAlone/pageview/urlstate"
)

// MsgNotImplemented is the notice shown for operations whose action type has
// no behaviour yet.
const MsgNotImplemented = "This operation is not available yet"

// actionRequest is the JSON form of an operation or close request.
type actionRequest struct {
	Override map[string]any `json:"override"`
	Record   map[string]any `json:"record"`
}

// actionResponse answers JSON operation requests.
type actionResponse struct {
	OK      bool            `json:"ok"`
	Payload any             `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Notices []notify.Notice `json:"notices"`
	Visible []string        `json:"visible"`
}

func (s *Server) basePath() string {
	return strings.TrimRight(s.config().Server.BasePath, "/")
}

func routeFrom(path string) string {
	return "/" + strings.Trim(path, "/")
}

// backendContext carries the configured subset of the browser headers to the
// backend calls made for r.
func (s *Server) backendContext(r *http.Request) context.Context {
	fwd := http.Header{}
	for _, name := range s.config().Backend.ForwardHeaders {
		if v := r.Header.Values(name); len(v) > 0 {
			fwd[http.CanonicalHeaderKey(name)] = v
		}
	}
	return client.WithForwardedHeaders(r.Context(), fwd)
}

// hostFor returns the host of route in sess, creating it from the mounting
// request when absent.
func (s *Server) hostFor(sess *session, r *http.Request, route string) *host.Host {
	cfg := s.config()
	h, _ := sess.hosts.GetOrCreate(route, func() (*host.Host, error) {
		query := r.URL.Query()
		opts := []host.Option{host.WithLogger(s.logger), host.WithMetrics(s.metrics)}
		if s.registry != nil {
			opts = append(opts, host.WithRegistry(s.registry))
		}
		return host.New(host.Config{
			Route:    route,
			ModelURL: cfg.ModelURL(route),
			Query:    query,
			URLVars:  routeVars(query),
			BasePath: s.basePath() + route,
		}, s.source, s.backend, opts...), nil
	})
	return h
}

// routeVars are the query parameters of the mounting request that are not
// list state.
func routeVars(q url.Values) map[string]any {
	vars := urlstate.Params(q)
	delete(vars, urlstate.PageKey)
	delete(vars, urlstate.SizeKey)
	delete(vars, urlstate.FilterKey)
	return vars
}

// mount makes sure the host of route is mounted. A failed mount drops the
// host so the next request retries.
func (s *Server) mount(ctx context.Context, sess *session, r *http.Request, route string) (*host.Host, error) {
	h := s.hostFor(sess, r, route)
	if err := h.EnsureMounted(ctx); err != nil {
		sess.hosts.Delete(route)
		return h, err
	}
	return h, nil
}

// authRedirect sends the browser to the login or forbidden page when err is a
// backend 401 or 403. It reports whether it answered.
func (s *Server) authRedirect(w http.ResponseWriter, r *http.Request, err error) bool {
	cfg := s.config().Server
	var target string
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		target = cfg.LoginPath
	case errors.Is(err, client.ErrForbidden):
		target = cfg.ForbiddenPath
	default:
		return false
	}
	next := r.URL.RequestURI()
	if r.Method != http.MethodGet {
		next = r.Referer()
	}
	if next != "" {
		target += "?" + url.Values{"next": {next}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
	return true
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	cfg := s.config().Server
	route := routeFrom(r.PathValue("route"))
	sess := s.session(w, r)
	ctx := s.backendContext(r)

	h, err := s.mount(ctx, sess, r, route)
	status := http.StatusOK
	if err != nil {
		if s.authRedirect(w, r, err) {
			return
		}
		status = http.StatusBadGateway
	} else if cfg.RenderWait > 0 {
		waitCtx, cancel := context.WithTimeout(r.Context(), cfg.RenderWait)
		_ = h.Wait(waitCtx)
		cancel()
	}

	page := h.Render(ctx, r.URL.Query())
	live := ""
	if err == nil {
		live = strings.TrimRight(cfg.LivePath, "/") + route
	}
	writeDocument(w, status, document(pageTitle(route), live, h.Notices().Drain(), page))
}

// handleAction serves {base}/{route}/op/{id} and {base}/{route}/close/{view}.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	path := routeFrom(r.PathValue("route"))
	if i := strings.LastIndex(path, "/op/"); i >= 0 {
		s.handleOperation(w, r, routeFrom(path[:i]), path[i+len("/op/"):])
		return
	}
	if i := strings.LastIndex(path, "/close/"); i >= 0 {
		s.handleClose(w, r, routeFrom(path[:i]), path[i+len("/close/"):])
		return
	}
	http.NotFound(w, r)
}

func wantsJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

func decodeAction(r *http.Request) (renderers.Submission, error) {
	if wantsJSON(r) {
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return renderers.Submission{}, fmt.Errorf("decode operation request: %w", err)
		}
		if req.Record == nil {
			req.Record = map[string]any{}
		}
		return renderers.Submission{Override: req.Override, Record: req.Record}, nil
	}
	if err := r.ParseForm(); err != nil {
		return renderers.Submission{}, fmt.Errorf("parse operation form: %w", err)
	}
	return renderers.DecodeSubmission(r.PostForm)
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request, route, opID string) {
	asJSON := wantsJSON(r)
	sub, err := decodeAction(r)
	if err != nil {
		s.logger.Debug("bad operation request", "route", route, "operation", opID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess := s.session(w, r)
	ctx := s.backendContext(r)
	h, err := s.mount(ctx, sess, r, route)
	if err != nil {
		if !asJSON && s.authRedirect(w, r, err) {
			return
		}
		s.actionFailed(w, r, asJSON, h, route, err, http.StatusBadGateway)
		return
	}

	res, err := h.Perform(ctx, opID, sub.Override, sub.Record)
	switch {
	case errors.Is(err, operation.ErrNotImplemented):
		h.Notices().Info(MsgNotImplemented)
	case err != nil:
		s.actionFailed(w, r, asJSON, h, route, err, http.StatusBadRequest)
		return
	case res.Cause != nil && client.IsAuthError(res.Cause):
		if !asJSON && s.authRedirect(w, r, res.Cause) {
			return
		}
	}

	if asJSON {
		resp := actionResponse{
			OK:      res.OK,
			Payload: res.Payload,
			Notices: h.Notices().Drain(),
			Visible: h.Visible(),
		}
		status := http.StatusOK
		if res.Cause != nil {
			resp.Error = client.UserMessage(res.Cause)
			status = statusOf(res.Cause)
		} else if err != nil {
			resp.Error = MsgNotImplemented
			status = http.StatusNotImplemented
		}
		writeJSON(w, status, resp)
		return
	}

	s.redirectBack(w, r, route, sub.Record)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request, route, view string) {
	sess, ok := s.lookupSession(r)
	if ok {
		if h, ok := sess.hosts.Get(route); ok {
			h.CloseView(view)
		}
	}
	if wantsJSON(r) {
		visible := []string{}
		if ok {
			if h, found := sess.hosts.Get(route); found {
				visible = h.Visible()
			}
		}
		writeJSON(w, http.StatusOK, actionResponse{OK: true, Notices: []notify.Notice{}, Visible: visible})
		return
	}
	s.redirectBack(w, r, route, nil)
}

// actionFailed reports err on the page, or as JSON for JSON clients.
func (s *Server) actionFailed(w http.ResponseWriter, r *http.Request, asJSON bool, h *host.Host, route string, err error, status int) {
	s.logger.Warn("operation request failed", "route", route, "error", err)
	if asJSON {
		writeJSON(w, status, actionResponse{Error: err.Error(), Notices: h.Notices().Drain(), Visible: h.Visible()})
		return
	}
	h.Notices().Error(client.UserMessage(err))
	s.redirectBack(w, r, route, nil)
}

func statusOf(err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 {
		return apiErr.Status
	}
	return http.StatusBadGateway
}

// redirectBack answers a form post with a redirect to the page, keeping the
// query of the page the form was posted from. A filter record replaces the
// filter and resets the page number; an empty filter clears it.
func (s *Server) redirectBack(w http.ResponseWriter, r *http.Request, route string, record map[string]any) {
	page := s.basePath() + route
	q := url.Values{}
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path == page {
		q = ref.Query()
	}
	if f, ok := record[urlstate.FilterKey]; ok {
		q.Del(urlstate.FilterKey)
		q.Del(urlstate.PageKey)
		q = urlstate.ViewParams(q, map[string]any{urlstate.FilterKey: f})
	}
	if enc := q.Encode(); enc != "" {
		page += "?" + enc
	}
	http.Redirect(w, r, page, http.StatusSeeOther)
}
