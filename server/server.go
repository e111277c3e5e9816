// Package server exposes page hosts over HTTP: pages are rendered to HTML,
// operations and overlay closes arrive as form posts, and store changes are
// pushed over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/cache"
	"github.com/GoCodeAlone/pageview/config"
	"github.com/GoCodeAlone/pageview/host"
	"github.com/GoCodeAlone/pageview/metrics"
	"github.com/GoCodeAlone/pageview/source"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics exposes and records metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRegistry sets the renderer registry used by every host.
func WithRegistry(r *builder.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// Server is the HTTP surface of the engine. It is also a modular module that
// listens on Start and shuts down on Stop.
type Server struct {
	name     string
	cfg      atomic.Pointer[config.Config]
	source   source.Source
	backend  host.Backend
	registry *builder.Registry
	metrics  *metrics.Collector
	logger   *slog.Logger
	sessions *cache.Bounded[*session]
	upgrader websocket.Upgrader
	handler  http.Handler

	httpServer *http.Server
	done       chan struct{}
}

// New creates a Server. backend may be nil when every page is static.
func New(cfg *config.Config, src source.Source, backend host.Backend, opts ...Option) *Server {
	s := &Server{
		name:    "pageview.server",
		source:  src,
		backend: backend,
		logger:  slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024 * 8,
		},
		done: make(chan struct{}),
	}
	s.cfg.Store(cfg)
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = s.newSessions()
	s.handler = otelhttp.NewHandler(s.instrument(s.routes()), "pageview")
	return s
}

func (s *Server) config() *config.Config { return s.cfg.Load() }

func (s *Server) routes() *http.ServeMux {
	cfg := s.config()
	base := strings.TrimRight(cfg.Server.BasePath, "/")
	live := strings.TrimRight(cfg.Server.LivePath, "/")

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+base+"/{route...}", s.handlePage)
	mux.HandleFunc("POST "+base+"/{route...}", s.handleAction)
	mux.HandleFunc("GET "+live+"/{route...}", s.handleLive)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET "+s.metrics.Path(), s.metrics.Handler())
	}
	return mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Reload applies a new configuration. Routes and listen address keep their
// startup values; every mounted host is dropped so pages pick up new menu
// entries and backend settings on the next request.
func (s *Server) Reload(cfg *config.Config) {
	s.cfg.Store(cfg)
	s.dropHosts(func(*host.Host) bool { return true })
	s.logger.Info("configuration reloaded")
}

// PageModelChanged drops every host mounted from modelURL, whatever the
// query it was loaded with.
func (s *Server) PageModelChanged(modelURL string) {
	modelURL = source.StripQuery(modelURL)
	s.dropHosts(func(h *host.Host) bool { return source.StripQuery(h.ModelURL()) == modelURL })
}

func (s *Server) dropHosts(match func(*host.Host) bool) {
	for _, id := range s.sessions.Keys() {
		sess, ok := s.sessions.Get(id)
		if !ok {
			continue
		}
		for _, route := range sess.hosts.Routes() {
			if h, ok := sess.hosts.Get(route); ok && match(h) {
				sess.hosts.Delete(route)
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

// Name returns the module name.
func (s *Server) Name() string { return s.name }

// Init takes the application logger.
func (s *Server) Init(app modular.Application) error {
	if l, ok := app.Logger().(*slog.Logger); ok && l != nil {
		s.logger = l
	}
	return nil
}

// Start listens on the configured address and starts the session janitor.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config().Server
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	go s.janitor(time.Minute)

	s.logger.Info("HTTP server started", "address", cfg.Addr)
	return nil
}

// Stop shuts the listener down and drops every session.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	for _, id := range s.sessions.Keys() {
		if sess, ok := s.sessions.Get(id); ok {
			sess.hosts.Clear()
		}
	}
	s.sessions.Clear()
	s.logger.Info("HTTP server stopped")
	return nil
}

// janitor evicts expired sessions so their hosts release their data.
func (s *Server) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if n := s.sessions.PurgeExpired(); n > 0 {
				s.logger.Debug("expired sessions purged", "count", n)
			}
		}
	}
}

// ProvidesServices returns the services provided by this module.
func (s *Server) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: s.name, Description: "Page view HTTP server", Instance: s},
	}
}

// RequiresServices returns the services required by this module.
func (s *Server) RequiresServices() []modular.ServiceDependency { return nil }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
