// Package pageview assembles the page view engine: configuration, backend
// client, page model source, cache, metrics and HTTP server, run as modules
// of a modular application.
package pageview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/GoCodeAlone/modular"

	"github.com/GoCodeAlone/pageview/cache"
	"github.com/GoCodeAlone/pageview/client"
	"github.com/GoCodeAlone/pageview/config"
	"github.com/GoCodeAlone/pageview/metrics"
	"github.com/GoCodeAlone/pageview/server"
	"github.com/GoCodeAlone/pageview/source"
)

type stopper interface {
	Stop() error
}

// Engine is an assembled page view application.
type Engine struct {
	app     modular.Application
	logger  *slog.Logger
	cfg     *config.Config
	client  *client.Client
	source  source.Source
	files   *source.FileSource
	cached  *source.CachedSource
	redis   *cache.RedisCache
	metrics *metrics.Collector
	server  *server.Server

	configPath  string
	watchConfig bool
	watchers    []stopper
}

// App returns the modular application the engine's modules run in.
func (e *Engine) App() modular.Application { return e.app }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Server returns the HTTP server module.
func (e *Engine) Server() *server.Server { return e.server }

// Source returns the page model source, cache included.
func (e *Engine) Source() source.Source { return e.source }

// Client returns the backend client.
func (e *Engine) Client() *client.Client { return e.client }

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// Handler returns the HTTP handler, for embedding without the listener.
func (e *Engine) Handler() http.Handler { return e.server }

// Start starts every module and the file watchers.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	if e.files != nil && e.cfg.Pages.Watch {
		w := source.NewWatcher(e.files, e.pageModelChanged, source.WithWatchLogger(e.logger))
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to watch page models: %w", err)
		}
		e.watchers = append(e.watchers, w)
	}
	if e.configPath != "" && e.watchConfig {
		w := config.NewWatcher(e.configPath, e.configChanged, config.WithWatchLogger(e.logger))
		if err := w.Start(); err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		e.watchers = append(e.watchers, w)
	}
	return nil
}

// Stop stops the watchers and every module.
func (e *Engine) Stop(ctx context.Context) error {
	var errs []error
	for _, w := range e.watchers {
		if err := w.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	e.watchers = nil

	if err := e.app.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop application: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) pageModelChanged(evt source.ChangeEvent) {
	e.logger.Info("page model changed", "url", evt.URL)
	if e.cached != nil {
		e.cached.Invalidate(evt.URL)
	}
	e.server.PageModelChanged(evt.URL)
}

// configChanged applies the server part of a reloaded configuration. Backend,
// source and cache settings need a restart.
func (e *Engine) configChanged(evt config.ChangeEvent) {
	e.server.Reload(evt.Config)
}
