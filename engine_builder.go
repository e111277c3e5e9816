package pageview

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/GoCodeAlone/modular"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/cache"
	"github.com/GoCodeAlone/pageview/client"
	"github.com/GoCodeAlone/pageview/config"
	"github.com/GoCodeAlone/pageview/metrics"
	"github.com/GoCodeAlone/pageview/server"
	"github.com/GoCodeAlone/pageview/source"
)

// Module names.
const (
	ServerModule  = "pageview.server"
	MetricsModule = "pageview.metrics"
	CacheModule   = "pageview.cache"
)

// EngineBuilder provides a fluent API for constructing an Engine.
//
//	engine, err := pageview.NewEngineBuilder().
//	    WithConfigPath("pageview.yaml").
//	    WatchConfig().
//	    Build()
type EngineBuilder struct {
	app    modular.Application
	logger *slog.Logger
	cfg    *config.Config

	configPath  string
	watchConfig bool
	source      source.Source
	registry    *builder.Registry
	redisClient cache.RedisClient
}

// NewEngineBuilder creates a builder with no overrides.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithApplication sets a custom modular.Application. If not called, Build
// creates a StdApplication.
func (b *EngineBuilder) WithApplication(app modular.Application) *EngineBuilder {
	b.app = app
	return b
}

// WithLogger sets the logger. If not called, Build logs as text to stdout at
// the configured level.
func (b *EngineBuilder) WithLogger(logger *slog.Logger) *EngineBuilder {
	b.logger = logger
	return b
}

// WithConfig sets the configuration. It takes precedence over WithConfigPath.
func (b *EngineBuilder) WithConfig(cfg *config.Config) *EngineBuilder {
	b.cfg = cfg
	return b
}

// WithConfigPath loads the configuration from a YAML file during Build.
func (b *EngineBuilder) WithConfigPath(path string) *EngineBuilder {
	b.configPath = path
	return b
}

// WatchConfig reloads the server configuration when the file set with
// WithConfigPath changes.
func (b *EngineBuilder) WatchConfig() *EngineBuilder {
	b.watchConfig = true
	return b
}

// WithSource replaces the configured page model source. The cache is still
// put in front of it.
func (b *EngineBuilder) WithSource(src source.Source) *EngineBuilder {
	b.source = src
	return b
}

// WithRegistry sets the renderer registry, for applications that register
// their own view object types.
func (b *EngineBuilder) WithRegistry(r *builder.Registry) *EngineBuilder {
	b.registry = r
	return b
}

// WithRedisClient makes the redis cache use c instead of dialling.
func (b *EngineBuilder) WithRedisClient(c cache.RedisClient) *EngineBuilder {
	b.redisClient = c
	return b
}

// Build creates the engine and initialises its modules.
func (b *EngineBuilder) Build() (*Engine, error) {
	cfg := b.cfg
	if cfg == nil && b.configPath != "" {
		loaded, err := config.LoadFromFile(b.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %q: %w", b.configPath, err)
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default()
	}

	logger := b.logger
	if logger == nil {
		level, err := cfg.Log.SlogLevel()
		if err != nil {
			return nil, err
		}
		logger = NewLogger(os.Stdout, cfg.Log.Format, level)
	}
	app := b.app
	if app == nil {
		app = modular.NewStdApplication(modular.NewStdConfigProvider(nil), logger)
	}

	e := &Engine{
		app:         app,
		logger:      logger,
		cfg:         cfg,
		configPath:  b.configPath,
		watchConfig: b.watchConfig,
	}

	if len(cfg.Metrics.Enabled) > 0 {
		e.metrics = metrics.NewWithConfig(MetricsModule, cfg.Metrics)
		app.RegisterModule(e.metrics)
	}

	copts := []client.Option{
		client.WithLogger(logger),
		client.WithTimeout(cfg.Backend.Timeout),
	}
	if cfg.Backend.RateLimit > 0 {
		copts = append(copts, client.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst))
	}
	if e.metrics != nil {
		copts = append(copts, client.WithObserver(e.metrics.ObserveBackend))
	}
	e.client = client.New(cfg.Backend.BaseURL, copts...)

	src, err := b.buildSource(e)
	if err != nil {
		return nil, err
	}
	e.source = src

	sopts := []server.Option{server.WithLogger(logger), server.WithMetrics(e.metrics)}
	if b.registry != nil {
		sopts = append(sopts, server.WithRegistry(b.registry))
	}
	e.server = server.New(cfg, e.source, e.client, sopts...)
	app.RegisterModule(e.server)

	if err := app.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	logger.Info("engine built", "source", e.source.Name(), "backend", cfg.Backend.BaseURL, "cache", cfg.Cache.Backend)
	return e, nil
}

// buildSource creates the configured page model source and the cache in
// front of it.
func (b *EngineBuilder) buildSource(e *Engine) (source.Source, error) {
	cfg := e.cfg
	src := b.source
	if src == nil {
		switch cfg.Pages.Source {
		case config.SourceFile:
			e.files = source.NewFileSource(cfg.Pages.Dir)
			src = e.files
		case config.SourceHTTP:
			src = source.NewHTTPSource(e.client)
		default:
			return nil, fmt.Errorf("unknown page source %q", cfg.Pages.Source)
		}
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case config.CacheNone, "":
		return src, nil
	case config.CacheMemory:
		store = cache.NewMemoryStore(cache.Config{MaxSize: cfg.Cache.Size, TTL: cfg.Cache.TTL})
	case config.CacheRedis:
		if b.redisClient != nil {
			e.redis = cache.NewRedisCacheWithClient(CacheModule, cfg.Cache.Redis, b.redisClient)
		} else {
			e.redis = cache.NewRedisCache(CacheModule, cfg.Cache.Redis)
		}
		e.app.RegisterModule(e.redis)
		store = e.redis
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	e.cached = source.NewCached(src, store, cfg.Cache.TTL, source.WithCacheLogger(e.logger))
	return e.cached, nil
}
