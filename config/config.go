// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/pageview/cache"
	"github.com/GoCodeAlone/pageview/metrics"
	"github.com/GoCodeAlone/pageview/model"
)

// Page model sources.
const (
	SourceHTTP = "http"
	SourceFile = "file"
)

// Page model cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	BasePath        string        `json:"basePath" yaml:"basePath"`
	LivePath        string        `json:"livePath" yaml:"livePath"`
	LoginPath       string        `json:"loginPath" yaml:"loginPath"`
	ForbiddenPath   string        `json:"forbiddenPath" yaml:"forbiddenPath"`
	SessionCookie   string        `json:"sessionCookie" yaml:"sessionCookie"`
	SessionTTL      time.Duration `json:"sessionTTL" yaml:"sessionTTL"`
	MaxSessions     int           `json:"maxSessions" yaml:"maxSessions"`
	HostsPerSession int           `json:"hostsPerSession" yaml:"hostsPerSession"`
	// RenderWait bounds how long a page request waits for initial data
	// before rendering the loading overlay.
	RenderWait   time.Duration `json:"renderWait" yaml:"renderWait"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
}

// BackendConfig configures the API client.
type BackendConfig struct {
	BaseURL        string        `json:"baseURL" yaml:"baseURL"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	RateLimit      float64       `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	Burst          int           `json:"burst,omitempty" yaml:"burst,omitempty"`
	ForwardHeaders []string      `json:"forwardHeaders" yaml:"forwardHeaders"`
}

// PagesConfig selects where page models come from.
type PagesConfig struct {
	Source string `json:"source" yaml:"source"`
	// Dir is the root of the file source.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// Watch reloads file page models when they change.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty"`
	// URLPrefix is prepended to routes without a menu entry to form the
	// page model url.
	URLPrefix string `json:"urlPrefix" yaml:"urlPrefix"`
}

// CacheConfig configures the page model cache.
type CacheConfig struct {
	Backend string            `json:"backend" yaml:"backend"`
	Size    int               `json:"size" yaml:"size"`
	TTL     time.Duration     `json:"ttl" yaml:"ttl"`
	Redis   cache.RedisConfig `json:"redis" yaml:"redis"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig     `json:"server" yaml:"server"`
	Backend BackendConfig    `json:"backend" yaml:"backend"`
	Pages   PagesConfig      `json:"pages" yaml:"pages"`
	Cache   CacheConfig      `json:"cache" yaml:"cache"`
	Metrics metrics.Config   `json:"metrics" yaml:"metrics"`
	Log     LogConfig        `json:"log" yaml:"log"`
	Menu    []model.MenuItem `json:"menu,omitempty" yaml:"menu,omitempty"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			BasePath:        "/page",
			LivePath:        "/live",
			LoginPath:       "/auth/login",
			ForbiddenPath:   "/auth/forbidden",
			SessionCookie:   "pv_session",
			SessionTTL:      30 * time.Minute,
			MaxSessions:     1000,
			HostsPerSession: 10,
			RenderWait:      2 * time.Second,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:9000",
			Timeout:        30 * time.Second,
			ForwardHeaders: []string{"Cookie", "Authorization"},
		},
		Pages: PagesConfig{
			Source:    SourceHTTP,
			URLPrefix: "/api/pages",
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			Size:    256,
			TTL:     5 * time.Minute,
		},
		Metrics: metrics.DefaultConfig(),
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFromFile loads the configuration at path on top of Default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default, expands environment references in
// the address, credential and directory settings, and validates the result.
// Page model templates such as ${id} in menu urls are left alone.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandEnv() {
	for _, s := range []*string{
		&c.Server.Addr,
		&c.Backend.BaseURL,
		&c.Pages.Dir,
		&c.Cache.Redis.Address,
		&c.Cache.Redis.Password,
	} {
		*s = os.ExpandEnv(*s)
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	switch c.Pages.Source {
	case SourceHTTP:
	case SourceFile:
		if c.Pages.Dir == "" {
			errs = append(errs, errors.New("pages.dir is required for the file source"))
		}
	default:
		errs = append(errs, fmt.Errorf("pages.source %q is not one of http, file", c.Pages.Source))
	}
	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.Redis.Address == "" {
			errs = append(errs, errors.New("cache.redis.address is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is not one of none, memory, redis", c.Cache.Backend))
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.basePath %q must start with /", c.Server.BasePath))
	}
	if c.Server.HostsPerSession <= 0 {
		errs = append(errs, errors.New("server.hostsPerSession must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// ModelURL returns the page model url of route: the url of the menu entry
// whose id or view matches the last route segment, or URLPrefix + route.
func (c *Config) ModelURL(route string) string {
	route = "/" + strings.Trim(route, "/")
	name := route[strings.LastIndex(route, "/")+1:]
	for _, item := range c.Menu {
		if name == "" {
			break
		}
		if m, ok := findMenu(item, name); ok && m.URL != "" {
			return m.URL
		}
	}
	return strings.TrimRight(c.Pages.URLPrefix, "/") + route
}

func findMenu(item model.MenuItem, name string) (model.MenuItem, bool) {
	if item.View == name {
		return item, true
	}
	if m, ok := item.Find(name); ok {
		return m, true
	}
	for _, child := range item.Children {
		if m, ok := findMenu(child, name); ok {
			return m, true
		}
	}
	return model.MenuItem{}, false
}
