// Package metrics exposes Prometheus metrics for backend calls, operations,
// page renders and host lifecycle. A nil *Collector is valid and records
// nothing.
package metrics

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config selects the metric groups and naming.
type Config struct {
	Namespace string   `yaml:"namespace" json:"namespace"`
	Subsystem string   `yaml:"subsystem" json:"subsystem"`
	Path      string   `yaml:"path" json:"path"`
	Enabled   []string `yaml:"enabled" json:"enabled"`
}

// DefaultConfig enables every group under the "pageview" namespace.
func DefaultConfig() Config {
	return Config{
		Namespace: "pageview",
		Path:      "/metrics",
		Enabled:   []string{"backend", "operation", "render", "host", "http"},
	}
}

// Collector owns a Prometheus registry and the engine's metric vectors.
type Collector struct {
	name     string
	config   Config
	registry *prometheus.Registry

	BackendRequests     *prometheus.CounterVec
	BackendDuration     *prometheus.HistogramVec
	Operations          *prometheus.CounterVec
	RenderDuration      *prometheus.HistogramVec
	ActiveHosts         prometheus.Gauge
	HostEvictions       prometheus.Counter
	LiveConnections     prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Collector with the default configuration.
func New(name string) *Collector {
	return NewWithConfig(name, DefaultConfig())
}

// NewWithConfig creates a Collector with its own registry.
func NewWithConfig(name string, cfg Config) *Collector {
	reg := prometheus.NewRegistry()
	ns, sub := cfg.Namespace, cfg.Subsystem
	on := func(group string) bool { return slices.Contains(cfg.Enabled, group) }

	c := &Collector{name: name, config: cfg, registry: reg}

	if on("backend") {
		c.BackendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "backend_requests_total",
			Help: "Backend API requests by method and status code",
		}, []string{"method", "status_code"})
		c.BackendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "backend_request_duration_seconds",
			Help:    "Duration of backend API requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"})
		reg.MustRegister(c.BackendRequests, c.BackendDuration)
	}

	if on("operation") {
		c.Operations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "operations_total",
			Help: "Performed operations by action type and outcome",
		}, []string{"action_type", "outcome"})
		reg.MustRegister(c.Operations)
	}

	if on("render") {
		c.RenderDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "render_duration_seconds",
			Help:    "Duration of page renders in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"state"})
		reg.MustRegister(c.RenderDuration)
	}

	if on("host") {
		c.ActiveHosts = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "active_hosts",
			Help: "Number of mounted page hosts",
		})
		c.HostEvictions = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "host_evictions_total",
			Help: "Page hosts evicted from route caches",
		})
		c.LiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "live_connections",
			Help: "Open live update websocket connections",
		})
		reg.MustRegister(c.ActiveHosts, c.HostEvictions, c.LiveConnections)
	}

	if on("http") {
		c.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"})
		c.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})
		reg.MustRegister(c.HTTPRequestsTotal, c.HTTPRequestDuration)
	}

	return c
}

// Name returns the module name.
func (c *Collector) Name() string { return c.name }

// Init registers the collector as the "metrics.collector" service.
func (c *Collector) Init(app modular.Application) error {
	return app.RegisterService("metrics.collector", c)
}

// Path returns the configured metrics endpoint path.
func (c *Collector) Path() string { return c.config.Path }

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveBackend records one backend request. It matches client.Observer.
func (c *Collector) ObserveBackend(method string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.BackendRequests != nil {
		c.BackendRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
	if c.BackendDuration != nil {
		c.BackendDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	}
}

// RecordOperation counts one performed operation.
func (c *Collector) RecordOperation(actionType, outcome string) {
	if c == nil || c.Operations == nil {
		return
	}
	c.Operations.WithLabelValues(actionType, outcome).Inc()
}

// RecordRender records how long rendering a page took in the given host state.
func (c *Collector) RecordRender(state string, elapsed time.Duration) {
	if c == nil || c.RenderDuration == nil {
		return
	}
	c.RenderDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

// HostMounted adjusts the active host gauge by delta.
func (c *Collector) HostMounted(delta float64) {
	if c == nil || c.ActiveHosts == nil {
		return
	}
	c.ActiveHosts.Add(delta)
}

// HostEvicted counts an evicted host. The active gauge is lowered separately,
// and only for hosts that had mounted.
func (c *Collector) HostEvicted() {
	if c == nil || c.HostEvictions == nil {
		return
	}
	c.HostEvictions.Inc()
}

// LiveConnection adjusts the websocket connection gauge by delta.
func (c *Collector) LiveConnection(delta float64) {
	if c == nil || c.LiveConnections == nil {
		return
	}
	c.LiveConnections.Add(delta)
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.HTTPRequestsTotal != nil {
		c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	}
	if c.HTTPRequestDuration != nil {
		c.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
	}
}
