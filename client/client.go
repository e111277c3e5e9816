// Package client talks to the backend API. Every response is a JSON envelope
// {code, message, error, data}; the client unwraps data when code is "OK" and
// turns everything else into an *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/GoCodeAlone/pageview/model"
)

// Observer receives one call per completed backend request. status is 0 when
// no response was received.
type Observer func(method string, status int, elapsed time.Duration)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is used
// as is, without tracing.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outbound requests at perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			if burst <= 0 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a request observer, typically metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// Client is an envelope-aware JSON API client.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	observe Observer
}

// New creates a Client that resolves relative URLs against baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Get performs a GET and returns the unwrapped data.
func (c *Client) Get(ctx context.Context, rawURL string, params map[string]any) (any, error) {
	return c.Do(ctx, http.MethodGet, rawURL, params, nil)
}

// Do performs a request. params are appended to the query string; body, when
// non-nil and the method is not GET, is sent as JSON. A missing or null data
// member yields an empty object.
func (c *Client) Do(ctx context.Context, method, rawURL string, params map[string]any, body any) (any, error) {
	var data any
	if err := c.DoInto(ctx, method, rawURL, params, body, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// GetInto performs a GET and decodes the unwrapped data into out.
func (c *Client) GetInto(ctx context.Context, rawURL string, params map[string]any, out any) error {
	return c.DoInto(ctx, http.MethodGet, rawURL, params, nil, out)
}

// DoInto performs a request and decodes the unwrapped data into out.
func (c *Client) DoInto(ctx context.Context, method, rawURL string, params map[string]any, body any, out any) error {
	status, raw, target, err := c.send(ctx, method, rawURL, params, body)
	if err != nil {
		return err
	}

	var env struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Error   map[string]string `json:"error"`
		Data    json.RawMessage   `json:"data"`
	}
	decodeErr := json.Unmarshal(raw, &env)

	if status >= 400 || decodeErr != nil || env.Code != model.EnvelopeOK {
		apiErr := &APIError{Status: status, Code: env.Code, Message: env.Message, Details: env.Error}
		if decodeErr != nil && status < 400 {
			apiErr.Message = ""
			apiErr.cause = decodeErr
		}
		c.logger.Debug("backend request failed", "method", method, "url", target, "status", status, "code", env.Code)
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("client: decode data of %s %s: %w", method, target, err)
	}
	return nil
}

// GetJSON performs a GET and decodes the body into out as is, without the
// envelope. Page models are served this way.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params map[string]any, out any) error {
	status, raw, target, err := c.send(ctx, http.MethodGet, rawURL, params, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		apiErr := &APIError{Status: status}
		var env model.Envelope
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Code, apiErr.Message = env.Code, env.Message
		}
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decode %s: %w", target, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, rawURL string, params map[string]any, body any) (int, []byte, string, error) {
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	target, err := c.resolve(rawURL, params)
	if err != nil {
		return 0, nil, "", err
	}

	var reader io.Reader
	if body != nil && method != http.MethodGet {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, target, fmt.Errorf("client: encode body for %s %s: %w", method, rawURL, err)
		}
		reader = bytes.NewReader(buf)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, target, fmt.Errorf("client: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, target, fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range forwardedHeaders(ctx) {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.report(method, 0, start)
		return 0, nil, target, fmt.Errorf("client: %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	c.report(method, resp.StatusCode, start)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, target, fmt.Errorf("client: read %s %s: %w", method, target, err)
	}
	return resp.StatusCode, raw, target, nil
}

// Dict fetches a mapping dictionary. The payload is expected under data.dict.
func (c *Client) Dict(ctx context.Context, rawURL string, params map[string]any) (model.MappingDict, error) {
	var data struct {
		Dict model.MappingDict `json:"dict"`
	}
	if err := c.GetInto(ctx, rawURL, params, &data); err != nil {
		return nil, err
	}
	if data.Dict == nil {
		return model.MappingDict{}, nil
	}
	return data.Dict, nil
}

func (c *Client) resolve(rawURL string, params map[string]any) (string, error) {
	target := rawURL
	if !strings.Contains(rawURL, "://") {
		target = c.baseURL + "/" + strings.TrimLeft(rawURL, "/")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("client: parse url %q: %w", rawURL, err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, v := range params {
		switch vals := v.(type) {
		case nil:
			continue
		case []any:
			for _, item := range vals {
				q.Add(k, model.Stringify(item))
			}
		case []string:
			for _, item := range vals {
				q.Add(k, item)
			}
		default:
			q.Set(k, model.Stringify(v))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) report(method string, status int, start time.Time) {
	if c.observe != nil {
		c.observe(method, status, time.Since(start))
	}
}

type headerKey struct{}

// WithForwardedHeaders returns a context whose requests carry h, typically the
// browser's Cookie and Authorization headers.
func WithForwardedHeaders(ctx context.Context, h http.Header) context.Context {
	if len(h) == 0 {
		return ctx
	}
	return context.WithValue(ctx, headerKey{}, h.Clone())
}

func forwardedHeaders(ctx context.Context) http.Header {
	h, _ := ctx.Value(headerKey{}).(http.Header)
	return h
}
