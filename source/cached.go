package source

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/GoCodeAlone/pageview/cache"
	"github.com/GoCodeAlone/pageview/model"
)

// CachedSource serves page models from a cache.Store and loads misses from
// the next source. Concurrent misses for the same key share one load.
type CachedSource struct {
	next   Source
	store  cache.Store
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.Mutex
	versions map[string]int
}

// CachedOption configures a CachedSource.
type CachedOption func(*CachedSource)

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CachedOption {
	return func(c *CachedSource) { c.logger = l }
}

// NewCached wraps next with store. ttl is passed to every Set; zero uses the
// store default.
func NewCached(next Source, store cache.Store, ttl time.Duration, opts ...CachedOption) *CachedSource {
	c := &CachedSource{
		next:     next,
		store:    store,
		ttl:      ttl,
		logger:   slog.Default(),
		versions: make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns a human-readable identifier for this source.
func (c *CachedSource) Name() string { return "cached:" + c.next.Name() }

// Load returns the cached model for url and query, loading it on a miss.
// Cache failures are logged and fall through to the next source.
func (c *CachedSource) Load(ctx context.Context, url string, query url.Values) (*model.PageModel, error) {
	key := c.key(url, query)
	if raw, err := c.store.Get(ctx, key); err == nil {
		var pm model.PageModel
		if err := json.Unmarshal([]byte(raw), &pm); err == nil {
			return &pm, nil
		}
		c.logger.Warn("discarding undecodable cached page model", "key", key)
	} else if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn("page model cache read failed", "key", key, "error", err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		pm, err := c.next.Load(ctx, url, query)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(pm)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, string(raw), c.ttl); err != nil {
			c.logger.Warn("page model cache write failed", "key", key, "error", err)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}

	// Every caller decodes its own copy; page models are mutable maps.
	var pm model.PageModel
	if err := json.Unmarshal(v.([]byte), &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

// Invalidate makes the next Load of url, with any query, miss the cache.
func (c *CachedSource) Invalidate(url string) {
	c.mu.Lock()
	c.versions[StripQuery(url)]++
	c.mu.Unlock()
}

func (c *CachedSource) key(url string, query url.Values) string {
	c.mu.Lock()
	v := c.versions[StripQuery(url)]
	c.mu.Unlock()
	return "pagemodel:" + strconv.Itoa(v) + ":" + Key(url, query)
}
