package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a string key/value cache with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a Store backed by a Bounded cache.
type MemoryStore struct {
	c *Bounded[string]
}

// NewMemoryStore creates an in-process Store.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{c: NewBounded[string](cfg, nil)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

// Set stores value. A zero ttl uses the store default.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		m.c.Set(key, value)
		return nil
	}
	m.c.SetWithTTL(key, value, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// Stats returns statistics of the underlying cache.
func (m *MemoryStore) Stats() Stats { return m.c.Stats() }
