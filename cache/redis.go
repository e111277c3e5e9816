package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoCodeAlone/modular"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis client methods used by RedisCache.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Address    string        `yaml:"address"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	Prefix     string        `yaml:"prefix"`
	DefaultTTL time.Duration `yaml:"defaultTTL"`
}

// RedisCache is a Store shared between server instances. It is also a
// modular module so the application connects and closes it with the other
// modules.
type RedisCache struct {
	name   string
	cfg    RedisConfig
	client RedisClient
	logger modular.Logger
}

// NewRedisCache creates a RedisCache that connects on Start.
func NewRedisCache(name string, cfg RedisConfig) *RedisCache {
	return &RedisCache{name: name, cfg: cfg, logger: slog.Default()}
}

// NewRedisCacheWithClient creates a RedisCache backed by an existing client.
func NewRedisCacheWithClient(name string, cfg RedisConfig, client RedisClient) *RedisCache {
	return &RedisCache{name: name, cfg: cfg, client: client, logger: slog.Default()}
}

func (r *RedisCache) Name() string { return r.name }

func (r *RedisCache) Init(app modular.Application) error {
	r.logger = app.Logger()
	return nil
}

// Start connects to Redis and verifies the connection with PING.
func (r *RedisCache) Start(ctx context.Context) error {
	if r.client != nil {
		return nil
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:     r.cfg.Address,
		Password: r.cfg.Password,
		DB:       r.cfg.DB,
	})
	if err := r.client.Ping(ctx).Err(); err != nil {
		_ = r.client.Close()
		r.client = nil
		return fmt.Errorf("redis cache %q: ping failed: %w", r.name, err)
	}

	r.logger.Info("Redis cache started", "name", r.name, "address", r.cfg.Address)
	return nil
}

// Stop closes the Redis connection.
func (r *RedisCache) Stop(_ context.Context) error {
	if r.client == nil {
		return nil
	}
	r.logger.Info("Redis cache stopped", "name", r.name)
	return r.client.Close()
}

// Get returns ErrMiss when the key does not exist.
func (r *RedisCache) Get(ctx context.Context, key string) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis cache %q: not started", r.name)
	}
	val, err := r.client.Get(ctx, r.prefixed(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis cache %q: get %q: %w", r.name, key, err)
	}
	return val, nil
}

// Set stores value. A zero ttl uses the configured default; if that is also
// zero the key never expires.
func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis cache %q: not started", r.name)
	}
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}
	return r.client.Set(ctx, r.prefixed(key), value, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis cache %q: not started", r.name)
	}
	return r.client.Del(ctx, r.prefixed(key)).Err()
}

func (r *RedisCache) prefixed(key string) string {
	return r.cfg.Prefix + key
}

func (r *RedisCache) ProvidesServices() []modular.ServiceProvider {
	return []modular.ServiceProvider{
		{Name: r.name, Description: "Redis page model cache", Instance: r},
	}
}

func (r *RedisCache) RequiresServices() []modular.ServiceDependency {
	return nil
}
