// Package redis provides a Redis/Valkey counter driver built on go-redis.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cache"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cfg"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/logutil"
)

func init() {
	cache.RegisterDriver("redis", func(settings map[string]any, logger *slog.Logger) (cache.Counter, error) {
		c := DefaultConfig()
		if err := cfg.Decode(settings, c); err != nil {
			return nil, err
		}
		rc, err := New(c)
		if err != nil {
			return nil, err
		}
		logutil.NoopIfNil(logger).Info("redis cache connected", "addr", c.Addr, "db", c.DB)
		return rc, nil
	})
}

// Config holds Redis connection configuration.
type Config struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// DefaultConfig returns sensible defaults for Redis connection.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		KeyPrefix:    "gatekeeper:",
	}
}

// Cache is a Redis-backed counter store.
type Cache struct {
	client *goredis.Client
	prefix string
}

// New connects to Redis and fails fast if the server does not answer PING.
func New(c *Config) (*Cache, error) {
	if c == nil {
		c = DefaultConfig()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout(c))
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w", c.Addr, err)
	}

	return &Cache{client: client, prefix: c.KeyPrefix}, nil
}

func pingTimeout(c *Config) time.Duration {
	if c.DialTimeout > 0 {
		return 2 * c.DialTimeout
	}
	return 5 * time.Second
}

// Increment adds delta to a counter. INCRBY and EXPIRE NX run in one
// MULTI/EXEC, so a key never exists without a TTL and the window stays
// anchored to the first increment. EXPIRE NX needs Redis 7.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	k := c.prefix + key

	var incr *goredis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, k, delta)
		pipe.ExpireNX(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Reset removes a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Health checks if the Redis connection is healthy.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

var _ cache.Counter = (*Cache)(nil)
