// Package memory provides an in-memory counter driver with TTL support.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cache"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cfg"
)

func init() {
	cache.RegisterDriver("memory", func(settings map[string]any, _ *slog.Logger) (cache.Counter, error) {
		var s Settings
		if err := cfg.Decode(settings, &s); err != nil {
			return nil, err
		}
		return New(s.CleanupInterval), nil
	})
}

// Settings is the [cache.drivers.memory] section.
type Settings struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ApplyDefaults implements cfg.Setter.
func (s *Settings) ApplyDefaults() {
	if s.CleanupInterval == 0 {
		s.CleanupInterval = 5 * time.Minute
	}
}

type counterItem struct {
	value     int64
	expiresAt time.Time
}

func (c *counterItem) isExpired(now time.Time) bool {
	return now.After(c.expiresAt)
}

// Cache is an in-memory counter store.
type Cache struct {
	mu        sync.Mutex
	counters  map[string]*counterItem
	stopClean chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// New creates a new in-memory cache.
// cleanupInterval specifies how often to run the cleanup goroutine (0 disables).
func New(cleanupInterval time.Duration) *Cache {
	c := &Cache{
		counters:  make(map[string]*counterItem),
		stopClean: make(chan struct{}),
		now:       time.Now,
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}

	return c
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopClean:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.counters {
		if v.isExpired(now) {
			delete(c.counters, k)
		}
	}
}

// Increment adds delta to a counter and returns the new value.
func (c *Cache) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	counter, ok := c.counters[key]
	if !ok || counter.isExpired(now) {
		c.counters[key] = &counterItem{value: delta, expiresAt: now.Add(ttl)}
		return delta, nil
	}

	counter.value += delta
	return counter.value, nil
}

// Reset removes a counter.
func (c *Cache) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.counters, key)
	return nil
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stopClean) })
	return nil
}

var _ cache.Counter = (*Cache)(nil)
