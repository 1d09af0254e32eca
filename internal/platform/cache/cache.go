// Package cache provides TTL counters behind pluggable drivers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cfg"
)

var ErrUnknownDriver = errors.New("unknown cache driver")

// Counter provides atomic increment operations over expiring keys.
type Counter interface {
	// Increment adds delta to the counter and returns the new value.
	// If the key doesn't exist, it's created with the given TTL.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Reset removes the counter.
	Reset(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// DriverFactory builds a Counter from its [cache.drivers.<name>] section.
type DriverFactory func(settings map[string]any, logger *slog.Logger) (Counter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// RegisterDriver makes a driver available by name. Drivers register
// themselves from init; import the loader package to get all of them.
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewFromConfig builds the named driver, passing it the matching
// sub-table of driverSettings.
func NewFromConfig(name string, driverSettings map[string]any, logger *slog.Logger) (Counter, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, name, Drivers())
	}
	return factory(cfg.SubMap(driverSettings, name), logger)
}

// DefaultTTL is used when a caller passes a zero TTL.
const DefaultTTL = 1 * time.Minute
