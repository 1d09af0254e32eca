package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cfg"
)

// DriverFactory builds a driver from its [audit.drivers.<name>] section.
type DriverFactory func(settings map[string]any) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a driver instance for name, handing it the matching
// sub-table of driverSettings. Init is left to the caller.
func New(name string, driverSettings map[string]any) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}

	return factory(cfg.SubMap(driverSettings, name))
}

// AvailableDrivers returns the sorted list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
