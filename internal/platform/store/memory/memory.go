// Package memory implements an in-process audit driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cfg"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store"
)

func init() {
	store.Register("memory", func(settings map[string]any) (store.Driver, error) {
		var s Settings
		if err := cfg.Decode(settings, &s); err != nil {
			return nil, err
		}
		return New(s.MaxEntries), nil
	})
}

// Settings is the [audit.drivers.memory] section.
type Settings struct {
	// MaxEntries bounds the ledger; the oldest entries are dropped first.
	MaxEntries int `mapstructure:"max_entries"`
}

// ApplyDefaults implements cfg.Setter.
func (s *Settings) ApplyDefaults() {
	if s.MaxEntries == 0 {
		s.MaxEntries = 10000
	}
}

// Driver keeps entries in a slice.
type Driver struct {
	mu      sync.RWMutex
	entries []store.Entry
	max     int
	closed  bool
}

// New creates a memory driver holding at most max entries (<= 0 is unbounded).
func New(max int) *Driver {
	return &Driver{max: max}
}

func (d *Driver) Name() string { return "memory" }

func (d *Driver) Init(context.Context) error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Record appends an entry.
func (d *Driver) Record(_ context.Context, e store.Entry) error {
	store.Stamp(&e, time.Now())

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}
	d.entries = append(d.entries, e)
	if d.max > 0 && len(d.entries) > d.max {
		d.entries = append([]store.Entry(nil), d.entries[len(d.entries)-d.max:]...)
	}
	return nil
}

// List returns entries for externalID in insertion order.
func (d *Driver) List(_ context.Context, externalID string) ([]store.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	out := make([]store.Entry, 0, len(d.entries))
	for _, e := range d.entries {
		if externalID == "" || e.ExternalID == externalID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ store.Driver = (*Driver)(nil)
