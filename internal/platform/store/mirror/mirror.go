// Package mirror implements a SQLite + JSON mirror audit driver.
// SQLite is the source of truth; JSON is a one-way export for organizers
// who want to read the ledger without a database client.
// The program MUST NOT read JSON as input.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cfg"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store/sqlite"
)

// ExportFile is the ledger export written inside data_dir/mirror.
const ExportFile = "audit.json"

// DefaultMaxExportEntries bounds the export when max_export_entries is unset.
const DefaultMaxExportEntries = 1000

func init() {
	store.Register("mirror", NewDriver)
}

// Settings is the [audit.drivers.mirror] section.
type Settings struct {
	DataDir string `mapstructure:"data_dir"`

	// IncludeDetail keeps the free-form detail column in the export.
	// It can carry registry response bodies, so it is off by default.
	IncludeDetail bool `mapstructure:"include_detail"`

	// MaxExportEntries keeps only the newest entries in the export. The
	// database keeps everything.
	MaxExportEntries int `mapstructure:"max_export_entries"`
}

// ApplyDefaults implements cfg.Setter.
func (s *Settings) ApplyDefaults() {
	if s.MaxExportEntries <= 0 {
		s.MaxExportEntries = DefaultMaxExportEntries
	}
}

// Validate implements cfg.Validator.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		return fmt.Errorf("data_dir is required for mirror driver")
	}
	return nil
}

// Driver implements store.Driver with SQLite + JSON mirror.
type Driver struct {
	*sqlite.Driver

	dataDir       string
	includeDetail bool
	maxExport     int
	mu            sync.Mutex // protects JSON export operations
}

// NewDriver creates a new mirror driver instance.
func NewDriver(settings map[string]any) (store.Driver, error) {
	var s Settings
	if err := cfg.Decode(settings, &s); err != nil {
		return nil, err
	}
	return &Driver{
		Driver:        sqlite.New(s.DataDir),
		dataDir:       s.DataDir,
		includeDetail: s.IncludeDetail,
		maxExport:     s.MaxExportEntries,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "mirror"
}

// Init initializes the SQLite database and exports initial state to JSON.
func (d *Driver) Init(ctx context.Context) error {
	if err := d.Driver.Init(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(d.mirrorDir(), 0o700); err != nil {
		return fmt.Errorf("failed to create mirror dir: %w", err)
	}
	if err := d.export(ctx); err != nil {
		return fmt.Errorf("failed to export mirror: %w", err)
	}
	return nil
}

// Record inserts into SQLite and rewrites the export. Each call reads at
// most maxExport rows.
func (d *Driver) Record(ctx context.Context, e store.Entry) error {
	if err := d.Driver.Record(ctx, e); err != nil {
		return err
	}
	return d.export(ctx)
}

func (d *Driver) mirrorDir() string {
	return filepath.Join(d.dataDir, "mirror")
}

// export writes the newest entries with detail redacted unless allowed.
func (d *Driver) export(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.Driver.Latest(ctx, d.maxExport)
	if err != nil {
		return err
	}
	if !d.includeDetail {
		for i := range entries {
			entries[i].Detail = ""
		}
	}
	return d.writeJSON(ExportFile, entries)
}

// writeJSON atomically writes data to a JSON file in the mirror directory.
func (d *Driver) writeJSON(filename string, data any) error {
	path := filepath.Join(d.mirrorDir(), filename)
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

var _ store.Driver = (*Driver)(nil)
