// Package sqlite implements a SQLite-based audit driver using GORM.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/cfg"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store"
)

// FileName is the database file created inside data_dir.
const FileName = "gatekeeper.db"

func init() {
	store.Register("sqlite", NewDriver)
}

// Settings is the [audit.drivers.sqlite] section.
type Settings struct {
	DataDir string `mapstructure:"data_dir"`
}

// Validate implements cfg.Validator.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		return fmt.Errorf("data_dir is required for sqlite driver")
	}
	return nil
}

// Driver implements store.Driver using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(settings map[string]any) (store.Driver, error) {
	var s Settings
	if err := cfg.Decode(settings, &s); err != nil {
		return nil, err
	}
	return New(s.DataDir), nil
}

// New returns a driver that keeps its database in dataDir.
func New(dataDir string) *Driver {
	return &Driver{dataDir: dataDir}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0o750); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(d.dataDir, FileName)

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.WithContext(ctx).AutoMigrate(&store.Entry{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record inserts an entry.
func (d *Driver) Record(ctx context.Context, e store.Entry) error {
	if d.db == nil {
		return store.ErrClosed
	}
	store.Stamp(&e, time.Now())
	return d.db.WithContext(ctx).Create(&e).Error
}

// List returns entries for externalID, oldest first.
func (d *Driver) List(ctx context.Context, externalID string) ([]store.Entry, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}
	var entries []store.Entry
	query := d.db.WithContext(ctx).Order("created_at ASC")
	if externalID != "" {
		query = query.Where("external_id = ?", externalID)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Latest returns the newest n entries, oldest first.
func (d *Driver) Latest(ctx context.Context, n int) ([]store.Entry, error) {
	if d.db == nil {
		return nil, store.ErrClosed
	}
	var entries []store.Entry
	if err := d.db.WithContext(ctx).Order("created_at DESC").Limit(n).Find(&entries).Error; err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// Compile-time interface check
var _ store.Driver = (*Driver)(nil)
