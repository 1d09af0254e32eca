// Package store provides the audit ledger of verification attempts and
// its driver abstraction. The ledger is informational: it never decides
// whether a participant is promoted.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed        = errors.New("store closed")
	ErrUnknownDriver = errors.New("unknown audit driver")
)

// Outcome labels one verification attempt.
type Outcome string

const (
	OutcomePromoted    Outcome = "promoted"
	OutcomePartial     Outcome = "partial"
	OutcomeIneligible  Outcome = "ineligible"
	OutcomeFetchFailed Outcome = "fetch_failed"
)

// Entry is one row of the audit ledger.
type Entry struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	EventID    string    `json:"event_id" gorm:"index"`
	ExternalID string    `json:"external_id" gorm:"index"`
	Status     string    `json:"status"`
	Outcome    Outcome   `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName keeps the sqlite table name stable across struct renames.
func (Entry) TableName() string { return "audit_entries" }

// Recorder appends and reads audit entries.
type Recorder interface {
	// Record appends an entry. Entries without an ID or CreatedAt get one.
	Record(ctx context.Context, e Entry) error

	// List returns entries for externalID, oldest first. An empty
	// externalID lists everything.
	List(ctx context.Context, externalID string) ([]Entry, error)
}

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	Recorder

	// Init initializes the driver (create tables, open files).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, sqlite).
	Name() string
}
