package store

import (
	"time"

	"github.com/google/uuid"
)

// Stamp fills in the ID and CreatedAt of e when they are unset.
func Stamp(e *Entry, now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
}
