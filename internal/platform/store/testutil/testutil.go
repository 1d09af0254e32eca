// Package testutil provides shared test helpers for audit driver tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store"
)

// RunDriverTests runs the standard suite against an initialized driver.
func RunDriverTests(t *testing.T, driver store.Driver) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []store.Entry{
		{EventID: "ev-1", ExternalID: "42", Status: "CONFIRMED", Outcome: store.OutcomePromoted, CreatedAt: base},
		{EventID: "ev-2", ExternalID: "7", Status: "PENDING", Outcome: store.OutcomeIneligible, CreatedAt: base.Add(time.Second)},
		{EventID: "ev-3", ExternalID: "42", Outcome: store.OutcomeFetchFailed, Detail: "status 500", CreatedAt: base.Add(2 * time.Second)},
	}

	t.Run("Record", func(t *testing.T) {
		for _, e := range entries {
			if err := driver.Record(ctx, e); err != nil {
				t.Fatalf("Record(%s) failed: %v", e.EventID, err)
			}
		}
	})

	t.Run("ListByExternalID", func(t *testing.T) {
		got, err := driver.List(ctx, "42")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 entries for 42, got %d", len(got))
		}
		if got[0].EventID != "ev-1" || got[1].EventID != "ev-3" {
			t.Errorf("unexpected order: %s, %s", got[0].EventID, got[1].EventID)
		}
		if got[1].Detail != "status 500" {
			t.Errorf("detail = %q", got[1].Detail)
		}
		for _, e := range got {
			if e.ID == "" {
				t.Error("expected generated ID")
			}
		}
	})

	t.Run("ListAll", func(t *testing.T) {
		got, err := driver.List(ctx, "")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != len(entries) {
			t.Errorf("expected %d entries, got %d", len(entries), len(got))
		}
	})

	t.Run("ListUnknown", func(t *testing.T) {
		got, err := driver.List(ctx, "nobody")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no entries, got %d", len(got))
		}
	})

	t.Run("StampsMissingTime", func(t *testing.T) {
		if err := driver.Record(ctx, store.Entry{EventID: "ev-4", ExternalID: "99", Outcome: store.OutcomePartial}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		got, _ := driver.List(ctx, "99")
		if len(got) != 1 || got[0].CreatedAt.IsZero() {
			t.Errorf("expected stamped CreatedAt, got %+v", got)
		}
	})
}
