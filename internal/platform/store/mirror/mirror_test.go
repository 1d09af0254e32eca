package mirror_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store/mirror"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store/sqlite"
	"github.com/MahdiBaghbani/gatekeeper/internal/platform/store/testutil"
)

func newDriver(t *testing.T, settings map[string]any) store.Driver {
	t.Helper()
	d, err := store.New("mirror", map[string]any{"mirror": settings})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func readExport(t *testing.T, dir string) []store.Entry {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "mirror", mirror.ExportFile))
	if err != nil {
		t.Fatal(err)
	}
	var entries []store.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	return entries
}

func TestMirrorDriver(t *testing.T) {
	dir := t.TempDir()
	d := newDriver(t, map[string]any{"data_dir": dir})

	if d.Name() != "mirror" {
		t.Errorf("Name = %q", d.Name())
	}
	if got := readExport(t, dir); len(got) != 0 {
		t.Errorf("initial export has %d entries", len(got))
	}

	testutil.RunDriverTests(t, d)

	if _, err := os.Stat(filepath.Join(dir, sqlite.FileName)); os.IsNotExist(err) {
		t.Errorf("%s not created", sqlite.FileName)
	}
	stored, err := d.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got := readExport(t, dir); len(got) != len(stored) {
		t.Errorf("export has %d entries, database has %d", len(got), len(stored))
	}
}

func TestMirrorDriverExportKeepsNewest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := newDriver(t, map[string]any{"data_dir": dir, "max_export_entries": 2})

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"ev-1", "ev-2", "ev-3"} {
		e := store.Entry{EventID: id, ExternalID: "42", Outcome: store.OutcomeIneligible, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := d.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got := readExport(t, dir)
	if len(got) != 2 || got[0].EventID != "ev-2" || got[1].EventID != "ev-3" {
		t.Errorf("export = %+v, want ev-2 and ev-3", got)
	}
	stored, err := d.List(ctx, "")
	if err != nil || len(stored) != 3 {
		t.Errorf("database has %d entries, want 3 (%v)", len(stored), err)
	}
}

func TestMirrorDriverDetailRedaction(t *testing.T) {
	ctx := context.Background()
	entry := store.Entry{EventID: "ev-1", ExternalID: "42", Outcome: store.OutcomeFetchFailed, Detail: "status 500: internal"}

	t.Run("redacted by default", func(t *testing.T) {
		dir := t.TempDir()
		d := newDriver(t, map[string]any{"data_dir": dir})
		if err := d.Record(ctx, entry); err != nil {
			t.Fatal(err)
		}

		got := readExport(t, dir)
		if len(got) != 1 || got[0].Detail != "" {
			t.Errorf("export = %+v, want detail redacted", got)
		}
		stored, err := d.List(ctx, "42")
		if err != nil || len(stored) != 1 || stored[0].Detail != entry.Detail {
			t.Errorf("database lost detail: %+v, %v", stored, err)
		}
	})

	t.Run("included when allowed", func(t *testing.T) {
		dir := t.TempDir()
		d := newDriver(t, map[string]any{"data_dir": dir, "include_detail": true})
		if err := d.Record(ctx, entry); err != nil {
			t.Fatal(err)
		}

		got := readExport(t, dir)
		if len(got) != 1 || got[0].Detail != entry.Detail {
			t.Errorf("export = %+v, want detail kept", got)
		}
	})
}

func TestMirrorDriverRequiresDataDir(t *testing.T) {
	if _, err := store.New("mirror", nil); err == nil {
		t.Fatal("expected error without data_dir")
	}
}
