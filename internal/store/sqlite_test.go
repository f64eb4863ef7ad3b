package store

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore creates an in-memory SQLite store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(runID string, start time.Time) *PackageRun {
	return &PackageRun{
		RunID:        runID,
		SourceRoot:   "/src/kuzu",
		Revision:     "HEAD",
		Backend:      "git",
		ArtifactPath: "/src/kuzu/tools/nodejs_api/kuzu-source.tar.gz",
		Status:       RunStatusRunning,
		StartTime:    start,
	}
}

// ============================================================================
// Store Lifecycle Tests
// ============================================================================

func TestNew(t *testing.T) {
	store := newTestStore(t)

	if store.db == nil {
		t.Error("Expected db to be initialized")
	}
	if store.logger == nil {
		t.Error("Expected logger to be initialized")
	}
}

func TestMigrateSingleSchemaVersion(t *testing.T) {
	store := newTestStore(t)

	var count, version int
	if err := store.db.QueryRow("SELECT COUNT(*), MAX(version) FROM migrations").Scan(&count, &version); err != nil {
		t.Fatalf("querying migrations: %v", err)
	}
	if count != 1 || version != 1 {
		t.Errorf("migrations = %d (max version %d), want a single version 1", count, version)
	}

	for _, col := range []string{"commit_id", "entry_count"} {
		var n int
		if err := store.db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('package_runs') WHERE name = ?", col).Scan(&n); err != nil {
			t.Fatalf("inspecting package_runs: %v", err)
		}
		if n != 1 {
			t.Errorf("package_runs is missing column %s", col)
		}
	}
}

func TestNewCreatesDatabaseDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := New(dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New(%q) failed: %v", dbPath, err)
	}
	defer store.Close()

	if err := store.CreateRun(newRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	first, err := New(dbPath, logger)
	if err != nil {
		t.Fatalf("first New() failed: %v", err)
	}
	if err := first.CreateRun(newRun("run-1", time.Now())); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	first.Close()

	second, err := New(dbPath, logger)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer second.Close()

	if _, err := second.GetRun("run-1"); err != nil {
		t.Fatalf("run lost across reopen: %v", err)
	}
}

// ============================================================================
// PackageRun Tests
// ============================================================================

func TestCreateAndGetRun(t *testing.T) {
	store := newTestStore(t)

	run := newRun("0b8f3c1e", time.Date(2026, 2, 19, 14, 30, 0, 0, time.UTC))
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	if run.ID == 0 {
		t.Error("Expected ID to be set after CreateRun")
	}

	got, err := store.GetRun("0b8f3c1e")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("ID = %d, want %d", got.ID, run.ID)
	}
	if got.Status != RunStatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, RunStatusRunning)
	}
	if got.SourceRoot != "/src/kuzu" {
		t.Errorf("SourceRoot = %q, want %q", got.SourceRoot, "/src/kuzu")
	}
	if !got.StartTime.Equal(run.StartTime) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, run.StartTime)
	}
}

func TestCreateRunDuplicateRunID(t *testing.T) {
	store := newTestStore(t)

	if err := store.CreateRun(newRun("dup", time.Now())); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
	if err := store.CreateRun(newRun("dup", time.Now())); err == nil {
		t.Fatal("expected unique constraint violation for duplicate run_id")
	}
}

func TestUpdateRun(t *testing.T) {
	store := newTestStore(t)

	run := newRun("run-1", time.Now().Add(-time.Minute))
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}

	run.Status = RunStatusCompleted
	run.Commit = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
	run.Version = "0.4.2"
	run.VersionFound = true
	run.ArtifactSHA256 = "abc123"
	run.ArtifactSize = 4096
	run.EntryCount = 17
	run.EndTime = time.Now()
	if err := store.UpdateRun(run); err != nil {
		t.Fatalf("UpdateRun() failed: %v", err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, RunStatusCompleted)
	}
	if got.Commit != run.Commit {
		t.Errorf("Commit = %q, want %q", got.Commit, run.Commit)
	}
	if got.Version != "0.4.2" || !got.VersionFound {
		t.Errorf("Version = %q found=%v, want 0.4.2 found=true", got.Version, got.VersionFound)
	}
	if got.ArtifactSize != 4096 {
		t.Errorf("ArtifactSize = %d, want 4096", got.ArtifactSize)
	}
	if got.EntryCount != 17 {
		t.Errorf("EntryCount = %d, want 17", got.EntryCount)
	}
}

func TestUpdateRunNotFound(t *testing.T) {
	store := newTestStore(t)

	run := newRun("ghost", time.Now())
	run.ID = 999
	err := store.UpdateRun(run)
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("UpdateRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun("missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.CreateRun(newRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", id, err)
		}
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[0].RunID != "c" || runs[2].RunID != "a" {
		t.Errorf("runs not newest first: %s, %s, %s", runs[0].RunID, runs[1].RunID, runs[2].RunID)
	}

	limited, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}

func TestLastCompletedRun(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.LastCompletedRun(); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("LastCompletedRun() on empty store error = %v, want ErrRunNotFound", err)
	}

	done := newRun("done", base)
	done.Status = RunStatusCompleted
	failed := newRun("failed", base.Add(time.Hour))
	failed.Status = RunStatusFailed
	failed.ErrorMessage = "exporting snapshot: not a git repository"

	for _, r := range []*PackageRun{done, failed} {
		if err := store.CreateRun(r); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", r.RunID, err)
		}
	}

	got, err := store.LastCompletedRun()
	if err != nil {
		t.Fatalf("LastCompletedRun() failed: %v", err)
	}
	if got.RunID != "done" {
		t.Errorf("LastCompletedRun().RunID = %q, want %q", got.RunID, "done")
	}
}
