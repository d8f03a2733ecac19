package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/shot-migrator/internal/project"
	"github.com/franz/shot-migrator/internal/store"
)

func TestCheckSQLite(t *testing.T) {
	result := checkSQLite()

	if result.error {
		t.Errorf("SQLite check failed: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected version information in message")
	}
}

func TestCheckCatalog_Embedded(t *testing.T) {
	result := checkCatalog("")

	if result.error {
		t.Errorf("embedded catalog check failed: %s", result.message)
	}
	if !strings.HasPrefix(result.message, "embedded") {
		t.Errorf("expected embedded catalog, got %q", result.message)
	}
}

func TestCheckCatalog_Missing(t *testing.T) {
	result := checkCatalog(filepath.Join(t.TempDir(), "absent.json"))

	if !result.error {
		t.Error("missing catalog file should error")
	}
}

func TestCheckMetaEntries_Embedded(t *testing.T) {
	result := checkMetaEntries("")

	if result.error {
		t.Errorf("embedded meta entries check failed: %s", result.message)
	}
	if !strings.Contains(result.message, "4 keys") {
		t.Errorf("expected 4 embedded keys, got %q", result.message)
	}
}

func TestCheckSourceDatabase_Missing(t *testing.T) {
	result := checkSourceDatabase(context.Background(), filepath.Join(t.TempDir(), "shots.db"))

	if !result.error {
		t.Error("missing source database should error")
	}
	if !strings.Contains(result.message, "source database missing") {
		t.Errorf("unexpected message: %s", result.message)
	}
}

func TestCheckSourceDatabase_Existing(t *testing.T) {
	ctx := context.Background()
	dbPath := project.New(t.TempDir()).DatabasePath()

	db, err := store.OpenWithOptions(dbPath, &store.OpenOptions{CreateDir: true})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	for _, stmt := range append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'A')`,
		`INSERT INTO shots (order_number, shot_name) VALUES (2, 'B')`,
	) {
		if err := db.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to seed database: %v", err)
		}
	}
	db.Close()

	result := checkSourceDatabase(ctx, dbPath)

	if result.error {
		t.Errorf("existing database check failed: %s", result.message)
	}
	if !strings.Contains(result.message, "2 shots") {
		t.Errorf("expected shot count in message, got %q", result.message)
	}
}

func TestCheckSourceDatabase_NoShotsTable(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shots.db")

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := db.Exec(ctx, "CREATE TABLE other (id INTEGER)"); err != nil {
		t.Fatalf("failed to seed database: %v", err)
	}
	db.Close()

	result := checkSourceDatabase(ctx, dbPath)
	if !result.error {
		t.Error("database without shots table should error")
	}
}

func TestCheckSourceMedia(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	result := checkSourceMedia(ctx, filepath.Join(tmpDir, "media"))
	if !result.warning || result.error {
		t.Errorf("missing media should warn, got %+v", result)
	}

	os.MkdirAll(filepath.Join(tmpDir, "media", "A"), 0755)
	os.MkdirAll(filepath.Join(tmpDir, "media", "B"), 0755)
	os.WriteFile(filepath.Join(tmpDir, "media", "A", "video_01.mp4"), []byte("video"), 0644)
	result = checkSourceMedia(ctx, filepath.Join(tmpDir, "media"))
	if result.error || result.warning {
		t.Errorf("media check failed: %s", result.message)
	}
	if !strings.Contains(result.message, "1 media files in 2 folders") {
		t.Errorf("expected inventory summary, got %q", result.message)
	}

	os.WriteFile(filepath.Join(tmpDir, "media", "B", "image_01.png"), nil, 0644)
	result = checkSourceMedia(ctx, filepath.Join(tmpDir, "media"))
	if !result.warning {
		t.Errorf("zero-size file should warn, got %+v", result)
	}
}

func TestCheckTarget_NonExistent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "new")

	result := checkTarget(target)

	if result.error {
		t.Errorf("non-existent target should not error: %s", result.message)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("doctor must not create the target")
	}
}

func TestCheckTarget_Writable(t *testing.T) {
	tmpDir := t.TempDir()

	result := checkTarget(tmpDir)

	if result.error {
		t.Errorf("writable target check failed: %s", result.message)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".shotmig_write_test")); !os.IsNotExist(err) {
		t.Error("write test file was not removed")
	}
}

func TestCheckTarget_ExistingDatabase(t *testing.T) {
	layout := project.New(t.TempDir())
	os.MkdirAll(layout.DataPath(), 0755)
	os.WriteFile(layout.DatabasePath(), nil, 0644)

	result := checkTarget(layout.Root)

	if !result.error {
		t.Error("target with an existing database should error")
	}
}

func TestCheckTarget_NotDirectory(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "file.txt")
	os.WriteFile(tmpFile, []byte("test"), 0644)

	result := checkTarget(tmpFile)

	if !result.error {
		t.Error("file target should error")
	}
}

func TestExistingParent(t *testing.T) {
	tmpDir := t.TempDir()

	if got := existingParent(filepath.Join(tmpDir, "a", "b")); got != tmpDir {
		t.Errorf("existingParent = %q, want %q", got, tmpDir)
	}
	if got := existingParent(tmpDir); got != tmpDir {
		t.Errorf("existingParent = %q, want %q", got, tmpDir)
	}
}

func TestCheckDiskSpace(t *testing.T) {
	result := checkDiskSpace(t.TempDir(), "test")

	if result.error {
		t.Errorf("disk space check should not error: %s", result.message)
	}
	if !strings.Contains(result.name, "test") {
		t.Errorf("expected label in name, got %q", result.name)
	}
}

func TestCheckDiskSpace_NonExistent(t *testing.T) {
	result := checkDiskSpace("/nonexistent/path/that/does/not/exist", "test")

	if !result.warning {
		t.Error("expected warning for non-existent path")
	}
}

func TestPrintResults(t *testing.T) {
	hasErrors, hasWarnings := printResults([]checkResult{
		{name: "ok"},
		{name: "warn", warning: true},
	})
	if hasErrors || !hasWarnings {
		t.Errorf("printResults = (%v, %v), want (false, true)", hasErrors, hasWarnings)
	}
}
