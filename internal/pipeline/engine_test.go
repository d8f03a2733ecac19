package pipeline

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/shot-migrator/internal/project"
	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/store"
)

var fixedNow = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, imaging.Save(imaging.New(2, 2, color.Black), path))
}

// legacyProject creates a legacy project with shots A and B under dir
func legacyProject(t *testing.T, dir string) project.Layout {
	t.Helper()
	l := project.New(dir)

	st, err := store.OpenWithOptions(l.DatabasePath(), &store.OpenOptions{CreateDir: true})
	require.NoError(t, err)
	ctx := context.Background()
	for _, stmt := range append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name, created_date) VALUES (1, 'A', '2024-01-01 09:00:00')`,
		`INSERT INTO shots (order_number, shot_name, created_date) VALUES (2, 'B', '2024-01-02 09:00:00')`,
		`INSERT INTO takes VALUES ('A', 'final_video', 'C:\Users\me\project\media\A\video_01.mp4', 0, '2024-01-01')`,
		`INSERT INTO takes VALUES ('B', 'base_image', 'media/B/image_01.png', 1, '2024-01-02')`,
		`INSERT INTO assets VALUES ('asset_hero', 'hero', 'characters', 'media/characters/hero.png', 0, '2024-01-01')`,
	) {
		require.NoError(t, st.Exec(ctx, stmt), stmt)
	}
	require.NoError(t, st.Close())

	writeFile(t, filepath.Join(l.MediaPath(), "A", "video_01.mp4"), "video bytes")
	writePNG(t, filepath.Join(l.MediaPath(), "A", "video_01.png"))
	writePNG(t, filepath.Join(l.MediaPath(), "B", "image_01.png"))
	writePNG(t, filepath.Join(l.MediaPath(), "characters", "hero.png"))
	require.NoError(t, os.MkdirAll(filepath.Join(l.MediaPath(), "locations"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(l.MediaPath(), "other"), 0755))
	return l
}

func newEngine(source, target string) *Engine {
	return New(&Config{
		SourcePath: source,
		TargetPath: target,
		Remediate:  true,
		Now:        fixedNow,
	})
}

func phaseStatuses(r *report.MigrationReport) map[string]string {
	out := make(map[string]string)
	for _, p := range r.Phases {
		out[p.Name] = p.Status
	}
	return out
}

func TestRunMigratesProject(t *testing.T) {
	tmp := t.TempDir()
	src := legacyProject(t, filepath.Join(tmp, "old"))
	dst := project.New(filepath.Join(tmp, "new"))

	out, err := newEngine(src.Root, dst.Root).Run(context.Background())
	require.NoError(t, err)
	require.True(t, out.Success(), "errors: %v", out.Report.Errors)

	assert.Equal(t, map[string]string{
		PhasePreparation: report.StatusSuccess,
		PhaseDatabase:    report.StatusSuccess,
		PhaseMedia:       report.StatusSuccess,
		PhaseValidation:  report.StatusSuccess,
		PhaseReporting:   report.StatusSuccess,
	}, phaseStatuses(out.Report))

	for _, p := range []string{
		filepath.Join(dst.MediaPath(), "1", "video_01.mp4"),
		filepath.Join(dst.MediaPath(), "1", "video_01.png"),
		filepath.Join(dst.MediaPath(), "2", "image_01.png"),
		filepath.Join(dst.MediaPath(), "characters", "hero.png"),
		dst.ConfigPath(),
		filepath.Join(dst.ReportsPath(), report.UserReportFile),
		filepath.Join(dst.ReportsPath(), report.DeveloperReportFile),
		filepath.Join(dst.ReportsPath(), report.JSONReportFile),
	} {
		_, err := os.Stat(p)
		assert.NoError(t, err, "missing %s", p)
	}
	for _, p := range dst.MappingPaths() {
		_, err := os.Stat(p)
		assert.NoError(t, err, "missing %s", p)
	}

	stats := out.Report.Stats
	assert.Equal(t, 2, stats.Shots)
	assert.Equal(t, 2, stats.Takes)
	assert.Equal(t, 1, stats.WorkflowTakes)
	assert.Equal(t, 2, stats.ShotFolders)
	assert.Equal(t, 4, stats.SourceFiles)

	require.NotNil(t, out.Integrity)
	assert.True(t, out.Integrity.Summary.Passed)
	assert.True(t, strings.HasPrefix(filepath.Base(out.Report.IntegrityReportPath), "integrity_report_new_"))

	st, err := store.OpenExisting(dst.DatabasePath())
	require.NoError(t, err)
	defer st.Close()
	takes, err := st.ListTakes(context.Background())
	require.NoError(t, err)
	var paths []string
	for _, tk := range takes {
		paths = append(paths, tk.FilePath)
	}
	assert.ElementsMatch(t, []string{"media/1/video_01.mp4", "media/2/image_01.png", "media/1/video_01.png"}, paths)
}

func TestRunCopiesSourceConfig(t *testing.T) {
	tmp := t.TempDir()
	src := legacyProject(t, filepath.Join(tmp, "old"))
	writeFile(t, src.ConfigPath(), `{"last_selected_workflow":"wf","project_start_date":"2023-01-01","last_selected_section":"Act 2"}`)
	dst := project.New(filepath.Join(tmp, "new"))

	_, err := newEngine(src.Root, dst.Root).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(dst.ConfigPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "Act 2")
}

func TestRunMissingSourceStillReports(t *testing.T) {
	tmp := t.TempDir()
	dst := project.New(filepath.Join(tmp, "new"))

	out, err := newEngine(filepath.Join(tmp, "absent"), dst.Root).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Success())

	statuses := phaseStatuses(out.Report)
	assert.Equal(t, report.StatusFailed, statuses[PhasePreparation])
	assert.Equal(t, report.StatusSkipped, statuses[PhaseDatabase])
	assert.Equal(t, report.StatusSkipped, statuses[PhaseValidation])
	assert.True(t, strings.Contains(out.Report.Errors[0], "source database missing"))

	data, err := os.ReadFile(filepath.Join(dst.ReportsPath(), report.UserReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "- Migration Status: FAILED")
}

func TestRunRefusesExistingTarget(t *testing.T) {
	tmp := t.TempDir()
	src := legacyProject(t, filepath.Join(tmp, "old"))
	dst := project.New(filepath.Join(tmp, "new"))
	writeFile(t, dst.DatabasePath(), "")

	out, err := newEngine(src.Root, dst.Root).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, phaseStatuses(out.Report)[PhasePreparation])
	assert.Contains(t, out.Report.Errors[0], "already exists")
}

func TestRunMissingThumbnailFailsMedia(t *testing.T) {
	tmp := t.TempDir()
	src := legacyProject(t, filepath.Join(tmp, "old"))
	require.NoError(t, os.Remove(filepath.Join(src.MediaPath(), "A", "video_01.png")))
	dst := project.New(filepath.Join(tmp, "new"))

	out, err := newEngine(src.Root, dst.Root).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Success())

	statuses := phaseStatuses(out.Report)
	assert.Equal(t, report.StatusSuccess, statuses[PhaseDatabase])
	assert.Equal(t, report.StatusFailed, statuses[PhaseMedia])
	assert.Equal(t, report.StatusSkipped, statuses[PhaseValidation])
	assert.Equal(t, report.StatusSuccess, statuses[PhaseReporting])
	assert.Nil(t, out.Integrity)

	found := false
	for _, e := range out.Report.Errors {
		if strings.Contains(e, "Missing thumbnail for video_01.mp4 (Shot: A → Folder: 1)") {
			found = true
		}
	}
	assert.True(t, found, "errors: %v", out.Report.Errors)
}

func TestRunBackup(t *testing.T) {
	tmp := t.TempDir()
	src := legacyProject(t, filepath.Join(tmp, "old"))
	dst := project.New(filepath.Join(tmp, "new"))

	e := newEngine(src.Root, dst.Root)
	e.cfg.Backup = true
	out, err := e.Run(context.Background())
	require.NoError(t, err)
	require.True(t, out.Success(), "errors: %v", out.Report.Errors)

	backup := BackupPath(src.Root, fixedNow())
	assert.Equal(t, backup, out.Report.BackupPath)
	for _, rel := range []string{"data/shots.db", "media/A/video_01.mp4", "media/characters/hero.png"} {
		_, err := os.Stat(filepath.Join(backup, filepath.FromSlash(rel)))
		assert.NoError(t, err, "backup missing %s", rel)
	}
}

func TestRunCancelled(t *testing.T) {
	tmp := t.TempDir()
	src := legacyProject(t, filepath.Join(tmp, "old"))
	dst := project.New(filepath.Join(tmp, "new"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := newEngine(src.Root, dst.Root).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, out.Success())
	assert.Equal(t, report.StatusSkipped, phaseStatuses(out.Report)[PhaseValidation])
}

func TestBackupPath(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, filepath.Clean("/p/old")+"_backup_20250102_030405", BackupPath("/p/old/", at))
}
