package integrity

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/shot-migrator/internal/migrate"
	"github.com/franz/shot-migrator/internal/project"
	"github.com/franz/shot-migrator/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, imaging.Save(imaging.New(4, 4, color.White), path))
}

// buildProject migrates a two-shot legacy database into a complete,
// valid project and returns its layout
func buildProject(t *testing.T) project.Layout {
	t.Helper()
	ctx := context.Background()
	tmp := t.TempDir()

	sourceDB := filepath.Join(tmp, "old", "data", "shots.db")
	src, err := store.OpenWithOptions(sourceDB, &store.OpenOptions{CreateDir: true})
	require.NoError(t, err)
	for _, stmt := range append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name, created_date) VALUES (1, 'A', '2024-01-01 09:00:00')`,
		`INSERT INTO shots (order_number, shot_name, created_date) VALUES (2, 'B', '2024-01-02 09:00:00')`,
		`INSERT INTO takes VALUES ('A', 'final_video', 'media/A/video_01.mp4', 0, '2024-01-01')`,
		`INSERT INTO assets VALUES ('asset_hero', 'hero', 'characters', 'media/characters/hero.png', 0, '2024-01-01')`,
	) {
		require.NoError(t, src.Exec(ctx, stmt), stmt)
	}
	require.NoError(t, src.Close())

	l := project.New(filepath.Join(tmp, "film"))
	fsys := afero.NewOsFs()
	require.NoError(t, l.CreateSkeleton(fsys))

	out, err := migrate.New(&migrate.Config{SourceDB: sourceDB, TargetDB: l.DatabasePath()}).Migrate(ctx)
	require.NoError(t, err)
	require.True(t, out.Success(), "errors: %v", out.Result.Errors)

	require.NoError(t, l.WriteConfig(fsys, project.DefaultConfig(time.Now())))
	require.NoError(t, l.WriteMappings(fsys, out.Mapping))

	writeFile(t, filepath.Join(l.MediaPath(), "1", "video_01.mp4"), "video")
	writePNG(t, filepath.Join(l.MediaPath(), "1", "video_01.png"))
	writePNG(t, filepath.Join(l.MediaPath(), "2", "image_01.png"))
	writePNG(t, filepath.Join(l.MediaPath(), "characters", "hero.png"))
	writePNG(t, filepath.Join(l.MediaPath(), "characters", "hero_thumbnail.png"))
	return l
}

func runValidator(t *testing.T, l project.Layout) *Report {
	t.Helper()
	return New(&Config{ProjectPath: l.Root}).Run(context.Background())
}

func anyContains(msgs []string, part string) bool {
	for _, m := range msgs {
		if strings.Contains(m, part) {
			return true
		}
	}
	return false
}

func TestRunValidProject(t *testing.T) {
	l := buildProject(t)
	rep := runValidator(t, l)

	for _, sec := range rep.Sections {
		assert.False(t, sec.Skipped, "section %s skipped", sec.Name)
		assert.Empty(t, sec.Errors, "section %s errors", sec.Name)
	}
	assert.True(t, rep.Summary.Passed)
	assert.Equal(t, 5, rep.Summary.SectionsPassed)
	assert.Equal(t, "film", rep.ProjectName)

	content := rep.Section(SectionContent)
	assert.True(t, anyContains(content.Info, "Found 2 shots"))
	assert.False(t, anyContains(rep.Section(SectionCross).Warnings, "Orphaned asset file"))
}

func TestRunMissingThumbnailFails(t *testing.T) {
	l := buildProject(t)
	require.NoError(t, os.Remove(filepath.Join(l.MediaPath(), "1", "video_01.png")))

	rep := runValidator(t, l)
	assert.False(t, rep.Summary.Passed)

	mediaSec := rep.Section(SectionMedia)
	require.NotNil(t, mediaSec)
	assert.True(t, anyContains(mediaSec.Errors, "Missing thumbnail for video_01.mp4 (Shot: A → Folder: 1)"))
}

func TestRunStructureFailureSkipsRest(t *testing.T) {
	l := buildProject(t)
	require.NoError(t, os.Remove(l.ConfigPath()))

	rep := runValidator(t, l)
	assert.False(t, rep.Summary.Passed)
	assert.Equal(t, 1, rep.Summary.SectionsFailed)
	assert.Equal(t, 4, rep.Summary.SectionsSkipped)
	assert.True(t, anyContains(rep.Section(SectionStructure).Errors, "Required file missing"))
}

func TestRunSchemaFailureSkipsContent(t *testing.T) {
	l := buildProject(t)
	st, err := store.OpenExisting(l.DatabasePath())
	require.NoError(t, err)
	require.NoError(t, st.Exec(context.Background(), "DROP INDEX idx_takes_shot_id"))
	require.NoError(t, st.Close())

	rep := runValidator(t, l)
	schemaSec := rep.Section(SectionSchema)
	assert.True(t, anyContains(schemaSec.Errors, "idx_takes_shot_id"))
	for _, name := range []string{SectionContent, SectionMedia, SectionCross} {
		assert.True(t, rep.Section(name).Skipped, "%s should be skipped", name)
	}
}

func TestRunCrossChecks(t *testing.T) {
	l := buildProject(t)
	require.NoError(t, os.Remove(filepath.Join(l.MediaPath(), "1", "video_01.mp4")))
	writePNG(t, filepath.Join(l.MediaPath(), "locations", "street.png"))
	writeFile(t, filepath.Join(l.MediaPath(), "9", "image_01.png"), "")

	rep := runValidator(t, l)
	cross := rep.Section(SectionCross)

	assert.True(t, anyContains(cross.Errors, "Take file not found: media/1/video_01.mp4"))
	assert.True(t, anyContains(cross.Warnings, "Orphaned asset file (not in assets table)"))
	assert.True(t, anyContains(cross.Warnings, "Media folders without corresponding shots: 9"))

	mediaSec := rep.Section(SectionMedia)
	assert.True(t, anyContains(mediaSec.Warnings, "Media folder 9 does not correspond to any shot_id"))
	assert.True(t, anyContains(mediaSec.Warnings, "Orphaned thumbnail (no video): video_01.png"))
}

func TestRunUndecodableThumbnailWarns(t *testing.T) {
	l := buildProject(t)
	writeFile(t, filepath.Join(l.MediaPath(), "1", "video_01.png"), "not an image")

	rep := runValidator(t, l)
	assert.True(t, rep.Summary.Passed)
	assert.True(t, anyContains(rep.Section(SectionMedia).Warnings, "Thumbnail is not a readable image"))
}

func TestRunContentWarnings(t *testing.T) {
	l := buildProject(t)
	st, err := store.OpenExisting(l.DatabasePath())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Exec(ctx, "UPDATE meta SET value = '0.9' WHERE key = 'app_version'"))
	require.NoError(t, st.Exec(ctx, "UPDATE shots SET created_date = '2024-01-01 09:00:00'"))
	require.NoError(t, st.Exec(ctx, "INSERT INTO assets (id_key, file_path) VALUES ('legacy1', 'media/characters/hero_thumbnail.png')"))
	require.NoError(t, st.Close())

	rep := runValidator(t, l)
	content := rep.Section(SectionContent)
	assert.True(t, anyContains(content.Warnings, "Unexpected app_version"))
	assert.True(t, anyContains(content.Warnings, "Non-UTC date format found"))
	assert.True(t, anyContains(content.Warnings, "non-standard ID format"))
	assert.True(t, rep.Summary.Passed)
}

func TestWriteMarkdown(t *testing.T) {
	l := buildProject(t)
	rep := runValidator(t, l)

	fsys := afero.NewMemMapFs()
	path, err := WriteMarkdown(fsys, "/reports", rep)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "integrity_report_film_"))

	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	md := string(data)
	assert.Contains(t, md, "PROJECT INTEGRITY TEST PASSED")
	assert.Contains(t, md, "### 5. Cross-Consistency")
}

func TestReportFileName(t *testing.T) {
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	assert.Equal(t, "integrity_report_film_20250203_040506.md", ReportFileName("film", at))
}
