package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/schema"
	"github.com/franz/shot-migrator/internal/store"
	"github.com/franz/shot-migrator/internal/util"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newSource creates a legacy database from the given statements
func newSource(t *testing.T, stmts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source", "shots.db")
	st, err := store.OpenWithOptions(path, &store.OpenOptions{CreateDir: true})
	require.NoError(t, err)
	defer st.Close()

	for _, stmt := range stmts {
		require.NoError(t, st.Exec(context.Background(), stmt), stmt)
	}
	return path
}

func newTransformer(t *testing.T, source string, meta *schema.MetaCatalog) (*Transformer, string) {
	t.Helper()
	target := filepath.Join(t.TempDir(), "target", "data", "shots.db")
	return New(&Config{
		SourceDB:    source,
		TargetDB:    target,
		MetaCatalog: meta,
		Now:         func() time.Time { return fixedNow },
	}), target
}

// customCatalog parses the embedded catalog after edit has changed it
func customCatalog(t *testing.T, edit func(tables, indexes map[string]any)) *schema.Catalog {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(schema.DefaultDocument(), &doc))
	edit(doc["tables"].(map[string]any), doc["indexes"].(map[string]any))
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	c, err := schema.Parse(data)
	require.NoError(t, err)
	return c
}

func openTarget(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.OpenExisting(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestMigrateTwoShotsOneTake(t *testing.T) {
	ctx := context.Background()
	source := newSource(t,
		`CREATE TABLE shots (order_number INTEGER, shot_name TEXT PRIMARY KEY, created_date TEXT)`,
		`CREATE TABLE takes (shot_name TEXT, take_type TEXT, file_path TEXT, starred INTEGER, created_date TEXT)`,
		`INSERT INTO shots VALUES (2, 'B', '2024-01-02 10:00:00')`,
		`INSERT INTO shots VALUES (1, 'A', '2024-01-01 09:00:00')`,
		`INSERT INTO takes VALUES ('A', 'final_video', 'C:\proj\media\A\video_01.mp4', 1, '2024-01-01')`,
	)

	tr, target := newTransformer(t, source, nil)
	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, out.Success(), "errors: %v", out.Result.Errors)

	idA, ok := out.Mapping.Lookup("A")
	require.True(t, ok)
	idB, ok := out.Mapping.Lookup("B")
	require.True(t, ok)
	assert.Equal(t, int64(1), idA)
	assert.Equal(t, int64(2), idB)

	st := openTarget(t, target)
	takes, err := st.ListTakes(ctx)
	require.NoError(t, err)
	require.Len(t, takes, 1)
	assert.Equal(t, int64(1), takes[0].ShotID)
	assert.Equal(t, "media/1/video_01.mp4", takes[0].FilePath)
	assert.Equal(t, int64(1), takes[0].Starred)
	assert.Equal(t, "2024-01-01T00:00:00Z", takes[0].CreatedDate)
	_, err = uuid.Parse(takes[0].ID)
	assert.NoError(t, err, "take id must be a UUID")

	shots, err := st.ListShots(ctx)
	require.NoError(t, err)
	require.Len(t, shots, 2)
	assert.Equal(t, "A", shots[0].Name)
	assert.Equal(t, "2024-01-01T09:00:00Z", shots[0].CreatedDate)
}

func TestMigrateMappingIsBijective(t *testing.T) {
	stmts := []string{
		`CREATE TABLE shots (order_number INTEGER, shot_name TEXT PRIMARY KEY, created_date TEXT)`,
		`CREATE TABLE takes (shot_name TEXT, take_type TEXT, file_path TEXT, starred INTEGER, created_date TEXT)`,
	}
	for i := 0; i < 120; i++ {
		stmts = append(stmts, "INSERT INTO shots VALUES ("+strconv.Itoa(i%7)+", 'shot_"+strconv.Itoa(i)+"', NULL)")
	}
	tr, _ := newTransformer(t, newSource(t, stmts...), nil)

	out, err := tr.Migrate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 120, out.Mapping.Len())

	seen := make(map[int64]string)
	for _, e := range out.Mapping.Entries() {
		assert.Positive(t, e.ID)
		prev, dup := seen[e.ID]
		assert.False(t, dup, "id %d used by %s and %s", e.ID, prev, e.Name)
		seen[e.ID] = e.Name
	}

	// equal order numbers keep source row order
	for i := 0; i+7 < 120; i++ {
		id, _ := out.Mapping.Lookup("shot_" + strconv.Itoa(i))
		next, _ := out.Mapping.Lookup("shot_" + strconv.Itoa(i+7))
		assert.Less(t, id, next, "shot_%d before shot_%d", i, i+7)
	}
}

func TestMigrateTiedOrderKeepsRowidOrder(t *testing.T) {
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'C')`,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'A')`,
		`INSERT INTO shots (order_number, shot_name) VALUES (0, 'B')`,
	)...)
	tr, _ := newTransformer(t, source, nil)

	out, err := tr.Migrate(context.Background())
	require.NoError(t, err)

	var got []string
	for _, e := range out.Mapping.Entries() {
		got = append(got, e.Name+":"+strconv.FormatInt(e.ID, 10))
	}
	assert.ElementsMatch(t, []string{"B:1", "C:2", "A:3"}, got)
}

func TestMigrateShotRowFailureContinues(t *testing.T) {
	ctx := context.Background()
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'A')`,
		`INSERT INTO shots (order_number, shot_name) VALUES (2, 'B')`,
		`INSERT INTO shots (order_number, shot_name) VALUES (3, 'C')`,
	)...)
	catalog := customCatalog(t, func(tables, _ map[string]any) {
		ddl := tables["shots"].(string)
		tables["shots"] = strings.Replace(ddl, "shot_name TEXT,", "shot_name TEXT CHECK (shot_name <> 'B'),", 1)
	})
	target := filepath.Join(t.TempDir(), "target", "data", "shots.db")
	tr := New(&Config{SourceDB: source, TargetDB: target, Catalog: catalog, Now: func() time.Time { return fixedNow }})

	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	require.Len(t, out.Result.Errors, 1)
	assert.True(t, strings.HasPrefix(out.Result.Errors[0], "Failed to migrate shot B: "), out.Result.Errors[0])
	assert.Contains(t, out.Result.Errors[0], "CHECK constraint failed")
	assert.Equal(t, 2, out.Counts.Shots)
	assert.False(t, out.ShotsRolledBack)

	idA, _ := out.Mapping.Lookup("A")
	idC, _ := out.Mapping.Lookup("C")
	assert.Equal(t, int64(1), idA)
	assert.Equal(t, int64(2), idC)
	_, mapped := out.Mapping.Lookup("B")
	assert.False(t, mapped)

	shots, err := openTarget(t, target).ListShots(ctx)
	require.NoError(t, err)
	assert.Len(t, shots, 2)
}

func TestMigrateCancelledDuringShotsDiscardsMapping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'A')`,
		`INSERT INTO shots (order_number, shot_name) VALUES (2, 'B')`,
		`INSERT INTO shots (order_number, shot_name) VALUES (3, 'C')`,
	)...)
	tr, target := newTransformer(t, source, nil)
	tr.afterShot = func(string) { cancel() }

	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, out.Success())
	assert.True(t, out.ShotsRolledBack)
	assert.Equal(t, 0, out.Mapping.Len())
	assert.Equal(t, 0, out.Counts.Shots)

	var sawShots bool
	for _, e := range out.Result.Errors {
		if strings.HasPrefix(e, "Failed to migrate shots table") {
			sawShots = true
		}
	}
	assert.True(t, sawShots, "errors: %v", out.Result.Errors)

	shots, err := openTarget(t, target).ListShots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, shots, "rolled back shots must not be visible")
}

func TestCreateIndexesMissingTableIsWarning(t *testing.T) {
	ctx := context.Background()
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'A')`,
	)...)
	catalog := customCatalog(t, func(tables, indexes map[string]any) {
		delete(tables, "deleted_shots")
		delete(tables, "deleted_shots_columns")
		delete(indexes, "idx_deleted_shots_old_id")
	})
	target := filepath.Join(t.TempDir(), "target", "data", "shots.db")
	tr := New(&Config{SourceDB: source, TargetDB: target, Catalog: catalog, Now: func() time.Time { return fixedNow }})

	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, out.Success(), "errors: %v", out.Result.Errors)

	var warned bool
	for _, w := range out.Result.Warnings {
		if strings.Contains(w, "idx_deleted_shots_old_id") {
			warned = true
		}
	}
	assert.True(t, warned, "warnings: %v", out.Result.Warnings)
}

func TestMigrateMissingShotsTable(t *testing.T) {
	source := newSource(t,
		`CREATE TABLE takes (shot_name TEXT, take_type TEXT, file_path TEXT, starred INTEGER, created_date TEXT)`,
	)
	tr, target := newTransformer(t, source, nil)

	out, err := tr.Migrate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrCriticalTableMissing)
	assert.False(t, out.Success())
	assert.Equal(t, 0, out.Counts.Shots)
	assert.NoFileExists(t, target)
}

func TestMigrateMissingSourceFile(t *testing.T) {
	tr, _ := newTransformer(t, filepath.Join(t.TempDir(), "absent.db"), nil)
	_, err := tr.Migrate(context.Background())
	assert.ErrorIs(t, err, util.ErrSourceMissing)
}

func TestMigrateWithoutOptionalTables(t *testing.T) {
	ctx := context.Background()
	source := newSource(t,
		`CREATE TABLE shots (order_number INTEGER, shot_name TEXT PRIMARY KEY, created_date TEXT)`,
		`CREATE TABLE takes (shot_name TEXT, take_type TEXT, file_path TEXT, starred INTEGER, created_date TEXT)`,
		`INSERT INTO shots VALUES (1, 'A', NULL)`,
	)
	meta := schema.NewMetaCatalog(schema.MetaSpec{Key: "schema_version", Value: "1", CreateIfMissing: true})
	tr, target := newTransformer(t, source, meta)

	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, out.Success(), "errors: %v", out.Result.Errors)

	src := openTarget(t, source)
	for _, table := range []string{"assets", "meta"} {
		exists, err := src.TableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, exists, "%s should be synthesized in the source", table)
	}

	dst := openTarget(t, target)
	v, ok, err := dst.MetaValue(ctx, MetaSchemaVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	date, ok, err := dst.MetaValue(ctx, MetaMigrationDate)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-06-01T12:00:00Z", date)
}

func TestMigrateMetaPinsVersionsAndKeepsOriginals(t *testing.T) {
	ctx := context.Background()
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO meta VALUES ('schema_version', '0')`,
		`INSERT INTO meta VALUES ('app_version', '1.0')`,
		`INSERT INTO meta VALUES ('created_at', '2023-05-06 07:08:09')`,
		`INSERT INTO meta VALUES ('custom', 'kept')`,
		`INSERT INTO meta VALUES ('migration_date', 'stale')`,
	)...)
	tr, target := newTransformer(t, source, nil)

	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	require.True(t, out.Success(), "errors: %v", out.Result.Errors)

	dst := openTarget(t, target)
	want := map[string]string{
		"schema_version":          "1",
		"original_schema_version": "0",
		"app_version":             "1.0",
		"created_at":              "2023-05-06T07:08:09Z",
		"custom":                  "kept",
		"migration_date":          "2025-06-01T12:00:00Z",
	}
	for key, value := range want {
		got, ok, err := dst.MetaValue(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, value, got, key)
	}
	_, ok, _ := dst.MetaValue(ctx, "original_app_version")
	assert.False(t, ok, "unchanged version needs no original copy")
	_, ok, _ = dst.MetaValue(ctx, "project_name")
	assert.False(t, ok, "entries without create_if_missing are not synthesized")
}

func TestMigrateMetaSynthesizedEntries(t *testing.T) {
	ctx := context.Background()
	meta, err := schema.ParseMetaCatalog([]byte(`{
  "schema_version": {"value": "2", "create_if_missing": true},
  "created_at": {"value": "CURRENT_UTC_TIMESTAMP", "create_if_missing": true, "dynamic": true}
}`))
	require.NoError(t, err)
	tr, target := newTransformer(t, newSource(t, store.LegacySchema...), meta)

	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	require.True(t, out.Success(), "errors: %v", out.Result.Errors)

	dst := openTarget(t, target)
	version, _, err := dst.MetaValue(ctx, "schema_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version, "pinned version wins over the catalog default")
	_, ok, _ := dst.MetaValue(ctx, "original_schema_version")
	assert.False(t, ok, "synthesized keys have no original")

	created, _, err := dst.MetaValue(ctx, "created_at")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12:00:00Z", created)
}

func TestMigrateLogsTakeAndAssetEvents(t *testing.T) {
	ctx := context.Background()
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'A')`,
		`INSERT INTO takes VALUES ('A', 'base_image', 'media/A/base_01.png', 0, NULL)`,
		`INSERT INTO assets VALUES ('asset_1', 'Hero', 'character', 'media/characters/hero.png', 0, NULL)`,
	)...)
	logger, err := report.NewEventLogger(t.TempDir(), report.LevelDebug)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "target", "data", "shots.db")
	tr := New(&Config{SourceDB: source, TargetDB: target, Logger: logger, Now: func() time.Time { return fixedNow }})
	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	require.True(t, out.Success(), "errors: %v", out.Result.Errors)
	require.NoError(t, logger.Close())

	file, err := os.Open(logger.Path())
	require.NoError(t, err)
	defer file.Close()

	seen := make(map[report.EventType]report.Event)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e report.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		seen[e.Event] = e
	}
	require.Contains(t, seen, report.EventTake)
	require.Contains(t, seen, report.EventAsset)
	assert.Equal(t, "media/1/base_01.png", seen[report.EventTake].DestPath)
	assert.Equal(t, int64(1), seen[report.EventTake].ShotID)
	assert.Equal(t, "asset_1", seen[report.EventAsset].Extra["id_key"])
}

func TestMigrateTakeErrors(t *testing.T) {
	ctx := context.Background()
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'A')`,
		`INSERT INTO takes VALUES ('Ghost', 'base_image', 'media/Ghost/base_01.png', 0, NULL)`,
		`INSERT INTO takes VALUES ('A', 'base_image', '/elsewhere/base_01.png', 0, NULL)`,
		`INSERT INTO assets VALUES ('asset_1', 'Hero', 'character', 'D:\p\media\characters\hero.png', 0, '2024-02-02')`,
	)...)
	tr, target := newTransformer(t, source, nil)

	out, err := tr.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, out.Success())
	require.Len(t, out.Result.Errors, 1)
	assert.Contains(t, out.Result.Errors[0], "Ghost")
	assert.Equal(t, 1, out.Counts.SkippedTakes)
	assert.Equal(t, 1, out.Counts.Takes)

	var sawUnanchored bool
	for _, w := range out.Result.Warnings {
		if strings.Contains(w, "/elsewhere/base_01.png") {
			sawUnanchored = true
		}
	}
	assert.True(t, sawUnanchored, "unanchored path should be reported")

	dst := openTarget(t, target)
	assets, err := dst.ListAssets(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "media/characters/hero.png", assets[0].FilePath)
}

func TestTargetAlreadyExists(t *testing.T) {
	source := newSource(t, store.LegacySchema...)
	tr, target := newTransformer(t, source, nil)
	require.NoError(t, schema.LoadDefault().Materialize(context.Background(), target))

	_, err := tr.Migrate(context.Background())
	assert.ErrorIs(t, err, util.ErrTargetNotWritable)
}

func TestSynthesizeWorkflowTakesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO shots (order_number, shot_name) VALUES (1, 'A')`,
	)...)
	tr, target := newTransformer(t, source, nil)
	_, err := tr.Migrate(ctx)
	require.NoError(t, err)

	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/p/media/1/video_01.mp4", []byte("x"), 0644)
	afero.WriteFile(fsys, "/p/media/1/video_01.png", []byte("x"), 0644)
	afero.WriteFile(fsys, "/p/media/1/video_02.png", []byte("x"), 0644) // no video
	afero.WriteFile(fsys, "/p/media/1/image_01.png", []byte("x"), 0644)

	post := &PostMigration{Store: openTarget(t, target), Fs: fsys, MediaRoot: "/p/media", Now: func() time.Time { return fixedNow }}

	res, n, err := post.SynthesizeWorkflowTakes(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, 1, n)

	_, n, err = post.SynthesizeWorkflowTakes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second run must not duplicate")

	takes, err := post.Store.ListTakes(ctx)
	require.NoError(t, err)
	require.Len(t, takes, 1)
	assert.Equal(t, "video_workflow", takes[0].TakeType)
	assert.Equal(t, "media/1/video_01.png", takes[0].FilePath)
}

func TestRegisterAssetFiles(t *testing.T) {
	ctx := context.Background()
	source := newSource(t, append(store.LegacySchema,
		`INSERT INTO assets VALUES ('asset_known', 'Known', 'character', 'media/characters/known.png', 0, NULL)`,
	)...)
	tr, target := newTransformer(t, source, nil)
	_, err := tr.Migrate(ctx)
	require.NoError(t, err)

	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/p/media/characters/known.png", []byte("x"), 0644)
	afero.WriteFile(fsys, "/p/media/characters/new/hero.fbx", []byte("x"), 0644)
	afero.WriteFile(fsys, "/p/media/characters/new/hero_thumbnail.png", []byte("x"), 0644)
	afero.WriteFile(fsys, "/p/media/locations/forest.png", []byte("x"), 0644)

	post := &PostMigration{Store: openTarget(t, target), Fs: fsys, MediaRoot: "/p/media"}
	_, n, err := post.RegisterAssetFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, n, err = post.RegisterAssetFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assets, err := post.Store.ListAssets(ctx)
	require.NoError(t, err)
	var paths []string
	for _, a := range assets {
		paths = append(paths, a.FilePath)
		assert.True(t, strings.HasPrefix(a.IDKey, "asset_"))
	}
	assert.ElementsMatch(t, []string{
		"media/characters/known.png",
		"media/characters/new/hero.fbx",
		"media/locations/forest.png",
	}, paths)
}
