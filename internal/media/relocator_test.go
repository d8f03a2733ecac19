package media

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/shot-migrator/internal/remap"
)

func writeFile(t *testing.T, fsys afero.Fs, path string, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0644))
}

func testMapping(t *testing.T, names ...string) *remap.Mapping {
	t.Helper()
	b := remap.NewBuilder()
	for i, name := range names {
		require.NoError(t, b.Add(name, int64(i+1)))
	}
	return b.Freeze()
}

func containsMessage(msgs []string, parts ...string) bool {
	for _, m := range msgs {
		ok := true
		for _, p := range parts {
			if !strings.Contains(m, p) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func TestRelocateByShotID(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/old/media/A/video_01.mp4", "video")
	writeFile(t, fsys, "/old/media/A/video_01.png", "thumb")
	writeFile(t, fsys, "/old/media/B/base_01.png", "base")
	writeFile(t, fsys, "/old/media/characters/hero.png", "hero")
	writeFile(t, fsys, "/old/media/characters/sub/hero_thumbnail.png", "preview")

	r := NewRelocator(&Config{
		Fs:         fsys,
		SourceRoot: "/old/media",
		TargetRoot: "/new/media",
		Remediate:  true,
	})

	res, stats, err := r.Relocate(context.Background(), testMapping(t, "A", "B"))
	require.NoError(t, err)
	assert.True(t, res.Success(), "errors: %v", res.Errors)

	for _, p := range []string{
		"/new/media/1/video_01.mp4",
		"/new/media/1/video_01.png",
		"/new/media/2/base_01.png",
		"/new/media/characters/hero.png",
		"/new/media/characters/sub/hero_thumbnail.png",
	} {
		exists, _ := afero.Exists(fsys, p)
		assert.True(t, exists, "missing %s", p)
	}

	assert.Equal(t, 2, stats.ShotFolders)
	assert.Equal(t, 1, stats.AssetFolders)
	assert.Equal(t, 5, stats.Files)

	assert.True(t, containsMessage(res.Warnings, "Asset subdirectory not found", "locations"))
	assert.True(t, containsMessage(res.Warnings, "Asset subdirectory not found", "other"))
}

func TestRelocateMissingFolderIsWarning(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/old/media/A/image_01.png", "img")

	r := NewRelocator(&Config{Fs: fsys, SourceRoot: "/old/media", TargetRoot: "/new/media"})
	res, stats, err := r.Relocate(context.Background(), testMapping(t, "A", "Ghost"))
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, 1, stats.ShotFolders)
	assert.True(t, containsMessage(res.Warnings, "Source folder not found", "Ghost"))
}

func TestRelocateFindsDecomposedFolderName(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/old/media/Cafe\u0301/image_01.png", "img")

	r := NewRelocator(&Config{Fs: fsys, SourceRoot: "/old/media", TargetRoot: "/new/media"})
	res, _, err := r.Relocate(context.Background(), testMapping(t, "Caf\u00e9"))
	require.NoError(t, err)
	assert.False(t, containsMessage(res.Warnings, "Source folder not found"))

	exists, _ := afero.Exists(fsys, "/new/media/1/image_01.png")
	assert.True(t, exists)
}

func TestRelocateZeroByteFilesWarn(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/old/media/C/video_01.mp4", "")

	r := NewRelocator(&Config{Fs: fsys, SourceRoot: "/old/media", TargetRoot: "/new/media", Remediate: true})
	res, stats, err := r.Relocate(context.Background(), testMapping(t, "C"))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.ZeroByteFiles)
	assert.True(t, containsMessage(res.Warnings, "Copied zero-size placeholder file"))
	assert.True(t, containsMessage(res.Warnings, "Created zero-size thumbnail placeholder", "video_01.mp4", "(Shot: C → Folder: 1)"))

	info, err := fsys.Stat("/new/media/1/video_01.png")
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestRelocateCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/old/media/A/image_01.png", "img")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRelocator(&Config{Fs: fsys, SourceRoot: "/old/media", TargetRoot: "/new/media"})
	_, _, err := r.Relocate(ctx, testMapping(t, "A"))
	assert.ErrorIs(t, err, context.Canceled)
}
