package media

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTreeMissingThumbnail(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/p/media/1/video_01.mp4", "video")

	res, err := ValidateTree(context.Background(), fsys, "/p/media", TreeOptions{
		Mapping:   testMapping(t, "X"),
		Remediate: true,
	})
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "Missing thumbnail for video_01.mp4")
	assert.Contains(t, res.Errors[0], "(Shot: X → Folder: 1)")
}

func TestValidateTreePlaceholderSynthesis(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/p/media/3/video_01.mp4", "")

	res, err := ValidateTree(context.Background(), fsys, "/p/media", TreeOptions{Remediate: true})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.True(t, containsMessage(res.Warnings, "Created zero-size thumbnail placeholder", "(Folder: 3)"))

	info, err := fsys.Stat("/p/media/3/video_01.png")
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// a second run finds the pair in place
	again, err := ValidateTree(context.Background(), fsys, "/p/media", TreeOptions{Remediate: true})
	require.NoError(t, err)
	assert.Empty(t, again.Warnings)
}

func TestValidateTreeNoRemediation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/p/media/3/video_01.mp4", "")

	res, err := ValidateTree(context.Background(), fsys, "/p/media", TreeOptions{Remediate: false})
	require.NoError(t, err)
	assert.True(t, containsMessage(res.Warnings, "has no thumbnail"))

	exists, _ := afero.Exists(fsys, "/p/media/3/video_01.png")
	assert.False(t, exists)
}

func TestCheckPairingRules(t *testing.T) {
	tests := []struct {
		name      string
		files     map[string]string
		wantErrs  []string
		wantWarns []string
	}{
		{
			name:  "valid pair",
			files: map[string]string{"video_01.mp4": "v", "video_01.png": "t"},
		},
		{
			name:     "zero-size thumbnail for real video",
			files:    map[string]string{"video_01.mp4": "v", "video_01.png": ""},
			wantErrs: []string{"has zero-size thumbnail"},
		},
		{
			name:      "placeholder with real thumbnail",
			files:     map[string]string{"video_01.mp4": "", "video_01.png": "t"},
			wantWarns: []string{"non-zero-size thumbnail"},
		},
		{
			name:      "orphaned thumbnail",
			files:     map[string]string{"video_02.png": "t"},
			wantWarns: []string{"Orphaned thumbnail"},
		},
		{
			name:      "zero-size image",
			files:     map[string]string{"image_01.png": ""},
			wantWarns: []string{"Zero-size file"},
		},
		{
			name:  "mov video pairs with png",
			files: map[string]string{"video_01.mov": "v", "video_01.png": "t"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			for name, content := range tt.files {
				writeFile(t, fsys, "/m/7/"+name, content)
			}
			f, err := ReadFolder(fsys, "/m/7")
			require.NoError(t, err)

			res := CheckPairing(fsys, f, PairingOptions{})
			assert.Len(t, res.Errors, len(tt.wantErrs))
			for _, want := range tt.wantErrs {
				assert.True(t, containsMessage(res.Errors, want), "want error %q in %v", want, res.Errors)
			}
			assert.Len(t, res.Warnings, len(tt.wantWarns))
			for _, want := range tt.wantWarns {
				assert.True(t, containsMessage(res.Warnings, want), "want warning %q in %v", want, res.Warnings)
			}
		})
	}
}

func TestReadFolderOrderAndKinds(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, "/m/1/video_10.mp4", "v")
	writeFile(t, fsys, "/m/1/video_2.mp4", "v")
	writeFile(t, fsys, "/m/1/notes.txt", "n")
	writeFile(t, fsys, "/m/1/video_2.mp4.part", "v")
	require.NoError(t, fsys.MkdirAll("/m/1/sub", 0755))

	f, err := ReadFolder(fsys, "/m/1")
	require.NoError(t, err)

	var names []string
	for _, e := range f.Files {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"notes.txt", "video_2.mp4", "video_10.mp4"}, names)
	assert.Equal(t, 2, f.Count(KindVideo))
	assert.Equal(t, []string{"notes.txt"}, f.Unknown())
}
