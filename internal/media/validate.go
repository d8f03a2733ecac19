package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/facette/natsort"
	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/remap"
	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/result"
	"github.com/franz/shot-migrator/internal/util"
)

// FileEntry is a regular file found in a media folder
type FileEntry struct {
	Name string
	Size int64
	Kind Kind
}

// Folder is the classified listing of one media folder
type Folder struct {
	Name  string
	Path  string
	Files []FileEntry
}

// ReadFolder lists the regular files of dir in natural order and classifies them
func ReadFolder(fsys afero.Fs, dir string) (*Folder, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read media folder %s: %w", dir, err)
	}

	names := make([]string, 0, len(infos))
	sizes := make(map[string]int64, len(infos))
	for _, info := range infos {
		if info.IsDir() || strings.HasSuffix(info.Name(), ".part") {
			continue
		}
		names = append(names, info.Name())
		sizes[info.Name()] = info.Size()
	}
	natsort.Sort(names)

	f := &Folder{Name: filepath.Base(dir), Path: dir}
	for _, name := range names {
		f.Files = append(f.Files, FileEntry{Name: name, Size: sizes[name], Kind: Classify(name)})
	}
	return f, nil
}

// Count returns the number of files of the given kind
func (f *Folder) Count(kind Kind) int {
	n := 0
	for _, e := range f.Files {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Unknown returns the names of files with no recognised role
func (f *Folder) Unknown() []string {
	var out []string
	for _, e := range f.Files {
		if e.Kind == KindUnknown {
			out = append(out, e.Name)
		}
	}
	return out
}

// Label describes the folder in diagnostics, naming the shot when known
func Label(folder string, mapping *remap.Mapping) string {
	if mapping != nil {
		if id, err := strconv.ParseInt(folder, 10, 64); err == nil {
			if name, ok := mapping.NameFor(id); ok {
				return fmt.Sprintf("(Shot: %s → Folder: %s)", name, folder)
			}
		}
	}
	return fmt.Sprintf("(Folder: %s)", folder)
}

// PairingOptions controls CheckPairing
type PairingOptions struct {
	// Remediate creates a zero-byte thumbnail next to a zero-byte video that
	// has none
	Remediate bool
	Label     string
	Logger    *report.EventLogger
}

// CheckPairing applies the video/thumbnail pairing rule to one folder:
// a video of non-zero size needs a non-empty thumbnail, a zero-size video
// (placeholder) should have an empty one, and thumbnails without a video
// are orphans
func CheckPairing(fsys afero.Fs, f *Folder, opts PairingOptions) *result.Result {
	res := result.New()
	label := opts.Label
	if label == "" {
		label = fmt.Sprintf("(Folder: %s)", f.Name)
	}

	thumbs := make(map[string]FileEntry)
	videoStems := make(map[string]bool)
	for _, e := range f.Files {
		switch e.Kind {
		case KindThumbnail:
			thumbs[strings.ToLower(e.Name)] = e
		case KindVideo:
			videoStems[stem(e.Name)] = true
		}
	}

	for _, video := range f.Files {
		if video.Kind != KindVideo {
			continue
		}
		thumbName := ThumbnailName(video.Name)
		thumb, hasThumb := thumbs[strings.ToLower(thumbName)]

		if video.Size == 0 {
			if !hasThumb {
				if !opts.Remediate {
					res.Warnf("Video placeholder %s has no thumbnail %s", video.Name, label)
					continue
				}
				target := filepath.Join(f.Path, thumbName)
				if err := afero.WriteFile(fsys, target, nil, 0644); err != nil {
					res.Errorf("Failed to create thumbnail placeholder for %s %s: %v", video.Name, label, err)
					continue
				}
				opts.Logger.LogRemediation(target, "zero-size video without thumbnail")
				res.Warnf("Created zero-size thumbnail placeholder for %s %s", video.Name, label)
				continue
			}
			if thumb.Size != 0 {
				res.Warnf("Video placeholder %s has non-zero-size thumbnail %s", video.Name, label)
			}
			continue
		}

		if !hasThumb {
			res.Errorf("Missing thumbnail for %s %s", video.Name, label)
			continue
		}
		if thumb.Size == 0 {
			res.Errorf("Valid video %s has zero-size thumbnail %s", video.Name, label)
			continue
		}
		util.DebugLog("Valid video/thumbnail pair: %s/%s %s", video.Name, thumb.Name, label)
	}

	for _, e := range f.Files {
		if e.Kind == KindThumbnail && !videoStems[stem(e.Name)] {
			res.Warnf("Orphaned thumbnail (no video): %s %s", e.Name, label)
		}
	}

	for _, e := range f.Files {
		if e.Size == 0 && e.Kind != KindVideo && e.Kind != KindThumbnail {
			res.Warnf("Zero-size file: %s %s", filepath.Join(f.Path, e.Name), label)
		}
	}

	return res
}

// TreeOptions controls ValidateTree
type TreeOptions struct {
	Mapping   *remap.Mapping
	Remediate bool
	Logger    *report.EventLogger
}

// ValidateTree checks every shot folder below mediaRoot. Asset category
// folders are skipped; they have no pairing rule
func ValidateTree(ctx context.Context, fsys afero.Fs, mediaRoot string, opts TreeOptions) (*result.Result, error) {
	res := result.New()
	util.InfoLog("Validating media files in %s", mediaRoot)

	infos, err := afero.ReadDir(fsys, mediaRoot)
	if err != nil {
		res.Errorf("Media directory does not exist: %s", mediaRoot)
		return res, nil
	}

	var folders []string
	for _, info := range infos {
		if info.IsDir() && !IsAssetCategory(info.Name()) {
			folders = append(folders, info.Name())
		}
	}
	natsort.Sort(folders)

	if len(folders) == 0 {
		res.Warnf("No media folders found")
		return res, nil
	}

	total := len(folders)
	for i, name := range folders {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		f, err := ReadFolder(fsys, filepath.Join(mediaRoot, name))
		if err != nil {
			res.Errorf("Failed to validate folder %s: %v", name, err)
			continue
		}
		label := Label(name, opts.Mapping)
		res.Merge(CheckPairing(fsys, f, PairingOptions{
			Remediate: opts.Remediate,
			Label:     label,
			Logger:    opts.Logger,
		}))
		util.DebugLog("Folder %s: %d videos, %d thumbnails, %d images, %d base images, %d assets",
			label, f.Count(KindVideo), f.Count(KindThumbnail), f.Count(KindImage), f.Count(KindBaseImage), f.Count(KindAsset))

		done := i + 1
		if done%10 == 0 || done == total {
			util.InfoLog("Media validation progress: %.1f%% (%d/%d)", float64(done)/float64(total)*100, done, total)
		}
	}

	if res.Success() {
		util.SuccessLog("Media validation passed (%d folders)", total)
	} else {
		util.ErrorLog("Media validation failed with %d errors", len(res.Errors))
	}
	return res, nil
}
