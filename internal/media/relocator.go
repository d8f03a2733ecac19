package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"github.com/franz/shot-migrator/internal/execute"
	"github.com/franz/shot-migrator/internal/remap"
	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/result"
	"github.com/franz/shot-migrator/internal/util"
)

// Relocator moves a legacy media tree keyed by shot name into the new tree
// keyed by shot id
type Relocator struct {
	fs         afero.Fs
	sourceRoot string
	targetRoot string
	remediate  bool
	copier     *execute.Copier
	logger     *report.EventLogger
}

// Config holds relocator configuration
type Config struct {
	Fs         afero.Fs // nil = OS filesystem
	SourceRoot string   // legacy media directory
	TargetRoot string   // new media directory
	Remediate  bool     // create placeholder thumbnails during validation
	VerifyMode string   // copy verification, see execute.VerifySize
	Retry      *util.RetryConfig
	Logger     *report.EventLogger
}

// Stats summarizes a relocation
type Stats struct {
	ShotFolders   int
	AssetFolders  int
	Files         int
	ZeroByteFiles int
	BytesWritten  int64
	Duration      time.Duration
}

// NewRelocator creates a Relocator
func NewRelocator(cfg *Config) *Relocator {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Retry == nil {
		cfg.Retry = util.MediaRetryConfig()
	}

	return &Relocator{
		fs:         cfg.Fs,
		sourceRoot: cfg.SourceRoot,
		targetRoot: cfg.TargetRoot,
		remediate:  cfg.Remediate,
		copier: execute.New(&execute.Config{
			Fs:          cfg.Fs,
			VerifyMode:  cfg.VerifyMode,
			RetryConfig: cfg.Retry,
			Logger:      cfg.Logger,
		}),
		logger: cfg.Logger,
	}
}

// Relocate copies each mapped shot folder to <target>/<id> and the asset
// category folders as they are, then validates the new tree. The error is
// set only when the run was cancelled or the target cannot be created
func (r *Relocator) Relocate(ctx context.Context, mapping *remap.Mapping) (*result.Result, *Stats, error) {
	start := time.Now()
	res := result.New()
	stats := &Stats{}

	util.InfoLog("Relocating media: %s -> %s", r.sourceRoot, r.targetRoot)

	if err := util.RetryableMkdirAll(r.fs, r.targetRoot, 0755, util.MediaRetryConfig()); err != nil {
		res.Errorf("Failed to create target media directory %s: %v", r.targetRoot, err)
		return res, stats, fmt.Errorf("%w: %v", util.ErrTargetNotWritable, err)
	}

	folders, err := r.sourceFolders()
	if err != nil {
		res.Warnf("Source media directory not readable: %v", err)
	}

	entries := mapping.Entries()
	var bar *progressbar.ProgressBar
	if util.ShowProgress() && len(entries) > 0 {
		bar = progressbar.NewOptions(len(entries),
			progressbar.OptionSetDescription("Relocating shots"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, stats, err
		}

		src, ok := folders.find(e.Name)
		if !ok {
			res.Warnf("Source folder not found: %s", filepath.Join(r.sourceRoot, e.Name))
		} else {
			dst := filepath.Join(r.targetRoot, strconv.FormatInt(e.ID, 10))
			if err := r.copyFolder(ctx, res, stats, src, dst); err != nil {
				return res, stats, err
			}
			stats.ShotFolders++
		}

		if bar != nil {
			bar.Add(1)
		} else if done := i + 1; done%50 == 0 || done == len(entries) {
			util.InfoLog("Relocated %d/%d shot folders", done, len(entries))
		}
	}
	if bar != nil {
		bar.Finish()
	}

	for _, category := range AssetCategories {
		if err := ctx.Err(); err != nil {
			return res, stats, err
		}
		src := filepath.Join(r.sourceRoot, category)
		if exists, _ := afero.DirExists(r.fs, src); !exists {
			res.Warnf("Asset subdirectory not found: %s", src)
			continue
		}
		if err := r.copyFolder(ctx, res, stats, src, filepath.Join(r.targetRoot, category)); err != nil {
			return res, stats, err
		}
		stats.AssetFolders++
	}

	validation, err := ValidateTree(ctx, r.fs, r.targetRoot, TreeOptions{
		Mapping:   mapping,
		Remediate: r.remediate,
		Logger:    r.logger,
	})
	res.Merge(validation)
	stats.Duration = time.Since(start)
	if err != nil {
		return res, stats, err
	}

	util.InfoLog("Media relocation: %d shot folders, %d asset folders, %d files (%s) in %s",
		stats.ShotFolders, stats.AssetFolders, stats.Files,
		util.FormatBytes(stats.BytesWritten), util.FormatDuration(stats.Duration))
	return res, stats, nil
}

func (r *Relocator) copyFolder(ctx context.Context, res *result.Result, stats *Stats, src, dst string) error {
	out, err := r.copier.CopyTree(ctx, src, dst)
	if out != nil {
		stats.Files += out.Files
		stats.BytesWritten += out.BytesWritten
		stats.ZeroByteFiles += len(out.ZeroBytePaths)
		for _, p := range out.ZeroBytePaths {
			res.Warnf("Copied zero-size placeholder file: %s", p)
		}
		for _, copyErr := range out.Errors {
			res.Errorf("%v", copyErr)
		}
		if out.Files == 0 && len(out.Errors) == 0 && err == nil {
			res.Warnf("No files copied from %s", src)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Errorf("Failed to migrate folder %s: %v", src, err)
	}
	return nil
}

// folderIndex resolves shot names to legacy folder paths
type folderIndex struct {
	root  string
	exact map[string]string
	nfc   map[string]string
}

func (r *Relocator) sourceFolders() (*folderIndex, error) {
	idx := &folderIndex{
		root:  r.sourceRoot,
		exact: make(map[string]string),
		nfc:   make(map[string]string),
	}
	infos, err := afero.ReadDir(r.fs, r.sourceRoot)
	if err != nil {
		return idx, err
	}
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		p := filepath.Join(r.sourceRoot, info.Name())
		idx.exact[info.Name()] = p
		idx.nfc[norm.NFC.String(info.Name())] = p
	}
	return idx, nil
}

// find looks a shot name up by exact folder name first, then by NFC form
func (idx *folderIndex) find(name string) (string, bool) {
	if p, ok := idx.exact[name]; ok {
		return p, true
	}
	p, ok := idx.nfc[norm.NFC.String(name)]
	return p, ok
}
