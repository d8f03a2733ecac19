package migrate

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/facette/natsort"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/media"
	"github.com/franz/shot-migrator/internal/result"
	"github.com/franz/shot-migrator/internal/store"
	"github.com/franz/shot-migrator/internal/util"
)

// PostMigration runs the repair steps that read the relocated media tree
type PostMigration struct {
	Store     *store.Store
	Fs        afero.Fs
	MediaRoot string
	Now       func() time.Time
}

func (p *PostMigration) now() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().UTC().Format(UTCLayout)
}

// SynthesizeWorkflowTakes adds a video_workflow take for every
// video_NN.png thumbnail whose video is present and which has no such take
// yet. Running it again inserts nothing
func (p *PostMigration) SynthesizeWorkflowTakes(ctx context.Context) (*result.Result, int, error) {
	res := result.New()
	util.InfoLog("Synthesizing workflow takes from media thumbnails")

	shots, err := p.Store.ListShots(ctx)
	if err != nil {
		return res, 0, err
	}

	created := 0
	err = p.Store.Transaction(ctx, func(tx *sql.Tx) error {
		for _, sh := range shots {
			if err := ctx.Err(); err != nil {
				return err
			}
			folder := strconv.FormatInt(sh.ID, 10)
			names, err := listFiles(p.Fs, filepath.Join(p.MediaRoot, folder))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				res.Warnf("Could not read media folder %s: %v", folder, err)
				continue
			}

			videos := make(map[string]bool)
			for _, name := range names {
				if media.Classify(name) == media.KindVideo {
					videos[media.ThumbnailName(strings.ToLower(name))] = true
				}
			}

			for _, name := range names {
				if media.Classify(name) != media.KindThumbnail {
					continue
				}
				if !videos[strings.ToLower(name)] {
					continue
				}
				stored := path.Join(MediaAnchor, folder, name)
				exists, err := store.TakeExists(ctx, tx, sh.ID, media.TakeTypeVideoWorkflow, stored)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				take := &store.Take{
					ID:          uuid.NewString(),
					ShotID:      sh.ID,
					TakeType:    media.TakeTypeVideoWorkflow,
					FilePath:    stored,
					CreatedDate: p.now(),
				}
				if err := store.InsertTake(ctx, tx, take); err != nil {
					res.Errorf("Failed to add workflow take %s: %v", stored, err)
					continue
				}
				res.Infof("Added workflow take for %s (shot %s)", stored, sh.Name)
				created++
			}
		}
		return nil
	})
	if err != nil {
		return res, created, err
	}

	if created > 0 {
		util.SuccessLog("Added %d workflow takes", created)
	}
	return res, created, nil
}

// RegisterAssetFiles creates asset rows for files in the asset category
// folders that no asset row references yet. Preview thumbnails are skipped
func (p *PostMigration) RegisterAssetFiles(ctx context.Context) (*result.Result, int, error) {
	res := result.New()
	util.InfoLog("Registering untracked asset files")

	created := 0
	err := p.Store.Transaction(ctx, func(tx *sql.Tx) error {
		for _, category := range media.AssetCategories {
			root := filepath.Join(p.MediaRoot, category)
			files, err := walkFiles(p.Fs, root)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				res.Warnf("Could not walk asset folder %s: %v", category, err)
				continue
			}

			for _, rel := range files {
				if err := ctx.Err(); err != nil {
					return err
				}
				if media.IsPreviewThumbnail(rel) {
					continue
				}
				stored := path.Join(MediaAnchor, category, rel)
				exists, err := store.AssetPathExists(ctx, tx, stored)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				base := path.Base(rel)
				asset := &store.Asset{
					IDKey:       "asset_" + uuid.NewString(),
					Name:        sql.NullString{String: strings.TrimSuffix(base, path.Ext(base)), Valid: true},
					Type:        sql.NullString{String: category, Valid: true},
					FilePath:    stored,
					CreatedDate: p.now(),
				}
				if err := store.InsertAsset(ctx, tx, asset); err != nil {
					res.Errorf("Failed to register asset %s: %v", stored, err)
					continue
				}
				res.Infof("Registered asset %s", stored)
				created++
			}
		}
		return nil
	})
	if err != nil {
		return res, created, err
	}

	if created > 0 {
		util.SuccessLog("Registered %d asset files", created)
	}
	return res, created, nil
}

// listFiles returns regular file names in dir in natural order
func listFiles(fsys afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	natsort.Sort(names)
	return names, nil
}

// walkFiles returns slash-separated paths of every file below root
func walkFiles(fsys afero.Fs, root string) ([]string, error) {
	if _, err := fsys.Stat(root); err != nil {
		return nil, err
	}
	var files []string
	err := afero.Walk(fsys, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	natsort.Sort(files)
	return files, err
}
