// Package integrity audits a migrated project: layout, schema, database
// content, media tree and the consistency between database and media.
// It never modifies the project.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/facette/natsort"
	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/media"
	"github.com/franz/shot-migrator/internal/migrate"
	"github.com/franz/shot-migrator/internal/project"
	"github.com/franz/shot-migrator/internal/remap"
	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/result"
	"github.com/franz/shot-migrator/internal/schema"
	"github.com/franz/shot-migrator/internal/store"
	"github.com/franz/shot-migrator/internal/util"
)

// Section names in run order
const (
	SectionStructure = "structure"
	SectionSchema    = "schema"
	SectionContent   = "content"
	SectionMedia     = "media"
	SectionCross     = "cross"
)

var sectionTitles = map[string]string{
	SectionStructure: "Project Structure",
	SectionSchema:    "Database Schema",
	SectionContent:   "Database Content",
	SectionMedia:     "Media Files",
	SectionCross:     "Cross-Consistency",
}

// SectionResult is the outcome of one audit section
type SectionResult struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Skipped bool   `json:"skipped"`
	result.Result
}

// Passed reports whether the section ran and recorded no errors
func (s *SectionResult) Passed() bool {
	return !s.Skipped && s.Success()
}

// Summary totals a report
type Summary struct {
	TotalErrors     int  `json:"total_errors"`
	TotalWarnings   int  `json:"total_warnings"`
	TotalInfo       int  `json:"total_info"`
	SectionsPassed  int  `json:"sections_passed"`
	SectionsFailed  int  `json:"sections_failed"`
	SectionsSkipped int  `json:"sections_skipped"`
	Passed          bool `json:"passed"`
}

// Report is the complete audit
type Report struct {
	ProjectPath string           `json:"project_path"`
	ProjectName string           `json:"project_name"`
	Timestamp   time.Time        `json:"timestamp"`
	Duration    time.Duration    `json:"duration"`
	Sections    []*SectionResult `json:"sections"`
	Summary     Summary          `json:"summary"`
}

// Section returns the named section result
func (r *Report) Section(name string) *SectionResult {
	for _, s := range r.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Config holds validator configuration
type Config struct {
	ProjectPath   string
	Fs            afero.Fs // nil = OS filesystem
	Catalog       *schema.Catalog
	SchemaVersion string
	AppVersion    string
	Logger        *report.EventLogger
}

// Validator runs the audit against one project
type Validator struct {
	layout        project.Layout
	fs            afero.Fs
	catalog       *schema.Catalog
	schemaVersion string
	appVersion    string
	logger        *report.EventLogger

	shotIDs      map[int64]string
	mediaFolders []string
}

// New creates a Validator
func New(cfg *Config) *Validator {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = schema.LoadDefault()
	}
	if cfg.SchemaVersion == "" || cfg.AppVersion == "" {
		sv, av := util.GetPinnedVersions()
		if cfg.SchemaVersion == "" {
			cfg.SchemaVersion = sv
		}
		if cfg.AppVersion == "" {
			cfg.AppVersion = av
		}
	}

	return &Validator{
		layout:        project.New(cfg.ProjectPath),
		fs:            cfg.Fs,
		catalog:       cfg.Catalog,
		schemaVersion: cfg.SchemaVersion,
		appVersion:    cfg.AppVersion,
		logger:        cfg.Logger,
		shotIDs:       make(map[int64]string),
	}
}

// Run executes the five sections in order. A failed structure check skips
// everything after it; a failed schema check skips content, media and cross
func (v *Validator) Run(ctx context.Context) *Report {
	start := time.Now()
	rep := &Report{
		ProjectPath: v.layout.Root,
		ProjectName: v.layout.Name(),
		Timestamp:   start.UTC(),
	}

	util.InfoLog("Running integrity check on %s", v.layout.Root)

	structure := v.runSection(ctx, SectionStructure, 1, v.checkStructure)
	rep.Sections = append(rep.Sections, structure)

	schemaRes := skipped(SectionSchema)
	if structure.Passed() {
		schemaRes = v.runSection(ctx, SectionSchema, 2, v.checkSchema)
	}
	rep.Sections = append(rep.Sections, schemaRes)

	gated := map[string]func(context.Context, *result.Result) error{
		SectionContent: v.checkContent,
		SectionMedia:   v.checkMedia,
		SectionCross:   v.checkCross,
	}
	for i, name := range []string{SectionContent, SectionMedia, SectionCross} {
		if !schemaRes.Passed() || ctx.Err() != nil {
			rep.Sections = append(rep.Sections, skipped(name))
			continue
		}
		rep.Sections = append(rep.Sections, v.runSection(ctx, name, i+3, gated[name]))
	}

	rep.Summary = summarize(rep.Sections)
	rep.Duration = time.Since(start)

	if rep.Summary.Passed {
		util.SuccessLog("Integrity check passed (%d warnings)", rep.Summary.TotalWarnings)
	} else {
		util.ErrorLog("Integrity check failed: %d errors, %d warnings", rep.Summary.TotalErrors, rep.Summary.TotalWarnings)
	}
	return rep
}

func skipped(name string) *SectionResult {
	return &SectionResult{Name: name, Title: sectionTitles[name], Skipped: true}
}

func (v *Validator) runSection(ctx context.Context, name string, n int, check func(context.Context, *result.Result) error) *SectionResult {
	util.InfoLog("%d. Validating %s...", n, strings.ToLower(sectionTitles[name]))
	sec := &SectionResult{Name: name, Title: sectionTitles[name]}
	if err := check(ctx, &sec.Result); err != nil {
		sec.Errorf("%s validation failed: %v", sectionTitles[name], err)
	}
	if sec.Success() {
		util.InfoLog("%s validation: PASSED", sectionTitles[name])
	} else {
		util.ErrorLog("%s validation: FAILED", sectionTitles[name])
	}
	v.logger.LogIntegrity(name, sec.Success(), len(sec.Errors), len(sec.Warnings))
	return sec
}

func summarize(sections []*SectionResult) Summary {
	var s Summary
	for _, sec := range sections {
		s.TotalErrors += len(sec.Errors)
		s.TotalWarnings += len(sec.Warnings)
		s.TotalInfo += len(sec.Info)
		switch {
		case sec.Skipped:
			s.SectionsSkipped++
		case sec.Success():
			s.SectionsPassed++
		default:
			s.SectionsFailed++
		}
	}
	s.Passed = s.TotalErrors == 0
	return s
}

func (v *Validator) exists(path string) bool {
	ok, _ := afero.Exists(v.fs, path)
	return ok
}

func (v *Validator) checkStructure(_ context.Context, res *result.Result) error {
	for _, dir := range []string{v.layout.Root, v.layout.DataPath(), v.layout.MediaPath()} {
		if ok, _ := afero.DirExists(v.fs, dir); ok {
			res.Infof("Directory exists: %s", dir)
		} else {
			res.Errorf("Required directory missing: %s", dir)
		}
	}

	required := []string{v.layout.ConfigPath(), v.layout.DatabasePath()}
	required = append(required, v.layout.MappingPaths()...)
	for _, file := range required {
		if v.exists(file) {
			res.Infof("File exists: %s", file)
		} else {
			res.Errorf("Required file missing: %s", file)
		}
	}

	for _, dir := range v.layout.OptionalDirs() {
		if v.exists(dir) {
			res.Infof("Optional directory exists: %s", dir)
		} else {
			res.Warnf("Optional directory missing: %s", dir)
		}
	}
	for _, dir := range v.layout.AssetDirs() {
		if v.exists(dir) {
			res.Infof("Asset subdirectory exists: %s", dir)
		} else {
			res.Warnf("Asset subdirectory missing: %s", dir)
		}
	}
	return nil
}

func (v *Validator) checkSchema(ctx context.Context, res *result.Result) error {
	val, err := v.catalog.Validate(ctx, v.layout.DatabasePath())
	if err != nil {
		return err
	}

	if len(val.MissingTables) > 0 {
		res.Errorf("Missing tables: %s", strings.Join(val.MissingTables, ", "))
	}
	if len(val.MissingIndexes) > 0 {
		res.Errorf("Missing indexes: %s", strings.Join(val.MissingIndexes, ", "))
	}
	for _, table := range val.TablesWithDiffs() {
		diff := val.Columns[table]
		if len(diff.Missing) > 0 {
			res.Errorf("Missing columns in %s: %s", table, strings.Join(diff.Missing, ", "))
		}
		if len(diff.Extra) > 0 {
			res.Warnf("Extra columns in %s: %s", table, strings.Join(diff.Extra, ", "))
		}
	}
	if len(val.ExtraTables) > 0 {
		res.Warnf("Extra tables: %s", strings.Join(val.ExtraTables, ", "))
	}
	if len(val.ExtraIndexes) > 0 {
		res.Infof("Extra indexes: %s", strings.Join(val.ExtraIndexes, ", "))
	}
	if val.Valid {
		res.Infof("Database schema validation: PASSED")
	}
	return nil
}

func (v *Validator) openStore() (*store.Store, error) {
	return store.OpenExisting(v.layout.DatabasePath())
}

func (v *Validator) checkContent(ctx context.Context, res *result.Result) error {
	st, err := v.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := v.loadShots(ctx, st); err != nil {
		return err
	}
	res.Infof("Found %d shots in database", len(v.shotIDs))

	dups, err := st.DuplicateShotNames(ctx)
	if err != nil {
		return err
	}
	if len(dups) > 0 {
		names := make([]string, len(dups))
		for i, d := range dups {
			names[i] = fmt.Sprintf("%s (%d)", d.Name, d.Count)
		}
		res.Warnf("Duplicate shot names found: %s", strings.Join(names, ", "))
	}

	takes, err := st.CountRows(ctx, "takes")
	if err != nil {
		return err
	}
	res.Infof("Found %d takes in database", takes)

	orphans, err := st.OrphanedTakes(ctx)
	if err != nil {
		return err
	}
	if len(orphans) > 0 {
		res.Errorf("Found %d takes with invalid shot_id references", len(orphans))
	}

	assets, err := st.CountRows(ctx, "assets")
	if err != nil {
		return err
	}
	res.Infof("Found %d assets in database", assets)

	pinned := []struct{ key, want string }{
		{migrate.MetaSchemaVersion, v.schemaVersion},
		{migrate.MetaAppVersion, v.appVersion},
	}
	for _, p := range pinned {
		got, ok, err := st.MetaValue(ctx, p.key)
		if err != nil {
			return err
		}
		if !ok || got != p.want {
			res.Warnf("Unexpected %s: %q (expected %q)", p.key, got, p.want)
		}
	}

	samples, err := st.SampleShotDates(ctx, 10)
	if err != nil {
		return err
	}
	for _, sh := range samples {
		if sh.CreatedDate != "" && !strings.HasSuffix(sh.CreatedDate, "Z") {
			res.Warnf("Non-UTC date format found: %s (shot %s)", sh.CreatedDate, sh.Name)
			break
		}
	}

	badIDs, err := st.AssetIDsWithoutPrefix(ctx, "asset_")
	if err != nil {
		return err
	}
	if len(badIDs) > 0 {
		res.Warnf("Found %d assets with non-standard ID format", len(badIDs))
	}
	return nil
}

func (v *Validator) loadShots(ctx context.Context, st *store.Store) error {
	shots, err := st.ListShots(ctx)
	if err != nil {
		return err
	}
	v.shotIDs = make(map[int64]string, len(shots))
	for _, sh := range shots {
		v.shotIDs[sh.ID] = sh.Name
	}
	return nil
}

// shotMapping exposes the database shots as a mapping for folder labels.
// Duplicate names leave the mapping nil and labels fall back to folder names
func (v *Validator) shotMapping() *remap.Mapping {
	entries := make(map[string]int64, len(v.shotIDs))
	for id, name := range v.shotIDs {
		entries[name] = id
	}
	m, err := remap.FromMap(entries)
	if err != nil {
		return nil
	}
	return m
}

func (v *Validator) checkMedia(ctx context.Context, res *result.Result) error {
	root := v.layout.MediaPath()
	infos, err := afero.ReadDir(v.fs, root)
	if err != nil {
		res.Errorf("Media directory does not exist")
		return nil
	}

	v.mediaFolders = nil
	for _, info := range infos {
		if info.IsDir() && !media.IsAssetCategory(info.Name()) {
			v.mediaFolders = append(v.mediaFolders, info.Name())
		}
	}
	natsort.Sort(v.mediaFolders)

	if len(v.mediaFolders) == 0 {
		res.Warnf("No media folders found")
	}

	mapping := v.shotMapping()
	total := len(v.mediaFolders)
	for i, name := range v.mediaFolders {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, convErr := strconv.ParseInt(name, 10, 64)
		switch {
		case convErr != nil:
			res.Warnf("Media folder %s is not a valid shot_id", name)
		case !v.hasShot(id):
			res.Warnf("Media folder %s does not correspond to any shot_id", name)
		}

		f, err := media.ReadFolder(v.fs, filepath.Join(root, name))
		if err != nil {
			res.Errorf("Failed to validate media folder %s: %v", name, err)
			continue
		}
		if len(f.Files) == 0 {
			res.Warnf("Empty media folder: %s", f.Path)
			continue
		}

		res.Infof("Folder %s: %d files (%d videos, %d thumbnails, %d images, %d base images, %d assets)",
			name, len(f.Files), f.Count(media.KindVideo), f.Count(media.KindThumbnail),
			f.Count(media.KindImage), f.Count(media.KindBaseImage), f.Count(media.KindAsset))

		res.Merge(media.CheckPairing(v.fs, f, media.PairingOptions{
			Remediate: false,
			Label:     media.Label(name, mapping),
		}))

		for _, unknown := range f.Unknown() {
			res.Warnf("Unknown file type: %s", filepath.Join(f.Path, unknown))
		}
		for _, e := range f.Files {
			if e.Kind == media.KindThumbnail && e.Size > 0 {
				v.checkImageDecodes(filepath.Join(f.Path, e.Name), res)
			}
		}

		done := i + 1
		if done%10 == 0 || done == total {
			util.InfoLog("Media validation progress: %.1f%% (%d/%d)", float64(done)/float64(total)*100, done, total)
		}
	}

	for _, dir := range v.layout.AssetDirs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok, _ := afero.DirExists(v.fs, dir); !ok {
			continue
		}
		v.checkAssetDir(dir, res)
	}
	return nil
}

func (v *Validator) hasShot(id int64) bool {
	_, ok := v.shotIDs[id]
	return ok
}

// checkImageDecodes warns when a thumbnail cannot be decoded
func (v *Validator) checkImageDecodes(path string, res *result.Result) {
	f, err := v.fs.Open(path)
	if err != nil {
		res.Warnf("Cannot open thumbnail %s: %v", path, err)
		return
	}
	defer f.Close()

	if _, err := imaging.Decode(f); err != nil {
		res.Warnf("Thumbnail is not a readable image: %s (%v)", path, err)
	}
}

func (v *Validator) checkAssetDir(dir string, res *result.Result) {
	var files []string
	sizes := make(map[string]int64)
	err := afero.Walk(v.fs, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, p)
			sizes[p] = info.Size()
		}
		return nil
	})
	if err != nil {
		res.Errorf("Failed to validate asset directory %s: %v", dir, err)
		return
	}
	natsort.Sort(files)

	if len(files) == 0 {
		res.Infof("Empty asset directory: %s", dir)
		return
	}

	thumbs := 0
	for _, p := range files {
		if media.IsPreviewThumbnail(p) {
			thumbs++
		}
	}
	res.Infof("Asset directory %s: %d files (%d thumbnails)", filepath.Base(dir), len(files), thumbs)

	for _, p := range files {
		if sizes[p] == 0 {
			res.Warnf("Zero-size asset file: %s", p)
		}
		if !media.IsPreviewThumbnail(p) && media.Classify(p) == media.KindUnknown {
			res.Warnf("Unknown asset file type: %s", p)
		}
	}
}

func (v *Validator) checkCross(ctx context.Context, res *result.Result) error {
	st, err := v.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if len(v.shotIDs) == 0 {
		if err := v.loadShots(ctx, st); err != nil {
			return err
		}
	}

	folders := make(map[string]bool, len(v.mediaFolders))
	for _, f := range v.mediaFolders {
		folders[f] = true
	}
	var withoutFolder, withoutShot []string
	for id := range v.shotIDs {
		key := strconv.FormatInt(id, 10)
		if !folders[key] {
			withoutFolder = append(withoutFolder, key)
		}
	}
	for f := range folders {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil || !v.hasShot(id) {
			withoutShot = append(withoutShot, f)
		}
	}
	natsort.Sort(withoutFolder)
	natsort.Sort(withoutShot)
	if len(withoutFolder) > 0 {
		res.Warnf("Shots without media folders: %s", strings.Join(withoutFolder, ", "))
	}
	if len(withoutShot) > 0 {
		res.Warnf("Media folders without corresponding shots: %s", strings.Join(withoutShot, ", "))
	}

	takes, err := st.ListTakes(ctx)
	if err != nil {
		return err
	}
	for _, t := range takes {
		if err := ctx.Err(); err != nil {
			return err
		}
		v.checkReferencedFile("Take", t.FilePath, res)
	}

	assets, err := st.ListAssets(ctx)
	if err != nil {
		return err
	}
	tracked := make(map[string]bool, len(assets))
	for _, a := range assets {
		if a.FilePath == "" {
			continue
		}
		resolved := v.resolve(a.FilePath)
		tracked[filepath.Clean(resolved)] = true
		v.checkReferencedFile("Asset", a.FilePath, res)
	}

	v.checkOrphanedAssets(tracked, res)
	return nil
}

// resolve maps a stored path to a filesystem path. Media-anchored paths are
// joined to the project's media directory; anything else is used as is
func (v *Validator) resolve(stored string) string {
	if rel, ok := migrate.ResolveMediaPath(stored); ok {
		return filepath.Join(v.layout.MediaPath(), filepath.FromSlash(rel))
	}
	return filepath.FromSlash(stored)
}

func (v *Validator) checkReferencedFile(kind, stored string, res *result.Result) {
	resolved := v.resolve(stored)
	info, err := v.fs.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Errorf("%s file not found: %s (resolved to: %s)", kind, stored, resolved)
		} else {
			res.Errorf("%s file not readable: %s (%v)", kind, stored, err)
		}
		return
	}
	if info.Size() == 0 {
		res.Warnf("Zero-size %s file: %s (resolved to: %s)", strings.ToLower(kind), stored, resolved)
	}
}

func (v *Validator) checkOrphanedAssets(tracked map[string]bool, res *result.Result) {
	var previews []string
	for _, dir := range v.layout.AssetDirs() {
		if ok, _ := afero.DirExists(v.fs, dir); !ok {
			continue
		}
		var orphans []string
		err := afero.Walk(v.fs, dir, func(p string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if media.IsPreviewThumbnail(p) {
				previews = append(previews, p)
				return nil
			}
			if !tracked[filepath.Clean(p)] {
				orphans = append(orphans, p)
			}
			return nil
		})
		if err != nil {
			res.Errorf("Orphaned asset check failed: %v", err)
			return
		}
		sort.Strings(orphans)
		for _, p := range orphans {
			res.Warnf("Orphaned asset file (not in assets table): %s", p)
		}
	}
	if len(previews) > 0 {
		res.Infof("Found %d thumbnail files in asset directories (valid 3D asset previews)", len(previews))
	}
}
