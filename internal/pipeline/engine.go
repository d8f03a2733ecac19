// Package pipeline runs a complete project migration: preparation, database
// migration, media relocation, validation and reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/execute"
	"github.com/franz/shot-migrator/internal/integrity"
	"github.com/franz/shot-migrator/internal/media"
	"github.com/franz/shot-migrator/internal/migrate"
	"github.com/franz/shot-migrator/internal/project"
	"github.com/franz/shot-migrator/internal/remap"
	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/result"
	"github.com/franz/shot-migrator/internal/scan"
	"github.com/franz/shot-migrator/internal/schema"
	"github.com/franz/shot-migrator/internal/store"
	"github.com/franz/shot-migrator/internal/util"
)

// Phase names in run order
const (
	PhasePreparation = "Preparation"
	PhaseDatabase    = "Database Migration"
	PhaseMedia       = "Media Migration"
	PhaseValidation  = "Validation"
	PhaseReporting   = "Reporting"
)

var phaseOrder = []string{PhasePreparation, PhaseDatabase, PhaseMedia, PhaseValidation, PhaseReporting}

// Config holds pipeline configuration
type Config struct {
	SourcePath      string // legacy project root (data/shots.db, media/)
	TargetPath      string // new project root
	SchemaPath      string // schema definition file, empty = embedded
	MetaEntriesPath string // meta entries file, empty = embedded
	SchemaVersion   string
	AppVersion      string
	Backup          bool   // copy the source project to <source>_backup_<ts> first
	Remediate       bool   // create placeholder thumbnails for zero-size videos
	RegisterAssets  bool   // add asset rows for untracked asset files
	VerifyMode      string // copy verification, see execute.VerifySize
	ReportsDir      string // empty = <target>/migration_reports
	Fs              afero.Fs
	Logger          *report.EventLogger
	Now             func() time.Time
}

// Outcome is everything a run produced
type Outcome struct {
	Report      *report.MigrationReport
	Integrity   *integrity.Report
	ReportPaths []string
}

// Success reports whether the run recorded no errors
func (o *Outcome) Success() bool {
	return o.Report.Success()
}

// Engine runs one migration
type Engine struct {
	cfg    *Config
	source project.Layout
	target project.Layout

	catalog     *schema.Catalog
	metaCatalog *schema.MetaCatalog
	mapping     *remap.Mapping
	rep         *report.MigrationReport
	integrity   *integrity.Report
	reportPaths []string
}

// New creates an Engine
func New(cfg *Config) *Engine {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
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
	target := project.New(cfg.TargetPath)
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = target.ReportsPath()
	}

	return &Engine{
		cfg:    cfg,
		source: project.New(cfg.SourcePath),
		target: target,
	}
}

// Run executes the phases in order. A failed phase skips the phases after
// it except reporting, which always runs. The returned error is set only
// when the run was cancelled
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	e.rep = &report.MigrationReport{
		SourcePath:    e.cfg.SourcePath,
		TargetPath:    e.cfg.TargetPath,
		StartTime:     e.cfg.Now(),
		SchemaVersion: e.cfg.SchemaVersion,
		AppVersion:    e.cfg.AppVersion,
		SQLiteVersion: store.SQLiteVersion(),
		EventLogPath:  e.cfg.Logger.Path(),
	}

	util.InfoLog("Migrating %s -> %s", e.cfg.SourcePath, e.cfg.TargetPath)

	phases := []func(context.Context, *result.Result) (string, error){
		e.prepare,
		e.migrateDatabase,
		e.migrateMedia,
		e.validate,
	}

	var runErr error
	failed := false
	for i, run := range phases {
		name := phaseOrder[i]
		if !failed && ctx.Err() != nil {
			runErr = ctx.Err()
			e.rep.Errorf("Migration cancelled before %s: %v", name, runErr)
			failed = true
		}
		if failed {
			e.rep.AddPhase(report.PhaseRecord{Name: name, Status: report.StatusSkipped})
			e.cfg.Logger.LogPhase(name, report.StatusSkipped, 0, 0)
			continue
		}
		ok, err := e.runPhase(ctx, i+1, name, run)
		if err != nil {
			runErr = err
		}
		failed = !ok
	}

	e.writeReports()

	out := &Outcome{Report: e.rep, Integrity: e.integrity, ReportPaths: e.reportPaths}
	if e.rep.Success() {
		util.SuccessLog("Migration completed in %s", util.FormatDuration(e.rep.EndTime.Sub(e.rep.StartTime)))
	} else {
		util.ErrorLog("Migration failed with %d errors, %d warnings", len(e.rep.Errors), len(e.rep.Warnings))
	}
	return out, runErr
}

// runPhase times one phase, records it and folds its diagnostics into the
// report. It returns false when the phase failed
func (e *Engine) runPhase(ctx context.Context, n int, name string, run func(context.Context, *result.Result) (string, error)) (bool, error) {
	util.PhaseLog(n, name)
	start := e.cfg.Now()
	res := result.New()

	details, err := run(ctx, res)
	if err != nil {
		res.AddError(fmt.Sprintf("%s failed", name), err)
	}

	rec := report.PhaseRecord{
		Name:      name,
		Status:    report.StatusSuccess,
		StartTime: start,
		EndTime:   e.cfg.Now(),
		Details:   details,
		Errors:    res.Errors,
	}
	if !res.Success() {
		rec.Status = report.StatusFailed
	}
	e.rep.AddPhase(rec)
	e.rep.Merge(res)
	e.cfg.Logger.LogPhase(name, rec.Status, rec.EndTime.Sub(start), len(res.Errors))

	if rec.Status == report.StatusSuccess {
		util.SuccessLog("%s completed in %s", name, util.FormatDuration(rec.EndTime.Sub(start)))
	} else {
		util.ErrorLog("%s failed after %s", name, util.FormatDuration(rec.EndTime.Sub(start)))
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	return rec.Status == report.StatusSuccess, nil
}

func (e *Engine) prepare(ctx context.Context, res *result.Result) (string, error) {
	if ok, _ := afero.Exists(e.cfg.Fs, e.source.DatabasePath()); !ok {
		return "", fmt.Errorf("%w: %s", util.ErrSourceMissing, e.source.DatabasePath())
	}
	detail := ""
	if ok, _ := afero.DirExists(e.cfg.Fs, e.source.MediaPath()); !ok {
		res.Warnf("Source media directory not found: %s", e.source.MediaPath())
	} else {
		inv, err := scan.New(&scan.Config{Fs: e.cfg.Fs, Logger: e.cfg.Logger}).Scan(ctx, e.source.MediaPath())
		if err != nil {
			return "", err
		}
		e.rep.Stats.SourceFiles = inv.Files
		e.rep.Stats.SourceBytes = inv.Bytes
		if inv.ZeroByte > 0 {
			res.Infof("%d zero-size files in source media", inv.ZeroByte)
		}
		detail = inv.Summary()
		util.InfoLog("Source: %s", detail)
	}

	if err := e.loadCatalogs(); err != nil {
		return "", err
	}
	if err := e.checkTargetWritable(); err != nil {
		return "", err
	}

	if e.cfg.Backup {
		if err := e.backupSource(ctx, res); err != nil {
			return "", err
		}
	}

	if err := e.target.CreateSkeleton(e.cfg.Fs); err != nil {
		return "", err
	}
	if err := e.cfg.Fs.MkdirAll(e.cfg.ReportsDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrTargetNotWritable, err)
	}

	copied, err := e.target.CopyConfigFrom(e.cfg.Fs, e.source)
	switch {
	case err != nil:
		res.Warnf("Failed to copy project config: %v", err)
	case copied:
		res.Infof("Copied project config from %s", e.source.ConfigPath())
	}
	if err := e.target.WriteConfig(e.cfg.Fs, project.DefaultConfig(e.cfg.Now())); err != nil {
		return "", err
	}
	return detail, nil
}

func (e *Engine) loadCatalogs() error {
	var err error
	if e.cfg.SchemaPath != "" {
		if e.catalog, err = schema.Load(e.cfg.SchemaPath); err != nil {
			return err
		}
	} else {
		e.catalog = schema.LoadDefault()
	}
	if e.cfg.MetaEntriesPath != "" {
		if e.metaCatalog, err = schema.LoadMetaCatalog(e.cfg.MetaEntriesPath); err != nil {
			return err
		}
	} else {
		e.metaCatalog = schema.DefaultMetaCatalog()
	}
	return nil
}

// checkTargetWritable creates the target root and checks it with a scratch
// file. An existing target database is refused
func (e *Engine) checkTargetWritable() error {
	if ok, _ := afero.Exists(e.cfg.Fs, e.target.DatabasePath()); ok {
		return fmt.Errorf("%w: target database %s already exists", util.ErrTargetNotWritable, e.target.DatabasePath())
	}
	if err := e.cfg.Fs.MkdirAll(e.target.Root, 0755); err != nil {
		return fmt.Errorf("%w: %v", util.ErrTargetNotWritable, err)
	}
	scratch := filepath.Join(e.target.Root, ".write_test")
	if err := afero.WriteFile(e.cfg.Fs, scratch, []byte("test"), 0644); err != nil {
		return fmt.Errorf("%w: %v", util.ErrTargetNotWritable, err)
	}
	return e.cfg.Fs.Remove(scratch)
}

func (e *Engine) backupSource(ctx context.Context, res *result.Result) error {
	dst := BackupPath(e.source.Root, e.cfg.Now())
	util.InfoLog("Creating backup: %s", dst)

	copier := execute.New(&execute.Config{
		Fs:          e.cfg.Fs,
		VerifyMode:  e.cfg.VerifyMode,
		RetryConfig: util.MediaRetryConfig(),
		Logger:      e.cfg.Logger,
	})
	out, err := copier.CopyTree(ctx, e.source.Root, dst)
	if err != nil {
		return fmt.Errorf("failed to back up source: %w", err)
	}
	if len(out.Errors) > 0 {
		for _, copyErr := range out.Errors {
			res.Errorf("Backup: %v", copyErr)
		}
		return fmt.Errorf("failed to back up source: %d files not copied", len(out.Errors))
	}

	e.rep.BackupPath = dst
	util.SuccessLog("Backup created at %s (%d files, %s)", dst, out.Files, util.FormatBytes(out.BytesWritten))
	return nil
}

// BackupPath returns <source>_backup_<YYYYMMDD_HHMMSS>
func BackupPath(source string, at time.Time) string {
	return fmt.Sprintf("%s_backup_%s", filepath.Clean(source), at.Format("20060102_150405"))
}

func (e *Engine) migrateDatabase(ctx context.Context, res *result.Result) (string, error) {
	t := migrate.New(&migrate.Config{
		SourceDB:      e.source.DatabasePath(),
		TargetDB:      e.target.DatabasePath(),
		Catalog:       e.catalog,
		MetaCatalog:   e.metaCatalog,
		SchemaVersion: e.cfg.SchemaVersion,
		AppVersion:    e.cfg.AppVersion,
		Now:           e.cfg.Now,
		Logger:        e.cfg.Logger,
	})

	out, err := t.Migrate(ctx)
	if out != nil {
		// already logged by the transformer
		res.Merge(out.Result)
		e.mapping = out.Mapping
		e.rep.Mapping = out.Mapping
		s := &e.rep.Stats
		s.Shots = out.Counts.Shots
		s.Takes = out.Counts.Takes
		s.SkippedTakes = out.Counts.SkippedTakes
		s.Assets = out.Counts.Assets
		s.MetaEntries = out.Counts.Meta
		s.DeletedShots = out.Counts.DeletedShots
	}
	if err != nil {
		return "", err
	}
	if out.ShotsRolledBack {
		res.Warnf("Shots were rolled back, mapping files not written")
		return "0 shots", nil
	}

	for _, entry := range e.mapping.Entries() {
		e.cfg.Logger.LogShot(entry.Name, entry.ID, nil)
	}
	if err := e.target.WriteMappings(e.cfg.Fs, e.mapping); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d shots", e.mapping.Len()), nil
}

func (e *Engine) migrateMedia(ctx context.Context, res *result.Result) (string, error) {
	relocator := media.NewRelocator(&media.Config{
		Fs:         e.cfg.Fs,
		SourceRoot: e.source.MediaPath(),
		TargetRoot: e.target.MediaPath(),
		Remediate:  e.cfg.Remediate,
		VerifyMode: e.cfg.VerifyMode,
		Logger:     e.cfg.Logger,
	})

	relocated, stats, err := relocator.Relocate(ctx, e.mapping)
	res.Merge(relocated)
	if stats != nil {
		s := &e.rep.Stats
		s.ShotFolders = stats.ShotFolders
		s.AssetFolders = stats.AssetFolders
		s.FilesCopied = stats.Files
		s.ZeroByteFiles = stats.ZeroByteFiles
		s.BytesWritten = stats.BytesWritten
	}
	if err != nil {
		return "", err
	}
	details := fmt.Sprintf("%d files", e.rep.Stats.FilesCopied)
	if !res.Success() {
		return details, nil
	}

	st, err := store.OpenExisting(e.target.DatabasePath())
	if err != nil {
		return details, err
	}
	defer st.Close()

	post := &migrate.PostMigration{
		Store:     st,
		Fs:        e.cfg.Fs,
		MediaRoot: e.target.MediaPath(),
		Now:       e.cfg.Now,
	}
	synth, n, err := post.SynthesizeWorkflowTakes(ctx)
	res.Merge(synth)
	if err != nil {
		return details, err
	}
	e.rep.Stats.WorkflowTakes = n

	if e.cfg.RegisterAssets {
		registered, n, err := post.RegisterAssetFiles(ctx)
		res.Merge(registered)
		if err != nil {
			return details, err
		}
		e.rep.Stats.RegisteredAssets = n
	}
	return details, nil
}

func (e *Engine) validate(ctx context.Context, res *result.Result) (string, error) {
	v := integrity.New(&integrity.Config{
		ProjectPath:   e.target.Root,
		Fs:            e.cfg.Fs,
		Catalog:       e.catalog,
		SchemaVersion: e.cfg.SchemaVersion,
		AppVersion:    e.cfg.AppVersion,
		Logger:        e.cfg.Logger,
	})
	rep := v.Run(ctx)
	e.integrity = rep
	e.rep.IntegrityRan = true
	e.rep.IntegrityPassed = rep.Summary.Passed

	for _, sec := range rep.Sections {
		res.Merge(&sec.Result)
	}

	path, err := integrity.WriteMarkdown(e.cfg.Fs, e.cfg.ReportsDir, rep)
	if err != nil {
		res.Warnf("Failed to write integrity report: %v", err)
	} else {
		e.rep.IntegrityReportPath = path
		util.InfoLog("Integrity report: %s", path)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d sections passed", rep.Summary.SectionsPassed, len(rep.Sections)), nil
}

// writeReports is the reporting phase. It runs after every other phase
// regardless of their outcome
func (e *Engine) writeReports() {
	util.PhaseLog(len(phaseOrder), PhaseReporting)
	start := e.cfg.Now()
	e.rep.EndTime = start
	e.rep.GeneratedAt = start

	status := report.StatusSuccess
	var reportErr error
	paths, err := report.WriteAll(e.cfg.Fs, e.cfg.ReportsDir, e.rep)
	if err != nil {
		status = report.StatusFailed
		reportErr = err
		e.rep.Errorf("Report generation failed: %v", err)
	}

	e.rep.AddPhase(report.PhaseRecord{
		Name:      PhaseReporting,
		Status:    status,
		StartTime: start,
		EndTime:   e.cfg.Now(),
	})
	e.cfg.Logger.LogPhase(PhaseReporting, status, e.cfg.Now().Sub(start), boolToInt(reportErr != nil))

	for _, p := range paths {
		util.InfoLog("Report: %s", p)
	}
	e.reportPaths = paths
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
