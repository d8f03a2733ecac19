// Package migrate turns a legacy shot database into the id-keyed schema.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/franz/shot-migrator/internal/remap"
	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/result"
	"github.com/franz/shot-migrator/internal/schema"
	"github.com/franz/shot-migrator/internal/store"
	"github.com/franz/shot-migrator/internal/util"
)

// progressEvery is how often row progress is logged
const progressEvery = 50

// Config holds transformer configuration
type Config struct {
	SourceDB      string
	TargetDB      string
	Catalog       *schema.Catalog     // nil uses the embedded catalog
	MetaCatalog   *schema.MetaCatalog // nil uses the embedded meta entries
	SchemaVersion string              // pinned schema_version, default "1"
	AppVersion    string              // pinned app_version, default "1.0"
	Now           func() time.Time
	Logger        *report.EventLogger // nil disables per-row events
}

// Counts tallies rows written per table
type Counts struct {
	Shots        int `json:"shots"`
	Takes        int `json:"takes"`
	SkippedTakes int `json:"skipped_takes"`
	Assets       int `json:"assets"`
	Meta         int `json:"meta"`
	DeletedShots int `json:"deleted_shots"`
}

// Outcome is what Migrate hands to later stages
type Outcome struct {
	Mapping *remap.Mapping
	Counts  Counts
	Result  *result.Result

	// ShotsRolledBack is set when the shots transaction did not commit.
	// Mapping is empty in that case and must not be persisted
	ShotsRolledBack bool
}

// Success reports whether the migration recorded no errors
func (o *Outcome) Success() bool {
	return o.Result.Success()
}

// Transformer migrates one source database into one target database
type Transformer struct {
	cfg *Config

	// afterShot runs after each shot insert inside the shots transaction
	afterShot func(name string)
}

// New creates a new transformer
func New(cfg *Config) *Transformer {
	if cfg.Catalog == nil {
		cfg.Catalog = schema.LoadDefault()
	}
	if cfg.MetaCatalog == nil {
		cfg.MetaCatalog = schema.DefaultMetaCatalog()
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = "1"
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "1.0"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Transformer{cfg: cfg}
}

// ValidateSource checks the source database before anything is written.
// Missing shots or takes tables are fatal; missing assets or meta tables
// are created empty in the source
func (t *Transformer) ValidateSource(ctx context.Context) (*result.Result, error) {
	res := result.New()

	if _, err := os.Stat(t.cfg.SourceDB); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("%w: %s", util.ErrSourceMissing, t.cfg.SourceDB)
		}
		return res, fmt.Errorf("failed to stat source database: %w", err)
	}

	src, err := store.OpenExisting(t.cfg.SourceDB)
	if err != nil {
		return res, err
	}
	defer src.Close()

	for _, table := range []string{"shots", "takes"} {
		exists, err := src.TableExists(ctx, table)
		if err != nil {
			return res, err
		}
		if !exists {
			return res, fmt.Errorf("%w: %s", util.ErrCriticalTableMissing, table)
		}
	}

	for _, table := range []string{"assets", "meta"} {
		created, err := src.EnsureOptionalTable(ctx, table)
		if err != nil {
			return res, err
		}
		if created {
			res.Warnf("Source has no %s table, created an empty one", table)
		}
	}

	t.compareColumns(ctx, src, res)
	return res, nil
}

// compareColumns logs source/target column differences. Informational only
func (t *Transformer) compareColumns(ctx context.Context, src *store.Store, res *result.Result) {
	for _, table := range []string{"shots", "takes", "assets"} {
		srcCols, err := src.ColumnSet(ctx, table)
		if err != nil {
			res.Warnf("Could not inspect source %s columns: %v", table, err)
			continue
		}
		target := make(map[string]bool)
		for _, name := range t.cfg.Catalog.ColumnNames(table) {
			target[name] = true
			if !srcCols[name] {
				res.Infof("Table %s: target column %s not in source", table, name)
			}
		}
		for name := range srcCols {
			if !target[name] {
				res.Infof("Table %s: source column %s not in target", table, name)
			}
		}
	}
}

// Migrate validates the source, materializes the target schema and copies
// every table. Row and phase failures are collected in the outcome; the
// returned error is only set for fatal pre-flight conditions
func (t *Transformer) Migrate(ctx context.Context) (*Outcome, error) {
	out := &Outcome{Result: result.New(), Mapping: remap.NewBuilder().Freeze()}

	util.InfoLog("Validating source database %s", t.cfg.SourceDB)
	pre, err := t.ValidateSource(ctx)
	out.Result.Merge(pre)
	if err != nil {
		out.Result.AddError("Source validation failed", err)
		return out, err
	}

	if _, err := os.Stat(t.cfg.TargetDB); err == nil {
		err = fmt.Errorf("%w: target database %s already exists", util.ErrTargetNotWritable, t.cfg.TargetDB)
		out.Result.AddError("Target check failed", err)
		return out, err
	}
	if err := t.cfg.Catalog.Materialize(ctx, t.cfg.TargetDB); err != nil {
		out.Result.AddError("Failed to create target schema", err)
		return out, err
	}

	src, err := store.OpenExisting(t.cfg.SourceDB)
	if err != nil {
		out.Result.AddError("Failed to open source database", err)
		return out, err
	}
	defer src.Close()

	dst, err := store.OpenExisting(t.cfg.TargetDB)
	if err != nil {
		out.Result.AddError("Failed to open target database", err)
		return out, err
	}
	defer dst.Close()

	builder := remap.NewBuilder()
	if err := t.migrateShots(ctx, src, dst, builder, out); err != nil {
		// nothing was committed, so none of the builder's ids exist
		out.Result.AddError("Failed to migrate shots table", err)
		out.Counts.Shots = 0
		out.ShotsRolledBack = true
	} else {
		out.Mapping = builder.Freeze()
	}

	if err := t.migrateTakes(ctx, src, dst, out); err != nil {
		out.Result.AddError("Failed to migrate takes table", err)
	}
	if err := t.migrateAssets(ctx, src, dst, out); err != nil {
		out.Result.AddError("Failed to migrate assets table", err)
	}
	if err := t.migrateDeletedShots(ctx, src, dst, out); err != nil {
		out.Result.AddError("Failed to migrate deleted shots", err)
	}
	if err := t.migrateMeta(ctx, src, dst, out); err != nil {
		out.Result.AddError("Failed to migrate meta table", err)
	}
	CreateIndexes(ctx, dst, out.Result)

	if out.Success() {
		util.SuccessLog("Database migration complete: %d shots, %d takes, %d assets",
			out.Counts.Shots, out.Counts.Takes, out.Counts.Assets)
	} else {
		util.ErrorLog("Database migration finished with %d errors", len(out.Result.Errors))
	}
	return out, nil
}

func (t *Transformer) normalizeDate(raw, what string, res *result.Result) string {
	d, ok := ConvertDateToUTC(raw, t.cfg.Now())
	if !ok {
		res.Warnf("Could not parse date %q for %s, using current time", raw, what)
	}
	return d
}

func logProgress(table string, done, total int) {
	if done%progressEvery == 0 || done == total {
		util.InfoLog("%s migration progress: %.1f%% (%d/%d)",
			table, float64(done)/float64(total)*100, done, total)
	}
}

func (t *Transformer) migrateShots(ctx context.Context, src, dst *store.Store, b *remap.Builder, out *Outcome) error {
	util.InfoLog("Migrating shots table")
	res := out.Result

	shots, missing, err := src.LegacyShots(ctx)
	if err != nil {
		return err
	}
	for _, col := range missing {
		res.Infof("Source shots table has no %s column, migrating as NULL", col)
	}
	if len(shots) == 0 {
		res.Warnf("No shots found in source database")
		return nil
	}

	return dst.Transaction(ctx, func(tx *sql.Tx) error {
		for i := range shots {
			if err := ctx.Err(); err != nil {
				return err
			}
			sh := shots[i]

			if b.Has(sh.Name) {
				res.Errorf("Duplicate shot name %q in source, row skipped", sh.Name)
				logProgress("Shots", i+1, len(shots))
				continue
			}

			sh.CreatedDate = t.normalizeDate(sh.CreatedDate, "shot "+sh.Name, res)
			id, err := store.InsertShot(ctx, tx, &sh)
			if err != nil {
				res.Errorf("Failed to migrate shot %s: %v", sh.Name, err)
			} else if err := b.Add(sh.Name, id); err != nil {
				res.Errorf("Failed to map shot %s: %v", sh.Name, err)
			} else {
				out.Counts.Shots++
			}
			if t.afterShot != nil {
				t.afterShot(sh.Name)
			}
			logProgress("Shots", i+1, len(shots))
		}
		return nil
	})
}

func (t *Transformer) migrateTakes(ctx context.Context, src, dst *store.Store, out *Outcome) error {
	util.InfoLog("Migrating takes table")
	res := out.Result

	takes, missing, err := src.LegacyTakes(ctx)
	if err != nil {
		return err
	}
	for _, col := range missing {
		res.Infof("Source takes table has no %s column, migrating as NULL", col)
	}
	if len(takes) == 0 {
		res.Warnf("No takes found in source database")
		return nil
	}

	return dst.Transaction(ctx, func(tx *sql.Tx) error {
		for i := range takes {
			if err := ctx.Err(); err != nil {
				return err
			}
			tk := takes[i]

			shotID, ok := out.Mapping.Lookup(tk.ShotName)
			if !ok {
				res.Errorf("Shot name %s not found in mapping, take %s skipped", tk.ShotName, tk.FilePath)
				t.cfg.Logger.LogTake(tk.ShotName, 0, tk.FilePath, fmt.Errorf("shot %s not in mapping", tk.ShotName))
				out.Counts.SkippedTakes++
				logProgress("Takes", i+1, len(takes))
				continue
			}

			tk.ID = uuid.NewString()
			tk.ShotID = shotID
			tk.FilePath = t.rewriteTakePath(tk.FilePath, tk.ShotName, shotID, res)
			tk.CreatedDate = t.normalizeDate(tk.CreatedDate, "take "+tk.FilePath, res)

			err := store.InsertTake(ctx, tx, &tk)
			if err != nil {
				res.Errorf("Failed to migrate take for shot %s: %v", tk.ShotName, err)
			} else {
				out.Counts.Takes++
			}
			t.cfg.Logger.LogTake(tk.ShotName, shotID, tk.FilePath, err)
			logProgress("Takes", i+1, len(takes))
		}
		return nil
	})
}

func (t *Transformer) rewriteTakePath(raw, shotName string, shotID int64, res *result.Result) string {
	if raw == "" {
		res.Warnf("Take for shot %s has no file path", shotName)
		return raw
	}
	anchored, ok := ExtractMediaPath(raw, shotName)
	if !ok {
		util.ErrorLog("No media directory in take path %s, stored unchanged", raw)
		res.Warnf("Take path %s has no media directory, stored unchanged", raw)
		return raw
	}
	rewritten, ok := RewriteShotSegment(anchored, shotName, shotID)
	if !ok {
		res.Warnf("Take path %s is not under the folder of shot %s, shot segment left unchanged", raw, shotName)
		return anchored
	}
	return rewritten
}

func (t *Transformer) migrateAssets(ctx context.Context, src, dst *store.Store, out *Outcome) error {
	util.InfoLog("Migrating assets table")
	res := out.Result

	assets, _, err := src.LegacyAssets(ctx)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		res.Infof("No assets found in source database")
		return nil
	}

	return dst.Transaction(ctx, func(tx *sql.Tx) error {
		for i := range assets {
			if err := ctx.Err(); err != nil {
				return err
			}
			a := assets[i]

			if a.IDKey == "" {
				a.IDKey = "asset_" + uuid.NewString()
				res.Warnf("Asset %s had no id, assigned %s", a.FilePath, a.IDKey)
			}
			if a.FilePath != "" {
				anchored, ok := ExtractMediaPath(a.FilePath, "")
				if ok {
					a.FilePath = anchored
				} else {
					res.Warnf("Asset path %s has no media directory, stored unchanged", a.FilePath)
				}
			}
			a.CreatedDate = t.normalizeDate(a.CreatedDate, "asset "+a.IDKey, res)

			err := store.InsertAsset(ctx, tx, &a)
			if err != nil {
				res.Errorf("Failed to migrate asset %s: %v", a.IDKey, err)
			} else {
				out.Counts.Assets++
			}
			t.cfg.Logger.LogAsset(a.IDKey, a.FilePath, err)
		}
		return nil
	})
}

func (t *Transformer) migrateDeletedShots(ctx context.Context, src, dst *store.Store, out *Outcome) error {
	rows, err := src.LegacyDeletedShots(ctx)
	if err != nil || len(rows) == 0 {
		return err
	}

	util.InfoLog("Carrying forward %d deleted shot records", len(rows))
	return dst.Transaction(ctx, func(tx *sql.Tx) error {
		for i := range rows {
			d := rows[i]
			d.CreatedDate = t.normalizeDate(d.CreatedDate, "deleted shot record", out.Result)
			if err := store.InsertDeletedShot(ctx, tx, &d); err != nil {
				out.Result.Errorf("Failed to migrate deleted shot %d: %v", d.OldShotID, err)
				continue
			}
			out.Counts.DeletedShots++
		}
		return nil
	})
}

// CreateIndexes creates the fixed lookup indexes. Failures are warnings
func CreateIndexes(ctx context.Context, dst *store.Store, res *result.Result) {
	util.InfoLog("Creating database indexes")
	for _, idx := range fixedIndexes {
		if err := dst.Exec(ctx, idx.ddl); err != nil {
			res.Warnf("Failed to create index %s: %v", idx.name, err)
		}
	}
}

var fixedIndexes = []struct{ name, ddl string }{
	{"idx_shots_shot_name", "CREATE INDEX IF NOT EXISTS idx_shots_shot_name ON shots(shot_name)"},
	{"idx_shots_order", "CREATE INDEX IF NOT EXISTS idx_shots_order ON shots(order_number)"},
	{"idx_takes_shot_id", "CREATE INDEX IF NOT EXISTS idx_takes_shot_id ON takes(shot_id)"},
	{"idx_takes_type", "CREATE INDEX IF NOT EXISTS idx_takes_type ON takes(take_type)"},
	{"idx_takes_starred", "CREATE INDEX IF NOT EXISTS idx_takes_starred ON takes(starred)"},
	{"idx_takes_shot_type", "CREATE INDEX IF NOT EXISTS idx_takes_shot_type ON takes(shot_id, take_type)"},
	{"idx_deleted_shots_old_id", "CREATE INDEX IF NOT EXISTS idx_deleted_shots_old_id ON deleted_shots(old_shot_id)"},
}
