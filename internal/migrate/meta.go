package migrate

import (
	"context"
	"database/sql"

	"github.com/franz/shot-migrator/internal/store"
	"github.com/franz/shot-migrator/internal/util"
)

// Meta keys with special handling
const (
	MetaSchemaVersion = "schema_version"
	MetaAppVersion    = "app_version"
	MetaCreatedAt     = "created_at"
	MetaMigrationDate = "migration_date"
)

// pinned returns the forced value for a version key
func (t *Transformer) pinned(key string) (string, bool) {
	switch key {
	case MetaSchemaVersion:
		return t.cfg.SchemaVersion, true
	case MetaAppVersion:
		return t.cfg.AppVersion, true
	}
	return "", false
}

func (t *Transformer) migrateMeta(ctx context.Context, src, dst *store.Store, out *Outcome) error {
	util.InfoLog("Migrating meta table")
	res := out.Result

	entries, err := src.MetaEntries(ctx)
	if err != nil {
		return err
	}
	source := make(map[string]string, len(entries))
	for _, e := range entries {
		source[e.Key] = e.Value
	}

	type write struct{ key, value string }
	var writes []write
	written := make(map[string]bool)

	carry := func(key, value string) {
		if forced, ok := t.pinned(key); ok {
			if value != forced {
				res.Infof("Meta %s forced from %q to %q", key, value, forced)
				writes = append(writes, write{"original_" + key, value})
			}
			value = forced
		}
		if key == MetaCreatedAt {
			value = t.normalizeDate(value, "meta created_at", res)
		}
		writes = append(writes, write{key, value})
		written[key] = true
	}

	for _, spec := range t.cfg.MetaCatalog.Entries() {
		if value, ok := source[spec.Key]; ok {
			carry(spec.Key, value)
			continue
		}
		if !spec.CreateIfMissing {
			continue
		}
		value := spec.Resolve(t.cfg.Now())
		// pinned versions win over the catalog default
		if forced, ok := t.pinned(spec.Key); ok {
			value = forced
		}
		res.Infof("Meta %s missing from source, created with %q", spec.Key, value)
		writes = append(writes, write{spec.Key, value})
		written[spec.Key] = true
	}

	// Keys the catalog does not declare are carried forward as they are
	for _, e := range entries {
		if written[e.Key] || e.Key == MetaMigrationDate {
			continue
		}
		carry(e.Key, e.Value)
	}

	return dst.Transaction(ctx, func(tx *sql.Tx) error {
		for _, w := range writes {
			if err := store.UpsertMeta(ctx, tx, w.key, w.value); err != nil {
				res.Errorf("Failed to migrate meta key %s: %v", w.key, err)
				continue
			}
			out.Counts.Meta++
		}
		if err := store.UpsertMeta(ctx, tx, MetaMigrationDate, t.cfg.Now().UTC().Format(UTCLayout)); err != nil {
			res.Errorf("Failed to record migration date: %v", err)
			return nil
		}
		out.Counts.Meta++
		return nil
	})
}
