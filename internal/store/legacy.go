package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// selectPresent builds a SELECT over wanted, substituting NULL for every
// column the table does not have so scans keep a fixed shape
func (s *Store) selectPresent(ctx context.Context, table string, wanted []string) (sq.SelectBuilder, []string, error) {
	present, err := s.ColumnSet(ctx, table)
	if err != nil {
		return sq.SelectBuilder{}, nil, err
	}

	var missing []string
	builder := psql.Select().From(quoteIdent(table))
	for _, col := range wanted {
		if present[col] {
			builder = builder.Column(quoteIdent(col))
		} else {
			builder = builder.Column("NULL AS " + quoteIdent(col))
			missing = append(missing, col)
		}
	}
	return builder, missing, nil
}

func (s *Store) queryValues(ctx context.Context, builder sq.SelectBuilder, width int, fn func([]any)) error {
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]any, width)
		ptrs := make([]any, width)
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		fn(values)
	}
	return rows.Err()
}

// LegacyShots reads every source shot ordered by order_number, ties broken
// by source row order. The second return lists columns the source lacks
func (s *Store) LegacyShots(ctx context.Context) ([]Shot, []string, error) {
	builder, missing, err := s.selectPresent(ctx, "shots", legacyShotColumns)
	if err != nil {
		return nil, nil, err
	}

	present, _ := s.ColumnSet(ctx, "shots")
	if present["order_number"] {
		builder = builder.OrderBy(quoteIdent("order_number"), "rowid")
	} else {
		builder = builder.OrderBy("rowid")
	}

	var shots []Shot
	err = s.queryValues(ctx, builder, len(legacyShotColumns), func(v []any) {
		shots = append(shots, shotFromValues(v))
	})
	if err != nil {
		return nil, missing, fmt.Errorf("failed to read legacy shots: %w", err)
	}
	return shots, missing, nil
}

// LegacyTakes reads every source take in row order
func (s *Store) LegacyTakes(ctx context.Context) ([]Take, []string, error) {
	builder, missing, err := s.selectPresent(ctx, "takes", legacyTakeColumns)
	if err != nil {
		return nil, nil, err
	}

	var takes []Take
	err = s.queryValues(ctx, builder.OrderBy("rowid"), len(legacyTakeColumns), func(v []any) {
		takes = append(takes, takeFromValues(v))
	})
	if err != nil {
		return nil, missing, fmt.Errorf("failed to read legacy takes: %w", err)
	}
	return takes, missing, nil
}

// LegacyAssets reads every source asset in row order
func (s *Store) LegacyAssets(ctx context.Context) ([]Asset, []string, error) {
	builder, missing, err := s.selectPresent(ctx, "assets", legacyAssetColumns)
	if err != nil {
		return nil, nil, err
	}

	var assets []Asset
	err = s.queryValues(ctx, builder.OrderBy("rowid"), len(legacyAssetColumns), func(v []any) {
		assets = append(assets, assetFromValues(v))
	})
	if err != nil {
		return nil, missing, fmt.Errorf("failed to read legacy assets: %w", err)
	}
	return assets, missing, nil
}

// LegacyDeletedShots reads an audit table carried by some sources.
// A source without one yields no rows
func (s *Store) LegacyDeletedShots(ctx context.Context) ([]DeletedShot, error) {
	exists, err := s.TableExists(ctx, "deleted_shots")
	if err != nil || !exists {
		return nil, err
	}

	builder, _, err := s.selectPresent(ctx, "deleted_shots", legacyDeletedCols)
	if err != nil {
		return nil, err
	}

	var out []DeletedShot
	err = s.queryValues(ctx, builder.OrderBy("rowid"), len(legacyDeletedCols), func(v []any) {
		out = append(out, DeletedShot{
			OldShotID:   nullInt(v[0]).Int64,
			ShotName:    nullString(v[1]),
			CreatedDate: asString(v[2]),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy deleted shots: %w", err)
	}
	return out, nil
}

// MetaEntries returns every key/value pair from the meta table
func (s *Store) MetaEntries(ctx context.Context) ([]MetaEntry, error) {
	exists, err := s.TableExists(ctx, "meta")
	if err != nil || !exists {
		return nil, err
	}

	sqlStr, args, err := psql.Select("key", "value").From("meta").OrderBy("rowid").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read meta: %w", err)
	}
	defer rows.Close()

	var entries []MetaEntry
	for rows.Next() {
		var key, value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan meta row: %w", err)
		}
		entries = append(entries, MetaEntry{Key: key.String, Value: value.String})
	}
	return entries, rows.Err()
}
