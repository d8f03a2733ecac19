package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// InsertShot inserts a shot and returns the identifier assigned by the engine
func InsertShot(ctx context.Context, tx *sql.Tx, s *Shot) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO shots (
			order_number, shot_name, section, description,
			image_prompt, colour_scheme_image, time_of_day,
			location, country, year, video_prompt, created_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.OrderNumber, s.Name, s.Section, s.Description,
		s.ImagePrompt, s.ColourSchemeImage, s.TimeOfDay,
		s.Location, s.Country, s.Year, s.VideoPrompt, s.CreatedDate)
	if err != nil {
		return 0, fmt.Errorf("failed to insert shot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get shot ID: %w", err)
	}
	s.ID = id
	return id, nil
}

// InsertTake inserts a take row
func InsertTake(ctx context.Context, tx *sql.Tx, t *Take) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO takes (take_id, shot_id, take_type, file_path, starred, created_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.ShotID, t.TakeType, t.FilePath, t.Starred, t.CreatedDate)
	if err != nil {
		return fmt.Errorf("failed to insert take: %w", err)
	}
	return nil
}

// InsertAsset inserts an asset row
func InsertAsset(ctx context.Context, tx *sql.Tx, a *Asset) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO assets (id_key, asset_name, asset_type, file_path, starred, created_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.IDKey, a.Name, a.Type, a.FilePath, a.Starred, a.CreatedDate)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

// InsertDeletedShot appends an audit row
func InsertDeletedShot(ctx context.Context, tx *sql.Tx, d *DeletedShot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deleted_shots (old_shot_id, shot_name, created_date)
		VALUES (?, ?, ?)
	`, d.OldShotID, d.ShotName, d.CreatedDate)
	if err != nil {
		return fmt.Errorf("failed to insert deleted shot: %w", err)
	}
	return nil
}

// UpsertMeta writes a meta key, replacing any previous value
func UpsertMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to upsert meta %s: %w", key, err)
	}
	return nil
}

// TakeExists reports whether a take with the given shot, type and path exists
func TakeExists(ctx context.Context, tx *sql.Tx, shotID int64, takeType, filePath string) (bool, error) {
	sqlStr, args, err := psql.Select("COUNT(*)").From("takes").
		Where(sq.Eq{"shot_id": shotID, "take_type": takeType, "file_path": filePath}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build SQL: %w", err)
	}

	var n int
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up take: %w", err)
	}
	return n > 0, nil
}

// AssetPathExists reports whether any asset row stores the given path
func AssetPathExists(ctx context.Context, tx *sql.Tx, filePath string) (bool, error) {
	sqlStr, args, err := psql.Select("COUNT(*)").From("assets").
		Where(sq.Eq{"file_path": filePath}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build SQL: %w", err)
	}

	var n int
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up asset: %w", err)
	}
	return n > 0, nil
}

// ListShots returns every migrated shot ordered by id
func (s *Store) ListShots(ctx context.Context) ([]Shot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT shot_id, order_number, COALESCE(shot_name, ''), section, description,
		       image_prompt, colour_scheme_image, time_of_day,
		       location, country, year, video_prompt, COALESCE(created_date, '')
		FROM shots ORDER BY shot_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shots: %w", err)
	}
	defer rows.Close()

	var shots []Shot
	for rows.Next() {
		var sh Shot
		if err := rows.Scan(&sh.ID, &sh.OrderNumber, &sh.Name, &sh.Section, &sh.Description,
			&sh.ImagePrompt, &sh.ColourSchemeImage, &sh.TimeOfDay,
			&sh.Location, &sh.Country, &sh.Year, &sh.VideoPrompt, &sh.CreatedDate); err != nil {
			return nil, fmt.Errorf("failed to scan shot: %w", err)
		}
		shots = append(shots, sh)
	}
	return shots, rows.Err()
}

// ListTakes returns every take ordered by shot and path
func (s *Store) ListTakes(ctx context.Context) ([]Take, error) {
	return s.queryTakes(ctx, `
		SELECT COALESCE(take_id, ''), COALESCE(shot_id, 0), COALESCE(take_type, ''),
		       COALESCE(file_path, ''), COALESCE(starred, 0), COALESCE(created_date, '')
		FROM takes ORDER BY shot_id, file_path
	`)
}

// OrphanedTakes returns takes whose shot_id has no matching shot
func (s *Store) OrphanedTakes(ctx context.Context) ([]Take, error) {
	return s.queryTakes(ctx, `
		SELECT COALESCE(t.take_id, ''), COALESCE(t.shot_id, 0), COALESCE(t.take_type, ''),
		       COALESCE(t.file_path, ''), COALESCE(t.starred, 0), COALESCE(t.created_date, '')
		FROM takes t
		LEFT JOIN shots s ON t.shot_id = s.shot_id
		WHERE s.shot_id IS NULL
	`)
}

func (s *Store) queryTakes(ctx context.Context, query string) ([]Take, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query takes: %w", err)
	}
	defer rows.Close()

	var takes []Take
	for rows.Next() {
		var t Take
		if err := rows.Scan(&t.ID, &t.ShotID, &t.TakeType, &t.FilePath, &t.Starred, &t.CreatedDate); err != nil {
			return nil, fmt.Errorf("failed to scan take: %w", err)
		}
		takes = append(takes, t)
	}
	return takes, rows.Err()
}

// ListAssets returns every asset ordered by id_key
func (s *Store) ListAssets(ctx context.Context) ([]Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(id_key, ''), asset_name, asset_type, COALESCE(file_path, ''),
		       COALESCE(starred, 0), COALESCE(created_date, '')
		FROM assets ORDER BY id_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.IDKey, &a.Name, &a.Type, &a.FilePath, &a.Starred, &a.CreatedDate); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// DuplicateShotNames returns names that occur on more than one shot
func (s *Store) DuplicateShotNames(ctx context.Context) ([]NameCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT shot_name, COUNT(*) FROM shots
		GROUP BY shot_name HAVING COUNT(*) > 1
		ORDER BY shot_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate shot names: %w", err)
	}
	defer rows.Close()

	var out []NameCount
	for rows.Next() {
		var name sql.NullString
		var nc NameCount
		if err := rows.Scan(&name, &nc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate: %w", err)
		}
		nc.Name = name.String
		out = append(out, nc)
	}
	return out, rows.Err()
}

// AssetIDsWithoutPrefix returns asset ids that do not start with prefix
func (s *Store) AssetIDsWithoutPrefix(ctx context.Context, prefix string) ([]string, error) {
	sqlStr, args, err := psql.Select("COALESCE(id_key, '')").From("assets").
		Where(sq.Expr("substr(COALESCE(id_key, ''), 1, ?) != ?", len(prefix), prefix)).
		OrderBy("id_key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan asset id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MetaValue returns the value stored under key
func (s *Store) MetaValue(ctx context.Context, key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value.String, true, nil
}

// SampleShotDates returns up to limit shots' names and created_date values
func (s *Store) SampleShotDates(ctx context.Context, limit int) ([]Shot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT shot_id, COALESCE(shot_name, ''), COALESCE(created_date, '')
		FROM shots ORDER BY shot_id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample shot dates: %w", err)
	}
	defer rows.Close()

	var shots []Shot
	for rows.Next() {
		var sh Shot
		if err := rows.Scan(&sh.ID, &sh.Name, &sh.CreatedDate); err != nil {
			return nil, fmt.Errorf("failed to scan shot date: %w", err)
		}
		shots = append(shots, sh)
	}
	return shots, rows.Err()
}
