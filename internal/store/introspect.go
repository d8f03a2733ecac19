package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ColumnInfo is one row of PRAGMA table_info
type ColumnInfo struct {
	CID     int
	Name    string
	Type    string
	NotNull bool
	Default sql.NullString
	PK      int
}

// IndexInfo describes an index found in sqlite_master
type IndexInfo struct {
	Name  string
	Table string
	SQL   sql.NullString
}

// IsAutoIndex reports whether the engine created the index implicitly
func IsAutoIndex(name string) bool {
	return strings.HasPrefix(name, "sqlite_autoindex")
}

// TableExists reports whether a table with the given name exists
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// Tables returns user table names, excluding sqlite internal tables
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Indexes returns every index in the database, auto indexes included
func (s *Store) Indexes(ctx context.Context) ([]IndexInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, tbl_name, sql FROM sqlite_master
		WHERE type='index'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()

	var indexes []IndexInfo
	for rows.Next() {
		var idx IndexInfo
		if err := rows.Scan(&idx.Name, &idx.Table, &idx.SQL); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// Columns returns the declared columns of a table in cid order
func (s *Store) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+quoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var notNull int
		if err := rows.Scan(&c.CID, &c.Name, &c.Type, &notNull, &c.Default, &c.PK); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		c.NotNull = notNull != 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// ColumnSet returns the column names of a table as a set
func (s *Store) ColumnSet(ctx context.Context, table string) (map[string]bool, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c.Name] = true
	}
	return set, nil
}

// CountRows returns the number of rows in a table
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// EnsureOptionalTable creates an empty legacy assets or meta table when
// absent. Returns true when the table had to be created
func (s *Store) EnsureOptionalTable(ctx context.Context, table string) (bool, error) {
	ddl, ok := optionalLegacyTables[table]
	if !ok {
		return false, fmt.Errorf("table %s is not optional", table)
	}
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return false, fmt.Errorf("failed to create %s table: %w", table, err)
	}
	return true, nil
}
