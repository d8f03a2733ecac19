package schema

import (
	"context"
	"fmt"
	"sort"

	"github.com/franz/shot-migrator/internal/store"
)

// ColumnDiff lists per-table column differences
type ColumnDiff struct {
	Missing []string `json:"missing"`
	Extra   []string `json:"extra"`
}

// Validation is the outcome of comparing a live database with the catalog.
// Valid is false when any table, index or column is missing; extra objects
// are reported but do not invalidate
type Validation struct {
	Valid          bool                  `json:"valid"`
	MissingTables  []string              `json:"missing_tables"`
	ExtraTables    []string              `json:"extra_tables"`
	MissingIndexes []string              `json:"missing_indexes"`
	ExtraIndexes   []string              `json:"extra_indexes"`
	Columns        map[string]ColumnDiff `json:"columns"`
}

// MissingColumns reports whether any table lacks a declared column
func (v *Validation) MissingColumns() bool {
	for _, d := range v.Columns {
		if len(d.Missing) > 0 {
			return true
		}
	}
	return false
}

// TablesWithDiffs returns table names with column differences, sorted
func (v *Validation) TablesWithDiffs() []string {
	names := make([]string, 0, len(v.Columns))
	for name := range v.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate compares the database at dbPath with the catalog
func (c *Catalog) Validate(ctx context.Context, dbPath string) (*Validation, error) {
	st, err := store.OpenExisting(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return c.ValidateStore(ctx, st)
}

// ValidateStore compares an open database with the catalog
func (c *Catalog) ValidateStore(ctx context.Context, st *store.Store) (*Validation, error) {
	v := &Validation{Columns: make(map[string]ColumnDiff)}

	liveTables, err := st.Tables(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(liveTables))
	for _, name := range liveTables {
		live[name] = true
	}

	declared := make(map[string]bool, len(c.tables))
	for _, t := range c.tables {
		declared[t.Name] = true
		if !live[t.Name] {
			v.MissingTables = append(v.MissingTables, t.Name)
			continue
		}

		liveCols, err := st.ColumnSet(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", t.Name, err)
		}
		diff := diffColumns(t.Columns, liveCols)
		if len(diff.Missing) > 0 || len(diff.Extra) > 0 {
			v.Columns[t.Name] = diff
		}
	}
	for _, name := range liveTables {
		if !declared[name] {
			v.ExtraTables = append(v.ExtraTables, name)
		}
	}

	liveIndexes, err := st.Indexes(ctx)
	if err != nil {
		return nil, err
	}
	liveIdx := make(map[string]bool, len(liveIndexes))
	for _, idx := range liveIndexes {
		liveIdx[idx.Name] = true
	}
	declaredIdx := make(map[string]bool, len(c.indexes))
	for _, idx := range c.indexes {
		declaredIdx[idx.Name] = true
		if store.IsAutoIndex(idx.Name) {
			continue
		}
		if !liveIdx[idx.Name] {
			v.MissingIndexes = append(v.MissingIndexes, idx.Name)
		}
	}
	for _, idx := range liveIndexes {
		if store.IsAutoIndex(idx.Name) || declaredIdx[idx.Name] {
			continue
		}
		v.ExtraIndexes = append(v.ExtraIndexes, idx.Name)
	}

	v.Valid = len(v.MissingTables) == 0 && len(v.MissingIndexes) == 0 && !v.MissingColumns()
	return v, nil
}

func diffColumns(declared []Column, live map[string]bool) ColumnDiff {
	var d ColumnDiff
	want := make(map[string]bool, len(declared))
	for _, col := range declared {
		want[col.Name] = true
		if !live[col.Name] {
			d.Missing = append(d.Missing, col.Name)
		}
	}
	for name := range live {
		if !want[name] {
			d.Extra = append(d.Extra, name)
		}
	}
	sort.Strings(d.Extra)
	return d
}
