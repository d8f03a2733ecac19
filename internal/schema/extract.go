package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/franz/shot-migrator/internal/store"
)

// document is the on-disk layout of a schema definition
type document struct {
	Metadata Metadata       `json:"metadata"`
	Tables   map[string]any `json:"tables"`
	Indexes  map[string]any `json:"indexes"`
	Views    map[string]any `json:"views"`
	Triggers map[string]any `json:"triggers"`
}

// Extract builds a schema definition document from a live database, in the
// same layout Load accepts
func Extract(ctx context.Context, dbPath string) ([]byte, error) {
	st, err := store.OpenExisting(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	doc := document{
		Metadata: Metadata{
			ExtractedAt:   time.Now().UTC().Format(time.RFC3339),
			DatabasePath:  dbPath,
			SQLiteVersion: store.SQLiteVersion(),
		},
		Tables:   make(map[string]any),
		Indexes:  make(map[string]any),
		Views:    map[string]any{},
		Triggers: map[string]any{},
	}

	rows, err := st.DB().QueryContext(ctx, `
		SELECT type, name, COALESCE(sql, '') FROM sqlite_master
		WHERE type IN ('table', 'index')
		ORDER BY type DESC, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read sqlite_master: %w", err)
	}
	type object struct{ kind, name, ddl string }
	var objects []object
	for rows.Next() {
		var o object
		if err := rows.Scan(&o.kind, &o.name, &o.ddl); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan schema object: %w", err)
		}
		objects = append(objects, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range objects {
		switch o.kind {
		case "table":
			doc.Tables[o.name] = o.ddl
			cols, err := st.Columns(ctx, o.name)
			if err != nil {
				return nil, err
			}
			desc := make([]Column, len(cols))
			for i, col := range cols {
				desc[i] = Column{CID: col.CID, Name: col.Name, Type: col.Type, PK: col.PK}
				if col.NotNull {
					desc[i].NotNull = 1
				}
				if col.Default.Valid {
					v := col.Default.String
					desc[i].DefaultValue = &v
				}
			}
			doc.Tables[o.name+columnsSuffix] = desc
		case "index":
			if o.ddl == "" {
				doc.Indexes[o.name] = nil
			} else {
				doc.Indexes[o.name] = o.ddl
			}
		}
	}

	return json.MarshalIndent(doc, "", "  ")
}
