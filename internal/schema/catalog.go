// Package schema loads the declarative description of the target database
// and uses it both to create fresh databases and to audit existing ones.
package schema

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/franz/shot-migrator/internal/store"
	"github.com/franz/shot-migrator/internal/util"
)

//go:embed defaults/shot_db_schema.json
var defaultSchema []byte

const columnsSuffix = "_columns"

// Metadata describes where a schema document was extracted from
type Metadata struct {
	ExtractedAt   string `yaml:"extracted_at" json:"extracted_at"`
	DatabasePath  string `yaml:"database_path" json:"database_path"`
	SQLiteVersion string `yaml:"sqlite_version" json:"sqlite_version"`
}

// Column is one declared column descriptor
type Column struct {
	CID          int     `yaml:"cid" json:"cid"`
	Name         string  `yaml:"name" json:"name"`
	Type         string  `yaml:"type" json:"type"`
	NotNull      int     `yaml:"notnull" json:"notnull"`
	DefaultValue *string `yaml:"default_value" json:"default_value"`
	PK           int     `yaml:"pk" json:"pk"`
}

// Table is one declared table
type Table struct {
	Name    string
	DDL     string
	Columns []Column
}

// Index is one declared index. DDL is empty for engine-generated indexes
type Index struct {
	Name string
	DDL  string
}

// Catalog is a loaded schema definition. Tables and indexes keep document order
type Catalog struct {
	info    Metadata
	tables  []Table
	byName  map[string]int
	indexes []Index
	source  string
}

// Load reads a schema definition file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrSchemaLoad, path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrSchemaLoad, path, err)
	}
	c.source = path
	util.DebugLog("Loaded schema catalog %s: %d tables, %d indexes", path, len(c.tables), len(c.indexes))
	return c, nil
}

// LoadDefault returns the catalog compiled into the binary
func LoadDefault() *Catalog {
	c, err := Parse(defaultSchema)
	if err != nil {
		panic(fmt.Sprintf("embedded schema is invalid: %v", err))
	}
	c.source = "embedded"
	return c
}

// DefaultDocument returns the embedded schema document
func DefaultDocument() []byte {
	return append([]byte(nil), defaultSchema...)
}

// Parse decodes a schema document. JSON is accepted as YAML flow syntax,
// which keeps key order available through yaml.Node
func Parse(data []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("schema document must be an object")
	}
	root := doc.Content[0]

	c := &Catalog{byName: make(map[string]int)}
	var sawTables bool
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		switch key {
		case "metadata":
			if err := value.Decode(&c.info); err != nil {
				return nil, fmt.Errorf("invalid metadata: %w", err)
			}
		case "tables":
			sawTables = true
			if err := c.parseTables(value); err != nil {
				return nil, err
			}
		case "indexes":
			if err := c.parseIndexes(value); err != nil {
				return nil, err
			}
		case "views", "triggers":
			// reserved
		}
	}
	if !sawTables {
		return nil, fmt.Errorf("schema has no tables section")
	}
	return c, nil
}

func (c *Catalog) parseTables(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("tables must be an object")
	}

	columns := make(map[string][]Column)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, value := node.Content[i].Value, node.Content[i+1]
		switch value.Kind {
		case yaml.SequenceNode:
			if !strings.HasSuffix(name, columnsSuffix) {
				return fmt.Errorf("table %s: expected DDL string", name)
			}
			var cols []Column
			if err := value.Decode(&cols); err != nil {
				return fmt.Errorf("invalid column list %s: %w", name, err)
			}
			columns[strings.TrimSuffix(name, columnsSuffix)] = cols
		case yaml.ScalarNode:
			if name == "sqlite_sequence" {
				continue
			}
			if _, dup := c.byName[name]; dup {
				return fmt.Errorf("table %s declared twice", name)
			}
			c.byName[name] = len(c.tables)
			c.tables = append(c.tables, Table{Name: name, DDL: value.Value})
		default:
			return fmt.Errorf("table %s: unexpected value", name)
		}
	}

	for name, cols := range columns {
		if idx, ok := c.byName[name]; ok {
			c.tables[idx].Columns = cols
		}
	}
	return nil
}

func (c *Catalog) parseIndexes(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("indexes must be an object")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, value := node.Content[i].Value, node.Content[i+1]
		idx := Index{Name: name}
		if value.Kind == yaml.ScalarNode && value.ShortTag() != "!!null" {
			idx.DDL = value.Value
		}
		c.indexes = append(c.indexes, idx)
	}
	return nil
}

// Info returns the document metadata
func (c *Catalog) Info() Metadata {
	return c.info
}

// Source returns the file the catalog was loaded from
func (c *Catalog) Source() string {
	return c.source
}

// Tables returns the declared tables in document order
func (c *Catalog) Tables() []Table {
	return append([]Table(nil), c.tables...)
}

// TableNames returns declared table names in document order
func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.tables))
	for i, t := range c.tables {
		names[i] = t.Name
	}
	return names
}

// Table returns a declared table by name
func (c *Catalog) Table(name string) (Table, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return Table{}, false
	}
	return c.tables[idx], true
}

// ColumnNames returns the declared column names for a table
func (c *Catalog) ColumnNames(table string) []string {
	t, ok := c.Table(table)
	if !ok {
		return nil
	}
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// Indexes returns the declared indexes, engine-generated ones included
func (c *Catalog) Indexes() []Index {
	return append([]Index(nil), c.indexes...)
}

// DeclaredIndexes returns the indexes that can be created from DDL
func (c *Catalog) DeclaredIndexes() []Index {
	var out []Index
	for _, idx := range c.indexes {
		if store.IsAutoIndex(idx.Name) || idx.DDL == "" {
			continue
		}
		out = append(out, idx)
	}
	return out
}

// Materialize creates every declared table and index in a fresh database
func (c *Catalog) Materialize(ctx context.Context, dbPath string) error {
	st, err := store.OpenWithOptions(dbPath, &store.OpenOptions{CreateDir: true})
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrTargetNotWritable, err)
	}
	defer st.Close()

	return c.MaterializeInto(ctx, st)
}

// MaterializeInto creates the declared tables and indexes through an open store
func (c *Catalog) MaterializeInto(ctx context.Context, st *store.Store) error {
	util.InfoLog("Creating database schema from %s catalog", c.sourceLabel())

	return st.Transaction(ctx, func(tx *sql.Tx) error {
		for _, t := range c.tables {
			if _, err := tx.ExecContext(ctx, t.DDL); err != nil {
				return fmt.Errorf("failed to create table %s: %w", t.Name, err)
			}
			util.DebugLog("Created table %s", t.Name)
		}
		for _, idx := range c.DeclaredIndexes() {
			if _, err := tx.ExecContext(ctx, idx.DDL); err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.Name, err)
			}
			util.DebugLog("Created index %s", idx.Name)
		}
		return nil
	})
}

func (c *Catalog) sourceLabel() string {
	if c.source == "" {
		return "in-memory"
	}
	return c.source
}
