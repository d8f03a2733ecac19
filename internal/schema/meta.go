package schema

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/franz/shot-migrator/internal/util"
)

//go:embed defaults/meta_entries.json
var defaultMetaEntries []byte

// DynamicTimestamp is the reserved value replaced by the current UTC
// timestamp when an entry is written
const DynamicTimestamp = "CURRENT_UTC_TIMESTAMP"

// MetaSpec declares one meta key
type MetaSpec struct {
	Key             string `yaml:"-"`
	Value           string `yaml:"value"`
	CreateIfMissing bool   `yaml:"create_if_missing"`
	Dynamic         bool   `yaml:"dynamic"`
}

// Resolve returns the value to write for a synthesized entry, stamping
// dynamic entries with now
func (m MetaSpec) Resolve(now time.Time) string {
	if m.Dynamic || m.Value == DynamicTimestamp {
		return util.FormatUTC(now)
	}
	return m.Value
}

// MetaCatalog is the ordered set of declared meta keys
type MetaCatalog struct {
	entries []MetaSpec
}

// LoadMetaCatalog reads a meta-entries file (JSON or YAML)
func LoadMetaCatalog(path string) (*MetaCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrSchemaLoad, path, err)
	}
	mc, err := ParseMetaCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", util.ErrSchemaLoad, path, err)
	}
	return mc, nil
}

// DefaultMetaCatalog returns the catalog compiled into the binary
func DefaultMetaCatalog() *MetaCatalog {
	mc, err := ParseMetaCatalog(defaultMetaEntries)
	if err != nil {
		panic(fmt.Sprintf("embedded meta entries are invalid: %v", err))
	}
	return mc
}

// ParseMetaCatalog decodes a meta-entries document keeping key order
func ParseMetaCatalog(data []byte) (*MetaCatalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse meta entries: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("meta entries must be an object")
	}
	root := doc.Content[0]

	mc := &MetaCatalog{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if seen[key] {
			return nil, fmt.Errorf("meta key %s declared twice", key)
		}
		seen[key] = true

		var spec MetaSpec
		if err := root.Content[i+1].Decode(&spec); err != nil {
			return nil, fmt.Errorf("invalid meta entry %s: %w", key, err)
		}
		spec.Key = key
		mc.entries = append(mc.entries, spec)
	}
	return mc, nil
}

// NewMetaCatalog builds a catalog from explicit specs
func NewMetaCatalog(specs ...MetaSpec) *MetaCatalog {
	return &MetaCatalog{entries: append([]MetaSpec(nil), specs...)}
}

// Entries returns the declared entries in document order
func (mc *MetaCatalog) Entries() []MetaSpec {
	return append([]MetaSpec(nil), mc.entries...)
}

// Lookup returns the entry for key
func (mc *MetaCatalog) Lookup(key string) (MetaSpec, bool) {
	for _, e := range mc.entries {
		if e.Key == key {
			return e, true
		}
	}
	return MetaSpec{}, false
}
