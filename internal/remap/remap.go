// Package remap holds the legacy shot name to shot id mapping built while
// shots are migrated.
package remap

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"github.com/franz/shot-migrator/internal/util"
)

// Entry is one name/id pair
type Entry struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

// Builder collects entries during the shot pass. It is not safe for
// concurrent use and refuses writes once frozen
type Builder struct {
	byName map[string]int64
	byID   map[int64]string
	frozen bool
}

// NewBuilder returns an empty builder
func NewBuilder() *Builder {
	return &Builder{
		byName: make(map[string]int64),
		byID:   make(map[int64]string),
	}
}

// Add records name -> id. Both sides must be unique and id positive
func (b *Builder) Add(name string, id int64) error {
	if b.frozen {
		return util.ErrMappingFrozen
	}
	if id <= 0 {
		return fmt.Errorf("invalid shot id %d for %q", id, name)
	}
	if prev, ok := b.byName[name]; ok {
		return fmt.Errorf("%w: shot name %q already mapped to %d", util.ErrDuplicate, name, prev)
	}
	if prev, ok := b.byID[id]; ok {
		return fmt.Errorf("%w: shot id %d already mapped to %q", util.ErrDuplicate, id, prev)
	}
	b.byName[name] = id
	b.byID[id] = name
	return nil
}

// Has reports whether name was already added
func (b *Builder) Has(name string) bool {
	_, ok := b.byName[name]
	return ok
}

// Len returns the number of entries added so far
func (b *Builder) Len() int {
	return len(b.byName)
}

// Freeze ends the build and returns the read-only mapping
func (b *Builder) Freeze() *Mapping {
	b.frozen = true
	m := &Mapping{
		byName: make(map[string]int64, len(b.byName)),
		byID:   make(map[int64]string, len(b.byID)),
		folded: make(map[string]int64, len(b.byName)),
	}
	for name, id := range b.byName {
		m.byName[name] = id
		m.byID[id] = name
		m.folded[norm.NFC.String(name)] = id
	}
	return m
}

// Mapping is the frozen name -> id relation. Safe for concurrent readers
type Mapping struct {
	byName map[string]int64
	byID   map[int64]string
	folded map[string]int64
}

// FromMap builds a frozen mapping from a plain map, as read from a side file
func FromMap(entries map[string]int64) (*Mapping, error) {
	b := NewBuilder()
	for name, id := range entries {
		if err := b.Add(name, id); err != nil {
			return nil, err
		}
	}
	return b.Freeze(), nil
}

// Lookup returns the shot id for a legacy name. Names that differ only in
// Unicode normalization form resolve to the same shot
func (m *Mapping) Lookup(name string) (int64, bool) {
	if id, ok := m.byName[name]; ok {
		return id, true
	}
	id, ok := m.folded[norm.NFC.String(name)]
	return id, ok
}

// NameFor returns the legacy name of a shot id
func (m *Mapping) NameFor(id int64) (string, bool) {
	name, ok := m.byID[id]
	return name, ok
}

// HasID reports whether id belongs to a mapped shot
func (m *Mapping) HasID(id int64) bool {
	_, ok := m.byID[id]
	return ok
}

// Len returns the number of mapped shots
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byName)
}

// Entries returns all pairs ordered by id
func (m *Mapping) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, 0, len(m.byName))
	for name, id := range m.byName {
		out = append(out, Entry{Name: name, ID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Names returns the legacy shot names ordered by id
func (m *Mapping) Names() []string {
	entries := m.Entries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Map returns a copy of the mapping as a plain map
func (m *Mapping) Map() map[string]int64 {
	out := make(map[string]int64, m.Len())
	if m == nil {
		return out
	}
	for name, id := range m.byName {
		out[name] = id
	}
	return out
}

// SideFile is the JSON document written next to the project database
type SideFile struct {
	Version string           `json:"version"`
	Created string           `json:"created"`
	Mapping map[string]int64 `json:"mapping"`
}

// SideFileVersion is the format version of SideFile
const SideFileVersion = "1.0"

// WriteSideFile writes the mapping to path as a SideFile document
func WriteSideFile(fsys afero.Fs, path string, m *Mapping) error {
	doc := SideFile{
		Version: SideFileVersion,
		Created: util.UTCTimestamp(),
		Mapping: m.Map(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode shot mapping: %w", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write shot mapping %s: %w", path, err)
	}
	return nil
}

// ReadSideFile loads a mapping previously written by WriteSideFile
func ReadSideFile(fsys afero.Fs, path string) (*Mapping, *SideFile, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read shot mapping %s: %w", path, err)
	}
	var doc SideFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse shot mapping %s: %w", path, err)
	}
	m, err := FromMap(doc.Mapping)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid shot mapping %s: %w", path, err)
	}
	return m, &doc, nil
}
