// Package project describes the on-disk layout of a shot project and creates
// the skeleton of a migrated one.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/media"
	"github.com/franz/shot-migrator/internal/remap"
	"github.com/franz/shot-migrator/internal/util"
)

const (
	DataDir        = "data"
	MediaDir       = "media"
	LogsDir        = "logs"
	ReportsDir     = "migration_reports"
	DatabaseFile   = "shots.db"
	ConfigFile     = "project_config.json"
	MappingFile    = "shot_name_mapping.json"
	ProjectLog     = "project_log.log"
	DefaultSection = "All Sections"
)

// OptionalDataDirs are created in every new project but may be absent
var OptionalDataDirs = []string{"csv", "backup", "saves"}

// Layout resolves the well-known paths of a project rooted at Root
type Layout struct {
	Root string
}

// New returns the layout of the project at root
func New(root string) Layout {
	return Layout{Root: root}
}

// Name is the project directory name
func (l Layout) Name() string {
	return filepath.Base(filepath.Clean(l.Root))
}

func (l Layout) DataPath() string     { return filepath.Join(l.Root, DataDir) }
func (l Layout) MediaPath() string    { return filepath.Join(l.Root, MediaDir) }
func (l Layout) LogsPath() string     { return filepath.Join(l.Root, LogsDir) }
func (l Layout) ReportsPath() string  { return filepath.Join(l.Root, ReportsDir) }
func (l Layout) DatabasePath() string { return filepath.Join(l.Root, DataDir, DatabaseFile) }
func (l Layout) ConfigPath() string   { return filepath.Join(l.Root, ConfigFile) }

// MappingPaths returns the root-level and data-level mapping side files
func (l Layout) MappingPaths() []string {
	return []string{
		filepath.Join(l.Root, MappingFile),
		filepath.Join(l.Root, DataDir, MappingFile),
	}
}

// OptionalDirs returns the directories whose absence is only worth a warning
func (l Layout) OptionalDirs() []string {
	var dirs []string
	for _, d := range OptionalDataDirs {
		dirs = append(dirs, filepath.Join(l.DataPath(), d))
	}
	return append(dirs, l.LogsPath())
}

// AssetDirs returns the asset category folders under media
func (l Layout) AssetDirs() []string {
	var dirs []string
	for _, c := range media.AssetCategories {
		dirs = append(dirs, filepath.Join(l.MediaPath(), c))
	}
	return dirs
}

// Config is the project_config.json document
type Config struct {
	LastSelectedWorkflow string `json:"last_selected_workflow"`
	ProjectStartDate     string `json:"project_start_date"`
	LastSelectedSection  string `json:"last_selected_section"`
}

// DefaultConfig returns the configuration of a fresh project started on day
func DefaultConfig(day time.Time) Config {
	return Config{
		LastSelectedWorkflow: "",
		ProjectStartDate:     day.Format("2006-01-02"),
		LastSelectedSection:  DefaultSection,
	}
}

// CreateSkeleton creates the directory tree of a new project. Existing
// directories are left alone
func (l Layout) CreateSkeleton(fsys afero.Fs) error {
	dirs := []string{l.Root, l.DataPath(), l.MediaPath(), l.LogsPath()}
	dirs = append(dirs, l.OptionalDirs()...)
	dirs = append(dirs, l.AssetDirs()...)

	for _, d := range dirs {
		if err := fsys.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("%w: failed to create %s: %v", util.ErrTargetNotWritable, d, err)
		}
	}

	logPath := filepath.Join(l.LogsPath(), ProjectLog)
	if exists, _ := afero.Exists(fsys, logPath); !exists {
		if err := afero.WriteFile(fsys, logPath, nil, 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", logPath, err)
		}
	}

	util.DebugLog("Created project skeleton at %s", l.Root)
	return nil
}

// WriteConfig writes project_config.json unless one already exists
func (l Layout) WriteConfig(fsys afero.Fs, cfg Config) error {
	if exists, _ := afero.Exists(fsys, l.ConfigPath()); exists {
		return nil
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode project config: %w", err)
	}
	if err := afero.WriteFile(fsys, l.ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	return nil
}

// ReadConfig loads project_config.json
func (l Layout) ReadConfig(fsys afero.Fs) (Config, error) {
	var cfg Config
	data, err := afero.ReadFile(fsys, l.ConfigPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", util.ErrNotFound, l.ConfigPath())
		}
		return cfg, fmt.Errorf("failed to read project config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse project config: %w", err)
	}
	return cfg, nil
}

// CopyConfigFrom carries the source project's project_config.json forward.
// It reports false when the source has none
func (l Layout) CopyConfigFrom(fsys afero.Fs, source Layout) (bool, error) {
	data, err := afero.ReadFile(fsys, source.ConfigPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read source project config: %w", err)
	}
	if err := afero.WriteFile(fsys, l.ConfigPath(), data, 0644); err != nil {
		return false, fmt.Errorf("failed to copy project config: %w", err)
	}
	return true, nil
}

// WriteMappings writes the shot name mapping to both side files
func (l Layout) WriteMappings(fsys afero.Fs, m *remap.Mapping) error {
	for _, p := range l.MappingPaths() {
		if err := fsys.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(p), err)
		}
		if err := remap.WriteSideFile(fsys, p, m); err != nil {
			return err
		}
	}
	return nil
}

// ReadMapping loads the mapping from the first side file that exists
func (l Layout) ReadMapping(fsys afero.Fs) (*remap.Mapping, error) {
	var lastErr error
	for _, p := range l.MappingPaths() {
		if exists, _ := afero.Exists(fsys, p); !exists {
			continue
		}
		m, _, err := remap.ReadSideFile(fsys, p)
		if err == nil {
			return m, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: no %s in %s", util.ErrNotFound, MappingFile, l.Root)
}
