package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/remap"
	"github.com/franz/shot-migrator/internal/result"
	"github.com/franz/shot-migrator/internal/util"
)

// Report file names inside the reports directory
const (
	UserReportFile      = "migration_report.md"
	DeveloperReportFile = "developer_report.md"
	JSONReportFile      = "migration_report.json"
	ErrorFile           = "migration_error.txt"
)

// Phase statuses
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
)

// PhaseRecord is the outcome of one pipeline phase
type PhaseRecord struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"-"`
	Seconds   float64       `json:"duration"`
	Details   string        `json:"details,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
}

// Stats are the counters gathered across phases
type Stats struct {
	Shots            int   `json:"shots"`
	Takes            int   `json:"takes"`
	SkippedTakes     int   `json:"skipped_takes"`
	Assets           int   `json:"assets"`
	MetaEntries      int   `json:"meta_entries"`
	DeletedShots     int   `json:"deleted_shots"`
	WorkflowTakes    int   `json:"workflow_takes"`
	RegisteredAssets int   `json:"registered_assets"`
	SourceFiles      int   `json:"source_files"`
	SourceBytes      int64 `json:"source_bytes"`
	ShotFolders      int   `json:"shot_folders"`
	AssetFolders     int   `json:"asset_folders"`
	FilesCopied      int   `json:"files_copied"`
	ZeroByteFiles    int   `json:"zero_byte_files"`
	BytesWritten     int64 `json:"bytes_written"`
}

// MigrationReport is everything the reports render. The pipeline fills it
// as phases complete, so a failed run still carries partial data
type MigrationReport struct {
	GeneratedAt   time.Time
	SourcePath    string
	TargetPath    string
	StartTime     time.Time
	EndTime       time.Time
	AppVersion    string
	SchemaVersion string
	SQLiteVersion string

	Phases  []PhaseRecord
	Mapping *remap.Mapping
	Stats   Stats
	result.Result

	IntegrityRan        bool
	IntegrityPassed     bool
	IntegrityReportPath string
	EventLogPath        string
	BackupPath          string
}

// AddPhase appends a completed phase
func (r *MigrationReport) AddPhase(p PhaseRecord) {
	if p.Duration == 0 && !p.EndTime.IsZero() {
		p.Duration = p.EndTime.Sub(p.StartTime)
	}
	p.Seconds = p.Duration.Seconds()
	r.Phases = append(r.Phases, p)
}

// Status is SUCCESS when no errors were recorded
func (r *MigrationReport) Status() string {
	if r.Success() {
		return StatusSuccess
	}
	return StatusFailed
}

func (r *MigrationReport) projectName() string {
	if r.TargetPath == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(r.TargetPath))
}

// WriteAll renders the user, developer and JSON reports into dir. When any
// of them cannot be written, a plain-text error file is attempted instead
func WriteAll(fsys afero.Fs, dir string, r *MigrationReport) ([]string, error) {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	writers := []struct {
		name   string
		render func(*MigrationReport) ([]byte, error)
	}{
		{UserReportFile, renderUser},
		{DeveloperReportFile, renderDeveloper},
		{JSONReportFile, renderJSON},
	}

	var paths []string
	for _, w := range writers {
		path := filepath.Join(dir, w.name)
		data, err := w.render(r)
		if err == nil {
			err = afero.WriteFile(fsys, path, data, 0644)
		}
		if err != nil {
			err = fmt.Errorf("failed to write %s: %w", w.name, err)
			if errPath, werr := WriteErrorFile(fsys, dir, err, r); werr == nil {
				util.WarnLog("Error details saved to %s", errPath)
				paths = append(paths, errPath)
			}
			return paths, err
		}
		paths = append(paths, path)
	}
	util.DebugLog("Wrote %d migration reports to %s", len(paths), dir)
	return paths, nil
}

// WriteErrorFile writes the last-resort migration_error.txt
func WriteErrorFile(fsys afero.Fs, dir string, cause error, r *MigrationReport) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Migration failed with error: %v\n", cause)
	if r != nil {
		fmt.Fprintf(&b, "Source: %s\nTarget: %s\n", r.SourcePath, r.TargetPath)
		for _, p := range r.Phases {
			fmt.Fprintf(&b, "Phase %s: %s (%s)\n", p.Name, p.Status, util.FormatDuration(p.Duration))
		}
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "Error: %s\n", e)
		}
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, ErrorFile)
	if err := afero.WriteFile(fsys, path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write error file: %w", err)
	}
	return path, nil
}

func renderUser(r *MigrationReport) ([]byte, error) {
	var md strings.Builder

	md.WriteString("# Shot Project Migration Report\n\n")

	md.WriteString("## Summary\n\n")
	md.WriteString(fmt.Sprintf("- Migration Date: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05")))
	md.WriteString(fmt.Sprintf("- Total Shots Migrated: %d\n", r.Mapping.Len()))
	md.WriteString(fmt.Sprintf("- Project: %s\n", r.projectName()))
	if r.SourcePath != "" {
		md.WriteString(fmt.Sprintf("- Source: `%s`\n", r.SourcePath))
	}
	if r.BackupPath != "" {
		md.WriteString(fmt.Sprintf("- Backup: `%s`\n", r.BackupPath))
	}
	md.WriteString("\n")

	md.WriteString("## Migration Status\n\n")
	md.WriteString(fmt.Sprintf("- Total Errors: %d\n", len(r.Errors)))
	md.WriteString(fmt.Sprintf("- Total Warnings: %d\n", len(r.Warnings)))
	md.WriteString(fmt.Sprintf("- Migration Status: %s\n", r.Status()))
	if r.IntegrityRan {
		status := "PASSED"
		if !r.IntegrityPassed {
			status = "FAILED"
		}
		md.WriteString(fmt.Sprintf("- Integrity Check: %s\n", status))
	}
	md.WriteString("\n")

	md.WriteString("## Shot Mapping\n\n")
	md.WriteString("| Original Shot Name | New Shot ID |\n")
	md.WriteString("|--------------------|-------------|\n")
	entries := r.Mapping.Entries()
	if len(entries) == 0 {
		md.WriteString("| No shots migrated | - |\n")
	}
	for _, e := range entries {
		md.WriteString(fmt.Sprintf("| %s | %d |\n", e.Name, e.ID))
	}
	md.WriteString("\n")

	md.WriteString("## Errors (Require Action)\n\n")
	writeBullets(&md, r.Errors, "No errors found")

	md.WriteString("## Warnings (Information Only)\n\n")
	writeBullets(&md, r.Warnings, "No warnings found")

	md.WriteString("## Next Steps\n\n")
	md.WriteString("1. Open the migrated project in the shot tracker\n")
	md.WriteString("2. Verify all shots and media files are present\n")
	md.WriteString("3. Check for any warnings or errors in the application\n")
	md.WriteString("4. If issues are found, consult the developer report for details\n")
	if r.IntegrityReportPath != "" {
		md.WriteString(fmt.Sprintf("\nIntegrity details: `%s`\n", filepath.Base(r.IntegrityReportPath)))
	}

	md.WriteString("\n---\n\n")
	md.WriteString("*Generated by shotmig migrate*\n")
	return []byte(md.String()), nil
}

func renderDeveloper(r *MigrationReport) ([]byte, error) {
	var md strings.Builder

	md.WriteString("# Shot Project Migration - Developer Report\n\n")

	md.WriteString("## Migration Details\n\n")
	md.WriteString(fmt.Sprintf("- Migration Date: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05")))
	if !r.StartTime.IsZero() && !r.EndTime.IsZero() {
		md.WriteString(fmt.Sprintf("- Total Duration: %s\n", util.FormatDuration(r.EndTime.Sub(r.StartTime))))
	}
	if r.SQLiteVersion != "" {
		md.WriteString(fmt.Sprintf("- SQLite Version: %s\n", r.SQLiteVersion))
	}
	if r.SchemaVersion != "" {
		md.WriteString(fmt.Sprintf("- Pinned schema_version: %s\n", r.SchemaVersion))
	}
	if r.AppVersion != "" {
		md.WriteString(fmt.Sprintf("- Pinned app_version: %s\n", r.AppVersion))
	}
	if r.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("- Event Log: `%s`\n", r.EventLogPath))
	}
	md.WriteString("\n")

	md.WriteString("## Database Changes\n\n")
	md.WriteString("| Table | Rows |\n")
	md.WriteString("|-------|------|\n")
	s := r.Stats
	md.WriteString(fmt.Sprintf("| shots | %s |\n", util.FormatCount(s.Shots)))
	md.WriteString(fmt.Sprintf("| takes | %s |\n", util.FormatCount(s.Takes)))
	if s.SkippedTakes > 0 {
		md.WriteString(fmt.Sprintf("| takes (skipped) | %s |\n", util.FormatCount(s.SkippedTakes)))
	}
	if s.WorkflowTakes > 0 {
		md.WriteString(fmt.Sprintf("| takes (workflow) | %s |\n", util.FormatCount(s.WorkflowTakes)))
	}
	md.WriteString(fmt.Sprintf("| assets | %s |\n", util.FormatCount(s.Assets)))
	if s.RegisteredAssets > 0 {
		md.WriteString(fmt.Sprintf("| assets (registered) | %s |\n", util.FormatCount(s.RegisteredAssets)))
	}
	md.WriteString(fmt.Sprintf("| meta | %s |\n", util.FormatCount(s.MetaEntries)))
	if s.DeletedShots > 0 {
		md.WriteString(fmt.Sprintf("| deleted_shots | %s |\n", util.FormatCount(s.DeletedShots)))
	}
	md.WriteString("\n")
	md.WriteString("- Shot names replaced by integer shot_id keys\n")
	md.WriteString("- Take paths rewritten to media/<shot_id>/...\n")
	md.WriteString("- Dates normalized to UTC ISO 8601\n\n")

	md.WriteString("## Media Relocation\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	if s.SourceFiles > 0 {
		md.WriteString(fmt.Sprintf("| Source Files | %s (%s) |\n", util.FormatCount(s.SourceFiles), util.FormatBytes(s.SourceBytes)))
	}
	md.WriteString(fmt.Sprintf("| Shot Folders | %d |\n", s.ShotFolders))
	md.WriteString(fmt.Sprintf("| Asset Folders | %d |\n", s.AssetFolders))
	md.WriteString(fmt.Sprintf("| Files Copied | %s |\n", util.FormatCount(s.FilesCopied)))
	if s.ZeroByteFiles > 0 {
		md.WriteString(fmt.Sprintf("| Zero-size Files | %d |\n", s.ZeroByteFiles))
	}
	md.WriteString(fmt.Sprintf("| Bytes Written | %s |\n", util.FormatBytes(s.BytesWritten)))
	md.WriteString("\n")

	md.WriteString("## Shot Mapping\n\n")
	entries := r.Mapping.Entries()
	if len(entries) == 0 {
		md.WriteString("- No shot mapping available\n")
	}
	for _, e := range entries {
		md.WriteString(fmt.Sprintf("- `%s` → `%d`\n", e.Name, e.ID))
	}
	md.WriteString("\n")

	md.WriteString("## Migration Phases\n\n")
	if len(r.Phases) == 0 {
		md.WriteString("- Phase information not available\n\n")
	} else {
		md.WriteString("| Phase | Status | Duration (s) | Details |\n")
		md.WriteString("|-------|--------|--------------|---------|\n")
		for _, p := range r.Phases {
			md.WriteString(fmt.Sprintf("| %s | %s | %.2f | %s |\n", p.Name, p.Status, p.Duration.Seconds(), p.Details))
		}
		md.WriteString("\n")
		for _, p := range r.Phases {
			if len(p.Errors) == 0 {
				continue
			}
			md.WriteString(fmt.Sprintf("**%s errors:**\n\n", p.Name))
			for _, e := range p.Errors {
				md.WriteString(fmt.Sprintf("- `%s`\n", truncatePath(e, 160)))
			}
			md.WriteString("\n")
		}
	}

	md.WriteString("## Error Analysis\n\n")
	md.WriteString("### Critical Errors\n\n")
	writeBullets(&md, r.Errors, "No critical errors found.")
	md.WriteString("### Warnings\n\n")
	writeBullets(&md, r.Warnings, "No warnings found.")
	if len(r.Info) > 0 {
		md.WriteString("### Notes\n\n")
		writeBullets(&md, r.Info, "")
	}

	return []byte(md.String()), nil
}

type jsonReport struct {
	MigrationInfo struct {
		Date          string `json:"date"`
		Status        string `json:"status"`
		SourcePath    string `json:"source_path"`
		TargetPath    string `json:"target_path"`
		BackupPath    string `json:"backup_path,omitempty"`
		TotalShots    int    `json:"total_shots"`
		AppVersion    string `json:"app_version,omitempty"`
		SchemaVersion string `json:"schema_version,omitempty"`
	} `json:"migration_info"`
	ShotMapping   map[string]int64  `json:"shot_mapping"`
	FileStructure map[string]string `json:"file_structure"`
	Stats         Stats             `json:"stats"`
	MigrationStat struct {
		TotalErrors   int           `json:"total_errors"`
		TotalWarnings int           `json:"total_warnings"`
		Errors        []string      `json:"errors"`
		Warnings      []string      `json:"warnings"`
		Phases        []PhaseRecord `json:"phases"`
		StartTime     *time.Time    `json:"start_time"`
		EndTime       *time.Time    `json:"end_time"`
	} `json:"migration_stats"`
	Integrity *struct {
		Passed bool   `json:"passed"`
		Report string `json:"report,omitempty"`
	} `json:"integrity,omitempty"`
}

func renderJSON(r *MigrationReport) ([]byte, error) {
	var doc jsonReport
	doc.MigrationInfo.Date = r.GeneratedAt.UTC().Format(time.RFC3339)
	doc.MigrationInfo.Status = r.Status()
	doc.MigrationInfo.SourcePath = r.SourcePath
	doc.MigrationInfo.TargetPath = r.TargetPath
	doc.MigrationInfo.BackupPath = r.BackupPath
	doc.MigrationInfo.TotalShots = r.Mapping.Len()
	doc.MigrationInfo.AppVersion = r.AppVersion
	doc.MigrationInfo.SchemaVersion = r.SchemaVersion

	doc.ShotMapping = r.Mapping.Map()
	doc.FileStructure = map[string]string{
		"data_directory":   "data/",
		"media_directory":  "media/",
		"report_directory": "migration_reports/",
	}
	doc.Stats = r.Stats

	ms := &doc.MigrationStat
	ms.TotalErrors = len(r.Errors)
	ms.TotalWarnings = len(r.Warnings)
	ms.Errors = nonNil(r.Errors)
	ms.Warnings = nonNil(r.Warnings)
	ms.Phases = r.Phases
	if ms.Phases == nil {
		ms.Phases = []PhaseRecord{}
	}
	if !r.StartTime.IsZero() {
		st := r.StartTime.UTC()
		ms.StartTime = &st
	}
	if !r.EndTime.IsZero() {
		et := r.EndTime.UTC()
		ms.EndTime = &et
	}

	if r.IntegrityRan {
		doc.Integrity = &struct {
			Passed bool   `json:"passed"`
			Report string `json:"report,omitempty"`
		}{Passed: r.IntegrityPassed, Report: r.IntegrityReportPath}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return data, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeBullets(md *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		if empty != "" {
			md.WriteString(fmt.Sprintf("- %s\n", empty))
		}
		md.WriteString("\n")
		return
	}
	for _, item := range items {
		md.WriteString(fmt.Sprintf("- %s\n", item))
	}
	md.WriteString("\n")
}

// truncatePath truncates a long line to maxLen, keeping start and end
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
