package integrity

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/shot-migrator/internal/util"
)

// ReportFileName returns integrity_report_<project>_<UTC timestamp>.md
func ReportFileName(projectName string, at time.Time) string {
	return fmt.Sprintf("integrity_report_%s_%s.md", projectName, at.UTC().Format("20060102_150405"))
}

// RenderMarkdown renders the audit as a Markdown document
func RenderMarkdown(rep *Report) string {
	var md strings.Builder

	md.WriteString("# Project Integrity Report\n\n")
	md.WriteString(fmt.Sprintf("**Project:** `%s`\n\n", rep.ProjectPath))
	md.WriteString(fmt.Sprintf("**Test Date:** %s\n\n", rep.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")))
	if rep.Duration > 0 {
		md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", util.FormatDuration(rep.Duration)))
	}

	md.WriteString("## Executive Summary\n\n")
	s := rep.Summary
	total := s.SectionsPassed + s.SectionsFailed + s.SectionsSkipped
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Sections Passed | %d/%d |\n", s.SectionsPassed, total))
	md.WriteString(fmt.Sprintf("| Sections Failed | %d/%d |\n", s.SectionsFailed, total))
	if s.SectionsSkipped > 0 {
		md.WriteString(fmt.Sprintf("| Sections Skipped | %d/%d |\n", s.SectionsSkipped, total))
	}
	md.WriteString(fmt.Sprintf("| Total Errors | %d |\n", s.TotalErrors))
	md.WriteString(fmt.Sprintf("| Total Warnings | %d |\n", s.TotalWarnings))
	md.WriteString("\n")

	if s.Passed {
		md.WriteString("✅ **STATUS: PROJECT INTEGRITY TEST PASSED**\n\n")
	} else {
		md.WriteString("❌ **STATUS: PROJECT INTEGRITY TEST FAILED**\n\n")
	}

	md.WriteString("## Detailed Results\n\n")
	for i, sec := range rep.Sections {
		md.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, sec.Title))
		switch {
		case sec.Skipped:
			md.WriteString("⏭️ **SKIPPED** (an earlier section failed)\n\n")
			continue
		case sec.Success():
			md.WriteString("✅ **PASSED**\n\n")
		default:
			md.WriteString("❌ **FAILED**\n\n")
		}
		writeList(&md, "Errors", sec.Errors)
		writeList(&md, "Warnings", sec.Warnings)
		writeList(&md, "Info", sec.Info)
	}

	md.WriteString("## Recommendations\n\n")
	if s.Passed {
		md.WriteString("✅ **No critical issues found. The project appears to be valid.**\n")
	} else {
		md.WriteString("❌ **Critical errors were found that need to be addressed:**\n\n")
		md.WriteString("1. Review and fix every error listed above\n")
		md.WriteString("2. Ensure all required files and directories exist\n")
		md.WriteString("3. Verify the database schema matches the expected structure\n")
		md.WriteString("4. Check that all media files referenced in the database exist\n")
		md.WriteString("5. Re-run the integrity check after making corrections\n")
	}
	if s.TotalWarnings > 0 {
		md.WriteString("\n⚠️ **Warnings were found that should be reviewed.** ")
		md.WriteString("They do not stop the project from opening.\n")
	}

	md.WriteString("\n---\n\n")
	md.WriteString("*Generated by shotmig verify*\n")
	return md.String()
}

func writeList(md *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	md.WriteString(fmt.Sprintf("**%s:**\n\n", title))
	for _, item := range items {
		md.WriteString(fmt.Sprintf("- %s\n", item))
	}
	md.WriteString("\n")
}

// WriteMarkdown renders the audit into dir and returns the file path
func WriteMarkdown(fsys afero.Fs, dir string, rep *Report) (string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, ReportFileName(rep.ProjectName, rep.Timestamp))
	if err := afero.WriteFile(fsys, path, []byte(RenderMarkdown(rep)), 0644); err != nil {
		return "", fmt.Errorf("failed to write integrity report: %w", err)
	}
	return path, nil
}
