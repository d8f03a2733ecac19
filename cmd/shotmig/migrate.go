package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/shot-migrator/internal/execute"
	"github.com/franz/shot-migrator/internal/pipeline"
	"github.com/franz/shot-migrator/internal/project"
	"github.com/franz/shot-migrator/internal/util"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate a legacy project to the id-keyed layout",
	Long: `Migrate a legacy shot project into a new project directory.

The run has five phases:
1. Preparation: check the source, create the target skeleton, optional backup
2. Database Migration: rewrite shots, takes, assets and meta with integer ids
3. Media Migration: copy media/<name>/ folders to media/<id>/ and check pairing
4. Validation: run the integrity audit against the new project
5. Reporting: write user, developer and JSON reports

A failed phase skips the phases after it; reports are always written.
The source project is never modified.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().String("source", "", "legacy project root (required)")
	migrateCmd.Flags().String("target", "", "new project root (required)")
	migrateCmd.Flags().String("meta-entries", "", "meta entries file (default: embedded)")
	migrateCmd.Flags().String("reports", "", "reports directory (default: <target>/migration_reports)")
	migrateCmd.Flags().Bool("backup", false, "copy the source project to <source>_backup_<timestamp> first")
	migrateCmd.Flags().Bool("register-assets", false, "add asset rows for untracked files in asset folders")
	migrateCmd.Flags().Bool("no-remediate", false, "do not create placeholder thumbnails for zero-size videos")
	migrateCmd.Flags().String("verify", execute.VerifySize, "copy verification mode (size, hash, none)")

	for _, name := range []string{"source", "target", "meta-entries", "reports", "backup", "register-assets", "no-remediate", "verify"} {
		viper.BindPFlag(name, migrateCmd.Flags().Lookup(name))
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	source := GetConfigString("source", "")
	target := GetConfigString("target", "")
	if source == "" || target == "" {
		return fmt.Errorf("%w: --source and --target are required", util.ErrInvalidConfig)
	}
	if filepath.Clean(source) == filepath.Clean(target) {
		return fmt.Errorf("%w: source and target must differ", util.ErrInvalidConfig)
	}

	reportsDir := GetConfigString("reports", project.New(target).ReportsPath())
	logger := openEventLog(reportsDir)
	defer logger.Close()

	schemaVersion, appVersion := util.GetPinnedVersions()
	cfg := &pipeline.Config{
		SourcePath:      source,
		TargetPath:      target,
		SchemaPath:      GetConfigString("schema", ""),
		MetaEntriesPath: GetConfigString("meta-entries", ""),
		SchemaVersion:   schemaVersion,
		AppVersion:      appVersion,
		Backup:          GetConfigBool("backup"),
		Remediate:       util.GetRemediation(),
		RegisterAssets:  GetConfigBool("register-assets"),
		VerifyMode:      GetConfigString("verify", execute.VerifySize),
		ReportsDir:      reportsDir,
		Logger:          logger,
	}

	ctx, stop := signalContext()
	defer stop()

	out, err := pipeline.New(cfg).Run(ctx)
	if err != nil {
		util.ErrorLog("Migration interrupted: %v", err)
	}

	util.InfoLog("")
	util.InfoLog("=== Migration Summary ===")
	for _, p := range out.Report.Phases {
		util.InfoLog("  %-20s %-8s %s", p.Name, p.Status, util.FormatDuration(p.Duration))
	}
	util.InfoLog("Shots: %s  Takes: %s  Assets: %s  Files copied: %s (%s)",
		util.FormatCount(out.Report.Stats.Shots),
		util.FormatCount(out.Report.Stats.Takes),
		util.FormatCount(out.Report.Stats.Assets),
		util.FormatCount(out.Report.Stats.FilesCopied),
		util.FormatBytes(out.Report.Stats.BytesWritten))
	if out.Report.BackupPath != "" {
		util.InfoLog("Backup: %s", out.Report.BackupPath)
	}
	for _, p := range out.ReportPaths {
		util.InfoLog("Report: %s", p)
	}

	if err != nil {
		return err
	}
	if !out.Success() {
		return fmt.Errorf("migration failed with %d errors", len(out.Report.Errors))
	}
	util.SuccessLog("Migration completed: %s", target)
	return nil
}
