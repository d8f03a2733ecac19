package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/franz/shot-migrator/internal/integrity"
	"github.com/franz/shot-migrator/internal/project"
	"github.com/franz/shot-migrator/internal/util"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <project>",
	Short: "Audit a migrated project",
	Long: `Run the five-section integrity audit against a migrated project:
structure, database schema, database content, media files and
cross-consistency. A Markdown report is written to --reports.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("reports", "", "report directory (default: <project>/migration_reports)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	layout := project.New(args[0])
	reportsDir, _ := cmd.Flags().GetString("reports")
	if reportsDir == "" {
		reportsDir = layout.ReportsPath()
	}

	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	logger := openEventLog(reportsDir)
	defer logger.Close()

	ctx, stop := signalContext()
	defer stop()

	schemaVersion, appVersion := util.GetPinnedVersions()
	rep := integrity.New(&integrity.Config{
		ProjectPath:   layout.Root,
		Catalog:       catalog,
		SchemaVersion: schemaVersion,
		AppVersion:    appVersion,
		Logger:        logger,
	}).Run(ctx)

	path, err := integrity.WriteMarkdown(afero.NewOsFs(), reportsDir, rep)
	if err != nil {
		util.ErrorLog("Failed to write integrity report: %v", err)
	} else {
		util.InfoLog("Integrity report: %s", path)
	}

	if !rep.Summary.Passed {
		return fmt.Errorf("integrity check failed: %d errors", rep.Summary.TotalErrors)
	}
	return nil
}
