package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/franz/shot-migrator/internal/schema"
	"github.com/franz/shot-migrator/internal/util"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema catalog tools",
}

var schemaCreateCmd = &cobra.Command{
	Use:   "create <db>",
	Short: "Create a database with every table and index from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaCreate,
}

var schemaCheckCmd = &cobra.Command{
	Use:   "check <db>",
	Short: "Compare a database with the catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaCheck,
}

var schemaExtractCmd = &cobra.Command{
	Use:   "extract <db>",
	Short: "Write a catalog document describing an existing database",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaExtract,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaCreateCmd, schemaCheckCmd, schemaExtractCmd)

	schemaExtractCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
}

func runSchemaCreate(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	if _, err := os.Stat(args[0]); err == nil {
		return fmt.Errorf("%w: %s", util.ErrDuplicate, args[0])
	}

	if err := catalog.Materialize(cmd.Context(), args[0]); err != nil {
		return err
	}
	util.SuccessLog("Created %s (%d tables, %d indexes, schema %s)",
		args[0], len(catalog.Tables()), len(catalog.Indexes()), catalog.Source())
	return nil
}

func runSchemaCheck(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}

	v, err := catalog.Validate(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	report := func(label string, items []string, log func(string, ...interface{})) {
		if len(items) > 0 {
			log("%s: %s", label, strings.Join(items, ", "))
		}
	}
	report("Missing tables", v.MissingTables, util.ErrorLog)
	report("Missing indexes", v.MissingIndexes, util.ErrorLog)
	report("Extra tables", v.ExtraTables, util.WarnLog)
	report("Extra indexes", v.ExtraIndexes, util.WarnLog)
	for _, table := range v.TablesWithDiffs() {
		diff := v.Columns[table]
		report("Missing columns in "+table, diff.Missing, util.ErrorLog)
		report("Extra columns in "+table, diff.Extra, util.WarnLog)
	}

	if !v.Valid {
		return fmt.Errorf("schema check failed for %s", args[0])
	}
	util.SuccessLog("%s matches %s", args[0], catalog.Source())
	return nil
}

func runSchemaExtract(cmd *cobra.Command, args []string) error {
	data, err := schema.Extract(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := afero.WriteFile(afero.NewOsFs(), out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	util.SuccessLog("Schema written to %s", out)
	return nil
}
