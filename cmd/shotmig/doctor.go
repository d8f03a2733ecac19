package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/shot-migrator/internal/project"
	"github.com/franz/shot-migrator/internal/scan"
	"github.com/franz/shot-migrator/internal/schema"
	"github.com/franz/shot-migrator/internal/store"
	"github.com/franz/shot-migrator/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks before a migration",
	Long: `Run diagnostic checks to ensure a migration can succeed.

This command checks:
- SQLite version
- Schema catalog and meta entries files
- Source project database (readable, passes PRAGMA integrity_check, has shots)
- Source media directory
- Target directory (writable, no existing database)
- Disk space availability`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("source", "", "legacy project root to check (optional)")
	doctorCmd.Flags().String("target", "", "target project root to check (optional)")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== shotmig doctor ===")
	util.InfoLog("")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results := []checkResult{checkSQLite()}
	results = append(results, checkCatalog(GetConfigString("schema", "")))
	results = append(results, checkMetaEntries(GetConfigString("meta-entries", "")))

	srcPath, _ := cmd.Flags().GetString("source")
	if srcPath == "" {
		srcPath = viper.GetString("source")
	}
	if srcPath != "" {
		src := project.New(srcPath)
		results = append(results, checkSourceDatabase(ctx, src.DatabasePath()))
		results = append(results, checkSourceMedia(ctx, src.MediaPath()))
		results = append(results, checkDiskSpace(srcPath, "source"))
	}

	targetPath, _ := cmd.Flags().GetString("target")
	if targetPath == "" {
		targetPath = viper.GetString("target")
	}
	if targetPath != "" {
		results = append(results, checkTarget(targetPath))
		if dir := existingParent(targetPath); dir != "" {
			results = append(results, checkDiskSpace(dir, "target"))
		}
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors, hasWarnings := printResults(results)

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before migrating.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! Ready to migrate.")
	}
	return nil
}

func printResults(results []checkResult) (hasErrors, hasWarnings bool) {
	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		switch {
		case r.error:
			util.ErrorLog("%s", line)
		case r.warning:
			util.WarnLog("%s", line)
		default:
			util.SuccessLog("%s", line)
		}
	}
	return hasErrors, hasWarnings
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

func checkCatalog(path string) checkResult {
	var (
		catalog *schema.Catalog
		err     error
	)
	if path == "" {
		catalog = schema.LoadDefault()
	} else if catalog, err = schema.Load(path); err != nil {
		return checkResult{name: "Schema catalog", error: true, message: err.Error()}
	}
	return checkResult{
		name:    "Schema catalog",
		message: fmt.Sprintf("%s (%d tables, %d indexes)", catalog.Source(), len(catalog.Tables()), len(catalog.Indexes())),
	}
}

func checkMetaEntries(path string) checkResult {
	var (
		mc  *schema.MetaCatalog
		err error
	)
	label := path
	if path == "" {
		mc, label = schema.DefaultMetaCatalog(), "embedded"
	} else if mc, err = schema.LoadMetaCatalog(path); err != nil {
		return checkResult{name: "Meta entries", error: true, message: err.Error()}
	}
	return checkResult{
		name:    "Meta entries",
		message: fmt.Sprintf("%s (%d keys)", label, len(mc.Entries())),
	}
}

// checkSourceDatabase opens the legacy database read-only and counts shots
func checkSourceDatabase(ctx context.Context, dbPath string) checkResult {
	info, err := os.Stat(dbPath)
	if err != nil {
		return checkResult{
			name:    "Source database",
			error:   true,
			message: fmt.Sprintf("%v: %s", util.ErrSourceMissing, dbPath),
		}
	}
	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Source database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.OpenExisting(dbPath)
	if err != nil {
		return checkResult{
			name:    "Source database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(ctx); err != nil {
		return checkResult{
			name:    "Source database",
			error:   true,
			message: err.Error(),
		}
	}

	ok, err := db.TableExists(ctx, "shots")
	if err != nil || !ok {
		return checkResult{
			name:    "Source database",
			error:   true,
			message: fmt.Sprintf("%v: shots", util.ErrCriticalTableMissing),
		}
	}
	shots, _ := db.CountRows(ctx, "shots")

	return checkResult{
		name:    "Source database",
		message: fmt.Sprintf("%s (%s, %s shots)", dbPath, util.FormatBytes(info.Size()), util.FormatCount(shots)),
	}
}

// checkSourceMedia inventories the media directory. A missing directory is
// a warning; the migration copies no files in that case
func checkSourceMedia(ctx context.Context, path string) checkResult {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return checkResult{
			name:    "Source media",
			warning: true,
			message: fmt.Sprintf("%s not found (no media will be copied)", path),
		}
	}

	inv, err := scan.New(&scan.Config{}).Scan(ctx, path)
	if err != nil {
		return checkResult{
			name:    "Source media",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}
	if inv.ZeroByte > 0 {
		return checkResult{
			name:    "Source media",
			warning: true,
			message: fmt.Sprintf("%s, %d zero-size files", inv.Summary(), inv.ZeroByte),
		}
	}
	return checkResult{
		name:    "Source media",
		message: inv.Summary(),
	}
}

// checkTarget verifies the target root is writable and holds no database
func checkTarget(path string) checkResult {
	if _, err := os.Stat(project.New(path).DatabasePath()); err == nil {
		return checkResult{
			name:    "Target directory",
			error:   true,
			message: fmt.Sprintf("%s already contains a database", path),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Target directory",
				message: fmt.Sprintf("%s (will be created)", path),
			}
		}
		return checkResult{
			name:    "Target directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}
	if !info.IsDir() {
		return checkResult{
			name:    "Target directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".shotmig_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Target directory",
			error:   true,
			message: fmt.Sprintf("%v: %s", util.ErrTargetNotWritable, path),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Target directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// existingParent returns path or its nearest existing ancestor
func existingParent(path string) string {
	for p := filepath.Clean(path); ; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		if filepath.Dir(p) == p {
			return ""
		}
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	// Media copies need room; warn under 5GB or above 90% used
	warning := false
	warningMsg := ""
	if availBytes < 5<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", util.FormatBytes(int64(availBytes)), warningMsg),
	}
}
