package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/shot-migrator/internal/report"
	"github.com/franz/shot-migrator/internal/schema"
	"github.com/franz/shot-migrator/internal/util"
)

// envKeyReplacer maps no-remediate to SHOTMIG_NO_REMEDIATE
var envKeyReplacer = strings.NewReplacer("-", "_")

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (SHOTMIG_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
	util.SetColors(util.IsTerminal(os.Stderr.Fd()))
	return nil
}

// eventLevel picks the JSONL event threshold from --verbose / --quiet
func eventLevel() report.EventLevel {
	switch {
	case viper.GetBool("quiet"):
		return report.LevelWarning
	case viper.GetBool("verbose"):
		return report.LevelDebug
	default:
		return report.LevelInfo
	}
}

// openEventLog creates the run's event log in dir, falling back to a no-op
// logger when the file cannot be created
func openEventLog(dir string) *report.EventLogger {
	logger, err := report.NewEventLogger(dir, eventLevel())
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.InfoLog("Event log: %s", logger.Path())
	return logger
}

// loadCatalog returns the --schema catalog or the embedded one
func loadCatalog() (*schema.Catalog, error) {
	path := GetConfigString("schema", "")
	if path == "" {
		return schema.LoadDefault(), nil
	}
	return schema.Load(path)
}

// signalContext is cancelled on SIGINT / SIGTERM so long runs stop between
// shots and files
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
