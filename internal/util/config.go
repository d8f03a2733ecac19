package util

import "github.com/spf13/viper"

// GetRemediation returns whether placeholder thumbnails may be synthesized.
// Disabled with --no-remediate
func GetRemediation() bool {
	return !viper.GetBool("no-remediate")
}

// GetPinnedVersions returns the schema and app versions forced into meta
func GetPinnedVersions() (schemaVersion, appVersion string) {
	schemaVersion = viper.GetString("schema-version")
	if schemaVersion == "" {
		schemaVersion = "1"
	}
	appVersion = viper.GetString("app-version")
	if appVersion == "" {
		appVersion = "1.0"
	}
	return schemaVersion, appVersion
}
