package store

// Legacy source schema. Only the optional tables are ever created by the
// migrator itself; the full set is used to build fixtures.
const (
	legacyShotsDDL = `CREATE TABLE IF NOT EXISTS shots (
  order_number INTEGER,
  shot_name TEXT PRIMARY KEY,
  section TEXT,
  description TEXT,
  image_prompt TEXT,
  colour_scheme_image TEXT,
  time_of_day TEXT,
  location TEXT,
  country TEXT,
  year TEXT,
  video_prompt TEXT,
  created_date TEXT
)`

	legacyTakesDDL = `CREATE TABLE IF NOT EXISTS takes (
  shot_name TEXT,
  take_type TEXT,
  file_path TEXT,
  starred INTEGER DEFAULT 0,
  created_date TEXT
)`

	legacyAssetsDDL = `CREATE TABLE IF NOT EXISTS assets (
  id_key TEXT PRIMARY KEY,
  asset_name TEXT,
  asset_type TEXT,
  file_path TEXT,
  starred INTEGER DEFAULT 0,
  created_date TEXT
)`

	legacyMetaDDL = `CREATE TABLE IF NOT EXISTS meta (
  key TEXT PRIMARY KEY,
  value TEXT
)`
)

// LegacySchema lists the DDL of a complete legacy project database
var LegacySchema = []string{legacyShotsDDL, legacyTakesDDL, legacyAssetsDDL, legacyMetaDDL}

// optionalLegacyTables maps each optional source table to the DDL used to
// synthesize it empty
var optionalLegacyTables = map[string]string{
	"assets": legacyAssetsDDL,
	"meta":   legacyMetaDDL,
}
