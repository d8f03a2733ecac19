package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Shot is one row of the shots table. Legacy rows leave ID zero and carry
// CreatedDate exactly as stored in the source
type Shot struct {
	ID                int64
	OrderNumber       sql.NullInt64
	Name              string
	Section           sql.NullString
	Description       sql.NullString
	ImagePrompt       sql.NullString
	ColourSchemeImage sql.NullString
	TimeOfDay         sql.NullString
	Location          sql.NullString
	Country           sql.NullString
	Year              sql.NullString
	VideoPrompt       sql.NullString
	CreatedDate       string
}

// Take is one row of the takes table. ShotName is only set for legacy rows
type Take struct {
	ID          string
	ShotID      int64
	ShotName    string
	TakeType    string
	FilePath    string
	Starred     int64
	CreatedDate string
}

// Asset is one row of the assets table
type Asset struct {
	IDKey       string
	Name        sql.NullString
	Type        sql.NullString
	FilePath    string
	Starred     int64
	CreatedDate string
}

// MetaEntry is one key/value row of the meta table
type MetaEntry struct {
	Key   string
	Value string
}

// DeletedShot is one audit row of deleted_shots
type DeletedShot struct {
	ID          int64
	OldShotID   int64
	ShotName    sql.NullString
	CreatedDate string
}

// NameCount pairs a shot name with how often it occurs
type NameCount struct {
	Name  string
	Count int
}

// Column order contracts. Legacy reads select exactly these names, with
// NULL standing in for any column the source lacks.
var (
	legacyShotColumns = []string{
		"order_number", "shot_name", "section", "description",
		"image_prompt", "colour_scheme_image", "time_of_day",
		"location", "country", "year", "video_prompt", "created_date",
	}
	legacyTakeColumns  = []string{"shot_name", "take_type", "file_path", "starred", "created_date"}
	legacyAssetColumns = []string{"id_key", "asset_name", "asset_type", "file_path", "starred", "created_date"}
	legacyDeletedCols  = []string{"old_shot_id", "shot_name", "created_date"}
)

// LegacyShotColumns returns the shot columns read from a source database
func LegacyShotColumns() []string { return append([]string(nil), legacyShotColumns...) }

// LegacyTakeColumns returns the take columns read from a source database
func LegacyTakeColumns() []string { return append([]string(nil), legacyTakeColumns...) }

// LegacyAssetColumns returns the asset columns read from a source database
func LegacyAssetColumns() []string { return append([]string(nil), legacyAssetColumns...) }

func shotFromValues(v []any) Shot {
	return Shot{
		OrderNumber:       nullInt(v[0]),
		Name:              asString(v[1]),
		Section:           nullString(v[2]),
		Description:       nullString(v[3]),
		ImagePrompt:       nullString(v[4]),
		ColourSchemeImage: nullString(v[5]),
		TimeOfDay:         nullString(v[6]),
		Location:          nullString(v[7]),
		Country:           nullString(v[8]),
		Year:              nullString(v[9]),
		VideoPrompt:       nullString(v[10]),
		CreatedDate:       asString(v[11]),
	}
}

func takeFromValues(v []any) Take {
	return Take{
		ShotName:    asString(v[0]),
		TakeType:    asString(v[1]),
		FilePath:    asString(v[2]),
		Starred:     nullInt(v[3]).Int64,
		CreatedDate: asString(v[4]),
	}
}

func assetFromValues(v []any) Asset {
	return Asset{
		IDKey:       asString(v[0]),
		Name:        nullString(v[1]),
		Type:        nullString(v[2]),
		FilePath:    asString(v[3]),
		Starred:     nullInt(v[4]).Int64,
		CreatedDate: asString(v[5]),
	}
}

// SQLite columns are dynamically typed, so legacy values are scanned into
// any and narrowed here.

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}

func nullString(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: asString(v), Valid: true}
}

func nullInt(v any) sql.NullInt64 {
	switch t := v.(type) {
	case nil:
		return sql.NullInt64{}
	case int64:
		return sql.NullInt64{Int64: t, Valid: true}
	case float64:
		return sql.NullInt64{Int64: int64(t), Valid: true}
	case bool:
		if t {
			return sql.NullInt64{Int64: 1, Valid: true}
		}
		return sql.NullInt64{Int64: 0, Valid: true}
	}
	s := strings.TrimSpace(asString(v))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return sql.NullInt64{Int64: n, Valid: true}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return sql.NullInt64{Int64: int64(f), Valid: true}
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return sql.NullInt64{Int64: 1, Valid: true}
	}
	return sql.NullInt64{}
}
