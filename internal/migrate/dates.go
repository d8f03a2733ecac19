package migrate

import (
	"strings"
	"time"

	"github.com/franz/shot-migrator/internal/util"
)

// UTCLayout is the normalized timestamp form written to the target
const UTCLayout = util.UTCLayout

// Naive layouts are taken to already be UTC
var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ConvertDateToUTC normalizes a stored timestamp to UTCLayout. Empty input
// becomes now. Input already ending in Z is returned unchanged so the
// function is idempotent. The bool is false when the input could not be
// parsed and now was substituted
func ConvertDateToUTC(s string, now time.Time) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.UTC().Format(UTCLayout), true
	}
	if strings.HasSuffix(s, "Z") {
		return s, true
	}

	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(UTCLayout), true
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(UTCLayout), true
		}
	}

	return now.UTC().Format(UTCLayout), false
}
