package util

import (
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders a byte count as "1.2 MiB"
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// FormatCount renders an integer with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatDuration rounds a duration for human display
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}

// UTCLayout is the timestamp form stored in project databases and side-files
const UTCLayout = "2006-01-02T15:04:05Z"

// UTCTimestamp returns now in UTC as 2006-01-02T15:04:05Z
func UTCTimestamp() string {
	return FormatUTC(time.Now())
}

// FormatUTC formats t in UTCLayout
func FormatUTC(t time.Time) string {
	return t.UTC().Format(UTCLayout)
}
