package util

import (
	"strconv"
	"time"
)

// DayLayout is the calendar-date format used by market-data APIs.
const DayLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, a bare YYYY-MM-DD date and unix
// seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// DayOrDefault normalizes any ParseTime input to a UTC YYYY-MM-DD string,
// falling back to def.
func DayOrDefault(s, def string) string {
	if t, ok := ParseTime(s); ok {
		return t.UTC().Format(DayLayout)
	}
	return def
}
