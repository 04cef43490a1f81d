package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
		ok   bool
	}{
		{"rfc3339", "2024-10-10T10:10:10Z", want, true},
		{"rfc3339 nano", "2024-10-10T10:10:10.000000001Z", want.Add(time.Nanosecond), true},
		{"day", "2024-10-10", time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), true},
		{"unix", strconv.FormatInt(want.Unix(), 10), want, true},
		{"empty", "", time.Time{}, false},
		{"garbage", "next tuesday", time.Time{}, false},
		{"negative unix", "-5", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTime(tt.in)
			require.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, def.Equal(ParseTimeDefault("", def)))
}

func TestDayOrDefault(t *testing.T) {
	assert.Equal(t, "2025-03-02", DayOrDefault("2025-03-01T23:30:00-02:00", "x"), "normalized to UTC")
	assert.Equal(t, "2025-03-01", DayOrDefault("2025-03-01", "x"))
	assert.Equal(t, "x", DayOrDefault("soon", "x"))
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("7", 3))
	assert.Equal(t, 3, ParseIntDefault("", 3))
	assert.Equal(t, 3, ParseIntDefault("seven", 3))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
	assert.Equal(t, "a", Truncate("aé", 2), "never splits a rune")
}
