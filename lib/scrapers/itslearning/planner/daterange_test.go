package planner

import (
	"testing"
	"time"

	"itsdu-backend/lib/timezone"

	"github.com/stretchr/testify/require"
)

func TestParseDateRangeDateToDate(t *testing.T) {
	got := ParseDateRange("24. Oct 10:00 – 31. Oct 12:00")
	require.NotNil(t, got.From)
	require.NotNil(t, got.To)

	year := timezone.Now().Year()
	require.Equal(t, time.Date(year, time.October, 24, 10, 0, 0, 0, timezone.Location), *got.From)
	require.Equal(t, time.Date(year, time.October, 31, 12, 0, 0, 0, timezone.Location), *got.To)
}

func TestParseDateRangeDanishMonths(t *testing.T) {
	got := ParseDateRange("5. maj 08:15 – 5. maj 09:00")
	require.NotNil(t, got.From)
	require.NotNil(t, got.To)
	require.Equal(t, time.May, got.From.Month())
	require.Equal(t, 5, got.From.Day())
	require.Equal(t, 8, got.From.Hour())
	require.Equal(t, 15, got.From.Minute())
}

func TestParseDateRangeBadEndpointYieldsNothing(t *testing.T) {
	// the second endpoint's month is garbage; no partial range comes back
	got := ParseDateRange("24. Oct 10:00 – 31. Nonsensemonth 12:00")
	require.Nil(t, got.From)
	require.Nil(t, got.To)
}

func TestParseDateRangeTimeOnly(t *testing.T) {
	got := ParseDateRange("10:15 – 12:00")
	require.NotNil(t, got.From)
	require.NotNil(t, got.To)

	require.Equal(t, 10, got.From.Hour())
	require.Equal(t, 15, got.From.Minute())
	require.Equal(t, time.Hour+45*time.Minute, got.To.Sub(*got.From))
}

func TestParseDateRangeOvernight(t *testing.T) {
	// an end clock before the start clock crosses midnight
	got := ParseDateRange("23:30 – 00:15")
	require.NotNil(t, got.From)
	require.NotNil(t, got.To)
	require.True(t, got.To.After(*got.From))
	require.Equal(t, 45*time.Minute, got.To.Sub(*got.From))
}

func TestParseDateRangeNoMatch(t *testing.T) {
	for _, text := range []string{"", "TBD", "sometime next week", "10:15 - 12:00"} {
		got := ParseDateRange(text)
		require.Nil(t, got.From, "text %q", text)
		require.Nil(t, got.To, "text %q", text)
	}
}

func TestParseDateRangePrefersDateGrammar(t *testing.T) {
	// a date-to-date span also matches the bare time grammar; the date
	// grammar must win
	got := ParseDateRange("1. Jan 09:00 – 2. Feb 10:00")
	require.NotNil(t, got.From)
	require.NotNil(t, got.To)
	require.Equal(t, time.January, got.From.Month())
	require.Equal(t, time.February, got.To.Month())
}

func TestParseMonth(t *testing.T) {
	cases := []struct {
		text string
		want time.Month
	}{
		{"Oct", time.October},
		{"oktober", time.October},
		{"okt.", time.October},
		{"May", time.May},
		{"maj", time.May},
		{"marts", time.March},
		{"Mar", time.March},
		{"notamonth", -1},
		{"", -1},
	}
	for _, c := range cases {
		require.Equal(t, c.want, parseMonth(c.text), "text %q", c.text)
	}
}
