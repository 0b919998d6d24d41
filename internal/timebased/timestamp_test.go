package timebased

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("DAY")
	require.NoError(t, err)
	assert.Equal(t, Day, g)
	assert.Equal(t, "day", g.Key())
	assert.Equal(t, 2, g.Index())
	assert.True(t, Year.IsCoarserThan(Month))
	assert.False(t, Second.IsCoarserThan(Minute))

	_, err = ParseGranularity("week")
	assert.ErrorIs(t, err, ErrInvalidGranularity)
	_, err = GranularityFromIndex(6)
	assert.ErrorIs(t, err, ErrInvalidGranularity)

	assert.Equal(t, []Granularity{Year, Month, Day}, Ladder(Day))
}

func TestLtBoundaryFollowsCalendar(t *testing.T) {
	cases := []struct {
		at  time.Time
		g   Granularity
		gte string
		lt  string
	}{
		{time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC), Year, "2023-01-01T00:00:00", "2024-01-01T00:00:00"},
		{time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC), Month, "2023-06-01T00:00:00", "2023-07-01T00:00:00"},
		{time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), Month, "2024-02-01T00:00:00", "2024-03-01T00:00:00"},
		{time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC), Day, "2023-12-31T00:00:00", "2024-01-01T00:00:00"},
		{time.Date(2023, 1, 31, 12, 0, 0, 0, time.UTC), Month, "2023-01-01T00:00:00", "2023-02-01T00:00:00"},
		{time.Date(2023, 6, 15, 23, 59, 30, 0, time.UTC), Hour, "2023-06-15T23:00:00", "2023-06-16T00:00:00"},
		{time.Date(2023, 6, 15, 10, 59, 59, 999, time.UTC), Minute, "2023-06-15T10:59:00", "2023-06-15T11:00:00"},
		{time.Date(2023, 6, 15, 10, 0, 7, 5, time.UTC), Second, "2023-06-15T10:00:07", "2023-06-15T10:00:08"},
	}
	for _, c := range cases {
		ts := NewTimestamp(c.at, c.g)
		assert.Equal(t, c.gte, FormatDateTime(ts.Time), "%s at %s", c.g, c.at)
		assert.Equal(t, c.lt, FormatDateTime(ts.LtBoundary()), "%s at %s", c.g, c.at)
		assert.Equal(t, ts.LtBoundary(), ts.NextUpdate())
	}
}

func TestHalfOpenInterval(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, g := range Ladder(Second) {
		ts := NewTimestamp(base.Add(17*time.Hour+3*time.Minute+5*time.Second), g)
		for _, instant := range []time.Time{ts.Time, ts.LtBoundary().Add(-time.Nanosecond)} {
			assert.True(t, ts.Contains(instant), "%s should contain %s", g, instant)
			assert.Equal(t, ts.Time, NewTimestamp(instant, g).Time)
		}
		assert.False(t, ts.Contains(ts.LtBoundary()), "%s must exclude its lt boundary", g)
		assert.False(t, ts.Contains(ts.Time.Add(-time.Nanosecond)))
	}
}

func TestNewTimestampUsesUTC(t *testing.T) {
	local := time.Date(2023, 1, 1, 0, 30, 0, 0, time.FixedZone("plus1", 3600))
	ts := NewTimestamp(local, Year)
	assert.Equal(t, "2022", ts.TimeValueFor(Year))
}

func TestTimestampFromComponents(t *testing.T) {
	ts, err := TimestampFromComponents(map[string]int{"year": 2023, "month": 6})
	require.NoError(t, err)
	assert.Equal(t, Month, ts.Granularity)
	assert.Equal(t, "2023-06-01T00:00:00", FormatDateTime(ts.Time))

	ts, err = TimestampFromComponents(map[string]int{"year": 2023})
	require.NoError(t, err)
	assert.Equal(t, Year, ts.Granularity)
	assert.Equal(t, "2024-01-01T00:00:00", FormatDateTime(ts.LtBoundary()))

	_, err = TimestampFromComponents(nil)
	assert.Error(t, err)
}

func TestTimeValueForPads(t *testing.T) {
	ts := NewTimestamp(time.Date(7, 3, 4, 5, 6, 7, 0, time.UTC), Second)
	assert.Equal(t, "0007", ts.TimeValueFor(Year))
	assert.Equal(t, "03", ts.TimeValueFor(Month))
	assert.Equal(t, "04", ts.TimeValueFor(Day))
	assert.Equal(t, "05", ts.TimeValueFor(Hour))
	assert.Equal(t, "06", ts.TimeValueFor(Minute))
	assert.Equal(t, "07", ts.TimeValueFor(Second))
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "month"})
	require.NoError(t, err)
	assert.Equal(t, Month, cfg.MaxGranularity)
	assert.False(t, cfg.LinearTimeCachingEnabled)
	assert.True(t, cfg.Matches("anything at all"))

	cfg, err = ParseConfig(map[string]string{
		PropFragmentationPath: "ts",
		PropMaxGranularity:    "second",
		PropSubjectFilter:     "https://example.org/.*",
		PropLinearTimeCaching: "true",
	})
	require.NoError(t, err)
	assert.True(t, cfg.LinearTimeCachingEnabled)
	assert.True(t, cfg.Matches("https://example.org/1"))
	assert.False(t, cfg.Matches("see https://example.org/1"), "filter must match the whole subject")

	_, err = ParseConfig(map[string]string{PropMaxGranularity: "day"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseConfig(map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "fortnight"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, ErrInvalidGranularity)

	_, err = ParseConfig(map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "day", PropSubjectFilter: "("})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = ParseConfig(map[string]string{PropFragmentationPath: "ts", PropMaxGranularity: "day", PropLinearTimeCaching: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
