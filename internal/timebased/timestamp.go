package timebased

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DateTimeLayout renders relation values.
const DateTimeLayout = "2006-01-02T15:04:05"

// FormatDateTime renders t in UTC without zone, as relation values carry it.
func FormatDateTime(t time.Time) string { return t.UTC().Format(DateTimeLayout) }

// Timestamp is an instant truncated to a granularity.
type Timestamp struct {
	Time        time.Time
	Granularity Granularity
}

// NewTimestamp truncates t, taken in UTC, to g.
func NewTimestamp(t time.Time, g Granularity) Timestamp {
	t = t.UTC()
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	switch g {
	case Year:
		mo, d, h, mi, s = time.January, 1, 0, 0, 0
	case Month:
		d, h, mi, s = 1, 0, 0, 0
	case Day:
		h, mi, s = 0, 0, 0
	case Hour:
		mi, s = 0, 0
	case Minute:
		s = 0
	}
	return Timestamp{Time: time.Date(y, mo, d, h, mi, s, 0, time.UTC), Granularity: g}
}

// TimestampFromComponents rebuilds a timestamp from granularity-keyed
// components. Missing components take their calendar minimum and the
// granularity is the rank matching the number of components.
func TimestampFromComponents(c map[string]int) (Timestamp, error) {
	if len(c) == 0 {
		return Timestamp{}, errors.New("no time components")
	}
	g, err := GranularityFromIndex(len(c) - 1)
	if err != nil {
		return Timestamp{}, err
	}
	get := func(k Granularity, def int) int {
		if v, ok := c[k.Key()]; ok {
			return v
		}
		return def
	}
	t := time.Date(
		get(Year, 0), time.Month(get(Month, 1)), get(Day, 1),
		get(Hour, 0), get(Minute, 0), get(Second, 0), 0, time.UTC)
	return Timestamp{Time: t, Granularity: g}, nil
}

// LtBoundary is the first instant of the next unit at the same granularity.
func (ts Timestamp) LtBoundary() time.Time {
	switch ts.Granularity {
	case Year:
		return ts.Time.AddDate(1, 0, 0)
	case Month:
		return ts.Time.AddDate(0, 1, 0)
	case Day:
		return ts.Time.AddDate(0, 0, 1)
	case Hour:
		return ts.Time.Add(time.Hour)
	case Minute:
		return ts.Time.Add(time.Minute)
	default:
		return ts.Time.Add(time.Second)
	}
}

// NextUpdate is when the timestamp's window closes.
func (ts Timestamp) NextUpdate() time.Time { return ts.LtBoundary() }

// Contains reports whether t falls in [Time, LtBoundary).
func (ts Timestamp) Contains(t time.Time) bool {
	return !t.Before(ts.Time) && t.Before(ts.LtBoundary())
}

// TimeValueFor renders the component at g as a descriptor value.
func (ts Timestamp) TimeValueFor(g Granularity) string {
	t := ts.Time
	switch g {
	case Year:
		return fmt.Sprintf("%04d", t.Year())
	case Month:
		return fmt.Sprintf("%02d", int(t.Month()))
	case Day:
		return fmt.Sprintf("%02d", t.Day())
	case Hour:
		return fmt.Sprintf("%02d", t.Hour())
	case Minute:
		return fmt.Sprintf("%02d", t.Minute())
	default:
		return fmt.Sprintf("%02d", t.Second())
	}
}

var timeLayouts = []string{time.RFC3339Nano, DateTimeLayout, "2006-01-02T15:04:05.999999999", "2006-01-02"}

// parseTime reads a property value as an instant. Strings without a zone
// are UTC.
func parseTime(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC(), true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, tv); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
