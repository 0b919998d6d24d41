package timebased

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidGranularity is returned for unknown granularity names or ranks.
var ErrInvalidGranularity = errors.New("invalid granularity")

// Granularity is a time unit of the bucket ladder, coarsest first.
type Granularity int

const (
	Year Granularity = iota
	Month
	Day
	Hour
	Minute
	Second
)

var granularityKeys = [...]string{"year", "month", "day", "hour", "minute", "second"}

// ParseGranularity accepts a granularity key in any letter case.
func ParseGranularity(s string) (Granularity, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for i, k := range granularityKeys {
		if k == want {
			return Granularity(i), nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidGranularity, "%q", s)
}

// GranularityFromIndex maps a rank (0 for year) to its granularity.
func GranularityFromIndex(i int) (Granularity, error) {
	g := Granularity(i)
	if !g.Valid() {
		return 0, errors.Wrapf(ErrInvalidGranularity, "index %d", i)
	}
	return g, nil
}

func (g Granularity) Valid() bool { return g >= Year && g <= Second }

// Key is the descriptor key buckets of this granularity use.
func (g Granularity) Key() string {
	if !g.Valid() {
		return ""
	}
	return granularityKeys[g]
}

func (g Granularity) String() string { return strings.ToUpper(g.Key()) }

func (g Granularity) Index() int { return int(g) }

func (g Granularity) IsCoarserThan(o Granularity) bool { return g < o }

// Ladder returns every granularity from Year through max inclusive.
func Ladder(max Granularity) []Granularity {
	out := make([]Granularity, 0, max.Index()+1)
	for g := Year; g <= max; g++ {
		out = append(out, g)
	}
	return out
}

// granularityForKey maps a descriptor key back to its granularity.
func granularityForKey(key string) (Granularity, bool) {
	for i, k := range granularityKeys {
		if k == key {
			return Granularity(i), true
		}
	}
	return 0, false
}
