package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var v1 = ViewName{Name: "v1"}

func TestParseRoundTrip(t *testing.T) {
	for _, in := range []string{
		"/v1",
		"/v1?year=2023",
		"/v1?year=2023&month=06",
		"/parcels/by-time?year=2023&month=06&pageNumber=2",
	} {
		id, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, id.String())
	}
}

func TestParseCollectionView(t *testing.T) {
	id, err := Parse("/parcels/by-time?year=2023")
	require.NoError(t, err)
	assert.Equal(t, ViewName{Collection: "parcels", Name: "by-time"}, id.View)
	v, ok := id.ValueOf("year")
	assert.True(t, ok)
	assert.Equal(t, "2023", v)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"",
		"v1?year=2023",
		"/",
		"/?year=2023",
		"/v1?year",
		"/v1?year=2023&",
		"/v1?=2023",
		"/v1?year=",
		"/v1?year=2023&month=",
		"/v1?year=2023=2024",
		"/v1?year=2023?month=06",
		"/a/b/c",
	} {
		_, err := Parse(in)
		require.Error(t, err, in)
		assert.ErrorIs(t, err, ErrParse, in)
		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, in, pe.Input)
	}
}

func TestIdentifierSetEquality(t *testing.T) {
	a := NewIdentifier(v1, Pair{"year", "2023"}, Pair{"month", "06"})
	b := NewIdentifier(v1, Pair{"month", "06"}, Pair{"year", "2023"})
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())

	extra := NewIdentifier(v1, Pair{"year", "2023"}, Pair{"month", "06"}, Pair{"day", "15"})
	assert.False(t, a.Equal(extra))
	assert.NotEqual(t, a.Key(), extra.Key())

	missing := NewIdentifier(v1, Pair{"year", "2023"})
	assert.False(t, a.Equal(missing))

	other := NewIdentifier(ViewName{Name: "v2"}, Pair{"year", "2023"}, Pair{"month", "06"})
	assert.False(t, a.Equal(other))

	set := map[string]Identifier{a.Key(): a}
	_, ok := set[b.Key()]
	assert.True(t, ok)
}

func TestCreateChildRejectsDuplicateKey(t *testing.T) {
	parent := NewIdentifier(v1, Pair{"year", "2023"})
	before := parent.String()

	_, err := parent.CreateChild(Pair{"year", "2024"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicatePair)
	var de *DuplicatePairError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "year", de.Key)
	assert.Equal(t, before, de.ID)
	assert.Equal(t, before, parent.String())

	child, err := parent.CreateChild(Pair{"month", "06"})
	require.NoError(t, err)
	assert.Equal(t, "/v1?year=2023&month=06", child.String())
	assert.Equal(t, before, parent.String())

	p, ok := child.Parent()
	require.True(t, ok)
	assert.True(t, p.Equal(parent))
	_, ok = Root(v1).Parent()
	assert.False(t, ok)
}

func TestViewName(t *testing.T) {
	vn, err := ParseViewName("parcels/by-time")
	require.NoError(t, err)
	assert.Equal(t, "parcels/by-time", vn.String())

	vn, err = ParseViewName("v1")
	require.NoError(t, err)
	assert.Equal(t, "", vn.Collection)

	for _, bad := range []string{"", "/v1", "c/", "a?b", "a/b/c"} {
		_, err := ParseViewName(bad)
		assert.ErrorIs(t, err, ErrParse, bad)
	}
}
