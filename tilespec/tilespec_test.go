package tilespec

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpecOrdering(t *testing.T) {
	specs := []Spec{
		New("b", 1, 2, 3, 4, -1),
		New("a", 5, 0, 0, 0, -1),
		New("a", 1, 2, 3, 4, -1),
		New("a", 1, 2, 3, 3, -1),
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Less(specs[j]) })

	assert.Equal(t, "a", specs[0].Plugin)
	assert.Equal(t, 1, specs[0].MapID)
	assert.Equal(t, "a", specs[2].Plugin)
	assert.Equal(t, 5, specs[2].MapID)
}

func TestSpecValid(t *testing.T) {
	assert.True(t, New("", 0, -1, 99, 99, -1).Valid())
	assert.True(t, New("", 0, 3, 7, 7, -1).Valid())
	assert.False(t, New("", 0, 3, 8, 7, -1).Valid())
	assert.False(t, New("", 0, 3, 0, -1, -1).Valid())
}

func TestWithPluginReplacesOnly(t *testing.T) {
	s := New("", 1, 4, 5, 6, -1)
	s2 := s.WithPlugin("A")
	assert.Equal(t, "A", s2.Plugin)
	assert.Equal(t, s.MapID, s2.MapID)
	assert.Equal(t, s.Zoom, s2.Zoom)
}

func TestSetAlgebra(t *testing.T) {
	a := NewSet(New("p", 0, 1, 0, 0, -1), New("p", 0, 1, 0, 1, -1))
	b := NewSet(New("p", 0, 1, 0, 1, -1), New("p", 0, 1, 1, 1, -1))

	union := a.Union(b)
	assert.Len(t, union, 3)

	diff := a.Difference(b)
	assert.Len(t, diff, 1)
	assert.True(t, diff.Contains(New("p", 0, 1, 0, 0, -1)))

	inter := a.Intersection(b)
	assert.Len(t, inter, 1)
	assert.True(t, inter.Contains(New("p", 0, 1, 0, 1, -1)))
}

func TestFilenameRoundTrip(t *testing.T) {
	spec := New("osm", 2, 3, 5, 6, 7)
	name := ToFilename(spec, "png", "/cache")
	assert.Equal(t, "/cache/osm-2-3-5-6-7.png", name)

	got, format, ok := FromFilename("osm-2-3-5-6-7.png")
	assert.True(t, ok)
	assert.Equal(t, "png", format)
	assert.Equal(t, spec, got)
}

func TestFilenameRoundTripUnversioned(t *testing.T) {
	spec := New("osm", 2, 3, 5, 6, -1)
	name := ToFilename(spec, "jpg", "")
	assert.Equal(t, "osm-2-3-5-6.jpg", name)

	got, format, ok := FromFilename(name)
	assert.True(t, ok)
	assert.Equal(t, "jpg", format)
	assert.Equal(t, spec, got)
}

func TestFilenameRejectsThreeDashes(t *testing.T) {
	_, _, ok := FromFilename("osm-2-3-5.png")
	assert.False(t, ok)
}

func TestFilenameRejectsGarbage(t *testing.T) {
	cases := []string{
		"no-extension",
		"a.b.c",
		"osm-x-3-5-6.png",
		"",
	}
	for _, c := range cases {
		_, _, ok := FromFilename(c)
		assert.False(t, ok, c)
	}
}
