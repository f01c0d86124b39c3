package cameratiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func straightDownCamera(zoom float64) Data {
	return Data{CenterLat: 0, CenterLon: 0, Zoom: zoom, FieldOfView: 90}
}

func TestVisibleTilesNonEmptyForStraightDownCamera(t *testing.T) {
	r := NewResolver("osm", 1)
	r.SetViewportSize(512, 512)
	r.SetCameraData(straightDownCamera(2))

	tiles := r.VisibleTiles()
	require.NotEmpty(t, tiles)
	for _, s := range tiles.Slice() {
		assert.Equal(t, "osm", s.Plugin)
		assert.Equal(t, 2, s.Zoom)
		assert.True(t, s.Valid())
	}
}

// TestSetPluginUpdatesMetadataOnly is spec.md §8's S1: changing only the
// plugin string must replace every existing spec's Plugin field without
// altering which (zoom, x, y) cells are present.
func TestSetPluginUpdatesMetadataOnly(t *testing.T) {
	r := NewResolver("osm", 1)
	r.SetViewportSize(512, 512)
	r.SetCameraData(straightDownCamera(2))

	before := r.VisibleTiles().Clone()
	require.NotEmpty(t, before)

	r.SetPlugin("satellite")
	after := r.VisibleTiles()

	require.Equal(t, len(before), len(after))
	for _, s := range after.Slice() {
		assert.Equal(t, "satellite", s.Plugin)
		withOld := s.WithPlugin("osm")
		assert.True(t, before.Contains(withOld))
	}
}

// TestDatelineCameraProducesBothEdgeColumns is spec.md §8's S2: a camera
// centered on the antimeridian at a low zoom must produce tiles from both
// the rightmost and leftmost tile columns of that zoom level.
func TestDatelineCameraProducesBothEdgeColumns(t *testing.T) {
	r := NewResolver("osm", 1)
	r.SetViewportSize(1024, 512)
	r.SetCameraData(Data{CenterLat: 0, CenterLon: 180, Zoom: 1, FieldOfView: 90})

	tiles := r.VisibleTiles()
	require.NotEmpty(t, tiles)

	side := 1 << uint(r.IntZoomLevel())
	sawMin, sawMax := false, false
	for _, s := range tiles.Slice() {
		if s.X == 0 {
			sawMin = true
		}
		if s.X == side-1 {
			sawMax = true
		}
	}
	assert.True(t, sawMin, "expected a tile from the leftmost column")
	assert.True(t, sawMax, "expected a tile from the rightmost column")
}

func TestVisibleTileCountBounded(t *testing.T) {
	r := NewResolver("osm", 1)
	r.SetViewportSize(800, 600)
	r.SetCameraData(straightDownCamera(10))

	tiles := r.VisibleTiles()
	// A straight-down 800x600 viewport at 256px tiles should never need
	// more than a small multiple of the screen's own tile grid, even with
	// the default view expansion (spec.md §8.1's tile-count bound).
	assert.Less(t, len(tiles), 200)
}

func TestMapIDAndVersionAreMetadataOnly(t *testing.T) {
	r := NewResolver("osm", 1)
	r.SetViewportSize(512, 512)
	r.SetCameraData(straightDownCamera(3))

	before := r.VisibleTiles().Clone()
	require.NotEmpty(t, before)

	r.SetMapID(2)
	r.SetMapVersion(5)
	after := r.VisibleTiles()

	require.Equal(t, len(before), len(after))
	for _, s := range after.Slice() {
		assert.Equal(t, 2, s.MapID)
		assert.Equal(t, 5, s.Version)
	}
}
