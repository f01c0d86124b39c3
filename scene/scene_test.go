package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpticalFlyer/tilecore/cameratiles"
	"github.com/OpticalFlyer/tilecore/tilecache"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

func TestSetVisibleTilesDropsEvictedTextures(t *testing.T) {
	s := New(256)
	s.SetViewport(512, 512)
	s.SetCamera(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2, FieldOfView: 90})

	a := tilespec.New("osm", 1, 2, 0, 0, -1)
	b := tilespec.New("osm", 1, 2, 1, 0, -1)
	s.SetVisibleTiles(tilespec.NewSet(a, b))
	s.AddTile(a, tilecache.Texture{Width: 256, Height: 256}, 2)
	s.AddTile(b, tilecache.Texture{Width: 256, Height: 256}, 2)

	s.SetVisibleTiles(tilespec.NewSet(a))

	_, _, ok := s.Texture(b)
	assert.False(t, ok)
	_, _, ok = s.Texture(a)
	assert.True(t, ok)
}

func TestAddTileRejectsNonVisibleSpec(t *testing.T) {
	s := New(256)
	s.SetViewport(512, 512)
	s.SetVisibleTiles(tilespec.NewSet(tilespec.New("osm", 1, 2, 0, 0, -1)))

	other := tilespec.New("osm", 1, 2, 5, 5, -1)
	s.AddTile(other, tilecache.Texture{Width: 256, Height: 256}, 2)

	_, _, ok := s.Texture(other)
	assert.False(t, ok)
}

func TestAddTileRecordsOverZoomReplacement(t *testing.T) {
	s := New(256)
	s.SetViewport(512, 512)
	spec := tilespec.New("osm", 1, 4, 3, 3, -1)
	s.SetVisibleTiles(tilespec.NewSet(spec))

	s.AddTile(spec, tilecache.Texture{Width: 256, Height: 256}, 2) // over-zoom placeholder
	assert.Empty(t, s.UpdatedSpecs())

	s.AddTile(spec, tilecache.Texture{Width: 256, Height: 256}, 4) // exact tile arrives
	updated := s.UpdatedSpecs()
	require.Len(t, updated, 1)
	assert.Equal(t, spec, updated[0])

	// UpdatedSpecs drains the queue.
	assert.Empty(t, s.UpdatedSpecs())
}

func TestQuadPlacementRelativeToBounds(t *testing.T) {
	s := New(256)
	s.SetViewport(512, 512)
	s.SetCamera(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2, FieldOfView: 90})

	origin := tilespec.New("osm", 1, 2, 1, 1, -1)
	right := tilespec.New("osm", 1, 2, 2, 1, -1)
	s.SetVisibleTiles(tilespec.NewSet(origin, right))
	s.AddTile(origin, tilecache.Texture{Width: 256, Height: 256}, 2)
	s.AddTile(right, tilecache.Texture{Width: 256, Height: 256}, 2)

	quads := s.Quads()
	require.Len(t, quads, 2)

	byX := map[int]TileQuad{}
	for _, q := range quads {
		byX[q.Spec.X] = q
	}
	assert.Equal(t, 0.0, byX[1].Corners.X0)
	assert.Equal(t, 1.0, byX[2].Corners.X0)
}

func TestMercatorItemPositionRoundTrip(t *testing.T) {
	s := New(256)
	s.SetViewport(512, 512)
	s.SetCamera(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2, FieldOfView: 90})

	center := s.ItemPositionToMercator(ScreenPoint{X: 256, Y: 256}, 0, 0)
	back := s.MercatorToItemPosition(center, 0, 0)
	assert.InDelta(t, 256.0, back.X, 0.001)
	assert.InDelta(t, 256.0, back.Y, 0.001)
}
