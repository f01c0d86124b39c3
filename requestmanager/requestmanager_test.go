package requestmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpticalFlyer/tilecore/tilecache"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

type stubEngine struct {
	cached  map[tilespec.Spec]tilecache.Texture
	added   tilespec.Set
	removed tilespec.Set
	calls   int
}

func newStubEngine() *stubEngine {
	return &stubEngine{cached: make(map[tilespec.Spec]tilecache.Texture)}
}

func (s *stubEngine) Lookup(spec tilespec.Spec) (tilecache.Texture, bool) {
	tex, ok := s.cached[spec]
	return tex, ok
}

func (s *stubEngine) UpdateTileRequests(mapID int, added, removed tilespec.Set) {
	s.calls++
	s.added = added
	s.removed = removed
}

func TestRequestTilesCachedHitsBypassEngine(t *testing.T) {
	engine := newStubEngine()
	a := tilespec.New("osm", 1, 2, 0, 0, -1)
	b := tilespec.New("osm", 1, 2, 1, 0, -1)
	engine.cached[a] = tilecache.Texture{Width: 1, Height: 1}

	m := New(1, engine, nil)
	cached := m.RequestTiles(tilespec.NewSet(a, b))

	require.Contains(t, cached, a)
	assert.NotContains(t, cached, b)
	assert.True(t, engine.added.Contains(b))
	assert.False(t, engine.added.Contains(a))
}

func TestRequestTilesCancelsDroppedTiles(t *testing.T) {
	engine := newStubEngine()
	a := tilespec.New("osm", 1, 2, 0, 0, -1)
	b := tilespec.New("osm", 1, 2, 1, 0, -1)

	m := New(1, engine, nil)
	m.RequestTiles(tilespec.NewSet(a, b))
	m.RequestTiles(tilespec.NewSet(b))

	assert.True(t, engine.removed.Contains(a))
	assert.False(t, m.Outstanding().Contains(a))
	assert.True(t, m.Outstanding().Contains(b))
}

// TestTileErrorDropsAfterMaxRetries is spec.md §8's S4: after the 5th
// failure the spec is dropped permanently.
func TestTileErrorDropsAfterMaxRetries(t *testing.T) {
	engine := newStubEngine()
	spec := tilespec.New("osm", 1, 2, 0, 0, -1)

	m := New(1, engine, nil)
	m.RequestTiles(tilespec.NewSet(spec))
	require.True(t, m.Outstanding().Contains(spec))

	for i := 0; i < maxRetries; i++ {
		m.TileError(spec, "boom")
	}

	assert.False(t, m.Outstanding().Contains(spec))
	m.Close()
}

func TestTileFetchedClearsState(t *testing.T) {
	engine := newStubEngine()
	spec := tilespec.New("osm", 1, 2, 0, 0, -1)

	m := New(1, engine, nil)
	m.RequestTiles(tilespec.NewSet(spec))
	m.TileError(spec, "boom")
	m.TileFetched(spec)

	assert.False(t, m.Outstanding().Contains(spec))
	m.Close()
}
