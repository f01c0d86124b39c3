package tiledmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpticalFlyer/tilecore/cameratiles"
	"github.com/OpticalFlyer/tilecore/mappingengine"
	"github.com/OpticalFlyer/tilecore/scene"
	"github.com/OpticalFlyer/tilecore/tilecache"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

// stubEngine always serves a cache hit for any spec (when hit is true)
// and records every UpdateTileRequests/ClearAll/ClearMapID call, letting
// tests observe the facade's wiring without a real mappingengine.Engine.
type stubEngine struct {
	hit  bool
	tex  tilecache.Texture
	sink map[int]mappingengine.MapSink

	requestCalls int
	lastAdded    tilespec.Set
	lastRemoved  tilespec.Set

	clearAllCalls int
	clearedMapIDs []int
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		hit:  true,
		tex:  tilecache.Texture{Width: 256, Height: 256},
		sink: make(map[int]mappingengine.MapSink),
	}
}

func (e *stubEngine) Lookup(spec tilespec.Spec) (tilecache.Texture, bool) {
	if e.hit {
		return e.tex, true
	}
	return tilecache.Texture{}, false
}

func (e *stubEngine) LookupWithFallback(spec tilespec.Spec) (tilecache.Texture, int, bool) {
	if e.hit {
		return e.tex, spec.Zoom, true
	}
	return tilecache.Texture{}, 0, false
}

func (e *stubEngine) UpdateTileRequests(mapID int, added, removed tilespec.Set) {
	e.requestCalls++
	e.lastAdded, e.lastRemoved = added, removed
}

func (e *stubEngine) ClearAll()         { e.clearAllCalls++ }
func (e *stubEngine) ClearMapID(id int) { e.clearedMapIDs = append(e.clearedMapIDs, id) }

func (e *stubEngine) RegisterMap(mapID int, sink mappingengine.MapSink) { e.sink[mapID] = sink }
func (e *stubEngine) ReleaseMap(mapID int)                              { delete(e.sink, mapID) }

func testMap(t *testing.T, engine Engine) *Map {
	t.Helper()
	mt := MapType{MapID: 1}
	m := New(1, "osm", mt, cameratiles.DefaultCapabilities, engine, nil)
	m.Resize(512, 512)
	return m
}

func TestSetCameraDataSnapsNearIntegerZoom(t *testing.T) {
	m := testMap(t, newStubEngine())

	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 3.003, FieldOfView: 90})
	assert.Equal(t, 3.0, m.camera.Zoom)

	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2.997, FieldOfView: 90})
	assert.Equal(t, 3.0, m.camera.Zoom)

	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 3.5, FieldOfView: 90})
	assert.InDelta(t, 3.5, m.camera.Zoom, 1e-9)
}

func TestUpdateSceneAddsCacheHitsImmediately(t *testing.T) {
	engine := newStubEngine()
	m := testMap(t, engine)

	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2, FieldOfView: 90})

	visible := m.resolver.VisibleTiles()
	require.NotEmpty(t, visible)
	assert.Equal(t, len(visible), len(m.mapScene.TexturedSpecs()))
}

func TestUpdateSceneRequestsOnCacheMiss(t *testing.T) {
	engine := newStubEngine()
	engine.hit = false
	m := testMap(t, engine)

	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2, FieldOfView: 90})

	assert.Empty(t, m.mapScene.TexturedSpecs())
	assert.Positive(t, engine.requestCalls)
	assert.NotEmpty(t, engine.lastAdded)
}

func TestPrefetchDataRequestsBeyondViewport(t *testing.T) {
	engine := newStubEngine()
	engine.hit = false
	m := testMap(t, engine)
	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 4, FieldOfView: 90})

	callsBefore := engine.requestCalls
	m.PrefetchData()
	assert.Greater(t, engine.requestCalls, callsBefore)
}

func TestTileFetchedPromotesTextureIntoScene(t *testing.T) {
	engine := newStubEngine()
	engine.hit = false
	m := testMap(t, engine)
	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2, FieldOfView: 90})
	require.Empty(t, m.mapScene.TexturedSpecs())

	spec := m.resolver.VisibleTiles().Slice()[0]
	engine.hit = true
	m.TileFetched(spec)

	_, _, ok := m.mapScene.Texture(spec)
	assert.True(t, ok)
}

func TestClearDataClearsEngineAndScene(t *testing.T) {
	engine := newStubEngine()
	m := testMap(t, engine)
	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2, FieldOfView: 90})
	require.NotEmpty(t, m.mapScene.TexturedSpecs())

	engine.hit = false
	m.ClearData()

	assert.Equal(t, 1, engine.clearAllCalls)
	assert.Empty(t, m.mapScene.TexturedSpecs())
}

func TestClearSceneOnlyAffectsMatchingMapType(t *testing.T) {
	engine := newStubEngine()
	m := testMap(t, engine)
	m.SetCameraData(cameratiles.Data{CenterLat: 0, CenterLon: 0, Zoom: 2, FieldOfView: 90})
	require.NotEmpty(t, m.mapScene.TexturedSpecs())

	m.ClearScene(99) // not this map's active mapId: no-op
	assert.NotEmpty(t, m.mapScene.TexturedSpecs())

	engine.hit = false
	m.ClearScene(1) // this map's active mapId
	assert.Empty(t, m.mapScene.TexturedSpecs())
}

func TestItemPositionCoordinateRoundTrip(t *testing.T) {
	m := testMap(t, newStubEngine())
	m.SetCameraData(cameratiles.Data{CenterLat: 10, CenterLon: 20, Zoom: 5, FieldOfView: 90})

	center := scene.ScreenPoint{X: 256, Y: 256}
	lat, lon := m.ItemPositionToCoordinate(center)
	back := m.CoordinateToItemPosition(lat, lon)
	assert.InDelta(t, center.X, back.X, 0.01)
	assert.InDelta(t, center.Y, back.Y, 0.01)
}

func TestMinimumZoomAtViewportSize(t *testing.T) {
	m := testMap(t, newStubEngine())
	assert.InDelta(t, 0.0, m.MinimumZoomAtViewportSize(256, 256), 1e-9)
	assert.InDelta(t, 1.0, m.MinimumZoomAtViewportSize(512, 512), 1e-9)
}

func TestMaximumCenterLatitudeAtZoom(t *testing.T) {
	m := testMap(t, newStubEngine())
	lat := m.MaximumCenterLatitudeAtZoom(2)
	assert.Greater(t, lat, 0.0)
	assert.Less(t, lat, 90.0)
}
