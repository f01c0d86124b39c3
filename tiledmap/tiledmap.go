// Package tiledmap is the facade wiring components B-F against one
// camera (spec.md §4.G, "TiledMap"): it owns a CameraTiles resolver, a
// TiledMapScene, and a RequestManager, and holds a handle into the
// shared MappingEngine. Grounded on the overall QGeoTiledMap/QGeoMap
// split (qgeotiledmap.cpp, referenced throughout
// qgeotilerequestmanager.cpp) and the teacher's main.go Goliath struct
// for the Go idiom of one top-level struct owning every subsystem
// handle.
package tiledmap

import (
	"log/slog"
	"math"
	"sync"

	"github.com/OpticalFlyer/tilecore/cameratiles"
	"github.com/OpticalFlyer/tilecore/mappingengine"
	"github.com/OpticalFlyer/tilecore/proj"
	"github.com/OpticalFlyer/tilecore/requestmanager"
	"github.com/OpticalFlyer/tilecore/scene"
	"github.com/OpticalFlyer/tilecore/tilecache"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

// PrefetchStyle selects which neighbouring zoom layers PrefetchData also
// requests, mirroring QGeoTiledMap::PrefetchStyle.
type PrefetchStyle int

const (
	PrefetchNone PrefetchStyle = iota
	PrefetchNeighbourLayer
	PrefetchTwoNeighbourLayers
)

// prefetchFrustumScale is qgeotiledmap.cpp's PREFETCH_FRUSTUM_SCALE: the
// view-expansion factor applied to the margin-expanded prefetch frustum,
// chosen large enough that it always encloses the plain (viewExpansion
// 1.0) visible set, so a single requestTiles call can both retain the
// real visible tiles and add the prefetch margin without cancelling
// anything still on screen.
const prefetchFrustumScale = 2.0

// zoomSnapWindow is the fractional-zoom slack within which SetCameraData
// snaps to the nearest integer zoom, avoiding filter thrash right at an
// exact zoom level (spec.md §4.G step 1).
const zoomSnapWindow = 0.01

// MapType names one catalogue entry; only MapID participates in cache
// keys (spec.md §3's MapType).
type MapType struct {
	Style, Name, Description string
	Night, Mobile            bool
	MapID                    int
}

// Engine is the subset of mappingengine.Engine a Map needs: cache lookup
// (exact and over-zoom-fallback), request coalescing, cache-clearing,
// and subscriber registration.
type Engine interface {
	requestmanager.Engine
	LookupWithFallback(spec tilespec.Spec) (tilecache.Texture, int, bool)
	ClearAll()
	ClearMapID(mapID int)
	RegisterMap(mapID int, sink mappingengine.MapSink)
	ReleaseMap(mapID int)
}

// QuadDraw is one tile's fully resolved, renderer-ready draw descriptor:
// screen-space pixel corners (with its dateline-wrap subtree's offset
// already folded in) and the resident texture to sample at TexCoord. A
// renderer needs nothing else from tiledmap/scene/tilecache to place and
// sample this quad.
type QuadDraw struct {
	Spec          tilespec.Spec
	Texture       tilecache.Texture
	ScreenCorners scene.Rect
	TexCoord      scene.Rect
	Filter        scene.Filter
}

// SceneSnapshot is the renderer-agnostic output of UpdateSceneGraph: a
// renderer builds whatever node tree it wants from these plain values
// (spec.md §4.G's "updateSceneGraph(oldNode, window) -> new scene node",
// with "oldNode"/"window" left to the render package since tiledmap
// itself never imports one).
type SceneSnapshot struct {
	Camera scene.Camera
	Quads  []QuadDraw
}

// Map is one TiledMap: a camera-driven view onto a shared engine.
type Map struct {
	mu sync.Mutex

	mapID  int
	plugin string
	caps   cameratiles.Capabilities
	engine Engine
	log    *slog.Logger

	resolver         *cameratiles.Resolver
	prefetchResolver *cameratiles.Resolver
	mapScene         *scene.Scene
	requests         *requestmanager.Manager

	activeMapType MapType
	camera        cameratiles.Data
	viewportW     int
	viewportH     int

	minZoomLevel, maxZoomLevel int
	prefetchStyle              PrefetchStyle
}

// New constructs a Map for mapID against the given engine, registering
// itself as the engine's MapSink for mapID.
func New(mapID int, plugin string, mapType MapType, caps cameratiles.Capabilities, engine Engine, log *slog.Logger) *Map {
	if log == nil {
		log = slog.Default()
	}

	resolver := cameratiles.NewResolver(plugin, mapType.MapID)
	resolver.SetTileSize(caps.TileSize)
	prefetchResolver := cameratiles.NewResolver(plugin, mapType.MapID)
	prefetchResolver.SetTileSize(caps.TileSize)

	m := &Map{
		mapID:            mapID,
		plugin:           plugin,
		caps:             caps,
		engine:           engine,
		log:              log,
		resolver:         resolver,
		prefetchResolver: prefetchResolver,
		mapScene:         scene.New(caps.TileSize),
		activeMapType:    mapType,
		minZoomLevel:     int(math.Ceil(caps.MinZoom)),
		maxZoomLevel:     int(math.Ceil(caps.MaxZoom)),
		prefetchStyle:    PrefetchTwoNeighbourLayers,
	}
	m.requests = requestmanager.New(mapID, engine, log)
	engine.RegisterMap(mapID, m)
	return m
}

// Close releases the map from its engine and cancels any pending retry
// timers, mirroring ~QGeoTiledMapPrivate's teardown.
func (m *Map) Close() {
	m.requests.Close()
	m.engine.ReleaseMap(m.mapID)
}

// SetPrefetchStyle selects the neighbour-layer strategy PrefetchData
// uses.
func (m *Map) SetPrefetchStyle(style PrefetchStyle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefetchStyle = style
}

// SetCameraData installs a new camera sample: zoom is snapped to the
// nearest integer within zoomSnapWindow (spec.md §4.G step 1, exactly
// QGeoTiledMapPrivate::changeCameraData's "snap 0.01 either side of a
// whole number" comment), then pushed to both the resolver and the
// scene, and the scene graph is refreshed.
func (m *Map) SetCameraData(data cameratiles.Data) {
	data = data.Normalize(m.caps)

	izl := int(math.Floor(data.Zoom))
	delta := data.Zoom - float64(izl)
	if delta > 0.5 {
		izl++
		delta -= 1.0
	}
	if math.Abs(delta) < zoomSnapWindow {
		data.Zoom = float64(izl)
	}

	m.mu.Lock()
	m.camera = data
	m.resolver.SetCameraData(data)
	m.mapScene.SetCamera(data)
	m.mu.Unlock()

	m.updateScene()
}

// Resize updates the viewport size every subsystem computes against.
func (m *Map) Resize(width, height int) {
	m.mu.Lock()
	m.viewportW, m.viewportH = width, height
	m.resolver.SetViewportSize(width, height)
	m.prefetchResolver.SetViewportSize(width, height)
	m.mapScene.SetViewport(width, height)
	m.mu.Unlock()

	m.updateScene()
}

// SetActiveMapType switches which catalogue entry (and therefore which
// cache-key mapID component) the resolver produces specs for.
func (m *Map) SetActiveMapType(mapType MapType) {
	m.mu.Lock()
	m.activeMapType = mapType
	m.resolver.SetMapID(mapType.MapID)
	m.prefetchResolver.SetMapID(mapType.MapID)
	m.mu.Unlock()

	m.updateScene()
}

// SetMapVersion changes the version component every produced spec
// carries, mirroring QGeoTiledMapPrivate::changeTileVersion.
func (m *Map) SetMapVersion(version int) {
	m.mu.Lock()
	m.resolver.SetMapVersion(version)
	m.prefetchResolver.SetMapVersion(version)
	m.mu.Unlock()

	m.updateScene()
}

// ActiveMapType returns the catalogue entry currently active.
func (m *Map) ActiveMapType() MapType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeMapType
}

// ClearData wipes the entire shared cache (every map, every tier) and
// this map's own resident textures, mirroring QGeoTiledMap::clearData.
func (m *Map) ClearData() {
	m.engine.ClearAll()
	m.mu.Lock()
	m.mapScene.ClearTextures()
	m.mu.Unlock()
	m.updateScene()
}

// ClearScene clears this map's own scene if mapId matches its currently
// active map type, mirroring QGeoTiledMap::clearScene(mapId) — a no-op
// for a mapId belonging to a different catalogue entry.
func (m *Map) ClearScene(mapID int) {
	m.mu.Lock()
	if m.activeMapType.MapID != mapID {
		m.mu.Unlock()
		return
	}
	m.mapScene.ClearTextures()
	m.mapScene.SetVisibleTiles(tilespec.NewSet())
	m.mu.Unlock()

	m.updateScene()
}

// updateScene is QGeoTiledMapPrivate::updateScene: push the resolver's
// current visible set into the scene, ask the request manager for
// whatever isn't already textured, add any synchronous cache hits
// immediately, then try an over-zoom placeholder for anything still
// untextured so the screen is never left blank while a fetch is in
// flight (spec.md §4.F's over-zoom path).
func (m *Map) updateScene() {
	m.mu.Lock()
	defer m.mu.Unlock()

	tiles := m.resolver.VisibleTiles()
	m.mapScene.SetVisibleTiles(tiles)

	residual := tiles.Difference(m.mapScene.TexturedSpecs())
	cached := m.requests.RequestTiles(residual)
	for spec, tex := range cached {
		m.mapScene.AddTile(spec, tex, spec.Zoom)
	}

	for _, spec := range tiles.Slice() {
		if _, _, ok := m.mapScene.Texture(spec); ok {
			continue
		}
		if tex, sourceZoom, ok := m.engine.LookupWithFallback(spec); ok {
			m.mapScene.AddTile(spec, tex, sourceZoom)
		}
	}
}

// PrefetchData requests tiles beyond the strict viewport once the camera
// has come to rest: always a margin-expanded layer at the current zoom,
// plus whichever neighbour zoom layer(s) m.prefetchStyle names (spec.md
// §4.G's "On prefetch" / §9's PrefetchStyle discussion). Grounded
// line-for-line on QGeoTiledMapPrivate::prefetchTiles.
func (m *Map) PrefetchData() {
	m.mu.Lock()
	camera := m.camera
	intZoom := int(math.Floor(camera.Zoom))

	pf := m.prefetchResolver
	pf.SetCameraData(camera)
	pf.SetViewExpansion(prefetchFrustumScale)
	tiles := pf.VisibleTiles().Clone()

	switch m.prefetchStyle {
	case PrefetchNeighbourLayer:
		zoomFraction := camera.Zoom - float64(intZoom)
		neighbour := intZoom + 1
		if zoomFraction <= 0.5 {
			neighbour = intZoom - 1
		}
		if neighbour <= m.maxZoomLevel && neighbour >= m.minZoomLevel {
			neighbourScale := (1.0 + zoomFraction) / 2.0
			camNeighbour := camera
			camNeighbour.Zoom = float64(neighbour)
			pf.SetCameraData(camNeighbour)
			pf.SetViewExpansion(prefetchFrustumScale * neighbourScale)
			tiles = tiles.Union(pf.VisibleTiles())
		}

	case PrefetchTwoNeighbourLayers:
		if intZoom > m.minZoomLevel {
			camBelow := camera
			camBelow.Zoom = float64(intZoom - 1)
			pf.SetCameraData(camBelow)
			pf.SetViewExpansion(0.5)
			tiles = tiles.Union(pf.VisibleTiles())
		}
		if intZoom < m.maxZoomLevel {
			camAbove := camera
			camAbove.Zoom = float64(intZoom + 1)
			pf.SetCameraData(camAbove)
			pf.SetViewExpansion(1.0)
			tiles = tiles.Union(pf.VisibleTiles())
		}
	}

	residual := tiles.Difference(m.mapScene.TexturedSpecs())
	m.mu.Unlock()

	if len(residual) > 0 {
		m.requests.RequestTiles(residual)
	}
}

// TileFetched implements mappingengine.MapSink: it clears the request
// manager's bookkeeping for spec, then looks the freshly-inserted tile
// back up from the cache and promotes it into the scene.
func (m *Map) TileFetched(spec tilespec.Spec) {
	m.requests.TileFetched(spec)
	if tex, ok := m.engine.Lookup(spec); ok {
		m.mu.Lock()
		m.mapScene.AddTile(spec, tex, spec.Zoom)
		m.mu.Unlock()
	}
}

// TileError implements mappingengine.MapSink: it forwards to the request
// manager, which drives its own retry/backoff policy (spec.md §4.D).
func (m *Map) TileError(spec tilespec.Spec, errMsg string) {
	m.requests.TileError(spec, errMsg)
}

// UpdateSceneGraph returns this frame's renderer-agnostic scene snapshot
// (spec.md §4.G's updateSceneGraph): every textured, visible quad across
// every dateline-wrap subtree worth building, each already resolved to
// screen pixels and paired with the texture/tex-coord/filter a renderer
// samples it with. devicePixelRatio feeds FilterFor (spec.md §4.F); pass
// 1.0 for a non-retina display.
func (m *Map) UpdateSceneGraph(devicePixelRatio float64) SceneSnapshot {
	if devicePixelRatio <= 0 {
		devicePixelRatio = 1.0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rawQuads := m.mapScene.Quads()
	subtrees := m.mapScene.VisibleSubtrees(rawQuads)
	bounds := m.mapScene.Bounds()

	out := make([]QuadDraw, 0, len(rawQuads)*len(subtrees))
	for _, sub := range subtrees {
		offset := m.mapScene.SubtreeOffset(sub)
		for _, q := range rawQuads {
			tex, sourceZoom, ok := m.mapScene.Texture(q.Spec)
			if !ok {
				continue
			}

			// Corners are bounds-relative tile-unit offsets (scene/quad.go);
			// undo that relative offset to recover each corner's absolute
			// tile-space Mercator coordinate, then let MercatorToItemPosition
			// pick the screen position (including its own shortest-dateline-
			// wrap choice) before this subtree's fixed pixel offset is added.
			p0 := m.mapScene.MercatorToItemPosition(scene.MercatorPoint{
				X: float64(bounds.MinTileX) + q.Corners.X0,
				Y: float64(bounds.MinTileY) - q.Corners.Y0,
			}, 0, 0)
			p1 := m.mapScene.MercatorToItemPosition(scene.MercatorPoint{
				X: float64(bounds.MinTileX) + q.Corners.X1,
				Y: float64(bounds.MinTileY) - q.Corners.Y1,
			}, 0, 0)

			overZoom := sourceZoom < q.Spec.Zoom
			filter := m.mapScene.FilterFor(tex.Width, devicePixelRatio, overZoom)

			out = append(out, QuadDraw{
				Spec:    q.Spec,
				Texture: tex,
				ScreenCorners: scene.Rect{
					X0: p0.X + offset, Y0: p0.Y,
					X1: p1.X + offset, Y1: p1.Y,
				},
				TexCoord: q.TexCoord,
				Filter:   filter,
			})
		}
	}

	return SceneSnapshot{Camera: m.mapScene.Camera(), Quads: out}
}

// ItemPositionToCoordinate converts a screen point to a geodetic
// coordinate, the inverse of CoordinateToItemPosition.
func (m *Map) ItemPositionToCoordinate(p scene.ScreenPoint) (lat, lon float64) {
	m.mu.Lock()
	side := float64(m.mapScene.SideLength())
	mp := m.mapScene.ItemPositionToMercator(p, 0, 0)
	m.mu.Unlock()

	if side == 0 {
		return 0, 0
	}
	return proj.MercatorToCoord(mp.X/side, mp.Y/side)
}

// CoordinateToItemPosition converts a geodetic coordinate to a screen
// point, the inverse of ItemPositionToCoordinate.
func (m *Map) CoordinateToItemPosition(lat, lon float64) scene.ScreenPoint {
	mx, my := proj.CoordToMercator(lat, lon)

	m.mu.Lock()
	defer m.mu.Unlock()
	side := float64(m.mapScene.SideLength())
	return m.mapScene.MercatorToItemPosition(scene.MercatorPoint{X: mx * side, Y: my * side}, 0, 0)
}

// DebugFootprint returns the current visible-tile frustum footprint
// (cameratiles.Resolver.DebugFootprint's tile-index-unit polygons)
// converted to screen pixels, for a debug-overlay renderer. tiledmap
// itself never consumes this; it exists only so render/ebitenrender's
// debug mode can draw the same geometry VisibleTiles rasterized from.
func (m *Map) DebugFootprint() [][]scene.ScreenPoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	polys := m.resolver.DebugFootprint()
	out := make([][]scene.ScreenPoint, 0, len(polys))
	for _, poly := range polys {
		pts := make([]scene.ScreenPoint, len(poly))
		for i, v := range poly {
			pts[i] = m.mapScene.MercatorToItemPosition(scene.MercatorPoint{X: v[0], Y: v[1]}, 0, 0)
		}
		out = append(out, pts)
	}
	return out
}

// MinimumZoomAtViewportSize returns the zoom level at which the whole
// map's edge (2^zoom tiles) spans the larger dimension of a viewport of
// the given size, translating QGeoTiledMap::minimumZoomAtViewportSize.
func (m *Map) MinimumZoomAtViewportSize(width, height int) float64 {
	maxSize := float64(width)
	if height > width {
		maxSize = float64(height)
	}
	numTiles := maxSize / float64(m.caps.TileSize)
	return math.Log(numTiles) / math.Log(2.0)
}

// MaximumCenterLatitudeAtZoom returns the highest latitude the map
// center may sit at for the given zoom level without leaving the map's
// own top edge visible within the current viewport height, translating
// QGeoTiledMap::maximumCenterLatitudeAtZoom.
func (m *Map) MaximumCenterLatitudeAtZoom(zoomLevel float64) float64 {
	m.mu.Lock()
	viewportH := m.viewportH
	m.mu.Unlock()

	mapEdgeSize := math.Pow(2.0, zoomLevel) * float64(m.caps.TileSize)
	clampedHeight := float64(viewportH)
	if clampedHeight > mapEdgeSize {
		clampedHeight = mapEdgeSize
	}
	mercatorTopmost := (clampedHeight * 0.5) / mapEdgeSize
	lat, _ := proj.MercatorToCoord(0.0, mercatorTopmost)
	return lat
}
