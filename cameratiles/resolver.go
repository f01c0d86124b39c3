// Package cameratiles resolves a camera sample into the set of tile specs
// visible on screen (spec.md §4.B, "CameraTiles"). It translates Qt
// Location's QGeoCameraTiles/QGeoCameraTilesPrivate (qgeocameratiles.cpp):
// build a view frustum from the camera, intersect it with the ground
// plane to get a footprint polygon, clip/split that footprint against the
// map edges and the antimeridian, and rasterize each resulting polygon
// into tile (x, y) coverage at the camera's nearest integer zoom level.
package cameratiles

import (
	"math"

	"github.com/OpticalFlyer/tilecore/proj"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

// Resolver is a CameraTiles instance: it owns one map's camera/viewport
// state and lazily recomputes the visible tile set on access, mirroring
// QGeoCameraTilesPrivate's m_camera/m_screenSize/m_tiles/m_dirty* fields.
type Resolver struct {
	plugin     string
	mapID      int
	mapVersion int

	camera        Data
	viewportW     int
	viewportH     int
	tileSize      int
	viewExpansion float64

	intZoom    int
	sideLength int

	dirtyGeometry bool
	dirtyMetadata bool

	tiles tilespec.Set

	// lastFootprint is the most recently clipped frustum footprint,
	// retained only so DebugFootprint can hand a demo/debug renderer the
	// same polygons tilesFromPolygon rasterized, without recomputing the
	// frustum intersection a second time.
	lastFootprint footprint
}

// NewResolver returns a Resolver for the given plugin with sane defaults:
// 256px tiles, a 1.0 (no) view expansion, and an empty tile set that will
// be computed on first VisibleTiles call once a camera/viewport is set.
func NewResolver(plugin string, mapID int) *Resolver {
	return &Resolver{
		plugin:        plugin,
		mapID:         mapID,
		tileSize:      256,
		viewExpansion: 1.0,
		tiles:         tilespec.NewSet(),
		dirtyGeometry: true,
	}
}

// SetCameraData installs a new camera sample, marking geometry dirty only
// when it actually changed, mirroring QGeoCameraTiles::setCameraData.
func (r *Resolver) SetCameraData(camera Data) {
	if r.camera == camera {
		return
	}
	r.camera = camera
	r.intZoom = int(math.Floor(camera.Zoom + 0.5))
	r.sideLength = proj.SideLength(r.intZoom)
	r.dirtyGeometry = true
}

// SetViewportSize updates the screen dimensions tiles are rasterized
// against, mirroring QGeoCameraTiles::setScreenSize.
func (r *Resolver) SetViewportSize(width, height int) {
	if r.viewportW == width && r.viewportH == height {
		return
	}
	r.viewportW, r.viewportH = width, height
	r.dirtyGeometry = true
}

// SetTileSize changes the pixel size tiles are assumed to render at.
func (r *Resolver) SetTileSize(tileSize int) {
	if r.tileSize == tileSize {
		return
	}
	r.tileSize = tileSize
	r.dirtyGeometry = true
}

// SetViewExpansion scales the frustum's near/far half-extents, used to
// prefetch a margin of tiles beyond the strict viewport (spec.md §4.B /
// §9's prefetch discussion).
func (r *Resolver) SetViewExpansion(viewExpansion float64) {
	if r.viewExpansion == viewExpansion {
		return
	}
	r.viewExpansion = viewExpansion
	r.dirtyGeometry = true
}

// SetPlugin changes only the plugin component of every tile spec, which
// does not require a full geometry recompute (spec.md §8 S1 and
// QGeoCameraTiles::setPluginString).
func (r *Resolver) SetPlugin(plugin string) {
	if r.plugin == plugin {
		return
	}
	r.plugin = plugin
	r.dirtyMetadata = true
}

// SetMapID changes only the map ID component of every tile spec.
func (r *Resolver) SetMapID(mapID int) {
	if r.mapID == mapID {
		return
	}
	r.mapID = mapID
	r.dirtyMetadata = true
}

// SetMapVersion changes only the version component of every tile spec.
func (r *Resolver) SetMapVersion(mapVersion int) {
	if r.mapVersion == mapVersion {
		return
	}
	r.mapVersion = mapVersion
	r.dirtyMetadata = true
}

// IntZoomLevel returns the integer zoom the last geometry recompute used.
func (r *Resolver) IntZoomLevel() int { return r.intZoom }

// DebugFootprint returns the ground-plane frustum footprint polygon(s)
// (in tile-index units at the current zoom) the last VisibleTiles call
// rasterized from, split into up to three sub-polygons when the camera
// straddles the antimeridian. Exported only for a debug-overlay renderer
// (§4.B's footprint is otherwise an internal geometry detail); a caller
// must call VisibleTiles first to ensure this reflects the current
// camera.
func (r *Resolver) DebugFootprint() [][][2]float64 {
	var out [][][2]float64
	for _, poly := range [][]vec3{r.lastFootprint.left, r.lastFootprint.mid, r.lastFootprint.right} {
		if len(poly) < 3 {
			continue
		}
		pts := make([][2]float64, len(poly))
		for i, v := range poly {
			pts[i] = [2]float64{v.x, v.y}
		}
		out = append(out, pts)
	}
	return out
}

// VisibleTiles returns the tile set visible under the current camera and
// viewport, recomputing lazily on dirty state. Mirrors
// QGeoCameraTiles::createTiles/tiles.
func (r *Resolver) VisibleTiles() tilespec.Set {
	if r.dirtyGeometry {
		r.updateGeometry()
		r.dirtyGeometry = false
		r.dirtyMetadata = false
		return r.tiles
	}
	if r.dirtyMetadata {
		r.updateMetadata()
		r.dirtyMetadata = false
	}
	return r.tiles
}

// updateMetadata rewrites every existing spec's plugin/mapID/version
// fields in place without touching which (zoom, x, y) cells are present —
// the cheap path QGeoCameraTiles takes when only setPluginString/
// setMapVersion changed (spec.md §8 S1).
func (r *Resolver) updateMetadata() {
	next := tilespec.NewSet()
	for _, s := range r.tiles.Slice() {
		s = s.WithPlugin(r.plugin)
		s.MapID = r.mapID
		s.Version = r.mapVersion
		next.Add(s)
	}
	r.tiles = next
}

// updateGeometry is QGeoCameraTiles::updateMetadata's sibling
// updateCameraData path collapsed with createTiles: build the frustum,
// project it to a ground footprint, clip it against the map/antimeridian,
// and rasterize every resulting polygon into tile coverage.
func (r *Resolver) updateGeometry() {
	if r.viewportW <= 0 || r.viewportH <= 0 || r.sideLength <= 0 {
		r.tiles = tilespec.NewSet()
		r.lastFootprint = footprint{}
		return
	}

	f := r.createFrustum(r.viewExpansion)
	fp := r.frustumFootprint(f)
	if len(fp) < 3 {
		r.tiles = tilespec.NewSet()
		r.lastFootprint = footprint{}
		return
	}

	clipped := r.clipFootprintToMap(fp)
	r.lastFootprint = clipped

	result := tilespec.NewSet()
	for _, poly := range [][]vec3{clipped.left, clipped.mid, clipped.right} {
		if len(poly) < 3 {
			continue
		}
		r.tilesFromPolygon(poly, result)
	}
	r.tiles = result
}
