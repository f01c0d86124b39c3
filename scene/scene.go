// Package scene holds per-frame scene state for one TiledMap: the visible
// tile set's bounds, a loose camera projection, tile quads, dateline-wrap
// replication, and texture filtering policy (spec.md §4.F,
// "TiledMapScene"). Grounded on original_source/.../qgeotiledmapscene.cpp
// and the teacher's tilemap/zooming.go (ScreenToWorld) for the Go idiom of
// screen<->world conversion. It never imports a render package: textures
// arrive as opaque tilecache.Texture values, and the projection this
// package computes is parameters (eye/center/up/half-extents), not a
// concrete matrix type, so any renderer can build its own transform from
// them.
package scene

import (
	"math"

	"github.com/OpticalFlyer/tilecore/cameratiles"
	"github.com/OpticalFlyer/tilecore/proj"
	"github.com/OpticalFlyer/tilecore/tilecache"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

// linearScalingThreshold is the fractional-zoom slack before the scene
// switches from nearest-neighbor to linear filtering (spec.md §4.F).
const linearScalingThreshold = 0.05

// Bounds is the visible tile set's index range, in tile-x/y units, with
// dateline-wrapped x already folded in (wrapped left-half columns have
// sideLength added, per spec.md §4.B's dateline edge case applied here to
// bookkeeping rather than rasterization).
type Bounds struct {
	MinTileX, MinTileY int
	MaxTileX, MaxTileY int
}

// Camera is the scene's loose rendering frustum: eye/center/up describe
// where the camera looks from map-edge units, and the half-extents/near/
// far describe an orthographic-ish frustum deliberately wider than the
// true visible set (actual culling already happened in cameratiles;
// spec.md §4.F notes the very large far plane is intentional).
type Camera struct {
	Eye, Center, Up [3]float64
	HalfW, HalfH    float64
	Near, Far       float64
}

// Scene is one TiledMap's per-frame state.
type Scene struct {
	camera   cameratiles.Data
	capsSize int // tile size in pixels
	viewportW, viewportH int

	intZoom    int
	sideLength int
	edge       float64 // pixel size one tile edge occupies at the current zoom (== tileSize for intZoom == camera zoom)

	linearScaling bool
	bounds        Bounds
	sceneCamera   Camera

	visible  tilespec.Set
	textures map[tilespec.Spec]residentTile
	// updated holds specs whose texture this frame replaced a coarser
	// over-zoom placeholder, so the next scene-graph build knows to swap
	// geometry even though the spec was already "visible" (spec.md
	// §4.F's addTile rule).
	updated map[tilespec.Spec]struct{}
}

// residentTile pairs a decoded texture with the zoom level it was
// actually decoded at. The two differ when AddTile was given an
// over-zoom placeholder: spec names the (finer) tile the scene wants,
// sourceZoom names the (coarser) tile the texture actually came from.
type residentTile struct {
	tex        tilecache.Texture
	sourceZoom int
}

// New returns an empty Scene with the given tile size in pixels.
func New(tileSize int) *Scene {
	return &Scene{
		capsSize: tileSize,
		textures: make(map[tilespec.Spec]residentTile),
		updated:  make(map[tilespec.Spec]struct{}),
		visible:  tilespec.NewSet(),
	}
}

// SetViewport updates the screen size the camera frustum is built for.
func (s *Scene) SetViewport(w, h int) {
	s.viewportW, s.viewportH = w, h
}

// SetCamera installs the camera sample driving this frame's projection
// and rebuilds the loose frustum and linearScaling flag.
func (s *Scene) SetCamera(cam cameratiles.Data) {
	s.camera = cam
	s.intZoom = int(math.Floor(cam.Zoom + 0.5))
	s.sideLength = proj.SideLength(s.intZoom)
	s.edge = float64(s.capsSize) * math.Pow(2, cam.Zoom-float64(s.intZoom))

	s.linearScaling = math.Abs(cam.Zoom-float64(s.intZoom)) > linearScalingThreshold ||
		cam.Tilt != 0 || cam.Bearing != 0 || cam.Roll != 0

	s.rebuildCamera()
}

// rebuildCamera derives the loose eye/center/up/half-extent frustum
// parameters from the current camera sample, translating
// QGeoTiledMapScenePrivate's camera-matrix rebuild with the spec's
// explicitly loose far plane (altitude + 10000, scaled to edge units)
// rather than cameratiles' tight culling frustum.
func (s *Scene) rebuildCamera() {
	if s.sideLength == 0 || s.capsSize == 0 {
		return
	}
	mx, my := proj.CoordToMercator(s.camera.CenterLat, s.camera.CenterLon)
	center := [3]float64{mx * float64(s.sideLength) * s.edge, my * float64(s.sideLength) * s.edge, 0}

	aperture := 1.0
	if s.camera.FieldOfView != 90 {
		aperture = math.Tan(s.camera.FieldOfView * math.Pi / 180 / 2)
	}
	z := s.edge
	altitude := (float64(s.viewportH) / (2.0 * z)) / aperture

	aspect := 1.0
	if s.viewportH > 0 {
		aspect = float64(s.viewportW) / float64(s.viewportH)
	}

	s.sceneCamera = Camera{
		Eye:    [3]float64{center[0], center[1], altitude},
		Center: center,
		Up:     [3]float64{0, 1, 0},
		HalfH:  aperture,
		HalfW:  aperture * aspect,
		Near:   1.0 / (4.0 * float64(s.capsSize)),
		Far:    (altitude + 10000) * s.edge,
	}
}

// Camera returns the current loose rendering frustum.
func (s *Scene) Camera() Camera { return s.sceneCamera }

// IntZoom and SideLength expose the scene's current integer zoom level
// and the tile grid width/height at that zoom.
func (s *Scene) IntZoom() int      { return s.intZoom }
func (s *Scene) SideLength() int   { return s.sideLength }
func (s *Scene) Edge() float64     { return s.edge }
func (s *Scene) LinearScaling() bool { return s.linearScaling }
func (s *Scene) Bounds() Bounds    { return s.bounds }

// SetVisibleTiles installs a new visible tile set: bounds are
// recomputed (with dateline-wrap bookkeeping per spec.md's edge case),
// textures for tiles no longer visible are dropped, and the set replaces
// the previous one atomically — callers never observe a partially
// updated Scene.
func (s *Scene) SetVisibleTiles(set tilespec.Set) {
	s.bounds = computeBounds(set, s.sideLength)

	for spec := range s.textures {
		if !set.Contains(spec) {
			delete(s.textures, spec)
			delete(s.updated, spec)
		}
	}
	s.visible = set.Clone()
}

// computeBounds folds dateline-wrapped columns into a single contiguous
// range: if the set has tiles at x=0 and x=sideLength-1 but a middle
// column is absent, every tile in the "left half" (x < sideLength/2) has
// sideLength added to its x before min/max bookkeeping (spec.md §4.B's
// dateline edge case, applied here to scene bookkeeping).
func computeBounds(set tilespec.Set, sideLength int) Bounds {
	if len(set) == 0 {
		return Bounds{}
	}

	sawMinCol, sawMaxCol := false, false
	xs := make(map[int]struct{})
	for _, s := range set.Slice() {
		xs[s.X] = struct{}{}
		if s.X == 0 {
			sawMinCol = true
		}
		if s.X == sideLength-1 {
			sawMaxCol = true
		}
	}
	wraps := false
	if sawMinCol && sawMaxCol && sideLength > 2 {
		for x := 1; x < sideLength-1; x++ {
			if _, ok := xs[x]; !ok {
				wraps = true
				break
			}
		}
	}

	first := true
	var b Bounds
	for _, sp := range set.Slice() {
		x := sp.X
		if wraps && x < sideLength/2 {
			x += sideLength
		}
		if first {
			b = Bounds{MinTileX: x, MaxTileX: x, MinTileY: sp.Y, MaxTileY: sp.Y}
			first = false
			continue
		}
		if x < b.MinTileX {
			b.MinTileX = x
		}
		if x > b.MaxTileX {
			b.MaxTileX = x
		}
		if sp.Y < b.MinTileY {
			b.MinTileY = sp.Y
		}
		if sp.Y > b.MaxTileY {
			b.MaxTileY = sp.Y
		}
	}
	return b
}

// AddTile accepts tex for spec if spec is currently visible. sourceZoom
// is the zoom level tex actually came from: equal to spec.Zoom for an
// exact-match fetch, lower for an over-zoom placeholder substituted from
// a coarser ancestor tile. If the scene already held a placeholder with
// a lower sourceZoom than this call's, the replacement is recorded so the
// next scene-graph build swaps it in (spec.md §4.F's addTile rule).
func (s *Scene) AddTile(spec tilespec.Spec, tex tilecache.Texture, sourceZoom int) {
	if !s.visible.Contains(spec) {
		return
	}
	if prev, ok := s.textures[spec]; ok && prev.sourceZoom < sourceZoom {
		s.updated[spec] = struct{}{}
	}
	s.textures[spec] = residentTile{tex: tex, sourceZoom: sourceZoom}
}

// UpdatedSpecs returns, and clears, the set of specs whose texture
// changed since the last call (over-zoom placeholders being replaced by
// the real tile).
func (s *Scene) UpdatedSpecs() []tilespec.Spec {
	out := make([]tilespec.Spec, 0, len(s.updated))
	for spec := range s.updated {
		out = append(out, spec)
	}
	s.updated = make(map[tilespec.Spec]struct{})
	return out
}

// Texture returns the texture currently resident for spec and the zoom
// level it actually came from, if any.
func (s *Scene) Texture(spec tilespec.Spec) (tilecache.Texture, int, bool) {
	r, ok := s.textures[spec]
	return r.tex, r.sourceZoom, ok
}

// VisibleSpecs returns the current visible tile set.
func (s *Scene) VisibleSpecs() tilespec.Set { return s.visible.Clone() }

// TexturedSpecs returns the set of specs currently holding a texture
// (exact or over-zoom placeholder), mirroring QGeoTiledMapScene::
// texturedTiles() — the facade diffs this against the visible set to
// find the residual that still needs a cache lookup or fetch.
func (s *Scene) TexturedSpecs() tilespec.Set {
	out := tilespec.NewSet()
	for spec := range s.textures {
		out.Add(spec)
	}
	return out
}

// ClearTextures drops every resident texture without touching the
// visible set, mirroring QGeoTiledMapScene::clearTexturedTiles.
func (s *Scene) ClearTextures() {
	s.textures = make(map[tilespec.Spec]residentTile)
	s.updated = make(map[tilespec.Spec]struct{})
}
