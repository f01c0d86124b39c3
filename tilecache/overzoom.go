package tilecache

import "github.com/OpticalFlyer/tilecore/tilespec"

// maxOverZoomLevels bounds how far GetWithFallback will walk up the
// pyramid looking for a coarser ancestor tile; beyond this, showing
// nothing is preferable to a near-blank placeholder (spec.md §4.F).
const maxOverZoomLevels = 5

// GetWithFallback looks up spec's exact tile and, on a miss, walks up to
// maxOverZoomLevels coarser ancestors at the same (x, y) lineage so a
// caller can show a coarser placeholder while the exact tile is still in
// flight (spec.md §4.F's over-zoom path, grounded on
// QGeoTiledMapScenePrivate's reuse of a parent QGeoTileTexture). The
// returned int is the zoom level the texture actually came from; the
// caller (scene.AddTile) uses it to tell an exact match from a
// placeholder.
func (c *Cache) GetWithFallback(spec tilespec.Spec) (Texture, int, bool) {
	if tex, ok := c.Get(spec); ok {
		return tex, spec.Zoom, true
	}

	x, y := spec.X, spec.Y
	for levels := 1; levels <= maxOverZoomLevels && spec.Zoom-levels >= 0; levels++ {
		x >>= 1
		y >>= 1
		ancestor := tilespec.New(spec.Plugin, spec.MapID, spec.Zoom-levels, x, y, spec.Version)
		if tex, ok := c.Get(ancestor); ok {
			return tex, ancestor.Zoom, true
		}
	}
	return Texture{}, 0, false
}
