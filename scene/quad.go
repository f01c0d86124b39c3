package scene

import "github.com/OpticalFlyer/tilecore/tilespec"

// Rect is an axis-aligned rectangle in whatever unit its caller uses
// (screen-space pixels for quad corners, [0,1] texture space for UVs).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// TileQuad is one tile's renderable geometry for the current frame: its
// screen-space corners (relative to the scene's bounds origin, in edge
// units — multiply by Scene.Edge() for pixels) and the texture
// sub-rectangle to sample, vertical-flipped relative to the texture's
// top-left origin so that v=1 is the texture's top row (spec.md §4.F's "texture coordinates are
// vertical-flipped").
type TileQuad struct {
	Spec     tilespec.Spec
	Corners  Rect
	TexCoord Rect
}

// Quads builds one TileQuad per textured, visible tile, honoring
// spec.md §4.F's placement formula: a tile (x, y) at the scene's zoom,
// relative to bounds.MinTileX/MinTileY, contributes a quad at
// ((x-minTileX), (minTileY-y)) .. ((x-minTileX+1), (minTileY-y-1)).
// Over-zoomed tiles (resident texture's zoom coarser than the scene's)
// map only the sub-rectangle of that ancestor texture covering this
// tile.
func (s *Scene) Quads() []TileQuad {
	quads := make([]TileQuad, 0, len(s.textures))
	for spec, r := range s.textures {
		x := spec.X
		if s.bounds.wraps(spec.X, s.sideLength) {
			x += s.sideLength
		}

		corners := Rect{
			X0: float64(x - s.bounds.MinTileX),
			Y0: float64(s.bounds.MinTileY - spec.Y),
			X1: float64(x - s.bounds.MinTileX + 1),
			Y1: float64(s.bounds.MinTileY - spec.Y - 1),
		}

		texCoord := Rect{X0: 0, Y0: 1, X1: 1, Y1: 0}
		if r.sourceZoom < spec.Zoom {
			texCoord = overZoomSubRect(spec, r.sourceZoom)
		}

		quads = append(quads, TileQuad{Spec: spec, Corners: corners, TexCoord: texCoord})
	}
	return quads
}

// wraps reports whether x should be treated as belonging to the wrapped
// left half given the scene's dateline-wrap bookkeeping (see
// computeBounds): true exactly when the bounds box spans past
// sideLength, meaning x values below sideLength/2 were folded by adding
// sideLength during bounds computation and must be folded again here for
// consistent placement.
func (b Bounds) wraps(x, sideLength int) bool {
	return b.MaxTileX >= sideLength && x < sideLength/2
}

// overZoomSubRect computes the texture-space sub-rectangle of an
// ancestor tile at sourceZoom that covers the requested finer spec,
// vertical-flipped like the exact-match case.
func overZoomSubRect(spec tilespec.Spec, sourceZoom int) Rect {
	levels := spec.Zoom - sourceZoom
	scale := 1 << uint(levels)

	ancestorX := spec.X >> uint(levels)
	ancestorY := spec.Y >> uint(levels)
	offsetX := spec.X - ancestorX<<uint(levels)
	offsetY := spec.Y - ancestorY<<uint(levels)

	u0 := float64(offsetX) / float64(scale)
	u1 := float64(offsetX+1) / float64(scale)
	v0 := 1 - float64(offsetY)/float64(scale)
	v1 := 1 - float64(offsetY+1)/float64(scale)

	return Rect{X0: u0, Y0: v0, X1: u1, Y1: v1}
}
