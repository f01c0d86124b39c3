package scene

import "github.com/OpticalFlyer/tilecore/proj"

// MercatorPoint is a point in normalized [0, sideLength) Mercator
// map-plane units, the same space tile (x, y) indices live in.
type MercatorPoint struct {
	X, Y float64
}

// ScreenPoint is a point in screen pixels, origin top-left.
type ScreenPoint struct {
	X, Y float64
}

// ItemPositionToMercator converts a screen point to Mercator map-plane
// units, the inverse of MercatorToItemPosition (spec.md §4.F). The
// screen's center maps to the camera's own Mercator position; screenOffX/
// screenOffY let a caller account for a viewport origin that is not the
// window origin (e.g. a sub-view).
func (s *Scene) ItemPositionToMercator(p ScreenPoint, screenOffX, screenOffY float64) MercatorPoint {
	mx, my := proj.CoordToMercator(s.camera.CenterLat, s.camera.CenterLon)
	centerX := mx * float64(s.sideLength)
	centerY := my * float64(s.sideLength)

	dx := (p.X - screenOffX - float64(s.viewportW)/2) / s.edge
	dy := (p.Y - screenOffY - float64(s.viewportH)/2) / s.edge

	return MercatorPoint{X: wrapMercator(centerX+dx, float64(s.sideLength)), Y: centerY + dy}
}

// MercatorToItemPosition converts a Mercator map-plane point to a screen
// point, choosing the shortest wrapped path across the antimeridian so
// that an item near the dateline is drawn on whichever side is actually
// closest to the camera (spec.md §4.F's dateline-correctness
// requirement).
func (s *Scene) MercatorToItemPosition(m MercatorPoint, screenOffX, screenOffY float64) ScreenPoint {
	mx, my := proj.CoordToMercator(s.camera.CenterLat, s.camera.CenterLon)
	centerX := mx * float64(s.sideLength)
	centerY := my * float64(s.sideLength)

	dx := proj.ShortestWrapDelta(centerX, m.X, float64(s.sideLength))
	dy := m.Y - centerY

	return ScreenPoint{
		X: float64(s.viewportW)/2 + dx*s.edge + screenOffX,
		Y: float64(s.viewportH)/2 + dy*s.edge + screenOffY,
	}
}

func wrapMercator(x, side float64) float64 {
	for x < 0 {
		x += side
	}
	for x >= side {
		x -= side
	}
	return x
}
