package scene

// Subtree identifies which of the three dateline-wrap copies a quad
// batch belongs to (spec.md §4.F: "build three scene subtrees, primary,
// wrap-left, wrap-right, each with its own camera matrix offset by
// plus-or-minus sideLength*edge").
type Subtree int

const (
	SubtreePrimary Subtree = iota
	SubtreeWrapLeft
	SubtreeWrapRight
)

// SubtreeOffset returns the x-axis offset, in pixels, the given
// subtree's quads and camera must be shifted by.
func (s *Scene) SubtreeOffset(sub Subtree) float64 {
	switch sub {
	case SubtreeWrapLeft:
		return -float64(s.sideLength) * s.edge
	case SubtreeWrapRight:
		return float64(s.sideLength) * s.edge
	default:
		return 0
	}
}

// VisibleSubtrees returns the subtrees worth building this frame: the
// primary always, plus whichever wrap copies would actually place any
// quad within the screen rectangle. With no bearing/tilt/roll this is a
// plain axis-aligned test (quad + offset overlaps [0, viewportW]); with
// any rotation the caller should fall back to a full polygon test
// instead of trusting this cheap bound (spec.md §4.F's explicit
// rotated-camera caveat) — VisibleSubtrees still reports every subtree
// whose untransformed AABB could plausibly intersect in that case, since
// a safe over-approximation is what a polygon test would narrow down
// from, never widen.
func (s *Scene) VisibleSubtrees(quads []TileQuad) []Subtree {
	subtrees := []Subtree{SubtreePrimary}
	if s.sideLength == 0 {
		return subtrees
	}

	screenLeft, screenRight := 0.0, float64(s.viewportW)
	for _, sub := range []Subtree{SubtreeWrapLeft, SubtreeWrapRight} {
		offset := s.SubtreeOffset(sub)
		if subtreeIntersectsScreen(quads, offset, s.edge, screenLeft, screenRight) {
			subtrees = append(subtrees, sub)
		}
	}
	return subtrees
}

func subtreeIntersectsScreen(quads []TileQuad, offsetPixels, edge, screenLeft, screenRight float64) bool {
	for _, q := range quads {
		x0 := q.Corners.X0*edge + offsetPixels
		x1 := q.Corners.X1*edge + offsetPixels
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		if x1 >= screenLeft && x0 <= screenRight {
			return true
		}
	}
	return false
}
