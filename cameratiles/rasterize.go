package cameratiles

import (
	"math"
	"sort"

	"github.com/OpticalFlyer/tilecore/tilespec"
)

// rowSpan is an inclusive tile-x interval [min, max] covered for one tile
// row, the Go equivalent of the accumulator qgeocameratiles.cpp builds via
// its local TileMap type in tilesFromPolygon.
type rowSpan struct {
	min, max int
	set      bool
}

func (s *rowSpan) add(x int) {
	if !s.set {
		s.min, s.max = x, x
		s.set = true
		return
	}
	if x < s.min {
		s.min = x
	}
	if x > s.max {
		s.max = x
	}
}

// tileIntersections scans poly once per tile row within [0, sideLength)
// and returns, for each tile row y, the covered tile-x interval. It uses a scanline through the row's vertical center and the
// even-odd rule across the polygon's edges, translating the edge-walking
// approach of QGeoCameraTilesPrivate::tileIntersections/tilesFromPolygon
// into a single pass per row rather than the source's incremental
// edge-delta bookkeeping.
func tileIntersections(poly []vec3, sideLength int) map[int]rowSpan {
	rows := map[int]rowSpan{}
	if len(poly) < 3 {
		return rows
	}

	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range poly {
		if p.y < minY {
			minY = p.y
		}
		if p.y > maxY {
			maxY = p.y
		}
	}

	startRow := int(math.Floor(minY))
	endRow := int(math.Floor(maxY))
	if startRow < 0 {
		startRow = 0
	}
	if endRow > sideLength-1 {
		endRow = sideLength - 1
	}

	n := len(poly)
	for ty := startRow; ty <= endRow; ty++ {
		scanY := float64(ty) + 0.5

		var xs []float64
		for i := 0; i < n; i++ {
			a := poly[i]
			b := poly[(i+1)%n]
			if a.y == b.y {
				continue
			}
			lo, hi := a.y, b.y
			if lo > hi {
				lo, hi = hi, lo
			}
			if scanY < lo || scanY >= hi {
				continue
			}
			f := (scanY - a.y) / (b.y - a.y)
			xs = append(xs, a.x+f*(b.x-a.x))
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)

		span := rows[ty]
		for i := 0; i+1 < len(xs); i += 2 {
			x0, x1 := xs[i], xs[i+1]
			tx0 := int(math.Floor(x0))
			tx1 := int(math.Ceil(x1)) - 1
			if tx1 < tx0 {
				tx1 = tx0
			}
			if tx0 < 0 {
				tx0 = 0
			}
			if tx1 > sideLength-1 {
				tx1 = sideLength - 1
			}
			span.add(tx0)
			span.add(tx1)
		}
		rows[ty] = span
	}

	return rows
}

// tilesFromPolygon rasterizes poly into tilespec.Spec entries and adds
// them to out, tagged with the resolver's current plugin/mapID/version
// and integer zoom level.
func (r *Resolver) tilesFromPolygon(poly []vec3, out tilespec.Set) {
	rows := tileIntersections(poly, r.sideLength)
	for ty, span := range rows {
		if !span.set {
			continue
		}
		for tx := span.min; tx <= span.max; tx++ {
			out.Add(tilespec.New(r.plugin, r.mapID, r.intZoom, tx, ty, r.mapVersion))
		}
	}
}
