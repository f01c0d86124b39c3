package cameratiles

import "math"

func (v vec3) get(axis int) float64 {
	switch axis {
	case 0:
		return v.x
	case 1:
		return v.y
	default:
		return v.z
	}
}

// splitPolygonAtAxisValue splits polygon against the plane axis==value,
// returning (below, above). Direct translation of
// QGeoCameraTilesPrivate::splitPolygonAtAxisValue, including its
// on-the-line handling: a vertex lying exactly on the splitting line is
// kept in the half its neighbours lie in, and in both halves where the
// polygon crosses the line at that vertex.
func splitPolygonAtAxisValue(polygon []vec3, axis int, value float64) (below, above []vec3) {
	size := len(polygon)
	if size == 0 {
		return nil, nil
	}

	comparisons := make([]int, size)
	for i, p := range polygon {
		v := p.get(axis)
		switch {
		case fuzzyCompare(v, value):
			comparisons[i] = 0
		case v < value:
			comparisons[i] = -1
		default:
			comparisons[i] = 1
		}
	}

	for index := 0; index < size; index++ {
		prevIndex := index - 1
		if prevIndex < 0 {
			prevIndex += size
		}
		nextIndex := (index + 1) % size

		prevComp := comparisons[prevIndex]
		comp := comparisons[index]
		nextComp := comparisons[nextIndex]

		if comp == 0 {
			switch prevComp {
			case -1:
				below = append(below, polygon[index])
				if nextComp == 1 {
					above = append(above, polygon[index])
				}
			case 1:
				above = append(above, polygon[index])
				if nextComp == -1 {
					below = append(below, polygon[index])
				}
			case 0:
				switch nextComp {
				case -1:
					below = append(below, polygon[index])
				case 1:
					above = append(above, polygon[index])
				}
			}
			continue
		}

		if comp == -1 {
			below = append(below, polygon[index])
		} else {
			above = append(above, polygon[index])
		}

		if nextComp != 0 && nextComp != comp {
			p1 := polygon[index]
			p2 := polygon[nextIndex]
			p1v := p1.get(axis)
			p2v := p2.get(axis)
			f := (p1v - value) / (p1v - p2v)

			if (f >= 0 && f <= 1.0) || fuzzyCompare(f, 0) || fuzzyCompare(f, 1) {
				mid := p1.scale(1.0 - f).add(p2.scale(f))
				below = append(below, mid)
				above = append(above, mid)
			}
		}
	}

	return below, above
}

func addXOffset(poly []vec3, xoff float64) []vec3 {
	out := make([]vec3, len(poly))
	for i, v := range poly {
		v.x += xoff
		out[i] = v
	}
	return out
}

// footprint is the result of clipFootprintToMap: up to three sub-polygons
// produced when the camera straddles the antimeridian (§4.B step 3).
type footprint struct {
	left, mid, right []vec3
}

// clipFootprintToMap clips footprint to y in [0, side] and splits it around
// x=0/x=side when it straddles the dateline, translating
// QGeoCameraTilesPrivate::clipFootprintToMap, including its epsilon-sliver
// handling of tangential touches (spec.md §4.B's "tangential touches" edge
// case).
func (r *Resolver) clipFootprintToMap(fp []vec3) footprint {
	side := float64(r.sideLength)

	clipY0, clipY1 := false, false
	for _, p := range fp {
		if p.y < 0 {
			clipY0 = true
		}
		if p.y > side {
			clipY1 = true
		}
	}

	results := fp
	if clipY0 {
		_, above := splitPolygonAtAxisValue(results, 1, 0.0)
		results = above
	}
	if clipY1 {
		below, _ := splitPolygonAtAxisValue(results, 1, side)
		results = below
	}

	clipX0, clipX1 := false, false
	for _, p := range results {
		if p.x < 0 || fuzzyIsNull(p.x) {
			clipX0 = true
		}
		if p.x > side || fuzzyCompare(side, p.x) {
			clipX1 = true
		}
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	for _, v := range results {
		if v.x < minX {
			minX = v.x
		}
		if v.x > maxX {
			maxX = v.x
		}
	}
	footprintWidth := maxX - minX

	switch {
	case clipX0 && clipX1:
		if footprintWidth > side {
			_, rightPart := splitPolygonAtAxisValue(results, 0, side)
			rightPart = addXOffset(rightPart, -side)
			rightPart, _ = splitPolygonAtAxisValue(rightPart, 0, side)

			leftPart, _ := splitPolygonAtAxisValue(results, 0, 0)
			leftPart = addXOffset(leftPart, side)
			_, leftPart = splitPolygonAtAxisValue(leftPart, 0, 0)

			_, mid := splitPolygonAtAxisValue(results, 0, 0.0)
			mid, _ = splitPolygonAtAxisValue(mid, 0, side)
			return footprint{left: leftPart, mid: mid, right: rightPart}
		}
		_, mid := splitPolygonAtAxisValue(results, 0, 0.0)
		mid, _ = splitPolygonAtAxisValue(mid, 0, side)
		return footprint{mid: mid}

	case clipX0:
		below, above := splitPolygonAtAxisValue(results, 0, 0.0)
		if len(below) == 0 {
			below = tangentSliver(above, 0, side, -0.001)
		} else {
			below = addXOffset(below, side)
			if footprintWidth > side {
				_, below = splitPolygonAtAxisValue(below, 0, 0)
			}
		}
		return footprint{left: below, mid: above}

	case clipX1:
		below, above := splitPolygonAtAxisValue(results, 0, side)
		if len(above) == 0 {
			above = tangentSliver(below, side, 0, 0.001)
		} else {
			above = addXOffset(above, -side)
			if footprintWidth > side {
				above, _ = splitPolygonAtAxisValue(above, 0, side)
			}
		}
		return footprint{mid: below, right: above}

	default:
		return footprint{mid: results}
	}
}

// tangentSliver builds the degenerate sliver used when the footprint
// touches the splitting line x=lineX without crossing it, so the
// adjacent wrapped tile column still becomes visible (spec.md §4.B's
// "tangential touches" rule): a thin triangle or quad anchored at the
// opposite map edge x=anchor and projecting past it by nudge, spanning
// the y range of the points of half that lay on the line.
func tangentSliver(half []vec3, lineX, anchor, nudge float64) []vec3 {
	var onLine []vec3
	for _, p := range half {
		if fuzzyCompare(p.x, lineX) {
			onLine = append(onLine, p)
		}
	}
	switch len(onLine) {
	case 2:
		y0, y1 := onLine[0].y, onLine[1].y
		return []vec3{
			{anchor, y0, 0}, {anchor + nudge, y0, 0},
			{anchor + nudge, y1, 0}, {anchor, y1, 0},
		}
	case 1:
		y := onLine[0].y
		return []vec3{
			{anchor + nudge, y, 0},
			{anchor, y + 0.001, 0},
			{anchor, y - 0.001, 0},
		}
	default:
		return nil
	}
}
