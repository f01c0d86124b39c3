package cameratiles

import (
	"math"

	"github.com/OpticalFlyer/tilecore/proj"
)

// frustum holds the eight corners of the camera's view volume in Mercator
// map-plane units (scaled by sideLength), plus its apex. Only the apex and
// far corners participate in footprint construction (§4.B step 1); the near
// corners exist for parity with the source and for scene's own, looser,
// rendering frustum.
type frustum struct {
	apex                                       vec3
	topLeftNear, topRightNear                  vec3
	bottomLeftNear, bottomRightNear            vec3
	topLeftFar, topRightFar                    vec3
	bottomLeftFar, bottomRightFar              vec3
}

// createFrustum translates QGeoCameraTilesPrivate::createFrustum
// (qgeocameratiles.cpp) directly: altitude from field of view and the
// fractional zoom's relation to the integer zoom, bearing as a rotation of
// `up` about the view axis, tilt as a rotation of the view vector about the
// post-bearing side axis.
func (r *Resolver) createFrustum(viewExpansion float64) frustum {
	cam := r.camera
	apertureSize := 1.0
	if cam.FieldOfView != 90.0 {
		apertureSize = math.Tan(radians(cam.FieldOfView) * 0.5)
	}

	mx, my := proj.CoordToMercator(cam.CenterLat, cam.CenterLon)
	side := float64(r.sideLength)
	center := vec3{mx * side, my * side, 0}

	f := float64(r.viewportH)
	z := math.Pow(2.0, cam.Zoom-float64(r.intZoom)) * float64(r.tileSize)
	altitude := (f / (2.0 * z)) / apertureSize

	eye := center
	eye.z = altitude

	view := eye.sub(center)
	up := normal(normal(view, vec3{0, 1, 0}), view)
	sideAxis := normal(view, vec3{0, 1, 0})

	up = rotateAround(up, view, radians(cam.Bearing))

	side2 := normal(up, view)
	view = rotateAround(view, side2, radians(-cam.Tilt))
	eye = view.add(center)

	view = eye.sub(center)
	sideAxis = normal(view, vec3{0, 1, 0})
	_ = sideAxis
	up = normal(view, side2)

	nearPlane := 1.0 / (4.0 * float64(r.tileSize))
	farPlane := altitude + 8.0

	aspectRatio := float64(r.viewportW) / float64(r.viewportH)

	ve := viewExpansion * apertureSize
	hhn := ve * nearPlane
	hwn := hhn * aspectRatio
	hhf := ve * farPlane
	hwf := hhf * aspectRatio

	d := center.sub(eye).normalized()
	up = up.normalized()
	right := normal(d, up)

	cf := eye.add(d.scale(farPlane))
	cn := eye.add(d.scale(nearPlane))

	return frustum{
		apex: eye,

		topLeftFar:     cf.sub(up.scale(hhf)).sub(right.scale(hwf)),
		topRightFar:    cf.sub(up.scale(hhf)).add(right.scale(hwf)),
		bottomLeftFar:  cf.add(up.scale(hhf)).sub(right.scale(hwf)),
		bottomRightFar: cf.add(up.scale(hhf)).add(right.scale(hwf)),

		topLeftNear:     cn.sub(up.scale(hhn)).sub(right.scale(hwn)),
		topRightNear:    cn.sub(up.scale(hhn)).add(right.scale(hwn)),
		bottomLeftNear:  cn.add(up.scale(hhn)).sub(right.scale(hwn)),
		bottomRightNear: cn.add(up.scale(hhn)).add(right.scale(hwn)),
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180.0 }

// appendZIntersects appends, to results, the point where segment start->end
// crosses the plane z=planeZ, if it does so within the segment. Returns
// whether a point was appended. Mirrors the free function of the same name
// in qgeocameratiles.cpp.
func appendZIntersects(start, end vec3, planeZ float64, results *[]vec3) bool {
	if start.z == end.z {
		return false
	}
	f := (start.z - planeZ) / (start.z - end.z)
	if f >= 0 && f <= 1.0 {
		*results = append(*results, start.scale(1-f).add(end.scale(f)))
		return true
	}
	return false
}

// frustumFootprint intersects the frustum with the ground plane z=0,
// producing a right-handed polygon (§4.B step 2). The bottom edges of the
// frustum always cross the plane (tilt never reaches 90 degrees); the top
// edges may not, in which case the far rectangle's side edge on that side
// (top corner to bottom corner) is intersected instead — the "extreme tilt" edge case named in spec.md §4.B.
func (r *Resolver) frustumFootprint(f frustum) []vec3 {
	points := make([]vec3, 0, 4)

	if !appendZIntersects(f.apex, f.topRightFar, 0, &points) {
		appendZIntersects(f.topRightFar, f.bottomRightFar, 0, &points)
	}
	appendZIntersects(f.apex, f.bottomRightFar, 0, &points)
	appendZIntersects(f.apex, f.bottomLeftFar, 0, &points)
	if !appendZIntersects(f.apex, f.topLeftFar, 0, &points) {
		appendZIntersects(f.topLeftFar, f.bottomLeftFar, 0, &points)
	}

	return points
}
