package cameratiles

// Data is the camera sample consumed by CameraTiles (and, unchanged, by
// scene.TiledMapScene): geodetic center, real-valued zoom, and orientation.
type Data struct {
	CenterLat   float64
	CenterLon   float64
	Zoom        float64
	Bearing     float64 // degrees
	Tilt        float64 // degrees
	Roll        float64 // degrees
	FieldOfView float64 // degrees, default 90
}

// Capabilities describes what a particular engine/plugin supports, used to
// clamp an ingress Data sample (spec.md §3's CameraCapabilities).
type Capabilities struct {
	MinZoom, MaxZoom float64
	MinTilt, MaxTilt float64
	SupportsBearing  bool
	SupportsTilting  bool
	SupportsRolling  bool
	TileSize         int
}

// DefaultCapabilities matches the teacher's hardcoded defaults
// (tilemap.TileSize, tilemap.MaxZoomLevel in goliath/tilemap/map.go).
var DefaultCapabilities = Capabilities{
	MinZoom:  0,
	MaxZoom:  19,
	MinTilt:  0,
	MaxTilt:  80,
	TileSize: 256,
}

// Normalize clamps d against caps and fills in FieldOfView's default,
// matching QGeoCameraData's validity enforcement referenced throughout
// qgeomap.cpp. It never panics and always returns a usable camera.
func (d Data) Normalize(caps Capabilities) Data {
	if d.FieldOfView == 0 {
		d.FieldOfView = 90
	}
	if d.Zoom < caps.MinZoom {
		d.Zoom = caps.MinZoom
	}
	if caps.MaxZoom > 0 && d.Zoom > caps.MaxZoom {
		d.Zoom = caps.MaxZoom
	}
	if !caps.SupportsTilting {
		d.Tilt = 0
	} else {
		if d.Tilt < caps.MinTilt {
			d.Tilt = caps.MinTilt
		}
		if d.Tilt > caps.MaxTilt {
			d.Tilt = caps.MaxTilt
		}
	}
	if !caps.SupportsBearing {
		d.Bearing = 0
	}
	if !caps.SupportsRolling {
		d.Roll = 0
	}
	if d.CenterLat > 85.0511287798 {
		d.CenterLat = 85.0511287798
	}
	if d.CenterLat < -85.0511287798 {
		d.CenterLat = -85.0511287798
	}
	return d
}
