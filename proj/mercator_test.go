package proj

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatLonToTileCoords(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		zoom     int
		wantX    float64
		wantY    float64
	}{
		{
			name:  "Center of map at zoom 1",
			lat:   0,
			lon:   0,
			zoom:  1,
			wantX: 1.0,
			wantY: 1.0,
		},
		{
			name:  "Top-left corner at zoom 1",
			lat:   maxLat,
			lon:   -180,
			zoom:  1,
			wantX: 0.0,
			wantY: 0.0,
		},
		{
			name:  "Bottom-right corner at zoom 1",
			lat:   minLat,
			lon:   180,
			zoom:  1,
			wantX: 2.0,
			wantY: 2.0,
		},
		{
			name:  "Equator at lon 90, middle of column 1, at zoom 1",
			lat:   0,
			lon:   90,
			zoom:  1,
			wantX: 1.5,
			wantY: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotX, gotY := LatLonToTileCoords(tt.lat, tt.lon, tt.zoom)
			assert.InDelta(t, tt.wantX, gotX, 1e-6)
			assert.InDelta(t, tt.wantY, gotY, 1e-6)
		})
	}
}

func TestMercatorRoundTrip(t *testing.T) {
	cases := [][2]float64{
		{0, 0},
		{45.0, -122.0},
		{-33.5, 151.0},
		{maxLat, 179.999},
		{minLat, -179.999},
	}

	for _, c := range cases {
		x, y := CoordToMercator(c[0], c[1])
		lat, lon := MercatorToCoord(x, y)
		assert.InDelta(t, c[0], lat, 1e-6)
		assert.InDelta(t, c[1], lon, 1e-6)
	}
}

func TestClampLatitude(t *testing.T) {
	assert.Equal(t, maxLat, ClampLatitude(90))
	assert.Equal(t, minLat, ClampLatitude(-90))
	assert.Equal(t, 12.5, ClampLatitude(12.5))
}

func TestSideLength(t *testing.T) {
	assert.Equal(t, 1, SideLength(0))
	assert.Equal(t, 16, SideLength(4))
	assert.Equal(t, 1<<20, SideLength(20))
	assert.Equal(t, 0, SideLength(-1))
}

func TestShortestWrapDelta(t *testing.T) {
	// crossing the dateline the short way should be +2, not -14
	d := ShortestWrapDelta(15, 1, 16)
	assert.InDelta(t, 2.0, d, 1e-9)

	d2 := ShortestWrapDelta(1, 15, 16)
	assert.InDelta(t, -2.0, d2, 1e-9)
}

func TestEPSG3857ToTileCoords(t *testing.T) {
	x, y := EPSG3857ToTileCoords(0, 0, 1)
	assert.InDelta(t, 1.0, x, 1e-6)
	assert.InDelta(t, 1.0, y, 1e-6)

	lat, lon := 45.0, -122.0
	wantX, wantY := LatLonToTileCoords(lat, lon, 10)

	merX := lon * originShift / 180.0
	merY := math.Log(math.Tan((90+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	merY = merY * originShift / 180.0
	gotX, gotY := EPSG3857ToTileCoords(merX, merY, 10)
	assert.InDelta(t, wantX, gotX, 1e-6)
	assert.InDelta(t, wantY, gotY, 1e-6)
}
