// Package ebitenrender is the concrete ImageNodeFactory named in spec.md
// §6's external interfaces: it decodes fetched tile bytes into
// *ebiten.Image-backed tilecache.Texture values, and draws a tiledmap.Map's
// per-frame SceneSnapshot to an *ebiten.Image screen. Grounded on the
// teacher's tilemap/map.go (Draw's tile-by-tile DrawImage/debug-overlay
// loop, fetchTile's image.Decode/ebiten.NewImageFromImage pair) and
// main.go's Goliath struct.
package ebitenrender

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/flywave/go-earcut"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/draw"

	"github.com/OpticalFlyer/tilecore/scene"
	"github.com/OpticalFlyer/tilecore/tiledmap"
	"github.com/OpticalFlyer/tilecore/tilecache"
)

// debugFill/debugStroke mirror the teacher's debug-mode tint/grid colors
// in tilemap/map.go's Draw (blue fill, red stroke for loaded tiles).
var (
	debugFill   = color.RGBA{B: 100, A: 100}
	debugStroke = color.RGBA{R: 255, A: 255}
)

// whiteImage is a 3x3 opaque image whose centre pixel is the source
// DrawTriangles samples from when filling a flat-colored polygon, the same trick the teacher's
// polygons.go/main.go use for selection boxes and drawn polygons.
var whiteImage = func() *ebiten.Image {
	img := ebiten.NewImage(3, 3)
	img.Fill(color.White)
	return img
}()

// footprintFill is the translucent yellow the debug frustum-footprint
// overlay is filled with.
var footprintFill = color.RGBA{R: 255, G: 255, A: 60}

// Decode is a tilecache.Decoder backed by ebiten: it decodes PNG/JPEG
// tile bytes into an *ebiten.Image and wraps it as an opaque
// tilecache.Texture, translating the teacher's fetchTile's
// image.Decode(resp.Body) + ebiten.NewImageFromImage(img) pair into the
// Decoder contract tilecache.Options expects.
func Decode(data []byte, format string) (tilecache.Texture, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return tilecache.Texture{}, fmt.Errorf("ebitenrender: decoding %s tile: %w", format, err)
	}
	eimg := ebiten.NewImageFromImage(img)
	b := img.Bounds()
	return tilecache.Texture{Image: eimg, Width: b.Dx(), Height: b.Dy(), Depth: 32}, nil
}

// Renderer draws one TiledMap's scene snapshots to an *ebiten.Image
// screen, translating the teacher's tilemap/map.go Draw method from its
// fixed-grid loop to tiledmap's arbitrary textured-quad list.
type Renderer struct {
	mu   sync.Mutex
	mips map[*ebiten.Image]*ebiten.Image

	// DebugMode mirrors the teacher's debugMode flag: a tint, a stroked
	// grid cell, and a "zoom/x/y" label drawn over every quad.
	DebugMode bool
}

// New returns a Renderer with no resident mip cache.
func New() *Renderer {
	return &Renderer{mips: make(map[*ebiten.Image]*ebiten.Image)}
}

// Draw renders every quad in snap onto screen.
func (r *Renderer) Draw(screen *ebiten.Image, snap tiledmap.SceneSnapshot) {
	for _, q := range snap.Quads {
		img, ok := q.Texture.Image.(*ebiten.Image)
		if !ok || img == nil {
			continue
		}

		sample := img
		if q.Filter == scene.FilterMipmapLinear {
			sample = r.halved(img)
		}

		b := sample.Bounds()
		srcW, srcH := float64(b.Dx()), float64(b.Dy())
		if srcW == 0 || srcH == 0 {
			continue
		}

		// TexCoord is vertical-flipped (scene.TileQuad): v=1 is the
		// image's top row, so the image row is (1-v)*height.
		sx0, sx1 := q.TexCoord.X0*srcW, q.TexCoord.X1*srcW
		sy0, sy1 := (1-q.TexCoord.Y0)*srcH, (1-q.TexCoord.Y1)*srcH
		if sx1 < sx0 {
			sx0, sx1 = sx1, sx0
		}
		if sy1 < sy0 {
			sy0, sy1 = sy1, sy0
		}
		region, ok := subImage(sample, int(sx0), int(sy0), int(sx1), int(sy1))
		if !ok {
			continue
		}

		drawX := q.ScreenCorners.X0
		drawY := q.ScreenCorners.Y0
		w := q.ScreenCorners.X1 - q.ScreenCorners.X0
		h := q.ScreenCorners.Y1 - q.ScreenCorners.Y0

		op := &ebiten.DrawImageOptions{}
		rb := region.Bounds()
		if rb.Dx() > 0 && rb.Dy() > 0 {
			op.GeoM.Scale(w/float64(rb.Dx()), h/float64(rb.Dy()))
		}
		op.GeoM.Translate(drawX, drawY)
		if q.Filter == scene.FilterNearest {
			op.Filter = ebiten.FilterNearest
		} else {
			op.Filter = ebiten.FilterLinear
		}
		screen.DrawImage(region, op)

		if r.DebugMode {
			r.drawDebugOverlay(screen, q, drawX, drawY, w, h)
		}
	}
}

func (r *Renderer) drawDebugOverlay(screen *ebiten.Image, q tiledmap.QuadDraw, x, y, w, h float64) {
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), float32(h), debugFill, false)
	vector.StrokeRect(screen, float32(x), float32(y), float32(w), float32(h), 1.0, debugStroke, false)
	ebitenutil.DebugPrintAt(screen,
		fmt.Sprintf("%d/%d/%d", q.Spec.Zoom, q.Spec.X, q.Spec.Y),
		int(x)+2, int(y)+2)
}

// halved returns (generating and caching on first use) a half-resolution
// copy of img, used as the FilterMipmapLinear sample source since ebiten
// does not generate mip levels for dynamically-uploaded textures.
// golang.org/x/image/draw does the actual downsampling.
func (r *Renderer) halved(img *ebiten.Image) *ebiten.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mip, ok := r.mips[img]; ok {
		return mip
	}

	b := img.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w < 1 || h < 1 {
		r.mips[img] = img
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	mip := ebiten.NewImageFromImage(dst)
	r.mips[img] = mip
	return mip
}

// DrawFootprint fills the given frustum-footprint polygons (tiledmap.Map.
// DebugFootprint's screen-pixel polygons) as translucent triangles,
// translating the teacher's polygons.go triangulatePolygon/DrawTriangles
// pattern from an ear-clipped ground polygon to the debug overlay.
func (r *Renderer) DrawFootprint(screen *ebiten.Image, polygons [][]scene.ScreenPoint) {
	source := whiteImage.SubImage(image.Rect(1, 1, 2, 2)).(*ebiten.Image)
	for _, poly := range polygons {
		if len(poly) < 3 {
			continue
		}

		coords := make([]float64, len(poly)*2)
		for i, p := range poly {
			coords[i*2] = p.X
			coords[i*2+1] = p.Y
		}
		indices, err := earcut.Earcut(coords, nil, 2)
		if err != nil {
			continue
		}

		vertices := make([]ebiten.Vertex, len(poly))
		for i, p := range poly {
			vertices[i] = ebiten.Vertex{
				DstX: float32(p.X), DstY: float32(p.Y),
				SrcX: 1, SrcY: 1,
				ColorR: float32(footprintFill.R) / 255,
				ColorG: float32(footprintFill.G) / 255,
				ColorB: float32(footprintFill.B) / 255,
				ColorA: float32(footprintFill.A) / 255,
			}
		}

		triIndices := make([]uint16, len(indices))
		for i, idx := range indices {
			triIndices[i] = uint16(idx)
		}
		screen.DrawTriangles(vertices, triIndices, source, nil)
	}
}

// InvalidateMips drops every cached mip level, needed after ClearData
// since the underlying textures it cached against no longer exist.
func (r *Renderer) InvalidateMips() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mips = make(map[*ebiten.Image]*ebiten.Image)
}

func subImage(img *ebiten.Image, x0, y0, x1, y1 int) (*ebiten.Image, bool) {
	b := img.Bounds()
	if x1 <= x0 || y1 <= y0 {
		return nil, false
	}
	r := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x1, b.Min.Y+y1).Intersect(b)
	if r.Empty() {
		return nil, false
	}
	sub, ok := img.SubImage(r).(*ebiten.Image)
	return sub, ok
}
