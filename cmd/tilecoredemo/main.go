// Command tilecoredemo is an interactive ebiten viewer wiring every
// tilecore component together against a live OpenStreetMap tile server,
// grounded on the teacher's main.go (Goliath struct, Update/Draw/Layout)
// and tilemap/zooming.go/panning.go for the input-handling idiom.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/OpticalFlyer/tilecore/cameratiles"
	"github.com/OpticalFlyer/tilecore/fetcher"
	"github.com/OpticalFlyer/tilecore/fetcher/httpfetcher"
	"github.com/OpticalFlyer/tilecore/mappingengine"
	"github.com/OpticalFlyer/tilecore/render/ebitenrender"
	"github.com/OpticalFlyer/tilecore/scene"
	"github.com/OpticalFlyer/tilecore/tilecache"
	"github.com/OpticalFlyer/tilecore/tiledmap"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

const demoMapID = 1

// panSpeed is the teacher's tilemap/panning.go PanSpeed, pixels per frame
// while an arrow key is held.
const panSpeed = 8.0

// resultSinkProxy exists only to break the construction cycle between
// mappingengine.Engine (needs a fetcher.Fetcher at New) and httpfetcher.
// HTTPFetcher (needs a fetcher.ResultSink at New): the fetcher is built
// against the proxy first, then the proxy is pointed at the real engine
// once it exists.
type resultSinkProxy struct {
	target fetcher.ResultSink
}

func (p *resultSinkProxy) TileFinished(spec tilespec.Spec, data []byte, format string) {
	p.target.TileFinished(spec, data, format)
}

func (p *resultSinkProxy) TileError(spec tilespec.Spec, errMsg string) {
	p.target.TileError(spec, errMsg)
}

// Game is the ebiten.Game implementation wiring one TiledMap to the
// keyboard/mouse, mirroring the teacher's Goliath struct scoped down to
// just the tile-viewing concern.
type Game struct {
	tm       *tiledmap.Map
	renderer *ebitenrender.Renderer

	camera cameratiles.Data

	screenWidth, screenHeight int
	frameCount                int

	debugMode  bool
	showFrustum bool
}

func NewGame(tm *tiledmap.Map, renderer *ebitenrender.Renderer) *Game {
	g := &Game{
		tm:       tm,
		renderer: renderer,
		camera: cameratiles.Data{
			CenterLat:   39.5,
			CenterLon:   -98.35,
			Zoom:        4,
			FieldOfView: 90,
		},
		screenWidth:  1024,
		screenHeight: 768,
	}
	g.tm.Resize(g.screenWidth, g.screenHeight)
	g.tm.SetCameraData(g.camera)
	return g
}

func (g *Game) Update() error {
	g.frameCount++

	if inpututil.IsKeyJustPressed(ebiten.KeyD) && ebiten.IsKeyPressed(ebiten.KeyControl) {
		g.debugMode = !g.debugMode
		g.renderer.DebugMode = g.debugMode
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF) && ebiten.IsKeyPressed(ebiten.KeyControl) {
		g.showFrustum = !g.showFrustum
	}

	var dx, dy float64
	if ebiten.IsKeyPressed(ebiten.KeyLeft) {
		dx += panSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyRight) {
		dx -= panSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyUp) {
		dy += panSpeed
	}
	if ebiten.IsKeyPressed(ebiten.KeyDown) {
		dy -= panSpeed
	}
	if dx != 0 || dy != 0 {
		g.panBy(dx, dy)
	}

	if _, scrollY := ebiten.Wheel(); scrollY != 0 {
		mouseX, mouseY := ebiten.CursorPosition()
		g.zoomAtPoint(scrollY > 0, float64(mouseX), float64(mouseY))
	}

	// A camera that hasn't changed this frame is "at rest": prefetch the
	// neighbour zoom layers, mirroring QGeoTiledMapPrivate's
	// cameraStopped-triggered prefetchData call translated to an
	// every-frame call the facade itself already makes idempotent (a
	// residual of already-textured/in-flight specs is a no-op).
	g.tm.PrefetchData()

	return nil
}

// panBy moves the camera center by dx/dy screen pixels, translating the
// teacher's tilemap/panning.go PanBy from raw tile-coordinate arithmetic
// to the facade's screen<->coordinate conversion pair.
func (g *Game) panBy(dx, dy float64) {
	center := scene.ScreenPoint{X: float64(g.screenWidth) / 2, Y: float64(g.screenHeight) / 2}
	shifted := scene.ScreenPoint{X: center.X - dx, Y: center.Y - dy}
	lat, lon := g.tm.ItemPositionToCoordinate(shifted)

	g.camera.CenterLat = lat
	g.camera.CenterLon = lon
	g.tm.SetCameraData(g.camera)
}

// zoomAtPoint keeps the world point under the cursor fixed on screen
// across a zoom change, translating the anchor-point invariant of the
// teacher's tilemap/zooming.go ZoomAtPoint to continuous (float) zoom and
// the facade's coordinate conversions rather than raw tile math.
func (g *Game) zoomAtPoint(zoomIn bool, screenX, screenY float64) {
	cursor := scene.ScreenPoint{X: screenX, Y: screenY}
	anchorLat, anchorLon := g.tm.ItemPositionToCoordinate(cursor)

	newZoom := g.camera.Zoom + 1
	if !zoomIn {
		newZoom = g.camera.Zoom - 1
	}
	newZoom = math.Max(0, math.Min(19, newZoom))
	if newZoom == g.camera.Zoom {
		return
	}
	g.camera.Zoom = newZoom
	g.tm.SetCameraData(g.camera)

	// With the new zoom installed but the center unchanged, find where
	// the anchor point now lands and shift the center by the resulting
	// screen-space error so the anchor stays under the cursor.
	anchorNow := g.tm.CoordinateToItemPosition(anchorLat, anchorLon)
	g.panBy(cursor.X-anchorNow.X, cursor.Y-anchorNow.Y)
}

func (g *Game) Draw(screen *ebiten.Image) {
	snap := g.tm.UpdateSceneGraph(1.0)
	g.renderer.Draw(screen, snap)

	if g.showFrustum {
		g.renderer.DrawFootprint(screen, g.tm.DebugFootprint())
	}

	ebitenutil.DebugPrintAt(screen, fmt.Sprintf(
		"lat=%.4f lon=%.4f zoom=%.2f  [ctrl+D debug  ctrl+F frustum]",
		g.camera.CenterLat, g.camera.CenterLon, g.camera.Zoom), 4, 4)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if outsideWidth != g.screenWidth || outsideHeight != g.screenHeight {
		g.screenWidth, g.screenHeight = outsideWidth, outsideHeight
		g.tm.Resize(outsideWidth, outsideHeight)
	}
	return g.screenWidth, g.screenHeight
}

func main() {
	urlTemplate := flag.String("tiles", "https://tile.openstreetmap.org/{z}/{x}/{y}.png", "XYZ tile URL template")
	cacheDir := flag.String("cachedir", "", "tile cache directory (default: OS user cache dir)")
	workers := flag.Int("workers", 8, "HTTP fetch worker count")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cache, err := tilecache.New(tilecache.Options{
		BaseDir: *cacheDir,
		Plugin:  "osm",
		Decoder: ebitenrender.Decode,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("tilecoredemo: opening cache: %v", err)
	}

	proxy := &resultSinkProxy{}
	hf := httpfetcher.New(httpfetcher.Config{
		URLTemplate: *urlTemplate,
		Workers:     *workers,
		UserAgent:   "tilecoredemo/1.0",
		Logger:      logger,
	}, proxy)

	engine := mappingengine.New(cache, hf, tilecache.AreaDisk|tilecache.AreaMemory, logger)
	proxy.target = engine

	tm := tiledmap.New(demoMapID, "osm", tiledmap.MapType{Name: "OpenStreetMap", MapID: demoMapID},
		cameratiles.DefaultCapabilities, engine, logger)

	renderer := ebitenrender.New()
	game := NewGame(tm, renderer)

	ebiten.SetWindowSize(game.screenWidth, game.screenHeight)
	ebiten.SetWindowTitle("tilecoredemo")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}
