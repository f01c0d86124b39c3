// Package httpfetcher is the default Fetcher implementation: an HTTP
// worker pool pulling tiles from an XYZ or QuadKey tile server. Grounded
// directly on the teacher's tilemap/map.go fetchTile (User-Agent header,
// net/http client, image.Decode-first validation) and on goliath's
// now-superseded downloadTileImage/buildTilePath/getQuadKey helpers,
// generalized from a single hardcoded OSM endpoint into a configurable
// URL template plus the Bing-style QuadKey addressing goliath also used.
package httpfetcher

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OpticalFlyer/tilecore/fetcher"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

// Config controls how tile URLs are built and how many requests run
// concurrently.
type Config struct {
	// URLTemplate is used when UseQuadKey is false. {z}, {x}, {y} are
	// substituted; e.g. "https://tile.openstreetmap.org/{z}/{x}/{y}.png".
	URLTemplate string
	// QuadKeyTemplate is used when UseQuadKey is true. {q} is substituted
	// with the Bing-style quadkey; e.g.
	// "https://ecn.t0.tiles.virtualearth.net/tiles/a{q}.jpeg?g=1".
	QuadKeyTemplate string
	UseQuadKey      bool

	Workers   int
	UserAgent string
	Client    *http.Client
	Logger    *slog.Logger
}

// HTTPFetcher is a Fetcher backed by an HTTP worker pool.
type HTTPFetcher struct {
	cfg    Config
	sink   fetcher.ResultSink
	client *http.Client
	log    *slog.Logger

	jobs   chan tilespec.Spec
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu        sync.Mutex
	cancelled map[tilespec.Spec]struct{}
}

// New starts cfg.Workers worker goroutines (default 4) and returns a
// ready-to-use Fetcher.
func New(cfg Config, sink fetcher.ResultSink) *HTTPFetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &HTTPFetcher{
		cfg:       cfg,
		sink:      sink,
		client:    client,
		log:       log,
		jobs:      make(chan tilespec.Spec, 4096),
		ctx:       ctx,
		cancel:    cancel,
		cancelled: make(map[tilespec.Spec]struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	f.group = g
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			f.worker(gctx)
			return nil
		})
	}
	return f
}

func (f *HTTPFetcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case spec, ok := <-f.jobs:
			if !ok {
				return
			}
			if f.isCancelled(spec) {
				continue
			}
			f.fetchOne(ctx, spec)
		}
	}
}

func (f *HTTPFetcher) isCancelled(spec tilespec.Spec) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cancelled[spec]
	if ok {
		delete(f.cancelled, spec)
	}
	return ok
}

func (f *HTTPFetcher) fetchOne(ctx context.Context, spec tilespec.Spec) {
	url := f.url(spec)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.sink.TileError(spec, err.Error())
		return
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.sink.TileError(spec, fmt.Sprintf("fetching %s: %v", url, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.sink.TileError(spec, fmt.Sprintf("fetching %s: %s", url, resp.Status))
		return
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		f.sink.TileError(spec, fmt.Sprintf("reading %s: %v", url, err))
		return
	}

	format, err := sniffFormat(data)
	if err != nil {
		f.sink.TileError(spec, fmt.Sprintf("decoding %s: %v", url, err))
		return
	}

	f.sink.TileFinished(spec, data, format)
}

func sniffFormat(data []byte) (string, error) {
	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return format, nil
}

func (f *HTTPFetcher) url(spec tilespec.Spec) string {
	if f.cfg.UseQuadKey {
		q := quadKey(spec.Zoom, spec.X, spec.Y)
		return strings.ReplaceAll(f.cfg.QuadKeyTemplate, "{q}", q)
	}
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(spec.Zoom),
		"{x}", strconv.Itoa(spec.X),
		"{y}", strconv.Itoa(spec.Y),
	)
	return r.Replace(f.cfg.URLTemplate)
}

// quadKey computes the Bing Maps quadkey addressing a tile, the format
// goliath's getQuadKey produced for its virtual-earth tile source.
func quadKey(zoom, x, y int) string {
	var b strings.Builder
	for i := zoom; i > 0; i-- {
		digit := byte('0')
		mask := 1 << uint(i-1)
		if x&mask != 0 {
			digit++
		}
		if y&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}

// UpdateTileRequests enqueues added specs for fetching and marks removed
// specs cancelled. Cancellation is advisory (spec.md §5): a spec already
// dequeued by a worker still completes and is still delivered.
func (f *HTTPFetcher) UpdateTileRequests(added, removed tilespec.Set) {
	f.mu.Lock()
	for _, spec := range removed.Slice() {
		f.cancelled[spec] = struct{}{}
	}
	f.mu.Unlock()

	for _, spec := range added.Slice() {
		select {
		case f.jobs <- spec:
		case <-f.ctx.Done():
			return
		}
	}
}

// Close stops accepting work, cancels in-flight requests, and waits for
// every worker to exit. The jobs channel is deliberately left open rather
// than closed: UpdateTileRequests may still be sending to it concurrently,
// and every worker already exits via ctx.Done() instead of a channel close.
func (f *HTTPFetcher) Close() error {
	f.cancel()
	return f.group.Wait()
}
