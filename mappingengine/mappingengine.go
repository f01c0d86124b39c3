// Package mappingengine coalesces tile requests across every TiledMap
// sharing one engine (spec.md §4.E): it owns the single shared TileCache
// and TileFetcher, deduplicates in-flight requests, and fans out
// completed/failed fetches to every subscribing map's RequestManager.
// Grounded on the wider QGeoTiledMappingManagerEngine design referenced
// throughout original_source/.../qgeotilerequestmanager.cpp and
// qgeofiletilecache.cpp: the engine, not any individual map, is the sole
// owner of the cache and fetcher.
package mappingengine

import (
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/OpticalFlyer/tilecore/fetcher"
	"github.com/OpticalFlyer/tilecore/tilecache"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

// MapSink is the subset of requestmanager.Manager the engine calls back
// into when a tile it subscribes to finishes or errors.
type MapSink interface {
	TileFetched(spec tilespec.Spec)
	TileError(spec tilespec.Spec, errMsg string)
}

// Engine is the shared coalescing point for one plugin's maps.
type Engine struct {
	mu sync.Mutex

	cache   *tilecache.Cache
	fetcher fetcher.Fetcher
	log     *slog.Logger

	// insertAreas controls which tiers Insert writes a freshly fetched
	// tile's bytes to; see spec.md §4.C "insert(spec, bytes, format,
	// areas)".
	insertAreas tilecache.Areas

	maps     map[int]MapSink
	mapSpecs map[int]tilespec.Set      // map -> specs it currently subscribes to
	specMaps map[tilespec.Spec]map[int]struct{} // transpose: spec -> subscribing maps

	// inFlight coalesces concurrent Lookup calls for the same spec: the
	// first caller's singleflight.Do call actually reads the cache, later
	// callers share its result. Fetch requests are deduplicated by
	// specMaps instead.
	inFlight singleflight.Group
}

// New returns an Engine backed by cache and f, fanning results out via
// whichever MapSink each RegisterMap call supplies.
func New(cache *tilecache.Cache, f fetcher.Fetcher, insertAreas tilecache.Areas, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cache:       cache,
		fetcher:     f,
		log:         log,
		insertAreas: insertAreas,
		maps:        make(map[int]MapSink),
		mapSpecs:    make(map[int]tilespec.Set),
		specMaps:    make(map[tilespec.Spec]map[int]struct{}),
	}
}

type lookupResult struct {
	tex tilecache.Texture
	ok  bool
}

// Lookup satisfies requestmanager.Engine: a cache hit served synchronously,
// with no network activity. Concurrent lookups for the same spec (several
// maps settling on the same camera position at once) are coalesced via
// singleflight so the decode-on-promote path in tilecache.Cache.Get only
// runs once per spec rather than once per caller.
func (e *Engine) Lookup(spec tilespec.Spec) (tilecache.Texture, bool) {
	key := spec.String() + "/v" + strconv.Itoa(spec.Version)
	v, _, _ := e.inFlight.Do(key, func() (interface{}, error) {
		tex, ok := e.cache.Get(spec)
		return lookupResult{tex: tex, ok: ok}, nil
	})
	res := v.(lookupResult)
	return res.tex, res.ok
}

// LookupWithFallback satisfies tiledmap's facade contract: like Lookup,
// but on a miss it walks up to a coarser cached ancestor so the caller
// can show an over-zoom placeholder (spec.md §4.F) instead of nothing
// while the exact tile is outstanding. The returned int is the zoom
// level the texture actually came from.
func (e *Engine) LookupWithFallback(spec tilespec.Spec) (tilecache.Texture, int, bool) {
	return e.cache.GetWithFallback(spec)
}

// ClearAll and ClearMapID forward to the shared cache: the engine, not
// any individual map, owns it (spec.md §5's shared-resource rule), so a
// map asking to clear data must go through here rather than touching a
// cache handle directly.
func (e *Engine) ClearAll() {
	e.cache.ClearAll()
}

func (e *Engine) ClearMapID(mapID int) {
	e.cache.ClearMapID(mapID)
}

// RegisterMap adds mapID to the engine's subscriber set, delivering
// future tileFinished/tileError notifications for anything it requests
// to sink.
func (e *Engine) RegisterMap(mapID int, sink MapSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maps[mapID] = sink
	if _, ok := e.mapSpecs[mapID]; !ok {
		e.mapSpecs[mapID] = tilespec.NewSet()
	}
}

// ReleaseMap removes mapID from every index: its own spec set and every
// spec's subscriber set, dropping specs left with no subscribers.
func (e *Engine) ReleaseMap(mapID int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for spec := range e.mapSpecs[mapID] {
		e.detachLocked(mapID, spec)
	}
	delete(e.mapSpecs, mapID)
	delete(e.maps, mapID)
}

func (e *Engine) detachLocked(mapID int, spec tilespec.Spec) {
	subs, ok := e.specMaps[spec]
	if !ok {
		return
	}
	delete(subs, mapID)
	if len(subs) == 0 {
		delete(e.specMaps, spec)
	}
}

// UpdateTileRequests implements requestmanager.Engine: it reconciles
// mapID's subscriptions against added/removed, then posts the net
// engine-wide add/cancel sets to the fetcher (spec.md §4.E).
func (e *Engine) UpdateTileRequests(mapID int, added, removed tilespec.Set) {
	e.mu.Lock()

	// A spec present in both sets is the same map re-subscribing within
	// one transaction — a no-op for the subscriber index, and the reason
	// this is computed before touching specMaps at all rather than as a
	// later difference against whatever toRequest/toCancel happen to
	// collect (spec.md §5's "cancelled and re-added nets to zero").
	noop := added.Intersection(removed)
	pureRemoved := removed.Difference(noop)
	pureAdded := added.Difference(noop)

	toCancel := tilespec.NewSet()
	for _, spec := range pureRemoved.Slice() {
		e.detachLocked(mapID, spec)
		if _, ok := e.specMaps[spec]; !ok {
			toCancel.Add(spec)
		}
	}

	toRequest := tilespec.NewSet()
	for _, spec := range pureAdded.Slice() {
		subs, ok := e.specMaps[spec]
		wasEmpty := !ok || len(subs) == 0
		if !ok {
			subs = make(map[int]struct{})
			e.specMaps[spec] = subs
		}
		subs[mapID] = struct{}{}
		if wasEmpty {
			toRequest.Add(spec)
		}
	}

	current := e.mapSpecs[mapID]
	if current == nil {
		current = tilespec.NewSet()
	}
	e.mapSpecs[mapID] = current.Difference(removed).Union(added)

	e.mu.Unlock()

	if len(toRequest) > 0 || len(toCancel) > 0 {
		e.fetcher.UpdateTileRequests(toRequest, toCancel)
	}
}

// TileFinished implements fetcher.ResultSink: it inserts the tile into
// the cache, drops the spec from the subscriber index, then notifies
// every map that was subscribed exactly once (at-most-once delivery per
// spec.md §4.E).
func (e *Engine) TileFinished(spec tilespec.Spec, data []byte, format string) {
	e.cache.Insert(spec, data, format, e.insertAreas)

	e.mu.Lock()
	subs := e.specMaps[spec]
	delete(e.specMaps, spec)
	var sinks []MapSink
	for mapID := range subs {
		e.mapSpecs[mapID].Remove(spec)
		if sink, ok := e.maps[mapID]; ok {
			sinks = append(sinks, sink)
		}
	}
	e.mu.Unlock()

	for _, sink := range sinks {
		sink.TileFetched(spec)
	}
}

// TileError implements fetcher.ResultSink: the spec is dropped from the
// subscriber index, so a retry's re-request reaches the fetcher again,
// and every map that was subscribed has its RequestManager notified so
// it can drive its own retry/backoff (spec.md §4.D/§4.E). The failure is
// logged at Debug; the RequestManager warns when it gives up.
func (e *Engine) TileError(spec tilespec.Spec, errMsg string) {
	e.mu.Lock()
	subs := e.specMaps[spec]
	delete(e.specMaps, spec)
	var sinks []MapSink
	for mapID := range subs {
		e.mapSpecs[mapID].Remove(spec)
		if sink, ok := e.maps[mapID]; ok {
			sinks = append(sinks, sink)
		}
	}
	e.mu.Unlock()

	e.log.Debug("mappingengine: tile fetch failed", "spec", spec, "error", errMsg)
	for _, sink := range sinks {
		sink.TileError(spec, errMsg)
	}
}
