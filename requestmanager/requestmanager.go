// Package requestmanager tracks one map's outstanding tile requests and
// drives retry-with-backoff for failed fetches (spec.md §4.D). Grounded
// line-for-line on original_source/.../qgeotilerequestmanager.cpp
// (QGeoTileRequestManager::requestTiles/tileFetched/tileError and its
// RetryFuture helper).
package requestmanager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/OpticalFlyer/tilecore/tilecache"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

const maxRetries = 5

const retryBaseDelay = 500 * time.Millisecond

// Engine is the subset of mappingengine.Engine a RequestManager needs: a
// cache to check for already-resident tiles on request, and a sink for
// the net add/remove sets once a request cycle settles.
type Engine interface {
	Lookup(spec tilespec.Spec) (tilecache.Texture, bool)
	UpdateTileRequests(mapID int, added, removed tilespec.Set)
}

// Manager is one TiledMap's RequestManager: outstanding specs, per-spec
// retry counts, and any pending retry timers.
type Manager struct {
	mu sync.Mutex

	mapID  int
	engine Engine
	log    *slog.Logger

	outstanding tilespec.Set
	retries     map[tilespec.Spec]int
	timers      map[tilespec.Spec]context.CancelFunc
}

// New returns a Manager for mapID, reporting to engine.
func New(mapID int, engine Engine, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		mapID:       mapID,
		engine:      engine,
		log:         log,
		outstanding: tilespec.NewSet(),
		retries:     make(map[tilespec.Spec]int),
		timers:      make(map[tilespec.Spec]context.CancelFunc),
	}
}

// RequestTiles reconciles newSet against the currently outstanding set
// (spec.md §4.D): tiles dropped from view are cancelled, tiles newly in
// view are requested unless the engine's cache already holds them (those
// are returned directly, with no network activity). Cancelled specs have
// their retry state reset so a later re-request starts fresh.
func (m *Manager) RequestTiles(newSet tilespec.Set) map[tilespec.Spec]tilecache.Texture {
	m.mu.Lock()
	defer m.mu.Unlock()

	cancel := m.outstanding.Difference(newSet)
	candidate := newSet.Difference(m.outstanding)

	cached := make(map[tilespec.Spec]tilecache.Texture)
	toRequest := tilespec.NewSet()
	for _, spec := range candidate.Slice() {
		if tex, ok := m.engine.Lookup(spec); ok {
			cached[spec] = tex
			continue
		}
		toRequest.Add(spec)
	}

	m.outstanding = m.outstanding.Difference(cancel).Union(toRequest)

	for _, spec := range cancel.Slice() {
		delete(m.retries, spec)
		if stop, ok := m.timers[spec]; ok {
			stop()
			delete(m.timers, spec)
		}
	}

	if len(toRequest) > 0 || len(cancel) > 0 {
		m.engine.UpdateTileRequests(m.mapID, toRequest, cancel)
	}

	return cached
}

// TileFetched clears spec's outstanding/retry/timer state. The caller
// (mappingengine, fanning out tileFinished) is responsible for pushing
// the texture itself to the owning scene.
func (m *Manager) TileFetched(spec tilespec.Spec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearSpecLocked(spec)
}

// TileError increments spec's retry count. After the 5th failure the
// spec is dropped permanently and a warning is logged; otherwise a retry
// is scheduled after (1<<count)*500ms, capped at the same ceiling
// (spec.md §4.D's exponential backoff).
func (m *Manager) TileError(spec tilespec.Spec, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.outstanding.Contains(spec) {
		return
	}

	count := m.retries[spec]
	m.retries[spec]++
	if m.retries[spec] >= maxRetries {
		m.log.Warn("requestmanager: tile exceeded max retries, dropping",
			"spec", spec, "error", errMsg, "retries", m.retries[spec])
		m.clearSpecLocked(spec)
		return
	}

	delay := time.Duration(1<<uint(count)) * retryBaseDelay
	ctx, stop := context.WithCancel(context.Background())
	if old, ok := m.timers[spec]; ok {
		old()
	}
	m.timers[spec] = stop

	timer := time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return // cancelled: map torn down or spec already resolved/re-requested
		}
		m.retryNow(spec)
	})
	context.AfterFunc(ctx, timer.Stop)
}

func (m *Manager) retryNow(spec tilespec.Spec) {
	m.mu.Lock()
	if !m.outstanding.Contains(spec) {
		m.mu.Unlock()
		return
	}
	delete(m.timers, spec)
	m.mu.Unlock()

	single := tilespec.NewSet(spec)
	m.engine.UpdateTileRequests(m.mapID, single, tilespec.NewSet())
}

func (m *Manager) clearSpecLocked(spec tilespec.Spec) {
	m.outstanding.Remove(spec)
	delete(m.retries, spec)
	if stop, ok := m.timers[spec]; ok {
		stop()
		delete(m.timers, spec)
	}
}

// Close cancels every pending retry timer, mirroring the weak-reference
// semantics of RetryFuture: destroying the map must not leave a timer
// callback touching a torn-down Manager (spec.md §5's cancellation note).
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for spec, stop := range m.timers {
		stop()
		delete(m.timers, spec)
	}
}

// Outstanding returns a snapshot of the currently outstanding spec set.
func (m *Manager) Outstanding() tilespec.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outstanding.Clone()
}
