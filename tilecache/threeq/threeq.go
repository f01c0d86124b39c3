// Package threeq implements the "3Q" four-FIFO-queue eviction policy used
// by tilecache's disk tier: QCache3QTileEvictionPolicy from
// qgeofiletilecache.cpp (original_source). Entries enter queue 1; a hit
// promotes an entry to the next queue, up to queue 4; eviction always
// drains the lowest non-empty queue first. Each of the four FIFOs is kept
// as a hashicorp/golang-lru/v2/simplelru.LRU sized far above any real
// workload, used purely as an ordered container (insertion order via
// Add/RemoveOldest) — eviction is cost-driven (bytes), not count-driven,
// so the automatic size-based eviction simplelru normally performs is
// never triggered; Policy's own cost bookkeeping decides when to call
// RemoveOldest.
package threeq

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/OpticalFlyer/tilecore/tilespec"
)

const numQueues = 4

// unbounded is the per-queue item-count ceiling passed to simplelru; real
// eviction is governed by Policy.maxCost instead.
const unbounded = 1 << 24

type item struct {
	filename string
	size     int
	cost     int
}

// Evicted describes an entry removed from the policy by real cost
// pressure, as opposed to an explicit Remove.
type Evicted struct {
	Spec     tilespec.Spec
	Filename string
}

// Policy is the 3Q eviction policy: four ordered queues plus a running
// cost total bounded by maxCost. costOf turns an inserted entry's raw
// size into its accounted cost, letting the caller swap in a different
// cost strategy at runtime via SetCostOf.
type Policy struct {
	queues   [numQueues]*simplelru.LRU[tilespec.Spec, item]
	location map[tilespec.Spec]int // which queue (0..3) currently holds spec
	costOf   func(size int) int
	maxCost  int
	cost     int
}

// NewPolicy returns an empty policy bounded by maxCost (bytes, or an
// arbitrary unit cost — the caller decides what Insert's size means via
// SetCostOf; the default treats size as the cost directly).
func NewPolicy(maxCost int) *Policy {
	p := &Policy{
		location: make(map[tilespec.Spec]int),
		maxCost:  maxCost,
		costOf:   func(size int) int { return size },
	}
	for i := range p.queues {
		lru, err := simplelru.NewLRU[tilespec.Spec, item](unbounded, nil)
		if err != nil {
			// unbounded is a positive constant; NewLRU only errors on size <= 0.
			panic(err)
		}
		p.queues[i] = lru
	}
	return p
}

// SetMax updates the cost ceiling, evicting immediately if the new
// ceiling is lower than the current total.
func (p *Policy) SetMax(maxCost int) []Evicted {
	p.maxCost = maxCost
	return p.evictToFit()
}

// SetCostOf installs a new size-to-cost function and immediately
// recomputes every resident entry's cost under it (not just future
// inserts), evicting if the new total now exceeds maxCost. Used when the
// disk tier's cost strategy changes at runtime (spec.md §4.C's
// setCostStrategyDisk).
func (p *Policy) SetCostOf(costOf func(size int) int) []Evicted {
	p.costOf = costOf
	p.cost = 0
	for _, q := range p.queues {
		for _, k := range q.Keys() {
			it, ok := q.Peek(k)
			if !ok {
				continue
			}
			it.cost = costOf(it.size)
			q.Add(k, it)
			p.cost += it.cost
		}
	}
	return p.evictToFit()
}

// MaxCost returns the configured ceiling.
func (p *Policy) MaxCost() int { return p.maxCost }

// Cost returns the current total cost across all four queues.
func (p *Policy) Cost() int { return p.cost }

// Contains reports whether spec is currently tracked, in any queue.
func (p *Policy) Contains(spec tilespec.Spec) bool {
	_, ok := p.location[spec]
	return ok
}

// Filename returns the filename recorded for spec, if tracked.
func (p *Policy) Filename(spec tilespec.Spec) (string, bool) {
	q, ok := p.location[spec]
	if !ok {
		return "", false
	}
	it, ok := p.queues[q].Peek(spec)
	if !ok {
		return "", false
	}
	return it.filename, true
}

// Touch promotes spec to the next queue (capped at queue 4) on a cache
// hit, per QCache3QTileEvictionPolicy's hit-promotion rule.
func (p *Policy) Touch(spec tilespec.Spec) {
	q, ok := p.location[spec]
	if !ok {
		return
	}
	it, ok := p.queues[q].Peek(spec)
	if !ok {
		return
	}
	next := q + 1
	if next >= numQueues {
		next = numQueues - 1
	}
	if next == q {
		return
	}
	p.queues[q].Remove(spec)
	p.queues[next].Add(spec, it)
	p.location[spec] = next
}

// Insert adds spec to queue 1 with cost computed from size via the
// active cost-of function (an already-present spec is first removed from
// whichever queue held it, so it re-enters queue 1), then evicts from the lowest non-empty
// queue until the total cost is back within budget. Evicted entries are
// returned so the caller (tilecache) can delete their backing files and
// fire aboutToBeEvicted semantics.
func (p *Policy) Insert(spec tilespec.Spec, filename string, size int) []Evicted {
	if q, ok := p.location[spec]; ok {
		old, _ := p.queues[q].Peek(spec)
		p.cost -= old.cost
		p.queues[q].Remove(spec)
		delete(p.location, spec)
	}

	cost := p.costOf(size)
	p.queues[0].Add(spec, item{filename: filename, size: size, cost: cost})
	p.location[spec] = 0
	p.cost += cost

	return p.evictToFit()
}

// SeedQueue inserts spec directly into the given queue (0 = queue 1, ...,
// 3 = queue 4) without going through the normal "always enters queue 1"
// path. Used only while restoring the manifest at startup, so a tile the
// manifest recorded in queue 3 is not demoted back to queue 1.
func (p *Policy) SeedQueue(queue int, spec tilespec.Spec, filename string, size int) {
	if queue < 0 {
		queue = 0
	}
	if queue >= numQueues {
		queue = numQueues - 1
	}
	if q, ok := p.location[spec]; ok {
		old, _ := p.queues[q].Peek(spec)
		p.cost -= old.cost
		p.queues[q].Remove(spec)
	}
	cost := p.costOf(size)
	p.queues[queue].Add(spec, item{filename: filename, size: size, cost: cost})
	p.location[spec] = queue
	p.cost += cost
}

// Remove drops spec from whichever queue holds it without treating the
// removal as eviction (no Evicted is produced) — the "aboutToBeRemoved"
// half of the two-phase hook (spec.md §4.C): the caller is responsible
// for not deleting the backing file in this path.
func (p *Policy) Remove(spec tilespec.Spec) (string, bool) {
	q, ok := p.location[spec]
	if !ok {
		return "", false
	}
	it, _ := p.queues[q].Peek(spec)
	p.queues[q].Remove(spec)
	delete(p.location, spec)
	p.cost -= it.cost
	return it.filename, true
}

// Specs returns every tracked spec, grouped by queue (index 0 = queue 1,
// ..., index 3 = queue 4), in FIFO order within each queue. Used to write
// the on-disk manifest files on shutdown.
func (p *Policy) Specs() [numQueues][]tilespec.Spec {
	var out [numQueues][]tilespec.Spec
	for i, q := range p.queues {
		out[i] = q.Keys()
	}
	return out
}

func (p *Policy) evictToFit() []Evicted {
	var evicted []Evicted
	for p.cost > p.maxCost {
		q := p.lowestNonEmpty()
		if q < 0 {
			break
		}
		spec, it, ok := p.queues[q].RemoveOldest()
		if !ok {
			break
		}
		delete(p.location, spec)
		p.cost -= it.cost
		evicted = append(evicted, Evicted{Spec: spec, Filename: it.filename})
	}
	return evicted
}

func (p *Policy) lowestNonEmpty() int {
	for i, q := range p.queues {
		if q.Len() > 0 {
			return i
		}
	}
	return -1
}
