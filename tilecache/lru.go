package tilecache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/OpticalFlyer/tilecore/tilespec"
)

// unboundedEntries is the per-tier item-count ceiling handed to the
// underlying hashicorp LRU; costLRU enforces the real (byte- or
// unit-cost) ceiling itself, the same technique threeq.Policy uses for
// the disk tier's four queues: golang-lru bounds by entry count, and
// tilecache's tiers are bounded by cost (spec.md §4.C's "Total cost per
// tier never exceeds its configured maximum"), so the count ceiling is
// set high enough to never bind and costLRU's own RemoveOldest calls do
// the real eviction.
const unboundedEntries = 1 << 20

// costLRU is a cost-bounded, promote-on-hit cache shared by the texture
// and memory tiers, built on github.com/hashicorp/golang-lru/v2.Cache for
// its ordered-on-access container rather than hand-rolling one. Cost is
// byteSize(value) run through the active CostStrategy, so a strategy
// flip (setStrategy) changes what future AND resident entries cost.
type costLRU[V any] struct {
	inner    *lru.Cache[tilespec.Spec, costed[V]]
	byteSize func(V) int
	strategy CostStrategy
	maxCost  int
	cost     int
}

type costed[V any] struct {
	value V
	cost  int
}

func newCostLRU[V any](maxCost int, byteSize func(V) int) *costLRU[V] {
	inner, err := lru.New[tilespec.Spec, costed[V]](unboundedEntries)
	if err != nil {
		panic(err)
	}
	return &costLRU[V]{inner: inner, byteSize: byteSize, maxCost: maxCost}
}

func (c *costLRU[V]) get(spec tilespec.Spec) (V, bool) {
	cv, ok := c.inner.Get(spec)
	if !ok {
		var zero V
		return zero, false
	}
	return cv.value, true
}

func (c *costLRU[V]) contains(spec tilespec.Spec) bool {
	return c.inner.Contains(spec)
}

// insert adds or replaces spec, then evicts least-recently-used entries
// until back within maxCost. Returns
// the specs evicted as a result, in eviction order.
func (c *costLRU[V]) insert(spec tilespec.Spec, value V) []tilespec.Spec {
	if old, ok := c.inner.Peek(spec); ok {
		c.cost -= old.cost
	}
	cost := c.strategy.costOf(c.byteSize(value))
	c.inner.Add(spec, costed[V]{value: value, cost: cost})
	c.cost += cost
	return c.evictToFit()
}

func (c *costLRU[V]) remove(spec tilespec.Spec) {
	if old, ok := c.inner.Peek(spec); ok {
		c.cost -= old.cost
	}
	c.inner.Remove(spec)
}

func (c *costLRU[V]) setMax(maxCost int) []tilespec.Spec {
	c.maxCost = maxCost
	return c.evictToFit()
}

// setStrategy installs a new cost strategy and immediately recomputes
// every resident entry's cost under it (not just future inserts),
// evicting if the recomputed total now exceeds maxCost.
func (c *costLRU[V]) setStrategy(s CostStrategy) []tilespec.Spec {
	c.strategy = s
	c.cost = 0
	for _, k := range c.inner.Keys() {
		cv, ok := c.inner.Peek(k)
		if !ok {
			continue
		}
		cv.cost = s.costOf(c.byteSize(cv.value))
		c.inner.Add(k, cv)
		c.cost += cv.cost
	}
	return c.evictToFit()
}

func (c *costLRU[V]) evictToFit() []tilespec.Spec {
	var evicted []tilespec.Spec
	for c.cost > c.maxCost && c.inner.Len() > 0 {
		k, v, ok := c.inner.RemoveOldest()
		if !ok {
			break
		}
		c.cost -= v.cost
		evicted = append(evicted, k)
	}
	return evicted
}

func (c *costLRU[V]) clear() {
	c.inner.Purge()
	c.cost = 0
}

func (c *costLRU[V]) len() int { return c.inner.Len() }

func (c *costLRU[V]) removeMatching(pred func(tilespec.Spec) bool) {
	for _, k := range c.inner.Keys() {
		if pred(k) {
			c.remove(k)
		}
	}
}
