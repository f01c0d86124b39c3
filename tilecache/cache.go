// Package tilecache implements the three-tier tile cache (spec.md §4.C):
// a texture tier close to the renderer, a compressed-bytes memory tier,
// and a persistent disk tier with a four-queue "3Q" eviction policy
// (package threeq). Grounded on original_source/.../qgeofiletilecache.cpp
// (QGeoFileTileCache) and the teacher's TileImageCache (tilemap/map.go),
// generalized from a single in-memory ebiten.Image map into the full
// three-tier, disk-backed design the spec calls for.
package tilecache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/OpticalFlyer/tilecore/tilecache/threeq"
	"github.com/OpticalFlyer/tilecore/tilespec"
)

// Areas selects which tiers Insert writes to.
type Areas int

const (
	AreaDisk Areas = 1 << iota
	AreaMemory
)

func (a Areas) has(f Areas) bool { return a&f != 0 }

const (
	defaultMaxTextureCost = 20 * 1024 * 1024
	defaultMaxMemoryCost  = 3 * 1024 * 1024
	defaultMaxDiskCost    = 50 * 1024 * 1024

	// engineVersion namespaces the on-disk layout so an incompatible
	// future format does not collide with today's files; bumping it is
	// what step 2 of the disk-layout init sequence purges against.
	engineVersion = "1.0.0"
)

type memEntry struct {
	bytes  []byte
	format string
}

// Cache is one engine's shared, three-tier tile cache. Per spec.md §5,
// its internal state must be mutated only by the thread that owns the
// engine; the mutex exists for the same defensive reason the teacher's
// own TileImageCache carries one, not because concurrent access is an
// intended usage pattern.
type Cache struct {
	mu sync.Mutex

	log *slog.Logger

	dir     string
	plugin  string
	decoder Decoder

	textureStrategy CostStrategy
	memoryStrategy  CostStrategy
	diskStrategy    CostStrategy

	texture *costLRU[Texture]
	memory  *costLRU[memEntry]
	disk    *threeq.Policy
}

// Options configures New.
type Options struct {
	// BaseDir is the writable cache root; if empty, os.UserCacheDir is
	// used, falling back to os.TempDir if that is unavailable or the tile
	// directory cannot be created there (spec.md §4.C step 1's "shared location is read-only,
	// fall back to an application-specific one").
	BaseDir string
	Plugin  string
	Decoder Decoder
	Logger  *slog.Logger

	MaxTextureCost int
	MaxMemoryCost  int
	MaxDiskCost    int
}

// New constructs a Cache and runs the disk-layout initialization sequence
// (spec.md §4.C steps 1-4): locate/create the cache directory, purge
// stale-layout files, load the manifests, then scavenge any untracked
// file left behind by a prior crash.
func New(opts Options) (*Cache, error) {
	base := opts.BaseDir
	if base == "" {
		var err error
		base, err = os.UserCacheDir()
		if err != nil || base == "" {
			base = os.TempDir()
		}
	}
	dir := filepath.Join(base, "tilecore", engineVersion, "tiles", opts.Plugin)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if opts.BaseDir != "" {
			return nil, fmt.Errorf("tilecache: creating cache dir %s: %w", dir, err)
		}
		dir = filepath.Join(os.TempDir(), "tilecore", engineVersion, "tiles", opts.Plugin)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("tilecache: creating cache dir %s: %w", dir, err)
		}
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	maxTex := opts.MaxTextureCost
	if maxTex == 0 {
		maxTex = defaultMaxTextureCost
	}
	maxMem := opts.MaxMemoryCost
	if maxMem == 0 {
		maxMem = defaultMaxMemoryCost
	}
	maxDisk := opts.MaxDiskCost
	if maxDisk == 0 {
		maxDisk = defaultMaxDiskCost
	}

	c := &Cache{
		log:     log,
		dir:     dir,
		plugin:  opts.Plugin,
		decoder: opts.Decoder,
		texture: newCostLRU(maxTex, Texture.byteCost),
		memory:  newCostLRU(maxMem, func(m memEntry) int { return len(m.bytes) }),
		disk:    threeq.NewPolicy(maxDisk),
	}

	purgeOldLayout(dir, opts.Plugin)
	if err := c.loadManifests(); err != nil {
		log.Warn("tilecache: loading manifests", "error", err)
	}
	c.scavenge()

	return c, nil
}

// Get looks up spec, promoting it toward the texture tier on a hit per
// spec.md §4.C's documented contract: texture tier first; on miss, the
// memory tier (decoding bytes into a texture); on miss, the disk tier
// (reading the file into both the memory tier and a decoded texture).
func (c *Cache) Get(spec tilespec.Spec) (Texture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tex, ok := c.texture.get(spec); ok {
		return tex, true
	}

	if mem, ok := c.memory.get(spec); ok {
		tex, err := c.decode(spec, mem.bytes, mem.format)
		if !ok || err != nil {
			return Texture{}, false
		}
		c.texture.insert(spec, tex)
		return tex, true
	}

	if filename, ok := c.disk.Filename(spec); ok {
		data, err := os.ReadFile(filepath.Join(c.dir, filename))
		if err != nil {
			c.log.Warn("tilecache: reading disk tile", "spec", spec, "error", err)
			return Texture{}, false
		}
		c.disk.Touch(spec)
		_, format, ok := tilespec.FromFilename(filename)
		if !ok {
			format = ""
		}
		c.memory.insert(spec, memEntry{bytes: data, format: format})
		tex, err := c.decode(spec, data, format)
		if err != nil {
			return Texture{}, false
		}
		c.texture.insert(spec, tex)
		return tex, true
	}

	return Texture{}, false
}

func (c *Cache) decode(spec tilespec.Spec, data []byte, format string) (Texture, error) {
	if c.decoder == nil {
		return Texture{}, fmt.Errorf("tilecache: no decoder configured")
	}
	tex, err := c.decoder(data, format)
	if err != nil {
		c.log.Warn("tilecache: decoding tile", "spec", spec, "error", err)
		return Texture{}, err
	}
	return tex, nil
}

// Insert writes bytes to the tiers named by areas. It never populates the
// texture tier directly — spec.md §4.C is explicit that late-arriving
// tiles inserted straight into the texture tier would poison the hit
// rate of tiles already on screen.
func (c *Cache) Insert(spec tilespec.Spec, data []byte, format string, areas Areas) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if areas.has(AreaMemory) {
		c.memory.insert(spec, memEntry{bytes: data, format: format})
	}
	if areas.has(AreaDisk) {
		filename := tilespec.ToFilename(spec, format, "")
		if err := os.WriteFile(filepath.Join(c.dir, filename), data, 0o644); err != nil {
			c.log.Warn("tilecache: writing disk tile", "spec", spec, "error", err)
			return
		}
		evicted := c.disk.Insert(spec, filename, len(data))
		for _, e := range evicted {
			c.deleteFile(e.Filename)
		}
	}
}

// Remove drops spec from every tier without deleting its backing file —
// the "aboutToBeRemoved" half of the two-phase eviction hook (spec.md
// §4.C), used when a map simply stops referencing a tile rather than
// when the cache is under real cost pressure.
func (c *Cache) Remove(spec tilespec.Spec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texture.remove(spec)
	c.memory.remove(spec)
	c.disk.Remove(spec)
}

// ClearAll wipes all three tiers and deletes every tile file this cache's
// directory is tracking.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, q := range c.disk.Specs() {
		for _, spec := range q {
			if filename, ok := c.disk.Filename(spec); ok {
				c.deleteFile(filename)
			}
		}
	}
	c.texture.clear()
	c.memory.clear()
	c.disk = threeq.NewPolicy(c.disk.MaxCost())
	c.disk.SetCostOf(c.diskStrategy.costOf)
}

// ClearMapID purges every entry belonging to mapID from all three tiers,
// then rescans the directory for leftover files matching mapID (belt and
// braces, since eviction can leave stragglers per spec.md §4.C).
func (c *Cache) ClearMapID(mapID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	match := func(s tilespec.Spec) bool { return s.MapID == mapID }
	c.texture.removeMatching(match)
	c.memory.removeMatching(match)
	for _, q := range c.disk.Specs() {
		for _, spec := range q {
			if !match(spec) {
				continue
			}
			if filename, ok := c.disk.Remove(spec); ok {
				c.deleteFile(filename)
			}
		}
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		spec, _, ok := tilespec.FromFilename(e.Name())
		if ok && spec.MapID == mapID {
			c.deleteFile(e.Name())
		}
	}
}

// SetMaxTextureCost, SetMaxMemoryCost and SetMaxDiskCost mutate a tier's
// quota at runtime, evicting immediately if the new ceiling is below the
// current usage.
func (c *Cache) SetMaxTextureCost(maxCost int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texture.setMax(maxCost)
}

func (c *Cache) SetMaxMemoryCost(maxCost int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory.setMax(maxCost)
}

func (c *Cache) SetMaxDiskCost(maxCost int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.disk.SetMax(maxCost) {
		c.deleteFile(e.Filename)
	}
}

// SetCostStrategyTexture, SetCostStrategyMemory and SetCostStrategyDisk
// select whether a tier's cost accounting is byte-based or unit-based,
// immediately recomputing every resident entry's cost under the new
// strategy (not just future inserts) and evicting if that pushes the
// tier's total back over its configured maximum.
func (c *Cache) SetCostStrategyTexture(s CostStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textureStrategy = s
	c.texture.setStrategy(s)
}

func (c *Cache) SetCostStrategyMemory(s CostStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memoryStrategy = s
	c.memory.setStrategy(s)
}

func (c *Cache) SetCostStrategyDisk(s CostStrategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diskStrategy = s
	for _, e := range c.disk.SetCostOf(s.costOf) {
		c.deleteFile(e.Filename)
	}
}

func (c *Cache) deleteFile(filename string) {
	if err := os.Remove(filepath.Join(c.dir, filename)); err != nil && !os.IsNotExist(err) {
		c.log.Warn("tilecache: deleting tile file", "filename", filename, "error", err)
	}
}
