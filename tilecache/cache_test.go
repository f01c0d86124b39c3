package tilecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpticalFlyer/tilecore/tilespec"
)

func osStat(dir, filename string) (os.FileInfo, error) {
	return os.Stat(filepath.Join(dir, filename))
}

func stubDecoder(data []byte, format string) (Texture, error) {
	return Texture{Image: string(data), Width: 1, Height: 1, Depth: 32}, nil
}

func newTestCache(t *testing.T, maxDisk int) *Cache {
	t.Helper()
	c, err := New(Options{
		BaseDir:     t.TempDir(),
		Plugin:      "osm",
		Decoder:     stubDecoder,
		MaxDiskCost: maxDisk,
	})
	require.NoError(t, err)
	return c
}

func TestInsertAndGetRoundTrip(t *testing.T) {
	c := newTestCache(t, 10*1024*1024)
	spec := tilespec.New("osm", 1, 3, 1, 1, -1)

	c.Insert(spec, []byte("tiledata"), "png", AreaDisk|AreaMemory)

	tex, ok := c.Get(spec)
	require.True(t, ok)
	assert.Equal(t, "tiledata", tex.Image)
}

// TestRemoveDoesNotDeleteFile is spec.md §8's S5: removing from the cache
// map (not real eviction) must not delete the backing file.
func TestRemoveDoesNotDeleteFile(t *testing.T) {
	c := newTestCache(t, 10*1024*1024)
	spec := tilespec.New("osm", 1, 3, 1, 1, -1)
	c.Insert(spec, []byte("tiledata"), "png", AreaDisk)

	filename, ok := c.disk.Filename(spec)
	require.True(t, ok)

	c.Remove(spec)

	_, err := osStat(c.dir, filename)
	assert.NoError(t, err, "file must still exist after a non-evicting Remove")
}

// TestRealEvictionDeletesFile is the contrasting half of S5: inserting
// past the disk budget must delete the evicted tile's file.
func TestRealEvictionDeletesFile(t *testing.T) {
	c := newTestCache(t, 20) // tiny budget forces eviction almost immediately
	first := tilespec.New("osm", 1, 3, 0, 0, -1)
	c.Insert(first, []byte("0123456789"), "png", AreaDisk)
	firstFilename, ok := c.disk.Filename(first)
	require.True(t, ok)

	for i := 1; i < 6; i++ {
		spec := tilespec.New("osm", 1, 3, i, 0, -1)
		c.Insert(spec, []byte("0123456789"), "png", AreaDisk)
	}

	_, err := osStat(c.dir, firstFilename)
	assert.Error(t, err, "evicted tile's file should have been deleted")
}

func TestClearMapIDOnlyAffectsThatMap(t *testing.T) {
	c := newTestCache(t, 10*1024*1024)
	keep := tilespec.New("osm", 1, 3, 1, 1, -1)
	drop := tilespec.New("osm", 2, 3, 1, 1, -1)
	c.Insert(keep, []byte("a"), "png", AreaDisk|AreaMemory)
	c.Insert(drop, []byte("b"), "png", AreaDisk|AreaMemory)

	c.ClearMapID(2)

	_, ok := c.Get(keep)
	assert.True(t, ok)
	assert.False(t, c.disk.Contains(drop))
}

// TestSetCostStrategyDiskRecomputesResidentCosts is spec.md §4.C's
// setCostStrategyDisk: flipping to CostUnit must recompute already-
// resident entries' cost (to 1 each), not just future inserts, so a
// disk tier holding several large tiles can suddenly fit far more of
// them under the same numeric maximum.
func TestSetCostStrategyDiskRecomputesResidentCosts(t *testing.T) {
	c := newTestCache(t, 15) // room for one ~10-byte tile under CostBytes
	first := tilespec.New("osm", 1, 3, 0, 0, -1)
	c.Insert(first, []byte("0123456789"), "png", AreaDisk)
	require.True(t, c.disk.Contains(first))

	c.SetCostStrategyDisk(CostUnit)

	for i := 1; i < 5; i++ {
		spec := tilespec.New("osm", 1, 3, i, 0, -1)
		c.Insert(spec, []byte("0123456789"), "png", AreaDisk)
	}

	assert.True(t, c.disk.Contains(first), "unit-cost entries should coexist well under a byte-sized maximum")
}

// TestSetCostStrategyTextureEvictsImmediately confirms the texture
// tier's setter recomputes resident cost in place: entries that were
// only ever inserted under CostUnit (cost 1 each) must be evicted the
// instant the strategy flips to CostBytes, if their real byte cost no
// longer fits the configured maximum — without waiting for a future
// insert to notice.
func TestSetCostStrategyTextureEvictsImmediately(t *testing.T) {
	c := newTestCache(t, 10*1024*1024)
	c.texture = newCostLRU(20, Texture.byteCost)
	c.texture.strategy = CostUnit

	a := tilespec.New("osm", 1, 3, 0, 0, -1)
	c.texture.insert(a, Texture{Width: 100, Height: 100, Depth: 32})
	require.True(t, c.texture.contains(a), "cost 1 under CostUnit must fit maxCost=20")

	c.SetCostStrategyTexture(CostBytes)

	assert.False(t, c.texture.contains(a), "recomputed byte cost (40000) must evict the entry under maxCost=20")
}

// TestScavengeDeletesEvictedFile is the scavenge-path analogue of
// TestRealEvictionDeletesFile: a crash-recovered file that pushes the
// disk tier over budget during startup scavenging must still have its
// losing file deleted, the same as a live Insert eviction.
func TestScavengeDeletesEvictedFile(t *testing.T) {
	dir := t.TempDir()
	tileDir := filepath.Join(dir, "tilecore", engineVersion, "tiles", "osm")
	require.NoError(t, os.MkdirAll(tileDir, 0o755))
	first := tilespec.New("osm", 1, 3, 0, 0, -1)
	filename := tilespec.ToFilename(first, "png", "")
	require.NoError(t, os.WriteFile(filepath.Join(tileDir, filename), []byte("0123456789"), 0o644))

	second := tilespec.New("osm", 1, 3, 1, 0, -1)
	secondFilename := tilespec.ToFilename(second, "png", "")
	require.NoError(t, os.WriteFile(filepath.Join(tileDir, secondFilename), []byte("0123456789"), 0o644))

	c, err := New(Options{BaseDir: dir, Plugin: "osm", Decoder: stubDecoder, MaxDiskCost: 12})
	require.NoError(t, err)

	remaining := 0
	for _, name := range []string{filename, secondFilename} {
		if _, err := osStat(c.dir, name); err == nil {
			remaining++
		}
	}
	assert.Equal(t, 1, remaining, "scavenging past the disk budget must delete the losing file, not just drop it from bookkeeping")
}

func TestManifestRoundTripAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	spec := tilespec.New("osm", 1, 4, 2, 2, -1)

	c1, err := New(Options{BaseDir: dir, Plugin: "osm", Decoder: stubDecoder})
	require.NoError(t, err)
	c1.Insert(spec, []byte("payload"), "png", AreaDisk)
	require.NoError(t, c1.Close())

	c2, err := New(Options{BaseDir: dir, Plugin: "osm", Decoder: stubDecoder})
	require.NoError(t, err)
	assert.True(t, c2.disk.Contains(spec))
}
