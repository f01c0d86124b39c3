package tilecache

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpticalFlyer/tilecore/tilespec"
)

func manifestPath(dir string, queue int) string {
	return filepath.Join(dir, fmt.Sprintf("queue%d", queue+1))
}

// loadManifests reads up to four manifest files, one basename per line,
// and reinserts each still-existing file's reconstructed spec into the
// matching disk queue with its on-disk size as cost (spec.md §4.C step
// 3). A missing or corrupt manifest is tolerated: the scavenger pass that
// follows picks up whatever it did not load.
func (c *Cache) loadManifests() error {
	var firstErr error
	for q := 0; q < 4; q++ {
		path := manifestPath(c.dir, q)
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) && firstErr == nil {
				firstErr = err
			}
			continue
		}

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			name := strings.TrimSpace(scanner.Text())
			if name == "" {
				continue
			}
			full := filepath.Join(c.dir, name)
			info, err := os.Stat(full)
			if err != nil {
				continue // file referenced by the manifest no longer exists
			}
			spec, _, ok := tilespec.FromFilename(name)
			if !ok {
				continue // corrupt basename, ignored per spec.md's tolerant-manifest rule
			}
			c.insertIntoDiskQueue(q, spec, name, int(info.Size()))
		}
		f.Close()
	}
	return firstErr
}

// insertIntoDiskQueue seeds the 3Q policy directly at startup, bypassing
// Policy.Insert's "always enters queue 1" rule so that a tile the
// manifest recorded in queue 3 is restored to queue 3, not demoted.
func (c *Cache) insertIntoDiskQueue(queue int, spec tilespec.Spec, filename string, size int) {
	c.disk.SeedQueue(queue, spec, filename, size)
}

// writeManifests overwrites the four manifest files with the current
// disk-tier membership, one basename per line, run only at shutdown
// under the single-writer-per-directory assumption (spec.md §5).
func (c *Cache) writeManifests() error {
	queues := c.disk.Specs()
	for q, specs := range queues {
		path := manifestPath(c.dir, q)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("tilecache: writing %s: %w", path, err)
		}
		w := bufio.NewWriter(f)
		for _, spec := range specs {
			filename, ok := c.disk.Filename(spec)
			if !ok {
				continue
			}
			fmt.Fprintln(w, filename)
		}
		err = w.Flush()
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the disk-tier manifests. It does not delete any files.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeManifests()
}

// scavenge inserts any file under the cache directory that looks like a
// tile and is not already tracked by a loaded manifest, so a crash that
// lost the manifest does not silently lose cached tiles (spec.md §4.C
// step 4). Per the spec's Open Question, this matches the source's
// observed behavior of trusting the plugin token parsed from the
// filename rather than cross-checking it against c.plugin.
func (c *Cache) scavenge() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "queue") {
			continue
		}
		spec, _, ok := tilespec.FromFilename(name)
		if !ok {
			continue
		}
		if c.disk.Contains(spec) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		evicted := c.disk.Insert(spec, name, int(info.Size()))
		for _, ev := range evicted {
			c.deleteFile(ev.Filename)
		}
	}
}

// purgeOldLayout deletes tile files belonging to a previous, incompatible
// directory layout version (spec.md §4.C step 2): any sibling of the
// current <engineVersion> directory under the plugin's cache root.
func purgeOldLayout(currentDir, plugin string) {
	root := filepath.Dir(filepath.Dir(filepath.Dir(currentDir))) // .../tilecore
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	currentVersion := filepath.Base(filepath.Dir(filepath.Dir(currentDir)))
	for _, e := range entries {
		if !e.IsDir() || e.Name() == currentVersion {
			continue
		}
		stale := filepath.Join(root, e.Name(), "tiles", plugin)
		os.RemoveAll(stale)
	}
}
