// Package tilespec defines TileSpec, the immutable identity key shared by
// every other tilecore component: the camera-to-tiles resolver produces
// sets of these, the cache keys on them, and the request manager and
// mapping engine track them by value.
package tilespec

import "strconv"

// Spec identifies a single tile: which plugin/provider produced it, which
// map catalogue entry it belongs to, its zoom/x/y address, and an optional
// version used to evict stale tiles when a provider's tile format changes.
//
// Spec is a plain value type: compare, copy and hash it directly. It is
// never mutated after construction.
type Spec struct {
	Plugin  string
	MapID   int
	Zoom    int
	X       int
	Y       int
	Version int // -1 means unversioned
}

// New constructs a Spec. Version -1 means unversioned.
func New(plugin string, mapID, zoom, x, y, version int) Spec {
	return Spec{Plugin: plugin, MapID: mapID, Zoom: zoom, X: x, Y: y, Version: version}
}

// Valid reports whether the spec's (x, y) lie within the tile grid implied
// by its zoom level. A zoom of -1 (unset) is considered valid, matching
// specs produced as wrapped intermediates during rasterization.
func (s Spec) Valid() bool {
	if s.Zoom < 0 {
		return true
	}
	side := 1 << uint(s.Zoom)
	return s.X >= 0 && s.X < side && s.Y >= 0 && s.Y < side
}

// Less implements the lexicographic ordering over
// (plugin, mapId, zoom, x, y, version) specified so that same-plugin,
// same-map tiles stay contiguous under iteration (cache locality).
func (s Spec) Less(o Spec) bool {
	if s.Plugin != o.Plugin {
		return s.Plugin < o.Plugin
	}
	if s.MapID != o.MapID {
		return s.MapID < o.MapID
	}
	if s.Zoom != o.Zoom {
		return s.Zoom < o.Zoom
	}
	if s.X != o.X {
		return s.X < o.X
	}
	if s.Y != o.Y {
		return s.Y < o.Y
	}
	return s.Version < o.Version
}

// Equal reports whether s and o identify the same tile.
func (s Spec) Equal(o Spec) bool {
	return s == o
}

// WithPlugin returns a copy of s with Plugin replaced.
func (s Spec) WithPlugin(plugin string) Spec {
	s.Plugin = plugin
	return s
}

// WithVersion returns a copy of s with Version replaced.
func (s Spec) WithVersion(version int) Spec {
	s.Version = version
	return s
}

// String renders a human-readable form, used for log messages.
func (s Spec) String() string {
	return s.Plugin + "/" + strconv.Itoa(s.MapID) + "/" + strconv.Itoa(s.Zoom) +
		"/" + strconv.Itoa(s.X) + "/" + strconv.Itoa(s.Y)
}

// Set is a set of Specs. Spec's comparability makes a plain Go map an
// adequate hash set; Set exists to give that map type a name and a small
// set-algebra API used throughout cameratiles/requestmanager/mappingengine.
type Set map[Spec]struct{}

// NewSet builds a Set from the given specs.
func NewSet(specs ...Spec) Set {
	s := make(Set, len(specs))
	for _, sp := range specs {
		s[sp] = struct{}{}
	}
	return s
}

// Add inserts spec into the set.
func (s Set) Add(spec Spec) { s[spec] = struct{}{} }

// Contains reports whether spec is a member.
func (s Set) Contains(spec Spec) bool {
	_, ok := s[spec]
	return ok
}

// Remove deletes spec from the set.
func (s Set) Remove(spec Spec) { delete(s, spec) }

// Clone returns a shallow copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for sp := range s {
		out[sp] = struct{}{}
	}
	return out
}

// Slice returns the set's members as a slice, in no particular order.
func (s Set) Slice() []Spec {
	out := make([]Spec, 0, len(s))
	for sp := range s {
		out = append(out, sp)
	}
	return out
}

// Union returns a new Set containing every spec in s or o.
func (s Set) Union(o Set) Set {
	out := s.Clone()
	for sp := range o {
		out[sp] = struct{}{}
	}
	return out
}

// Difference returns a new Set containing every spec in s but not in o.
func (s Set) Difference(o Set) Set {
	out := make(Set)
	for sp := range s {
		if !o.Contains(sp) {
			out[sp] = struct{}{}
		}
	}
	return out
}

// Intersection returns a new Set containing every spec in both s and o.
func (s Set) Intersection(o Set) Set {
	out := make(Set)
	for sp := range s {
		if o.Contains(sp) {
			out[sp] = struct{}{}
		}
	}
	return out
}
