package tilespec

import (
	"path/filepath"
	"strconv"
	"strings"
)

// ToFilename renders spec as the on-disk basename (or, if dir is non-empty,
// the full path) used by tilecache's disk tier:
//
//	{plugin}-{mapId}-{zoom}-{x}-{y}[-{version}].{format}
//
// Version -1 omits the trailing "-{version}" segment.
func ToFilename(spec Spec, format, dir string) string {
	var b strings.Builder
	b.WriteString(spec.Plugin)
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(spec.MapID))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(spec.Zoom))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(spec.X))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(spec.Y))
	if spec.Version != -1 {
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(spec.Version))
	}
	b.WriteByte('.')
	b.WriteString(format)

	name := b.String()
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// FromFilename is the inverse of ToFilename applied to a basename (no
// directory component). It returns ok=false for anything that does not
// round-trip to an identical set of integers, so the disk-cache scavenger
// never admits corrupt or foreign names (spec.md §4.C's bijection
// requirement).
func FromFilename(name string) (spec Spec, format string, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return Spec{}, "", false
	}
	format = parts[1]
	if format == "" {
		return Spec{}, "", false
	}

	fields := strings.Split(parts[0], "-")
	if len(fields) != 5 && len(fields) != 6 {
		return Spec{}, "", false
	}

	plugin := fields[0]
	nums := make([]int, 0, 5)
	for _, f := range fields[1:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Spec{}, "", false
		}
		nums = append(nums, n)
	}

	version := -1
	if len(nums) == 5 {
		version = nums[4]
	}

	spec = Spec{
		Plugin:  plugin,
		MapID:   nums[0],
		Zoom:    nums[1],
		X:       nums[2],
		Y:       nums[3],
		Version: version,
	}

	// Must round-trip exactly back to this name (rejects non-canonical
	// integer spellings like "+5" or "05" that Atoi accepts).
	if ToFilename(spec, format, "") != name {
		return Spec{}, "", false
	}

	return spec, format, true
}
