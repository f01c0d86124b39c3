package tilecache

// CostStrategy selects whether a tier's configured maximum is measured in
// bytes or in a flat per-entry unit, matching QGeoFileTileCache's
// setCostStrategyDisk/Memory/Texture (spec.md §4.C).
type CostStrategy int

const (
	// CostBytes costs an entry by its byte size (the default).
	CostBytes CostStrategy = iota
	// CostUnit costs every entry as exactly 1, turning the tier's max
	// into an item-count bound instead of a byte bound.
	CostUnit
)

func (s CostStrategy) costOf(byteSize int) int {
	if s == CostUnit {
		return 1
	}
	return byteSize
}
