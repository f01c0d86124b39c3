// Package fetcher defines the TileFetcher contract (spec.md §6): the
// engine posts aggregated add/remove sets to it; it reports back
// completed or failed fetches. Concrete transports (fetcher/httpfetcher)
// implement Fetcher; mappingengine implements ResultSink.
package fetcher

import "github.com/OpticalFlyer/tilecore/tilespec"

// Fetcher accepts aggregated tile requests from the engine. UpdateTileRequests
// is called from the engine's calling goroutine; it must not block the
// caller beyond enqueueing the work (spec.md §5: "the fetcher thread
// blocks on underlying I/O but delivers results via queued messages").
type Fetcher interface {
	UpdateTileRequests(added, removed tilespec.Set)
	// Close stops accepting work and waits for in-flight fetches to
	// finish or be abandoned.
	Close() error
}

// ResultSink receives completed or failed fetches. Implemented by
// mappingengine.Engine; a fetcher must deliver each spec at most once,
// and only for specs it was asked to fetch (or was already fetching when
// asked to cancel it — cancellation is advisory per spec.md §5).
type ResultSink interface {
	TileFinished(spec tilespec.Spec, data []byte, format string)
	TileError(spec tilespec.Spec, errMsg string)
}
