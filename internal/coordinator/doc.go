// Package coordinator polls one device on a fixed interval and holds the
// latest normalised status.
//
// A Coordinator owns the current status.Snapshot. Each refresh fetches the
// raw status, normalises it and swaps the snapshot as a whole, so readers
// never see a partial update. A failed refresh keeps the previous snapshot
// (stale but available) and is reported to subscribers together with it.
//
// The first refresh is different: if it fails, FirstRefresh returns
// ErrNotReady and the caller is expected to abort startup.
//
// Only one refresh runs at a time. The polling loop and manual refreshes
// (for example from the HTTP API) share one lock; a refresh that overruns
// the interval delays the next tick instead of overlapping it.
package coordinator
