// Package tasks maps library seasons to catalog entries, derives watch statuses and syncs them to the tracker.
//
// # Mapping
//
// [MappingEngine.CreateMapping] walks the seasons of one series as a small state machine:
//
//  1. MatchingFirstSeason : search the catalog by series title and score candidates (see package matching)
//  2. ChainingSequel : follow sequel relations from the previous mapping until the season is covered
//  3. Done / Abandoned : persist the new mappings and return
//
// Each step is a pure transition over data fetched from the catalog that either appends a mapping or
// stops with a [StopReason]. Stopping is not an error; a short mapping list is a valid result.
// Series with more than max_seasons seasons are skipped, and at most max_sequel_hops sequels are
// followed per season.
//
// # Status
//
// [GatherEpisodes] collects the episodes a catalog id covers through its mappings and [DeriveStatus]
// turns them into a [models.WatchStatus] and progress. Paused and dropped thresholds are measured from
// the evaluation time, so an untouched title decays from current to paused to dropped.
//
// # Sync
//
// [SyncEngine.Run] snapshots the library, maps every series, resolves each mapped catalog id and pushes
// the statuses that differ from the tracker list. Disabled and ignored mappings are left out.
// A file lock keeps one sync per database.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
