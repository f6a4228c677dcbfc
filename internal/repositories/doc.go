// Package repositories implements SQLite persistence for the sync state.
//
// Key Implementations:
//   - [MappingRepository] : season to catalog entry mappings, append-only apart from the enabled/ignored flags
//   - [CatalogCacheRepository] : raw catalog search results and entries with a time-to-live
//   - [SyncRunRepository] : history of sync executions with their counters
//
// Sequence numbers provide stable, human-readable ordering (e.g., mapping #42, run #15).
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
