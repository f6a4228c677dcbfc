// Package models defines the entities shared by the library client, the tracker client, the mapping
// engine and storage.
//
// Library side (read-only snapshot of the media server):
//   - [LibrarySeries] : a show with ordered seasons
//   - [LibrarySeason] : a season; index 0 holds specials and is never mapped
//   - [LibraryEpisode] : per-episode watch count and last-watched time
//
// Tracker side:
//   - [CatalogEntry] : an anime record with titles, synonyms, episode count, format and typed [Relation] edges
//   - [ListEntry] : the viewer's current status and progress for one entry
//   - [Viewer] : the authenticated account
//
// Sync state:
//   - [Mapping] : a persisted link from an episode range of one season to one catalog entry, identified by
//     a [MappingID] that is either [Unsaved] or [Persisted]
//   - [WatchStatus] : planning, current, paused, dropped or completed
//   - [PlannedUpdate] : a status change to push to the tracker
//   - [SyncRun] : bookkeeping for one sync execution
package models
