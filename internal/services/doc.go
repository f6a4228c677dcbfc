// Package services implements the HTTP clients for the media library and the anime tracking catalog.
//
// # Catalog
//
// [AniListClient] implements [CatalogClient] and [ListClient] over the AniList GraphQL API.
// Requests carry an OAuth2 bearer token and are paced by a [rate.Limiter].
// Search results and entries are read through an optional [CatalogCache].
//
// Relation edges and nodes come back from the API as two parallel lists; they are zipped into
// [models.Relation] pairs once at decode time so no caller depends on positional pairing.
//
// # Library
//
// [PlexClient] implements [LibraryClient] against a Plex Media Server. [PlexClient.Snapshot] lists the
// series of each section, then fetches seasons and episodes with a small worker pool. A series whose
// children cannot be fetched is logged and left out of the snapshot.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : no access token configured
//   - [shared.ErrCatalogRequest] : AniList request failed or returned GraphQL errors
//   - [shared.ErrLibraryRequest] : Plex request failed
package services
