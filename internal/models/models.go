// package models defines the data model for the library to tracker sync
package models

import (
	"time"
)

// LibraryEpisode is one episode as reported by the media server. It is never modified after fetch.
type LibraryEpisode struct {
	ID            string
	Index         int
	Title         string
	WatchCount    int
	LastWatchedAt *time.Time
}

// Watched reports whether the episode has been played at least once.
//
// View count is the single predicate used for progress; the last-watched timestamp only dates activity.
func (e LibraryEpisode) Watched() bool { return e.WatchCount > 0 }

// LibrarySeason is one season of a [LibrarySeries]. Index 0 holds specials.
type LibrarySeason struct {
	ID          string
	Index       int
	Title       string
	ParentTitle string // owning series title, used to build catalog search titles
	Episodes    []LibraryEpisode
}

// EpisodeCount returns the number of physical episodes in the season.
func (s LibrarySeason) EpisodeCount() int { return len(s.Episodes) }

// IsSpecials reports whether this is the specials season.
func (s LibrarySeason) IsSpecials() bool { return s.Index == 0 }

// LibrarySeries is a show with its ordered seasons.
type LibrarySeries struct {
	ID      string
	Title   string
	Year    int
	Seasons []LibrarySeason
}

// Season returns the season with the given id.
func (s LibrarySeries) Season(id string) (LibrarySeason, bool) {
	for _, season := range s.Seasons {
		if season.ID == id {
			return season, true
		}
	}
	return LibrarySeason{}, false
}

// Viewer is the authenticated tracker account.
type Viewer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListEntry is one row of the viewer's tracker list.
type ListEntry struct {
	CatalogID int         `json:"catalog_id"`
	Status    WatchStatus `json:"status"`
	Progress  int         `json:"progress"`
}

// SyncRun records one execution of the sync loop.
type SyncRun struct {
	ID           string     `json:"id"`
	Sequence     int        `json:"sequence"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	DryRun       bool       `json:"dry_run"`
	SeriesCount  int        `json:"series_count"`
	MappingCount int        `json:"mapping_count"`
	UpdatedCount int        `json:"updated_count"`
	SkippedCount int        `json:"skipped_count"`
	FailedCount  int        `json:"failed_count"`
	Error        string     `json:"error,omitempty"`
}

// Duration returns how long the run took, or zero if it has not finished.
func (r SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PlannedUpdate is a computed status that differs from the tracker list.
type PlannedUpdate struct {
	CatalogID int         `json:"catalog_id"`
	Title     string      `json:"title"`
	Status    WatchStatus `json:"status"`
	Progress  int         `json:"progress"`
	Total     *int        `json:"total,omitempty"`
	Previous  *ListEntry  `json:"previous,omitempty"`
	Applied   bool        `json:"applied"`
	Err       error       `json:"-"`
}
