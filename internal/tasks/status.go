package tasks

import (
	"time"

	"github.com/desertthunder/anisync/internal/models"
)

const (
	// DroppedAfter is how long a started title may go unwatched before it counts as dropped.
	DroppedAfter = 30 * 24 * time.Hour
	// PausedAfter is how long a started title may go unwatched before it counts as paused.
	PausedAfter = 14 * 24 * time.Hour
)

// GatherEpisodes collects the library episodes covered by the mappings of catalogID.
//
// Each mapping contributes the episodes of its season from its offset for its length. The range is
// clamped to the episodes the season actually has. The cached episode count of the first relevant
// mapping is returned alongside.
func GatherEpisodes(allSeries []models.LibrarySeries, allMappings []models.Mapping, catalogID int) ([]models.LibraryEpisode, *int) {
	var (
		episodes []models.LibraryEpisode
		total    *int
		found    bool
	)

	for _, m := range allMappings {
		if m.CatalogID != catalogID {
			continue
		}
		if !found {
			total, found = m.CatalogEpisodes, true
		}

		for _, series := range allSeries {
			for _, season := range series.Seasons {
				if season.ID != m.SeasonID {
					continue
				}
				start := min(m.FirstEpisode(), season.EpisodeCount())
				end := min(start+max(m.SeasonLength, 0), season.EpisodeCount())
				episodes = append(episodes, season.Episodes[start:end]...)
			}
		}
	}
	return episodes, total
}

// DeriveStatus computes the watch status and progress of a set of episodes at time now.
//
// Progress is the number of watched episodes. The first rule that matches wins:
//  1. total is known and equals progress: Completed
//  2. started and last watched at least [DroppedAfter] ago: Dropped
//  3. started and last watched at least [PausedAfter] ago: Paused
//  4. started and total unknown or not reached: Current
//  5. otherwise: Planning
func DeriveStatus(episodes []models.LibraryEpisode, total *int, now time.Time) (models.WatchStatus, int) {
	progress := 0
	var lastWatched *time.Time
	for _, ep := range episodes {
		if ep.Watched() {
			progress++
		}
		if ep.LastWatchedAt != nil && (lastWatched == nil || ep.LastWatchedAt.After(*lastWatched)) {
			lastWatched = ep.LastWatchedAt
		}
	}

	switch {
	case total != nil && *total == progress:
		return models.Completed, progress
	case progress > 0 && lastWatched != nil && !lastWatched.After(now.Add(-DroppedAfter)):
		return models.Dropped, progress
	case progress > 0 && lastWatched != nil && !lastWatched.After(now.Add(-PausedAfter)):
		return models.Paused, progress
	case progress > 0 && (total == nil || progress < *total):
		return models.Current, progress
	default:
		return models.Planning, progress
	}
}

// Resolution is the computed status of one catalog entry.
type Resolution struct {
	CatalogID int
	Title     string // Set by the sync engine from the first mapped library season
	Status    models.WatchStatus
	Progress  int
	Total     *int
	Episodes  int // Library episodes that contributed
}

// ResolveStatus gathers the episodes of catalogID and derives its status at now.
func ResolveStatus(allSeries []models.LibrarySeries, allMappings []models.Mapping, catalogID int, now time.Time) Resolution {
	episodes, total := GatherEpisodes(allSeries, allMappings, catalogID)
	status, progress := DeriveStatus(episodes, total, now)
	return Resolution{
		CatalogID: catalogID,
		Status:    status,
		Progress:  progress,
		Total:     total,
		Episodes:  len(episodes),
	}
}
