package tasks

import (
	"fmt"

	"github.com/desertthunder/anisync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchLibrary Phase = iota
	MapSeries
	FetchList
	ComputeStatus
	ApplyUpdates
)

func (p Phase) String() string {
	switch p {
	case FetchLibrary:
		return "fetch_library"
	case MapSeries:
		return "map_series"
	case FetchList:
		return "fetch_list"
	case ComputeStatus:
		return "compute_status"
	case ApplyUpdates:
		return "apply_updates"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchLibraryUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLibrary,
		Step:    0,
		Total:   1,
		Message: "Reading library from Plex...",
	}
}

func libraryFetchedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchLibrary,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d series", count),
	}
}

func mapSeriesUpdate(step, total int, series models.LibrarySeries) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MapSeries,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Mapping %s (%d/%d)...", series.Title, step, total),
		Data:    series.ID,
	}
}

func mapSeriesFailedUpdate(step, total int, series models.LibrarySeries, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MapSeries,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Failed to map %s: %v", series.Title, err),
		Data:    err,
	}
}

func fetchListUpdate(viewer *models.Viewer) ProgressUpdate {
	msg := "Fetching AniList user..."
	if viewer != nil {
		msg = fmt.Sprintf("Fetching list of %s...", viewer.Name)
	}
	return ProgressUpdate{
		Phase:   FetchList,
		Step:    0,
		Total:   1,
		Message: msg,
	}
}

func computeStatusUpdate(step, total int, res Resolution) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ComputeStatus,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Catalog %d: %s (%d episodes watched)", res.CatalogID, res.Status, res.Progress),
		Data:    res,
	}
}

func applyUpdate(step, total int, u models.PlannedUpdate) ProgressUpdate {
	msg := fmt.Sprintf("Updated %s: %s, progress %d", u.Title, u.Status, u.Progress)
	if u.Err != nil {
		msg = fmt.Sprintf("Failed to update %s: %v", u.Title, u.Err)
	}
	return ProgressUpdate{
		Phase:   ApplyUpdates,
		Step:    step,
		Total:   total,
		Message: msg,
		Data:    u,
	}
}
