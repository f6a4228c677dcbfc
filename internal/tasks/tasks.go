package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/services"
	"github.com/desertthunder/anisync/internal/shared"
)

// Locker guards a sync against concurrent writers. [shared.RunLock] is the production implementation.
type Locker interface {
	Acquire() error
	Release() error
}

// RunRecorder stores the history of sync runs. [repositories.SyncRunRepository] is the production implementation.
type RunRecorder interface {
	Create(run *models.SyncRun) error
	Finish(run *models.SyncRun) error
}

// SyncOpts controls a single sync.
type SyncOpts struct {
	SectionIDs     []string // Library sections to read; empty reads every show section
	DryRun         bool     // Compute the plan without writing to the tracker
	UpdatePlanning bool     // Also push titles that have no watched episodes
}

// SeriesError records a series whose mapping failed. The sync continues past it.
type SeriesError struct {
	SeriesID string
	Title    string
	Err      error
}

func (e SeriesError) Error() string {
	return fmt.Sprintf("%s: %v", e.Title, e.Err)
}

// SyncResult contains everything a sync computed and did.
type SyncResult struct {
	Run          models.SyncRun
	Plan         []models.PlannedUpdate // Status changes, with Applied/Err set once applied
	Resolutions  []Resolution           // Computed status of every mapped catalog id
	SeriesErrors []SeriesError
}

// Pending returns the planned updates that have not been applied.
func (r *SyncResult) Pending() []models.PlannedUpdate {
	var pending []models.PlannedUpdate
	for _, u := range r.Plan {
		if !u.Applied {
			pending = append(pending, u)
		}
	}
	return pending
}

// SyncEngine pushes the status derived from the library to the tracker list.
type SyncEngine struct {
	library services.LibraryClient
	list    services.ListClient
	mapper  *MappingEngine
	runs    RunRecorder
	lock    Locker
	logger  *log.Logger
	now     func() time.Time
}

// NewSyncEngine creates a SyncEngine. runs and lock are optional.
func NewSyncEngine(library services.LibraryClient, list services.ListClient, mapper *MappingEngine, runs RunRecorder, lock Locker, logger *log.Logger) *SyncEngine {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &SyncEngine{
		library: library,
		list:    list,
		mapper:  mapper,
		runs:    runs,
		lock:    lock,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for status thresholds.
func (e *SyncEngine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *SyncEngine) acquire() (func(), error) {
	if e.lock == nil {
		return func() {}, nil
	}
	if err := e.lock.Acquire(); err != nil {
		return nil, err
	}
	return func() {
		if err := e.lock.Release(); err != nil {
			e.logger.Warn("failed to release sync lock", "error", err)
		}
	}, nil
}

// Run maps the library, computes every status and applies the changes unless opts.DryRun is set.
//
// The run is recorded when a [RunRecorder] is configured. It returns [shared.ErrSyncInProgress]
// when another process holds the lock.
func (e *SyncEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error) {
	release, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	run := models.SyncRun{DryRun: opts.DryRun, StartedAt: e.now().UTC()}
	if e.runs != nil {
		if err := e.runs.Create(&run); err != nil {
			return nil, fmt.Errorf("failed to record sync run: %w", err)
		}
	}

	result, err := e.plan(ctx, progress, opts)
	if result == nil {
		result = &SyncResult{}
	}
	if err == nil && !opts.DryRun {
		e.apply(ctx, progress, result.Plan)
	}

	result.Run = e.summarize(run, result, err)
	if e.runs != nil {
		if ferr := e.runs.Finish(&result.Run); ferr != nil {
			e.logger.Error("failed to finish sync run", "run", result.Run.ID, "error", ferr)
		}
	}

	return result, err
}

// Plan computes the status changes without writing to the tracker.
func (e *SyncEngine) Plan(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error) {
	release, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return e.plan(ctx, progress, opts)
}

// Apply writes the given updates to the tracker and returns them with Applied or Err set.
func (e *SyncEngine) Apply(ctx context.Context, progress chan<- ProgressUpdate, updates []models.PlannedUpdate) ([]models.PlannedUpdate, error) {
	release, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	e.apply(ctx, progress, updates)
	return updates, nil
}

func (e *SyncEngine) plan(ctx context.Context, progress chan<- ProgressUpdate, opts SyncOpts) (*SyncResult, error) {
	if e.library == nil || e.list == nil || e.mapper == nil {
		return nil, fmt.Errorf("%w: sync engine not fully initialized", shared.ErrServiceUnavailable)
	}

	result := &SyncResult{}

	sendProgress(progress, fetchLibraryUpdate())
	snapshot, err := e.library.Snapshot(ctx, opts.SectionIDs)
	if err != nil {
		return result, fmt.Errorf("failed to read library: %w", err)
	}
	result.Run.SeriesCount = len(snapshot)
	sendProgress(progress, libraryFetchedUpdate(len(snapshot)))

	for i, series := range snapshot {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		sendProgress(progress, mapSeriesUpdate(i+1, len(snapshot), series))
		if _, err := e.mapper.MapSeries(ctx, series); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			e.logger.Error("failed to map series", "series", series.Title, "error", err)
			result.SeriesErrors = append(result.SeriesErrors, SeriesError{SeriesID: series.ID, Title: series.Title, Err: err})
			sendProgress(progress, mapSeriesFailedUpdate(i+1, len(snapshot), series, err))
		}
	}

	relevant := ActiveMappings(e.mapper.GetAllRelevantMappings(snapshot))
	all := ActiveMappings(e.mapper.GetAllMappings())
	result.Run.MappingCount = len(relevant)

	sendProgress(progress, fetchListUpdate(nil))
	viewer, err := e.list.Viewer(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to fetch viewer: %w", err)
	}
	sendProgress(progress, fetchListUpdate(viewer))

	entries, err := e.list.GetList(ctx, viewer.ID)
	if err != nil {
		return result, fmt.Errorf("failed to fetch list: %w", err)
	}
	current := make(map[int]models.ListEntry, len(entries))
	for _, entry := range entries {
		current[entry.CatalogID] = entry
	}

	now := e.now()
	ids := CatalogIDs(relevant)
	for i, id := range ids {
		res := ResolveStatus(snapshot, all, id, now)
		res.Title = DescribeMapping(snapshot, relevant, id)
		result.Resolutions = append(result.Resolutions, res)
		sendProgress(progress, computeStatusUpdate(i+1, len(ids), res))

		var previous *models.ListEntry
		if entry, ok := current[id]; ok {
			previous = &entry
		}

		if !NeedsUpdate(res, previous, opts.UpdatePlanning) {
			result.Run.SkippedCount++
			continue
		}

		result.Plan = append(result.Plan, models.PlannedUpdate{
			CatalogID: id,
			Title:     res.Title,
			Status:    res.Status,
			Progress:  res.Progress,
			Total:     res.Total,
			Previous:  previous,
		})
	}

	return result, nil
}

func (e *SyncEngine) apply(ctx context.Context, progress chan<- ProgressUpdate, updates []models.PlannedUpdate) {
	for i := range updates {
		u := &updates[i]
		if u.Applied {
			continue
		}
		if err := ctx.Err(); err != nil {
			u.Err = err
			continue
		}

		_, err := e.list.UpdateListEntry(ctx, models.ListEntry{CatalogID: u.CatalogID, Status: u.Status, Progress: u.Progress})
		if err != nil {
			e.logger.Error("failed to update list entry", "catalog_id", u.CatalogID, "error", err)
			u.Err = err
		} else {
			e.logger.Info("updated list entry", "title", u.Title, "status", u.Status, "progress", u.Progress)
			u.Applied = true
		}
		sendProgress(progress, applyUpdate(i+1, len(updates), *u))
	}
}

func (e *SyncEngine) summarize(run models.SyncRun, result *SyncResult, err error) models.SyncRun {
	finished := e.now().UTC()
	run.FinishedAt = &finished
	run.SeriesCount = result.Run.SeriesCount
	run.MappingCount = result.Run.MappingCount
	run.SkippedCount = result.Run.SkippedCount
	run.FailedCount = len(result.SeriesErrors)
	for _, u := range result.Plan {
		switch {
		case u.Applied:
			run.UpdatedCount++
		case u.Err != nil:
			run.FailedCount++
		}
	}
	if err != nil {
		run.Error = err.Error()
	}
	return run
}

// ActiveMappings drops disabled and ignored mappings.
func ActiveMappings(mappings []models.Mapping) []models.Mapping {
	active := make([]models.Mapping, 0, len(mappings))
	for _, m := range mappings {
		if m.Active() {
			active = append(active, m)
		}
	}
	return active
}

// CatalogIDs returns the distinct catalog ids of mappings in first-seen order.
func CatalogIDs(mappings []models.Mapping) []int {
	seen := make(map[int]bool, len(mappings))
	ids := []int{}
	for _, m := range mappings {
		if !seen[m.CatalogID] {
			seen[m.CatalogID] = true
			ids = append(ids, m.CatalogID)
		}
	}
	return ids
}

// NeedsUpdate reports whether a computed status should be written over the tracker's entry.
//
// Planning is only pushed when updatePlanning is set. An entry already at the same status and
// progress is left alone.
func NeedsUpdate(res Resolution, previous *models.ListEntry, updatePlanning bool) bool {
	if res.Status == models.Planning && !updatePlanning {
		return false
	}
	if previous != nil && previous.Status == res.Status && previous.Progress == res.Progress {
		return false
	}
	return true
}

// DescribeMapping names a catalog id by the first library season mapped to it.
func DescribeMapping(allSeries []models.LibrarySeries, mappings []models.Mapping, catalogID int) string {
	for _, m := range mappings {
		if m.CatalogID != catalogID {
			continue
		}
		for _, series := range allSeries {
			if season, ok := series.Season(m.SeasonID); ok {
				return fmt.Sprintf("%s (season %d)", series.Title, season.Index)
			}
		}
	}
	return fmt.Sprintf("catalog #%d", catalogID)
}
