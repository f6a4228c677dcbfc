package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
	tu "github.com/desertthunder/anisync/internal/testing"
)

type fakeLock struct {
	err      error
	acquired int
	released int
}

func (l *fakeLock) Acquire() error {
	if l.err != nil {
		return l.err
	}
	l.acquired++
	return nil
}

func (l *fakeLock) Release() error {
	l.released++
	return nil
}

type fakeRecorder struct {
	created  []models.SyncRun
	finished []models.SyncRun
}

func (r *fakeRecorder) Create(run *models.SyncRun) error {
	run.ID = fmt.Sprintf("run-%d", len(r.created)+1)
	r.created = append(r.created, *run)
	return nil
}

func (r *fakeRecorder) Finish(run *models.SyncRun) error {
	r.finished = append(r.finished, *run)
	return nil
}

type syncFixture struct {
	now      time.Time
	library  *tu.MockLibrary
	list     *tu.MockList
	catalog  *tu.MockCatalog
	store    *tu.MemoryMappingStore
	runs     *fakeRecorder
	lock     *fakeLock
	engine   *SyncEngine
	progress chan ProgressUpdate
}

// newSyncFixture builds a library with three series:
//   - Frieren: fully watched, listed as current on the tracker
//   - Dandadan: unwatched, not on the tracker
//   - Mushishi: abandoned 40 days ago, already dropped on the tracker
func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f := &syncFixture{
		now: now,
		library: &tu.MockLibrary{Series: []models.LibrarySeries{
			librarySeries("frieren", "Frieren", tu.Season("f1", 1, "Frieren", 13, 13, now.Add(-24*time.Hour))),
			librarySeries("dandadan", "Dandadan", tu.Season("d1", 1, "Dandadan", 12, 0, now)),
			librarySeries("mushishi", "Mushishi", tu.Season("m1", 1, "Mushishi", 26, 5, now.Add(-40*24*time.Hour))),
		}},
		list: &tu.MockList{
			User: models.Viewer{ID: 42, Name: "viewer"},
			Entries: []models.ListEntry{
				{CatalogID: 1, Status: models.Current, Progress: 10},
				{CatalogID: 3, Status: models.Dropped, Progress: 5},
			},
		},
		catalog:  tu.NewMockCatalog(),
		store:    &tu.MemoryMappingStore{},
		runs:     &fakeRecorder{},
		lock:     &fakeLock{},
		progress: make(chan ProgressUpdate, 100),
	}
	f.catalog.Searches["Frieren"] = []models.CatalogEntry{catalogEntry(1, "Frieren", 13, models.FormatTV, 0)}
	f.catalog.Searches["Dandadan"] = []models.CatalogEntry{catalogEntry(2, "Dandadan", 12, models.FormatTV, 0)}
	f.catalog.Searches["Mushishi"] = []models.CatalogEntry{catalogEntry(3, "Mushishi", 26, models.FormatTV, 0)}

	mapper := NewMappingEngine(f.catalog, f.store, nil, 0, 0)
	f.engine = NewSyncEngine(f.library, f.list, mapper, f.runs, f.lock, nil)
	f.engine.SetClock(func() time.Time { return now })
	return f
}

func TestSyncEngineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("applies changed statuses", func(t *testing.T) {
		f := newSyncFixture(t)

		result, err := f.engine.Run(ctx, f.progress, SyncOpts{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if len(f.list.Updated) != 1 {
			t.Fatalf("expected 1 update, got %d: %+v", len(f.list.Updated), f.list.Updated)
		}
		got := f.list.Updated[0]
		if got.CatalogID != 1 || got.Status != models.Completed || got.Progress != 13 {
			t.Errorf("unexpected update: %+v", got)
		}

		if len(result.Plan) != 1 || !result.Plan[0].Applied {
			t.Errorf("expected one applied plan entry, got %+v", result.Plan)
		}
		if result.Plan[0].Title != "Frieren (season 1)" {
			t.Errorf("unexpected title %q", result.Plan[0].Title)
		}
		if prev := result.Plan[0].Previous; prev == nil || prev.Status != models.Current {
			t.Errorf("expected previous tracker entry to be attached, got %+v", prev)
		}
		if len(result.Resolutions) != 3 {
			t.Errorf("expected 3 resolutions, got %d", len(result.Resolutions))
		}

		run := result.Run
		if run.SeriesCount != 3 || run.MappingCount != 3 || run.UpdatedCount != 1 || run.SkippedCount != 2 || run.FailedCount != 0 {
			t.Errorf("unexpected run summary: %+v", run)
		}
		if run.FinishedAt == nil || run.DryRun {
			t.Errorf("expected a finished live run, got %+v", run)
		}
	})

	t.Run("records the run", func(t *testing.T) {
		f := newSyncFixture(t)

		result, err := f.engine.Run(ctx, nil, SyncOpts{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(f.runs.created) != 1 || len(f.runs.finished) != 1 {
			t.Fatalf("expected one created and finished run, got %d/%d", len(f.runs.created), len(f.runs.finished))
		}
		if f.runs.finished[0].ID != "run-1" || result.Run.ID != "run-1" {
			t.Errorf("expected run id to carry through, got %q", f.runs.finished[0].ID)
		}
		if f.lock.acquired != 1 || f.lock.released != 1 {
			t.Errorf("expected lock to be acquired and released once, got %d/%d", f.lock.acquired, f.lock.released)
		}
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		f := newSyncFixture(t)

		result, err := f.engine.Run(ctx, nil, SyncOpts{DryRun: true})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(f.list.Updated) != 0 {
			t.Errorf("expected no tracker writes, got %+v", f.list.Updated)
		}
		if len(result.Pending()) != 1 {
			t.Errorf("expected one pending update, got %d", len(result.Pending()))
		}
		if !result.Run.DryRun || result.Run.UpdatedCount != 0 {
			t.Errorf("unexpected dry run summary: %+v", result.Run)
		}
	})

	t.Run("update planning pushes unwatched titles", func(t *testing.T) {
		f := newSyncFixture(t)

		if _, err := f.engine.Run(ctx, nil, SyncOpts{UpdatePlanning: true}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		statuses := map[int]models.WatchStatus{}
		for _, u := range f.list.Updated {
			statuses[u.CatalogID] = u.Status
		}
		if len(statuses) != 2 || statuses[1] != models.Completed || statuses[2] != models.Planning {
			t.Errorf("expected Frieren completed and Dandadan planning, got %v", statuses)
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		f := newSyncFixture(t)

		if _, err := f.engine.Run(ctx, nil, SyncOpts{}); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		f.list.Entries = append(f.list.Entries[1:], f.list.Updated...)
		f.list.Updated = nil
		saves := f.store.Saves

		result, err := f.engine.Run(ctx, nil, SyncOpts{})
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if len(result.Plan) != 0 || len(f.list.Updated) != 0 || f.store.Saves != saves {
			t.Errorf("expected nothing to change, plan=%+v saves=%d", result.Plan, f.store.Saves-saves)
		}
	})

	t.Run("ignored mappings are excluded", func(t *testing.T) {
		f := newSyncFixture(t)
		ignored := models.NewMapping("frieren", "f1", 1, 13, 1, models.IntPtr(13))
		ignored.Ignored = true
		if err := f.store.Save(&ignored); err != nil {
			t.Fatal(err)
		}

		result, err := f.engine.Run(ctx, nil, SyncOpts{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(f.list.Updated) != 0 {
			t.Errorf("expected ignored title to be left alone, got %+v", f.list.Updated)
		}
		if result.Run.MappingCount != 2 {
			t.Errorf("expected 2 active mappings, got %d", result.Run.MappingCount)
		}
	})

	t.Run("lock held", func(t *testing.T) {
		f := newSyncFixture(t)
		f.lock.err = shared.ErrSyncInProgress

		_, err := f.engine.Run(ctx, nil, SyncOpts{})
		if !errors.Is(err, shared.ErrSyncInProgress) {
			t.Errorf("expected ErrSyncInProgress, got %v", err)
		}
		if len(f.runs.created) != 0 || len(f.catalog.Calls) != 0 {
			t.Errorf("expected nothing to run without the lock")
		}
	})

	t.Run("series failures do not stop the run", func(t *testing.T) {
		f := newSyncFixture(t)
		f.catalog.SearchErr = errors.New("catalog down")

		result, err := f.engine.Run(ctx, f.progress, SyncOpts{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(result.SeriesErrors) != 3 || result.Run.FailedCount != 3 {
			t.Errorf("expected 3 series errors, got %d (failed=%d)", len(result.SeriesErrors), result.Run.FailedCount)
		}
		if len(result.Plan) != 0 {
			t.Errorf("expected empty plan, got %+v", result.Plan)
		}
	})

	t.Run("update failures are recorded per entry", func(t *testing.T) {
		f := newSyncFixture(t)
		f.list.UpdateErr = map[int]error{1: errors.New("rate limited")}

		result, err := f.engine.Run(ctx, nil, SyncOpts{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(result.Plan) != 1 || result.Plan[0].Err == nil || result.Plan[0].Applied {
			t.Errorf("expected failed plan entry, got %+v", result.Plan)
		}
		if result.Run.FailedCount != 1 || result.Run.UpdatedCount != 0 {
			t.Errorf("unexpected run summary: %+v", result.Run)
		}
	})

	t.Run("library errors abort and are recorded", func(t *testing.T) {
		f := newSyncFixture(t)
		f.library.Err = errors.New("plex offline")

		result, err := f.engine.Run(ctx, nil, SyncOpts{})
		if err == nil {
			t.Fatal("expected error")
		}
		if result == nil || result.Run.Error == "" {
			t.Fatalf("expected failed run to be summarized, got %+v", result)
		}
		if len(f.runs.finished) != 1 || f.runs.finished[0].Error == "" {
			t.Errorf("expected failed run to be recorded")
		}
	})

	t.Run("list errors abort", func(t *testing.T) {
		f := newSyncFixture(t)
		f.list.ViewerErr = shared.ErrNotAuthenticated

		if _, err := f.engine.Run(ctx, nil, SyncOpts{}); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newSyncFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := f.engine.Run(cctx, nil, SyncOpts{}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("progress phases", func(t *testing.T) {
		f := newSyncFixture(t)
		if _, err := f.engine.Run(ctx, f.progress, SyncOpts{}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		close(f.progress)

		seen := map[Phase]int{}
		for u := range f.progress {
			seen[u.Phase]++
		}
		for _, phase := range []Phase{FetchLibrary, MapSeries, FetchList, ComputeStatus, ApplyUpdates} {
			if seen[phase] == 0 {
				t.Errorf("expected progress for phase %s", phase)
			}
		}
		if seen[MapSeries] != 3 {
			t.Errorf("expected one map update per series, got %d", seen[MapSeries])
		}
	})

	t.Run("uninitialized engine", func(t *testing.T) {
		engine := NewSyncEngine(nil, nil, nil, nil, nil, nil)
		if _, err := engine.Run(ctx, nil, SyncOpts{}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestSyncEnginePlanAndApply(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	result, err := f.engine.Plan(ctx, nil, SyncOpts{})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(f.list.Updated) != 0 || len(f.runs.created) != 0 {
		t.Errorf("expected Plan to neither write nor record")
	}

	applied, err := f.engine.Apply(ctx, nil, result.Plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(applied) != 1 || !applied[0].Applied {
		t.Errorf("expected the planned update to be applied, got %+v", applied)
	}

	again, err := f.engine.Apply(ctx, nil, applied)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(f.list.Updated) != 1 || len(again) != 1 {
		t.Errorf("expected applied updates to be skipped, got %d writes", len(f.list.Updated))
	}
}

func TestNeedsUpdate(t *testing.T) {
	current := &models.ListEntry{CatalogID: 1, Status: models.Current, Progress: 3}

	tests := []struct {
		name           string
		res            Resolution
		previous       *models.ListEntry
		updatePlanning bool
		want           bool
	}{
		{"new entry", Resolution{Status: models.Current, Progress: 1}, nil, false, true},
		{"progress changed", Resolution{Status: models.Current, Progress: 4}, current, false, true},
		{"status changed", Resolution{Status: models.Paused, Progress: 3}, current, false, true},
		{"unchanged", Resolution{Status: models.Current, Progress: 3}, current, false, false},
		{"planning skipped", Resolution{Status: models.Planning}, nil, false, false},
		{"planning pushed", Resolution{Status: models.Planning}, nil, true, true},
		{"planning already listed", Resolution{Status: models.Planning}, &models.ListEntry{Status: models.Planning}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsUpdate(tt.res, tt.previous, tt.updatePlanning); got != tt.want {
				t.Errorf("NeedsUpdate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCatalogIDsAndDescribe(t *testing.T) {
	series := []models.LibrarySeries{librarySeries("s1", "Show", tu.Season("a2", 2, "Show", 3, 0, time.Time{}))}
	mappings := []models.Mapping{
		models.NewMapping("s1", "a2", 0, 1, 5, nil),
		models.NewMapping("s1", "a2", 2, 1, 6, nil),
		models.NewMapping("s1", "a2", 3, 1, 5, nil),
	}

	ids := CatalogIDs(mappings)
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 6 {
		t.Errorf("expected [5 6], got %v", ids)
	}

	if got := DescribeMapping(series, mappings, 6); got != "Show (season 2)" {
		t.Errorf("unexpected description %q", got)
	}
	if got := DescribeMapping(series, mappings, 99); got != "catalog #99" {
		t.Errorf("unexpected fallback %q", got)
	}
}
