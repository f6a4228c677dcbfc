package repositories

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for want := int64(1); want <= 3; want++ {
		got, err := NextSequence(db, "mappings")
		if err != nil {
			t.Fatalf("NextSequence failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(db, "missing"); err == nil {
		t.Error("expected error for table without a sequence")
	}
}

func TestMappingRepository(t *testing.T) {
	t.Run("Save", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		m := models.NewMapping("series-1", "season-1", 0, 12, 101, models.IntPtr(12))

		if err := repo.Save(&m); err != nil {
			t.Fatalf("failed to save mapping: %v", err)
		}

		id, ok := m.ID.Value()
		if !ok || id != 1 {
			t.Errorf("expected persisted id 1, got %s", m.ID)
		}
	})

	t.Run("SaveTwice", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		m := models.NewMapping("series-1", "season-1", 0, 12, 101, nil)
		if err := repo.Save(&m); err != nil {
			t.Fatalf("failed to save mapping: %v", err)
		}

		err := repo.Save(&m)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("SaveMissingIDs", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		m := models.NewMapping("", "season-1", 0, 12, 101, nil)
		if err := repo.Save(&m); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		m := models.NewMapping("series-1", "season-1", 13, 12, 202, nil)
		if err := repo.Save(&m); err != nil {
			t.Fatalf("failed to save mapping: %v", err)
		}

		id, _ := m.ID.Value()
		got, err := repo.Get(id)
		if err != nil {
			t.Fatalf("failed to get mapping: %v", err)
		}

		if got.SeriesID != "series-1" || got.SeasonID != "season-1" {
			t.Errorf("unexpected ids: %+v", got)
		}
		if got.EpisodeOffset != 13 || got.SeasonLength != 12 || got.CatalogID != 202 {
			t.Errorf("unexpected range: %+v", got)
		}
		if got.CatalogEpisodes != nil {
			t.Errorf("expected nil catalog episodes, got %d", *got.CatalogEpisodes)
		}
		if !got.Enabled || got.Ignored {
			t.Errorf("expected enabled, not ignored mapping")
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		if _, err := repo.Get(42); !errors.Is(err, shared.ErrMappingNotFound) {
			t.Errorf("expected ErrMappingNotFound, got %v", err)
		}
	})

	t.Run("GetMappingsForSeries", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		for _, m := range []models.Mapping{
			models.NewMapping("series-1", "season-1", 0, 12, 1, models.IntPtr(12)),
			models.NewMapping("series-2", "season-9", 0, 24, 9, models.IntPtr(24)),
			models.NewMapping("series-1", "season-1", 13, 12, 2, models.IntPtr(12)),
		} {
			if err := repo.Save(&m); err != nil {
				t.Fatalf("failed to save mapping: %v", err)
			}
		}

		got, err := repo.GetMappingsForSeries("series-1")
		if err != nil {
			t.Fatalf("failed to list mappings: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 mappings, got %d", len(got))
		}
		if got[0].CatalogID != 1 || got[1].CatalogID != 2 {
			t.Errorf("expected creation order, got %d then %d", got[0].CatalogID, got[1].CatalogID)
		}
		if got[0].CatalogEpisodes == nil || *got[0].CatalogEpisodes != 12 {
			t.Errorf("expected catalog episodes to round trip")
		}

		all, err := repo.GetAllMappings()
		if err != nil {
			t.Fatalf("failed to list all mappings: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("expected 3 mappings, got %d", len(all))
		}

		none, err := repo.GetMappingsForSeries("series-404")
		if err != nil {
			t.Fatalf("failed to list mappings: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected empty result, got %d", len(none))
		}
	})

	t.Run("ListCriteria", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		a := models.NewMapping("series-1", "season-1", 0, 12, 1, nil)
		b := models.NewMapping("series-1", "season-2", 0, 12, 2, nil)
		for _, m := range []*models.Mapping{&a, &b} {
			if err := repo.Save(m); err != nil {
				t.Fatalf("failed to save mapping: %v", err)
			}
		}
		id, _ := b.ID.Value()
		if err := repo.SetIgnored(id, true); err != nil {
			t.Fatalf("failed to ignore mapping: %v", err)
		}

		tests := []struct {
			name     string
			criteria map[string]any
			want     int
		}{
			{"season", map[string]any{"season_id": "season-2"}, 1},
			{"catalog", map[string]any{"catalog_id": 1}, 1},
			{"ignored", map[string]any{"ignored": true}, 1},
			{"not ignored", map[string]any{"ignored": false}, 1},
			{"empty", map[string]any{}, 2},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.List(tt.criteria)
				if err != nil {
					t.Fatalf("List failed: %v", err)
				}
				if len(got) != tt.want {
					t.Errorf("expected %d mappings, got %d", tt.want, len(got))
				}
			})
		}
	})

	t.Run("Flags", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		m := models.NewMapping("series-1", "season-1", 0, 12, 1, nil)
		if err := repo.Save(&m); err != nil {
			t.Fatalf("failed to save mapping: %v", err)
		}
		id, _ := m.ID.Value()

		if err := repo.SetEnabled(id, false); err != nil {
			t.Fatalf("SetEnabled failed: %v", err)
		}
		if err := repo.SetIgnored(id, true); err != nil {
			t.Fatalf("SetIgnored failed: %v", err)
		}

		got, err := repo.Get(id)
		if err != nil {
			t.Fatalf("failed to get mapping: %v", err)
		}
		if got.Enabled || !got.Ignored || got.Active() {
			t.Errorf("expected disabled, ignored mapping, got %+v", got)
		}

		if err := repo.SetEnabled(999, true); !errors.Is(err, shared.ErrMappingNotFound) {
			t.Errorf("expected ErrMappingNotFound, got %v", err)
		}
	})

	t.Run("DeleteForSeries", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMappingRepository(db)
		for _, m := range []models.Mapping{
			models.NewMapping("series-1", "season-1", 0, 12, 1, nil),
			models.NewMapping("series-1", "season-2", 0, 12, 2, nil),
			models.NewMapping("series-2", "season-3", 0, 12, 3, nil),
		} {
			if err := repo.Save(&m); err != nil {
				t.Fatalf("failed to save mapping: %v", err)
			}
		}

		n, err := repo.DeleteForSeries("series-1")
		if err != nil {
			t.Fatalf("DeleteForSeries failed: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 deleted rows, got %d", n)
		}

		all, _ := repo.GetAllMappings()
		if len(all) != 1 || all[0].SeriesID != "series-2" {
			t.Errorf("unexpected remaining mappings: %+v", all)
		}
	})
}

func TestCatalogCacheRepository(t *testing.T) {
	entry := models.CatalogEntry{
		ID:       101,
		Title:    models.CatalogTitle{English: "Attack on Titan", Romaji: "Shingeki no Kyojin"},
		Episodes: models.IntPtr(25),
		Format:   models.FormatTV,
		Relations: []models.Relation{
			{Type: models.RelationSequel, Node: models.CatalogNode{ID: 102, Format: models.FormatTV}},
		},
	}

	t.Run("Search", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCatalogCacheRepository(db, 0)
		if _, err := repo.GetSearch("Attack on Titan"); !errors.Is(err, shared.ErrCacheMiss) {
			t.Fatalf("expected ErrCacheMiss, got %v", err)
		}

		if err := repo.PutSearch("Attack on Titan", []models.CatalogEntry{entry}); err != nil {
			t.Fatalf("PutSearch failed: %v", err)
		}

		got, err := repo.GetSearch("  attack ON   titan ")
		if err != nil {
			t.Fatalf("GetSearch failed: %v", err)
		}
		if len(got) != 1 || got[0].ID != 101 {
			t.Fatalf("unexpected results: %+v", got)
		}
		if !got[0].HasRelation(models.RelationSequel) {
			t.Error("expected relations to be cached")
		}
	})

	t.Run("Entry", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCatalogCacheRepository(db, 0)
		if err := repo.PutEntry(entry); err != nil {
			t.Fatalf("PutEntry failed: %v", err)
		}

		entry.Episodes = models.IntPtr(26)
		if err := repo.PutEntry(entry); err != nil {
			t.Fatalf("PutEntry replace failed: %v", err)
		}

		got, err := repo.GetEntry(101)
		if err != nil {
			t.Fatalf("GetEntry failed: %v", err)
		}
		if got.EpisodeCount() != 26 {
			t.Errorf("expected replaced entry with 26 episodes, got %d", got.EpisodeCount())
		}

		if _, err := repo.GetEntry(999); !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("expected ErrCacheMiss, got %v", err)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCatalogCacheRepository(db, time.Hour)
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		repo.now = func() time.Time { return base }

		if err := repo.PutEntry(entry); err != nil {
			t.Fatalf("PutEntry failed: %v", err)
		}
		if _, err := repo.GetEntry(entry.ID); err != nil {
			t.Fatalf("expected fresh entry, got %v", err)
		}

		repo.now = func() time.Time { return base.Add(2 * time.Hour) }
		if _, err := repo.GetEntry(entry.ID); !errors.Is(err, shared.ErrCacheMiss) {
			t.Errorf("expected expired entry to miss, got %v", err)
		}
	})

	t.Run("ClearAndStats", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewCatalogCacheRepository(db, 0)
		_ = repo.PutEntry(entry)
		_ = repo.PutSearch("a", []models.CatalogEntry{entry})
		_ = repo.PutSearch("b", nil)

		stats, err := repo.Stats()
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Searches != 2 || stats.Entries != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}

		n, err := repo.Clear()
		if err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 cleared rows, got %d", n)
		}

		stats, _ = repo.Stats()
		if stats.Searches != 0 || stats.Entries != 0 {
			t.Errorf("expected empty cache, got %+v", stats)
		}
	})
}

func TestSyncRunRepository(t *testing.T) {
	t.Run("CreateAndFinish", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncRunRepository(db)
		run := &models.SyncRun{DryRun: true}
		if err := repo.Create(run); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if run.ID == "" || run.Sequence != 1 {
			t.Fatalf("expected id and sequence 1, got %q/%d", run.ID, run.Sequence)
		}

		run.SeriesCount = 3
		run.MappingCount = 5
		run.UpdatedCount = 2
		run.FailedCount = 1
		run.Error = "catalog request failed"
		if err := repo.Finish(run); err != nil {
			t.Fatalf("Finish failed: %v", err)
		}

		latest, err := repo.Latest()
		if err != nil {
			t.Fatalf("Latest failed: %v", err)
		}
		if latest == nil || latest.ID != run.ID {
			t.Fatalf("expected latest run %s, got %+v", run.ID, latest)
		}
		if !latest.DryRun || latest.FinishedAt == nil {
			t.Errorf("expected finished dry run, got %+v", latest)
		}
		if latest.UpdatedCount != 2 || latest.MappingCount != 5 || latest.Error == "" {
			t.Errorf("counters did not round trip: %+v", latest)
		}
	})

	t.Run("FinishUnknown", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncRunRepository(db)
		if err := repo.Finish(&models.SyncRun{ID: "missing"}); err == nil {
			t.Error("expected error for unknown run")
		}
	})

	t.Run("List", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncRunRepository(db)
		if latest, err := repo.Latest(); err != nil || latest != nil {
			t.Fatalf("expected no runs, got %+v (%v)", latest, err)
		}

		for range 3 {
			if err := repo.Create(&models.SyncRun{}); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
		}

		runs, err := repo.List(2)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].Sequence != 3 || runs[1].Sequence != 2 {
			t.Errorf("expected newest first, got %d then %d", runs[0].Sequence, runs[1].Sequence)
		}

		all, _ := repo.List(0)
		if len(all) != 3 {
			t.Errorf("expected 3 runs, got %d", len(all))
		}
	})
}
