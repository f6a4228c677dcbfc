package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
)

const syncRunColumns = `id, sequence, started_at, finished_at, dry_run, series_count, mapping_count, updated_count, skipped_count, failed_count, error`

// SyncRunRepository records executions of the sync loop.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a started run, assigning its id and sequence.
func (r *SyncRunRepository) Create(run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = shared.GenerateID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	seq, err := NextSequence(r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	run.Sequence = int(seq)

	_, err = r.db.Exec(
		`INSERT INTO sync_runs (id, sequence, started_at, dry_run) VALUES (?, ?, ?, ?)`,
		run.ID, run.Sequence, run.StartedAt, boolToInt(run.DryRun),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// Finish stores the counters and outcome of a run and stamps its finish time.
func (r *SyncRunRepository) Finish(run *models.SyncRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	result, err := r.db.Exec(`
		UPDATE sync_runs
		SET finished_at = ?, series_count = ?, mapping_count = ?, updated_count = ?,
			skipped_count = ?, failed_count = ?, error = ?
		WHERE id = ?
	`,
		*run.FinishedAt,
		run.SeriesCount,
		run.MappingCount,
		run.UpdatedCount,
		run.SkippedCount,
		run.FailedCount,
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sync run not found: %s", run.ID)
	}
	return nil
}

// List returns the most recent runs, newest first. A non-positive limit returns every run.
func (r *SyncRunRepository) List(limit int) ([]models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs ORDER BY sequence DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SyncRun{}
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

// Latest returns the most recent run, or nil when none has been recorded.
func (r *SyncRunRepository) Latest() (*models.SyncRun, error) {
	row := r.db.QueryRow(`SELECT ` + syncRunColumns + ` FROM sync_runs ORDER BY sequence DESC LIMIT 1`)
	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func scanSyncRun(s scanner) (*models.SyncRun, error) {
	var (
		run        models.SyncRun
		finishedAt sql.NullTime
		dryRun     int
	)

	err := s.Scan(
		&run.ID,
		&run.Sequence,
		&run.StartedAt,
		&finishedAt,
		&dryRun,
		&run.SeriesCount,
		&run.MappingCount,
		&run.UpdatedCount,
		&run.SkippedCount,
		&run.FailedCount,
		&run.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	run.DryRun = dryRun != 0
	return &run, nil
}
