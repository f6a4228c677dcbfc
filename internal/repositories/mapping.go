package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
)

const mappingColumns = `id, series_id, season_id, episode_offset, season_length, catalog_id, catalog_episodes, enabled, ignored, created_at`

// MappingRepository stores [models.Mapping] rows.
//
// Rows are append-only apart from the enabled and ignored flags. Ids come from the mappings sequence.
type MappingRepository struct {
	db *sql.DB
}

// NewMappingRepository creates a new MappingRepository with the given database connection
func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Save inserts an unsaved mapping and sets its id to the assigned [models.Persisted] value.
func (r *MappingRepository) Save(m *models.Mapping) error {
	if m.ID.IsPersisted() {
		return fmt.Errorf("%w: mapping %s is already persisted", shared.ErrInvalidInput, m.ID)
	}
	if m.SeriesID == "" || m.SeasonID == "" {
		return fmt.Errorf("%w: mapping requires series and season ids", shared.ErrInvalidInput)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	id, err := NextSequence(r.db, "mappings")
	if err != nil {
		return fmt.Errorf("failed to generate mapping id: %w", err)
	}

	var episodes sql.NullInt64
	if m.CatalogEpisodes != nil {
		episodes = sql.NullInt64{Int64: int64(*m.CatalogEpisodes), Valid: true}
	}

	_, err = r.db.Exec(`
		INSERT INTO mappings (`+mappingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		m.SeriesID,
		m.SeasonID,
		m.EpisodeOffset,
		m.SeasonLength,
		m.CatalogID,
		episodes,
		boolToInt(m.Enabled),
		boolToInt(m.Ignored),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mapping: %w", err)
	}

	m.ID = models.Persisted(id)
	return nil
}

// Get retrieves a mapping by id.
func (r *MappingRepository) Get(id int64) (*models.Mapping, error) {
	row := r.db.QueryRow(`SELECT `+mappingColumns+` FROM mappings WHERE id = ?`, id)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", shared.ErrMappingNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMappingsForSeries returns the mappings of one series in creation order.
func (r *MappingRepository) GetMappingsForSeries(seriesID string) ([]models.Mapping, error) {
	return r.List(map[string]any{"series_id": seriesID})
}

// GetAllMappings returns every mapping in creation order.
func (r *MappingRepository) GetAllMappings() ([]models.Mapping, error) {
	return r.List(nil)
}

// List retrieves mappings matching the given criteria.
//
// Supported keys: series_id, season_id (string), catalog_id (int) and ignored (bool).
func (r *MappingRepository) List(criteria map[string]any) ([]models.Mapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM mappings WHERE 1 = 1`
	args := []any{}

	if seriesID, ok := criteria["series_id"].(string); ok && seriesID != "" {
		query += " AND series_id = ?"
		args = append(args, seriesID)
	}
	if seasonID, ok := criteria["season_id"].(string); ok && seasonID != "" {
		query += " AND season_id = ?"
		args = append(args, seasonID)
	}
	if catalogID, ok := criteria["catalog_id"].(int); ok && catalogID != 0 {
		query += " AND catalog_id = ?"
		args = append(args, catalogID)
	}
	if ignored, ok := criteria["ignored"].(bool); ok {
		query += " AND ignored = ?"
		args = append(args, boolToInt(ignored))
	}

	query += " ORDER BY id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	mappings := []models.Mapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return mappings, nil
}

// SetIgnored flips the ignored flag of a mapping.
func (r *MappingRepository) SetIgnored(id int64, ignored bool) error {
	return r.setFlag(id, "ignored", ignored)
}

// SetEnabled flips the enabled flag of a mapping.
func (r *MappingRepository) SetEnabled(id int64, enabled bool) error {
	return r.setFlag(id, "enabled", enabled)
}

func (r *MappingRepository) setFlag(id int64, column string, value bool) error {
	result, err := r.db.Exec(fmt.Sprintf("UPDATE mappings SET %s = ? WHERE id = ?", column), boolToInt(value), id)
	if err != nil {
		return fmt.Errorf("failed to update mapping %s: %w", column, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", shared.ErrMappingNotFound, id)
	}
	return nil
}

// DeleteForSeries removes every mapping of a series so the next run resolves it again.
func (r *MappingRepository) DeleteForSeries(seriesID string) (int64, error) {
	result, err := r.db.Exec("DELETE FROM mappings WHERE series_id = ?", seriesID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete mappings: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMapping(s scanner) (*models.Mapping, error) {
	var (
		m        models.Mapping
		id       int64
		episodes sql.NullInt64
		enabled  int
		ignored  int
	)

	err := s.Scan(
		&id,
		&m.SeriesID,
		&m.SeasonID,
		&m.EpisodeOffset,
		&m.SeasonLength,
		&m.CatalogID,
		&episodes,
		&enabled,
		&ignored,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan mapping: %w", err)
	}

	m.ID = models.Persisted(id)
	if episodes.Valid {
		m.CatalogEpisodes = models.IntPtr(int(episodes.Int64))
	}
	m.Enabled = enabled != 0
	m.Ignored = ignored != 0
	return &m, nil
}
