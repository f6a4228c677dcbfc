package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
)

// CacheStats reports the number of cached catalog responses.
type CacheStats struct {
	Searches int `json:"searches"`
	Entries  int `json:"entries"`
}

// CatalogCacheRepository stores catalog search results and entries as JSON documents.
//
// Rows older than the configured ttl are reported as [shared.ErrCacheMiss]. A zero ttl never expires.
type CatalogCacheRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewCatalogCacheRepository creates a new CatalogCacheRepository with the given database connection
func NewCatalogCacheRepository(db *sql.DB, ttl time.Duration) *CatalogCacheRepository {
	return &CatalogCacheRepository{db: db, ttl: ttl, now: time.Now}
}

// SearchKey normalizes a search term for use as a cache key.
func SearchKey(term string) string {
	return strings.ToLower(strings.Join(strings.Fields(term), " "))
}

// GetSearch returns the cached results for a search term.
func (r *CatalogCacheRepository) GetSearch(term string) ([]models.CatalogEntry, error) {
	var entries []models.CatalogEntry
	row := r.db.QueryRow("SELECT data, cached_at FROM catalog_search_cache WHERE search_term = ?", SearchKey(term))
	if err := r.scanDocument(row, &entries); err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	return entries, nil
}

// PutSearch stores the results for a search term, replacing any previous value.
func (r *CatalogCacheRepository) PutSearch(term string, entries []models.CatalogEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode search results: %w", err)
	}

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO catalog_search_cache (search_term, data, cached_at) VALUES (?, ?, ?)",
		SearchKey(term), string(data), r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache search results: %w", err)
	}
	return nil
}

// GetEntry returns a cached catalog entry.
func (r *CatalogCacheRepository) GetEntry(id int) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	row := r.db.QueryRow("SELECT data, cached_at FROM catalog_entry_cache WHERE catalog_id = ?", id)
	if err := r.scanDocument(row, &entry); err != nil {
		return nil, fmt.Errorf("entry %d: %w", id, err)
	}
	return &entry, nil
}

// PutEntry stores a catalog entry, replacing any previous value.
func (r *CatalogCacheRepository) PutEntry(entry models.CatalogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode catalog entry: %w", err)
	}

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO catalog_entry_cache (catalog_id, data, cached_at) VALUES (?, ?, ?)",
		entry.ID, string(data), r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to cache catalog entry: %w", err)
	}
	return nil
}

// Clear removes every cached response and returns how many rows were deleted.
func (r *CatalogCacheRepository) Clear() (int64, error) {
	var total int64
	for _, table := range []string{"catalog_search_cache", "catalog_entry_cache"} {
		result, err := r.db.Exec("DELETE FROM " + table)
		if err != nil {
			return total, fmt.Errorf("failed to clear %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get affected rows: %w", err)
		}
		total += n
	}
	return total, nil
}

// Stats counts the cached searches and entries.
func (r *CatalogCacheRepository) Stats() (CacheStats, error) {
	var stats CacheStats
	if err := r.db.QueryRow("SELECT COUNT(*) FROM catalog_search_cache").Scan(&stats.Searches); err != nil {
		return stats, fmt.Errorf("failed to count searches: %w", err)
	}
	if err := r.db.QueryRow("SELECT COUNT(*) FROM catalog_entry_cache").Scan(&stats.Entries); err != nil {
		return stats, fmt.Errorf("failed to count entries: %w", err)
	}
	return stats, nil
}

func (r *CatalogCacheRepository) scanDocument(row *sql.Row, dest any) error {
	var (
		data     string
		cachedAt time.Time
	)
	if err := row.Scan(&data, &cachedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shared.ErrCacheMiss
		}
		return fmt.Errorf("failed to scan cached document: %w", err)
	}

	if r.ttl > 0 && r.now().Sub(cachedAt) > r.ttl {
		return shared.ErrCacheMiss
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to decode cached document: %w", err)
	}
	return nil
}
