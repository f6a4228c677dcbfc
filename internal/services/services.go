package services

import (
	"context"

	"github.com/desertthunder/anisync/internal/models"
)

// CatalogClient looks up anime entries in the remote tracking catalog.
type CatalogClient interface {
	// SearchByTitle returns the catalog entries matching a free-text title.
	SearchByTitle(ctx context.Context, title string) ([]models.CatalogEntry, error)

	// GetByID returns a single entry, or nil when the catalog has no such id.
	GetByID(ctx context.Context, id int) (*models.CatalogEntry, error)

	// GetSequel follows the first sequel relation of entry.
	// Returns nil when entry has no sequel.
	GetSequel(ctx context.Context, entry models.CatalogEntry) (*models.CatalogEntry, error)
}

// ListClient reads and writes the authenticated viewer's tracker list.
type ListClient interface {
	Viewer(ctx context.Context) (*models.Viewer, error)
	GetList(ctx context.Context, userID int) ([]models.ListEntry, error)
	UpdateListEntry(ctx context.Context, entry models.ListEntry) (*models.ListEntry, error)
}

// LibraryClient reads the media server's series/season/episode tree.
type LibraryClient interface {
	// Snapshot returns every series in the given library sections. An empty list reads every show section.
	Snapshot(ctx context.Context, sectionIDs []string) ([]models.LibrarySeries, error)
}

// CatalogCache stores raw catalog responses between runs.
//
// Implementations return [shared.ErrCacheMiss] when a key is absent or expired.
type CatalogCache interface {
	GetSearch(term string) ([]models.CatalogEntry, error)
	PutSearch(term string, entries []models.CatalogEntry) error
	GetEntry(id int) (*models.CatalogEntry, error)
	PutEntry(entry models.CatalogEntry) error
}
