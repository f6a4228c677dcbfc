// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
)

// MockCatalog is an in-memory [services.CatalogClient].
//
// Searches are keyed by exact title. Entries are served by id and sequels follow the first SEQUEL
// relation like the real client. Calls records each request as "search:<title>" or "get:<id>".
type MockCatalog struct {
	Searches  map[string][]models.CatalogEntry
	Entries   map[int]models.CatalogEntry
	SearchErr error
	GetErr    error
	Calls     []string
}

// NewMockCatalog creates a catalog serving entries by id.
func NewMockCatalog(entries ...models.CatalogEntry) *MockCatalog {
	m := &MockCatalog{Searches: map[string][]models.CatalogEntry{}, Entries: map[int]models.CatalogEntry{}}
	for _, e := range entries {
		m.Entries[e.ID] = e
	}
	return m
}

func (m *MockCatalog) SearchByTitle(ctx context.Context, title string) ([]models.CatalogEntry, error) {
	m.Calls = append(m.Calls, "search:"+title)
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	return m.Searches[title], nil
}

func (m *MockCatalog) GetByID(ctx context.Context, id int) (*models.CatalogEntry, error) {
	m.Calls = append(m.Calls, "get:"+strconv.Itoa(id))
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	e, ok := m.Entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MockCatalog) GetSequel(ctx context.Context, entry models.CatalogEntry) (*models.CatalogEntry, error) {
	node, ok := entry.FirstRelation(models.RelationSequel)
	if !ok {
		return nil, nil
	}
	return m.GetByID(ctx, node.ID)
}

// MemoryMappingStore is an in-memory mapping store that assigns sequential ids.
type MemoryMappingStore struct {
	Mappings []models.Mapping
	SaveErr  error
	LoadErr  error
	Saves    int
}

func (s *MemoryMappingStore) GetMappingsForSeries(seriesID string) ([]models.Mapping, error) {
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	out := []models.Mapping{}
	for _, m := range s.Mappings {
		if m.SeriesID == seriesID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryMappingStore) GetAllMappings() ([]models.Mapping, error) {
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return append([]models.Mapping{}, s.Mappings...), nil
}

func (s *MemoryMappingStore) Save(m *models.Mapping) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if m.ID.IsPersisted() {
		return fmt.Errorf("%w: mapping %s is already persisted", shared.ErrInvalidInput, m.ID)
	}
	s.Saves++
	m.ID = models.Persisted(int64(len(s.Mappings) + 1))
	s.Mappings = append(s.Mappings, *m)
	return nil
}

// MockList is an in-memory [services.ListClient].
type MockList struct {
	User      models.Viewer
	Entries   []models.ListEntry
	Updated   []models.ListEntry
	ViewerErr error
	ListErr   error
	UpdateErr map[int]error
}

func (m *MockList) Viewer(ctx context.Context) (*models.Viewer, error) {
	if m.ViewerErr != nil {
		return nil, m.ViewerErr
	}
	return &m.User, nil
}

func (m *MockList) GetList(ctx context.Context, userID int) ([]models.ListEntry, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.Entries, nil
}

func (m *MockList) UpdateListEntry(ctx context.Context, entry models.ListEntry) (*models.ListEntry, error) {
	if err := m.UpdateErr[entry.CatalogID]; err != nil {
		return nil, err
	}
	m.Updated = append(m.Updated, entry)
	return &entry, nil
}

// MockLibrary is a fixed [services.LibraryClient] snapshot.
type MockLibrary struct {
	Series []models.LibrarySeries
	Err    error
}

func (m *MockLibrary) Snapshot(ctx context.Context, sectionIDs []string) ([]models.LibrarySeries, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Series, nil
}

// Season builds a library season with n episodes; the first watched episodes have a view count
// and a last-watched time of lastWatched.
func Season(id string, index int, parentTitle string, n, watched int, lastWatched time.Time) models.LibrarySeason {
	season := models.LibrarySeason{ID: id, Index: index, ParentTitle: parentTitle, Title: fmt.Sprintf("Season %d", index)}
	for i := range n {
		ep := models.LibraryEpisode{ID: fmt.Sprintf("%s-e%d", id, i+1), Index: i + 1}
		if i < watched {
			t := lastWatched
			ep.WatchCount = 1
			ep.LastWatchedAt = &t
		}
		season.Episodes = append(season.Episodes, ep)
	}
	return season
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
