package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
)

const mediaJSON = `{
	"id": 16498,
	"format": "TV",
	"episodes": 25,
	"synonyms": ["AoT", "SnK"],
	"status": "FINISHED",
	"startDate": {"year": 2013, "month": 4, "day": 7},
	"endDate": {"year": 2013, "month": 9, "day": 29},
	"title": {"english": "Attack on Titan", "romaji": "Shingeki no Kyojin"},
	"relations": {
		"edges": [{"relationType": "ADAPTATION"}, {"relationType": "SEQUEL"}, {"relationType": "SEQUEL"}],
		"nodes": [
			{"id": 53390, "format": "MANGA", "episodes": null, "startDate": {"year": 2009}},
			{"id": 20958, "format": "TV", "episodes": 12, "startDate": {"year": 2017}},
			{"id": 99147, "format": "TV", "episodes": 10, "startDate": {"year": 2019}}
		]
	}
}`

type graphQLHandler func(t *testing.T, req graphQLRequest) string

func newAniListServer(t *testing.T, handle graphQLHandler) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer token, got %q", got)
		}

		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(handle(t, req)))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestAniListClient(baseURL string, cache CatalogCache) *AniListClient {
	return NewAniListClient(
		map[string]string{"access_token": "test-token"},
		AniListOpts{BaseURL: baseURL, RequestsPerSecond: 1000, Cache: cache},
	)
}

type memoryCache struct {
	searches map[string][]models.CatalogEntry
	entries  map[int]models.CatalogEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{searches: map[string][]models.CatalogEntry{}, entries: map[int]models.CatalogEntry{}}
}

func (m *memoryCache) GetSearch(term string) ([]models.CatalogEntry, error) {
	if v, ok := m.searches[term]; ok {
		return v, nil
	}
	return nil, shared.ErrCacheMiss
}

func (m *memoryCache) PutSearch(term string, entries []models.CatalogEntry) error {
	m.searches[term] = entries
	return nil
}

func (m *memoryCache) GetEntry(id int) (*models.CatalogEntry, error) {
	if v, ok := m.entries[id]; ok {
		return &v, nil
	}
	return nil, shared.ErrCacheMiss
}

func (m *memoryCache) PutEntry(entry models.CatalogEntry) error {
	m.entries[entry.ID] = entry
	return nil
}

func TestAniListMediaEntry(t *testing.T) {
	var media AniListMedia
	if err := json.Unmarshal([]byte(mediaJSON), &media); err != nil {
		t.Fatalf("failed to decode media: %v", err)
	}

	entry := media.Entry()
	if entry.ID != 16498 || entry.Title.English != "Attack on Titan" || entry.Title.Romaji != "Shingeki no Kyojin" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.EpisodeCount() != 25 || entry.Format != models.FormatTV {
		t.Errorf("unexpected episodes/format: %d %s", entry.EpisodeCount(), entry.Format)
	}
	if entry.StartYear == nil || *entry.StartYear != 2013 {
		t.Errorf("expected start year 2013")
	}
	if len(entry.Relations) != 3 {
		t.Fatalf("expected 3 relations, got %d", len(entry.Relations))
	}

	sequel, ok := entry.FirstRelation(models.RelationSequel)
	if !ok || sequel.ID != 20958 {
		t.Errorf("expected first sequel 20958, got %+v", sequel)
	}
	if sequel.Episodes == nil || *sequel.Episodes != 12 {
		t.Errorf("expected sequel node episodes to be paired")
	}

	t.Run("mismatched relation lists", func(t *testing.T) {
		media.Relations.Nodes = media.Relations.Nodes[:1]
		if got := media.Entry(); len(got.Relations) != 1 {
			t.Errorf("expected relations truncated to shorter list, got %d", len(got.Relations))
		}
	})

	t.Run("null english title", func(t *testing.T) {
		var m AniListMedia
		if err := json.Unmarshal([]byte(`{"id":1,"title":{"english":null,"romaji":"Kimi no Na wa."}}`), &m); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got := m.Entry(); got.Title.English != "" || got.DisplayTitle() != "Kimi no Na wa." {
			t.Errorf("unexpected title: %+v", got.Title)
		}
	})
}

func TestAniListClient(t *testing.T) {
	ctx := context.Background()

	t.Run("GetAuthURL", func(t *testing.T) {
		c := NewAniListClient(map[string]string{"client_id": "4688", "redirect_uri": "http://localhost:3000/callback"}, AniListOpts{})
		authURL := c.GetAuthURL("test_state")

		if !strings.Contains(authURL, "anilist.co/api/v2/oauth/authorize") {
			t.Errorf("auth URL should contain AniList domain, got %s", authURL)
		}
		if !strings.Contains(authURL, "4688") || !strings.Contains(authURL, "test_state") {
			t.Errorf("auth URL should contain client_id and state, got %s", authURL)
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		c := NewAniListClient(map[string]string{}, AniListOpts{})

		if _, err := c.Viewer(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated before authentication, got %v", err)
		}

		if err := c.Authenticate(ctx, map[string]string{}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}

		if err := c.Authenticate(ctx, map[string]string{"auth_code": "code"}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials without client secret, got %v", err)
		}

		if err := c.Authenticate(ctx, map[string]string{"access_token": "abc"}); err != nil {
			t.Fatalf("expected no error with access token, got %v", err)
		}
		if c.Token() == nil || c.Token().AccessToken != "abc" {
			t.Error("expected token to be stored")
		}
	})

	t.Run("SearchByTitle", func(t *testing.T) {
		srv, calls := newAniListServer(t, func(t *testing.T, req graphQLRequest) string {
			if !strings.Contains(req.Query, "Page(perPage: 10)") {
				t.Errorf("expected search query, got %s", req.Query)
			}
			if req.Variables["search"] != "Attack on Titan" {
				t.Errorf("unexpected variables: %v", req.Variables)
			}
			return `{"data": {"Page": {"media": [` + mediaJSON + `]}}}`
		})

		cache := newMemoryCache()
		c := newTestAniListClient(srv.URL, cache)

		for range 2 {
			results, err := c.SearchByTitle(ctx, "Attack on Titan")
			if err != nil {
				t.Fatalf("SearchByTitle failed: %v", err)
			}
			if len(results) != 1 || results[0].ID != 16498 {
				t.Fatalf("unexpected results: %+v", results)
			}
		}

		if calls.Load() != 1 {
			t.Errorf("expected second search to hit the cache, got %d requests", calls.Load())
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		srv, _ := newAniListServer(t, func(t *testing.T, req graphQLRequest) string {
			if !strings.Contains(req.Query, "Media(id: $id") {
				t.Errorf("expected media query, got %s", req.Query)
			}
			if req.Variables["id"] != float64(16498) {
				t.Errorf("unexpected variables: %v", req.Variables)
			}
			return `{"data": {"Media": ` + mediaJSON + `}}`
		})

		cache := newMemoryCache()
		c := newTestAniListClient(srv.URL, cache)

		entry, err := c.GetByID(ctx, 16498)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if entry == nil || entry.ID != 16498 {
			t.Fatalf("unexpected entry: %+v", entry)
		}
		if _, ok := cache.entries[16498]; !ok {
			t.Error("expected entry to be cached")
		}
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		srv, _ := newAniListServer(t, func(t *testing.T, req graphQLRequest) string {
			return `{"data": {"Media": null}, "errors": [{"message": "Not Found.", "status": 404}]}`
		})

		c := newTestAniListClient(srv.URL, nil)
		entry, err := c.GetByID(ctx, 1)
		if err != nil {
			t.Fatalf("expected no error for unknown id, got %v", err)
		}
		if entry != nil {
			t.Errorf("expected nil entry, got %+v", entry)
		}
	})

	t.Run("GetSequel", func(t *testing.T) {
		srv, _ := newAniListServer(t, func(t *testing.T, req graphQLRequest) string {
			if req.Variables["id"] != float64(20958) {
				t.Errorf("expected first sequel id, got %v", req.Variables["id"])
			}
			return `{"data": {"Media": {"id": 20958, "format": "TV", "episodes": 12, "title": {"romaji": "Shingeki no Kyojin 2"}}}}`
		})

		var media AniListMedia
		if err := json.Unmarshal([]byte(mediaJSON), &media); err != nil {
			t.Fatalf("failed to decode media: %v", err)
		}

		c := newTestAniListClient(srv.URL, nil)
		sequel, err := c.GetSequel(ctx, media.Entry())
		if err != nil {
			t.Fatalf("GetSequel failed: %v", err)
		}
		if sequel == nil || sequel.ID != 20958 {
			t.Fatalf("unexpected sequel: %+v", sequel)
		}

		none, err := c.GetSequel(ctx, models.CatalogEntry{ID: 5})
		if err != nil || none != nil {
			t.Errorf("expected no sequel, got %+v (%v)", none, err)
		}
	})

	t.Run("GraphQLErrors", func(t *testing.T) {
		srv, _ := newAniListServer(t, func(t *testing.T, req graphQLRequest) string {
			return `{"data": null, "errors": [{"message": "Too Many Requests.", "status": 429}]}`
		})

		c := newTestAniListClient(srv.URL, nil)
		_, err := c.SearchByTitle(ctx, "anything")
		if !errors.Is(err, shared.ErrCatalogRequest) {
			t.Fatalf("expected ErrCatalogRequest, got %v", err)
		}
		if !strings.Contains(err.Error(), "Too Many Requests") {
			t.Errorf("expected message in error, got %v", err)
		}
	})

	t.Run("HTTPError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer srv.Close()

		c := newTestAniListClient(srv.URL, nil)
		if _, err := c.Viewer(ctx); !errors.Is(err, shared.ErrCatalogRequest) {
			t.Errorf("expected ErrCatalogRequest, got %v", err)
		}
	})

	t.Run("Viewer", func(t *testing.T) {
		srv, _ := newAniListServer(t, func(t *testing.T, req graphQLRequest) string {
			return `{"data": {"Viewer": {"id": 42, "name": "tester"}}}`
		})

		c := newTestAniListClient(srv.URL, nil)
		viewer, err := c.Viewer(ctx)
		if err != nil {
			t.Fatalf("Viewer failed: %v", err)
		}
		if viewer.ID != 42 || viewer.Name != "tester" {
			t.Errorf("unexpected viewer: %+v", viewer)
		}
	})

	t.Run("GetList", func(t *testing.T) {
		srv, _ := newAniListServer(t, func(t *testing.T, req graphQLRequest) string {
			if req.Variables["userId"] != float64(42) {
				t.Errorf("unexpected variables: %v", req.Variables)
			}
			return `{"data": {"MediaListCollection": {"lists": [
				{"name": "Watching", "status": "CURRENT", "isCustomList": false, "entries": [{"mediaId": 1, "progress": 3}]},
				{"name": "Rewatching", "status": "REPEATING", "isCustomList": false, "entries": [{"mediaId": 2, "progress": 1}]},
				{"name": "Completed", "status": "COMPLETED", "isCustomList": false, "entries": [{"mediaId": 3, "progress": 12}]},
				{"name": "Favourites", "status": null, "isCustomList": true, "entries": [{"mediaId": 3, "progress": 12}]}
			]}}}`
		})

		c := newTestAniListClient(srv.URL, nil)
		entries, err := c.GetList(ctx, 42)
		if err != nil {
			t.Fatalf("GetList failed: %v", err)
		}

		want := []models.ListEntry{
			{CatalogID: 1, Status: models.Current, Progress: 3},
			{CatalogID: 2, Status: models.Current, Progress: 1},
			{CatalogID: 3, Status: models.Completed, Progress: 12},
		}
		if len(entries) != len(want) {
			t.Fatalf("expected %d entries, got %d: %+v", len(want), len(entries), entries)
		}
		for i := range want {
			if entries[i] != want[i] {
				t.Errorf("entry %d: expected %+v, got %+v", i, want[i], entries[i])
			}
		}
	})

	t.Run("UpdateListEntry", func(t *testing.T) {
		srv, _ := newAniListServer(t, func(t *testing.T, req graphQLRequest) string {
			if !strings.HasPrefix(req.Query, "mutation") {
				t.Errorf("expected mutation, got %s", req.Query)
			}
			if req.Variables["status"] != "PAUSED" || req.Variables["progress"] != float64(5) || req.Variables["mediaId"] != float64(7) {
				t.Errorf("unexpected variables: %v", req.Variables)
			}
			return `{"data": {"SaveMediaListEntry": {"id": 1, "mediaId": 7, "status": "PAUSED", "progress": 5}}}`
		})

		c := newTestAniListClient(srv.URL, nil)
		saved, err := c.UpdateListEntry(ctx, models.ListEntry{CatalogID: 7, Status: models.Paused, Progress: 5})
		if err != nil {
			t.Fatalf("UpdateListEntry failed: %v", err)
		}
		if saved.CatalogID != 7 || saved.Status != models.Paused || saved.Progress != 5 {
			t.Errorf("unexpected saved entry: %+v", saved)
		}
	})
}
