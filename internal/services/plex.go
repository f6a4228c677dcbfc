// Plex Media Server implementation of [LibraryClient]
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
)

const (
	plexTimeout        = 10 * time.Second
	plexErrorBodyLimit = 2048
	defaultPlexWorkers = 5
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// PlexSection is one library section.
type PlexSection struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// PlexMetadata is the subset of a Metadata item shared by shows, seasons and episodes.
type PlexMetadata struct {
	RatingKey    string `json:"ratingKey"`
	Title        string `json:"title"`
	ParentTitle  string `json:"parentTitle"`
	Index        int    `json:"index"`
	Year         int    `json:"year"`
	ViewCount    int    `json:"viewCount"`
	LastViewedAt int64  `json:"lastViewedAt"`
	LeafCount    int    `json:"leafCount"`
}

type plexContainer struct {
	MediaContainer struct {
		Directory []PlexSection  `json:"Directory"`
		Metadata  []PlexMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

// PlexOpts configures a [PlexClient]. Zero values select the defaults.
type PlexOpts struct {
	HTTPClient HTTPDoer // default: http.Client with a 10s timeout
	NumWorkers int      // concurrent series fetches in [PlexClient.Snapshot] (default: 5)
	Logger     *log.Logger
}

// PlexClient reads the library tree from a Plex Media Server.
type PlexClient struct {
	baseURL string
	token   string
	client  HTTPDoer
	workers int
	logger  *log.Logger
}

// NewPlexClient creates a client for the server at baseURL authenticated by token.
func NewPlexClient(baseURL, token string, opts PlexOpts) *PlexClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: plexTimeout}
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultPlexWorkers
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewDiscardLogger()
	}

	return &PlexClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  opts.HTTPClient,
		workers: opts.NumWorkers,
		logger:  opts.Logger,
	}
}

func (c *PlexClient) Name() string {
	return "Plex"
}

func (c *PlexClient) get(ctx context.Context, path string, out any) error {
	if c.token == "" {
		return fmt.Errorf("%w: plex token is not configured", shared.ErrMissingCredentials)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrLibraryRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, plexErrorBodyLimit))
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: plex rejected the token", shared.ErrInvalidCredentials)
		}
		return fmt.Errorf("%w: GET %s returned %d: %s", shared.ErrLibraryRequest, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Sections lists the library sections that hold TV shows.
func (c *PlexClient) Sections(ctx context.Context) ([]PlexSection, error) {
	var container plexContainer
	if err := c.get(ctx, "/library/sections", &container); err != nil {
		return nil, err
	}

	sections := []PlexSection{}
	for _, s := range container.MediaContainer.Directory {
		if s.Type == "show" {
			sections = append(sections, s)
		}
	}
	return sections, nil
}

// Series lists the shows of one section without their seasons.
func (c *PlexClient) Series(ctx context.Context, sectionID string) ([]models.LibrarySeries, error) {
	var container plexContainer
	if err := c.get(ctx, "/library/sections/"+url.PathEscape(sectionID)+"/all", &container); err != nil {
		return nil, err
	}

	series := make([]models.LibrarySeries, 0, len(container.MediaContainer.Metadata))
	for _, m := range container.MediaContainer.Metadata {
		series = append(series, models.LibrarySeries{ID: m.RatingKey, Title: m.Title, Year: m.Year})
	}
	return series, nil
}

// Seasons lists the seasons of a show without their episodes.
func (c *PlexClient) Seasons(ctx context.Context, ratingKey string) ([]models.LibrarySeason, error) {
	items, err := c.children(ctx, ratingKey)
	if err != nil {
		return nil, err
	}

	seasons := make([]models.LibrarySeason, 0, len(items))
	for _, m := range items {
		seasons = append(seasons, models.LibrarySeason{
			ID:          m.RatingKey,
			Index:       m.Index,
			Title:       m.Title,
			ParentTitle: m.ParentTitle,
		})
	}
	sort.SliceStable(seasons, func(i, j int) bool { return seasons[i].Index < seasons[j].Index })
	return seasons, nil
}

// Episodes lists the episodes of a season in index order.
func (c *PlexClient) Episodes(ctx context.Context, seasonKey string) ([]models.LibraryEpisode, error) {
	items, err := c.children(ctx, seasonKey)
	if err != nil {
		return nil, err
	}

	episodes := make([]models.LibraryEpisode, 0, len(items))
	for _, m := range items {
		ep := models.LibraryEpisode{
			ID:         m.RatingKey,
			Index:      m.Index,
			Title:      m.Title,
			WatchCount: m.ViewCount,
		}
		if m.LastViewedAt > 0 {
			t := time.Unix(m.LastViewedAt, 0).UTC()
			ep.LastWatchedAt = &t
		}
		episodes = append(episodes, ep)
	}
	sort.SliceStable(episodes, func(i, j int) bool { return episodes[i].Index < episodes[j].Index })
	return episodes, nil
}

func (c *PlexClient) children(ctx context.Context, key string) ([]PlexMetadata, error) {
	var container plexContainer
	if err := c.get(ctx, "/library/metadata/"+url.PathEscape(key)+"/children", &container); err != nil {
		return nil, err
	}
	return container.MediaContainer.Metadata, nil
}

// populate fills in the seasons and episodes of one series.
func (c *PlexClient) populate(ctx context.Context, series *models.LibrarySeries) error {
	seasons, err := c.Seasons(ctx, series.ID)
	if err != nil {
		return fmt.Errorf("seasons of %q: %w", series.Title, err)
	}

	for i := range seasons {
		episodes, err := c.Episodes(ctx, seasons[i].ID)
		if err != nil {
			return fmt.Errorf("episodes of %q season %d: %w", series.Title, seasons[i].Index, err)
		}
		seasons[i].Episodes = episodes
		if seasons[i].ParentTitle == "" {
			seasons[i].ParentTitle = series.Title
		}
	}

	series.Seasons = seasons
	return nil
}

type seriesJob struct {
	position int
	series   models.LibrarySeries
}

type seriesResult struct {
	position int
	series   models.LibrarySeries
	err      error
}

// Snapshot returns the full series/season/episode tree of the given sections, or of every show
// section when sectionIDs is empty.
//
// Series are populated by a worker pool. A series whose children fail to load is logged and dropped;
// only section listing failures are returned as errors.
func (c *PlexClient) Snapshot(ctx context.Context, sectionIDs []string) ([]models.LibrarySeries, error) {
	if len(sectionIDs) == 0 {
		sections, err := c.Sections(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range sections {
			sectionIDs = append(sectionIDs, s.Key)
		}
	}

	var all []models.LibrarySeries
	for _, id := range sectionIDs {
		series, err := c.Series(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", id, err)
		}
		c.logger.Info("found series", "section", id, "count", len(series))
		all = append(all, series...)
	}

	jobs := make(chan seriesJob, len(all))
	results := make(chan seriesResult, len(all))

	var wg sync.WaitGroup
	for range min(c.workers, max(len(all), 1)) {
		wg.Add(1)
		go c.snapshotWorker(ctx, &wg, jobs, results)
	}

	for i, s := range all {
		jobs <- seriesJob{position: i, series: s}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	populated := make([]*models.LibrarySeries, len(all))
	for res := range results {
		if res.err != nil {
			c.logger.Warn("skipping series", "series", res.series.Title, "error", res.err)
			continue
		}
		s := res.series
		populated[res.position] = &s
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := make([]models.LibrarySeries, 0, len(all))
	for _, s := range populated {
		if s != nil {
			snapshot = append(snapshot, *s)
		}
	}
	return snapshot, nil
}

func (c *PlexClient) snapshotWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan seriesJob, results chan<- seriesResult) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			results <- seriesResult{position: job.position, series: job.series, err: ctx.Err()}
			continue
		default:
		}

		err := c.populate(ctx, &job.series)
		results <- seriesResult{position: job.position, series: job.series, err: err}
	}
}
