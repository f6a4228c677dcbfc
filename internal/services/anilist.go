// AniList GraphQL implementation of [CatalogClient] and [ListClient]
//
// Query shapes follow https://docs.anilist.co/guide/graphql/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/anisync/internal/models"
	"github.com/desertthunder/anisync/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	anilistAuthURL  = "https://anilist.co/api/v2/oauth/authorize"
	anilistTokenURL = "https://anilist.co/api/v2/oauth/token"
	anilistBaseURL  = "https://graphql.anilist.co/"
)

const mediaFields = `
	id
	format
	episodes
	synonyms
	status
	startDate { year month day }
	endDate { year month day }
	title { english romaji }
	relations {
		edges { relationType }
		nodes {
			id
			format
			episodes
			startDate { year month day }
			endDate { year month day }
		}
	}
`

var (
	searchQuery = `query ($search: String) {
	Page(perPage: 10) {
		media(search: $search, type: ANIME, sort: SEARCH_MATCH) {` + mediaFields + `}
	}
}`

	mediaQuery = `query ($id: Int) {
	Media(id: $id, type: ANIME) {` + mediaFields + `}
}`

	viewerQuery = `query {
	Viewer { id name }
}`

	listQuery = `query ($userId: Int) {
	MediaListCollection(userId: $userId, type: ANIME) {
		lists {
			name
			status
			isCustomList
			entries { mediaId status progress }
		}
	}
}`

	saveEntryMutation = `mutation ($mediaId: Int, $status: MediaListStatus, $progress: Int) {
	SaveMediaListEntry(mediaId: $mediaId, status: $status, progress: $progress) {
		id
		mediaId
		status
		progress
	}
}`
)

type anilistDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

type anilistNode struct {
	ID        int         `json:"id"`
	Format    string      `json:"format"`
	Episodes  *int        `json:"episodes"`
	StartDate anilistDate `json:"startDate"`
	EndDate   anilistDate `json:"endDate"`
}

type anilistEdge struct {
	RelationType string `json:"relationType"`
}

// AniListMedia is a Media object as returned by the GraphQL API.
type AniListMedia struct {
	ID        int         `json:"id"`
	Format    string      `json:"format"`
	Episodes  *int        `json:"episodes"`
	Synonyms  []string    `json:"synonyms"`
	Status    string      `json:"status"`
	StartDate anilistDate `json:"startDate"`
	EndDate   anilistDate `json:"endDate"`
	Title     struct {
		English *string `json:"english"`
		Romaji  string  `json:"romaji"`
	} `json:"title"`
	Relations struct {
		Edges []anilistEdge `json:"edges"`
		Nodes []anilistNode `json:"nodes"`
	} `json:"relations"`
}

// Entry converts the API object into a [models.CatalogEntry], pairing relation edges with their nodes.
func (m AniListMedia) Entry() models.CatalogEntry {
	entry := models.CatalogEntry{
		ID:        m.ID,
		Synonyms:  m.Synonyms,
		Episodes:  m.Episodes,
		Format:    models.MediaFormat(m.Format),
		Status:    models.MediaStatus(m.Status),
		StartYear: m.StartDate.Year,
	}
	entry.Title.Romaji = m.Title.Romaji
	if m.Title.English != nil {
		entry.Title.English = *m.Title.English
	}

	n := min(len(m.Relations.Edges), len(m.Relations.Nodes))
	for i := range n {
		node := m.Relations.Nodes[i]
		entry.Relations = append(entry.Relations, models.Relation{
			Type: models.RelationType(m.Relations.Edges[i].RelationType),
			Node: models.CatalogNode{
				ID:        node.ID,
				Format:    models.MediaFormat(node.Format),
				Episodes:  node.Episodes,
				StartYear: node.StartDate.Year,
			},
		})
	}
	return entry
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// AniListOpts configures an [AniListClient]. Zero values select the defaults.
type AniListOpts struct {
	BaseURL           string       // GraphQL endpoint (default: https://graphql.anilist.co/)
	RequestsPerSecond float64      // Request budget (default: [shared.DefaultRequestsPerSecond])
	Cache             CatalogCache // Optional response cache
	HTTPClient        *http.Client // Base client wrapped by the OAuth2 transport
	Logger            *log.Logger
}

// AniListClient talks to the AniList GraphQL API.
type AniListClient struct {
	config     *oauth2.Config
	token      *oauth2.Token
	base       *http.Client
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	cache      CatalogCache
	logger     *log.Logger
}

// NewAniListClient creates a client from the [shared.AniListConfig.Map] credential set.
//
// An "access_token" authenticates the client immediately. Without one, [AniListClient.Authenticate]
// must be called before any query.
func NewAniListClient(credentials map[string]string, opts AniListOpts) *AniListClient {
	if opts.BaseURL == "" {
		opts.BaseURL = anilistBaseURL
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = shared.DefaultRequestsPerSecond
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewDiscardLogger()
	}

	c := &AniListClient{
		config: &oauth2.Config{
			ClientID:     credentials["client_id"],
			ClientSecret: credentials["client_secret"],
			RedirectURL:  credentials["redirect_uri"],
			Endpoint: oauth2.Endpoint{
				AuthURL:   anilistAuthURL,
				TokenURL:  anilistTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		base:    opts.HTTPClient,
		baseURL: opts.BaseURL,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		cache:   opts.Cache,
		logger:  opts.Logger,
	}

	if token := credentials["access_token"]; token != "" {
		c.setToken(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}
	return c
}

func (c *AniListClient) Name() string {
	return "AniList"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (c *AniListClient) GetAuthURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// Authenticate exchanges an "auth_code" or adopts an "access_token" from credentials.
func (c *AniListClient) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken := credentials["access_token"]; accessToken != "" {
		c.setToken(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
		return nil
	}

	if authCode := credentials["auth_code"]; authCode != "" {
		if c.config.ClientID == "" || c.config.ClientSecret == "" {
			return fmt.Errorf("%w: client_id and client_secret are required", shared.ErrMissingCredentials)
		}
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
		token, err := c.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
		}
		c.setToken(token)
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code in credentials", shared.ErrMissingCredentials)
}

// Token returns the current OAuth2 token, or nil before authentication.
func (c *AniListClient) Token() *oauth2.Token {
	return c.token
}

func (c *AniListClient) setToken(token *oauth2.Token) {
	c.token = token
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
	c.httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
}

// query posts a GraphQL document and decodes its data object into out.
func (c *AniListClient) query(ctx context.Context, document string, variables map[string]any, out any) error {
	if c.httpClient == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if variables == nil {
		variables = map[string]any{}
	}
	body, err := json.Marshal(graphQLRequest{Query: document, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCatalogRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result graphQLResponse
	if err := json.Unmarshal(data, &result); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: status %d", shared.ErrCatalogRequest, resp.StatusCode)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.Message
		}
		return &GraphQLError{StatusCode: resp.StatusCode, Status: result.Errors[0].Status, Message: strings.Join(msgs, "; ")}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", shared.ErrCatalogRequest, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}

// GraphQLError carries the errors array of a failed AniList response.
type GraphQLError struct {
	StatusCode int
	Status     int
	Message    string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", shared.ErrCatalogRequest, e.StatusCode, e.Message)
}

func (e *GraphQLError) Unwrap() error { return shared.ErrCatalogRequest }

// NotFound reports whether the error is AniList's response to an unknown id.
func (e *GraphQLError) NotFound() bool {
	return e.Status == http.StatusNotFound || e.StatusCode == http.StatusNotFound
}

// SearchByTitle searches anime by title, most relevant first.
func (c *AniListClient) SearchByTitle(ctx context.Context, title string) ([]models.CatalogEntry, error) {
	if c.cache != nil {
		cached, err := c.cache.GetSearch(title)
		if err == nil {
			c.logger.Debug("catalog search cache hit", "term", title)
			return cached, nil
		}
		if !errors.Is(err, shared.ErrCacheMiss) {
			c.logger.Warn("catalog search cache read failed", "term", title, "error", err)
		}
	}

	c.logger.Info("querying catalog", "term", title)

	var response struct {
		Page struct {
			Media []AniListMedia `json:"media"`
		} `json:"Page"`
	}
	if err := c.query(ctx, searchQuery, map[string]any{"search": title}, &response); err != nil {
		return nil, err
	}

	entries := make([]models.CatalogEntry, 0, len(response.Page.Media))
	for _, m := range response.Page.Media {
		entries = append(entries, m.Entry())
	}

	if c.cache != nil {
		if err := c.cache.PutSearch(title, entries); err != nil {
			c.logger.Warn("failed to cache catalog search", "term", title, "error", err)
		}
	}
	return entries, nil
}

// GetByID fetches one entry. An id unknown to AniList returns nil without error.
func (c *AniListClient) GetByID(ctx context.Context, id int) (*models.CatalogEntry, error) {
	if c.cache != nil {
		cached, err := c.cache.GetEntry(id)
		if err == nil {
			c.logger.Debug("catalog entry cache hit", "id", id)
			return cached, nil
		}
		if !errors.Is(err, shared.ErrCacheMiss) {
			c.logger.Warn("catalog entry cache read failed", "id", id, "error", err)
		}
	}

	c.logger.Info("querying catalog", "id", id)

	var response struct {
		Media *AniListMedia `json:"Media"`
	}
	if err := c.query(ctx, mediaQuery, map[string]any{"id": id}, &response); err != nil {
		var gqlErr *GraphQLError
		if errors.As(err, &gqlErr) && gqlErr.NotFound() {
			return nil, nil
		}
		return nil, err
	}
	if response.Media == nil {
		return nil, nil
	}

	entry := response.Media.Entry()
	if c.cache != nil {
		if err := c.cache.PutEntry(entry); err != nil {
			c.logger.Warn("failed to cache catalog entry", "id", id, "error", err)
		}
	}
	return &entry, nil
}

// GetSequel fetches the entry behind the first SEQUEL relation of entry.
func (c *AniListClient) GetSequel(ctx context.Context, entry models.CatalogEntry) (*models.CatalogEntry, error) {
	node, ok := entry.FirstRelation(models.RelationSequel)
	if !ok {
		return nil, nil
	}
	return c.GetByID(ctx, node.ID)
}

// Viewer returns the account that owns the access token.
func (c *AniListClient) Viewer(ctx context.Context) (*models.Viewer, error) {
	var response struct {
		Viewer models.Viewer `json:"Viewer"`
	}
	if err := c.query(ctx, viewerQuery, nil, &response); err != nil {
		return nil, err
	}
	return &response.Viewer, nil
}

type anilistListEntry struct {
	MediaID  int    `json:"mediaId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// GetList returns the viewer's anime list. Custom lists are skipped since their entries repeat the
// status lists.
func (c *AniListClient) GetList(ctx context.Context, userID int) ([]models.ListEntry, error) {
	var response struct {
		Collection struct {
			Lists []struct {
				Name         string             `json:"name"`
				Status       *string            `json:"status"`
				IsCustomList bool               `json:"isCustomList"`
				Entries      []anilistListEntry `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	}
	if err := c.query(ctx, listQuery, map[string]any{"userId": userID}, &response); err != nil {
		return nil, err
	}

	entries := []models.ListEntry{}
	for _, list := range response.Collection.Lists {
		if list.IsCustomList || list.Status == nil {
			continue
		}

		status, err := models.ParseWatchStatus(*list.Status)
		if err != nil {
			c.logger.Warn("skipping list with unknown status", "list", list.Name, "status", *list.Status)
			continue
		}

		for _, e := range list.Entries {
			entries = append(entries, models.ListEntry{
				CatalogID: e.MediaID,
				Status:    status,
				Progress:  e.Progress,
			})
		}
	}
	return entries, nil
}

// UpdateListEntry creates or updates the viewer's list entry for a catalog id.
func (c *AniListClient) UpdateListEntry(ctx context.Context, entry models.ListEntry) (*models.ListEntry, error) {
	vars := map[string]any{
		"mediaId":  entry.CatalogID,
		"status":   entry.Status.AniList(),
		"progress": entry.Progress,
	}

	var response struct {
		Saved anilistListEntry `json:"SaveMediaListEntry"`
	}
	if err := c.query(ctx, saveEntryMutation, vars, &response); err != nil {
		return nil, err
	}

	status, err := models.ParseWatchStatus(response.Saved.Status)
	if err != nil {
		status = entry.Status
	}
	mediaID := response.Saved.MediaID
	if mediaID == 0 {
		mediaID = entry.CatalogID
	}
	return &models.ListEntry{CatalogID: mediaID, Status: status, Progress: response.Saved.Progress}, nil
}
