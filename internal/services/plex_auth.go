package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/anisync/internal/shared"
)

const (
	PlexTVURL           = "https://plex.tv"
	PlexAppURL          = "https://app.plex.tv"
	PlexProduct         = "anisync"
	defaultPlexPollRate = time.Second
)

// PlexPin is a sign-in PIN issued by plex.tv. AuthToken stays empty until the user approves it.
type PlexPin struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	AuthToken string `json:"authToken"`
}

// PlexAuthOpts configures a [PlexAuthenticator]. Zero values select the defaults.
type PlexAuthOpts struct {
	ClientID     string        // X-Plex-Client-Identifier, required
	Product      string        // default: anisync
	BaseURL      string        // default: https://plex.tv
	AppURL       string        // default: https://app.plex.tv
	PollInterval time.Duration // default: 1s
	HTTPClient   HTTPDoer      // default: http.Client with a 10s timeout
	Logger       *log.Logger
}

// PlexAuthenticator obtains a Plex account token through the PIN sign-in flow:
// create a PIN, send the user to app.plex.tv to approve it, then poll the PIN for its token.
type PlexAuthenticator struct {
	clientID string
	product  string
	baseURL  string
	appURL   string
	interval time.Duration
	client   HTTPDoer
	logger   *log.Logger
}

// NewPlexAuthenticator creates an authenticator identifying itself as opts.ClientID.
func NewPlexAuthenticator(opts PlexAuthOpts) *PlexAuthenticator {
	if opts.Product == "" {
		opts.Product = PlexProduct
	}
	if opts.BaseURL == "" {
		opts.BaseURL = PlexTVURL
	}
	if opts.AppURL == "" {
		opts.AppURL = PlexAppURL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPlexPollRate
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: plexTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewDiscardLogger()
	}

	return &PlexAuthenticator{
		clientID: opts.ClientID,
		product:  opts.Product,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		appURL:   strings.TrimRight(opts.AppURL, "/"),
		interval: opts.PollInterval,
		client:   opts.HTTPClient,
		logger:   opts.Logger,
	}
}

// do sends a pin request and decodes the reply. The status code is returned alongside HTTP errors.
func (a *PlexAuthenticator) do(ctx context.Context, method, path string, query url.Values) (*PlexPin, int, error) {
	if a.clientID == "" {
		return nil, 0, fmt.Errorf("%w: plex client identifier is not set", shared.ErrMissingCredentials)
	}
	query.Set("X-Plex-Client-Identifier", a.clientID)

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", shared.ErrLibraryRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, plexErrorBodyLimit))
		return nil, resp.StatusCode, fmt.Errorf("%w: %s %s returned %d: %s", shared.ErrAuthFailed, method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pin PlexPin
	if err := json.NewDecoder(resp.Body).Decode(&pin); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return &pin, resp.StatusCode, nil
}

// CreatePin asks plex.tv for a new strong PIN.
func (a *PlexAuthenticator) CreatePin(ctx context.Context) (*PlexPin, error) {
	pin, _, err := a.do(ctx, http.MethodPost, "/api/v2/pins", url.Values{
		"X-Plex-Product": {a.product},
		"strong":         {"true"},
	})
	if err != nil {
		return nil, err
	}
	if pin.ID == 0 || pin.Code == "" {
		return nil, fmt.Errorf("%w: plex returned an empty pin", shared.ErrAuthFailed)
	}
	a.logger.Debug("plex pin created", "id", pin.ID)
	return pin, nil
}

// AuthURL returns the app.plex.tv page where the user approves pin.
func (a *PlexAuthenticator) AuthURL(pin *PlexPin) string {
	q := url.Values{}
	q.Set("clientID", a.clientID)
	q.Set("code", pin.Code)
	q.Set("context[device][product]", a.product)
	return a.appURL + "/auth#?" + q.Encode()
}

// CheckPin fetches the current state of pin. A PIN plex.tv no longer knows is reported as expired.
func (a *PlexAuthenticator) CheckPin(ctx context.Context, pin *PlexPin) (*PlexPin, error) {
	current, status, err := a.do(ctx, http.MethodGet, "/api/v2/pins/"+strconv.FormatInt(pin.ID, 10), url.Values{"code": {pin.Code}})
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w (pin %d)", shared.ErrPinExpired, pin.ID)
	}
	return current, err
}

// PollToken checks pin every poll interval until it carries a token or ctx ends.
//
// Failed checks are logged and retried; a PIN that plex.tv no longer knows ends the wait.
func (a *PlexAuthenticator) PollToken(ctx context.Context, pin *PlexPin) (string, error) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		current, err := a.CheckPin(ctx, pin)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case errors.Is(err, shared.ErrPinExpired):
			return "", err
		case err != nil:
			a.logger.Warn("plex pin check failed", "id", pin.ID, "error", err)
		case current.AuthToken != "":
			a.logger.Info("plex pin approved", "id", pin.ID)
			return current.AuthToken, nil
		}
	}
}
