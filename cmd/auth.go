package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/desertthunder/anisync/internal/server"
	"github.com/desertthunder/anisync/internal/services"
	"github.com/desertthunder/anisync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// oauthClient is the part of [services.AniListClient] the authorization flow needs.
type oauthClient interface {
	server.Authenticator
	GetAuthURL(state string) string
}

// openBrowser is replaced in tests.
var openBrowser = shared.OpenBrowser

// AuthAniList authorizes anisync against AniList and stores the access token in the config file.
//
// With --token the given access token is stored as is. Otherwise a local callback server is started,
// the browser is opened on the AniList consent page and the returned code is exchanged for a token.
func (r *Runner) AuthAniList(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd); err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		r.config = shared.DefaultConfig()
	}
	configPath := cmd.String("config")
	creds := r.config.Credentials.AniList

	var token *oauth2.Token
	if pasted := cmd.String("token"); pasted != "" {
		token = &oauth2.Token{AccessToken: pasted, TokenType: "Bearer"}
	} else {
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return fmt.Errorf("%w: AniList client_id and client_secret must be set in %s", shared.ErrInvalidArgument, configPath)
		}
		client := services.NewAniListClient(creds.Map(), services.AniListOpts{HTTPClient: r.httpClient, Logger: r.logger})

		var err error
		if token, err = r.doOAuth(ctx, client); err != nil {
			return err
		}
	}

	if err := r.config.Credentials.AniList.Update(token); err != nil {
		return fmt.Errorf("failed to update anilist configuration: %w", err)
	}

	if err := shared.SaveConfig(configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Token saved to %s\n\n", configPath)
	r.writePlain("You can now use: anisync sync run --dry-run\n")
	return nil
}

// doOAuth runs the authorization-code flow and returns the exchanged token.
func (r *Runner) doOAuth(ctx context.Context, client oauthClient) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := client.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(client, state, r.logger)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(oauthHandler)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	listener, err := net.Listen("tcp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", serverAddr, err)
	}

	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	r.writePlain("→ Opening browser for AniList authorization...\n")
	if err := openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", authTimeout)

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, authTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}

// plexSignIn is the PIN flow of [services.PlexAuthenticator].
type plexSignIn interface {
	CreatePin(ctx context.Context) (*services.PlexPin, error)
	AuthURL(pin *services.PlexPin) string
	PollToken(ctx context.Context, pin *services.PlexPin) (string, error)
}

// newPlexSignIn is replaced in tests.
var newPlexSignIn = func(opts services.PlexAuthOpts) plexSignIn {
	return services.NewPlexAuthenticator(opts)
}

// AuthPlex signs in to plex.tv with a PIN and stores the account token in the config file.
//
// With --token the given X-Plex-Token is stored as is. --url also sets the media server address.
func (r *Runner) AuthPlex(ctx context.Context, cmd *cli.Command) error {
	if err := r.loadConfig(cmd); err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		r.config = shared.DefaultConfig()
	}
	configPath := cmd.String("config")
	plex := &r.config.Credentials.Plex

	if serverURL := cmd.String("url"); serverURL != "" {
		plex.URL = serverURL
	}

	token := cmd.String("token")
	if token == "" {
		if plex.EnsureClientID() {
			r.logger.Debug("generated plex client identifier", "client_id", plex.ClientID)
		}
		signIn := newPlexSignIn(services.PlexAuthOpts{
			ClientID:   plex.ClientID,
			HTTPClient: r.httpClient,
			Logger:     shared.WithLogger(r.logger, "service", "plex.tv"),
		})

		var err error
		if token, err = r.doPlexPIN(ctx, signIn); err != nil {
			return err
		}
	}

	plex.Token = token
	if err := shared.SaveConfig(configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Plex sign-in successful")
	r.writePlain("✓ Token saved to %s\n", configPath)
	if plex.URL == "" {
		r.writePlain("Set the server address with: anisync auth plex --url http://<host>:32400 --token <token>\n")
	}
	return nil
}

// doPlexPIN creates a PIN, sends the user to approve it and waits up to [authTimeout] for the token.
func (r *Runner) doPlexPIN(ctx context.Context, signIn plexSignIn) (string, error) {
	pin, err := signIn.CreatePin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create plex pin: %w", err)
	}

	authURL := signIn.AuthURL(pin)
	r.writePlain("→ Opening browser for Plex sign-in...\n")
	if err := openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for sign-in (%v timeout)...\n", authTimeout)

	waitCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	token, err := signIn.PollToken(waitCtx, pin)
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return "", fmt.Errorf("%w: plex sign-in timed out after %v", shared.ErrTimeout, authTimeout)
	default:
		return "", err
	}
}

// AuthStatus reports which account the stored AniList token belongs to.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(cmd); err != nil {
		return err
	}

	if r.list == nil {
		r.writePlain("AniList: ✗ Not authenticated (run 'anisync auth anilist')\n")
	} else {
		viewer, err := r.list.Viewer(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
		}
		r.writePlain("AniList: ✓ Authenticated as %s (id %d)\n", viewer.Name, viewer.ID)
	}

	if r.library == nil {
		r.writePlain("Plex:    ✗ Not configured (run 'anisync auth plex')\n")
	} else {
		r.writePlain("Plex:    ✓ %s\n", r.config.Credentials.Plex.URL)
	}
	return nil
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:  "anilist",
				Usage: "Authorize with AniList using OAuth2 and save the token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "token",
						Usage: "Store this access token instead of running the browser flow",
					},
				},
				Action: r.AuthAniList,
			},
			{
				Name:  "plex",
				Usage: "Sign in to Plex with a PIN and save the account token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "token",
						Usage: "Store this X-Plex-Token instead of running the PIN sign-in",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Plex Media Server address, e.g. http://127.0.0.1:32400",
					},
				},
				Action: r.AuthPlex,
			},
			{
				Name:   "status",
				Usage:  "Show the authenticated AniList account and Plex server",
				Action: r.AuthStatus,
			},
		},
	}
}
