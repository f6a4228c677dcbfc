package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/anisync/internal/shared"
	"golang.org/x/oauth2"
)

// Authenticator exchanges an authorization code for a token. [services.AniListClient] implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, credentials map[string]string) error
	Token() *oauth2.Token
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #0b1622; }
        .container { text-align: center; background: #151f2e; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.3); }
        h1 { color: #3db4f2; margin: 0 0 1rem 0; }
        p { color: #9fadbd; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

// OAuthHandler handles the AniList redirect of the authorization code flow.
type OAuthHandler struct {
	auth        Authenticator
	state       string
	logger      *log.Logger
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler that accepts a single callback carrying state.
// The state token should be cryptographically random ([shared.GenerateState]).
func NewOAuthHandler(auth Authenticator, state string, logger *log.Logger) *OAuthHandler {
	if logger == nil {
		logger = shared.NewDiscardLogger()
	}
	return &OAuthHandler{
		auth:       auth,
		state:      state,
		logger:     logger,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP validates the state parameter, exchanges the code and sends the result through the result channel.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed))
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.fail(w, http.StatusBadRequest, err)
		return
	}

	if err := h.auth.Authenticate(r.Context(), map[string]string{"auth_code": code}); err != nil {
		h.fail(w, http.StatusInternalServerError, fmt.Errorf("token exchange failed: %w", err))
		return
	}

	h.logger.Info("authorization code exchanged")
	h.Send(OAuthResult{Token: h.auth.Token()})
	h.render(w, http.StatusOK, "Authorization Successful", "You can close this window and return to the terminal.")
}

func (h *OAuthHandler) fail(w http.ResponseWriter, status int, err error) {
	h.logger.Error("authorization failed", "error", err)
	h.Send(OAuthResult{err: err})
	h.render(w, status, "Authorization Failed", err.Error())
}

func (h *OAuthHandler) render(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := callbackPage.Execute(w, struct{ Title, Message string }{title, message}); err != nil {
		h.logger.Warn("failed to render callback page", "error", err)
	}
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}
