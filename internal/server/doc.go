// Package server provides HTTP routing and the OAuth callback handler used by `anisync auth anilist`.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes the AniList authorization code flow. It validates the state parameter,
// hands the code to an [Authenticator] and sends the resulting token through a channel.
//
// It only processes one callback; later requests are rejected.
//
// When the user runs `anisync auth anilist`, a temporary HTTP server listens on the configured host and
// port, handles the redirect and shuts down once the token has been received.
package server
