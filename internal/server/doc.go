// Package server provides HTTP routing, middleware, and handlers for the web
// API and the CLI login flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # API Surface
//
// [APIHandler] serves the callable surface: code exchange, token refresh,
// authorization-checked token decryption, recommendations, mood analysis, and
// per-user player state with its mutation endpoints. Authenticated routes
// require a Bearer session credential verified by [Auth] middleware; the
// authenticated user id travels in the request context.
//
// Player endpoints are backed by one playback sync per logged-in user,
// created lazily on first access and torn down on logout so no poller
// outlives its session.
//
// # OAuth Callback Handler
//
// [CallbackHandler] implements the loopback leg of the CLI login flow. It
// validates the state parameter (CSRF protection), captures the
// authorization code, and sends it through a channel for the command layer
// to exchange. It only processes one callback to prevent replay attacks.
package server
