// Package server provides the HTTP plumbing under the mediaq API: a gin router with middleware, and a server
// lifecycle bound to a context.
//
// # Middleware
//
// [NewRouter] installs, in order:
//   - [Logger], one structured line per request
//   - gin recovery, turning handler panics into 500s
//   - [CORS], for browser frontends served from another origin
//   - [RateLimit], a token bucket per client IP (golang.org/x/time/rate), skipped when the limit is zero
//
// Routes are registered by internal/web on the returned engine.
//
// # Lifecycle
//
// [Server.Run] listens until its context is cancelled and then shuts down gracefully. Long-lived event streams
// are ended by cancelling the base context of every request before [http.Server.Shutdown] waits for handlers.
package server
