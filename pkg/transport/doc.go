// Package transport holds the HTTP plumbing shared by the bridge's
// handlers: the middleware chain, request ids, panic recovery, access
// logging, error bodies, and the registry of in-flight streams.
//
// # Handler Contracts
//
// The HTTP adapter depends on two narrow interfaces rather than concrete
// types:
//
//   - Upstream sends a translated chat request and returns the raw
//     response for relaying.
//   - storage.Ledger records one usage entry per chat request.
//
// # Middleware
//
// Middleware wraps an http.Handler. Chain(a, b, c) produces a(b(c(h))).
// Built-in middleware provides panic recovery, request id assignment
// (X-Request-ID, generated with google/uuid when absent), and structured
// access logging via log/slog. Every wrapper keeps http.Flusher and
// Unwrap working so that server-sent events reach the client as soon as
// they are written.
//
// # Error Bodies
//
// Errors produced by the bridge use a flat body, {"error": "<message>"},
// which is what OpenAI-compatible frontends display.
package transport
