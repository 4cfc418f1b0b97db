// Package transport defines the handler contract and middleware chain for
// the agent's HTTP layer.
//
// The transport layer bridges external clients and the reasoning
// controller. It deserializes create-run requests into the core types in
// pkg/api, dispatches them, and serializes terminal runs back as JSON.
//
// RunCreator is the single handler contract: it receives a run request and
// returns the terminal run. Cross-cutting concerns (panic recovery, request
// ID assignment via X-Request-ID, structured logging with log/slog) are
// middleware wrapping a RunCreator.
package transport
