package transport

import (
	"context"

	"github.com/reagent-dev/reagent/pkg/api"
)

// RunCreator executes a run request to completion and returns the terminal
// run. Oracle outages and budget exhaustion are not Go errors here; they
// come back as runs with status "failed" or "truncated". A returned error
// means the request itself could not be served.
type RunCreator interface {
	CreateRun(ctx context.Context, req *api.RunRequest) (*api.Run, error)
}

// RunCreatorFunc adapts an ordinary function to a RunCreator.
type RunCreatorFunc func(ctx context.Context, req *api.RunRequest) (*api.Run, error)

// CreateRun calls f(ctx, req).
func (f RunCreatorFunc) CreateRun(ctx context.Context, req *api.RunRequest) (*api.Run, error) {
	return f(ctx, req)
}

// Middleware wraps a RunCreator with cross-cutting behavior. The first
// middleware in a chain is the outermost wrapper.
type Middleware func(RunCreator) RunCreator

// Chain composes middleware: Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next RunCreator) RunCreator {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// RequestIDFromContext extracts the request ID, or "" if none is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
