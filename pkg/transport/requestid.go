package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/reagent-dev/reagent/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// request. A request ID already present in the context (set by the HTTP
// adapter from the X-Request-ID header) is kept.
func RequestID() Middleware {
	return func(next RunCreator) RunCreator {
		return RunCreatorFunc(func(ctx context.Context, req *api.RunRequest) (*api.Run, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, generateRequestID())
			}
			return next.CreateRun(ctx, req)
		})
	}
}

func generateRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
