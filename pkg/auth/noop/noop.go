// Package noop provides an authenticator that admits every request with
// an anonymous identity. It is the development default.
package noop

import (
	"context"
	"net/http"

	"github.com/reagent-dev/reagent/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.Result {
	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     "anonymous",
			ServiceTier: "default",
		},
	}
}
