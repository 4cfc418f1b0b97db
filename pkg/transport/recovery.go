package transport

import (
	"context"
	"fmt"

	"github.com/reagent-dev/reagent/pkg/api"
)

// Recovery returns middleware that converts handler panics into server
// errors. The server keeps accepting requests after a recovered panic.
func Recovery() Middleware {
	return func(next RunCreator) RunCreator {
		return RunCreatorFunc(func(ctx context.Context, req *api.RunRequest) (run *api.Run, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					run = nil
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.CreateRun(ctx, req)
		})
	}
}
