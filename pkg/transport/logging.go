package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/reagent-dev/reagent/pkg/api"
)

// Logging returns middleware that emits one structured log entry per run:
// request ID, session, terminal status, and duration.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next RunCreator) RunCreator {
		return RunCreatorFunc(func(ctx context.Context, req *api.RunRequest) (*api.Run, error) {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			run, err := next.CreateRun(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("session_id", req.SessionID),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "run failed", attrs...)
			} else {
				attrs = append(attrs,
					slog.String("run_id", run.ID),
					slog.String("status", string(run.Status)),
				)
				logger.LogAttrs(ctx, slog.LevelInfo, "run completed", attrs...)
			}

			return run, err
		})
	}
}
