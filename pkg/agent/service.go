package agent

import (
	"context"
	"log/slog"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/artifacts"
	"github.com/reagent-dev/reagent/pkg/session"
	"github.com/reagent-dev/reagent/pkg/storage"
)

// Service binds the controller to the session manager and run store. It
// implements transport.RunCreator: resolve the session, drive the run to
// a terminal state, persist it, and index its artifacts for download.
type Service struct {
	controller *Controller
	sessions   *session.Manager
	runs       storage.RunStore
	registry   *artifacts.Registry
	logger     *slog.Logger
}

// NewService creates a Service. The run store and artifact registry are
// optional; without them runs are not retrievable after the response.
func NewService(controller *Controller, sessions *session.Manager, runs storage.RunStore, registry *artifacts.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		controller: controller,
		sessions:   sessions,
		runs:       runs,
		registry:   registry,
		logger:     logger,
	}
}

// CreateRun executes one run against the requested session.
func (s *Service) CreateRun(ctx context.Context, req *api.RunRequest) (*api.Run, error) {
	if req.SessionID != "" && !api.ValidateSessionID(req.SessionID) {
		return nil, api.NewInvalidRequestError("session_id", "malformed session ID: "+req.SessionID)
	}

	sess, err := s.sessions.GetOrCreate(req.SessionID, req.Environment)
	if err != nil {
		return nil, err
	}

	run, err := s.controller.Run(ctx, sess, string(req.Input))
	if err != nil {
		return nil, err
	}

	if s.registry != nil {
		s.registry.Add(run.Artifacts...)
	}

	// A failed save is not a failed run; the caller already has the result.
	if s.runs != nil {
		if err := s.runs.SaveRun(ctx, run); err != nil {
			s.logger.Warn("run persist failed", "run_id", run.ID, "error", err)
		}
	}

	return run, nil
}
