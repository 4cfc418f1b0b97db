package transport

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/reagent-dev/reagent/pkg/api"
)

func okCreator(run *api.Run) RunCreator {
	return RunCreatorFunc(func(_ context.Context, _ *api.RunRequest) (*api.Run, error) {
		return run, nil
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next RunCreator) RunCreator {
			return RunCreatorFunc(func(ctx context.Context, req *api.RunRequest) (*api.Run, error) {
				order = append(order, name+"-in")
				run, err := next.CreateRun(ctx, req)
				order = append(order, name+"-out")
				return run, err
			})
		}
	}

	creator := Chain(mw("a"), mw("b"))(okCreator(&api.Run{ID: "run_1"}))
	if _, err := creator.CreateRun(context.Background(), &api.RunRequest{}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	want := []string{"a-in", "b-in", "b-out", "a-out"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	creator := Recovery()(RunCreatorFunc(func(_ context.Context, _ *api.RunRequest) (*api.Run, error) {
		panic("boom")
	}))

	_, err := creator.CreateRun(context.Background(), &api.RunRequest{})
	var agentErr *api.AgentError
	if !errors.As(err, &agentErr) {
		t.Fatalf("expected AgentError, got %v", err)
	}
	if agentErr.Category != api.ErrorCategoryServer {
		t.Errorf("category = %q", agentErr.Category)
	}
	if !strings.Contains(agentErr.Message, "boom") {
		t.Errorf("message = %q", agentErr.Message)
	}
}

func TestRequestIDAssigned(t *testing.T) {
	var seen string
	creator := RequestID()(RunCreatorFunc(func(ctx context.Context, _ *api.RunRequest) (*api.Run, error) {
		seen = RequestIDFromContext(ctx)
		return &api.Run{}, nil
	}))

	creator.CreateRun(context.Background(), &api.RunRequest{})
	if seen == "" {
		t.Error("expected a generated request ID")
	}
}

func TestRequestIDPreserved(t *testing.T) {
	var seen string
	creator := RequestID()(RunCreatorFunc(func(ctx context.Context, _ *api.RunRequest) (*api.Run, error) {
		seen = RequestIDFromContext(ctx)
		return &api.Run{}, nil
	}))

	ctx := ContextWithRequestID(context.Background(), "req-from-header")
	creator.CreateRun(ctx, &api.RunRequest{})
	if seen != "req-from-header" {
		t.Errorf("request ID = %q", seen)
	}
}

func TestLoggingPassesThrough(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	run := &api.Run{ID: "run_1", Status: api.RunStatusCompleted}
	creator := Logging(logger)(okCreator(run))

	got, err := creator.CreateRun(context.Background(), &api.RunRequest{})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if got != run {
		t.Error("logging middleware should not alter the run")
	}

	wantErr := errors.New("upstream failure")
	creator = Logging(logger)(RunCreatorFunc(func(_ context.Context, _ *api.RunRequest) (*api.Run, error) {
		return nil, wantErr
	}))
	if _, err := creator.CreateRun(context.Background(), &api.RunRequest{}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v", err)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		err  *api.AgentError
		want int
	}{
		{api.NewInvalidRequestError("input", "empty"), 400},
		{api.NewNotFoundError("missing"), 404},
		{api.NewOracleError("backend down"), 502},
		{api.NewServerError("oops"), 500},
		{api.NewSandboxError("provisioning failed"), 500},
	}
	for _, c := range cases {
		if got := HTTPStatusFromError(c.err); got != c.want {
			t.Errorf("HTTPStatusFromError(%s) = %d, want %d", c.err.Category, got, c.want)
		}
	}
}
