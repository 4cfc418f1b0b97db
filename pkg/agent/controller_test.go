package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/oracle"
	"github.com/reagent-dev/reagent/pkg/runtime"
	"github.com/reagent-dev/reagent/pkg/session"
	"github.com/reagent-dev/reagent/pkg/tools"
)

// scriptedOracle returns one scripted outcome per turn, in order.
type scriptedOracle struct {
	turns []func(req *oracle.Request) (*oracle.Decision, error)
	calls atomic.Int32
}

func (o *scriptedOracle) Complete(ctx context.Context, req *oracle.Request) (*oracle.Decision, error) {
	n := int(o.calls.Add(1)) - 1
	if n >= len(o.turns) {
		return nil, api.NewOracleError("no scripted turn left")
	}
	return o.turns[n](req)
}

func answerTurn(text string) func(*oracle.Request) (*oracle.Decision, error) {
	return func(*oracle.Request) (*oracle.Decision, error) {
		return &oracle.Decision{Answer: text}, nil
	}
}

func toolTurn(id, name, args string) func(*oracle.Request) (*oracle.Decision, error) {
	return func(*oracle.Request) (*oracle.Decision, error) {
		return &oracle.Decision{ToolCall: &api.ToolCall{ID: id, Name: name, Arguments: args}}, nil
	}
}

// fakeEnv records executed code and supports package installs.
type fakeEnv struct {
	kind     runtime.Kind
	runs     []string
	installs []string
	stdout   string
}

func (f *fakeEnv) Kind() runtime.Kind { return f.kind }

func (f *fakeEnv) Run(ctx context.Context, code string) (*runtime.Execution, error) {
	f.runs = append(f.runs, code)
	out := f.stdout
	if out == "" {
		out = "ok"
	}
	return &runtime.Execution{Stdout: out}, nil
}

func (f *fakeEnv) Reset(ctx context.Context) error { return nil }
func (f *fakeEnv) Close(ctx context.Context) error { return nil }

func (f *fakeEnv) InstallPackage(ctx context.Context, name string) (string, error) {
	f.installs = append(f.installs, name)
	return "installed " + name, nil
}

func newController(o oracle.Oracle, cfg Config) *Controller {
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = time.Millisecond
	}
	return NewController(o, tools.NewDispatcher(nil, nil), cfg, nil)
}

func TestRun_SingleToolCallThenAnswer(t *testing.T) {
	env := &fakeEnv{kind: runtime.KindLocal, stdout: "55\n"}
	sess := session.New("sess_a", env, nil)

	o := &scriptedOracle{turns: []func(*oracle.Request) (*oracle.Decision, error){
		toolTurn("call_1", "execute_code", `{"code":"print(fib(10))"}`),
		func(req *oracle.Request) (*oracle.Decision, error) {
			// The observation from the dispatch must be visible.
			last := req.Messages[len(req.Messages)-1]
			if last.Role != api.RoleTool || last.ToolResult == nil || last.ToolResult.Stdout != "55\n" {
				t.Errorf("last message = %+v", last)
			}
			return &oracle.Decision{Answer: "The 10th Fibonacci number is 55."}, nil
		},
	}}

	run, err := newController(o, Config{}).Run(context.Background(), sess, "What is the 10th Fibonacci number?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != api.RunStatusCompleted {
		t.Errorf("status = %q", run.Status)
	}
	if run.Answer != "The 10th Fibonacci number is 55." {
		t.Errorf("answer = %q", run.Answer)
	}
	if len(env.runs) != 1 {
		t.Errorf("env ran %d times", len(env.runs))
	}

	// Transcript order: user, assistant tool call, tool result, assistant answer.
	roles := make([]api.Role, 0, len(run.Messages))
	for _, m := range run.Messages {
		roles = append(roles, m.Role)
	}
	want := []api.Role{api.RoleUser, api.RoleAssistant, api.RoleTool, api.RoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v", roles)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("message %d role = %q, want %q", i, roles[i], want[i])
		}
	}
}

func TestRun_InstallIdempotence(t *testing.T) {
	env := &fakeEnv{kind: runtime.KindSandbox}
	sess := session.New("sess_b", env, nil)

	o := &scriptedOracle{turns: []func(*oracle.Request) (*oracle.Decision, error){
		toolTurn("call_1", "install_package", `{"package":"pandas"}`),
		toolTurn("call_2", "install_package", `{"package":"pandas"}`),
		toolTurn("call_3", "execute_code", `{"code":"import pandas\nprint(pandas.__version__)"}`),
		answerTurn("pandas is ready."),
	}}

	run, err := newController(o, Config{}).Run(context.Background(), sess, "Set up pandas")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != api.RunStatusCompleted {
		t.Errorf("status = %q", run.Status)
	}
	// One explicit install; the repeat and the execute_code auto-resolve
	// both hit the session's installed set.
	if len(env.installs) != 1 || env.installs[0] != "pandas" {
		t.Errorf("installs = %v", env.installs)
	}
}

func TestRun_UnknownToolSelfCorrects(t *testing.T) {
	env := &fakeEnv{kind: runtime.KindLocal}
	sess := session.New("sess_c", env, nil)

	o := &scriptedOracle{turns: []func(*oracle.Request) (*oracle.Decision, error){
		toolTurn("call_1", "run_shell", `{"cmd":"ls"}`),
		func(req *oracle.Request) (*oracle.Decision, error) {
			last := req.Messages[len(req.Messages)-1]
			if last.ToolResult == nil || !last.ToolResult.IsError() {
				t.Errorf("expected an error observation, got %+v", last)
			}
			return &oracle.Decision{ToolCall: &api.ToolCall{
				ID: "call_2", Name: "execute_code", Arguments: `{"code":"import os\nprint(os.listdir())"}`,
			}}, nil
		},
		answerTurn("Here are the files."),
	}}

	run, err := newController(o, Config{}).Run(context.Background(), sess, "List the files")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != api.RunStatusCompleted {
		t.Errorf("status = %q", run.Status)
	}
	if len(env.runs) != 1 {
		t.Errorf("env ran %d times", len(env.runs))
	}
}

// outageOracle always fails with a retryable error.
type outageOracle struct {
	calls atomic.Int32
}

func (o *outageOracle) Complete(ctx context.Context, req *oracle.Request) (*oracle.Decision, error) {
	o.calls.Add(1)
	return nil, oracle.Retryable(api.NewOracleError("connection refused"))
}

func TestRun_OracleOutageFailsWithNotice(t *testing.T) {
	o := &outageOracle{}
	sess := session.New("sess_d", &fakeEnv{kind: runtime.KindLocal}, nil)

	run, err := newController(o, Config{OracleRetries: 2}).Run(context.Background(), sess, "Hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != api.RunStatusFailed {
		t.Errorf("status = %q", run.Status)
	}
	if !strings.Contains(run.Answer, "sorry") {
		t.Errorf("answer should be a user-visible notice: %q", run.Answer)
	}
	// Initial attempt plus two retries.
	if got := o.calls.Load(); got != 3 {
		t.Errorf("oracle called %d times, want 3", got)
	}
}

func TestRun_NonRetryableOracleErrorFailsFast(t *testing.T) {
	o := &scriptedOracle{turns: []func(*oracle.Request) (*oracle.Decision, error){
		func(*oracle.Request) (*oracle.Decision, error) {
			return nil, api.NewOracleError("model not found")
		},
	}}
	sess := session.New("sess_e", &fakeEnv{kind: runtime.KindLocal}, nil)

	run, err := newController(o, Config{OracleRetries: 5}).Run(context.Background(), sess, "Hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != api.RunStatusFailed {
		t.Errorf("status = %q", run.Status)
	}
	if got := o.calls.Load(); got != 1 {
		t.Errorf("oracle called %d times, want 1 (no retries for permanent errors)", got)
	}
}

func TestRun_BudgetExhaustionTruncates(t *testing.T) {
	env := &fakeEnv{kind: runtime.KindLocal, stdout: "partial result: 42\n"}
	sess := session.New("sess_f", env, nil)

	// The oracle never stops calling tools.
	looping := &scriptedOracle{turns: []func(*oracle.Request) (*oracle.Decision, error){
		toolTurn("call_1", "execute_code", `{"code":"step1()"}`),
		toolTurn("call_2", "execute_code", `{"code":"step2()"}`),
		toolTurn("call_3", "execute_code", `{"code":"step3()"}`),
	}}

	run, err := newController(looping, Config{MaxIterations: 2}).Run(context.Background(), sess, "Loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != api.RunStatusTruncated {
		t.Errorf("status = %q", run.Status)
	}
	if !strings.Contains(run.Answer, "partial result: 42") {
		t.Errorf("truncated answer should carry the last observation: %q", run.Answer)
	}
	if len(env.runs) != 2 {
		t.Errorf("env ran %d times, want 2", len(env.runs))
	}
}

func TestRun_EmptyInputRejected(t *testing.T) {
	sess := session.New("sess_g", &fakeEnv{kind: runtime.KindLocal}, nil)
	_, err := newController(&scriptedOracle{}, Config{}).Run(context.Background(), sess, "")

	var agentErr *api.AgentError
	if !errors.As(err, &agentErr) || agentErr.Category != api.ErrorCategoryInvalidRequest {
		t.Errorf("expected invalid_request error, got %v", err)
	}
}

func TestRun_UsageAccumulates(t *testing.T) {
	sess := session.New("sess_h", &fakeEnv{kind: runtime.KindLocal}, nil)

	o := &scriptedOracle{turns: []func(*oracle.Request) (*oracle.Decision, error){
		func(*oracle.Request) (*oracle.Decision, error) {
			return &oracle.Decision{
				ToolCall: &api.ToolCall{ID: "call_1", Name: "execute_code", Arguments: `{"code":"print(1)"}`},
				Usage:    &api.Usage{InputTokens: 100, OutputTokens: 10, TotalTokens: 110},
			}, nil
		},
		func(*oracle.Request) (*oracle.Decision, error) {
			return &oracle.Decision{
				Answer: "done",
				Usage:  &api.Usage{InputTokens: 120, OutputTokens: 5, TotalTokens: 125},
			}, nil
		},
	}}

	run, err := newController(o, Config{}).Run(context.Background(), sess, "Count tokens")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Usage == nil || run.Usage.TotalTokens != 235 || run.Usage.InputTokens != 220 {
		t.Errorf("usage = %+v", run.Usage)
	}
}

func TestRun_MultiTurnSessionKeepsHistory(t *testing.T) {
	sess := session.New("sess_i", &fakeEnv{kind: runtime.KindLocal}, nil)
	ctrl := newController(&scriptedOracle{turns: []func(*oracle.Request) (*oracle.Decision, error){
		answerTurn("first answer"),
		func(req *oracle.Request) (*oracle.Decision, error) {
			// The second run must see the first run's transcript.
			if len(req.Messages) != 3 {
				t.Errorf("second run sees %d messages, want 3", len(req.Messages))
			}
			return &oracle.Decision{Answer: "second answer"}, nil
		},
	}}, Config{})

	run1, err := ctrl.Run(context.Background(), sess, "first question")
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	run2, err := ctrl.Run(context.Background(), sess, "second question")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if len(run1.Messages) != 2 || len(run2.Messages) != 2 {
		t.Errorf("per-run transcripts: %d and %d messages", len(run1.Messages), len(run2.Messages))
	}
	if sess.Len() != 4 {
		t.Errorf("session history has %d messages, want 4", sess.Len())
	}
}
