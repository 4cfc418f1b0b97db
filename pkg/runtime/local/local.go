// Package local implements the ephemeral local execution environment: one
// Python interpreter process per session, started lazily on first use.
//
// State policy (explicit, by configuration rather than inference):
// interpreter state persists for the lifetime of the session and is cleared
// only by Reset. Sessions each own their own interpreter process, so
// variables never leak between sessions; there is however no OS-level
// isolation between the interpreter and the host, which is why callers
// wanting isolation use the sandbox variant.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/reagent-dev/reagent/pkg/artifacts"
	"github.com/reagent-dev/reagent/pkg/runtime"
	"github.com/reagent-dev/reagent/pkg/runtime/pyexec"
)

// Config holds settings for the local environment.
type Config struct {
	// Python is the interpreter binary (default "python3").
	Python string

	// ExecTimeout bounds one code execution (default 60s).
	ExecTimeout time.Duration

	// OutputLimit caps captured stdout/stderr per run (default
	// runtime.DefaultOutputLimit).
	OutputLimit int
}

func (c *Config) applyDefaults() {
	if c.Python == "" {
		c.Python = "python3"
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = 60 * time.Second
	}
	if c.OutputLimit == 0 {
		c.OutputLimit = runtime.DefaultOutputLimit
	}
}

// Env is a local execution environment bound to one session.
type Env struct {
	cfg     Config
	sink    *artifacts.Sink
	workDir string
	staging string

	mu     sync.Mutex
	interp *pyexec.Interp
	closed bool
}

var _ runtime.Environment = (*Env)(nil)

// New creates a local environment. The interpreter process is not started
// until the first Run call. workRoot holds per-session scratch directories.
func New(cfg Config, sink *artifacts.Sink, workRoot, sessionID string) (*Env, error) {
	cfg.applyDefaults()

	workDir := filepath.Join(workRoot, sessionID)
	staging := filepath.Join(workDir, "output")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Env{
		cfg:     cfg,
		sink:    sink,
		workDir: workDir,
		staging: staging,
	}, nil
}

// Kind returns runtime.KindLocal.
func (e *Env) Kind() runtime.Kind {
	return runtime.KindLocal
}

// Run executes code in the session's interpreter, capturing output and any
// artifacts written to the output directory.
func (e *Env) Run(ctx context.Context, code string) (*runtime.Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("environment is closed")
	}

	interp, err := e.interpLocked()
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecTimeout)
	defer cancel()

	res, err := interp.Exec(execCtx, runtime.InstrumentPlotCode(code))
	if err != nil {
		// The interpreter is gone (timeout kill or crash). Drop the handle
		// so the next Run starts a fresh one.
		e.interp = nil
		return nil, err
	}

	return &runtime.Execution{
		Stdout:    runtime.Truncate(res.Stdout, e.cfg.OutputLimit),
		Stderr:    runtime.Truncate(res.Stderr, e.cfg.OutputLimit),
		Artifacts: e.sink.Capture(e.staging),
		Duration:  res.Duration,
	}, nil
}

// Reset discards interpreter state. The next Run starts a fresh process.
func (e *Env) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.interp != nil {
		e.interp.Close()
		e.interp = nil
		slog.Debug("local interpreter reset", "workdir", e.workDir)
	}
	return nil
}

// Close terminates the interpreter. Idempotent.
func (e *Env) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.interp != nil {
		e.interp.Close()
		e.interp = nil
	}
	return nil
}

// interpLocked lazily starts the interpreter. Must be called with the
// mutex held.
func (e *Env) interpLocked() (*pyexec.Interp, error) {
	if e.interp != nil {
		return e.interp, nil
	}

	interp, err := pyexec.Start(pyexec.Options{
		Python:  e.cfg.Python,
		WorkDir: e.workDir,
		Env: []string{
			"OUTPUT_DIR=" + e.staging,
			"MPLBACKEND=Agg", // Headless plotting; figures go through OUTPUT_DIR.
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start local interpreter: %w", err)
	}
	e.interp = interp
	slog.Debug("local interpreter started", "workdir", e.workDir)
	return interp, nil
}
