package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/artifacts"
	"github.com/reagent-dev/reagent/pkg/runtime"
)

// Config holds settings for the sandbox environment.
type Config struct {
	// ExecTimeout bounds one remote code execution (default 60s).
	ExecTimeout time.Duration

	// InstallTimeout bounds one package installation (default 120s).
	InstallTimeout time.Duration

	// CallTimeout bounds a full HTTP round trip (default 180s; must exceed
	// the execution and install timeouts).
	CallTimeout time.Duration

	// OutputLimit caps captured stdout/stderr per run.
	OutputLimit int
}

func (c *Config) applyDefaults() {
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = 60 * time.Second
	}
	if c.InstallTimeout <= 0 {
		c.InstallTimeout = 120 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 180 * time.Second
	}
	if c.OutputLimit == 0 {
		c.OutputLimit = runtime.DefaultOutputLimit
	}
}

// Env is a persistent remote execution environment bound to one agent
// session. The remote session is provisioned lazily on first use and
// released exactly once on Close, on every exit path.
type Env struct {
	cfg      Config
	acquirer Acquirer
	client   *Client
	sink     *artifacts.Sink

	mu        sync.Mutex
	baseURL   string
	sessionID string
	release   func()

	closeOnce sync.Once
	closed    bool
}

var (
	_ runtime.Environment      = (*Env)(nil)
	_ runtime.PackageInstaller = (*Env)(nil)
)

// New creates a sandbox environment. No remote resources are touched until
// the first Run or InstallPackage call.
func New(cfg Config, acquirer Acquirer, sink *artifacts.Sink) *Env {
	cfg.applyDefaults()
	return &Env{
		cfg:      cfg,
		acquirer: acquirer,
		client:   NewClient(cfg.CallTimeout),
		sink:     sink,
	}
}

// Kind returns runtime.KindSandbox.
func (e *Env) Kind() runtime.Kind {
	return runtime.KindSandbox
}

// Run ships code to the remote session. Inline files returned by the
// sandbox are persisted through the artifact sink.
func (e *Env) Run(ctx context.Context, code string) (*runtime.Execution, error) {
	baseURL, sessionID, err := e.provision(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Execute(ctx, baseURL, sessionID, &ExecuteRequest{
		Code:           runtime.InstrumentPlotCode(code),
		TimeoutSeconds: int(e.cfg.ExecTimeout.Seconds()),
	})
	if err != nil {
		return nil, api.NewSandboxError(err.Error())
	}

	return &runtime.Execution{
		Stdout:    runtime.Truncate(resp.Stdout, e.cfg.OutputLimit),
		Stderr:    runtime.Truncate(resp.Stderr, e.cfg.OutputLimit),
		Artifacts: e.saveFiles(resp.Files),
		Duration:  time.Duration(resp.ExecutionTimeMs) * time.Millisecond,
	}, nil
}

// InstallPackage installs one package into the remote session.
func (e *Env) InstallPackage(ctx context.Context, name string) (string, error) {
	baseURL, sessionID, err := e.provision(ctx)
	if err != nil {
		return "", err
	}

	resp, err := e.client.Install(ctx, baseURL, sessionID, &InstallRequest{
		Packages:       []string{name},
		TimeoutSeconds: int(e.cfg.InstallTimeout.Seconds()),
	})
	if err != nil {
		return "", api.NewSandboxError(err.Error())
	}
	if resp.Status != "success" {
		return "", api.NewSandboxError(fmt.Sprintf("install %q failed: %s", name, resp.Output))
	}
	return resp.Output, nil
}

// Reset tears down the remote session and re-provisions on next use.
// Installed packages are lost with the remote session, so reset through
// the owning session.Session, which clears its installed set in step.
func (e *Env) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked(ctx)
	return nil
}

// Close releases the remote session. Idempotent; reachable on every exit
// path (normal completion, truncation, fatal abort) so billed remote
// resources never leak.
func (e *Env) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.teardownLocked(ctx)
		e.closed = true
	})
	return nil
}

// provision lazily creates the remote session, once. Provisioning failure
// is recoverable: the caller wraps it into an error-bearing tool result.
func (e *Env) provision(ctx context.Context) (baseURL, sessionID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", "", api.NewSandboxError("sandbox environment is closed")
	}
	if e.sessionID != "" {
		return e.baseURL, e.sessionID, nil
	}

	url, release, err := e.acquirer.Acquire(ctx)
	if err != nil {
		return "", "", api.NewSandboxError(fmt.Sprintf("acquire sandbox: %v", err))
	}

	id, err := e.client.CreateSession(ctx, url)
	if err != nil {
		release()
		return "", "", api.NewSandboxError(fmt.Sprintf("provision sandbox session: %v", err))
	}

	e.baseURL = url
	e.sessionID = id
	e.release = release
	slog.Info("sandbox session provisioned", "url", url, "remote_session", id)
	return url, id, nil
}

// teardownLocked releases the remote session if one exists. Must be called
// with the mutex held. Teardown errors are logged, not returned: the
// session is gone from the caller's perspective either way.
func (e *Env) teardownLocked(ctx context.Context) {
	if e.sessionID == "" {
		return
	}

	// A short independent timeout so teardown completes even when the
	// caller's context is already cancelled.
	tdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := e.client.DeleteSession(tdCtx, e.baseURL, e.sessionID); err != nil {
		slog.Warn("sandbox teardown failed", "remote_session", e.sessionID, "error", err.Error())
	} else {
		slog.Info("sandbox session released", "remote_session", e.sessionID)
	}

	if e.release != nil {
		e.release()
	}
	e.baseURL = ""
	e.sessionID = ""
	e.release = nil
}

// saveFiles persists inline base64 payloads through the sink. Decode or
// write failures degrade to "no artifact" per the capture contract.
func (e *Env) saveFiles(files map[string]string) []api.Artifact {
	var saved []api.Artifact
	for name, b64 := range files {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			slog.Warn("sandbox artifact decode failed", "file", name, "error", err.Error())
			continue
		}
		art, err := e.sink.Store(name, data)
		if err != nil {
			slog.Warn("sandbox artifact store failed", "file", name, "error", err.Error())
			continue
		}
		saved = append(saved, art)
	}
	return saved
}
