package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/deps"
	"github.com/reagent-dev/reagent/pkg/observability"
	"github.com/reagent-dev/reagent/pkg/runtime"
	"github.com/reagent-dev/reagent/pkg/session"
	"github.com/reagent-dev/reagent/pkg/websearch"
)

// DefaultMaxSearchResults caps web_search results when the oracle does not
// ask for a specific count.
const DefaultMaxSearchResults = 5

// Dispatcher routes tool calls to the session's environment and the search
// collaborator. Dispatch never returns a Go error: every failure becomes an
// error-bearing ToolResult so the loop continues and the oracle can
// self-correct.
type Dispatcher struct {
	search websearch.Adapter
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. search may be nil when no search
// backend is configured; web_search calls then produce an error result.
func NewDispatcher(search websearch.Adapter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{search: search, logger: logger}
}

// Dispatch executes one tool call against the session. The returned result
// always carries the originating call ID.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, call *api.ToolCall) *api.ToolResult {
	start := time.Now()

	var result *api.ToolResult
	switch Name(call.Name) {
	case NameExecuteCode:
		result = d.executeCode(ctx, sess, call)
	case NameInstallPackage:
		result = d.installPackage(ctx, sess, call)
	case NameWebSearch:
		result = d.webSearch(ctx, call)
	default:
		result = errorResult(call, fmt.Sprintf(
			"unknown tool %q; available tools: %s, %s, %s",
			call.Name, NameExecuteCode, NameInstallPackage, NameWebSearch))
	}

	status := "ok"
	if result.IsError() {
		status = "error"
	}
	observability.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()
	observability.ToolDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())

	d.logger.Debug("tool dispatched",
		"session_id", sess.ID,
		"tool", call.Name,
		"call_id", call.ID,
		"status", status,
		"duration", time.Since(start))
	return result
}

func (d *Dispatcher) executeCode(ctx context.Context, sess *session.Session, call *api.ToolCall) *api.ToolResult {
	var args executeCodeArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResult(call, fmt.Sprintf("invalid execute_code arguments: %s", err))
	}
	if args.Code == "" {
		return errorResult(call, "execute_code requires a non-empty \"code\" argument")
	}

	env := sess.Environment()

	// Environments that support installs get missing imports resolved and
	// installed before the code runs.
	if installer, ok := env.(runtime.PackageInstaller); ok {
		reqs := deps.Resolve(args.Code)
		installed, err := deps.EnsureInstalled(ctx, installer, sess, reqs)
		if err != nil {
			return errorResult(call, fmt.Sprintf("dependency installation failed: %s", err))
		}
		if len(installed) > 0 {
			d.logger.Info("dependencies installed", "session_id", sess.ID, "packages", installed)
		}
	}

	exec, err := env.Run(ctx, args.Code)
	if err != nil {
		return errorResult(call, fmt.Sprintf("execution failed: %s", err))
	}

	return &api.ToolResult{
		CallID:    call.ID,
		Stdout:    exec.Stdout,
		Stderr:    exec.Stderr,
		Artifacts: exec.Artifacts,
	}
}

func (d *Dispatcher) installPackage(ctx context.Context, sess *session.Session, call *api.ToolCall) *api.ToolResult {
	var args installPackageArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResult(call, fmt.Sprintf("invalid install_package arguments: %s", err))
	}
	if args.Package == "" {
		return errorResult(call, "install_package requires a non-empty \"package\" argument")
	}

	pkg := deps.PackageName(args.Package)

	installer, ok := sess.Environment().(runtime.PackageInstaller)
	if !ok {
		return &api.ToolResult{
			CallID: call.ID,
			Value: fmt.Sprintf("Package installation is not applicable in the %s environment; "+
				"common data-analysis libraries are preinstalled.", sess.Environment().Kind()),
		}
	}

	if sess.IsInstalled(pkg) {
		return &api.ToolResult{
			CallID: call.ID,
			Value:  fmt.Sprintf("Package %q is already installed.", pkg),
		}
	}

	output, err := installer.InstallPackage(ctx, pkg)
	if err != nil {
		return errorResult(call, fmt.Sprintf("failed to install %q: %s", pkg, err))
	}
	sess.RecordInstalled(pkg)

	return &api.ToolResult{
		CallID: call.ID,
		Value:  fmt.Sprintf("Installed %q.\n%s", pkg, runtime.Truncate(output, runtime.DefaultOutputLimit)),
	}
}

func (d *Dispatcher) webSearch(ctx context.Context, call *api.ToolCall) *api.ToolResult {
	var args webSearchArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return errorResult(call, fmt.Sprintf("invalid web_search arguments: %s", err))
	}
	if args.Query == "" {
		return errorResult(call, "web_search requires a non-empty \"query\" argument")
	}
	if d.search == nil {
		return errorResult(call, "web search is not configured")
	}

	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxSearchResults
	}

	results, err := d.search.Search(ctx, args.Query, maxResults)
	if err != nil {
		return errorResult(call, fmt.Sprintf("search failed: %s", err))
	}

	return &api.ToolResult{
		CallID: call.ID,
		Value:  websearch.Format(args.Query, results),
	}
}

func errorResult(call *api.ToolCall, msg string) *api.ToolResult {
	return &api.ToolResult{CallID: call.ID, Error: msg}
}
