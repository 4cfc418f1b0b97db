// Package runtime abstracts "run this code and return its output" over two
// variants: an ephemeral local interpreter and a persistent remote sandbox.
// Both present the same Environment interface to the tool dispatcher, and
// both preserve interpreter state across calls within one session.
package runtime

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/reagent-dev/reagent/pkg/api"
)

// Kind identifies the environment variant.
type Kind string

const (
	KindLocal   Kind = "local"
	KindSandbox Kind = "sandbox"
)

// Execution is the captured outcome of one code run. Faults raised by the
// executed code are data (Stderr), never Go errors; an Environment returns
// a non-nil error only for faults of the environment itself (interpreter
// gone, sandbox unreachable), and even those are converted to error-bearing
// tool results by the dispatcher.
type Execution struct {
	Stdout    string
	Stderr    string
	Artifacts []api.Artifact
	Duration  time.Duration
}

// Environment runs code on behalf of exactly one session.
type Environment interface {
	// Kind returns the variant.
	Kind() Kind

	// Run executes code and returns its captured output and any artifacts
	// produced. Output is already truncated to the environment's limit.
	Run(ctx context.Context, code string) (*Execution, error)

	// Reset clears interpreter state. For the sandbox variant this tears
	// down and re-provisions the remote session.
	Reset(ctx context.Context) error

	// Close releases the environment. For the sandbox variant this tears
	// down the remote session; it must be reachable on every exit path and
	// is idempotent.
	Close(ctx context.Context) error
}

// PackageInstaller is implemented by environments that support installing
// packages (the sandbox variant). The local variant deliberately does not;
// the dispatcher reports "not applicable" for it.
type PackageInstaller interface {
	// InstallPackage installs one package into the environment and returns
	// the installer's output.
	InstallPackage(ctx context.Context, name string) (string, error)
}

// DefaultOutputLimit caps captured stdout/stderr per run.
const DefaultOutputLimit = 8000

// truncationMarker signals that output was cut; output is never dropped
// silently.
const truncationMarker = "\n... [output truncated]"

// Truncate caps s to limit characters, appending a truncation marker when
// anything was cut. A non-positive limit means unlimited.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + truncationMarker
}

var (
	pltShowPattern = regexp.MustCompile(`plt\.show\s*\(\s*\)`)
	usesPlt        = regexp.MustCompile(`(?m)\bplt\.`)
)

// savefigSnippet writes the current figure into the interpreter's output
// directory, where the artifact sink picks it up. The sink's sequence
// numbering keeps repeated "figure.png" names collision-free.
const savefigSnippet = `plt.savefig(__import__("os").path.join(__import__("os").environ.get("OUTPUT_DIR", "."), "figure.png"))`

// InstrumentPlotCode rewrites matplotlib usage for headless execution:
// plt.show() calls (which would block or no-op without a display) become
// savefig calls into the output directory, and plotting code that neither
// shows nor saves gets a trailing savefig so the figure is not lost.
func InstrumentPlotCode(code string) string {
	if !usesPlt.MatchString(code) {
		return code
	}
	if pltShowPattern.MatchString(code) {
		return pltShowPattern.ReplaceAllString(code, savefigSnippet)
	}
	if !strings.Contains(code, "savefig") {
		return code + "\n" + savefigSnippet + "\n"
	}
	return code
}
