package deps

import (
	"context"
	"fmt"

	"github.com/reagent-dev/reagent/pkg/runtime"
)

// InstallSet tracks which packages a session already installed. Implemented
// by the session type; kept as an interface here so resolution stays free of
// session wiring.
type InstallSet interface {
	IsInstalled(pkg string) bool
	RecordInstalled(pkg string)
}

// EnsureInstalled installs every requirement not yet present in the set,
// issuing at most one install per package per session. It returns the names
// of packages newly installed. The first install failure stops the pass;
// requirements already recorded are never re-sent.
func EnsureInstalled(ctx context.Context, installer runtime.PackageInstaller, set InstallSet, reqs []Requirement) ([]string, error) {
	var installed []string
	for _, req := range reqs {
		if set.IsInstalled(req.Package) {
			continue
		}
		if _, err := installer.InstallPackage(ctx, req.Package); err != nil {
			return installed, fmt.Errorf("install %s: %w", req.Package, err)
		}
		set.RecordInstalled(req.Package)
		installed = append(installed, req.Package)
	}
	return installed, nil
}
