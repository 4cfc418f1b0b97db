package sandbox

import "context"

// Acquirer abstracts how a sandbox server URL is obtained for one session.
// Implementations exist for static URL mode (development) and SandboxClaim
// mode (Kubernetes, in the kubernetes subpackage). The release function
// must be called when the session ends; it frees whatever backs the URL.
type Acquirer interface {
	Acquire(ctx context.Context) (sandboxURL string, release func(), err error)
}

// StaticAcquirer returns a fixed sandbox server URL. Used in development
// against a locally running sandbox-server.
type StaticAcquirer struct {
	URL string
}

var _ Acquirer = (*StaticAcquirer)(nil)

func (a *StaticAcquirer) Acquire(_ context.Context) (string, func(), error) {
	return a.URL, func() {}, nil
}
