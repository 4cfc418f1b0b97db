package auth

import (
	"context"
	"errors"
	"net/http"
)

// Decision is the outcome of a single authenticator's vote.
type Decision int

const (
	// Yes means the credentials are valid. The chain stops and the
	// identity is attached to the request.
	Yes Decision = iota

	// No means credentials were presented but are invalid. The chain
	// stops and the request is rejected.
	No

	// Abstain means this authenticator does not handle the presented
	// credential type. The chain moves on to the next authenticator.
	Abstain
)

// Result carries the outcome of an authentication attempt.
type Result struct {
	Decision Decision
	Identity *Identity // set only when Decision == Yes
	Err      error     // set only when Decision == No
}

// Identity describes an authenticated caller.
type Identity struct {
	// Subject uniquely identifies the caller. Required, non-empty.
	Subject string

	// ServiceTier selects rate limit settings for the caller.
	ServiceTier string

	// Scopes lists granted authorization scopes.
	Scopes []string

	// Metadata carries provider-specific data. The key "tenant_id"
	// scopes run storage to the caller's tenant.
	Metadata map[string]string
}

// TenantID returns the tenant identifier from metadata, or "".
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Authenticator inspects request credentials and casts a vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain evaluates authenticators in order. The first Yes or No wins;
// if every authenticator abstains, DefaultDecision applies.
type Chain struct {
	Authenticators []Authenticator

	// DefaultDecision decides abstain-only requests. Yes admits them
	// with an anonymous identity, No rejects them.
	DefaultDecision Decision
}

// Authenticate runs the chain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, a := range c.Authenticators {
		result := a.Authenticate(ctx, r)
		if result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return Result{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}

	return Result{Decision: No, Err: ErrUnauthenticated}
}
