// Package auth provides pluggable authentication for the agent's HTTP
// surface.
//
// Authenticators form a chain with three-outcome voting: each returns
// Yes (identity established), No (credentials invalid), or Abstain
// (credential type not handled). A configurable default decides requests
// on which every authenticator abstains.
//
// Auth lives entirely in HTTP middleware, which also injects the
// caller's tenant into the request context so the run store can scope
// reads and deletes.
package auth
