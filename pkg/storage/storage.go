// Package storage provides the run store interface and utilities shared
// across its adapter implementations (memory, postgres): sentinel errors
// and tenant context helpers.
package storage

import (
	"context"
	"errors"

	"github.com/reagent-dev/reagent/pkg/api"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a run does not exist.
	ErrNotFound = errors.New("run not found")

	// ErrConflict is returned when a run with the given ID already exists.
	ErrConflict = errors.New("run already exists")
)

// RunStore persists terminal run records for later retrieval.
type RunStore interface {
	// SaveRun persists a terminal run. Returns ErrConflict if the ID is
	// already stored.
	SaveRun(ctx context.Context, run *api.Run) error

	// GetRun retrieves a run by ID. Returns ErrNotFound if absent.
	GetRun(ctx context.Context, id string) (*api.Run, error)

	// DeleteRun removes a run. Returns ErrNotFound if absent.
	DeleteRun(ctx context.Context, id string) error

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
