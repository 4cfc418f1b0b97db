// Package postgres provides a PostgreSQL implementation of storage.RunStore.
// It uses pgx/v5 for connection pooling and JSONB for structured storage of
// transcripts and artifacts.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/storage"
)

// Store is a PostgreSQL-backed RunStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.RunStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveRun persists a terminal run.
func (s *Store) SaveRun(ctx context.Context, run *api.Run) error {
	tenantID := storage.GetTenant(ctx)

	messagesJSON, err := json.Marshal(run.Messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	artifactsJSON, err := json.Marshal(run.Artifacts)
	if err != nil {
		return fmt.Errorf("marshaling artifacts: %w", err)
	}

	var usageIn, usageOut, usageTotal int
	if run.Usage != nil {
		usageIn = run.Usage.InputTokens
		usageOut = run.Usage.OutputTokens
		usageTotal = run.Usage.TotalTokens
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO runs (
			id, tenant_id, session_id, status, answer,
			messages, artifacts,
			usage_input_tokens, usage_output_tokens, usage_total_tokens,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		run.ID, tenantID, run.SessionID, string(run.Status), run.Answer,
		messagesJSON, artifactsJSON,
		usageIn, usageOut, usageTotal,
		run.CreatedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*api.Run, error) {
	tenantID := storage.GetTenant(ctx)

	query := `
		SELECT id, session_id, status, answer,
		       messages, artifacts,
		       usage_input_tokens, usage_output_tokens, usage_total_tokens,
		       created_at
		FROM runs
		WHERE id = $1
	`
	args := []any{id}

	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	var run api.Run
	var status string
	var messagesJSON, artifactsJSON []byte
	var usageIn, usageOut, usageTotal int

	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&run.ID, &run.SessionID, &status, &run.Answer,
		&messagesJSON, &artifactsJSON,
		&usageIn, &usageOut, &usageTotal,
		&run.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	run.Object = "run"
	run.Status = api.RunStatus(status)

	if len(messagesJSON) > 0 {
		if err := json.Unmarshal(messagesJSON, &run.Messages); err != nil {
			return nil, fmt.Errorf("unmarshaling messages: %w", err)
		}
	}
	if len(artifactsJSON) > 0 {
		if err := json.Unmarshal(artifactsJSON, &run.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshaling artifacts: %w", err)
		}
	}

	run.Usage = &api.Usage{
		InputTokens:  usageIn,
		OutputTokens: usageOut,
		TotalTokens:  usageTotal,
	}

	return &run, nil
}

// DeleteRun removes a run.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tenantID := storage.GetTenant(ctx)

	query := "DELETE FROM runs WHERE id = $1"
	args := []any{id}

	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
