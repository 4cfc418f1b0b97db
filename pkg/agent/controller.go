// Package agent implements the reason-act control loop. The Controller
// alternates oracle turns with tool dispatches until the oracle produces a
// final answer, the iteration budget runs out, or the oracle becomes
// unreachable. Every run terminates with a user-visible answer: a final
// answer, a truncation notice, or a failure notice.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/observability"
	"github.com/reagent-dev/reagent/pkg/oracle"
	"github.com/reagent-dev/reagent/pkg/session"
	"github.com/reagent-dev/reagent/pkg/tools"
)

const (
	// DefaultMaxIterations bounds the reason-act loop per run.
	DefaultMaxIterations = 10

	// DefaultOracleRetries bounds retries of a transient oracle failure
	// within one turn.
	DefaultOracleRetries = 3

	// DefaultSystemPrompt frames the oracle as a tool-using analyst.
	DefaultSystemPrompt = "You are a helpful assistant that solves tasks by reasoning step by step " +
		"and calling tools. Use execute_code to run Python, install_package to add missing " +
		"libraries, and web_search to look up current information. When you have enough " +
		"information, reply with the final answer instead of calling a tool."

	// failureNotice is returned as the answer when the oracle stays
	// unreachable after retries.
	failureNotice = "I'm sorry, but I couldn't reach the reasoning service to finish this task. " +
		"Please try again in a moment."
)

// Config controls one Controller.
type Config struct {
	Model         string
	Temperature   *float64
	SystemPrompt  string
	MaxIterations int
	OracleRetries int

	// RetryInterval is the initial backoff interval between oracle
	// retries. Tests shrink it.
	RetryInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.OracleRetries < 0 {
		c.OracleRetries = DefaultOracleRetries
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
	return c
}

// Controller drives the reason-act loop for one or more sessions.
type Controller struct {
	oracle     oracle.Oracle
	dispatcher *tools.Dispatcher
	cfg        Config
	logger     *slog.Logger
}

// NewController creates a Controller.
func NewController(o oracle.Oracle, dispatcher *tools.Dispatcher, cfg Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		oracle:     o,
		dispatcher: dispatcher,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Run executes one task to a terminal state. It appends the input and every
// intermediate message to the session's history and returns a Run carrying
// the answer, the messages produced by this run, collected artifacts, and
// accumulated usage. Oracle outages and budget exhaustion are terminal run
// states, not Go errors.
func (c *Controller) Run(ctx context.Context, sess *session.Session, input string) (*api.Run, error) {
	if input == "" {
		return nil, api.NewInvalidRequestError("input", "input must not be empty")
	}

	start := sess.Len()
	sess.Append(api.Message{Role: api.RoleUser, Content: input})

	var usage api.Usage
	var artifacts []api.Artifact
	var lastObservation string

	for iteration := 1; iteration <= c.cfg.MaxIterations; iteration++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		decision, err := c.completeWithRetry(ctx, sess)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Error("oracle unreachable, aborting run",
				"session_id", sess.ID, "iteration", iteration, "error", err)
			sess.Append(api.Message{Role: api.RoleAssistant, Content: failureNotice})
			return c.finish(sess, start, api.RunStatusFailed, failureNotice, iteration, artifacts, usage), nil
		}

		if decision.Usage != nil {
			usage.InputTokens += decision.Usage.InputTokens
			usage.OutputTokens += decision.Usage.OutputTokens
			usage.TotalTokens += decision.Usage.TotalTokens
			observability.OracleTokensTotal.WithLabelValues(c.cfg.Model, "input").Add(float64(decision.Usage.InputTokens))
			observability.OracleTokensTotal.WithLabelValues(c.cfg.Model, "output").Add(float64(decision.Usage.OutputTokens))
		}

		// Final answer: done.
		if decision.ToolCall == nil {
			sess.Append(api.Message{Role: api.RoleAssistant, Content: decision.Answer})
			return c.finish(sess, start, api.RunStatusCompleted, decision.Answer, iteration, artifacts, usage), nil
		}

		// Tool call: record it, dispatch, record the observation.
		sess.Append(api.Message{
			Role:     api.RoleAssistant,
			Content:  decision.Answer,
			ToolCall: decision.ToolCall,
		})

		result := c.dispatcher.Dispatch(ctx, sess, decision.ToolCall)
		lastObservation = result.Observation()

		var artifactIDs []string
		for _, a := range result.Artifacts {
			artifactIDs = append(artifactIDs, a.ID)
		}
		artifacts = append(artifacts, result.Artifacts...)

		sess.Append(api.Message{
			Role:        api.RoleTool,
			ToolResult:  result,
			ArtifactIDs: artifactIDs,
		})
	}

	// Budget exhausted: assemble a best-effort answer from the last
	// observation.
	answer := "I reached the step limit before finishing this task."
	if lastObservation != "" {
		answer += " Here is the last result I obtained:\n\n" + lastObservation
	}
	sess.Append(api.Message{Role: api.RoleAssistant, Content: answer})
	return c.finish(sess, start, api.RunStatusTruncated, answer, c.cfg.MaxIterations, artifacts, usage), nil
}

// completeWithRetry performs one oracle turn, retrying transient failures
// with exponential backoff up to the configured retry budget.
func (c *Controller) completeWithRetry(ctx context.Context, sess *session.Session) (*oracle.Decision, error) {
	req := &oracle.Request{
		Model:        c.cfg.Model,
		Temperature:  c.cfg.Temperature,
		SystemPrompt: c.cfg.SystemPrompt,
		Messages:     sess.Messages(),
		Tools:        tools.Specs(),
	}

	var decision *oracle.Decision
	attempt := 0

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInterval
	policy := backoff.WithMaxRetries(bo, uint64(c.cfg.OracleRetries))

	operation := func() error {
		attempt++
		start := time.Now()
		d, err := c.oracle.Complete(ctx, req)
		observability.OracleLatency.WithLabelValues(c.cfg.Model).Observe(time.Since(start).Seconds())

		if err != nil {
			observability.OracleRequestsTotal.WithLabelValues(c.cfg.Model, "error").Inc()
			if !oracle.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			observability.OracleRetriesTotal.Inc()
			c.logger.Warn("oracle call failed, retrying",
				"session_id", sess.ID, "attempt", attempt, "error", err)
			return err
		}

		observability.OracleRequestsTotal.WithLabelValues(c.cfg.Model, "success").Inc()
		decision = d
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("oracle unreachable after %d attempts: %w", attempt, err)
	}
	return decision, nil
}

// finish assembles the terminal Run record from the messages this run
// appended to the session.
func (c *Controller) finish(sess *session.Session, start int, status api.RunStatus, answer string, iterations int, artifacts []api.Artifact, usage api.Usage) *api.Run {
	observability.RunsTotal.WithLabelValues(string(status)).Inc()
	observability.LoopIterations.Observe(float64(iterations))

	c.logger.Info("run finished",
		"session_id", sess.ID,
		"status", status,
		"iterations", iterations,
		"artifacts", len(artifacts))

	return &api.Run{
		ID:        api.NewRunID(),
		Object:    "run",
		SessionID: sess.ID,
		Status:    status,
		Answer:    answer,
		Messages:  sess.Messages()[start:],
		Artifacts: artifacts,
		Usage:     &usage,
		CreatedAt: time.Now().Unix(),
	}
}
