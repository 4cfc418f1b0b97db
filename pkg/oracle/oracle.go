// Package oracle abstracts the reasoning model behind the agent loop. The
// controller hands the oracle the full conversation plus the available tool
// schemas and gets back a Decision: either a final answer or exactly one
// tool call. Backend adapters live in subpackages.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"

	"github.com/reagent-dev/reagent/pkg/api"
)

// ToolSpec describes one tool offered to the oracle.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request is one oracle turn: the system prompt, the conversation so far,
// and the tools the oracle may call.
type Request struct {
	Model        string
	Temperature  *float64
	SystemPrompt string
	Messages     []api.Message
	Tools        []ToolSpec
}

// Decision is the oracle's output for one turn. Exactly one of Answer or
// ToolCall is set; Validate enforces this before the controller acts on it.
type Decision struct {
	// Answer is the final answer text. Set when the oracle decided the
	// task is complete.
	Answer string

	// ToolCall is the single tool invocation requested this turn.
	ToolCall *api.ToolCall

	// Usage is the token accounting for this turn, when the backend
	// reports it.
	Usage *api.Usage
}

// Validate checks the tagged-union shape and normalizes the tool call
// arguments. A decision that carries neither an answer nor a tool call, or
// a tool call with unreparable arguments, is rejected.
func (d *Decision) Validate() error {
	if d.ToolCall == nil {
		if d.Answer == "" {
			return api.NewOracleError("oracle returned neither an answer nor a tool call")
		}
		return nil
	}

	if d.ToolCall.Name == "" {
		return api.NewOracleError("oracle returned a tool call without a name")
	}

	args, err := NormalizeArguments(d.ToolCall.Arguments)
	if err != nil {
		return api.NewOracleError(fmt.Sprintf("tool call %q has malformed arguments: %s", d.ToolCall.Name, err))
	}
	d.ToolCall.Arguments = args

	if d.ToolCall.ID == "" {
		d.ToolCall.ID = api.NewCallID()
	}
	return nil
}

// NormalizeArguments returns a valid JSON object encoding of the given tool
// call arguments. Empty input becomes "{}". Malformed input is run through
// jsonrepair once before being rejected; models routinely emit single quotes
// or trailing commas that repair cleanly.
func NormalizeArguments(raw string) (string, error) {
	if raw == "" {
		return "{}", nil
	}
	if json.Valid([]byte(raw)) {
		return raw, nil
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return "", fmt.Errorf("invalid JSON after repair: %q", repaired)
	}
	return repaired, nil
}

// Oracle is the reasoning backend. Complete performs one non-streaming turn.
// Transport failures come back as oracle-category errors; the controller
// retries retryable ones with backoff.
type Oracle interface {
	Complete(ctx context.Context, req *Request) (*Decision, error)
}
