package api

import "strings"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a session's conversation history. Messages are
// immutable once appended; their order is the full context the oracle sees
// on each turn.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCall is set on assistant messages that request a tool invocation.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolResult is set on tool messages carrying an observation.
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	// ArtifactIDs references artifacts produced while handling this message.
	ArtifactIDs []string `json:"artifact_ids,omitempty"`
}

// ToolCall is the oracle's request to invoke a named tool.
type ToolCall struct {
	// ID is the call identifier, either assigned by the oracle backend
	// or generated locally (e.g., "call_abc123").
	ID string `json:"id"`

	// Name is the tool name. Unknown names produce an error-bearing
	// ToolResult, not a session failure.
	Name string `json:"name"`

	// Arguments is the JSON-encoded argument mapping.
	Arguments string `json:"arguments"`
}

// ToolResult is the observation produced by a tool dispatch. One is always
// produced, success or failure; results are never silently dropped.
type ToolResult struct {
	// CallID matches the originating ToolCall.ID.
	CallID string `json:"call_id"`

	// Stdout and Stderr carry captured execution output.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// Value is an optional return value rendered as text (e.g., formatted
	// search results).
	Value string `json:"value,omitempty"`

	// Error is set when the dispatch itself failed: unknown tool, malformed
	// arguments, sandbox unavailable. The loop continues; the oracle sees
	// the error text and may self-correct.
	Error string `json:"error,omitempty"`

	// Artifacts lists artifacts produced by this invocation.
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// IsError reports whether the result carries a dispatch error.
func (r *ToolResult) IsError() bool {
	return r.Error != ""
}

// Observation renders the result as the text block appended to the
// conversation for the oracle's next turn.
func (r *ToolResult) Observation() string {
	var b strings.Builder
	if r.Error != "" {
		b.WriteString("Error: ")
		b.WriteString(r.Error)
	}
	if r.Stdout != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Stdout)
	}
	if r.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("stderr:\n")
		b.WriteString(r.Stderr)
	}
	if r.Value != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.Value)
	}
	for _, a := range r.Artifacts {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[artifact: " + a.Name + " (" + a.MediaType + ")]")
	}
	if b.Len() == 0 {
		return "(no output)"
	}
	return b.String()
}

// Artifact is a non-text byproduct of execution (typically an image)
// persisted under the artifacts directory and referenced by ID.
type Artifact struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`

	// Path is the on-disk location. Not serialized; artifact bytes are
	// served through the artifacts endpoint.
	Path string `json:"-"`
}

// RunStatus is the terminal state of a controller run.
type RunStatus string

const (
	// RunStatusCompleted means the oracle produced a final answer within
	// the iteration budget.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusTruncated means the iteration budget was exhausted and the
	// answer is a best effort assembled from the last observation.
	RunStatusTruncated RunStatus = "truncated"

	// RunStatusFailed means the oracle was unreachable after retries. The
	// run still carries a user-visible message.
	RunStatusFailed RunStatus = "failed"
)

// Usage accumulates token accounting across all oracle turns of a run.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Run is the terminal record of one controller invocation: the answer, the
// full transcript, any artifacts, and usage. Runs are persisted in the run
// store for later retrieval.
type Run struct {
	ID        string     `json:"id"`
	Object    string     `json:"object"`
	SessionID string     `json:"session_id"`
	Status    RunStatus  `json:"status"`
	Answer    string     `json:"answer"`
	Messages  []Message  `json:"messages,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`
	CreatedAt int64      `json:"created_at"`
}
