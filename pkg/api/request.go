package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RunRequest is the body of a create-run call.
type RunRequest struct {
	// Input is the user's task. Accepts either a plain JSON string or an
	// array of {role, content} messages, whose user content is joined.
	Input InputText `json:"input"`

	// SessionID continues an existing conversation. Empty starts a new
	// session with a generated ID.
	SessionID string `json:"session_id,omitempty"`

	// Environment selects the execution variant ("local" or "sandbox")
	// for new sessions. Empty uses the server default.
	Environment string `json:"environment,omitempty"`
}

// InputText is a string that also unmarshals from a message array.
type InputText string

func (t *InputText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = InputText(s)
		return nil
	}

	var msgs []struct {
		Role    Role   `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("input must be a string or an array of messages")
	}

	var parts []string
	for _, m := range msgs {
		if (m.Role == RoleUser || m.Role == "") && m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	*t = InputText(strings.Join(parts, "\n"))
	return nil
}
