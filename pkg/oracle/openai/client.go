// Package openai implements the oracle against an OpenAI-compatible Chat
// Completions backend.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/oracle"
)

// Client performs HTTP requests against an OpenAI-compatible Chat
// Completions backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ oracle.Oracle = (*Client)(nil)

// NewClient creates a Client for an OpenAI-compatible backend.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Complete performs one non-streaming turn against the Chat Completions
// endpoint and translates the first choice into a validated Decision.
func (c *Client) Complete(ctx context.Context, req *oracle.Request) (*oracle.Decision, error) {
	chatReq := translateRequest(req)

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewOracleError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewOracleError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, mapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, mapHTTPError(httpResp)
	}

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewOracleError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	decision, err := translateResponse(&chatResp)
	if err != nil {
		return nil, err
	}
	if err := decision.Validate(); err != nil {
		return nil, err
	}
	return decision, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// translateRequest converts an oracle request into Chat Completions format.
// The system prompt becomes the first message; tool results are rendered as
// role "tool" messages keyed by the originating call ID.
func translateRequest(req *oracle.Request) *chatCompletionRequest {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}

	for _, m := range req.Messages {
		cm := chatMessage{Role: string(m.Role), Content: m.Content}
		if m.ToolCall != nil {
			cm.ToolCalls = []chatToolCall{{
				ID:   m.ToolCall.ID,
				Type: "function",
				Function: chatFunctionCall{
					Name:      m.ToolCall.Name,
					Arguments: m.ToolCall.Arguments,
				},
			}}
		}
		if m.ToolResult != nil {
			cm.ToolCallID = m.ToolResult.CallID
			cm.Content = m.ToolResult.Observation()
		}
		messages = append(messages, cm)
	}

	tools := make([]chatTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, chatTool{
			Type: "function",
			Function: chatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return &chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: req.Temperature,
		Stream:      false,
	}
}

// translateResponse converts the first choice into a Decision. When the
// backend emits several tool calls in one turn, the first is taken; the
// dispatcher handles one call per step.
func translateResponse(resp *chatCompletionResponse) (*oracle.Decision, error) {
	if len(resp.Choices) == 0 {
		return nil, api.NewOracleError("backend returned no choices")
	}

	choice := resp.Choices[0]
	decision := &oracle.Decision{
		Answer: choice.Message.Content,
	}

	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		decision.ToolCall = &api.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}
	}

	if resp.Usage != nil {
		decision.Usage = &api.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	return decision, nil
}

// mapHTTPError converts a non-2xx response into an oracle error. Rate limits
// and backend server errors are marked retryable.
func mapHTTPError(resp *http.Response) error {
	message := extractErrorMessage(resp.Body)
	if message == "" {
		message = fmt.Sprintf("backend returned HTTP %d", resp.StatusCode)
	}

	err := api.NewOracleError(message)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return oracle.Retryable(err)
	}
	return err
}

// mapNetworkError converts a network-level failure (connection refused,
// timeout, DNS) into a retryable oracle error.
func mapNetworkError(err error) error {
	return oracle.Retryable(api.NewOracleError(fmt.Sprintf("backend connection error: %s", err.Error())))
}

// extractErrorMessage tries to parse the response body as a Chat Completions
// error payload.
func extractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp chatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
