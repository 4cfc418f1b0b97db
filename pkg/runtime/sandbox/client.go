// Package sandbox implements the persistent remote execution environment.
// One remote session is provisioned lazily on first use, reused for every
// subsequent call within the owning agent session, and torn down exactly
// once when the session ends.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the sandbox server's session-scoped REST API.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a sandbox HTTP client. The per-call timeout covers the
// full round trip; execution timeouts inside the sandbox are enforced by
// the server.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// ExecuteRequest is the body for POST /sessions/{id}/execute.
type ExecuteRequest struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ExecuteResponse is the result of a code execution round trip. Files are
// returned inline, base64-encoded, keyed by filename.
type ExecuteResponse struct {
	Status          string            `json:"status"`
	Stdout          string            `json:"stdout"`
	Stderr          string            `json:"stderr"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	Files           map[string]string `json:"files,omitempty"`
}

// InstallRequest is the body for POST /sessions/{id}/packages.
type InstallRequest struct {
	Packages       []string `json:"packages"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// InstallResponse is the result of a package installation.
type InstallResponse struct {
	Status string `json:"status"`
	Output string `json:"output"`
}

// CreateSession provisions a new remote session.
func (c *Client) CreateSession(ctx context.Context, baseURL string) (string, error) {
	var resp CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, baseURL+"/sessions", nil, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("sandbox returned empty session id")
	}
	return resp.SessionID, nil
}

// Execute ships code to the remote session and returns the captured output.
func (c *Client) Execute(ctx context.Context, baseURL, sessionID string, req *ExecuteRequest) (*ExecuteResponse, error) {
	var resp ExecuteResponse
	url := fmt.Sprintf("%s/sessions/%s/execute", baseURL, sessionID)
	if err := c.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Install installs packages into the remote session.
func (c *Client) Install(ctx context.Context, baseURL, sessionID string, req *InstallRequest) (*InstallResponse, error) {
	var resp InstallResponse
	url := fmt.Sprintf("%s/sessions/%s/packages", baseURL, sessionID)
	if err := c.do(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteSession tears down the remote session.
func (c *Client) DeleteSession(ctx context.Context, baseURL, sessionID string) error {
	url := fmt.Sprintf("%s/sessions/%s", baseURL, sessionID)
	return c.do(ctx, http.MethodDelete, url, nil, nil)
}

func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sandbox request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("sandbox at capacity (HTTP 429)")
	case httpResp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("sandbox session not found (HTTP 404): %s", strings.TrimSpace(string(respBody)))
	case httpResp.StatusCode < 200 || httpResp.StatusCode >= 300:
		return fmt.Errorf("sandbox returned HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
