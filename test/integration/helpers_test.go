// Package integration exercises the full HTTP surface end to end: a real
// adapter in front of the controller, session manager, and run store, with
// the oracle played by a scripted Chat Completions server.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reagent-dev/reagent/pkg/agent"
	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/artifacts"
	"github.com/reagent-dev/reagent/pkg/oracle/openai"
	"github.com/reagent-dev/reagent/pkg/runtime"
	"github.com/reagent-dev/reagent/pkg/session"
	"github.com/reagent-dev/reagent/pkg/storage/memory"
	"github.com/reagent-dev/reagent/pkg/tools"
	"github.com/reagent-dev/reagent/pkg/transport"
	transporthttp "github.com/reagent-dev/reagent/pkg/transport/http"
	"github.com/reagent-dev/reagent/pkg/websearch"
)

// stack is one fully wired agent service behind a test HTTP server.
type stack struct {
	server   *httptest.Server
	store    *memory.Store
	manager  *session.Manager
	searcher *recordingSearcher
	envRuns  *atomic.Int64
}

// newStack wires the service against a scripted oracle. A nil handler gets
// the default script: one tool call picked from the prompt, then a final
// answer folding in the observation.
func newStack(t *testing.T, oracleHandler http.HandlerFunc) *stack {
	t.Helper()

	if oracleHandler == nil {
		oracleHandler = scriptedOracle
	}
	backend := httptest.NewServer(oracleHandler)
	t.Cleanup(backend.Close)

	logger := slog.New(slog.DiscardHandler)
	oracleClient := openai.NewClient(backend.URL, "", 5*time.Second)

	var envRuns atomic.Int64
	mgr := session.NewManager(func(sessionID, _ string) (runtime.Environment, *artifacts.Sink, error) {
		sink, err := artifacts.NewSink(t.TempDir(), sessionID)
		if err != nil {
			return nil, nil, err
		}
		return &fakeEnv{runs: &envRuns}, sink, nil
	}, logger)
	t.Cleanup(func() { mgr.CloseAll(context.Background()) })

	searcher := &recordingSearcher{}
	dispatcher := tools.NewDispatcher(searcher, logger)

	controller := agent.NewController(oracleClient, dispatcher, agent.Config{
		Model:         "mock-model",
		MaxIterations: 5,
		OracleRetries: 1,
		RetryInterval: time.Millisecond,
	}, logger)

	store := memory.New(100)
	registry := artifacts.NewRegistry()
	service := agent.NewService(controller, mgr, store, registry, logger)

	adapter := transporthttp.NewAdapter(service, store, mgr, registry, transporthttp.DefaultConfig(),
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(logger),
	)

	srv := httptest.NewServer(adapter.Handler())
	t.Cleanup(srv.Close)

	return &stack{
		server:   srv,
		store:    store,
		manager:  mgr,
		searcher: searcher,
		envRuns:  &envRuns,
	}
}

// createRun posts a run request and decodes the response body into a Run.
// The caller asserts on status code and fields.
func (s *stack) createRun(t *testing.T, body string) (*api.Run, *http.Response) {
	t.Helper()

	resp, err := http.Post(s.server.URL+"/v1/runs", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/runs: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /v1/runs returned %d: %s", resp.StatusCode, raw)
	}

	var run api.Run
	if err := json.Unmarshal(raw, &run); err != nil {
		t.Fatalf("decoding run: %v\nbody: %s", err, raw)
	}
	return &run, resp
}

func (s *stack) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(s.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// --- Fakes ---

// fakeEnv is an in-process Environment so integration tests need no Python
// interpreter. Every execution prints 42.
type fakeEnv struct {
	runs *atomic.Int64
}

func (e *fakeEnv) Kind() runtime.Kind { return runtime.KindLocal }

func (e *fakeEnv) Run(ctx context.Context, code string) (*runtime.Execution, error) {
	e.runs.Add(1)
	return &runtime.Execution{Stdout: "42\n"}, nil
}

func (e *fakeEnv) InstallPackage(ctx context.Context, name string) (string, error) {
	return "installed " + name, nil
}

func (e *fakeEnv) Reset(ctx context.Context) error { return nil }
func (e *fakeEnv) Close(ctx context.Context) error { return nil }

type recordingSearcher struct {
	queries atomic.Int64
	last    atomic.Value // string
}

func (s *recordingSearcher) Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error) {
	s.queries.Add(1)
	s.last.Store(query)
	return []websearch.Result{
		{Title: "Result one", URL: "https://example.com/one", Snippet: "the first result"},
	}, nil
}

// --- Scripted oracle ---

type oracleMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oracleRequest struct {
	Messages []oracleMessage `json:"messages"`
	Tools    []any           `json:"tools"`
}

// scriptedOracle is the default oracle script. First turn: a tool call
// chosen from the prompt. Once a tool observation is in the conversation:
// a final answer quoting it.
func scriptedOracle(w http.ResponseWriter, r *http.Request) {
	var req oracleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var observation, prompt string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		switch req.Messages[i].Role {
		case "tool":
			if observation == "" {
				observation = req.Messages[i].Content
			}
		case "user":
			if prompt == "" {
				prompt = req.Messages[i].Content
			}
		}
	}

	if observation != "" {
		first, _, _ := strings.Cut(observation, "\n")
		writeOracleAnswer(w, "The tool reported: "+first)
		return
	}

	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "just answer"):
		writeOracleAnswer(w, "Hello from the oracle.")
	case strings.Contains(lower, "install"):
		writeOracleToolCall(w, "install_package", `{"package":"numpy"}`)
	case strings.Contains(lower, "search"):
		writeOracleToolCall(w, "web_search", `{"query":"go release notes"}`)
	default:
		writeOracleToolCall(w, "execute_code", `{"code":"print(21 * 2)"}`)
	}
}

func writeOracleAnswer(w http.ResponseWriter, text string) {
	writeOracleResponse(w, map[string]any{
		"role":    "assistant",
		"content": text,
	}, "stop")
}

func writeOracleToolCall(w http.ResponseWriter, name, arguments string) {
	writeOracleResponse(w, map[string]any{
		"role":    "assistant",
		"content": nil,
		"tool_calls": []any{
			map[string]any{
				"id":   "call_test_1",
				"type": "function",
				"function": map[string]any{
					"name":      name,
					"arguments": arguments,
				},
			},
		},
	}, "tool_calls")
}

func writeOracleResponse(w http.ResponseWriter, message map[string]any, finishReason string) {
	resp := map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "mock-model",
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       message,
				"finish_reason": finishReason,
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": 5,
			"total_tokens":      15,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func runBody(input, sessionID string) string {
	var b bytes.Buffer
	payload := map[string]string{"input": input}
	if sessionID != "" {
		payload["session_id"] = sessionID
	}
	json.NewEncoder(&b).Encode(payload)
	return b.String()
}
