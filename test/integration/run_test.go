package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/reagent-dev/reagent/pkg/api"
)

func TestRunWithCodeExecution(t *testing.T) {
	s := newStack(t, nil)

	run, _ := s.createRun(t, runBody("compute the answer to everything", ""))

	if run.Status != api.RunStatusCompleted {
		t.Fatalf("status = %q, want %q", run.Status, api.RunStatusCompleted)
	}
	if run.Answer != "The tool reported: 42" {
		t.Errorf("answer = %q", run.Answer)
	}
	if got := s.envRuns.Load(); got != 1 {
		t.Errorf("environment executions = %d, want 1", got)
	}
	if run.SessionID == "" {
		t.Error("run has no session ID")
	}
	if run.Usage == nil || run.Usage.TotalTokens == 0 {
		t.Error("run has no usage accounting")
	}
}

func TestRunWithWebSearch(t *testing.T) {
	s := newStack(t, nil)

	run, _ := s.createRun(t, runBody("search for the latest go release", ""))

	if run.Status != api.RunStatusCompleted {
		t.Fatalf("status = %q, want %q", run.Status, api.RunStatusCompleted)
	}
	if got := s.searcher.queries.Load(); got != 1 {
		t.Fatalf("search calls = %d, want 1", got)
	}
	if got := s.searcher.last.Load(); got != "go release notes" {
		t.Errorf("search query = %v", got)
	}
}

func TestRunDirectAnswer(t *testing.T) {
	s := newStack(t, nil)

	run, _ := s.createRun(t, runBody("just answer with a greeting", ""))

	if run.Status != api.RunStatusCompleted {
		t.Fatalf("status = %q, want %q", run.Status, api.RunStatusCompleted)
	}
	if run.Answer != "Hello from the oracle." {
		t.Errorf("answer = %q", run.Answer)
	}
	if got := s.envRuns.Load(); got != 0 {
		t.Errorf("environment executions = %d, want 0", got)
	}
}

func TestRunPersistedAndFetchable(t *testing.T) {
	s := newStack(t, nil)

	created, _ := s.createRun(t, runBody("compute something", ""))

	resp := s.get(t, "/v1/runs/"+created.ID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET run returned %d", resp.StatusCode)
	}

	var fetched api.Run
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decoding fetched run: %v", err)
	}
	if fetched.ID != created.ID {
		t.Errorf("fetched ID = %q, want %q", fetched.ID, created.ID)
	}
	if fetched.Answer != created.Answer {
		t.Errorf("fetched answer = %q, want %q", fetched.Answer, created.Answer)
	}
	if len(fetched.Messages) == 0 {
		t.Error("fetched run has no transcript")
	}
}

func TestRunsShareSession(t *testing.T) {
	s := newStack(t, nil)

	first, _ := s.createRun(t, runBody("compute step one", ""))
	second, _ := s.createRun(t, runBody("compute step two", first.SessionID))

	if second.SessionID != first.SessionID {
		t.Fatalf("second run session = %q, want %q", second.SessionID, first.SessionID)
	}
	if got := s.manager.Len(); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
	if got := s.envRuns.Load(); got != 2 {
		t.Errorf("environment executions = %d, want 2", got)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newStack(t, nil)

	run, _ := s.createRun(t, runBody("compute something", ""))

	req, _ := http.NewRequest(http.MethodDelete, s.server.URL+"/v1/sessions/"+run.SessionID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE returned %d, want 204", resp.StatusCode)
	}
	if got := s.manager.Len(); got != 0 {
		t.Errorf("sessions = %d after delete, want 0", got)
	}
}

func TestRunReportsFailureWhenOracleIsDown(t *testing.T) {
	s := newStack(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`,
			http.StatusInternalServerError)
	})

	run, _ := s.createRun(t, runBody("compute something", ""))

	if run.Status != api.RunStatusFailed {
		t.Fatalf("status = %q, want %q", run.Status, api.RunStatusFailed)
	}
	if run.Answer == "" {
		t.Error("failed run should still carry an explanatory answer")
	}
}

func TestRunTruncatedAtIterationBudget(t *testing.T) {
	// An oracle that always asks for another execution never converges;
	// the loop must stop at the budget with a best-effort answer.
	s := newStack(t, func(w http.ResponseWriter, r *http.Request) {
		writeOracleToolCall(w, "execute_code", `{"code":"print(21 * 2)"}`)
	})

	run, _ := s.createRun(t, runBody("loop forever", ""))

	if run.Status != api.RunStatusTruncated {
		t.Fatalf("status = %q, want %q", run.Status, api.RunStatusTruncated)
	}
	if !strings.Contains(run.Answer, "42") {
		t.Errorf("truncated answer should carry the last observation, got %q", run.Answer)
	}
	if got := s.envRuns.Load(); got != 5 {
		t.Errorf("environment executions = %d, want 5 (the budget)", got)
	}
}
