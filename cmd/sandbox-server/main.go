// Command sandbox-server runs the session-scoped code execution service
// inside sandbox pods. Each session owns one persistent Python interpreter
// (state carries across execute calls), one output directory for produced
// files, and one private package directory wired in via PYTHONPATH.
//
// Configuration:
//
//	SANDBOX_PORT         - Listen port (default: 8080)
//	SANDBOX_PYTHON       - Interpreter binary (default: python3)
//	SANDBOX_MAX_SESSIONS - Max concurrent sessions (default: 8)
//	SANDBOX_PYTHON_INDEX - Package index URL for pip (optional)
//	SANDBOX_IDLE_TIMEOUT - Idle session reap threshold (default: 30m)
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/reagent-dev/reagent/pkg/runtime/pyexec"
)

func main() {
	port := envOr("SANDBOX_PORT", "8080")
	python := envOr("SANDBOX_PYTHON", "python3")
	maxSessions := envOrInt("SANDBOX_MAX_SESSIONS", 8)
	pythonIndex := envOr("SANDBOX_PYTHON_INDEX", "")
	idleTimeout := envOrDuration("SANDBOX_IDLE_TIMEOUT", 30*time.Minute)

	if _, err := exec.LookPath(python); err != nil {
		slog.Error("interpreter not found in PATH", "python", python)
		os.Exit(1)
	}

	srv := &sandboxServer{
		python:      python,
		pythonIndex: pythonIndex,
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*sandboxSession),
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", srv.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/execute", srv.handleExecute)
	mux.HandleFunc("POST /sessions/{id}/packages", srv.handleInstall)
	mux.HandleFunc("DELETE /sessions/{id}", srv.handleDeleteSession)
	mux.HandleFunc("GET /health", srv.handleHealth)

	httpSrv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // execution and installs are slow
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reaperDone := make(chan struct{})
	go srv.reapIdle(ctx, reaperDone)

	go func() {
		slog.Info("sandbox server starting",
			"port", port,
			"python", python,
			"max_sessions", maxSessions,
			"idle_timeout", idleTimeout,
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	<-reaperDone
	srv.closeAll()
}

// --- Server ---

type sandboxServer struct {
	python      string
	pythonIndex string
	maxSessions int
	idleTimeout time.Duration
	startTime   time.Time

	mu       sync.Mutex
	sessions map[string]*sandboxSession
}

// sandboxSession is one caller's persistent interpreter plus its output
// and package directories. Execute calls on one session are serialized.
type sandboxSession struct {
	id        string
	dir       string
	outputDir string
	libDir    string
	python    string

	// lastUsed is unix nanoseconds, kept out from under mu so the idle
	// reaper never waits behind an in-flight execute.
	lastUsed atomic.Int64

	mu     sync.Mutex
	interp *pyexec.Interp
}

func (sess *sandboxSession) touch() {
	sess.lastUsed.Store(time.Now().UnixNano())
}

func (s *sandboxServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions {
		n := len(s.sessions)
		s.mu.Unlock()
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("at capacity (%d/%d sessions)", n, s.maxSessions))
		return
	}
	s.mu.Unlock()

	sess, err := s.newSession()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "creating session: "+err.Error())
		return
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	count := len(s.sessions)
	s.mu.Unlock()

	slog.Info("session created", "session_id", sess.id, "sessions", count)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"session_id": sess.id})
}

func (s *sandboxServer) newSession() (*sandboxSession, error) {
	dir, err := os.MkdirTemp("", "sandbox-session-*")
	if err != nil {
		return nil, err
	}

	outputDir := filepath.Join(dir, "output")
	libDir := filepath.Join(dir, ".pylibs")
	for _, d := range []string{outputDir, libDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
	}

	interp, err := pyexec.Start(pyexec.Options{
		Python:  s.python,
		WorkDir: dir,
		Env: []string{
			"OUTPUT_DIR=" + outputDir,
			"PYTHONPATH=" + libDir,
		},
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	sess := &sandboxSession{
		id:        newSessionID(),
		dir:       dir,
		outputDir: outputDir,
		libDir:    libDir,
		python:    s.python,
		interp:    interp,
	}
	sess.touch()
	return sess, nil
}

func (s *sandboxServer) lookup(w http.ResponseWriter, r *http.Request) *sandboxSession {
	id := r.PathValue("id")
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return nil
	}
	return sess
}

// --- Execute ---

type executeRequest struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type executeResponse struct {
	Status          string            `json:"status"`
	Stdout          string            `json:"stdout"`
	Stderr          string            `json:"stderr"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	Files           map[string]string `json:"files,omitempty"`
}

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}

	var req executeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 30
	}

	sess.touch()
	sess.mu.Lock()
	defer sess.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.TimeoutSeconds)*time.Second)
	defer cancel()

	result, err := sess.interp.Exec(ctx, req.Code)
	if err != nil {
		// The interpreter is unrecoverable after a timeout or a driver
		// fault; restart it so the session stays usable. Its globals are
		// lost, which the error text makes visible to the caller.
		restartErr := sess.restartLocked()
		resp := executeResponse{
			Status: "error",
			Stderr: err.Error(),
		}
		if restartErr != nil {
			resp.Stderr += "\ninterpreter restart failed: " + restartErr.Error()
		} else {
			resp.Stderr += "\n(interpreter restarted, session state was lost)"
		}
		slog.Warn("execution failed", "session_id", sess.id, "error", err)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
		return
	}

	status := "success"
	if result.Stderr != "" {
		status = "error"
	}

	slog.Info("execute complete",
		"session_id", sess.id,
		"status", status,
		"duration_ms", result.Duration.Milliseconds(),
		"stdout_len", len(result.Stdout),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(executeResponse{
		Status:          status,
		Stdout:          result.Stdout,
		Stderr:          result.Stderr,
		ExecutionTimeMs: result.Duration.Milliseconds(),
		Files:           drainOutputFiles(sess.outputDir),
	})
}

// restartLocked replaces the session's interpreter. Caller holds sess.mu.
func (sess *sandboxSession) restartLocked() error {
	sess.interp.Close()
	interp, err := pyexec.Start(pyexec.Options{
		Python:  sess.python,
		WorkDir: sess.dir,
		Env: []string{
			"OUTPUT_DIR=" + sess.outputDir,
			"PYTHONPATH=" + sess.libDir,
		},
	})
	if err != nil {
		return err
	}
	sess.interp = interp
	return nil
}

// --- Install ---

type installRequest struct {
	Packages       []string `json:"packages"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

type installResponse struct {
	Status string `json:"status"`
	Output string `json:"output"`
}

func (s *sandboxServer) handleInstall(w http.ResponseWriter, r *http.Request) {
	sess := s.lookup(w, r)
	if sess == nil {
		return
	}

	var req installRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if len(req.Packages) == 0 {
		writeError(w, http.StatusBadRequest, "packages is required")
		return
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 120
	}

	sess.touch()
	sess.mu.Lock()
	defer sess.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.TimeoutSeconds)*time.Second)
	defer cancel()

	args := []string{"-m", "pip", "install", "--target", sess.libDir}
	if s.pythonIndex != "" {
		args = append(args, "--index-url", s.pythonIndex)
	}
	args = append(args, req.Packages...)

	cmd := exec.CommandContext(ctx, sess.python, args...)
	cmd.Dir = sess.dir
	output, err := cmd.CombinedOutput()

	resp := installResponse{Status: "success", Output: string(output)}
	if err != nil {
		resp.Status = "error"
		resp.Output = err.Error() + ": " + string(output)
	}

	slog.Info("install complete",
		"session_id", sess.id,
		"packages", req.Packages,
		"status", resp.Status,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Delete / reaper ---

func (s *sandboxServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}

	sess.close()
	slog.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (sess *sandboxSession) close() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.interp != nil {
		sess.interp.Close()
	}
	os.RemoveAll(sess.dir)
}

// reapIdle closes sessions whose last use is older than the idle timeout.
func (s *sandboxServer) reapIdle(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapOnce(time.Now())
		}
	}
}

// reapOnce removes and closes every session idle past the timeout. It
// never takes a session mutex while holding s.mu, so a long-running
// execute on one session cannot stall creates, lookups, or health checks.
func (s *sandboxServer) reapOnce(now time.Time) {
	cutoff := now.Add(-s.idleTimeout).UnixNano()

	s.mu.Lock()
	var stale []*sandboxSession
	for id, sess := range s.sessions {
		if sess.lastUsed.Load() < cutoff {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		slog.Info("reaping idle session", "session_id", sess.id)
		sess.close()
	}
}

func (s *sandboxServer) closeAll() {
	s.mu.Lock()
	sessions := make([]*sandboxSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*sandboxSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// --- Health ---

func (s *sandboxServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	count := len(s.sessions)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "healthy",
		"sessions":       count,
		"capacity":       s.maxSessions,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// --- Helpers ---

// drainOutputFiles returns the output directory's files base64-encoded and
// removes them, so each execute call reports only freshly produced files.
func drainOutputFiles(outputDir string) map[string]string {
	entries, err := os.ReadDir(outputDir)
	if err != nil || len(entries) == 0 {
		return nil
	}

	files := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(outputDir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		files[entry.Name()] = base64.StdEncoding.EncodeToString(content)
		os.Remove(path)
	}

	if len(files) == 0 {
		return nil
	}
	return files
}

func newSessionID() string {
	b := make([]byte, 12)
	rand.Read(b)
	return "sbx_" + hex.EncodeToString(b)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func envOrDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
