// Package http serves the agent API over HTTP: run creation and
// retrieval, artifact download, and session teardown.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/artifacts"
	"github.com/reagent-dev/reagent/pkg/observability"
	"github.com/reagent-dev/reagent/pkg/session"
	"github.com/reagent-dev/reagent/pkg/storage"
	"github.com/reagent-dev/reagent/pkg/transport"
)

// Adapter routes the agent API. Requests are decoded into pkg/api types,
// dispatched to the RunCreator, and serialized back as JSON.
type Adapter struct {
	creator  transport.RunCreator
	runs     storage.RunStore
	sessions *session.Manager
	registry *artifacts.Registry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	MetricsPath string
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
		MetricsPath: "/metrics",
	}
}

// NewAdapter creates an HTTP adapter. Middleware is applied to the
// RunCreator in the given order.
func NewAdapter(creator transport.RunCreator, runs storage.RunStore, sessions *session.Manager, registry *artifacts.Registry, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultConfig().MetricsPath
	}

	a := &Adapter{
		creator:  creator,
		runs:     runs,
		sessions: sessions,
		registry: registry,
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/runs", a.handleCreateRun)
	a.mux.HandleFunc("GET /v1/runs/{id}", a.handleGetRun)
	a.mux.HandleFunc("GET /v1/artifacts/{id}", a.handleGetArtifact)
	a.mux.HandleFunc("DELETE /v1/sessions/{id}", a.handleDeleteSession)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())

	return a
}

// Handler returns the http.Handler for this adapter, with request ID
// propagation and request metrics applied.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

// httpRequestIDMiddleware propagates the X-Request-ID header: an incoming
// value is put into the context, and the effective ID is echoed back on
// the response before the first write.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleCreateRun handles POST /v1/runs. The connection stays open until
// the run reaches a terminal state; the response is the full run record.
func (a *Adapter) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	ct, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
	if ct = strings.TrimSpace(ct); ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	run, err := a.creator.CreateRun(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleGetRun handles GET /v1/runs/{id}.
func (a *Adapter) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateRunID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed run ID"),
			http.StatusBadRequest,
		)
		return
	}

	run, err := a.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAgentError(w, api.NewNotFoundError("run "+id+" not found"))
		} else {
			writeError(w, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleGetArtifact handles GET /v1/artifacts/{id}, serving the raw bytes
// with the artifact's media type.
func (a *Adapter) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	art, ok := a.registry.Get(id)
	if !ok {
		transport.WriteAgentError(w, api.NewNotFoundError("artifact "+id+" not found"))
		return
	}

	f, err := os.Open(art.Path)
	if err != nil {
		transport.WriteAgentError(w, api.NewServerError("artifact payload unavailable: "+err.Error()))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", art.MediaType)
	w.Header().Set("Content-Disposition", `inline; filename="`+art.Name+`"`)
	http.ServeContent(w, r, art.Name, time.Time{}, f)
}

// handleDeleteSession handles DELETE /v1/sessions/{id}: explicit teardown
// of the session's execution environment.
func (a *Adapter) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateSessionID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed session ID"),
			http.StatusBadRequest,
		)
		return
	}

	if err := a.sessions.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHealth handles GET /healthz. It pings the run store so load
// balancers see storage outages.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := a.runs.HealthCheck(ctx); err != nil {
		status = "degraded: " + err.Error()
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// writeError maps any error to a JSON error response, preserving
// AgentError categories.
func writeError(w http.ResponseWriter, err error) {
	var agentErr *api.AgentError
	if !errors.As(err, &agentErr) {
		agentErr = api.NewServerError(err.Error())
	}
	transport.WriteAgentError(w, agentErr)
}
