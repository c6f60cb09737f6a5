// Package api exposes the manta operator surface over HTTP.
//
// Routes are registered on a plain net/http ServeMux using method
// patterns; responses are JSON. The API is read-mostly: it starts,
// resumes, pauses, and stops runs, and answers the operator queries
// (recent runs, run detail with step records, resumable runs).
package api

import (
	"log/slog"
	"net/http"

	"github.com/jcppman/kurasu-manta-sub000/engine"
)

// API wires all manta HTTP handlers together.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// New creates an API from a manta Engine.
func New(eng *engine.Engine, logger *slog.Logger) *API {
	return &API{eng: eng, logger: logger}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes registers all manta API routes on the given mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/workflows", a.handleListWorkflows)
	mux.HandleFunc("POST /v1/workflows/{name}/runs", a.handleStartRun)

	mux.HandleFunc("GET /v1/runs", a.handleListRuns)
	mux.HandleFunc("GET /v1/runs/resumable", a.handleListResumable)
	mux.HandleFunc("GET /v1/runs/{runId}", a.handleGetRun)
	mux.HandleFunc("GET /v1/runs/{runId}/steps", a.handleListStepRuns)
	mux.HandleFunc("POST /v1/runs/{runId}/resume", a.handleResumeRun)
	mux.HandleFunc("POST /v1/runs/{runId}/pause", a.handlePauseRun)
	mux.HandleFunc("POST /v1/runs/{runId}/stop", a.handleStopRun)
}
