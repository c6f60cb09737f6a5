package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

const defaultListLimit = 50

func (a *API) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, ListWorkflowsResponse{Names: a.eng.Registry().Names()})
}

// handleStartRun starts (or resumes, when the body names a run) a workflow
// run and executes it within the request. The response carries the final
// run record, so a failed step still yields 201 with State "failed".
func (a *API) handleStartRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req StartRunRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	opts := workflow.RunOptions{}
	if len(req.Steps) > 0 {
		opts.StepFilter = make(map[string]bool, len(req.Steps))
		for _, s := range req.Steps {
			opts.StepFilter[s] = true
		}
	}
	if req.Resume != "" {
		runID, err := id.ParseRunID(req.Resume)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid resume ID: %v", err))
			return
		}
		opts.ResumeRunID = runID
	}

	run, err := a.eng.RunWorkflow(r.Context(), name, opts)
	if run == nil && err != nil {
		a.writeErrorFor(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, run)
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := workflow.ListOpts{
		Limit:  queryInt(r, "limit", defaultListLimit),
		Offset: queryInt(r, "offset", 0),
		State:  workflow.RunState(r.URL.Query().Get("state")),
	}

	runs, err := a.eng.ListRuns(r.Context(), opts)
	if err != nil {
		a.writeErrorFor(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleListResumable(w http.ResponseWriter, r *http.Request) {
	runs, err := a.eng.ListResumable(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		a.writeErrorFor(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runIDParam(w, r)
	if !ok {
		return
	}

	run, err := a.eng.GetRun(r.Context(), runID)
	if err != nil {
		a.writeErrorFor(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}

func (a *API) handleListStepRuns(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runIDParam(w, r)
	if !ok {
		return
	}

	steps, err := a.eng.ListStepRuns(r.Context(), runID)
	if err != nil {
		a.writeErrorFor(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

// handleResumeRun re-executes a run, skipping steps that already completed.
// Like handleStartRun, it blocks until the run finishes.
func (a *API) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runIDParam(w, r)
	if !ok {
		return
	}

	run, err := a.eng.Resume(r.Context(), runID)
	if run == nil && err != nil {
		a.writeErrorFor(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, run)
}

func (a *API) handlePauseRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runIDParam(w, r)
	if !ok {
		return
	}

	if err := a.eng.Pause(r.Context(), runID); err != nil {
		a.writeErrorFor(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStopRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := a.runIDParam(w, r)
	if !ok {
		return
	}

	if err := a.eng.StopRun(r.Context(), runID); err != nil {
		a.writeErrorFor(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── helpers ──

func (a *API) runIDParam(w http.ResponseWriter, r *http.Request) (id.RunID, bool) {
	runID, err := id.ParseRunID(r.PathValue("runId"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid run ID: %v", err))
		return id.Nil, false
	}
	return runID, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Warn("write response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

// writeErrorFor maps manta sentinel errors to HTTP status codes.
func (a *API) writeErrorFor(w http.ResponseWriter, err error) {
	a.writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, manta.ErrRunNotFound),
		errors.Is(err, manta.ErrWorkflowNotFound),
		errors.Is(err, manta.ErrStepRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, manta.ErrUnsatisfiedSubset):
		return http.StatusBadRequest
	case errors.Is(err, manta.ErrRunCompleted),
		errors.Is(err, manta.ErrWorkflowMismatch),
		errors.Is(err, manta.ErrRunAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
