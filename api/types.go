package api

// StartRunRequest is the body for POST /v1/workflows/{name}/runs.
type StartRunRequest struct {
	// Steps restricts the run to exactly the named steps. The set must be
	// dependency-closed: naming a step without also naming its dependencies
	// is rejected before any step executes. Empty means the full workflow.
	Steps []string `json:"steps,omitempty"`
	// Resume re-opens an existing run by ID instead of creating a new one.
	Resume string `json:"resume,omitempty"`
}

// ListWorkflowsResponse is the body for GET /v1/workflows.
type ListWorkflowsResponse struct {
	Names []string `json:"names"`
}

type errorResponse struct {
	Error string `json:"error"`
}
