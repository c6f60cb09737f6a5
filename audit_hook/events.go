package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionRunStarted    = "run.started"
	ActionRunCompleted  = "run.completed"
	ActionRunFailed     = "run.failed"
	ActionStepStarted   = "step.started"
	ActionStepCompleted = "step.completed"
	ActionStepFailed    = "step.failed"
)

// Audit event categories group related actions.
const (
	CategoryRun  = "manta.run"
	CategoryStep = "manta.step"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceRun  = "workflow_run"
	ResourceStep = "workflow_step"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionRunStarted,
		ActionRunCompleted,
		ActionRunFailed,
		ActionStepStarted,
		ActionStepCompleted,
		ActionStepFailed,
	}
}
