package manta

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("manta: no store configured")
	ErrStoreClosed = errors.New("manta: store closed")

	// Definition errors. All are fatal at workflow definition time; a
	// workflow that fails validation never reaches the scheduler.
	ErrDuplicateStep     = errors.New("manta: duplicate step name")
	ErrSelfDependency    = errors.New("manta: step depends on itself")
	ErrUnknownDependency = errors.New("manta: dependency names no step in the workflow")
	ErrCyclicDependency  = errors.New("manta: cyclic dependency")

	// Scheduling errors.
	ErrUnsatisfiedSubset = errors.New("manta: step subset cannot be ordered")

	// Not found errors.
	ErrWorkflowNotFound = errors.New("manta: workflow not found")
	ErrRunNotFound      = errors.New("manta: run not found")
	ErrStepRunNotFound  = errors.New("manta: step run not found")

	// Conflict errors.
	ErrRunAlreadyExists = errors.New("manta: run already exists")
	ErrRunCompleted     = errors.New("manta: run already completed")
	ErrWorkflowMismatch = errors.New("manta: run belongs to a different workflow")

	// Execution errors.
	ErrStepTimeout = errors.New("manta: step timed out")
	ErrStepSealed  = errors.New("manta: step context sealed after timeout")
)
