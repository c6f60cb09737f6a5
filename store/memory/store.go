package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

var _ workflow.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	runs  map[string]*workflow.Run
	steps map[string][]*workflow.StepRun // key: run ID, in creation order
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		runs:  make(map[string]*workflow.Run),
		steps: make(map[string][]*workflow.StepRun),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Runs
// ──────────────────────────────────────────────────

// CreateRun persists a new run plus one pending StepRun per step name.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run, stepNames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return manta.ErrRunAlreadyExists
	}

	cp := *run
	m.runs[key] = &cp

	rows := make([]*workflow.StepRun, 0, len(stepNames))
	for _, name := range stepNames {
		rows = append(rows, &workflow.StepRun{
			Entity:   manta.NewEntity(),
			ID:       id.NewStepRunID(),
			RunID:    run.ID,
			StepName: name,
			State:    workflow.StepStatePending,
		})
	}
	m.steps[key] = rows
	return nil
}

// GetRun retrieves a run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID.String()]
	if !ok {
		return nil, manta.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

// ListRuns returns runs matching the given options, most recent first.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, run := range m.runs {
		if opts.State != "" && run.State != opts.State {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].StartedAt.After(result[k].StartedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// ListResumable returns runs left in the running state, most recent first.
func (m *Store) ListResumable(ctx context.Context, limit int) ([]*workflow.Run, error) {
	return m.ListRuns(ctx, workflow.ListOpts{Limit: limit, State: workflow.RunStateRunning})
}

// SetRunState transitions a run's state.
func (m *Store) SetRunState(_ context.Context, runID id.RunID, state workflow.RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID.String()]
	if !ok {
		return manta.ErrRunNotFound
	}
	run.State = state
	run.Touch()
	if state.Terminal() && run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	return nil
}

// CompleteRun marks a run completed, recounts its completed steps, and
// clears CurrentStep.
func (m *Store) CompleteRun(_ context.Context, runID id.RunID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID.String()]
	if !ok {
		return manta.ErrRunNotFound
	}
	run.State = workflow.RunStateCompleted
	run.CurrentStep = ""
	run.CompletedSteps = m.countCompletedLocked(runID)
	run.Touch()
	now := time.Now().UTC()
	run.CompletedAt = &now
	return nil
}

// ──────────────────────────────────────────────────
// Steps
// ──────────────────────────────────────────────────

// BeginStep moves the run to running with CurrentStep set, and the StepRun
// from pending to running. A completed StepRun is returned unchanged.
func (m *Store) BeginStep(_ context.Context, runID id.RunID, stepName string) (*workflow.StepRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID.String()]
	if !ok {
		return nil, manta.ErrRunNotFound
	}
	sr, err := m.stepRunLocked(runID, stepName)
	if err != nil {
		return nil, err
	}

	if sr.State == workflow.StepStateCompleted {
		cp := *sr
		return &cp, nil
	}

	run.State = workflow.RunStateRunning
	run.CurrentStep = stepName
	run.CompletedAt = nil
	run.Touch()

	// A fresh attempt: whatever the previous attempt left behind is stale.
	sr.State = workflow.StepStateRunning
	now := time.Now().UTC()
	sr.StartedAt = &now
	sr.CompletedAt = nil
	sr.Error = ""
	sr.Duration = 0
	sr.Touch()

	cp := *sr
	return &cp, nil
}

// CompleteStep marks a StepRun completed and recounts the run's completed
// steps.
func (m *Store) CompleteStep(_ context.Context, runID id.RunID, stepName string, elapsed time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID.String()]
	if !ok {
		return manta.ErrRunNotFound
	}
	sr, err := m.stepRunLocked(runID, stepName)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sr.State = workflow.StepStateCompleted
	sr.Progress = 100
	sr.CompletedAt = &now
	sr.Duration = elapsed
	sr.Touch()

	run.CompletedSteps = m.countCompletedLocked(runID)
	run.Touch()
	return nil
}

// FailStep marks the StepRun failed and the run failed.
func (m *Store) FailStep(_ context.Context, runID id.RunID, stepName, errMsg string, elapsed time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID.String()]
	if !ok {
		return manta.ErrRunNotFound
	}
	sr, err := m.stepRunLocked(runID, stepName)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sr.State = workflow.StepStateFailed
	sr.Error = errMsg
	sr.CompletedAt = &now
	sr.Duration = elapsed
	sr.Touch()

	run.State = workflow.RunStateFailed
	run.Touch()
	if run.CompletedAt == nil {
		run.CompletedAt = &now
	}
	return nil
}

// UpdateStepProgress records a step's progress percentage and message.
func (m *Store) UpdateStepProgress(_ context.Context, runID id.RunID, stepName string, percent int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sr, err := m.stepRunLocked(runID, stepName)
	if err != nil {
		return err
	}
	sr.Progress = workflow.ClampProgress(percent)
	sr.Message = message
	sr.Touch()
	return nil
}

// GetStepRun retrieves the StepRun for (run, step).
func (m *Store) GetStepRun(_ context.Context, runID id.RunID, stepName string) (*workflow.StepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sr, err := m.stepRunLocked(runID, stepName)
	if err != nil {
		return nil, err
	}
	cp := *sr
	return &cp, nil
}

// ListStepRuns returns all StepRuns of a run in creation order.
func (m *Store) ListStepRuns(_ context.Context, runID id.RunID) ([]*workflow.StepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID.String()]; !ok {
		return nil, manta.ErrRunNotFound
	}

	rows := m.steps[runID.String()]
	result := make([]*workflow.StepRun, len(rows))
	for i, sr := range rows {
		cp := *sr
		result[i] = &cp
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Checkpoints
// ──────────────────────────────────────────────────

// SaveCheckpoint persists an opaque checkpoint payload on the StepRun.
func (m *Store) SaveCheckpoint(_ context.Context, runID id.RunID, stepName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sr, err := m.stepRunLocked(runID, stepName)
	if err != nil {
		return err
	}
	sr.Checkpoint = append([]byte(nil), data...)
	sr.Touch()
	return nil
}

// GetCheckpoint retrieves a step's checkpoint payload, nil if none.
func (m *Store) GetCheckpoint(_ context.Context, runID id.RunID, stepName string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sr, err := m.stepRunLocked(runID, stepName)
	if err != nil {
		return nil, err
	}
	if sr.Checkpoint == nil {
		return nil, nil
	}
	return append([]byte(nil), sr.Checkpoint...), nil
}

// stepRunLocked finds the live StepRun record. Callers hold m.mu.
func (m *Store) stepRunLocked(runID id.RunID, stepName string) (*workflow.StepRun, error) {
	for _, sr := range m.steps[runID.String()] {
		if sr.StepName == stepName {
			return sr, nil
		}
	}
	return nil, manta.ErrStepRunNotFound
}

// countCompletedLocked recounts completed step rows. Callers hold m.mu.
func (m *Store) countCompletedLocked(runID id.RunID) int {
	n := 0
	for _, sr := range m.steps[runID.String()] {
		if sr.State == workflow.StepStateCompleted {
			n++
		}
	}
	return n
}
