package redis

import (
	"fmt"
	"strconv"
	"time"

	manta "github.com/jcppman/kurasu-manta-sub000"
	"github.com/jcppman/kurasu-manta-sub000/id"
	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

func runToMap(r *workflow.Run) map[string]any {
	m := map[string]any{
		"id":              r.ID.String(),
		"workflow_name":   r.WorkflowName,
		"state":           string(r.State),
		"total_steps":     r.TotalSteps,
		"completed_steps": r.CompletedSteps,
		"current_step":    r.CurrentStep,
		"config":          string(r.Config),
		"started_at":      r.StartedAt.Format(time.RFC3339Nano),
		"created_at":      r.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      r.UpdatedAt.Format(time.RFC3339Nano),
		// Always written so a full HSet clears a stale value.
		"completed_at": formatTimePtr(r.CompletedAt),
	}
	return m
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func mapToRun(m map[string]string) (*workflow.Run, error) {
	rID, err := id.ParseRunID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("manta/redis: parse run id: %w", err)
	}

	startedAt, _ := time.Parse(time.RFC3339Nano, m["started_at"])
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])
	totalSteps, _ := strconv.Atoi(m["total_steps"])
	completedSteps, _ := strconv.Atoi(m["completed_steps"])

	r := &workflow.Run{
		Entity: manta.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:             rID,
		WorkflowName:   m["workflow_name"],
		State:          workflow.RunState(m["state"]),
		TotalSteps:     totalSteps,
		CompletedSteps: completedSteps,
		CurrentStep:    m["current_step"],
		StartedAt:      startedAt,
	}

	if v := m["config"]; v != "" {
		r.Config = []byte(v)
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v)
		r.CompletedAt = &t
	}
	return r, nil
}

func stepToMap(sr *workflow.StepRun) map[string]any {
	m := map[string]any{
		"id":         sr.ID.String(),
		"run_id":     sr.RunID.String(),
		"step_name":  sr.StepName,
		"state":      string(sr.State),
		"progress":   sr.Progress,
		"message":    sr.Message,
		"duration":   sr.Duration.Nanoseconds(),
		"error":      sr.Error,
		"created_at": sr.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": sr.UpdatedAt.Format(time.RFC3339Nano),
		// Always written so a full HSet clears stale values.
		"started_at":   formatTimePtr(sr.StartedAt),
		"completed_at": formatTimePtr(sr.CompletedAt),
	}
	if sr.Checkpoint != nil {
		m["checkpoint"] = string(sr.Checkpoint)
	}
	return m
}

func mapToStep(m map[string]string) (*workflow.StepRun, error) {
	stepID, err := id.ParseStepRunID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("manta/redis: parse step run id: %w", err)
	}
	rID, err := id.ParseRunID(m["run_id"])
	if err != nil {
		return nil, fmt.Errorf("manta/redis: parse run id: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])
	progress, _ := strconv.Atoi(m["progress"])
	duration, _ := strconv.ParseInt(m["duration"], 10, 64)

	sr := &workflow.StepRun{
		Entity: manta.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:       stepID,
		RunID:    rID,
		StepName: m["step_name"],
		State:    workflow.StepState(m["state"]),
		Progress: progress,
		Message:  m["message"],
		Duration: time.Duration(duration),
		Error:    m["error"],
	}

	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v)
		sr.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v)
		sr.CompletedAt = &t
	}
	if v, ok := m["checkpoint"]; ok {
		sr.Checkpoint = []byte(v)
	}
	return sr, nil
}
