// Package stream provides a real-time event broker for run lifecycle
// events. It bridges the ext.Extension system to connected clients via
// topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventStepStarted   EventType = "step.started"
	EventStepProgress  EventType = "step.progress"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the run-specific channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// RunEventData is the payload for run and step lifecycle events.
type RunEventData struct {
	RunID          string `json:"run_id"`
	Workflow       string `json:"workflow"`
	StepName       string `json:"step_name,omitempty"`
	Percent        int    `json:"percent,omitempty"`
	Message        string `json:"message,omitempty"`
	CompletedSteps int    `json:"completed_steps"`
	TotalSteps     int    `json:"total_steps"`
	ElapsedMs      int64  `json:"elapsed_ms,omitempty"`
	Error          string `json:"error,omitempty"`
}
