package manta

import "time"

// Config holds configuration for the Orchestrator.
type Config struct {
	// DefaultStepTimeout applies to steps that declare no timeout of their
	// own. Zero means such steps may block a run indefinitely.
	DefaultStepTimeout time.Duration

	// ResumeOnStart resumes all runs left in the running state when the
	// orchestrator starts (crash recovery).
	ResumeOnStart bool

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultStepTimeout: 0,
		ResumeOnStart:      false,
		ShutdownTimeout:    30 * time.Second,
	}
}
