// Package store defines the full persistence interface a backend must
// implement to serve the orchestrator. Backends: Postgres, Bun, Redis,
// and Memory.
package store

import (
	"context"

	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

// Store is the persistence interface the orchestrator is wired with.
// A single backend implements the workflow store plus lifecycle.
type Store interface {
	workflow.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
