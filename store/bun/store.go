// Package bunstore implements the manta store on the Bun ORM with the
// PostgreSQL dialect. It shares the manta_workflow_runs and
// manta_workflow_steps schema with the pgx-based postgres store.
package bunstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"

	"github.com/uptrace/bun"

	"github.com/jcppman/kurasu-manta-sub000/workflow"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ workflow.Store = (*Store)(nil)

// Store is a Bun ORM implementation of the manta store.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle — the Store
// will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate applies the embedded SQL migrations that have not run yet, in
// filename order. It shares the manta_migrations tracking table with the
// pgx-based postgres store, so the two backends can be pointed at the
// same database interchangeably.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS manta_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("manta/bun: create migrations table: %w", err)
	}

	var appliedNames []string
	if err := s.db.NewSelect().
		Table("manta_migrations").
		Column("filename").
		Scan(ctx, &appliedNames); err != nil {
		return fmt.Errorf("manta/bun: list applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(appliedNames))
	for _, name := range appliedNames {
		applied[name] = true
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("manta/bun: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if applied[name] {
			continue
		}

		sqlText, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("manta/bun: read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(sqlText)); err != nil {
			return fmt.Errorf("manta/bun: execute migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO manta_migrations (filename) VALUES (?)`, name,
		); err != nil {
			return fmt.Errorf("manta/bun: record migration %s: %w", name, err)
		}

		s.logger.Info("applied migration", "file", name)
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
