// Package postgres provides a PostgreSQL-backed implementation of the
// manta store using pgx/v5.
package postgres
