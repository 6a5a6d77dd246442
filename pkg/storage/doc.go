// Package storage opens the SQL database and Redis connections the rest of
// warden runs on, and owns the schema.
//
// Two SQL dialects are supported: PostgreSQL (lib/pq) for production and
// SQLite (mattn/go-sqlite3) for single-node installs and tests. Queries are
// written once for both: $n placeholders in ascending order, RETURNING id on
// inserts, and timestamps supplied by the caller in UTC. Migrations render
// the few type differences through placeholders.
//
// Constraint failures are classified with IsUniqueViolation and
// IsConstraintViolation so callers never inspect driver error types.
package storage
