// Package database owns the PostgreSQL schema of the import pipeline.
package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

// CommitProcedure is the name of the server-side atomic commit function.
const CommitProcedure = "import_commit_stores"

// DBTX is the subset of *pgxpool.Pool used by the storage layers.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrate applies the schema. Statements are idempotent so it is safe on
// every startup.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ProcedureExists reports whether a function with the given name is
// installed in the current search path.
func ProcedureExists(ctx context.Context, db DBTX, name string) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM pg_proc p
			JOIN pg_namespace n ON n.oid = p.pronamespace
			WHERE p.proname = $1 AND n.nspname = ANY (current_schemas(false))
		)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe procedure %s: %w", name, err)
	}
	return exists, nil
}
