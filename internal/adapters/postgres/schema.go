package postgres

import (
	"context"
	"database/sql"

	"github.com/eleven-am/routines/internal/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS routine_executions (
		workflow_id    TEXT PRIMARY KEY,
		run_id         TEXT NOT NULL,
		execution_id   TEXT NOT NULL,
		routine_id     TEXT NOT NULL,
		user_id        TEXT NOT NULL DEFAULT '',
		trigger_type   TEXT NOT NULL DEFAULT '',
		trigger_data   JSONB,
		status         TEXT NOT NULL,
		started_at     TIMESTAMPTZ NOT NULL,
		completed_at   TIMESTAMPTZ,
		error          TEXT NOT NULL DEFAULT '',
		failed_node    TEXT NOT NULL DEFAULT '',
		execution_path JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS routine_executions_routine_idx ON routine_executions (routine_id, started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS routine_node_results (
		workflow_id  TEXT NOT NULL REFERENCES routine_executions (workflow_id) ON DELETE CASCADE,
		node_id      TEXT NOT NULL,
		run_index    INTEGER NOT NULL,
		routine_id   TEXT NOT NULL,
		plugin_id    TEXT NOT NULL DEFAULT '',
		iteration    INTEGER,
		status       TEXT NOT NULL,
		signal       TEXT NOT NULL DEFAULT '',
		output       JSONB,
		error        JSONB,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (workflow_id, node_id, run_index)
	)`,
}

// EnsureSchema creates the history tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return domain.NewStorageError("apply postgres schema", err, domain.WithComponent("postgres.EnsureSchema"))
		}
	}
	return nil
}
