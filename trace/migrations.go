package trace

import (
	"context"
	"database/sql"
)

// schema holds the trace tables. Each statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		ticks         INTEGER NOT NULL,
		cycles        INTEGER NOT NULL,
		core_clock_hz INTEGER NOT NULL,
		error         TEXT NOT NULL DEFAULT '',
		started_at    TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS run_tasks (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		task_id     INTEGER NOT NULL,
		name        TEXT NOT NULL,
		priority    INTEGER NOT NULL,
		time_slice  INTEGER NOT NULL,
		ticks       INTEGER NOT NULL DEFAULT 0,
		preemptions INTEGER NOT NULL DEFAULT 0,
		dispatches  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, task_id)
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq       INTEGER NOT NULL,
		tick      INTEGER NOT NULL,
		kind      TEXT NOT NULL,
		from_task INTEGER NOT NULL,
		to_task   INTEGER NOT NULL,
		remaining INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
