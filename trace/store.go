package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tickos/kernel"

	_ "modernc.org/sqlite"
)

// ErrNoRunID is returned by SaveRun for a run without an ID.
var ErrNoRunID = errors.New("trace: run has no id")

// Run summarizes one emulation run.
type Run struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Ticks       uint64    `json:"ticks"`
	Cycles      uint64    `json:"cycles"`
	CoreClockHz uint32    `json:"core_clock_hz"`
	Err         string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Tasks       []RunTask `json:"tasks,omitempty"`
}

// RunTask is a task's configuration and totals at the end of a run.
type RunTask struct {
	ID        kernel.TaskID `json:"id"`
	Name      string        `json:"name"`
	Priority  uint8         `json:"priority"`
	TimeSlice uint32        `json:"time_slice"`
	TaskStats
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// Store persists runs and their events in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) a SQLite database at path. Use ":memory:" in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "trace-store"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the trace tables.
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// SaveRun stores a run, its tasks and its events in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, events []Event) error {
	if run.ID == "" {
		return ErrNoRunID
	}
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID, "events", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, ticks, cycles, core_clock_hz, error, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, int64(run.Ticks), int64(run.Cycles), int64(run.CoreClockHz), run.Err,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, t := range run.Tasks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO run_tasks (run_id, task_id, name, priority, time_slice, ticks, preemptions, dispatches)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, int64(t.ID), t.Name, int64(t.Priority), int64(t.TimeSlice),
			int64(t.Ticks), int64(t.Preemptions), int64(t.Dispatches),
		)
		if err != nil {
			return fmt.Errorf("insert task %d: %w", t.ID, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, tick, kind, from_task, to_task, remaining)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()
	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, run.ID, int64(e.Seq), int64(e.Tick), e.Kind.String(),
			int64(e.From), int64(e.To), int64(e.Remaining)); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	return tx.Commit()
}

// Runs lists stored runs, newest first, without their tasks.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, ticks, cycles, core_clock_hz, error, started_at
		 FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Run returns one run with its tasks, or nil if it does not exist.
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, name, ticks, cycles, core_clock_hz, error, started_at
		 FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, name, priority, time_slice, ticks, preemptions, dispatches
		 FROM run_tasks WHERE run_id = ? ORDER BY task_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t RunTask
		var taskID, prio, slice, ticks, preempts, dispatches int64
		if err := rows.Scan(&taskID, &t.Name, &prio, &slice, &ticks, &preempts, &dispatches); err != nil {
			return nil, err
		}
		t.ID = kernel.TaskID(taskID)
		t.Priority = uint8(prio)
		t.TimeSlice = uint32(slice)
		t.Ticks = uint64(ticks)
		t.Preemptions = uint64(preempts)
		t.Dispatches = uint64(dispatches)
		run.Tasks = append(run.Tasks, t)
	}
	return &run, rows.Err()
}

// Events returns a run's events in recording order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, tick, kind, from_task, to_task, remaining
		 FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var seq, tick, from, to, remaining int64
		var kind string
		if err := rows.Scan(&seq, &tick, &kind, &from, &to, &remaining); err != nil {
			return nil, err
		}
		k, ok := ParseKind(kind)
		if !ok {
			return nil, fmt.Errorf("event %d: unknown kind %q", seq, kind)
		}
		e.Seq = uint64(seq)
		e.Tick = uint64(tick)
		e.Kind = k
		e.From = kernel.TaskID(from)
		e.To = kernel.TaskID(to)
		e.Remaining = uint32(remaining)
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var ticks, cycles, clock int64
	var startedAt string
	if err := row.Scan(&run.ID, &run.Name, &ticks, &cycles, &clock, &run.Err, &startedAt); err != nil {
		return Run{}, err
	}
	run.Ticks = uint64(ticks)
	run.Cycles = uint64(cycles)
	run.CoreClockHz = uint32(clock)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	return run, nil
}
