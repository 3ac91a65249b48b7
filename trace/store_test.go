package trace

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := Open(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string, started time.Time) Run {
	return Run{
		ID:          id,
		Name:        "demo",
		Ticks:       500,
		Cycles:      8_000_000,
		CoreClockHz: 16_000_000,
		StartedAt:   started,
		Tasks: []RunTask{
			{ID: 0, Name: "blink", Priority: 1, TimeSlice: 10, TaskStats: TaskStats{Ticks: 20, Preemptions: 2, Dispatches: 5}},
			{ID: 1, Name: "idle", Priority: 255, TimeSlice: 1, TaskStats: TaskStats{Ticks: 480, Preemptions: 480, Dispatches: 4}},
		},
	}
}

func TestSaveRunRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)
	run := sampleRun(NewRunID(), started)
	events := []Event{
		{Seq: 1, Tick: 3, Kind: KindSwitch, From: 1, To: 0},
		{Seq: 2, Tick: 13, Kind: KindPreempt, From: 0, To: 0},
		{Seq: 3, Tick: 14, Kind: KindTick, From: 1, To: 1, Remaining: 0},
	}

	if err := st.SaveRun(ctx, run, events); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := st.Run(ctx, run.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got == nil {
		t.Fatalf("Run() = nil, want stored run")
	}
	if !got.StartedAt.Equal(started) {
		t.Fatalf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	got.StartedAt = run.StartedAt
	if !reflect.DeepEqual(*got, run) {
		t.Fatalf("Run() = %+v, want %+v", *got, run)
	}

	gotEvents, err := st.Events(ctx, run.ID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if !reflect.DeepEqual(gotEvents, events) {
		t.Fatalf("Events() = %+v, want %+v", gotEvents, events)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	older := sampleRun("run_older", base)
	newer := sampleRun("run_newer", base.Add(time.Minute))
	for _, r := range []Run{older, newer} {
		if err := st.SaveRun(ctx, r, nil); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", r.ID, err)
		}
	}

	runs, err := st.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run_newer" || runs[1].ID != "run_older" {
		t.Fatalf("Runs() ids = %v, want newer then older", runs)
	}
	if runs[0].Tasks != nil {
		t.Fatalf("Runs() includes tasks, want summary only")
	}
}

func TestRunMissing(t *testing.T) {
	st := testStore(t)
	got, err := st.Run(context.Background(), "run_missing")
	if err != nil || got != nil {
		t.Fatalf("Run(missing) = %v, %v; want nil, nil", got, err)
	}
}

func TestSaveRunRejectsMissingAndDuplicateID(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, Run{}, nil); !errors.Is(err, ErrNoRunID) {
		t.Fatalf("SaveRun(no id) error = %v, want ErrNoRunID", err)
	}

	run := sampleRun("run_dup", time.Now())
	if err := st.SaveRun(ctx, run, []Event{{Seq: 1, Kind: KindSwitch}}); err != nil {
		t.Fatalf("first SaveRun() error = %v", err)
	}
	if err := st.SaveRun(ctx, run, []Event{{Seq: 2, Kind: KindSwitch}}); err == nil {
		t.Fatalf("duplicate SaveRun() error = nil")
	}
	// The failed transaction left nothing behind.
	events, err := st.Events(ctx, "run_dup")
	if err != nil || len(events) != 1 {
		t.Fatalf("Events() = %v, %v; want the first run's single event", events, err)
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if !strings.HasPrefix(a, "run_") || a == b {
		t.Fatalf("NewRunID() = %q, %q; want distinct run_ ids", a, b)
	}
}
