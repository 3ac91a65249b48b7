package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tickos/hal"
	"tickos/internal/config"
	"tickos/kernel"
	"tickos/monitor"
	"tickos/tasks"
	"tickos/trace"
)

const (
	windowWidth  = 320
	windowHeight = 240
	// consoleHeight is the console pane under the task table.
	consoleHeight = 80
)

type runOptions struct {
	ticks    uint64
	clock    uint32
	realtime bool
	window   bool
	httpAddr string
	traceDB  string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [task-set.yaml]",
		Short: "Run a task set on the emulated machine",
		Long: `Runs a task set until it has seen the configured number of ticks, a task
faults, or the process is interrupted. Without a file the built-in demo set runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set := config.Default()
			if len(args) > 0 {
				var err error
				if set, err = config.Load(args[0]); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if flags.Changed("ticks") {
				set.Ticks = opts.ticks
			}
			if flags.Changed("clock") {
				set.CoreClockHz = opts.clock
			}
			if flags.Changed("realtime") {
				set.Realtime = opts.realtime
			}

			for _, w := range set.Warnings(tasks.NeverBlocks) {
				logger.Warn("task set", "set", set.Name, "warning", w)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTaskSet(ctx, set, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().Uint64Var(&opts.ticks, "ticks", 0, "Halt after N ticks (0 runs until interrupted)")
	cmd.Flags().Uint32Var(&opts.clock, "clock", 0, "Emulated core clock in Hz (default 16MHz)")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "Pace ticks to wall-clock time")
	cmd.Flags().BoolVar(&opts.window, "window", false, "Show the task monitor in a desktop window")
	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "Serve the monitor API on this address (e.g. :8080)")
	cmd.Flags().StringVar(&opts.traceDB, "trace", "", "Save the run and its events to this SQLite file")

	return cmd
}

// system is one assembled machine with its scheduler and tasks created.
type system struct {
	set    config.TaskSet
	target monitor.Target
}

func buildSystem(set config.TaskSet, console io.Writer) (*system, error) {
	m := hal.NewMachine(hal.MachineConfig{
		CoreClockHz:    set.CoreClockHz,
		HaltAfterTicks: set.Ticks,
		Realtime:       set.Realtime,
		Logger:         logger,
	})
	rec := trace.NewRecorder(0)
	s := kernel.New(m, m, kernel.WithObserver(rec))
	s.Init()

	out := hal.NewConsole(console)
	env := tasks.Env{
		Machine:   m,
		Scheduler: s,
		Console:   out,
		LED:       hal.NewLED("led0", out),
	}
	for _, spec := range set.Tasks {
		factory, ok := tasks.Lookup(spec.Workload)
		if !ok {
			return nil, fmt.Errorf("task %q: unknown workload %q", spec.Name, spec.Workload)
		}
		if _, err := s.Create(factory(env), uintptr(spec.Arg), spec.Priority, spec.TimeSlice, spec.Name); err != nil {
			return nil, fmt.Errorf("task %q: %w", spec.Name, err)
		}
	}
	return &system{
		set:    set,
		target: monitor.Target{Machine: m, Scheduler: s, Recorder: rec},
	}, nil
}

func runTaskSet(ctx context.Context, set config.TaskSet, opts runOptions, stdout io.Writer) error {
	console := stdout
	var pane *monitor.ConsolePane
	if opts.window {
		pane = monitor.NewConsolePane(windowWidth, consoleHeight)
		console = io.MultiWriter(stdout, pane)
	}
	sys, err := buildSystem(set, console)
	if err != nil {
		return err
	}
	m, s := sys.target.Machine, sys.target.Scheduler

	logger.Info("run starting",
		"set", set.Name,
		"tasks", len(set.Tasks),
		"ticks", set.Ticks,
		"realtime", set.Realtime,
	)
	startedAt := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if opts.httpAddr != "" {
		httpServer := &http.Server{
			Addr:    opts.httpAddr,
			Handler: monitor.NewServer(sys.target, logger).Handler(),
		}
		g.Go(func() error {
			logger.Info("monitor listening", "addr", opts.httpAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("monitor: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	// The window loop has to own the main thread, so the machine runs here
	// and not in the group.
	var runErr error
	if opts.window {
		fb := hal.NewFramebuffer(windowWidth, windowHeight)
		r := monitor.NewRenderer(sys.target, fb)
		r.AttachConsole(pane)
		runErr = hal.RunWindow(gctx, m, s.Start, hal.WindowConfig{Framebuffer: fb, Step: r.Step})
	} else {
		runErr = hal.RunHeadless(gctx, m, s.Start)
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}

	run := sys.result(startedAt, runErr)
	printRun(stdout, run)

	if opts.traceDB != "" {
		if err := saveRun(opts.traceDB, run, sys.target.Recorder.Events()); err != nil {
			return err
		}
	}
	return runErr
}

// result collects the run summary once the machine has stopped.
func (sys *system) result(startedAt time.Time, runErr error) trace.Run {
	sample := sys.target.Sample()
	run := trace.Run{
		ID:          trace.NewRunID(),
		Name:        sys.set.Name,
		Ticks:       sample.Status.Ticks,
		Cycles:      sample.Status.Cycles,
		CoreClockHz: sample.Status.CoreClockHz,
		StartedAt:   startedAt,
	}
	if runErr != nil {
		run.Err = runErr.Error()
	}
	for _, t := range sample.Tasks {
		run.Tasks = append(run.Tasks, trace.RunTask{
			ID:        t.ID,
			Name:      t.Name,
			Priority:  t.Priority,
			TimeSlice: t.TimeSlice,
			TaskStats: t.TaskStats,
		})
	}
	return run
}

func saveRun(path string, run trace.Run, events []trace.Event) error {
	ctx := context.Background()
	st, err := trace.Open(path, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := st.SaveRun(ctx, run, events); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	logger.Info("run saved", "id", run.ID, "path", path, "events", len(events))
	return nil
}

func printRun(w io.Writer, run trace.Run) {
	fmt.Fprintf(w, "%s %s: %s ticks, %s cycles at %s\n",
		run.ID, run.Name,
		humanize.Comma(int64(run.Ticks)),
		humanize.Comma(int64(run.Cycles)),
		humanize.SIWithDigits(float64(run.CoreClockHz), 0, "Hz"),
	)
	if run.Err != "" {
		fmt.Fprintf(w, "fault: %s\n", run.Err)
	}
	if len(run.Tasks) == 0 {
		return
	}
	fmt.Fprintf(w, "%-3s %-12s %4s %6s %8s %6s %8s %6s\n",
		"ID", "NAME", "PRI", "SLICE", "TICKS", "SHARE", "PREEMPT", "DISP")
	for _, t := range run.Tasks {
		share := 0.0
		if run.Ticks > 0 {
			share = 100 * float64(t.Ticks) / float64(run.Ticks)
		}
		fmt.Fprintf(w, "%-3d %-12s %4d %6d %8s %5.1f%% %8d %6d\n",
			t.ID, t.Name, t.Priority, t.TimeSlice,
			humanize.Comma(int64(t.Ticks)), share, t.Preemptions, t.Dispatches)
	}
}
