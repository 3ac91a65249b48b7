package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tickos/trace"
)

func newTraceCmd() *cobra.Command {
	var runID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "trace <db>",
		Short: "Show runs saved with run --trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("trace database: %w", err)
			}
			st, err := trace.Open(path, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			if runID == "" {
				runs, err := st.Runs(ctx)
				if err != nil {
					return fmt.Errorf("list runs: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(w, "No runs.")
					return nil
				}
				fmt.Fprintf(w, "%-44s %-12s %10s %-14s %s\n", "ID", "NAME", "TICKS", "STARTED", "ERROR")
				for _, r := range runs {
					fmt.Fprintf(w, "%-44s %-12s %10s %-14s %s\n",
						r.ID, r.Name, humanize.Comma(int64(r.Ticks)), humanize.Time(r.StartedAt), r.Err)
				}
				return nil
			}

			run, err := st.Run(ctx, runID)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %s not found", runID)
			}
			events, err := st.Events(ctx, runID)
			if err != nil {
				return fmt.Errorf("get events: %w", err)
			}
			if limit > 0 && len(events) > limit {
				events = events[len(events)-limit:]
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Run    *trace.Run    `json:"run"`
					Events []trace.Event `json:"events"`
				}{run, events})
			}

			printRun(w, *run)
			if len(events) > 0 {
				fmt.Fprintln(w)
				for _, e := range events {
					fmt.Fprintf(w, "%6d t=%-8d %-7s %d -> %d\n", e.Seq, e.Tick, e.Kind, e.From, e.To)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Show one run with its tasks and events")
	cmd.Flags().IntVar(&limit, "limit", 50, "Show at most the last N events (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")

	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
