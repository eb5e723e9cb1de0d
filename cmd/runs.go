package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/monitoring"
	"github.com/sells-group/filings-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect batch run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent batch runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(cmd.OutOrStdout(), runs)
		return nil
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(ctx, "report")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		hours := int(since.Hours())
		if hours < 1 {
			hours = 1
		}

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		formatRunStats(cmd.OutOrStdout(), snap)
		return nil
	},
}

var runsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate run health and send alerts",
	Long:  "Collects run statistics over the monitoring lookback window, prints any alerts and posts them to the configured webhook. Exits non-zero when an alert fires.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunStore(ctx, "monitor")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		alerts, err := monitoring.NewRunWatch(st, cfg.Monitor).Sweep(ctx)
		if err != nil {
			return eris.Wrap(err, "runs check")
		}
		if len(alerts) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No alerts.")
			return nil
		}
		for _, a := range alerts {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", a.Severity, a.Type, a.Message)
		}
		return eris.Errorf("%d alert(s) triggered", len(alerts))
	},
}

// openRunStore validates cfg for mode and opens a migrated store.
func openRunStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsCheckCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJOB\tSTATUS\tOK/FAILED/SKIPPED\tWRITTEN\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---\t------\t-----------------\t-------\t-------\t--------")

	for _, r := range runs {
		dur := ""
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d/%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Job,
			r.Status,
			r.Stats.Succeeded, r.Stats.Failed, r.Stats.Skipped,
			r.Stats.Written,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to out.
func formatRunStats(out io.Writer, s *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Success:\t%d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "Partial:\t%d\n", s.Partial)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", s.FailRate*100)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	for _, job := range s.Jobs() {
		js := s.ByJob[job]
		last := "never"
		if js.LastSuccess != nil {
			last = js.LastSuccess.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "  %s:\t%d runs, %d failed, last success %s\n", job, js.Total, js.Failed, last)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
