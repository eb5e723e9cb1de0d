package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/filings-cli/internal/anomaly"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/pipeline"
	"github.com/sells-group/filings-cli/internal/report"
)

var (
	anomaliesAsOf      string
	anomaliesCompanies []string
	anomaliesXLSX      string
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Scan statements and ratios for anomalies",
	Long:  "Runs the anomaly checks over each company's statements and stored ratios as of a date. Findings are listed on stdout or written to an XLSX workbook with --xlsx.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		asOf, err := parseAsOf(anomaliesAsOf)
		if err != nil {
			return err
		}
		ids, err := parseCompanyIDs(anomaliesCompanies)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "report", envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		companies, err := loadCompanies(ctx, env.Store, ids)
		if err != nil {
			return err
		}

		detector := anomaly.New(nil)
		var found []model.Anomaly
		stats, err := pipeline.Track(ctx, env.Store, pipeline.JobAnomalies, func(ctx context.Context) (model.RunStats, error) {
			a, stats, err := detector.Scan(ctx, env.Store, companies, asOf, cfg.Batch.MaxConcurrentCompanies)
			found = a
			stats.Written = int64(len(a))
			return stats, err
		})
		if err != nil {
			return err
		}

		if anomaliesXLSX != "" {
			if err := report.WriteFile(anomaliesXLSX, func(w io.Writer) error {
				return report.WriteAnomaliesXLSX(w, found)
			}); err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), "anomalies", stats)
			return nil
		}

		formatAnomalies(cmd.OutOrStdout(), found)
		return nil
	},
}

// formatAnomalies writes a tabular list of anomalies to out.
func formatAnomalies(out io.Writer, anomalies []model.Anomaly) {
	if len(anomalies) == 0 {
		_, _ = fmt.Fprintln(out, "No anomalies found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tPERIOD\tSEVERITY\tTYPE\tFIELD\tMESSAGE")
	_, _ = fmt.Fprintln(w, "-------\t------\t--------\t----\t-----\t-------")
	for _, a := range anomalies {
		period := ""
		if !a.PeriodEnd.IsZero() {
			period = a.PeriodEnd.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			a.CompanyID, period, a.Severity, a.Type, a.Field, a.Message)
	}
	_ = w.Flush()
}

func init() {
	anomaliesCmd.Flags().StringVar(&anomaliesAsOf, "as-of", "", "as-of date YYYY-MM-DD (default today)")
	anomaliesCmd.Flags().StringSliceVar(&anomaliesCompanies, "company", nil, "company ids to scan (repeatable or comma-separated)")
	anomaliesCmd.Flags().StringVar(&anomaliesXLSX, "xlsx", "", "write findings to this XLSX file instead of stdout")
	rootCmd.AddCommand(anomaliesCmd)
}
