package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/pipeline"
	"github.com/sells-group/filings-cli/internal/quality"
	"github.com/sells-group/filings-cli/internal/report"
)

var (
	qualitySample int
	qualityAsOf   string
	qualityXLSX   string
)

var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Cross-check our figures against the reference source",
	Long:  "Compares the TTM values and ratios of a random sample of active companies with screener.in, stores every comparison and prints the aggregated report as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		asOf, err := parseAsOf(qualityAsOf)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "quality", envOptions{fetcher: true})
		if err != nil {
			return err
		}
		defer env.Close()

		companies, err := loadCompanies(ctx, env.Store, nil)
		if err != nil {
			return err
		}
		n := qualitySample
		if n <= 0 {
			n = cfg.Quality.SampleSize
		}
		sample := quality.Sample(companies, n, nil)

		ours := pipeline.NewOurValues(pipeline.NewComputer(env.Store), asOf)
		checker := quality.NewChecker(ours, env.Store, quality.WithConcurrency(cfg.Batch.MaxConcurrentCompanies))
		source := quality.NewScreenerSource(cfg.Quality.ReferenceBaseURL, env.Fetcher)

		var rep *quality.Report
		_, err = pipeline.Track(ctx, env.Store, pipeline.JobQuality, func(ctx context.Context) (model.RunStats, error) {
			r, err := checker.Run(ctx, sample, source)
			rep = r
			return qualityStats(r), err
		})
		if err != nil {
			return err
		}

		if qualityXLSX != "" {
			if err := report.WriteFile(qualityXLSX, func(w io.Writer) error {
				return report.WriteQualityXLSX(w, rep, nil)
			}); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(rep), "write quality report")
	},
}

// qualityStats maps a quality report onto run log counters: a company is
// failed when its check errored.
func qualityStats(r *quality.Report) model.RunStats {
	if r == nil {
		return model.RunStats{}
	}
	return model.RunStats{
		Attempted: r.Companies,
		Succeeded: r.Companies - r.Errors,
		Failed:    r.Errors,
		Written:   int64(r.TotalChecks),
	}
}

func init() {
	qualityCmd.Flags().IntVar(&qualitySample, "sample", 0, "number of companies to check (default from config)")
	qualityCmd.Flags().StringVar(&qualityAsOf, "as-of", "", "as-of date for our values YYYY-MM-DD (default today)")
	qualityCmd.Flags().StringVar(&qualityXLSX, "xlsx", "", "also write the report to this XLSX file")
	rootCmd.AddCommand(qualityCmd)
}
