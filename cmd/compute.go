package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/pipeline"
)

var (
	computeAsOf      string
	computeCompanies []string
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute TTM and annual ratio sets",
	Long:  "Computes the TTM figures, growth and ratios of each company as of a date and upserts the ratio sets. Without --company every active company is computed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		asOf, err := parseAsOf(computeAsOf)
		if err != nil {
			return err
		}
		ids, err := parseCompanyIDs(computeCompanies)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "compute", envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		companies, err := loadCompanies(ctx, env.Store, ids)
		if err != nil {
			return err
		}
		zap.L().Info("computing ratios",
			zap.Int("companies", len(companies)),
			zap.String("as_of", asOf.Format("2006-01-02")),
		)

		computer := pipeline.NewComputer(env.Store,
			pipeline.WithComputeConcurrency(cfg.Batch.MaxConcurrentCompanies),
		)
		stats, err := pipeline.Track(ctx, env.Store, pipeline.JobCompute, func(ctx context.Context) (model.RunStats, error) {
			return computer.Run(ctx, companies, asOf)
		})
		printStats(cmd.OutOrStdout(), "compute", stats)
		return err
	},
}

func init() {
	computeCmd.Flags().StringVar(&computeAsOf, "as-of", "", "as-of date YYYY-MM-DD (default today)")
	computeCmd.Flags().StringSliceVar(&computeCompanies, "company", nil, "company ids to compute (repeatable or comma-separated)")
	rootCmd.AddCommand(computeCmd)
}
