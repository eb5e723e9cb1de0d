package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/config"
)

// cfg is loaded once per invocation before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "filings-cli",
	Short: "Indian listed-company filings normalizer and ratio engine",
	Long: `Ingests NSE/BSE XBRL filings, result tables, vendor statement maps and
company masters into canonical statements, then computes TTM figures,
growth, ratios, quality cross-checks and anomaly scans. Stored ratio sets
can be screened from the command line or served over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// main cancels the command context on SIGINT or SIGTERM so an interrupted
// ingest or compute run is recorded as failed rather than left running.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
