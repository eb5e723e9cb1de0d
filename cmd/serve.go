package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/api"
	"github.com/sells-group/filings-cli/internal/metrics"
	"github.com/sells-group/filings-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read API",
	Long:  "Serves companies, statements, prices, ratio sets, TTM figures, quality checks, anomaly scans, the screener and run history over HTTP, with Prometheus metrics on /metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		env, err := initEnv(ctx, "serve", envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitor.Enabled {
			go monitoring.NewRunWatch(env.Store, cfg.Monitor).Watch(ctx)
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: api.New(env.Store,
				api.WithMetrics(metrics.NewRegistry()),
				api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
			).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
