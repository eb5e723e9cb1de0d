package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/model"
)

// Job names recorded in the run log.
const (
	JobIngest    = "ingest"
	JobPrices    = "prices"
	JobCompanies = "companies"
	JobCompute   = "compute"
	JobReprice   = "reprice"
	JobQuality   = "quality"
	JobAnomalies = "anomalies"
)

// RunLog records batch job executions.
type RunLog interface {
	StartRun(ctx context.Context, job string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats model.RunStats) error
	FailRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error
}

// Track runs fn under a run log entry for job. The entry is completed with
// fn's stats, or failed when fn returns an error. A run log write failure
// after fn finished is logged and does not replace fn's result.
func Track(ctx context.Context, rl RunLog, job string, fn func(ctx context.Context) (model.RunStats, error)) (model.RunStats, error) {
	log := zap.L().With(zap.String("component", "pipeline.runlog"), zap.String("job", job))

	run, err := rl.StartRun(ctx, job)
	if err != nil {
		return model.RunStats{}, eris.Wrapf(err, "pipeline: start run %s", job)
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("run started")

	stats, runErr := fn(ctx)
	if runErr != nil {
		log.Error("run failed", zap.Error(runErr))
		// The job context may be cancelled already; record the failure anyway.
		if logErr := rl.FailRun(context.WithoutCancel(ctx), run.ID, stats, runErr); logErr != nil {
			log.Error("failed to record run failure", zap.Error(logErr))
		}
		return stats, runErr
	}

	if logErr := rl.CompleteRun(ctx, run.ID, stats); logErr != nil {
		log.Error("failed to record run completion", zap.Error(logErr))
	}
	log.Info("run finished",
		zap.String("status", string(stats.Status())),
		zap.Int("attempted", stats.Attempted),
		zap.Int("failed", stats.Failed),
		zap.Int64("written", stats.Written),
	)
	return stats, nil
}
