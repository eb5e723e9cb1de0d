package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/config"
)

// defaultSweepEvery applies when check_interval_secs is unset.
const defaultSweepEvery = 5 * time.Minute

// RunWatch sweeps the pipeline run log for failed, failing and stale jobs
// and posts what it finds to the alert webhook.
type RunWatch struct {
	collector *Collector
	alerter   *Alerter
	lookback  int
	every     time.Duration
	log       *zap.Logger
}

// NewRunWatch watches runs with the thresholds and schedule in cfg.
func NewRunWatch(runs RunLister, cfg config.MonitorConfig) *RunWatch {
	every := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if every <= 0 {
		every = defaultSweepEvery
	}
	return &RunWatch{
		collector: NewCollector(runs),
		alerter:   NewAlerter(cfg),
		lookback:  cfg.LookbackWindowHours,
		every:     every,
		log:       zap.L().With(zap.String("component", "monitoring.runwatch")),
	}
}

// Watch sweeps once straight away, so a stale prices or compute job is
// reported as soon as the server starts, then on every tick until ctx ends.
func (w *RunWatch) Watch(ctx context.Context) {
	w.log.Info("watching run log",
		zap.Duration("every", w.every),
		zap.Int("lookback_hours", w.lookback),
	)
	ticker := time.NewTicker(w.every)
	defer ticker.Stop()

	for {
		if _, err := w.Sweep(ctx); err != nil {
			w.log.Error("run log sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.log.Info("run watch stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep snapshots the lookback window, evaluates the alert rules and sends
// any alerts. It returns the alerts raised.
func (w *RunWatch) Sweep(ctx context.Context) ([]Alert, error) {
	snap, err := w.collector.Collect(ctx, w.lookback)
	if err != nil {
		return nil, err
	}

	alerts := w.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		w.log.Debug("run log healthy", zap.Int("runs", snap.Total))
		return nil, nil
	}

	sent := w.alerter.SendAlerts(ctx, alerts)
	w.log.Info("run log alerts raised",
		zap.Int("runs", snap.Total),
		zap.Int("raised", len(alerts)),
		zap.Int("sent", sent),
	)
	return alerts, nil
}
