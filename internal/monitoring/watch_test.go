package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/filings-cli/internal/config"
	"github.com/sells-group/filings-cli/internal/model"
)

func newTestWatch(cfg config.MonitorConfig, runs ...model.Run) (*RunWatch, *stubRuns) {
	st := &stubRuns{runs: runs}
	w := NewRunWatch(st, cfg)
	w.collector.now = func() time.Time { return now }
	return w, st
}

func TestRunWatch_Sweep(t *testing.T) {
	cfg := config.MonitorConfig{FailureRateThreshold: 0.2, LookbackWindowHours: 24, StaleJobs: []string{"compute"}}
	w, _ := newTestWatch(cfg,
		run("ingest", model.RunStatusFailed, time.Hour, time.Minute, model.RunStats{Failed: 1}),
	)

	alerts, err := w.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertJobFailure, alerts[0].Type)
	assert.Equal(t, AlertStaleJob, alerts[1].Type)
}

func TestRunWatch_SweepHealthy(t *testing.T) {
	cfg := config.MonitorConfig{FailureRateThreshold: 0.2, LookbackWindowHours: 24, StaleJobs: []string{"prices"}}
	w, _ := newTestWatch(cfg,
		run("prices", model.RunStatusSuccess, time.Hour, time.Minute, model.RunStats{Succeeded: 1800}),
	)

	alerts, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestRunWatch_SweepRunLogError(t *testing.T) {
	w, st := newTestWatch(config.MonitorConfig{LookbackWindowHours: 24})
	st.err = errors.New("run log unavailable")

	_, err := w.Sweep(context.Background())
	assert.Error(t, err)
}

func TestRunWatch_SweepsAtStartAndStopsOnCancel(t *testing.T) {
	w, st := newTestWatch(config.MonitorConfig{CheckIntervalSecs: 3600, LookbackWindowHours: 24, FailureRateThreshold: 0.1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.Watch(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after context cancellation")
	}
	assert.Equal(t, maxRuns, st.limit, "the run log is read before the first tick")
}

func TestNewRunWatch_DefaultInterval(t *testing.T) {
	w := NewRunWatch(&stubRuns{}, config.MonitorConfig{})
	assert.Equal(t, defaultSweepEvery, w.every)

	w = NewRunWatch(&stubRuns{}, config.MonitorConfig{CheckIntervalSecs: 30})
	assert.Equal(t, 30*time.Second, w.every)
}
