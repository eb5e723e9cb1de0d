// Package monitoring watches the run log and raises alerts when batch jobs
// fail or stop running.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/model"
)

// maxRuns bounds how many recent runs a snapshot reads.
const maxRuns = 10000

// JobSnapshot holds run counts for one job within the lookback window.
type JobSnapshot struct {
	Total       int        `json:"total"`
	Succeeded   int        `json:"succeeded"`
	Partial     int        `json:"partial"`
	Failed      int        `json:"failed"`
	Running     int        `json:"running"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// Snapshot is a point-in-time view of run health.
type Snapshot struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Partial     int     `json:"partial"`
	Failed      int     `json:"failed"`
	Running     int     `json:"running"`
	FailRate    float64 `json:"fail_rate"`
	AvgDurSecs  float64 `json:"avg_duration_secs"`
	CompaniesOK int     `json:"companies_ok"`
	CompaniesKO int     `json:"companies_failed"`

	ByJob map[string]*JobSnapshot `json:"by_job"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Jobs returns the job names in the snapshot, sorted.
func (s *Snapshot) Jobs() []string {
	out := make([]string, 0, len(s.ByJob))
	for j := range s.ByJob {
		out = append(out, j)
	}
	sort.Strings(out)
	return out
}

// RunLister reads the run log, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// Collector builds snapshots from the run log.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes the runs started within the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		ByJob:         make(map[string]*JobSnapshot),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, maxRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var (
		totalDur time.Duration
		durCount int
	)
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		js := snap.ByJob[r.Job]
		if js == nil {
			js = &JobSnapshot{}
			snap.ByJob[r.Job] = js
		}
		snap.Total++
		js.Total++

		switch r.Status {
		case model.RunStatusSuccess, model.RunStatusPartialSuccess:
			if r.Status == model.RunStatusSuccess {
				snap.Succeeded++
				js.Succeeded++
			} else {
				snap.Partial++
				js.Partial++
			}
			finished := r.StartedAt
			if r.CompletedAt != nil {
				finished = *r.CompletedAt
				totalDur += r.CompletedAt.Sub(r.StartedAt)
				durCount++
			}
			if js.LastSuccess == nil || finished.After(*js.LastSuccess) {
				t := finished
				js.LastSuccess = &t
			}
		case model.RunStatusFailed:
			snap.Failed++
			js.Failed++
		case model.RunStatusRunning:
			snap.Running++
			js.Running++
		}
		snap.CompaniesOK += r.Stats.Succeeded
		snap.CompaniesKO += r.Stats.Failed
	}

	if finished := snap.Succeeded + snap.Partial + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if durCount > 0 {
		snap.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return snap, nil
}
