package quality

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/filings-cli/internal/metrics"
	"github.com/sells-group/filings-cli/internal/model"
)

// OurSource provides our computed values for a company: TTM fields plus
// the ratios derived from them.
type OurSource interface {
	OurValues(ctx context.Context, c model.Company) (map[string]float64, time.Time, error)
}

// Saver persists comparison results.
type Saver interface {
	SaveQualityChecks(ctx context.Context, results []model.QualityCheckResult) error
}

// Checker runs reference comparisons for a set of companies.
type Checker struct {
	ours        OurSource
	saver       Saver
	metrics     *metrics.Registry
	concurrency int
}

// Option configures a Checker.
type Option func(*Checker)

// WithMetrics records comparisons on reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Checker) { c.metrics = reg }
}

// WithConcurrency bounds how many companies are checked at once.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewChecker creates a Checker. saver may be nil to skip persistence.
func NewChecker(ours OurSource, saver Saver, opts ...Option) *Checker {
	c := &Checker{ours: ours, saver: saver, concurrency: 3}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run compares every company against source and returns the aggregated
// report. A company whose reference, values or save fails counts as an
// error and does not stop the run. Only context cancellation is returned as
// an error.
func (c *Checker) Run(ctx context.Context, companies []model.Company, source ReferenceSource) (*Report, error) {
	log := zap.L().With(zap.String("component", "quality"), zap.String("source", source.Name()))

	report := NewReport()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, co := range companies {
		g.Go(func() error {
			results, err := c.check(gctx, co, source)
			mu.Lock()
			defer mu.Unlock()
			report.Companies++
			if err != nil {
				report.AddError()
				log.Error("quality check failed",
					zap.Int64("company_id", co.ID),
					zap.String("symbol", co.Symbol()),
					zap.Error(err),
				)
				return nil
			}
			for _, r := range results {
				report.Add(r)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Finish()
	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "quality: run cancelled")
	}

	log.Info("quality check complete",
		zap.Int("companies", report.Companies),
		zap.Int("checks", report.TotalChecks),
		zap.Int("outside", report.Outside),
		zap.Int("errors", report.Errors),
		zap.Float64("accuracy", report.Accuracy),
	)
	return report, nil
}

// check compares one company. It returns no results and no error when either
// side has nothing to compare.
func (c *Checker) check(ctx context.Context, co model.Company, source ReferenceSource) ([]model.QualityCheckResult, error) {
	ref, err := source.Reference(ctx, co)
	c.metrics.RecordFetch(source.Name(), err == nil)
	if err != nil {
		return nil, eris.Wrap(err, "quality: fetch reference")
	}
	if ref == nil {
		return nil, nil
	}

	ours, periodEnd, err := c.ours.OurValues(ctx, co)
	if err != nil {
		return nil, eris.Wrap(err, "quality: our values")
	}
	if len(ours) == 0 {
		return nil, nil
	}
	if periodEnd.IsZero() {
		periodEnd = ref.PeriodEnd
	}

	results := CompareFields(co.ID, ours, ref.Values, ref.Source, periodEnd)
	for _, r := range results {
		c.metrics.RecordQualityCheck(r.Field, r.Acceptable, r.PctDeviation)
	}

	if c.saver != nil && len(results) > 0 {
		if err := c.saver.SaveQualityChecks(ctx, results); err != nil {
			return nil, eris.Wrap(err, "quality: save checks")
		}
	}
	return results, nil
}
