package anomaly

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/filings-cli/internal/model"
)

// Source reads the data a scan needs.
type Source interface {
	// Statements returns every statement with period_end on or before asOf.
	Statements(ctx context.Context, companyID int64, asOf time.Time) ([]*model.StatementRecord, error)
	GetRatios(ctx context.Context, companyID int64, ttm bool) ([]model.RatioSet, error)
}

// Scan runs the checks for each company with up to concurrency companies in
// flight. A company whose data cannot be read is counted as failed. The
// returned anomalies are ordered by company, then period end.
func (d *Detector) Scan(ctx context.Context, src Source, companies []model.Company, asOf time.Time, concurrency int) ([]model.Anomaly, model.RunStats, error) {
	log := zap.L().With(zap.String("component", "anomaly"))
	if concurrency <= 0 {
		concurrency = 1
	}

	var (
		mu    sync.Mutex
		all   []model.Anomaly
		stats model.RunStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, c := range companies {
		g.Go(func() error {
			found, err := d.scanCompany(gctx, src, c.ID, asOf)
			mu.Lock()
			defer mu.Unlock()
			stats.Attempted++
			if err != nil {
				stats.Failed++
				stats.Errors = append(stats.Errors, err.Error())
				log.Warn("anomaly scan failed", zap.Int64("company_id", c.ID), zap.Error(err))
				return nil
			}
			stats.Succeeded++
			stats.Written += int64(len(found))
			all = append(all, found...)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, stats, eris.Wrap(err, "anomaly: scan cancelled")
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CompanyID != all[j].CompanyID {
			return all[i].CompanyID < all[j].CompanyID
		}
		return all[i].PeriodEnd.Before(all[j].PeriodEnd)
	})

	log.Info("anomaly scan complete",
		zap.Int("companies", stats.Attempted),
		zap.Int("failed", stats.Failed),
		zap.Int("anomalies", len(all)),
	)
	return all, stats, nil
}

func (d *Detector) scanCompany(ctx context.Context, src Source, companyID int64, asOf time.Time) ([]model.Anomaly, error) {
	stmts, err := src.Statements(ctx, companyID, asOf)
	if err != nil {
		return nil, eris.Wrapf(err, "anomaly: statements for company %d", companyID)
	}

	var ratios []model.RatioSet
	for _, ttm := range []bool{true, false} {
		rs, err := src.GetRatios(ctx, companyID, ttm)
		if err != nil {
			return nil, eris.Wrapf(err, "anomaly: ratios for company %d", companyID)
		}
		for _, r := range rs {
			if !r.PeriodEnd.After(asOf) {
				ratios = append(ratios, r)
			}
		}
	}

	return d.Detect(Input{CompanyID: companyID, Statements: stmts, Ratios: ratios}), nil
}
