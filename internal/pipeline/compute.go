package pipeline

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/financial"
	"github.com/sells-group/filings-cli/internal/growth"
	"github.com/sells-group/filings-cli/internal/metrics"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/period"
	"github.com/sells-group/filings-cli/internal/ratios"
	"github.com/sells-group/filings-cli/internal/ttm"
)

// ComputeStore is the persistence the computer reads statements and prices
// from and writes ratio sets to.
type ComputeStore interface {
	ttm.Reader
	growth.Lookup
	Statements(ctx context.Context, companyID int64, asOf time.Time) ([]*model.StatementRecord, error)
	LatestPrice(ctx context.Context, companyID int64, asOf time.Time) (*model.Price, error)
	GetRatios(ctx context.Context, companyID int64, ttm bool) ([]model.RatioSet, error)
	SaveRatios(ctx context.Context, sets []model.RatioSet) (int64, error)
}

// Computer builds and saves ratio sets per company and nature.
type Computer struct {
	store       ComputeStore
	ttm         *ttm.Aggregator
	growth      *growth.Calculator
	metrics     *metrics.Registry
	concurrency int
	now         func() time.Time
	log         *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// ComputeOption configures a Computer.
type ComputeOption func(*Computer)

// WithComputeMetrics records computations on reg.
func WithComputeMetrics(reg *metrics.Registry) ComputeOption {
	return func(c *Computer) { c.metrics = reg }
}

// WithComputeConcurrency bounds how many companies are computed at once.
func WithComputeConcurrency(n int) ComputeOption {
	return func(c *Computer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithClock sets the computed_at clock.
func WithClock(now func() time.Time) ComputeOption {
	return func(c *Computer) { c.now = now }
}

// NewComputer creates a Computer over st.
func NewComputer(st ComputeStore, opts ...ComputeOption) *Computer {
	c := &Computer{
		store:       st,
		ttm:         ttm.New(st),
		growth:      growth.New(st),
		concurrency: 3,
		now:         func() time.Time { return time.Now().UTC() },
		log:         zap.L().With(zap.String("component", "pipeline.compute")),
		locks:       make(map[int64]*sync.Mutex),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// companyLock serializes writes for one company.
func (c *Computer) companyLock(id int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

// Run computes and saves the TTM and latest annual ratio sets of every
// company as of asOf, for each nature with data. Companies run in parallel
// up to the configured concurrency. A company with no statements at all is
// skipped; one whose computation or save fails is counted and logged. Only
// context cancellation is returned as an error.
func (c *Computer) Run(ctx context.Context, companies []model.Company, asOf time.Time) (model.RunStats, error) {
	var (
		mu    sync.Mutex
		stats model.RunStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, co := range companies {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := c.Company(gctx, co, asOf)

			mu.Lock()
			defer mu.Unlock()
			stats.Attempted++
			switch {
			case errors.Is(err, ttm.ErrNoStatements):
				stats.Skipped++
			case err != nil:
				stats.Failed++
				stats.Errors = append(stats.Errors, err.Error())
				c.log.Warn("compute failed", zap.Int64("company_id", co.ID), zap.Error(err))
			default:
				stats.Succeeded++
				stats.Written += n
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, eris.Wrap(err, "pipeline: compute cancelled")
	}

	c.log.Info("compute complete",
		zap.String("as_of", asOf.Format(time.DateOnly)),
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// Company computes and saves every ratio set of one company and returns the
// number of rows written. It returns ttm.ErrNoStatements when no nature has
// any data.
func (c *Computer) Company(ctx context.Context, co model.Company, asOf time.Time) (int64, error) {
	lock := c.companyLock(co.ID)
	lock.Lock()
	defer lock.Unlock()

	var sets []model.RatioSet
	for _, nature := range model.ResultNatures {
		start := time.Now()
		set, err := c.TTMSet(ctx, co, asOf, nature)
		if errors.Is(err, ttm.ErrNoStatements) {
			continue
		}
		c.record(nature, err == nil, start)
		if err != nil {
			return 0, err
		}
		sets = append(sets, *set)

		annual, err := c.AnnualSet(ctx, co, asOf, nature)
		if err != nil {
			return 0, err
		}
		if annual != nil {
			sets = append(sets, *annual)
		}
	}
	if len(sets) == 0 {
		return 0, eris.Wrapf(ttm.ErrNoStatements, "company %d", co.ID)
	}

	n, err := c.store.SaveRatios(ctx, sets)
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: save ratios for company %d", co.ID)
	}
	return n, nil
}

// Reprice revalues the newest stored TTM ratio set of each company and
// nature at the latest close on or before asOf. Price-dependent ratios are
// recomputed from the TTM figures behind the set; the rest are carried over.
// Companies without a stored TTM set or a close are skipped.
func (c *Computer) Reprice(ctx context.Context, companies []model.Company, asOf time.Time) (model.RunStats, error) {
	var (
		mu    sync.Mutex
		stats model.RunStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, co := range companies {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			n, err := c.repriceCompany(gctx, co, asOf)

			mu.Lock()
			defer mu.Unlock()
			stats.Attempted++
			switch {
			case errors.Is(err, errNothingToReprice):
				stats.Skipped++
			case err != nil:
				stats.Failed++
				stats.Errors = append(stats.Errors, err.Error())
				c.log.Warn("reprice failed", zap.Int64("company_id", co.ID), zap.Error(err))
			default:
				stats.Succeeded++
				stats.Written += n
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, eris.Wrap(err, "pipeline: reprice cancelled")
	}

	c.log.Info("reprice complete",
		zap.String("as_of", asOf.Format(time.DateOnly)),
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

var errNothingToReprice = eris.New("pipeline: no ttm ratio set or close to reprice")

func (c *Computer) repriceCompany(ctx context.Context, co model.Company, asOf time.Time) (int64, error) {
	lock := c.companyLock(co.ID)
	lock.Lock()
	defer lock.Unlock()

	stored, err := c.store.GetRatios(ctx, co.ID, true)
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: load ratios for company %d", co.ID)
	}
	m, err := c.Market(ctx, co, asOf)
	if err != nil {
		return 0, err
	}
	if m.Price <= 0 {
		return 0, errNothingToReprice
	}

	var sets []model.RatioSet
	seen := make(map[model.ResultNature]bool)
	for _, set := range stored {
		if seen[set.Nature] || set.PeriodEnd.After(asOf) {
			continue
		}
		seen[set.Nature] = true

		res, err := c.ttm.Compute(ctx, co.ID, set.PeriodEnd, set.Nature)
		if errors.Is(err, ttm.ErrNoStatements) {
			continue
		}
		if err != nil {
			return 0, err
		}
		d := res.Data(m)
		set.Values = ratios.ValuationUpdate(set.Values, d, m.Price)
		set.Values[model.RatioDividendYield] = DividendYield(d)
		set.ComputedAt = c.now()
		sets = append(sets, set)
	}
	if len(sets) == 0 {
		return 0, errNothingToReprice
	}

	n, err := c.store.SaveRatios(ctx, sets)
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: save repriced ratios for company %d", co.ID)
	}
	return n, nil
}

func (c *Computer) record(nature model.ResultNature, ok bool, start time.Time) {
	c.metrics.RecordCompute(nature.String(), ok, time.Since(start).Seconds())
}

// Market values a company at its latest close on or before asOf. A missing
// price leaves the valuation ratios undefined.
func (c *Computer) Market(ctx context.Context, co model.Company, asOf time.Time) (financial.Market, error) {
	m := financial.Market{}
	if co.SharesOutstanding != nil {
		m.SharesOutstanding = *co.SharesOutstanding
	}
	if co.FaceValue != nil {
		m.FaceValue = *co.FaceValue
	}
	p, err := c.store.LatestPrice(ctx, co.ID, asOf)
	if err != nil {
		return m, eris.Wrapf(err, "pipeline: latest price for company %d", co.ID)
	}
	if p != nil {
		m.Price = p.Close
	}
	return m, nil
}

// TTMSet computes the TTM ratio set: the TTM snapshot as of asOf, averaged
// against the snapshot one year earlier, with revenue and profit growth
// merged in. It returns ttm.ErrNoStatements when the nature has no data.
func (c *Computer) TTMSet(ctx context.Context, co model.Company, asOf time.Time, nature model.ResultNature) (*model.RatioSet, error) {
	_, set, err := c.ttmSnapshot(ctx, co, asOf, nature)
	return set, err
}

func (c *Computer) ttmSnapshot(ctx context.Context, co model.Company, asOf time.Time, nature model.ResultNature) (*financial.Data, *model.RatioSet, error) {
	cur, err := c.ttm.Compute(ctx, co.ID, asOf, nature)
	if err != nil {
		return nil, nil, err
	}
	prev, err := c.ttm.Compute(ctx, co.ID, period.AddMonths(asOf, -12), nature)
	if err != nil && !errors.Is(err, ttm.ErrNoStatements) {
		return nil, nil, err
	}

	m, err := c.Market(ctx, co, asOf)
	if err != nil {
		return nil, nil, err
	}

	curData := cur.Data(m)
	var prevData *financial.Data
	if prev != nil {
		prevData = prev.Data(financial.Market{})
	}

	r := ratios.Compute(curData, prevData)
	r[model.RatioDividendYield] = DividendYield(curData)

	g, err := c.ttmGrowth(ctx, co.ID, cur, prev, nature)
	if err != nil {
		return nil, nil, err
	}
	r.Merge(g)

	if cur.Quarters > 0 {
		q, err := c.quarterGrowth(ctx, co.ID, cur.PeriodEnd, nature)
		if err != nil {
			return nil, nil, err
		}
		r.Merge(q)
	}

	return curData, &model.RatioSet{
		CompanyID:  co.ID,
		PeriodEnd:  cur.PeriodEnd,
		PeriodType: model.PeriodAnnual,
		TTM:        true,
		Nature:     nature,
		Values:     r,
		ComputedAt: c.now(),
	}, nil
}

// ttmGrowth compares TTM totals when both snapshots cover four quarters and
// falls back to the latest quarter against the same quarter a year earlier.
func (c *Computer) ttmGrowth(ctx context.Context, companyID int64, cur, prev *ttm.Result, nature model.ResultNature) (model.Ratios, error) {
	out := model.Ratios{}
	pairs := []struct{ name, field string }{
		{growth.RevenueGrowth, fields.Revenue},
		{growth.ProfitGrowth, fields.NetProfit},
	}
	if cur.Complete() && prev.Complete() {
		for _, p := range pairs {
			out[p.name] = growth.Growth(lookupPtr(cur.Values, p.field), lookupPtr(prev.Values, p.field))
		}
		return out, nil
	}
	if cur.Quarters == 0 {
		return out, nil
	}
	for _, p := range pairs {
		v, err := c.growth.YoY(ctx, companyID, p.field, cur.PeriodEnd, model.PeriodQuarterly, nature)
		if err != nil {
			return nil, err
		}
		out[p.name] = v
	}
	return out, nil
}

// quarterGrowth compares the newest quarter with the one before it.
func (c *Computer) quarterGrowth(ctx context.Context, companyID int64, end time.Time, nature model.ResultNature) (model.Ratios, error) {
	out := model.Ratios{}
	for _, p := range []struct{ name, field string }{
		{model.RatioRevenueGrowthQoQ, fields.Revenue},
		{model.RatioProfitGrowthQoQ, fields.NetProfit},
	} {
		v, err := c.growth.QoQ(ctx, companyID, p.field, end, nature)
		if err != nil {
			return nil, err
		}
		out[p.name] = v
	}
	return out, nil
}

// AnnualSet computes the non-TTM ratio set of the newest annual period ending
// on or before asOf, averaged against the annual period a year earlier and
// valued at the close on the period end. It returns nil when no annual
// statements exist.
func (c *Computer) AnnualSet(ctx context.Context, co model.Company, asOf time.Time, nature model.ResultNature) (*model.RatioSet, error) {
	recs, err := c.store.Statements(ctx, co.ID, asOf)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load statements for company %d", co.ID)
	}
	cur, prev, end := AnnualPeriods(recs, nature)
	if len(cur) == 0 {
		return nil, nil
	}

	m, err := c.Market(ctx, co, end)
	if err != nil {
		return nil, err
	}
	curData := financial.FromRecords(m, cur...)
	var prevData *financial.Data
	if len(prev) > 0 {
		prevData = financial.FromRecords(financial.Market{}, prev...)
	}

	r := ratios.Compute(curData, prevData)
	r[model.RatioDividendYield] = DividendYield(curData)

	g, err := c.growth.All(ctx, co.ID, end, model.PeriodAnnual, nature)
	if err != nil {
		return nil, err
	}
	r[model.RatioRevenueGrowth] = g[growth.RevenueGrowth]
	r[model.RatioProfitGrowth] = g[growth.ProfitGrowth]

	return &model.RatioSet{
		CompanyID:  co.ID,
		PeriodEnd:  end,
		PeriodType: model.PeriodAnnual,
		Nature:     nature,
		Values:     r,
		ComputedAt: c.now(),
	}, nil
}

// AnnualPeriods groups the annual statements of one nature by period end and
// returns the newest group, the group ending about a year before it, and the
// newest period end.
func AnnualPeriods(recs []*model.StatementRecord, nature model.ResultNature) (cur, prev []*model.StatementRecord, end time.Time) {
	byEnd := make(map[time.Time][]*model.StatementRecord)
	for _, r := range recs {
		if r == nil || r.Nature != nature || r.Period.Type != model.PeriodAnnual {
			continue
		}
		byEnd[r.Period.End] = append(byEnd[r.Period.End], r)
	}
	if len(byEnd) == 0 {
		return nil, nil, time.Time{}
	}

	ends := make([]time.Time, 0, len(byEnd))
	for e := range byEnd {
		ends = append(ends, e)
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i].After(ends[j]) })

	end = ends[0]
	cur = byEnd[end]
	target := period.AddMonths(end, -12)
	for _, e := range ends[1:] {
		if math.Abs(e.Sub(target).Hours()/24) <= growth.ToleranceDays {
			prev = byEnd[e]
			break
		}
	}
	return cur, prev, end
}

// DividendYield is dividend per share over price, in percent.
func DividendYield(d *financial.Data) *float64 {
	dps, ok := d.Lookup(fields.DividendPerShare)
	if !ok || dps <= 0 {
		return nil
	}
	return ratios.SafeDiv(dps*100, d.Market.Price)
}

func lookupPtr(m map[string]float64, k string) *float64 {
	v, ok := m[k]
	if !ok {
		return nil
	}
	return &v
}
