// Package growth computes period-over-period growth and compound annual
// growth rates from stored statement values.
package growth

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
	"github.com/sells-group/filings-cli/internal/period"
)

// ToleranceDays is how far a stored period end may sit from the requested
// date and still match.
const ToleranceDays = 45

// Metric names returned by All.
const (
	RevenueGrowth = model.RatioRevenueGrowth
	ProfitGrowth  = model.RatioProfitGrowth
	EPSGrowth     = "eps_growth"
	EBITDAGrowth  = "ebitda_growth"
	RevenueCAGR3Y = "revenue_cagr_3yr"
	RevenueCAGR5Y = "revenue_cagr_5yr"
	ProfitCAGR3Y  = "profit_cagr_3yr"
	ProfitCAGR5Y  = "profit_cagr_5yr"
)

const (
	daysPerYear    = 365.25
	monthsPerYear  = 12
	monthsPerQuart = 3
)

// Lookup returns the stored value of a field for the period of type pt whose
// end is nearest periodEnd within toleranceDays. A nil value with no error
// means no match.
type Lookup interface {
	FieldValue(ctx context.Context, companyID int64, field string, periodEnd time.Time, pt model.PeriodType, nature model.ResultNature, toleranceDays int) (*float64, error)
}

// Calculator computes growth metrics against a Lookup.
type Calculator struct {
	lookup    Lookup
	tolerance int
	log       *zap.Logger
}

// New creates a Calculator with the default date tolerance.
func New(l Lookup) *Calculator {
	return &Calculator{
		lookup:    l,
		tolerance: ToleranceDays,
		log:       zap.L().With(zap.String("component", "growth")),
	}
}

// Growth is (cur - prev) / |prev| * 100 rounded to two decimals. It is nil
// when either value is missing or prev is zero.
func Growth(cur, prev *float64) *float64 {
	if cur == nil || prev == nil || *prev == 0 {
		return nil
	}
	g := numeric.Round2((*cur - *prev) / math.Abs(*prev) * 100)
	return &g
}

// CAGR is ((end/start)^(1/years) - 1) * 100 rounded to two decimals. Both
// endpoints must be positive and years greater than zero.
func CAGR(start, end, years float64) *float64 {
	if start <= 0 || end <= 0 || years <= 0 {
		return nil
	}
	g := numeric.Round2((math.Pow(end/start, 1/years) - 1) * 100)
	return &g
}

// Years is the fractional number of years between two dates.
func Years(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / daysPerYear
}

func (c *Calculator) value(ctx context.Context, companyID int64, field string, end time.Time, pt model.PeriodType, nature model.ResultNature) (*float64, error) {
	v, err := c.lookup.FieldValue(ctx, companyID, field, end, pt, nature, c.tolerance)
	if err != nil {
		return nil, eris.Wrapf(err, "growth: lookup %s at %s", field, end.Format(time.DateOnly))
	}
	return v, nil
}

// YoY compares a field with its value one year earlier.
func (c *Calculator) YoY(ctx context.Context, companyID int64, field string, periodEnd time.Time, pt model.PeriodType, nature model.ResultNature) (*float64, error) {
	return c.between(ctx, companyID, field, periodEnd, period.AddMonths(periodEnd, -monthsPerYear), pt, nature)
}

// QoQ compares a quarterly field with the previous quarter.
func (c *Calculator) QoQ(ctx context.Context, companyID int64, field string, periodEnd time.Time, nature model.ResultNature) (*float64, error) {
	prevEnd := period.AddMonths(periodEnd, -monthsPerQuart)
	if period.IsMonthEnd(periodEnd) {
		prevEnd = period.MonthEnd(prevEnd.Year(), prevEnd.Month())
	}
	return c.between(ctx, companyID, field, periodEnd, prevEnd, model.PeriodQuarterly, nature)
}

func (c *Calculator) between(ctx context.Context, companyID int64, field string, curEnd, prevEnd time.Time, pt model.PeriodType, nature model.ResultNature) (*float64, error) {
	cur, err := c.value(ctx, companyID, field, curEnd, pt, nature)
	if err != nil || cur == nil {
		return nil, err
	}
	prev, err := c.value(ctx, companyID, field, prevEnd, pt, nature)
	if err != nil {
		return nil, err
	}
	return Growth(cur, prev), nil
}

// CAGRBetween is the compound annual growth of an annual field between two
// period ends. Years are measured between the requested dates.
func (c *Calculator) CAGRBetween(ctx context.Context, companyID int64, field string, start, end time.Time, nature model.ResultNature) (*float64, error) {
	sv, err := c.value(ctx, companyID, field, start, model.PeriodAnnual, nature)
	if err != nil || sv == nil {
		return nil, err
	}
	ev, err := c.value(ctx, companyID, field, end, model.PeriodAnnual, nature)
	if err != nil || ev == nil {
		return nil, err
	}
	return CAGR(*sv, *ev, Years(start, end)), nil
}

// All returns revenue, profit, EPS and EBITDA growth year on year plus three
// and five year revenue and profit CAGR. A metric that cannot be computed is
// nil; the first lookup error aborts.
func (c *Calculator) All(ctx context.Context, companyID int64, periodEnd time.Time, pt model.PeriodType, nature model.ResultNature) (model.Ratios, error) {
	out := make(model.Ratios, 8)

	yoy := []struct {
		name, field string
	}{
		{RevenueGrowth, fields.Revenue},
		{ProfitGrowth, fields.NetProfit},
		{EPSGrowth, fields.EPSBasic},
		{EBITDAGrowth, fields.OperatingProfit},
	}
	for _, m := range yoy {
		v, err := c.YoY(ctx, companyID, m.field, periodEnd, pt, nature)
		if err != nil {
			return nil, err
		}
		out[m.name] = v
	}

	cagr := []struct {
		name, field string
		years       int
	}{
		{RevenueCAGR3Y, fields.Revenue, 3},
		{RevenueCAGR5Y, fields.Revenue, 5},
		{ProfitCAGR3Y, fields.NetProfit, 3},
		{ProfitCAGR5Y, fields.NetProfit, 5},
	}
	for _, m := range cagr {
		start := period.AddMonths(periodEnd, -monthsPerYear*m.years)
		v, err := c.CAGRBetween(ctx, companyID, m.field, start, periodEnd, nature)
		if err != nil {
			return nil, err
		}
		out[m.name] = v
	}

	c.log.Debug("computed growth",
		zap.Int64("company_id", companyID),
		zap.String("period_end", periodEnd.Format(time.DateOnly)),
	)
	return out, nil
}
