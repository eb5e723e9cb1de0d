// Package ttm aggregates trailing-twelve-month figures from stored quarterly
// statements.
package ttm

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/financial"
	"github.com/sells-group/filings-cli/internal/model"
)

// Quarters is the number of quarterly statements summed into a TTM figure.
const Quarters = 4

// ErrNoStatements is returned when neither quarterly P&L statements nor a
// balance sheet exist on or before the as-of date.
var ErrNoStatements = eris.New("ttm: no statements")

// cashFlowFallback are taken from the latest cash-flow statement when the
// quarterly sum is absent or zero.
var cashFlowFallback = []string{
	fields.CFO, fields.CFI, fields.CFF, fields.NetCashFlow, fields.Capex,
}

// Reader is the statement storage the aggregator reads from. LatestStatement
// returns nil with no error when nothing matches.
type Reader interface {
	QuarterlyStatements(ctx context.Context, companyID int64, st model.StatementType, asOf time.Time, nature model.ResultNature, limit int) ([]*model.StatementRecord, error)
	LatestStatement(ctx context.Context, companyID int64, st model.StatementType, asOf time.Time, nature model.ResultNature) (*model.StatementRecord, error)
}

// Result is one TTM snapshot.
type Result struct {
	Values map[string]float64 `json:"values"`
	// Quarters is the number of quarterly statements summed.
	Quarters int `json:"quarters"`
	// PeriodEnd is the end of the newest quarter, or of the balance sheet
	// when no quarters were found.
	PeriodEnd        time.Time  `json:"period_end"`
	BalanceSheetEnd  *time.Time `json:"balance_sheet_end,omitempty"`
	CashFlowFallback []string   `json:"cash_flow_fallback,omitempty"`
}

// Complete reports whether a full four quarters were summed.
func (r *Result) Complete() bool {
	return r != nil && r.Quarters >= Quarters
}

// Data returns the snapshot valued at m, with derived fields filled.
func (r *Result) Data(m financial.Market) *financial.Data {
	if r == nil {
		return financial.New(nil, m)
	}
	return financial.New(r.Values, m)
}

// Aggregator computes TTM snapshots.
type Aggregator struct {
	reader Reader
	log    *zap.Logger
}

// New creates an Aggregator reading from r.
func New(r Reader) *Aggregator {
	return &Aggregator{
		reader: r,
		log:    zap.L().With(zap.String("component", "ttm")),
	}
}

// Compute builds the TTM snapshot of a company as of asOf: flow fields of up
// to four quarterly P&L statements are summed (EPS included, as a sum of the
// quarterly EPS), stock fields are copied from the latest balance sheet, and
// cash-flow totals fall back to the latest cash-flow statement.
func (a *Aggregator) Compute(ctx context.Context, companyID int64, asOf time.Time, nature model.ResultNature) (*Result, error) {
	log := a.log.With(
		zap.Int64("company_id", companyID),
		zap.String("as_of", asOf.Format(time.DateOnly)),
		zap.Stringer("nature", nature),
	)

	quarters, err := a.reader.QuarterlyStatements(ctx, companyID, model.StatementProfitLoss, asOf, nature, Quarters)
	if err != nil {
		return nil, eris.Wrap(err, "ttm: load quarterly statements")
	}
	bs, err := a.reader.LatestStatement(ctx, companyID, model.StatementBalanceSheet, asOf, nature)
	if err != nil {
		return nil, eris.Wrap(err, "ttm: load balance sheet")
	}
	if len(quarters) == 0 && bs == nil {
		return nil, eris.Wrapf(ErrNoStatements, "company %d as of %s", companyID, asOf.Format(time.DateOnly))
	}
	if len(quarters) < Quarters {
		log.Warn("fewer than four quarters available", zap.Int("quarters", len(quarters)))
	}

	res := &Result{
		Values:   SumFlows(quarters),
		Quarters: len(quarters),
	}
	if len(quarters) > 0 {
		res.PeriodEnd = quarters[0].Period.End
	}

	if bs != nil {
		for f, v := range bs.Values {
			if c, ok := fields.CategoryOf(f); ok && c == fields.StockBS {
				res.Values[f] = v
			}
		}
		end := bs.Period.End
		res.BalanceSheetEnd = &end
		if res.PeriodEnd.IsZero() {
			res.PeriodEnd = end
		}
	}

	cf, err := a.reader.LatestStatement(ctx, companyID, model.StatementCashFlow, asOf, nature)
	if err != nil {
		return nil, eris.Wrap(err, "ttm: load cash flow")
	}
	if cf != nil {
		for _, f := range cashFlowFallback {
			v, ok := cf.Value(f)
			if !ok {
				continue
			}
			if res.Values[f] == 0 {
				res.Values[f] = v
				res.CashFlowFallback = append(res.CashFlowFallback, f)
			}
		}
	}

	log.Debug("computed ttm",
		zap.Int("quarters", res.Quarters),
		zap.Int("fields", len(res.Values)),
	)
	return res, nil
}

// SumFlows adds up every flow-category field across the records. A field
// missing from a record counts as zero for that record.
func SumFlows(recs []*model.StatementRecord) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range recs {
		if r == nil {
			continue
		}
		for f, v := range r.Values {
			c, ok := fields.CategoryOf(f)
			if !ok || !c.IsFlow() {
				continue
			}
			out[f] += v
		}
	}
	return out
}
