// Package ratios computes the valuation, profitability, efficiency,
// leverage and per-share ratio set from a financial snapshot.
package ratios

import (
	"math"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/financial"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
)

// Epsilon is the smallest denominator magnitude SafeDiv divides by.
const Epsilon = 0.001

const daysPerYear = 365

// SafeDiv returns n/d rounded to two decimals, or nil when |d| <= Epsilon.
func SafeDiv(n, d float64) *float64 {
	if math.IsNaN(d) || math.Abs(d) <= Epsilon {
		return nil
	}
	return model.Float(numeric.Round2(n / d))
}

// avg averages cur with a positive prior value; otherwise it returns cur.
func avg(cur float64, prev *financial.Data, prevVal float64) float64 {
	if prev != nil && prevVal > 0 {
		return (cur + prevVal) / 2
	}
	return cur
}

// Compute derives the full ratio set for current, averaging balance sheet
// denominators with previous when it is given. Growth and dividend yield
// are left nil for the caller to merge. Compute is pure.
func Compute(current, previous *financial.Data) model.Ratios {
	if current == nil {
		current = financial.New(nil, financial.Market{})
	}
	r := make(model.Ratios, len(model.RatioNames))
	for _, name := range model.RatioNames {
		r[name] = nil
	}

	// Valuation.
	r.Merge(Valuation(current))

	// Profitability.
	revenue := current.Get(fields.Revenue)
	netProfit := current.Get(fields.NetProfit)
	r[model.RatioOperatingMargin] = SafeDiv(current.Get(fields.EBITDA)*100, revenue)
	r[model.RatioNetMargin] = SafeDiv(netProfit*100, revenue)

	avgEquity := avg(current.Get(fields.TotalEquity), previous, previous.Get(fields.TotalEquity))
	r[model.RatioROE] = SafeDiv(netProfit*100, avgEquity)

	var prevCE float64
	if previous != nil {
		prevCE = previous.CapitalEmployed()
	}
	avgCE := avg(current.CapitalEmployed(), previous, prevCE)
	r[model.RatioROCE] = SafeDiv(current.Get(fields.EBIT)*100, avgCE)

	avgAssets := avg(current.Get(fields.TotalAssets), previous, previous.Get(fields.TotalAssets))
	r[model.RatioROA] = SafeDiv(netProfit*100, avgAssets)

	// Efficiency.
	r[model.RatioAssetTurnover] = SafeDiv(revenue, avgAssets)

	cogs := COGS(current)
	inventory := current.Get(fields.Inventory)
	receivables := current.Get(fields.TradeReceivables)
	payables := current.Get(fields.TradePayables)
	if cogs > 0 && inventory > 0 {
		r[model.RatioInventoryDays] = model.Float(numeric.Round2(inventory * daysPerYear / cogs))
	}
	if revenue > 0 && receivables > 0 {
		r[model.RatioReceivableDays] = model.Float(numeric.Round2(receivables * daysPerYear / revenue))
	}
	if cogs > 0 && payables > 0 {
		r[model.RatioPayableDays] = model.Float(numeric.Round2(payables * daysPerYear / cogs))
	}
	inv, rec, pay := r[model.RatioInventoryDays], r[model.RatioReceivableDays], r[model.RatioPayableDays]
	if inv != nil && rec != nil && pay != nil {
		r[model.RatioCashConversionCycle] = model.Float(numeric.Round2(*inv + *rec - *pay))
	}

	// Leverage.
	r[model.RatioDebtEquity] = SafeDiv(current.Get(fields.TotalBorrowings), current.Get(fields.TotalEquity))
	r[model.RatioCurrentRatio] = SafeDiv(current.Get(fields.TotalCurrentAssets), current.Get(fields.TotalCurrentLiabilities))
	r[model.RatioInterestCoverage] = SafeDiv(current.Get(fields.EBIT), current.Get(fields.InterestExpense))

	// Per share.
	if eps := current.Get(fields.EPSBasic); eps != 0 {
		r[model.RatioEPS] = model.Float(eps)
	}
	if cfo := current.Get(fields.CFO); cfo != 0 {
		r[model.RatioFreeCashFlow] = model.Float(numeric.Round2(cfo - math.Abs(current.Get(fields.Capex))))
	}

	return r
}

// COGS approximates cost of goods sold as total expenses less depreciation,
// interest and employee cost, dropping the employee cost term when that
// leaves nothing.
func COGS(d *financial.Data) float64 {
	base := d.Get(fields.TotalExpenses) - d.Get(fields.Depreciation) - d.Get(fields.InterestExpense)
	if c := base - d.Get(fields.EmployeeCost); c > 0 {
		return c
	}
	return base
}

// Valuation computes only the price-dependent ratios: market_cap, pe_ratio,
// book_value_per_share, pb_ratio, ev and ev_ebitda. It is used on its own
// when only the price has moved.
func Valuation(d *financial.Data) model.Ratios {
	price := d.Market.Price
	shares := d.Market.SharesOutstanding
	r := model.Ratios{
		model.RatioMarketCap:         nil,
		model.RatioPE:                nil,
		model.RatioBookValuePerShare: nil,
		model.RatioPB:                nil,
		model.RatioEV:                nil,
		model.RatioEVEBITDA:          nil,
	}

	marketCap := price * shares
	if marketCap > 0 {
		r[model.RatioMarketCap] = model.Float(numeric.Round2(marketCap))
	}
	r[model.RatioPE] = SafeDiv(price, d.Get(fields.EPSBasic))

	bvps := SafeDiv(d.Get(fields.TotalEquity), shares)
	r[model.RatioBookValuePerShare] = bvps
	if bvps != nil && *bvps > 0 {
		r[model.RatioPB] = SafeDiv(price, *bvps)
	}

	if marketCap > 0 {
		ev := marketCap + d.Get(fields.TotalBorrowings) - d.Get(fields.CashAndEquivalents)
		r[model.RatioEV] = model.Float(numeric.Round2(ev))
		if ebitda := d.Get(fields.EBITDA); ebitda > 0 {
			r[model.RatioEVEBITDA] = SafeDiv(ev, ebitda)
		}
	}
	return r
}

// ValuationUpdate reprices an existing ratio set: the price-dependent
// ratios are recomputed at price and every other ratio is carried over.
func ValuationUpdate(existing model.Ratios, d *financial.Data, price float64) model.Ratios {
	m := d.Market
	m.Price = price
	out := make(model.Ratios, len(existing)+6)
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range Valuation(d.WithMarket(m)) {
		out[k] = v
	}
	return out
}
