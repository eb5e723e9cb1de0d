package model

import "time"

// Ratio names. The order of RatioNames is the persisted column order.
const (
	RatioMarketCap           = "market_cap"
	RatioPE                  = "pe_ratio"
	RatioPB                  = "pb_ratio"
	RatioEV                  = "ev"
	RatioEVEBITDA            = "ev_ebitda"
	RatioDividendYield       = "dividend_yield"
	RatioROE                 = "roe"
	RatioROCE                = "roce"
	RatioROA                 = "roa"
	RatioOperatingMargin     = "operating_margin"
	RatioNetMargin           = "net_margin"
	RatioAssetTurnover       = "asset_turnover"
	RatioInventoryDays       = "inventory_days"
	RatioReceivableDays      = "receivable_days"
	RatioPayableDays         = "payable_days"
	RatioCashConversionCycle = "cash_conversion_cycle"
	RatioDebtEquity          = "debt_equity"
	RatioCurrentRatio        = "current_ratio"
	RatioInterestCoverage    = "interest_coverage"
	RatioRevenueGrowth       = "revenue_growth"
	RatioProfitGrowth        = "profit_growth"
	RatioEPS                 = "eps"
	RatioBookValuePerShare   = "book_value_per_share"
	RatioFreeCashFlow        = "free_cash_flow"
	RatioRevenueGrowthQoQ    = "revenue_growth_qoq"
	RatioProfitGrowthQoQ     = "profit_growth_qoq"
)

// RatioNames lists every ratio in the persisted set.
var RatioNames = []string{
	RatioMarketCap, RatioPE, RatioPB, RatioEV, RatioEVEBITDA, RatioDividendYield,
	RatioROE, RatioROCE, RatioROA, RatioOperatingMargin, RatioNetMargin,
	RatioAssetTurnover, RatioInventoryDays, RatioReceivableDays, RatioPayableDays,
	RatioCashConversionCycle, RatioDebtEquity, RatioCurrentRatio, RatioInterestCoverage,
	RatioRevenueGrowth, RatioProfitGrowth, RatioEPS, RatioBookValuePerShare,
	RatioFreeCashFlow, RatioRevenueGrowthQoQ, RatioProfitGrowthQoQ,
}

// Ratios maps a ratio name to its value. A nil value means the ratio is
// undefined for the input.
type Ratios map[string]*float64

// Get returns the ratio value, or nil when absent or undefined.
func (r Ratios) Get(name string) *float64 {
	if r == nil {
		return nil
	}
	return r[name]
}

// Merge copies every non-nil value from other into r.
func (r Ratios) Merge(other Ratios) {
	for k, v := range other {
		if v != nil {
			r[k] = v
		}
	}
}

// RatioSet is the persisted ratio output for one company and period.
type RatioSet struct {
	CompanyID  int64        `json:"company_id"`
	PeriodEnd  time.Time    `json:"period_end"`
	PeriodType PeriodType   `json:"period_type"`
	TTM        bool         `json:"is_ttm"`
	Nature     ResultNature `json:"result_nature"`
	Values     Ratios       `json:"values"`
	ComputedAt time.Time    `json:"computed_at"`
}

// Float returns a pointer to v. It is a convenience for building Ratios.
func Float(v float64) *float64 {
	return &v
}

// CompanyRatios is a company with one of its ratio sets.
type CompanyRatios struct {
	Company Company  `json:"company"`
	Ratios  RatioSet `json:"ratios"`
}
