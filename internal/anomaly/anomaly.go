// Package anomaly runs internal consistency checks over a company's
// statements and ratios.
package anomaly

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/growth"
	"github.com/sells-group/filings-cli/internal/metrics"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
)

// Balance sheet identity deviations, in percent.
const (
	MismatchMedium = 5.0
	MismatchHigh   = 10.0
)

// SuddenChangePct is the period-on-period move that flags a field.
const SuddenChangePct = 100.0

// Bound is an inclusive range a ratio is expected to fall in.
type Bound struct {
	Min, Max float64
}

// RatioBounds are the expected ranges per ratio.
var RatioBounds = map[string]Bound{
	model.RatioPE:           {0, 500},
	model.RatioPB:           {0, 100},
	model.RatioROE:          {-100, 200},
	model.RatioROCE:         {-100, 200},
	model.RatioDebtEquity:   {0, 20},
	model.RatioCurrentRatio: {0, 50},
}

// NonNegativeFields should never carry a negative value.
var NonNegativeFields = []string{
	fields.Revenue,
	fields.TotalAssets,
	fields.TotalEquity,
	fields.ShareCapital,
	fields.Inventory,
	fields.TradeReceivables,
}

// RequiredPLFields must be present on annual P&L statements.
var RequiredPLFields = []string{fields.Revenue, fields.NetProfit}

// suddenChangeFields are watched for large period-on-period moves.
var suddenChangeFields = []string{fields.Revenue, fields.NetProfit}

// Input is everything known about one company.
type Input struct {
	CompanyID  int64
	Statements []*model.StatementRecord
	Ratios     []model.RatioSet
}

// Check is one independent anomaly check.
type Check struct {
	Name string
	Run  func(Input) []model.Anomaly
}

// Checks returns the default checks in report order.
func Checks() []Check {
	return []Check{
		{"balance_sheet", CheckBalanceSheet},
		{"negative_values", CheckNegativeValues},
		{"ratio_bounds", CheckRatioBounds},
		{"missing_data", CheckMissingData},
		{"sudden_change", CheckSuddenChanges},
	}
}

// Detector runs a set of checks.
type Detector struct {
	checks  []Check
	metrics *metrics.Registry
}

// New returns a detector running checks, or the defaults when none are given.
func New(reg *metrics.Registry, checks ...Check) *Detector {
	if len(checks) == 0 {
		checks = Checks()
	}
	return &Detector{checks: checks, metrics: reg}
}

// Detect runs every check. A check that panics is logged and skipped; the
// remaining checks still run.
func (d *Detector) Detect(in Input) []model.Anomaly {
	var out []model.Anomaly
	for _, c := range d.checks {
		out = append(out, d.run(c, in)...)
	}
	for _, a := range out {
		d.metrics.RecordAnomaly(a.Type, string(a.Severity))
	}
	return out
}

func (d *Detector) run(c Check, in Input) (found []model.Anomaly) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("anomaly: check panicked",
				zap.String("component", "anomaly"),
				zap.String("check", c.Name),
				zap.Int64("company_id", in.CompanyID),
				zap.Any("panic", r),
			)
			found = nil
		}
	}()
	return c.Run(in)
}

// CheckBalanceSheet verifies total_assets ≈ total_equity + total_liabilities
// on every balance sheet.
func CheckBalanceSheet(in Input) []model.Anomaly {
	var out []model.Anomaly
	for _, rec := range in.Statements {
		if rec.StatementType != model.StatementBalanceSheet {
			continue
		}
		assets, _ := rec.Value(fields.TotalAssets)
		if assets == 0 {
			continue
		}
		equity, _ := rec.Value(fields.TotalEquity)
		liabilities, _ := rec.Value(fields.TotalLiabilities)
		expected := equity + liabilities
		if expected <= 0 {
			continue
		}

		diff := math.Abs(assets-expected) / expected * 100
		if diff <= MismatchMedium {
			continue
		}
		sev := model.SeverityMedium
		if diff > MismatchHigh {
			sev = model.SeverityHigh
		}
		out = append(out, model.Anomaly{
			Type:      model.AnomalyBalanceSheetMismatch,
			Severity:  sev,
			CompanyID: rec.CompanyID,
			PeriodEnd: rec.Period.End,
			Message:   fmt.Sprintf("Assets (%.0f) != Equity (%.0f) + Liabilities (%.0f)", assets, equity, liabilities),
			Evidence: map[string]float64{
				fields.TotalAssets:      assets,
				fields.TotalEquity:      equity,
				fields.TotalLiabilities: liabilities,
				"deviation_pct":         numeric.Round2(diff),
			},
		})
	}
	return out
}

// CheckNegativeValues flags negative values on NonNegativeFields.
func CheckNegativeValues(in Input) []model.Anomaly {
	var out []model.Anomaly
	for _, rec := range in.Statements {
		for _, f := range NonNegativeFields {
			v, ok := rec.Value(f)
			if !ok || v >= 0 {
				continue
			}
			out = append(out, model.Anomaly{
				Type:      model.AnomalyNegativeValue,
				Severity:  model.SeverityMedium,
				CompanyID: rec.CompanyID,
				PeriodEnd: rec.Period.End,
				Field:     f,
				Message:   fmt.Sprintf("Unexpected negative %s: %g", f, v),
				Evidence:  map[string]float64{"value": v},
			})
		}
	}
	return out
}

// CheckRatioBounds flags ratios outside RatioBounds.
func CheckRatioBounds(in Input) []model.Anomaly {
	names := make([]string, 0, len(RatioBounds))
	for n := range RatioBounds {
		names = append(names, n)
	}
	sort.Strings(names)

	var out []model.Anomaly
	for _, rs := range in.Ratios {
		for _, n := range names {
			v := rs.Values.Get(n)
			if v == nil {
				continue
			}
			b := RatioBounds[n]
			if *v >= b.Min && *v <= b.Max {
				continue
			}
			out = append(out, model.Anomaly{
				Type:      model.AnomalyExtremeRatio,
				Severity:  model.SeverityLow,
				CompanyID: rs.CompanyID,
				PeriodEnd: rs.PeriodEnd,
				Field:     n,
				Message:   fmt.Sprintf("Extreme %s: %g (expected %g-%g)", n, *v, b.Min, b.Max),
				Evidence:  map[string]float64{"value": *v, "min": b.Min, "max": b.Max},
			})
		}
	}
	return out
}

// CheckMissingData flags annual P&L statements without RequiredPLFields.
func CheckMissingData(in Input) []model.Anomaly {
	var out []model.Anomaly
	for _, rec := range in.Statements {
		if rec.StatementType != model.StatementProfitLoss || rec.Period.Type != model.PeriodAnnual {
			continue
		}
		for _, f := range RequiredPLFields {
			if _, ok := rec.Value(f); ok {
				continue
			}
			out = append(out, model.Anomaly{
				Type:      model.AnomalyMissingData,
				Severity:  model.SeverityHigh,
				CompanyID: rec.CompanyID,
				PeriodEnd: rec.Period.End,
				Field:     f,
				Message:   "Missing required field: " + f,
			})
		}
	}
	return out
}

// CheckSuddenChanges flags revenue or net profit moving more than
// SuddenChangePct between consecutive P&L statements of the same period
// type and nature.
func CheckSuddenChanges(in Input) []model.Anomaly {
	type series struct {
		pt     model.PeriodType
		nature model.ResultNature
	}
	groups := make(map[series][]*model.StatementRecord)
	for _, rec := range in.Statements {
		if rec.StatementType != model.StatementProfitLoss {
			continue
		}
		k := series{rec.Period.Type, rec.Nature}
		groups[k] = append(groups[k], rec)
	}

	keys := make([]series, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pt != keys[j].pt {
			return keys[i].pt < keys[j].pt
		}
		return keys[i].nature < keys[j].nature
	})

	var out []model.Anomaly
	for _, k := range keys {
		recs := groups[k]
		sort.Slice(recs, func(i, j int) bool { return recs[i].Period.End.Before(recs[j].Period.End) })
		for i := 1; i < len(recs); i++ {
			prev, cur := recs[i-1], recs[i]
			if !consecutive(prev, cur) {
				continue
			}
			for _, f := range suddenChangeFields {
				pv, ok1 := prev.Value(f)
				cv, ok2 := cur.Value(f)
				if !ok1 || !ok2 {
					continue
				}
				g := growth.Growth(&cv, &pv)
				if g == nil || math.Abs(*g) <= SuddenChangePct {
					continue
				}
				out = append(out, model.Anomaly{
					Type:      model.AnomalySuddenChange,
					Severity:  model.SeverityLow,
					CompanyID: cur.CompanyID,
					PeriodEnd: cur.Period.End,
					Field:     f,
					Message:   fmt.Sprintf("%s changed %.2f%% from the previous %s period", f, *g, k.pt),
					Evidence:  map[string]float64{"current": cv, "previous": pv, "change_pct": *g},
				})
			}
		}
	}
	return out
}

// consecutive reports whether cur follows prev by one period length, within
// the growth lookup tolerance.
func consecutive(prev, cur *model.StatementRecord) bool {
	months := cur.Period.Type.Months()
	if months == 0 {
		return false
	}
	expected := cur.Period.End.AddDate(0, -months, 0)
	gap := prev.Period.End.Sub(expected).Hours() / 24
	return math.Abs(gap) <= growth.ToleranceDays
}
