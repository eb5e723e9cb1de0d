// Package quality compares computed values against an external reference
// and aggregates the deviations into a report.
package quality

import (
	"math"
	"time"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
)

// DefaultThreshold applies to fields without their own threshold.
const DefaultThreshold = 5.0

// thresholds are the accepted absolute percentage deviations per field.
var thresholds = map[string]float64{
	fields.Revenue:         1.0,
	fields.NetProfit:       2.0,
	fields.TotalExpenses:   1.0,
	fields.OperatingProfit: 2.0,
	fields.TotalAssets:     1.5,
	fields.TotalEquity:     2.0,
	fields.TotalBorrowings: 3.0,
	model.RatioPE:          10.0,
	model.RatioROE:         3.0,
	model.RatioROCE:        3.0,
	model.RatioDebtEquity:  5.0,
	fields.EPSBasic:        3.0,
}

// ComparedFields are the fields checked for every company, in report order.
var ComparedFields = []string{
	fields.Revenue,
	fields.NetProfit,
	fields.OperatingProfit,
	fields.TotalAssets,
	fields.TotalEquity,
	fields.TotalBorrowings,
	model.RatioROE,
	model.RatioROCE,
	model.RatioPE,
	fields.EPSBasic,
	model.RatioDebtEquity,
}

// Threshold returns the accepted deviation for field.
func Threshold(field string) float64 {
	if t, ok := thresholds[field]; ok {
		return t
	}
	return DefaultThreshold
}

// Deviation returns (our - ref) / |ref| * 100 rounded to two decimals, or
// nil when either side is missing or the reference is zero.
func Deviation(our, ref *float64) *float64 {
	if our == nil || ref == nil || *ref == 0 {
		return nil
	}
	pct := numeric.Round2((*our - *ref) / math.Abs(*ref) * 100)
	return &pct
}

// Compare checks one value against its reference. The boolean is false when
// no comparison can be made. Acceptance is inclusive of the threshold.
func Compare(our, ref *float64, field string) (model.QualityCheckResult, bool) {
	pct := Deviation(our, ref)
	if pct == nil {
		return model.QualityCheckResult{}, false
	}
	t := Threshold(field)
	return model.QualityCheckResult{
		Field:          field,
		OurValue:       our,
		ReferenceValue: ref,
		PctDeviation:   pct,
		Acceptable:     math.Abs(*pct) <= t,
		Threshold:      t,
	}, true
}

// CompareFields compares every compared field present on both sides.
func CompareFields(companyID int64, ours, refs map[string]float64, source string, periodEnd time.Time) []model.QualityCheckResult {
	var out []model.QualityCheckResult
	for _, f := range ComparedFields {
		res, ok := Compare(lookup(ours, f), lookup(refs, f), f)
		if !ok {
			continue
		}
		res.CompanyID = companyID
		res.ReferenceSource = source
		res.PeriodEnd = periodEnd
		out = append(out, res)
	}
	return out
}

func lookup(m map[string]float64, k string) *float64 {
	v, ok := m[k]
	if !ok {
		return nil
	}
	return &v
}
