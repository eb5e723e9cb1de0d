package feed

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
	"github.com/sells-group/filings-cli/internal/period"
)

// resultsMetric maps a results-comparison array to a canonical field. When
// two arrays map to the same field, the later entry wins.
type resultsMetric struct {
	key   string
	field string
}

var resultsMetrics = []resultsMetric{
	{"revenue", fields.Revenue},
	{"revenueFromOperations", fields.Revenue},
	{"otherIncome", fields.OtherIncome},
	{"totalExpenses", fields.TotalExpenses},
	{"operatingProfit", fields.OperatingProfit},
	{"ebitda", fields.OperatingProfit},
	{"depreciationAndAmortisation", fields.Depreciation},
	{"financeCost", fields.InterestExpense},
	{"profitBeforeTax", fields.ProfitBeforeTax},
	{"taxExpense", fields.TaxExpense},
	{"profitAfterTax", fields.NetProfit},
	{"netProfit", fields.NetProfit},
	{"basicEPS", fields.EPSBasic},
	{"dilutedEPS", fields.EPSDiluted},
	{"totalAssets", fields.TotalAssets},
	{"totalEquity", fields.TotalEquity},
	{"totalBorrowings", fields.TotalBorrowings},
	{"cashAndEquivalents", fields.CashAndEquivalents},
}

// ParseResultsComparison reads an NSE results-comparison payload:
//
//	{"periodDates": ["Jun 2024", "Mar 2024"], "revenue": [152345, 148765], ...}
//
// Each period yields a consolidated P&L record and, when balance sheet
// arrays are present, a balance sheet record. March periods are annual and
// marked audited. Periods that do not parse are skipped.
func ParseResultsComparison(r io.Reader, companyID int64) ([]*model.StatementRecord, error) {
	raw, err := fetcher.DecodeJSON[map[string]any](r)
	if err != nil {
		return nil, eris.Wrap(err, "feed: decode results comparison")
	}
	data := *raw

	dates := stringSlice(data["periodDates"])
	if len(dates) == 0 {
		dates = stringSlice(data["dates"])
	}

	var out []*model.StatementRecord
	for i, label := range dates {
		p, ok := period.Parse(label)
		if !ok {
			continue
		}

		recs := map[model.StatementType]*model.StatementRecord{}
		for _, m := range resultsMetrics {
			arr, ok := data[m.key].([]any)
			if !ok || i >= len(arr) {
				continue
			}
			v, ok := number(arr[i])
			if !ok {
				continue
			}
			st, _ := fields.StatementOf(m.field)
			rec, ok := recs[st]
			if !ok {
				rec = &model.StatementRecord{
					CompanyID:     companyID,
					StatementType: st,
					Nature:        model.NatureConsolidated,
					Period:        p,
					Audited:       p.Type == model.PeriodAnnual,
					Source:        SourceNSEAPI,
				}
				recs[st] = rec
			}
			rec.Set(m.field, v)
		}

		for _, st := range model.StatementTypes {
			if rec, ok := recs[st]; ok {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

// FromMap normalizes a raw vendor field→value map into a statement record
// through n, or the built-in tables when n is nil. Unresolved names are kept
// in RawItems only. Values may be numbers or numeric text.
func FromMap(n *fields.Normalizer, companyID int64, st model.StatementType, nature model.ResultNature, p model.Period, raw map[string]any) *model.StatementRecord {
	if n == nil {
		n = fields.Default()
	}
	rec := &model.StatementRecord{
		CompanyID:     companyID,
		StatementType: st,
		Nature:        nature,
		Period:        p,
		Audited:       p.Type == model.PeriodAnnual,
		Source:        SourceNSEAPI,
		RawItems:      make(map[string]any, len(raw)),
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		rec.RawItems[k] = raw[k]
		v, ok := number(raw[k])
		if !ok {
			continue
		}
		f, ok := n.NormalizeIn(k, st)
		if !ok {
			continue
		}
		rec.Set(f, v)
	}
	return rec
}

// Filing is one entry of the corporate financial results listing.
type Filing struct {
	PeriodEnd  time.Time
	FilingDate *time.Time
	XBRLURL    string
	Audited    bool
	Nature     model.ResultNature
}

type rawFiling struct {
	ToDate        string `json:"toDate"`
	SubmittedDate string `json:"submittedDate"`
	XBRLFile      string `json:"xbrlFile"`
	AuditStatus   string `json:"auditStatus"`
	Consolidated  string `json:"consolidated"`
}

var filingDateLayouts = []string{"02-Jan-2006", "02-Jan-2006 15:04:05", "02-Jan-2006 15:04", "2006-01-02"}

// ParseCorporateFilings reads the corporate financial results listing.
// Entries without a parseable period end are skipped.
func ParseCorporateFilings(r io.Reader) ([]Filing, error) {
	var raw []rawFiling
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "feed: decode corporate filings")
	}

	out := make([]Filing, 0, len(raw))
	for _, f := range raw {
		end, ok := parseDate(f.ToDate, filingDateLayouts)
		if !ok {
			continue
		}
		fl := Filing{
			PeriodEnd: end,
			XBRLURL:   strings.TrimSpace(f.XBRLFile),
			Audited:   isAudited(f.AuditStatus),
			Nature:    model.NatureStandalone,
		}
		if strings.Contains(strings.ToLower(f.Consolidated), "consolidated") &&
			!strings.Contains(strings.ToLower(f.Consolidated), "non") {
			fl.Nature = model.NatureConsolidated
		}
		if fd, ok := parseDate(f.SubmittedDate, filingDateLayouts); ok {
			fl.FilingDate = &fd
		}
		out = append(out, fl)
	}
	return out, nil
}

func isAudited(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "audited") && !strings.Contains(s, "unaudited") && !strings.Contains(s, "un-audited")
}

func parseDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		s, _ := x.(string)
		out = append(out, s)
	}
	return out
}

// number reads a JSON number or numeric text. Blank and dash markers are
// absent rather than zero.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" || s == "-" {
			return 0, false
		}
		return numeric.Parse(s)
	}
	return 0, false
}
