// Package financial holds the in-memory canonical snapshot used by the
// ratio, growth and anomaly engines.
package financial

import (
	"maps"
	"sort"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
)

// Market is the price data a snapshot is valued with.
type Market struct {
	Price             float64 `json:"current_price"`
	SharesOutstanding float64 `json:"shares_outstanding"`
	FaceValue         float64 `json:"face_value"`
}

// Data is the canonical field values of one period and nature. Missing
// fields read as zero. Derived fields are filled once by New and Data is
// read-only afterwards.
type Data struct {
	values map[string]float64
	Market Market
}

// New copies values and derives ebitda, ebit, total_borrowings and
// total_equity:
//
//	ebitda           = operating_profit if > 0, else pbt + interest + depreciation
//	ebit             = pbt + interest
//	total_borrowings = long + short term borrowings when not reported
//	total_equity     = share_capital + reserves when not reported
func New(values map[string]float64, m Market) *Data {
	d := &Data{values: make(map[string]float64, len(values)+4), Market: m}
	maps.Copy(d.values, values)

	pbt := d.Get(fields.ProfitBeforeTax)
	interest := d.Get(fields.InterestExpense)
	if op := d.Get(fields.OperatingProfit); op > 0 {
		d.values[fields.EBITDA] = op
	} else {
		d.values[fields.EBITDA] = pbt + interest + d.Get(fields.Depreciation)
	}
	d.values[fields.EBIT] = pbt + interest

	if d.Get(fields.TotalBorrowings) == 0 {
		d.values[fields.TotalBorrowings] = d.Get(fields.LongTermBorrowings) + d.Get(fields.ShortTermBorrowings)
	}

	sc, rs := d.Get(fields.ShareCapital), d.Get(fields.ReservesSurplus)
	if d.Get(fields.TotalEquity) == 0 && (sc > 0 || rs > 0) {
		d.values[fields.TotalEquity] = sc + rs
	}
	return d
}

// FromRecords merges statement records (later records win per field) into
// one snapshot.
func FromRecords(m Market, recs ...*model.StatementRecord) *Data {
	vals := make(map[string]float64)
	for _, r := range recs {
		if r != nil {
			maps.Copy(vals, r.Values)
		}
	}
	return New(vals, m)
}

// Get returns the field value, or zero when absent.
func (d *Data) Get(field string) float64 {
	if d == nil {
		return 0
	}
	return d.values[field]
}

// Lookup returns the field value and whether it was present.
func (d *Data) Lookup(field string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	v, ok := d.values[field]
	return v, ok
}

// Has reports whether the field was present.
func (d *Data) Has(field string) bool {
	_, ok := d.Lookup(field)
	return ok
}

// Values returns a copy of all field values, derived fields included.
func (d *Data) Values() map[string]float64 {
	if d == nil {
		return nil
	}
	return maps.Clone(d.values)
}

// Fields returns the present field names in sorted order.
func (d *Data) Fields() []string {
	if d == nil {
		return nil
	}
	out := make([]string, 0, len(d.values))
	for k := range d.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WithMarket returns a copy of d valued at m.
func (d *Data) WithMarket(m Market) *Data {
	return &Data{values: maps.Clone(d.values), Market: m}
}

// CapitalEmployed is equity + borrowings - investments - non-current
// investments - CWIP.
func (d *Data) CapitalEmployed() float64 {
	return d.Get(fields.TotalEquity) +
		d.Get(fields.TotalBorrowings) -
		d.Get(fields.Investments) -
		d.Get(fields.NonCurrentInvestments) -
		d.Get(fields.CWIP)
}
