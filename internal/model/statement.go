package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// StatementType identifies which financial statement a record belongs to.
type StatementType int

const (
	StatementProfitLoss StatementType = iota + 1
	StatementBalanceSheet
	StatementCashFlow
)

// StatementTypes lists every statement type in canonical order.
var StatementTypes = []StatementType{StatementProfitLoss, StatementBalanceSheet, StatementCashFlow}

func (s StatementType) String() string {
	switch s {
	case StatementProfitLoss:
		return "profit_loss"
	case StatementBalanceSheet:
		return "balance_sheet"
	case StatementCashFlow:
		return "cash_flow"
	default:
		return fmt.Sprintf("StatementType(%d)", int(s))
	}
}

// ParseStatementType parses a statement type string (case-insensitive).
func ParseStatementType(s string) (StatementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "profit_loss", "pl", "p&l":
		return StatementProfitLoss, nil
	case "balance_sheet", "bs":
		return StatementBalanceSheet, nil
	case "cash_flow", "cf":
		return StatementCashFlow, nil
	default:
		return 0, eris.Errorf("unknown statement type: %q", s)
	}
}

// ResultNature distinguishes entity-only from group financials.
type ResultNature int

const (
	NatureStandalone ResultNature = iota + 1
	NatureConsolidated
)

// ResultNatures lists both natures, consolidated first since it is preferred
// when both are available.
var ResultNatures = []ResultNature{NatureConsolidated, NatureStandalone}

func (n ResultNature) String() string {
	switch n {
	case NatureStandalone:
		return "standalone"
	case NatureConsolidated:
		return "consolidated"
	default:
		return fmt.Sprintf("ResultNature(%d)", int(n))
	}
}

// ParseResultNature parses a result nature string (case-insensitive).
func ParseResultNature(s string) (ResultNature, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standalone":
		return NatureStandalone, nil
	case "consolidated":
		return NatureConsolidated, nil
	default:
		return 0, eris.Errorf("unknown result nature: %q", s)
	}
}

// PeriodType is the length of a reporting period.
type PeriodType int

const (
	PeriodQuarterly PeriodType = iota + 1
	PeriodHalfYearly
	PeriodNineMonths
	PeriodAnnual
)

func (p PeriodType) String() string {
	switch p {
	case PeriodQuarterly:
		return "quarterly"
	case PeriodHalfYearly:
		return "half_yearly"
	case PeriodNineMonths:
		return "nine_months"
	case PeriodAnnual:
		return "annual"
	default:
		return fmt.Sprintf("PeriodType(%d)", int(p))
	}
}

// Months returns the number of months covered by the period type.
func (p PeriodType) Months() int {
	switch p {
	case PeriodQuarterly:
		return 3
	case PeriodHalfYearly:
		return 6
	case PeriodNineMonths:
		return 9
	case PeriodAnnual:
		return 12
	default:
		return 0
	}
}

// ParsePeriodType parses a period type string (case-insensitive).
func ParsePeriodType(s string) (PeriodType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quarterly", "quarter", "q":
		return PeriodQuarterly, nil
	case "half_yearly", "half_year", "h":
		return PeriodHalfYearly, nil
	case "nine_months", "9m":
		return PeriodNineMonths, nil
	case "annual", "year", "fy":
		return PeriodAnnual, nil
	default:
		return 0, eris.Errorf("unknown period type: %q", s)
	}
}

// Period is a canonical reporting period.
type Period struct {
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Type       PeriodType `json:"type"`
	FiscalYear string     `json:"fiscal_year"`
	Quarter    int        `json:"quarter,omitempty"` // 1-4, zero when not a quarter
}

// IsZero reports whether the period has no end date.
func (p Period) IsZero() bool {
	return p.End.IsZero()
}

func (p Period) String() string {
	if p.Quarter > 0 {
		return fmt.Sprintf("Q%d %s (%s)", p.Quarter, p.FiscalYear, p.End.Format(time.DateOnly))
	}
	return fmt.Sprintf("%s %s (%s)", p.Type, p.FiscalYear, p.End.Format(time.DateOnly))
}

// StatementKey is the unique identity of a persisted statement.
type StatementKey struct {
	CompanyID     int64
	StatementType StatementType
	Nature        ResultNature
	PeriodType    PeriodType
	PeriodEnd     time.Time
}

func (k StatementKey) String() string {
	return fmt.Sprintf("%d/%s/%s/%s/%s", k.CompanyID, k.StatementType, k.Nature, k.PeriodType, k.PeriodEnd.Format(time.DateOnly))
}

// StatementRecord is one normalized financial statement for one period.
// Values is keyed by canonical field name.
type StatementRecord struct {
	CompanyID     int64              `json:"company_id"`
	StatementType StatementType      `json:"statement_type"`
	Nature        ResultNature       `json:"result_nature"`
	Period        Period             `json:"period"`
	Audited       bool               `json:"is_audited"`
	Source        string             `json:"source"`
	SourceURL     string             `json:"source_url,omitempty"`
	FilingDate    *time.Time         `json:"filing_date,omitempty"`
	Values        map[string]float64 `json:"values"`
	RawItems      map[string]any     `json:"raw_items,omitempty"`
}

// Key returns the unique key of the record.
func (r *StatementRecord) Key() StatementKey {
	return StatementKey{
		CompanyID:     r.CompanyID,
		StatementType: r.StatementType,
		Nature:        r.Nature,
		PeriodType:    r.Period.Type,
		PeriodEnd:     r.Period.End,
	}
}

// Value returns the value of a canonical field and whether it is present.
func (r *StatementRecord) Value(field string) (float64, bool) {
	if r == nil || r.Values == nil {
		return 0, false
	}
	v, ok := r.Values[field]
	return v, ok
}

// Set stores a canonical field value, allocating the map if needed.
func (r *StatementRecord) Set(field string, v float64) {
	if r.Values == nil {
		r.Values = make(map[string]float64)
	}
	r.Values[field] = v
}
