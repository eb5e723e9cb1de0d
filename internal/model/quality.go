package model

import "time"

// QualityCheckResult is the comparison of one computed value against a
// reference value.
type QualityCheckResult struct {
	CompanyID       int64     `json:"company_id"`
	Field           string    `json:"field"`
	OurValue        *float64  `json:"our_value"`
	ReferenceValue  *float64  `json:"reference_value"`
	ReferenceSource string    `json:"reference_source,omitempty"`
	PctDeviation    *float64  `json:"pct_deviation"`
	Acceptable      bool      `json:"is_acceptable"`
	Threshold       float64   `json:"threshold"`
	PeriodEnd       time.Time `json:"period_end"`
	Notes           string    `json:"notes,omitempty"`
	// CheckedAt is set by the store on read.
	CheckedAt time.Time `json:"checked_at,omitzero"`
}

// Severity ranks an anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly types.
const (
	AnomalyBalanceSheetMismatch = "balance_sheet_mismatch"
	AnomalyNegativeValue        = "negative_value"
	AnomalyExtremeRatio         = "extreme_ratio"
	AnomalyMissingData          = "missing_data"
	AnomalySuddenChange         = "sudden_change"
)

// Anomaly is an internal consistency problem found in a company's data.
type Anomaly struct {
	Type      string             `json:"type"`
	Severity  Severity           `json:"severity"`
	CompanyID int64              `json:"company_id"`
	PeriodEnd time.Time          `json:"period_end"`
	Field     string             `json:"field_name,omitempty"`
	Message   string             `json:"message"`
	Evidence  map[string]float64 `json:"evidence,omitempty"`
}
