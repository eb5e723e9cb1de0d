package model

import (
	"time"
)

// RunStatus represents the current state of a batch run.
type RunStatus string

const (
	RunStatusRunning        RunStatus = "running"
	RunStatusSuccess        RunStatus = "success"
	RunStatusPartialSuccess RunStatus = "partial_success"
	RunStatusFailed         RunStatus = "failed"
)

// Company is a listed issuer.
type Company struct {
	ID                int64    `json:"id"`
	NSESymbol         string   `json:"nse_symbol,omitempty"`
	BSEScripCode      string   `json:"bse_scrip_code,omitempty"`
	ISIN              string   `json:"isin"`
	Name              string   `json:"company_name"`
	Industry          string   `json:"industry,omitempty"`
	Sector            string   `json:"sector,omitempty"`
	FaceValue         *float64 `json:"face_value,omitempty"`
	SharesOutstanding *float64 `json:"shares_outstanding,omitempty"`
	Active            bool     `json:"is_active"`
}

// Symbol returns the NSE symbol, falling back to the BSE scrip code.
func (c Company) Symbol() string {
	if c.NSESymbol != "" {
		return c.NSESymbol
	}
	return c.BSEScripCode
}

// Run is a row in the run log: one execution of an ingest, compute or
// quality job.
type Run struct {
	ID          string     `json:"id"`
	Job         string     `json:"job"`
	Status      RunStatus  `json:"status"`
	Stats       RunStats   `json:"stats"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunStats holds aggregate counters for a batch run.
type RunStats struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Written   int64    `json:"written"`
	Errors    []string `json:"errors,omitempty"`
}

// Status derives the final run status from the counters.
func (s RunStats) Status() RunStatus {
	switch {
	case s.Failed == 0:
		return RunStatusSuccess
	case s.Succeeded > 0:
		return RunStatusPartialSuccess
	default:
		return RunStatusFailed
	}
}

// Price is one end-of-day quote.
type Price struct {
	CompanyID int64     `json:"company_id"`
	Symbol    string    `json:"symbol"`
	TradeDate time.Time `json:"trade_date"`
	Open      float64   `json:"open_price"`
	High      float64   `json:"high_price"`
	Low       float64   `json:"low_price"`
	Close     float64   `json:"close_price"`
	Volume    int64     `json:"volume"`
	Source    string    `json:"source"`
}
