// Package store persists companies, normalized statements, computed ratios,
// quality checks, prices and the run log.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = eris.New("store: not found")

// CompanyFilter specifies criteria for listing companies.
type CompanyFilter struct {
	ActiveOnly bool    `json:"active_only,omitempty"`
	IDs        []int64 `json:"ids,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	Offset     int     `json:"offset,omitempty"`
}

// PriceFilter bounds a company's daily prices. Zero dates are open ends.
type PriceFilter struct {
	From  time.Time `json:"from,omitzero"`
	To    time.Time `json:"to,omitzero"`
	Limit int       `json:"limit,omitempty"`
}

// QualityFilter selects stored quality checks. A zero CompanyID matches
// every company.
type QualityFilter struct {
	CompanyID int64     `json:"company_id,omitempty"`
	Since     time.Time `json:"since,omitzero"`
	Limit     int       `json:"limit,omitempty"`
}

// Store defines the persistence interface for the filings engine.
type Store interface {
	// Companies
	UpsertCompany(ctx context.Context, c *model.Company) error
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	FindCompany(ctx context.Context, symbol string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error)

	// Statements
	SaveStatement(ctx context.Context, rec *model.StatementRecord) error
	QuarterlyStatements(ctx context.Context, companyID int64, st model.StatementType, asOf time.Time, nature model.ResultNature, limit int) ([]*model.StatementRecord, error)
	LatestStatement(ctx context.Context, companyID int64, st model.StatementType, asOf time.Time, nature model.ResultNature) (*model.StatementRecord, error)
	Statements(ctx context.Context, companyID int64, asOf time.Time) ([]*model.StatementRecord, error)
	FieldValue(ctx context.Context, companyID int64, field string, periodEnd time.Time, pt model.PeriodType, nature model.ResultNature, toleranceDays int) (*float64, error)

	// Ratios
	SaveRatios(ctx context.Context, sets []model.RatioSet) (int64, error)
	GetRatios(ctx context.Context, companyID int64, ttm bool) ([]model.RatioSet, error)
	// LatestTTMRatios pairs every active company with its newest TTM ratio
	// set of the given nature. Companies without one are left out.
	LatestTTMRatios(ctx context.Context, nature model.ResultNature) ([]model.CompanyRatios, error)

	// Quality
	SaveQualityChecks(ctx context.Context, results []model.QualityCheckResult) error
	QualityChecks(ctx context.Context, filter QualityFilter) ([]model.QualityCheckResult, error)

	// Prices
	SavePrices(ctx context.Context, prices []model.Price) (int64, error)
	LatestPrice(ctx context.Context, companyID int64, asOf time.Time) (*model.Price, error)
	Prices(ctx context.Context, companyID int64, filter PriceFilter) ([]model.Price, error)

	// Run log
	StartRun(ctx context.Context, job string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, stats model.RunStats) error
	FailRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// ratioColumns is the persisted column order of computed_ratios.
var ratioColumns = append([]string{
	"company_id", "period_end", "period_type", "is_ttm", "result_nature",
}, append(append([]string{}, model.RatioNames...), "computed_at")...)

// ratioConflictKeys is the unique key of computed_ratios.
var ratioConflictKeys = []string{"company_id", "period_end", "period_type", "is_ttm", "result_nature"}

// priceColumns is the persisted column order of daily_prices.
var priceColumns = []string{
	"company_id", "trade_date", "open_price", "high_price", "low_price", "close_price", "volume", "source",
}

// prefixed qualifies each comma-separated column with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

// maxListLimit caps unbounded list reads.
const maxListLimit = 1000

func listLimit(n, def int) int {
	switch {
	case n <= 0:
		return def
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

type scannable interface {
	Scan(dest ...any) error
}

// withTrailing lets a scanner for the leading columns of a row read a wider
// row; rest receives the remaining columns.
type withTrailing struct {
	row  scannable
	rest []any
}

func (w withTrailing) Scan(dest ...any) error {
	return w.row.Scan(append(dest, w.rest...)...)
}

func runFinished(stats model.RunStats, runErr error) (model.RunStatus, string) {
	if runErr != nil {
		return model.RunStatusFailed, runErr.Error()
	}
	return stats.Status(), ""
}

func maybe(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
