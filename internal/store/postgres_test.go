package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate_AppliesPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS filings`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM filings.schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS filings.companies`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`INSERT INTO filings.schema_migrations`).WithArgs("001_init.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`ALTER TABLE filings.computed_ratios ADD COLUMN IF NOT EXISTS revenue_growth_qoq`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`INSERT INTO filings.schema_migrations`).WithArgs("002_qoq_growth.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_SkipsApplied(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS filings`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM filings.schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_init.sql").AddRow("002_qoq_growth.sql"))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(migrationLockID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate_LockError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).
		WillReturnError(fmt.Errorf("connection refused"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advisory lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompany(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO filings.companies\s.*ON CONFLICT \(isin\) DO UPDATE.*RETURNING id`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "INE009A01021", "Infosys Ltd",
			pgxmock.AnyArg(), pgxmock.AnyArg(), nil, nil, true).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	c := model.Company{NSESymbol: "INFY", ISIN: "INE009A01021", Name: "Infosys Ltd", Active: true}
	require.NoError(t, s.UpsertCompany(context.Background(), &c))
	assert.Equal(t, int64(42), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCompany_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT id, nse_symbol, .* FROM filings.companies WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCompany(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCompanies_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM filings.companies WHERE true AND is_active AND id = ANY\(\$1\) ORDER BY id LIMIT \$2`).
		WithArgs([]int64{1, 2}, 10).
		WillReturnError(fmt.Errorf("timeout"))

	_, err := s.ListCompanies(context.Background(), CompanyFilter{ActiveOnly: true, IDs: []int64{1, 2}, Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list companies")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveStatement(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := quarterly(3, "2024-06-30", map[string]float64{"revenue": 1000, "net_profit": 150})

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)INSERT INTO filings.financial_statements\s.*ON CONFLICT.*RETURNING id`).
		WithArgs(int64(3), "profit_loss", "consolidated", "quarterly", pgxmock.AnyArg(), d("2024-06-30"),
			"FY2025", 1, false, "nse_api", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(`DELETE FROM filings.statement_line_items WHERE statement_id = \$1`).WithArgs(int64(11)).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"filings", "statement_line_items"}, []string{"statement_id", "field_name", "value"}).
		WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, s.SaveStatement(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveStatement_UpsertErrorRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO filings.financial_statements`).WillReturnError(fmt.Errorf("deadlock detected"))
	mock.ExpectRollback()

	err := s.SaveStatement(context.Background(), quarterly(3, "2024-06-30", map[string]float64{"revenue": 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert statement 3/profit_loss/consolidated/quarterly/2024-06-30")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveStatement_Invalid(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := quarterly(0, "2024-06-30", nil)
	require.Error(t, s.SaveStatement(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestStatement_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM filings.financial_statements s\s+WHERE s.company_id = \$1 AND s.statement_type = \$2`).
		WithArgs(int64(3), "balance_sheet", "standalone", d("2024-03-31")).
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.LatestStatement(context.Background(), 3, model.StatementBalanceSheet, d("2024-03-31"), model.NatureStandalone)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QuarterlyStatements_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`s.period_type = 'quarterly' AND s.period_end <= \$4\s+ORDER BY s.period_end DESC LIMIT \$5`).
		WithArgs(int64(3), "profit_loss", "consolidated", d("2024-06-30"), 4).
		WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.QuarterlyStatements(context.Background(), 3, model.StatementProfitLoss, d("2024-06-30"), model.NatureConsolidated, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quarterly statements 3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FieldValue(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT li.value FROM filings.financial_statements s`).
		WithArgs(int64(3), "revenue", "annual", "consolidated", d("2023-02-14"), d("2023-05-15"), d("2023-03-31")).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(4100.0))
	mock.ExpectQuery(`SELECT li.value FROM filings.financial_statements s`).
		WithArgs(int64(3), "revenue", "annual", "consolidated", d("2022-02-14"), d("2022-05-15"), d("2022-03-31")).
		WillReturnError(pgx.ErrNoRows)

	v, err := s.FieldValue(context.Background(), 3, "revenue", d("2023-03-31"), model.PeriodAnnual, model.NatureConsolidated, 45)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 4100.0, *v)

	v, err = s.FieldValue(context.Background(), 3, "revenue", d("2022-03-31"), model.PeriodAnnual, model.NatureConsolidated, 45)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRatios(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "stage_computed_ratios"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_computed_ratios"}, ratioColumns).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "filings"."computed_ratios" .* ON CONFLICT \("company_id", "period_end", "period_type", "is_ttm", "result_nature"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.SaveRatios(context.Background(), []model.RatioSet{{
		CompanyID:  3,
		PeriodEnd:  d("2024-06-30"),
		PeriodType: model.PeriodQuarterly,
		TTM:        true,
		Nature:     model.NatureConsolidated,
		Values:     model.Ratios{model.RatioROE: model.Float(18.5)},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveQualityChecks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"filings", "quality_checks"}, qualityColumns).WillReturnResult(2)

	err := s.SaveQualityChecks(context.Background(), []model.QualityCheckResult{
		{CompanyID: 3, Field: "revenue", OurValue: model.Float(105), ReferenceValue: model.Float(100), PctDeviation: model.Float(5), Acceptable: true, Threshold: 5},
		{CompanyID: 3, Field: "roe", ReferenceValue: model.Float(20), Threshold: 10},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Prices(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.SavePrices(context.Background(), []model.Price{{Symbol: "INFY", TradeDate: d("2024-06-28"), Close: 1570}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INFY on 2024-06-28 has no company")

	mock.ExpectQuery(`FROM filings.daily_prices WHERE company_id = \$1 AND trade_date <= \$2`).
		WithArgs(int64(3), d("2024-06-30")).
		WillReturnError(pgx.ErrNoRows)

	p, err := s.LatestPrice(context.Background(), 3, d("2024-06-30"))
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RunLog(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO filings.runs \(id, job, status, started_at\)`).
		WithArgs(pgxmock.AnyArg(), "compute", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.StartRun(context.Background(), "compute")
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	mock.ExpectExec(`UPDATE filings.runs SET status = \$1`).
		WithArgs("success", pgxmock.AnyArg(), "", pgxmock.AnyArg(), run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteRun(context.Background(), run.ID, model.RunStats{Attempted: 1, Succeeded: 1}))

	mock.ExpectExec(`UPDATE filings.runs SET status = \$1`).
		WithArgs("failed", pgxmock.AnyArg(), "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = s.FailRun(context.Background(), "missing", model.RunStats{}, errors.New("boom"))
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, s.Close())
}

func TestPostgresStore_PriceRange(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(priceColumns).
		AddRow(int64(3), d("2024-06-28"), nil, nil, nil, 1570.0, int64(12), "nse_bhavcopy").
		AddRow(int64(3), d("2024-06-27"), model.Float(1540), model.Float(1560), model.Float(1530), 1550.0, int64(10), "nse_bhavcopy")
	mock.ExpectQuery(`FROM filings.daily_prices WHERE company_id = \$1 AND trade_date >= \$2 ORDER BY trade_date DESC LIMIT \$3`).
		WithArgs(int64(3), d("2024-06-01"), 365).
		WillReturnRows(rows)

	got, err := s.Prices(context.Background(), 3, PriceFilter{From: d("2024-06-01")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Zero(t, got[0].Open)
	assert.Equal(t, 1540.0, got[1].Open)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QualityChecks(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	checked := d("2024-07-01")

	cols := append(append([]string{}, qualityColumns...), "checked_at")
	rows := pgxmock.NewRows(cols).
		AddRow(int64(3), "revenue", model.Float(105), model.Float(100), "screener", model.Float(5), true, 5.0, nil, "", checked)
	mock.ExpectQuery(`FROM filings.quality_checks WHERE true AND company_id = \$1 AND checked_at >= \$2 ORDER BY checked_at DESC, id DESC LIMIT \$3`).
		WithArgs(int64(3), d("2024-06-01"), 1000).
		WillReturnRows(rows)

	got, err := s.QualityChecks(context.Background(), QualityFilter{CompanyID: 3, Since: d("2024-06-01"), Limit: 5000})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, checked, got[0].CheckedAt)
	assert.True(t, got[0].PeriodEnd.IsZero())
	assert.Equal(t, "screener", got[0].ReferenceSource)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestTTMRatios(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{"id", "nse_symbol", "bse_scrip_code", "isin", "company_name", "industry", "sector",
		"face_value", "shares_outstanding", "is_active"}
	cols = append(cols, ratioColumns...)
	strp := func(s string) *string { return &s }
	row := []any{int64(3), strp("INFY"), nil, "INE009A01021", "Infosys Ltd", strp("IT Services"), strp("Information Technology"),
		nil, nil, true,
		int64(3), d("2024-06-30"), "annual", true, "consolidated"}
	for _, name := range model.RatioNames {
		if name == model.RatioROE {
			row = append(row, model.Float(31))
			continue
		}
		row = append(row, nil)
	}
	row = append(row, d("2024-07-01"))

	mock.ExpectQuery(`SELECT DISTINCT ON \(c.id\) c.id, c.nse_symbol, .* FROM filings.companies c JOIN filings.computed_ratios r`).
		WithArgs("consolidated").
		WillReturnRows(pgxmock.NewRows(cols).AddRow(row...))

	got, err := s.LatestTTMRatios(context.Background(), model.NatureConsolidated)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "INFY", got[0].Company.NSESymbol)
	assert.Equal(t, "Information Technology", got[0].Company.Sector)
	assert.Equal(t, model.NatureConsolidated, got[0].Ratios.Nature)
	require.NotNil(t, got[0].Ratios.Values.Get(model.RatioROE))
	assert.Equal(t, 31.0, *got[0].Ratios.Values.Get(model.RatioROE))
	assert.NoError(t, mock.ExpectationsWereMet())
}
