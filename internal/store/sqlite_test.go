package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/period"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func d(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedCompany(t *testing.T, st Store, symbol, isin string) model.Company {
	t.Helper()
	c := model.Company{NSESymbol: symbol, ISIN: isin, Name: symbol + " Ltd", Active: true}
	require.NoError(t, st.UpsertCompany(context.Background(), &c))
	require.NotZero(t, c.ID)
	return c
}

func quarterly(companyID int64, end string, values map[string]float64) *model.StatementRecord {
	return &model.StatementRecord{
		CompanyID:     companyID,
		StatementType: model.StatementProfitLoss,
		Nature:        model.NatureConsolidated,
		Period:        period.FromEnd(d(end), model.PeriodQuarterly),
		Source:        "nse_api",
		Values:        values,
	}
}

// --- Companies ---

func TestSQLite_Companies(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	fv := 1.0
	infy := model.Company{NSESymbol: "INFY", BSEScripCode: "500209", ISIN: "INE009A01021", Name: "Infosys Ltd", FaceValue: &fv, Active: true}
	require.NoError(t, st.UpsertCompany(ctx, &infy))
	tcs := seedCompany(t, st, "TCS", "INE467B01029")

	got, err := st.GetCompany(ctx, infy.ID)
	require.NoError(t, err)
	assert.Equal(t, "INFY", got.NSESymbol)
	assert.Equal(t, "500209", got.BSEScripCode)
	require.NotNil(t, got.FaceValue)
	assert.Equal(t, 1.0, *got.FaceValue)
	assert.Nil(t, got.SharesOutstanding)

	// Re-import keeps the id and does not clear known values.
	shares := 4.15e9
	again := model.Company{NSESymbol: "INFY", ISIN: "INE009A01021", Name: "Infosys Limited", SharesOutstanding: &shares, Active: true}
	require.NoError(t, st.UpsertCompany(ctx, &again))
	assert.Equal(t, infy.ID, again.ID)
	got, err = st.GetCompany(ctx, infy.ID)
	require.NoError(t, err)
	assert.Equal(t, "Infosys Limited", got.Name)
	require.NotNil(t, got.FaceValue)
	require.NotNil(t, got.SharesOutstanding)
	assert.Equal(t, shares, *got.SharesOutstanding)

	found, err := st.FindCompany(ctx, " tcs ")
	require.NoError(t, err)
	assert.Equal(t, tcs.ID, found.ID)
	found, err = st.FindCompany(ctx, "INE009A01021")
	require.NoError(t, err)
	assert.Equal(t, infy.ID, found.ID)

	_, err = st.FindCompany(ctx, "NOPE")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = st.GetCompany(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Error(t, st.UpsertCompany(ctx, &model.Company{Name: "No ISIN"}))
}

func TestSQLite_ListCompanies(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := seedCompany(t, st, "AAA", "INE000A00001")
	b := seedCompany(t, st, "BBB", "INE000A00002")
	c := model.Company{NSESymbol: "CCC", ISIN: "INE000A00003", Name: "C", Active: false}
	require.NoError(t, st.UpsertCompany(ctx, &c))

	all, err := st.ListCompanies(ctx, CompanyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := st.ListCompanies(ctx, CompanyFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	byID, err := st.ListCompanies(ctx, CompanyFilter{IDs: []int64{b.ID, c.ID}})
	require.NoError(t, err)
	require.Len(t, byID, 2)
	assert.Equal(t, b.ID, byID[0].ID)

	page, err := st.ListCompanies(ctx, CompanyFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, b.ID, page[0].ID)

	tail, err := st.ListCompanies(ctx, CompanyFilter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.NotEqual(t, a.ID, tail[0].ID)
}

// --- Statements ---

func TestSQLite_SaveStatement_ReplacesOnConflict(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "INFY", "INE009A01021")

	rec := quarterly(c.ID, "2024-06-30", map[string]float64{"revenue": 1000, "net_profit": 150, "other_income": 20})
	rec.RawItems = map[string]any{"Revenue From Operations": "1,000"}
	filed := d("2024-07-18")
	rec.FilingDate = &filed
	require.NoError(t, st.SaveStatement(ctx, rec))

	replacement := quarterly(c.ID, "2024-06-30", map[string]float64{"revenue": 1010, "net_profit": 151})
	replacement.Audited = true
	require.NoError(t, st.SaveStatement(ctx, replacement))

	got, err := st.LatestStatement(ctx, c.ID, model.StatementProfitLoss, d("2024-12-31"), model.NatureConsolidated)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, map[string]float64{"revenue": 1010, "net_profit": 151}, got.Values)
	assert.True(t, got.Audited)
	assert.Nil(t, got.FilingDate)
	assert.Nil(t, got.RawItems)
	assert.Equal(t, d("2024-06-30"), got.Period.End)
	assert.Equal(t, d("2024-03-31"), got.Period.Start)
	assert.Equal(t, model.PeriodQuarterly, got.Period.Type)
	assert.Equal(t, 1, got.Period.Quarter)
	assert.Equal(t, "FY2025", got.Period.FiscalYear)

	all, err := st.Statements(ctx, c.ID, d("2024-12-31"))
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_SaveStatement_RoundTripsOptionalColumns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "INFY", "INE009A01021")

	rec := quarterly(c.ID, "2024-06-30", map[string]float64{"revenue": 1000})
	rec.RawItems = map[string]any{"Revenue From Operations": "1,000"}
	filed := d("2024-07-18")
	rec.FilingDate = &filed
	rec.SourceURL = "https://nsearchives.nseindia.com/corporate/xbrl/INFY_Q1.xml"
	require.NoError(t, st.SaveStatement(ctx, rec))

	got, err := st.LatestStatement(ctx, c.ID, model.StatementProfitLoss, d("2024-06-30"), model.NatureConsolidated)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.FilingDate)
	assert.Equal(t, filed, *got.FilingDate)
	assert.Equal(t, "1,000", got.RawItems["Revenue From Operations"])
	assert.Equal(t, rec.SourceURL, got.SourceURL)
	assert.Equal(t, "nse_api", got.Source)
}

func TestSQLite_SaveStatement_Validation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	assert.Error(t, st.SaveStatement(ctx, nil))
	assert.Error(t, st.SaveStatement(ctx, &model.StatementRecord{StatementType: model.StatementProfitLoss}))
	rec := quarterly(1, "2024-06-30", nil)
	rec.Period.End = time.Time{}
	assert.Error(t, st.SaveStatement(ctx, rec))
	rec = quarterly(1, "2024-06-30", nil)
	rec.Nature = 0
	assert.Error(t, st.SaveStatement(ctx, rec))
}

func TestSQLite_QuarterlyStatements(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "INFY", "INE009A01021")

	for i, end := range []string{"2023-09-30", "2023-12-31", "2024-03-31", "2024-06-30", "2024-09-30"} {
		require.NoError(t, st.SaveStatement(ctx, quarterly(c.ID, end, map[string]float64{"revenue": float64(100 + i)})))
	}
	standalone := quarterly(c.ID, "2024-06-30", map[string]float64{"revenue": 1})
	standalone.Nature = model.NatureStandalone
	require.NoError(t, st.SaveStatement(ctx, standalone))
	annual := quarterly(c.ID, "2024-03-31", map[string]float64{"revenue": 400})
	annual.Period = period.FromEnd(d("2024-03-31"), model.PeriodAnnual)
	require.NoError(t, st.SaveStatement(ctx, annual))

	got, err := st.QuarterlyStatements(ctx, c.ID, model.StatementProfitLoss, d("2024-08-15"), model.NatureConsolidated, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, d("2024-06-30"), got[0].Period.End, "newest first, nothing after as-of")
	assert.Equal(t, d("2023-09-30"), got[3].Period.End)
	for _, rec := range got {
		assert.Equal(t, model.PeriodQuarterly, rec.Period.Type)
		assert.Equal(t, model.NatureConsolidated, rec.Nature)
	}

	got, err = st.QuarterlyStatements(ctx, c.ID, model.StatementProfitLoss, d("2023-12-31"), model.NatureConsolidated, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = st.QuarterlyStatements(ctx, c.ID, model.StatementCashFlow, d("2024-12-31"), model.NatureConsolidated, 4)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_LatestStatement_None(t *testing.T) {
	st := newTestSQLiteStore(t)
	got, err := st.LatestStatement(context.Background(), 1, model.StatementBalanceSheet, d("2024-03-31"), model.NatureConsolidated)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_FieldValue_NearestWithinTolerance(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "INFY", "INE009A01021")

	require.NoError(t, st.SaveStatement(ctx, quarterly(c.ID, "2023-06-30", map[string]float64{"revenue": 900})))
	require.NoError(t, st.SaveStatement(ctx, quarterly(c.ID, "2023-09-30", map[string]float64{"revenue": 950})))

	v, err := st.FieldValue(ctx, c.ID, "revenue", d("2023-07-10"), model.PeriodQuarterly, model.NatureConsolidated, 45)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 900.0, *v)

	v, err = st.FieldValue(ctx, c.ID, "revenue", d("2023-09-01"), model.PeriodQuarterly, model.NatureConsolidated, 45)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 950.0, *v)

	v, err = st.FieldValue(ctx, c.ID, "revenue", d("2022-06-30"), model.PeriodQuarterly, model.NatureConsolidated, 45)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = st.FieldValue(ctx, c.ID, "net_profit", d("2023-06-30"), model.PeriodQuarterly, model.NatureConsolidated, 45)
	require.NoError(t, err)
	assert.Nil(t, v)
}

// --- Ratios ---

func TestSQLite_Ratios(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "INFY", "INE009A01021")

	set := model.RatioSet{
		CompanyID:  c.ID,
		PeriodEnd:  d("2024-06-30"),
		PeriodType: model.PeriodQuarterly,
		TTM:        true,
		Nature:     model.NatureConsolidated,
		Values:     model.Ratios{model.RatioROE: model.Float(18.5), model.RatioPE: nil},
	}
	n, err := st.SaveRatios(ctx, []model.RatioSet{set})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	set.Values[model.RatioROE] = model.Float(19)
	set.Values[model.RatioDebtEquity] = model.Float(0.1)
	_, err = st.SaveRatios(ctx, []model.RatioSet{set})
	require.NoError(t, err)

	got, err := st.GetRatios(ctx, c.ID, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, d("2024-06-30"), got[0].PeriodEnd)
	assert.Equal(t, model.NatureConsolidated, got[0].Nature)
	require.NotNil(t, got[0].Values.Get(model.RatioROE))
	assert.Equal(t, 19.0, *got[0].Values.Get(model.RatioROE))
	assert.Nil(t, got[0].Values.Get(model.RatioPE))
	assert.Len(t, got[0].Values, len(model.RatioNames))
	assert.False(t, got[0].ComputedAt.IsZero())

	none, err := st.GetRatios(ctx, c.ID, false)
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err = st.SaveRatios(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// --- Quality, prices, runs ---

func TestSQLite_SaveQualityChecks(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "INFY", "INE009A01021")

	require.NoError(t, st.SaveQualityChecks(ctx, nil))
	require.NoError(t, st.SaveQualityChecks(ctx, []model.QualityCheckResult{
		{CompanyID: c.ID, Field: "revenue", OurValue: model.Float(105), ReferenceValue: model.Float(100), PctDeviation: model.Float(5), Acceptable: true, Threshold: 5, PeriodEnd: d("2024-06-30")},
		{CompanyID: c.ID, Field: "pe_ratio", ReferenceValue: model.Float(24), Threshold: 5, Notes: "missing our value"},
	}))

	var count int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM quality_checks WHERE company_id = ?`, c.ID).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSQLite_Prices(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "INFY", "INE009A01021")

	n, err := st.SavePrices(ctx, []model.Price{
		{CompanyID: c.ID, Symbol: "INFY", TradeDate: d("2024-06-27"), Close: 1550, Volume: 10, Source: "nse_bhavcopy"},
		{CompanyID: c.ID, Symbol: "INFY", TradeDate: d("2024-06-28"), Open: 1560, Close: 1570, Volume: 12, Source: "nse_bhavcopy"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = st.SavePrices(ctx, []model.Price{{CompanyID: c.ID, TradeDate: d("2024-06-28"), Close: 1575, Source: "nse_bhavcopy"}})
	require.NoError(t, err)

	p, err := st.LatestPrice(ctx, c.ID, d("2024-06-30"))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, d("2024-06-28"), p.TradeDate)
	assert.Equal(t, 1575.0, p.Close)

	p, err = st.LatestPrice(ctx, c.ID, d("2024-06-27"))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1550.0, p.Close)

	p, err = st.LatestPrice(ctx, c.ID, d("2024-01-01"))
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = st.SavePrices(ctx, []model.Price{{Symbol: "UNKNOWN", TradeDate: d("2024-06-28"), Close: 1}})
	assert.Error(t, err)
}

func TestSQLite_RunLog(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := st.StartRun(ctx, "compute")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, ok.Status)
	require.NoError(t, st.CompleteRun(ctx, ok.ID, model.RunStats{Attempted: 3, Succeeded: 2, Failed: 1}))

	bad, err := st.StartRun(ctx, "quality")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, bad.ID, model.RunStats{}, errors.New("reference source down")))

	runs, err := st.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]model.Run{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	assert.Equal(t, model.RunStatusPartialSuccess, byID[ok.ID].Status)
	assert.Equal(t, 3, byID[ok.ID].Stats.Attempted)
	require.NotNil(t, byID[ok.ID].CompletedAt)
	assert.Equal(t, model.RunStatusFailed, byID[bad.ID].Status)
	assert.Equal(t, "reference source down", byID[bad.ID].Error)

	err = st.CompleteRun(ctx, "missing", model.RunStats{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_UpsertCompany_KeepsSymbolsWhenBlank(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	infy := seedCompany(t, st, "INFY", "INE009A01021")

	bse := model.Company{BSEScripCode: "500209", ISIN: "INE009A01021", Name: "INFOSYS LTD.", Active: true}
	require.NoError(t, st.UpsertCompany(ctx, &bse))
	assert.Equal(t, infy.ID, bse.ID)

	got, err := st.GetCompany(ctx, infy.ID)
	require.NoError(t, err)
	assert.Equal(t, "INFY", got.NSESymbol, "a scrip-list sync must not clear the nse symbol")
	assert.Equal(t, "500209", got.BSEScripCode)
}

func TestSQLite_Migrate_AddsMissingRatioColumns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx, `ALTER TABLE computed_ratios DROP COLUMN profit_growth_qoq`)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Migrate(ctx), "migrate is idempotent")

	var n int
	require.NoError(t, st.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('computed_ratios') WHERE name = 'profit_growth_qoq'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLite_LatestTTMRatios(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	infy := seedCompany(t, st, "INFY", "INE009A01021")
	tcs := seedCompany(t, st, "TCS", "INE467B01029")
	gone := model.Company{NSESymbol: "GONE", ISIN: "INE000Z01010", Name: "Gone Ltd", Active: false}
	require.NoError(t, st.UpsertCompany(ctx, &gone))

	set := func(id int64, end string, ttm bool, nature model.ResultNature, roe float64) model.RatioSet {
		return model.RatioSet{
			CompanyID: id, PeriodEnd: d(end), PeriodType: model.PeriodAnnual, TTM: ttm, Nature: nature,
			Values: model.Ratios{model.RatioROE: model.Float(roe)},
		}
	}
	_, err := st.SaveRatios(ctx, []model.RatioSet{
		set(infy.ID, "2024-03-31", true, model.NatureConsolidated, 30),
		set(infy.ID, "2024-06-30", true, model.NatureConsolidated, 31),
		set(infy.ID, "2024-09-30", false, model.NatureConsolidated, 99),
		set(infy.ID, "2024-09-30", true, model.NatureStandalone, 40),
		set(tcs.ID, "2024-06-30", true, model.NatureStandalone, 45),
		set(gone.ID, "2024-06-30", true, model.NatureConsolidated, 10),
	})
	require.NoError(t, err)

	got, err := st.LatestTTMRatios(ctx, model.NatureConsolidated)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "INFY", got[0].Company.NSESymbol)
	assert.Equal(t, d("2024-06-30"), got[0].Ratios.PeriodEnd)
	require.NotNil(t, got[0].Ratios.Values.Get(model.RatioROE))
	assert.Equal(t, 31.0, *got[0].Ratios.Values.Get(model.RatioROE))

	got, err = st.LatestTTMRatios(ctx, model.NatureStandalone)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, infy.ID, got[0].Company.ID)
	assert.Equal(t, tcs.ID, got[1].Company.ID)
}

func TestSQLite_PriceRange(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	c := seedCompany(t, st, "INFY", "INE009A01021")

	var prices []model.Price
	for i, day := range []string{"2024-06-24", "2024-06-25", "2024-06-26", "2024-06-27", "2024-06-28"} {
		prices = append(prices, model.Price{CompanyID: c.ID, TradeDate: d(day), Close: 1500 + float64(i), Source: "nse_bhavcopy"})
	}
	_, err := st.SavePrices(ctx, prices)
	require.NoError(t, err)

	got, err := st.Prices(ctx, c.ID, PriceFilter{From: d("2024-06-25"), To: d("2024-06-27")})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, d("2024-06-27"), got[0].TradeDate, "newest first")
	assert.Equal(t, d("2024-06-25"), got[2].TradeDate)

	got, err = st.Prices(ctx, c.ID, PriceFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1504.0, got[0].Close)

	got, err = st.Prices(ctx, 999, PriceFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_QualityChecks(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	infy := seedCompany(t, st, "INFY", "INE009A01021")
	tcs := seedCompany(t, st, "TCS", "INE467B01029")

	require.NoError(t, st.SaveQualityChecks(ctx, []model.QualityCheckResult{
		{CompanyID: infy.ID, Field: "revenue", OurValue: model.Float(105), ReferenceValue: model.Float(100), PctDeviation: model.Float(5), Acceptable: true, Threshold: 5, PeriodEnd: d("2024-06-30")},
		{CompanyID: tcs.ID, Field: "pe_ratio", ReferenceValue: model.Float(24), Threshold: 5, Notes: "missing our value"},
	}))
	_, err := st.db.ExecContext(ctx, `UPDATE quality_checks SET checked_at = '2020-01-01T00:00:00Z' WHERE company_id = ?`, tcs.ID)
	require.NoError(t, err)

	all, err := st.QualityChecks(ctx, QualityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "revenue", all[0].Field, "newest first")
	assert.Equal(t, d("2024-06-30"), all[0].PeriodEnd)
	assert.False(t, all[0].CheckedAt.IsZero())
	assert.True(t, all[1].PeriodEnd.IsZero())
	assert.Nil(t, all[1].OurValue)

	recent, err := st.QualityChecks(ctx, QualityFilter{Since: d("2021-01-01")})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, infy.ID, recent[0].CompanyID)

	one, err := st.QualityChecks(ctx, QualityFilter{CompanyID: tcs.ID})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "missing our value", one[0].Notes)
}
