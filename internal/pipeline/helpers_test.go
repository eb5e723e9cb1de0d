package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/period"
	"github.com/sells-group/filings-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// mockFetcher implements fetcher.Fetcher.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	body, err := m.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *mockFetcher) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	args := m.Called(ctx, url, header)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedTestCompany(t *testing.T, st store.Store, symbol, isin string, shares float64) model.Company {
	t.Helper()
	c := model.Company{NSESymbol: symbol, ISIN: isin, Name: symbol + " Ltd", Active: true}
	if shares > 0 {
		c.SharesOutstanding = &shares
	}
	require.NoError(t, st.UpsertCompany(context.Background(), &c))
	require.NotZero(t, c.ID)
	return c
}

func statement(companyID int64, st model.StatementType, pt model.PeriodType, end string, values map[string]float64) *model.StatementRecord {
	return &model.StatementRecord{
		CompanyID:     companyID,
		StatementType: st,
		Nature:        model.NatureConsolidated,
		Period:        period.FromEnd(date(end), pt),
		Source:        "test",
		Values:        values,
	}
}

func saveAll(t *testing.T, st store.Store, recs ...*model.StatementRecord) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, st.SaveStatement(context.Background(), r))
	}
}
