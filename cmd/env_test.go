package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/filings-cli/internal/config"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/pipeline"
	"github.com/sells-group/filings-cli/internal/store"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "filings.db")},
		Batch:   config.BatchConfig{MaxConcurrentCompanies: 2},
		Archive: config.ArchiveConfig{Driver: "none"},
		Fetch:   config.FetchConfig{TimeoutSecs: 5, MaxRetries: 1},
	}
}

func TestJobEnv_Close_Nil(t *testing.T) {
	env := &jobEnv{}
	assert.NotPanics(t, env.Close)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitEnv_ValidatesConfig(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	env, err := initEnv(context.Background(), "compute", envOptions{})
	assert.Nil(t, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestInitEnv_SQLite(t *testing.T) {
	cfg = sqliteConfig(t)

	env, err := initEnv(context.Background(), "ingest", envOptions{fetcher: true, archive: true, fields: true})
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Fetcher)
	assert.Nil(t, env.Archive, "archive driver none")
	assert.NotNil(t, env.Normalizer)
	require.NoError(t, env.Store.Ping(context.Background()))
}

func TestInitArchive_Local(t *testing.T) {
	cfg = sqliteConfig(t)
	cfg.Archive = config.ArchiveConfig{Driver: "local", Path: t.TempDir()}

	a, err := initArchive()
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestLoadCompanies(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "filings.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	active := model.Company{NSESymbol: "TCS", ISIN: "INE467B01029", Name: "Tata Consultancy Services", Active: true}
	delisted := model.Company{NSESymbol: "OLD", ISIN: "INE000A01010", Name: "Old Co"}
	require.NoError(t, st.UpsertCompany(ctx, &active))
	require.NoError(t, st.UpsertCompany(ctx, &delisted))

	got, err := loadCompanies(ctx, st, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TCS", got[0].NSESymbol)

	got, err = loadCompanies(ctx, st, []int64{delisted.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "OLD", got[0].NSESymbol)

	_, err = loadCompanies(ctx, st, []int64{active.ID, 9999})
	assert.Error(t, err)
}

func TestParseAsOf(t *testing.T) {
	got, err := parseAsOf("2024-06-30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), got)

	today, err := parseAsOf("")
	require.NoError(t, err)
	assert.Equal(t, today, today.Truncate(24*time.Hour))
	assert.WithinDuration(t, time.Now().UTC(), today, 24*time.Hour)

	_, err = parseAsOf("30/06/2024")
	assert.Error(t, err)
}

func TestParseSince_DefaultsToTwoYearsAgo(t *testing.T) {
	today, _ := parseAsOf("")
	got, err := parseSince("")
	require.NoError(t, err)
	assert.Equal(t, today.AddDate(-2, 0, 0), got)
}

func TestParseCompanyIDs(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		want    []int64
		wantErr bool
	}{
		{name: "empty", raw: nil, want: nil},
		{name: "repeated", raw: []string{"3", "1"}, want: []int64{3, 1}},
		{name: "comma separated with duplicates", raw: []string{"1, 2,1", "2"}, want: []int64{1, 2}},
		{name: "blank parts", raw: []string{"5,,"}, want: []int64{5}},
		{name: "not a number", raw: []string{"abc"}, wantErr: true},
		{name: "zero", raw: []string{"0"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCompanyIDs(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("https://nsearchives.nseindia.com/corporate/xbrl/x.xml"))
	assert.True(t, isURL("http://localhost/x.xml"))
	assert.False(t, isURL("./filings/x.xml"))
	assert.False(t, isURL("ftp://example.com/x.xml"))
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, "compute", model.RunStats{Attempted: 3, Succeeded: 2, Failed: 1, Written: 4})
	assert.Equal(t, "compute: partial_success (attempted 3, succeeded 2, skipped 0, failed 1, written 4)\n", buf.String())
}

func TestBuildDocuments(t *testing.T) {
	co := model.Company{ID: 7, NSESymbol: "TCS"}
	ing := pipeline.NewIngester(nil, nil)

	docs, err := buildDocuments(context.Background(), ing, pipeline.KindHTML, co,
		[]string{"https://example.com/results.html", "results.html"}, documentFlags{nature: "consolidated"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://example.com/results.html", docs[0].URL)
	assert.Empty(t, docs[0].Path)
	assert.Equal(t, "results.html", docs[1].Path)
	assert.Equal(t, model.NatureConsolidated, docs[1].Nature)
	assert.Equal(t, int64(7), docs[1].CompanyID)

	docs, err = buildDocuments(context.Background(), ing, pipeline.KindFeed, co, nil, documentFlags{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, pipeline.FeedDocument(co), docs[0])

	_, err = buildDocuments(context.Background(), ing, pipeline.KindFeed, model.Company{ID: 8}, nil, documentFlags{})
	assert.Error(t, err)

	_, err = buildDocuments(context.Background(), ing, pipeline.KindHTML, co, []string{"x.html"}, documentFlags{nature: "audited"})
	assert.Error(t, err)
}
