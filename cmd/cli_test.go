package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/monitoring"
	"github.com/sells-group/filings-cli/internal/screen"
)

const equityListCSV = "SYMBOL,NAME OF COMPANY, SERIES, DATE OF LISTING, PAID UP VALUE, MARKET LOT, ISIN NUMBER, FACE VALUE\n" +
	"TCS,Tata Consultancy Services Limited,EQ,25-AUG-2004,1,1,INE467B01029,1\n" +
	"INFY,Infosys Limited,EQ,08-FEB-1995,5,1,INE009A01021,5\n"

// execute runs the root command with args against a fresh sqlite database
// configured through the environment.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FILINGS_STORE_DRIVER", "sqlite")
	t.Setenv("FILINGS_STORE_DATABASE_URL", filepath.Join(t.TempDir(), "filings.db"))
	t.Setenv("FILINGS_ARCHIVE_DRIVER", "none")
	t.Setenv("FILINGS_LOG_LEVEL", "error")
}

func TestCLI_ImportComputeAndListRuns(t *testing.T) {
	setTestEnv(t)

	path := filepath.Join(t.TempDir(), "EQUITY_L.csv")
	require.NoError(t, os.WriteFile(path, []byte(equityListCSV), 0o644))

	_, err := execute(t, "migrate")
	require.NoError(t, err)

	out, err := execute(t, "ingest", "companies", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ingest companies: success")
	assert.Contains(t, out, "written 2")

	out, err = execute(t, "compute", "--as-of", "2024-06-30")
	require.NoError(t, err)
	assert.Contains(t, out, "compute: success (attempted 2")

	out, err = execute(t, "runs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "companies")
	assert.Contains(t, out, "compute")

	out, err = execute(t, "runs", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "compute:")

	out, err = execute(t, "runs", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "No alerts.")

	t.Setenv("FILINGS_MONITORING_STALE_JOBS", "prices")
	out, err = execute(t, "runs", "check")
	require.Error(t, err)
	assert.Contains(t, out, "stale_job")
	assert.Contains(t, out, "No successful prices run")
}

func TestCLI_IngestCompanies_XLSXNeedsFile(t *testing.T) {
	setTestEnv(t)
	companiesFile = ""
	t.Cleanup(func() { companiesFormat = "equity_list" })

	_, err := execute(t, "ingest", "companies", "--format", "xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--file is required")
}

func TestCLI_InvalidConfig(t *testing.T) {
	setTestEnv(t)
	t.Setenv("FILINGS_STORE_DRIVER", "mysql")

	_, err := execute(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestCLI_Fields(t *testing.T) {
	setTestEnv(t)

	out, err := execute(t, "fields")
	require.NoError(t, err)
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "revenue")
	assert.Contains(t, out, "flow-PL")
	assert.Contains(t, out, "balance_sheet")
}

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := started.Add(90 * time.Second)
	runs := []model.Run{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Job:         "compute",
			Status:      model.RunStatusPartialSuccess,
			Stats:       model.RunStats{Attempted: 3, Succeeded: 2, Failed: 1, Written: 4},
			StartedAt:   started,
			CompletedAt: &done,
		},
		{
			ID:        "def12345",
			Job:       "ingest",
			Status:    model.RunStatusRunning,
			StartedAt: started,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "JOB")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-")
	assert.Contains(t, output, "partial_success")
	assert.Contains(t, output, "2/1/0")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "1m30s")
	assert.Contains(t, output, "running")
}

func TestFormatRunStats(t *testing.T) {
	done := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	snap := &monitoring.Snapshot{
		Total:      3,
		Succeeded:  2,
		Failed:     1,
		FailRate:   1.0 / 3.0,
		AvgDurSecs: 42,
		ByJob: map[string]*monitoring.JobSnapshot{
			"compute": {Total: 2, Succeeded: 2, LastSuccess: &done},
			"ingest":  {Total: 1, Failed: 1},
		},
		LookbackHours: 24,
	}

	var buf bytes.Buffer
	formatRunStats(&buf, snap)
	out := buf.String()
	assert.Contains(t, out, "24h")
	assert.Contains(t, out, "33.3%")
	assert.Contains(t, out, "42.0s")
	assert.Contains(t, out, "last success 2025-06-15 10:30")
	assert.Contains(t, out, "last success never")
}

func TestFormatAnomalies(t *testing.T) {
	var buf bytes.Buffer
	formatAnomalies(&buf, nil)
	assert.Equal(t, "No anomalies found.\n", buf.String())

	buf.Reset()
	formatAnomalies(&buf, []model.Anomaly{{
		CompanyID: 7,
		PeriodEnd: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Type:      "negative_value",
		Severity:  model.SeverityMedium,
		Field:     "revenue",
		Message:   "revenue is negative",
	}})
	out := buf.String()
	assert.Contains(t, out, "SEVERITY")
	assert.Contains(t, out, "2024-03-31")
	assert.Contains(t, out, "negative_value")
	assert.Contains(t, out, "revenue is negative")
}

func TestQualityStats(t *testing.T) {
	assert.Equal(t, model.RunStats{}, qualityStats(nil))
}

func TestCLI_ScreenAndListTables(t *testing.T) {
	setTestEnv(t)
	dir := t.TempDir()
	csv := filepath.Join(dir, "EQUITY_L.csv")
	require.NoError(t, os.WriteFile(csv, []byte(equityListCSV), 0o644))
	page := filepath.Join(dir, "results.html")
	require.NoError(t, os.WriteFile(page, []byte(`<table>
<tr><td>Particulars</td><td>FY24</td></tr>
<tr><td>Total Assets</td><td>10</td></tr>
<tr><td>Total Liabilities</td><td>6</td></tr>
<tr><td>Equity Share Capital</td><td>4</td></tr>
</table>`), 0o644))

	_, err := execute(t, "ingest", "companies", "--file", csv)
	require.NoError(t, err)

	htmlCmd, _, err := rootCmd.Find([]string{"ingest", "html"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = htmlCmd.Flags().Set("list-tables", "false") })
	t.Cleanup(func() { screenQuery = "" })

	out, err := execute(t, "ingest", "html", "--company", "1", "--list-tables", page)
	require.NoError(t, err)
	assert.Contains(t, out, "PERIODS")
	assert.Contains(t, out, "balance_sheet")

	out, err = execute(t, "screen", "--query", "roe > 15")
	require.NoError(t, err)
	assert.Contains(t, out, "0 matches")

	_, err = execute(t, "screen", "--query", "price > 1")
	require.Error(t, err)
}

func TestParseRanges(t *testing.T) {
	got, err := parseRanges(map[string]string{"roe": "15"}, map[string]string{"roe": "40", "pe_ratio": "25"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 15.0, *got["roe"].Min)
	assert.Equal(t, 40.0, *got["roe"].Max)
	assert.Nil(t, got["pe_ratio"].Min)
	assert.Equal(t, 25.0, *got["pe_ratio"].Max)

	_, err = parseRanges(map[string]string{"roe": "high"}, nil)
	assert.Error(t, err)
}

func TestFormatScreen(t *testing.T) {
	var buf bytes.Buffer
	formatScreen(&buf, &screen.Result{SortBy: model.RatioMarketCap, Results: []screen.Match{}})
	assert.Equal(t, "0 matches (showing 0, sorted by market_cap)\n", buf.String())

	buf.Reset()
	formatScreen(&buf, &screen.Result{
		SortBy:       model.RatioROCE,
		TotalMatches: 3,
		Results: []screen.Match{{
			CompanyID: 1,
			Symbol:    "TCS",
			Name:      "Tata Consultancy Services",
			Sector:    "IT",
			Ratios:    model.Ratios{model.RatioROCE: model.Float(58.123), model.RatioPE: model.Float(30)},
		}},
	})
	out := buf.String()
	assert.Contains(t, out, "3 matches (showing 1, sorted by roce)")
	assert.Contains(t, out, "roce")
	assert.Contains(t, out, "58.12")
	assert.Contains(t, out, "30.00")
	assert.Contains(t, out, "-")
}
