package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "ingest", "compute", "quality", "anomalies", "fields", "serve", "runs", "screen"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "filings-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestIngestCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range ingestCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"xbrl", "html", "feed", "vendor", "prices", "companies"} {
		assert.True(t, names[name], "ingest should have subcommand %q", name)
	}
}

func TestIngestDocumentCommands_Flags(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"ingest", "xbrl"})
	require.NoError(t, err)
	for _, name := range []string{"company", "discover", "since", "all-periods"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "ingest xbrl should have --%s", name)
	}
	assert.Nil(t, cmd.Flags().Lookup("nature"))
	assert.Nil(t, cmd.Flags().Lookup("list-tables"))

	cmd, _, err = rootCmd.Find([]string{"ingest", "html"})
	require.NoError(t, err)
	nature := cmd.Flags().Lookup("nature")
	require.NotNil(t, nature)
	assert.Equal(t, "standalone", nature.DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("list-tables"))

	cmd, _, err = rootCmd.Find([]string{"ingest", "feed"})
	require.NoError(t, err)
	assert.NotNil(t, cmd.Flags().Lookup("company"))
	assert.Nil(t, cmd.Flags().Lookup("discover"))
}

func TestIngestCompaniesCommand_Flags(t *testing.T) {
	format := ingestCompaniesCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "equity_list", format.DefValue)
	assert.NotNil(t, ingestCompaniesCmd.Flags().Lookup("file"))
}

func TestIngestPricesCommand_Flags(t *testing.T) {
	reprice := ingestPricesCmd.Flags().Lookup("reprice")
	require.NotNil(t, reprice)
	assert.Equal(t, "true", reprice.DefValue)
}

func TestScreenCommand_Flags(t *testing.T) {
	for _, name := range []string{"query", "sector", "industry", "min", "max", "sort-by", "asc", "limit", "offset", "nature"} {
		assert.NotNil(t, screenCmd.Flags().Lookup(name), "screen should have --%s", name)
	}
	assert.Equal(t, "market_cap", screenCmd.Flags().Lookup("sort-by").DefValue)
	assert.Equal(t, "50", screenCmd.Flags().Lookup("limit").DefValue)
}

func TestComputeCommand_Flags(t *testing.T) {
	for _, name := range []string{"as-of", "company"} {
		assert.NotNil(t, computeCmd.Flags().Lookup(name), "compute should have --%s", name)
	}
}

func TestQualityCommand_Flags(t *testing.T) {
	sample := qualityCmd.Flags().Lookup("sample")
	require.NotNil(t, sample)
	assert.Equal(t, "0", sample.DefValue)
	assert.NotNil(t, qualityCmd.Flags().Lookup("xlsx"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "stats", "check"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestRunsListCommand_Flags(t *testing.T) {
	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
