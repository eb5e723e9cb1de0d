package xbrl

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
)

const sampleInstance = `<?xml version="1.0" encoding="UTF-8"?>
<xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance"
            xmlns:link="http://www.xbrl.org/2003/linkbase"
            xmlns:xlink="http://www.w3.org/1999/xlink"
            xmlns:xbrldi="http://xbrl.org/2006/xbrldi"
            xmlns:in-bse-fin="http://www.bseindia.com/xbrl/fin">
  <link:schemaRef xlink:type="simple" xlink:href="in-bse-fin.xsd"/>
  <xbrli:context id="OneD">
    <xbrli:entity><xbrli:identifier scheme="http://www.bseindia.com">INE002A01018</xbrli:identifier></xbrli:entity>
    <xbrli:period><xbrli:startDate>2024-04-01</xbrli:startDate><xbrli:endDate>2024-06-30</xbrli:endDate></xbrli:period>
  </xbrli:context>
  <xbrli:context id="FourD">
    <xbrli:entity><xbrli:identifier scheme="http://www.bseindia.com">INE002A01018</xbrli:identifier></xbrli:entity>
    <xbrli:period><xbrli:startDate>2023-04-01</xbrli:startDate><xbrli:endDate>2023-06-30</xbrli:endDate></xbrli:period>
  </xbrli:context>
  <xbrli:context id="OneI">
    <xbrli:entity><xbrli:identifier scheme="http://www.bseindia.com">INE002A01018</xbrli:identifier></xbrli:entity>
    <xbrli:period><xbrli:instant>2024-06-30</xbrli:instant></xbrli:period>
  </xbrli:context>
  <xbrli:unit id="INR"><xbrli:measure>iso4217:INR</xbrli:measure></xbrli:unit>
  <in-bse-fin:RevenueFromOperations contextRef="OneD" unitRef="INR" decimals="-5">2,31,784</in-bse-fin:RevenueFromOperations>
  <in-bse-fin:RevenueFromOperations contextRef="FourD" unitRef="INR" decimals="-5">2,07,559</in-bse-fin:RevenueFromOperations>
  <in-bse-fin:OtherIncome contextRef="OneD" unitRef="INR" scale="3">4.5</in-bse-fin:OtherIncome>
  <in-bse-fin:FinanceCosts contextRef="OneD" unitRef="INR">5918</in-bse-fin:FinanceCosts>
  <in-bse-fin:ProfitLossForThePeriod contextRef="OneD" unitRef="INR">15138</in-bse-fin:ProfitLossForThePeriod>
  <in-bse-fin:ProfitLossForThePeriod contextRef="FourD" unitRef="INR">16011</in-bse-fin:ProfitLossForThePeriod>
  <in-bse-fin:NonControllingInterests contextRef="OneD" unitRef="INR">2354</in-bse-fin:NonControllingInterests>
  <in-bse-fin:WhetherResultsAreAuditedOrUnaudited contextRef="OneD">Unaudited</in-bse-fin:WhetherResultsAreAuditedOrUnaudited>
  <in-bse-fin:DateOfBoardMeeting contextRef="OneD">2024-07-19</in-bse-fin:DateOfBoardMeeting>
  <NoNamespaceFact contextRef="OneD">99</NoNamespaceFact>
</xbrli:xbrl>`

func TestExtract(t *testing.T) {
	res, err := Extract(context.Background(), strings.NewReader(sampleInstance))
	require.NoError(t, err)

	assert.Equal(t, "OneD", res.MainContext)
	assert.Equal(t, "INE002A01018", res.Entity)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), res.Period.Start)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), res.Period.End)
	assert.Equal(t, model.PeriodQuarterly, res.Period.Type)
	assert.Equal(t, "FY2025", res.Period.FiscalYear)
	assert.Len(t, res.Contexts, 3)

	assert.Equal(t, 231784.0, res.Items[fields.Revenue])
	assert.Equal(t, 4500.0, res.Items[fields.OtherIncome])
	assert.Equal(t, 5918.0, res.Items[fields.InterestExpense])
	assert.Equal(t, 15138.0, res.Items[fields.NetProfit])
	assert.Equal(t, 2354.0, res.Items[fields.MinorityInterest])

	// Raw items keep per-context copies and text facts.
	assert.Equal(t, 207559.0, res.RawItems["RevenueFromOperations_FourD"])
	assert.Equal(t, "2024-07-19", res.RawItems["DateOfBoardMeeting"])
	assert.NotContains(t, res.RawItems, "NoNamespaceFact")

	assert.False(t, res.Audited)
	assert.Equal(t, model.NatureConsolidated, res.Nature)
}

func TestExtract_Statements(t *testing.T) {
	res, err := Extract(context.Background(), strings.NewReader(sampleInstance))
	require.NoError(t, err)

	recs := res.Statements(42, "bse_xbrl", "https://example.test/a.xml")
	require.Len(t, recs, 2)
	assert.Equal(t, model.StatementProfitLoss, recs[0].StatementType)
	assert.Equal(t, model.StatementBalanceSheet, recs[1].StatementType)
	assert.Equal(t, int64(42), recs[0].CompanyID)
	assert.Contains(t, recs[0].Values, fields.Revenue)
	assert.NotContains(t, recs[0].Values, fields.MinorityInterest)
	assert.Equal(t, 2354.0, recs[1].Values[fields.MinorityInterest])
	assert.Equal(t, "bse_xbrl", recs[1].Source)
}

func TestExtract_InstantFallback(t *testing.T) {
	doc := `<xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance" xmlns:f="http://example.test/fin">
  <xbrli:context id="A"><xbrli:period><xbrli:instant>2023-03-31</xbrli:instant></xbrli:period></xbrli:context>
  <xbrli:context id="B"><xbrli:period><xbrli:instant>2024-03-31</xbrli:instant></xbrli:period></xbrli:context>
  <f:TotalAssets contextRef="A">100</f:TotalAssets>
  <f:TotalAssets contextRef="B">200</f:TotalAssets>
</xbrli:xbrl>`
	res, err := Extract(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "B", res.MainContext)
	assert.Equal(t, model.PeriodAnnual, res.Period.Type)
	assert.Equal(t, 200.0, res.Items[fields.TotalAssets])
	assert.Equal(t, model.NatureStandalone, res.Nature)
}

func TestExtract_NoContexts(t *testing.T) {
	doc := `<root xmlns:f="http://example.test/fin"><f:Revenue contextRef="X">10</f:Revenue><f:Revenue>20</f:Revenue></root>`
	res, err := Extract(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	assert.Empty(t, res.MainContext)
	assert.Equal(t, 10.0, res.Items[fields.Revenue])
	assert.Equal(t, 20.0, res.RawItems["Revenue"])
}

func TestExtract_PrefersUndimensionedContext(t *testing.T) {
	doc := `<xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance" xmlns:xbrldi="http://xbrl.org/2006/xbrldi" xmlns:f="http://example.test/fin">
  <xbrli:context id="Seg">
    <xbrli:entity><xbrli:identifier>X</xbrli:identifier>
      <xbrli:segment><xbrldi:explicitMember dimension="f:SegmentAxis">f:RetailMember</xbrldi:explicitMember></xbrli:segment>
    </xbrli:entity>
    <xbrli:period><xbrli:startDate>2024-01-01</xbrli:startDate><xbrli:endDate>2024-03-31</xbrli:endDate></xbrli:period>
  </xbrli:context>
  <xbrli:context id="Plain">
    <xbrli:entity><xbrli:identifier>X</xbrli:identifier></xbrli:entity>
    <xbrli:period><xbrli:startDate>2024-01-01</xbrli:startDate><xbrli:endDate>2024-03-31</xbrli:endDate></xbrli:period>
  </xbrli:context>
  <f:Revenue contextRef="Seg">10</f:Revenue>
  <f:Revenue contextRef="Plain">30</f:Revenue>
</xbrli:xbrl>`
	res, err := Extract(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Plain", res.MainContext)
	assert.Equal(t, 30.0, res.Items[fields.Revenue])
	assert.Equal(t, "f:RetailMember", res.Contexts["Seg"].Dimensions["f:SegmentAxis"])
}

func TestExtract_Malformed(t *testing.T) {
	_, err := Extract(context.Background(), strings.NewReader(`<xbrl><unclosed></xbrl>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xbrl: read token")

	_, err = Extract(context.Background(), strings.NewReader(""))
	assert.Error(t, err)
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Extract(ctx, strings.NewReader(sampleInstance))
	assert.Error(t, err)
}

func TestExtract_Latin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		`<x:xbrl xmlns:x="http://www.xbrl.org/2003/instance" xmlns:f="http://example.test/fin">` +
		`<f:TypeOfReport contextRef="C">Consolidated r` + "\xe9" + `sultats</f:TypeOfReport></x:xbrl>`
	res, err := Extract(context.Background(), strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Consolidated résultats", res.RawItems["TypeOfReport"])
	assert.Equal(t, model.NatureConsolidated, res.Nature)
}

func TestExtractPeriods(t *testing.T) {
	results, err := New(nil).ExtractPeriods(context.Background(), strings.NewReader(sampleInstance))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), results[0].Period.End)
	assert.Equal(t, "OneD", results[0].MainContext)
	assert.Equal(t, 231784.0, results[0].Items[fields.Revenue])

	assert.Equal(t, time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC), results[1].Period.End)
	assert.Equal(t, 207559.0, results[1].Items[fields.Revenue])
	assert.Equal(t, 16011.0, results[1].Items[fields.NetProfit])
}

func TestAuditedAndNature(t *testing.T) {
	assert.True(t, audited(map[string]any{"AuditedUnaudited": "Audited"}))
	assert.False(t, audited(map[string]any{"AuditedUnaudited": "Unaudited"}))
	assert.False(t, audited(map[string]any{"AuditedUnaudited": 1.0}))

	assert.Equal(t, model.NatureStandalone, nature(map[string]any{"NatureOfReportStandaloneConsolidated": "Standalone"}))
	assert.Equal(t, model.NatureConsolidated, nature(map[string]any{"StandaloneConsolidated": "Consolidated"}))
	assert.Equal(t, model.NatureStandalone, nature(map[string]any{"MinorityInterest": 0.0}))
	assert.Equal(t, model.NatureConsolidated, nature(map[string]any{"MinorityInterest": 5.0}))
}

func TestFactValue(t *testing.T) {
	assert.Equal(t, 1500000.0, factValue("15", "5"))
	assert.Equal(t, 1.5, factValue("1500", "-3"))
	assert.Equal(t, 1234.5, factValue("1,234.5", ""))
	assert.Equal(t, "Audited", factValue("Audited", ""))
}
