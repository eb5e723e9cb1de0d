// Package feed parses pre-parsed vendor payloads (NSE results API, bhavcopy
// archives, equity lists) into canonical records.
package feed

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sells-group/filings-cli/internal/fetcher"
)

// Source tags written on records produced by this package.
const (
	SourceNSEAPI       = "nse_api"
	SourceNSEBhavcopy  = "nse_bhavcopy"
	SourceNSEEquityL   = "nse_equity_list"
	SourceCompanySheet = "company_sheet"
)

// Public NSE endpoints.
var (
	NSEBaseURL     = "https://" + fetcher.HostNSE
	NSEArchivesURL = "https://" + fetcher.HostNSEArch
)

// ResultsComparisonURL is the NSE results-comparison endpoint for symbol.
func ResultsComparisonURL(symbol string) string {
	return NSEBaseURL + "/api/results-comparision?symbol=" + url.QueryEscape(symbol)
}

// CorporateFilingsURL lists a symbol's financial result filings.
func CorporateFilingsURL(symbol string) string {
	return NSEBaseURL + "/api/corporates-financial-results?index=equities&symbol=" + url.QueryEscape(symbol)
}

// BhavcopyURL is the zipped end-of-day bhavcopy for a trading day.
func BhavcopyURL(day time.Time) string {
	mon := strings.ToUpper(day.Format("Jan"))
	return fmt.Sprintf("%s/content/historical/EQUITIES/%d/%s/cm%02d%s%dbhav.csv.zip",
		NSEArchivesURL, day.Year(), mon, day.Day(), mon, day.Year())
}

// EquityListURL is the NSE list of listed equities.
func EquityListURL() string {
	return NSEArchivesURL + "/content/equities/EQUITY_L.csv"
}
