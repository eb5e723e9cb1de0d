package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/archive"
	"github.com/sells-group/filings-cli/internal/feed"
	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/store"
)

// nseHeader is sent with NSE API calls, which reject requests without a
// referer.
var nseHeader = http.Header{
	"Referer":          {feed.NSEBaseURL + "/"},
	"X-Requested-With": {"XMLHttpRequest"},
	"Accept":           {"application/json"},
}

// bseHeader is sent with BSE API calls, which check the referer.
var bseHeader = http.Header{
	"Referer": {feed.BSEBaseURL + "/"},
	"Origin":  {feed.BSEBaseURL},
	"Accept":  {"application/json"},
}

// BSEHeader returns a copy of the headers BSE API calls need.
func BSEHeader() http.Header { return bseHeader.Clone() }

// CompanyFormat is the layout of a company master file.
type CompanyFormat string

const (
	FormatEquityList CompanyFormat = "equity_list"
	FormatXLSX       CompanyFormat = "xlsx"
	FormatBSEScrips  CompanyFormat = "bse_scrip_list"
)

// ImportCompanies parses a company master and upserts every company. A
// company that fails to save is counted and skipped.
func (i *Ingester) ImportCompanies(ctx context.Context, data []byte, format CompanyFormat) (model.RunStats, error) {
	var (
		companies []model.Company
		err       error
	)
	switch format {
	case FormatEquityList:
		companies, err = feed.ParseEquityList(ctx, data)
	case FormatXLSX:
		companies, err = feed.ParseCompanySheet(data)
	case FormatBSEScrips:
		companies, err = feed.ParseBSEScripList(bytes.NewReader(data))
	default:
		return model.RunStats{}, eris.Errorf("pipeline: unknown company format %q", format)
	}
	if err != nil {
		return model.RunStats{}, err
	}

	var stats model.RunStats
	for idx := range companies {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "pipeline: import cancelled")
		}
		c := &companies[idx]
		stats.Attempted++
		if err := i.store.UpsertCompany(ctx, c); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, err.Error())
			i.log.Warn("upsert company failed", zap.String("isin", c.ISIN), zap.Error(err))
			continue
		}
		stats.Succeeded++
		stats.Written++
	}
	i.log.Info("imported companies",
		zap.Int("parsed", len(companies)),
		zap.Int("written", int(stats.Written)),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// IngestPrices parses a bhavcopy and saves the quotes of known companies.
// Quotes whose symbol matches no stored company are skipped. When data is
// empty the bhavcopy for day is fetched.
func (i *Ingester) IngestPrices(ctx context.Context, day time.Time, data []byte) (model.RunStats, error) {
	var stats model.RunStats
	if len(data) == 0 {
		if i.fetch == nil {
			return stats, eris.New("pipeline: no fetcher for bhavcopy")
		}
		url := feed.BhavcopyURL(day)
		body, err := i.fetch.Get(ctx, url, nil)
		i.metrics.RecordFetch(feed.SourceNSEBhavcopy, err == nil)
		if err != nil {
			return stats, eris.Wrapf(err, "pipeline: fetch bhavcopy %s", day.Format(time.DateOnly))
		}
		data = body
	}

	prices, err := feed.ParseBhavcopy(ctx, data)
	if err != nil {
		return stats, err
	}
	if i.archive != nil {
		ext := "csv"
		if fetcher.IsZIP(data) {
			ext = "zip"
		}
		key := archive.MarketKey(feed.SourceNSEBhavcopy, day, ext)
		if err := i.archive.Write(ctx, key, data); err != nil {
			i.log.Warn("archive bhavcopy failed", zap.String("key", key), zap.Error(err))
		}
	}

	bySymbol, err := i.symbolIndex(ctx)
	if err != nil {
		return stats, err
	}

	known := make([]model.Price, 0, len(prices))
	for _, p := range prices {
		stats.Attempted++
		id, ok := bySymbol[strings.ToUpper(p.Symbol)]
		if !ok {
			stats.Skipped++
			continue
		}
		p.CompanyID = id
		known = append(known, p)
	}

	n, err := i.store.SavePrices(ctx, known)
	if err != nil {
		return stats, eris.Wrap(err, "pipeline: save prices")
	}
	stats.Succeeded = len(known)
	stats.Written = n
	i.log.Info("ingested prices",
		zap.Int("quotes", len(prices)),
		zap.Int("matched", len(known)),
		zap.Int64("written", n),
	)
	return stats, nil
}

func (i *Ingester) symbolIndex(ctx context.Context) (map[string]int64, error) {
	companies, err := i.store.ListCompanies(ctx, store.CompanyFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list companies")
	}
	idx := make(map[string]int64, len(companies))
	for _, c := range companies {
		if c.NSESymbol != "" {
			idx[strings.ToUpper(c.NSESymbol)] = c.ID
		}
	}
	return idx, nil
}

// Discover lists a company's financial result filings and returns one XBRL
// document per filing. NSE is used when the company has a symbol there,
// otherwise BSE by scrip code. Filings ending before since are dropped.
func (i *Ingester) Discover(ctx context.Context, c model.Company, since time.Time) ([]Document, error) {
	if c.NSESymbol == "" && c.BSEScripCode == "" {
		return nil, eris.Errorf("pipeline: company %d has no nse symbol or bse scrip code", c.ID)
	}
	if i.fetch == nil {
		return nil, eris.New("pipeline: no fetcher for filing discovery")
	}

	filings, err := i.listFilings(ctx, c)
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, f := range filings {
		if f.XBRLURL == "" || f.PeriodEnd.Before(since) {
			continue
		}
		docs = append(docs, Document{
			CompanyID:  c.ID,
			Kind:       KindXBRL,
			URL:        f.XBRLURL,
			Nature:     f.Nature,
			FilingDate: f.FilingDate,
		})
	}
	i.log.Debug("discovered filings",
		zap.String("symbol", c.Symbol()),
		zap.Int("listed", len(filings)),
		zap.Int("documents", len(docs)),
	)
	return docs, nil
}

func (i *Ingester) listFilings(ctx context.Context, c model.Company) ([]feed.Filing, error) {
	if c.NSESymbol != "" {
		body, err := i.fetch.Get(ctx, feed.CorporateFilingsURL(c.NSESymbol), nseHeader)
		i.metrics.RecordFetch(feed.SourceNSEAPI, err == nil)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: list filings for %s", c.NSESymbol)
		}
		return feed.ParseCorporateFilings(bytes.NewReader(body))
	}

	body, err := i.fetch.Get(ctx, feed.BSEResultsURL(c.BSEScripCode), bseHeader)
	i.metrics.RecordFetch(feed.SourceBSEAPI, err == nil)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list bse filings for %s", c.BSEScripCode)
	}
	return feed.ParseBSEResults(bytes.NewReader(body))
}

// FeedDocument is the NSE results-comparison document for a company.
func FeedDocument(c model.Company) Document {
	return Document{
		CompanyID: c.ID,
		Kind:      KindFeed,
		URL:       feed.ResultsComparisonURL(c.NSESymbol),
	}
}
