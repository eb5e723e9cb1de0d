// Package pipeline runs the batch jobs: ingesting raw filings, feeds and
// prices into the store, computing TTM ratio sets, and supplying our values
// to the quality cross-check.
package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/archive"
	"github.com/sells-group/filings-cli/internal/feed"
	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/htmltable"
	"github.com/sells-group/filings-cli/internal/metrics"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/period"
	"github.com/sells-group/filings-cli/internal/store"
	"github.com/sells-group/filings-cli/internal/xbrl"
)

// Kind is the format of a raw document.
type Kind string

const (
	KindXBRL   Kind = "xbrl"
	KindHTML   Kind = "html"
	KindFeed   Kind = "feed"
	KindVendor Kind = "vendor"
)

// ParseKind parses a document kind (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindXBRL, KindHTML, KindFeed, KindVendor:
		return k, nil
	default:
		return "", eris.Errorf("pipeline: unknown document kind %q", s)
	}
}

// Source tags written on statements produced by the ingester.
const (
	SourceXBRL = "nse_xbrl"
	SourceHTML = "html_filing"
)

// Document is one raw filing to ingest. The bytes come from Data, else from
// Path on disk, else from fetching URL.
type Document struct {
	CompanyID int64
	Kind      Kind
	URL       string
	Path      string
	Data      []byte
	// Nature applies to HTML tables, which do not state it. Zero means
	// standalone. XBRL documents carry their own.
	Nature     model.ResultNature
	FilingDate *time.Time
	// AllPeriods stores every dated XBRL context instead of only the main one.
	AllPeriods bool
}

func (d Document) location() string {
	if d.URL != "" {
		return d.URL
	}
	return d.Path
}

// IngestStore is the persistence the ingester writes to.
type IngestStore interface {
	SaveStatement(ctx context.Context, rec *model.StatementRecord) error
	SavePrices(ctx context.Context, prices []model.Price) (int64, error)
	UpsertCompany(ctx context.Context, c *model.Company) error
	ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]model.Company, error)
}

// Ingester turns raw documents into stored statements.
type Ingester struct {
	store   IngestStore
	fetch   fetcher.Fetcher
	archive archive.Storage
	xbrl    *xbrl.Extractor
	html    *htmltable.Extractor
	norm    *fields.Normalizer
	metrics *metrics.Registry
	log     *zap.Logger
}

// IngestOption configures an Ingester.
type IngestOption func(*Ingester)

// WithArchive stores every document's raw bytes in s.
func WithArchive(s archive.Storage) IngestOption {
	return func(i *Ingester) { i.archive = s }
}

// WithIngestMetrics records documents and statements on reg.
func WithIngestMetrics(reg *metrics.Registry) IngestOption {
	return func(i *Ingester) { i.metrics = reg }
}

// WithNormalizer replaces the built-in alias tables used by the extractors.
func WithNormalizer(n *fields.Normalizer) IngestOption {
	return func(i *Ingester) {
		i.norm = n
		i.xbrl = xbrl.New(n)
		i.html = htmltable.New(n)
	}
}

// NewIngester creates an Ingester. f may be nil when every document carries
// its bytes or a path.
func NewIngester(st IngestStore, f fetcher.Fetcher, opts ...IngestOption) *Ingester {
	i := &Ingester{
		store: st,
		fetch: f,
		xbrl:  xbrl.New(nil),
		html:  htmltable.New(nil),
		norm:  fields.Default(),
		log:   zap.L().With(zap.String("component", "pipeline.ingest")),
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

type htmlGroupKey struct {
	companyID int64
	nature    model.ResultNature
}

type htmlGroup struct {
	results   []*htmltable.Result
	docs      int
	sourceURL string
	filing    *time.Time
}

// Ingest extracts and saves every document. A failing document is counted
// and logged but never aborts the batch. HTML documents of the same company
// and nature are merged per period before they are written. Only context
// cancellation is returned as an error.
func (i *Ingester) Ingest(ctx context.Context, docs []Document) (model.RunStats, error) {
	var stats model.RunStats
	groups := make(map[htmlGroupKey]*htmlGroup)
	var order []htmlGroupKey

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "pipeline: ingest cancelled")
		}
		stats.Attempted++

		log := i.log.With(
			zap.Int64("company_id", doc.CompanyID),
			zap.String("kind", string(doc.Kind)),
			zap.String("location", doc.location()),
		)

		if doc.CompanyID == 0 {
			i.fail(&stats, doc, eris.New("pipeline: document has no company"))
			continue
		}

		data, err := i.load(ctx, doc)
		if err != nil {
			i.fail(&stats, doc, err)
			continue
		}

		switch doc.Kind {
		case KindHTML:
			res, ok := i.htmlResult(doc, data)
			if !ok {
				i.fail(&stats, doc, eris.Errorf("pipeline: no financial table in %s", doc.location()))
				continue
			}
			i.archiveRaw(ctx, doc, data, newestPeriod(res.Periods))
			nature := doc.Nature
			if nature == 0 {
				nature = model.NatureStandalone
			}
			k := htmlGroupKey{companyID: doc.CompanyID, nature: nature}
			g, ok := groups[k]
			if !ok {
				g = &htmlGroup{sourceURL: doc.location(), filing: doc.FilingDate}
				groups[k] = g
				order = append(order, k)
			}
			g.results = append(g.results, res)
			g.docs++
			log.Debug("parsed html table", zap.Int("periods", len(res.Periods)))
			continue

		case KindXBRL, KindFeed, KindVendor:
			recs, end, err := i.extract(ctx, doc, data)
			if err != nil {
				i.fail(&stats, doc, err)
				continue
			}
			i.archiveRaw(ctx, doc, data, end)
			n, err := i.save(ctx, recs, doc.FilingDate)
			stats.Written += n
			if err != nil {
				i.fail(&stats, doc, err)
				continue
			}
			i.succeed(&stats, doc)
			log.Info("ingested document", zap.Int64("statements", n))

		default:
			i.fail(&stats, doc, eris.Errorf("pipeline: unknown document kind %q", doc.Kind))
		}
	}

	for _, k := range order {
		g := groups[k]
		merged := htmltable.Merge(g.results...)
		recs := merged.Statements(k.companyID, k.nature, SourceHTML, g.sourceURL)
		n, err := i.save(ctx, recs, g.filing)
		stats.Written += n
		if err != nil {
			stats.Failed += g.docs
			stats.Errors = append(stats.Errors, err.Error())
			i.log.Warn("save merged html statements failed",
				zap.Int64("company_id", k.companyID), zap.Error(err))
			continue
		}
		stats.Succeeded += g.docs
		for range g.docs {
			i.metrics.RecordDocument(string(KindHTML), true)
		}
		i.log.Info("ingested html documents",
			zap.Int64("company_id", k.companyID),
			zap.Int("documents", g.docs),
			zap.Int64("statements", n),
		)
	}

	i.log.Info("ingest complete",
		zap.Int("attempted", stats.Attempted),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int64("written", stats.Written),
	)
	return stats, nil
}

func (i *Ingester) extract(ctx context.Context, doc Document, data []byte) ([]*model.StatementRecord, time.Time, error) {
	var (
		recs []*model.StatementRecord
		err  error
	)
	switch doc.Kind {
	case KindXBRL:
		recs, err = i.xbrlStatements(ctx, doc, data)
		if err == nil && len(recs) == 0 {
			err = eris.Errorf("pipeline: no canonical facts in %s", doc.location())
		}
	case KindVendor:
		recs, err = feed.ParseVendorMaps(bytes.NewReader(data), doc.CompanyID, i.norm)
		if err == nil && len(recs) == 0 {
			err = eris.Errorf("pipeline: no statements in vendor payload %s", doc.location())
		}
	default:
		recs, err = feed.ParseResultsComparison(bytes.NewReader(data), doc.CompanyID)
		if err == nil && len(recs) == 0 {
			err = eris.Errorf("pipeline: no periods in feed %s", doc.location())
		}
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	end := recs[0].Period.End
	for _, r := range recs[1:] {
		if r.Period.End.After(end) {
			end = r.Period.End
		}
	}
	return recs, end, nil
}

func (i *Ingester) xbrlStatements(ctx context.Context, doc Document, data []byte) ([]*model.StatementRecord, error) {
	if !doc.AllPeriods {
		res, err := i.xbrl.Extract(ctx, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return res.Statements(doc.CompanyID, SourceXBRL, doc.URL), nil
	}
	results, err := i.xbrl.ExtractPeriods(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var recs []*model.StatementRecord
	for _, res := range results {
		recs = append(recs, res.Statements(doc.CompanyID, SourceXBRL, doc.URL)...)
	}
	return recs, nil
}

// htmlResult parses the page's main table. When its header names no period,
// the period is read from the document's file name instead.
func (i *Ingester) htmlResult(doc Document, data []byte) (*htmltable.Result, bool) {
	if res, ok := i.html.Extract(string(data)); ok {
		return res, true
	}
	p, ok := period.ParseFilename(path.Base(doc.location()))
	if !ok {
		return nil, false
	}
	i.log.Debug("html period taken from file name",
		zap.String("location", doc.location()), zap.Stringer("period", p))
	return i.html.ExtractAt(string(data), p)
}

// Tables loads an HTML document and classifies every table on it without
// writing anything.
func (i *Ingester) Tables(ctx context.Context, doc Document) ([]htmltable.Table, error) {
	data, err := i.load(ctx, doc)
	if err != nil {
		return nil, err
	}
	return i.html.ExtractAll(string(data))
}

func (i *Ingester) load(ctx context.Context, doc Document) ([]byte, error) {
	switch {
	case len(doc.Data) > 0:
		return doc.Data, nil
	case doc.Path != "":
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: read %s", doc.Path)
		}
		return data, nil
	case doc.URL != "":
		if i.fetch == nil {
			return nil, eris.Errorf("pipeline: no fetcher for %s", doc.URL)
		}
		data, err := i.fetch.Get(ctx, doc.URL, headerFor(doc.Kind))
		i.metrics.RecordFetch(string(doc.Kind), err == nil)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: fetch %s", doc.URL)
		}
		return data, nil
	default:
		return nil, eris.New("pipeline: document has no data, path or url")
	}
}

// save writes each record, stamping the filing date when the extractor did
// not find one. It stops at the first failure.
func (i *Ingester) save(ctx context.Context, recs []*model.StatementRecord, filing *time.Time) (int64, error) {
	var n int64
	for _, rec := range recs {
		if rec.FilingDate == nil && filing != nil {
			rec.FilingDate = filing
		}
		if err := i.store.SaveStatement(ctx, rec); err != nil {
			return n, eris.Wrapf(err, "pipeline: save %s", rec.Key())
		}
		n++
		i.metrics.RecordStatement(rec.StatementType.String())
	}
	return n, nil
}

// archiveRaw archives the raw bytes. Archive failures are logged only.
func (i *Ingester) archiveRaw(ctx context.Context, doc Document, data []byte, periodEnd time.Time) {
	if i.archive == nil || len(data) == 0 {
		return
	}
	key := archive.DocumentKey(doc.CompanyID, string(doc.Kind), periodEnd, data, extension(doc.Kind))
	if err := i.archive.Write(ctx, key, data); err != nil {
		i.log.Warn("archive raw document failed", zap.String("key", key), zap.Error(err))
	}
}

func (i *Ingester) fail(stats *model.RunStats, doc Document, err error) {
	stats.Failed++
	stats.Errors = append(stats.Errors, err.Error())
	i.metrics.RecordDocument(string(doc.Kind), false)
	i.log.Warn("document failed",
		zap.Int64("company_id", doc.CompanyID),
		zap.String("kind", string(doc.Kind)),
		zap.String("location", doc.location()),
		zap.Error(err),
	)
}

func (i *Ingester) succeed(stats *model.RunStats, doc Document) {
	stats.Succeeded++
	i.metrics.RecordDocument(string(doc.Kind), true)
}

func headerFor(k Kind) http.Header {
	if k == KindFeed {
		return nseHeader
	}
	return nil
}

func extension(k Kind) string {
	switch k {
	case KindXBRL:
		return "xml"
	case KindHTML:
		return "html"
	case KindFeed, KindVendor:
		return "json"
	default:
		return "bin"
	}
}

func newestPeriod(ps []model.Period) time.Time {
	var end time.Time
	for _, p := range ps {
		if p.End.After(end) {
			end = p.End
		}
	}
	return end
}
