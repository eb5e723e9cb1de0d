// Package htmltable extracts financial results from the HTML tables of
// pre-XBRL exchange filings.
package htmltable

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
	"github.com/sells-group/filings-cli/internal/period"
)

const (
	minRows        = 3
	minKeywordHits = 2
	headerScanRows = 5
)

var financialKeywords = []string{
	"revenue", "income", "expenses", "profit", "loss",
	"particulars", "sales", "ebitda", "assets", "liabilities",
}

var periodPatterns = []*regexp.Regexp{
	regexp.MustCompile(`q[1-4]`),
	regexp.MustCompile(`fy\s*\d{2,4}`),
	regexp.MustCompile(`\d{4}-\d{2,4}`),
	regexp.MustCompile(`quarter`),
	regexp.MustCompile(`year`),
	regexp.MustCompile(`mar`),
	regexp.MustCompile(`jun`),
	regexp.MustCompile(`sep`),
	regexp.MustCompile(`dec`),
	regexp.MustCompile(`ended`),
}

var sectionHeaders = []string{
	"particulars", "description", "items", "statement of",
	"balance sheet", "profit and loss", "cash flow", "notes",
}

// Keywords used to classify a table by statement.
var statementKeywords = map[model.StatementType][]string{
	model.StatementProfitLoss:   {"revenue", "income", "profit", "loss", "expenses"},
	model.StatementBalanceSheet: {"assets", "liabilities", "equity", "capital"},
	model.StatementCashFlow:     {"cash flow", "operating activities", "investing"},
}

var (
	leadingNumberRe = regexp.MustCompile(`^[\d.)\s]+`)
	spaceRe         = regexp.MustCompile(`\s+`)
	nonWordRe       = regexp.MustCompile(`[^\w]`)
)

// Result is one parsed table: a period per value column and, aligned with
// it, the field values reported for that period. Unmatched labels are kept
// under a slug of the raw label.
type Result struct {
	Periods []model.Period
	Data    []map[string]float64
}

// Table is one classified table from a page.
type Table struct {
	Index int
	// Type is zero when no statement keywords are present.
	Type   model.StatementType
	Rows   int
	Parsed *Result
}

// Extractor parses filing tables with a fixed field normalizer.
type Extractor struct {
	normalizer *fields.Normalizer
}

// New creates an Extractor. A nil normalizer uses the built-in alias tables.
func New(n *fields.Normalizer) *Extractor {
	if n == nil {
		n = fields.Default()
	}
	return &Extractor{normalizer: n}
}

func logger() *zap.Logger {
	return zap.L().With(zap.String("component", "htmltable"))
}

// Extract locates the main financial table in html and parses it. The
// boolean is false when no table qualifies or no header period parses.
func (e *Extractor) Extract(html string) (*Result, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger().Warn("parse html", zap.Error(eris.Wrap(err, "htmltable: parse document")))
		return nil, false
	}

	tables := doc.Find("table")
	if tables.Length() == 0 {
		logger().Debug("no tables found")
		return nil, false
	}
	return e.parseTable(pickTable(tables))
}

// ExtractAll classifies and parses every table on the page.
func (e *Extractor) ExtractAll(html string) ([]Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "htmltable: parse document")
	}

	var out []Table
	doc.Find("table").Each(func(i int, t *goquery.Selection) {
		parsed, _ := e.parseTable(t)
		out = append(out, Table{
			Index:  i,
			Type:   classify(strings.ToLower(t.Text())),
			Rows:   t.Find("tr").Length(),
			Parsed: parsed,
		})
	})
	return out, nil
}

// pickTable returns the table with the most financial keywords (at least
// two), ties broken by row count; failing that, the table with most rows.
func pickTable(tables *goquery.Selection) *goquery.Selection {
	var best, largest *goquery.Selection
	bestHits, bestRows, largestRows := 0, 0, -1

	tables.Each(func(_ int, t *goquery.Selection) {
		rows := t.Find("tr").Length()
		if rows > largestRows {
			largest, largestRows = t, rows
		}

		text := strings.ToLower(t.Text())
		hits := 0
		for _, kw := range financialKeywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits < minKeywordHits {
			return
		}
		if hits > bestHits || (hits == bestHits && rows > bestRows) {
			best, bestHits, bestRows = t, hits, rows
		}
	})

	if best != nil {
		return best
	}
	return largest
}

func (e *Extractor) parseTable(t *goquery.Selection) (*Result, bool) {
	rows, ok := tableRows(t)
	if !ok {
		return nil, false
	}

	header := headerRow(rows)

	// Column index (after the label column) to period.
	cols := make(map[int]int)
	res := &Result{}
	header.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		if i == 0 {
			return
		}
		if p, ok := period.Parse(cellText(cell)); ok {
			cols[i-1] = len(res.Periods)
			res.Periods = append(res.Periods, p)
		}
	})
	if len(res.Periods) == 0 {
		logger().Debug("no periods in header row")
		return nil, false
	}

	e.fill(res, rows, cols)
	return res, true
}

// ExtractAt parses the main financial table of html for a period known from
// outside the page, such as the archive filename. The first value column is
// read as p. The boolean is false when no table qualifies or no row parses.
func (e *Extractor) ExtractAt(html string, p model.Period) (*Result, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logger().Warn("parse html", zap.Error(eris.Wrap(err, "htmltable: parse document")))
		return nil, false
	}
	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, false
	}
	rows, ok := tableRows(pickTable(tables))
	if !ok {
		return nil, false
	}

	res := &Result{Periods: []model.Period{p}}
	e.fill(res, rows, map[int]int{0: 0})
	if len(res.Data[0]) == 0 {
		return nil, false
	}
	return res, true
}

func tableRows(t *goquery.Selection) (*goquery.Selection, bool) {
	if t == nil {
		return nil, false
	}
	rows := t.Find("tr")
	if rows.Length() < minRows {
		logger().Debug("table has too few rows", zap.Int("rows", rows.Length()))
		return nil, false
	}
	return rows, true
}

// fill reads every labeled row into res.Data. cols maps a value column
// (after the label column) to its period index.
func (e *Extractor) fill(res *Result, rows *goquery.Selection, cols map[int]int) {
	res.Data = make([]map[string]float64, len(res.Periods))
	for i := range res.Data {
		res.Data[i] = make(map[string]float64)
	}

	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		label := cellText(cells.First())
		if label == "" || isSectionHeader(label) {
			return
		}

		key, ok := e.normalizer.Normalize(label)
		if !ok {
			// Row numbering and punctuation hide otherwise known labels.
			slug := Slug(label)
			if slug == "" {
				return
			}
			if key, ok = e.normalizer.Normalize(slug); !ok {
				key = slug
			}
		}

		cells.Slice(1, cells.Length()).Each(func(i int, cell *goquery.Selection) {
			idx, ok := cols[i]
			if !ok {
				return
			}
			text := cellText(cell)
			if text == "" {
				return
			}
			if v, ok := numeric.Parse(text); ok {
				res.Data[idx][key] = v
			}
		})
	})
}

// headerRow returns the first of the leading rows that matches at least two
// period indicators, or the first row.
func headerRow(rows *goquery.Selection) *goquery.Selection {
	var found *goquery.Selection
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i >= headerScanRows {
			return false
		}
		text := strings.ToLower(row.Text())
		hits := 0
		for _, re := range periodPatterns {
			if re.MatchString(text) {
				hits++
			}
		}
		if hits >= 2 {
			found = row
			return false
		}
		return true
	})
	if found != nil {
		return found
	}
	return rows.First()
}

func classify(text string) model.StatementType {
	var best model.StatementType
	bestHits := 0
	for _, st := range model.StatementTypes {
		hits := 0
		for _, kw := range statementKeywords[st] {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = st, hits
		}
	}
	return best
}

func isSectionHeader(label string) bool {
	l := strings.ToLower(label)
	for _, h := range sectionHeaders {
		if strings.Contains(l, h) {
			return true
		}
	}
	return false
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// Slug turns an unmatched row label into a stable field key:
// "3. Exceptional gain (net)" becomes "exceptional_gain_net".
func Slug(label string) string {
	s := leadingNumberRe.ReplaceAllString(label, "")
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), "_")
	s = nonWordRe.ReplaceAllString(s, "")
	return strings.ToLower(s)
}

// Merge unions results for the same periods found in different documents.
// A later result wins per field. Periods are returned newest first.
func Merge(results ...*Result) *Result {
	type slot struct {
		p    model.Period
		data map[string]float64
	}
	byKey := make(map[string]*slot)
	for _, r := range results {
		if r == nil {
			continue
		}
		for i, p := range r.Periods {
			k := p.Type.String() + "/" + p.End.Format("2006-01-02")
			s, ok := byKey[k]
			if !ok {
				s = &slot{p: p, data: make(map[string]float64)}
				byKey[k] = s
			}
			if i < len(r.Data) {
				for f, v := range r.Data[i] {
					s.data[f] = v
				}
			}
		}
	}

	slots := make([]*slot, 0, len(byKey))
	for _, s := range byKey {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].p.End.Equal(slots[j].p.End) {
			return slots[i].p.End.After(slots[j].p.End)
		}
		return slots[i].p.Type < slots[j].p.Type
	})

	out := &Result{}
	for _, s := range slots {
		out.Periods = append(out.Periods, s.p)
		out.Data = append(out.Data, s.data)
	}
	return out
}

// Statements converts each period column into statement records, one per
// statement type with canonical values. Slugged fields are kept only as raw
// items. Annual columns are taken as audited.
func (r *Result) Statements(companyID int64, nature model.ResultNature, source, sourceURL string) []*model.StatementRecord {
	var out []*model.StatementRecord
	for i, p := range r.Periods {
		if i >= len(r.Data) {
			break
		}
		raw := make(map[string]any, len(r.Data[i]))
		for f, v := range r.Data[i] {
			raw[f] = v
		}
		for _, st := range model.StatementTypes {
			vals := make(map[string]float64)
			for f, v := range r.Data[i] {
				if s, ok := fields.StatementOf(f); ok && s == st {
					vals[f] = v
				}
			}
			if len(vals) == 0 {
				continue
			}
			out = append(out, &model.StatementRecord{
				CompanyID:     companyID,
				StatementType: st,
				Nature:        nature,
				Period:        p,
				Audited:       p.Type == model.PeriodAnnual,
				Source:        source,
				SourceURL:     sourceURL,
				Values:        vals,
				RawItems:      raw,
			})
		}
	}
	return out
}

var std = New(nil)

// Extract parses the main financial table of html with the built-in alias tables.
func Extract(html string) (*Result, bool) {
	return std.Extract(html)
}
