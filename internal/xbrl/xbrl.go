// Package xbrl extracts financial facts from BSE/NSE XBRL instance documents.
package xbrl

import (
	"context"
	"encoding/xml"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/period"
)

// Infrastructure namespaces whose elements are never facts.
const (
	nsInstance = "http://www.xbrl.org/2003/instance"
	nsLinkbase = "http://www.xbrl.org/2003/linkbase"
	nsXLink    = "http://www.w3.org/1999/xlink"
)

var (
	auditIndicators  = []string{"AuditedUnaudited", "WhetherResultsAreAuditedOrUnaudited", "NatureOfReportStandaloneConsolidated"}
	natureIndicators = []string{"NatureOfReportStandaloneConsolidated", "StandaloneConsolidated", "TypeOfReport"}
	minorityFacts    = []string{"MinorityInterest", "NonControllingInterests"}
)

// Context is an XBRL reporting context: an entity and a duration or instant.
type Context struct {
	ID         string
	Entity     string
	Start      time.Time
	End        time.Time
	Instant    time.Time
	Dimensions map[string]string
}

// IsDuration reports whether the context has both a start and an end date.
func (c Context) IsDuration() bool {
	return !c.Start.IsZero() && !c.End.IsZero()
}

// Date returns the end date, or the instant for instant contexts.
func (c Context) Date() time.Time {
	if !c.End.IsZero() {
		return c.End
	}
	return c.Instant
}

// Fact is one tagged value in document order. Value is a float64 for
// numeric facts and a string otherwise.
type Fact struct {
	Name       string
	ContextRef string
	Value      any
}

// Result is the extraction of one reporting context.
type Result struct {
	Entity      string
	MainContext string
	Period      model.Period
	Audited     bool
	Nature      model.ResultNature
	Contexts    map[string]Context
	// Items holds canonical field values for facts under the main context.
	Items map[string]float64
	// RawItems is keyed by local element name and by "<name>_<contextRef>".
	RawItems map[string]any
}

// Extractor turns XBRL documents into canonical statement data.
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

// Extract parses the document and resolves it against its main context:
// the duration context with the latest end date, or the latest instant
// when no durations exist.
func (e *Extractor) Extract(ctx context.Context, r io.Reader) (*Result, error) {
	doc, err := decode(ctx, r)
	if err != nil {
		return nil, err
	}
	main, _ := mainContext(doc.order, doc.contexts)
	return e.resolve(doc, main), nil
}

// ExtractPeriods returns one result per distinct context date, newest first.
// Dates whose facts normalize to nothing are omitted.
func (e *Extractor) ExtractPeriods(ctx context.Context, r io.Reader) ([]*Result, error) {
	doc, err := decode(ctx, r)
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time][]string)
	for _, id := range doc.order {
		c := doc.contexts[id]
		if d := c.Date(); !d.IsZero() {
			byDate[d] = append(byDate[d], id)
		}
	}
	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })

	var out []*Result
	for _, d := range dates {
		main, _ := mainContext(byDate[d], doc.contexts)
		res := e.resolve(doc, main)
		if len(res.Items) > 0 {
			out = append(out, res)
		}
	}
	return out, nil
}

func (e *Extractor) resolve(doc *document, main *Context) *Result {
	res := &Result{
		Contexts: doc.contexts,
		Items:    make(map[string]float64),
		RawItems: make(map[string]any, len(doc.facts)*2),
	}
	if main != nil {
		res.MainContext = main.ID
		res.Entity = main.Entity
		if main.IsDuration() {
			res.Period = period.FromRange(main.Start, main.End)
		} else {
			pt := model.PeriodQuarterly
			if main.Instant.Month() == time.March {
				pt = model.PeriodAnnual
			}
			res.Period = period.FromEnd(main.Instant, pt)
		}
	}

	for _, f := range doc.facts {
		res.RawItems[f.Name] = f.Value
		if f.ContextRef == "" {
			continue
		}
		res.RawItems[f.Name+"_"+f.ContextRef] = f.Value

		v, numeric := f.Value.(float64)
		if !numeric {
			continue
		}
		if main == nil || f.ContextRef == main.ID {
			if c, ok := e.normalizer.Normalize(f.Name); ok {
				res.Items[c] = v
			}
		}
	}

	res.Audited = audited(res.RawItems)
	res.Nature = nature(res.RawItems)
	return res
}

// Statements splits the canonical items into one record per statement type
// present. Records share the result's period, nature and audited flag.
func (r *Result) Statements(companyID int64, source, sourceURL string) []*model.StatementRecord {
	var out []*model.StatementRecord
	for _, st := range model.StatementTypes {
		vals := make(map[string]float64)
		for name, v := range r.Items {
			if s, _ := fields.StatementOf(name); s == st {
				vals[name] = v
			}
		}
		if len(vals) == 0 {
			continue
		}
		out = append(out, &model.StatementRecord{
			CompanyID:     companyID,
			StatementType: st,
			Nature:        r.Nature,
			Period:        r.Period,
			Audited:       r.Audited,
			Source:        source,
			SourceURL:     sourceURL,
			Values:        vals,
			RawItems:      r.RawItems,
		})
	}
	return out
}

// mainContext picks the latest-ending duration, falling back to the latest
// instant. Ties prefer contexts without dimensional qualifiers, then
// document order.
func mainContext(ids []string, contexts map[string]Context) (*Context, bool) {
	var best *Context
	better := func(c Context) bool {
		if best == nil {
			return true
		}
		if !c.Date().Equal(best.Date()) {
			return c.Date().After(best.Date())
		}
		return len(c.Dimensions) == 0 && len(best.Dimensions) > 0
	}

	for _, wantDuration := range []bool{true, false} {
		for _, id := range ids {
			c := contexts[id]
			if wantDuration && !c.IsDuration() {
				continue
			}
			if !wantDuration && c.Instant.IsZero() {
				continue
			}
			if better(c) {
				cc := c
				best = &cc
			}
		}
		if best != nil {
			return best, true
		}
	}
	return nil, false
}

func audited(raw map[string]any) bool {
	for _, k := range auditIndicators {
		s, ok := raw[k].(string)
		if !ok {
			continue
		}
		s = strings.ToLower(s)
		if strings.Contains(s, "audited") && !strings.Contains(s, "unaudited") {
			return true
		}
	}
	return false
}

// nature reads the free-text nature indicators, then falls back to the
// presence of a minority interest fact, which only consolidated results carry.
func nature(raw map[string]any) model.ResultNature {
	for _, k := range natureIndicators {
		s, ok := raw[k].(string)
		if !ok {
			continue
		}
		s = strings.ToLower(s)
		if strings.Contains(s, "consolidated") {
			return model.NatureConsolidated
		}
		if strings.Contains(s, "standalone") {
			return model.NatureStandalone
		}
	}
	for _, k := range minorityFacts {
		switch v := raw[k].(type) {
		case float64:
			if v != 0 {
				return model.NatureConsolidated
			}
		case string:
			if v != "" {
				return model.NatureConsolidated
			}
		}
	}
	return model.NatureStandalone
}

type document struct {
	contexts map[string]Context
	order    []string
	facts    []Fact
}

type xmlContext struct {
	ID     string `xml:"id,attr"`
	Entity struct {
		Identifier string      `xml:"identifier"`
		Members    []xmlMember `xml:"segment>explicitMember"`
	} `xml:"entity"`
	Period struct {
		Start   string `xml:"startDate"`
		End     string `xml:"endDate"`
		Instant string `xml:"instant"`
	} `xml:"period"`
	Scenario []xmlMember `xml:"scenario>explicitMember"`
}

type xmlMember struct {
	Dimension string `xml:"dimension,attr"`
	Value     string `xml:",chardata"`
}

type xmlFact struct {
	Text string `xml:",chardata"`
}

func decode(ctx context.Context, r io.Reader) (*document, error) {
	dec := fetcher.NewXMLDecoder(r)

	doc := &document{contexts: make(map[string]Context)}
	sawRoot := false
	for n := 0; ; n++ {
		if n%1024 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "xbrl: context cancelled")
		}

		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "xbrl: read token")
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true

		if se.Name.Local == "context" {
			var xc xmlContext
			if err := dec.DecodeElement(&xc, &se); err != nil {
				return nil, eris.Wrap(err, "xbrl: decode context")
			}
			if xc.ID == "" {
				continue
			}
			if _, dup := doc.contexts[xc.ID]; !dup {
				doc.order = append(doc.order, xc.ID)
			}
			doc.contexts[xc.ID] = toContext(xc)
			continue
		}

		switch se.Name.Space {
		case "", nsInstance, nsLinkbase, nsXLink:
			continue
		}

		var xf xmlFact
		if err := dec.DecodeElement(&xf, &se); err != nil {
			return nil, eris.Wrapf(err, "xbrl: decode fact %s", se.Name.Local)
		}
		text := strings.TrimSpace(xf.Text)
		if text == "" {
			continue
		}
		doc.facts = append(doc.facts, Fact{
			Name:       se.Name.Local,
			ContextRef: attr(se, "contextRef"),
			Value:      factValue(text, attr(se, "scale")),
		})
	}
	if !sawRoot {
		return nil, eris.New("xbrl: empty document")
	}
	return doc, nil
}

func toContext(xc xmlContext) Context {
	c := Context{
		ID:      xc.ID,
		Entity:  strings.TrimSpace(xc.Entity.Identifier),
		Start:   parseDate(xc.Period.Start),
		End:     parseDate(xc.Period.End),
		Instant: parseDate(xc.Period.Instant),
	}
	members := append(xc.Entity.Members, xc.Scenario...)
	if len(members) > 0 {
		c.Dimensions = make(map[string]string, len(members))
		for _, m := range members {
			c.Dimensions[m.Dimension] = strings.TrimSpace(m.Value)
		}
	}
	return c
}

// factValue parses a numeric fact and applies its power-of-ten scale.
// Anything that is not a number is kept as text.
func factValue(text, scale string) any {
	d, err := decimal.NewFromString(strings.ReplaceAll(text, ",", ""))
	if err != nil {
		return text
	}
	if scale != "" {
		if s, err := strconv.Atoi(scale); err == nil {
			d = d.Shift(int32(s))
		}
	}
	f, _ := d.Float64()
	return f
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var std = New(nil)

// Extract parses r with the built-in alias tables.
func Extract(ctx context.Context, r io.Reader) (*Result, error) {
	return std.Extract(ctx, r)
}
