package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/quality"
	"github.com/sells-group/filings-cli/internal/screen"
	"github.com/sells-group/filings-cli/internal/store"
)

// Paging bounds per route.
const (
	defaultStatements = 40
	maxStatements     = 100
	defaultPrices     = 365
	maxPrices         = 1000
	defaultChecks     = 50
	maxChecks         = 200
	reportChecks      = 1000
)

// Price intervals.
const (
	IntervalDaily   = "daily"
	IntervalWeekly  = "weekly"
	IntervalMonthly = "monthly"
)

func (s *Server) getStatements(w http.ResponseWriter, r *http.Request) {
	c, ok := s.company(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	nature, ok := natureParam(w, r)
	if !ok {
		return
	}
	var (
		st  model.StatementType
		pt  model.PeriodType
		err error
	)
	if v := q.Get("statement_type"); v != "" {
		if st, err = model.ParseStatementType(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid statement_type")
			return
		}
	}
	if v := q.Get("period_type"); v != "" {
		if pt, err = model.ParsePeriodType(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid period_type")
			return
		}
	}
	limit, ok := boundedParam(w, q.Get("limit"), "limit", defaultStatements, maxStatements)
	if !ok {
		return
	}

	all, err := s.store.Statements(r.Context(), c.ID, asOf)
	if err != nil {
		s.internal(w, "list statements", err)
		return
	}
	out := []*model.StatementRecord{}
	for _, rec := range slices.Backward(all) {
		if rec.Nature != nature || (st != 0 && rec.StatementType != st) || (pt != 0 && rec.Period.Type != pt) {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// PricePoint is one OHLCV bar. Date is the last trading day in the bar.
type PricePoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries is a company's price history.
type PriceSeries struct {
	CompanyID int64        `json:"company_id"`
	Symbol    string       `json:"symbol"`
	Interval  string       `json:"interval"`
	Prices    []PricePoint `json:"prices"`
}

func (s *Server) getPrices(w http.ResponseWriter, r *http.Request) {
	c, ok := s.company(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	interval := q.Get("interval")
	switch interval {
	case "":
		interval = IntervalDaily
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
	default:
		writeError(w, http.StatusBadRequest, "invalid interval, want daily, weekly or monthly")
		return
	}
	to, ok := dateParam(w, q.Get("to"), "to", s.now())
	if !ok {
		return
	}
	from, ok := dateParam(w, q.Get("from"), "from", to.AddDate(-1, 0, 0))
	if !ok {
		return
	}
	limit, ok := boundedParam(w, q.Get("limit"), "limit", defaultPrices, maxPrices)
	if !ok {
		return
	}

	prices, err := s.store.Prices(r.Context(), c.ID, store.PriceFilter{From: from, To: to, Limit: limit})
	if err != nil {
		s.internal(w, "list prices", err)
		return
	}
	writeJSON(w, http.StatusOK, PriceSeries{
		CompanyID: c.ID,
		Symbol:    c.Symbol(),
		Interval:  interval,
		Prices:    Resample(prices, interval),
	})
}

func (s *Server) getLatestPrice(w http.ResponseWriter, r *http.Request) {
	c, ok := s.company(w, r)
	if !ok {
		return
	}
	asOf, ok := s.asOf(w, r)
	if !ok {
		return
	}
	p, err := s.store.LatestPrice(r.Context(), c.ID, asOf)
	if err != nil {
		s.internal(w, "latest price", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "no price data")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Resample rolls daily prices into bars of the interval, newest first.
// Weekly bars follow ISO weeks.
func Resample(prices []model.Price, interval string) []PricePoint {
	sorted := slices.Clone(prices)
	slices.SortFunc(sorted, func(a, b model.Price) int { return a.TradeDate.Compare(b.TradeDate) })

	bucket := func(t time.Time) [2]int { return [2]int{t.Year()*100 + int(t.Month()), t.Day()} }
	switch interval {
	case IntervalWeekly:
		bucket = func(t time.Time) [2]int {
			y, wk := t.ISOWeek()
			return [2]int{y, wk}
		}
	case IntervalMonthly:
		bucket = func(t time.Time) [2]int { return [2]int{t.Year(), int(t.Month())} }
	}

	out := []PricePoint{}
	var cur [2]int
	for i, p := range sorted {
		if k := bucket(p.TradeDate); i == 0 || k != cur {
			cur = k
			out = append(out, PricePoint{Date: p.TradeDate, Open: p.Open, High: p.High, Low: p.Low, Close: p.Close, Volume: p.Volume})
			continue
		}
		bar := &out[len(out)-1]
		bar.Date = p.TradeDate
		bar.High = max(bar.High, p.High)
		bar.Low = min(bar.Low, p.Low)
		bar.Close = p.Close
		bar.Volume += p.Volume
	}
	slices.Reverse(out)
	return out
}

func (s *Server) getQuality(w http.ResponseWriter, r *http.Request) {
	c, ok := s.company(w, r)
	if !ok {
		return
	}
	limit, ok := boundedParam(w, r.URL.Query().Get("limit"), "limit", defaultChecks, maxChecks)
	if !ok {
		return
	}
	checks, err := s.store.QualityChecks(r.Context(), store.QualityFilter{CompanyID: c.ID, Limit: limit})
	if err != nil {
		s.internal(w, "list quality checks", err)
		return
	}
	if checks == nil {
		checks = []model.QualityCheckResult{}
	}
	writeJSON(w, http.StatusOK, checks)
}

// QualityReport summarises the quality checks of a trailing window.
type QualityReport struct {
	Since time.Time `json:"since"`
	*quality.Report
}

func (s *Server) qualityReport(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"), 7)
	if err != nil || days == 0 {
		writeError(w, http.StatusBadRequest, "invalid days")
		return
	}
	since := s.now().AddDate(0, 0, -days)
	checks, err := s.store.QualityChecks(r.Context(), store.QualityFilter{Since: since, Limit: reportChecks})
	if err != nil {
		s.internal(w, "quality report", err)
		return
	}

	rep := quality.NewReport()
	companies := make(map[int64]struct{})
	for _, c := range checks {
		companies[c.CompanyID] = struct{}{}
		rep.Add(c)
	}
	rep.Companies = len(companies)
	rep.Finish()
	writeJSON(w, http.StatusOK, QualityReport{Since: since, Report: rep})
}

// screenQuery serves GET /v1/screen?q=... with sector and industry filters.
func (s *Server) screenQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.screen(w, r, screen.Criteria{
		Query:    q.Get("q"),
		Sector:   q.Get("sector"),
		Industry: q.Get("industry"),
	})
}

// screenFilters serves POST /v1/screen with a JSON filter body.
func (s *Server) screenFilters(w http.ResponseWriter, r *http.Request) {
	var crit screen.Criteria
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&crit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter body: "+err.Error())
		return
	}
	s.screen(w, r, crit)
}

func (s *Server) screen(w http.ResponseWriter, r *http.Request, crit screen.Criteria) {
	q := r.URL.Query()
	nature, ok := natureParam(w, r)
	if !ok {
		return
	}
	crit.Nature = nature
	crit.SortBy = q.Get("sort_by")
	switch q.Get("sort_order") {
	case "", "desc":
	case "asc":
		crit.Ascending = true
	default:
		writeError(w, http.StatusBadRequest, "invalid sort_order, want asc or desc")
		return
	}
	if crit.Limit, ok = boundedParam(w, q.Get("limit"), "limit", screen.DefaultLimit, screen.MaxLimit); !ok {
		return
	}
	off, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	crit.Offset = off

	res, err := s.screener.Run(r.Context(), crit)
	if errors.Is(err, screen.ErrInvalidCriteria) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internal(w, "screen", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// boundedParam reads a positive integer no larger than upper.
func boundedParam(w http.ResponseWriter, v, name string, def, upper int) (int, bool) {
	n, err := intParam(v, def)
	if err != nil || n == 0 || n > upper {
		writeError(w, http.StatusBadRequest, "invalid "+name+", want 1-"+strconv.Itoa(upper))
		return 0, false
	}
	return n, true
}

func dateParam(w http.ResponseWriter, v, name string, def time.Time) (time.Time, bool) {
	if v == "" {
		return def, true
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+", want YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
