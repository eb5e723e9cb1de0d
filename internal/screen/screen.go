// Package screen filters companies on their latest TTM ratios.
package screen

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/model"
)

// Paging limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// DefaultSortBy is the ratio results are ordered by when none is given.
const DefaultSortBy = model.RatioMarketCap

// ErrInvalidCriteria marks criteria that cannot be evaluated.
var ErrInvalidCriteria = errors.New("screen: invalid criteria")

// Source supplies each active company's latest TTM ratio set.
type Source interface {
	LatestTTMRatios(ctx context.Context, nature model.ResultNature) ([]model.CompanyRatios, error)
}

// Range bounds a ratio inclusively. A nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Criteria selects and orders companies. Ranges, Sector, Industry and Query
// must all hold for a company to match.
type Criteria struct {
	Ranges   map[string]Range
	Sector   string
	Industry string
	Query    string

	Nature    model.ResultNature
	SortBy    string
	Ascending bool
	Limit     int
	Offset    int
}

// UnmarshalJSON reads a filter body: query, sector and industry as text and
// every other key as a ratio range.
func (c *Criteria) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(ErrInvalidCriteria, err.Error())
	}
	for k, v := range raw {
		var err error
		switch k {
		case "query":
			err = json.Unmarshal(v, &c.Query)
		case "sector":
			err = json.Unmarshal(v, &c.Sector)
		case "industry":
			err = json.Unmarshal(v, &c.Industry)
		default:
			if !isRatio(k) {
				return eris.Wrapf(ErrInvalidCriteria, "unknown filter %q", k)
			}
			var rg Range
			if err = json.Unmarshal(v, &rg); err == nil {
				if c.Ranges == nil {
					c.Ranges = make(map[string]Range)
				}
				c.Ranges[k] = rg
			}
		}
		if err != nil {
			return eris.Wrapf(ErrInvalidCriteria, "filter %q: %v", k, err)
		}
	}
	return nil
}

// Match is one company that passed the screen.
type Match struct {
	CompanyID int64        `json:"company_id"`
	Symbol    string       `json:"symbol"`
	Name      string       `json:"company_name"`
	Sector    string       `json:"sector,omitempty"`
	Industry  string       `json:"industry,omitempty"`
	PeriodEnd time.Time    `json:"period_end"`
	Ratios    model.Ratios `json:"ratios"`
}

// Result is one page of matches. TotalMatches counts every match before
// paging.
type Result struct {
	Query         string    `json:"query,omitempty"`
	SortBy        string    `json:"sort_by"`
	TotalMatches  int       `json:"total_matches"`
	Results       []Match   `json:"results"`
	DataTimestamp time.Time `json:"data_timestamp"`
}

// Screener evaluates criteria against a Source.
type Screener struct {
	src Source
	now func() time.Time
	log *zap.Logger
}

// New creates a Screener over src.
func New(src Source) *Screener {
	return &Screener{
		src: src,
		now: func() time.Time { return time.Now().UTC() },
		log: zap.L().With(zap.String("component", "screen")),
	}
}

// Run screens every company with a latest TTM set of the requested nature.
func (s *Screener) Run(ctx context.Context, c Criteria) (*Result, error) {
	groups, err := ParseQuery(c.Query)
	if err != nil {
		return nil, err
	}
	for name := range c.Ranges {
		if !isRatio(name) {
			return nil, eris.Wrapf(ErrInvalidCriteria, "unknown ratio %q", name)
		}
	}
	if c.Nature == 0 {
		c.Nature = model.NatureConsolidated
	}
	sortBy := strings.ToLower(strings.TrimSpace(c.SortBy))
	if !isRatio(sortBy) {
		sortBy = DefaultSortBy
	}
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	offset := max(c.Offset, 0)

	rows, err := s.src.LatestTTMRatios(ctx, c.Nature)
	if err != nil {
		return nil, eris.Wrap(err, "screen: load ratios")
	}

	var matched []model.CompanyRatios
	for _, row := range rows {
		if c.matches(row, groups) {
			matched = append(matched, row)
		}
	}
	slices.SortStableFunc(matched, byRatio(sortBy, c.Ascending))

	res := &Result{
		Query:         c.Query,
		SortBy:        sortBy,
		TotalMatches:  len(matched),
		Results:       []Match{},
		DataTimestamp: s.now(),
	}
	if offset < len(matched) {
		for _, row := range matched[offset:min(offset+limit, len(matched))] {
			res.Results = append(res.Results, Match{
				CompanyID: row.Company.ID,
				Symbol:    row.Company.Symbol(),
				Name:      row.Company.Name,
				Sector:    row.Company.Sector,
				Industry:  row.Company.Industry,
				PeriodEnd: row.Ratios.PeriodEnd,
				Ratios:    row.Ratios.Values,
			})
		}
	}
	s.log.Debug("screened companies",
		zap.Int("candidates", len(rows)),
		zap.Int("matches", len(matched)),
		zap.String("sort_by", sortBy),
	)
	return res, nil
}

func (c Criteria) matches(row model.CompanyRatios, groups [][]Condition) bool {
	if c.Sector != "" && !strings.EqualFold(c.Sector, row.Company.Sector) {
		return false
	}
	if c.Industry != "" && !strings.EqualFold(c.Industry, row.Company.Industry) {
		return false
	}
	for name, rg := range c.Ranges {
		v := row.Ratios.Values.Get(name)
		if v == nil || math.IsNaN(*v) {
			return false
		}
		if (rg.Min != nil && *v < *rg.Min) || (rg.Max != nil && *v > *rg.Max) {
			return false
		}
	}
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		if allHold(g, row) {
			return true
		}
	}
	return false
}

func allHold(g []Condition, row model.CompanyRatios) bool {
	for _, cond := range g {
		if !cond.Holds(row) {
			return false
		}
	}
	return true
}

// byRatio orders by one ratio with undefined values last in either
// direction, then by company id.
func byRatio(name string, asc bool) func(a, b model.CompanyRatios) int {
	return func(a, b model.CompanyRatios) int {
		va, vb := a.Ratios.Values.Get(name), b.Ratios.Values.Get(name)
		switch {
		case va == nil && vb == nil:
		case va == nil:
			return 1
		case vb == nil:
			return -1
		case *va != *vb:
			if (*va < *vb) == asc {
				return -1
			}
			return 1
		}
		switch {
		case a.Company.ID < b.Company.ID:
			return -1
		case a.Company.ID > b.Company.ID:
			return 1
		}
		return 0
	}
}

func isRatio(name string) bool {
	return slices.Contains(model.RatioNames, name)
}
