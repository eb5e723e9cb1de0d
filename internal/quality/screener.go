package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
)

// DefaultScreenerURL is the public screener site.
const DefaultScreenerURL = "https://" + fetcher.HostScreener

// ScreenerName is recorded as the reference source of screener comparisons.
const ScreenerName = "screener.in"

// Reference is the reference values for one company.
type Reference struct {
	Source    string
	Values    map[string]float64
	PeriodEnd time.Time
}

// ReferenceSource fetches reference values for a company. A nil Reference
// with a nil error means the source has nothing for the company.
type ReferenceSource interface {
	Name() string
	Reference(ctx context.Context, c model.Company) (*Reference, error)
}

// Getter is the subset of fetcher.Fetcher used by ScreenerSource.
type Getter interface {
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// screenerAPIFields maps screener API keys to our field names.
var screenerAPIFields = map[string]string{
	"market_cap":     model.RatioMarketCap,
	"current_price":  "current_price",
	"pe_ratio":       model.RatioPE,
	"book_value":     model.RatioBookValuePerShare,
	"dividend_yield": model.RatioDividendYield,
	"roce":           model.RatioROCE,
	"roe":            model.RatioROE,
	"face_value":     "face_value",
	"sales":          fields.Revenue,
	"profit":         fields.NetProfit,
	"eps":            fields.EPSBasic,
}

// ScreenerSource reads reference values from screener.in: the JSON company
// API first, then the consolidated company page when the API answers with a
// non-200 status.
type ScreenerSource struct {
	baseURL string
	get     Getter
	now     func() time.Time
}

// NewScreenerSource returns a source rooted at baseURL (DefaultScreenerURL
// when empty).
func NewScreenerSource(baseURL string, g Getter) *ScreenerSource {
	if baseURL == "" {
		baseURL = DefaultScreenerURL
	}
	return &ScreenerSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		get:     g,
		now:     time.Now,
	}
}

// Name implements ReferenceSource.
func (s *ScreenerSource) Name() string { return ScreenerName }

// Reference implements ReferenceSource.
func (s *ScreenerSource) Reference(ctx context.Context, c model.Company) (*Reference, error) {
	symbol := c.Symbol()
	if symbol == "" {
		return nil, nil
	}

	values, err := s.fromAPI(ctx, symbol)
	if err != nil {
		var se *fetcher.StatusError
		if !errors.As(err, &se) {
			return nil, err
		}
		values, err = s.fromPage(ctx, symbol)
		if err != nil {
			return nil, err
		}
	}
	if len(values) == 0 {
		return nil, nil
	}

	y, m, d := s.now().Date()
	return &Reference{
		Source:    ScreenerName,
		Values:    values,
		PeriodEnd: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (s *ScreenerSource) fromAPI(ctx context.Context, symbol string) (map[string]float64, error) {
	body, err := s.get.Get(ctx, s.baseURL+"/api/company/"+symbol+"/", http.Header{
		"X-Requested-With": {"XMLHttpRequest"},
		"Accept":           {"application/json"},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "quality: screener api %s", symbol)
	}
	raw, err := fetcher.DecodeJSON[map[string]any](bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "quality: decode screener api %s", symbol)
	}
	return ParseScreenerAPI(*raw), nil
}

func (s *ScreenerSource) fromPage(ctx context.Context, symbol string) (map[string]float64, error) {
	body, err := s.get.Get(ctx, s.baseURL+"/company/"+symbol+"/consolidated/", nil)
	if err != nil {
		return nil, eris.Wrapf(err, "quality: screener page %s", symbol)
	}
	return ParseScreenerHTML(bytes.NewReader(body))
}

// ParseScreenerAPI maps a decoded API response to field values. Values that
// are not numbers are skipped.
func ParseScreenerAPI(raw map[string]any) map[string]float64 {
	out := make(map[string]float64)
	for key, field := range screenerAPIFields {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case json.Number:
			if f, err := t.Float64(); err == nil {
				out[field] = f
			}
		case float64:
			out[field] = t
		case string:
			if f, ok := ParseScreenerValue(t); ok {
				out[field] = f
			}
		}
	}
	return out
}

// ParseScreenerHTML reads the headline ratios block of a company page.
func ParseScreenerHTML(r io.Reader) (map[string]float64, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "quality: parse screener page")
	}

	out := make(map[string]float64)
	doc.Find("#top-ratios li").Each(func(_ int, li *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(li.Find("span.name").Text()))
		num := li.Find("span.number")
		if name == "" || num.Length() == 0 {
			return
		}
		field := topRatioField(name)
		if field == "" {
			return
		}
		if v, ok := ParseScreenerValue(num.First().Text()); ok {
			out[field] = v
		}
	})
	return out, nil
}

func topRatioField(name string) string {
	name = strings.ReplaceAll(name, "/", "")
	switch {
	case strings.Contains(name, "market cap"):
		return model.RatioMarketCap
	case strings.Contains(name, "pe") && (strings.Contains(name, "ratio") || strings.Contains(name, "stock")):
		return model.RatioPE
	case strings.Contains(name, "roe"):
		return model.RatioROE
	case strings.Contains(name, "roce"):
		return model.RatioROCE
	case strings.Contains(name, "debt") && strings.Contains(name, "equity"):
		return model.RatioDebtEquity
	}
	return ""
}

// ParseScreenerValue reads a screener figure such as "19,35,046 Cr." or
// "12.5 %". Values in lakhs are converted to crores.
func ParseScreenerValue(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	s = strings.NewReplacer(",", "", "%", "").Replace(s)

	mult := 1.0
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "cr"):
		s = strings.NewReplacer("Cr.", "", "cr.", "", "Cr", "", "cr", "").Replace(s)
	case strings.Contains(s, "L"):
		s = strings.ReplaceAll(s, "L", "")
		mult = 0.01
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, ok := numeric.Parse(s)
	if !ok {
		return 0, false
	}
	return v * mult, true
}
