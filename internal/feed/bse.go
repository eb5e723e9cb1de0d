package feed

import (
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/model"
)

// Source tags for BSE payloads.
const (
	SourceBSEScripList = "bse_scrip_list"
	SourceBSEAPI       = "bse_api"
)

// Public BSE endpoints.
var (
	BSEBaseURL    = "https://" + fetcher.HostBSE
	BSEAPIBaseURL = "https://" + fetcher.HostBSEAPI + "/BseIndiaAPI/api"
)

// BSEScripListURL lists every BSE equity scrip.
func BSEScripListURL() string {
	return BSEAPIBaseURL + "/ListofScripData/w?Group=&Atea=&Flag="
}

// BSEResultsURL lists a scrip's financial result filings.
func BSEResultsURL(scripCode string) string {
	return BSEAPIBaseURL + "/FinancialResult/w?Atea=&Flag=0&scripcode=" + url.QueryEscape(scripCode)
}

type bseItem map[string]any

// get returns the first non-blank value among keys as trimmed text.
func (b bseItem) get(keys ...string) string {
	for _, k := range keys {
		var s string
		switch v := b[k].(type) {
		case string:
			s = v
		case json.Number:
			s = v.String()
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if s = strings.TrimSpace(s); s != "" && !strings.EqualFold(s, "nan") {
			return s
		}
	}
	return ""
}

func decodeBSE(r io.Reader, what string) ([]bseItem, error) {
	var items []bseItem
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, eris.Wrapf(err, "feed: decode bse %s", what)
	}
	return items, nil
}

// ParseBSEScripList reads the BSE scrip list. Scrips with a status other
// than active, without a scrip code, or without an Indian ISIN are skipped.
func ParseBSEScripList(r io.Reader) ([]model.Company, error) {
	items, err := decodeBSE(r, "scrip list")
	if err != nil {
		return nil, err
	}

	out := make([]model.Company, 0, len(items))
	for _, it := range items {
		if st := it.get("Status"); st != "" && !strings.EqualFold(st, "active") {
			continue
		}
		code := it.get("SCRIP_CD", "scrip_id")
		isin := strings.ToUpper(it.get("ISIN_NUMBER", "Isin_Number"))
		if code == "" || !strings.HasPrefix(isin, "IN") {
			continue
		}
		c := model.Company{
			BSEScripCode: code,
			ISIN:         isin,
			Name:         it.get("Scrip_Name_1", "Scrip_Name", "Long_Name"),
			Industry:     it.get("INDUSTRY", "Industry"),
			Active:       true,
		}
		if c.Name == "" {
			c.Name = code
		}
		if fv, err := strconv.ParseFloat(it.get("FACE_VALUE", "Face_Value"), 64); err == nil && fv > 0 {
			c.FaceValue = &fv
		}
		out = append(out, c)
	}
	return out, nil
}

var bseDateLayouts = []string{"02-01-2006", "02-Jan-2006", "02/01/2006", "2006-01-02", "02 Jan 2006"}

// ParseBSEResults reads a scrip's financial result listing. Entries without
// a parseable period end are skipped.
func ParseBSEResults(r io.Reader) ([]Filing, error) {
	items, err := decodeBSE(r, "financial results")
	if err != nil {
		return nil, err
	}

	out := make([]Filing, 0, len(items))
	for _, it := range items {
		end, ok := parseDate(it.get("DATE", "TO_DATE"), bseDateLayouts)
		if !ok {
			continue
		}
		f := Filing{
			PeriodEnd: end,
			XBRLURL:   it.get("XBRL", "XBRLFILE"),
			Audited:   isAudited(it.get("AUDITED_STATUS")),
			Nature:    model.NatureStandalone,
		}
		if cs := strings.ToLower(it.get("CONSOLIDATED_STANDALONE")); strings.Contains(cs, "consolidated") && !strings.Contains(cs, "non") {
			f.Nature = model.NatureConsolidated
		}
		if fd, ok := parseDate(it.get("NEWS_DT", "DT_TM", "FILING_DATE"), bseDateLayouts); ok {
			f.FilingDate = &fd
		}
		out = append(out, f)
	}
	return out, nil
}
