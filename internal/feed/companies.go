package feed

import (
	"bytes"
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
)

// listedSeries are the NSE series imported from the equity list.
var listedSeries = map[string]bool{"EQ": true, "BE": true, "SM": true, "ST": true, "BZ": true}

// Company sheet column aliases.
var (
	colCoSymbol = []string{"SYMBOL", "NSE SYMBOL", "NSE_SYMBOL"}
	colCoBSE    = []string{"BSE SCRIP CODE", "BSE_SCRIP_CODE", "SCRIP_CD", "SCRIP CODE"}
	colCoName   = []string{"NAME OF COMPANY", "COMPANY NAME", "COMPANY_NAME", "NAME"}
	colCoISIN   = []string{"ISIN NUMBER", "ISIN", "ISIN_NUMBER"}
	colCoSeries = []string{"SERIES"}
	colCoFace   = []string{"FACE VALUE", "FACE_VALUE"}
	colCoShares = []string{"SHARES OUTSTANDING", "SHARES_OUTSTANDING", "ISSUED SHARES"}
	colCoInd    = []string{"INDUSTRY"}
	colCoSector = []string{"SECTOR"}
)

// ParseEquityList reads the NSE EQUITY_L.csv listing.
func ParseEquityList(ctx context.Context, data []byte) ([]model.Company, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{})

	var out []model.Company
	for row := range rowCh {
		c, ok := companyFromRow(row.Get)
		if ok {
			out = append(out, c)
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "feed: read equity list")
	}
	return out, nil
}

// ParseCompanySheet reads a company master from the first sheet of an XLSX
// workbook. The first row is the header; columns use the same names as the
// equity list plus optional BSE scrip code, industry, sector and shares
// outstanding.
func ParseCompanySheet(data []byte) ([]model.Company, error) {
	rows, err := fetcher.ReadXLSX(data, fetcher.XLSXOptions{})
	if err != nil {
		return nil, eris.Wrap(err, "feed: read company sheet")
	}
	if len(rows) == 0 {
		return nil, eris.New("feed: company sheet is empty")
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		header[strings.ToUpper(strings.TrimSpace(h))] = i
	}

	var out []model.Company
	for _, r := range rows[1:] {
		get := func(cols ...string) (string, bool) {
			for _, c := range cols {
				if i, ok := header[c]; ok && i < len(r) {
					return strings.TrimSpace(r[i]), true
				}
			}
			return "", false
		}
		if c, ok := companyFromRow(get); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// companyFromRow builds a company from a header-keyed row. Rows without an
// ISIN or with a non-listed series are rejected.
func companyFromRow(get func(...string) (string, bool)) (model.Company, bool) {
	c := model.Company{Active: true}
	c.NSESymbol, _ = get(colCoSymbol...)
	c.BSEScripCode, _ = get(colCoBSE...)
	c.Name, _ = get(colCoName...)
	c.ISIN, _ = get(colCoISIN...)
	c.Industry, _ = get(colCoInd...)
	c.Sector, _ = get(colCoSector...)

	if s, ok := get(colCoSeries...); ok && s != "" && !listedSeries[strings.ToUpper(s)] {
		return model.Company{}, false
	}
	if c.ISIN == "" || (c.NSESymbol == "" && c.BSEScripCode == "") {
		return model.Company{}, false
	}

	if s, ok := get(colCoFace...); ok && s != "" {
		if v, ok := numeric.Parse(s); ok && v > 0 {
			c.FaceValue = &v
		}
	}
	if s, ok := get(colCoShares...); ok && s != "" {
		if v, ok := numeric.Parse(s); ok && v > 0 {
			c.SharesOutstanding = &v
		}
	}
	return c, true
}
