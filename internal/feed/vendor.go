package feed

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/fields"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/period"
)

// SourceVendor tags statements read from a vendor field map payload.
const SourceVendor = "vendor_map"

// vendorStatement is one entry of a vendor payload. The period is either a
// free-text label or an explicit end date with a period type.
type vendorStatement struct {
	StatementType string         `json:"statement_type"`
	Nature        string         `json:"nature"`
	Period        string         `json:"period"`
	PeriodEnd     string         `json:"period_end"`
	PeriodType    string         `json:"period_type"`
	Items         map[string]any `json:"items"`
}

// ParseVendorMaps reads a JSON array of raw vendor statements:
//
//	[{"statement_type": "profit_loss", "nature": "consolidated",
//	  "period": "Q1 FY25", "items": {"Net Sales": "1,234.5", ...}}]
//
// Item names are resolved through n (nil means the built-in tables). Nature
// defaults to standalone. An entry with an unknown statement type, nature or
// period fails the whole payload.
func ParseVendorMaps(r io.Reader, companyID int64, n *fields.Normalizer) ([]*model.StatementRecord, error) {
	var raw []vendorStatement
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "feed: decode vendor statements")
	}

	out := make([]*model.StatementRecord, 0, len(raw))
	for i, v := range raw {
		st, err := model.ParseStatementType(v.StatementType)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: vendor entry %d", i)
		}
		nature := model.NatureStandalone
		if strings.TrimSpace(v.Nature) != "" {
			if nature, err = model.ParseResultNature(v.Nature); err != nil {
				return nil, eris.Wrapf(err, "feed: vendor entry %d", i)
			}
		}
		p, err := v.period()
		if err != nil {
			return nil, eris.Wrapf(err, "feed: vendor entry %d", i)
		}
		rec := FromMap(n, companyID, st, nature, p, v.Items)
		rec.Source = SourceVendor
		out = append(out, rec)
	}
	return out, nil
}

func (v vendorStatement) period() (model.Period, error) {
	if strings.TrimSpace(v.Period) != "" {
		p, ok := period.Parse(v.Period)
		if !ok {
			return model.Period{}, eris.Errorf("unparseable period %q", v.Period)
		}
		return p, nil
	}
	end, ok := parseDate(v.PeriodEnd, []string{time.DateOnly, "02-Jan-2006", "02-01-2006"})
	if !ok {
		return model.Period{}, eris.Errorf("missing period or period_end")
	}
	pt, err := model.ParsePeriodType(v.PeriodType)
	if err != nil {
		return model.Period{}, err
	}
	return period.FromEnd(end, pt), nil
}
