package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/ttm"
)

// OurValues supplies the quality checker with our TTM figures and the ratios
// computed from them as of a fixed date. Consolidated figures are preferred
// when both natures exist.
type OurValues struct {
	computer *Computer
	asOf     time.Time
}

// NewOurValues creates an OurValues reading through c.
func NewOurValues(c *Computer, asOf time.Time) *OurValues {
	return &OurValues{computer: c, asOf: asOf}
}

// OurValues returns the TTM field values merged with the non-nil TTM ratios,
// and the period end they describe.
func (o *OurValues) OurValues(ctx context.Context, c model.Company) (map[string]float64, time.Time, error) {
	for _, nature := range model.ResultNatures {
		data, set, err := o.computer.ttmSnapshot(ctx, c, o.asOf, nature)
		if errors.Is(err, ttm.ErrNoStatements) {
			continue
		}
		if err != nil {
			return nil, time.Time{}, err
		}
		out := data.Values()
		for name, v := range set.Values {
			if v != nil {
				out[name] = *v
			}
		}
		return out, set.PeriodEnd, nil
	}
	return nil, time.Time{}, eris.Wrapf(ttm.ErrNoStatements, "company %d", c.ID)
}
