package screen

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/model"
)

// Op is a comparison operator.
type Op string

const (
	OpLT Op = "<"
	OpGT Op = ">"
	OpLE Op = "<="
	OpGE Op = ">="
	OpEQ Op = "="
	OpNE Op = "!="
)

// Text fields compare against the company rather than its ratios.
const (
	FieldSector   = "sector"
	FieldIndustry = "industry"
)

// Condition is one "field op value" term.
type Condition struct {
	Field string
	Op    Op
	Num   float64
	Text  string
}

var (
	orSplit   = regexp.MustCompile(`(?i)\s+OR\s+`)
	andSplit  = regexp.MustCompile(`(?i)\s+AND\s+`)
	condition = regexp.MustCompile(`^(\w+)\s*(<=|>=|!=|<|>|=)\s*(.+)$`)
)

// ParseQuery reads a query such as "pe_ratio < 20 AND roe > 15 OR
// sector = 'IT'" into OR-ed groups of AND-ed conditions. AND binds tighter
// than OR. An empty query yields no groups.
func ParseQuery(q string) ([][]Condition, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	var groups [][]Condition
	for _, alt := range orSplit.Split(q, -1) {
		var group []Condition
		for _, term := range andSplit.Split(strings.TrimSpace(alt), -1) {
			c, err := parseCondition(strings.TrimSpace(term))
			if err != nil {
				return nil, err
			}
			group = append(group, c)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func parseCondition(term string) (Condition, error) {
	m := condition.FindStringSubmatch(term)
	if m == nil {
		return Condition{}, eris.Wrapf(ErrInvalidCriteria, "invalid condition %q", term)
	}
	c := Condition{Field: strings.ToLower(m[1]), Op: Op(m[2])}
	value := strings.Trim(strings.TrimSpace(m[3]), `'"`)

	switch {
	case c.Field == FieldSector || c.Field == FieldIndustry:
		if c.Op != OpEQ && c.Op != OpNE {
			return Condition{}, eris.Wrapf(ErrInvalidCriteria, "%s supports only = and !=", c.Field)
		}
		c.Text = value
	case isRatio(c.Field):
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Condition{}, eris.Wrapf(ErrInvalidCriteria, "%s: %q is not a number", c.Field, value)
		}
		c.Num = n
	default:
		return Condition{}, eris.Wrapf(ErrInvalidCriteria, "unknown field %q", c.Field)
	}
	return c, nil
}

// Holds reports whether row satisfies c. An undefined ratio satisfies no
// numeric condition.
func (c Condition) Holds(row model.CompanyRatios) bool {
	switch c.Field {
	case FieldSector, FieldIndustry:
		have := row.Company.Sector
		if c.Field == FieldIndustry {
			have = row.Company.Industry
		}
		eq := strings.EqualFold(have, c.Text)
		return eq == (c.Op == OpEQ)
	}

	p := row.Ratios.Values.Get(c.Field)
	if p == nil {
		return false
	}
	v := *p
	switch c.Op {
	case OpLT:
		return v < c.Num
	case OpGT:
		return v > c.Num
	case OpLE:
		return v <= c.Num
	case OpGE:
		return v >= c.Num
	case OpEQ:
		return v == c.Num
	case OpNE:
		return v != c.Num
	}
	return false
}
