// Package numeric parses locale-formatted numeric text from filings.
package numeric

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroTokens are cell markers that mean "nothing reported".
var zeroTokens = map[string]bool{
	"":    true,
	"-":   true,
	"--":  true,
	"—":   true,
	"–":   true,
	"na":  true,
	"n/a": true,
	"nil": true,
}

var (
	currencyRe = regexp.MustCompile(`[₹$€£]`)
	rupeeRe    = regexp.MustCompile(`(?i)rs\.?`)
	unitRe     = regexp.MustCompile(`(?i)([\d)])\s*(?:crores?|cr|lakhs?|l)\.?$`)
)

// Parse converts a filing cell such as "(1,234.50)" or "₹ 2,000" to a float.
// Dash, empty, NA and nil markers parse to zero. Parentheses negate. A
// trailing Cr or L unit token is dropped but no unit scaling is applied:
// values are taken as already expressed in the source's single unit. The boolean is false when the text is not a number.
func Parse(text string) (float64, bool) {
	d, ok := ParseDecimal(text)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// ParseDecimal is Parse without the float conversion.
func ParseDecimal(text string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(text)
	if zeroTokens[strings.ToLower(s)] {
		return decimal.Zero, true
	}

	s = unitRe.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.Join(strings.Fields(s), "")

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}

	s = currencyRe.ReplaceAllString(s, "")
	s = rupeeRe.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

// Round2 rounds v to two decimal places. Rounding works on the exact binary
// value, so a stored 2.675 (really 2.67499...) becomes 2.67 and exact ties
// such as 0.125 go to the even digit.
func Round2(v float64) float64 {
	return Round(v, 2)
}

// Round rounds v to places decimal places with the same semantics as Round2.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return f
}
