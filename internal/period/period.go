// Package period parses the period descriptors found in filing table
// headers, archive filenames and API period tags.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/filings-cli/internal/model"
)

var (
	endedRe   = regexp.MustCompile(`(?i)(quarter|half\s*year|nine\s*months?|year)\s+ended\s+(\d{1,2})[-/\s]([a-z]{3})[a-z]*[-/\s](\d{2,4})`)
	qfyRe     = regexp.MustCompile(`(?i)q([1-4])\s*fy\s*(\d{2,4})`)
	fyRe      = regexp.MustCompile(`(?i)fy\s*(\d{2,4})`)
	rangeRe   = regexp.MustCompile(`(\d{4})[-/](\d{2,4})`)
	monthRe   = regexp.MustCompile(`(?i)(\d{1,2}[-/\s])?(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[-/\s]*(\d{2,4})`)
	fileQRe   = regexp.MustCompile(`q([1-4])[\s_]*(?:fy)?(\d{2,4})`)
	fileFYRe  = regexp.MustCompile(`(?:annual|fy)[\s_]*(\d{2,4})`)
	monthAbbr = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// Parse recognizes a period descriptor. Forms are tried in order:
//
//	Quarter ended 30-Jun-2024   (also Half Year / Nine Months / Year)
//	Q1 FY24, Q2FY2024
//	FY2024, FY 24
//	2023-24, 2023-2024
//	Sep 2023, 31-Mar-2024
//
// The boolean is false when no form matches.
func Parse(text string) (model.Period, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Period{}, false
	}

	if p, ok := parseEnded(text); ok {
		return p, true
	}
	if m := qfyRe.FindStringSubmatch(text); m != nil {
		q, _ := strconv.Atoi(m[1])
		if fy, ok := expandYear(m[2]); ok {
			return Quarter(fy, q), true
		}
	}
	if m := fyRe.FindStringSubmatch(text); m != nil && !strings.ContainsAny(text, "qQ") {
		if fy, ok := expandYear(m[1]); ok {
			return FiscalYear(fy), true
		}
	}
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		start, _ := strconv.Atoi(m[1])
		endStr := m[2]
		if len(endStr) == 2 {
			endStr = m[1][:2] + endStr
		}
		if end, err := strconv.Atoi(endStr); err == nil && end-start == 1 {
			return FiscalYear(end), true
		}
	}
	if p, ok := parseMonth(text); ok {
		return p, true
	}
	return model.Period{}, false
}

func parseEnded(text string) (model.Period, bool) {
	m := endedRe.FindStringSubmatch(text)
	if m == nil {
		return model.Period{}, false
	}
	day, _ := strconv.Atoi(m[2])
	mon, ok := monthAbbr[strings.ToLower(m[3])]
	if !ok {
		return model.Period{}, false
	}
	year, ok := expandYear(m[4])
	if !ok {
		return model.Period{}, false
	}
	end, ok := date(year, mon, day)
	if !ok {
		return model.Period{}, false
	}

	kind := strings.ToLower(m[1])
	var pt model.PeriodType
	switch {
	case strings.HasPrefix(kind, "quarter"):
		pt = model.PeriodQuarterly
	case strings.HasPrefix(kind, "half"):
		pt = model.PeriodHalfYearly
	case strings.HasPrefix(kind, "nine"):
		pt = model.PeriodNineMonths
	default:
		pt = model.PeriodAnnual
	}
	return FromEnd(end, pt), true
}

func parseMonth(text string) (model.Period, bool) {
	m := monthRe.FindStringSubmatch(text)
	if m == nil {
		return model.Period{}, false
	}
	mon := monthAbbr[strings.ToLower(m[2])]
	year, ok := expandYear(m[3])
	if !ok {
		return model.Period{}, false
	}

	var end time.Time
	if dayPart := strings.Trim(m[1], "-/ "); dayPart != "" {
		day, _ := strconv.Atoi(dayPart)
		if end, ok = date(year, mon, day); !ok {
			return model.Period{}, false
		}
	} else {
		end = MonthEnd(year, mon)
	}

	pt := model.PeriodQuarterly
	if mon == time.March {
		pt = model.PeriodAnnual
	}
	return FromEnd(end, pt), true
}

// ParseFilename reads the period out of an archive filename such as
// "Q1_2010.html", "q2fy11.htm" or "Annual_2010.html".
func ParseFilename(name string) (model.Period, bool) {
	name = strings.ToLower(name)
	if m := fileQRe.FindStringSubmatch(name); m != nil {
		q, _ := strconv.Atoi(m[1])
		if fy, ok := expandYear(m[2]); ok {
			return Quarter(fy, q), true
		}
	}
	if m := fileFYRe.FindStringSubmatch(name); m != nil {
		if fy, ok := expandYear(m[1]); ok {
			return FiscalYear(fy), true
		}
	}
	return model.Period{}, false
}

// Quarter returns quarter q (1-4) of Indian fiscal year fy. Q1 ends in June
// of fy-1 and Q4 ends in March of fy.
func Quarter(fy, q int) model.Period {
	var end time.Time
	switch q {
	case 1:
		end = MonthEnd(fy-1, time.June)
	case 2:
		end = MonthEnd(fy-1, time.September)
	case 3:
		end = MonthEnd(fy-1, time.December)
	default:
		q = 4
		end = MonthEnd(fy, time.March)
	}
	return model.Period{
		Start:      Start(end, model.PeriodQuarterly),
		End:        end,
		Type:       model.PeriodQuarterly,
		FiscalYear: Label(fy),
		Quarter:    q,
	}
}

// FiscalYear returns the annual period Apr 1 of fy-1 through Mar 31 of fy.
func FiscalYear(fy int) model.Period {
	return model.Period{
		Start:      time.Date(fy-1, time.April, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(fy, time.March, 31, 0, 0, 0, 0, time.UTC),
		Type:       model.PeriodAnnual,
		FiscalYear: Label(fy),
	}
}

// FromEnd builds a period of type pt that ends on end.
func FromEnd(end time.Time, pt model.PeriodType) model.Period {
	end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	p := model.Period{
		Start:      Start(end, pt),
		End:        end,
		Type:       pt,
		FiscalYear: Label(FiscalYearOf(end)),
	}
	if pt == model.PeriodQuarterly {
		p.Quarter = QuarterOf(end)
	}
	return p
}

// Start returns the first day of a period of type pt ending on end: end
// stepped back pt.Months() months, clamped to the target month's length,
// then forward one day. A 30-Jun quarter therefore starts on 31-Mar.
func Start(end time.Time, pt model.PeriodType) time.Time {
	n := pt.Months()
	if n == 0 {
		n = 3
	}
	return AddMonths(end, -n).AddDate(0, 0, 1)
}

// AddMonths shifts t by n months, clamping the day to the target month's
// length (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := MonthEnd(first.Year(), first.Month()).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of the month.
func MonthEnd(year int, m time.Month) time.Time {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC)
}

// IsMonthEnd reports whether t falls on the last day of its month.
func IsMonthEnd(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}

// FiscalYearOf returns the Indian fiscal year containing t.
func FiscalYearOf(t time.Time) int {
	if t.Month() >= time.April {
		return t.Year() + 1
	}
	return t.Year()
}

// QuarterOf returns the fiscal quarter (1-4) containing t.
func QuarterOf(t time.Time) int {
	switch t.Month() {
	case time.April, time.May, time.June:
		return 1
	case time.July, time.August, time.September:
		return 2
	case time.October, time.November, time.December:
		return 3
	default:
		return 4
	}
}

// Label formats a fiscal year as "FY2024".
func Label(fy int) string {
	return fmt.Sprintf("FY%d", fy)
}

// expandYear accepts two- or four-digit years. Two-digit years pivot at 50:
// "24" is 2024 and "98" is 1998.
func expandYear(s string) (int, bool) {
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	switch len(s) {
	case 2:
		if y < 50 {
			return 2000 + y, true
		}
		return 1900 + y, true
	case 4:
		return y, true
	default:
		return 0, false
	}
}

func date(year int, m time.Month, day int) (time.Time, bool) {
	t := time.Date(year, m, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != m {
		return time.Time{}, false
	}
	return t, true
}

// Classify infers the period type of a reporting window from its length.
func Classify(start, end time.Time) model.PeriodType {
	days := end.Sub(start).Hours() / 24
	switch {
	case days < 135:
		return model.PeriodQuarterly
	case days < 225:
		return model.PeriodHalfYearly
	case days < 315:
		return model.PeriodNineMonths
	default:
		return model.PeriodAnnual
	}
}

// FromRange builds a period from an explicit start and end date.
func FromRange(start, end time.Time) model.Period {
	p := FromEnd(end, Classify(start, end))
	p.Start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	return p
}
