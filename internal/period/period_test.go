package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/filings-cli/internal/model"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		start   time.Time
		end     time.Time
		pt      model.PeriodType
		fy      string
		quarter int
	}{
		{"Q1 FY24", d(2023, 3, 31), d(2023, 6, 30), model.PeriodQuarterly, "FY2024", 1},
		{"Q2FY2024", d(2023, 7, 1), d(2023, 9, 30), model.PeriodQuarterly, "FY2024", 2},
		{"q3 fy 24", d(2023, 10, 1), d(2023, 12, 31), model.PeriodQuarterly, "FY2024", 3},
		{"Q4 FY24", d(2024, 1, 1), d(2024, 3, 31), model.PeriodQuarterly, "FY2024", 4},
		{"FY2024", d(2023, 4, 1), d(2024, 3, 31), model.PeriodAnnual, "FY2024", 0},
		{"FY 24", d(2023, 4, 1), d(2024, 3, 31), model.PeriodAnnual, "FY2024", 0},
		{"2023-24", d(2023, 4, 1), d(2024, 3, 31), model.PeriodAnnual, "FY2024", 0},
		{"2023-2024", d(2023, 4, 1), d(2024, 3, 31), model.PeriodAnnual, "FY2024", 0},
		{"Quarter ended 30-Jun-2024", d(2024, 3, 31), d(2024, 6, 30), model.PeriodQuarterly, "FY2025", 1},
		{"Year ended 31-Mar-2024", d(2023, 4, 1), d(2024, 3, 31), model.PeriodAnnual, "FY2024", 0},
		{"Half Year ended 30-Sep-2023", d(2023, 3, 31), d(2023, 9, 30), model.PeriodHalfYearly, "FY2024", 0},
		{"Nine Months ended 31-Dec-2023", d(2023, 4, 1), d(2023, 12, 31), model.PeriodNineMonths, "FY2024", 0},
		{"Sep 2023", d(2023, 7, 1), d(2023, 9, 30), model.PeriodQuarterly, "FY2024", 2},
		{"March 2024", d(2023, 4, 1), d(2024, 3, 31), model.PeriodAnnual, "FY2024", 0},
		{"31-Mar-2024", d(2023, 4, 1), d(2024, 3, 31), model.PeriodAnnual, "FY2024", 0},
		{"Dec-23", d(2023, 10, 1), d(2023, 12, 31), model.PeriodQuarterly, "FY2024", 3},
		{"Feb 2024", d(2023, 11, 30), d(2024, 2, 29), model.PeriodQuarterly, "FY2024", 4},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, ok := Parse(tt.in)
			require.True(t, ok)
			assert.Equal(t, tt.start, p.Start, "start")
			assert.Equal(t, tt.end, p.End, "end")
			assert.Equal(t, tt.pt, p.Type)
			assert.Equal(t, tt.fy, p.FiscalYear)
			assert.Equal(t, tt.quarter, p.Quarter)
		})
	}
}

func TestParse_Unrecognized(t *testing.T) {
	for _, in := range []string{"", "Particulars", "Audited", "2020-22", "Quarter ended 31-Jun-2024"} {
		_, ok := Parse(in)
		assert.False(t, ok, "input: %q", in)
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		in  string
		end time.Time
		pt  model.PeriodType
		fy  string
	}{
		{"Q1_2010.html", d(2009, 6, 30), model.PeriodQuarterly, "FY2010"},
		{"results/q2fy11.htm", d(2010, 9, 30), model.PeriodQuarterly, "FY2011"},
		{"Q4_98.html", d(1998, 3, 31), model.PeriodQuarterly, "FY1998"},
		{"Annual_2010.html", d(2010, 3, 31), model.PeriodAnnual, "FY2010"},
		{"FY2012.htm", d(2012, 3, 31), model.PeriodAnnual, "FY2012"},
	}
	for _, tt := range tests {
		p, ok := ParseFilename(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.end, p.End, tt.in)
		assert.Equal(t, tt.pt, p.Type, tt.in)
		assert.Equal(t, tt.fy, p.FiscalYear, tt.in)
	}

	_, ok := ParseFilename("index.html")
	assert.False(t, ok)
}

func TestStart_StepsBackWholeMonths(t *testing.T) {
	assert.Equal(t, d(2023, 3, 31), Start(d(2023, 6, 30), model.PeriodQuarterly))
	assert.Equal(t, d(2024, 3, 31), Start(d(2024, 9, 30), model.PeriodHalfYearly))
	assert.Equal(t, d(2024, 4, 1), Start(d(2024, 12, 31), model.PeriodNineMonths))
	assert.Equal(t, d(2024, 1, 1), Start(d(2024, 3, 31), model.PeriodQuarterly))
	assert.Equal(t, d(2023, 4, 1), Start(d(2024, 3, 31), model.PeriodAnnual))
}

func TestStart_NonMonthEnd(t *testing.T) {
	assert.Equal(t, d(2024, 3, 16), Start(d(2024, 6, 15), model.PeriodQuarterly))
	assert.Equal(t, d(2023, 6, 16), Start(d(2024, 6, 15), model.PeriodAnnual))
}

func TestAddMonths_Clamps(t *testing.T) {
	assert.Equal(t, d(2024, 2, 29), AddMonths(d(2024, 1, 31), 1))
	assert.Equal(t, d(2023, 2, 28), AddMonths(d(2023, 5, 31), -3))
	assert.Equal(t, d(2023, 3, 31), AddMonths(d(2024, 3, 31), -12))
}

func TestFiscalHelpers(t *testing.T) {
	assert.Equal(t, 2024, FiscalYearOf(d(2024, 3, 31)))
	assert.Equal(t, 2025, FiscalYearOf(d(2024, 4, 1)))
	assert.Equal(t, 1, QuarterOf(d(2024, 6, 30)))
	assert.Equal(t, 4, QuarterOf(d(2024, 2, 1)))
	assert.True(t, IsMonthEnd(d(2024, 2, 29)))
	assert.False(t, IsMonthEnd(d(2023, 2, 27)))
	assert.Equal(t, "FY2030", Label(2030))
}

func TestFromRange(t *testing.T) {
	tests := []struct {
		start, end time.Time
		pt         model.PeriodType
		quarter    int
	}{
		{d(2024, 4, 1), d(2024, 6, 30), model.PeriodQuarterly, 1},
		{d(2024, 4, 1), d(2024, 9, 30), model.PeriodHalfYearly, 0},
		{d(2024, 4, 1), d(2024, 12, 31), model.PeriodNineMonths, 0},
		{d(2023, 4, 1), d(2024, 3, 31), model.PeriodAnnual, 0},
	}
	for _, tt := range tests {
		p := FromRange(tt.start, tt.end)
		assert.Equal(t, tt.pt, p.Type)
		assert.Equal(t, tt.start, p.Start)
		assert.Equal(t, tt.end, p.End)
		assert.Equal(t, tt.quarter, p.Quarter)
	}
}
