// Package report writes quality and anomaly runs as XLSX workbooks for
// review outside the database.
package report

import (
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/quality"
)

// Sheet names.
const (
	SheetSummary   = "Summary"
	SheetByField   = "By Field"
	SheetWorst     = "Worst Deviations"
	SheetChecks    = "Checks"
	SheetAnomalies = "Anomalies"
)

// WriteQualityXLSX writes a quality report. results, when non-empty, are
// listed in full on an extra sheet.
func WriteQualityXLSX(w io.Writer, rep *quality.Report, results []model.QualityCheckResult) error {
	if rep == nil {
		return eris.New("report: nil quality report")
	}
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addRow(summary, "Metric", "Value")
	addIntRow(summary, "Companies", rep.Companies)
	addIntRow(summary, "Total checks", rep.TotalChecks)
	addIntRow(summary, "Within threshold", rep.Within)
	addIntRow(summary, "Outside threshold", rep.Outside)
	addIntRow(summary, "Errors", rep.Errors)
	row := summary.AddRow()
	row.AddCell().SetString("Accuracy %")
	row.AddCell().SetFloat(rep.Accuracy)

	byField, err := f.AddSheet(SheetByField)
	if err != nil {
		return eris.Wrap(err, "report: add field sheet")
	}
	addRow(byField, "Field", "Total", "OK", "Bad")
	for _, name := range rep.Fields() {
		fs := rep.ByField[name]
		row := byField.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetInt(fs.Total)
		row.AddCell().SetInt(fs.OK)
		row.AddCell().SetInt(fs.Bad)
	}

	if err := checkSheet(f, SheetWorst, rep.Worst); err != nil {
		return err
	}
	if len(results) > 0 {
		if err := checkSheet(f, SheetChecks, results); err != nil {
			return err
		}
	}

	return eris.Wrap(f.Write(w), "report: write quality workbook")
}

func checkSheet(f *xlsx.File, name string, results []model.QualityCheckResult) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add sheet %s", name)
	}
	addRow(sheet, "Company ID", "Field", "Period End", "Our Value", "Reference Value", "Source", "Deviation %", "Threshold %", "Acceptable", "Notes")
	for _, r := range results {
		row := sheet.AddRow()
		row.AddCell().SetInt64(r.CompanyID)
		row.AddCell().SetString(r.Field)
		row.AddCell().SetString(dateString(r.PeriodEnd))
		addFloatPtr(row, r.OurValue)
		addFloatPtr(row, r.ReferenceValue)
		row.AddCell().SetString(r.ReferenceSource)
		addFloatPtr(row, r.PctDeviation)
		row.AddCell().SetFloat(r.Threshold)
		row.AddCell().SetBool(r.Acceptable)
		row.AddCell().SetString(r.Notes)
	}
	return nil
}

// WriteAnomaliesXLSX writes one row per anomaly. Evidence values are
// flattened into "name=value" text.
func WriteAnomaliesXLSX(w io.Writer, anomalies []model.Anomaly) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetAnomalies)
	if err != nil {
		return eris.Wrap(err, "report: add anomalies sheet")
	}
	addRow(sheet, "Company ID", "Period End", "Type", "Severity", "Field", "Message", "Evidence")
	for _, a := range anomalies {
		row := sheet.AddRow()
		row.AddCell().SetInt64(a.CompanyID)
		row.AddCell().SetString(dateString(a.PeriodEnd))
		row.AddCell().SetString(a.Type)
		row.AddCell().SetString(string(a.Severity))
		row.AddCell().SetString(a.Field)
		row.AddCell().SetString(a.Message)
		row.AddCell().SetString(evidence(a.Evidence))
	}
	return eris.Wrap(f.Write(w), "report: write anomalies workbook")
}

// WriteFile creates path and writes the workbook produced by write into it.
func WriteFile(path string, write func(io.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := write(out); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(out.Close(), "report: close %s", path)
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func addIntRow(sheet *xlsx.Sheet, label string, v int) {
	row := sheet.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetInt(v)
}

// addFloatPtr leaves the cell blank for nil.
func addFloatPtr(row *xlsx.Row, v *float64) {
	c := row.AddCell()
	if v != nil {
		c.SetFloat(*v)
	}
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func evidence(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.FormatFloat(m[k], 'f', -1, 64))
	}
	return strings.Join(parts, "; ")
}
