package quality

import (
	"math"
	"sort"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
)

// worstLimit caps Report.Worst.
const worstLimit = 20

// FieldStats counts comparisons for one field.
type FieldStats struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Bad   int `json:"bad"`
}

// Report aggregates a quality run. Report is not safe for concurrent use.
type Report struct {
	Companies   int                        `json:"companies"`
	TotalChecks int                        `json:"total_checks"`
	Within      int                        `json:"within_threshold"`
	Outside     int                        `json:"outside_threshold"`
	Errors      int                        `json:"errors"`
	ByField     map[string]*FieldStats     `json:"by_field"`
	Worst       []model.QualityCheckResult `json:"worst_deviations"`
	Accuracy    float64                    `json:"accuracy"`
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{ByField: make(map[string]*FieldStats)}
}

// Add counts one comparison.
func (r *Report) Add(res model.QualityCheckResult) {
	r.TotalChecks++

	fs, ok := r.ByField[res.Field]
	if !ok {
		fs = &FieldStats{}
		r.ByField[res.Field] = fs
	}
	fs.Total++

	if res.Acceptable {
		r.Within++
		fs.OK++
		return
	}
	r.Outside++
	fs.Bad++
	r.Worst = append(r.Worst, res)
}

// AddError counts a company whose check could not be completed.
func (r *Report) AddError() {
	r.Errors++
}

// Finish sorts and truncates the worst deviations and computes accuracy as
// the percentage of checks within threshold, rounded to one decimal.
func (r *Report) Finish() {
	sort.SliceStable(r.Worst, func(i, j int) bool {
		return absPct(r.Worst[i]) > absPct(r.Worst[j])
	})
	if len(r.Worst) > worstLimit {
		r.Worst = r.Worst[:worstLimit]
	}
	r.Accuracy = 0
	if r.TotalChecks > 0 {
		r.Accuracy = numeric.Round(float64(r.Within)/float64(r.TotalChecks)*100, 1)
	}
}

// Fields returns the fields in the report in sorted order.
func (r *Report) Fields() []string {
	out := make([]string, 0, len(r.ByField))
	for f := range r.ByField {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func absPct(res model.QualityCheckResult) float64 {
	if res.PctDeviation == nil {
		return 0
	}
	return math.Abs(*res.PctDeviation)
}
