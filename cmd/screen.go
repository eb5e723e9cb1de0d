package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/screen"
)

var (
	screenQuery    string
	screenSector   string
	screenIndustry string
	screenMin      map[string]string
	screenMax      map[string]string
	screenSortBy   string
	screenAsc      bool
	screenLimit    int
	screenOffset   int
	screenNature   string
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen companies on their latest TTM ratios",
	Long: `Filters active companies on their latest TTM ratio set.

A query combines "field op value" terms with AND and OR, for example
"pe_ratio < 20 AND roe > 15 OR sector = 'IT'". Ratio ranges can also be
given with --min and --max, e.g. --min roe=15 --max debt_equity=1.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		crit := screen.Criteria{
			Query:     screenQuery,
			Sector:    screenSector,
			Industry:  screenIndustry,
			SortBy:    screenSortBy,
			Ascending: screenAsc,
			Limit:     screenLimit,
			Offset:    screenOffset,
		}
		var err error
		if crit.Nature, err = model.ParseResultNature(screenNature); err != nil {
			return err
		}
		if crit.Ranges, err = parseRanges(screenMin, screenMax); err != nil {
			return err
		}

		env, err := initEnv(ctx, "report", envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := screen.New(env.Store).Run(ctx, crit)
		if err != nil {
			return err
		}
		formatScreen(cmd.OutOrStdout(), res)
		return nil
	},
}

// parseRanges turns name=value bounds into ratio ranges.
func parseRanges(lower, upper map[string]string) (map[string]screen.Range, error) {
	out := make(map[string]screen.Range)
	bound := func(name, raw string) (*float64, error) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, eris.Errorf("screen: bound %s=%q is not a number", name, raw)
		}
		return &v, nil
	}
	for name, raw := range lower {
		v, err := bound(name, raw)
		if err != nil {
			return nil, err
		}
		rg := out[name]
		rg.Min = v
		out[name] = rg
	}
	for name, raw := range upper {
		v, err := bound(name, raw)
		if err != nil {
			return nil, err
		}
		rg := out[name]
		rg.Max = v
		out[name] = rg
	}
	return out, nil
}

// formatScreen writes the matches with the sort ratio and a few headline
// ratios.
func formatScreen(out io.Writer, res *screen.Result) {
	_, _ = fmt.Fprintf(out, "%d matches (showing %d, sorted by %s)\n", res.TotalMatches, len(res.Results), res.SortBy)
	if len(res.Results) == 0 {
		return
	}
	cols := []string{model.RatioMarketCap, model.RatioPE, model.RatioROE, model.RatioDebtEquity}
	if !slices.Contains(cols, res.SortBy) {
		cols = append([]string{res.SortBy}, cols...)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprint(w, "ID\tSYMBOL\tNAME\tSECTOR")
	for _, c := range cols {
		_, _ = fmt.Fprintf(w, "\t%s", c)
	}
	_, _ = fmt.Fprintln(w)
	for _, m := range res.Results {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s", m.CompanyID, m.Symbol, m.Name, m.Sector)
		for _, c := range cols {
			_, _ = fmt.Fprintf(w, "\t%s", formatRatio(m.Ratios.Get(c)))
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func formatRatio(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func init() {
	f := screenCmd.Flags()
	f.StringVarP(&screenQuery, "query", "q", "", `filter query, e.g. "pe_ratio < 20 AND roe > 15"`)
	f.StringVar(&screenSector, "sector", "", "only companies in this sector (case-insensitive)")
	f.StringVar(&screenIndustry, "industry", "", "only companies in this industry (case-insensitive)")
	f.StringToStringVar(&screenMin, "min", nil, "lower ratio bounds, e.g. roe=15,current_ratio=1.5")
	f.StringToStringVar(&screenMax, "max", nil, "upper ratio bounds, e.g. pe_ratio=25")
	f.StringVar(&screenSortBy, "sort-by", screen.DefaultSortBy, "ratio to sort by")
	f.BoolVar(&screenAsc, "asc", false, "sort ascending (default descending)")
	f.IntVar(&screenLimit, "limit", screen.DefaultLimit, fmt.Sprintf("maximum matches to print (at most %d)", screen.MaxLimit))
	f.IntVar(&screenOffset, "offset", 0, "matches to skip")
	f.StringVar(&screenNature, "nature", "consolidated", "result nature of the ratio sets (standalone or consolidated)")
	rootCmd.AddCommand(screenCmd)
}
