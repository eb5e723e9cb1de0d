package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/filings-cli/internal/feed"
	"github.com/sells-group/filings-cli/internal/htmltable"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest raw filings, vendor feeds, prices and company masters",
}

// documentFlags are shared by the document subcommands.
type documentFlags struct {
	company    int64
	nature     string
	discover   bool
	since      string
	allPeriods bool
	listTables bool
}

func newDocumentCmd(kind pipeline.Kind, short string) *cobra.Command {
	var flags documentFlags
	cmd := &cobra.Command{
		Use:   string(kind) + " [path-or-url...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := initEnv(ctx, "ingest", envOptions{fetcher: true, archive: true, fields: true})
			if err != nil {
				return err
			}
			defer env.Close()

			co, err := env.Store.GetCompany(ctx, flags.company)
			if err != nil {
				return eris.Wrapf(err, "ingest: company %d", flags.company)
			}

			opts := []pipeline.IngestOption{pipeline.WithNormalizer(env.Normalizer)}
			if env.Archive != nil {
				opts = append(opts, pipeline.WithArchive(env.Archive))
			}
			ing := pipeline.NewIngester(env.Store, env.Fetcher, opts...)

			if flags.listTables {
				return listTables(ctx, cmd.OutOrStdout(), ing, *co, args)
			}

			docs, err := buildDocuments(ctx, ing, kind, *co, args, flags)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				zap.L().Warn("nothing to ingest", zap.Int64("company_id", co.ID), zap.String("kind", string(kind)))
				return nil
			}

			stats, err := pipeline.Track(ctx, env.Store, pipeline.JobIngest, func(ctx context.Context) (model.RunStats, error) {
				return ing.Ingest(ctx, docs)
			})
			printStats(cmd.OutOrStdout(), "ingest "+string(kind), stats)
			return err
		},
	}
	cmd.Flags().Int64Var(&flags.company, "company", 0, "company id (required)")
	_ = cmd.MarkFlagRequired("company")
	switch kind {
	case pipeline.KindXBRL:
		cmd.Flags().BoolVar(&flags.discover, "discover", false, "also list the company's filings on NSE and ingest their XBRL")
		cmd.Flags().StringVar(&flags.since, "since", "", "with --discover, skip filings for periods before this date (default two years ago)")
		cmd.Flags().BoolVar(&flags.allPeriods, "all-periods", false, "save every period in the instance, not only the current one")
	case pipeline.KindHTML:
		cmd.Flags().StringVar(&flags.nature, "nature", "standalone", "result nature of the tables (standalone or consolidated)")
		cmd.Flags().BoolVar(&flags.listTables, "list-tables", false, "print the tables found in each page instead of ingesting")
	}
	return cmd
}

// buildDocuments turns arguments into documents. Arguments with an http(s)
// scheme are fetched; anything else is read from disk.
func buildDocuments(ctx context.Context, ing *pipeline.Ingester, kind pipeline.Kind, co model.Company, args []string, flags documentFlags) ([]pipeline.Document, error) {
	var nature model.ResultNature
	if flags.nature != "" {
		n, err := model.ParseResultNature(flags.nature)
		if err != nil {
			return nil, err
		}
		nature = n
	}

	var docs []pipeline.Document
	for _, a := range args {
		doc := pipeline.Document{CompanyID: co.ID, Kind: kind, Nature: nature, AllPeriods: flags.allPeriods}
		if isURL(a) {
			doc.URL = a
		} else {
			doc.Path = a
		}
		docs = append(docs, doc)
	}

	switch {
	case kind == pipeline.KindXBRL && flags.discover:
		since, err := parseSince(flags.since)
		if err != nil {
			return nil, err
		}
		found, err := ing.Discover(ctx, co, since)
		if err != nil {
			return nil, err
		}
		for i := range found {
			found[i].AllPeriods = flags.allPeriods
		}
		docs = append(docs, found...)
	case kind == pipeline.KindFeed && len(args) == 0:
		if co.NSESymbol == "" {
			return nil, eris.Errorf("ingest: company %d has no nse symbol", co.ID)
		}
		docs = append(docs, pipeline.FeedDocument(co))
	}
	return docs, nil
}

// listTables prints every table of each HTML page with its classification.
func listTables(ctx context.Context, out io.Writer, ing *pipeline.Ingester, co model.Company, args []string) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SOURCE\tINDEX\tTYPE\tROWS\tPERIODS")
	for _, a := range args {
		doc := pipeline.Document{CompanyID: co.ID, Kind: pipeline.KindHTML}
		if isURL(a) {
			doc.URL = a
		} else {
			doc.Path = a
		}
		tables, err := ing.Tables(ctx, doc)
		if err != nil {
			return err
		}
		for _, t := range tables {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", a, t.Index, tableType(t), t.Rows, tablePeriods(t))
		}
	}
	return tw.Flush()
}

func tableType(t htmltable.Table) string {
	if t.Type == 0 {
		return "-"
	}
	return t.Type.String()
}

func tablePeriods(t htmltable.Table) string {
	if t.Parsed == nil || len(t.Parsed.Periods) == 0 {
		return "-"
	}
	ends := make([]string, len(t.Parsed.Periods))
	for i, p := range t.Parsed.Periods {
		ends[i] = p.End.Format(time.DateOnly)
	}
	return strings.Join(ends, ",")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// parseSince defaults to two years before today.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		t, _ := parseAsOf("")
		return t.AddDate(-2, 0, 0), nil
	}
	return parseAsOf(s)
}

var (
	pricesDate    string
	pricesFile    string
	pricesReprice bool
)

var ingestPricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Load an NSE bhavcopy into daily prices",
	Long:  "Parses an NSE bhavcopy (legacy CSV or UDiFF zip) from --file, or downloads the bhavcopy for --date, and stores the close of every known company. Stored TTM ratio sets are then revalued at the new prices unless --reprice=false.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day, err := parseAsOf(pricesDate)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "ingest", envOptions{fetcher: true, archive: true})
		if err != nil {
			return err
		}
		defer env.Close()

		var data []byte
		if pricesFile != "" {
			if data, err = os.ReadFile(pricesFile); err != nil {
				return eris.Wrapf(err, "read %s", pricesFile)
			}
		}

		var opts []pipeline.IngestOption
		if env.Archive != nil {
			opts = append(opts, pipeline.WithArchive(env.Archive))
		}
		ing := pipeline.NewIngester(env.Store, env.Fetcher, opts...)

		stats, err := pipeline.Track(ctx, env.Store, pipeline.JobPrices, func(ctx context.Context) (model.RunStats, error) {
			return ing.IngestPrices(ctx, day, data)
		})
		printStats(cmd.OutOrStdout(), "ingest prices", stats)
		if err != nil || !pricesReprice || stats.Succeeded == 0 {
			return err
		}

		companies, err := loadCompanies(ctx, env.Store, nil)
		if err != nil {
			return err
		}
		computer := pipeline.NewComputer(env.Store,
			pipeline.WithComputeConcurrency(cfg.Batch.MaxConcurrentCompanies),
		)
		stats, err = pipeline.Track(ctx, env.Store, pipeline.JobReprice, func(ctx context.Context) (model.RunStats, error) {
			return computer.Reprice(ctx, companies, day)
		})
		printStats(cmd.OutOrStdout(), "reprice", stats)
		return err
	},
}

var (
	companiesFile   string
	companiesFormat string
)

var ingestCompaniesCmd = &cobra.Command{
	Use:   "companies",
	Short: "Import the company master",
	Long:  "Upserts companies from an NSE EQUITY_L.csv listing, the BSE scrip list or an XLSX company sheet. Without --file the current NSE equity list or BSE scrip list is downloaded.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format := pipeline.CompanyFormat(companiesFormat)
		if companiesFile == "" && format == pipeline.FormatXLSX {
			return eris.New("ingest companies: --file is required for the xlsx format")
		}

		env, err := initEnv(ctx, "ingest", envOptions{fetcher: true})
		if err != nil {
			return err
		}
		defer env.Close()

		var data []byte
		if companiesFile != "" {
			data, err = os.ReadFile(companiesFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", companiesFile)
			}
		} else if data, err = downloadCompanies(ctx, env, format); err != nil {
			return err
		}

		ing := pipeline.NewIngester(env.Store, env.Fetcher)
		stats, err := pipeline.Track(ctx, env.Store, pipeline.JobCompanies, func(ctx context.Context) (model.RunStats, error) {
			return ing.ImportCompanies(ctx, data, format)
		})
		printStats(cmd.OutOrStdout(), "ingest companies", stats)
		return err
	},
}

func downloadCompanies(ctx context.Context, env *jobEnv, format pipeline.CompanyFormat) ([]byte, error) {
	switch format {
	case pipeline.FormatEquityList:
		data, err := env.Fetcher.Get(ctx, feed.EquityListURL(), nil)
		return data, eris.Wrap(err, "download equity list")
	case pipeline.FormatBSEScrips:
		data, err := env.Fetcher.Get(ctx, feed.BSEScripListURL(), pipeline.BSEHeader())
		return data, eris.Wrap(err, "download bse scrip list")
	}
	return nil, eris.Errorf("ingest companies: unknown format %q", format)
}

func init() {
	xbrlCmd := newDocumentCmd(pipeline.KindXBRL, "Ingest XBRL financial result filings")
	htmlCmd := newDocumentCmd(pipeline.KindHTML, "Ingest financial result tables from HTML filings")
	feedCmd := newDocumentCmd(pipeline.KindFeed, "Ingest NSE results-comparison feeds (fetched for the company when no argument is given)")
	vendorCmd := newDocumentCmd(pipeline.KindVendor, "Ingest vendor statement maps (JSON arrays of labelled line items)")

	ingestPricesCmd.Flags().StringVar(&pricesDate, "date", "", "trading date YYYY-MM-DD (default today)")
	ingestPricesCmd.Flags().StringVar(&pricesFile, "file", "", "bhavcopy file to load instead of downloading")
	ingestPricesCmd.Flags().BoolVar(&pricesReprice, "reprice", true, "revalue stored TTM ratio sets at the new prices")

	ingestCompaniesCmd.Flags().StringVar(&companiesFile, "file", "", "company master file (default: download the NSE equity list)")
	ingestCompaniesCmd.Flags().StringVar(&companiesFormat, "format", string(pipeline.FormatEquityList), "file format: equity_list, bse_scrip_list or xlsx")

	ingestCmd.AddCommand(xbrlCmd, htmlCmd, feedCmd, vendorCmd, ingestPricesCmd, ingestCompaniesCmd)
	rootCmd.AddCommand(ingestCmd)
}
