package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/filings-cli/internal/fields"
)

var fieldsOverrides string

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the canonical field vocabulary",
	Long:  "Prints every canonical field with its category and statement. With --overrides, the alias file is validated and its extra labels are listed too.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var extra map[string][]string
		if fieldsOverrides != "" {
			m, err := fields.LoadOverrides(fieldsOverrides)
			if err != nil {
				return err
			}
			if _, err := fields.New(m); err != nil {
				return err
			}
			extra = m
		}
		formatFields(cmd.OutOrStdout(), extra)
		return nil
	},
}

// formatFields writes the vocabulary as a table with the number of override
// aliases per field.
func formatFields(out io.Writer, extra map[string][]string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tCATEGORY\tSTATEMENT\tOVERRIDES")
	for _, name := range fields.All() {
		cat, _ := fields.CategoryOf(name)
		st, _ := fields.StatementOf(name)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", name, cat, st, len(extra[name]))
	}
	_ = w.Flush()
}

func init() {
	fieldsCmd.Flags().StringVar(&fieldsOverrides, "overrides", "", "YAML alias override file to validate")
	rootCmd.AddCommand(fieldsCmd)
}
