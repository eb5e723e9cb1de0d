package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures StreamCSV.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune
	LazyQuotes bool
}

// Row is one CSV data row with the header it belongs to.
type Row struct {
	Line   int
	Fields []string
	header map[string]int
}

// Get returns the trimmed value of the first listed column present in the
// header. Column names match case-insensitively.
func (r Row) Get(columns ...string) (string, bool) {
	for _, c := range columns {
		i, ok := r.header[strings.ToUpper(strings.TrimSpace(c))]
		if ok && i < len(r.Fields) {
			return strings.TrimSpace(r.Fields[i]), true
		}
	}
	return "", false
}

// HasColumn reports whether any of the columns is in the header.
func (r Row) HasColumn(columns ...string) bool {
	for _, c := range columns {
		if _, ok := r.header[strings.ToUpper(strings.TrimSpace(c))]; ok {
			return true
		}
	}
	return false
}

// StreamCSV reads a CSV with a header row and sends every data row to the
// returned channel. Both channels are closed when reading ends; at most one
// error is sent.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.Comment = opts.Comment
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		var header map[string]int
		for line := 1; ; line++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				if header == nil {
					errCh <- eris.New("csv: missing header row")
				}
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: read line %d", line)
				return
			}

			if header == nil {
				header = make(map[string]int, len(record))
				for i, h := range record {
					// Strip a UTF-8 BOM from the first column name.
					h = strings.TrimPrefix(h, "\ufeff")
					header[strings.ToUpper(strings.TrimSpace(h))] = i
				}
				continue
			}

			select {
			case rowCh <- Row{Line: line, Fields: record, header: header}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
