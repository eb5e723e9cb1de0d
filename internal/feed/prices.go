package feed

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/filings-cli/internal/fetcher"
	"github.com/sells-group/filings-cli/internal/model"
	"github.com/sells-group/filings-cli/internal/numeric"
)

// Bhavcopy column aliases across the legacy and UDiFF formats.
var (
	colSymbol = []string{"SYMBOL", "TckrSymb"}
	colSeries = []string{"SERIES", "SctySrs"}
	colOpen   = []string{"OPEN", "OpnPric", "OPEN_PRICE"}
	colHigh   = []string{"HIGH", "HghPric", "HIGH_PRICE"}
	colLow    = []string{"LOW", "LwPric", "LOW_PRICE"}
	colClose  = []string{"CLOSE", "ClsPric", "CLOSE_PRICE"}
	colVolume = []string{"TOTTRDQTY", "TtlTradgVol", "VOLUME", "TTL_TRD_QNTY"}
	colDate   = []string{"TIMESTAMP", "TradDt", "DATE1"}
)

// equitySeries are the bhavcopy series kept as main-board equities.
var equitySeries = map[string]bool{"EQ": true, "BE": true}

var tradeDateLayouts = []string{"02-Jan-2006", "2006-01-02", "02/01/2006", "02 Jan 2006"}

// ParseBhavcopy reads an NSE bhavcopy, zipped or plain CSV. Only EQ and BE
// series rows with a positive close are returned. Rows without a trade date
// are skipped.
func ParseBhavcopy(ctx context.Context, data []byte) ([]model.Price, error) {
	if fetcher.IsZIP(data) {
		body, _, err := fetcher.ReadZIPEntry(data, ".csv")
		if err != nil {
			return nil, eris.Wrap(err, "feed: open bhavcopy archive")
		}
		data = body
	}

	rowCh, errCh := fetcher.StreamCSV(ctx, bytes.NewReader(data), fetcher.CSVOptions{LazyQuotes: true})

	var out []model.Price
	for row := range rowCh {
		if !row.HasColumn(colSymbol...) {
			continue
		}
		if s, ok := row.Get(colSeries...); ok && !equitySeries[strings.ToUpper(s)] {
			continue
		}

		p := model.Price{Source: SourceNSEBhavcopy}
		p.Symbol, _ = row.Get(colSymbol...)
		p.Open = price(row, colOpen)
		p.High = price(row, colHigh)
		p.Low = price(row, colLow)
		p.Close = price(row, colClose)
		if v, ok := row.Get(colVolume...); ok {
			p.Volume, _ = strconv.ParseInt(strings.ReplaceAll(v, ",", ""), 10, 64)
		}
		if d, ok := row.Get(colDate...); ok {
			p.TradeDate, _ = parseDate(d, tradeDateLayouts)
		}

		if p.Symbol == "" || p.Close <= 0 || p.TradeDate.IsZero() {
			continue
		}
		out = append(out, p)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "feed: read bhavcopy")
	}
	return out, nil
}

func price(row fetcher.Row, cols []string) float64 {
	s, ok := row.Get(cols...)
	if !ok {
		return 0
	}
	v, _ := numeric.Parse(s)
	return v
}
