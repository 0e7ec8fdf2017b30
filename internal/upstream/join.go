package upstream

import (
	"github.com/shopspring/decimal"

	"stockinsights/internal/domain"
)

// dayChange returns close - open rounded to 4 places.
func dayChange(open, close float64) float64 {
	return decimal.NewFromFloat(close).Sub(decimal.NewFromFloat(open)).Round(4).InexactFloat64()
}

// HistoryPoints converts bars to price points: last is the close and change
// is the session's close minus its open.
func HistoryPoints(symbol string, bars []DailyBar) []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(bars))
	for _, b := range bars {
		out = append(out, domain.PricePoint{
			Symbol: symbol,
			Date:   b.Date,
			Last:   b.Close,
			Change: dayChange(b.Open, b.Close),
		})
	}
	return out
}

// JoinQuoteHistory builds each quoted symbol's series: its history, stamped
// with the quote's 52-week range, followed by a point for today from the
// quote. When every quote reports a zero change (markets closed), today's
// point repeats the previous day's change instead. Symbols without a quote
// are left out.
func JoinQuoteHistory(quotes map[string]Quote, history map[string][]DailyBar, today domain.Date) map[string][]domain.PricePoint {
	usePrevious := len(quotes) > 0
	for _, q := range quotes {
		if q.Change != 0 {
			usePrevious = false
			break
		}
	}

	out := make(map[string][]domain.PricePoint, len(quotes))
	for sym, q := range quotes {
		points := HistoryPoints(sym, history[sym])
		for i := range points {
			points[i].Week52High = q.Week52High
			points[i].Week52Low = q.Week52Low
		}

		change := q.Change
		if usePrevious && len(points) > 0 {
			change = points[len(points)-1].Change
		}
		date := today
		if q.Date != "" && q.Date > date {
			date = q.Date
		}

		// A history bar for today is superseded by the live quote.
		if n := len(points); n > 0 && points[n-1].Date == date {
			points = points[:n-1]
		}
		points = append(points, domain.PricePoint{
			Symbol:     sym,
			Date:       date,
			Last:       q.Last,
			Change:     change,
			Week52High: q.Week52High,
			Week52Low:  q.Week52Low,
		})
		out[sym] = points
	}
	return out
}
