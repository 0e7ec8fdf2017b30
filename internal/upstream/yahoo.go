package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"stockinsights/internal/util"
)

// YahooPrices reads quotes and daily history from Yahoo Finance. It needs no
// credentials and is the fallback when Alpaca keys are not configured.
type YahooPrices struct {
	getQuote func(symbol string) (*finance.Quote, error)
	getChart func(p *chart.Params) ([]*finance.ChartBar, error)
	cal      *util.MarketCalendar
	lookback time.Duration
	now      func() time.Time
}

var _ PriceProvider = (*YahooPrices)(nil)

// NewYahooPrices creates a Yahoo Finance provider.
func NewYahooPrices() *YahooPrices {
	return &YahooPrices{
		getQuote: quote.Get,
		getChart: chartBars,
		cal:      util.USMarket(),
		lookback: 90 * 24 * time.Hour,
		now:      time.Now,
	}
}

func chartBars(p *chart.Params) ([]*finance.ChartBar, error) {
	iter := chart.Get(p)
	var bars []*finance.ChartBar
	for iter.Next() {
		bars = append(bars, iter.Bar())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

// Quote returns the regular-market price, change and 52-week range.
func (y *YahooPrices) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	q, err := y.getQuote(symbol)
	if err != nil {
		return Quote{}, fmt.Errorf("yahoo quote %s: %w", symbol, err)
	}
	if q == nil {
		return Quote{}, fmt.Errorf("yahoo quote %s: %w", symbol, ErrNotFound)
	}

	out := Quote{
		Symbol:      symbol,
		Description: q.ShortName,
		Last:        q.RegularMarketPrice,
		Change:      q.RegularMarketChange,
	}
	if q.RegularMarketTime > 0 {
		out.Date = y.cal.DateOf(time.Unix(int64(q.RegularMarketTime), 0))
	}
	if q.FiftyTwoWeekHigh > 0 {
		out.Week52High = null.FloatFrom(q.FiftyTwoWeekHigh)
	}
	if q.FiftyTwoWeekLow > 0 {
		out.Week52Low = null.FloatFrom(q.FiftyTwoWeekLow)
	}
	return out, nil
}

// History returns roughly three months of daily bars, oldest first.
func (y *YahooPrices) History(ctx context.Context, symbol string) ([]DailyBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := y.now()
	start := end.Add(-y.lookback)
	bars, err := y.getChart(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, ErrNotFound)
	}

	out := make([]DailyBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, DailyBar{
			Date:  y.cal.DateOf(time.Unix(int64(b.Timestamp), 0)),
			Open:  b.Open.InexactFloat64(),
			Close: b.Close.InexactFloat64(),
		})
	}
	return out, nil
}
