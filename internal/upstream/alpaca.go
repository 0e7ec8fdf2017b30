package upstream

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/guregu/null/v6"

	"stockinsights/internal/domain"
	"stockinsights/internal/util"
)

// ---------------------------------------------------------------------------
// AlpacaPrices
// ---------------------------------------------------------------------------

// barClient is the part of *marketdata.Client used for prices.
type barClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

// AlpacaPrices reads quotes and daily bars from the Alpaca market-data API.
type AlpacaPrices struct {
	client   barClient
	feed     marketdata.Feed
	cal      *util.MarketCalendar
	lookback time.Duration
	now      func() time.Time
}

var _ PriceProvider = (*AlpacaPrices)(nil)

// NewAlpacaPrices creates a provider for the given credentials. An empty
// dataURL uses the SDK default.
func NewAlpacaPrices(apiKey, apiSecret, dataURL, feed string) *AlpacaPrices {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newAlpacaPrices(marketdata.NewClient(opts), feed)
}

func newAlpacaPrices(c barClient, feed string) *AlpacaPrices {
	return &AlpacaPrices{
		client:   c,
		feed:     marketdata.Feed(feed),
		cal:      util.USMarket(),
		lookback: 90 * 24 * time.Hour,
		now:      time.Now,
	}
}

// Quote combines the latest trade with the previous close and a 52-week
// range computed from a year of daily bars.
func (a *AlpacaPrices) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}

	snap, err := a.client.GetSnapshot(symbol, marketdata.GetSnapshotRequest{Feed: a.feed})
	if err != nil {
		return Quote{}, fmt.Errorf("GetSnapshot %s: %w", symbol, err)
	}
	if snap == nil || snap.LatestTrade == nil {
		return Quote{}, fmt.Errorf("snapshot %s: %w", symbol, ErrNotFound)
	}

	now := a.now()
	q := Quote{
		Symbol: symbol,
		Date:   a.cal.DateOf(snap.LatestTrade.Timestamp),
		Last:   snap.LatestTrade.Price,
	}
	if snap.PrevDailyBar != nil {
		q.Change = dayChange(snap.PrevDailyBar.Close, q.Last)
	}

	year, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     a.cal.YearBefore(now),
		End:       now,
		Feed:      a.feed,
	})
	if err != nil {
		return Quote{}, fmt.Errorf("GetBars %s: %w", symbol, err)
	}
	q.Week52High, q.Week52Low = barRange(year, q.Last)
	return q, nil
}

// History returns roughly three months of daily bars, oldest first.
func (a *AlpacaPrices) History(ctx context.Context, symbol string) ([]DailyBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := a.now()
	bars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     now.Add(-a.lookback),
		End:       now,
		Feed:      a.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("bars %s: %w", symbol, ErrNotFound)
	}

	out := make([]DailyBar, 0, len(bars))
	for _, b := range bars {
		out = append(out, DailyBar{
			Date:  a.cal.DateOf(b.Timestamp),
			Open:  b.Open,
			Close: b.Close,
		})
	}
	return out, nil
}

// barRange returns the highest high and lowest low, widened to include last.
// It is null when there are no bars.
func barRange(bars []marketdata.Bar, last float64) (high, low null.Float) {
	if len(bars) == 0 {
		return null.Float{}, null.Float{}
	}
	hi, lo := last, last
	for _, b := range bars {
		hi = max(hi, b.High)
		lo = min(lo, b.Low)
	}
	return null.FloatFrom(hi), null.FloatFrom(lo)
}

// ---------------------------------------------------------------------------
// AlpacaCompanies
// ---------------------------------------------------------------------------

// assetClient is the part of *alpaca.Client used for company lookup.
type assetClient interface {
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
}

// AlpacaCompanies searches the active US equity list. The list is fetched
// once and refreshed after a day.
type AlpacaCompanies struct {
	client  assetClient
	limit   int
	refresh time.Duration
	now     func() time.Time

	mu      sync.Mutex
	assets  []alpaca.Asset
	fetched time.Time
}

var _ CompanyLookup = (*AlpacaCompanies)(nil)

// NewAlpacaCompanies creates a lookup against the Alpaca trading API.
func NewAlpacaCompanies(apiKey, apiSecret, baseURL string) *AlpacaCompanies {
	return newAlpacaCompanies(alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}))
}

func newAlpacaCompanies(c assetClient) *AlpacaCompanies {
	return &AlpacaCompanies{client: c, limit: 10, refresh: 24 * time.Hour, now: time.Now}
}

// FindCompanies ranks assets by how well their ticker or name matches query:
// exact ticker, ticker prefix, name prefix, then name substring.
func (c *AlpacaCompanies) FindCompanies(ctx context.Context, query string) ([]domain.Company, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	assets, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	upper := strings.ToUpper(q)
	lower := strings.ToLower(q)
	type hit struct {
		rank int
		c    domain.Company
	}
	var hits []hit
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		rank := -1
		switch {
		case a.Symbol == upper:
			rank = 0
		case strings.HasPrefix(a.Symbol, upper):
			rank = 1
		case strings.HasPrefix(name, lower):
			rank = 2
		case strings.Contains(name, lower):
			rank = 3
		}
		if rank >= 0 {
			hits = append(hits, hit{rank, domain.Company{Symbol: a.Symbol, Description: a.Name}})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		if a.rank != b.rank {
			return a.rank - b.rank
		}
		return strings.Compare(a.c.Symbol, b.c.Symbol)
	})

	out := make([]domain.Company, 0, min(len(hits), c.limit))
	for _, h := range hits {
		if len(out) == c.limit {
			break
		}
		out = append(out, h.c)
	}
	return out, nil
}

func (c *AlpacaCompanies) load(ctx context.Context) ([]alpaca.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.assets != nil && c.now().Sub(c.fetched) < c.refresh {
		return c.assets, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	assets, err := c.client.GetAssets(alpaca.GetAssetsRequest{
		Status:     "active",
		AssetClass: "us_equity",
	})
	if err != nil {
		if c.assets != nil {
			return c.assets, nil
		}
		return nil, fmt.Errorf("GetAssets: %w", err)
	}
	if len(assets) == 0 {
		return nil, errors.New("GetAssets: empty asset list")
	}
	c.assets = assets
	c.fetched = c.now()
	return assets, nil
}
