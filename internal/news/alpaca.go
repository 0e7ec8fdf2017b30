package news

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockinsights/internal/domain"
)

// newsClient is the part of *marketdata.Client used here.
type newsClient interface {
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
}

// AlpacaSource serves plain articles from the Alpaca news API. Alpaca does
// not extract entities, so articles carry none and contribute nothing to the
// entity rollup.
type AlpacaSource struct {
	client   newsClient
	lookback time.Duration
	limit    int
	now      func() time.Time
}

var _ Source = (*AlpacaSource)(nil)

// NewAlpacaSource creates a source that fetches up to 50 articles per symbol
// published within lookback.
func NewAlpacaSource(mdc *marketdata.Client, lookback time.Duration) *AlpacaSource {
	return newAlpacaSource(mdc, lookback)
}

func newAlpacaSource(c newsClient, lookback time.Duration) *AlpacaSource {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	return &AlpacaSource{client: c, lookback: lookback, limit: 50, now: time.Now}
}

// News fetches each symbol's articles. The Alpaca client is not context
// aware, so ctx is only checked between symbols.
func (s *AlpacaSource) News(ctx context.Context, symbols []string, _ string) (domain.NewsResult, error) {
	end := s.now()
	start := end.Add(-s.lookback)

	var articles []domain.Article
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return domain.NewsResult{}, err
		}
		got, err := s.fetch(sym, start, end)
		if err != nil {
			return domain.NewsResult{}, fmt.Errorf("fetching alpaca news for %s: %w", sym, err)
		}
		articles = append(articles, got...)
	}
	return Summarize(symbols, articles), nil
}

func (s *AlpacaSource) fetch(symbol string, start, end time.Time) ([]domain.Article, error) {
	alpacaNews, err := s.client.GetNews(marketdata.GetNewsRequest{
		Symbols:            []string{symbol},
		Start:              start,
		End:                end,
		TotalLimit:         s.limit,
		IncludeContent:     true,
		ExcludeContentless: false,
		Sort:               marketdata.SortDesc,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]domain.Article, 0, len(alpacaNews))
	for _, a := range alpacaNews {
		body := a.Summary
		if a.Content != "" {
			body = ExtractSymbolContent(a.Content, symbol)
		}
		articles = append(articles, domain.Article{
			ID:          strconv.Itoa(a.ID),
			Symbol:      symbol,
			Title:       a.Headline,
			URL:         a.URL,
			Source:      "alpaca",
			Summary:     body,
			PublishedAt: a.CreatedAt,
		})
	}
	return articles, nil
}
