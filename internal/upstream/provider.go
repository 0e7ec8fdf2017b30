// Package upstream talks to the market data and analytics providers and
// serves their responses through the shared response cache.
package upstream

import (
	"context"
	"errors"

	"github.com/guregu/null/v6"

	"stockinsights/internal/domain"
)

var (
	// ErrNotFound is returned when a provider has no data for a symbol.
	ErrNotFound = errors.New("symbol not found")

	// ErrUnavailable is returned when no requested symbol could be served.
	ErrUnavailable = errors.New("upstream data unavailable")
)

// Quote is a symbol's current price.
type Quote struct {
	Symbol      string      `json:"symbol"`
	Description string      `json:"description,omitempty"`
	Date        domain.Date `json:"date"`
	Last        float64     `json:"last"`
	Change      float64     `json:"change"`
	Week52High  null.Float  `json:"week_52_high"`
	Week52Low   null.Float  `json:"week_52_low"`
}

// DailyBar is one historical trading day.
type DailyBar struct {
	Date  domain.Date `json:"date"`
	Open  float64     `json:"open"`
	Close float64     `json:"close"`
}

// PriceProvider fetches quotes and daily history one symbol at a time, so
// each cache miss maps to exactly one upstream call.
type PriceProvider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	History(ctx context.Context, symbol string) ([]DailyBar, error)
}

// CompanyLookup finds companies by name or ticker.
type CompanyLookup interface {
	FindCompanies(ctx context.Context, query string) ([]domain.Company, error)
}

// SentimentSource summarizes sentiment about an entity across symbols.
type SentimentSource interface {
	Sentiment(ctx context.Context, symbols []string, entity string) (domain.SentimentSummary, error)
}
