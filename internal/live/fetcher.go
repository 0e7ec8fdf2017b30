package live

import (
	"context"

	"stockinsights/internal/dashboard"
	"stockinsights/internal/domain"
	"stockinsights/internal/i18n"
	"stockinsights/internal/upstream"
)

// LocalFetcher serves hosted dashboards straight from the upstream service
// and the string bundle, skipping the HTTP round trip.
type LocalFetcher struct {
	svc     *upstream.Service
	strings *i18n.Bundle
}

var _ dashboard.Fetcher = (*LocalFetcher)(nil)

// NewLocalFetcher creates a fetcher over svc and strings.
func NewLocalFetcher(svc *upstream.Service, strings *i18n.Bundle) *LocalFetcher {
	return &LocalFetcher{svc: svc, strings: strings}
}

func (f *LocalFetcher) LookupCompanies(ctx context.Context, query string) ([]domain.Company, error) {
	return f.svc.LookupCompanies(ctx, query)
}

func (f *LocalFetcher) StockPrices(ctx context.Context, symbols []string) (map[string][]domain.PricePoint, error) {
	return f.svc.StockPrices(ctx, symbols)
}

func (f *LocalFetcher) News(ctx context.Context, symbols []string, language string) (domain.NewsResult, error) {
	return f.svc.News(ctx, symbols, f.strings.Resolve(language, ""))
}

func (f *LocalFetcher) Tweets(ctx context.Context, symbols []string, entity, language string) (domain.TweetsResult, error) {
	return f.svc.Tweets(ctx, symbols, entity, f.strings.Resolve(language, ""))
}

// Strings resolves an empty or unsupported language to the default.
func (f *LocalFetcher) Strings(ctx context.Context, language string) (map[string]string, error) {
	return f.strings.Strings(ctx, f.strings.Resolve(language, ""))
}
