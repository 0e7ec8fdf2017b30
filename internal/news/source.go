// Package news fetches articles and social messages about companies from
// several providers and normalizes them into domain types.
package news

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"stockinsights/internal/domain"
)

// Source returns recent articles for a set of symbols. Each article names
// the symbol it belongs to.
type Source interface {
	News(ctx context.Context, symbols []string, language string) (domain.NewsResult, error)
}

// TweetSource returns social messages about symbols, optionally narrowed to
// those mentioning an entity.
type TweetSource interface {
	Tweets(ctx context.Context, symbols []string, entity, language string) (domain.TweetsResult, error)
}

// ErrNoSource is returned by an empty FallbackSource.
var ErrNoSource = errors.New("no news source configured")

// FallbackSource tries each source in order and returns the first success.
type FallbackSource struct {
	sources []Source
	names   []string
	log     *slog.Logger
}

var _ Source = (*FallbackSource)(nil)

// NewFallbackSource creates an empty chain. Sources are added with Add.
func NewFallbackSource(log *slog.Logger) *FallbackSource {
	return &FallbackSource{log: log}
}

// Add appends a named source to the chain.
func (f *FallbackSource) Add(name string, s Source) *FallbackSource {
	f.sources = append(f.sources, s)
	f.names = append(f.names, name)
	return f
}

// News returns the first source's result that did not fail.
func (f *FallbackSource) News(ctx context.Context, symbols []string, language string) (domain.NewsResult, error) {
	if len(f.sources) == 0 {
		return domain.NewsResult{}, ErrNoSource
	}
	var errs []error
	for i, s := range f.sources {
		res, err := s.News(ctx, symbols, language)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return domain.NewsResult{}, ctx.Err()
		}
		f.log.Warn("news source failed", "source", f.names[i], "symbols", symbols, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", f.names[i], err))
	}
	return domain.NewsResult{}, errors.Join(errs...)
}

// Summarize attaches the per-entity counts and average sentiment of a
// result's articles.
func Summarize(symbols []string, articles []domain.Article) domain.NewsResult {
	return domain.NewsResult{
		Symbol:   strings.Join(symbols, ","),
		News:     articles,
		Entities: domain.SummarizeEntities(articles),
	}
}

// CountSentiment tallies tweets by polarity.
func CountSentiment(tweets []domain.Tweet) domain.SentimentSummary {
	var s domain.SentimentSummary
	for _, t := range tweets {
		switch t.Sentiment.Sign() {
		case 1:
			s.Positive++
		case -1:
			s.Negative++
		default:
			s.Neutral++
		}
	}
	return s
}
