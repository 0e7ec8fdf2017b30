package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/redis/go-redis/v9"

	"stockinsights/internal/cache"
	"stockinsights/internal/config"
	"stockinsights/internal/dashboard"
	"stockinsights/internal/i18n"
	"stockinsights/internal/live"
	"stockinsights/internal/news"
	"stockinsights/internal/store"
	"stockinsights/internal/upstream"
	"stockinsights/internal/util"
)

// newsLookback bounds how far back the Alpaca and RSS sources search.
const newsLookback = 7 * 24 * time.Hour

// app holds every long-lived component of the server.
type app struct {
	svc      *upstream.Service
	strings  *i18n.Bundle
	sessions *live.Manager
	db       *store.SQLiteStore
	redis    *redis.Client
}

// build wires the components described by cfg. The caller owns the returned
// app and must Close it.
func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{}

	var insights *upstream.InsightsClient
	if cfg.Insights.BaseURL != "" {
		insights = upstream.NewInsightsClient(cfg.Insights.BaseURL, cfg.Insights.ClientID, cfg.Upstream.RequestTimeout)
	}

	prices, err := newPriceProvider(cfg, insights, log)
	if err != nil {
		return nil, err
	}

	opts := upstream.Options{
		Prices:    prices,
		Companies: newCompanyLookup(cfg, insights),
		News:      newNewsSource(cfg, insights, log),
		Tweets:    newTweetSource(cfg, insights),
		Batch: cache.BatcherConfig{
			MaxParallel: cfg.Upstream.MaxParallel,
			Retries:     cfg.Upstream.Retries,
			RetryDelay:  500 * time.Millisecond,
			Limiter:     util.NewRateLimiter(cfg.Upstream.RateLimitPerMin),
		},
		Archive: store.NewParquetStore(cfg.Storage.DataDir),
	}
	if insights != nil {
		opts.Sentiment = insights
	}

	switch cfg.Cache.Backend {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.redis = client
		opts.QuoteCache = cache.NewRedisCache[upstream.Quote](client, cfg.Cache.KeyPrefix+"quote:", cfg.Upstream.CacheTTL)
		opts.HistoryCache = cache.NewRedisCache[[]upstream.DailyBar](client, cfg.Cache.KeyPrefix+"history:", cfg.Upstream.CacheTTL)
		log.Info("using redis response cache", "addr", cfg.Cache.RedisAddr)
	case "memory":
		opts.QuoteCache = cache.NewTTLCache[upstream.Quote](cfg.Upstream.CacheTTL, time.Now)
		opts.HistoryCache = cache.NewTTLCache[[]upstream.DailyBar](cfg.Upstream.CacheTTL, time.Now)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	a.svc = upstream.NewService(opts, log)
	a.strings = i18n.NewBundle(cfg.Strings.Dir, cfg.Strings.Languages, log)

	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db

	a.sessions = live.NewManager(live.NewLocalFetcher(a.svc, a.strings), db, db, dashboard.Options{
		SearchDebounce: cfg.Dashboard.SearchDebounce,
		EntityLimit:    cfg.Dashboard.EntityLimit,
		FetchTimeout:   cfg.Dashboard.FetchTimeout,
	}, log)

	return a, nil
}

// Close releases the database and cache connections.
func (a *app) Close() {
	if a.sessions != nil {
		a.sessions.Shutdown()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

func hasAlpacaKeys(cfg *config.Config) bool {
	return cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != ""
}

// newPriceProvider picks the quote and history source named by
// upstream.price_provider. Alpaca without credentials falls back to Yahoo.
func newPriceProvider(cfg *config.Config, insights *upstream.InsightsClient, log *slog.Logger) (upstream.PriceProvider, error) {
	switch cfg.Upstream.PriceProvider {
	case "alpaca":
		if hasAlpacaKeys(cfg) {
			return upstream.NewAlpacaPrices(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed), nil
		}
		log.Warn("alpaca credentials not set, using yahoo prices")
		return upstream.NewYahooPrices(), nil
	case "yahoo":
		return upstream.NewYahooPrices(), nil
	case "insights":
		if insights == nil {
			return nil, fmt.Errorf("price provider insights needs insights.base_url")
		}
		return insights, nil
	default:
		return nil, fmt.Errorf("unknown price provider %q", cfg.Upstream.PriceProvider)
	}
}

func newCompanyLookup(cfg *config.Config, insights *upstream.InsightsClient) upstream.CompanyLookup {
	if hasAlpacaKeys(cfg) {
		return upstream.NewAlpacaCompanies(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	}
	if insights != nil {
		return insights
	}
	return nil
}

// newNewsSource chains the configured news provider first, then the other
// available providers, then Google News RSS.
func newNewsSource(cfg *config.Config, insights *upstream.InsightsClient, log *slog.Logger) news.Source {
	chain := news.NewFallbackSource(log)

	var alpacaNews news.Source
	if hasAlpacaKeys(cfg) {
		mdOpts := marketdata.ClientOpts{APIKey: cfg.Alpaca.APIKey, APISecret: cfg.Alpaca.APISecret}
		if cfg.Alpaca.DataURL != "" {
			mdOpts.BaseURL = cfg.Alpaca.DataURL
		}
		alpacaNews = news.NewAlpacaSource(marketdata.NewClient(mdOpts), newsLookback)
	}

	if cfg.Upstream.NewsProvider == "alpaca" && alpacaNews != nil {
		chain.Add("alpaca", alpacaNews)
		alpacaNews = nil
	}
	if insights != nil {
		chain.Add("insights", insights)
	}
	if alpacaNews != nil {
		chain.Add("alpaca", alpacaNews)
	}
	chain.Add("rss", news.NewRSSSource(news.GoogleNewsURL, cfg.Upstream.RequestTimeout, newsLookback))
	return chain
}

func newTweetSource(cfg *config.Config, insights *upstream.InsightsClient) news.TweetSource {
	if insights != nil {
		return insights
	}
	return news.NewStockTwitsSource(news.StockTwitsURL, cfg.Upstream.RequestTimeout, cfg.Upstream.RateLimitPerMin)
}
