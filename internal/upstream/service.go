package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"stockinsights/internal/cache"
	"stockinsights/internal/domain"
	"stockinsights/internal/news"
	"stockinsights/internal/store"
	"stockinsights/internal/util"
)

// archiveWindow is how far back the archive is read when history is down.
const archiveWindow = 90 * 24 * time.Hour

// Options wires a Service. Prices is required; every other source may be
// nil, in which case the operations that need it fail with ErrUnavailable.
type Options struct {
	Prices    PriceProvider
	Companies CompanyLookup
	News      news.Source
	Tweets    news.TweetSource

	// Sentiment, if nil, is derived by counting the polarity of Tweets.
	Sentiment SentimentSource

	// QuoteCache and HistoryCache default to in-memory caches with
	// cache.DefaultTTL.
	QuoteCache   cache.ResponseCache[Quote]
	HistoryCache cache.ResponseCache[[]DailyBar]
	Batch        cache.BatcherConfig

	// Archive, if set, receives every fetched series and serves history
	// when the provider fails.
	Archive store.PriceArchive
}

// Service answers the dashboard's data questions from the configured
// providers. Quotes and history are served through the response cache; news,
// sentiment and tweets are passed straight through.
type Service struct {
	prices    PriceProvider
	companies CompanyLookup
	news      news.Source
	tweets    news.TweetSource
	sentiment SentimentSource
	quotes    *cache.Batcher[Quote]
	history   *cache.Batcher[[]DailyBar]
	archive   store.PriceArchive
	cal       *util.MarketCalendar
	now       func() time.Time
	log       *slog.Logger
}

// NewService creates a Service from opts.
func NewService(opts Options, log *slog.Logger) *Service {
	if opts.QuoteCache == nil {
		opts.QuoteCache = cache.NewTTLCache[Quote](cache.DefaultTTL, time.Now)
	}
	if opts.HistoryCache == nil {
		opts.HistoryCache = cache.NewTTLCache[[]DailyBar](cache.DefaultTTL, time.Now)
	}
	log = log.With("component", "upstream")

	s := &Service{
		prices:    opts.Prices,
		companies: opts.Companies,
		news:      opts.News,
		tweets:    opts.Tweets,
		sentiment: opts.Sentiment,
		archive:   opts.Archive,
		cal:       util.USMarket(),
		now:       time.Now,
		log:       log,
	}
	s.quotes = cache.NewBatcher(opts.QuoteCache, s.fetchQuote, opts.Batch, log.With("cache", "quote"))
	s.history = cache.NewBatcher(opts.HistoryCache, s.fetchHistory, opts.Batch, log.With("cache", "history"))
	return s
}

func (s *Service) fetchQuote(ctx context.Context, symbol string) (Quote, error) {
	return s.prices.Quote(ctx, symbol)
}

func (s *Service) fetchHistory(ctx context.Context, symbol string) ([]DailyBar, error) {
	return s.prices.History(ctx, symbol)
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// StockPrices returns each symbol's daily series ending with today's quote.
// Symbols that cannot be quoted are logged and left out; the call fails only
// when none could be served.
func (s *Service) StockPrices(ctx context.Context, symbols []string) (map[string][]domain.PricePoint, error) {
	symbols = domain.ParseSymbols(symbols...)
	if len(symbols) == 0 {
		return map[string][]domain.PricePoint{}, nil
	}

	var (
		quotes  cache.Result[Quote]
		history map[string][]DailyBar
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quotes, err = s.quotes.Fetch(gctx, symbols)
		return err
	})
	g.Go(func() error {
		var err error
		history, err = s.historyWithArchive(gctx, symbols)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := JoinQuoteHistory(quotes.Values, history, s.cal.DateOf(s.now()))
	if len(out) == 0 {
		return nil, fmt.Errorf("stock prices for %s: %w", strings.Join(symbols, ","), ErrUnavailable)
	}
	s.archiveSeries(ctx, out)
	return out, nil
}

// StockHistory returns each symbol's daily series without today's quote.
func (s *Service) StockHistory(ctx context.Context, symbols []string) (map[string][]domain.PricePoint, error) {
	symbols = domain.ParseSymbols(symbols...)
	if len(symbols) == 0 {
		return map[string][]domain.PricePoint{}, nil
	}
	history, err := s.historyWithArchive(ctx, symbols)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]domain.PricePoint, len(history))
	for sym, bars := range history {
		out[sym] = HistoryPoints(sym, bars)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("stock history for %s: %w", strings.Join(symbols, ","), ErrUnavailable)
	}
	return out, nil
}

// historyWithArchive fetches history through the cache and fills symbols the
// provider failed on from the archive.
func (s *Service) historyWithArchive(ctx context.Context, symbols []string) (map[string][]DailyBar, error) {
	res, err := s.history.Fetch(ctx, symbols)
	if err != nil {
		return nil, err
	}
	if s.archive == nil || len(res.Failed) == 0 {
		return res.Values, nil
	}

	now := s.now()
	start := s.cal.DateOf(now.Add(-archiveWindow))
	end := s.cal.DateOf(now)
	for sym := range res.Failed {
		points, err := s.archive.ReadSeries(ctx, sym, start, end)
		if err != nil || len(points) == 0 {
			continue
		}
		bars := make([]DailyBar, 0, len(points))
		for _, p := range points {
			bars = append(bars, DailyBar{Date: p.Date, Open: p.Last - p.Change, Close: p.Last})
		}
		s.log.Info("serving archived history", "symbol", sym, "points", len(bars))
		res.Values[sym] = bars
	}
	return res.Values, nil
}

func (s *Service) archiveSeries(ctx context.Context, series map[string][]domain.PricePoint) {
	if s.archive == nil {
		return
	}
	for sym, points := range series {
		if err := s.archive.WriteSeries(ctx, sym, points); err != nil {
			s.log.Warn("archiving series", "symbol", sym, "error", err)
		}
	}
}

// Quotes returns the current quote of every symbol that could be served, in
// request order.
func (s *Service) Quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	symbols = domain.ParseSymbols(symbols...)
	res, err := s.quotes.Fetch(ctx, symbols)
	if err != nil {
		return nil, err
	}
	out := make([]Quote, 0, len(res.Values))
	for _, sym := range symbols {
		if q, ok := res.Values[sym]; ok {
			out = append(out, q)
		}
	}
	if len(out) == 0 && len(symbols) > 0 {
		return nil, fmt.Errorf("quotes for %s: %w", strings.Join(symbols, ","), ErrUnavailable)
	}
	return out, nil
}

// Movers returns the symbols that rose (gainers true) sorted by change
// descending, or the ones that fell sorted ascending.
func (s *Service) Movers(ctx context.Context, symbols []string, gainers bool) ([]domain.Mover, error) {
	quotes, err := s.Quotes(ctx, symbols)
	if err != nil {
		return nil, err
	}
	out := []domain.Mover{}
	for _, q := range quotes {
		if (gainers && q.Change > 0) || (!gainers && q.Change < 0) {
			out = append(out, domain.Mover{
				Symbol:      q.Symbol,
				Description: q.Description,
				Change:      q.Change,
				Value:       q.Last,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if gainers {
			return out[i].Change > out[j].Change
		}
		return out[i].Change < out[j].Change
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Companies, news and tweets
// ---------------------------------------------------------------------------

// LookupCompanies searches companies by name or ticker.
func (s *Service) LookupCompanies(ctx context.Context, query string) ([]domain.Company, error) {
	if s.companies == nil {
		return nil, fmt.Errorf("company lookup: %w", ErrUnavailable)
	}
	companies, err := s.companies.FindCompanies(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w", query, err)
	}
	if companies == nil {
		companies = []domain.Company{}
	}
	return companies, nil
}

// News returns the articles about symbols in language.
func (s *Service) News(ctx context.Context, symbols []string, language string) (domain.NewsResult, error) {
	if s.news == nil {
		return domain.NewsResult{}, fmt.Errorf("news: %w", ErrUnavailable)
	}
	symbols = domain.ParseSymbols(symbols...)
	res, err := s.news.News(ctx, symbols, language)
	if err != nil {
		return domain.NewsResult{}, fmt.Errorf("fetching news for %s: %w", strings.Join(symbols, ","), err)
	}
	if res.News == nil {
		res.News = []domain.Article{}
	}
	if res.Entities == nil {
		res.Entities = []domain.EntitySummary{}
	}
	return res, nil
}

// Entities returns the entities mentioned in the symbols' news, most
// mentioned first.
func (s *Service) Entities(ctx context.Context, symbols []string, language string) ([]domain.EntitySummary, error) {
	res, err := s.News(ctx, symbols, language)
	if err != nil {
		return nil, err
	}
	entities := domain.SummarizeEntities(res.News)
	if len(entities) == 0 {
		entities = res.Entities
	}
	return entities, nil
}

// Tweets returns messages about entity and their sentiment summary.
func (s *Service) Tweets(ctx context.Context, symbols []string, entity, language string) (domain.TweetsResult, error) {
	if s.tweets == nil {
		return domain.TweetsResult{}, fmt.Errorf("tweets: %w", ErrUnavailable)
	}
	symbols = domain.ParseSymbols(symbols...)
	res, err := s.tweets.Tweets(ctx, symbols, entity, language)
	if err != nil {
		return domain.TweetsResult{}, fmt.Errorf("fetching tweets for %s %q: %w", strings.Join(symbols, ","), entity, err)
	}
	if res.Tweets == nil {
		res.Tweets = []domain.Tweet{}
	}
	return res, nil
}

// Sentiment summarizes the polarity of what is said about entity.
func (s *Service) Sentiment(ctx context.Context, symbols []string, entity string) (domain.SentimentSummary, error) {
	symbols = domain.ParseSymbols(symbols...)
	if s.sentiment != nil {
		res, err := s.sentiment.Sentiment(ctx, symbols, entity)
		if err != nil {
			return domain.SentimentSummary{}, fmt.Errorf("fetching sentiment for %q: %w", entity, err)
		}
		return res, nil
	}
	res, err := s.Tweets(ctx, symbols, entity, "")
	if err != nil {
		return domain.SentimentSummary{}, err
	}
	return news.CountSentiment(res.Tweets), nil
}

// IsUnavailable reports whether err means no upstream could answer.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound)
}
