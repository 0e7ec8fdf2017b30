package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/guregu/null/v6"
	"golang.org/x/sync/errgroup"

	"stockinsights/internal/domain"
	"stockinsights/internal/news"
)

// StatusError is a non-success answer from the insights service. Code is the
// HTTP status, or the httpCode the service embedded in its body.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("insights %s: status %d: %s", e.Path, e.Code, e.Body)
}

// InsightsClient calls the hosted market, news, sentiment and tweet APIs.
// Every request carries the configured client_id.
type InsightsClient struct {
	client   *resty.Client
	clientID string
}

var (
	_ PriceProvider    = (*InsightsClient)(nil)
	_ CompanyLookup    = (*InsightsClient)(nil)
	_ SentimentSource  = (*InsightsClient)(nil)
	_ news.Source      = (*InsightsClient)(nil)
	_ news.TweetSource = (*InsightsClient)(nil)
)

// NewInsightsClient creates a client for the service at baseURL.
func NewInsightsClient(baseURL, clientID string, timeout time.Duration) *InsightsClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &InsightsClient{client: client, clientID: clientID}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type companyWire struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Name        string `json:"name"`
}

type quoteWire struct {
	Symbol      string   `json:"symbol"`
	Description string   `json:"description"`
	Last        float64  `json:"last"`
	Change      float64  `json:"change"`
	Week52High  *float64 `json:"week_52_high"`
	Week52Low   *float64 `json:"week_52_low"`
}

type barWire struct {
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	Close float64 `json:"close"`
}

type articleWire struct {
	ID        string                 `json:"_id"`
	Symbol    string                 `json:"symbol"`
	Title     string                 `json:"title"`
	URL       string                 `json:"url"`
	Source    string                 `json:"source"`
	Summary   string                 `json:"summary"`
	Date      string                 `json:"date"`
	Relations []string               `json:"relations"`
	Entities  []domain.EntityMention `json:"entities"`
}

type newsWire struct {
	Symbol   string                 `json:"symbol"`
	News     []articleWire          `json:"news"`
	Articles []articleWire          `json:"articles"`
	Entities []domain.EntitySummary `json:"entities"`
}

type tweetWire struct {
	ID        string `json:"_id"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	Sentiment string `json:"sentiment"`
	Date      string `json:"date"`
}

func (a articleWire) article(fallbackSymbol string) domain.Article {
	sym := domain.NormalizeSymbol(a.Symbol)
	if sym == "" {
		sym = fallbackSymbol
	}
	published, _ := parseTimestamp(a.Date)
	entities := a.Entities
	if entities == nil {
		entities = []domain.EntityMention{}
	}
	return domain.Article{
		ID:          a.ID,
		Symbol:      sym,
		Title:       a.Title,
		URL:         a.URL,
		Source:      a.Source,
		Summary:     a.Summary,
		PublishedAt: published,
		Relations:   a.Relations,
		Entities:    entities,
	}
}

// parseTimestamp accepts RFC 3339 timestamps, bare dates and unix seconds.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0), true
	}
	return time.Time{}, false
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// get issues a GET and decodes the response into v. Bodies that arrive as a
// JSON string holding JSON are unwrapped first.
func (c *InsightsClient) get(ctx context.Context, path string, params map[string]string, v any) error {
	q := map[string]string{"client_id": c.clientID}
	for k, val := range params {
		if val != "" {
			q[k] = val
		}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(q).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}

	body := unwrapJSON(resp.Body())
	code := resp.StatusCode()
	if embedded := embeddedStatus(body); embedded != 0 {
		code = embedded
	}
	if code >= http.StatusBadRequest {
		return &StatusError{Path: path, Code: code, Body: truncate(string(body), 200)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func unwrapJSON(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err == nil {
			return bytes.TrimSpace([]byte(inner))
		}
	}
	return body
}

// embeddedStatus reads an httpCode field from an object body, as a number or
// a numeric string.
func embeddedStatus(body []byte) int {
	if len(body) == 0 || body[0] != '{' {
		return 0
	}
	var probe struct {
		HTTPCode any `json:"httpCode"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return 0
	}
	switch v := probe.HTTPCode.(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// FindCompanies looks companies up by name.
func (c *InsightsClient) FindCompanies(ctx context.Context, query string) ([]domain.Company, error) {
	var wire []companyWire
	if err := c.get(ctx, "/markets/find", map[string]string{"name": query}, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Company, 0, len(wire))
	for _, w := range wire {
		desc := w.Description
		if desc == "" {
			desc = w.Name
		}
		out = append(out, domain.Company{Symbol: domain.NormalizeSymbol(w.Symbol), Description: desc})
	}
	return out, nil
}

// Quote fetches one symbol's current price.
func (c *InsightsClient) Quote(ctx context.Context, symbol string) (Quote, error) {
	var wire []quoteWire
	if err := c.get(ctx, "/markets/quote", map[string]string{"symbols": symbol}, &wire); err != nil {
		return Quote{}, err
	}
	for _, w := range wire {
		if domain.NormalizeSymbol(w.Symbol) != symbol {
			continue
		}
		return Quote{
			Symbol:      symbol,
			Description: w.Description,
			Last:        w.Last,
			Change:      w.Change,
			Week52High:  null.FloatFromPtr(w.Week52High),
			Week52Low:   null.FloatFromPtr(w.Week52Low),
		}, nil
	}
	return Quote{}, fmt.Errorf("insights quote %s: %w", symbol, ErrNotFound)
}

// History fetches one symbol's daily open and close.
func (c *InsightsClient) History(ctx context.Context, symbol string) ([]DailyBar, error) {
	var wire map[string][]barWire
	if err := c.get(ctx, "/markets/history", map[string]string{"symbols": symbol}, &wire); err != nil {
		return nil, err
	}
	var bars []barWire
	for k, v := range wire {
		if domain.NormalizeSymbol(k) == symbol {
			bars = v
			break
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("insights history %s: %w", symbol, ErrNotFound)
	}

	out := make([]DailyBar, 0, len(bars))
	for _, b := range bars {
		d, err := domain.ParseDate(b.Date)
		if err != nil {
			continue
		}
		out = append(out, DailyBar{Date: d, Open: b.Open, Close: b.Close})
	}
	return out, nil
}

// News fetches articles with their extracted entities.
func (c *InsightsClient) News(ctx context.Context, symbols []string, language string) (domain.NewsResult, error) {
	var wire newsWire
	err := c.get(ctx, "/news/find", map[string]string{
		"symbol":   strings.Join(symbols, ","),
		"language": language,
	}, &wire)
	if err != nil {
		return domain.NewsResult{}, err
	}

	fallback := ""
	if len(symbols) == 1 {
		fallback = symbols[0]
	}
	items := wire.News
	if items == nil {
		items = wire.Articles
	}
	articles := make([]domain.Article, 0, len(items))
	for _, a := range items {
		articles = append(articles, a.article(fallback))
	}

	res := news.Summarize(symbols, articles)
	if len(wire.Entities) > 0 {
		res.Entities = wire.Entities
	}
	return res, nil
}

// Sentiment counts positive, negative and neutral mentions of entity.
func (c *InsightsClient) Sentiment(ctx context.Context, symbols []string, entity string) (domain.SentimentSummary, error) {
	var out domain.SentimentSummary
	err := c.get(ctx, "/sentiment/find", map[string]string{
		"symbol": strings.Join(symbols, ","),
		"entity": entity,
	}, &out)
	return out, err
}

// Tweets fetches tweets and the sentiment summary for entity in parallel.
func (c *InsightsClient) Tweets(ctx context.Context, symbols []string, entity, language string) (domain.TweetsResult, error) {
	var (
		wire      []tweetWire
		sentiment domain.SentimentSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, "/twitter/find", map[string]string{
			"symbol":   strings.Join(symbols, ","),
			"entity":   entity,
			"language": language,
		}, &wire)
	})
	g.Go(func() error {
		var err error
		sentiment, err = c.Sentiment(gctx, symbols, entity)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.TweetsResult{}, err
	}

	tweets := make([]domain.Tweet, 0, len(wire))
	for _, w := range wire {
		created, _ := parseTimestamp(w.Date)
		tweets = append(tweets, domain.Tweet{
			ID:        w.ID,
			Author:    w.Author,
			Message:   w.Message,
			Sentiment: domain.Sentiment(strings.ToLower(w.Sentiment)),
			CreatedAt: created,
		})
	}
	return domain.TweetsResult{Tweets: tweets, Sentiment: sentiment}, nil
}
