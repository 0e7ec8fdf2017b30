// Package insights is a Go client for the insights server's HTTP API.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"stockinsights/internal/dashboard"
	"stockinsights/internal/domain"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("insights api: status %d: %s", e.Status, e.Message)
}

// Client provides a Go SDK for interacting with the insights-server API.
type Client struct {
	http     *resty.Client
	language string
}

var _ dashboard.Fetcher = (*Client)(nil)

// NewClient creates a new insights API client.
func NewClient(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// WithLanguage sets the Accept-Language sent with every request.
func (c *Client) WithLanguage(lang string) *Client {
	c.language = lang
	if lang != "" {
		c.http.SetHeader("Accept-Language", lang)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		var e struct {
			Error string `json:"error"`
		}
		msg := resp.String()
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	}
	if out == nil || resp.StatusCode() == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, out)
}

func symbolParams(key string, symbols []string) url.Values {
	return url.Values{key: {strings.Join(symbols, ",")}}
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// LookupCompanies searches companies by name.
func (c *Client) LookupCompanies(ctx context.Context, query string) ([]domain.Company, error) {
	var out []domain.Company
	err := c.get(ctx, "/companylookup", url.Values{"company": {query}}, &out)
	return out, err
}

// StockPrices returns each symbol's series ending with today's quote.
func (c *Client) StockPrices(ctx context.Context, symbols []string) (map[string][]domain.PricePoint, error) {
	var out map[string][]domain.PricePoint
	err := c.get(ctx, "/stockprice", symbolParams("symbols", symbols), &out)
	return out, err
}

// StockHistory returns each symbol's daily history.
func (c *Client) StockHistory(ctx context.Context, symbols []string) (map[string][]domain.PricePoint, error) {
	var out map[string][]domain.PricePoint
	err := c.get(ctx, "/stockhistory", symbolParams("symbols", symbols), &out)
	return out, err
}

// News returns articles about symbols. An empty language defers to the
// client's Accept-Language.
func (c *Client) News(ctx context.Context, symbols []string, language string) (domain.NewsResult, error) {
	params := symbolParams("symbol", symbols)
	if language != "" {
		params.Set("language", language)
	}
	var out domain.NewsResult
	err := c.get(ctx, "/stocknews", params, &out)
	return out, err
}

// Tweets returns tweets about entity with their sentiment summary.
func (c *Client) Tweets(ctx context.Context, symbols []string, entity, language string) (domain.TweetsResult, error) {
	params := symbolParams("symbol", symbols)
	params.Set("entity", entity)
	if language != "" {
		params.Set("language", language)
	}
	var out domain.TweetsResult
	err := c.get(ctx, "/tweets", params, &out)
	return out, err
}

// Sentiment returns the polarity counts for entity.
func (c *Client) Sentiment(ctx context.Context, symbols []string, entity string) (domain.SentimentSummary, error) {
	params := symbolParams("symbol", symbols)
	params.Set("entity", entity)
	var out domain.SentimentSummary
	err := c.get(ctx, "/sentiment", params, &out)
	return out, err
}

// Strings returns the UI strings for language.
func (c *Client) Strings(ctx context.Context, language string) (map[string]string, error) {
	var params url.Values
	if language != "" {
		params = url.Values{"language": {language}}
	}
	var out map[string]string
	err := c.get(ctx, "/strings", params, &out)
	return out, err
}

// Movers returns the gainers (or losers) among symbols.
func (c *Client) Movers(ctx context.Context, symbols []string, gainers bool) ([]domain.Mover, error) {
	path := "/demo/negative"
	if gainers {
		path = "/demo/positive"
	}
	var out []domain.Mover
	err := c.get(ctx, path, symbolParams("symbols", symbols), &out)
	return out, err
}

// Entities returns the entities in the symbols' news, most mentioned first.
func (c *Client) Entities(ctx context.Context, symbols []string) ([]domain.EntitySummary, error) {
	var out []domain.EntitySummary
	err := c.get(ctx, "/demo/entities", symbolParams("symbol", symbols), &out)
	return out, err
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// Session is a hosted dashboard and its current state.
type Session struct {
	ID    string             `json:"id"`
	State dashboard.Snapshot `json:"state"`
}

// Intent is a user action sent to a hosted session.
type Intent struct {
	Type      string           `json:"type"`
	Symbols   []string         `json:"symbols,omitempty"`
	Companies []domain.Company `json:"companies,omitempty"`
	Query     string           `json:"query,omitempty"`
	Entity    string           `json:"entity,omitempty"`
	Date      string           `json:"date,omitempty"`
	Language  string           `json:"language,omitempty"`
}

// CreateSession opens a hosted dashboard with startup parameters.
func (c *Client) CreateSession(ctx context.Context, params url.Values) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/sessions", params, nil, &out)
	return out, err
}

// GetSession returns a hosted dashboard's state.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var out Session
	err := c.get(ctx, "/api/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

// SendIntent applies an intent and returns the resulting state.
func (c *Client) SendIntent(ctx context.Context, id string, in Intent) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(id)+"/actions", nil, in, &out)
	return out, err
}

// DeleteSession closes a hosted dashboard.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil, nil)
}
