// Package domain defines the core types shared by the dashboard engine, the
// upstream providers and the HTTP API.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// ---------------------------------------------------------------------------
// Symbols
// ---------------------------------------------------------------------------

// NormalizeSymbol returns the canonical (trimmed, uppercase) form of a ticker.
// Every per-symbol map in the module is keyed by this form.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ParseSymbols splits a comma separated list into canonical symbols, dropping
// blanks and duplicates while keeping first-seen order.
func ParseSymbols(csv ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range csv {
		for _, s := range strings.Split(part, ",") {
			sym := NormalizeSymbol(s)
			if sym == "" || seen[sym] {
				continue
			}
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Dates
// ---------------------------------------------------------------------------

// Date is a calendar day in YYYY-MM-DD form. The zero-padded layout makes
// lexical order equal to chronological order.
type Date string

const dateLayout = "2006-01-02"

// NewDate returns the calendar day of t in t's own location.
func NewDate(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// ParseDate accepts "2006-01-02", the unpadded "2006-1-2" and RFC 3339
// timestamps, returning the canonical Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, "2006-1-2", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return "", fmt.Errorf("parsing date %q", s)
}

// Time returns the day as midnight UTC.
func (d Date) Time() time.Time {
	t, _ := time.Parse(dateLayout, string(d))
	return t
}

func (d Date) String() string { return string(d) }

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// PricePoint is one day of price data for a symbol. The 52-week fields are
// null when the upstream did not supply them.
type PricePoint struct {
	Symbol     string     `json:"symbol"`
	Date       Date       `json:"date"`
	Last       float64    `json:"last"`
	Change     float64    `json:"change"`
	Week52High null.Float `json:"week_52_high"`
	Week52Low  null.Float `json:"week_52_low"`
}

// Week52Position places Last within the 52-week range, 0 at the low and 1
// at the high. Missing or degenerate ranges yield the neutral midpoint 0.5.
func (p PricePoint) Week52Position() float64 {
	if !p.Week52High.Valid || !p.Week52Low.Valid {
		return 0.5
	}
	span := p.Week52High.Float64 - p.Week52Low.Float64
	if span == 0 {
		return 0.5
	}
	return (p.Last - p.Week52Low.Float64) / span
}

// DateSnapshot is every symbol's point for one calendar day.
type DateSnapshot struct {
	Date Date         `json:"date"`
	Data []PricePoint `json:"data"`
}

// Mover is a symbol ranked by its daily change.
type Mover struct {
	Symbol      string  `json:"symbol"`
	Description string  `json:"description,omitempty"`
	Change      float64 `json:"change"`
	Value       float64 `json:"value"`
}

// ---------------------------------------------------------------------------
// Companies
// ---------------------------------------------------------------------------

// Company is a roster entry. It exists independently of price data.
type Company struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

// ---------------------------------------------------------------------------
// News, sentiment and tweets
// ---------------------------------------------------------------------------

// Sentiment is the polarity label attached to an entity mention or tweet.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Sign maps a polarity to +1, -1 or 0. Unknown labels count as neutral.
func (s Sentiment) Sign() float64 {
	switch Sentiment(strings.ToLower(string(s))) {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	default:
		return 0
	}
}

// EntityMention is one named entity extracted from an article.
type EntityMention struct {
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	Sentiment Sentiment `json:"sentiment"`
}

// Article is a news article about a symbol.
type Article struct {
	ID          string          `json:"id,omitempty"`
	Symbol      string          `json:"symbol"`
	Title       string          `json:"title"`
	URL         string          `json:"url,omitempty"`
	Source      string          `json:"source,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
	Relations   []string        `json:"relations,omitempty"`
	Entities    []EntityMention `json:"entities"`
}

// EntitySummary is the upstream's per-entity count and average sentiment.
type EntitySummary struct {
	Text             string  `json:"text"`
	Count            int     `json:"count"`
	AverageSentiment float64 `json:"averageSentiment"`
}

// NewsResult is the /stocknews payload. Symbol holds the requested symbols
// joined by commas; each article names the symbol it belongs to.
type NewsResult struct {
	Symbol   string          `json:"symbol"`
	News     []Article       `json:"news"`
	Entities []EntitySummary `json:"entities"`
}

// BySymbol groups the articles by their canonical symbol.
func (r NewsResult) BySymbol() map[string][]Article {
	out := make(map[string][]Article)
	for _, a := range r.News {
		sym := NormalizeSymbol(a.Symbol)
		out[sym] = append(out[sym], a)
	}
	return out
}

// Entity is one ranked bubble in the entity rollup.
type Entity struct {
	ID         string  `json:"_id"`
	Value      int     `json:"value"`
	ColorValue float64 `json:"colorValue"`
}

// SentimentSummary counts results by polarity.
type SentimentSummary struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Tweet is a social message about a symbol or entity.
type Tweet struct {
	ID        string    `json:"id,omitempty"`
	Author    string    `json:"author,omitempty"`
	Message   string    `json:"message"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TweetsResult is the /tweets payload.
type TweetsResult struct {
	Tweets    []Tweet          `json:"tweets"`
	Sentiment SentimentSummary `json:"sentiment"`
}
