package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"stockinsights/internal/domain"
)

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	GUID    string `xml:"guid"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
	Source  string `xml:"source"`
}

var rssDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 02 Jan 2006 15:04 MST",
}

// RSSSource reads headlines from a Google News style RSS search feed. Like
// Alpaca, the feed has no entity extraction.
type RSSSource struct {
	client   *resty.Client
	baseURL  string
	lookback time.Duration
	now      func() time.Time
}

var _ Source = (*RSSSource)(nil)

// GoogleNewsURL is the Google News RSS search endpoint.
const GoogleNewsURL = "https://news.google.com/rss/search"

// NewRSSSource creates a source that queries baseURL with q="<SYMBOL> stock".
func NewRSSSource(baseURL string, timeout, lookback time.Duration) *RSSSource {
	if lookback <= 0 {
		lookback = 7 * 24 * time.Hour
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0")
	return &RSSSource{client: client, baseURL: baseURL, lookback: lookback, now: time.Now}
}

// News fetches each symbol's feed.
func (s *RSSSource) News(ctx context.Context, symbols []string, language string) (domain.NewsResult, error) {
	end := s.now()
	start := end.Add(-s.lookback)

	var articles []domain.Article
	for _, sym := range symbols {
		got, err := s.fetch(ctx, sym, language, start, end)
		if err != nil {
			return domain.NewsResult{}, fmt.Errorf("fetching rss news for %s: %w", sym, err)
		}
		articles = append(articles, got...)
	}
	return Summarize(symbols, articles), nil
}

func (s *RSSSource) fetch(ctx context.Context, symbol, language string, start, end time.Time) ([]domain.Article, error) {
	hl, gl := feedLocale(language)
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":    symbol + " stock",
			"hl":   hl,
			"gl":   gl,
			"ceid": gl + ":" + strings.SplitN(hl, "-", 2)[0],
		}).
		Get(s.baseURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("rss status %d", resp.StatusCode())
	}

	var rss rssResponse
	if err := xml.Unmarshal(resp.Body(), &rss); err != nil {
		return nil, fmt.Errorf("decoding rss: %w", err)
	}

	var articles []domain.Article
	for _, item := range rss.Channel.Items {
		t, ok := parseRSSDate(item.PubDate)
		if !ok || t.Before(start) || t.After(end) {
			continue
		}
		headline := item.Title
		if idx := strings.LastIndex(headline, " - "); idx > 0 {
			headline = headline[:idx]
		}
		source := item.Source
		if source == "" {
			source = hostOf(item.Link)
		}
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		articles = append(articles, domain.Article{
			ID:          id,
			Symbol:      symbol,
			Title:       headline,
			URL:         item.Link,
			Source:      source,
			Summary:     StripHTML(item.Desc),
			PublishedAt: t,
		})
	}
	return articles, nil
}

func parseRSSDate(s string) (time.Time, bool) {
	for _, layout := range rssDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// feedLocale maps a UI language to the feed's hl and gl parameters.
func feedLocale(language string) (hl, gl string) {
	switch strings.ToLower(language) {
	case "fr":
		return "fr", "FR"
	case "de":
		return "de", "DE"
	case "it":
		return "it", "IT"
	case "es":
		return "es", "ES"
	case "ja":
		return "ja", "JP"
	case "pt", "pt-br":
		return "pt-BR", "BR"
	case "zh-hans":
		return "zh-CN", "CN"
	case "zh-hant":
		return "zh-TW", "TW"
	default:
		return "en-US", "US"
	}
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
