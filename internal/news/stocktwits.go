package news

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"stockinsights/internal/domain"
	"stockinsights/internal/util"
)

// StockTwitsURL is the public StockTwits API root.
const StockTwitsURL = "https://api.stocktwits.com/api/2"

type stocktwitsResponse struct {
	Response struct {
		Status int `json:"status"`
	} `json:"response"`
	Messages []stocktwitsMessage `json:"messages"`
}

type stocktwitsMessage struct {
	ID        int    `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	User      struct {
		Username string `json:"username"`
	} `json:"user"`
	Entities struct {
		Sentiment *struct {
			Basic string `json:"basic"`
		} `json:"sentiment"`
	} `json:"entities"`
}

// StockTwitsSource serves tweets from the StockTwits symbol streams. Messages
// tagged Bullish or Bearish count as positive or negative.
type StockTwitsSource struct {
	client  *resty.Client
	limiter *util.RateLimiter
	limit   int
}

var _ TweetSource = (*StockTwitsSource)(nil)

// NewStockTwitsSource creates a source against baseURL, at most perMinute
// requests a minute.
func NewStockTwitsSource(baseURL string, timeout time.Duration, perMinute int) *StockTwitsSource {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0")
	var limiter *util.RateLimiter
	if perMinute > 0 {
		limiter = util.NewRateLimiter(perMinute)
	}
	return &StockTwitsSource{client: client, limiter: limiter, limit: 30}
}

// Tweets returns the newest messages across symbols, keeping only those that
// mention entity when it is set.
func (s *StockTwitsSource) Tweets(ctx context.Context, symbols []string, entity, _ string) (domain.TweetsResult, error) {
	var tweets []domain.Tweet
	seen := make(map[string]bool)
	for _, sym := range symbols {
		msgs, err := s.fetch(ctx, sym)
		if err != nil {
			return domain.TweetsResult{}, fmt.Errorf("fetching stocktwits for %s: %w", sym, err)
		}
		for _, t := range msgs {
			if seen[t.ID] || !mentions(t.Message, entity) {
				continue
			}
			seen[t.ID] = true
			tweets = append(tweets, t)
		}
	}
	sort.SliceStable(tweets, func(i, j int) bool {
		return tweets[i].CreatedAt.After(tweets[j].CreatedAt)
	})
	if len(tweets) > s.limit {
		tweets = tweets[:s.limit]
	}
	if tweets == nil {
		tweets = []domain.Tweet{}
	}
	return domain.TweetsResult{Tweets: tweets, Sentiment: CountSentiment(tweets)}, nil
}

func (s *StockTwitsSource) fetch(ctx context.Context, symbol string) ([]domain.Tweet, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := s.client.R().
		SetContext(ctx).
		Get("/streams/symbol/" + url.PathEscape(symbol) + ".json")
	if err != nil {
		return nil, err
	}

	var st stocktwitsResponse
	if err := json.Unmarshal(resp.Body(), &st); err != nil {
		return nil, fmt.Errorf("decoding stocktwits: %w", err)
	}
	if st.Response.Status != 200 {
		return nil, fmt.Errorf("stocktwits status %d", st.Response.Status)
	}

	out := make([]domain.Tweet, 0, len(st.Messages))
	for _, msg := range st.Messages {
		t, err := time.Parse(time.RFC3339, msg.CreatedAt)
		if err != nil {
			continue
		}
		sentiment := domain.SentimentNeutral
		if msg.Entities.Sentiment != nil {
			switch msg.Entities.Sentiment.Basic {
			case "Bullish":
				sentiment = domain.SentimentPositive
			case "Bearish":
				sentiment = domain.SentimentNegative
			}
		}
		out = append(out, domain.Tweet{
			ID:        strconv.Itoa(msg.ID),
			Author:    msg.User.Username,
			Message:   html.UnescapeString(msg.Body),
			Sentiment: sentiment,
			CreatedAt: t,
		})
	}
	return out, nil
}

func mentions(message, entity string) bool {
	if entity == "" {
		return true
	}
	return strings.Contains(strings.ToLower(message), strings.ToLower(entity))
}
