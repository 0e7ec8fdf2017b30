package news

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"stockinsights/internal/domain"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Hello</p><p>world</p>", "Hello world"},
		{"Ap<b>ple</b> &amp; friends", "Apple & friends"},
		{"<div>  spaced\n\tout </div>", "spaced out"},
		{"<script>var x = 1;</script>kept", "kept"},
		{"plain text", "plain text"},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractSymbolContent(t *testing.T) {
	body := `<p>Markets were quiet.</p><p>Shares of <b>IBM</b> rose 2%.</p><ul><li>ibm guidance raised</li></ul>`
	got := ExtractSymbolContent(body, "IBM")
	want := "Shares of IBM rose 2%. ibm guidance raised"
	if got != want {
		t.Errorf("ExtractSymbolContent = %q, want %q", got, want)
	}

	got = ExtractSymbolContent("<p>No mention here.</p>", "AAPL")
	if got != "No mention here." {
		t.Errorf("fallback = %q, want full text", got)
	}
}

type stubSource struct {
	res   domain.NewsResult
	err   error
	calls int
}

func (s *stubSource) News(context.Context, []string, string) (domain.NewsResult, error) {
	s.calls++
	return s.res, s.err
}

func TestFallbackSource(t *testing.T) {
	failing := &stubSource{err: errors.New("down")}
	working := &stubSource{res: domain.NewsResult{Symbol: "AAA"}}
	unused := &stubSource{}

	f := NewFallbackSource(slog.New(slog.DiscardHandler)).
		Add("insights", failing).
		Add("alpaca", working).
		Add("rss", unused)

	res, err := f.News(context.Background(), []string{"AAA"}, "en")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if res.Symbol != "AAA" {
		t.Errorf("Symbol = %q, want AAA", res.Symbol)
	}
	if failing.calls != 1 || working.calls != 1 || unused.calls != 0 {
		t.Errorf("calls = %d/%d/%d, want 1/1/0", failing.calls, working.calls, unused.calls)
	}
}

func TestFallbackSourceAllFail(t *testing.T) {
	f := NewFallbackSource(slog.New(slog.DiscardHandler)).
		Add("a", &stubSource{err: errors.New("a down")}).
		Add("b", &stubSource{err: errors.New("b down")})

	if _, err := f.News(context.Background(), []string{"AAA"}, ""); err == nil {
		t.Error("News should fail when every source fails")
	}
	if _, err := NewFallbackSource(slog.New(slog.DiscardHandler)).News(context.Background(), nil, ""); !errors.Is(err, ErrNoSource) {
		t.Errorf("empty chain error = %v, want ErrNoSource", err)
	}
}

type fakeNewsClient struct {
	requests []marketdata.GetNewsRequest
}

func (f *fakeNewsClient) GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error) {
	f.requests = append(f.requests, req)
	sym := req.Symbols[0]
	return []marketdata.News{{
		ID:        7,
		Headline:  sym + " announces buyback",
		Content:   "<p>Intro.</p><p>" + sym + " will buy back shares.</p>",
		CreatedAt: time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC),
		URL:       "https://example.com/" + sym,
	}}, nil
}

func TestAlpacaSource(t *testing.T) {
	client := &fakeNewsClient{}
	src := newAlpacaSource(client, 24*time.Hour)
	src.now = func() time.Time { return time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC) }

	res, err := src.News(context.Background(), []string{"AAA", "BBB"}, "en")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(client.requests) != 2 {
		t.Fatalf("requests = %d, want one per symbol", len(client.requests))
	}
	if got := client.requests[0].Start; !got.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v, want one day back", got)
	}
	if res.Symbol != "AAA,BBB" {
		t.Errorf("Symbol = %q, want AAA,BBB", res.Symbol)
	}
	groups := res.BySymbol()
	if len(groups["AAA"]) != 1 || len(groups["BBB"]) != 1 {
		t.Fatalf("BySymbol = %v", groups)
	}
	a := groups["BBB"][0]
	if a.Summary != "BBB will buy back shares." {
		t.Errorf("Summary = %q", a.Summary)
	}
	if a.ID != "7" || a.Source != "alpaca" || len(a.Entities) != 0 {
		t.Errorf("article = %+v", a)
	}
}

func TestRSSSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "IBM stock" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(`<?xml version="1.0"?>
<rss><channel>
<item><title>IBM beats estimates - Reuters</title><link>https://reuters.com/a</link>
<pubDate>Tue, 02 Jan 2024 15:00:00 GMT</pubDate><description>&lt;b&gt;Strong&lt;/b&gt; quarter</description><source>Reuters</source></item>
<item><title>Old news</title><link>https://example.com/old</link>
<pubDate>Mon, 01 Jan 2018 15:00:00 GMT</pubDate></item>
</channel></rss>`))
	}))
	defer srv.Close()

	src := NewRSSSource(srv.URL, time.Second, 7*24*time.Hour)
	src.now = func() time.Time { return time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC) }

	res, err := src.News(context.Background(), []string{"IBM"}, "en")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(res.News) != 1 {
		t.Fatalf("News = %d articles, want 1 (old item filtered)", len(res.News))
	}
	a := res.News[0]
	if a.Title != "IBM beats estimates" || a.Source != "Reuters" || a.Summary != "Strong quarter" {
		t.Errorf("article = %+v", a)
	}
	if a.Symbol != "IBM" {
		t.Errorf("Symbol = %q, want IBM", a.Symbol)
	}
}

func TestStockTwitsSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streams/symbol/AAPL.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"response":{"status":200},"messages":[
{"id":1,"body":"Apple &amp; the iPhone","created_at":"2024-01-02T15:00:00Z","user":{"username":"a"},"entities":{"sentiment":{"basic":"Bullish"}}},
{"id":2,"body":"iPhone sales slow","created_at":"2024-01-02T16:00:00Z","user":{"username":"b"},"entities":{"sentiment":{"basic":"Bearish"}}},
{"id":3,"body":"watching the tape","created_at":"2024-01-02T17:00:00Z","user":{"username":"c"},"entities":{"sentiment":null}}
]}`))
	}))
	defer srv.Close()

	src := NewStockTwitsSource(srv.URL, time.Second, 0)

	all, err := src.Tweets(context.Background(), []string{"AAPL"}, "", "en")
	if err != nil {
		t.Fatalf("Tweets: %v", err)
	}
	if len(all.Tweets) != 3 {
		t.Fatalf("Tweets = %d, want 3", len(all.Tweets))
	}
	if all.Tweets[0].ID != "3" {
		t.Errorf("newest first: got id %s, want 3", all.Tweets[0].ID)
	}
	want := domain.SentimentSummary{Positive: 1, Negative: 1, Neutral: 1}
	if all.Sentiment != want {
		t.Errorf("Sentiment = %+v, want %+v", all.Sentiment, want)
	}

	iphone, err := src.Tweets(context.Background(), []string{"AAPL"}, "iphone", "en")
	if err != nil {
		t.Fatalf("Tweets: %v", err)
	}
	if len(iphone.Tweets) != 2 {
		t.Errorf("entity filter kept %d tweets, want 2", len(iphone.Tweets))
	}
	if iphone.Tweets[1].Message != "Apple & the iPhone" {
		t.Errorf("Message = %q, want unescaped body", iphone.Tweets[1].Message)
	}
}

func TestCountSentiment(t *testing.T) {
	got := CountSentiment([]domain.Tweet{
		{Sentiment: "POSITIVE"}, {Sentiment: domain.SentimentPositive}, {Sentiment: "weird"},
	})
	if got.Positive != 2 || got.Neutral != 1 || got.Negative != 0 {
		t.Errorf("CountSentiment = %+v", got)
	}
}
