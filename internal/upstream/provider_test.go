package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Alpaca
// ---------------------------------------------------------------------------

type fakeBarClient struct {
	snap *marketdata.Snapshot
	bars []marketdata.Bar
	reqs []marketdata.GetBarsRequest
}

func (f *fakeBarClient) GetBars(_ string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.reqs = append(f.reqs, req)
	return f.bars, nil
}

func (f *fakeBarClient) GetSnapshot(string, marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error) {
	return f.snap, nil
}

func TestAlpacaPricesQuote(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")
	fc := &fakeBarClient{
		snap: &marketdata.Snapshot{
			LatestTrade:  &marketdata.Trade{Price: 105, Timestamp: time.Date(2024, 3, 11, 15, 0, 0, 0, ny)},
			PrevDailyBar: &marketdata.Bar{Close: 100},
		},
		bars: []marketdata.Bar{
			{High: 110, Low: 90},
			{High: 120, Low: 95},
		},
	}
	a := newAlpacaPrices(fc, "iex")

	q, err := a.Quote(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Last != 105 || q.Change != 5 {
		t.Errorf("Last/Change = %v/%v, want 105/5", q.Last, q.Change)
	}
	if q.Week52High.Float64 != 120 || q.Week52Low.Float64 != 90 {
		t.Errorf("week52 = %v/%v, want 120/90", q.Week52High, q.Week52Low)
	}
	if q.Date != "2024-03-11" {
		t.Errorf("Date = %s, want 2024-03-11", q.Date)
	}
	if fc.reqs[0].Feed != "iex" || fc.reqs[0].TimeFrame != marketdata.OneDay {
		t.Errorf("bars request = %+v", fc.reqs[0])
	}
}

func TestAlpacaPricesQuoteNoTrade(t *testing.T) {
	a := newAlpacaPrices(&fakeBarClient{snap: &marketdata.Snapshot{}}, "iex")
	if _, err := a.Quote(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAlpacaPricesHistory(t *testing.T) {
	fc := &fakeBarClient{bars: []marketdata.Bar{
		{Timestamp: time.Date(2024, 3, 8, 5, 0, 0, 0, time.UTC), Open: 10, Close: 11},
	}}
	bars, err := newAlpacaPrices(fc, "sip").History(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(bars) != 1 || bars[0].Date != "2024-03-08" || bars[0].Close != 11 {
		t.Errorf("bars = %+v", bars)
	}
}

type fakeAssetClient struct {
	assets []alpaca.Asset
	calls  int
}

func (f *fakeAssetClient) GetAssets(alpaca.GetAssetsRequest) ([]alpaca.Asset, error) {
	f.calls++
	return f.assets, nil
}

func TestAlpacaCompaniesRanking(t *testing.T) {
	fc := &fakeAssetClient{assets: []alpaca.Asset{
		{Symbol: "IBMX", Name: "Some Other Co"},
		{Symbol: "XYZ", Name: "Partner of IBM"},
		{Symbol: "IBM", Name: "International Business Machines"},
		{Symbol: "AAPL", Name: "Apple Inc."},
	}}
	c := newAlpacaCompanies(fc)

	got, err := c.FindCompanies(context.Background(), "ibm")
	if err != nil {
		t.Fatalf("FindCompanies: %v", err)
	}
	want := []string{"IBM", "IBMX", "XYZ"}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %v", got, want)
	}
	for i := range want {
		if got[i].Symbol != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i].Symbol, want[i])
		}
	}

	if _, err := c.FindCompanies(context.Background(), "apple"); err != nil {
		t.Fatalf("FindCompanies: %v", err)
	}
	if fc.calls != 1 {
		t.Errorf("GetAssets calls = %d, want 1 (cached)", fc.calls)
	}
}

// ---------------------------------------------------------------------------
// Yahoo
// ---------------------------------------------------------------------------

func TestYahooPrices(t *testing.T) {
	y := NewYahooPrices()
	y.getQuote = func(symbol string) (*finance.Quote, error) {
		q := &finance.Quote{}
		q.ShortName = "Intl Business Machines"
		q.RegularMarketPrice = 195
		q.RegularMarketChange = -1.5
		q.FiftyTwoWeekHigh = 200
		q.RegularMarketTime = int(time.Date(2024, 3, 11, 20, 0, 0, 0, time.UTC).Unix())
		return q, nil
	}
	y.getChart = func(*chart.Params) ([]*finance.ChartBar, error) {
		return []*finance.ChartBar{{
			Open:      decimal.NewFromFloat(10.5),
			Close:     decimal.NewFromFloat(11),
			Timestamp: int(time.Date(2024, 3, 8, 14, 30, 0, 0, time.UTC).Unix()),
		}}, nil
	}

	q, err := y.Quote(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Last != 195 || q.Change != -1.5 || q.Description != "Intl Business Machines" {
		t.Errorf("quote = %+v", q)
	}
	if !q.Week52High.Valid || q.Week52Low.Valid {
		t.Errorf("week52 = %v/%v, want 200/null", q.Week52High, q.Week52Low)
	}
	if q.Date != "2024-03-11" {
		t.Errorf("Date = %s, want 2024-03-11", q.Date)
	}

	bars, err := y.History(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(bars) != 1 || bars[0].Open != 10.5 || bars[0].Date != "2024-03-08" {
		t.Errorf("bars = %+v", bars)
	}
}

func TestYahooPricesNilQuote(t *testing.T) {
	y := NewYahooPrices()
	y.getQuote = func(string) (*finance.Quote, error) { return nil, nil }
	if _, err := y.Quote(context.Background(), "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Insights
// ---------------------------------------------------------------------------

func newInsightsServer(t *testing.T, routes map[string]string) (*InsightsClient, *[]string) {
	t.Helper()
	var (
		mu      sync.Mutex
		queries []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewInsightsClient(srv.URL, "cid", 5*time.Second), &queries
}

func TestInsightsQuoteAndHistory(t *testing.T) {
	c, queries := newInsightsServer(t, map[string]string{
		"/markets/quote":   `[{"symbol":"ibm","last":195,"change":2,"week_52_high":200,"week_52_low":null}]`,
		"/markets/history": `{"IBM":[{"date":"2024-03-08","open":190,"close":193},{"date":"bad","open":1,"close":2}]}`,
	})

	q, err := c.Quote(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Last != 195 || q.Week52High.Float64 != 200 || q.Week52Low.Valid {
		t.Errorf("quote = %+v", q)
	}

	bars, err := c.History(context.Background(), "IBM")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(bars) != 1 || bars[0].Close != 193 {
		t.Errorf("bars = %+v", bars)
	}

	if !strings.Contains((*queries)[0], "client_id=cid") || !strings.Contains((*queries)[0], "symbols=IBM") {
		t.Errorf("query = %s", (*queries)[0])
	}
}

func TestInsightsStringWrappedBody(t *testing.T) {
	c, _ := newInsightsServer(t, map[string]string{
		"/markets/find": `"[{\"symbol\":\"ibm\",\"description\":\"IBM Corp\"}]"`,
	})
	got, err := c.FindCompanies(context.Background(), "ibm")
	if err != nil {
		t.Fatalf("FindCompanies: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "IBM" || got[0].Description != "IBM Corp" {
		t.Errorf("got %+v", got)
	}
}

func TestInsightsEmbeddedStatus(t *testing.T) {
	c, _ := newInsightsServer(t, map[string]string{
		"/markets/find": `{"httpCode":"429","message":"slow down"}`,
	})
	_, err := c.FindCompanies(context.Background(), "ibm")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != 429 {
		t.Errorf("Code = %d, want 429", se.Code)
	}
}

func TestInsightsNews(t *testing.T) {
	c, _ := newInsightsServer(t, map[string]string{
		"/news/find": `{"news":[
			{"_id":"1","symbol":"IBM","title":"Watson","url":"http://x/1","date":"2024-03-08T12:00:00Z",
			 "relations":["IBM acquires"],"entities":[{"text":"watson","score":0.5,"sentiment":"positive"}]},
			{"_id":"2","title":"Cloud","entities":[{"text":"WATSON","score":0.3,"sentiment":"negative"}]}
		]}`,
	})

	res, err := c.News(context.Background(), []string{"IBM"}, "en")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(res.News) != 2 || res.News[1].Symbol != "IBM" {
		t.Fatalf("news = %+v", res.News)
	}
	if len(res.News[0].Relations) != 1 {
		t.Errorf("relations = %v", res.News[0].Relations)
	}
	if len(res.Entities) != 1 || res.Entities[0].Text != "Watson" || res.Entities[0].Count != 2 {
		t.Errorf("entities = %+v", res.Entities)
	}
}

func TestInsightsTweets(t *testing.T) {
	c, queries := newInsightsServer(t, map[string]string{
		"/twitter/find":   `[{"message":"Go IBM","sentiment":"POSITIVE"}]`,
		"/sentiment/find": `{"positive":3,"negative":1,"neutral":0}`,
	})

	res, err := c.Tweets(context.Background(), []string{"IBM", "AAPL"}, "Watson", "fr")
	if err != nil {
		t.Fatalf("Tweets: %v", err)
	}
	if len(res.Tweets) != 1 || res.Tweets[0].Sentiment != "positive" {
		t.Errorf("tweets = %+v", res.Tweets)
	}
	if res.Sentiment.Positive != 3 || res.Sentiment.Negative != 1 {
		t.Errorf("sentiment = %+v", res.Sentiment)
	}
	if len(*queries) != 2 {
		t.Errorf("requests = %d, want 2", len(*queries))
	}
}

func TestInsightsHTTPError(t *testing.T) {
	c, _ := newInsightsServer(t, map[string]string{})
	_, err := c.Quote(context.Background(), "IBM")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("err = %v, want 404 StatusError", err)
	}
}
