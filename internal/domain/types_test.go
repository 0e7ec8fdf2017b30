package domain

import (
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"aapl":   "AAPL",
		" msft ": "MSFT",
		"Brk.B":  "BRK.B",
		"":       "",
	}
	for in, want := range cases {
		if got := NormalizeSymbol(in); got != want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSymbols(t *testing.T) {
	got := ParseSymbols("ibm, aapl,,IBM", "msft")
	want := []string{"IBM", "AAPL", "MSFT"}
	if len(got) != len(want) {
		t.Fatalf("ParseSymbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ParseSymbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]Date{
		"2024-01-05":           "2024-01-05",
		"2024-1-5":             "2024-01-05",
		"2024-03-10T15:04:05Z": "2024-03-10",
	}
	for in, want := range cases {
		got, err := ParseDate(in)
		if err != nil {
			t.Fatalf("ParseDate(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseDate(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseDate("yesterday"); err == nil {
		t.Error("ParseDate(\"yesterday\") should fail")
	}
}

func TestDateOrdering(t *testing.T) {
	a := NewDate(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC))
	b := NewDate(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if !(a < b) {
		t.Errorf("%s should sort before %s", a, b)
	}
}

func TestWeek52Position(t *testing.T) {
	p := PricePoint{Last: 15, Week52High: null.FloatFrom(20), Week52Low: null.FloatFrom(10)}
	if got := p.Week52Position(); got != 0.5 {
		t.Errorf("Week52Position = %v, want 0.5", got)
	}

	p.Last = 20
	if got := p.Week52Position(); got != 1 {
		t.Errorf("Week52Position at high = %v, want 1", got)
	}

	flat := PricePoint{Last: 10, Week52High: null.FloatFrom(10), Week52Low: null.FloatFrom(10)}
	if got := flat.Week52Position(); got != 0.5 {
		t.Errorf("Week52Position with empty range = %v, want 0.5", got)
	}

	missing := PricePoint{Last: 10, Week52High: null.FloatFrom(12)}
	if got := missing.Week52Position(); got != 0.5 {
		t.Errorf("Week52Position with missing low = %v, want 0.5", got)
	}
}

func TestSentimentSign(t *testing.T) {
	if SentimentPositive.Sign() != 1 {
		t.Error("positive sign should be 1")
	}
	if Sentiment("NEGATIVE").Sign() != -1 {
		t.Error("negative sign should be -1 regardless of case")
	}
	if SentimentNeutral.Sign() != 0 || Sentiment("mixed").Sign() != 0 {
		t.Error("neutral and unknown signs should be 0")
	}
}

func TestCanonicalEntity(t *testing.T) {
	cases := map[string]string{
		"IBM Corp":      "Ibm Corp",
		"ibm corp":      "Ibm Corp",
		"IBM CORP":      "Ibm Corp",
		"AT&T":          "At&T",
		"new-york  fed": "New-York  Fed",
	}
	for in, want := range cases {
		if got := CanonicalEntity(in); got != want {
			t.Errorf("CanonicalEntity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoldEntities(t *testing.T) {
	articles := []Article{
		{Symbol: "IBM", Entities: []EntityMention{
			{Text: "IBM Corp", Score: 0.5, Sentiment: SentimentPositive},
			{Text: "ibm corp", Score: 0.3, Sentiment: SentimentNegative},
		}},
		{Symbol: "IBM", Entities: []EntityMention{
			{Text: "IBM CORP", Score: 0.2, Sentiment: SentimentNeutral},
		}},
	}
	folded := FoldEntities(articles)
	scores := folded["Ibm Corp"]
	if len(folded) != 1 || len(scores) != 3 {
		t.Fatalf("FoldEntities = %v, want one key with 3 scores", folded)
	}
	want := []float64{0.5, -0.3, 0}
	for i := range want {
		if math.Abs(scores[i]-want[i]) > 1e-9 {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}

	summary := SummarizeEntities(articles)
	if len(summary) != 1 || summary[0].Count != 3 {
		t.Fatalf("SummarizeEntities = %+v", summary)
	}
	if math.Abs(summary[0].AverageSentiment-0.2/3) > 1e-9 {
		t.Errorf("AverageSentiment = %v, want %v", summary[0].AverageSentiment, 0.2/3)
	}
}

func TestNewsResultBySymbol(t *testing.T) {
	r := NewsResult{News: []Article{
		{Symbol: "aaa", Title: "one"},
		{Symbol: "BBB", Title: "two"},
		{Symbol: "AAA", Title: "three"},
	}}
	groups := r.BySymbol()
	if len(groups["AAA"]) != 2 || len(groups["BBB"]) != 1 {
		t.Errorf("BySymbol = %v", groups)
	}
}
