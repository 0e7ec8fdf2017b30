package dashboard

import (
	"slices"
	"sync"

	"stockinsights/internal/domain"
)

// TweetState is the tweets panel as rendered.
type TweetState struct {
	Open      bool                    `json:"open"`
	Loading   bool                    `json:"loading"`
	Symbols   []string                `json:"symbols,omitempty"`
	Entity    string                  `json:"entity,omitempty"`
	Tweets    []domain.Tweet          `json:"tweets"`
	Sentiment domain.SentimentSummary `json:"sentiment"`
}

// TweetPanel tracks the tweets panel. Results are applied only while the
// panel is open on the same symbols and entity they were requested for.
type TweetPanel struct {
	mu    sync.RWMutex
	state TweetState
}

// Open shows the panel for a new request and clears previous results.
func (p *TweetPanel) Open(symbols []string, entity string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = TweetState{
		Open:    true,
		Loading: true,
		Symbols: slices.Clone(symbols),
		Entity:  entity,
	}
}

// Apply stores a result. Returns false if the panel was closed or reopened
// for something else since the request was made.
func (p *TweetPanel) Apply(symbols []string, entity string, r domain.TweetsResult) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Open || p.state.Entity != entity || !slices.Equal(p.state.Symbols, symbols) {
		return false
	}
	p.state.Loading = false
	p.state.Tweets = slices.Clone(r.Tweets)
	p.state.Sentiment = r.Sentiment
	return true
}

// Close hides the panel and drops its results.
func (p *TweetPanel) Close() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Open {
		return false
	}
	p.state = TweetState{}
	return true
}

// IsOpen reports whether the panel is showing.
func (p *TweetPanel) IsOpen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state.Open
}

// State returns a copy of the panel.
func (p *TweetPanel) State() TweetState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.state
	s.Symbols = slices.Clone(s.Symbols)
	s.Tweets = slices.Clone(s.Tweets)
	return s
}

// SearchStatus is the company autocomplete status.
type SearchStatus string

const (
	SearchClear    SearchStatus = "clear"
	SearchLoading  SearchStatus = "loading"
	SearchReceived SearchStatus = "received"
)

// SearchState is the list of companies offered for the current query.
type SearchState struct {
	Status    SearchStatus     `json:"status"`
	Query     string           `json:"query,omitempty"`
	Companies []domain.Company `json:"companies"`
}
