package dashboard

import (
	"sync"

	"stockinsights/internal/domain"
)

// Roster reports whether a symbol is a known company.
type Roster interface {
	HasCompany(symbol string) bool
}

// Selection is the ordered set of companies the user has drilled into.
// Insertion order is display order. Every transition that changes the set
// cascades into the entity aggregator and article cache, then calls refresh
// once with the resulting set so dependent news is fetched as one batch.
type Selection struct {
	mu      sync.RWMutex
	symbols []string

	roster   Roster
	entities *Aggregator
	articles *ArticleCache
	refresh  func(symbols []string)
}

// NewSelection creates an empty selection over roster. The aggregator and
// article cache it cascades into are bound with Bind.
func NewSelection(roster Roster, refresh func(symbols []string)) *Selection {
	return &Selection{roster: roster, refresh: refresh}
}

// Bind attaches the caches that selection changes cascade into.
func (s *Selection) Bind(entities *Aggregator, articles *ArticleCache) {
	s.entities = entities
	s.articles = articles
}

// Select appends each symbol not yet selected. Symbols already selected or
// missing from the roster are ignored. Returns the symbols actually added.
func (s *Selection) Select(symbols ...string) []string {
	var added []string
	s.mu.Lock()
	for _, sym := range symbols {
		sym = domain.NormalizeSymbol(sym)
		if sym == "" || s.indexOf(sym) >= 0 || !s.roster.HasCompany(sym) {
			continue
		}
		s.symbols = append(s.symbols, sym)
		added = append(added, sym)
	}
	current := s.copySymbols()
	s.mu.Unlock()

	if len(added) == 0 {
		return nil
	}
	// Deselect drops a symbol's articles, so this only finds lists put into
	// the cache before the symbol was ever selected.
	if s.entities != nil && s.articles != nil {
		for _, sym := range added {
			if cached, ok := s.articles.Get(sym); ok {
				s.entities.Ingest(sym, cached)
			}
		}
	}
	if s.refresh != nil {
		s.refresh(current)
	}
	return added
}

// Deselect removes each symbol present and drops its entity contribution and
// cached articles. Absent symbols are ignored. Returns the symbols removed.
func (s *Selection) Deselect(symbols ...string) []string {
	var removed []string
	s.mu.Lock()
	for _, sym := range symbols {
		sym = domain.NormalizeSymbol(sym)
		i := s.indexOf(sym)
		if i < 0 {
			continue
		}
		s.symbols = append(s.symbols[:i:i], s.symbols[i+1:]...)
		removed = append(removed, sym)
	}
	current := s.copySymbols()
	s.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	for _, sym := range removed {
		if s.entities != nil {
			s.entities.DropSymbol(sym)
		}
		if s.articles != nil {
			s.articles.Drop(sym)
		}
	}
	if s.refresh != nil && len(current) > 0 {
		s.refresh(current)
	}
	return removed
}

// Clear empties the selection and every dependent cache.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.symbols = nil
	s.mu.Unlock()

	if s.entities != nil {
		s.entities.Clear()
	}
	if s.articles != nil {
		s.articles.Clear()
	}
}

// Contains reports whether symbol is selected.
func (s *Selection) Contains(symbol string) bool {
	symbol = domain.NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(symbol) >= 0
}

// Symbols returns the selected symbols in selection order.
func (s *Selection) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copySymbols()
}

// Len returns the number of selected symbols.
func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}

func (s *Selection) indexOf(symbol string) int {
	for i, sym := range s.symbols {
		if sym == symbol {
			return i
		}
	}
	return -1
}

func (s *Selection) copySymbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// ArticleCache holds the latest articles per selected symbol.
type ArticleCache struct {
	mu       sync.RWMutex
	articles map[string][]domain.Article
}

// NewArticleCache creates an empty cache.
func NewArticleCache() *ArticleCache {
	return &ArticleCache{articles: make(map[string][]domain.Article)}
}

// Put replaces the symbol's articles.
func (c *ArticleCache) Put(symbol string, articles []domain.Article) {
	symbol = domain.NormalizeSymbol(symbol)
	cp := make([]domain.Article, len(articles))
	copy(cp, articles)
	c.mu.Lock()
	c.articles[symbol] = cp
	c.mu.Unlock()
}

// Get returns a copy of the symbol's articles.
func (c *ArticleCache) Get(symbol string) ([]domain.Article, bool) {
	symbol = domain.NormalizeSymbol(symbol)
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.articles[symbol]
	if !ok {
		return nil, false
	}
	out := make([]domain.Article, len(src))
	copy(out, src)
	return out, true
}

// All returns a copy of every cached list.
func (c *ArticleCache) All() map[string][]domain.Article {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]domain.Article, len(c.articles))
	for sym, src := range c.articles {
		cp := make([]domain.Article, len(src))
		copy(cp, src)
		out[sym] = cp
	}
	return out
}

// Drop removes the symbol's articles.
func (c *ArticleCache) Drop(symbol string) {
	symbol = domain.NormalizeSymbol(symbol)
	c.mu.Lock()
	delete(c.articles, symbol)
	c.mu.Unlock()
}

// Clear removes everything.
func (c *ArticleCache) Clear() {
	c.mu.Lock()
	c.articles = make(map[string][]domain.Article)
	c.mu.Unlock()
}
