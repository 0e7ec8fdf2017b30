package dashboard

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"stockinsights/internal/domain"
)

// DefaultEntityLimit bounds the rollup to what the bubble chart can render.
const DefaultEntityLimit = 50

// Membership gates which symbols may contribute to the rollup.
type Membership interface {
	Contains(symbol string) bool
	Symbols() []string
}

// Aggregator keeps, per selected symbol, the signed sentiment scores of every
// entity mentioned in its news, and folds them into a ranked rollup.
type Aggregator struct {
	mu       sync.RWMutex
	members  Membership
	limit    int
	bySymbol map[string]map[string][]float64
}

// NewAggregator creates an aggregator gated on members. A non-positive limit
// selects DefaultEntityLimit.
func NewAggregator(members Membership, limit int) *Aggregator {
	if limit <= 0 {
		limit = DefaultEntityLimit
	}
	return &Aggregator{
		members:  members,
		limit:    limit,
		bySymbol: make(map[string]map[string][]float64),
	}
}

// Ingest replaces the symbol's contribution with the entities of articles.
// It is a no-op, returning false, when symbol is not selected: a response
// that arrives after the user closed the company is dropped.
func (a *Aggregator) Ingest(symbol string, articles []domain.Article) bool {
	symbol = domain.NormalizeSymbol(symbol)
	if !a.members.Contains(symbol) {
		return false
	}
	folded := domain.FoldEntities(articles)
	a.mu.Lock()
	a.bySymbol[symbol] = folded
	a.mu.Unlock()
	return true
}

// Rollup merges the contributions of the currently selected symbols and
// returns entities ranked by mention count, truncated to the limit. Ties are
// broken by id so the order is stable.
func (a *Aggregator) Rollup() []domain.Entity {
	selected := a.members.Symbols()

	merged := make(map[string][]float64)
	a.mu.RLock()
	for _, sym := range selected {
		for key, scores := range a.bySymbol[sym] {
			merged[key] = append(merged[key], scores...)
		}
	}
	a.mu.RUnlock()

	out := make([]domain.Entity, 0, len(merged))
	for key, scores := range merged {
		out = append(out, domain.Entity{
			ID:         key,
			Value:      len(scores),
			ColorValue: stat.Mean(scores, nil),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > a.limit {
		out = out[:a.limit]
	}
	return out
}

// DropSymbol removes the symbol's contribution.
func (a *Aggregator) DropSymbol(symbol string) {
	symbol = domain.NormalizeSymbol(symbol)
	a.mu.Lock()
	delete(a.bySymbol, symbol)
	a.mu.Unlock()
}

// Clear removes every contribution.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.bySymbol = make(map[string]map[string][]float64)
	a.mu.Unlock()
}
