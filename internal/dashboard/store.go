// Package dashboard holds the client-side state engine of the stock
// dashboard: the normalized price store, derived date views, the selection
// state machine, the entity sentiment rollup and the action bus that drives
// them.
package dashboard

import (
	"sort"
	"sync"

	"stockinsights/internal/domain"
)

// Store owns the company roster and each symbol's time series. It is the
// only mutation path into per-symbol series; every mutation bumps the
// generation counter that derived views are keyed by.
type Store struct {
	mu     sync.RWMutex
	roster []domain.Company
	series map[string][]domain.PricePoint
	gen    uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{series: make(map[string][]domain.PricePoint)}
}

// AddCompany appends c to the roster. Returns false if the symbol is already
// present.
func (s *Store) AddCompany(c domain.Company) bool {
	c.Symbol = domain.NormalizeSymbol(c.Symbol)
	if c.Symbol == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(c.Symbol) >= 0 {
		return false
	}
	s.roster = append(s.roster, c)
	s.gen++
	return true
}

// UpsertSeries merges points into the symbol's series by date. A point for a
// date already present replaces the stored one; within points, later entries
// win. An unknown symbol is added to the roster.
func (s *Store) UpsertSeries(symbol string, points []domain.PricePoint) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(symbol) < 0 {
		s.roster = append(s.roster, domain.Company{Symbol: symbol})
	}

	byDate := make(map[domain.Date]domain.PricePoint, len(s.series[symbol])+len(points))
	for _, p := range s.series[symbol] {
		byDate[p.Date] = p
	}
	for _, p := range points {
		p.Symbol = symbol
		byDate[p.Date] = p
	}

	merged := make([]domain.PricePoint, 0, len(byDate))
	for _, p := range byDate {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })

	s.series[symbol] = merged
	s.gen++
}

// RemoveSymbol deletes the symbol's series and roster entry. Returns false if
// the symbol was unknown.
func (s *Store) RemoveSymbol(symbol string) bool {
	symbol = domain.NormalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(symbol)
	_, hasSeries := s.series[symbol]
	if i < 0 && !hasSeries {
		return false
	}
	if i >= 0 {
		s.roster = append(s.roster[:i:i], s.roster[i+1:]...)
	}
	delete(s.series, symbol)
	s.gen++
	return true
}

// Series returns a copy of the symbol's series, ascending by date.
func (s *Store) Series(symbol string) []domain.PricePoint {
	symbol = domain.NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.series[symbol]
	if src == nil {
		return nil
	}
	out := make([]domain.PricePoint, len(src))
	copy(out, src)
	return out
}

// AllSeries returns a copy of every symbol's series.
func (s *Store) AllSeries() map[string][]domain.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]domain.PricePoint, len(s.series))
	for sym, src := range s.series {
		pts := make([]domain.PricePoint, len(src))
		copy(pts, src)
		out[sym] = pts
	}
	return out
}

// Roster returns a copy of the roster in insertion order.
func (s *Store) Roster() []domain.Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Company, len(s.roster))
	copy(out, s.roster)
	return out
}

// HasCompany reports whether symbol is on the roster.
func (s *Store) HasCompany(symbol string) bool {
	symbol = domain.NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(symbol) >= 0
}

// Generation returns the mutation counter.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// visit calls fn for each symbol with data, in roster order, under the read
// lock, and returns the generation the walk observed. fn must not retain or
// modify the slices.
func (s *Store) visit(fn func(symbol string, series []domain.PricePoint)) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.roster {
		if pts, ok := s.series[c.Symbol]; ok {
			fn(c.Symbol, pts)
		}
	}
	return s.gen
}

// indexOf returns the roster position of symbol or -1. Must be called with
// mu held.
func (s *Store) indexOf(symbol string) int {
	for i, c := range s.roster {
		if c.Symbol == symbol {
			return i
		}
	}
	return -1
}
