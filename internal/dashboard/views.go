package dashboard

import (
	"sort"
	"sync"

	"stockinsights/internal/domain"
)

// Views derives the date-aligned snapshot array from a Store. The result is
// memoized by store generation and rebuilt lazily on the first read after a
// mutation.
type Views struct {
	store *Store

	mu        sync.Mutex
	valid     bool
	gen       uint64
	snapshots []domain.DateSnapshot
	byDate    map[domain.Date]int
}

// NewViews creates a view cache over store.
func NewViews(store *Store) *Views {
	return &Views{store: store}
}

// FlattenedSnapshots returns one DateSnapshot per distinct date across all
// symbols, ascending. Points are grouped by their own date, never by
// position, so series of different lengths and start dates line up. The
// returned slice is shared between callers and must not be modified.
func (v *Views) FlattenedSnapshots() []domain.DateSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh()
	return v.snapshots
}

// cloneSnapshots copies snapshots down to their point slices.
func cloneSnapshots(in []domain.DateSnapshot) []domain.DateSnapshot {
	out := make([]domain.DateSnapshot, len(in))
	for i, s := range in {
		out[i] = domain.DateSnapshot{Date: s.Date, Data: append([]domain.PricePoint(nil), s.Data...)}
	}
	return out
}

// LatestSnapshot returns the most recent date's snapshot.
func (v *Views) LatestSnapshot() (domain.DateSnapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh()
	if len(v.snapshots) == 0 {
		return domain.DateSnapshot{}, false
	}
	return v.snapshots[len(v.snapshots)-1], true
}

// SnapshotAt returns the snapshot for one date.
func (v *Views) SnapshotAt(date domain.Date) (domain.DateSnapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refresh()
	i, ok := v.byDate[date]
	if !ok {
		return domain.DateSnapshot{}, false
	}
	return v.snapshots[i], true
}

// refresh rebuilds the snapshots if the store moved on. Must be called with
// mu held.
func (v *Views) refresh() {
	if v.valid && v.gen == v.store.Generation() {
		return
	}

	buckets := make(map[domain.Date][]domain.PricePoint)
	gen := v.store.visit(func(_ string, series []domain.PricePoint) {
		for _, p := range series {
			buckets[p.Date] = append(buckets[p.Date], p)
		}
	})

	dates := make([]domain.Date, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

	snapshots := make([]domain.DateSnapshot, len(dates))
	byDate := make(map[domain.Date]int, len(dates))
	for i, d := range dates {
		snapshots[i] = domain.DateSnapshot{Date: d, Data: buckets[d]}
		byDate[d] = i
	}

	v.snapshots = snapshots
	v.byDate = byDate
	v.gen = gen
	v.valid = true
}
