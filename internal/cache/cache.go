// Package cache holds upstream responses per key for a bounded time and
// fills misses with one parallel fetch per key.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an upstream response may be served.
const DefaultTTL = 10 * time.Minute

// ResponseCache stores values by key. An expired entry is never returned by
// Get, whether or not Prune has run.
type ResponseCache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Put(ctx context.Context, key string, v T) error
	Prune(ctx context.Context) error
	Invalidate(ctx context.Context, key string) error
}

// ---------------------------------------------------------------------------
// In-memory TTL cache
// ---------------------------------------------------------------------------

type entry[T any] struct {
	value    T
	storedAt time.Time
}

// TTLCache is an in-process ResponseCache. Entries are removed by Prune,
// which callers run before each batch rather than on a timer.
type TTLCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[T]
}

var _ ResponseCache[int] = (*TTLCache[int])(nil)

// NewTTLCache creates a cache whose entries live for ttl. A nil now uses
// time.Now.
func NewTTLCache[T any](ttl time.Duration, now func() time.Time) *TTLCache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TTLCache[T]{ttl: ttl, now: now, entries: make(map[string]entry[T])}
}

// Get returns the value for key if it was stored no more than ttl ago.
func (c *TTLCache[T]) Get(_ context.Context, key string) (T, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.expired(e) {
		var zero T
		return zero, false, nil
	}
	return e.value, true, nil
}

// Put stores v, stamped with the current time.
func (c *TTLCache[T]) Put(_ context.Context, key string, v T) error {
	c.mu.Lock()
	c.entries[key] = entry[T]{value: v, storedAt: c.now()}
	c.mu.Unlock()
	return nil
}

// Prune removes every expired entry.
func (c *TTLCache[T]) Prune(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Invalidate removes key.
func (c *TTLCache[T]) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTLCache[T]) expired(e entry[T]) bool {
	return c.now().Sub(e.storedAt) > c.ttl
}

// ---------------------------------------------------------------------------
// Forever cache
// ---------------------------------------------------------------------------

// Forever is a cache whose entries never expire, for data that does not
// change while the process runs (localized UI strings).
type Forever[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// NewForever creates an empty cache.
func NewForever[T any]() *Forever[T] {
	return &Forever[T]{entries: make(map[string]T)}
}

// GetOrLoad returns the cached value for key, calling load on the first
// request. Failed loads are not cached.
func (f *Forever[T]) GetOrLoad(key string, load func() (T, error)) (T, error) {
	f.mu.RLock()
	v, ok := f.entries[key]
	f.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	f.mu.Lock()
	f.entries[key] = v
	f.mu.Unlock()
	return v, nil
}
