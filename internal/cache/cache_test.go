package cache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)}
}

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := NewTTLCache[int](DefaultTTL, clk.Now)

	c.Put(ctx, "AAA", 1)
	clk.Advance(9*time.Minute + 59*time.Second)
	if v, ok, _ := c.Get(ctx, "AAA"); !ok || v != 1 {
		t.Errorf("Get before expiry = %v, %v; want 1, true", v, ok)
	}

	clk.Advance(time.Second)
	if v, ok, _ := c.Get(ctx, "AAA"); !ok || v != 1 {
		t.Errorf("Get at exactly the TTL = %v, %v; want 1, true", v, ok)
	}
	c.Prune(ctx)
	if c.Len() != 1 {
		t.Errorf("Len after prune at the TTL = %d, want 1", c.Len())
	}

	clk.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, "AAA"); ok {
		t.Error("entry past the TTL must not be served")
	}
	if c.Len() != 1 {
		t.Errorf("Len before prune = %d, want 1", c.Len())
	}

	c.Prune(ctx)
	if c.Len() != 0 {
		t.Errorf("Len after prune = %d, want 0", c.Len())
	}
}

func TestTTLCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache[string](0, nil)
	c.Put(ctx, "k", "v")
	c.Invalidate(ctx, "k")
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("invalidated key still served")
	}
}

func TestForeverCachesSuccessOnly(t *testing.T) {
	f := NewForever[string]()
	calls := 0
	load := func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "hello", nil
	}

	if _, err := f.GetOrLoad("en", load); err == nil {
		t.Fatal("first load should fail")
	}
	for i := 0; i < 3; i++ {
		v, err := f.GetOrLoad("en", load)
		if err != nil || v != "hello" {
			t.Errorf("GetOrLoad = %q, %v; want hello", v, err)
		}
	}
	if calls != 2 {
		t.Errorf("load calls = %d, want 2", calls)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestBatcherServesFreshEntries(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := NewTTLCache[string](DefaultTTL, clk.Now)

	var mu sync.Mutex
	fetched := map[string]int{}
	b := NewBatcher[string](c, func(_ context.Context, key string) (string, error) {
		mu.Lock()
		fetched[key]++
		mu.Unlock()
		return "v-" + key, nil
	}, BatcherConfig{}, quietLogger())

	res, err := b.Fetch(ctx, []string{"AAA", "BBB", "AAA"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Values) != 2 || res.Values["AAA"] != "v-AAA" {
		t.Errorf("Values = %v", res.Values)
	}
	if fetched["AAA"] != 1 {
		t.Errorf("AAA fetched %d times, want 1 (duplicate key)", fetched["AAA"])
	}

	clk.Advance(5 * time.Minute)
	if _, err := b.Fetch(ctx, []string{"AAA", "BBB", "CCC"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetched["AAA"] != 1 || fetched["BBB"] != 1 || fetched["CCC"] != 1 {
		t.Errorf("fetch counts = %v, want one each", fetched)
	}

	// Past the TTL every key is fetched again.
	clk.Advance(6 * time.Minute)
	if _, err := b.Fetch(ctx, []string{"AAA", "CCC"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if fetched["AAA"] != 2 || fetched["CCC"] != 1 {
		t.Errorf("fetch counts = %v, want AAA=2 CCC=1", fetched)
	}
}

func TestBatcherPrunesBeforeBatch(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := NewTTLCache[int](time.Minute, clk.Now)
	c.Put(ctx, "OLD", 1)
	clk.Advance(2 * time.Minute)

	b := NewBatcher[int](c, func(context.Context, string) (int, error) { return 2, nil }, BatcherConfig{}, quietLogger())
	if _, err := b.Fetch(ctx, []string{"NEW"}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1 (OLD pruned, NEW stored)", c.Len())
	}
}

func TestBatcherPartialFailure(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache[int](0, nil)
	var calls atomic.Int64
	b := NewBatcher[int](c, func(_ context.Context, key string) (int, error) {
		calls.Add(1)
		if key == "BAD" {
			return 0, errors.New("not found")
		}
		return len(key), nil
	}, BatcherConfig{Retries: 2, MaxParallel: 2}, quietLogger())

	res, err := b.Fetch(ctx, []string{"AAA", "BAD", "BB"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := res.Values["BAD"]; ok {
		t.Error("failed key should be omitted from Values")
	}
	if res.Failed["BAD"] == nil {
		t.Error("failed key should be listed in Failed")
	}
	if res.Values["AAA"] != 3 || res.Values["BB"] != 2 {
		t.Errorf("Values = %v", res.Values)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("upstream calls = %d, want 4 (BAD retried once)", got)
	}
	if _, ok, _ := c.Get(ctx, "BAD"); ok {
		t.Error("failures must not be cached")
	}
}

func TestBatcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBatcher[int](NewTTLCache[int](0, nil), func(ctx context.Context, _ string) (int, error) {
		return 0, ctx.Err()
	}, BatcherConfig{}, quietLogger())

	if _, err := b.Fetch(ctx, []string{"AAA"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch error = %v, want context.Canceled", err)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, RedisOptions{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	type quote struct {
		Last float64 `json:"last"`
	}
	c := NewRedisCache[quote](client, "insights-test:", time.Minute)
	defer c.Invalidate(ctx, "AAA")

	if _, ok, err := c.Get(ctx, "AAA"); err != nil || ok {
		t.Fatalf("Get on empty = %v, %v", ok, err)
	}
	if err := c.Put(ctx, "AAA", quote{Last: 12.5}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, "AAA")
	if err != nil || !ok || got.Last != 12.5 {
		t.Errorf("Get = %+v, %v, %v; want 12.5", got, ok, err)
	}
}
