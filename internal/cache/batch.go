package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stockinsights/internal/util"
)

// FetchFunc loads the value for one key from upstream.
type FetchFunc[T any] func(ctx context.Context, key string) (T, error)

// Result is the outcome of a batch. Keys whose fetch failed are absent from
// Values and listed in Failed.
type Result[T any] struct {
	Values map[string]T
	Failed map[string]error
}

// BatcherConfig tunes a Batcher.
type BatcherConfig struct {
	// MaxParallel bounds concurrent upstream calls. Zero means unbounded.
	MaxParallel int

	// Retries is the number of attempts per key (at least one).
	Retries    int
	RetryDelay time.Duration

	// Limiter, if set, is waited on before every upstream call.
	Limiter *util.RateLimiter
}

// Batcher serves a set of keys from a ResponseCache, fetching every miss in
// parallel and caching what comes back.
type Batcher[T any] struct {
	cache ResponseCache[T]
	fetch FetchFunc[T]
	cfg   BatcherConfig
	log   *slog.Logger
}

// NewBatcher creates a Batcher over cache that loads misses with fetch.
func NewBatcher[T any](cache ResponseCache[T], fetch FetchFunc[T], cfg BatcherConfig, log *slog.Logger) *Batcher[T] {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return &Batcher[T]{cache: cache, fetch: fetch, cfg: cfg, log: log}
}

// Fetch prunes the cache, then returns the cached value of every key that is
// still fresh and fetches the rest, one upstream call per key. A failed key
// is logged and omitted rather than failing the batch. The error is non-nil
// only if ctx ends first.
func (b *Batcher[T]) Fetch(ctx context.Context, keys []string) (Result[T], error) {
	res := Result[T]{Values: make(map[string]T, len(keys)), Failed: make(map[string]error)}

	if err := b.cache.Prune(ctx); err != nil {
		b.log.Warn("pruning response cache", "error", err)
	}

	seen := make(map[string]bool, len(keys))
	var misses []string
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		v, ok, err := b.cache.Get(ctx, key)
		if err != nil {
			b.log.Warn("reading response cache", "key", key, "error", err)
		}
		if ok {
			res.Values[key] = v
			continue
		}
		misses = append(misses, key)
	}
	if len(misses) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if b.cfg.MaxParallel > 0 {
		g.SetLimit(b.cfg.MaxParallel)
	}
	for _, key := range misses {
		g.Go(func() error {
			v, err := b.fetchOne(gctx, key)
			if err != nil {
				b.log.Warn("fetching upstream", "key", key, "error", err)
				mu.Lock()
				res.Failed[key] = err
				mu.Unlock()
				return nil
			}
			if err := b.cache.Put(gctx, key, v); err != nil {
				b.log.Warn("writing response cache", "key", key, "error", err)
			}
			mu.Lock()
			res.Values[key] = v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("fetching %d keys: %w", len(misses), err)
	}
	return res, nil
}

func (b *Batcher[T]) fetchOne(ctx context.Context, key string) (T, error) {
	var v T
	err := util.Retry(ctx, b.cfg.Retries, b.cfg.RetryDelay, func() error {
		if b.cfg.Limiter != nil {
			if err := b.cfg.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var err error
		v, err = b.fetch(ctx, key)
		return err
	})
	return v, err
}
