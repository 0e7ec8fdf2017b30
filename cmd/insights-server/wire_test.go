package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"stockinsights/internal/config"
	"stockinsights/internal/upstream"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "INSIGHTS_BASE_URL", "REDIS_ADDR", "PRICE_PROVIDER", "DATA_DIR", "SQLITE_PATH"} {
		t.Setenv(k, "")
	}
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.SQLitePath = filepath.Join(dir, "insights.db")
	return cfg
}

func TestNewPriceProvider(t *testing.T) {
	cfg := testConfig(t)
	log := quietLogger()

	p, err := newPriceProvider(cfg, nil, log)
	if err != nil {
		t.Fatalf("newPriceProvider: %v", err)
	}
	if _, ok := p.(*upstream.YahooPrices); !ok {
		t.Errorf("alpaca without keys = %T, want *upstream.YahooPrices", p)
	}

	cfg.Alpaca.APIKey, cfg.Alpaca.APISecret = "key", "secret"
	p, err = newPriceProvider(cfg, nil, log)
	if err != nil {
		t.Fatalf("newPriceProvider: %v", err)
	}
	if _, ok := p.(*upstream.AlpacaPrices); !ok {
		t.Errorf("alpaca with keys = %T, want *upstream.AlpacaPrices", p)
	}

	cfg.Upstream.PriceProvider = "insights"
	if _, err := newPriceProvider(cfg, nil, log); err == nil {
		t.Error("insights provider without a base URL should fail")
	}
	insights := upstream.NewInsightsClient("http://localhost:1", "", cfg.Upstream.RequestTimeout)
	p, err = newPriceProvider(cfg, insights, log)
	if err != nil || p != upstream.PriceProvider(insights) {
		t.Errorf("insights provider = %T, %v", p, err)
	}

	cfg.Upstream.PriceProvider = "bloomberg"
	if _, err := newPriceProvider(cfg, nil, log); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestNewTweetSourceFallsBackToStockTwits(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := newTweetSource(cfg, nil).(*upstream.InsightsClient); ok {
		t.Error("tweets without insights should not use the insights client")
	}
	insights := upstream.NewInsightsClient("http://localhost:1", "", cfg.Upstream.RequestTimeout)
	if _, ok := newTweetSource(cfg, insights).(*upstream.InsightsClient); !ok {
		t.Error("tweets with insights should use the insights client")
	}
}

func TestBuild(t *testing.T) {
	cfg := testConfig(t)
	cfg.Upstream.PriceProvider = "yahoo"

	a, err := build(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer a.Close()

	if a.svc == nil || a.strings == nil || a.sessions == nil || a.db == nil {
		t.Fatalf("build left components unset: %+v", a)
	}
	if a.redis != nil {
		t.Error("memory backend should not connect to redis")
	}
	if n, err := a.sessions.Restore(context.Background()); err != nil || n != 0 {
		t.Errorf("Restore() = %d, %v, want 0, nil", n, err)
	}
}

func TestBuildUnknownCacheBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "memcached"
	if _, err := build(context.Background(), cfg, quietLogger()); err == nil {
		t.Error("build with an unknown cache backend should fail")
	}
}
