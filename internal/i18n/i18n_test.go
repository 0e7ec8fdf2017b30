package i18n

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newBundle(t *testing.T) *Bundle {
	t.Helper()
	return NewBundle(filepath.Join("..", "..", "config", "strings"), nil, slog.New(slog.DiscardHandler))
}

func TestResolve(t *testing.T) {
	b := newBundle(t)
	tests := []struct {
		query, accept string
		want          string
	}{
		{"", "", "en"},
		{"de", "fr", "de"},
		{"", "fr-CA,fr;q=0.9,en;q=0.8", "fr"},
		{"", "zh-TW", "zh-Hant"},
		{"", "zh-CN,zh;q=0.9", "zh-Hans"},
		{"", "pt-BR", "pt-br"},
		{"ko", "ja", "ja"},
		{"", "ko", "en"},
	}
	for _, tt := range tests {
		if got := b.Resolve(tt.query, tt.accept); got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.query, tt.accept, got, tt.want)
		}
	}
}

func TestStringsFallsBackToDefault(t *testing.T) {
	b := newBundle(t)

	fr, err := b.Strings(context.Background(), "fr")
	if err != nil {
		t.Fatalf("Strings(fr): %v", err)
	}
	if fr["loading"] != "Chargement..." {
		t.Errorf("fr loading = %q", fr["loading"])
	}
	// Untranslated keys come from English.
	if fr["errorUnavailable"] != "Data is temporarily unavailable" {
		t.Errorf("fr errorUnavailable = %q", fr["errorUnavailable"])
	}

	ko, err := b.Strings(context.Background(), "ko")
	if err != nil {
		t.Fatalf("Strings(ko): %v", err)
	}
	if ko["stockInsights"] != "Stock Insights" {
		t.Errorf("ko stockInsights = %q, want English", ko["stockInsights"])
	}
}

func TestStringsCachedForever(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "en.yaml")
	if err := os.WriteFile(path, []byte("title: first\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewBundle(dir, []string{"en"}, slog.New(slog.DiscardHandler))

	if got, _ := b.Strings(context.Background(), "en"); got["title"] != "first" {
		t.Fatalf("title = %q, want first", got["title"])
	}
	if err := os.WriteFile(path, []byte("title: second\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, _ := b.Strings(context.Background(), "en")
	if got["title"] != "first" {
		t.Errorf("title = %q, want cached first", got["title"])
	}

	// Callers get a copy.
	got["title"] = "mutated"
	if again, _ := b.Strings(context.Background(), "en"); again["title"] != "first" {
		t.Errorf("title = %q after caller mutation", again["title"])
	}
}

func TestStringsMissingFile(t *testing.T) {
	b := NewBundle(t.TempDir(), nil, slog.New(slog.DiscardHandler))
	if _, err := b.Strings(context.Background(), "en"); err == nil {
		t.Error("Strings() with no files should fail")
	}
}
