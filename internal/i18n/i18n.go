// Package i18n serves the localized UI strings and picks a language for
// each request.
package i18n

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"stockinsights/internal/cache"
)

// DefaultLanguage is served when nothing better matches.
const DefaultLanguage = "en"

// Supported lists the locale codes with translated strings, default first.
var Supported = []string{"en", "zh-Hant", "zh-Hans", "fr", "de", "it", "ja", "pt-br", "es"}

// Bundle loads string tables from <dir>/<code>.yaml. Each table is read once
// and kept for the life of the process. Keys missing from a translation fall
// back to the default language.
type Bundle struct {
	dir     string
	codes   []string
	matcher language.Matcher
	tables  *cache.Forever[map[string]string]
	log     *slog.Logger
}

// NewBundle creates a bundle over dir for the given codes, or Supported when
// codes is empty. The default language is always included.
func NewBundle(dir string, codes []string, log *slog.Logger) *Bundle {
	if len(codes) == 0 {
		codes = Supported
	}
	ordered := []string{DefaultLanguage}
	for _, c := range codes {
		if !strings.EqualFold(c, DefaultLanguage) {
			ordered = append(ordered, c)
		}
	}

	tags := make([]language.Tag, 0, len(ordered))
	for _, c := range ordered {
		tags = append(tags, language.Make(c))
	}
	return &Bundle{
		dir:     dir,
		codes:   ordered,
		matcher: language.NewMatcher(tags),
		tables:  cache.NewForever[map[string]string](),
		log:     log.With("component", "i18n"),
	}
}

// Languages returns the supported codes, default first.
func (b *Bundle) Languages() []string {
	return append([]string(nil), b.codes...)
}

// Resolve picks the language for a request: the explicit query value when
// set, otherwise the best match for the Accept-Language header.
func (b *Bundle) Resolve(query, acceptLanguage string) string {
	if query = strings.TrimSpace(query); query != "" {
		if code, ok := b.match(query); ok {
			return code
		}
	}
	if acceptLanguage != "" {
		if code, ok := b.match(acceptLanguage); ok {
			return code
		}
	}
	return DefaultLanguage
}

func (b *Bundle) match(accept string) (string, bool) {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := b.matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return b.codes[idx], true
}

// Strings returns the string table for code. An unsupported code gets the
// default table.
func (b *Bundle) Strings(_ context.Context, code string) (map[string]string, error) {
	code = b.canonical(code)
	table, err := b.tables.GetOrLoad(code, func() (map[string]string, error) {
		return b.load(code)
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(table), nil
}

func (b *Bundle) canonical(code string) string {
	for _, c := range b.codes {
		if strings.EqualFold(c, code) {
			return c
		}
	}
	if matched, ok := b.match(code); ok {
		return matched
	}
	return DefaultLanguage
}

func (b *Bundle) load(code string) (map[string]string, error) {
	table, err := readTable(filepath.Join(b.dir, code+".yaml"))
	if err != nil {
		return nil, err
	}
	if code == DefaultLanguage {
		return table, nil
	}

	base, err := b.tables.GetOrLoad(DefaultLanguage, func() (map[string]string, error) {
		return b.load(DefaultLanguage)
	})
	if err != nil {
		return nil, err
	}
	for k, v := range base {
		if _, ok := table[k]; !ok {
			b.log.Debug("untranslated string", "language", code, "key", k)
			table[k] = v
		}
	}
	return table, nil
}

func readTable(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strings %s: %w", path, err)
	}
	table := make(map[string]string)
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing strings %s: %w", path, err)
	}
	return table, nil
}
