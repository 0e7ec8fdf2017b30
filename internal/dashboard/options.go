package dashboard

import (
	"net/url"
	"time"

	"stockinsights/internal/domain"
)

// DefaultSearchDebounce is the delay between the last keystroke and the
// company lookup.
const DefaultSearchDebounce = 300 * time.Millisecond

// Options configure a dashboard at startup.
type Options struct {
	// Symbols seeds the roster and switches to embedded mode, in which the
	// roster is never persisted.
	Symbols []string

	// Articles seeds the selection.
	Articles []string

	// Language overrides the negotiated UI language.
	Language string

	// ForceBubbles selects every seeded company.
	ForceBubbles bool

	SearchDebounce time.Duration
	EntityLimit    int
	FetchTimeout   time.Duration
}

// Embedded reports whether the roster came from the startup parameters.
func (o Options) Embedded() bool {
	return len(o.Symbols) > 0
}

// ParseOptions reads the startup parameters symbols, articles, language and
// forcebubbles from a query string.
func ParseOptions(q url.Values) Options {
	fb := q.Get("forcebubbles")
	return Options{
		Symbols:      domain.ParseSymbols(q["symbols"]...),
		Articles:     domain.ParseSymbols(q["articles"]...),
		Language:     q.Get("language"),
		ForceBubbles: fb == "true" || fb == "1",
	}
}

func (o Options) withDefaults() Options {
	if o.SearchDebounce <= 0 {
		o.SearchDebounce = DefaultSearchDebounce
	}
	if o.EntityLimit <= 0 {
		o.EntityLimit = DefaultEntityLimit
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 30 * time.Second
	}
	return o
}
