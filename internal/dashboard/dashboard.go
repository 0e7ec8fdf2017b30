package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"stockinsights/internal/domain"
)

// ErrUnknownSession is returned when a dashboard id does not resolve.
var ErrUnknownSession = errors.New("unknown dashboard session")

// Fetcher performs the network calls a dashboard depends on.
type Fetcher interface {
	LookupCompanies(ctx context.Context, query string) ([]domain.Company, error)
	StockPrices(ctx context.Context, symbols []string) (map[string][]domain.PricePoint, error)
	News(ctx context.Context, symbols []string, language string) (domain.NewsResult, error)
	Tweets(ctx context.Context, symbols []string, entity, language string) (domain.TweetsResult, error)
	Strings(ctx context.Context, language string) (map[string]string, error)
}

// RosterPersister saves the company roster between runs.
type RosterPersister interface {
	SaveRoster(ctx context.Context, companies []domain.Company) error
	LoadRoster(ctx context.Context) ([]domain.Company, error)
}

// Event is published to subscribers after an action has been applied.
type Event struct {
	Seq    uint64 `json:"seq"`
	Action Action `json:"action"`
}

// Snapshot is a consistent copy of everything a dashboard renders.
type Snapshot struct {
	Seq         uint64                         `json:"seq"`
	Generation  uint64                         `json:"generation"`
	Embedded    bool                           `json:"embedded"`
	Language    string                         `json:"language,omitempty"`
	Strings     map[string]string              `json:"strings,omitempty"`
	Date        domain.Date                    `json:"date,omitempty"`
	Companies   []domain.Company               `json:"companies"`
	Series      map[string][]domain.PricePoint `json:"series"`
	Snapshots   []domain.DateSnapshot          `json:"snapshots"`
	Selected    []string                       `json:"selected"`
	NewsLoading bool                           `json:"newsLoading"`
	Articles    map[string][]domain.Article    `json:"articles"`
	Entities    []domain.Entity                `json:"entities"`
	Search      SearchState                    `json:"search"`
	Tweets      TweetState                     `json:"tweets"`
	Errors      map[ErrorKind]string           `json:"errors,omitempty"`
}

// Dashboard composes the store, views, selection and entity rollup behind a
// bus. Intent methods dispatch actions; handlers apply them and start the
// network effects, whose results come back as further actions and are
// re-validated when applied.
type Dashboard struct {
	bus     Bus
	fetcher Fetcher
	persist RosterPersister
	opts    Options
	log     *slog.Logger
	run     func(func())

	store     *Store
	views     *Views
	selection *Selection
	entities  *Aggregator
	articles  *ArticleCache
	tweets    TweetPanel
	search    Debouncer

	ctx    context.Context
	cancel context.CancelFunc
	subID  int

	mu          sync.RWMutex
	seq         uint64
	language    string
	uiStrings   map[string]string
	date        domain.Date
	newsLoading bool
	companies   SearchState
	errs        map[ErrorKind]string

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// New creates a dashboard subscribed to bus. persist may be nil.
func New(bus Bus, fetcher Fetcher, persist RosterPersister, opts Options, log *slog.Logger) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		bus:       bus,
		fetcher:   fetcher,
		persist:   persist,
		opts:      opts.withDefaults(),
		log:       log,
		run:       func(fn func()) { go fn() },
		store:     NewStore(),
		articles:  NewArticleCache(),
		ctx:       ctx,
		cancel:    cancel,
		language:  opts.Language,
		companies: SearchState{Status: SearchClear},
		errs:      make(map[ErrorKind]string),
		subs:      make(map[int]chan Event),
	}
	d.views = NewViews(d.store)
	d.selection = NewSelection(d.store, d.requestNews)
	d.entities = NewAggregator(d.selection, d.opts.EntityLimit)
	d.selection.Bind(d.entities, d.articles)
	d.subID = bus.Subscribe(d.handle)
	return d
}

// Start seeds the roster from the startup symbols, or from the persisted
// roster when not embedded, seeds the selection and loads UI strings.
func (d *Dashboard) Start(ctx context.Context) {
	var companies []domain.Company
	if d.opts.Embedded() {
		for _, sym := range d.opts.Symbols {
			companies = append(companies, domain.Company{Symbol: sym})
		}
	} else if d.persist != nil {
		saved, err := d.persist.LoadRoster(ctx)
		if err != nil {
			d.log.Warn("loading saved roster", "error", err)
		}
		companies = saved
	}
	if len(companies) > 0 {
		d.bus.Dispatch(Action{Type: AddCompany, Companies: companies})
	}

	selected := d.opts.Articles
	if d.opts.ForceBubbles && len(companies) > 0 {
		selected = nil
		for _, c := range companies {
			selected = append(selected, c.Symbol)
		}
	}
	if len(selected) > 0 {
		d.Select(selected...)
	}

	d.LoadStrings(d.opts.Language)
}

// Close stops pending effects and closes subscriber channels.
func (d *Dashboard) Close() {
	d.cancel()
	d.search.Cancel()
	d.bus.Unsubscribe(d.subID)

	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for id, ch := range d.subs {
		close(ch)
		delete(d.subs, id)
	}
}

// ---------------------------------------------------------------------------
// Intents
// ---------------------------------------------------------------------------

// AddCompanies adds companies to the roster and fetches their prices.
func (d *Dashboard) AddCompanies(companies ...domain.Company) {
	d.bus.Dispatch(Action{Type: AddCompany, Companies: companies})
}

// RemoveCompany removes a company and everything derived from it.
func (d *Dashboard) RemoveCompany(symbols ...string) {
	d.bus.Dispatch(Action{Type: RemoveCompany, Symbols: domain.ParseSymbols(symbols...)})
}

// Select drills into companies.
func (d *Dashboard) Select(symbols ...string) {
	d.bus.Dispatch(Action{Type: SelectCompany, Symbols: domain.ParseSymbols(symbols...)})
}

// Deselect closes companies.
func (d *Dashboard) Deselect(symbols ...string) {
	d.bus.Dispatch(Action{Type: DeselectCompany, Symbols: domain.ParseSymbols(symbols...)})
}

// CloseArticles clears the selection.
func (d *Dashboard) CloseArticles() {
	d.bus.Dispatch(Action{Type: CloseArticleList})
}

// Search schedules a company lookup for query once typing pauses. An empty
// query clears the suggestions.
func (d *Dashboard) Search(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		d.ClearSearch()
		return
	}
	d.search.Schedule(func() {
		d.bus.Dispatch(Action{Type: CompaniesLoading, Query: query})
	}, d.opts.SearchDebounce)
}

// ClearSearch drops any pending lookup and the suggestions.
func (d *Dashboard) ClearSearch() {
	d.search.Cancel()
	d.bus.Dispatch(Action{Type: ClearPotentialCompanies})
}

// OpenTweets opens the tweets panel for an entity across symbols.
func (d *Dashboard) OpenTweets(symbols []string, entity string) {
	d.bus.Dispatch(Action{Type: TweetsLoading, Symbols: domain.ParseSymbols(symbols...), Entity: entity})
}

// CloseTweets closes the tweets panel.
func (d *Dashboard) CloseTweets() {
	d.bus.Dispatch(Action{Type: CloseTweets})
}

// SwitchDate moves the "as of" date.
func (d *Dashboard) SwitchDate(date domain.Date) {
	d.bus.Dispatch(Action{Type: SwitchDate, Date: date})
}

// LoadStrings fetches the UI strings for language. The empty language lets
// the server negotiate.
func (d *Dashboard) LoadStrings(language string) {
	d.mu.Lock()
	d.language = language
	d.mu.Unlock()

	d.run(func() {
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.FetchTimeout)
		defer cancel()
		strs, err := d.fetcher.Strings(ctx, language)
		if err != nil {
			d.unavailable(StringsError, nil, "", err)
			return
		}
		d.bus.Dispatch(Action{Type: StringData, Language: language, Strings: strs})
	})
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Store returns the normalized store.
func (d *Dashboard) Store() *Store { return d.store }

// Views returns the derived view cache.
func (d *Dashboard) Views() *Views { return d.views }

// Selection returns the selection state machine.
func (d *Dashboard) Selection() *Selection { return d.selection }

// Entities returns the entity rollup of the selected companies.
func (d *Dashboard) Entities() []domain.Entity { return d.entities.Rollup() }

// Embedded reports whether the dashboard was seeded from startup symbols.
func (d *Dashboard) Embedded() bool { return d.opts.Embedded() }

// CurrentSnapshot returns the snapshot for the switched-to date, or the
// latest one when no date was chosen.
func (d *Dashboard) CurrentSnapshot() (domain.DateSnapshot, bool) {
	d.mu.RLock()
	date := d.date
	d.mu.RUnlock()
	if date != "" {
		return d.views.SnapshotAt(date)
	}
	return d.views.LatestSnapshot()
}

// Errors returns the data kinds that last failed to load.
func (d *Dashboard) Errors() map[ErrorKind]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.errs)
}

// State returns a copy of the whole dashboard.
func (d *Dashboard) State() Snapshot {
	d.mu.RLock()
	s := Snapshot{
		Seq:         d.seq,
		Embedded:    d.opts.Embedded(),
		Language:    d.language,
		Strings:     maps.Clone(d.uiStrings),
		Date:        d.date,
		NewsLoading: d.newsLoading,
		Search:      d.companies,
		Errors:      maps.Clone(d.errs),
	}
	s.Search.Companies = append([]domain.Company(nil), d.companies.Companies...)
	d.mu.RUnlock()

	s.Generation = d.store.Generation()
	s.Companies = d.store.Roster()
	s.Series = d.store.AllSeries()
	s.Snapshots = cloneSnapshots(d.views.FlattenedSnapshots())
	s.Selected = d.selection.Symbols()
	s.Articles = d.articles.All()
	s.Entities = d.entities.Rollup()
	s.Tweets = d.tweets.State()
	return s
}

// Subscribe returns a channel of applied actions. Slow subscribers miss
// events rather than blocking the bus.
func (d *Dashboard) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	d.subsMu.Lock()
	id := d.nextSubID
	d.nextSubID++
	d.subs[id] = ch
	d.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (d *Dashboard) Unsubscribe(id int) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	if ch, ok := d.subs[id]; ok {
		close(ch)
		delete(d.subs, id)
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (d *Dashboard) handle(a Action) {
	switch a.Type {
	case AddCompany:
		d.onAddCompany(a)
	case RemoveCompany:
		d.onRemoveCompany(a)
	case StockPriceData:
		d.onStockPriceData(a)
	case SelectCompany:
		d.selection.Select(a.Symbols...)
	case DeselectCompany:
		d.selection.Deselect(a.Symbols...)
		if d.selection.Len() == 0 {
			d.setNewsLoading(false)
		}
	case CloseArticleList:
		d.selection.Clear()
		d.setNewsLoading(false)
	case NewsLoading:
		d.onNewsLoading(a)
	case NewsData:
		d.onNewsData(a)
	case CompaniesLoading:
		d.onCompaniesLoading(a)
	case CompanyData:
		d.onCompanyData(a)
	case ClearPotentialCompanies:
		d.mu.Lock()
		d.companies = SearchState{Status: SearchClear}
		d.mu.Unlock()
	case TweetsLoading:
		d.onTweetsLoading(a)
	case TweetsData:
		if a.Tweets == nil || !d.tweets.Apply(a.Symbols, a.Entity, *a.Tweets) {
			d.log.Debug("dropping stale tweets", "symbols", a.Symbols, "entity", a.Entity)
		} else {
			d.clearError(TweetsError)
		}
	case CloseTweets:
		d.tweets.Close()
	case StringData:
		d.onStringData(a)
	case SwitchDate:
		d.mu.Lock()
		d.date = a.Date
		d.mu.Unlock()
	case DataUnavailable:
		d.onDataUnavailable(a)
	}

	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	d.broadcast(Event{Seq: seq, Action: a})
}

func (d *Dashboard) onAddCompany(a Action) {
	var added []string
	for _, c := range a.Companies {
		if d.store.AddCompany(c) {
			added = append(added, domain.NormalizeSymbol(c.Symbol))
		}
	}
	if len(added) == 0 {
		return
	}
	d.saveRoster()
	d.fetchPrices(added)
}

func (d *Dashboard) onRemoveCompany(a Action) {
	d.selection.Deselect(a.Symbols...)
	removed := false
	for _, sym := range a.Symbols {
		if d.store.RemoveSymbol(sym) {
			removed = true
		}
	}
	if removed {
		d.saveRoster()
	}
}

func (d *Dashboard) onStockPriceData(a Action) {
	for sym, pts := range a.Prices {
		if !d.store.HasCompany(sym) {
			d.log.Debug("dropping prices for removed company", "symbol", sym)
			continue
		}
		d.store.UpsertSeries(sym, pts)
	}
	d.clearError(PriceError)
}

func (d *Dashboard) onNewsLoading(a Action) {
	d.setNewsLoading(true)
	symbols := a.Symbols

	d.mu.RLock()
	language := d.language
	d.mu.RUnlock()

	d.run(func() {
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.FetchTimeout)
		defer cancel()
		res, err := d.fetcher.News(ctx, symbols, language)
		if err != nil {
			d.unavailable(NewsError, symbols, "", err)
			return
		}
		d.bus.Dispatch(Action{Type: NewsData, Symbols: symbols, News: &res})
	})
}

func (d *Dashboard) onNewsData(a Action) {
	if a.News == nil {
		return
	}
	groups := a.News.BySymbol()
	symbols := domain.ParseSymbols(a.Symbols...)
	for sym := range groups {
		if !slices.Contains(symbols, sym) {
			symbols = append(symbols, sym)
		}
	}

	applied := 0
	for _, sym := range symbols {
		if !d.selection.Contains(sym) {
			d.log.Debug("dropping news for deselected company", "symbol", sym)
			continue
		}
		d.articles.Put(sym, groups[sym])
		d.entities.Ingest(sym, groups[sym])
		applied++
	}
	if applied > 0 {
		d.setNewsLoading(false)
		d.clearError(NewsError)
	}
}

func (d *Dashboard) onCompaniesLoading(a Action) {
	d.mu.Lock()
	d.companies = SearchState{Status: SearchLoading, Query: a.Query}
	d.mu.Unlock()

	query := a.Query
	d.run(func() {
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.FetchTimeout)
		defer cancel()
		companies, err := d.fetcher.LookupCompanies(ctx, query)
		if err != nil {
			d.unavailable(CompaniesError, nil, query, err)
			return
		}
		d.bus.Dispatch(Action{Type: CompanyData, Query: query, Companies: companies})
	})
}

func (d *Dashboard) onCompanyData(a Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.companies.Status != SearchLoading || d.companies.Query != a.Query {
		d.log.Debug("dropping stale company lookup", "query", a.Query)
		return
	}
	d.companies = SearchState{
		Status:    SearchReceived,
		Query:     a.Query,
		Companies: append([]domain.Company(nil), a.Companies...),
	}
	delete(d.errs, CompaniesError)
}

func (d *Dashboard) onTweetsLoading(a Action) {
	d.tweets.Open(a.Symbols, a.Entity)

	d.mu.RLock()
	language := d.language
	d.mu.RUnlock()

	symbols, entity := a.Symbols, a.Entity
	d.run(func() {
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.FetchTimeout)
		defer cancel()
		res, err := d.fetcher.Tweets(ctx, symbols, entity, language)
		if err != nil {
			d.unavailable(TweetsError, symbols, "", err)
			return
		}
		d.bus.Dispatch(Action{Type: TweetsData, Symbols: symbols, Entity: entity, Tweets: &res})
	})
}

func (d *Dashboard) onStringData(a Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.Language != d.language {
		d.log.Debug("dropping strings for superseded language", "language", a.Language)
		return
	}
	d.uiStrings = maps.Clone(a.Strings)
	delete(d.errs, StringsError)
}

func (d *Dashboard) onDataUnavailable(a Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs[a.Kind] = a.Err
	switch a.Kind {
	case NewsError:
		d.newsLoading = false
	case CompaniesError:
		if d.companies.Status == SearchLoading && d.companies.Query == a.Query {
			d.companies = SearchState{Status: SearchReceived, Query: a.Query}
		}
	}
}

// ---------------------------------------------------------------------------
// Effects and helpers
// ---------------------------------------------------------------------------

// requestNews is the selection's refresh hook: one news request per
// selection change.
func (d *Dashboard) requestNews(symbols []string) {
	d.bus.Dispatch(Action{Type: NewsLoading, Symbols: symbols})
}

func (d *Dashboard) fetchPrices(symbols []string) {
	d.run(func() {
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.FetchTimeout)
		defer cancel()
		prices, err := d.fetcher.StockPrices(ctx, symbols)
		if err != nil {
			d.unavailable(PriceError, symbols, "", err)
			return
		}
		d.bus.Dispatch(Action{Type: StockPriceData, Symbols: symbols, Prices: prices})
	})
}

func (d *Dashboard) unavailable(kind ErrorKind, symbols []string, query string, err error) {
	if d.ctx.Err() != nil {
		return
	}
	d.log.Warn("loading dashboard data", "kind", kind, "symbols", symbols, "error", err)
	d.bus.Dispatch(Action{Type: DataUnavailable, Kind: kind, Symbols: symbols, Query: query, Err: err.Error()})
}

func (d *Dashboard) saveRoster() {
	if d.opts.Embedded() || d.persist == nil {
		return
	}
	if err := d.persist.SaveRoster(d.ctx, d.store.Roster()); err != nil {
		d.log.Warn("saving roster", "error", err)
	}
}

func (d *Dashboard) setNewsLoading(v bool) {
	d.mu.Lock()
	d.newsLoading = v
	d.mu.Unlock()
}

func (d *Dashboard) clearError(kind ErrorKind) {
	d.mu.Lock()
	delete(d.errs, kind)
	d.mu.Unlock()
}

// broadcast sends an event to all subscribers non-blocking (drop on full).
func (d *Dashboard) broadcast(e Event) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
