// Package live hosts dashboard sessions on the server and streams their
// events to remote clients over gRPC.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockinsights/internal/dashboard"
	"stockinsights/internal/store"
)

// SessionStore persists session records across restarts.
type SessionStore interface {
	SaveSession(ctx context.Context, rec store.SessionRecord) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]store.SessionRecord, error)
}

// Session is one hosted dashboard and the parameters it was opened with.
type Session struct {
	*dashboard.Dashboard
	ID        string
	Params    url.Values
	CreatedAt time.Time
}

// SessionInfo describes a session without its state.
type SessionInfo struct {
	ID        string    `json:"id"`
	Params    string    `json:"params"`
	Embedded  bool      `json:"embedded"`
	Companies int       `json:"companies"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager owns the hosted dashboard sessions. Each session gets its own bus,
// so actions never cross sessions; non-embedded sessions share the saved
// roster.
type Manager struct {
	fetcher  dashboard.Fetcher
	roster   dashboard.RosterPersister
	records  SessionStore
	defaults dashboard.Options
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. roster and records may be nil.
// defaults supplies the tuning fields (debounce, entity limit, timeouts)
// applied to every session.
func NewManager(fetcher dashboard.Fetcher, roster dashboard.RosterPersister, records SessionStore, defaults dashboard.Options, log *slog.Logger) *Manager {
	return &Manager{
		fetcher:  fetcher,
		roster:   roster,
		records:  records,
		defaults: defaults,
		log:      log.With("component", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// Create opens a session from startup parameters (symbols, articles,
// language, forcebubbles) and records it.
func (m *Manager) Create(ctx context.Context, params url.Values) (*Session, error) {
	s := m.open(uuid.NewString(), params, time.Now())
	if m.records != nil {
		err := m.records.SaveSession(ctx, store.SessionRecord{
			ID:        s.ID,
			Params:    params.Encode(),
			CreatedAt: s.CreatedAt,
		})
		if err != nil {
			m.drop(s.ID)
			return nil, fmt.Errorf("recording session: %w", err)
		}
	}
	m.log.Info("session created", "id", s.ID, "params", params.Encode())
	return s, nil
}

// Restore reopens every recorded session. It returns how many were opened.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.records == nil {
		return 0, nil
	}
	recs, err := m.records.ListSessions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		params, err := url.ParseQuery(rec.Params)
		if err != nil {
			m.log.Warn("skipping unreadable session", "id", rec.ID, "error", err)
			continue
		}
		m.open(rec.ID, params, rec.CreatedAt)
		n++
	}
	m.log.Info("sessions restored", "count", n)
	return n, nil
}

func (m *Manager) open(id string, params url.Values, created time.Time) *Session {
	opts := dashboard.ParseOptions(params)
	opts.SearchDebounce = m.defaults.SearchDebounce
	opts.EntityLimit = m.defaults.EntityLimit
	opts.FetchTimeout = m.defaults.FetchTimeout

	d := dashboard.New(dashboard.NewSyncBus(), m.fetcher, m.roster, opts, m.log.With("session", id))
	s := &Session{Dashboard: d, ID: id, Params: params, CreatedAt: created}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	d.Start(context.Background())
	return s
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dashboard.ErrUnknownSession, id)
	}
	return s, nil
}

// List describes every open session, oldest first.
func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionInfo{
			ID:        s.ID,
			Params:    s.Params.Encode(),
			Embedded:  s.Embedded(),
			Companies: len(s.Store().Roster()),
			CreatedAt: s.CreatedAt,
		})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close ends a session and forgets its record.
func (m *Manager) Close(ctx context.Context, id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	m.drop(id)
	if m.records != nil {
		if err := m.records.DeleteSession(ctx, id); err != nil {
			return err
		}
	}
	m.log.Info("session closed", "id", id)
	return nil
}

// Shutdown closes every session but keeps their records for Restore.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Dashboard.Close()
	}
}

func (m *Manager) drop(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Dashboard.Close()
	}
}
