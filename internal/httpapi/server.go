package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"stockinsights/internal/dashboard"
	"stockinsights/internal/domain"
	"stockinsights/internal/i18n"
	"stockinsights/internal/live"
	"stockinsights/internal/upstream"
)

// Server serves the insights HTTP API.
type Server struct {
	svc      *upstream.Service
	strings  *i18n.Bundle
	sessions *live.Manager
	log      *slog.Logger

	streamBuffer int
}

// defaultStreamBuffer is the per-client event buffer for session streams.
const defaultStreamBuffer = 64

// NewServer creates the API server. sessions may be nil, in which case the
// session routes are not mounted.
func NewServer(svc *upstream.Service, strings *i18n.Bundle, sessions *live.Manager, log *slog.Logger) *Server {
	return &Server{
		svc:          svc,
		strings:      strings,
		sessions:     sessions,
		log:          log.With("component", "http"),
		streamBuffer: defaultStreamBuffer,
	}
}

// WithStreamBuffer sets the event buffer of each WebSocket client.
func (s *Server) WithStreamBuffer(n int) *Server {
	if n > 0 {
		s.streamBuffer = n
	}
	return s
}

// Handler returns the router with CORS, panic recovery and request logging.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Get("/strings", s.handleStrings)
	r.Get("/companylookup", s.handleCompanyLookup)
	r.Get("/stockprice", s.handleStockPrice)
	r.Get("/stockhistory", s.handleStockHistory)
	r.Get("/stocknews", s.handleStockNews)
	r.Get("/sentiment", s.handleSentiment)
	r.Get("/tweets", s.handleTweets)

	r.Route("/demo", func(r chi.Router) {
		r.Get("/positive", s.handleMovers(true))
		r.Get("/negative", s.handleMovers(false))
		r.Get("/entities", s.handleDemoEntities)
		r.Get("/articles", s.handleDemoArticles)
	})

	if s.sessions != nil {
		r.Route("/api/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Delete("/{id}", s.handleDeleteSession)
			r.Post("/{id}/actions", s.handleIntent)
			r.Get("/{id}/entities", s.handleSessionEntities)
			r.Get("/{id}/snapshot", s.handleSessionSnapshot)
			r.Get("/{id}/stream", s.handleSessionStream)
		})
	}
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept-Language")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// fail maps err to a status: an upstream's own status is passed through,
// unknown sessions are 404 and unreachable upstreams are 502.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var se *upstream.StatusError
	switch {
	case errors.As(err, &se):
		status = se.Code
	case errors.Is(err, dashboard.ErrUnknownSession):
		status = http.StatusNotFound
	case upstream.IsUnavailable(err):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.log.Warn("request failed", "path", r.URL.Path, "status", status, "error", err)
	writeError(w, status, err.Error())
}

// symbolsParam reads symbols from the symbol and symbols parameters, each
// repeatable or comma separated.
func symbolsParam(r *http.Request) []string {
	q := r.URL.Query()
	return domain.ParseSymbols(append(q["symbol"], q["symbols"]...)...)
}

// language picks the request language from ?language or Accept-Language.
func (s *Server) language(r *http.Request) string {
	return s.strings.Resolve(r.URL.Query().Get("language"), r.Header.Get("Accept-Language"))
}

// ---------------------------------------------------------------------------
// Data endpoints
// ---------------------------------------------------------------------------

func (s *Server) handleStrings(w http.ResponseWriter, r *http.Request) {
	strs, err := s.strings.Strings(r.Context(), s.language(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, strs)
}

func (s *Server) handleCompanyLookup(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	if company == "" {
		writeError(w, http.StatusBadRequest, "company is required")
		return
	}
	companies, err := s.svc.LookupCompanies(r.Context(), company)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, companies)
}

func (s *Server) handleStockPrice(w http.ResponseWriter, r *http.Request) {
	symbols := symbolsParam(r)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols is required")
		return
	}
	prices, err := s.svc.StockPrices(r.Context(), symbols)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, prices)
}

func (s *Server) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	symbols := symbolsParam(r)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols is required")
		return
	}
	history, err := s.svc.StockHistory(r.Context(), symbols)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, history)
}

func (s *Server) handleStockNews(w http.ResponseWriter, r *http.Request) {
	symbols := symbolsParam(r)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	res, err := s.svc.News(r.Context(), symbols, s.language(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	symbols := symbolsParam(r)
	entity := r.URL.Query().Get("entity")
	if len(symbols) == 0 || entity == "" {
		writeError(w, http.StatusBadRequest, "symbol and entity are required")
		return
	}
	res, err := s.svc.Sentiment(r.Context(), symbols, entity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleTweets(w http.ResponseWriter, r *http.Request) {
	symbols := symbolsParam(r)
	entity := r.URL.Query().Get("entity")
	if len(symbols) == 0 || entity == "" {
		writeError(w, http.StatusBadRequest, "symbol and entity are required")
		return
	}
	res, err := s.svc.Tweets(r.Context(), symbols, entity, s.language(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, res)
}

// ---------------------------------------------------------------------------
// Demo endpoints
// ---------------------------------------------------------------------------

func (s *Server) handleMovers(gainers bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbols := symbolsParam(r)
		if len(symbols) == 0 {
			writeError(w, http.StatusBadRequest, "symbols is required")
			return
		}
		movers, err := s.svc.Movers(r.Context(), symbols, gainers)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, movers)
	}
}

func (s *Server) handleDemoEntities(w http.ResponseWriter, r *http.Request) {
	symbols := symbolsParam(r)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	entities, err := s.svc.Entities(r.Context(), symbols, s.language(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, entities)
}

func (s *Server) handleDemoArticles(w http.ResponseWriter, r *http.Request) {
	symbols := symbolsParam(r)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	res, err := s.svc.News(r.Context(), symbols, s.language(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]ArticleLink, 0, len(res.News))
	for _, a := range res.News {
		rel := a.Relations
		if rel == nil {
			rel = []string{}
		}
		out = append(out, ArticleLink{Title: a.Title, URL: a.URL, Relations: rel})
	}
	writeJSON(w, out)
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.sessions.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context(), r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, SessionResponse{ID: sess.ID, State: sess.State()})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*live.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, SessionResponse{ID: sess.ID, State: sess.State()})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionEntities(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, sess.Entities())
}

func (s *Server) handleSessionSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, found := sess.CurrentSnapshot()
	writeJSON(w, DateSnapshotResponse{Found: found, Snapshot: snap})
}

// handleIntent applies a user intent. Effects run in the background, so the
// returned state may not include their results yet.
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	switch req.Type {
	case IntentAdd:
		companies := req.Companies
		for _, sym := range domain.ParseSymbols(req.Symbols...) {
			companies = append(companies, domain.Company{Symbol: sym})
		}
		if len(companies) == 0 {
			writeError(w, http.StatusBadRequest, "companies or symbols is required")
			return
		}
		sess.AddCompanies(companies...)
	case IntentRemove:
		sess.RemoveCompany(req.Symbols...)
	case IntentSelect:
		sess.Select(req.Symbols...)
	case IntentDeselect:
		sess.Deselect(req.Symbols...)
	case IntentCloseArticles:
		sess.CloseArticles()
	case IntentSearch:
		sess.Search(req.Query)
	case IntentClearSearch:
		sess.ClearSearch()
	case IntentOpenTweets:
		if len(req.Symbols) == 0 || req.Entity == "" {
			writeError(w, http.StatusBadRequest, "symbols and entity are required")
			return
		}
		sess.OpenTweets(domain.ParseSymbols(req.Symbols...), req.Entity)
	case IntentCloseTweets:
		sess.CloseTweets()
	case IntentSwitchDate:
		d, err := domain.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sess.SwitchDate(d)
	case IntentLanguage:
		sess.LoadStrings(req.Language)
	default:
		writeError(w, http.StatusBadRequest, "unknown intent type "+req.Type)
		return
	}
	writeJSONStatus(w, http.StatusAccepted, SessionResponse{ID: sess.ID, State: sess.State()})
}
