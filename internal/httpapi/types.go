// Package httpapi serves the insights REST API: the data proxy endpoints
// the dashboard loads from, the demo endpoints, and hosted sessions.
package httpapi

import (
	"stockinsights/internal/dashboard"
	"stockinsights/internal/domain"
)

// ArticleLink is an article as listed by /demo/articles.
type ArticleLink struct {
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	Relations []string `json:"relations"`
}

// Intent kinds accepted by POST /api/sessions/{id}/actions.
const (
	IntentAdd           = "add"
	IntentRemove        = "remove"
	IntentSelect        = "select"
	IntentDeselect      = "deselect"
	IntentCloseArticles = "close_articles"
	IntentSearch        = "search"
	IntentClearSearch   = "clear_search"
	IntentOpenTweets    = "open_tweets"
	IntentCloseTweets   = "close_tweets"
	IntentSwitchDate    = "switch_date"
	IntentLanguage      = "language"
)

// IntentRequest is a user intent sent to a hosted session. Only the fields
// relevant to Type are read.
type IntentRequest struct {
	Type      string           `json:"type"`
	Symbols   []string         `json:"symbols,omitempty"`
	Companies []domain.Company `json:"companies,omitempty"`
	Query     string           `json:"query,omitempty"`
	Entity    string           `json:"entity,omitempty"`
	Date      string           `json:"date,omitempty"`
	Language  string           `json:"language,omitempty"`
}

// SessionResponse is returned when a session is created or read.
type SessionResponse struct {
	ID    string             `json:"id"`
	State dashboard.Snapshot `json:"state"`
}

// DateSnapshotResponse is a session's current date and its points.
type DateSnapshotResponse struct {
	Found    bool                `json:"found"`
	Snapshot domain.DateSnapshot `json:"snapshot"`
}
