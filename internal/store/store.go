// Package store defines storage interfaces for persisting price history and
// user preferences such as the company roster.
package store

import (
	"context"

	"stockinsights/internal/domain"
)

// PriceArchive persists daily price history so a dashboard can still be
// drawn when the upstream provider fails.
type PriceArchive interface {
	// WriteSeries merges points into the symbol's archive. Later points
	// replace earlier ones with the same date.
	WriteSeries(ctx context.Context, symbol string, points []domain.PricePoint) error

	// ReadSeries returns the archived points for symbol within [start, end],
	// ascending by date.
	ReadSeries(ctx context.Context, symbol string, start, end domain.Date) ([]domain.PricePoint, error)

	// ListSymbols returns every symbol with archived history.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RosterStore saves the user's list of companies between runs.
type RosterStore interface {
	SaveRoster(ctx context.Context, companies []domain.Company) error
	LoadRoster(ctx context.Context) ([]domain.Company, error)
}
