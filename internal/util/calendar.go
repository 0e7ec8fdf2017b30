package util

import (
	"time"
	_ "time/tzdata"

	"stockinsights/internal/domain"
)

// MarketCalendar answers calendar questions in the exchange's time zone, so a
// quote fetched at 23:00 UTC is still dated the US trading day it belongs to.
type MarketCalendar struct {
	loc *time.Location
}

// NewMarketCalendar creates a calendar for the named IANA zone. An unknown
// zone falls back to UTC.
func NewMarketCalendar(zone string) *MarketCalendar {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	return &MarketCalendar{loc: loc}
}

// USMarket is the calendar for NYSE/Nasdaq listings.
func USMarket() *MarketCalendar {
	return NewMarketCalendar("America/New_York")
}

// Location returns the calendar's time zone.
func (c *MarketCalendar) Location() *time.Location { return c.loc }

// DateOf returns the exchange-local calendar day of t.
func (c *MarketCalendar) DateOf(t time.Time) domain.Date {
	return domain.NewDate(t.In(c.loc))
}

// IsTradingDay reports whether t falls on a weekday in exchange time.
// Holidays are not modelled.
func (c *MarketCalendar) IsTradingDay(t time.Time) bool {
	switch t.In(c.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// LastTradingDay returns the most recent trading day at or before t.
func (c *MarketCalendar) LastTradingDay(t time.Time) domain.Date {
	t = t.In(c.loc)
	for !c.IsTradingDay(t) {
		t = t.AddDate(0, 0, -1)
	}
	return domain.NewDate(t)
}

// YearBefore returns the instant one calendar year before t, the start of
// a 52-week window.
func (c *MarketCalendar) YearBefore(t time.Time) time.Time {
	return t.In(c.loc).AddDate(-1, 0, 0)
}
