// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel kinds for model validation.
var (
	ErrInvalidWindow = errors.New("invalid fetch window")
	ErrInvalidPrices = errors.New("invalid price series")
)

// DividendEvent is one distribution record as returned by the provider.
// Dates stay in the provider's YYYY-MM-DD form so cached entries round-trip
// byte for byte; use the accessor methods to parse them.
type DividendEvent struct {
	Symbol          string  `json:"ticker"`
	ExDividendDate  string  `json:"ex_dividend_date"`
	PayDate         string  `json:"pay_date"`
	CashAmount      float64 `json:"cash_amount"`
	Frequency       int     `json:"frequency"` // distributions per year, 0 for a special distribution
	DeclarationDate string  `json:"declaration_date,omitempty"`
	RecordDate      string  `json:"record_date,omitempty"`
	Currency        string  `json:"currency,omitempty"`
	DividendType    string  `json:"dividend_type,omitempty"`
}

// IsSpecial reports whether the event is a one-off distribution.
func (e DividendEvent) IsSpecial() bool { return e.Frequency == 0 }

// ExDate parses the ex-dividend date as a UTC calendar day.
func (e DividendEvent) ExDate() (time.Time, error) {
	return ParseDay(e.ExDividendDate, time.UTC)
}

// PayDateIn parses the pay date as midnight in loc.
func (e DividendEvent) PayDateIn(loc *time.Location) (time.Time, error) {
	return ParseDay(e.PayDate, loc)
}

// FetchWindow is the unit of dividend retrieval and the cache key granularity.
type FetchWindow struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

// NewFetchWindow normalizes the symbol and truncates both bounds to calendar days.
func NewFetchWindow(symbol string, start, end time.Time) FetchWindow {
	return FetchWindow{
		Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		Start:  Day(start),
		End:    Day(end),
	}
}

// Validate rejects windows that cannot be fetched.
func (w FetchWindow) Validate() error {
	switch {
	case w.Symbol == "":
		return fmt.Errorf("%w: symbol must not be empty", ErrInvalidWindow)
	case w.Start.IsZero() || w.End.IsZero():
		return fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	case w.End.Before(w.Start):
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow, DayKey(w.End), DayKey(w.Start))
	}
	return nil
}

// Key identifies the exact (symbol, start, end) tuple.
func (w FetchWindow) Key() string {
	return fmt.Sprintf("dividends:%s:%s:%s", w.Symbol, DayKey(w.Start), DayKey(w.End))
}

func (w FetchWindow) String() string {
	return fmt.Sprintf("%s [%s, %s]", w.Symbol, DayKey(w.Start), DayKey(w.End))
}

// FetchResult carries the events of one window and how they were obtained.
type FetchResult struct {
	Events []DividendEvent `json:"events"`

	// Complete is false when pagination stopped on a transport or decode
	// failure; Events then holds whatever was accumulated before it.
	Complete bool `json:"complete"`

	// FromCache is true when the events were served by the dividend cache.
	FromCache bool `json:"from_cache"`

	// Pages is the number of provider pages consumed (0 on cache hits).
	Pages int `json:"pages"`

	// Cause is the failure that truncated an incomplete result.
	Cause error `json:"-"`
}
