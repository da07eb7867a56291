package model

import (
	"fmt"
	"math"
	"time"
)

// PricePoint is one daily close.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is a chronological daily close series supplied by the caller.
type PriceSeries []PricePoint

// Validate checks the series is non-empty, has finite closes and is
// strictly ascending by day.
func (s PriceSeries) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty series", ErrInvalidPrices)
	}
	for i, p := range s {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return fmt.Errorf("%w: non-finite close %v at index %d", ErrInvalidPrices, p.Close, i)
		}
	}
	for i := 1; i < len(s); i++ {
		prev, cur := DayKey(s[i-1].Date), DayKey(s[i].Date)
		if cur <= prev {
			return fmt.Errorf("%w: %s follows %s at index %d", ErrInvalidPrices, cur, prev, i)
		}
	}
	return nil
}

// Index maps each day key to its position in the series.
func (s PriceSeries) Index() map[string]int {
	idx := make(map[string]int, len(s))
	for i, p := range s {
		idx[DayKey(p.Date)] = i
	}
	return idx
}

// First returns the earliest point; the series must not be empty.
func (s PriceSeries) First() PricePoint { return s[0] }

// Last returns the latest point; the series must not be empty.
func (s PriceSeries) Last() PricePoint { return s[len(s)-1] }
