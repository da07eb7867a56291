// Package normalize turns raw provider dividend records into the
// pay-date-ordered table consumed by the simulator.
package normalize

import (
	"errors"
	"sort"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
)

// ErrEmptyResult is returned when the provider had no dividends in range.
var ErrEmptyResult = errors.New("no dividend events in range")

// Stats counts what Normalize discarded and why.
type Stats struct {
	Special    int // frequency 0
	AfterEnd   int // paid after the simulation horizon
	Unparsable int // missing or malformed pay date
}

// Normalize drops special distributions, localizes pay dates into loc,
// drops entries paid after end and orders the rest by pay date.
//
// Entries sharing a pay date keep their fetch order. A non-empty input that
// is filtered down to nothing yields an empty table, not an error.
func Normalize(raw []model.DividendEvent, end time.Time, loc *time.Location) (model.DividendTable, Stats, error) {
	var stats Stats
	if len(raw) == 0 {
		return nil, stats, ErrEmptyResult
	}
	if loc == nil {
		loc = time.UTC
	}
	horizon := model.DayIn(end, loc)

	table := make(model.DividendTable, 0, len(raw))
	for _, ev := range raw {
		if ev.IsSpecial() {
			stats.Special++
			continue
		}
		pay, err := ev.PayDateIn(loc)
		if err != nil {
			stats.Unparsable++
			continue
		}
		if pay.After(horizon) {
			stats.AfterEnd++
			continue
		}
		// ex-date is informational only; a malformed one leaves the zero time
		ex, _ := ev.ExDate()
		table = append(table, model.Dividend{
			PayDate:        pay,
			ExDividendDate: ex,
			CashAmount:     ev.CashAmount,
			Frequency:      ev.Frequency,
			Symbol:         ev.Symbol,
		})
	}

	sort.SliceStable(table, func(i, j int) bool {
		return table[i].PayDate.Before(table[j].PayDate)
	})
	return table, stats, nil
}
