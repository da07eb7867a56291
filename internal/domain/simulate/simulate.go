// Package simulate reconstructs daily holdings of an equity under two
// dividend policies: keeping the cash, and reinvesting it (the snowball).
package simulate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
)

// Strategy names, as reported in metrics and summaries.
const (
	StrategyKeepTheCash = "keep_the_cash"
	StrategySnowball    = "snowball"
)

// Row is one day of a simulated position, aligned to the price calendar.
type Row struct {
	Date          time.Time `json:"date"`
	Close         float64   `json:"close"`
	CashAmount    float64   `json:"cash_amount"` // per-share dividend booked that day
	HasDividend   bool      `json:"has_dividend"`
	Quantity      float64   `json:"quantity"`
	TotalDividend float64   `json:"total_dividend"` // cash received that day
	Value         float64   `json:"value"`          // Close * Quantity
}

// booking is the dividend activity landing on one price row.
type booking struct {
	cash     float64
	total    float64
	quantity float64 // shares held at the end of the day
}

// KeepTheCash holds initialCash/price[0] shares for the whole horizon and
// books each dividend as cash without reinvesting it.
func KeepTheCash(prices model.PriceSeries, table model.DividendTable, initialCash float64, opts ...Option) ([]Row, error) {
	s := newSettings(opts)
	quantity, err := initialQuantity(prices, initialCash)
	if err != nil {
		return nil, err
	}

	bookings, err := fold(prices, table, quantity, s, func(qty, cash, _ float64) (float64, float64) {
		return qty, cash * qty
	})
	if err != nil {
		return nil, err
	}
	return expand(prices, bookings, quantity), nil
}

// Snowball reinvests every dividend at that day's close:
//
//	quantity += cash_amount * quantity / close
//
// Quantity is constant between dividend days, equal to initialCash/price[0]
// before the first one and to the last compounded value after the last one.
func Snowball(prices model.PriceSeries, table model.DividendTable, initialCash float64, opts ...Option) ([]Row, error) {
	s := newSettings(opts)
	quantity, err := initialQuantity(prices, initialCash)
	if err != nil {
		return nil, err
	}

	bookings, err := fold(prices, table, quantity, s, func(qty, cash, px float64) (float64, float64) {
		total := cash * qty
		return qty + total/px, total
	})
	if err != nil {
		return nil, err
	}
	return expand(prices, bookings, quantity), nil
}

// Totals returns the value on the last row and the dividend cash received
// over all rows.
func Totals(rows []Row) (finalValue, dividends float64) {
	for _, r := range rows {
		dividends += r.TotalDividend
	}
	if len(rows) > 0 {
		finalValue = rows[len(rows)-1].Value
	}
	return finalValue, dividends
}

func initialQuantity(prices model.PriceSeries, initialCash float64) (float64, error) {
	if err := prices.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if initialCash <= 0 {
		return 0, fmt.Errorf("%w: initial cash must be positive, got %v", ErrInvalidInput, initialCash)
	}
	first := prices.First().Close
	if first <= 0 {
		return 0, fmt.Errorf("%w: first close must be positive, got %v", ErrInvalidInput, first)
	}
	return initialCash / first, nil
}

// stepFunc advances the held quantity over one dividend and returns the new
// quantity and the cash the dividend paid.
type stepFunc func(quantity, cashAmount, px float64) (next, total float64)

// fold walks the dividends in order, carrying quantity from one to the next.
// The order matters: each step pays on the quantity the previous one left.
func fold(prices model.PriceSeries, table model.DividendTable, quantity float64, s *settings, step stepFunc) (map[int]*booking, error) {
	index := prices.Index()
	first, last := prices.First().Date, prices.Last().Date
	bookings := make(map[int]*booking)
	prevIdx := -1

	for i, d := range table {
		day := model.DayKey(d.PayDate)
		if day < model.DayKey(first) {
			// paid before the position existed
			s.logger.Warn(context.Background(), "dividend paid before first price, ignored",
				logger.Date("pay_date", d.PayDate), logger.Date("first_price", first))
			continue
		}

		idx, ok := index[day]
		if !ok && s.nextSession && day <= model.DayKey(last) {
			idx, ok = nextSession(prices, day), true
		}
		if !ok && s.nextSession {
			s.logger.Debug(context.Background(), "dividend paid after last price, dropped",
				logger.Date("pay_date", d.PayDate), logger.Date("last_price", last))
			continue
		}
		if !ok || idx < prevIdx {
			cause := ErrDividendNotTraded
			if ok {
				cause = ErrUnsortedDividends
			}
			err := alignmentError(table, i, first, last, quantity, cause)
			s.logger.Error(context.Background(), "dividend alignment failed",
				logger.Int("index", err.Index),
				logger.Date("pay_date", err.PayDate),
				logger.Date("from", err.From),
				logger.Date("to", err.To),
				logger.Float64("quantity", err.Quantity),
				logger.Error(cause),
			)
			return nil, err
		}

		px := prices[idx].Close
		if px <= 0 {
			return nil, fmt.Errorf("%w: close on %s must be positive, got %v", ErrInvalidInput, day, px)
		}

		var total float64
		quantity, total = step(quantity, d.CashAmount, px)

		b, ok := bookings[idx]
		if !ok {
			b = &booking{}
			bookings[idx] = b
		}
		b.cash += d.CashAmount
		b.total += total
		b.quantity = quantity
		prevIdx = idx
	}
	return bookings, nil
}

// nextSession returns the first price index on or after day.
func nextSession(prices model.PriceSeries, day string) int {
	return sort.Search(len(prices), func(i int) bool {
		return model.DayKey(prices[i].Date) >= day
	})
}

func alignmentError(table model.DividendTable, i int, first, last time.Time, quantity float64, cause error) *AlignmentError {
	from, to := first, last
	if i > 0 {
		from = table[i-1].PayDate
	}
	if i+1 < len(table) {
		to = table[i+1].PayDate
	}
	return &AlignmentError{
		Index:    i,
		PayDate:  table[i].PayDate,
		From:     from,
		To:       to,
		Quantity: quantity,
		Err:      cause,
	}
}

// expand lays the bookings over the full price calendar, forward-filling
// quantity between dividend days.
func expand(prices model.PriceSeries, bookings map[int]*booking, quantity float64) []Row {
	rows := make([]Row, len(prices))
	for i, p := range prices {
		row := Row{Date: p.Date, Close: p.Close}
		if b, ok := bookings[i]; ok {
			quantity = b.quantity
			row.HasDividend = true
			row.CashAmount = b.cash
			row.TotalDividend = b.total
		}
		row.Quantity = quantity
		row.Value = p.Close * quantity
		rows[i] = row
	}
	return rows
}
