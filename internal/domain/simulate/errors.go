package simulate

import (
	"errors"
	"fmt"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
)

// Sentinel kinds for simulation errors.
var (
	ErrInvalidInput      = errors.New("invalid simulation input")
	ErrDividendNotTraded = errors.New("dividend pay date has no price row")
	ErrUnsortedDividends = errors.New("dividends are not in pay date order")
)

// AlignmentError reports a dividend that could not be placed on the price
// calendar. It indicates an invariant violation in the inputs and is fatal.
type AlignmentError struct {
	Index    int       // position of the dividend in the table
	PayDate  time.Time // the dividend's pay date
	From     time.Time // previous dividend date, or the first price date
	To       time.Time // next dividend date, or the last price date
	Quantity float64   // shares held when the failure occurred
	Err      error
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("dividend %d paid %s (between %s and %s, quantity %.6f): %v",
		e.Index, model.DayKey(e.PayDate), model.DayKey(e.From), model.DayKey(e.To), e.Quantity, e.Err)
}

func (e *AlignmentError) Unwrap() error { return e.Err }
