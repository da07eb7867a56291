// Package prices loads daily close series from CSV exports.
package prices

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
)

// Sentinel kinds for price loading errors.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrBadRow        = errors.New("malformed price row")
)

const (
	dateColumn  = "date"
	closeColumn = "close"
)

// LoadFile reads a CSV file; see Load.
func LoadFile(path string, loc *time.Location) (model.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, loc)
}

// Load reads a CSV with a header containing Date and Close columns (any
// case, any position), as exported by common market data sites. Dates are
// interpreted as calendar days in loc. Rows whose close is empty or "null"
// are skipped; the result is sorted ascending and validated.
func Load(r io.Reader, loc *time.Location) (model.PriceSeries, error) {
	if loc == nil {
		loc = time.UTC
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	dateIdx, closeIdx := findColumn(header, dateColumn), findColumn(header, closeColumn)
	if dateIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, "Date")
	}
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, "Close")
	}

	var series model.PriceSeries
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrBadRow, line, err)
		}
		if len(rec) <= dateIdx || len(rec) <= closeIdx {
			return nil, fmt.Errorf("%w: line %d: expected at least %d fields", ErrBadRow, line, max(dateIdx, closeIdx)+1)
		}
		raw := strings.TrimSpace(rec[closeIdx])
		if raw == "" || strings.EqualFold(raw, "null") {
			continue
		}
		day, err := model.ParseDay(strings.TrimSpace(rec[dateIdx]), loc)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: date: %w", ErrBadRow, line, err)
		}
		closePrice, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: close: %w", ErrBadRow, line, err)
		}
		if math.IsNaN(closePrice) || math.IsInf(closePrice, 0) {
			return nil, fmt.Errorf("%w: line %d: close %q is not a finite number", ErrBadRow, line, raw)
		}
		series = append(series, model.PricePoint{Date: day, Close: closePrice})
	}

	sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}

// findColumn returns the index of a column name in the header, or -1.
func findColumn(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
			return i
		}
	}
	return -1
}
