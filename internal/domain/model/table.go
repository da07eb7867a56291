package model

import (
	"sort"
	"time"
)

// Dividend is one normalized distribution, keyed by its pay date.
type Dividend struct {
	PayDate        time.Time `json:"pay_date"`
	ExDividendDate time.Time `json:"ex_dividend_date"`
	CashAmount     float64   `json:"cash_amount"`
	Frequency      int       `json:"frequency"`
	Symbol         string    `json:"symbol"`
}

// DividendTable is ordered by pay date. Entries sharing a pay date keep fetch
// order and are applied one after the other.
type DividendTable []Dividend

// Dates returns the distinct pay dates in order.
func (t DividendTable) Dates() []time.Time {
	dates := make([]time.Time, 0, len(t))
	for i, d := range t {
		if i > 0 && DayKey(d.PayDate) == DayKey(t[i-1].PayDate) {
			continue
		}
		dates = append(dates, d.PayDate)
	}
	return dates
}

// TotalCash sums the per-share cash of every entry.
func (t DividendTable) TotalCash() float64 {
	var total float64
	for _, d := range t {
		total += d.CashAmount
	}
	return total
}

var frequencyLabels = map[int]string{
	12: "Monthly",
	4:  "Quarterly",
	2:  "Semi-Annual",
	1:  "Yearly",
}

// FrequencyLabel names a distributions-per-year value.
func FrequencyLabel(freq int) string {
	if label, ok := frequencyLabels[freq]; ok {
		return label
	}
	if freq == 0 {
		return "Special"
	}
	return "Irregular"
}

// Frequency returns the most common frequency in the table, ties broken by
// the higher frequency. An empty table reports 0.
func (t DividendTable) Frequency() int {
	counts := make(map[int]int)
	for _, d := range t {
		counts[d.Frequency]++
	}
	freqs := make([]int, 0, len(counts))
	for f := range counts {
		freqs = append(freqs, f)
	}
	sort.Slice(freqs, func(i, j int) bool {
		if counts[freqs[i]] != counts[freqs[j]] {
			return counts[freqs[i]] > counts[freqs[j]]
		}
		return freqs[i] > freqs[j]
	})
	if len(freqs) == 0 {
		return 0
	}
	return freqs[0]
}
