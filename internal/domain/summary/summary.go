// Package summary turns the final numbers of a simulation into a
// comparison record.
package summary

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Approach names used by the analysis.
const (
	ApproachKeepTheCash = "Keep the cash"
	ApproachSnowball    = "Snowball"
)

var hundred = decimal.NewFromInt(100)

// Summary compares one approach against the initial investment. Money and
// percentage fields are rounded to two decimals.
type Summary struct {
	Approach          string          `json:"approach"`
	FinalMarketAmount decimal.Decimal `json:"final_market_amount"`
	MarketProfit      decimal.Decimal `json:"market_profit"`
	MarketGain        decimal.Decimal `json:"market_gain"`
	CashKept          decimal.Decimal `json:"cash_kept"`
	TotalProfit       decimal.Decimal `json:"total_profit"`
	TotalGain         decimal.Decimal `json:"total_gain"`
}

// New computes profit and gain for an approach. initialCash must be
// positive; a zero value yields zero gains rather than a division panic.
func New(approach string, finalValue, initialCash, cashKept float64) Summary {
	final := decimal.NewFromFloat(finalValue)
	initial := decimal.NewFromFloat(initialCash)
	cash := decimal.NewFromFloat(cashKept)

	profit := final.Sub(initial)
	total := profit.Add(cash)

	return Summary{
		Approach:          approach,
		FinalMarketAmount: final.Round(2),
		MarketProfit:      profit.Round(2),
		MarketGain:        percent(profit, initial),
		CashKept:          cash.Round(2),
		TotalProfit:       total.Round(2),
		TotalGain:         percent(total, initial),
	}
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

var columns = []string{
	"Approach",
	"Final Market Amount",
	"Market Profit",
	"Market Gain",
	"Cash Kept",
	"Total Profit",
	"Total Gain",
}

// Markdown renders summaries as a markdown table, one row per approach.
func Markdown(summaries []Summary) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s%% | %s | %s | %s%% |\n",
			s.Approach,
			s.FinalMarketAmount.StringFixed(2),
			s.MarketProfit.StringFixed(2),
			s.MarketGain.StringFixed(2),
			s.CashKept.StringFixed(2),
			s.TotalProfit.StringFixed(2),
			s.TotalGain.StringFixed(2),
		)
	}
	return b.String()
}
