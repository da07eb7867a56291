package simulate_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/simulate"
	. "github.com/smartystreets/goconvey/convey"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func series(points ...any) model.PriceSeries {
	var s model.PriceSeries
	for i := 0; i < len(points); i += 2 {
		s = append(s, model.PricePoint{Date: day(points[i].(string)), Close: points[i+1].(float64)})
	}
	return s
}

func dividend(pay string, cash float64) model.Dividend {
	return model.Dividend{PayDate: day(pay), ExDividendDate: day(pay).AddDate(0, 0, -14), CashAmount: cash, Frequency: 4, Symbol: "KO"}
}

const eps = 1e-9

func TestSnowball(t *testing.T) {
	Convey("Given three sessions closing at 100, 110 and 120", t, func() {
		prices := series("2024-01-02", 100.0, "2024-01-03", 110.0, "2024-01-04", 120.0)

		Convey("When a dividend of 1 is paid on the second session", func() {
			table := model.DividendTable{dividend("2024-01-03", 1)}
			rows, err := simulate.Snowball(prices, table, 1000)

			Convey("Then the dividend is reinvested at that day's close", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)

				So(rows[0].Quantity, ShouldAlmostEqual, 10, eps)
				So(rows[0].Value, ShouldAlmostEqual, 1000, eps)
				So(rows[0].HasDividend, ShouldBeFalse)

				So(rows[1].HasDividend, ShouldBeTrue)
				So(rows[1].CashAmount, ShouldEqual, 1)
				So(rows[1].TotalDividend, ShouldAlmostEqual, 10, eps)
				So(rows[1].Quantity, ShouldAlmostEqual, 10+10.0/110, eps)
				So(rows[1].Value, ShouldAlmostEqual, 1110, eps)

				So(rows[2].Quantity, ShouldAlmostEqual, rows[1].Quantity, eps)
				So(rows[2].Value, ShouldAlmostEqual, 120*(10+10.0/110), eps)
			})

			Convey("Then totals report the final value and the reinvested cash", func() {
				final, dividends := simulate.Totals(rows)
				So(final, ShouldAlmostEqual, 1210.909090909, 1e-6)
				So(dividends, ShouldAlmostEqual, 10, eps)
			})
		})

		Convey("When dividends fall on adjacent sessions", func() {
			table := model.DividendTable{dividend("2024-01-03", 1), dividend("2024-01-04", 1)}
			rows, err := simulate.Snowball(prices, table, 1000)

			Convey("Then the second compounds on the quantity the first left", func() {
				So(err, ShouldBeNil)
				q1 := 10 + 10.0/110
				So(rows[1].Quantity, ShouldAlmostEqual, q1, eps)
				So(rows[2].TotalDividend, ShouldAlmostEqual, q1, eps)
				So(rows[2].Quantity, ShouldAlmostEqual, q1+q1/120, eps)
			})
		})

		Convey("When two dividends share a pay date", func() {
			table := model.DividendTable{dividend("2024-01-03", 1), dividend("2024-01-03", 1)}
			rows, err := simulate.Snowball(prices, table, 1000)

			Convey("Then they compound one after the other on the same row", func() {
				So(err, ShouldBeNil)
				q1 := 10 + 10.0/110
				q2 := q1 + q1/110
				So(rows[1].CashAmount, ShouldAlmostEqual, 2, eps)
				So(rows[1].TotalDividend, ShouldAlmostEqual, 10+q1, eps)
				So(rows[1].Quantity, ShouldAlmostEqual, q2, eps)
				So(rows[2].Quantity, ShouldAlmostEqual, q2, eps)
			})
		})

		Convey("When there are no dividends", func() {
			rows, err := simulate.Snowball(prices, nil, 1000)

			Convey("Then quantity stays at its initial value", func() {
				So(err, ShouldBeNil)
				for _, r := range rows {
					So(r.Quantity, ShouldAlmostEqual, 10, eps)
					So(r.Value, ShouldAlmostEqual, r.Close*10, eps)
				}
			})
		})
	})

	Convey("Given a year of monthly dividends", t, func() {
		var prices model.PriceSeries
		var table model.DividendTable
		start := day("2023-01-02")
		for i := 0; i < 360; i++ {
			d := start.AddDate(0, 0, i)
			prices = append(prices, model.PricePoint{Date: d, Close: 50 + float64(i%17)})
			if d.Day() == 15 {
				table = append(table, dividend(model.DayKey(d), 0.25))
			}
		}

		Convey("When the snowball runs", func() {
			rows, err := simulate.Snowball(prices, table, 5000)

			Convey("Then quantity never decreases and value tracks close", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, len(prices))
				booked := 0
				for i, r := range rows {
					if i > 0 {
						So(r.Quantity, ShouldBeGreaterThanOrEqualTo, rows[i-1].Quantity)
					}
					if r.HasDividend {
						booked++
					}
					So(r.Value, ShouldAlmostEqual, r.Close*r.Quantity, eps)
				}
				So(booked, ShouldEqual, len(table))
			})

			Convey("Then quantity between two dividends holds the earlier one's value", func() {
				So(err, ShouldBeNil)
				initial := 5000 / prices[0].Close
				held := initial
				var payRows []int
				for i, r := range rows {
					if r.HasDividend {
						payRows = append(payRows, i)
						So(r.Quantity, ShouldBeGreaterThan, held)
						held = r.Quantity
						continue
					}
					So(r.Quantity, ShouldEqual, held)
				}
				So(len(payRows), ShouldEqual, len(table))
				So(rows[payRows[0]-1].Quantity, ShouldAlmostEqual, initial, eps)
				// a day between the second and fourth dividends, after the third
				between := payRows[2] + 5
				So(between, ShouldBeLessThan, payRows[3])
				So(rows[between].Quantity, ShouldEqual, rows[payRows[2]].Quantity)
				So(rows[between].Quantity, ShouldBeGreaterThan, rows[payRows[1]].Quantity)
			})
		})
	})
}

func TestKeepTheCash(t *testing.T) {
	Convey("Given three sessions and one dividend", t, func() {
		prices := series("2024-01-02", 100.0, "2024-01-03", 110.0, "2024-01-04", 120.0)
		table := model.DividendTable{dividend("2024-01-03", 1)}

		Convey("When the cash is kept", func() {
			rows, err := simulate.KeepTheCash(prices, table, 1000)

			Convey("Then quantity is constant and the dividend is booked as cash", func() {
				So(err, ShouldBeNil)
				for _, r := range rows {
					So(r.Quantity, ShouldAlmostEqual, 10, eps)
				}
				So(rows[1].HasDividend, ShouldBeTrue)
				So(rows[1].TotalDividend, ShouldAlmostEqual, 10, eps)
				So(rows[2].Value, ShouldAlmostEqual, 1200, eps)

				final, cash := simulate.Totals(rows)
				So(final, ShouldAlmostEqual, 1200, eps)
				So(cash, ShouldAlmostEqual, 10, eps)
			})
		})
	})
}

func TestAlignment(t *testing.T) {
	Convey("Given sessions that skip a holiday", t, func() {
		prices := series("2024-07-02", 100.0, "2024-07-03", 100.0, "2024-07-05", 100.0)

		Convey("When a dividend is paid on the holiday", func() {
			table := model.DividendTable{dividend("2024-07-04", 1)}

			Convey("Then strict alignment fails with context", func() {
				rows, err := simulate.Snowball(prices, table, 1000)
				So(rows, ShouldBeNil)
				So(errors.Is(err, simulate.ErrDividendNotTraded), ShouldBeTrue)

				var aerr *simulate.AlignmentError
				So(errors.As(err, &aerr), ShouldBeTrue)
				So(aerr.Index, ShouldEqual, 0)
				So(model.DayKey(aerr.PayDate), ShouldEqual, "2024-07-04")
				So(model.DayKey(aerr.From), ShouldEqual, "2024-07-02")
				So(model.DayKey(aerr.To), ShouldEqual, "2024-07-05")
				So(aerr.Quantity, ShouldAlmostEqual, 10, eps)
			})

			Convey("Then keep-the-cash fails the same way", func() {
				_, err := simulate.KeepTheCash(prices, table, 1000)
				So(errors.Is(err, simulate.ErrDividendNotTraded), ShouldBeTrue)
			})

			Convey("Then next-session alignment books it on the following session", func() {
				rows, err := simulate.Snowball(prices, table, 1000, simulate.WithNextSessionAlignment())
				So(err, ShouldBeNil)
				So(rows[1].HasDividend, ShouldBeFalse)
				So(rows[2].HasDividend, ShouldBeTrue)
				So(rows[2].Quantity, ShouldAlmostEqual, 10.1, eps)
			})
		})

		Convey("When a dividend is paid after the last session", func() {
			table := model.DividendTable{dividend("2024-07-08", 1)}

			Convey("Then strict alignment fails", func() {
				_, err := simulate.Snowball(prices, table, 1000)
				So(errors.Is(err, simulate.ErrDividendNotTraded), ShouldBeTrue)
			})

			Convey("Then next-session alignment drops it", func() {
				rows, err := simulate.Snowball(prices, table, 1000, simulate.WithNextSessionAlignment())
				So(err, ShouldBeNil)
				for _, r := range rows {
					So(r.HasDividend, ShouldBeFalse)
					So(r.Quantity, ShouldAlmostEqual, 10, eps)
				}
			})
		})

		Convey("When a dividend is paid before the first session", func() {
			table := model.DividendTable{dividend("2024-06-28", 1), dividend("2024-07-03", 1)}
			rows, err := simulate.Snowball(prices, table, 1000)

			Convey("Then it is ignored and later dividends still apply", func() {
				So(err, ShouldBeNil)
				So(rows[0].Quantity, ShouldAlmostEqual, 10, eps)
				So(rows[1].Quantity, ShouldAlmostEqual, 10.1, eps)
			})
		})

		Convey("When the dividend table goes backwards", func() {
			table := model.DividendTable{dividend("2024-07-05", 1), dividend("2024-07-03", 1)}
			_, err := simulate.Snowball(prices, table, 1000)

			Convey("Then it fails as unsorted", func() {
				So(errors.Is(err, simulate.ErrUnsortedDividends), ShouldBeTrue)
				var aerr *simulate.AlignmentError
				So(errors.As(err, &aerr), ShouldBeTrue)
				So(aerr.Index, ShouldEqual, 1)
			})
		})
	})
}

func TestInvalidInput(t *testing.T) {
	Convey("Given invalid simulation inputs", t, func() {
		good := series("2024-01-02", 100.0, "2024-01-03", 110.0)

		Convey("Then an empty price series is rejected", func() {
			_, err := simulate.Snowball(nil, nil, 1000)
			So(errors.Is(err, simulate.ErrInvalidInput), ShouldBeTrue)
			So(errors.Is(err, model.ErrInvalidPrices), ShouldBeTrue)
		})

		Convey("Then unsorted prices are rejected", func() {
			_, err := simulate.KeepTheCash(series("2024-01-03", 1.0, "2024-01-02", 1.0), nil, 1000)
			So(errors.Is(err, model.ErrInvalidPrices), ShouldBeTrue)
		})

		Convey("Then non-positive initial cash is rejected", func() {
			_, err := simulate.Snowball(good, nil, 0)
			So(errors.Is(err, simulate.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Then a zero first close is rejected", func() {
			_, err := simulate.Snowball(series("2024-01-02", 0.0), nil, 1000)
			So(errors.Is(err, simulate.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("Then a NaN close on a dividend day is rejected", func() {
			prices := series("2024-01-02", 100.0, "2024-01-03", math.NaN(), "2024-01-04", 120.0)
			_, err := simulate.Snowball(prices, model.DividendTable{dividend("2024-01-03", 1)}, 1000)
			So(errors.Is(err, simulate.ErrInvalidInput), ShouldBeTrue)
			So(errors.Is(err, model.ErrInvalidPrices), ShouldBeTrue)
		})
	})
}
