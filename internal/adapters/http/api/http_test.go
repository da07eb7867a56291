package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/http/api"
	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/polygon"
	service "github.com/darylmathison/dividend-stock-analysis/internal/app"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/normalize"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/simulate"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/summary"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockDependencies struct {
	table       model.DividendTable
	result      model.FetchResult
	err         error
	lastSymbol  string
	lastStart   time.Time
	lastEnd     time.Time
	lastRequest service.AnalyzeRequest
	lastWarm    service.WarmRequest
}

func (m *mockDependencies) Dividends(_ context.Context, symbol string, start, end time.Time) (model.DividendTable, model.FetchResult, error) {
	m.lastSymbol, m.lastStart, m.lastEnd = symbol, start, end
	if m.err != nil {
		return nil, model.FetchResult{}, m.err
	}
	return m.table, m.result, nil
}

func (m *mockDependencies) Analyze(_ context.Context, req service.AnalyzeRequest) (service.Analysis, error) {
	m.lastRequest = req
	if m.err != nil {
		return service.Analysis{}, m.err
	}
	return service.Analysis{
		Symbol:    req.Symbol,
		Complete:  true,
		Summaries: []summary.Summary{summary.New(summary.ApproachSnowball, 1210.91, 1000, 0)},
	}, nil
}

func (m *mockDependencies) Warm(_ context.Context, req service.WarmRequest) (service.WarmReceipt, error) {
	m.lastWarm = req
	if m.err != nil {
		return service.WarmReceipt{}, m.err
	}
	return service.WarmReceipt{Queued: req.Symbols}, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		mux := newMux(&mockDependencies{result: model.FetchResult{Complete: true}})

		Convey("When registering routes", func() {
			Convey("Then the health endpoint should expose metrics", func() {
				w := serve(mux, http.MethodGet, "/healthz", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "divsnow_dividends_fetch_pages_total")
			})

			Convey("And the stats endpoint should be accessible", func() {
				w := serve(mux, http.MethodGet, "/stats", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"started":true`)
			})

			Convey("And the stats endpoint should reject writes", func() {
				w := serve(mux, http.MethodPost, "/stats", "")
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})

			Convey("And unknown paths should be not found", func() {
				w := serve(mux, http.MethodGet, "/unknown", "")
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestDividendsHandler(t *testing.T) {
	Convey("Given a dividends endpoint", t, func() {
		pay := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		deps := &mockDependencies{
			table:  model.DividendTable{{PayDate: pay, CashAmount: 0.485, Frequency: 4, Symbol: "KO"}},
			result: model.FetchResult{Complete: true, FromCache: true},
		}
		mux := newMux(deps)

		Convey("When the query is valid", func() {
			w := serve(mux, http.MethodGet, "/dividends?symbol=ko&start=2024-01-01&end=2024-06-30", "")

			Convey("Then the table is returned with its provenance", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["symbol"], ShouldEqual, "KO")
				So(body["complete"], ShouldEqual, true)
				So(body["from_cache"], ShouldEqual, true)
				So(body["frequency"], ShouldEqual, "Quarterly")
				So(len(body["dividends"].([]any)), ShouldEqual, 1)
				So(model.DayKey(deps.lastStart), ShouldEqual, "2024-01-01")
				So(model.DayKey(deps.lastEnd), ShouldEqual, "2024-06-30")
			})
		})

		Convey("When parameters are missing or malformed", func() {
			cases := []string{
				"/dividends?start=2024-01-01&end=2024-06-30",
				"/dividends?symbol=KO&end=2024-06-30",
				"/dividends?symbol=KO&start=01/01/2024&end=2024-06-30",
			}

			Convey("Then each is a bad request", func() {
				for _, target := range cases {
					w := serve(mux, http.MethodGet, target, "")
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(errorCode(w), ShouldEqual, "bad_request")
				}
			})
		})

		Convey("When called with POST", func() {
			w := serve(mux, http.MethodPost, "/dividends", "")

			Convey("Then the method is not allowed", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestServiceErrorMapping(t *testing.T) {
	Convey("Given a service that fails", t, func() {
		cases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"invalid request", fmt.Errorf("%w: bad window", service.ErrInvalidRequest), http.StatusBadRequest, "bad_request"},
			{"no dividends", fmt.Errorf("BRK.A: %w", normalize.ErrEmptyResult), http.StatusNotFound, "no_dividends"},
			{"alignment", &simulate.AlignmentError{Err: simulate.ErrDividendNotTraded}, http.StatusUnprocessableEntity, "alignment_error"},
			{"provider", &polygon.ProviderError{StatusCode: 401, Status: "401 Unauthorized"}, http.StatusBadGateway, "provider_error"},
			{"rate limited", fmt.Errorf("%w: 3 retries", polygon.ErrRateLimited), http.StatusBadGateway, "provider_error"},
			{"not started", service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
			{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
			{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
		}

		for _, tc := range cases {
			Convey("When the failure is "+tc.name, func() {
				mux := newMux(&mockDependencies{err: tc.err})
				w := serve(mux, http.MethodGet, "/dividends?symbol=KO&start=2024-01-01&end=2024-06-30", "")

				Convey("Then it maps to the expected status", func() {
					So(w.Code, ShouldEqual, tc.status)
					So(errorCode(w), ShouldEqual, tc.code)
				})
			})
		}
	})
}

func TestAnalyzeHandler(t *testing.T) {
	Convey("Given an analyze endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When the body is valid", func() {
			body := `{"symbol":"KO","start":"2024-01-01","initial_cash":1000,"next_session":true,
				"prices":[{"date":"2024-01-02","close":100},{"date":"2024-01-03","close":110}]}`
			w := serve(mux, http.MethodPost, "/analyze", body)

			Convey("Then the request is translated and the analysis returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.lastRequest.Symbol, ShouldEqual, "KO")
				So(deps.lastRequest.InitialCash, ShouldEqual, 1000)
				So(deps.lastRequest.NextSessionAlignment, ShouldBeTrue)
				So(model.DayKey(deps.lastRequest.Start), ShouldEqual, "2024-01-01")
				So(deps.lastRequest.End.IsZero(), ShouldBeTrue)
				So(len(deps.lastRequest.Prices), ShouldEqual, 2)
				So(deps.lastRequest.Prices[1].Close, ShouldEqual, 110)
				So(w.Body.String(), ShouldContainSubstring, `"final_market_amount":"1210.91"`)
			})
		})

		Convey("When the body is invalid", func() {
			cases := []string{
				`not json`,
				`{"symbol":"KO","prices":[]}`,
				`{"prices":[{"date":"2024-01-02","close":1}]}`,
				`{"symbol":"KO","prices":[{"date":"Jan 2","close":1}]}`,
				`{"symbol":"KO","initial_cash":-5,"prices":[{"date":"2024-01-02","close":1}]}`,
				`{"symbol":"KO","unknown":1,"prices":[{"date":"2024-01-02","close":1}]}`,
			}

			Convey("Then each is rejected before reaching the service", func() {
				for _, body := range cases {
					w := serve(mux, http.MethodPost, "/analyze", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
				So(deps.lastRequest.Symbol, ShouldBeEmpty)
			})
		})

		Convey("When called with GET", func() {
			w := serve(mux, http.MethodGet, "/analyze", "")

			Convey("Then the method is not allowed", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestWarmHandler(t *testing.T) {
	Convey("Given a warm endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When the body is valid", func() {
			w := serve(mux, http.MethodPost, "/warm", `{"symbols":["KO","PEP"],"start":"2015-01-01","end":"2024-12-31"}`)

			Convey("Then the jobs are accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(deps.lastWarm.Symbols, ShouldResemble, []string{"KO", "PEP"})
				So(model.DayKey(deps.lastWarm.End), ShouldEqual, "2024-12-31")
				So(w.Body.String(), ShouldContainSubstring, `"queued":["KO","PEP"]`)
			})
		})

		Convey("When the body is invalid", func() {
			cases := []string{
				`{"start":"2015-01-01","end":"2024-12-31"}`,
				`{"symbols":["KO"],"end":"2024-12-31"}`,
				`{"symbols":["KO"],"start":"2015-01-01","end":"tomorrow"}`,
			}

			Convey("Then each is a bad request", func() {
				for _, body := range cases {
					w := serve(mux, http.MethodPost, "/warm", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
				}
			})
		})

		Convey("When the service is not running", func() {
			deps.err = service.ErrNotStarted
			w := serve(mux, http.MethodPost, "/warm", `{"symbols":["KO"],"start":"2015-01-01","end":"2024-12-31"}`)

			Convey("Then it is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}
