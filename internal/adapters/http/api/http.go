// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/adapters/polygon"
	service "github.com/darylmathison/dividend-stock-analysis/internal/app"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/normalize"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/simulate"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Dividends returns the normalized dividend table of a window.
	Dividends(ctx context.Context, symbol string, start, end time.Time) (model.DividendTable, model.FetchResult, error)

	// Analyze runs both reinvestment policies over caller-supplied prices.
	Analyze(ctx context.Context, req service.AnalyzeRequest) (service.Analysis, error)

	// Warm queues background cache fills.
	Warm(ctx context.Context, req service.WarmRequest) (service.WarmReceipt, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	dividendsHandler *DividendsHandler
	analyzeHandler   *AnalyzeHandler
	warmHandler      *WarmHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		dividendsHandler: NewDividendsHandler(deps),
		analyzeHandler:   NewAnalyzeHandler(deps),
		warmHandler:      NewWarmHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/dividends", MetricsMiddleware(s.dividendsHandler.HandleGetDividends, "dividends"))
	mux.HandleFunc("/analyze", MetricsMiddleware(s.analyzeHandler.HandlePostAnalyze, "analyze"))
	mux.HandleFunc("/warm", MetricsMiddleware(s.warmHandler.HandlePostWarm, "warm"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates domain errors into HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	var (
		aerr *simulate.AlignmentError
		perr *polygon.ProviderError
	)
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalidWindow),
		errors.Is(err, model.ErrInvalidPrices),
		errors.Is(err, simulate.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, normalize.ErrEmptyResult):
		return http.StatusNotFound, "no_dividends"
	case errors.As(err, &aerr),
		errors.Is(err, simulate.ErrDividendNotTraded),
		errors.Is(err, simulate.ErrUnsortedDividends):
		return http.StatusUnprocessableEntity, "alignment_error"
	case errors.As(err, &perr),
		errors.Is(err, polygon.ErrProvider),
		errors.Is(err, polygon.ErrRateLimited):
		return http.StatusBadGateway, "provider_error"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
