package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	service "github.com/darylmathison/dividend-stock-analysis/internal/app"
	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
)

// maxAnalyzeBody bounds the request body; decades of daily closes fit well
// within it.
const maxAnalyzeBody = 8 << 20

// AnalyzeDependencies defines the interface for analysis runs.
type AnalyzeDependencies interface {
	Analyze(ctx context.Context, req service.AnalyzeRequest) (service.Analysis, error)
}

// AnalyzeHandler handles snowball analysis requests.
type AnalyzeHandler struct {
	deps AnalyzeDependencies
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(deps AnalyzeDependencies) *AnalyzeHandler {
	return &AnalyzeHandler{deps: deps}
}

type pricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// analyzeRequest is the body of POST /analyze.
type analyzeRequest struct {
	Symbol      string       `json:"symbol"`
	Start       string       `json:"start,omitempty"`
	End         string       `json:"end,omitempty"`
	InitialCash float64      `json:"initial_cash,omitempty"`
	NextSession bool         `json:"next_session,omitempty"`
	Prices      []pricePoint `json:"prices"`
}

func (a analyzeRequest) toService() (service.AnalyzeRequest, error) {
	req := service.AnalyzeRequest{
		Symbol:               strings.TrimSpace(a.Symbol),
		InitialCash:          a.InitialCash,
		NextSessionAlignment: a.NextSession,
	}
	switch {
	case req.Symbol == "":
		return req, fmt.Errorf("%w: missing symbol", ErrBadRequest)
	case len(a.Prices) == 0:
		return req, fmt.Errorf("%w: missing prices", ErrBadRequest)
	case a.InitialCash < 0:
		return req, fmt.Errorf("%w: initial_cash must be positive", ErrBadRequest)
	}

	var err error
	if a.Start != "" {
		if req.Start, err = parseDate("start", a.Start); err != nil {
			return req, err
		}
	}
	if a.End != "" {
		if req.End, err = parseDate("end", a.End); err != nil {
			return req, err
		}
	}

	req.Prices = make(model.PriceSeries, len(a.Prices))
	for i, p := range a.Prices {
		d, err := time.Parse(time.DateOnly, p.Date)
		if err != nil {
			return req, fmt.Errorf("%w: prices[%d].date must be YYYY-MM-DD", ErrBadRequest, i)
		}
		req.Prices[i] = model.PricePoint{Date: d, Close: p.Close}
	}
	return req, nil
}

// HandlePostAnalyze handles POST /analyze requests.
func (h *AnalyzeHandler) HandlePostAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	var body analyzeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAnalyzeBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	req, err := body.toService()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	analysis, err := h.deps.Analyze(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
