package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/internal/domain/model"
)

// DividendsDependencies defines the interface for dividend lookups.
type DividendsDependencies interface {
	Dividends(ctx context.Context, symbol string, start, end time.Time) (model.DividendTable, model.FetchResult, error)
}

// DividendsHandler handles dividend table requests.
type DividendsHandler struct {
	deps DividendsDependencies
}

// NewDividendsHandler creates a new dividends handler.
func NewDividendsHandler(deps DividendsDependencies) *DividendsHandler {
	return &DividendsHandler{deps: deps}
}

type dividendsResponse struct {
	Symbol    string              `json:"symbol"`
	Start     string              `json:"start"`
	End       string              `json:"end"`
	Complete  bool                `json:"complete"`
	FromCache bool                `json:"from_cache"`
	Frequency string              `json:"frequency"`
	TotalCash float64             `json:"total_cash"`
	Dividends model.DividendTable `json:"dividends"`
}

// HandleGetDividends handles GET /dividends?symbol=&start=&end= requests.
func (h *DividendsHandler) HandleGetDividends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	symbol := strings.TrimSpace(q.Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing symbol", ErrBadRequest))
		return
	}
	start, err := parseDate("start", q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	end, err := parseDate("end", q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	table, res, err := h.deps.Dividends(r.Context(), symbol, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if table == nil {
		table = model.DividendTable{}
	}
	writeJSON(w, http.StatusOK, dividendsResponse{
		Symbol:    strings.ToUpper(symbol),
		Start:     model.DayKey(start),
		End:       model.DayKey(end),
		Complete:  res.Complete,
		FromCache: res.FromCache,
		Frequency: model.FrequencyLabel(table.Frequency()),
		TotalCash: table.TotalCash(),
		Dividends: table,
	})
}

func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrBadRequest, field)
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid %s; must be YYYY-MM-DD", ErrBadRequest, field)
	}
	return t, nil
}
