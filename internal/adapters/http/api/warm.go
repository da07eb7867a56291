package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	service "github.com/darylmathison/dividend-stock-analysis/internal/app"
)

// maxWarmBody bounds the warm request body.
const maxWarmBody = 64 << 10

// WarmDependencies defines the interface for queuing cache warming.
type WarmDependencies interface {
	Warm(ctx context.Context, req service.WarmRequest) (service.WarmReceipt, error)
}

// WarmHandler handles cache warming requests.
type WarmHandler struct {
	deps WarmDependencies
}

// NewWarmHandler creates a new warm handler.
func NewWarmHandler(deps WarmDependencies) *WarmHandler {
	return &WarmHandler{deps: deps}
}

type warmRequest struct {
	Symbols []string `json:"symbols"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
}

// HandlePostWarm handles POST /warm requests. Jobs run in the background;
// the response only says which symbols were queued.
func (h *WarmHandler) HandlePostWarm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodNotAllowed)
		return
	}

	var body warmRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWarmBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if len(body.Symbols) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing symbols", ErrBadRequest))
		return
	}
	start, err := parseDate("start", body.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	end, err := parseDate("end", body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	receipt, err := h.deps.Warm(r.Context(), service.WarmRequest{Symbols: body.Symbols, Start: start, End: end})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}
