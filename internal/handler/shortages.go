package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gioigioi124/elanAI/internal/model"
	"github.com/gioigioi124/elanAI/internal/validation"
)

func queryWarehouse(w http.ResponseWriter, raw string) (model.Warehouse, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "", true
	}
	if !validation.IsValidWarehouse(raw) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid warehouse " + raw})
		return "", false
	}
	return model.Warehouse(raw), true
}

// CompensateShortage обрабатывает POST /api/shortages/compensate.
func (h *Handler) CompensateShortage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req compensationRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.CreateCompensationOrder(r.Context(), req.toModel(actor.UserID))
	if err != nil {
		h.writeError(w, "compensate shortage", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// IgnoreShortage обрабатывает PUT /api/shortages/ignore.
func (h *Handler) IgnoreShortage(w http.ResponseWriter, r *http.Request) {
	var req ignoreShortageRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.IgnoreShortage(r.Context(), uuid.MustParse(req.OrderID), uuid.MustParse(req.ItemID))
	if err != nil {
		h.writeError(w, "ignore shortage", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// RemainingShortages обрабатывает GET /api/shortages/remaining.
func (h *Handler) RemainingShortages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, to, err := queryDates(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	wh, ok := queryWarehouse(w, q.Get("warehouse"))
	if !ok {
		return
	}

	result, err := h.service.RemainingShortages(r.Context(), model.ShortageFilter{
		CustomerID:   q.Get("customerId"),
		CustomerName: q.Get("customerName"),
		Warehouse:    wh,
		FromDate:     from,
		ToDate:       to,
	})
	if err != nil {
		h.writeError(w, "remaining shortages", err)
		return
	}
	if result == nil {
		result = []model.OrderShortages{}
	}

	writeJSON(w, http.StatusOK, result)
}

// SurplusDeficit обрабатывает GET /api/orders/surplus-deficit.
func (h *Handler) SurplusDeficit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, to, err := queryDates(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	wh, ok := queryWarehouse(w, q.Get("warehouse"))
	if !ok {
		return
	}
	deficitOnly, err := queryBool(q, "deficitOnly")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	rows, err := h.service.SurplusDeficit(r.Context(), model.ReportFilter{
		CustomerName: q.Get("customerName"),
		CreatedBy:    q.Get("createdBy"),
		Warehouse:    wh,
		FromDate:     from,
		ToDate:       to,
		DeficitOnly:  deficitOnly != nil && *deficitOnly,
	})
	if err != nil {
		h.writeError(w, "surplus deficit report", err)
		return
	}
	if rows == nil {
		rows = []model.SurplusDeficitRow{}
	}

	writeJSON(w, http.StatusOK, rows)
}
