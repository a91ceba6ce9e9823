package handler

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gioigioi124/elanAI/internal/model"
)

const warehousePageLimit = 50

func queryStatus(q url.Values) (model.ConfirmState, error) {
	status := model.ConfirmState(q.Get("status"))
	if !status.Valid() {
		return "", fmt.Errorf("invalid status %q", status)
	}
	return status, nil
}

// WarehouseItems обрабатывает GET /api/orders/warehouse-items.
// Склад берётся из токена пользователя.
func (h *Handler) WarehouseItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	from, to, err := queryDates(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	status, err := queryStatus(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	page, limit, err := queryPage(q, warehousePageLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	items, total, err := h.service.WarehouseItems(r.Context(), actor, model.WorkItemFilter{
		FromDate: from,
		ToDate:   to,
		Status:   status,
		Limit:    limit,
		Offset:   (page - 1) * limit,
	})
	if err != nil {
		h.writeError(w, "warehouse items", err)
		return
	}
	if items == nil {
		items = []model.WorkItem{}
	}

	totalPages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, workItemListResponse{
		Items:       items,
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	})
}

// DispatcherItems обрабатывает GET /api/orders/dispatcher-items.
// Значение creator=all отключает отбор по автору заказа.
func (h *Handler) DispatcherItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, to, err := queryDates(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	status, err := queryStatus(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	creator := q.Get("creator")
	if creator == "all" {
		creator = ""
	}

	items, _, err := h.service.DispatcherItems(r.Context(), model.WorkItemFilter{
		FromDate:  from,
		ToDate:    to,
		CreatedBy: creator,
		Status:    status,
	})
	if err != nil {
		h.writeError(w, "dispatcher items", err)
		return
	}
	if items == nil {
		items = []model.WorkItem{}
	}

	writeJSON(w, http.StatusOK, items)
}
