package handler

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gioigioi124/elanAI/internal/model"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

func pathOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return uuid.Nil, false
	}
	return id, true
}

func pathItemIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid item index"})
		return 0, false
	}
	return index, true
}

// queryDates читает fromDate и toDate; дата без времени в toDate включает весь день.
func queryDates(q url.Values) (from, to *time.Time, err error) {
	if s := q.Get("fromDate"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if s := q.Get("toDate"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return nil, nil, err
		}
		if len(s) == len(dateLayout) {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		to = &t
	}
	return from, to, nil
}

func queryBool(q url.Values, key string) (*bool, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q", key, s)
	}
	return &b, nil
}

func queryPage(q url.Values, defLimit int) (page, limit int, err error) {
	page, limit = 1, defLimit
	if s := q.Get("page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil || page < 1 {
			return 0, 0, fmt.Errorf("invalid page %q", s)
		}
	}
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("invalid limit %q", s)
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	// Смещение (page-1)*limit должно помещаться в int.
	if page-1 > math.MaxInt/limit {
		return 0, 0, fmt.Errorf("page %d is out of range", page)
	}
	return page, limit, nil
}

// CreateOrder обрабатывает POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := model.OrderInput{
		Customer:  req.Customer.toModel(),
		Items:     itemsToModel(req.Items),
		CreatedBy: actor.UserID,
	}
	if req.OrderDate != nil {
		in.OrderDate = req.OrderDate.Time
	}

	order, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		h.writeError(w, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// ListOrders обрабатывает GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, to, err := queryDates(q)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	assigned, err := queryBool(q, "assigned")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	openOnly, err := queryBool(q, "openShortage")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	confirmedOnly, err := queryBool(q, "leaderConfirmed")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	page, limit, err := queryPage(q, defaultPageLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	filter := model.OrderFilter{
		CustomerName:     q.Get("customerName"),
		CustomerCode:     q.Get("customerCode"),
		VehicleID:        q.Get("vehicleId"),
		Assigned:         assigned,
		CreatedBy:        q.Get("createdBy"),
		FromDate:         from,
		ToDate:           to,
		OpenShortageOnly: openOnly != nil && *openOnly,
		Limit:            limit,
		Offset:           (page - 1) * limit,

		LeaderConfirmedOnly: confirmedOnly != nil && *confirmedOnly,
	}

	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list orders", err)
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for i := range orders {
		resp.Orders[i] = toOrderResponse(&orders[i])
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetOrder обрабатывает GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "get order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// UpdateOrder обрабатывает PUT /api/orders/{id}.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathOrderID(w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	upd := model.OrderUpdate{ItemsSet: req.Items != nil}
	if req.Customer != nil {
		c := req.Customer.toModel()
		upd.Customer = &c
	}
	if req.OrderDate != nil {
		d := req.OrderDate.Time
		upd.OrderDate = &d
	}
	if upd.ItemsSet {
		upd.Items = itemsToModel(req.Items)
	}

	order, err := h.service.UpdateOrder(r.Context(), id, upd)
	if err != nil {
		h.writeError(w, "update order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// DeleteOrder обрабатывает DELETE /api/orders/{id}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathOrderID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.writeError(w, "delete order", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AssignVehicle обрабатывает PUT /api/orders/{id}/assign.
func (h *Handler) AssignVehicle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathOrderID(w, r)
	if !ok {
		return
	}

	var req assignVehicleRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.AssignVehicle(r.Context(), id, req.VehicleID)
	if err != nil {
		h.writeError(w, "assign vehicle", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ConfirmLeader обрабатывает PUT /api/orders/{id}/items/{index}/leader-confirm.
func (h *Handler) ConfirmLeader(w http.ResponseWriter, r *http.Request) {
	id, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	index, ok := pathItemIndex(w, r)
	if !ok {
		return
	}

	var req leaderConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.ConfirmLeader(r.Context(), id, index, *req.Value)
	if err != nil {
		h.writeError(w, "leader confirm", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ConfirmWarehouse обрабатывает PUT /api/orders/{id}/items/{index}/warehouse-confirm.
func (h *Handler) ConfirmWarehouse(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathOrderID(w, r)
	if !ok {
		return
	}
	index, ok := pathItemIndex(w, r)
	if !ok {
		return
	}

	var req warehouseConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.service.ConfirmWarehouse(r.Context(), actor, id, index, string(*req.Value))
	if err != nil {
		h.writeError(w, "warehouse confirm", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ConfirmBatch обрабатывает POST /api/orders/confirm-batch.
// Ошибки отдельных заказов возвращаются в теле ответа со статусом 200.
func (h *Handler) ConfirmBatch(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}

	writeJSON(w, http.StatusOK, h.service.ConfirmBatch(r.Context(), actor, req.toModel()))
}

// RecalculateOrder обрабатывает POST /api/orders/{id}/recalculate.
func (h *Handler) RecalculateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathOrderID(w, r)
	if !ok {
		return
	}

	order, changed, err := h.service.RecalculateOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "recalculate order", err)
		return
	}

	writeJSON(w, http.StatusOK, recalculateResponse{Order: toOrderResponse(order), Changed: changed})
}
