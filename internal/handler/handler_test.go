package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gioigioi124/elanAI/internal/middleware"
	"github.com/gioigioi124/elanAI/internal/model"
)

type stubService struct {
	order *model.Order
	err   error

	lastInput        model.OrderInput
	lastUpdate       model.OrderUpdate
	lastFilter       model.OrderFilter
	lastShortage     model.ShortageFilter
	lastReport       model.ReportFilter
	lastCompensation model.CompensationInput
	lastActor        model.Actor
	lastRaw          string
	lastLeader       decimal.Decimal
	lastBatch        []model.BatchUpdate
	lastWork         model.WorkItemFilter

	orders    []model.Order
	total     int
	workItems []model.WorkItem

	batchResult model.BatchResult
}

func (s *stubService) CreateOrder(ctx context.Context, in model.OrderInput) (*model.Order, error) {
	s.lastInput = in
	return s.order, s.err
}

func (s *stubService) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error) {
	s.lastFilter = f
	return s.orders, s.total, s.err
}

func (s *stubService) UpdateOrder(ctx context.Context, id uuid.UUID, upd model.OrderUpdate) (*model.Order, error) {
	s.lastUpdate = upd
	return s.order, s.err
}

func (s *stubService) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.err
}

func (s *stubService) AssignVehicle(ctx context.Context, id uuid.UUID, vehicleID *string) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) ConfirmLeader(ctx context.Context, id uuid.UUID, index int, value decimal.Decimal) (*model.Order, error) {
	s.lastLeader = value
	return s.order, s.err
}

func (s *stubService) ConfirmWarehouse(ctx context.Context, actor model.Actor, id uuid.UUID, index int, raw string) (*model.Order, error) {
	s.lastActor = actor
	s.lastRaw = raw
	return s.order, s.err
}

func (s *stubService) ConfirmBatch(ctx context.Context, actor model.Actor, updates []model.BatchUpdate) model.BatchResult {
	s.lastActor = actor
	s.lastBatch = updates
	return s.batchResult
}

func (s *stubService) RecalculateOrder(ctx context.Context, id uuid.UUID) (*model.Order, bool, error) {
	return s.order, true, s.err
}

func (s *stubService) SurplusDeficit(ctx context.Context, f model.ReportFilter) ([]model.SurplusDeficitRow, error) {
	s.lastReport = f
	return nil, s.err
}

func (s *stubService) CreateCompensationOrder(ctx context.Context, in model.CompensationInput) (*model.Order, error) {
	s.lastCompensation = in
	return s.order, s.err
}

func (s *stubService) IgnoreShortage(ctx context.Context, orderID, itemID uuid.UUID) (*model.Order, error) {
	return s.order, s.err
}

func (s *stubService) RemainingShortages(ctx context.Context, f model.ShortageFilter) ([]model.OrderShortages, error) {
	s.lastShortage = f
	return nil, s.err
}

func (s *stubService) WarehouseItems(ctx context.Context, actor model.Actor, f model.WorkItemFilter) ([]model.WorkItem, int, error) {
	s.lastActor = actor
	s.lastWork = f
	return s.workItems, s.total, s.err
}

func (s *stubService) DispatcherItems(ctx context.Context, f model.WorkItemFilter) ([]model.WorkItem, int, error) {
	s.lastWork = f
	return s.workItems, len(s.workItems), s.err
}

var staffActor = model.Actor{UserID: "u-1", Role: model.RoleStaff}

func newTestHandler(t *testing.T, svc Service, opts ...Option) (*Handler, *middleware.AuthMiddleware) {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret")
	return NewHandler(svc, zaptest.NewLogger(t), auth, opts...), auth
}

func sampleOrder() *model.Order {
	return &model.Order{
		ID:       uuid.New(),
		Customer: model.CustomerSnapshot{Name: "ACME"},
		Items: []model.Item{{
			ID:             uuid.New(),
			Stt:            1,
			ProductName:    "Pipe",
			Quantity:       decimal.NewFromInt(10),
			Warehouse:      model.WarehouseK01,
			ShortageQty:    decimal.NewFromInt(3),
			CompensatedQty: decimal.NewFromInt(1),
			ShortageStatus: model.ShortageOpen,
		}},
		CreatedBy: "u-1",
	}
}

func doRequest(t *testing.T, h http.Handler, auth *middleware.AuthMiddleware, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	if auth != nil {
		req.Header.Set("Authorization", "Bearer "+auth.SignToken(staffActor))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCreateOrder(t *testing.T) {
	svc := &stubService{order: sampleOrder()}
	h, auth := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := `{"customer":{"name":" ACME ","customerCode":"C-1"},"orderDate":"2026-06-02",
		"items":[{"productName":"Pipe","quantity":"10","warehouse":"K01","cmQty":5}]}`

	w := doRequest(t, router, auth, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, "u-1", svc.lastInput.CreatedBy)
	assert.Equal(t, "ACME", svc.lastInput.Customer.Name)
	assert.Equal(t, "2026-06-02", svc.lastInput.OrderDate.Format(dateLayout))
	require.Len(t, svc.lastInput.Items, 1)
	assert.True(t, svc.lastInput.Items[0].CmQty.Equal(decimal.NewFromInt(5)))

	var resp orderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.True(t, resp.Items[0].RemainingShortage.Equal(decimal.NewFromInt(2)))
	assert.Nil(t, resp.Items[0].WarehouseConfirm)
}

func TestCreateOrder_Unauthorized(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{})
	w := doRequest(t, h.SetupRouter(), nil, http.MethodPost, "/api/orders", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder_RequestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"customer":`},
		{name: "no items", body: `{"customer":{"name":"A"},"items":[]}`},
		{name: "no customer name", body: `{"customer":{},"items":[{"productName":"P","quantity":1}]}`},
		{name: "unknown warehouse", body: `{"customer":{"name":"A"},"items":[{"productName":"P","quantity":1,"warehouse":"K09"}]}`},
		{name: "bad source id", body: `{"customer":{"name":"A"},"items":[{"productName":"P","quantity":1,"sourceOrderId":"x"}]}`},
		{name: "bad date", body: `{"customer":{"name":"A"},"orderDate":"02/06/2026","items":[{"productName":"P","quantity":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{order: sampleOrder()}
			h, auth := newTestHandler(t, svc)

			w := doRequest(t, h.SetupRouter(), auth, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Empty(t, svc.lastInput.CreatedBy, "service must not be called")
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("%w: bad", model.ErrValidation), want: http.StatusBadRequest},
		{err: fmt.Errorf("%w: warehouse", model.ErrAuthorization), want: http.StatusForbidden},
		{err: fmt.Errorf("%w: order", model.ErrNotFound), want: http.StatusNotFound},
		{err: fmt.Errorf("%w: retry", model.ErrConflict), want: http.StatusConflict},
		{err: fmt.Errorf("%w: confirmed", model.ErrPreconditionFailed), want: http.StatusUnprocessableEntity},
		{err: fmt.Errorf("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h, auth := newTestHandler(t, &stubService{err: tt.err})
			w := doRequest(t, h.SetupRouter(), auth, http.MethodGet, "/api/orders/"+uuid.NewString(), "")
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "boom")
			}
		})
	}
}

func TestGetOrder_InvalidID(t *testing.T) {
	h, auth := newTestHandler(t, &stubService{order: sampleOrder()})
	w := doRequest(t, h.SetupRouter(), auth, http.MethodGet, "/api/orders/not-an-id", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompensateShortage_ErrorCarriesItem(t *testing.T) {
	srcOrder, srcItem := uuid.New(), uuid.New()
	svc := &stubService{err: &model.CompensationError{
		Index:         1,
		SourceOrderID: srcOrder,
		SourceItemID:  srcItem,
		ProductName:   "Pipe",
		Requested:     decimal.NewFromInt(5),
		Remaining:     decimal.NewFromInt(2),
		Reason:        "quantity exceeds remaining shortage",
		Err:           model.ErrValidation,
	}}
	h, auth := newTestHandler(t, svc)

	body := fmt.Sprintf(`{"customer":{"name":"ACME"},"items":[
		{"sourceOrderId":%q,"sourceItemId":%q,"quantity":1},
		{"sourceOrderId":%q,"sourceItemId":%q,"quantity":5}]}`,
		srcOrder, srcItem, srcOrder, srcItem)

	w := doRequest(t, h.SetupRouter(), auth, http.MethodPost, "/api/shortages/compensate", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Error string `json:"error"`
		Item  struct {
			Index        int             `json:"index"`
			SourceItemID uuid.UUID       `json:"sourceItemId"`
			ProductName  string          `json:"productName"`
			Requested    decimal.Decimal `json:"requested"`
			Remaining    decimal.Decimal `json:"remaining"`
		} `json:"item"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "Pipe")
	assert.Equal(t, 1, resp.Item.Index)
	assert.Equal(t, srcItem, resp.Item.SourceItemID)
	assert.True(t, resp.Item.Remaining.Equal(decimal.NewFromInt(2)))

	require.Len(t, svc.lastCompensation.Items, 2)
	assert.Equal(t, "u-1", svc.lastCompensation.CreatedBy)
}

func TestConfirmWarehouse_AcceptsStringOrNumber(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: `{"value":"16h"}`, want: "16h"},
		{body: `{"value":12.5}`, want: "12.5"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			svc := &stubService{order: sampleOrder()}
			h, auth := newTestHandler(t, svc)

			target := "/api/orders/" + uuid.NewString() + "/items/0/warehouse-confirm"
			w := doRequest(t, h.SetupRouter(), auth, http.MethodPut, target, tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, svc.lastRaw)
			assert.Equal(t, staffActor, svc.lastActor)
		})
	}
}

func TestConfirmLeader(t *testing.T) {
	svc := &stubService{order: sampleOrder()}
	h, auth := newTestHandler(t, svc)
	router := h.SetupRouter()

	target := "/api/orders/" + uuid.NewString() + "/items/0/leader-confirm"
	w := doRequest(t, router, auth, http.MethodPut, target, `{"value":7}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.lastLeader.Equal(decimal.NewFromInt(7)))

	w = doRequest(t, router, auth, http.MethodPut, target, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, auth, http.MethodPut, "/api/orders/"+uuid.NewString()+"/items/-1/leader-confirm", `{"value":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmBatch(t *testing.T) {
	svc := &stubService{batchResult: model.BatchResult{
		SuccessCount: 1,
		ErrorCount:   1,
		Errors:       []model.BatchError{{OrderID: "x", Message: "invalid order id"}},
	}}
	h, auth := newTestHandler(t, svc)

	body := `{"updates":[
		{"orderId":"a","itemIndex":0,"leaderValue":3},
		{"orderId":"x","itemIndex":1,"warehouseValue":4}]}`
	w := doRequest(t, h.SetupRouter(), auth, http.MethodPost, "/api/orders/confirm-batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res model.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.ErrorCount)

	require.Len(t, svc.lastBatch, 2)
	require.NotNil(t, svc.lastBatch[0].LeaderValue)
	assert.Nil(t, svc.lastBatch[0].WarehouseValue)
	require.NotNil(t, svc.lastBatch[1].WarehouseValue)
	assert.Equal(t, "4", *svc.lastBatch[1].WarehouseValue)
}

func TestUpdateOrder_ItemsPresence(t *testing.T) {
	svc := &stubService{order: sampleOrder()}
	h, auth := newTestHandler(t, svc)
	router := h.SetupRouter()
	target := "/api/orders/" + uuid.NewString()

	w := doRequest(t, router, auth, http.MethodPut, target, `{"customer":{"name":"New"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, svc.lastUpdate.ItemsSet)
	require.NotNil(t, svc.lastUpdate.Customer)
	assert.Equal(t, "New", svc.lastUpdate.Customer.Name)

	w = doRequest(t, router, auth, http.MethodPut, target, `{"items":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.lastUpdate.ItemsSet)
	assert.Nil(t, svc.lastUpdate.Customer)
}

func TestListOrders_Query(t *testing.T) {
	svc := &stubService{orders: []model.Order{*sampleOrder()}, total: 11}
	h, auth := newTestHandler(t, svc)

	w := doRequest(t, h.SetupRouter(), auth, http.MethodGet,
		"/api/orders?customerName=acme&assigned=false&page=2&limit=10&toDate=2026-06-01", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	f := svc.lastFilter
	assert.Equal(t, "acme", f.CustomerName)
	require.NotNil(t, f.Assigned)
	assert.False(t, *f.Assigned)
	assert.Equal(t, 10, f.Limit)
	assert.Equal(t, 10, f.Offset)
	require.NotNil(t, f.ToDate)
	assert.Equal(t, time.Date(2026, 6, 1, 23, 59, 59, 999999999, time.Local), *f.ToDate)

	var resp orderListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 11, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Len(t, resp.Orders, 1)

	w = doRequest(t, h.SetupRouter(), auth, http.MethodGet, "/api/orders?page=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListOrders_PageOutOfRange(t *testing.T) {
	svc := &stubService{}
	h, auth := newTestHandler(t, svc)
	router := h.SetupRouter()

	for _, target := range []string{
		"/api/orders?page=9223372036854775807",
		"/api/orders?page=9223372036854775807&limit=1000",
		"/api/orders?page=99999999999999999999",
	} {
		w := doRequest(t, router, auth, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
	assert.Zero(t, svc.lastFilter.Limit, "service must not be called")

	w := doRequest(t, router, auth, http.MethodGet, "/api/orders?page=1000000&limit=200", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 999999*200, svc.lastFilter.Offset)
}

func TestCreateOrder_SourceItemWithoutName(t *testing.T) {
	svc := &stubService{order: sampleOrder()}
	h, auth := newTestHandler(t, svc)
	router := h.SetupRouter()

	body := fmt.Sprintf(`{"customer":{"name":"ACME"},"items":[
		{"productName":"Pipe","quantity":1,"warehouse":"K01"},
		{"sourceOrderId":%q,"sourceItemId":%q,"quantity":"5"}]}`, uuid.NewString(), uuid.NewString())
	w := doRequest(t, router, auth, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, svc.lastInput.Items, 2)
	assert.Empty(t, svc.lastInput.Items[1].ProductName)
	assert.NotNil(t, svc.lastInput.Items[1].SourceItemID)

	body = fmt.Sprintf(`{"customer":{"name":"ACME"},"items":[{"sourceOrderId":%q,"quantity":"5"}]}`, uuid.NewString())
	w = doRequest(t, router, auth, http.MethodPost, "/api/orders", body)
	assert.Equal(t, http.StatusBadRequest, w.Code, "plain item still needs a product name")
}

func TestParseDate_DateOnlyIsLocal(t *testing.T) {
	d, err := parseDate("2026-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Local, d.Location())
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.Local), d)

	ts, err := parseDate("2026-06-01T10:00:00+07:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC), ts.UTC())

	_, err = parseDate("01/06/2026")
	require.Error(t, err)
}

func TestReportRoutes(t *testing.T) {
	svc := &stubService{}
	h, auth := newTestHandler(t, svc)
	router := h.SetupRouter()

	w := doRequest(t, router, auth, http.MethodGet, "/api/orders/surplus-deficit?warehouse=k02&deficitOnly=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "[]\n", w.Body.String())
	assert.Equal(t, model.WarehouseK02, svc.lastReport.Warehouse)
	assert.True(t, svc.lastReport.DeficitOnly)

	w = doRequest(t, router, auth, http.MethodGet, "/api/shortages/remaining?customerId=C-1&warehouse=K09", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, router, auth, http.MethodGet, "/api/shortages/remaining?customerId=C-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "C-1", svc.lastShortage.CustomerID)
}

func TestIgnoreShortage_RequiresIDs(t *testing.T) {
	h, auth := newTestHandler(t, &stubService{order: sampleOrder()})
	router := h.SetupRouter()

	w := doRequest(t, router, auth, http.MethodPut, "/api/shortages/ignore", `{"orderId":"1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := fmt.Sprintf(`{"orderId":%q,"itemId":%q}`, uuid.NewString(), uuid.NewString())
	w = doRequest(t, router, auth, http.MethodPut, "/api/shortages/ignore", body)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteOrder(t *testing.T) {
	h, auth := newTestHandler(t, &stubService{})
	w := doRequest(t, h.SetupRouter(), auth, http.MethodDelete, "/api/orders/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, _ := newTestHandler(t, &stubService{}, WithMetrics(reg))
	router := h.SetupRouter()

	w := doRequest(t, router, nil, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, nil, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `route="/health"`))
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{}, WithCORSOrigins([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
