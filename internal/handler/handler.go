// Package handler содержит HTTP-обработчики API учёта заказов и недостач.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gioigioi124/elanAI/internal/middleware"
	"github.com/gioigioi124/elanAI/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateOrder(ctx context.Context, in model.OrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, upd model.OrderUpdate) (*model.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	AssignVehicle(ctx context.Context, id uuid.UUID, vehicleID *string) (*model.Order, error)
	ConfirmLeader(ctx context.Context, id uuid.UUID, index int, value decimal.Decimal) (*model.Order, error)
	ConfirmWarehouse(ctx context.Context, actor model.Actor, id uuid.UUID, index int, raw string) (*model.Order, error)
	ConfirmBatch(ctx context.Context, actor model.Actor, updates []model.BatchUpdate) model.BatchResult
	RecalculateOrder(ctx context.Context, id uuid.UUID) (*model.Order, bool, error)
	SurplusDeficit(ctx context.Context, f model.ReportFilter) ([]model.SurplusDeficitRow, error)
	CreateCompensationOrder(ctx context.Context, in model.CompensationInput) (*model.Order, error)
	IgnoreShortage(ctx context.Context, orderID, itemID uuid.UUID) (*model.Order, error)
	RemainingShortages(ctx context.Context, f model.ShortageFilter) ([]model.OrderShortages, error)
	WarehouseItems(ctx context.Context, actor model.Actor, f model.WorkItemFilter) ([]model.WorkItem, int, error)
	DispatcherItems(ctx context.Context, f model.WorkItemFilter) ([]model.WorkItem, int, error)
}

// Handler реализует HTTP-обработчики API учёта недостач.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate

	registry    *prometheus.Registry
	corsOrigins []string
}

// Option настраивает необязательные параметры обработчика.
type Option func(*Handler)

// WithMetrics включает сбор HTTP-метрик и маршрут /metrics для указанного реестра.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(h *Handler) { h.registry = reg }
}

// WithCORSOrigins задаёт источники, которым разрешены кросс-доменные запросы.
func WithCORSOrigins(origins []string) Option {
	return func(h *Handler) { h.corsOrigins = origins }
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       validator.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string                 `json:"error"`
	Item  *compensationErrorItem `json:"item,omitempty"`
}

type compensationErrorItem struct {
	Index         int             `json:"index"`
	SourceOrderID uuid.UUID       `json:"sourceOrderId"`
	SourceItemID  uuid.UUID       `json:"sourceItemId"`
	ProductName   string          `json:"productName,omitempty"`
	Requested     decimal.Decimal `json:"requested"`
	Remaining     decimal.Decimal `json:"remaining"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrPreconditionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError переводит ошибку бизнес-логики в HTTP-ответ.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err))
		writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
		return
	}

	resp := errorResponse{Error: err.Error()}

	var ce *model.CompensationError
	if errors.As(err, &ce) {
		resp.Item = &compensationErrorItem{
			Index:         ce.Index,
			SourceOrderID: ce.SourceOrderID,
			SourceItemID:  ce.SourceItemID,
			ProductName:   ce.ProductName,
			Requested:     ce.Requested,
			Remaining:     ce.Remaining,
		}
	}

	writeJSON(w, status, resp)
}

// decode читает JSON-тело запроса и проверяет его по тегам validate.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: formatValidationErrors(verrs)})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}

	return true
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Namespace()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", e.Namespace(), e.Param()))
		case "uuid":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid id", e.Namespace()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", e.Namespace(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", e.Namespace()))
		}
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return actor, ok
}

// Health сообщает, что сервис запущен.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
