package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gioigioi124/elanAI/internal/model"
)

const dateLayout = "2006-01-02"

// jsonDate принимает дату как в формате RFC3339, так и в виде 2006-01-02.
type jsonDate struct {
	time.Time
}

func (d *jsonDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// Дата без времени относится к локальным суткам сервера.
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// confirmInput принимает значение подтверждения склада строкой или числом.
type confirmInput string

func (c *confirmInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = confirmInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("warehouse confirm must be a string or a number")
	}
	*c = confirmInput(n.String())
	return nil
}

type customerRequest struct {
	Name         string `json:"name" validate:"required"`
	CustomerCode string `json:"customerCode"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	Note         string `json:"note"`
}

func (c customerRequest) toModel() model.CustomerSnapshot {
	return model.CustomerSnapshot{
		Name:    strings.TrimSpace(c.Name),
		Code:    strings.TrimSpace(c.CustomerCode),
		Address: c.Address,
		Phone:   c.Phone,
		Note:    c.Note,
	}
}

type itemRequest struct {
	ID            *string         `json:"id" validate:"omitempty,uuid"`
	ProductName   string          `json:"productName" validate:"required_without=SourceItemID"`
	Size          string          `json:"size"`
	Unit          string          `json:"unit"`
	Quantity      decimal.Decimal `json:"quantity"`
	Warehouse     string          `json:"warehouse" validate:"omitempty,oneof=K01 K02 K03 K04"`
	CmQty         decimal.Decimal `json:"cmQty"`
	CmQtyPerUnit  decimal.Decimal `json:"cmQtyPerUnit"`
	Note          string          `json:"note"`
	SourceOrderID *string         `json:"sourceOrderId" validate:"omitempty,uuid"`
	SourceItemID  *string         `json:"sourceItemId" validate:"omitempty,uuid"`
}

func (it itemRequest) toModel() model.ItemInput {
	return model.ItemInput{
		ID:            optionalUUID(it.ID),
		ProductName:   strings.TrimSpace(it.ProductName),
		Size:          it.Size,
		Unit:          it.Unit,
		Quantity:      it.Quantity,
		Warehouse:     model.Warehouse(it.Warehouse),
		CmQty:         it.CmQty,
		CmQtyPerUnit:  it.CmQtyPerUnit,
		Note:          it.Note,
		SourceOrderID: optionalUUID(it.SourceOrderID),
		SourceItemID:  optionalUUID(it.SourceItemID),
	}
}

// optionalUUID разбирает строку, уже проверенную тегом uuid.
func optionalUUID(s *string) *uuid.UUID {
	if s == nil || *s == "" {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

func itemsToModel(items []itemRequest) []model.ItemInput {
	out := make([]model.ItemInput, len(items))
	for i, it := range items {
		out[i] = it.toModel()
	}
	return out
}

type createOrderRequest struct {
	Customer  customerRequest `json:"customer"`
	OrderDate *jsonDate       `json:"orderDate"`
	Items     []itemRequest   `json:"items" validate:"required,min=1,dive"`
}

type updateOrderRequest struct {
	Customer  *customerRequest `json:"customer"`
	OrderDate *jsonDate        `json:"orderDate"`
	Items     []itemRequest    `json:"items" validate:"omitempty,dive"`
}

type assignVehicleRequest struct {
	VehicleID *string `json:"vehicleId"`
}

type leaderConfirmRequest struct {
	Value *decimal.Decimal `json:"value" validate:"required"`
}

type warehouseConfirmRequest struct {
	Value *confirmInput `json:"value" validate:"required"`
}

type batchUpdateRequest struct {
	OrderID        string           `json:"orderId" validate:"required"`
	ItemIndex      *int             `json:"itemIndex" validate:"required,min=0"`
	LeaderValue    *decimal.Decimal `json:"leaderValue"`
	WarehouseValue *confirmInput    `json:"warehouseValue"`
}

type batchRequest struct {
	Updates []batchUpdateRequest `json:"updates" validate:"required,min=1,dive"`
}

func (r batchRequest) toModel() []model.BatchUpdate {
	out := make([]model.BatchUpdate, len(r.Updates))
	for i, u := range r.Updates {
		out[i] = model.BatchUpdate{
			OrderID:     u.OrderID,
			ItemIndex:   *u.ItemIndex,
			LeaderValue: u.LeaderValue,
		}
		if u.WarehouseValue != nil {
			v := string(*u.WarehouseValue)
			out[i].WarehouseValue = &v
		}
	}
	return out
}

type compensationItemRequest struct {
	SourceOrderID string          `json:"sourceOrderId" validate:"required,uuid"`
	SourceItemID  string          `json:"sourceItemId" validate:"required,uuid"`
	Quantity      decimal.Decimal `json:"quantity"`
	ProductName   string          `json:"productName"`
	Size          string          `json:"size"`
	Unit          string          `json:"unit"`
	Warehouse     string          `json:"warehouse" validate:"omitempty,oneof=K01 K02 K03 K04"`
	CmQty         decimal.Decimal `json:"cmQty"`
	Note          string          `json:"note"`
}

type compensationRequest struct {
	Customer  customerRequest           `json:"customer"`
	OrderDate *jsonDate                 `json:"orderDate"`
	Items     []compensationItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (r compensationRequest) toModel(createdBy string) model.CompensationInput {
	in := model.CompensationInput{
		Customer:  r.Customer.toModel(),
		CreatedBy: createdBy,
		Items:     make([]model.CompensationRequest, len(r.Items)),
	}
	if r.OrderDate != nil {
		in.OrderDate = r.OrderDate.Time
	}
	for i, it := range r.Items {
		in.Items[i] = model.CompensationRequest{
			SourceOrderID: uuid.MustParse(it.SourceOrderID),
			SourceItemID:  uuid.MustParse(it.SourceItemID),
			Quantity:      it.Quantity,
			ProductName:   strings.TrimSpace(it.ProductName),
			Size:          it.Size,
			Unit:          it.Unit,
			Warehouse:     model.Warehouse(it.Warehouse),
			CmQty:         it.CmQty,
			Note:          it.Note,
		}
	}
	return in
}

type ignoreShortageRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid"`
	ItemID  string `json:"itemId" validate:"required,uuid"`
}

type warehouseConfirmResponse struct {
	Value       string    `json:"value"`
	Kind        string    `json:"kind"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

type leaderConfirmResponse struct {
	Value       decimal.Decimal `json:"value"`
	ConfirmedAt time.Time       `json:"confirmedAt"`
}

type itemResponse struct {
	ID                uuid.UUID                 `json:"id"`
	Stt               int                       `json:"stt"`
	ProductName       string                    `json:"productName"`
	Size              string                    `json:"size"`
	Unit              string                    `json:"unit"`
	Quantity          decimal.Decimal           `json:"quantity"`
	Warehouse         model.Warehouse           `json:"warehouse"`
	CmQty             decimal.Decimal           `json:"cmQty"`
	CmQtyPerUnit      decimal.Decimal           `json:"cmQtyPerUnit"`
	Note              string                    `json:"note"`
	WarehouseConfirm  *warehouseConfirmResponse `json:"warehouseConfirm"`
	LeaderConfirm     *leaderConfirmResponse    `json:"leaderConfirm"`
	ShortageQty       decimal.Decimal           `json:"shortageQty"`
	CompensatedQty    decimal.Decimal           `json:"compensatedQty"`
	RemainingShortage decimal.Decimal           `json:"remainingShortage"`
	ShortageStatus    model.ShortageStatus      `json:"shortageStatus"`
	SourceOrderID     *uuid.UUID                `json:"sourceOrderId,omitempty"`
	SourceItemID      *uuid.UUID                `json:"sourceItemId,omitempty"`
}

type orderResponse struct {
	ID                  uuid.UUID              `json:"id"`
	Customer            model.CustomerSnapshot `json:"customer"`
	Items               []itemResponse         `json:"items"`
	IsCompensationOrder bool                   `json:"isCompensationOrder"`
	IsOverDebtLimit     bool                   `json:"isOverDebtLimit"`
	OrderDate           time.Time              `json:"orderDate"`
	VehicleID           *string                `json:"vehicle"`
	CreatedBy           string                 `json:"createdBy"`
	CreatedAt           time.Time              `json:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

type workItemListResponse struct {
	Items       []model.WorkItem `json:"items"`
	Total       int              `json:"totalItems"`
	Page        int              `json:"currentPage"`
	Limit       int              `json:"itemsPerPage"`
	TotalPages  int              `json:"totalPages"`
	HasNextPage bool             `json:"hasNextPage"`
	HasPrevPage bool             `json:"hasPrevPage"`
}

type recalculateResponse struct {
	Order   orderResponse `json:"order"`
	Changed bool          `json:"changed"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:                  o.ID,
		Customer:            o.Customer,
		Items:               make([]itemResponse, len(o.Items)),
		IsCompensationOrder: o.IsCompensationOrder,
		IsOverDebtLimit:     o.IsOverDebtLimit,
		OrderDate:           o.OrderDate,
		VehicleID:           o.VehicleID,
		CreatedBy:           o.CreatedBy,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
	for i := range o.Items {
		it := &o.Items[i]
		ir := itemResponse{
			ID:                it.ID,
			Stt:               it.Stt,
			ProductName:       it.ProductName,
			Size:              it.Size,
			Unit:              it.Unit,
			Quantity:          it.Quantity,
			Warehouse:         it.Warehouse,
			CmQty:             it.CmQty,
			CmQtyPerUnit:      it.CmQtyPerUnit,
			Note:              it.Note,
			ShortageQty:       it.ShortageQty,
			CompensatedQty:    it.CompensatedQty,
			RemainingShortage: it.RemainingShortage(),
			ShortageStatus:    it.ShortageStatus,
			SourceOrderID:     it.SourceOrderID,
			SourceItemID:      it.SourceItemID,
		}
		if it.HasWarehouseConfirm() {
			ir.WarehouseConfirm = &warehouseConfirmResponse{
				Value:       it.WarehouseConfirm.Value.Raw,
				Kind:        string(it.WarehouseConfirm.Value.Kind),
				ConfirmedAt: it.WarehouseConfirm.ConfirmedAt,
			}
		}
		if it.LeaderConfirm != nil {
			ir.LeaderConfirm = &leaderConfirmResponse{
				Value:       it.LeaderConfirm.Value,
				ConfirmedAt: it.LeaderConfirm.ConfirmedAt,
			}
		}
		resp.Items[i] = ir
	}
	return resp
}
