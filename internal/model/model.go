// Package model содержит доменные сущности учёта недостач и дозаказов.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Warehouse описывает код склада, к которому относится позиция заказа.
type Warehouse string

const (
	WarehouseK01 Warehouse = "K01"
	WarehouseK02 Warehouse = "K02"
	WarehouseK03 Warehouse = "K03"
	WarehouseK04 Warehouse = "K04"
)

// Warehouses перечисляет допустимые коды складов.
var Warehouses = []Warehouse{WarehouseK01, WarehouseK02, WarehouseK03, WarehouseK04}

// Valid сообщает, входит ли код склада в перечень допустимых.
func (w Warehouse) Valid() bool {
	for _, known := range Warehouses {
		if w == known {
			return true
		}
	}
	return false
}

// ShortageStatus описывает состояние недостачи по позиции.
type ShortageStatus string

const (
	ShortageOpen    ShortageStatus = "OPEN"
	ShortageClosed  ShortageStatus = "CLOSED"
	ShortageIgnored ShortageStatus = "IGNORED"
)

// Role описывает роль пользователя, от имени которого выполняется запрос.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleWarehouse Role = "warehouse"
	RoleLeader    Role = "leader"
)

// Actor содержит проверенные сведения о пользователе, выполняющем запрос.
type Actor struct {
	UserID        string
	Role          Role
	WarehouseCode Warehouse
}

// CustomerSnapshot содержит копию данных клиента на момент оформления заказа.
type CustomerSnapshot struct {
	Name    string `json:"name"`
	Code    string `json:"customerCode"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Note    string `json:"note"`
}

// ConfirmKind различает числовое подтверждение склада и подтверждение временем.
type ConfirmKind string

const (
	ConfirmNumeric   ConfirmKind = "numeric"
	ConfirmScheduled ConfirmKind = "scheduled"
)

// ConfirmValue хранит исходную строку подтверждения склада и её разобранное значение.
type ConfirmValue struct {
	Kind   ConfirmKind
	Raw    string
	Parsed *decimal.Decimal
}

// WarehouseConfirm описывает подтверждение позиции кладовщиком.
type WarehouseConfirm struct {
	Value       ConfirmValue
	ConfirmedAt time.Time
}

// LeaderConfirm описывает фактическое количество, подтверждённое бригадиром.
type LeaderConfirm struct {
	Value       decimal.Decimal
	ConfirmedAt time.Time
}

// Item описывает позицию заказа вместе с учётом недостачи.
type Item struct {
	ID           uuid.UUID
	Stt          int
	ProductName  string
	Size         string
	Unit         string
	Quantity     decimal.Decimal
	Warehouse    Warehouse
	CmQty        decimal.Decimal
	CmQtyPerUnit decimal.Decimal
	Note         string

	WarehouseConfirm *WarehouseConfirm
	LeaderConfirm    *LeaderConfirm

	ShortageQty    decimal.Decimal
	CompensatedQty decimal.Decimal
	ShortageStatus ShortageStatus

	// Ссылки на исходную позицию, заполняются только у позиций дозаказа.
	SourceOrderID *uuid.UUID
	SourceItemID  *uuid.UUID
}

// RemainingShortage возвращает недостачу, ещё не покрытую дозаказами.
func (it *Item) RemainingShortage() decimal.Decimal {
	return it.ShortageQty.Sub(it.CompensatedQty)
}

// HasWarehouseConfirm сообщает, подтверждена ли позиция складом.
func (it *Item) HasWarehouseConfirm() bool {
	return it.WarehouseConfirm != nil && it.WarehouseConfirm.Value.Raw != ""
}

// IsCompensation сообщает, закрывает ли позиция недостачу другой позиции.
func (it *Item) IsCompensation() bool {
	return it.SourceOrderID != nil && it.SourceItemID != nil
}

// Order описывает заказ клиента со встроенным списком позиций.
type Order struct {
	ID                  uuid.UUID
	Customer            CustomerSnapshot
	Items               []Item
	IsCompensationOrder bool
	IsOverDebtLimit     bool
	OrderDate           time.Time
	VehicleID           *string
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ItemByID возвращает позицию заказа по идентификатору.
func (o *Order) ItemByID(id uuid.UUID) (*Item, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// Clone возвращает глубокую копию заказа.
func (o *Order) Clone() *Order {
	c := *o
	if o.VehicleID != nil {
		v := *o.VehicleID
		c.VehicleID = &v
	}
	c.Items = make([]Item, len(o.Items))
	for i, it := range o.Items {
		c.Items[i] = it.clone()
	}
	return &c
}

func (it Item) clone() Item {
	if it.WarehouseConfirm != nil {
		wc := *it.WarehouseConfirm
		if wc.Value.Parsed != nil {
			p := *wc.Value.Parsed
			wc.Value.Parsed = &p
		}
		it.WarehouseConfirm = &wc
	}
	if it.LeaderConfirm != nil {
		lc := *it.LeaderConfirm
		it.LeaderConfirm = &lc
	}
	if it.SourceOrderID != nil {
		id := *it.SourceOrderID
		it.SourceOrderID = &id
	}
	if it.SourceItemID != nil {
		id := *it.SourceItemID
		it.SourceItemID = &id
	}
	return it
}
