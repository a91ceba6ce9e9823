package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderFilter задаёт условия выборки заказов на уровне документа.
type OrderFilter struct {
	CustomerName string
	CustomerCode string
	VehicleID    string
	Assigned     *bool
	CreatedBy    string
	FromDate     *time.Time
	ToDate       *time.Time
	// OpenShortageOnly оставляет заказы, где есть хотя бы одна позиция со статусом OPEN.
	OpenShortageOnly bool
	// LeaderConfirmedOnly оставляет заказы, где есть позиция с подтверждением бригадира.
	LeaderConfirmedOnly bool
	// Warehouse оставляет заказы, где есть хотя бы одна позиция этого склада.
	Warehouse Warehouse
	Limit     int
	Offset    int
}

// ConfirmState отбирает позиции по наличию подтверждения.
type ConfirmState string

const (
	ConfirmStateAny         ConfirmState = ""
	ConfirmStateConfirmed   ConfirmState = "confirmed"
	ConfirmStateUnconfirmed ConfirmState = "unconfirmed"
)

// Valid сообщает, известно ли значение фильтра.
func (s ConfirmState) Valid() bool {
	switch s {
	case ConfirmStateAny, ConfirmStateConfirmed, ConfirmStateUnconfirmed:
		return true
	}
	return false
}

// Match сообщает, подходит ли позиция с данным признаком подтверждения под фильтр.
func (s ConfirmState) Match(confirmed bool) bool {
	switch s {
	case ConfirmStateConfirmed:
		return confirmed
	case ConfirmStateUnconfirmed:
		return !confirmed
	}
	return true
}

// WorkItemFilter задаёт условия выборки позиций для очереди склада или диспетчера.
type WorkItemFilter struct {
	FromDate  *time.Time
	ToDate    *time.Time
	CreatedBy string
	Status    ConfirmState
	// Limit ноль означает выборку без постраничного разбиения.
	Limit  int
	Offset int
}

// WorkItem описывает позицию заказа в очереди склада или диспетчера.
type WorkItem struct {
	OrderID          uuid.UUID        `json:"orderId"`
	ItemIndex        int              `json:"itemIndex"`
	ItemID           uuid.UUID        `json:"itemId"`
	OrderDate        time.Time        `json:"orderDate"`
	CustomerName     string           `json:"customerName"`
	CustomerNote     string           `json:"customerNote"`
	CreatedBy        string           `json:"createdBy"`
	VehicleID        *string          `json:"vehicle"`
	ProductName      string           `json:"productName"`
	Size             string           `json:"size"`
	Unit             string           `json:"unit"`
	Quantity         decimal.Decimal  `json:"quantity"`
	CmQty            decimal.Decimal  `json:"cmQty"`
	Note             string           `json:"note"`
	Warehouse        Warehouse        `json:"warehouse"`
	WarehouseConfirm string           `json:"warehouseConfirm"`
	LeaderConfirm    *decimal.Decimal `json:"leaderConfirm"`
}

// ShortageFilter задаёт условия выборки открытых недостач.
type ShortageFilter struct {
	CustomerID   string
	CustomerName string
	Warehouse    Warehouse
	FromDate     *time.Time
	ToDate       *time.Time
}

// ShortageItem описывает позицию с непокрытой недостачей.
type ShortageItem struct {
	ItemID            uuid.UUID       `json:"itemId"`
	Stt               int             `json:"stt"`
	ProductName       string          `json:"productName"`
	Size              string          `json:"size"`
	Unit              string          `json:"unit"`
	Quantity          decimal.Decimal `json:"quantity"`
	LeaderConfirm     decimal.Decimal `json:"leaderConfirm"`
	ShortageQty       decimal.Decimal `json:"shortageQty"`
	CompensatedQty    decimal.Decimal `json:"compensatedQty"`
	RemainingShortage decimal.Decimal `json:"remainingShortage"`
	Warehouse         Warehouse       `json:"warehouse"`
	CmQty             decimal.Decimal `json:"cmQty"`
	Note              string          `json:"note"`
}

// OrderShortages описывает заказ и его позиции с открытыми недостачами.
type OrderShortages struct {
	OrderID             uuid.UUID        `json:"orderId"`
	OrderDate           time.Time        `json:"orderDate"`
	Customer            CustomerSnapshot `json:"customer"`
	VehicleID           *string          `json:"vehicle"`
	CreatedBy           string           `json:"createdBy"`
	IsCompensationOrder bool             `json:"isCompensationOrder"`
	ShortageItems       []ShortageItem   `json:"shortageItems"`
}

// ReportFilter задаёт условия отчёта по излишкам и недостачам.
type ReportFilter struct {
	CustomerName string
	CreatedBy    string
	Warehouse    Warehouse
	FromDate     *time.Time
	ToDate       *time.Time
	// DeficitOnly исключает позиции, где подтверждённое количество совпало с заказанным.
	DeficitOnly bool
}

// SurplusDeficitRow описывает расхождение подтверждённого и заказанного количества.
type SurplusDeficitRow struct {
	OrderID          uuid.UUID        `json:"orderId"`
	OrderDate        time.Time        `json:"orderDate"`
	Customer         CustomerSnapshot `json:"customer"`
	VehicleID        *string          `json:"vehicle"`
	CreatedBy        string           `json:"createdBy"`
	ItemID           uuid.UUID        `json:"itemId"`
	Stt              int              `json:"stt"`
	ProductName      string           `json:"productName"`
	Size             string           `json:"size"`
	Unit             string           `json:"unit"`
	Quantity         decimal.Decimal  `json:"quantity"`
	Warehouse        Warehouse        `json:"warehouse"`
	LeaderConfirm    decimal.Decimal  `json:"leaderConfirm"`
	Deficit          decimal.Decimal  `json:"deficit"`
	WarehouseConfirm string           `json:"warehouseConfirm"`
	Note             string           `json:"note"`
}

// BatchUpdate описывает одно подтверждение в пакетном запросе.
type BatchUpdate struct {
	OrderID        string
	ItemIndex      int
	LeaderValue    *decimal.Decimal
	WarehouseValue *string
}

// BatchError описывает ошибку обработки одного заказа в пакете.
type BatchError struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// BatchResult содержит итог пакетного подтверждения.
type BatchResult struct {
	SuccessCount int          `json:"successCount"`
	ErrorCount   int          `json:"errorCount"`
	Errors       []BatchError `json:"errors"`
}

// ItemInput описывает позицию во входных данных создания или изменения заказа.
type ItemInput struct {
	// ID заполняется при редактировании, чтобы сохранить существующую позицию.
	ID           *uuid.UUID
	ProductName  string
	Size         string
	Unit         string
	Quantity     decimal.Decimal
	Warehouse    Warehouse
	CmQty        decimal.Decimal
	CmQtyPerUnit decimal.Decimal
	Note         string

	SourceOrderID *uuid.UUID
	SourceItemID  *uuid.UUID
}

// OrderInput описывает данные для создания заказа.
type OrderInput struct {
	Customer  CustomerSnapshot
	OrderDate time.Time
	Items     []ItemInput
	CreatedBy string
}

// OrderUpdate описывает частичное изменение заказа; nil означает «не менять».
type OrderUpdate struct {
	Customer  *CustomerSnapshot
	OrderDate *time.Time
	Items     []ItemInput
	// ItemsSet отличает пустой список позиций от отсутствия изменений.
	ItemsSet bool
}

// CompensationRequest описывает одну позицию дозаказа.
type CompensationRequest struct {
	SourceOrderID uuid.UUID
	SourceItemID  uuid.UUID
	Quantity      decimal.Decimal
	ProductName   string
	Size          string
	Unit          string
	Warehouse     Warehouse
	CmQty         decimal.Decimal
	Note          string
}

// CompensationInput описывает запрос на создание заказа-дозаказа.
type CompensationInput struct {
	Customer  CustomerSnapshot
	OrderDate time.Time
	CreatedBy string
	Items     []CompensationRequest
}
