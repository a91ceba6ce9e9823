// Package ledger реализует правила учёта недостач: подтверждения бригадира и склада,
// покрытие недостачи дозаказами и пересчёт статуса позиции.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gioigioi124/elanAI/internal/model"
	"github.com/gioigioi124/elanAI/internal/validation"
)

// Evaluate вычисляет недостачу и её статус по заказанному, подтверждённому и покрытому количеству.
// Статус IGNORED сохраняется, пока недостача не исчезнет или не будет покрыта полностью.
func Evaluate(quantity, confirmed, compensated decimal.Decimal, prev model.ShortageStatus) (decimal.Decimal, model.ShortageStatus) {
	shortage := decimal.Max(quantity.Sub(confirmed), decimal.Zero)

	switch {
	case shortage.IsZero():
		return shortage, model.ShortageClosed
	case compensated.GreaterThanOrEqual(shortage):
		return shortage, model.ShortageClosed
	case prev != model.ShortageIgnored:
		return shortage, model.ShortageOpen
	default:
		return shortage, model.ShortageIgnored
	}
}

// ResetShortage выставляет начальное состояние учёта недостачи для новой позиции.
func ResetShortage(item *model.Item) {
	item.ShortageQty = decimal.Zero
	item.CompensatedQty = decimal.Zero
	item.ShortageStatus = model.ShortageOpen
	item.LeaderConfirm = nil
	item.WarehouseConfirm = nil
}

// ApplyLeaderConfirm записывает подтверждение бригадира и пересчитывает недостачу.
func ApplyLeaderConfirm(item *model.Item, value decimal.Decimal, now time.Time) error {
	if value.IsNegative() {
		return fmt.Errorf("%w: leader confirmed quantity must not be negative", model.ErrValidation)
	}

	item.LeaderConfirm = &model.LeaderConfirm{Value: value, ConfirmedAt: now}
	item.ShortageQty, item.ShortageStatus = Evaluate(item.Quantity, value, item.CompensatedQty, item.ShortageStatus)
	rescaleCm(item, value)

	return nil
}

// rescaleCm пересчитывает объём позиции под фактически погруженное количество.
func rescaleCm(item *model.Item, value decimal.Decimal) {
	if !item.CmQtyPerUnit.IsPositive() {
		if !item.CmQty.IsPositive() || !item.Quantity.IsPositive() {
			return
		}
		item.CmQtyPerUnit = item.CmQty.Div(item.Quantity)
	}
	item.CmQty = value.Mul(item.CmQtyPerUnit)
}

// CanConfirmWarehouse сообщает, может ли пользователь подтверждать позиции указанного склада.
func CanConfirmWarehouse(actor model.Actor, warehouse model.Warehouse) bool {
	if actor.Role == model.RoleAdmin {
		return true
	}
	return actor.WarehouseCode != "" && actor.WarehouseCode == warehouse
}

// ApplyWarehouseConfirm записывает подтверждение склада, не затрагивая учёт недостачи.
func ApplyWarehouseConfirm(actor model.Actor, item *model.Item, raw string, now time.Time) error {
	if !CanConfirmWarehouse(actor, item.Warehouse) {
		return fmt.Errorf("%w: user cannot confirm items of warehouse %s", model.ErrAuthorization, item.Warehouse)
	}

	item.WarehouseConfirm = &model.WarehouseConfirm{
		Value:       validation.ParseConfirmValue(raw),
		ConfirmedAt: now,
	}

	return nil
}

// Recompute пересчитывает недостачу позиции по сохранённым значениям и сообщает, изменилось ли что-то.
// Позиции без подтверждения бригадира не пересчитываются.
func Recompute(item *model.Item) bool {
	if item.LeaderConfirm == nil {
		return false
	}

	shortage, status := Evaluate(item.Quantity, item.LeaderConfirm.Value, item.CompensatedQty, item.ShortageStatus)
	if shortage.Equal(item.ShortageQty) && status == item.ShortageStatus {
		return false
	}

	item.ShortageQty = shortage
	item.ShortageStatus = status
	return true
}

// Ignore помечает недостачу как не требующую покрытия.
func Ignore(item *model.Item) error {
	if item.ShortageStatus == model.ShortageClosed {
		return fmt.Errorf("%w: shortage of %q is already closed", model.ErrPreconditionFailed, item.ProductName)
	}
	item.ShortageStatus = model.ShortageIgnored
	return nil
}

// ApplyCompensation списывает количество дозаказа с остатка недостачи исходной позиции.
func ApplyCompensation(item *model.Item, qty decimal.Decimal) error {
	switch item.ShortageStatus {
	case model.ShortageIgnored:
		return fmt.Errorf("%w: shortage is ignored, no further compensation allowed", model.ErrPreconditionFailed)
	case model.ShortageClosed:
		return fmt.Errorf("%w: shortage is already closed", model.ErrPreconditionFailed)
	}

	remaining := item.RemainingShortage()
	if qty.GreaterThan(remaining) {
		return fmt.Errorf("%w: requested %s exceeds remaining shortage %s", model.ErrPreconditionFailed, qty, remaining)
	}

	item.CompensatedQty = item.CompensatedQty.Add(qty)
	if item.CompensatedQty.GreaterThanOrEqual(item.ShortageQty) {
		item.ShortageStatus = model.ShortageClosed
	}

	return nil
}

// CheckItemsEdit запрещает удалять или переносить на другой склад позиции, уже подтверждённые складом.
func CheckItemsEdit(current []model.Item, next []model.ItemInput) error {
	byID := make(map[string]model.ItemInput, len(next))
	for _, in := range next {
		if in.ID != nil {
			byID[in.ID.String()] = in
		}
	}

	for _, old := range current {
		if !old.HasWarehouseConfirm() {
			continue
		}

		in, ok := byID[old.ID.String()]
		if !ok {
			return fmt.Errorf("%w: cannot remove item %q confirmed by warehouse", model.ErrPreconditionFailed, old.ProductName)
		}
		if in.Warehouse != old.Warehouse {
			return fmt.Errorf("%w: cannot move item %q confirmed by warehouse %s", model.ErrPreconditionFailed, old.ProductName, old.Warehouse)
		}
	}

	return nil
}
