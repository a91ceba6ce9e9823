package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gioigioi124/elanAI/internal/events"
	"github.com/gioigioi124/elanAI/internal/ledger"
	"github.com/gioigioi124/elanAI/internal/model"
	"github.com/gioigioi124/elanAI/internal/repository"
	"github.com/gioigioi124/elanAI/internal/validation"
)

// checkOrderHeader проверяет клиента и дату заказа; нулевая дата заменяется текущим временем.
func (s *Service) checkOrderHeader(customer model.CustomerSnapshot, date, now time.Time) (time.Time, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return time.Time{}, fmt.Errorf("%w: customer name is required", model.ErrValidation)
	}
	if date.IsZero() {
		return now, nil
	}
	if !validation.IsNotPastDate(date, now) {
		return time.Time{}, fmt.Errorf("%w: order date must not be in the past", model.ErrValidation)
	}
	return date, nil
}

func validateItemInput(index int, in model.ItemInput) error {
	switch {
	case strings.TrimSpace(in.ProductName) == "":
		return fmt.Errorf("%w: item %d: product name is required", model.ErrValidation, index+1)
	case in.Quantity.IsNegative():
		return fmt.Errorf("%w: item %d: quantity must not be negative", model.ErrValidation, index+1)
	case !validation.IsValidWarehouse(string(in.Warehouse)):
		return fmt.Errorf("%w: item %d: unknown warehouse %q", model.ErrValidation, index+1, in.Warehouse)
	case in.CmQty.IsNegative() || in.CmQtyPerUnit.IsNegative():
		return fmt.Errorf("%w: item %d: cmQty must not be negative", model.ErrValidation, index+1)
	}
	return nil
}

// newItem создаёт обычную позицию заказа с начальным состоянием учёта недостачи.
func newItem(in model.ItemInput, stt int) model.Item {
	it := model.Item{
		ID:           uuid.New(),
		Stt:          stt,
		ProductName:  in.ProductName,
		Size:         in.Size,
		Unit:         in.Unit,
		Quantity:     in.Quantity,
		Warehouse:    in.Warehouse,
		CmQty:        in.CmQty,
		CmQtyPerUnit: in.CmQtyPerUnit,
		Note:         in.Note,
	}
	ledger.ResetShortage(&it)
	return it
}

func compensationRequestOf(in model.ItemInput) model.CompensationRequest {
	return model.CompensationRequest{
		SourceOrderID: *in.SourceOrderID,
		SourceItemID:  *in.SourceItemID,
		Quantity:      in.Quantity,
		ProductName:   in.ProductName,
		Size:          in.Size,
		Unit:          in.Unit,
		Warehouse:     in.Warehouse,
		CmQty:         in.CmQty,
		Note:          in.Note,
	}
}

// CreateOrder создаёт заказ. Позиции со ссылкой на исходную позицию списываются с её недостачи
// в той же транзакции по тем же правилам, что и в CreateCompensationOrder.
func (s *Service) CreateOrder(ctx context.Context, in model.OrderInput) (*model.Order, error) {
	now := s.now()

	orderDate, err := s.checkOrderHeader(in.Customer, in.OrderDate, now)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", model.ErrValidation)
	}

	var (
		reqs     []model.CompensationRequest
		reqIndex []int
	)
	for i, it := range in.Items {
		if (it.SourceOrderID == nil) != (it.SourceItemID == nil) {
			return nil, fmt.Errorf("%w: item %d: source order and item must be set together", model.ErrValidation, i+1)
		}
		if it.SourceOrderID != nil {
			r := compensationRequestOf(it)
			if err := validateCompensationRequest(i, r); err != nil {
				return nil, err
			}
			reqs = append(reqs, r)
			reqIndex = append(reqIndex, i)
			continue
		}
		if err := validateItemInput(i, it); err != nil {
			return nil, err
		}
	}

	overDebt := s.isOverDebtLimit(ctx, in.Customer.Code)

	var (
		created *model.Order
		sources []model.Item
	)

	err = s.repo.WithTx(ctx, func(tx repository.Tx) error {
		sources = sources[:0]

		order := &model.Order{
			ID:              uuid.New(),
			Customer:        in.Customer,
			IsOverDebtLimit: overDebt,
			OrderDate:       orderDate,
			CreatedBy:       in.CreatedBy,
			CreatedAt:       now,
			UpdatedAt:       now,
			Items:           make([]model.Item, len(in.Items)),
		}
		for i, it := range in.Items {
			order.Items[i] = newItem(it, i+1)
		}

		if len(reqs) > 0 {
			led, err := lockSources(ctx, tx, reqs)
			if err != nil {
				return reindex(err, reqIndex)
			}
			for n, r := range reqs {
				src, err := led.apply(n, r)
				if err != nil {
					return reindex(err, reqIndex)
				}
				i := reqIndex[n]
				order.Items[i] = compensationItem(r, src, i+1)
				sources = append(sources, *src)
			}
			if err := led.save(ctx, now); err != nil {
				return err
			}
		}

		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		created = order
		return nil
	})
	if len(reqs) > 0 {
		s.metrics.compensation(err)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", created.ID.String()),
		zap.Int("items", len(created.Items)),
		zap.Int("compensation_items", len(reqs)),
		zap.Bool("over_debt_limit", created.IsOverDebtLimit),
	)
	s.publish(ctx, compensatedEvents(created.ID, reqs, sources, now)...)

	return created, nil
}

// reindex переводит номер позиции в ошибке дозаказа в номер позиции исходного запроса.
func reindex(err error, index []int) error {
	var ce *model.CompensationError
	if errors.As(err, &ce) && ce.Index < len(index) {
		ce.Index = index[ce.Index]
	}
	return err
}

// GetOrder возвращает заказ по идентификатору.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders возвращает заказы по фильтру и их общее количество.
func (s *Service) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error) {
	return s.repo.FindOrders(ctx, filter)
}

// UpdateOrder изменяет клиента, дату и список позиций заказа.
// Сохранённые позиции сохраняют подтверждения и учёт недостачи, новые позиции начинают с нуля.
func (s *Service) UpdateOrder(ctx context.Context, id uuid.UUID, upd model.OrderUpdate) (*model.Order, error) {
	now := s.now()

	if upd.Customer != nil && strings.TrimSpace(upd.Customer.Name) == "" {
		return nil, fmt.Errorf("%w: customer name is required", model.ErrValidation)
	}
	if upd.OrderDate != nil && !validation.IsNotPastDate(*upd.OrderDate, now) {
		return nil, fmt.Errorf("%w: order date must not be in the past", model.ErrValidation)
	}
	if upd.ItemsSet {
		if len(upd.Items) == 0 {
			return nil, fmt.Errorf("%w: order must contain at least one item", model.ErrValidation)
		}
		for i, it := range upd.Items {
			if err := validateItemInput(i, it); err != nil {
				return nil, err
			}
			if it.ID == nil && (it.SourceOrderID != nil || it.SourceItemID != nil) {
				return nil, fmt.Errorf("%w: item %d: compensation items can only be added on creation", model.ErrValidation, i+1)
			}
		}
	}

	var overDebt *bool
	if upd.Customer != nil {
		v := s.isOverDebtLimit(ctx, upd.Customer.Code)
		overDebt = &v
	}

	var updated *model.Order

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if upd.ItemsSet {
			if err := ledger.CheckItemsEdit(o.Items, upd.Items); err != nil {
				return err
			}
			items, err := mergeItems(o.Items, upd.Items)
			if err != nil {
				return err
			}
			o.Items = items
		}
		if upd.Customer != nil {
			o.Customer = *upd.Customer
			o.IsOverDebtLimit = *overDebt
		}
		if upd.OrderDate != nil {
			o.OrderDate = *upd.OrderDate
		}

		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// mergeItems строит новый список позиций, сохраняя состояние учёта у позиций с известным ID.
func mergeItems(current []model.Item, next []model.ItemInput) ([]model.Item, error) {
	byID := make(map[uuid.UUID]model.Item, len(current))
	for _, it := range current {
		byID[it.ID] = it
	}

	seen := make(map[uuid.UUID]struct{}, len(next))
	items := make([]model.Item, 0, len(next))
	for i, in := range next {
		if in.ID == nil {
			items = append(items, newItem(in, i+1))
			continue
		}

		it, ok := byID[*in.ID]
		if !ok {
			return nil, fmt.Errorf("%w: item %s does not belong to the order", model.ErrValidation, *in.ID)
		}
		if _, dup := seen[*in.ID]; dup {
			return nil, fmt.Errorf("%w: item %s is listed more than once", model.ErrValidation, *in.ID)
		}
		seen[*in.ID] = struct{}{}

		// Количество дозаказа уже списано с недостачи исходной позиции.
		if it.IsCompensation() && !in.Quantity.Equal(it.Quantity) {
			return nil, fmt.Errorf("%w: quantity of compensation item %q cannot be changed", model.ErrPreconditionFailed, it.ProductName)
		}

		if !in.CmQty.Equal(it.CmQty) || !in.Quantity.Equal(it.Quantity) {
			it.CmQtyPerUnit = in.CmQtyPerUnit
		}
		it.Stt = i + 1
		it.ProductName = in.ProductName
		it.Size = in.Size
		it.Unit = in.Unit
		it.Quantity = in.Quantity
		it.Warehouse = in.Warehouse
		it.CmQty = in.CmQty
		it.Note = in.Note

		// Изменённое количество сдвигает недостачу относительно уже подтверждённого значения.
		ledger.Recompute(&it)
		items = append(items, it)
	}

	return items, nil
}

// DeleteOrder удаляет заказ, если ни одна его позиция не подтверждена складом.
func (s *Service) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}

		for i := range o.Items {
			if o.Items[i].HasWarehouseConfirm() {
				return fmt.Errorf("%w: item %q is already confirmed by warehouse", model.ErrPreconditionFailed, o.Items[i].ProductName)
			}
		}

		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("order deleted", zap.String("order_id", id.String()))
	return nil
}

// AssignVehicle назначает заказ на машину или снимает назначение при vehicleID == nil.
// Заказ клиента с превышенным лимитом задолженности назначается только при разрешённом обходе проверки.
func (s *Service) AssignVehicle(ctx context.Context, id uuid.UUID, vehicleID *string) (*model.Order, error) {
	if vehicleID != nil {
		v := strings.TrimSpace(*vehicleID)
		vehicleID = &v
		if v == "" {
			vehicleID = nil
		}
	}

	bypass := false
	if vehicleID != nil {
		o, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if o.IsOverDebtLimit {
			st := s.debtStatus(ctx, o.Customer.Code)
			bypass = st != nil && st.BypassDebtCheck
		}
	}

	var updated *model.Order

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if vehicleID != nil && o.IsOverDebtLimit && !bypass {
			return fmt.Errorf("%w: customer %q is over the debt limit", model.ErrPreconditionFailed, o.Customer.Name)
		}

		o.VehicleID = vehicleID
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// ConfirmLeader записывает количество, подтверждённое бригадиром, и пересчитывает недостачу.
func (s *Service) ConfirmLeader(ctx context.Context, id uuid.UUID, index int, value decimal.Decimal) (*model.Order, error) {
	var updated *model.Order

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}

		it, err := itemAt(o, index)
		if err != nil {
			return err
		}
		now := s.now()
		if err := ledger.ApplyLeaderConfirm(it, value, now); err != nil {
			return err
		}

		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.confirmations.WithLabelValues("leader").Inc()
	s.publish(ctx, shortageEvent(events.ShortageChanged, updated.ID, &updated.Items[index], updated.UpdatedAt))

	return updated, nil
}

// ConfirmWarehouse записывает подтверждение склада от имени пользователя actor.
func (s *Service) ConfirmWarehouse(ctx context.Context, actor model.Actor, id uuid.UUID, index int, raw string) (*model.Order, error) {
	var updated *model.Order

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}

		it, err := itemAt(o, index)
		if err != nil {
			return err
		}
		now := s.now()
		if err := ledger.ApplyWarehouseConfirm(actor, it, raw, now); err != nil {
			return err
		}

		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.confirmations.WithLabelValues("warehouse").Inc()
	return updated, nil
}
