package service

import (
	"context"
	"fmt"

	"github.com/gioigioi124/elanAI/internal/model"
)

// WarehouseItems возвращает позиции склада пользователя, начиная с самых новых заказов.
// Status отбирает позиции по наличию подтверждения склада.
func (s *Service) WarehouseItems(ctx context.Context, actor model.Actor, f model.WorkItemFilter) ([]model.WorkItem, int, error) {
	if actor.Role != model.RoleWarehouse || !actor.WarehouseCode.Valid() {
		return nil, 0, fmt.Errorf("%w: only warehouse staff with a warehouse code can view warehouse items", model.ErrAuthorization)
	}
	if !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", model.ErrValidation, f.Status)
	}

	orders, _, err := s.repo.FindOrders(ctx, model.OrderFilter{
		Warehouse: actor.WarehouseCode,
		FromDate:  f.FromDate,
		ToDate:    f.ToDate,
	})
	if err != nil {
		return nil, 0, err
	}

	items := collectWorkItems(orders, func(it *model.Item) bool {
		return it.Warehouse == actor.WarehouseCode && f.Status.Match(it.HasWarehouseConfirm())
	})
	return pageOf(items, f.Limit, f.Offset), len(items), nil
}

// DispatcherItems возвращает позиции всех заказов для диспетчера.
// Status отбирает позиции по наличию подтверждения бригадира.
func (s *Service) DispatcherItems(ctx context.Context, f model.WorkItemFilter) ([]model.WorkItem, int, error) {
	if !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", model.ErrValidation, f.Status)
	}

	orders, _, err := s.repo.FindOrders(ctx, model.OrderFilter{
		CreatedBy: f.CreatedBy,
		FromDate:  f.FromDate,
		ToDate:    f.ToDate,
	})
	if err != nil {
		return nil, 0, err
	}

	items := collectWorkItems(orders, func(it *model.Item) bool {
		return f.Status.Match(it.LeaderConfirm != nil)
	})
	return pageOf(items, f.Limit, f.Offset), len(items), nil
}

// collectWorkItems раскладывает заказы в плоский список позиций, сохраняя порядок заказов.
func collectWorkItems(orders []model.Order, keep func(*model.Item) bool) []model.WorkItem {
	items := []model.WorkItem{}
	for i := range orders {
		o := &orders[i]
		for idx := range o.Items {
			it := &o.Items[idx]
			if !keep(it) {
				continue
			}
			items = append(items, workItem(o, idx))
		}
	}
	return items
}

func workItem(o *model.Order, idx int) model.WorkItem {
	it := &o.Items[idx]
	w := model.WorkItem{
		OrderID:      o.ID,
		ItemIndex:    idx,
		ItemID:       it.ID,
		OrderDate:    o.OrderDate,
		CustomerName: o.Customer.Name,
		CustomerNote: o.Customer.Note,
		CreatedBy:    o.CreatedBy,
		VehicleID:    o.VehicleID,
		ProductName:  it.ProductName,
		Size:         it.Size,
		Unit:         it.Unit,
		Quantity:     it.Quantity,
		CmQty:        it.CmQty,
		Note:         it.Note,
		Warehouse:    it.Warehouse,
	}
	if it.HasWarehouseConfirm() {
		w.WarehouseConfirm = it.WarehouseConfirm.Value.Raw
	}
	if it.LeaderConfirm != nil {
		v := it.LeaderConfirm.Value
		w.LeaderConfirm = &v
	}
	return w
}

// pageOf вырезает страницу из списка; limit ноль возвращает список целиком.
func pageOf[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		return items
	}
	start := min(max(offset, 0), len(items))
	end := start + min(limit, len(items)-start)
	return items[start:end]
}
