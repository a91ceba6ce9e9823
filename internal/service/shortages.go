package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gioigioi124/elanAI/internal/model"
)

// RemainingShortages возвращает заказы с непокрытыми недостачами, начиная с самых новых.
// В каждом заказе остаются только позиции со статусом OPEN и положительным остатком недостачи.
func (s *Service) RemainingShortages(ctx context.Context, f model.ShortageFilter) ([]model.OrderShortages, error) {
	if f.Warehouse != "" && !f.Warehouse.Valid() {
		return nil, fmt.Errorf("%w: unknown warehouse %q", model.ErrValidation, f.Warehouse)
	}

	orders, _, err := s.repo.FindOrders(ctx, model.OrderFilter{
		CustomerName:     f.CustomerName,
		CustomerCode:     f.CustomerID,
		FromDate:         f.FromDate,
		ToDate:           f.ToDate,
		OpenShortageOnly: true,
	})
	if err != nil {
		return nil, err
	}

	result := []model.OrderShortages{}
	for i := range orders {
		o := &orders[i]

		var items []model.ShortageItem
		for j := range o.Items {
			it := &o.Items[j]
			if it.ShortageStatus != model.ShortageOpen || !it.RemainingShortage().IsPositive() {
				continue
			}
			if f.Warehouse != "" && it.Warehouse != f.Warehouse {
				continue
			}
			items = append(items, shortageItem(it))
		}
		if len(items) == 0 {
			continue
		}

		result = append(result, model.OrderShortages{
			OrderID:             o.ID,
			OrderDate:           o.OrderDate,
			Customer:            o.Customer,
			VehicleID:           o.VehicleID,
			CreatedBy:           o.CreatedBy,
			IsCompensationOrder: o.IsCompensationOrder,
			ShortageItems:       items,
		})
	}

	return result, nil
}

func shortageItem(it *model.Item) model.ShortageItem {
	confirmed := decimal.Zero
	if it.LeaderConfirm != nil {
		confirmed = it.LeaderConfirm.Value
	}
	return model.ShortageItem{
		ItemID:            it.ID,
		Stt:               it.Stt,
		ProductName:       it.ProductName,
		Size:              it.Size,
		Unit:              it.Unit,
		Quantity:          it.Quantity,
		LeaderConfirm:     confirmed,
		ShortageQty:       it.ShortageQty,
		CompensatedQty:    it.CompensatedQty,
		RemainingShortage: it.RemainingShortage(),
		Warehouse:         it.Warehouse,
		CmQty:             it.CmQty,
		Note:              it.Note,
	}
}

// SurplusDeficit возвращает расхождения между подтверждённым бригадиром и заказанным количеством.
// Положительное значение означает излишек, отрицательное означает недостачу.
func (s *Service) SurplusDeficit(ctx context.Context, f model.ReportFilter) ([]model.SurplusDeficitRow, error) {
	if f.Warehouse != "" && !f.Warehouse.Valid() {
		return nil, fmt.Errorf("%w: unknown warehouse %q", model.ErrValidation, f.Warehouse)
	}

	orders, _, err := s.repo.FindOrders(ctx, model.OrderFilter{
		CustomerName:        f.CustomerName,
		CreatedBy:           f.CreatedBy,
		FromDate:            f.FromDate,
		ToDate:              f.ToDate,
		LeaderConfirmedOnly: true,
	})
	if err != nil {
		return nil, err
	}

	rows := []model.SurplusDeficitRow{}
	for i := range orders {
		o := &orders[i]
		for j := range o.Items {
			it := &o.Items[j]
			if it.LeaderConfirm == nil {
				continue
			}
			if f.Warehouse != "" && it.Warehouse != f.Warehouse {
				continue
			}

			deficit := it.LeaderConfirm.Value.Sub(it.Quantity)
			if f.DeficitOnly && deficit.IsZero() {
				continue
			}

			row := model.SurplusDeficitRow{
				OrderID:       o.ID,
				OrderDate:     o.OrderDate,
				Customer:      o.Customer,
				VehicleID:     o.VehicleID,
				CreatedBy:     o.CreatedBy,
				ItemID:        it.ID,
				Stt:           it.Stt,
				ProductName:   it.ProductName,
				Size:          it.Size,
				Unit:          it.Unit,
				Quantity:      it.Quantity,
				Warehouse:     it.Warehouse,
				LeaderConfirm: it.LeaderConfirm.Value,
				Deficit:       deficit,
				Note:          it.Note,
			}
			if it.WarehouseConfirm != nil {
				row.WarehouseConfirm = it.WarehouseConfirm.Value.Raw
			}
			rows = append(rows, row)
		}
	}

	return rows, nil
}
