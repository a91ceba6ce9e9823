package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gioigioi124/elanAI/internal/events"
	"github.com/gioigioi124/elanAI/internal/ledger"
	"github.com/gioigioi124/elanAI/internal/model"
	"github.com/gioigioi124/elanAI/internal/repository"
)

// ConfirmBatch применяет подтверждения бригадира и склада к нескольким заказам.
// Каждый заказ читается и сохраняется один раз в отдельной транзакции;
// ошибка в одном заказе не мешает сохранить остальные.
func (s *Service) ConfirmBatch(ctx context.Context, actor model.Actor, updates []model.BatchUpdate) model.BatchResult {
	var order []string
	groups := make(map[string][]model.BatchUpdate)
	for _, u := range updates {
		if _, ok := groups[u.OrderID]; !ok {
			order = append(order, u.OrderID)
		}
		groups[u.OrderID] = append(groups[u.OrderID], u)
	}

	result := model.BatchResult{Errors: []model.BatchError{}}
	for _, orderID := range order {
		evts, err := s.confirmOrder(ctx, actor, orderID, groups[orderID])
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, model.BatchError{OrderID: orderID, Message: err.Error()})
			s.logger.Warn("batch confirmation failed",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			continue
		}
		result.SuccessCount++
		s.publish(ctx, evts...)
	}

	return result
}

func (s *Service) confirmOrder(ctx context.Context, actor model.Actor, rawID string, updates []model.BatchUpdate) ([]events.Event, error) {
	id, err := parseOrderID(rawID)
	if err != nil {
		return nil, err
	}

	var (
		evts    []events.Event
		leaders int
		stores  int
	)

	err = s.repo.WithTx(ctx, func(tx repository.Tx) error {
		evts, leaders, stores = evts[:0], 0, 0

		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}

		now := s.now()
		for _, u := range updates {
			it, err := itemAt(o, u.ItemIndex)
			if err != nil {
				return err
			}
			if u.LeaderValue == nil && u.WarehouseValue == nil {
				return fmt.Errorf("%w: item index %d: no confirmation value", model.ErrValidation, u.ItemIndex)
			}

			if u.WarehouseValue != nil {
				if err := ledger.ApplyWarehouseConfirm(actor, it, *u.WarehouseValue, now); err != nil {
					return fmt.Errorf("item index %d: %w", u.ItemIndex, err)
				}
				stores++
			}
			if u.LeaderValue != nil {
				if err := ledger.ApplyLeaderConfirm(it, *u.LeaderValue, now); err != nil {
					return fmt.Errorf("item index %d: %w", u.ItemIndex, err)
				}
				leaders++
			}
		}

		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		for _, u := range updates {
			if u.LeaderValue != nil {
				evts = append(evts, shortageEvent(events.ShortageChanged, o.ID, &o.Items[u.ItemIndex], now))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.confirmations.WithLabelValues("leader").Add(float64(leaders))
	s.metrics.confirmations.WithLabelValues("warehouse").Add(float64(stores))
	return evts, nil
}
