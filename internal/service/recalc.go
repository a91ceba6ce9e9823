package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gioigioi124/elanAI/internal/events"
	"github.com/gioigioi124/elanAI/internal/ledger"
	"github.com/gioigioi124/elanAI/internal/model"
	"github.com/gioigioi124/elanAI/internal/repository"
)

// RecalcFailure описывает заказ, который не удалось пересчитать.
type RecalcFailure struct {
	OrderID uuid.UUID
	Err     error
}

// RecalcSummary содержит итог пересчёта всех заказов.
type RecalcSummary struct {
	Scanned  int
	Changed  int
	Failures []RecalcFailure
}

// RecalculateOrder пересчитывает недостачи всех позиций заказа по сохранённым подтверждениям.
// Заказ сохраняется только при наличии изменений, поэтому повторный вызов ничего не меняет.
func (s *Service) RecalculateOrder(ctx context.Context, id uuid.UUID) (*model.Order, bool, error) {
	var (
		result  *model.Order
		changed []int
	)

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		changed = changed[:0]

		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		result = o

		for i := range o.Items {
			if ledger.Recompute(&o.Items[i]) {
				changed = append(changed, i)
			}
		}
		if len(changed) == 0 {
			return nil
		}

		o.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, false, err
	}

	if len(changed) > 0 {
		s.metrics.recalculated.Inc()

		evts := make([]events.Event, 0, len(changed))
		for _, i := range changed {
			evts = append(evts, shortageEvent(events.ShortageChanged, result.ID, &result.Items[i], result.UpdatedAt))
		}
		s.publish(ctx, evts...)
	}

	return result, len(changed) > 0, nil
}

// RecalculateAll пересчитывает все заказы по очереди и собирает ошибки по отдельным заказам.
func (s *Service) RecalculateAll(ctx context.Context) (RecalcSummary, error) {
	var summary RecalcSummary

	ids, err := s.repo.ListOrderIDs(ctx)
	if err != nil {
		return summary, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Scanned++
		_, changed, err := s.RecalculateOrder(ctx, id)
		if err != nil {
			summary.Failures = append(summary.Failures, RecalcFailure{OrderID: id, Err: err})
			s.logger.Warn("recalculation failed",
				zap.String("order_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		if changed {
			summary.Changed++
		}
	}

	s.logger.Info("recalculation finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("changed", summary.Changed),
		zap.Int("failed", len(summary.Failures)),
	)

	return summary, nil
}
