// Package service реализует бизнес-логику учёта заказов, недостач и дозаказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/gioigioi124/elanAI/internal/debt"
	"github.com/gioigioi124/elanAI/internal/events"
	"github.com/gioigioi124/elanAI/internal/model"
	"github.com/gioigioi124/elanAI/internal/repository"
)

const publishTimeout = 5 * time.Second

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	WithTx(ctx context.Context, fn repository.TxFunc) error
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	FindOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, int, error)
	ListOrderIDs(ctx context.Context) ([]uuid.UUID, error)
}

// DebtChecker возвращает сведения о задолженности клиента.
type DebtChecker interface {
	GetStatus(ctx context.Context, customerCode string) (*debt.Status, error)
}

// Service содержит бизнес-логику учёта недостач.
type Service struct {
	repo      Repository
	debt      DebtChecker
	publisher events.Publisher
	metrics   *ledgerMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// Option настраивает необязательные зависимости сервиса.
type Option func(*Service)

// WithDebtChecker подключает сервис задолженности клиентов.
func WithDebtChecker(d DebtChecker) Option {
	return func(s *Service) { s.debt = d }
}

// WithPublisher подключает публикацию событий.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics регистрирует метрики сервиса в указанном реестре.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Service) { s.metrics = newLedgerMetrics(reg) }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:      repo,
		publisher: events.NopPublisher{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = newLedgerMetrics(nil)
	}

	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.repo != nil {
		errs = append(errs, s.repo.Close())
	}
	return errors.Join(errs...)
}

// isOverDebtLimit спрашивает сервис задолженности, превышен ли лимит клиента.
// Недоступность сервиса не блокирует работу с заказами.
func (s *Service) isOverDebtLimit(ctx context.Context, customerCode string) bool {
	st := s.debtStatus(ctx, customerCode)
	return st != nil && st.OverLimit()
}

func (s *Service) debtStatus(ctx context.Context, customerCode string) *debt.Status {
	if s.debt == nil || customerCode == "" {
		return nil
	}

	st, err := s.debt.GetStatus(ctx, customerCode)
	if err != nil {
		if !errors.Is(err, debt.ErrCustomerNotFound) {
			s.logger.Warn("debt status unavailable",
				zap.String("customer_code", customerCode),
				zap.Error(err),
			)
		}
		return nil
	}
	return st
}

// publish отправляет события после фиксации транзакции; ошибки только журналируются.
func (s *Service) publish(ctx context.Context, evts ...events.Event) {
	if len(evts) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.Warn("failed to publish ledger events",
			zap.Int("count", len(evts)),
			zap.Error(err),
		)
	}
}

func shortageEvent(typ events.Type, orderID uuid.UUID, it *model.Item, at time.Time) events.Event {
	return events.Event{
		Type:           typ,
		OrderID:        orderID,
		ItemID:         it.ID,
		ShortageQty:    it.ShortageQty,
		CompensatedQty: it.CompensatedQty,
		Status:         string(it.ShortageStatus),
		OccurredAt:     at,
	}
}

// itemAt возвращает позицию заказа по её порядковому номеру в списке.
func itemAt(o *model.Order, index int) (*model.Item, error) {
	if index < 0 || index >= len(o.Items) {
		return nil, fmt.Errorf("item index %d: %w", index, model.ErrNotFound)
	}
	return &o.Items[index], nil
}

// parseOrderID разбирает идентификатор заказа из внешнего ввода.
func parseOrderID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid order id %q", model.ErrValidation, raw)
	}
	return id, nil
}
