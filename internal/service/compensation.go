package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
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

// sourceLedger держит заблокированные исходные заказы в пределах одной транзакции,
// чтобы несколько позиций дозаказа по одной исходной позиции учитывались нарастающим итогом.
type sourceLedger struct {
	tx     repository.Tx
	ids    []uuid.UUID
	orders map[uuid.UUID]*model.Order
}

// lockSources блокирует все исходные заказы в порядке возрастания идентификаторов.
func lockSources(ctx context.Context, tx repository.Tx, reqs []model.CompensationRequest) (*sourceLedger, error) {
	l := &sourceLedger{tx: tx, orders: make(map[uuid.UUID]*model.Order)}

	firstIndex := make(map[uuid.UUID]int)
	for i, r := range reqs {
		if _, ok := firstIndex[r.SourceOrderID]; !ok {
			firstIndex[r.SourceOrderID] = i
			l.ids = append(l.ids, r.SourceOrderID)
		}
	}
	sort.Slice(l.ids, func(i, j int) bool {
		return bytes.Compare(l.ids[i][:], l.ids[j][:]) < 0
	})

	for _, id := range l.ids {
		o, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				r := reqs[firstIndex[id]]
				return nil, &model.CompensationError{
					Index:         firstIndex[id],
					SourceOrderID: id,
					SourceItemID:  r.SourceItemID,
					ProductName:   r.ProductName,
					Requested:     r.Quantity,
					Reason:        "source order not found",
					Err:           model.ErrNotFound,
				}
			}
			return nil, fmt.Errorf("lock source order %s: %w", id, err)
		}
		l.orders[id] = o
	}

	return l, nil
}

// apply списывает количество запроса с остатка недостачи исходной позиции.
func (l *sourceLedger) apply(index int, r model.CompensationRequest) (*model.Item, error) {
	o := l.orders[r.SourceOrderID]
	src, ok := o.ItemByID(r.SourceItemID)
	if !ok {
		return nil, &model.CompensationError{
			Index:         index,
			SourceOrderID: r.SourceOrderID,
			SourceItemID:  r.SourceItemID,
			ProductName:   r.ProductName,
			Requested:     r.Quantity,
			Reason:        "source item not found",
			Err:           model.ErrNotFound,
		}
	}

	if err := ledger.ApplyCompensation(src, r.Quantity); err != nil {
		return nil, &model.CompensationError{
			Index:         index,
			SourceOrderID: r.SourceOrderID,
			SourceItemID:  r.SourceItemID,
			ProductName:   src.ProductName,
			Requested:     r.Quantity,
			Remaining:     src.RemainingShortage(),
			Reason:        err.Error(),
			Err:           err,
		}
	}

	return src, nil
}

// save сохраняет все изменённые исходные заказы.
func (l *sourceLedger) save(ctx context.Context, now time.Time) error {
	for _, id := range l.ids {
		o := l.orders[id]
		o.UpdatedAt = now
		if err := l.tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update source order %s: %w", id, err)
		}
	}
	return nil
}

// compensationItem создаёт позицию дозаказа; неуказанные описательные поля берутся из исходной позиции.
func compensationItem(r model.CompensationRequest, src *model.Item, stt int) model.Item {
	sourceOrderID, sourceItemID := r.SourceOrderID, r.SourceItemID

	it := model.Item{
		ID:            uuid.New(),
		Stt:           stt,
		ProductName:   firstNonEmpty(r.ProductName, src.ProductName),
		Size:          firstNonEmpty(r.Size, src.Size),
		Unit:          firstNonEmpty(r.Unit, src.Unit),
		Quantity:      r.Quantity,
		Warehouse:     src.Warehouse,
		CmQty:         r.CmQty,
		Note:          r.Note,
		SourceOrderID: &sourceOrderID,
		SourceItemID:  &sourceItemID,
	}
	if r.Warehouse != "" {
		it.Warehouse = r.Warehouse
	}
	if !it.CmQty.IsPositive() && src.CmQtyPerUnit.IsPositive() {
		it.CmQty = r.Quantity.Mul(src.CmQtyPerUnit)
	}
	if it.CmQty.IsPositive() && it.Quantity.IsPositive() {
		it.CmQtyPerUnit = it.CmQty.Div(it.Quantity)
	}

	ledger.ResetShortage(&it)
	return it
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func validateCompensationRequest(index int, r model.CompensationRequest) error {
	fail := func(reason string) error {
		return &model.CompensationError{
			Index:         index,
			SourceOrderID: r.SourceOrderID,
			SourceItemID:  r.SourceItemID,
			ProductName:   r.ProductName,
			Requested:     r.Quantity,
			Reason:        reason,
			Err:           model.ErrValidation,
		}
	}

	switch {
	case r.SourceOrderID == uuid.Nil || r.SourceItemID == uuid.Nil:
		return fail("source order and item are required")
	case !r.Quantity.IsPositive():
		return fail("quantity must be greater than zero")
	case r.Warehouse != "" && !validation.IsValidWarehouse(string(r.Warehouse)):
		return fail(fmt.Sprintf("unknown warehouse %q", r.Warehouse))
	case r.CmQty.IsNegative():
		return fail("cmQty must not be negative")
	}
	return nil
}

func compensatedEvents(compOrderID uuid.UUID, reqs []model.CompensationRequest, sources []model.Item, at time.Time) []events.Event {
	evts := make([]events.Event, 0, len(reqs))
	for i, r := range reqs {
		e := shortageEvent(events.ShortageCompensated, r.SourceOrderID, &sources[i], at)
		id, qty := compOrderID, r.Quantity
		e.CompensationOrderID = &id
		e.Quantity = &qty
		evts = append(evts, e)
	}
	return evts
}

// CreateCompensationOrder создаёт заказ-дозаказ и списывает его позиции с недостач исходных позиций.
// Все проверки и изменения выполняются в одной транзакции: при ошибке в любой позиции
// не изменяется ни один заказ, а ошибка *model.CompensationError указывает на эту позицию.
func (s *Service) CreateCompensationOrder(ctx context.Context, in model.CompensationInput) (*model.Order, error) {
	created, err := s.createCompensationOrder(ctx, in)
	s.metrics.compensation(err)
	return created, err
}

func (s *Service) createCompensationOrder(ctx context.Context, in model.CompensationInput) (*model.Order, error) {
	now := s.now()

	orderDate, err := s.checkOrderHeader(in.Customer, in.OrderDate, now)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: compensation order must contain at least one item", model.ErrValidation)
	}
	for i, r := range in.Items {
		if err := validateCompensationRequest(i, r); err != nil {
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

		led, err := lockSources(ctx, tx, in.Items)
		if err != nil {
			return err
		}

		order := &model.Order{
			ID:                  uuid.New(),
			Customer:            in.Customer,
			IsCompensationOrder: true,
			IsOverDebtLimit:     overDebt,
			OrderDate:           orderDate,
			CreatedBy:           in.CreatedBy,
			CreatedAt:           now,
			UpdatedAt:           now,
		}

		for i, r := range in.Items {
			src, err := led.apply(i, r)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, compensationItem(r, src, i+1))
			sources = append(sources, *src)
		}

		if err := led.save(ctx, now); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert compensation order: %w", err)
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, r := range in.Items {
		total = total.Add(r.Quantity)
	}
	s.metrics.compensatedQty.Add(total.InexactFloat64())

	s.logger.Info("compensation order created",
		zap.String("order_id", created.ID.String()),
		zap.Int("items", len(created.Items)),
		zap.String("customer_code", created.Customer.Code),
	)
	s.publish(ctx, compensatedEvents(created.ID, in.Items, sources, now)...)

	return created, nil
}

// IgnoreShortage помечает недостачу позиции как не требующую покрытия.
func (s *Service) IgnoreShortage(ctx context.Context, orderID, itemID uuid.UUID) (*model.Order, error) {
	var updated *model.Order

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		it, ok := o.ItemByID(itemID)
		if !ok {
			return fmt.Errorf("item %s: %w", itemID, model.ErrNotFound)
		}
		if err := ledger.Ignore(it); err != nil {
			return err
		}

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

	it, _ := updated.ItemByID(itemID)
	s.publish(ctx, shortageEvent(events.ShortageIgnored, updated.ID, it, updated.UpdatedAt))

	return updated, nil
}
