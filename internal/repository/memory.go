package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gioigioi124/elanAI/internal/model"
)

// errOrderExists возвращается при повторной вставке заказа с тем же идентификатором.
var errOrderExists = errors.New("order already exists")

// MemoryRepository хранит заказы в памяти процесса.
// Транзакции выполняются строго по одной и применяются целиком при успешном завершении.
type MemoryRepository struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	orders map[uuid.UUID]*model.Order
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[uuid.UUID]*model.Order)}
}

// Close ничего не делает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// WithTx выполняет fn, накапливая изменения в отдельной копии, и применяет их только при успехе.
func (r *MemoryRepository) WithTx(ctx context.Context, fn TxFunc) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{repo: r, staged: make(map[uuid.UUID]*model.Order)}
	if err := fn(tx); err != nil {
		return err
	}

	// Отменённый запрос не должен оставить частичных изменений.
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, o := range tx.staged {
		if o == nil {
			delete(r.orders, id)
			continue
		}
		r.orders[id] = o
	}

	return nil
}

// GetOrder возвращает копию заказа.
func (r *MemoryRepository) GetOrder(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// FindOrders возвращает заказы по фильтру в том же порядке, что и PostgresRepository.
func (r *MemoryRepository) FindOrders(_ context.Context, filter model.OrderFilter) ([]model.Order, int, error) {
	r.mu.RLock()
	var matched []model.Order
	for _, o := range r.orders {
		if matchOrder(o, filter) {
			matched = append(matched, *o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OrderDate.Equal(matched[j].OrderDate) {
			return matched[i].OrderDate.After(matched[j].OrderDate)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if filter.Limit > 0 {
		start := min(max(filter.Offset, 0), total)
		end := start + min(filter.Limit, total-start)
		matched = matched[start:end]
	}

	return matched, total, nil
}

// ListOrderIDs возвращает идентификаторы всех заказов в порядке создания.
func (r *MemoryRepository) ListOrderIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	orders := make([]*model.Order, 0, len(r.orders))
	for _, o := range r.orders {
		orders = append(orders, o)
	}
	r.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids, nil
}

type memTx struct {
	repo *MemoryRepository
	// staged хранит изменённые заказы; nil означает удаление.
	staged map[uuid.UUID]*model.Order
}

func (t *memTx) lookup(id uuid.UUID) (*model.Order, bool) {
	if o, ok := t.staged[id]; ok {
		return o, o != nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	o, ok := t.repo.orders[id]
	return o, ok
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := t.lookup(id)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (t *memTx) InsertOrder(_ context.Context, order *model.Order) error {
	if _, ok := t.lookup(order.ID); ok {
		return errOrderExists
	}
	t.staged[order.ID] = order.Clone()
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, order *model.Order) error {
	if _, ok := t.lookup(order.ID); !ok {
		return ErrOrderNotFound
	}
	t.staged[order.ID] = order.Clone()
	return nil
}

func (t *memTx) DeleteOrder(_ context.Context, id uuid.UUID) error {
	if _, ok := t.lookup(id); !ok {
		return ErrOrderNotFound
	}
	t.staged[id] = nil
	return nil
}

func matchOrder(o *model.Order, f model.OrderFilter) bool {
	if name := strings.TrimSpace(f.CustomerName); name != "" &&
		!strings.Contains(strings.ToLower(o.Customer.Name), strings.ToLower(name)) {
		return false
	}
	if f.CustomerCode != "" && o.Customer.Code != f.CustomerCode {
		return false
	}
	if f.VehicleID != "" && (o.VehicleID == nil || *o.VehicleID != f.VehicleID) {
		return false
	}
	if f.Assigned != nil && *f.Assigned != (o.VehicleID != nil) {
		return false
	}
	if f.CreatedBy != "" && o.CreatedBy != f.CreatedBy {
		return false
	}
	if f.FromDate != nil && o.OrderDate.Before(*f.FromDate) {
		return false
	}
	if f.ToDate != nil && o.OrderDate.After(*f.ToDate) {
		return false
	}
	if f.OpenShortageOnly && !hasItem(o, func(it *model.Item) bool {
		return it.ShortageStatus == model.ShortageOpen && it.RemainingShortage().IsPositive()
	}) {
		return false
	}
	if f.LeaderConfirmedOnly && !hasItem(o, func(it *model.Item) bool { return it.LeaderConfirm != nil }) {
		return false
	}
	if f.Warehouse != "" && !hasItem(o, func(it *model.Item) bool { return it.Warehouse == f.Warehouse }) {
		return false
	}
	return true
}

func hasItem(o *model.Order, pred func(*model.Item) bool) bool {
	for i := range o.Items {
		if pred(&o.Items[i]) {
			return true
		}
	}
	return false
}
