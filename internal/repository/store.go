// Package repository содержит хранилище заказов: PostgreSQL для работы сервиса и
// хранилище в памяти для разработки и тестов.
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gioigioi124/elanAI/internal/model"
)

// ErrOrderNotFound возвращается, если заказ с указанным идентификатором не найден.
var ErrOrderNotFound = fmt.Errorf("order %w", model.ErrNotFound)

// Tx описывает операции с заказами внутри одной транзакции.
// Заказ, прочитанный через GetOrderForUpdate, заблокирован до конца транзакции.
type Tx interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*model.Order, error)
	InsertOrder(ctx context.Context, order *model.Order) error
	UpdateOrder(ctx context.Context, order *model.Order) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
}

// TxFunc выполняется внутри транзакции; при ошибке транзакция откатывается.
// Функция может быть вызвана повторно, если транзакция столкнулась с конкурентной записью.
type TxFunc func(tx Tx) error
