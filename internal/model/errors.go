package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound возвращается, если заказ или позиция не найдены.
	ErrNotFound = errors.New("not found")
	// ErrPreconditionFailed возвращается, если состояние позиции не допускает операцию.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrAuthorization возвращается, если у пользователя нет права на операцию.
	ErrAuthorization = errors.New("not authorized")
	// ErrConflict возвращается при конкуренции транзакций, запрос нужно повторить целиком.
	ErrConflict = errors.New("transaction conflict")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
)

// CompensationError описывает позицию дозаказа, из-за которой отклонён весь запрос.
type CompensationError struct {
	Index         int
	SourceOrderID uuid.UUID
	SourceItemID  uuid.UUID
	ProductName   string
	Requested     decimal.Decimal
	Remaining     decimal.Decimal
	Reason        string
	Err           error
}

func (e *CompensationError) Error() string {
	if e.ProductName == "" {
		return fmt.Sprintf("compensation item %d: %s", e.Index+1, e.Reason)
	}
	return fmt.Sprintf("compensation item %d (%q): %s", e.Index+1, e.ProductName, e.Reason)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}
