// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gioigioi124/elanAI/internal/model"
)

// IsValidWarehouse проверяет, что код склада входит в перечень допустимых.
func IsValidWarehouse(code string) bool {
	return model.Warehouse(code).Valid()
}

// IsNotPastDate проверяет, что дата не раньше текущего дня в часовом поясе now.
func IsNotPastDate(date, now time.Time) bool {
	return !startOfDay(date.In(now.Location())).Before(startOfDay(now))
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseConfirmValue разбирает значение подтверждения склада.
// Число сохраняется как количество, любая другая строка (например «16h» или «15:30») считается временем.
func ParseConfirmValue(raw string) model.ConfirmValue {
	raw = strings.TrimSpace(raw)

	v, err := decimal.NewFromString(raw)
	if err != nil || raw == "" {
		return model.ConfirmValue{Kind: model.ConfirmScheduled, Raw: raw}
	}

	return model.ConfirmValue{Kind: model.ConfirmNumeric, Raw: raw, Parsed: &v}
}
