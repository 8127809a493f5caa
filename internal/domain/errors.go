package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrUnknown        = errors.New("unknown error")

	ErrCurrencyMismatch      = errors.New("currency mismatch")
	ErrMissingCommissionRate = errors.New("missing commission rate")
	ErrRefundExceedsCaptured = errors.New("refund exceeds captured amount")
	ErrOrderNotRefundable    = errors.New("order is not refundable")
	ErrNoEligibleOrders      = errors.New("no eligible orders for payout")
	ErrNegativePayout        = errors.New("computed payout is negative")
	ErrPaymentIntentMismatch = errors.New("payment intent does not match order")

	// ErrPayoutConflict означает, что конкурентный расчет уже включил один из заказов
	// в другую выплату. Повторный вызов безопасен: заказы будут перечитаны заново.
	ErrPayoutConflict = errors.New("order already settled by a concurrent payout")
)

// DataIntegrityError сигнализирует о повреждении данных выше по потоку
// (нарушен инвариант заказа, не сходится сводка и т.д.). Такие ошибки никогда
// не исправляются автоматически — только журналируются и отдаются оператору.
type DataIntegrityError struct {
	Subject string
	Detail  string
}

func NewDataIntegrityError(subject, format string, args ...any) error {
	return &DataIntegrityError{
		Subject: subject,
		Detail:  fmt.Sprintf(format, args...),
	}
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error [%s]: %s", e.Subject, e.Detail)
}
