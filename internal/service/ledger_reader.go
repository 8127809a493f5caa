package service

import (
	"fmt"

	"context"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
)

// LedgerReader собирает сырье для сетлмента: подходящие заказы продавца, их успешные
// возвраты и траты за окно. Проверка "заказ еще не включен в не проваленную выплату"
// выполняется на уровне запроса и гарантирует, что заказ попадет максимум в одну выплату.
type LedgerReader struct {
	orders   OrderRepository
	refunds  RefundRepository
	expenses ExpenseRepository
}

func NewLedgerReader(orders OrderRepository, refunds RefundRepository, expenses ExpenseRepository) *LedgerReader {
	return &LedgerReader{
		orders:   orders,
		refunds:  refunds,
		expenses: expenses,
	}
}

// SettlementBatch — нормализованный набор записей для одного расчета выплаты.
type SettlementBatch struct {
	Orders          []domain.Order
	RefundedByOrder map[int64]domain.Money
	Expenses        []domain.Expense
}

// ReadSettlementWindow возвращает заказы окна вместе с суммами успешных возвратов
// по каждому заказу. Каждый заказ проходит проверку закона сохранения: выплата
// по заведомо битым данным не считается.
func (r *LedgerReader) ReadSettlementWindow(
	ctx context.Context,
	w repoargs.SettlementWindow,
) (*SettlementBatch, error) {
	orders, ordersErr := r.orders.GetEligibleForSettlement(ctx, w)
	if ordersErr != nil {
		return nil, fmt.Errorf("reading settlement window: %w", ordersErr)
	}

	orderIDs := make([]int64, len(orders))
	for i := range orders {
		if integrityErr := orders[i].CheckIntegrity(); integrityErr != nil {
			return nil, integrityErr
		}
		orderIDs[i] = orders[i].ID
	}

	refunds, refundsErr := r.refunds.GetSucceededByOrderIDs(ctx, orderIDs)
	if refundsErr != nil {
		return nil, fmt.Errorf("reading settlement window: %w", refundsErr)
	}

	refundedByOrder := make(map[int64]domain.Money, len(refunds))
	for _, refund := range refunds {
		total, ok := refundedByOrder[refund.OrderID]
		if !ok {
			refundedByOrder[refund.OrderID] = refund.Amount
			continue
		}
		sum, sumErr := total.Add(refund.Amount)
		if sumErr != nil {
			return nil, fmt.Errorf("summing refunds for order %d: %w", refund.OrderID, sumErr)
		}
		refundedByOrder[refund.OrderID] = sum
	}

	expenses, expensesErr := r.expenses.GetByWindow(ctx, repoargs.LedgerWindow{
		SellerID: w.SellerID,
		From:     w.From,
		To:       w.To,
	})
	if expensesErr != nil {
		return nil, fmt.Errorf("reading settlement window: %w", expensesErr)
	}

	return &SettlementBatch{
		Orders:          orders,
		RefundedByOrder: refundedByOrder,
		Expenses:        expenses,
	}, nil
}
