package service

import (
	"context"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
)

type OrderRepository interface {
	GetEligibleForSettlement(ctx context.Context, w repoargs.SettlementWindow) ([]domain.Order, error)
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	LockByID(ctx context.Context, id int64) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, status domain.PaymentStatusType) error
	GetCapturedByWindow(ctx context.Context, w repoargs.LedgerWindow) ([]domain.Order, error)
}

type RefundRepository interface {
	Create(ctx context.Context, args repoargs.RefundCreate) (*domain.Refund, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Refund, error)
	FindByID(ctx context.Context, id int64) (*domain.Refund, error)
	MarkProcessing(ctx context.Context, refundID int64, processorRefundID string) (*domain.Refund, error)
	Resolve(ctx context.Context, args repoargs.RefundResolve) (*domain.Refund, error)
	ReservedAmount(ctx context.Context, orderID int64) (int64, error)
	SucceededAmount(ctx context.Context, orderID int64) (int64, error)
	GetSucceededByOrderIDs(ctx context.Context, orderIDs []int64) ([]domain.Refund, error)
	GetProcessing(ctx context.Context, limit uint) ([]domain.Refund, error)
	GetSucceededByWindow(ctx context.Context, w repoargs.LedgerWindow) ([]domain.Refund, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, args repoargs.PayoutCreate) (*domain.Payout, error)
	MarkFailed(ctx context.Context, payoutID int64) (*domain.Payout, error)
	GetCompletedByWindow(ctx context.Context, w repoargs.LedgerWindow) ([]domain.Payout, error)
}

type ExpenseRepository interface {
	Create(ctx context.Context, args repoargs.ExpenseCreate) (*domain.Expense, error)
	GetByWindow(ctx context.Context, w repoargs.LedgerWindow) ([]domain.Expense, error)
}

// PaymentProcessor — внешний платежный процессор. Исполнение возврата идемпотентно
// по ключу: повторная отправка с тем же ключом не создает второй возврат.
type PaymentProcessor interface {
	SubmitRefund(ctx context.Context, args SubmitRefundArgs) (*ProcessorRefund, error)
}

type SubmitRefundArgs struct {
	IdempotencyKey  string
	PaymentIntentID string
	Amount          domain.Money
	Reason          domain.RefundReasonType
}

type ProcessorRefund struct {
	ID             string
	Status         domain.RefundStatusType
	FailureMessage string
}
