package api

import (
	"context"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/service"
)

type PayoutServicer interface {
	ProcessSellerPayout(ctx context.Context, args service.ProcessPayoutArgs) (*domain.Payout, error)
	MarkPayoutFailed(ctx context.Context, payoutID int64) (*domain.Payout, error)
}

type RefundServicer interface {
	RequestRefund(ctx context.Context, args service.RequestRefundArgs) (*domain.Refund, error)
}

type LedgerServicer interface {
	Daybook(ctx context.Context, args service.LedgerPageArgs) (*service.LedgerPage, error)
	Bankbook(ctx context.Context, args service.LedgerPageArgs) (*service.LedgerPage, error)
	Summary(ctx context.Context, args service.LedgerWindowArgs) (*domain.AccountSummary, error)
}
