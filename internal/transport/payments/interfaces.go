package payments

import (
	"context"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/service"
	"github.com/beauzead/settlement/internal/transport/payments/client"
)

type Client interface {
	SubmitRefund(ctx context.Context, idempotencyKey string, refund client.RefundRequest) (*client.RefundResponse, error)
	GetRefund(ctx context.Context, processorRefundID string) (*client.RefundResponse, error)
}

type Servicer interface {
	ProcessingRefunds(ctx context.Context, limit uint) ([]domain.Refund, error)
	ResolveRefunds(ctx context.Context, updates []service.RefundResolutionArgs) error
}
