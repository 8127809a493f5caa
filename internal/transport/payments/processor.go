package payments

import (
	"context"
	"fmt"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/service"
	"github.com/beauzead/settlement/internal/transport/payments/client"
)

// Processor адаптирует HTTP клиента процессора к сервисному слою: переводит
// статусы процессора в доменные и скрывает формат запроса.
type Processor struct {
	client Client
}

func NewProcessor(apiBaseURL string) *Processor {
	return &Processor{client: client.New(apiBaseURL)}
}

func NewProcessorWithClient(c Client) *Processor {
	return &Processor{client: c}
}

func (p *Processor) SubmitRefund(
	ctx context.Context,
	args service.SubmitRefundArgs,
) (*service.ProcessorRefund, error) {
	resp, err := p.client.SubmitRefund(ctx, args.IdempotencyKey, client.RefundRequest{
		PaymentIntentID: args.PaymentIntentID,
		Amount:          args.Amount.Amount,
		Currency:        args.Amount.Currency,
		Reason:          string(args.Reason),
	})
	if err != nil {
		return nil, fmt.Errorf("submit refund: %w", err)
	}

	return &service.ProcessorRefund{
		ID:             resp.ID,
		Status:         mapStatus(resp.Status),
		FailureMessage: resp.FailureReason,
	}, nil
}

// mapStatus переводит статус процессора в доменный статус возврата.
func mapStatus(status client.StatusType) domain.RefundStatusType {
	switch status {
	case client.StatusSucceeded:
		return domain.RefundStatusSucceeded
	case client.StatusFailed, client.StatusCanceled:
		return domain.RefundStatusFailed
	default:
		return domain.RefundStatusProcessing
	}
}
