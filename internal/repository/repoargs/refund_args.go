package repoargs

import (
	"time"

	"github.com/beauzead/settlement/internal/domain"
)

type RefundCreate struct {
	OrderID         int64
	PaymentIntentID string
	Reason          domain.RefundReasonType
	Amount          domain.Money
	Notes           string
	IdempotencyKey  string
}

type RefundResolve struct {
	RefundID       int64
	Status         domain.RefundStatusType
	FailureMessage string
	ResolvedAt     time.Time
}
