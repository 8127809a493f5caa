package repoargs

import (
	"time"

	"github.com/beauzead/settlement/internal/domain"
)

type ExpenseCreate struct {
	SellerID     int64
	Category     string
	Description  string
	Amount       domain.Money
	PaidFromBank bool
	IncurredAt   time.Time
}
