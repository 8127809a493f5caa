package repoargs

import (
	"time"

	"github.com/beauzead/settlement/internal/domain"
)

type PayoutCreate struct {
	SellerID         int64
	PeriodStart      time.Time
	PeriodEnd        time.Time
	GrossEarnings    domain.Money
	PlatformFeeTotal domain.Money
	TaxWithheldTotal domain.Money
	NetPayout        domain.Money
	OrderIDs         []int64
	Status           domain.PayoutStatusType
	ManualOverride   bool
}
