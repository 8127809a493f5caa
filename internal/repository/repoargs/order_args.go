package repoargs

import (
	"time"
)

// SettlementWindow задает окно выборки для сетлмента: заказы продавца,
// у которых updated_at попадает в [From, To).
type SettlementWindow struct {
	SellerID int64
	From     time.Time
	To       time.Time
}

// LedgerWindow — окно для построения журнальных проекций. SellerID == 0 означает
// выборку по всем продавцам.
type LedgerWindow struct {
	SellerID int64
	From     time.Time
	To       time.Time
}
