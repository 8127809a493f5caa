package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID              int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SellerID        int64
	BuyerID         int64
	Status          OrderStatusType
	PaymentStatus   PaymentStatusType
	PaymentIntentID string
	TaxMode         TaxModeType
	Subtotal        Money
	ShippingCost    Money
	TaxAmount       Money
	DiscountAmount  Money
	TotalAmount     Money
	Items           []OrderItem
}

// OrderItem хранит ставки комиссии/сбора/налога слепком с момента оформления заказа.
// Ставки никогда не перечитываются из актуальных правил — иначе исторический сетлмент
// перестанет воспроизводиться после смены тарифов.
type OrderItem struct {
	ID              int64
	OrderID         int64
	ProductID       int64
	Quantity        int32
	UnitPrice       Money
	TaxRate         decimal.NullDecimal
	CommissionRate  decimal.NullDecimal
	PlatformFeeRate decimal.NullDecimal
}

// CheckIntegrity проверяет закон сохранения заказа:
// total_amount == subtotal + shipping_cost + tax_amount - discount_amount.
// Нарушение — это порча данных выше по потоку, возвращается *DataIntegrityError.
func (o *Order) CheckIntegrity() error {
	sum, err := o.Subtotal.Add(o.ShippingCost)
	if err == nil {
		sum, err = sum.Add(o.TaxAmount)
	}
	if err == nil {
		sum, err = sum.Sub(o.DiscountAmount)
	}
	if err != nil {
		return NewDataIntegrityError("order", "order %d: %s", o.ID, err.Error())
	}
	if sum != o.TotalAmount {
		return NewDataIntegrityError(
			"order",
			"order %d: total %s != subtotal %s + shipping %s + tax %s - discount %s",
			o.ID, o.TotalAmount, o.Subtotal, o.ShippingCost, o.TaxAmount, o.DiscountAmount,
		)
	}
	return nil
}

// CapturedAmount возвращает сумму, списанную с покупателя. Определена только для
// заказов с захваченным платежом (включая частично/полностью возвращенные).
func (o *Order) CapturedAmount() (Money, error) {
	switch o.PaymentStatus {
	case PaymentStatusCaptured, PaymentStatusRefunded, PaymentStatusPartiallyRefunded:
		return o.TotalAmount, nil
	default:
		return Money{}, fmt.Errorf("order %d payment status is %s: %w", o.ID, o.PaymentStatus, ErrOrderNotRefundable)
	}
}

type Refund struct {
	ID                int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	OrderID           int64
	PaymentIntentID   string
	Reason            RefundReasonType
	Amount            Money
	Status            RefundStatusType
	ProcessorRefundID string
	FailureMessage    string
	Notes             string
	ResolvedAt        *time.Time
	IdempotencyKey    string
}

// RefundIdempotencyKey строит ключ идемпотентности возврата. Повторная заявка
// с тем же ключом возвращает уже существующую запись, а не создает дубликат.
func RefundIdempotencyKey(orderID int64, paymentIntentID string, amount Money) string {
	return fmt.Sprintf("%d:%s:%d:%s", orderID, paymentIntentID, amount.Amount, amount.Currency)
}

type Payout struct {
	ID               int64
	CreatedAt        time.Time
	SellerID         int64
	PeriodStart      time.Time
	PeriodEnd        time.Time
	GrossEarnings    Money
	PlatformFeeTotal Money
	TaxWithheldTotal Money
	NetPayout        Money
	OrderIDs         []int64
	Status           PayoutStatusType
	ManualOverride   bool
}

type Expense struct {
	ID          int64
	CreatedAt   time.Time
	SellerID    int64
	Category    string
	Description string
	Amount      Money
	// PaidFromBank отличает траты с расчетного счета от кассовых: банковская книга
	// строится только по записям, затрагивающим счет.
	PaidFromBank bool
	IncurredAt   time.Time
}

// LedgerEntry — производная запись журнала. Не хранится отдельно: дневник, банковская
// книга и сводка всегда выводятся из одного и того же набора записей.
type LedgerEntry struct {
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Debit         Money           `json:"debit"`
	Credit        Money           `json:"credit"`
	Balance       Money           `json:"balance"`
	SourceType    EntrySourceType `json:"source_type"`
	SourceID      int64           `json:"source_id"`
	BankAffecting bool            `json:"bank_affecting"`
}

type AccountSummary struct {
	Currency      string `json:"currency"`
	TotalRevenue  Money  `json:"total_revenue"`
	TotalExpenses Money  `json:"total_expenses"`
	TotalPayouts  Money  `json:"total_payouts"`
	TotalTaxes    Money  `json:"total_taxes"`
	NetProfit     Money  `json:"net_profit"`
}

// CheckInvariant проверяет, что net_profit действительно равен
// revenue - expenses - payouts - taxes. Равенство не предполагается, а проверяется.
func (s *AccountSummary) CheckInvariant() error {
	profit, err := s.TotalRevenue.Sub(s.TotalExpenses)
	if err == nil {
		profit, err = profit.Sub(s.TotalPayouts)
	}
	if err == nil {
		profit, err = profit.Sub(s.TotalTaxes)
	}
	if err != nil {
		return NewDataIntegrityError("account_summary", "%s", err.Error())
	}
	if profit != s.NetProfit {
		return NewDataIntegrityError(
			"account_summary",
			"net profit %s != revenue %s - expenses %s - payouts %s - taxes %s",
			s.NetProfit, s.TotalRevenue, s.TotalExpenses, s.TotalPayouts, s.TotalTaxes,
		)
	}
	return nil
}
