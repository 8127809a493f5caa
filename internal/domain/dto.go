package domain

type OrderStatusType string

const (
	OrderStatusPending    OrderStatusType = "pending"
	OrderStatusProcessing OrderStatusType = "processing"
	OrderStatusShipped    OrderStatusType = "shipped"
	OrderStatusDelivered  OrderStatusType = "delivered"
	OrderStatusCancelled  OrderStatusType = "cancelled"
)

type PaymentStatusType string

const (
	PaymentStatusUnpaid            PaymentStatusType = "unpaid"
	PaymentStatusAuthorized        PaymentStatusType = "authorized"
	PaymentStatusCaptured          PaymentStatusType = "captured"
	PaymentStatusRefunded          PaymentStatusType = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatusType = "partially_refunded"
)

type RefundStatusType string

const (
	RefundStatusRequested  RefundStatusType = "requested"
	RefundStatusProcessing RefundStatusType = "processing"
	RefundStatusSucceeded  RefundStatusType = "succeeded"
	RefundStatusFailed     RefundStatusType = "failed"
)

type RefundReasonType string

const (
	RefundReasonDuplicate           RefundReasonType = "duplicate"
	RefundReasonFraudulent          RefundReasonType = "fraudulent"
	RefundReasonRequestedByCustomer RefundReasonType = "requested_by_customer"
	RefundReasonAbandoned           RefundReasonType = "abandoned"
)

type PayoutStatusType string

const (
	PayoutStatusPending   PayoutStatusType = "pending"
	PayoutStatusCompleted PayoutStatusType = "completed"
	PayoutStatusFailed    PayoutStatusType = "failed"
)

// TaxModeType определяет базу расчета налога при сетлменте: от валовой суммы позиции
// или от суммы за вычетом комиссий. Снимается слепком на заказ при оформлении.
type TaxModeType string

const (
	TaxModeGross TaxModeType = "gross"
	TaxModeNet   TaxModeType = "net"
)

type EntrySourceType string

const (
	EntrySourceOrder   EntrySourceType = "order"
	EntrySourceRefund  EntrySourceType = "refund"
	EntrySourceExpense EntrySourceType = "expense"
	EntrySourcePayout  EntrySourceType = "payout"
	EntrySourceTax     EntrySourceType = "tax"
)
