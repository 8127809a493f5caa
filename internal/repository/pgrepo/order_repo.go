package pgrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
	"github.com/beauzead/settlement/pkg/uow"
)

const orderColumns = `id, created_at, updated_at, seller_id, buyer_id, status, payment_status,
payment_intent_id, tax_mode, currency, subtotal, shipping_cost, tax_amount, discount_amount, total_amount`

type OrderRepository struct {
	db uow.DBTX
}

func NewOrderRepository(db uow.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetEligibleForSettlement возвращает заказы продавца, готовые к выплате: доставленные,
// с захваченным платежом, попавшие в окно по updated_at и не включенные ни в одну
// не проваленную выплату. Блокирует строки (FOR UPDATE) — метод вызывается только
// внутри транзакции расчета выплаты, чтобы конкурентные расчеты сериализовались.
func (o *OrderRepository) GetEligibleForSettlement(
	ctx context.Context,
	w repoargs.SettlementWindow,
) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.seller_id = $1
		  AND o.status = $2
		  AND o.payment_status = $3
		  AND o.updated_at >= $4
		  AND o.updated_at < $5
		  AND NOT EXISTS (
			SELECT 1
			FROM payout_orders po
			JOIN payouts p ON p.id = po.payout_id
			WHERE po.order_id = o.id AND p.status <> $6
		  )
		ORDER BY o.updated_at, o.id
		FOR UPDATE OF o`

	rows, err := o.db.Query(ctx, query,
		w.SellerID,
		domain.OrderStatusDelivered,
		domain.PaymentStatusCaptured,
		w.From,
		w.To,
		domain.PayoutStatusFailed,
	)
	if err != nil {
		return nil, convertErr(err, "getting eligible orders for seller %d", w.SellerID)
	}
	defer rows.Close()

	orders, scanErr := scanOrders(rows)
	if scanErr != nil {
		return nil, convertErr(scanErr, "scanning eligible orders for seller %d", w.SellerID)
	}

	if itemsErr := o.loadItems(ctx, orders); itemsErr != nil {
		return nil, itemsErr
	}
	return orders, nil
}

// FindByID возвращает заказ вместе с позициями.
func (o *OrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	row := o.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "finding order by id %d", id)
	}

	orders := []domain.Order{*order}
	if itemsErr := o.loadItems(ctx, orders); itemsErr != nil {
		return nil, itemsErr
	}
	return &orders[0], nil
}

// LockByID читает заказ с блокировкой строки. Используется внутри транзакции возврата:
// проверка лимита возвратов и вставка заявки должны быть атомарными.
func (o *OrderRepository) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	row := o.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE OF o`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, convertErr(err, "locking order by id %d", id)
	}

	orders := []domain.Order{*order}
	if itemsErr := o.loadItems(ctx, orders); itemsErr != nil {
		return nil, itemsErr
	}
	return &orders[0], nil
}

func (o *OrderRepository) UpdatePaymentStatus(
	ctx context.Context,
	orderID int64,
	status domain.PaymentStatusType,
) error {
	tag, err := o.db.Exec(ctx,
		`UPDATE orders SET payment_status = $1, updated_at = now() WHERE id = $2`,
		status, orderID,
	)
	if err != nil {
		return convertErr(err, "updating payment status for order %d", orderID)
	}
	if tag.RowsAffected() == 0 {
		return convertErr(errNoRowsAffected, "updating payment status for order %d", orderID)
	}
	return nil
}

// GetCapturedByWindow возвращает заказы с захваченным (в том числе возвращенным) платежом
// для журнальных проекций. Позиции не загружаются — проекции оперируют итогами заказа.
func (o *OrderRepository) GetCapturedByWindow(
	ctx context.Context,
	w repoargs.LedgerWindow,
) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.payment_status = ANY($1)
		  AND o.updated_at >= $2
		  AND o.updated_at < $3
		  AND ($4::bigint = 0 OR o.seller_id = $4)
		ORDER BY o.updated_at, o.id`

	statuses := []string{
		string(domain.PaymentStatusCaptured),
		string(domain.PaymentStatusRefunded),
		string(domain.PaymentStatusPartiallyRefunded),
	}

	rows, err := o.db.Query(ctx, query, statuses, w.From, w.To, w.SellerID)
	if err != nil {
		return nil, convertErr(err, "getting captured orders for window")
	}
	defer rows.Close()

	orders, scanErr := scanOrders(rows)
	if scanErr != nil {
		return nil, convertErr(scanErr, "scanning captured orders for window")
	}
	return orders, nil
}

// loadItems дозагружает позиции для выбранных заказов одним запросом.
func (o *OrderRepository) loadItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Order, len(orders))
	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	query := `
		SELECT i.id, i.order_id, i.product_id, i.quantity, i.unit_price, o.currency,
		       i.tax_rate::text, i.commission_rate::text, i.platform_fee_rate::text
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.id`

	rows, err := o.db.Query(ctx, query, ids)
	if err != nil {
		return convertErr(err, "loading order items")
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		var unitPrice int64
		var currency string
		var taxRate, commissionRate, platformFeeRate sql.NullString

		if scanErr := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
			&unitPrice, &currency, &taxRate, &commissionRate, &platformFeeRate,
		); scanErr != nil {
			return convertErr(scanErr, "scanning order item")
		}

		item.UnitPrice = domain.NewMoney(unitPrice, currency)

		var rateErr error
		if item.TaxRate, rateErr = parseNullRate(taxRate); rateErr != nil {
			return convertErr(rateErr, "parsing tax rate for item %d", item.ID)
		}
		if item.CommissionRate, rateErr = parseNullRate(commissionRate); rateErr != nil {
			return convertErr(rateErr, "parsing commission rate for item %d", item.ID)
		}
		if item.PlatformFeeRate, rateErr = parseNullRate(platformFeeRate); rateErr != nil {
			return convertErr(rateErr, "parsing platform fee rate for item %d", item.ID)
		}

		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	return convertErr(rows.Err(), "iterating order items")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var currency string
	var subtotal, shipping, tax, discount, total int64
	var createdAt, updatedAt time.Time

	if err := row.Scan(
		&order.ID, &createdAt, &updatedAt, &order.SellerID, &order.BuyerID,
		&order.Status, &order.PaymentStatus, &order.PaymentIntentID, &order.TaxMode,
		&currency, &subtotal, &shipping, &tax, &discount, &total,
	); err != nil {
		return nil, err
	}

	order.CreatedAt = createdAt
	order.UpdatedAt = updatedAt
	order.Subtotal = domain.NewMoney(subtotal, currency)
	order.ShippingCost = domain.NewMoney(shipping, currency)
	order.TaxAmount = domain.NewMoney(tax, currency)
	order.DiscountAmount = domain.NewMoney(discount, currency)
	order.TotalAmount = domain.NewMoney(total, currency)
	return &order, nil
}

type pgxRows interface {
	rowScanner
	Next() bool
	Err() error
}

func scanOrders(rows pgxRows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func parseNullRate(val sql.NullString) (decimal.NullDecimal, error) {
	if !val.Valid {
		return decimal.NullDecimal{}, nil
	}
	rate, err := decimal.NewFromString(val.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: rate, Valid: true}, nil
}
