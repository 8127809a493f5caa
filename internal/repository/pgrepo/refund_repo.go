package pgrepo

import (
	"context"
	"database/sql"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
	"github.com/beauzead/settlement/pkg/uow"
)

const refundColumns = `id, created_at, updated_at, order_id, payment_intent_id, reason, amount, currency,
status, COALESCE(processor_refund_id, ''), COALESCE(failure_message, ''), COALESCE(notes, ''), resolved_at, idempotency_key`

type RefundRepository struct {
	db uow.DBTX
}

func NewRefundRepository(db uow.DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

// Create вставляет заявку на возврат в статусе requested. Уникальный индекс по
// idempotency_key гарантирует ровно одну запись на ключ: проигравший гонку получает
// ErrDuplicateKey и читает запись победителя.
func (r *RefundRepository) Create(ctx context.Context, args repoargs.RefundCreate) (*domain.Refund, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO refunds (order_id, payment_intent_id, reason, amount, currency, status, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+refundColumns,
		args.OrderID, args.PaymentIntentID, args.Reason, args.Amount.Amount, args.Amount.Currency,
		domain.RefundStatusRequested, args.Notes, args.IdempotencyKey,
	)
	refund, err := scanRefund(row)
	if err != nil {
		return nil, convertErr(err, "creating refund with key `%s`", args.IdempotencyKey)
	}
	return refund, nil
}

func (r *RefundRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Refund, error) {
	row := r.db.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE idempotency_key = $1`, key)
	refund, err := scanRefund(row)
	if err != nil {
		return nil, convertErr(err, "finding refund by key `%s`", key)
	}
	return refund, nil
}

func (r *RefundRepository) FindByID(ctx context.Context, id int64) (*domain.Refund, error) {
	row := r.db.QueryRow(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = $1`, id)
	refund, err := scanRefund(row)
	if err != nil {
		return nil, convertErr(err, "finding refund by id %d", id)
	}
	return refund, nil
}

// MarkProcessing переводит requested -> processing после отправки в платежный процессор.
// Условие по статусу в WHERE защищает от повторного перевода: для уже переведенной
// записи вернется ErrRecordNotFound.
func (r *RefundRepository) MarkProcessing(
	ctx context.Context,
	refundID int64,
	processorRefundID string,
) (*domain.Refund, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE refunds
		SET status = $1, processor_refund_id = $2, updated_at = now()
		WHERE id = $3 AND status = $4
		RETURNING `+refundColumns,
		domain.RefundStatusProcessing, processorRefundID, refundID, domain.RefundStatusRequested,
	)
	refund, err := scanRefund(row)
	if err != nil {
		return nil, convertErr(err, "marking refund %d processing", refundID)
	}
	return refund, nil
}

// Resolve переводит processing в терминальный статус. Терминальные записи не трогаются.
func (r *RefundRepository) Resolve(ctx context.Context, args repoargs.RefundResolve) (*domain.Refund, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE refunds
		SET status = $1, failure_message = NULLIF($2, ''), resolved_at = $3, updated_at = now()
		WHERE id = $4 AND status = $5
		RETURNING `+refundColumns,
		args.Status, args.FailureMessage, args.ResolvedAt, args.RefundID, domain.RefundStatusProcessing,
	)
	refund, err := scanRefund(row)
	if err != nil {
		return nil, convertErr(err, "resolving refund %d", args.RefundID)
	}
	return refund, nil
}

// ReservedAmount возвращает сумму всех не проваленных возвратов заказа
// (requested + processing + succeeded). Именно она сравнивается с захваченной суммой
// при проверке лимита — иначе две конкурентные заявки прошли бы проверку вдвоем.
func (r *RefundRepository) ReservedAmount(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE order_id = $1 AND status <> $2`,
		orderID, domain.RefundStatusFailed,
	).Scan(&total)
	if err != nil {
		return 0, convertErr(err, "summing reserved refunds for order %d", orderID)
	}
	return total, nil
}

// SucceededAmount возвращает сумму успешных возвратов заказа.
func (r *RefundRepository) SucceededAmount(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE order_id = $1 AND status = $2`,
		orderID, domain.RefundStatusSucceeded,
	).Scan(&total)
	if err != nil {
		return 0, convertErr(err, "summing succeeded refunds for order %d", orderID)
	}
	return total, nil
}

// GetSucceededByOrderIDs возвращает успешные возвраты для набора заказов.
func (r *RefundRepository) GetSucceededByOrderIDs(ctx context.Context, orderIDs []int64) ([]domain.Refund, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds
		WHERE order_id = ANY($1) AND status = $2
		ORDER BY resolved_at, id`,
		orderIDs, domain.RefundStatusSucceeded,
	)
	if err != nil {
		return nil, convertErr(err, "getting succeeded refunds for orders")
	}
	defer rows.Close()
	return scanRefunds(rows)
}

// GetProcessing возвращает возвраты, ожидающие ответа процессора. Используется поллером.
func (r *RefundRepository) GetProcessing(ctx context.Context, limit uint) ([]domain.Refund, error) {
	safeLimit, limitErr := safeConvertUintToInt32(limit)
	if limitErr != nil {
		return nil, convertErr(limitErr, "converting limit to int32")
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+refundColumns+` FROM refunds
		WHERE status = $1
		ORDER BY updated_at
		LIMIT $2`,
		domain.RefundStatusProcessing, safeLimit,
	)
	if err != nil {
		return nil, convertErr(err, "getting processing refunds")
	}
	defer rows.Close()
	return scanRefunds(rows)
}

// GetSucceededByWindow возвращает успешные возвраты с resolved_at в окне,
// при необходимости отфильтрованные по продавцу (через заказ).
func (r *RefundRepository) GetSucceededByWindow(
	ctx context.Context,
	w repoargs.LedgerWindow,
) ([]domain.Refund, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.id, r.created_at, r.updated_at, r.order_id, r.payment_intent_id, r.reason, r.amount, r.currency,
		       r.status, COALESCE(r.processor_refund_id, ''), COALESCE(r.failure_message, ''), COALESCE(r.notes, ''),
		       r.resolved_at, r.idempotency_key
		FROM refunds r
		JOIN orders o ON o.id = r.order_id
		WHERE r.status = $1
		  AND r.resolved_at >= $2
		  AND r.resolved_at < $3
		  AND ($4::bigint = 0 OR o.seller_id = $4)
		ORDER BY r.resolved_at, r.id`,
		domain.RefundStatusSucceeded, w.From, w.To, w.SellerID,
	)
	if err != nil {
		return nil, convertErr(err, "getting succeeded refunds for window")
	}
	defer rows.Close()
	return scanRefunds(rows)
}

func scanRefund(row rowScanner) (*domain.Refund, error) {
	var refund domain.Refund
	var amount int64
	var currency string
	var resolvedAt sql.NullTime

	if err := row.Scan(
		&refund.ID, &refund.CreatedAt, &refund.UpdatedAt, &refund.OrderID, &refund.PaymentIntentID,
		&refund.Reason, &amount, &currency, &refund.Status, &refund.ProcessorRefundID,
		&refund.FailureMessage, &refund.Notes, &resolvedAt, &refund.IdempotencyKey,
	); err != nil {
		return nil, err
	}

	refund.Amount = domain.NewMoney(amount, currency)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		refund.ResolvedAt = &t
	}
	return &refund, nil
}

func scanRefunds(rows pgxRows) ([]domain.Refund, error) {
	var refunds []domain.Refund
	for rows.Next() {
		refund, err := scanRefund(rows)
		if err != nil {
			return nil, convertErr(err, "scanning refund")
		}
		refunds = append(refunds, *refund)
	}
	return refunds, convertErr(rows.Err(), "iterating refunds")
}
