package pgrepo

import (
	"context"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
	"github.com/beauzead/settlement/pkg/uow"
)

const payoutColumns = `id, created_at, seller_id, period_start, period_end, currency,
gross_earnings, platform_fee_total, tax_withheld_total, net_payout, status, manual_override`

type PayoutRepository struct {
	db uow.DBTX
}

func NewPayoutRepository(db uow.DBTX) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create вставляет выплату и привязки к заказам. Вызывается только внутри транзакции:
// уникальный индекс payout_orders(order_id) — это и есть гарантия, что заказ попадает
// максимум в одну выплату. Конкурентная вставка того же заказа даст ErrDuplicateKey
// и откатит всю транзакцию.
func (p *PayoutRepository) Create(ctx context.Context, args repoargs.PayoutCreate) (*domain.Payout, error) {
	row := p.db.QueryRow(ctx, `
		INSERT INTO payouts (seller_id, period_start, period_end, currency,
			gross_earnings, platform_fee_total, tax_withheld_total, net_payout, status, manual_override)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+payoutColumns,
		args.SellerID, args.PeriodStart, args.PeriodEnd, args.NetPayout.Currency,
		args.GrossEarnings.Amount, args.PlatformFeeTotal.Amount, args.TaxWithheldTotal.Amount,
		args.NetPayout.Amount, args.Status, args.ManualOverride,
	)
	payout, err := scanPayout(row)
	if err != nil {
		return nil, convertErr(err, "creating payout for seller %d", args.SellerID)
	}

	for _, orderID := range args.OrderIDs {
		if _, execErr := p.db.Exec(ctx,
			`INSERT INTO payout_orders (payout_id, order_id) VALUES ($1, $2)`,
			payout.ID, orderID,
		); execErr != nil {
			return nil, convertErr(execErr, "linking order %d to payout %d", orderID, payout.ID)
		}
	}

	payout.OrderIDs = args.OrderIDs
	return payout, nil
}

// MarkFailed помечает выплату проваленной и освобождает ее заказы: привязки удаляются,
// заказы снова становятся доступными для следующего расчета.
func (p *PayoutRepository) MarkFailed(ctx context.Context, payoutID int64) (*domain.Payout, error) {
	row := p.db.QueryRow(ctx, `
		UPDATE payouts SET status = $1 WHERE id = $2 AND status <> $1
		RETURNING `+payoutColumns,
		domain.PayoutStatusFailed, payoutID,
	)
	payout, err := scanPayout(row)
	if err != nil {
		return nil, convertErr(err, "marking payout %d failed", payoutID)
	}

	if _, execErr := p.db.Exec(ctx, `DELETE FROM payout_orders WHERE payout_id = $1`, payoutID); execErr != nil {
		return nil, convertErr(execErr, "releasing orders of payout %d", payoutID)
	}
	return payout, nil
}

// GetCompletedByWindow возвращает завершенные выплаты с created_at в окне.
// Привязки к заказам не загружаются — проекциям достаточно итогов.
func (p *PayoutRepository) GetCompletedByWindow(
	ctx context.Context,
	w repoargs.LedgerWindow,
) ([]domain.Payout, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE status = $1
		  AND created_at >= $2
		  AND created_at < $3
		  AND ($4::bigint = 0 OR seller_id = $4)
		ORDER BY created_at, id`,
		domain.PayoutStatusCompleted, w.From, w.To, w.SellerID,
	)
	if err != nil {
		return nil, convertErr(err, "getting completed payouts for window")
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		payout, scanErr := scanPayout(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "scanning payout")
		}
		payouts = append(payouts, *payout)
	}
	return payouts, convertErr(rows.Err(), "iterating payouts")
}

func scanPayout(row rowScanner) (*domain.Payout, error) {
	var payout domain.Payout
	var currency string
	var gross, fee, tax, net int64

	if err := row.Scan(
		&payout.ID, &payout.CreatedAt, &payout.SellerID, &payout.PeriodStart, &payout.PeriodEnd,
		&currency, &gross, &fee, &tax, &net, &payout.Status, &payout.ManualOverride,
	); err != nil {
		return nil, err
	}

	payout.GrossEarnings = domain.NewMoney(gross, currency)
	payout.PlatformFeeTotal = domain.NewMoney(fee, currency)
	payout.TaxWithheldTotal = domain.NewMoney(tax, currency)
	payout.NetPayout = domain.NewMoney(net, currency)
	return &payout, nil
}
