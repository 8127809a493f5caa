package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
	"github.com/beauzead/settlement/pkg/uow"
)

const defaultTaxTolerance int64 = 1

type PayoutService struct {
	uow             uow.UOW
	l               *logrus.Entry
	taxTolerance    int64
	defaultCurrency string
}

func NewPayoutService(u uow.UOW, l *logrus.Logger) *PayoutService {
	return &PayoutService{
		uow:             u,
		l:               l.WithField("component", "payout"),
		taxTolerance:    defaultTaxTolerance,
		defaultCurrency: "USD",
	}
}

// SetTaxTolerance задает допуск (в минимальных единицах валюты) расхождения между
// налогом, пересчитанным при сетлменте, и налогом заказа.
func (s *PayoutService) SetTaxTolerance(tolerance int64) *PayoutService {
	s.taxTolerance = tolerance
	return s
}

// SetDefaultCurrency задает валюту для выплат без подходящих заказов (ручная корректировка).
func (s *PayoutService) SetDefaultCurrency(currency string) *PayoutService {
	s.defaultCurrency = currency
	return s
}

type ProcessPayoutArgs struct {
	SellerID    int64
	PeriodStart time.Time
	PeriodEnd   time.Time
	// ForceAmount переопределяет вычисленную сумму выплаты (ручная корректировка).
	// Вычисленные gross/fee/tax при этом сохраняются как есть — для аудита.
	ForceAmount *domain.Money
}

// ProcessSellerPayout считает и фиксирует выплату продавцу за период.
//
// Алгоритм работы:
//  1. Внутри одной транзакции читает подходящие заказы, их возвраты и траты (LedgerReader).
//  2. По каждому заказу считает комиссию, сбор и налог (ComputeOrderSettlement).
//  3. Вычитает успешные возвраты из вклада заказа; вклад не бывает отрицательным —
//     при превышении возвратов над валовой суммой вклад обнуляется с предупреждением.
//  4. Складывает итоги и проверяет, что выплата не отрицательная.
//  5. Фиксирует выплату вместе с привязками к заказам. Уникальность привязки по заказу
//     гарантирует, что два конкурентных расчета не включат один заказ дважды: проигравший
//     получает ErrPayoutConflict.
//
// Ошибки: ErrNoEligibleOrders, ErrNegativePayout, ErrCurrencyMismatch,
// ErrPayoutConflict, *DataIntegrityError.
func (s *PayoutService) ProcessSellerPayout(ctx context.Context, args ProcessPayoutArgs) (*domain.Payout, error) {
	var payout *domain.Payout

	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		orderRepo, orderRepoErr := uow.GetAs[OrderRepository](tx, uow.RepositoryName(repoargs.OrderRepoName))
		if orderRepoErr != nil {
			return orderRepoErr //nolint:wrapcheck
		}
		refundRepo, refundRepoErr := uow.GetAs[RefundRepository](tx, uow.RepositoryName(repoargs.RefundRepoName))
		if refundRepoErr != nil {
			return refundRepoErr //nolint:wrapcheck
		}
		expenseRepo, expenseRepoErr := uow.GetAs[ExpenseRepository](tx, uow.RepositoryName(repoargs.ExpenseRepoName))
		if expenseRepoErr != nil {
			return expenseRepoErr //nolint:wrapcheck
		}
		payoutRepo, payoutRepoErr := uow.GetAs[PayoutRepository](tx, uow.RepositoryName(repoargs.PayoutRepoName))
		if payoutRepoErr != nil {
			return payoutRepoErr //nolint:wrapcheck
		}

		reader := NewLedgerReader(orderRepo, refundRepo, expenseRepo)
		batch, batchErr := reader.ReadSettlementWindow(c, repoargs.SettlementWindow{
			SellerID: args.SellerID,
			From:     args.PeriodStart,
			To:       args.PeriodEnd,
		})
		if batchErr != nil {
			return batchErr
		}

		if len(batch.Orders) == 0 && args.ForceAmount == nil {
			return domain.ErrNoEligibleOrders
		}

		currency := s.defaultCurrency
		if args.ForceAmount != nil {
			currency = args.ForceAmount.Currency
		}
		if len(batch.Orders) > 0 {
			currency = batch.Orders[0].TotalAmount.Currency
		}

		// ручная сумма обязана совпадать по валюте с расчетными итогами, иначе
		// строка выплаты получит разнородные суммы под одним кодом валюты.
		if args.ForceAmount != nil && args.ForceAmount.Currency != currency {
			return fmt.Errorf(
				"force amount %s, settlement currency %s: %w",
				*args.ForceAmount, currency, domain.ErrCurrencyMismatch,
			)
		}

		totals, totalsErr := s.computeTotals(batch, currency)
		if totalsErr != nil {
			return totalsErr
		}

		net := totals.net
		manualOverride := false
		if args.ForceAmount != nil {
			net = *args.ForceAmount
			manualOverride = true
		} else if net.IsNegative() {
			return fmt.Errorf("seller %d: net %s: %w", args.SellerID, net, domain.ErrNegativePayout)
		}

		orderIDs := make([]int64, len(batch.Orders))
		for i := range batch.Orders {
			orderIDs[i] = batch.Orders[i].ID
		}

		created, createErr := payoutRepo.Create(c, repoargs.PayoutCreate{
			SellerID:         args.SellerID,
			PeriodStart:      args.PeriodStart,
			PeriodEnd:        args.PeriodEnd,
			GrossEarnings:    totals.gross,
			PlatformFeeTotal: totals.fees,
			TaxWithheldTotal: totals.tax,
			NetPayout:        net,
			OrderIDs:         orderIDs,
			Status:           domain.PayoutStatusCompleted,
			ManualOverride:   manualOverride,
		})
		if createErr != nil {
			if errors.Is(createErr, domain.ErrDuplicateKey) {
				return fmt.Errorf("seller %d: %w", args.SellerID, domain.ErrPayoutConflict)
			}
			return createErr //nolint:wrapcheck
		}

		payout = created
		return nil
	})

	if txErr != nil {
		return nil, fmt.Errorf("processing seller payout: %w", txErr)
	}

	s.l.WithFields(logrus.Fields{
		"sellerID": args.SellerID,
		"payoutID": payout.ID,
		"orders":   len(payout.OrderIDs),
		"net":      payout.NetPayout.String(),
	}).Info("payout completed")

	return payout, nil
}

type payoutTotals struct {
	gross domain.Money
	fees  domain.Money
	tax   domain.Money
	net   domain.Money
}

func (s *PayoutService) computeTotals(batch *SettlementBatch, currency string) (*payoutTotals, error) {
	gross := domain.ZeroMoney(currency)
	fees := domain.ZeroMoney(currency)
	tax := domain.ZeroMoney(currency)

	for i := range batch.Orders {
		order := &batch.Orders[i]

		settlement, settleErr := ComputeOrderSettlement(order, s.taxTolerance)
		if settleErr != nil {
			return nil, settleErr
		}

		contribution := settlement.Gross
		if refunded, ok := batch.RefundedByOrder[order.ID]; ok {
			cmp, cmpErr := refunded.Cmp(contribution)
			if cmpErr != nil {
				return nil, fmt.Errorf("order %d: %w", order.ID, cmpErr)
			}
			if cmp > 0 {
				// возвраты больше валовой суммы — данные выше по потоку повреждены,
				// но выплату не валим: вклад заказа обнуляется.
				s.l.WithFields(logrus.Fields{
					"orderID":  order.ID,
					"gross":    contribution.String(),
					"refunded": refunded.String(),
				}).Warn("refunds exceed order gross, clamping contribution to zero")
				contribution = domain.ZeroMoney(currency)
			} else {
				var subErr error
				if contribution, subErr = contribution.Sub(refunded); subErr != nil {
					return nil, fmt.Errorf("order %d: %w", order.ID, subErr)
				}
			}
		}

		var err error
		if gross, err = gross.Add(contribution); err != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, err)
		}
		orderFees, feesErr := settlement.Commission.Add(settlement.PlatformFee)
		if feesErr != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, feesErr)
		}
		if fees, err = fees.Add(orderFees); err != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, err)
		}
		if tax, err = tax.Add(settlement.TaxOwed); err != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, err)
		}
	}

	net, netErr := gross.Sub(fees)
	if netErr == nil {
		net, netErr = net.Sub(tax)
	}
	if netErr != nil {
		return nil, netErr
	}

	return &payoutTotals{gross: gross, fees: fees, tax: tax, net: net}, nil
}

// MarkPayoutFailed помечает выплату проваленной и освобождает ее заказы для
// последующего перерасчета.
func (s *PayoutService) MarkPayoutFailed(ctx context.Context, payoutID int64) (*domain.Payout, error) {
	var payout *domain.Payout

	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		payoutRepo, repoErr := uow.GetAs[PayoutRepository](tx, uow.RepositoryName(repoargs.PayoutRepoName))
		if repoErr != nil {
			return repoErr //nolint:wrapcheck
		}
		var markErr error
		payout, markErr = payoutRepo.MarkFailed(c, payoutID)
		return markErr //nolint:wrapcheck
	})

	if txErr != nil {
		return nil, fmt.Errorf("marking payout %d failed: %w", payoutID, txErr)
	}
	return payout, nil
}
