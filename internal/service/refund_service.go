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

type RefundService struct {
	uow        uow.UOW
	refundRepo RefundRepository
	processor  PaymentProcessor
	l          *logrus.Entry
}

func NewRefundService(u uow.UOW, processor PaymentProcessor, l *logrus.Logger) (*RefundService, error) {
	refundRepo, repoErr := uow.GetRepositoryAs[RefundRepository](u, uow.RepositoryName(repoargs.RefundRepoName))
	if repoErr != nil {
		return nil, repoErr
	}
	return &RefundService{
		uow:        u,
		refundRepo: refundRepo,
		processor:  processor,
		l:          l.WithField("component", "refund"),
	}, nil
}

type RequestRefundArgs struct {
	OrderID         int64
	PaymentIntentID string
	// Amount — сумма возврата. nil означает остаток возвращаемого:
	// захваченная сумма за вычетом всех не проваленных возвратов.
	Amount *domain.Money
	Reason domain.RefundReasonType
	Notes  string
}

// RequestRefund создает заявку на возврат и отправляет ее в платежный процессор.
//
// Жизненный цикл заявки: requested -> processing -> {succeeded, failed}.
// Идемпотентность: ключ (order_id, payment_intent_id, amount); повторная заявка
// с тем же ключом возвращает уже существующую запись. Проигравший гонку на вставке
// читает запись победителя — для вызывающего это успех, а не ошибка.
//
// Лимит проверяется до обращения к процессору: сумма всех не проваленных возвратов
// плюс новая заявка не может превысить захваченную сумму заказа (ErrRefundExceedsCaptured).
// Проверка и вставка выполняются атомарно под блокировкой строки заказа.
//
// Если запись осталась в статусе requested (процессор был недоступен), повторная заявка
// с тем же ключом переотправит ее — предварительная сверка статуса вместо слепого ретрая.
func (s *RefundService) RequestRefund(ctx context.Context, args RequestRefundArgs) (*domain.Refund, error) {
	var refund *domain.Refund

	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		orderRepo, orderRepoErr := uow.GetAs[OrderRepository](tx, uow.RepositoryName(repoargs.OrderRepoName))
		if orderRepoErr != nil {
			return orderRepoErr //nolint:wrapcheck
		}
		refundRepo, refundRepoErr := uow.GetAs[RefundRepository](tx, uow.RepositoryName(repoargs.RefundRepoName))
		if refundRepoErr != nil {
			return refundRepoErr //nolint:wrapcheck
		}

		order, orderErr := orderRepo.LockByID(c, args.OrderID)
		if orderErr != nil {
			return orderErr //nolint:wrapcheck
		}

		captured, capturedErr := order.CapturedAmount()
		if capturedErr != nil {
			return capturedErr //nolint:wrapcheck
		}

		if order.PaymentIntentID != args.PaymentIntentID {
			return fmt.Errorf("order %d: %w", order.ID, domain.ErrPaymentIntentMismatch)
		}

		reservedAmount, reservedErr := refundRepo.ReservedAmount(c, order.ID)
		if reservedErr != nil {
			return reservedErr //nolint:wrapcheck
		}
		reserved := domain.NewMoney(reservedAmount, captured.Currency)

		amount, amountErr := resolveRefundAmount(args.Amount, captured, reserved)
		if amountErr != nil {
			return amountErr
		}

		// сначала проверяем ключ: повторная заявка не должна спотыкаться о лимит,
		// в котором уже учтена ее собственная первая запись.
		key := domain.RefundIdempotencyKey(order.ID, order.PaymentIntentID, amount)
		existing, existingErr := refundRepo.FindByIdempotencyKey(c, key)
		if existingErr == nil {
			refund = existing
			return nil
		}
		if !errors.Is(existingErr, domain.ErrRecordNotFound) {
			return existingErr //nolint:wrapcheck
		}

		requestedTotal, totalErr := reserved.Add(amount)
		if totalErr != nil {
			return totalErr //nolint:wrapcheck
		}
		cmp, cmpErr := requestedTotal.Cmp(captured)
		if cmpErr != nil {
			return cmpErr //nolint:wrapcheck
		}
		if cmp > 0 {
			return fmt.Errorf(
				"order %d: reserved %s + requested %s > captured %s: %w",
				order.ID, reserved, amount, captured, domain.ErrRefundExceedsCaptured,
			)
		}

		created, createErr := refundRepo.Create(c, repoargs.RefundCreate{
			OrderID:         order.ID,
			PaymentIntentID: order.PaymentIntentID,
			Reason:          args.Reason,
			Amount:          amount,
			Notes:           args.Notes,
			IdempotencyKey:  key,
		})
		if createErr != nil {
			// гонка двух одинаковых заявок: победила другая, читаем ее запись.
			if errors.Is(createErr, domain.ErrDuplicateKey) {
				winner, winnerErr := refundRepo.FindByIdempotencyKey(c, key)
				if winnerErr != nil {
					return winnerErr //nolint:wrapcheck
				}
				refund = winner
				return nil
			}
			return createErr //nolint:wrapcheck
		}

		refund = created
		return nil
	})

	if txErr != nil {
		return nil, fmt.Errorf("requesting refund: %w", txErr)
	}

	if refund.Status != domain.RefundStatusRequested {
		// заявка уже в работе или завершена — идемпотентный повтор.
		return refund, nil
	}

	return s.submit(ctx, refund)
}

// submit отправляет заявку процессору и переводит ее в processing. Синхронный
// терминальный ответ процессора применяется сразу же.
func (s *RefundService) submit(ctx context.Context, refund *domain.Refund) (*domain.Refund, error) {
	resp, submitErr := s.processor.SubmitRefund(ctx, SubmitRefundArgs{
		IdempotencyKey:  refund.IdempotencyKey,
		PaymentIntentID: refund.PaymentIntentID,
		Amount:          refund.Amount,
		Reason:          refund.Reason,
	})
	if submitErr != nil {
		// заявка остается в requested; повторная заявка с тем же ключом переотправит ее.
		s.l.WithError(submitErr).WithField("refundID", refund.ID).Warn("refund submission failed")
		return refund, fmt.Errorf("submitting refund %d: %w", refund.ID, submitErr)
	}

	processing, markErr := s.refundRepo.MarkProcessing(ctx, refund.ID, resp.ID)
	if markErr != nil {
		// параллельная заявка успела перевести запись — перечитываем и продолжаем.
		if errors.Is(markErr, domain.ErrRecordNotFound) {
			return s.refundRepo.FindByID(ctx, refund.ID) //nolint:wrapcheck
		}
		return nil, fmt.Errorf("marking refund %d processing: %w", refund.ID, markErr)
	}

	if resp.Status == domain.RefundStatusSucceeded || resp.Status == domain.RefundStatusFailed {
		if resolveErr := s.resolveOne(ctx, RefundResolutionArgs{
			RefundID:       processing.ID,
			Status:         resp.Status,
			FailureMessage: resp.FailureMessage,
		}); resolveErr != nil {
			return nil, resolveErr
		}
		return s.refundRepo.FindByID(ctx, processing.ID) //nolint:wrapcheck
	}

	return processing, nil
}

// ProcessingRefunds возвращает возвраты, ожидающие ответа платежного процессора.
func (s *RefundService) ProcessingRefunds(ctx context.Context, limit uint) ([]domain.Refund, error) {
	refunds, err := s.refundRepo.GetProcessing(ctx, limit)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	return refunds, nil
}

type RefundResolutionArgs struct {
	RefundID       int64
	Status         domain.RefundStatusType
	FailureMessage string
}

// ResolveRefunds применяет терминальные статусы, полученные от процессора.
// Каждый возврат обрабатывается в своей транзакции: успешный переводит
// payment_status заказа в refunded либо partially_refunded.
func (s *RefundService) ResolveRefunds(ctx context.Context, updates []RefundResolutionArgs) error {
	for _, update := range updates {
		if err := s.resolveOne(ctx, update); err != nil {
			return err
		}
	}
	return nil
}

func (s *RefundService) resolveOne(ctx context.Context, update RefundResolutionArgs) error {
	txErr := s.uow.Do(ctx, func(c context.Context, tx uow.TX) error {
		refundRepo, refundRepoErr := uow.GetAs[RefundRepository](tx, uow.RepositoryName(repoargs.RefundRepoName))
		if refundRepoErr != nil {
			return refundRepoErr //nolint:wrapcheck
		}
		orderRepo, orderRepoErr := uow.GetAs[OrderRepository](tx, uow.RepositoryName(repoargs.OrderRepoName))
		if orderRepoErr != nil {
			return orderRepoErr //nolint:wrapcheck
		}

		resolved, resolveErr := refundRepo.Resolve(c, repoargs.RefundResolve{
			RefundID:       update.RefundID,
			Status:         update.Status,
			FailureMessage: update.FailureMessage,
			ResolvedAt:     time.Now(),
		})
		if resolveErr != nil {
			// запись уже в терминальном статусе — эффект достигнут, это не ошибка.
			if errors.Is(resolveErr, domain.ErrRecordNotFound) {
				return nil
			}
			return resolveErr //nolint:wrapcheck
		}

		if resolved.Status != domain.RefundStatusSucceeded {
			return nil
		}

		order, orderErr := orderRepo.LockByID(c, resolved.OrderID)
		if orderErr != nil {
			return orderErr //nolint:wrapcheck
		}
		captured, capturedErr := order.CapturedAmount()
		if capturedErr != nil {
			return capturedErr //nolint:wrapcheck
		}

		succeededAmount, succeededErr := refundRepo.SucceededAmount(c, order.ID)
		if succeededErr != nil {
			return succeededErr //nolint:wrapcheck
		}

		status := domain.PaymentStatusPartiallyRefunded
		if succeededAmount >= captured.Amount {
			status = domain.PaymentStatusRefunded
		}
		return orderRepo.UpdatePaymentStatus(c, order.ID, status) //nolint:wrapcheck
	})

	if txErr != nil {
		return fmt.Errorf("resolving refund %d: %w", update.RefundID, txErr)
	}
	return nil
}

// resolveRefundAmount вычисляет сумму заявки: явная сумма либо остаток возвращаемого.
func resolveRefundAmount(requested *domain.Money, captured, reserved domain.Money) (domain.Money, error) {
	if requested != nil {
		if requested.Currency != captured.Currency {
			return domain.Money{}, fmt.Errorf(
				"%w: %s vs %s", domain.ErrCurrencyMismatch, requested.Currency, captured.Currency,
			)
		}
		if requested.Amount <= 0 {
			return domain.Money{}, fmt.Errorf("refund amount must be positive, got %s", *requested)
		}
		return *requested, nil
	}

	remaining, err := captured.Sub(reserved)
	if err != nil {
		return domain.Money{}, err //nolint:wrapcheck
	}
	if remaining.Amount <= 0 {
		return domain.Money{}, fmt.Errorf("order fully refunded: %w", domain.ErrRefundExceedsCaptured)
	}
	return remaining, nil
}
