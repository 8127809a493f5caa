package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
	"github.com/beauzead/settlement/pkg/uow"
)

// fakeStore — общее in-memory хранилище для сервисных тестов. Репозитории-обертки
// реализуют те же интерфейсы и ту же семантику ошибок, что и pgrepo, включая
// уникальный индекс по ключу идемпотентности и по заказу в привязках выплат.
type fakeStore struct {
	mu sync.Mutex

	orders       map[int64]*domain.Order
	refunds      []*domain.Refund
	payouts      []*domain.Payout
	payoutOrders map[int64]int64 // orderID -> payoutID
	expenses     []domain.Expense

	nextRefundID int64
	nextPayoutID int64

	// хуки вызываются перед вставкой — имитация конкурентной транзакции,
	// успевшей закоммититься между чтением и записью.
	beforeRefundCreate func()
	beforePayoutCreate func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:       make(map[int64]*domain.Order),
		payoutOrders: make(map[int64]int64),
		nextRefundID: 1,
		nextPayoutID: 1,
	}
}

func (s *fakeStore) putOrder(order domain.Order) {
	s.orders[order.ID] = &order
}

func (s *fakeStore) putRefund(refund domain.Refund) {
	s.refunds = append(s.refunds, &refund)
	if refund.ID >= s.nextRefundID {
		s.nextRefundID = refund.ID + 1
	}
}

func (s *fakeStore) uow() *fakeUOW {
	return &fakeUOW{store: s}
}

type fakeUOW struct {
	store *fakeStore
}

func (u *fakeUOW) Register(uow.RepositoryName, uow.RepositoryFactory) error { return nil }

func (u *fakeUOW) Do(ctx context.Context, fn func(context.Context, uow.TX) error) error {
	return fn(ctx, &fakeTX{store: u.store})
}

func (u *fakeUOW) GetRepository(name uow.RepositoryName) (uow.Repository, error) {
	return repoByName(u.store, name)
}

type fakeTX struct {
	store *fakeStore
}

func (t *fakeTX) Get(name uow.RepositoryName) (uow.Repository, error) {
	return repoByName(t.store, name)
}

func repoByName(s *fakeStore, name uow.RepositoryName) (uow.Repository, error) {
	switch repoargs.RepositoryName(name) {
	case repoargs.OrderRepoName:
		return &fakeOrderRepo{s}, nil
	case repoargs.RefundRepoName:
		return &fakeRefundRepo{s}, nil
	case repoargs.PayoutRepoName:
		return &fakePayoutRepo{s}, nil
	case repoargs.ExpenseRepoName:
		return &fakeExpenseRepo{s}, nil
	default:
		return nil, uow.ErrRepositoryNotRegistered
	}
}

type fakeOrderRepo struct{ s *fakeStore }

func (r *fakeOrderRepo) GetEligibleForSettlement(_ context.Context, w repoargs.SettlementWindow) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var res []domain.Order
	for _, order := range r.s.orders {
		if order.SellerID != w.SellerID ||
			order.Status != domain.OrderStatusDelivered ||
			order.PaymentStatus != domain.PaymentStatusCaptured {
			continue
		}
		if order.UpdatedAt.Before(w.From) || !order.UpdatedAt.Before(w.To) {
			continue
		}
		if _, settled := r.s.payoutOrders[order.ID]; settled {
			continue
		}
		res = append(res, *order)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].UpdatedAt.Equal(res[j].UpdatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].UpdatedAt.Before(res[j].UpdatedAt)
	})
	return res, nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id int64) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *fakeOrderRepo) LockByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeOrderRepo) UpdatePaymentStatus(_ context.Context, orderID int64, status domain.PaymentStatusType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	order.PaymentStatus = status
	order.UpdatedAt = time.Now()
	return nil
}

func (r *fakeOrderRepo) GetCapturedByWindow(_ context.Context, w repoargs.LedgerWindow) ([]domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	captured := map[domain.PaymentStatusType]bool{
		domain.PaymentStatusCaptured:          true,
		domain.PaymentStatusRefunded:          true,
		domain.PaymentStatusPartiallyRefunded: true,
	}
	var res []domain.Order
	for _, order := range r.s.orders {
		if !captured[order.PaymentStatus] {
			continue
		}
		if w.SellerID != 0 && order.SellerID != w.SellerID {
			continue
		}
		if order.UpdatedAt.Before(w.From) || !order.UpdatedAt.Before(w.To) {
			continue
		}
		res = append(res, *order)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

type fakeRefundRepo struct{ s *fakeStore }

func (r *fakeRefundRepo) Create(_ context.Context, args repoargs.RefundCreate) (*domain.Refund, error) {
	if r.s.beforeRefundCreate != nil {
		r.s.beforeRefundCreate()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, refund := range r.s.refunds {
		if refund.IdempotencyKey == args.IdempotencyKey {
			return nil, fmt.Errorf("refunds.idempotency_key: %w", domain.ErrDuplicateKey)
		}
	}
	refund := &domain.Refund{
		ID:              r.s.nextRefundID,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
		OrderID:         args.OrderID,
		PaymentIntentID: args.PaymentIntentID,
		Reason:          args.Reason,
		Amount:          args.Amount,
		Status:          domain.RefundStatusRequested,
		Notes:           args.Notes,
		IdempotencyKey:  args.IdempotencyKey,
	}
	r.s.nextRefundID++
	r.s.refunds = append(r.s.refunds, refund)
	cp := *refund
	return &cp, nil
}

func (r *fakeRefundRepo) FindByIdempotencyKey(_ context.Context, key string) (*domain.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, refund := range r.s.refunds {
		if refund.IdempotencyKey == key {
			cp := *refund
			return &cp, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (r *fakeRefundRepo) FindByID(_ context.Context, id int64) (*domain.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	refund := r.s.findRefund(id)
	if refund == nil {
		return nil, domain.ErrRecordNotFound
	}
	cp := *refund
	return &cp, nil
}

func (r *fakeRefundRepo) MarkProcessing(_ context.Context, refundID int64, processorRefundID string) (*domain.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	refund := r.s.findRefund(refundID)
	if refund == nil || refund.Status != domain.RefundStatusRequested {
		return nil, domain.ErrRecordNotFound
	}
	refund.Status = domain.RefundStatusProcessing
	refund.ProcessorRefundID = processorRefundID
	refund.UpdatedAt = time.Now()
	cp := *refund
	return &cp, nil
}

func (r *fakeRefundRepo) Resolve(_ context.Context, args repoargs.RefundResolve) (*domain.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	refund := r.s.findRefund(args.RefundID)
	if refund == nil || refund.Status != domain.RefundStatusProcessing {
		return nil, domain.ErrRecordNotFound
	}
	refund.Status = args.Status
	refund.FailureMessage = args.FailureMessage
	resolvedAt := args.ResolvedAt
	refund.ResolvedAt = &resolvedAt
	refund.UpdatedAt = time.Now()
	cp := *refund
	return &cp, nil
}

func (r *fakeRefundRepo) ReservedAmount(_ context.Context, orderID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, refund := range r.s.refunds {
		if refund.OrderID == orderID && refund.Status != domain.RefundStatusFailed {
			total += refund.Amount.Amount
		}
	}
	return total, nil
}

func (r *fakeRefundRepo) SucceededAmount(_ context.Context, orderID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, refund := range r.s.refunds {
		if refund.OrderID == orderID && refund.Status == domain.RefundStatusSucceeded {
			total += refund.Amount.Amount
		}
	}
	return total, nil
}

func (r *fakeRefundRepo) GetSucceededByOrderIDs(_ context.Context, orderIDs []int64) ([]domain.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}
	var res []domain.Refund
	for _, refund := range r.s.refunds {
		if wanted[refund.OrderID] && refund.Status == domain.RefundStatusSucceeded {
			res = append(res, *refund)
		}
	}
	return res, nil
}

func (r *fakeRefundRepo) GetProcessing(_ context.Context, limit uint) ([]domain.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var res []domain.Refund
	for _, refund := range r.s.refunds {
		if refund.Status != domain.RefundStatusProcessing {
			continue
		}
		res = append(res, *refund)
		if uint(len(res)) == limit {
			break
		}
	}
	return res, nil
}

func (r *fakeRefundRepo) GetSucceededByWindow(_ context.Context, w repoargs.LedgerWindow) ([]domain.Refund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var res []domain.Refund
	for _, refund := range r.s.refunds {
		if refund.Status != domain.RefundStatusSucceeded {
			continue
		}
		date := refund.CreatedAt
		if refund.ResolvedAt != nil {
			date = *refund.ResolvedAt
		}
		if date.Before(w.From) || !date.Before(w.To) {
			continue
		}
		if w.SellerID != 0 {
			order, ok := r.s.orders[refund.OrderID]
			if !ok || order.SellerID != w.SellerID {
				continue
			}
		}
		res = append(res, *refund)
	}
	return res, nil
}

func (s *fakeStore) findRefund(id int64) *domain.Refund {
	for _, refund := range s.refunds {
		if refund.ID == id {
			return refund
		}
	}
	return nil
}

type fakePayoutRepo struct{ s *fakeStore }

func (r *fakePayoutRepo) Create(_ context.Context, args repoargs.PayoutCreate) (*domain.Payout, error) {
	if r.s.beforePayoutCreate != nil {
		r.s.beforePayoutCreate()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, orderID := range args.OrderIDs {
		if _, taken := r.s.payoutOrders[orderID]; taken {
			return nil, fmt.Errorf("payout_orders.order_id: %w", domain.ErrDuplicateKey)
		}
	}
	payout := &domain.Payout{
		ID:               r.s.nextPayoutID,
		CreatedAt:        time.Now(),
		SellerID:         args.SellerID,
		PeriodStart:      args.PeriodStart,
		PeriodEnd:        args.PeriodEnd,
		GrossEarnings:    args.GrossEarnings,
		PlatformFeeTotal: args.PlatformFeeTotal,
		TaxWithheldTotal: args.TaxWithheldTotal,
		NetPayout:        args.NetPayout,
		OrderIDs:         append([]int64(nil), args.OrderIDs...),
		Status:           args.Status,
		ManualOverride:   args.ManualOverride,
	}
	r.s.nextPayoutID++
	r.s.payouts = append(r.s.payouts, payout)
	for _, orderID := range args.OrderIDs {
		r.s.payoutOrders[orderID] = payout.ID
	}
	cp := *payout
	return &cp, nil
}

func (r *fakePayoutRepo) MarkFailed(_ context.Context, payoutID int64) (*domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, payout := range r.s.payouts {
		if payout.ID != payoutID {
			continue
		}
		payout.Status = domain.PayoutStatusFailed
		for orderID, pid := range r.s.payoutOrders {
			if pid == payoutID {
				delete(r.s.payoutOrders, orderID)
			}
		}
		cp := *payout
		return &cp, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (r *fakePayoutRepo) GetCompletedByWindow(_ context.Context, w repoargs.LedgerWindow) ([]domain.Payout, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var res []domain.Payout
	for _, payout := range r.s.payouts {
		if payout.Status != domain.PayoutStatusCompleted {
			continue
		}
		if w.SellerID != 0 && payout.SellerID != w.SellerID {
			continue
		}
		if payout.CreatedAt.Before(w.From) || !payout.CreatedAt.Before(w.To) {
			continue
		}
		res = append(res, *payout)
	}
	return res, nil
}

type fakeExpenseRepo struct{ s *fakeStore }

func (r *fakeExpenseRepo) Create(_ context.Context, args repoargs.ExpenseCreate) (*domain.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	expense := domain.Expense{
		ID:           int64(len(r.s.expenses) + 1),
		CreatedAt:    time.Now(),
		SellerID:     args.SellerID,
		Category:     args.Category,
		Description:  args.Description,
		Amount:       args.Amount,
		PaidFromBank: args.PaidFromBank,
		IncurredAt:   args.IncurredAt,
	}
	r.s.expenses = append(r.s.expenses, expense)
	return &expense, nil
}

func (r *fakeExpenseRepo) GetByWindow(_ context.Context, w repoargs.LedgerWindow) ([]domain.Expense, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var res []domain.Expense
	for _, expense := range r.s.expenses {
		if w.SellerID != 0 && expense.SellerID != w.SellerID {
			continue
		}
		if expense.IncurredAt.Before(w.From) || !expense.IncurredAt.Before(w.To) {
			continue
		}
		res = append(res, expense)
	}
	return res, nil
}

// fakeProcessor отвечает заранее заданным статусом либо ошибкой и считает вызовы.
type fakeProcessor struct {
	mu       sync.Mutex
	status   domain.RefundStatusType
	failMsg  string
	err      error
	calls    int
	lastArgs SubmitRefundArgs
}

func (p *fakeProcessor) SubmitRefund(_ context.Context, args SubmitRefundArgs) (*ProcessorRefund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastArgs = args
	if p.err != nil {
		return nil, p.err
	}
	return &ProcessorRefund{
		ID:             fmt.Sprintf("re_%s", args.IdempotencyKey),
		Status:         p.status,
		FailureMessage: p.failMsg,
	}, nil
}
