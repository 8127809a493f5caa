package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
	"github.com/beauzead/settlement/pkg/uow"
)

const (
	defaultLedgerPageLimit = 50
	maxLedgerPageLimit     = 500
)

// LedgerService строит производные представления журнала: дневник, банковскую книгу
// и сводку по счету. Все три выводятся из одного канонического набора записей
// (toEntries) и по построению не могут разойтись между собой. Сервис ничего не пишет.
type LedgerService struct {
	orders          OrderRepository
	refunds         RefundRepository
	expenses        ExpenseRepository
	payouts         PayoutRepository
	defaultCurrency string
}

func NewLedgerService(u uow.UOW) (*LedgerService, error) {
	orders, ordersErr := uow.GetRepositoryAs[OrderRepository](u, uow.RepositoryName(repoargs.OrderRepoName))
	if ordersErr != nil {
		return nil, ordersErr
	}
	refunds, refundsErr := uow.GetRepositoryAs[RefundRepository](u, uow.RepositoryName(repoargs.RefundRepoName))
	if refundsErr != nil {
		return nil, refundsErr
	}
	expenses, expensesErr := uow.GetRepositoryAs[ExpenseRepository](u, uow.RepositoryName(repoargs.ExpenseRepoName))
	if expensesErr != nil {
		return nil, expensesErr
	}
	payouts, payoutsErr := uow.GetRepositoryAs[PayoutRepository](u, uow.RepositoryName(repoargs.PayoutRepoName))
	if payoutsErr != nil {
		return nil, payoutsErr
	}
	return &LedgerService{
		orders:          orders,
		refunds:         refunds,
		expenses:        expenses,
		payouts:         payouts,
		defaultCurrency: "USD",
	}, nil
}

func (s *LedgerService) SetDefaultCurrency(currency string) *LedgerService {
	s.defaultCurrency = currency
	return s
}

type LedgerWindowArgs struct {
	// SellerID == 0 — по всем продавцам.
	SellerID int64
	From     time.Time
	To       time.Time
}

type LedgerPageArgs struct {
	LedgerWindowArgs
	Page  int
	Limit int
}

type LedgerPage struct {
	Entries []domain.LedgerEntry
	Total   int
}

// Daybook возвращает страницу хронологического журнала всех записей окна.
func (s *LedgerService) Daybook(ctx context.Context, args LedgerPageArgs) (*LedgerPage, error) {
	entries, err := s.project(ctx, args.LedgerWindowArgs, false)
	if err != nil {
		return nil, err
	}
	return paginate(entries, args.Page, args.Limit), nil
}

// Bankbook возвращает страницу журнала, ограниченного записями расчетного счета.
func (s *LedgerService) Bankbook(ctx context.Context, args LedgerPageArgs) (*LedgerPage, error) {
	entries, err := s.project(ctx, args.LedgerWindowArgs, true)
	if err != nil {
		return nil, err
	}
	return paginate(entries, args.Page, args.Limit), nil
}

// Summary строит сводку по счету за окно. Тождество
// net_profit == revenue - expenses - payouts - taxes проверяется, а не предполагается.
func (s *LedgerService) Summary(ctx context.Context, args LedgerWindowArgs) (*domain.AccountSummary, error) {
	entries, err := s.project(ctx, args, false)
	if err != nil {
		return nil, err
	}

	currency := s.defaultCurrency
	if len(entries) > 0 {
		currency = entryCurrency(entries[0])
	}

	revenue := domain.ZeroMoney(currency)
	expenses := domain.ZeroMoney(currency)
	payouts := domain.ZeroMoney(currency)
	taxes := domain.ZeroMoney(currency)

	for _, entry := range entries {
		var sumErr error
		switch entry.SourceType {
		case domain.EntrySourceOrder:
			revenue, sumErr = revenue.Add(entry.Credit)
		case domain.EntrySourceRefund:
			revenue, sumErr = revenue.Sub(entry.Debit)
		case domain.EntrySourceExpense:
			expenses, sumErr = expenses.Add(entry.Debit)
		case domain.EntrySourcePayout:
			payouts, sumErr = payouts.Add(entry.Debit)
		case domain.EntrySourceTax:
			taxes, sumErr = taxes.Add(entry.Debit)
		}
		if sumErr != nil {
			return nil, domain.NewDataIntegrityError("account_summary", "%s", sumErr.Error())
		}
	}

	profit, profitErr := revenue.Sub(expenses)
	if profitErr == nil {
		profit, profitErr = profit.Sub(payouts)
	}
	if profitErr == nil {
		profit, profitErr = profit.Sub(taxes)
	}
	if profitErr != nil {
		return nil, domain.NewDataIntegrityError("account_summary", "%s", profitErr.Error())
	}

	summary := &domain.AccountSummary{
		Currency:      currency,
		TotalRevenue:  revenue,
		TotalExpenses: expenses,
		TotalPayouts:  payouts,
		TotalTaxes:    taxes,
		NetProfit:     profit,
	}
	if invariantErr := summary.CheckInvariant(); invariantErr != nil {
		return nil, invariantErr
	}
	return summary, nil
}

// project собирает записи окна и считает нарастающий баланс. Для банковской книги
// набор сперва сужается до записей счета, затем считается баланс — обе книги остаются
// проекциями одного и того же набора.
func (s *LedgerService) project(
	ctx context.Context,
	w LedgerWindowArgs,
	bankOnly bool,
) ([]domain.LedgerEntry, error) {
	window := repoargs.LedgerWindow{SellerID: w.SellerID, From: w.From, To: w.To}

	orders, ordersErr := s.orders.GetCapturedByWindow(ctx, window)
	if ordersErr != nil {
		return nil, fmt.Errorf("projecting ledger: %w", ordersErr)
	}
	for i := range orders {
		if integrityErr := orders[i].CheckIntegrity(); integrityErr != nil {
			return nil, integrityErr
		}
	}

	refunds, refundsErr := s.refunds.GetSucceededByWindow(ctx, window)
	if refundsErr != nil {
		return nil, fmt.Errorf("projecting ledger: %w", refundsErr)
	}

	expenses, expensesErr := s.expenses.GetByWindow(ctx, window)
	if expensesErr != nil {
		return nil, fmt.Errorf("projecting ledger: %w", expensesErr)
	}

	payouts, payoutsErr := s.payouts.GetCompletedByWindow(ctx, window)
	if payoutsErr != nil {
		return nil, fmt.Errorf("projecting ledger: %w", payoutsErr)
	}

	entries := toEntries(orders, refunds, expenses, payouts)

	if bankOnly {
		bank := make([]domain.LedgerEntry, 0, len(entries))
		for _, entry := range entries {
			if entry.BankAffecting {
				bank = append(bank, entry)
			}
		}
		entries = bank
	}

	if err := applyRunningBalance(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// toEntries — каноническая функция генерации журнальных записей. Сортировка только
// по дате и стабильная: при равных датах порядок вставки сохраняется, записи никогда
// не пересортировываются по суммам. История баланса детерминирована и воспроизводима.
func toEntries(
	orders []domain.Order,
	refunds []domain.Refund,
	expenses []domain.Expense,
	payouts []domain.Payout,
) []domain.LedgerEntry {
	entries := make([]domain.LedgerEntry, 0, len(orders)+len(refunds)+len(expenses)+2*len(payouts))

	for _, order := range orders {
		currency := order.TotalAmount.Currency
		entries = append(entries, domain.LedgerEntry{
			Date:          order.UpdatedAt,
			Description:   fmt.Sprintf("order #%d payment", order.ID),
			Debit:         domain.ZeroMoney(currency),
			Credit:        order.TotalAmount,
			SourceType:    domain.EntrySourceOrder,
			SourceID:      order.ID,
			BankAffecting: true,
		})
	}

	for _, refund := range refunds {
		date := refund.CreatedAt
		if refund.ResolvedAt != nil {
			date = *refund.ResolvedAt
		}
		entries = append(entries, domain.LedgerEntry{
			Date:          date,
			Description:   fmt.Sprintf("refund #%d for order #%d", refund.ID, refund.OrderID),
			Debit:         refund.Amount,
			Credit:        domain.ZeroMoney(refund.Amount.Currency),
			SourceType:    domain.EntrySourceRefund,
			SourceID:      refund.ID,
			BankAffecting: true,
		})
	}

	for _, expense := range expenses {
		entries = append(entries, domain.LedgerEntry{
			Date:          expense.IncurredAt,
			Description:   fmt.Sprintf("expense: %s", expense.Category),
			Debit:         expense.Amount,
			Credit:        domain.ZeroMoney(expense.Amount.Currency),
			SourceType:    domain.EntrySourceExpense,
			SourceID:      expense.ID,
			BankAffecting: expense.PaidFromBank,
		})
	}

	for _, payout := range payouts {
		currency := payout.NetPayout.Currency
		entries = append(entries, domain.LedgerEntry{
			Date:          payout.CreatedAt,
			Description:   fmt.Sprintf("seller #%d payout #%d", payout.SellerID, payout.ID),
			Debit:         payout.NetPayout,
			Credit:        domain.ZeroMoney(currency),
			SourceType:    domain.EntrySourcePayout,
			SourceID:      payout.ID,
			BankAffecting: true,
		})
		if !payout.TaxWithheldTotal.IsZero() {
			entries = append(entries, domain.LedgerEntry{
				Date:          payout.CreatedAt,
				Description:   fmt.Sprintf("tax remittance for payout #%d", payout.ID),
				Debit:         payout.TaxWithheldTotal,
				Credit:        domain.ZeroMoney(currency),
				SourceType:    domain.EntrySourceTax,
				SourceID:      payout.ID,
				BankAffecting: true,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries
}

func applyRunningBalance(entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	balance := domain.ZeroMoney(entryCurrency(entries[0]))
	for i := range entries {
		var err error
		if balance, err = balance.Add(entries[i].Credit); err != nil {
			return domain.NewDataIntegrityError("ledger", "%s", err.Error())
		}
		if balance, err = balance.Sub(entries[i].Debit); err != nil {
			return domain.NewDataIntegrityError("ledger", "%s", err.Error())
		}
		entries[i].Balance = balance
	}
	return nil
}

func entryCurrency(entry domain.LedgerEntry) string {
	if !entry.Credit.IsZero() || entry.Credit.Currency != "" {
		return entry.Credit.Currency
	}
	return entry.Debit.Currency
}

// paginate режет записи на страницы: нумерация с единицы, стабильный порядок.
func paginate(entries []domain.LedgerEntry, page, limit int) *LedgerPage {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLedgerPageLimit
	}
	if limit > maxLedgerPageLimit {
		limit = maxLedgerPageLimit
	}

	total := len(entries)
	start := (page - 1) * limit
	if start >= total {
		return &LedgerPage{Entries: []domain.LedgerEntry{}, Total: total}
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &LedgerPage{Entries: entries[start:end], Total: total}
}
