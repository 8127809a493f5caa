package pgrepo

import (
	"context"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/beauzead/settlement/internal/repository/repoargs"
	"github.com/beauzead/settlement/pkg/uow"
)

const expenseColumns = `id, created_at, seller_id, category, COALESCE(description, ''),
amount, currency, paid_from_bank, incurred_at`

type ExpenseRepository struct {
	db uow.DBTX
}

func NewExpenseRepository(db uow.DBTX) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (e *ExpenseRepository) Create(ctx context.Context, args repoargs.ExpenseCreate) (*domain.Expense, error) {
	row := e.db.QueryRow(ctx, `
		INSERT INTO expenses (seller_id, category, description, amount, currency, paid_from_bank, incurred_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING `+expenseColumns,
		args.SellerID, args.Category, args.Description, args.Amount.Amount, args.Amount.Currency,
		args.PaidFromBank, args.IncurredAt,
	)
	expense, err := scanExpense(row)
	if err != nil {
		return nil, convertErr(err, "creating expense for seller %d", args.SellerID)
	}
	return expense, nil
}

// GetByWindow возвращает траты с incurred_at в окне, опционально по продавцу.
func (e *ExpenseRepository) GetByWindow(ctx context.Context, w repoargs.LedgerWindow) ([]domain.Expense, error) {
	rows, err := e.db.Query(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE incurred_at >= $1
		  AND incurred_at < $2
		  AND ($3::bigint = 0 OR seller_id = $3)
		ORDER BY incurred_at, id`,
		w.From, w.To, w.SellerID,
	)
	if err != nil {
		return nil, convertErr(err, "getting expenses for window")
	}
	defer rows.Close()

	var expenses []domain.Expense
	for rows.Next() {
		expense, scanErr := scanExpense(rows)
		if scanErr != nil {
			return nil, convertErr(scanErr, "scanning expense")
		}
		expenses = append(expenses, *expense)
	}
	return expenses, convertErr(rows.Err(), "iterating expenses")
}

func scanExpense(row rowScanner) (*domain.Expense, error) {
	var expense domain.Expense
	var amount int64
	var currency string

	if err := row.Scan(
		&expense.ID, &expense.CreatedAt, &expense.SellerID, &expense.Category, &expense.Description,
		&amount, &currency, &expense.PaidFromBank, &expense.IncurredAt,
	); err != nil {
		return nil, err
	}

	expense.Amount = domain.NewMoney(amount, currency)
	return &expense, nil
}
