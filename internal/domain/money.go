package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money хранит денежную сумму в минимальных единицах валюты (центы, копейки и т.д.)
// вместе с ISO кодом валюты. Никакой плавающей точки внутри — вся арифметика целочисленная,
// дробные ставки применяются через decimal с банковским округлением.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// ZeroMoney возвращает нулевую сумму в указанной валюте.
func ZeroMoney(currency string) Money {
	return Money{Amount: 0, Currency: currency}
}

// Add складывает две суммы. Возвращает ErrCurrencyMismatch при разных валютах.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub вычитает other из m. Результат может быть отрицательным — инварианты
// на неотрицательность балансов проверяются вызывающей стороной.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// MultiplyByRate умножает сумму на ставку (например комиссию 0.1) и округляет
// до минимальной единицы валюты банковским округлением (round-half-to-even),
// чтобы на большом числе мелких начислений не накапливался систематический сдвиг.
func (m Money) MultiplyByRate(rate decimal.Decimal) Money {
	amount := decimal.NewFromInt(m.Amount).Mul(rate).RoundBank(0).IntPart()
	return Money{Amount: amount, Currency: m.Currency}
}

// Cmp сравнивает суммы: -1 если m < other, 0 при равенстве, 1 если m > other.
// Возвращает ErrCurrencyMismatch при разных валютах.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) IsNegative() bool {
	return m.Amount < 0
}

// Negate возвращает сумму с противоположным знаком. Единственный легальный способ
// получить отрицательную сумму явно.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// MultiplyByQuantity умножает сумму на целое количество (позиция заказа).
func (m Money) MultiplyByQuantity(quantity int32) Money {
	return Money{Amount: m.Amount * int64(quantity), Currency: m.Currency}
}

// Decimal возвращает сумму как decimal в минимальных единицах.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount)
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

// SumMoney складывает срез сумм. Пустой срез дает ноль в валюте currency.
func SumMoney(currency string, amounts ...Money) (Money, error) {
	total := ZeroMoney(currency)
	for _, a := range amounts {
		var err error
		total, err = total.Add(a)
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
