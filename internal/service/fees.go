package service

import (
	"fmt"

	"github.com/beauzead/settlement/internal/domain"
	"github.com/shopspring/decimal"
)

// LineSettlement — результат расчета по одной позиции заказа.
type LineSettlement struct {
	Gross       domain.Money
	Commission  domain.Money
	PlatformFee domain.Money
	TaxOwed     domain.Money
}

// ComputeLineSettlement считает комиссию, платформенный сбор и налог по позиции заказа.
// Чистая функция: одни и те же входные данные всегда дают байт-в-байт одинаковый результат.
//
// Правила:
//   - валовая сумма позиции = цена за единицу * количество;
//   - комиссия и сбор берутся от валовой суммы по ставкам-слепкам позиции;
//   - отсутствие ставки налога трактуется как нулевая ставка (не ошибка);
//   - отсутствие ставки комиссии — ошибка ErrMissingCommissionRate: без нее
//     сетлмент продавца невозможен в принципе;
//   - база налога зависит от режима заказа: gross — валовая сумма позиции,
//     net — валовая сумма за вычетом комиссии и сбора.
func ComputeLineSettlement(item domain.OrderItem, taxMode domain.TaxModeType) (*LineSettlement, error) {
	gross := item.UnitPrice.MultiplyByQuantity(item.Quantity)

	if !item.CommissionRate.Valid {
		return nil, fmt.Errorf("item %d: %w", item.ID, domain.ErrMissingCommissionRate)
	}
	commission := gross.MultiplyByRate(item.CommissionRate.Decimal)

	platformFeeRate := decimal.Zero
	if item.PlatformFeeRate.Valid {
		platformFeeRate = item.PlatformFeeRate.Decimal
	}
	platformFee := gross.MultiplyByRate(platformFeeRate)

	taxOwed := domain.ZeroMoney(gross.Currency)
	if item.TaxRate.Valid {
		taxBase := gross
		if taxMode == domain.TaxModeNet {
			var err error
			if taxBase, err = taxBase.Sub(commission); err != nil {
				return nil, err
			}
			if taxBase, err = taxBase.Sub(platformFee); err != nil {
				return nil, err
			}
		}
		taxOwed = taxBase.MultiplyByRate(item.TaxRate.Decimal)
	}

	return &LineSettlement{
		Gross:       gross,
		Commission:  commission,
		PlatformFee: platformFee,
		TaxOwed:     taxOwed,
	}, nil
}

// OrderSettlement — агрегат по заказу. Gross — захваченная с покупателя сумма
// (итог заказа, включая доставку и налог); вычеты считаются по позициям.
type OrderSettlement struct {
	OrderID     int64
	Gross       domain.Money
	Commission  domain.Money
	PlatformFee domain.Money
	TaxOwed     domain.Money
}

// ComputeOrderSettlement прогоняет расчет по всем позициям заказа и сверяет
// пересчитанный налог с налогом, зафиксированным на заказе при оформлении.
// Расхождение больше taxTolerance минимальных единиц — порча данных
// (*DataIntegrityError), а не повод молча поправить цифры.
func ComputeOrderSettlement(order *domain.Order, taxTolerance int64) (*OrderSettlement, error) {
	if len(order.Items) == 0 {
		return nil, domain.NewDataIntegrityError("order", "order %d has no line items", order.ID)
	}

	currency := order.TotalAmount.Currency
	settlement := &OrderSettlement{
		OrderID:     order.ID,
		Gross:       order.TotalAmount,
		Commission:  domain.ZeroMoney(currency),
		PlatformFee: domain.ZeroMoney(currency),
		TaxOwed:     domain.ZeroMoney(currency),
	}

	for _, item := range order.Items {
		line, lineErr := ComputeLineSettlement(item, order.TaxMode)
		if lineErr != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, lineErr)
		}

		var err error
		if settlement.Commission, err = settlement.Commission.Add(line.Commission); err != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, err)
		}
		if settlement.PlatformFee, err = settlement.PlatformFee.Add(line.PlatformFee); err != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, err)
		}
		if settlement.TaxOwed, err = settlement.TaxOwed.Add(line.TaxOwed); err != nil {
			return nil, fmt.Errorf("order %d: %w", order.ID, err)
		}
	}

	diff, diffErr := settlement.TaxOwed.Sub(order.TaxAmount)
	if diffErr != nil {
		return nil, fmt.Errorf("order %d: %w", order.ID, diffErr)
	}
	if abs(diff.Amount) > taxTolerance {
		return nil, domain.NewDataIntegrityError(
			"order",
			"order %d: recomputed tax %s diverges from stored tax %s beyond tolerance %d",
			order.ID, settlement.TaxOwed, order.TaxAmount, taxTolerance,
		)
	}

	return settlement, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
