package engine

import (
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
)

// Allocate делит сумму пополнения по целевым весам.
// Возвращает nil, если сумма невалидна или веса не дают в сумме 100%, ключи ошибок при этом выставлены.
// Доли округляются до копеек по правилу half-up, количество акций считается только при известной цене.
func (e *Engine) Allocate(amount string, targets []model.TargetStock) []model.AllocationLine {
	amountOK := e.gate.Amount(amount)
	sumOK := e.gate.TargetList(model.ErrKeyPercentages, targets)
	if !amountOK || !sumOK {
		return nil
	}

	total, _ := ParseNumber(amount)

	res := make([]model.AllocationLine, 0, len(targets))
	for _, target := range targets {
		pct := nonNegative(target.TargetPercentage)
		dollars := total.Mul(pct).Div(hundred).Round(2)

		line := model.AllocationLine{
			Symbol:           target.Symbol,
			TargetPercentage: target.TargetPercentage,
			DollarAmount:     dollars.StringFixed(2),
		}

		if price, ok := e.prices.Get(target.Symbol).Known(); ok {
			shares := dollars.Div(price)
			line.Price = &price
			line.Shares = &shares
		}

		res = append(res, line)
	}

	return res
}
