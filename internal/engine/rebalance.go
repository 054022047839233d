package engine

import (
	"sort"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/shopspring/decimal"
)

type position struct {
	value  decimal.Decimal
	shares decimal.Decimal
}

// Rebalance считает сделки для приведения позиций к целевым весам.
//
// Нулевая стоимость портфеля даёт nil без ошибки: только что добавленная позиция без количества -
// нормальное промежуточное состояние. Неверная сумма весов даёт nil и ключ rebalancePercentages.
// Продажи в результате идут перед покупками, чтобы освободившиеся деньги шли на покупки.
func (e *Engine) Rebalance(holdings []model.Holding, targets []model.TargetStock) []model.RebalanceLine {
	positions := make(map[string]position, len(holdings))
	total := decimal.Zero
	for _, holding := range holdings {
		pos := e.resolve(holding)
		positions[holding.Symbol] = pos
		total = total.Add(pos.value)
	}

	if !total.IsPositive() {
		return nil
	}

	if !e.gate.TargetList(model.ErrKeyRebalancePercentages, targets) {
		return nil
	}

	res := make([]model.RebalanceLine, 0, len(targets)+len(holdings))
	inTargets := make(map[string]struct{}, len(targets))

	for _, target := range targets {
		inTargets[target.Symbol] = struct{}{}

		pos := positions[target.Symbol]
		pct := nonNegative(target.TargetPercentage)
		targetValue := total.Mul(pct).Div(hundred)
		diff := targetValue.Sub(pos.value)

		line := model.RebalanceLine{
			Symbol:                       target.Symbol,
			TargetPercentage:             target.TargetPercentage,
			CurrentValue:                 pos.value,
			CurrentPercentageOfPortfolio: pos.value.Div(total).Mul(hundred),
			TargetValue:                  targetValue,
			Difference:                   diff,
			Action:                       actionFor(diff),
			SharesToTrade:                decimal.Zero,
			CurrentShares:                pos.shares,
		}

		if price, ok := e.prices.Get(target.Symbol).Known(); ok {
			line.Price = &price
			if diff.Abs().GreaterThan(epsilon) {
				line.SharesToTrade = diff.Abs().Div(price)
			}
		}

		res = append(res, line)
	}

	// позиции вне целевого списка продаются целиком
	for _, holding := range holdings {
		if _, ok := inTargets[holding.Symbol]; ok {
			continue
		}
		// дубликаты символов в позициях не допускаются, но на всякий случай не продаём дважды
		inTargets[holding.Symbol] = struct{}{}

		pos := positions[holding.Symbol]
		line := model.RebalanceLine{
			Symbol:                       holding.Symbol,
			TargetPercentage:             decimal.Zero,
			CurrentValue:                 pos.value,
			CurrentPercentageOfPortfolio: pos.value.Div(total).Mul(hundred),
			TargetValue:                  decimal.Zero,
			Difference:                   pos.value.Neg(),
			Action:                       model.ActionSell,
			SharesToTrade:                pos.shares,
			CurrentShares:                pos.shares,
		}

		if price, ok := e.prices.Get(holding.Symbol).Known(); ok {
			line.Price = &price
			line.SharesToTrade = pos.value.Div(price)
		}

		res = append(res, line)
	}

	sort.SliceStable(res, func(i, j int) bool {
		return actionRank(res[i].Action) < actionRank(res[j].Action)
	})

	return res
}

func (e *Engine) resolve(holding model.Holding) position {
	price, known := e.prices.Get(holding.Symbol).Known()

	switch holding.QuantityMode {
	case model.QuantityModeValue:
		value := nonNegativePtr(holding.Value)
		pos := position{value: value, shares: decimal.Zero}
		if known {
			pos.shares = value.Div(price)
		}
		return pos
	default:
		shares := nonNegativePtr(holding.Shares)
		pos := position{value: decimal.Zero, shares: shares}
		if known {
			pos.value = shares.Mul(price)
		}
		return pos
	}
}

func actionFor(diff decimal.Decimal) model.Action {
	switch {
	case diff.Abs().LessThanOrEqual(epsilon):
		return model.ActionHold
	case diff.IsPositive():
		return model.ActionBuy
	default:
		return model.ActionSell
	}
}

func actionRank(a model.Action) int {
	switch a {
	case model.ActionSell:
		return 0
	case model.ActionBuy:
		return 1
	default:
		return 2
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func nonNegativePtr(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return nonNegative(*d)
}
