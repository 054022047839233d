package engine

import (
	"testing"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type fakePrices map[string]model.PriceEntry

func (f fakePrices) Get(symbol string) model.PriceEntry {
	return f[symbol]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func target(symbol, pct string) model.TargetStock {
	return model.TargetStock{Symbol: symbol, TargetPercentage: dec(pct)}
}

func byValue(symbol, value string) model.Holding {
	return model.Holding{Symbol: symbol, QuantityMode: model.QuantityModeValue, Value: decPtr(value)}
}

func byShares(symbol, shares string) model.Holding {
	return model.Holding{Symbol: symbol, QuantityMode: model.QuantityModeShares, Shares: decPtr(shares)}
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), append([]any{"expected %s, got %s", expected, actual.String()}, msgAndArgs...)...)
}
