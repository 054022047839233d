package engine

import (
	"testing"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineBySymbol(t *testing.T, lines []model.RebalanceLine, symbol string) model.RebalanceLine {
	t.Helper()
	for _, line := range lines {
		if line.Symbol == symbol {
			return line
		}
	}
	require.Failf(t, "line not found", "symbol %s", symbol)
	return model.RebalanceLine{}
}

func TestRebalance_TwoSymbolSymmetry(t *testing.T) {
	holdings := []model.Holding{byValue("A", "29"), byValue("B", "71")}
	targets := []model.TargetStock{target("A", "80"), target("B", "20")}

	lines := New(fakePrices{}, model.ValidationErrors{}).Rebalance(holdings, targets)
	require.Len(t, lines, 2)

	a := lineBySymbol(t, lines, "A")
	assertDecimal(t, "51", a.Difference)
	assert.Equal(t, model.ActionBuy, a.Action)
	assertDecimal(t, "80", a.TargetValue)
	assertDecimal(t, "29", a.CurrentPercentageOfPortfolio)

	b := lineBySymbol(t, lines, "B")
	assertDecimal(t, "-51", b.Difference)
	assert.Equal(t, model.ActionSell, b.Action)

	// продажа идёт первой
	assert.Equal(t, "B", lines[0].Symbol)
}

func TestRebalance_SharesAndPrices(t *testing.T) {
	prices := fakePrices{
		"SBER": model.KnownPrice(dec("100")),
		"GAZP": model.KnownPrice(dec("50")),
	}
	holdings := []model.Holding{byShares("SBER", "10"), byValue("GAZP", "1000")}
	targets := []model.TargetStock{target("SBER", "25"), target("GAZP", "75")}

	lines := New(prices, model.ValidationErrors{}).Rebalance(holdings, targets)
	require.Len(t, lines, 2)

	sber := lineBySymbol(t, lines, "SBER")
	assertDecimal(t, "1000", sber.CurrentValue)
	assertDecimal(t, "10", sber.CurrentShares)
	assertDecimal(t, "500", sber.TargetValue)
	assert.Equal(t, model.ActionSell, sber.Action)
	assertDecimal(t, "5", sber.SharesToTrade)
	require.NotNil(t, sber.Price)
	assertDecimal(t, "100", *sber.Price)

	gazp := lineBySymbol(t, lines, "GAZP")
	assertDecimal(t, "20", gazp.CurrentShares)
	assertDecimal(t, "1500", gazp.TargetValue)
	assert.Equal(t, model.ActionBuy, gazp.Action)
	assertDecimal(t, "10", gazp.SharesToTrade)
}

func TestRebalance_ZeroPortfolio(t *testing.T) {
	errs := model.ValidationErrors{}
	e := New(fakePrices{}, errs)

	t.Run("no holdings", func(t *testing.T) {
		assert.Nil(t, e.Rebalance(nil, []model.TargetStock{target("A", "100")}))
	})

	t.Run("holdings worth zero", func(t *testing.T) {
		holdings := []model.Holding{byValue("A", "0"), {Symbol: "B", QuantityMode: model.QuantityModeValue}}
		assert.Nil(t, e.Rebalance(holdings, []model.TargetStock{target("A", "100")}))
	})

	t.Run("shares without price", func(t *testing.T) {
		assert.Nil(t, e.Rebalance([]model.Holding{byShares("A", "10")}, []model.TargetStock{target("A", "100")}))
	})

	t.Run("even with unbalanced targets the null is silent", func(t *testing.T) {
		assert.Nil(t, e.Rebalance([]model.Holding{byValue("A", "0")}, []model.TargetStock{target("A", "10")}))
	})

	assert.Empty(t, errs)
}

func TestRebalance_UnbalancedTargets(t *testing.T) {
	errs := model.ValidationErrors{}
	e := New(fakePrices{}, errs)
	holdings := []model.Holding{byValue("A", "100")}

	assert.Nil(t, e.Rebalance(holdings, []model.TargetStock{target("A", "40")}))
	assert.True(t, errs.Has(model.ErrKeyRebalancePercentages))
	assert.False(t, errs.Has(model.ErrKeyPercentages))

	assert.NotNil(t, e.Rebalance(holdings, []model.TargetStock{target("A", "100")}))
	assert.False(t, errs.Has(model.ErrKeyRebalancePercentages))
}

func TestRebalance_NewPosition(t *testing.T) {
	holdings := []model.Holding{byValue("A", "100")}
	targets := []model.TargetStock{target("A", "50"), target("NEW", "50")}

	lines := New(fakePrices{}, model.ValidationErrors{}).Rebalance(holdings, targets)
	require.Len(t, lines, 2)

	line := lineBySymbol(t, lines, "NEW")
	assertDecimal(t, "0", line.CurrentValue)
	assertDecimal(t, "0", line.CurrentPercentageOfPortfolio)
	assertDecimal(t, "0", line.CurrentShares)
	assert.Equal(t, model.ActionBuy, line.Action)
	assertDecimal(t, "50", line.Difference)
}

func TestRebalance_ForcedLiquidation(t *testing.T) {
	prices := fakePrices{"OLD": model.KnownPrice(dec("20"))}
	holdings := []model.Holding{byValue("A", "100"), byValue("OLD", "60"), byShares("GONE", "7")}
	targets := []model.TargetStock{target("A", "100")}

	lines := New(prices, model.ValidationErrors{}).Rebalance(holdings, targets)
	require.Len(t, lines, 3)

	old := lineBySymbol(t, lines, "OLD")
	assertDecimal(t, "0", old.TargetValue)
	assertDecimal(t, "-60", old.Difference)
	assert.Equal(t, model.ActionSell, old.Action)
	assertDecimal(t, "3", old.SharesToTrade)

	// без цены продаём все известные акции
	gone := lineBySymbol(t, lines, "GONE")
	assert.Equal(t, model.ActionSell, gone.Action)
	assert.Nil(t, gone.Price)
	assertDecimal(t, "7", gone.SharesToTrade)
	assertDecimal(t, "0", gone.Difference)
}

func TestRebalance_Ordering(t *testing.T) {
	holdings := []model.Holding{
		byValue("BUY1", "10"),
		byValue("HOLD", "25"),
		byValue("SELL1", "40"),
		byValue("BUY2", "5"),
		byValue("LIQ", "20"),
	}
	targets := []model.TargetStock{
		target("BUY1", "20"),
		target("HOLD", "25"),
		target("SELL1", "30"),
		target("BUY2", "25"),
	}

	lines := New(fakePrices{}, model.ValidationErrors{}).Rebalance(holdings, targets)
	require.Len(t, lines, 5)

	symbols := make([]string, 0, len(lines))
	for _, line := range lines {
		symbols = append(symbols, line.Symbol)
	}
	// целевые строки раньше ликвидаций при равных действиях
	assert.Equal(t, []string{"SELL1", "LIQ", "BUY1", "BUY2", "HOLD"}, symbols)

	lastSell := -1
	firstBuy := len(lines)
	for i, line := range lines {
		if line.Action == model.ActionSell {
			lastSell = i
		}
		if line.Action == model.ActionBuy && i < firstBuy {
			firstBuy = i
		}
	}
	assert.Less(t, lastSell, firstBuy)
}

func TestRebalance_HoldThreshold(t *testing.T) {
	holdings := []model.Holding{byValue("A", "50.005"), byValue("B", "49.995")}
	targets := []model.TargetStock{target("A", "50"), target("B", "50")}
	prices := fakePrices{"A": model.KnownPrice(dec("10")), "B": model.KnownPrice(dec("10"))}

	lines := New(prices, model.ValidationErrors{}).Rebalance(holdings, targets)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, model.ActionHold, line.Action)
		assertDecimal(t, "0", line.SharesToTrade)
	}
}

func TestRebalance_PriceUnavailable(t *testing.T) {
	prices := fakePrices{"B": {State: model.PriceUnavailable}}
	holdings := []model.Holding{byValue("A", "100"), byValue("B", "0")}
	targets := []model.TargetStock{target("A", "50"), target("B", "50")}

	lines := New(prices, model.ValidationErrors{}).Rebalance(holdings, targets)
	b := lineBySymbol(t, lines, "B")
	assert.Nil(t, b.Price)
	assertDecimal(t, "0", b.SharesToTrade)
	assert.Equal(t, model.ActionBuy, b.Action)
}

func TestRebalance_NegativeInputsTreatedAsZero(t *testing.T) {
	prices := fakePrices{"A": model.KnownPrice(dec("10"))}
	holdings := []model.Holding{byShares("A", "-5"), byValue("B", "-100"), byValue("C", "100")}
	targets := []model.TargetStock{target("A", "50"), target("C", "50")}

	var lines []model.RebalanceLine
	assert.NotPanics(t, func() {
		lines = New(prices, model.ValidationErrors{}).Rebalance(holdings, targets)
	})
	require.Len(t, lines, 3)

	a := lineBySymbol(t, lines, "A")
	assertDecimal(t, "0", a.CurrentValue)
	assertDecimal(t, "0", a.CurrentShares)

	b := lineBySymbol(t, lines, "B")
	assertDecimal(t, "0", b.CurrentValue)
}

func TestRebalance_Idempotent(t *testing.T) {
	prices := fakePrices{"A": model.KnownPrice(dec("7"))}
	holdings := []model.Holding{byShares("A", "3"), byValue("B", "50")}
	targets := []model.TargetStock{target("A", "40"), target("B", "60")}
	e := New(prices, model.ValidationErrors{})

	assert.Equal(t, e.Rebalance(holdings, targets), e.Rebalance(holdings, targets))
}
