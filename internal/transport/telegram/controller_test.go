package telegram

import (
	"testing"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		raw          string
		wantQuantity string
		wantMode     model.QuantityMode
	}{
		{raw: "10", wantQuantity: "10"},
		{raw: " 2,5 ", wantQuantity: "2,5"},
		{raw: "1500 ₽", wantQuantity: "1500", wantMode: model.QuantityModeValue},
		{raw: "1500р", wantQuantity: "1500", wantMode: model.QuantityModeValue},
		{raw: "1500 руб", wantQuantity: "1500", wantMode: model.QuantityModeValue},
		{raw: "7 шт.", wantQuantity: "7", wantMode: model.QuantityModeShares},
		{raw: "7шт", wantQuantity: "7", wantMode: model.QuantityModeShares},
		{raw: "-", wantQuantity: ""},
		{raw: "", wantQuantity: ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			quantity, mode := parseQuantity(tt.raw)
			assert.Equal(t, tt.wantQuantity, quantity)
			assert.Equal(t, tt.wantMode, mode)
		})
	}
}

func TestParseMode(t *testing.T) {
	mode, ok := parseMode("Value")
	assert.True(t, ok)
	assert.Equal(t, model.QuantityModeValue, mode)

	mode, ok = parseMode("шт")
	assert.True(t, ok)
	assert.Equal(t, model.QuantityModeShares, mode)

	_, ok = parseMode("lots")
	assert.False(t, ok)
}

func TestUsageMsg(t *testing.T) {
	assert.Equal(t, "Использование: /remove_rebalance_target SBER", usageMsg(model.ListRebalanceTargets, "remove"))
	assert.Equal(t, "Использование: /set_holding SBER 15", usageMsg(model.ListHoldings, "set"))
}
