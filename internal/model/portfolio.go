package model

import "github.com/shopspring/decimal"

type QuantityMode string

const (
	QuantityModeShares QuantityMode = "shares"
	QuantityModeValue  QuantityMode = "value"
)

// TargetStock - желаемая доля тикера в портфеле
type TargetStock struct {
	Symbol           string          `json:"symbol"`
	TargetPercentage decimal.Decimal `json:"targetPercentage"`
	DisplayName      string          `json:"displayName,omitempty"`
}

// Holding - текущая позиция. Заполнено только одно из Shares/Value, в зависимости от QuantityMode.
type Holding struct {
	Symbol       string           `json:"symbol"`
	QuantityMode QuantityMode     `json:"quantityMode"`
	Shares       *decimal.Decimal `json:"shares,omitempty"`
	Value        *decimal.Decimal `json:"value,omitempty"`
}

// SetMode переключает режим и сбрасывает поле другого режима.
func (h *Holding) SetMode(mode QuantityMode) {
	if h.QuantityMode == mode {
		return
	}
	h.QuantityMode = mode
	h.Shares = nil
	h.Value = nil
}

// SetQuantity записывает количество в поле текущего режима.
func (h *Holding) SetQuantity(q decimal.Decimal) {
	if h.QuantityMode == QuantityModeValue {
		h.Value = &q
		h.Shares = nil
		return
	}
	h.QuantityMode = QuantityModeShares
	h.Shares = &q
	h.Value = nil
}

type ListKind string

const (
	ListTargets          ListKind = "targets"
	ListRebalanceTargets ListKind = "rebalanceTargets"
	ListHoldings         ListKind = "holdings"
)

func ParseListKind(raw string) (ListKind, bool) {
	switch kind := ListKind(raw); kind {
	case ListTargets, ListRebalanceTargets, ListHoldings:
		return kind, true
	default:
		return "", false
	}
}

// PortfolioView - снимок списков пользователя и текущих ошибок валидации
type PortfolioView struct {
	PortfolioLists
	Names  map[string]string
	Prices map[string]PriceEntry
	Errors ValidationErrors
}

// PortfolioLists - все списки пользователя, в таком виде они хранятся и восстанавливаются
type PortfolioLists struct {
	Targets          []TargetStock
	RebalanceTargets []TargetStock
	Holdings         []Holding
}
