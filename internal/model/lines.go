package model

import "github.com/shopspring/decimal"

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// AllocationLine - часть пополнения, приходящаяся на один тикер
type AllocationLine struct {
	Symbol           string
	TargetPercentage decimal.Decimal
	DollarAmount     string
	Price            *decimal.Decimal
	Shares           *decimal.Decimal
}

// RebalanceLine - сделка по одному тикеру для приведения портфеля к целевым весам
type RebalanceLine struct {
	Symbol                       string
	TargetPercentage             decimal.Decimal
	CurrentValue                 decimal.Decimal
	CurrentPercentageOfPortfolio decimal.Decimal
	TargetValue                  decimal.Decimal
	Difference                   decimal.Decimal
	Action                       Action
	Price                        *decimal.Decimal
	SharesToTrade                decimal.Decimal
	CurrentShares                decimal.Decimal
}

type DepositResult struct {
	Amount string
	Lines  []AllocationLine
	Errors ValidationErrors
}

type RebalanceResult struct {
	TotalValue decimal.Decimal
	Lines      []RebalanceLine
	Errors     ValidationErrors
}
