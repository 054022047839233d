package model

type state int

const (
	DefaultState state = iota
	ExpectingDepositAmount
	ExpectingTicker
	ExpectingWeight
	ExpectingQuantity
)

type Session struct {
	State       state    `json:"state"`
	ListKind    ListKind `json:"listKind,omitempty"`
	StockTicker string   `json:"stockTicker,omitempty"`
	LastAmount  string   `json:"lastAmount,omitempty"`
	Editing     bool     `json:"editing,omitempty"` // вес или количество вводится для уже добавленного тикера
}
