package moexModel

import "github.com/shopspring/decimal"

type RawStocksInfo struct {
	Securities Securities `json:"securities"`
	Marketdata Marketdata `json:"marketdata"`
}

type Securities struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

type Marketdata struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

type StockInfo struct {
	Ticker     string          `json:"ticker"`
	Shortname  string          `json:"shortname"`
	Lotsize    int             `json:"lotsize"`
	CurrencyID string          `json:"currencyID"`
	Status     bool            `json:"status"`
	Price      decimal.Decimal `json:"price"`
}

// Tradable - акция торгуется и у неё есть рыночная цена
func (s StockInfo) Tradable() bool {
	return s.Status && s.Price.IsPositive()
}
