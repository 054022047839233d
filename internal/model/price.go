package model

import "github.com/shopspring/decimal"

type PriceState int

const (
	PriceUnknown PriceState = iota // ещё не запрашивали
	PriceKnown
	PriceUnavailable // запрашивали, цены нет - повторно не запрашиваем
)

type PriceEntry struct {
	State PriceState
	Price decimal.Decimal
}

func KnownPrice(price decimal.Decimal) PriceEntry {
	return PriceEntry{State: PriceKnown, Price: price}
}

// Known возвращает цену, только если она известна и положительна.
func (e PriceEntry) Known() (decimal.Decimal, bool) {
	if e.State != PriceKnown || !e.Price.IsPositive() {
		return decimal.Zero, false
	}
	return e.Price, true
}
