// Package engine содержит расчёт распределения пополнения и ребалансировки портфеля.
// Расчёты синхронные и не имеют побочных эффектов, кроме записи в карту ошибок валидации.
package engine

import "github.com/KotFed0t/portfolio_allocator_bot/internal/model"

type PriceSource interface {
	Get(symbol string) model.PriceEntry
}

// Engine привязан к состоянию одного пользователя: его кэшу цен и карте ошибок.
type Engine struct {
	prices PriceSource
	gate   *Gate
}

func New(prices PriceSource, errs model.ValidationErrors) *Engine {
	return &Engine{prices: prices, gate: NewGate(errs)}
}

func (e *Engine) Gate() *Gate {
	return e.gate
}
