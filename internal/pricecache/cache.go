// Package pricecache хранит последние известные цены пользователя и догружает неизвестные асинхронно.
package pricecache

import (
	"maps"
	"sync"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/shopspring/decimal"
)

// Cache - цены одной сессии пользователя. Отсутствие записи означает PriceUnknown.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]model.PriceEntry
}

func New() *Cache {
	return &Cache{entries: make(map[string]model.PriceEntry)}
}

func (c *Cache) Get(symbol string) model.PriceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[symbol]
}

// Set сохраняет цену. Неположительная цена считается недоступной.
func (c *Cache) Set(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !price.IsPositive() {
		c.entries[symbol] = model.PriceEntry{State: model.PriceUnavailable}
		return
	}
	c.entries[symbol] = model.KnownPrice(price)
}

func (c *Cache) MarkUnavailable(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = model.PriceEntry{State: model.PriceUnavailable}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Unknown возвращает символы, цену которых ещё не запрашивали.
func (c *Cache) Unknown(symbols []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if c.entries[symbol].State == model.PriceUnknown {
			res = append(res, symbol)
		}
	}
	return res
}

func (c *Cache) Snapshot() map[string]model.PriceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.entries)
}
