package model

import (
	"fmt"
	"maps"
	"strings"
)

const (
	ErrKeyAmount               = "amount"
	ErrKeyPercentages          = "percentages"
	ErrKeyRebalancePercentages = "rebalancePercentages"
	ErrKeyNewStock             = "newStock"
	ErrKeyNewRebalanceStock    = "newRebalanceStock"
	ErrKeyNewPosition          = "newPosition"
)

// ValidationErrors - наличие ключа означает ошибку, отсутствие - что условие сейчас выполнено
type ValidationErrors map[string]string

func (e ValidationErrors) Set(key, msg string) {
	e[key] = msg
}

func (e ValidationErrors) Clear(key string) {
	delete(e, key)
}

func (e ValidationErrors) ClearPrefix(prefix string) {
	for key := range e {
		if strings.HasPrefix(key, prefix) {
			delete(e, key)
		}
	}
}

func (e ValidationErrors) Has(key string) bool {
	_, ok := e[key]
	return ok
}

func (e ValidationErrors) Copy() ValidationErrors {
	res := make(ValidationErrors, len(e))
	maps.Copy(res, e)
	return res
}

// ListKeys - набор ключей ошибок для одного списка
type ListKeys struct {
	Sum        string // пусто для позиций, у них нет весов
	New        string
	ItemPrefix string
}

func (k ListKeys) Item(index int) string {
	return fmt.Sprintf("%s%d", k.ItemPrefix, index)
}

func (kind ListKind) Keys() ListKeys {
	switch kind {
	case ListRebalanceTargets:
		return ListKeys{Sum: ErrKeyRebalancePercentages, New: ErrKeyNewRebalanceStock, ItemPrefix: "rebalance-stock-"}
	case ListHoldings:
		return ListKeys{New: ErrKeyNewPosition, ItemPrefix: "position-"}
	default:
		return ListKeys{Sum: ErrKeyPercentages, New: ErrKeyNewStock, ItemPrefix: "stock-"}
	}
}
