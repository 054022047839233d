package telegram

import (
	"fmt"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
)

const (
	internalErrMsg      = "что-то пошло не так..."
	invalidInputMsg     = "не получилось разобрать ввод"
	notInListMsg        = "такого тикера нет в списке"
	enterTickerMsg      = "Введите тикер:"
	enterAmountMsg      = "Введите сумму пополнения:"
	nothingToExportMsg  = "Выгружать нечего: сначала задайте целевые веса и позиции, затем посчитайте /deposit или /rebalance"
	holdingModeUsageMsg = "Использование: /holding_mode SBER shares|value"
)

const helpMsg = `Привет! Я помогу распределить пополнение и ребалансировать портфель.

Пополнение:
/targets - целевые веса
/add_target SBER 40 - добавить тикер
/set_target SBER 30 - изменить вес
/remove_target SBER - удалить
/deposit 100000 - распределить сумму

Ребалансировка:
/holdings - текущие позиции
/add_holding SBER 10 - добавить позицию (10 шт. или 1500 ₽)
/set_holding SBER 15 - изменить количество
/holding_mode SBER shares|value - считать в штуках или рублях
/remove_holding SBER - удалить
/rebalance_targets - целевые веса ребалансировки
/add_rebalance_target, /set_rebalance_target, /remove_rebalance_target
/rebalance - посчитать сделки

/export - выгрузить расчёты в xlsx
/refresh_prices - обновить цены`

var commandNames = map[model.ListKind]string{
	model.ListTargets:          "target",
	model.ListRebalanceTargets: "rebalance_target",
	model.ListHoldings:         "holding",
}

func usageMsg(kind model.ListKind, action string) string {
	switch action {
	case "set":
		if kind == model.ListHoldings {
			return fmt.Sprintf("Использование: /set_%s SBER 15", commandNames[kind])
		}
		return fmt.Sprintf("Использование: /set_%s SBER 30", commandNames[kind])
	default:
		return fmt.Sprintf("Использование: /%s_%s SBER", action, commandNames[kind])
	}
}

func enterWeightMsg(symbol string) string {
	return fmt.Sprintf("Введите вес %s в процентах:", symbol)
}

func enterQuantityMsg(symbol string) string {
	return fmt.Sprintf("Введите количество %s: штук (10) или рублей (1500 ₽). Отправьте \"-\", чтобы задать позже:", symbol)
}
