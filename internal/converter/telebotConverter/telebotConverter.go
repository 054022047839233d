package telebotConverter

import (
	"fmt"
	"slices"
	"strings"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/tg/tgCallback.go"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

var listTitles = map[model.ListKind]string{
	model.ListTargets:          "🎯 Целевые веса для пополнения",
	model.ListRebalanceTargets: "🎯 Целевые веса для ребалансировки",
	model.ListHoldings:         "💼 Текущие позиции",
}

var addCommands = map[model.ListKind]string{
	model.ListTargets:          "/add_target",
	model.ListRebalanceTargets: "/add_rebalance_target",
	model.ListHoldings:         "/add_holding",
}

var actionTitles = map[model.Action]string{
	model.ActionSell: "🔴 продать",
	model.ActionBuy:  "🟢 купить",
	model.ActionHold: "⚪ держать",
}

func displayName(symbol string, names map[string]string) string {
	if name := names[symbol]; name != "" {
		return fmt.Sprintf("%s (%s)", symbol, name)
	}
	return symbol
}

func priceText(entry model.PriceEntry) string {
	switch entry.State {
	case model.PriceKnown:
		return entry.Price.StringFixed(2) + " ₽"
	case model.PriceUnavailable:
		return "нет цены"
	default:
		return "загружается..."
	}
}

func errLine(sb *strings.Builder, errs model.ValidationErrors, key string) {
	if msg, ok := errs[key]; ok {
		sb.WriteString(fmt.Sprintf("⚠️ %s\n", msg))
	}
}

// ErrorsText - сообщения об ошибках по ключам в заданном порядке
func ErrorsText(errs model.ValidationErrors, keys ...string) string {
	var sb strings.Builder
	for _, key := range keys {
		errLine(&sb, errs, key)
	}
	return sb.String()
}

// ListResponse - список пользователя с ошибками валидации и кнопками редактирования
func ListResponse(kind model.ListKind, view model.PortfolioView) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	keys := kind.Keys()
	var sb strings.Builder

	sb.WriteString(listTitles[kind] + ":\n\n")

	rows := make([]tele.Row, 0)

	if kind == model.ListHoldings {
		if len(view.Holdings) == 0 {
			sb.WriteString(fmt.Sprintf("пусто, добавьте позицию: %s\n", addCommands[kind]))
		}
		for i, holding := range view.Holdings {
			sb.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, displayName(holding.Symbol, view.Names), quantityText(holding)))
			sb.WriteString(fmt.Sprintf("   ▸ Цена: %s\n", priceText(view.Prices[holding.Symbol])))
			errLine(&sb, view.Errors, keys.Item(i))

			rows = append(rows, markup.Row(
				markup.Data("✏️ "+holding.Symbol, tgCallback.EditItem, string(kind), holding.Symbol),
				markup.Data("шт ⇄ ₽", tgCallback.ToggleMode, string(kind), holding.Symbol),
				markup.Data("❌", tgCallback.RemoveItem, string(kind), holding.Symbol),
			))
		}
	} else {
		targets := view.Targets
		if kind == model.ListRebalanceTargets {
			targets = view.RebalanceTargets
		}
		if len(targets) == 0 {
			sb.WriteString(fmt.Sprintf("пусто, добавьте тикер: %s\n", addCommands[kind]))
		}

		sum := decimal.Zero
		for i, target := range targets {
			sum = sum.Add(target.TargetPercentage)
			sb.WriteString(fmt.Sprintf("%d. %s - %s%%\n", i+1, displayName(target.Symbol, view.Names), target.TargetPercentage.String()))
			sb.WriteString(fmt.Sprintf("   ▸ Цена: %s\n", priceText(view.Prices[target.Symbol])))
			errLine(&sb, view.Errors, keys.Item(i))

			rows = append(rows, markup.Row(
				markup.Data("✏️ "+target.Symbol, tgCallback.EditItem, string(kind), target.Symbol),
				markup.Data("❌", tgCallback.RemoveItem, string(kind), target.Symbol),
			))
		}

		if len(targets) > 0 {
			sb.WriteString(fmt.Sprintf("\nСумма весов: %s%%\n", sum.StringFixed(1)))
		}
		errLine(&sb, view.Errors, keys.Sum)
	}

	errLine(&sb, view.Errors, keys.New)

	rows = append(rows, markup.Row(
		markup.Data("➕ Добавить", tgCallback.AddItem, string(kind)),
		markup.Data("🧮 Рассчитать", tgCallback.Calculate, string(kind)),
	))
	markup.Inline(rows...)

	return sb.String(), markup
}

func quantityText(holding model.Holding) string {
	if holding.QuantityMode == model.QuantityModeValue {
		if holding.Value == nil {
			return "сумма не задана"
		}
		return holding.Value.StringFixed(2) + " ₽"
	}
	if holding.Shares == nil {
		return "количество не задано"
	}
	return holding.Shares.String() + " шт."
}

// DepositResponse - распределение пополнения или причина, по которой его нельзя посчитать
func DepositResponse(result model.DepositResult, names map[string]string) string {
	var sb strings.Builder

	if result.Lines == nil {
		sb.WriteString("Не получилось посчитать пополнение:\n")
		sb.WriteString(ErrorsText(result.Errors, model.ErrKeyAmount, model.ErrKeyPercentages))
		return sb.String()
	}

	if len(result.Lines) == 0 {
		return fmt.Sprintf("Список целевых весов пуст, добавьте тикер: %s", addCommands[model.ListTargets])
	}

	sb.WriteString(fmt.Sprintf("💰 Пополнение на %s ₽:\n\n", result.Amount))
	for _, line := range result.Lines {
		sb.WriteString(fmt.Sprintf("%s %s%%: %s ₽\n", displayName(line.Symbol, names), line.TargetPercentage.String(), line.DollarAmount))
		if line.Shares != nil && line.Price != nil {
			sb.WriteString(fmt.Sprintf("   ▸ ≈ %s шт. по %s ₽\n", line.Shares.StringFixed(2), line.Price.StringFixed(2)))
		}
	}

	return sb.String()
}

// RebalanceResponse - план сделок. Продажи идут первыми.
func RebalanceResponse(result model.RebalanceResult, names map[string]string) string {
	var sb strings.Builder

	if result.Lines == nil {
		if result.Errors.Has(model.ErrKeyRebalancePercentages) {
			sb.WriteString("Не получилось посчитать ребалансировку:\n")
			sb.WriteString(ErrorsText(result.Errors, model.ErrKeyRebalancePercentages))
			return sb.String()
		}
		return "Стоимость позиций равна нулю, задайте количество: /set_holding"
	}

	sb.WriteString(fmt.Sprintf("⚖️ Стоимость портфеля: %s ₽\n\n", result.TotalValue.StringFixed(2)))

	for _, line := range result.Lines {
		sb.WriteString(fmt.Sprintf("%s %s", actionTitles[line.Action], displayName(line.Symbol, names)))
		switch {
		case line.Action == model.ActionHold:
		case line.SharesToTrade.IsPositive():
			sb.WriteString(fmt.Sprintf(": %s шт. (%s ₽)", line.SharesToTrade.StringFixed(2), line.Difference.Abs().StringFixed(2)))
		default:
			sb.WriteString(fmt.Sprintf(": на %s ₽, цена неизвестна", line.Difference.Abs().StringFixed(2)))
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf(
			"   ▸ сейчас %s ₽ (%s%%), цель %s ₽ (%s%%)\n",
			line.CurrentValue.StringFixed(2),
			line.CurrentPercentageOfPortfolio.StringFixed(1),
			line.TargetValue.StringFixed(2),
			line.TargetPercentage.String(),
		))
	}

	return sb.String()
}

// PricesResponse - известные цены всех тикеров пользователя
func PricesResponse(prices map[string]model.PriceEntry) string {
	if len(prices) == 0 {
		return "Списки пусты, цены запрашивать не для чего"
	}

	symbols := make([]string, 0, len(prices))
	for symbol := range prices {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)

	var sb strings.Builder
	sb.WriteString("📈 Цены:\n\n")
	for _, symbol := range symbols {
		sb.WriteString(fmt.Sprintf("%s: %s\n", symbol, priceText(prices[symbol])))
	}
	return sb.String()
}
