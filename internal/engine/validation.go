package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/tickerclass"
	"github.com/shopspring/decimal"
)

var (
	ErrAmountRequired     = errors.New("amount required")
	ErrAmountNotPositive  = errors.New("must be positive")
	ErrPercentageSum      = errors.New("percentages must sum to 100%")
	ErrPercentageBounds   = errors.New("percentage must be between 0 and 100")
	ErrSymbolRequired     = errors.New("symbol required")
	ErrSymbolAlreadyAdded = errors.New("symbol already added")
	ErrQuantityInvalid    = errors.New("quantity must be a non-negative number")
)

var (
	epsilon = decimal.NewFromFloat(0.01)
	hundred = decimal.NewFromInt(100)
)

// ParseNumber разбирает пользовательский ввод. Запятая допускается как десятичный разделитель.
func ParseNumber(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func ValidateAmount(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrAmountRequired
	}
	amount, ok := ParseNumber(raw)
	if !ok || !amount.IsPositive() {
		return ErrAmountNotPositive
	}
	return nil
}

// ValidatePercentageSum - пустой список валиден, иначе сумма должна быть 100 ± 0.01
func ValidatePercentageSum(list []model.TargetStock) error {
	if len(list) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, target := range list {
		sum = sum.Add(target.TargetPercentage)
	}
	if sum.Sub(hundred).Abs().GreaterThan(epsilon) {
		return fmt.Errorf("%w (currently %s%%)", ErrPercentageSum, sum.StringFixed(1))
	}
	return nil
}

func ValidatePercentageBounds(raw string) error {
	pct, ok := ParseNumber(raw)
	if !ok || pct.IsNegative() || pct.GreaterThan(hundred) {
		return ErrPercentageBounds
	}
	return nil
}

// ValidateQuantity - пустое количество допустимо, позиция просто пока ничего не стоит
func ValidateQuantity(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	q, ok := ParseNumber(raw)
	if !ok || q.IsNegative() {
		return ErrQuantityInvalid
	}
	return nil
}

// ValidateSymbol ожидает уже обрезанный тикер в верхнем регистре. Суффикс площадки при сравнении не учитывается.
func ValidateSymbol(symbol string, existing []string) error {
	if symbol == "" {
		return ErrSymbolRequired
	}
	symbol = tickerclass.StripExchange(symbol)
	for _, s := range existing {
		if strings.EqualFold(tickerclass.StripExchange(strings.TrimSpace(s)), symbol) {
			return ErrSymbolAlreadyAdded
		}
	}
	return nil
}

// Gate записывает результат проверок в карту ошибок: ошибка выставляет ключ, успех - снимает.
type Gate struct {
	errs model.ValidationErrors
}

func NewGate(errs model.ValidationErrors) *Gate {
	return &Gate{errs: errs}
}

func (g *Gate) apply(key string, err error) bool {
	if err != nil {
		g.errs.Set(key, err.Error())
		return false
	}
	g.errs.Clear(key)
	return true
}

func (g *Gate) Amount(raw string) bool {
	return g.apply(model.ErrKeyAmount, ValidateAmount(raw))
}

// TargetList - одна проверка суммы весов для любого списка целей, ключ задаёт вызывающий
func (g *Gate) TargetList(key string, list []model.TargetStock) bool {
	return g.apply(key, ValidatePercentageSum(list))
}

func (g *Gate) PercentageBounds(key, raw string) bool {
	return g.apply(key, ValidatePercentageBounds(raw))
}

func (g *Gate) Quantity(key, raw string) bool {
	return g.apply(key, ValidateQuantity(raw))
}

func (g *Gate) Symbol(key, symbol string, existing []string) bool {
	return g.apply(key, ValidateSymbol(symbol, existing))
}

// Fail выставляет ключ с произвольной ошибкой, например после неудачного поиска тикера.
func (g *Gate) Fail(key string, err error) {
	g.apply(key, err)
}

func TargetSymbols(list []model.TargetStock) []string {
	res := make([]string, 0, len(list))
	for _, target := range list {
		res = append(res, target.Symbol)
	}
	return res
}

func HoldingSymbols(list []model.Holding) []string {
	res := make([]string, 0, len(list))
	for _, holding := range list {
		res = append(res, holding.Symbol)
	}
	return res
}
