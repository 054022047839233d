package investHelperService

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/engine"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/service"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/tickerclass"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	"github.com/shopspring/decimal"
)

// normalizeSymbol приводит тикер к виду, в котором он хранится в списках: SBER.ME и SBER - одна бумага.
// Тикеры с неподдерживаемых площадок остаются как есть и отсеиваются при поиске названия.
func normalizeSymbol(raw string) string {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if tickerclass.IsStock(symbol) {
		return tickerclass.StripExchange(symbol)
	}
	return symbol
}

// lookupSymbol ищет название тикера перед добавлением в список kind.
// Вызывается под ws.mu, на время запроса блокировка отпускается.
// Если за это время началось другое добавление в тот же список, возвращает service.ErrSuperseded.
func (s *InvestHelperService) lookupSymbol(ctx context.Context, ws *Workspace, kind model.ListKind, symbol string) (string, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.lookupSymbol"

	gen, lookupCtx := begin(ctx, ws.adds, kind, s.lookupTimeout)

	ws.mu.Unlock()
	name, err := s.quotes.LookupName(lookupCtx, symbol)
	ws.mu.Lock()

	if !current(ws.adds, kind, gen) {
		slog.Debug("symbol lookup superseded", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
		return "", service.ErrSuperseded
	}
	ws.adds[kind].cancel()

	if err != nil || name == nil {
		if err != nil {
			slog.Error("got error from quotes.LookupName", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		ws.engine.Gate().Fail(kind.Keys().New, fmt.Errorf("couldn't find %s", symbol))
		return "", service.ErrValidation
	}

	return *name, nil
}

// AddTarget добавляет тикер в список целевых весов (депозит или ребалансировка).
func (s *InvestHelperService) AddTarget(ctx context.Context, chatID int64, kind model.ListKind, rawSymbol, rawPercentage string) (model.PortfolioView, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.AddTarget"

	slog.Debug("AddTarget start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", rawSymbol), slog.String("percentage", rawPercentage))
	defer func() {
		slog.Debug("AddTarget finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	ws := s.workspace(ctx, chatID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	symbol := normalizeSymbol(rawSymbol)
	key := kind.Keys().New
	gate := ws.engine.Gate()

	if !gate.Symbol(key, symbol, ws.symbols(kind)) || !gate.PercentageBounds(key, rawPercentage) {
		return ws.view(), service.ErrValidation
	}

	name, err := s.lookupSymbol(ctx, ws, kind, symbol)
	if err != nil {
		return ws.view(), err
	}

	// пока шёл запрос, список мог измениться
	if !gate.Symbol(key, symbol, ws.symbols(kind)) {
		return ws.view(), service.ErrValidation
	}

	pct, _ := engine.ParseNumber(rawPercentage)
	list := ws.targets(kind)
	*list = append(*list, model.TargetStock{Symbol: symbol, TargetPercentage: pct, DisplayName: name})
	ws.names[symbol] = name

	s.afterChange(ctx, ws, kind)

	return ws.view(), nil
}

// UpdateTargetPercentage меняет вес тикера. Вес вне 0..100 не применяется, ошибка пишется в ключ элемента.
func (s *InvestHelperService) UpdateTargetPercentage(ctx context.Context, chatID int64, kind model.ListKind, rawSymbol, rawPercentage string) (model.PortfolioView, error) {
	ws := s.workspace(ctx, chatID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	idx := ws.targetIndex(kind, normalizeSymbol(rawSymbol))
	if idx < 0 {
		return ws.view(), service.ErrNotFound
	}

	if !ws.engine.Gate().PercentageBounds(kind.Keys().Item(idx), rawPercentage) {
		return ws.view(), service.ErrValidation
	}

	pct, _ := engine.ParseNumber(rawPercentage)
	(*ws.targets(kind))[idx].TargetPercentage = pct

	s.afterChange(ctx, ws, kind)

	return ws.view(), nil
}

func (s *InvestHelperService) RemoveTarget(ctx context.Context, chatID int64, kind model.ListKind, rawSymbol string) (model.PortfolioView, error) {
	ws := s.workspace(ctx, chatID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	idx := ws.targetIndex(kind, normalizeSymbol(rawSymbol))
	if idx < 0 {
		return ws.view(), service.ErrNotFound
	}

	list := ws.targets(kind)
	*list = slices.Delete(*list, idx, idx+1)
	// индексы сдвинулись, ошибки элементов больше не относятся к своим строкам
	ws.errs.ClearPrefix(kind.Keys().ItemPrefix)

	s.afterChange(ctx, ws, kind)

	return ws.view(), nil
}

// AddHolding добавляет позицию. Пустое количество допустимо, его можно задать позже.
func (s *InvestHelperService) AddHolding(ctx context.Context, chatID int64, rawSymbol string, mode model.QuantityMode, rawQuantity string) (model.PortfolioView, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.AddHolding"

	slog.Debug("AddHolding start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", rawSymbol), slog.String("mode", string(mode)), slog.String("quantity", rawQuantity))
	defer func() {
		slog.Debug("AddHolding finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	ws := s.workspace(ctx, chatID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	symbol := normalizeSymbol(rawSymbol)
	key := model.ListHoldings.Keys().New
	gate := ws.engine.Gate()

	if !gate.Symbol(key, symbol, ws.symbols(model.ListHoldings)) || !gate.Quantity(key, rawQuantity) {
		return ws.view(), service.ErrValidation
	}

	name, err := s.lookupSymbol(ctx, ws, model.ListHoldings, symbol)
	if err != nil {
		return ws.view(), err
	}

	if !gate.Symbol(key, symbol, ws.symbols(model.ListHoldings)) {
		return ws.view(), service.ErrValidation
	}

	holding := model.Holding{Symbol: symbol, QuantityMode: mode}
	if mode != model.QuantityModeValue {
		holding.QuantityMode = model.QuantityModeShares
	}
	if q, ok := engine.ParseNumber(rawQuantity); ok {
		holding.SetQuantity(q)
	}

	ws.lists.Holdings = append(ws.lists.Holdings, holding)
	ws.names[symbol] = name

	s.afterChange(ctx, ws, model.ListHoldings)

	return ws.view(), nil
}

// UpdateHolding задаёт количество в текущем режиме позиции. Пустая строка обнуляет количество.
func (s *InvestHelperService) UpdateHolding(ctx context.Context, chatID int64, rawSymbol, rawQuantity string) (model.PortfolioView, error) {
	ws := s.workspace(ctx, chatID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	idx := ws.holdingIndex(normalizeSymbol(rawSymbol))
	if idx < 0 {
		return ws.view(), service.ErrNotFound
	}

	if !ws.engine.Gate().Quantity(model.ListHoldings.Keys().Item(idx), rawQuantity) {
		return ws.view(), service.ErrValidation
	}

	holding := &ws.lists.Holdings[idx]
	if q, ok := engine.ParseNumber(rawQuantity); ok {
		holding.SetQuantity(q)
	} else {
		holding.Shares = nil
		holding.Value = nil
	}

	s.afterChange(ctx, ws, model.ListHoldings)

	return ws.view(), nil
}

func (s *InvestHelperService) SetHoldingMode(ctx context.Context, chatID int64, rawSymbol string, mode model.QuantityMode) (model.PortfolioView, error) {
	if mode != model.QuantityModeShares && mode != model.QuantityModeValue {
		return model.PortfolioView{}, fmt.Errorf("unknown quantity mode %q: %w", mode, service.ErrValidation)
	}

	ws := s.workspace(ctx, chatID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	idx := ws.holdingIndex(normalizeSymbol(rawSymbol))
	if idx < 0 {
		return ws.view(), service.ErrNotFound
	}

	ws.lists.Holdings[idx].SetMode(mode)
	ws.errs.Clear(model.ListHoldings.Keys().Item(idx))

	s.afterChange(ctx, ws, model.ListHoldings)

	return ws.view(), nil
}

func (s *InvestHelperService) RemoveHolding(ctx context.Context, chatID int64, rawSymbol string) (model.PortfolioView, error) {
	ws := s.workspace(ctx, chatID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	idx := ws.holdingIndex(normalizeSymbol(rawSymbol))
	if idx < 0 {
		return ws.view(), service.ErrNotFound
	}

	ws.lists.Holdings = slices.Delete(ws.lists.Holdings, idx, idx+1)
	ws.errs.ClearPrefix(model.ListHoldings.Keys().ItemPrefix)

	s.afterChange(ctx, ws, model.ListHoldings)

	return ws.view(), nil
}

// CalculateDeposit распределяет сумму по целевым весам.
// Перед расчётом дожидается запущенных запросов цен, но не дольше таймаута одного запроса.
func (s *InvestHelperService) CalculateDeposit(ctx context.Context, chatID int64, amount string) model.DepositResult {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.CalculateDeposit"

	slog.Debug("CalculateDeposit start", slog.String("rqID", rqID), slog.String("op", op), slog.String("amount", amount))
	defer func() {
		slog.Debug("CalculateDeposit finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	ws := s.workspace(ctx, chatID)
	ws.resolver.Wait()

	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.deposit(amount)
}

// CalculateRebalance строит план сделок. Lines == nil, если расчёт невозможен.
func (s *InvestHelperService) CalculateRebalance(ctx context.Context, chatID int64) model.RebalanceResult {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.CalculateRebalance"

	slog.Debug("CalculateRebalance start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("CalculateRebalance finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	ws := s.workspace(ctx, chatID)
	ws.resolver.Wait()

	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.rebalance()
}

// deposit - вызывать под ws.mu
func (ws *Workspace) deposit(amount string) model.DepositResult {
	lines := ws.engine.Allocate(amount, ws.lists.Targets)
	return model.DepositResult{
		Amount: strings.TrimSpace(amount),
		Lines:  lines,
		Errors: ws.errs.Copy(),
	}
}

// rebalance - вызывать под ws.mu
func (ws *Workspace) rebalance() model.RebalanceResult {
	lines := ws.engine.Rebalance(ws.lists.Holdings, ws.lists.RebalanceTargets)

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.CurrentValue)
	}

	return model.RebalanceResult{
		TotalValue: total,
		Lines:      lines,
		Errors:     ws.errs.Copy(),
	}
}
