package investHelperService

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/engine"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/pricecache"
)

// pending - последняя запущенная асинхронная операция одного вида (добавление в список, сохранение списка).
// Новая операция отменяет предыдущую, а результат старой не применяется.
type pending struct {
	generation uint64
	cancel     context.CancelFunc
}

// Workspace - состояние одного пользователя: списки, кэш цен и ошибки валидации.
// Все поля, кроме prices и resolver, читаются и меняются только под mu.
type Workspace struct {
	mu sync.Mutex

	chatID int64
	userID int64
	// loaded - сохранённые списки прочитаны из БД. До этого списки не сохраняются.
	loaded bool

	lists model.PortfolioLists
	names map[string]string
	errs  model.ValidationErrors

	prices   *pricecache.Cache
	resolver *pricecache.Resolver
	engine   *engine.Engine

	adds  map[model.ListKind]*pending
	saves map[model.ListKind]*pending
}

func newWorkspace(chatID int64, lookup pricecache.PriceLookup, lookupTimeout time.Duration) *Workspace {
	prices := pricecache.New()
	errs := model.ValidationErrors{}

	return &Workspace{
		chatID:   chatID,
		names:    make(map[string]string),
		errs:     errs,
		prices:   prices,
		resolver: pricecache.NewResolver(prices, lookup, lookupTimeout),
		engine:   engine.New(prices, errs),
		adds:     make(map[model.ListKind]*pending),
		saves:    make(map[model.ListKind]*pending),
	}
}

func targetsOf(lists *model.PortfolioLists, kind model.ListKind) *[]model.TargetStock {
	if kind == model.ListRebalanceTargets {
		return &lists.RebalanceTargets
	}
	return &lists.Targets
}

func (ws *Workspace) targets(kind model.ListKind) *[]model.TargetStock {
	return targetsOf(&ws.lists, kind)
}

func (ws *Workspace) symbols(kind model.ListKind) []string {
	if kind == model.ListHoldings {
		return engine.HoldingSymbols(ws.lists.Holdings)
	}
	return engine.TargetSymbols(*ws.targets(kind))
}

// trackedSymbols - все символы из всех списков, цены которых нужны расчётам
func (ws *Workspace) trackedSymbols() []string {
	res := engine.TargetSymbols(ws.lists.Targets)
	res = append(res, engine.TargetSymbols(ws.lists.RebalanceTargets)...)
	res = append(res, engine.HoldingSymbols(ws.lists.Holdings)...)
	return res
}

func (ws *Workspace) targetIndex(kind model.ListKind, symbol string) int {
	return slices.IndexFunc(*ws.targets(kind), func(t model.TargetStock) bool {
		return t.Symbol == symbol
	})
}

func (ws *Workspace) holdingIndex(symbol string) int {
	return slices.IndexFunc(ws.lists.Holdings, func(h model.Holding) bool {
		return h.Symbol == symbol
	})
}

// merge ставит сохранённые элементы в начало списков, добавленные без БД идут после них.
// Возвращает списки, в которых есть ещё не сохранённые элементы. Вызывать под mu.
func (ws *Workspace) merge(stored model.PortfolioLists) []model.ListKind {
	var unsaved []model.ListKind

	for _, kind := range []model.ListKind{model.ListTargets, model.ListRebalanceTargets} {
		local := *ws.targets(kind)
		list := slices.Clone(*targetsOf(&stored, kind))
		for _, target := range local {
			if !slices.ContainsFunc(list, func(t model.TargetStock) bool { return t.Symbol == target.Symbol }) {
				list = append(list, target)
			}
		}
		if len(list) > len(*targetsOf(&stored, kind)) {
			unsaved = append(unsaved, kind)
		}
		if len(local) > 0 {
			ws.errs.ClearPrefix(kind.Keys().ItemPrefix)
		}
		*ws.targets(kind) = list

		for _, target := range list {
			if _, ok := ws.names[target.Symbol]; !ok && target.DisplayName != "" {
				ws.names[target.Symbol] = target.DisplayName
			}
		}
	}

	local := ws.lists.Holdings
	holdings := slices.Clone(stored.Holdings)
	for _, holding := range local {
		if !slices.ContainsFunc(holdings, func(h model.Holding) bool { return h.Symbol == holding.Symbol }) {
			holdings = append(holdings, holding)
		}
	}
	if len(holdings) > len(stored.Holdings) {
		unsaved = append(unsaved, model.ListHoldings)
	}
	if len(local) > 0 {
		ws.errs.ClearPrefix(model.ListHoldings.Keys().ItemPrefix)
	}
	ws.lists.Holdings = holdings

	return unsaved
}

// begin регистрирует новую операцию вида kind, отменяя предыдущую. Вызывать под mu.
func begin(ctx context.Context, ops map[model.ListKind]*pending, kind model.ListKind, timeout time.Duration) (uint64, context.Context) {
	op, ok := ops[kind]
	if !ok {
		op = &pending{}
		ops[kind] = op
	}
	if op.cancel != nil {
		op.cancel()
	}
	op.generation++

	var opCtx context.Context
	if timeout > 0 {
		opCtx, op.cancel = context.WithTimeout(context.WithoutCancel(ctx), timeout)
	} else {
		opCtx, op.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	return op.generation, opCtx
}

// current сообщает, что операция с поколением gen всё ещё последняя. Вызывать под mu.
func current(ops map[model.ListKind]*pending, kind model.ListKind, gen uint64) bool {
	op, ok := ops[kind]
	return ok && op.generation == gen
}

// validateList перепроверяет сумму весов списка после изменения. Вызывать под mu.
func (ws *Workspace) validateList(kind model.ListKind) {
	keys := kind.Keys()
	if keys.Sum == "" {
		return
	}
	ws.engine.Gate().TargetList(keys.Sum, *ws.targets(kind))
}

// view - копия состояния для отдачи наружу. Вызывать под mu.
func (ws *Workspace) view() model.PortfolioView {
	return model.PortfolioView{
		PortfolioLists: model.PortfolioLists{
			Targets:          slices.Clone(ws.lists.Targets),
			RebalanceTargets: slices.Clone(ws.lists.RebalanceTargets),
			Holdings:         slices.Clone(ws.lists.Holdings),
		},
		Names:  maps.Clone(ws.names),
		Prices: ws.prices.Snapshot(),
		Errors: ws.errs.Copy(),
	}
}

func (ws *Workspace) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, op := range ws.adds {
		if op.cancel != nil {
			op.cancel()
		}
	}
	ws.resolver.Close()
}
