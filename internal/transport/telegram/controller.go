package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/KotFed0t/portfolio_allocator_bot/data/session"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/converter/telebotConverter"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/service"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	tele "gopkg.in/telebot.v4"
)

type InvestHelperService interface {
	RegUser(ctx context.Context, chatID int64) error
	GetPortfolio(ctx context.Context, chatID int64) model.PortfolioView
	AddTarget(ctx context.Context, chatID int64, kind model.ListKind, symbol, percentage string) (model.PortfolioView, error)
	UpdateTargetPercentage(ctx context.Context, chatID int64, kind model.ListKind, symbol, percentage string) (model.PortfolioView, error)
	RemoveTarget(ctx context.Context, chatID int64, kind model.ListKind, symbol string) (model.PortfolioView, error)
	AddHolding(ctx context.Context, chatID int64, symbol string, mode model.QuantityMode, quantity string) (model.PortfolioView, error)
	UpdateHolding(ctx context.Context, chatID int64, symbol, quantity string) (model.PortfolioView, error)
	SetHoldingMode(ctx context.Context, chatID int64, symbol string, mode model.QuantityMode) (model.PortfolioView, error)
	RemoveHolding(ctx context.Context, chatID int64, symbol string) (model.PortfolioView, error)
	CalculateDeposit(ctx context.Context, chatID int64, amount string) model.DepositResult
	CalculateRebalance(ctx context.Context, chatID int64) model.RebalanceResult
	RefreshPrices(ctx context.Context, chatID int64) model.PortfolioView
	ExportReport(ctx context.Context, chatID int64, amount string) (downloadLink string, err error)
}

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, session model.Session) error
}

type Controller struct {
	investHelperService InvestHelperService
	session             Session
}

func NewController(investHelperService InvestHelperService, session Session) *Controller {
	return &Controller{
		investHelperService: investHelperService,
		session:             session,
	}
}

func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := ctrl.investHelperService.RegUser(ctx, c.Chat().ID)
	if err != nil {
		// списки продолжат работать в памяти, сохранение повторится при следующем изменении
		slog.Warn("user not registered", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}

	return c.Send(helpMsg)
}

// ShowList - /targets, /rebalance_targets, /holdings
func (ctrl *Controller) ShowList(kind model.ListKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := utils.CreateCtxWithRqID(c)
		view := ctrl.investHelperService.GetPortfolio(ctx, c.Chat().ID)
		return c.Send(telebotConverter.ListResponse(kind, view))
	}
}

// Add - /add_target SBER 40, /add_holding SBER 10 [₽]. Без аргументов спрашивает недостающее по шагам.
func (ctrl *Controller) Add(kind model.ListKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := utils.CreateCtxWithRqID(c)
		args := c.Args()

		switch {
		case len(args) == 0:
			return ctrl.expect(ctx, c, model.Session{State: model.ExpectingTicker, ListKind: kind}, enterTickerMsg)
		case len(args) == 1:
			return ctrl.expectValue(ctx, c, kind, strings.ToUpper(args[0]), false)
		}

		view, err := ctrl.add(ctx, c.Chat().ID, kind, args[0], strings.Join(args[1:], " "))
		return ctrl.sendList(ctx, c, kind, view, err)
	}
}

// Set - /set_target SBER 30, /set_holding SBER 15
func (ctrl *Controller) Set(kind model.ListKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := utils.CreateCtxWithRqID(c)
		args := c.Args()

		switch len(args) {
		case 0:
			return c.Send(usageMsg(kind, "set"))
		case 1:
			return ctrl.expectValue(ctx, c, kind, strings.ToUpper(args[0]), true)
		}

		view, err := ctrl.update(ctx, c.Chat().ID, kind, args[0], strings.Join(args[1:], " "))
		return ctrl.sendList(ctx, c, kind, view, err)
	}
}

// Remove - /remove_target SBER
func (ctrl *Controller) Remove(kind model.ListKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := utils.CreateCtxWithRqID(c)
		args := c.Args()
		if len(args) == 0 {
			return c.Send(usageMsg(kind, "remove"))
		}

		view, err := ctrl.remove(ctx, c.Chat().ID, kind, args[0])
		return ctrl.sendList(ctx, c, kind, view, err)
	}
}

// HoldingMode - /holding_mode SBER shares|value
func (ctrl *Controller) HoldingMode(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	args := c.Args()
	if len(args) < 2 {
		return c.Send(holdingModeUsageMsg)
	}

	mode, ok := parseMode(args[1])
	if !ok {
		return c.Send(holdingModeUsageMsg)
	}

	view, err := ctrl.investHelperService.SetHoldingMode(ctx, c.Chat().ID, args[0], mode)
	return ctrl.sendList(ctx, c, model.ListHoldings, view, err)
}

// Deposit - /deposit 100000 или /deposit с вводом суммы следующим сообщением
func (ctrl *Controller) Deposit(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	args := c.Args()
	if len(args) == 0 {
		chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
		if err != nil {
			return c.Send(internalErrMsg)
		}
		chatSession.State = model.ExpectingDepositAmount
		return ctrl.expect(ctx, c, chatSession, enterAmountMsg)
	}

	return ctrl.calculateDeposit(ctx, c, strings.Join(args, ""))
}

func (ctrl *Controller) ProcessDepositAmount(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	return ctrl.calculateDeposit(ctx, c, c.Message().Text)
}

func (ctrl *Controller) calculateDeposit(ctx context.Context, c tele.Context, amount string) error {
	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	result := ctrl.investHelperService.CalculateDeposit(ctx, c.Chat().ID, amount)

	chatSession.State = model.DefaultState
	if result.Lines != nil {
		chatSession.LastAmount = result.Amount
	}
	_ = ctrl.setSession(ctx, c, chatSession)

	view := ctrl.investHelperService.GetPortfolio(ctx, c.Chat().ID)
	return c.Send(telebotConverter.DepositResponse(result, view.Names))
}

func (ctrl *Controller) Rebalance(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	result := ctrl.investHelperService.CalculateRebalance(ctx, c.Chat().ID)
	view := ctrl.investHelperService.GetPortfolio(ctx, c.Chat().ID)

	return c.Send(telebotConverter.RebalanceResponse(result, view.Names))
}

// Export - /export [сумма пополнения]. Без суммы берётся последняя посчитанная.
func (ctrl *Controller) Export(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	amount := strings.Join(c.Args(), "")
	if amount == "" {
		chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
		if err == nil {
			amount = chatSession.LastAmount
		}
	}

	_ = c.Notify(tele.UploadingDocument)

	link, err := ctrl.investHelperService.ExportReport(ctx, c.Chat().ID, amount)
	if err != nil {
		if errors.Is(err, service.ErrNothingToExport) {
			return c.Send(nothingToExportMsg)
		}
		slog.Error("got error from investHelperService.ExportReport", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send("📄 Отчёт: " + link)
}

func (ctrl *Controller) RefreshPrices(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	view := ctrl.investHelperService.RefreshPrices(ctx, c.Chat().ID)
	return c.Send(telebotConverter.PricesResponse(view.Prices))
}

func (ctrl *Controller) ProcessTicker(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	return ctrl.expectValue(ctx, c, chatSession.ListKind, strings.ToUpper(strings.TrimSpace(c.Message().Text)), false)
}

// ProcessValue - ввод веса (ExpectingWeight) или количества (ExpectingQuantity) для тикера из сессии
func (ctrl *Controller) ProcessValue(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	kind := chatSession.ListKind
	symbol := chatSession.StockTicker
	editing := chatSession.Editing

	chatSession.State = model.DefaultState
	chatSession.StockTicker = ""
	chatSession.Editing = false
	_ = ctrl.setSession(ctx, c, chatSession)

	var view model.PortfolioView
	if editing {
		view, err = ctrl.update(ctx, c.Chat().ID, kind, symbol, c.Message().Text)
	} else {
		view, err = ctrl.add(ctx, c.Chat().ID, kind, symbol, c.Message().Text)
	}

	return ctrl.sendList(ctx, c, kind, view, err)
}

func (ctrl *Controller) OnAddItem(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	kind, _, ok := callbackArgs(c)
	if !ok {
		return c.Respond()
	}

	_ = c.Respond()
	return ctrl.expect(ctx, c, model.Session{State: model.ExpectingTicker, ListKind: kind}, enterTickerMsg)
}

func (ctrl *Controller) OnEditItem(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	kind, symbol, ok := callbackArgs(c)
	if !ok || symbol == "" {
		return c.Respond()
	}

	_ = c.Respond()
	return ctrl.expectValue(ctx, c, kind, symbol, true)
}

func (ctrl *Controller) OnRemoveItem(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	kind, symbol, ok := callbackArgs(c)
	if !ok || symbol == "" {
		return c.Respond()
	}

	view, err := ctrl.remove(ctx, c.Chat().ID, kind, symbol)
	_ = c.Respond()
	if err != nil {
		return ctrl.sendList(ctx, c, kind, view, err)
	}

	return c.Edit(telebotConverter.ListResponse(kind, view))
}

func (ctrl *Controller) OnToggleMode(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	_, symbol, ok := callbackArgs(c)
	if !ok || symbol == "" {
		return c.Respond()
	}

	mode := model.QuantityModeValue
	view := ctrl.investHelperService.GetPortfolio(ctx, c.Chat().ID)
	for _, holding := range view.Holdings {
		if holding.Symbol == symbol && holding.QuantityMode == model.QuantityModeValue {
			mode = model.QuantityModeShares
		}
	}

	view, err := ctrl.investHelperService.SetHoldingMode(ctx, c.Chat().ID, symbol, mode)
	_ = c.Respond()
	if err != nil {
		return ctrl.sendList(ctx, c, model.ListHoldings, view, err)
	}

	return c.Edit(telebotConverter.ListResponse(model.ListHoldings, view))
}

func (ctrl *Controller) OnCalculate(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	kind, _, ok := callbackArgs(c)
	if !ok {
		return c.Respond()
	}
	_ = c.Respond()

	if kind != model.ListTargets {
		return ctrl.Rebalance(c)
	}

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}
	if chatSession.LastAmount == "" {
		chatSession.State = model.ExpectingDepositAmount
		return ctrl.expect(ctx, c, chatSession, enterAmountMsg)
	}

	return ctrl.calculateDeposit(ctx, c, chatSession.LastAmount)
}

func (ctrl *Controller) add(ctx context.Context, chatID int64, kind model.ListKind, symbol, value string) (model.PortfolioView, error) {
	if kind == model.ListHoldings {
		quantity, mode := parseQuantity(value)
		if mode == "" {
			mode = model.QuantityModeShares
		}
		return ctrl.investHelperService.AddHolding(ctx, chatID, symbol, mode, quantity)
	}
	return ctrl.investHelperService.AddTarget(ctx, chatID, kind, symbol, strings.TrimSuffix(strings.TrimSpace(value), "%"))
}

func (ctrl *Controller) update(ctx context.Context, chatID int64, kind model.ListKind, symbol, value string) (model.PortfolioView, error) {
	if kind == model.ListHoldings {
		quantity, mode := parseQuantity(value)
		if mode != "" {
			if view, err := ctrl.investHelperService.SetHoldingMode(ctx, chatID, symbol, mode); err != nil {
				return view, err
			}
		}
		return ctrl.investHelperService.UpdateHolding(ctx, chatID, symbol, quantity)
	}
	return ctrl.investHelperService.UpdateTargetPercentage(ctx, chatID, kind, symbol, strings.TrimSuffix(strings.TrimSpace(value), "%"))
}

func (ctrl *Controller) remove(ctx context.Context, chatID int64, kind model.ListKind, symbol string) (model.PortfolioView, error) {
	if kind == model.ListHoldings {
		return ctrl.investHelperService.RemoveHolding(ctx, chatID, symbol)
	}
	return ctrl.investHelperService.RemoveTarget(ctx, chatID, kind, symbol)
}

// sendList отвечает списком после изменения. Ошибка валидации уже есть в самом списке.
func (ctrl *Controller) sendList(ctx context.Context, c tele.Context, kind model.ListKind, view model.PortfolioView, err error) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	switch {
	case err == nil, errors.Is(err, service.ErrValidation) && view.Errors != nil:
		return c.Send(telebotConverter.ListResponse(kind, view))
	case errors.Is(err, service.ErrValidation):
		return c.Send(invalidInputMsg)
	case errors.Is(err, service.ErrNotFound):
		return c.Send(notInListMsg)
	case errors.Is(err, service.ErrSuperseded):
		// ответит более новый запрос
		return nil
	default:
		slog.Error("got error from investHelperService", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}
}

// expectValue запоминает тикер и ждёт вес или количество следующим сообщением
func (ctrl *Controller) expectValue(ctx context.Context, c tele.Context, kind model.ListKind, symbol string, editing bool) error {
	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.ListKind = kind
	chatSession.StockTicker = symbol
	chatSession.Editing = editing

	msg := enterWeightMsg(symbol)
	chatSession.State = model.ExpectingWeight
	if kind == model.ListHoldings {
		msg = enterQuantityMsg(symbol)
		chatSession.State = model.ExpectingQuantity
	}

	return ctrl.expect(ctx, c, chatSession, msg)
}

func (ctrl *Controller) expect(ctx context.Context, c tele.Context, chatSession model.Session, msg string) error {
	if chatSession.LastAmount == "" {
		if stored, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c); err == nil {
			chatSession.LastAmount = stored.LastAmount
		}
	}

	if err := ctrl.setSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}
	return c.Send(msg)
}

func (ctrl *Controller) setSession(ctx context.Context, c tele.Context, chatSession model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := ctrl.session.SetSession(ctx, strconv.FormatInt(c.Chat().ID, 10), chatSession)
	if err != nil {
		slog.Error("got error from session.SetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}
	c.Set("session", chatSession)
	return nil
}

// getSessionFromTeleCtxOrStorage - отсутствие сессии не ошибка, у нового пользователя её просто нет
func (ctrl *Controller) getSessionFromTeleCtxOrStorage(ctx context.Context, c tele.Context) (model.Session, error) {
	chatSession, ok := c.Get("session").(model.Session)
	if ok {
		return chatSession, nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	chatSession, err := ctrl.session.GetSession(ctx, strconv.FormatInt(c.Chat().ID, 10))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return model.Session{}, nil
		}
		slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.Session{}, err
	}
	return chatSession, nil
}

// callbackArgs разбирает данные кнопки: вид списка и, если есть, тикер
func callbackArgs(c tele.Context) (kind model.ListKind, symbol string, ok bool) {
	args := c.Args()
	if len(args) == 0 {
		return "", "", false
	}
	kind, ok = model.ParseListKind(args[0])
	if len(args) > 1 {
		symbol = args[1]
	}
	return kind, symbol, ok
}

// parseQuantity - "10" в штуках, "1500 ₽" или "1500р" суммой. Пустой mode - режим не указан.
func parseQuantity(raw string) (quantity string, mode model.QuantityMode) {
	raw = strings.TrimSpace(raw)
	for _, suffix := range []string{"₽", "руб", "р", "rub"} {
		if trimmed, ok := strings.CutSuffix(strings.ToLower(raw), suffix); ok {
			return strings.TrimSpace(trimmed), model.QuantityModeValue
		}
	}
	for _, suffix := range []string{"шт", "шт."} {
		if trimmed, ok := strings.CutSuffix(strings.ToLower(raw), suffix); ok {
			return strings.TrimSpace(trimmed), model.QuantityModeShares
		}
	}
	if raw == "-" {
		return "", ""
	}
	return raw, ""
}

func parseMode(raw string) (model.QuantityMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(model.QuantityModeShares), "шт":
		return model.QuantityModeShares, true
	case string(model.QuantityModeValue), "₽", "руб":
		return model.QuantityModeValue, true
	default:
		return "", false
	}
}
