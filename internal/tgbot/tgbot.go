package tgbot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/KotFed0t/portfolio_allocator_bot/config"
	"github.com/KotFed0t/portfolio_allocator_bot/data/session"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/tg/tgCallback.go"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/transport/telegram"
	customMW "github.com/KotFed0t/portfolio_allocator_bot/internal/transport/telegram/middleware"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, session model.Session) error
}

type TGBot struct {
	bot     *tele.Bot
	ctrl    *telegram.Controller
	session Session
}

func New(cfg *config.Config, ctrl *telegram.Controller, session Session) *TGBot {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		panic(err)
	}

	return &TGBot{bot: b, ctrl: ctrl, session: session}
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		// получение сесии и выбор метода контроллера на основе шага пользователя
		ctx := utils.CreateCtxWithRqID(c)
		rqID := utils.GetRequestIDFromCtx(ctx)
		chatSession, err := b.session.GetSession(ctx, strconv.FormatInt(c.Chat().ID, 10))
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return c.Send("что-то пошло не так...")
		}

		c.Set("session", chatSession)

		switch chatSession.State {
		case model.ExpectingDepositAmount:
			return b.ctrl.ProcessDepositAmount(c)
		case model.ExpectingTicker:
			return b.ctrl.ProcessTicker(c)
		case model.ExpectingWeight, model.ExpectingQuantity:
			return b.ctrl.ProcessValue(c)
		default:
			slog.Debug("unexpected chatSession state", slog.String("rqID", rqID), slog.Any("state", chatSession.State))
			return c.Send("сначала введите одну из команд, список: /start")
		}
	})

	b.bot.Handle("/start", b.ctrl.Start)

	b.bot.Handle("/targets", b.ctrl.ShowList(model.ListTargets))
	b.bot.Handle("/add_target", b.ctrl.Add(model.ListTargets))
	b.bot.Handle("/set_target", b.ctrl.Set(model.ListTargets))
	b.bot.Handle("/remove_target", b.ctrl.Remove(model.ListTargets))
	b.bot.Handle("/deposit", b.ctrl.Deposit)

	b.bot.Handle("/holdings", b.ctrl.ShowList(model.ListHoldings))
	b.bot.Handle("/add_holding", b.ctrl.Add(model.ListHoldings))
	b.bot.Handle("/set_holding", b.ctrl.Set(model.ListHoldings))
	b.bot.Handle("/holding_mode", b.ctrl.HoldingMode)
	b.bot.Handle("/remove_holding", b.ctrl.Remove(model.ListHoldings))

	b.bot.Handle("/rebalance_targets", b.ctrl.ShowList(model.ListRebalanceTargets))
	b.bot.Handle("/add_rebalance_target", b.ctrl.Add(model.ListRebalanceTargets))
	b.bot.Handle("/set_rebalance_target", b.ctrl.Set(model.ListRebalanceTargets))
	b.bot.Handle("/remove_rebalance_target", b.ctrl.Remove(model.ListRebalanceTargets))
	b.bot.Handle("/rebalance", b.ctrl.Rebalance)

	b.bot.Handle("/export", b.ctrl.Export)
	b.bot.Handle("/refresh_prices", b.ctrl.RefreshPrices)

	b.bot.Handle(&tele.Btn{Unique: tgCallback.AddItem}, b.ctrl.OnAddItem)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.EditItem}, b.ctrl.OnEditItem)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.RemoveItem}, b.ctrl.OnRemoveItem)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.ToggleMode}, b.ctrl.OnToggleMode)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.Calculate}, b.ctrl.OnCalculate)
}
