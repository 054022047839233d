package investHelperService

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/portfolio_allocator_bot/data/cache"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/externalApi"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/moexModel"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/service"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/tickerclass"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	"github.com/shopspring/decimal"
)

// quotes - источник цен и названий для движка: сначала общий кэш, потом moex api
type quotes struct {
	cache   Cache
	moexApi MoexApi
}

func (q *quotes) getStockInfo(ctx context.Context, ticker string) (moexModel.StockInfo, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "quotes.getStockInfo"

	stockInfo, err := q.cache.GetStock(ctx, ticker)
	if err == nil {
		return stockInfo, nil
	}

	if !errors.Is(err, cache.ErrNotFound) {
		slog.Warn("can't get stock info from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	stockInfo, err = q.moexApi.GetStockInfo(ctx, ticker)
	if err != nil {
		if errors.Is(err, externalApi.ErrNotFound) {
			slog.Warn("stock not found in moexApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))
			return moexModel.StockInfo{}, service.ErrNotFound
		}
		slog.Error("can't get stock info from moexApi", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return moexModel.StockInfo{}, err
	}

	go func() {
		if err := q.cache.SetStock(context.WithoutCancel(ctx), stockInfo); err != nil {
			slog.Warn("can't save stock info to cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	return stockInfo, nil
}

func (q *quotes) getActiveStockInfo(ctx context.Context, ticker string) (moexModel.StockInfo, error) {
	stockInfo, err := q.getStockInfo(ctx, ticker)
	if err != nil {
		return moexModel.StockInfo{}, err
	}

	if !stockInfo.Tradable() {
		return moexModel.StockInfo{}, service.ErrStockNotActive
	}

	return stockInfo, nil
}

// LookupPrice - nil без ошибки, если бумаги нет или она не торгуется
func (q *quotes) LookupPrice(ctx context.Context, symbol string) (*decimal.Decimal, error) {
	stockInfo, err := q.getActiveStockInfo(ctx, tickerclass.StripExchange(symbol))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrStockNotActive) {
			return nil, nil
		}
		return nil, err
	}

	return &stockInfo.Price, nil
}

// LookupName - nil без ошибки, если тикер не распознан
func (q *quotes) LookupName(ctx context.Context, symbol string) (*string, error) {
	if !tickerclass.IsStock(symbol) {
		slog.Info("ticker rejected by classifier", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("symbol", symbol), slog.String("class", tickerclass.Classify(symbol).String()))
		return nil, nil
	}

	stockInfo, err := q.getStockInfo(ctx, tickerclass.StripExchange(symbol))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	name := stockInfo.Shortname
	if name == "" {
		name = stockInfo.Ticker
	}
	return &name, nil
}
