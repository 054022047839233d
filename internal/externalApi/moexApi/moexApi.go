package moexApi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/KotFed0t/portfolio_allocator_bot/config"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/externalApi"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/moexModel"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const securitiesUrl = "/iss/engines/stock/markets/shares/boards/TQBR/securities.json"

const defaultBreakerFailures = 5

// MoexApi - клиент ISS. Запросы ограничены по частоте, при серии сбоев api перестаёт вызываться
// на BreakerTimeout и сразу отвечает gobreaker.ErrOpenState.
type MoexApi struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func New(cfg *config.Config) *MoexApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.MoexApi.Url)

	limit := rate.Inf
	if cfg.API.MoexApi.RPS > 0 {
		limit = rate.Limit(cfg.API.MoexApi.RPS)
	}

	failures := cfg.API.MoexApi.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "moexApi",
		Timeout: cfg.API.MoexApi.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// отмена запроса вызывающим - не сбой api
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})

	return &MoexApi{client: client, limiter: rate.NewLimiter(limit, 1), breaker: breaker}
}

func baseParams() map[string]string {
	return map[string]string{
		"iss.meta":           "off",
		"securities.columns": "SECID,SHORTNAME,LOTSIZE,CURRENCYID,STATUS",
		"marketdata.columns": "SECID,MARKETPRICE",
	}
}

func (a *MoexApi) request(ctx context.Context, params map[string]string) (moexModel.RawStocksInfo, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return moexModel.RawStocksInfo{}, err
	}

	res, err := a.breaker.Execute(func() (interface{}, error) {
		return a.doRequest(ctx, params)
	})
	if err != nil {
		return moexModel.RawStocksInfo{}, err
	}

	return res.(moexModel.RawStocksInfo), nil
}

func (a *MoexApi) doRequest(ctx context.Context, params map[string]string) (moexModel.RawStocksInfo, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(params).
		Get(securitiesUrl)
	if err != nil {
		slog.Error("error while dialing MoexApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return moexModel.RawStocksInfo{}, err
	}

	if resp.IsError() {
		slog.Error("MoexApi responded with error status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return moexModel.RawStocksInfo{}, fmt.Errorf("moex api status %d", resp.StatusCode())
	}

	rawStocksInfo := moexModel.RawStocksInfo{}
	err = json.Unmarshal(resp.Body(), &rawStocksInfo)
	if err != nil {
		slog.Error("can't unmarshall response into moexModel.RawStocksInfo", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return moexModel.RawStocksInfo{}, err
	}

	return rawStocksInfo, nil
}

// GetStocksInfo - все бумаги режима торгов TQBR, используется для прогрева кэша
func (a *MoexApi) GetStocksInfo(ctx context.Context) ([]moexModel.StockInfo, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start MoexApi.GetStocksInfo request", slog.String("rqID", rqID))

	rawStocksInfo, err := a.request(ctx, baseParams())
	if err != nil {
		return nil, err
	}

	res, err := parseRawStocksInfoToSlice(rawStocksInfo)
	if err != nil {
		slog.Error("can't parse raw data", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	slog.Debug("MoexApi.GetStocksInfo request complete", slog.String("rqID", rqID), slog.Int("count", len(res)))

	return res, nil
}

func (a *MoexApi) GetStockInfo(ctx context.Context, ticker string) (moexModel.StockInfo, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Debug("start MoexApi.GetStockInfo request", slog.String("rqID", rqID), slog.String("ticker", ticker))

	params := baseParams()
	params["securities"] = ticker

	rawStocksInfo, err := a.request(ctx, params)
	if err != nil {
		return moexModel.StockInfo{}, err
	}

	res, err := parseRawStocksInfoSingle(rawStocksInfo)
	if err != nil {
		if !errors.Is(err, externalApi.ErrNotFound) {
			slog.Error("can't parse raw data", slog.String("err", err.Error()), slog.String("rqID", rqID))
		}
		return moexModel.StockInfo{}, err
	}

	slog.Debug("MoexApi.GetStockInfo request complete", slog.String("rqID", rqID))

	return res, nil
}

func parseRawStocksInfoToSlice(rawStocksInfo moexModel.RawStocksInfo) ([]moexModel.StockInfo, error) {
	res := make([]moexModel.StockInfo, 0, len(rawStocksInfo.Marketdata.Data))

	err := handleRawStocksInfo(rawStocksInfo, func(stock moexModel.StockInfo) {
		res = append(res, stock)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func parseRawStocksInfoSingle(rawStocksInfo moexModel.RawStocksInfo) (moexModel.StockInfo, error) {
	if len(rawStocksInfo.Marketdata.Data) == 0 {
		return moexModel.StockInfo{}, externalApi.ErrNotFound
	}

	res, err := parseRawStocksInfoToSlice(rawStocksInfo)
	if err != nil {
		return moexModel.StockInfo{}, err
	}

	if len(res) != 1 {
		return moexModel.StockInfo{}, errors.New("unexpected slice length, expected only 1 element")
	}

	return res[0], nil
}

func handleRawStocksInfo(rawStocksInfo moexModel.RawStocksInfo, handleFn func(stock moexModel.StockInfo)) error {
	if len(rawStocksInfo.Marketdata.Data) != len(rawStocksInfo.Securities.Data) {
		return errors.New("lengths Marketdata != Securities")
	}

	for i := 0; i < len(rawStocksInfo.Marketdata.Data); i++ {
		if len(rawStocksInfo.Marketdata.Data[i]) != len(rawStocksInfo.Marketdata.Columns) {
			return errors.New("invalid Marketdata")
		}

		if len(rawStocksInfo.Securities.Data[i]) != len(rawStocksInfo.Securities.Columns) {
			return errors.New("invalid Securities")
		}

		stockInfo := moexModel.StockInfo{}

		for j, column := range rawStocksInfo.Marketdata.Columns {
			value := rawStocksInfo.Marketdata.Data[i][j]
			ok := true
			switch column {
			case "SECID":
				stockInfo.Ticker, ok = value.(string)
			case "MARKETPRICE":
				// у неторгуемых бумаг цена null
				if value != nil {
					var price float64
					price, ok = value.(float64)
					if ok {
						stockInfo.Price = decimal.NewFromFloat(price)
					}
				}
			default:
				return fmt.Errorf("unknown column %s", column)
			}

			if !ok {
				return fmt.Errorf("invalid type %s = %v", column, value)
			}
		}

		for j, column := range rawStocksInfo.Securities.Columns {
			value := rawStocksInfo.Securities.Data[i][j]
			ok := true
			switch column {
			case "SECID":
				if value != stockInfo.Ticker {
					return fmt.Errorf("secID in securities and market data is not equal %v and %s", value, stockInfo.Ticker)
				}
			case "SHORTNAME":
				stockInfo.Shortname, ok = value.(string)
			case "LOTSIZE":
				var f float64
				f, ok = value.(float64)
				if ok {
					stockInfo.Lotsize = int(f)
				}
			case "CURRENCYID":
				stockInfo.CurrencyID, ok = value.(string)
				if ok && stockInfo.CurrencyID == "SUR" {
					stockInfo.CurrencyID = "RUB"
				}
			case "STATUS":
				var status string // чтобы далее не затенить переменную ok
				status, ok = value.(string)
				if ok && status == "A" {
					stockInfo.Status = true
				}
			default:
				return fmt.Errorf("unknown column %s", column)
			}

			if !ok {
				return fmt.Errorf("invalid type %s = %v", column, value)
			}
		}
		handleFn(stockInfo)
	}
	return nil
}
