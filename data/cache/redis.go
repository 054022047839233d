package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/moexModel"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	"github.com/redis/go-redis/v9"
)

const quoteKeyPrefix = "quote:"

// RedisCache - общий для всех пользователей кэш котировок перед moex api
type RedisCache struct {
	redis      *redis.Client
	expiration time.Duration
}

func NewRedisCache(redisClient *redis.Client, expiration time.Duration) *RedisCache {
	return &RedisCache{redis: redisClient, expiration: expiration}
}

func quoteKey(ticker string) string {
	return quoteKeyPrefix + ticker
}

func (r *RedisCache) SetStocks(ctx context.Context, stocks []moexModel.StockInfo) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.SetStocks"
	slog.Debug("SetStocks start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(stocks)))

	pipe := r.redis.Pipeline()
	for _, stock := range stocks {
		stockJson, err := json.Marshal(stock)
		if err != nil {
			slog.Error(
				"can't marshall stock in SetStocks",
				slog.String("rqID", rqID),
				slog.String("op", op),
				slog.String("err", err.Error()),
				slog.Any("stock", stock),
			)
			return fmt.Errorf("marshal stock %s: %w", stock.Ticker, err)
		}

		pipe.Set(ctx, quoteKey(stock.Ticker), stockJson, r.expiration)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		slog.Error("failed on pipe.Exec", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetStocks completed", slog.String("rqID", rqID), slog.String("op", op))

	return nil
}

func (r *RedisCache) SetStock(ctx context.Context, stock moexModel.StockInfo) error {
	return r.SetStocks(ctx, []moexModel.StockInfo{stock})
}

func (r *RedisCache) GetStock(ctx context.Context, ticker string) (moexModel.StockInfo, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.GetStock"
	slog.Debug("GetStock start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", ticker))

	res, err := r.redis.Get(ctx, quoteKey(ticker)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return moexModel.StockInfo{}, ErrNotFound
		}
		slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()), slog.String("ticker", ticker))
		return moexModel.StockInfo{}, err
	}

	stockInfo := moexModel.StockInfo{}
	err = json.Unmarshal([]byte(res), &stockInfo)
	if err != nil {
		slog.Error(
			"can't unmarshall stock in GetStock",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.String("err", err.Error()),
			slog.String("resultFromRedis", res),
		)
		return moexModel.StockInfo{}, fmt.Errorf("unmarshal stock %s: %w", ticker, err)
	}

	slog.Debug("GetStock finished", slog.String("rqID", rqID), slog.String("op", op))

	return stockInfo, nil
}
