package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/moexModel"
	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetStock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, time.Minute)

	stock := moexModel.StockInfo{Ticker: "SBER", Shortname: "Сбербанк", Lotsize: 10, CurrencyID: "RUB", Status: true, Price: decimal.RequireFromString("301.5")}
	raw, err := json.Marshal(stock)
	require.NoError(t, err)

	mock.ExpectGet("quote:SBER").SetVal(string(raw))
	mock.ExpectGet("quote:GAZP").RedisNil()
	mock.ExpectGet("quote:LKOH").SetErr(errors.New("connection refused"))

	got, err := c.GetStock(context.Background(), "SBER")
	require.NoError(t, err)
	assert.Equal(t, "Сбербанк", got.Shortname)
	assert.True(t, got.Price.Equal(stock.Price))
	assert.True(t, got.Tradable())

	_, err = c.GetStock(context.Background(), "GAZP")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetStock(context.Background(), "LKOH")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_SetStocks(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, time.Minute)

	stocks := []moexModel.StockInfo{
		{Ticker: "SBER", Status: true, Price: decimal.NewFromInt(300)},
		{Ticker: "GAZP", Status: true, Price: decimal.NewFromInt(150)},
	}
	for _, s := range stocks {
		raw, err := json.Marshal(s)
		require.NoError(t, err)
		mock.ExpectSet("quote:"+s.Ticker, raw, time.Minute).SetVal("OK")
	}

	require.NoError(t, c.SetStocks(context.Background(), stocks))
	assert.NoError(t, mock.ExpectationsWereMet())
}
