package investHelperService

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/config"
	"github.com/KotFed0t/portfolio_allocator_bot/data/cache"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/externalApi"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/moexModel"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatID int64 = 100

type fakeMoex struct {
	mu     sync.Mutex
	stocks map[string]moexModel.StockInfo
	// block - тикеры, запрос которых висит до отмены контекста
	block   map[string]chan struct{}
	started chan string
}

func newFakeMoex(stocks ...moexModel.StockInfo) *fakeMoex {
	f := &fakeMoex{
		stocks:  make(map[string]moexModel.StockInfo),
		block:   make(map[string]chan struct{}),
		started: make(chan string, 16),
	}
	for _, s := range stocks {
		f.stocks[s.Ticker] = s
	}
	return f
}

func (f *fakeMoex) GetStockInfo(ctx context.Context, ticker string) (moexModel.StockInfo, error) {
	f.mu.Lock()
	block, blocked := f.block[ticker]
	stock, ok := f.stocks[ticker]
	f.mu.Unlock()

	if blocked {
		f.started <- ticker
		select {
		case <-block:
		case <-ctx.Done():
			return moexModel.StockInfo{}, ctx.Err()
		}
	}

	if !ok {
		return moexModel.StockInfo{}, externalApi.ErrNotFound
	}
	return stock, nil
}

func (f *fakeMoex) GetStocksInfo(ctx context.Context) ([]moexModel.StockInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]moexModel.StockInfo, 0, len(f.stocks))
	for _, s := range f.stocks {
		res = append(res, s)
	}
	return res, nil
}

type fakeCache struct {
	mu    sync.Mutex
	saved map[string]moexModel.StockInfo
}

func (f *fakeCache) GetStock(ctx context.Context, ticker string) (moexModel.StockInfo, error) {
	return moexModel.StockInfo{}, cache.ErrNotFound
}

func (f *fakeCache) SetStock(ctx context.Context, stock moexModel.StockInfo) error {
	return f.SetStocks(ctx, []moexModel.StockInfo{stock})
}

func (f *fakeCache) SetStocks(ctx context.Context, stocks []moexModel.StockInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]moexModel.StockInfo)
	}
	for _, s := range stocks {
		f.saved[s.Ticker] = s
	}
	return nil
}

func (f *fakeCache) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeRepo struct {
	mu        sync.Mutex
	ensureErr error
	// ensureFailures - сколько ближайших вызовов EnsureUser вернут ошибку
	ensureFailures int
	lists          model.PortfolioLists
	saved          map[model.ListKind]string
}

func (f *fakeRepo) EnsureUser(ctx context.Context, chatID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return 0, f.ensureErr
	}
	if f.ensureFailures > 0 {
		f.ensureFailures--
		return 0, errors.New("connection refused")
	}
	return 7, nil
}

func (f *fakeRepo) SetEnsureErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureErr = err
}

func (f *fakeRepo) SaveList(ctx context.Context, userID int64, kind model.ListKind, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[model.ListKind]string)
	}
	f.saved[kind] = string(data)
	return nil
}

func (f *fakeRepo) GetPortfolioLists(ctx context.Context, userID int64) (model.PortfolioLists, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists, nil
}

func (f *fakeRepo) Saved(kind model.ListKind) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[kind]
}

type fakeReportGenerator struct {
	report model.Report
}

func (f *fakeReportGenerator) Generate(ctx context.Context, report model.Report) ([]byte, string, error) {
	f.report = report
	return []byte("xlsx"), ".xlsx", nil
}

type fakeCloudStorage struct {
	filename string
	content  string
	deleted  bool
}

func (f *fakeCloudStorage) UploadFile(ctx context.Context, reader io.Reader, filename string) (string, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	f.filename = filename
	f.content = string(b)
	return "https://drive/" + filename, nil
}

func (f *fakeCloudStorage) DeleteOldFiles(ctx context.Context) error {
	f.deleted = true
	return nil
}

type testEnv struct {
	srv     *InvestHelperService
	moex    *fakeMoex
	cache   *fakeCache
	repo    *fakeRepo
	report  *fakeReportGenerator
	storage *fakeCloudStorage
}

func stock(ticker, name, price string) moexModel.StockInfo {
	return moexModel.StockInfo{Ticker: ticker, Shortname: name, Status: true, Lotsize: 1, Price: decimal.RequireFromString(price)}
}

func newTestEnv(t *testing.T, stocks ...moexModel.StockInfo) *testEnv {
	cfg := &config.Config{Engine: config.Engine{LookupTimeout: time.Second}}
	env := &testEnv{
		moex:    newFakeMoex(stocks...),
		cache:   &fakeCache{},
		repo:    &fakeRepo{},
		report:  &fakeReportGenerator{},
		storage: &fakeCloudStorage{},
	}
	env.srv = New(cfg, env.repo, env.cache, env.moex, env.report, env.storage)
	t.Cleanup(env.srv.Close)
	return env
}

func defaultStocks() []moexModel.StockInfo {
	return []moexModel.StockInfo{
		stock("SBER", "Сбербанк", "250"),
		stock("GAZP", "Газпром", "100"),
		stock("LKOH", "Лукойл", "7000"),
	}
}

func TestAddTarget(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	view, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, " sber ", "60")
	require.NoError(t, err)
	require.Len(t, view.Targets, 1)
	assert.Equal(t, "SBER", view.Targets[0].Symbol)
	assert.Equal(t, "Сбербанк", view.Targets[0].DisplayName)
	assert.Equal(t, "Сбербанк", view.Names["SBER"])
	assert.True(t, view.Errors.Has(model.ErrKeyPercentages), "60% alone does not sum to 100")

	view, err = env.srv.AddTarget(ctx, chatID, model.ListTargets, "GAZP", "40")
	require.NoError(t, err)
	assert.Len(t, view.Targets, 2)
	assert.False(t, view.Errors.Has(model.ErrKeyPercentages))

	assert.Eventually(t, func() bool {
		return strings.Contains(env.repo.Saved(model.ListTargets), "GAZP")
	}, time.Second, 10*time.Millisecond)
}

func TestAddTarget_Duplicate(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	_, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "100")
	require.NoError(t, err)

	view, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "sber", "10")
	require.ErrorIs(t, err, service.ErrValidation)
	assert.Len(t, view.Targets, 1)
	assert.Equal(t, "symbol already added", view.Errors[model.ErrKeyNewStock])

	// тот же тикер в другом списке допустим
	_, err = env.srv.AddTarget(ctx, chatID, model.ListRebalanceTargets, "SBER", "100")
	require.NoError(t, err)
}

func TestAddTarget_NotFound(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	view, err := env.srv.AddTarget(ctx, chatID, model.ListRebalanceTargets, "YNDX", "100")
	require.ErrorIs(t, err, service.ErrValidation)
	assert.Empty(t, view.RebalanceTargets)
	assert.Equal(t, "couldn't find YNDX", view.Errors[model.ErrKeyNewRebalanceStock])

	// фьючерс отсекается до запроса в api
	view, err = env.srv.AddTarget(ctx, chatID, model.ListRebalanceTargets, "SIZ4", "100")
	require.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, "couldn't find SIZ4", view.Errors[model.ErrKeyNewRebalanceStock])

	// успешное добавление снимает ошибку
	view, err = env.srv.AddTarget(ctx, chatID, model.ListRebalanceTargets, "SBER", "100")
	require.NoError(t, err)
	assert.False(t, view.Errors.Has(model.ErrKeyNewRebalanceStock))
}

func TestAddTarget_InvalidPercentage(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)

	view, err := env.srv.AddTarget(context.Background(), chatID, model.ListTargets, "SBER", "120")
	require.ErrorIs(t, err, service.ErrValidation)
	assert.Empty(t, view.Targets)
	assert.True(t, view.Errors.Has(model.ErrKeyNewStock))
}

func TestAddTarget_Superseded(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	env.moex.mu.Lock()
	env.moex.block["SBER"] = make(chan struct{})
	env.moex.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		_, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "50")
		errCh <- err
	}()

	select {
	case <-env.moex.started:
	case <-time.After(time.Second):
		require.Fail(t, "lookup did not start")
	}

	view, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "GAZP", "50")
	require.NoError(t, err)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, service.ErrSuperseded)
	case <-time.After(2 * time.Second):
		require.Fail(t, "superseded add did not return")
	}

	view = env.srv.GetPortfolio(ctx, chatID)
	require.Len(t, view.Targets, 1)
	assert.Equal(t, "GAZP", view.Targets[0].Symbol)
}

func TestUpdateTargetPercentage(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	_, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "100")
	require.NoError(t, err)

	view, err := env.srv.UpdateTargetPercentage(ctx, chatID, model.ListTargets, "SBER", "150")
	require.ErrorIs(t, err, service.ErrValidation)
	assert.True(t, view.Errors.Has("stock-0"))
	assert.True(t, view.Targets[0].TargetPercentage.Equal(decimal.NewFromInt(100)), "old value kept")

	view, err = env.srv.UpdateTargetPercentage(ctx, chatID, model.ListTargets, "SBER", "50,5")
	require.NoError(t, err)
	assert.False(t, view.Errors.Has("stock-0"))
	assert.Equal(t, "50.5", view.Targets[0].TargetPercentage.String())
	assert.Equal(t, "percentages must sum to 100% (currently 50.5%)", view.Errors[model.ErrKeyPercentages])

	_, err = env.srv.UpdateTargetPercentage(ctx, chatID, model.ListTargets, "GAZP", "10")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestRemoveTarget(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	_, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "50")
	require.NoError(t, err)
	_, err = env.srv.AddTarget(ctx, chatID, model.ListTargets, "GAZP", "50")
	require.NoError(t, err)
	_, err = env.srv.UpdateTargetPercentage(ctx, chatID, model.ListTargets, "GAZP", "-1")
	require.ErrorIs(t, err, service.ErrValidation)

	view, err := env.srv.RemoveTarget(ctx, chatID, model.ListTargets, "sber")
	require.NoError(t, err)
	require.Len(t, view.Targets, 1)
	assert.False(t, view.Errors.Has("stock-1"))
	assert.True(t, view.Errors.Has(model.ErrKeyPercentages))

	_, err = env.srv.RemoveTarget(ctx, chatID, model.ListTargets, "sber")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestHoldings(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	view, err := env.srv.AddHolding(ctx, chatID, "SBER", model.QuantityModeShares, "10")
	require.NoError(t, err)
	require.Len(t, view.Holdings, 1)
	assert.Equal(t, "10", view.Holdings[0].Shares.String())

	view, err = env.srv.AddHolding(ctx, chatID, "GAZP", model.QuantityModeValue, "")
	require.NoError(t, err)
	require.Len(t, view.Holdings, 2)
	assert.Nil(t, view.Holdings[1].Value)

	_, err = env.srv.AddHolding(ctx, chatID, "LKOH", model.QuantityModeShares, "-3")
	require.ErrorIs(t, err, service.ErrValidation)

	view, err = env.srv.UpdateHolding(ctx, chatID, "GAZP", "1500")
	require.NoError(t, err)
	require.NotNil(t, view.Holdings[1].Value)
	assert.Equal(t, "1500", view.Holdings[1].Value.String())

	view, err = env.srv.SetHoldingMode(ctx, chatID, "GAZP", model.QuantityModeShares)
	require.NoError(t, err)
	assert.Equal(t, model.QuantityModeShares, view.Holdings[1].QuantityMode)
	assert.Nil(t, view.Holdings[1].Value)
	assert.Nil(t, view.Holdings[1].Shares)

	_, err = env.srv.SetHoldingMode(ctx, chatID, "GAZP", "lots")
	require.ErrorIs(t, err, service.ErrValidation)

	view, err = env.srv.RemoveHolding(ctx, chatID, "SBER")
	require.NoError(t, err)
	assert.Len(t, view.Holdings, 1)
}

func TestCalculateDeposit(t *testing.T) {
	env := newTestEnv(t, stock("SBER", "Сбербанк", "10"), stock("GAZP", "Газпром", "0"))
	ctx := context.Background()

	_, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "29")
	require.NoError(t, err)
	_, err = env.srv.AddTarget(ctx, chatID, model.ListTargets, "GAZP", "71")
	require.NoError(t, err)

	result := env.srv.CalculateDeposit(ctx, chatID, "100")
	require.Len(t, result.Lines, 2)
	assert.Equal(t, "29.00", result.Lines[0].DollarAmount)
	require.NotNil(t, result.Lines[0].Shares)
	assert.Equal(t, "2.9", result.Lines[0].Shares.String())
	assert.Equal(t, "71.00", result.Lines[1].DollarAmount)
	assert.Nil(t, result.Lines[1].Shares, "zero price is unavailable")

	result = env.srv.CalculateDeposit(ctx, chatID, "abc")
	assert.Nil(t, result.Lines)
	assert.Equal(t, "must be positive", result.Errors[model.ErrKeyAmount])

	result = env.srv.CalculateDeposit(ctx, chatID, "100")
	assert.NotNil(t, result.Lines)
	assert.False(t, result.Errors.Has(model.ErrKeyAmount))
}

func TestCalculateRebalance(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	_, err := env.srv.AddHolding(ctx, chatID, "GAZP", model.QuantityModeShares, "10")
	require.NoError(t, err)
	_, err = env.srv.AddTarget(ctx, chatID, model.ListRebalanceTargets, "SBER", "100")
	require.NoError(t, err)

	result := env.srv.CalculateRebalance(ctx, chatID)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, "1000", result.TotalValue.String())

	assert.Equal(t, "GAZP", result.Lines[0].Symbol)
	assert.Equal(t, model.ActionSell, result.Lines[0].Action)
	assert.Equal(t, "10", result.Lines[0].SharesToTrade.String())

	assert.Equal(t, "SBER", result.Lines[1].Symbol)
	assert.Equal(t, model.ActionBuy, result.Lines[1].Action)
	assert.Equal(t, "4", result.Lines[1].SharesToTrade.String())
}

func TestWorkspace_RestoredFromRepository(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	env.repo.lists = model.PortfolioLists{
		Targets: []model.TargetStock{{Symbol: "SBER", TargetPercentage: decimal.NewFromInt(100), DisplayName: "Сбербанк"}},
	}

	view := env.srv.GetPortfolio(context.Background(), chatID)
	require.Len(t, view.Targets, 1)
	assert.Equal(t, "Сбербанк", view.Names["SBER"])
	assert.False(t, view.Errors.Has(model.ErrKeyPercentages))
}

func TestWorkspace_WorksWithoutDatabase(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	env.repo.ensureErr = errors.New("connection refused")

	require.Error(t, env.srv.RegUser(context.Background(), chatID))

	view, err := env.srv.AddTarget(context.Background(), chatID, model.ListTargets, "SBER", "100")
	require.NoError(t, err)
	assert.Len(t, view.Targets, 1)
	assert.Empty(t, env.repo.Saved(model.ListTargets))
}

func TestWorkspace_StoredListsKeptAfterOutage(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	env.repo.lists = model.PortfolioLists{
		Targets: []model.TargetStock{{Symbol: "GAZP", TargetPercentage: decimal.NewFromInt(50), DisplayName: "Газпром"}},
	}
	env.repo.ensureFailures = 1

	_, err := env.srv.AddTarget(context.Background(), chatID, model.ListTargets, "SBER", "50")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		saved := env.repo.Saved(model.ListTargets)
		return strings.Contains(saved, "GAZP") && strings.Contains(saved, "SBER")
	}, time.Second, 10*time.Millisecond)

	view := env.srv.GetPortfolio(context.Background(), chatID)
	require.Len(t, view.Targets, 2)
	assert.Equal(t, "GAZP", view.Targets[0].Symbol)
	assert.Equal(t, "SBER", view.Targets[1].Symbol)
	assert.False(t, view.Errors.Has(model.ErrKeyPercentages))
}

func TestWorkspace_LoadedOnNextAccessAfterOutage(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	env.repo.lists = model.PortfolioLists{
		Targets:  []model.TargetStock{{Symbol: "GAZP", TargetPercentage: decimal.NewFromInt(50), DisplayName: "Газпром"}},
		Holdings: []model.Holding{{Symbol: "LKOH", QuantityMode: model.QuantityModeShares}},
	}
	env.repo.SetEnsureErr(errors.New("connection refused"))
	ctx := context.Background()

	require.Error(t, env.srv.RegUser(ctx, chatID))

	view, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "50")
	require.NoError(t, err)
	assert.Len(t, view.Targets, 1)
	assert.Empty(t, env.repo.Saved(model.ListTargets))

	env.repo.SetEnsureErr(nil)

	view = env.srv.GetPortfolio(ctx, chatID)
	require.Len(t, view.Targets, 2)
	assert.Equal(t, "GAZP", view.Targets[0].Symbol)
	assert.Equal(t, "Газпром", view.Names["GAZP"])
	assert.Len(t, view.Holdings, 1)

	assert.Eventually(t, func() bool {
		saved := env.repo.Saved(model.ListTargets)
		return strings.Contains(saved, "GAZP") && strings.Contains(saved, "SBER")
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, env.repo.Saved(model.ListHoldings), "holdings were not changed")
}

func TestAddTarget_ExchangeSuffixIsSameSecurity(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	view, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "sber.me", "50")
	require.NoError(t, err)
	require.Len(t, view.Targets, 1)
	assert.Equal(t, "SBER", view.Targets[0].Symbol)

	view, err = env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "50")
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Len(t, view.Targets, 1)
	assert.True(t, view.Errors.Has(model.ErrKeyNewStock))

	view, err = env.srv.RemoveTarget(ctx, chatID, model.ListTargets, "SBER.ME")
	require.NoError(t, err)
	assert.Empty(t, view.Targets)
}

func TestRefreshPrices(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	_, err := env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "100")
	require.NoError(t, err)

	env.moex.mu.Lock()
	env.moex.stocks["SBER"] = stock("SBER", "Сбербанк", "300")
	env.moex.mu.Unlock()

	view := env.srv.RefreshPrices(ctx, chatID)
	price, ok := view.Prices["SBER"].Known()
	require.True(t, ok)
	assert.Equal(t, "300", price.String())
}

func TestExportReport(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)
	ctx := context.Background()

	_, err := env.srv.ExportReport(ctx, chatID, "")
	require.ErrorIs(t, err, service.ErrNothingToExport)

	_, err = env.srv.AddTarget(ctx, chatID, model.ListTargets, "SBER", "100")
	require.NoError(t, err)

	link, err := env.srv.ExportReport(ctx, chatID, "1000")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(env.storage.filename, "portfolio_100_"))
	assert.True(t, strings.HasSuffix(env.storage.filename, ".xlsx"))
	assert.Equal(t, "https://drive/"+env.storage.filename, link)
	assert.Equal(t, "xlsx", env.storage.content)

	require.NotNil(t, env.report.report.Deposit)
	assert.Nil(t, env.report.report.Rebalance, "no holdings yet")
}

func TestFillMoexCache(t *testing.T) {
	env := newTestEnv(t, defaultStocks()...)

	require.NoError(t, env.srv.FillMoexCache(context.Background()))
	assert.Equal(t, 3, env.cache.Len())

	require.NoError(t, env.srv.DeleteOldReports(context.Background()))
	assert.True(t, env.storage.deleted)
}
