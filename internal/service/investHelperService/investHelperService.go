package investHelperService

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/config"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/converter/dbConverter"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model"
	"github.com/KotFed0t/portfolio_allocator_bot/internal/model/moexModel"
	"github.com/KotFed0t/portfolio_allocator_bot/utils"
)

type MoexApi interface {
	GetStockInfo(ctx context.Context, ticker string) (moexModel.StockInfo, error)
	GetStocksInfo(ctx context.Context) ([]moexModel.StockInfo, error)
}

type Cache interface {
	GetStock(ctx context.Context, ticker string) (moexModel.StockInfo, error)
	SetStock(ctx context.Context, stock moexModel.StockInfo) error
	SetStocks(ctx context.Context, stocks []moexModel.StockInfo) error
}

type Repository interface {
	EnsureUser(ctx context.Context, chatID int64) (userID int64, err error)
	SaveList(ctx context.Context, userID int64, kind model.ListKind, data []byte) error
	GetPortfolioLists(ctx context.Context, userID int64) (model.PortfolioLists, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, report model.Report) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
	DeleteOldFiles(ctx context.Context) error
}

type InvestHelperService struct {
	repo            Repository
	cache           Cache
	moexApi         MoexApi
	quotes          *quotes
	reportGenerator ReportGenerator
	cloudStorage    CloudStorage
	lookupTimeout   time.Duration

	mu         sync.Mutex
	workspaces map[int64]*Workspace
}

func New(
	cfg *config.Config,
	repo Repository,
	cache Cache,
	moexApi MoexApi,
	reportGenerator ReportGenerator,
	cloudStorage CloudStorage,
) *InvestHelperService {
	return &InvestHelperService{
		repo:            repo,
		cache:           cache,
		moexApi:         moexApi,
		quotes:          &quotes{cache: cache, moexApi: moexApi},
		reportGenerator: reportGenerator,
		cloudStorage:    cloudStorage,
		lookupTimeout:   cfg.Engine.LookupTimeout,
		workspaces:      make(map[int64]*Workspace),
	}
}

// workspace возвращает состояние пользователя. Пока сохранённые списки не прочитаны, каждое обращение
// пробует прочитать их снова. Недоступность БД не мешает расчётам.
func (s *InvestHelperService) workspace(ctx context.Context, chatID int64) *Workspace {
	s.mu.Lock()
	ws, ok := s.workspaces[chatID]
	if !ok {
		ws = newWorkspace(chatID, s.quotes, s.lookupTimeout)
		s.workspaces[chatID] = ws
	}
	s.mu.Unlock()

	s.load(ctx, ws)

	return ws
}

// load читает сохранённые списки и объединяет их с тем, что пользователь успел добавить без БД.
// Такие элементы сразу сохраняются. Повторный вызов после успешной загрузки ничего не делает.
func (s *InvestHelperService) load(ctx context.Context, ws *Workspace) bool {
	ws.mu.Lock()
	loaded := ws.loaded
	ws.mu.Unlock()
	if loaded {
		return true
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.load"

	userID, err := s.repo.EnsureUser(ctx, ws.chatID)
	if err != nil {
		slog.Error("got error from repo.EnsureUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return false
	}

	lists, err := s.repo.GetPortfolioLists(ctx, userID)
	if err != nil {
		slog.Error("got error from repo.GetPortfolioLists", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return false
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.loaded {
		return true
	}
	ws.userID = userID
	ws.loaded = true

	for _, kind := range ws.merge(lists) {
		slog.Info("saving items added while lists were not loaded", slog.String("rqID", rqID), slog.String("op", op), slog.String("listKind", string(kind)))
		s.persist(ctx, ws, kind)
	}

	ws.validateList(model.ListTargets)
	ws.validateList(model.ListRebalanceTargets)
	ws.resolver.Track(ctx, ws.trackedSymbols())

	return true
}

func (s *InvestHelperService) RegUser(ctx context.Context, chatID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.RegUser"

	slog.Debug("RegUser start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("RegUser finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	_, err := s.repo.EnsureUser(ctx, chatID)
	if err != nil {
		slog.Error("got error from repo.EnsureUser", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	s.workspace(ctx, chatID)

	return nil
}

func (s *InvestHelperService) GetPortfolio(ctx context.Context, chatID int64) model.PortfolioView {
	ws := s.workspace(ctx, chatID)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.validateList(model.ListTargets)
	ws.validateList(model.ListRebalanceTargets)
	return ws.view()
}

// afterChange выполняется после любого изменения списка: перепроверка весов, сохранение и догрузка цен.
// Вызывать под ws.mu.
func (s *InvestHelperService) afterChange(ctx context.Context, ws *Workspace, kind model.ListKind) {
	ws.validateList(kind)
	s.persist(ctx, ws, kind)
	ws.resolver.Track(ctx, ws.trackedSymbols())
}

// persist сохраняет список в фоне. Новое сохранение того же списка отменяет предыдущее.
// Если сохранённые списки ещё не прочитаны, сначала читает их: иначе список в БД был бы затёрт.
// Вызывать под ws.mu.
func (s *InvestHelperService) persist(ctx context.Context, ws *Workspace, kind model.ListKind) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.persist"

	gen, saveCtx := begin(ctx, ws.saves, kind, 0)

	if !ws.loaded {
		go func() {
			if !s.load(saveCtx, ws) {
				slog.Error("list not saved, stored lists are not loaded", slog.String("rqID", rqID), slog.String("op", op), slog.String("listKind", string(kind)))
				return
			}

			ws.mu.Lock()
			defer ws.mu.Unlock()
			// load мог уже сохранить объединённый список
			if current(ws.saves, kind, gen) {
				s.persist(ctx, ws, kind)
			}
		}()
		return
	}

	data, err := dbConverter.ListData(kind, ws.lists)
	if err != nil {
		slog.Error("can't encode list", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return
	}
	userID := ws.userID

	go func() {
		err := s.repo.SaveList(saveCtx, userID, kind, data)

		ws.mu.Lock()
		defer ws.mu.Unlock()
		if !current(ws.saves, kind, gen) {
			return
		}
		ws.saves[kind].cancel()
		if err != nil {
			slog.Error("got error from repo.SaveList", slog.String("rqID", rqID), slog.String("op", op), slog.String("listKind", string(kind)), slog.String("err", err.Error()))
		}
	}()
}

// RefreshPrices сбрасывает цены пользователя, в том числе недоступные, и запрашивает их заново.
func (s *InvestHelperService) RefreshPrices(ctx context.Context, chatID int64) model.PortfolioView {
	ws := s.workspace(ctx, chatID)
	ws.resolver.Refresh(ctx)
	ws.resolver.Wait()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.view()
}

// FillMoexCache - периодическая задача: кладёт котировки всей доски в общий кэш
func (s *InvestHelperService) FillMoexCache(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "InvestHelperService.FillMoexCache"

	slog.Debug("FillMoexCache start", slog.String("rqID", rqID), slog.String("op", op))

	stocks, err := s.moexApi.GetStocksInfo(ctx)
	if err != nil {
		slog.Error("got error from moexApi.GetStocksInfo", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	err = s.cache.SetStocks(ctx, stocks)
	if err != nil {
		slog.Error("got error from cache.SetStocks", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("FillMoexCache finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("stocks", len(stocks)))

	return nil
}

func (s *InvestHelperService) DeleteOldReports(ctx context.Context) error {
	return s.cloudStorage.DeleteOldFiles(ctx)
}

func (s *InvestHelperService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.workspaces {
		ws.close()
	}
}
