package pricecache

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/KotFed0t/portfolio_allocator_bot/utils"
	"github.com/shopspring/decimal"
)

const DefaultLookupTimeout = 5 * time.Second

// PriceLookup - nil цена без ошибки значит, что у бумаги нет рыночной цены.
// Ошибка считается временной, кроме истечения таймаута.
type PriceLookup interface {
	LookupPrice(ctx context.Context, symbol string) (*decimal.Decimal, error)
}

// Resolver догружает неизвестные цены не более одного раза на символ.
//
// Каждый Track со сменившимся набором символов увеличивает поколение и отменяет запросы
// предыдущего поколения. Ответ, пришедший для старого поколения, отбрасывается.
type Resolver struct {
	cache   *Cache
	lookup  PriceLookup
	timeout time.Duration

	mu         sync.Mutex
	generation uint64
	tracked    []string
	inFlight   map[string]struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	// running - запущенные запросы всех поколений, idle закрыт, когда их нет
	running int
	idle    chan struct{}
}

func NewResolver(cache *Cache, lookup PriceLookup, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Resolver{
		cache:    cache,
		lookup:   lookup,
		timeout:  timeout,
		inFlight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		idle:     idle,
	}
}

// Track задаёт набор отслеживаемых символов и запускает запросы для неизвестных цен. Не блокирует.
func (r *Resolver) Track(ctx context.Context, symbols []string) {
	set := normalize(symbols)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !slices.Equal(set, r.tracked) {
		r.resetLocked(ctx)
		r.tracked = set
	}

	for _, symbol := range r.cache.Unknown(set) {
		if _, ok := r.inFlight[symbol]; ok {
			continue
		}
		r.inFlight[symbol] = struct{}{}
		if r.running == 0 {
			r.idle = make(chan struct{})
		}
		r.running++
		go r.resolve(r.ctx, r.generation, symbol)
	}
}

// Refresh очищает кэш цен и заново запрашивает цены отслеживаемых символов.
func (r *Resolver) Refresh(ctx context.Context) {
	r.mu.Lock()
	tracked := r.tracked
	r.resetLocked(ctx)
	r.tracked = nil
	r.cache.Clear()
	r.mu.Unlock()

	r.Track(ctx, tracked)
}

// Wait дожидается момента, когда не останется запущенных запросов.
// Каждый запрос ограничен таймаутом, поэтому ожидание конечно. Можно вызывать параллельно с Track.
func (r *Resolver) Wait() {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()

	<-idle
}

// finishLocked снимает запрос со счётчика. Вызывать под mu.
func (r *Resolver) finishLocked() {
	r.running--
	if r.running == 0 {
		close(r.idle)
	}
}

func (r *Resolver) Close() {
	r.mu.Lock()
	r.generation++
	r.cancel()
	r.mu.Unlock()
}

func (r *Resolver) resetLocked(ctx context.Context) {
	r.generation++
	r.cancel()
	clear(r.inFlight)
	// запросы переживают обработчик, который их запустил, но сохраняют rqID
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
}

func (r *Resolver) resolve(ctx context.Context, gen uint64, symbol string) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Resolver.resolve"

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	price, err := r.lookup.LookupPrice(lookupCtx, symbol)

	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.finishLocked()

	if gen != r.generation {
		slog.Debug("stale price lookup discarded", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
		return
	}

	delete(r.inFlight, symbol)

	switch {
	case err != nil && errors.Is(lookupCtx.Err(), context.DeadlineExceeded):
		slog.Warn("price lookup timed out", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
		r.cache.MarkUnavailable(symbol)
	case err != nil:
		// временная ошибка: цена остаётся неизвестной, следующий Track запросит её снова
		slog.Error("price lookup failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol), slog.String("err", err.Error()))
	case price == nil:
		slog.Info("price unavailable", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", symbol))
		r.cache.MarkUnavailable(symbol)
	default:
		r.cache.Set(symbol, *price)
	}
}

func normalize(symbols []string) []string {
	set := slices.Clone(symbols)
	slices.Sort(set)
	return slices.Compact(set)
}
