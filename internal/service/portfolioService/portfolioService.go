package portfolioService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/config"
	"github.com/KotFed0t/crypto_portfolio_tracker/data/repository"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/eventbus"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/retry"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/service"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/valuation"
	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
	"github.com/shopspring/decimal"
)

type Repository interface {
	GetExchanges(ctx context.Context) ([]model.Exchange, error)
	CreateExchange(ctx context.Context, name string) (model.Exchange, error)
	UpdateExchange(ctx context.Context, exchangeID, name string) (model.Exchange, error)
	DeleteExchange(ctx context.Context, exchangeID string) error
	GetAssetsByExchange(ctx context.Context, exchangeID string) ([]model.Asset, error)
	CreateAsset(ctx context.Context, asset model.Asset) (model.Asset, error)
	UpdateAsset(ctx context.Context, asset model.Asset) (model.Asset, error)
	DeleteAsset(ctx context.Context, assetID string) error
}

type PriceCache interface {
	Quotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)
	Invalidate()
}

type Settings interface {
	InitialCapital(ctx context.Context) (decimal.Decimal, error)
	UpdateInitialCapital(ctx context.Context, amount decimal.Decimal) error
}

// PortfolioService owns the in-memory portfolio snapshot and orchestrates
// persistence, pricing and valuation. Every mutation persists first and
// applies the authoritative record the store returned, so the snapshot
// never diverges from the store of record. The snapshot is the only shared
// mutable state and is written exclusively under the service mutex.
type PortfolioService struct {
	cfg      *config.Config
	repo     Repository
	cache    PriceCache
	settings Settings
	bus      *eventbus.Bus
	offline  func() bool
	clock    func() time.Time
	policy   retry.Policy

	loadInFlight atomic.Bool

	mu               sync.Mutex
	portfolio        []model.ExchangeWithAssets
	summary          model.PortfolioSummary
	initialCapital   decimal.Decimal
	loading          bool
	pricing          bool
	lastErr          error
	lastUpdated      time.Time
	lastRefreshAt    time.Time
	closed           bool
	valuationRunning bool
	valuationQueued  bool
}

func New(
	cfg *config.Config,
	repo Repository,
	cache PriceCache,
	settings Settings,
	bus *eventbus.Bus,
	offline func() bool,
	clock func() time.Time,
) *PortfolioService {
	if clock == nil {
		clock = time.Now
	}
	if offline == nil {
		offline = func() bool { return false }
	}
	return &PortfolioService{
		cfg:      cfg,
		repo:     repo,
		cache:    cache,
		settings: settings,
		bus:      bus,
		offline:  offline,
		clock:    clock,
		policy:   retry.Policy{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay},
	}
}

// IsOffline reports the detected connectivity state.
func (s *PortfolioService) IsOffline() bool {
	return s.offline()
}

func (s *PortfolioService) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// IsPricing reports whether a background valuation pass is running. It is
// the narrow indicator that flips during price-only recomputation, while
// IsLoading stays untouched.
func (s *PortfolioService) IsPricing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pricing
}

func (s *PortfolioService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *PortfolioService) LastUpdated() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdated
}

func (s *PortfolioService) InitialCapital() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialCapital
}

func (s *PortfolioService) Exchanges() []model.Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	exchanges := make([]model.Exchange, 0, len(s.portfolio))
	for _, e := range s.portfolio {
		exchanges = append(exchanges, e.Exchange)
	}
	return exchanges
}

func (s *PortfolioService) PortfolioWithPrices() []model.ExchangeWithAssets {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPortfolio(s.portfolio)
}

func (s *PortfolioService) Summary() model.PortfolioSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// LoadPortfolioData loads exchanges and their assets, renders a baseline
// snapshot priced at purchase averages with no network price call, then
// schedules a non-blocking valuation pass. Only one full load runs at a
// time; a call while one is pending is a no-op.
func (s *PortfolioService) LoadPortfolioData(ctx context.Context) error {
	if !s.loadInFlight.CompareAndSwap(false, true) {
		slog.Debug("full load already in flight, skipping", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)))
		return nil
	}
	defer s.loadInFlight.Store(false)

	return s.fullLoad(utils.CtxWithRqID(ctx))
}

// RefreshData fully reloads exchanges and assets from the record store and
// revalues. Calls are throttled to one executed refresh per throttle
// window; later calls inside the window are absorbed.
func (s *PortfolioService) RefreshData(ctx context.Context) error {
	ctx = utils.CtxWithRqID(ctx)
	rqID := utils.GetRequestIDFromCtx(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return service.ErrClosed
	}
	if s.clock().Sub(s.lastRefreshAt) < s.cfg.Portfolio.RefreshThrottle {
		s.mu.Unlock()
		slog.Debug("refresh throttled", slog.String("rqID", rqID))
		return nil
	}
	s.mu.Unlock()

	if !s.loadInFlight.CompareAndSwap(false, true) {
		slog.Debug("full load already in flight, refresh absorbed", slog.String("rqID", rqID))
		return nil
	}
	defer s.loadInFlight.Store(false)

	// The window is consumed only by a refresh that actually executes; one
	// absorbed into a running load must not suppress the next prompt call.
	s.mu.Lock()
	s.lastRefreshAt = s.clock()
	s.mu.Unlock()

	return s.fullLoad(ctx)
}

func (s *PortfolioService) fullLoad(ctx context.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.fullLoad"

	slog.Debug("fullLoad start", slog.String("rqID", rqID), slog.String("op", op))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return service.ErrClosed
	}
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()

	exchanges, err := retry.Do(ctx, "repo.GetExchanges", s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) ([]model.Exchange, error) {
		return s.repo.GetExchanges(ctx)
	})
	if err != nil {
		return s.failLoad(ctx, op, err)
	}

	built := make([]model.ExchangeWithAssets, 0, len(exchanges))
	for _, exchange := range exchanges {
		exchangeID := exchange.ID
		assets, err := retry.Do(ctx, "repo.GetAssetsByExchange", s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) ([]model.Asset, error) {
			return s.repo.GetAssetsByExchange(ctx, exchangeID)
		})
		if err != nil {
			return s.failLoad(ctx, op, err)
		}

		withAssets := model.ExchangeWithAssets{Exchange: exchange}
		for _, asset := range assets {
			withAssets.Assets = append(withAssets.Assets, model.AssetWithValue{Asset: asset})
		}
		built = append(built, withAssets)
	}

	capital, err := s.settings.InitialCapital(ctx)
	if err != nil {
		slog.Warn("can't load initial capital, keeping previous", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		s.mu.Lock()
		capital = s.initialCapital
		s.mu.Unlock()
	}

	now := s.clock()
	// Baseline pass with no quotes: every asset displays its purchase
	// average, profit/loss stays zero until real prices arrive.
	res := valuation.Recompute(built, nil, capital, now)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return service.ErrClosed
	}
	s.portfolio = res.Portfolio
	s.summary = res.Summary
	s.initialCapital = capital
	s.loading = false
	s.lastUpdated = now
	s.mu.Unlock()

	slog.Debug("fullLoad completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("exchanges", len(built)))

	s.requestValuation(ctx)

	return nil
}

func (s *PortfolioService) failLoad(ctx context.Context, op string, err error) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	slog.Error("load failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))

	s.mu.Lock()
	if !s.closed {
		s.loading = false
		s.lastErr = err
	}
	s.mu.Unlock()

	return err
}

// RefreshPrices drops every cached quote and revalues the current snapshot
// without touching the record store.
func (s *PortfolioService) RefreshPrices(ctx context.Context) {
	s.cache.Invalidate()
	s.requestValuation(utils.CtxWithRqID(ctx))
}

// requestValuation is a coalescing request queue of depth one: a request
// while a pass is running marks a rerun flag instead of stacking passes.
func (s *PortfolioService) requestValuation(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.valuationRunning {
		s.valuationQueued = true
		s.mu.Unlock()
		return
	}
	s.valuationRunning = true
	s.pricing = true
	s.mu.Unlock()

	go s.valuationLoop(context.WithoutCancel(ctx))
}

func (s *PortfolioService) valuationLoop(ctx context.Context) {
	for {
		s.runValuationPass(ctx)

		s.mu.Lock()
		if s.valuationQueued && !s.closed {
			s.valuationQueued = false
			s.mu.Unlock()
			continue
		}
		s.valuationRunning = false
		s.pricing = false
		s.mu.Unlock()
		return
	}
}

func (s *PortfolioService) runValuationPass(ctx context.Context) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.runValuationPass"

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	symbols := collectSymbols(s.portfolio)
	s.mu.Unlock()

	quotes, err := s.cache.Quotes(ctx, symbols)
	if err != nil {
		// Degrade to whatever resolved; missing quotes fall back to
		// purchase averages in the valuation pass.
		slog.Warn("quote fetch failed, valuing with partial quotes", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	now := s.clock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	// Always recompute from the latest snapshot so a mutation that landed
	// while quotes were in flight is never overwritten by stale deltas.
	res := valuation.Recompute(s.portfolio, quotes, s.initialCapital, now)
	s.portfolio = res.Portfolio
	s.summary = res.Summary
	s.lastUpdated = now
	snapshot := copyPortfolio(s.portfolio)
	summary := s.summary
	s.mu.Unlock()

	s.bus.Publish(eventbus.TopicPortfolioRefreshed, model.PortfolioRefreshedEvent{Portfolio: snapshot, Summary: summary})
}

func (s *PortfolioService) AddExchange(ctx context.Context, name string) (model.Exchange, error) {
	ctx = utils.CtxWithRqID(ctx)

	exchange, err := retry.Do(ctx, "repo.CreateExchange", s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) (model.Exchange, error) {
		return s.repo.CreateExchange(ctx, name)
	})
	if err != nil {
		return model.Exchange{}, err
	}

	s.mu.Lock()
	if !s.closed {
		s.portfolio = append(s.portfolio, model.ExchangeWithAssets{Exchange: exchange})
	}
	s.mu.Unlock()

	s.requestValuation(ctx)

	return exchange, nil
}

func (s *PortfolioService) UpdateExchange(ctx context.Context, exchangeID, name string) (model.Exchange, error) {
	ctx = utils.CtxWithRqID(ctx)

	exchange, err := retry.Do(ctx, "repo.UpdateExchange", s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) (model.Exchange, error) {
		return s.repo.UpdateExchange(ctx, exchangeID, name)
	})
	if err != nil {
		return model.Exchange{}, err
	}

	s.mu.Lock()
	if !s.closed {
		for i := range s.portfolio {
			if s.portfolio[i].ID == exchange.ID {
				s.portfolio[i].Exchange = exchange
				break
			}
		}
	}
	s.mu.Unlock()

	s.requestValuation(ctx)

	return exchange, nil
}

func (s *PortfolioService) DeleteExchange(ctx context.Context, exchangeID string) error {
	ctx = utils.CtxWithRqID(ctx)

	_, err := retry.Do(ctx, "repo.DeleteExchange", s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.DeleteExchange(ctx, exchangeID)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.closed {
		for i := range s.portfolio {
			if s.portfolio[i].ID == exchangeID {
				s.portfolio = append(s.portfolio[:i], s.portfolio[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	s.requestValuation(ctx)

	return nil
}

// AddAsset rejects a symbol already held on the same exchange, persists the
// new asset, applies the authoritative record and publishes asset-added.
func (s *PortfolioService) AddAsset(ctx context.Context, exchangeID, symbol string, quantity, purchasePriceAvg decimal.Decimal) (model.Asset, error) {
	ctx = utils.CtxWithRqID(ctx)
	symbol = strings.ToLower(symbol)

	s.mu.Lock()
	for _, exchange := range s.portfolio {
		if exchange.ID != exchangeID {
			continue
		}
		for _, asset := range exchange.Assets {
			if strings.EqualFold(asset.Symbol, symbol) {
				s.mu.Unlock()
				return model.Asset{}, fmt.Errorf("%w: %s", service.ErrDuplicateAsset, symbol)
			}
		}
	}
	s.mu.Unlock()

	asset := model.Asset{
		ExchangeID:       exchangeID,
		Symbol:           symbol,
		Quantity:         quantity,
		PurchasePriceAvg: purchasePriceAvg,
	}

	created, err := retry.Do(ctx, "repo.CreateAsset", s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) (model.Asset, error) {
		return s.repo.CreateAsset(ctx, asset)
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return model.Asset{}, fmt.Errorf("%w: %s", service.ErrDuplicateAsset, symbol)
		}
		return model.Asset{}, err
	}

	s.mu.Lock()
	if !s.closed {
		for i := range s.portfolio {
			if s.portfolio[i].ID == exchangeID {
				s.portfolio[i].Assets = append(s.portfolio[i].Assets, model.AssetWithValue{Asset: created})
				break
			}
		}
	}
	s.mu.Unlock()

	s.bus.Publish(eventbus.TopicAssetAdded, model.AssetAddedEvent{Asset: created})
	s.requestValuation(ctx)

	return created, nil
}

// UpdateAsset persists first and applies the record store's returned
// record, never the request payload.
func (s *PortfolioService) UpdateAsset(ctx context.Context, asset model.Asset) (model.Asset, error) {
	ctx = utils.CtxWithRqID(ctx)

	updated, err := retry.Do(ctx, "repo.UpdateAsset", s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) (model.Asset, error) {
		return s.repo.UpdateAsset(ctx, asset)
	})
	if err != nil {
		return model.Asset{}, err
	}

	s.mu.Lock()
	var snapshot []model.ExchangeWithAssets
	if !s.closed {
		for i := range s.portfolio {
			if s.portfolio[i].ID != updated.ExchangeID {
				continue
			}
			for j := range s.portfolio[i].Assets {
				if s.portfolio[i].Assets[j].ID == updated.ID {
					s.portfolio[i].Assets[j].Asset = updated
					break
				}
			}
			break
		}
		snapshot = copyPortfolio(s.portfolio)
	}
	s.mu.Unlock()

	s.bus.Publish(eventbus.TopicAssetUpdated, model.AssetUpdatedEvent{
		Asset:      updated,
		ExchangeID: updated.ExchangeID,
		Portfolio:  snapshot,
	})
	s.requestValuation(ctx)

	return updated, nil
}

func (s *PortfolioService) DeleteAsset(ctx context.Context, assetID string) error {
	ctx = utils.CtxWithRqID(ctx)

	_, err := retry.Do(ctx, "repo.DeleteAsset", s.policy, s.offline, repository.IsPermanent, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.DeleteAsset(ctx, assetID)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.closed {
	outer:
		for i := range s.portfolio {
			for j := range s.portfolio[i].Assets {
				if s.portfolio[i].Assets[j].ID == assetID {
					s.portfolio[i].Assets = append(s.portfolio[i].Assets[:j], s.portfolio[i].Assets[j+1:]...)
					break outer
				}
			}
		}
	}
	s.mu.Unlock()

	s.bus.Publish(eventbus.TopicAssetDeleted, model.AssetDeletedEvent{AssetID: assetID})
	s.requestValuation(ctx)

	return nil
}

// UpdateInitialCapital persists the new baseline and revalues. Asset-level
// values are untouched; only the summary's profit/loss moves.
func (s *PortfolioService) UpdateInitialCapital(ctx context.Context, amount decimal.Decimal) error {
	ctx = utils.CtxWithRqID(ctx)

	if err := s.settings.UpdateInitialCapital(ctx, amount); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.closed {
		s.initialCapital = amount
	}
	s.mu.Unlock()

	s.bus.Publish(eventbus.TopicSettingsUpdated, model.SettingsUpdatedEvent{InitialCapital: amount})
	s.requestValuation(ctx)

	return nil
}

// RefreshPricesJob is the periodic revaluation trigger. It never touches
// the record store and stands down while a full load is running, while
// offline, or while the portfolio holds no assets.
func (s *PortfolioService) RefreshPricesJob(ctx context.Context) error {
	if s.loadInFlight.Load() || s.offline() {
		return nil
	}

	s.mu.Lock()
	hasAssets := false
	for _, exchange := range s.portfolio {
		if len(exchange.Assets) > 0 {
			hasAssets = true
			break
		}
	}
	closed := s.closed
	s.mu.Unlock()

	if closed || !hasAssets {
		return nil
	}

	s.requestValuation(utils.CtxWithRqID(ctx))
	return nil
}

// Close bars any further state writes. In-flight operations complete but
// their results are discarded.
func (s *PortfolioService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func collectSymbols(portfolio []model.ExchangeWithAssets) []string {
	seen := make(map[string]struct{})
	var symbols []string
	for _, exchange := range portfolio {
		for _, asset := range exchange.Assets {
			symbol := strings.ToLower(asset.Symbol)
			if _, ok := seen[symbol]; ok {
				continue
			}
			seen[symbol] = struct{}{}
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

func copyPortfolio(portfolio []model.ExchangeWithAssets) []model.ExchangeWithAssets {
	out := make([]model.ExchangeWithAssets, len(portfolio))
	copy(out, portfolio)
	for i := range out {
		assets := make([]model.AssetWithValue, len(out[i].Assets))
		copy(assets, out[i].Assets)
		out[i].Assets = assets
	}
	return out
}
