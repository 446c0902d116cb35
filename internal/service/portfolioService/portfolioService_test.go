package portfolioService

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/config"
	"github.com/KotFed0t/crypto_portfolio_tracker/data/repository"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/eventbus"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu        sync.Mutex
	exchanges []model.Exchange
	assets    map[string][]model.Asset

	getExchangesCalls int
	createAssetCalls  int

	createExchangeErr error
	createAssetErr    error
	updateAssetErr    error

	blockGetExchanges chan struct{}
}

func (r *fakeRepo) GetExchanges(ctx context.Context) ([]model.Exchange, error) {
	r.mu.Lock()
	r.getExchangesCalls++
	block := r.blockGetExchanges
	exchanges := append([]model.Exchange(nil), r.exchanges...)
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	return exchanges, nil
}

func (r *fakeRepo) CreateExchange(ctx context.Context, name string) (model.Exchange, error) {
	if r.createExchangeErr != nil {
		return model.Exchange{}, r.createExchangeErr
	}
	exchange := model.Exchange{ID: "ex-" + name, Name: name}
	r.mu.Lock()
	r.exchanges = append(r.exchanges, exchange)
	r.mu.Unlock()
	return exchange, nil
}

func (r *fakeRepo) UpdateExchange(ctx context.Context, exchangeID, name string) (model.Exchange, error) {
	return model.Exchange{ID: exchangeID, Name: name}, nil
}

func (r *fakeRepo) DeleteExchange(ctx context.Context, exchangeID string) error {
	return nil
}

func (r *fakeRepo) GetAssetsByExchange(ctx context.Context, exchangeID string) ([]model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Asset(nil), r.assets[exchangeID]...), nil
}

func (r *fakeRepo) CreateAsset(ctx context.Context, asset model.Asset) (model.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createAssetCalls++
	if r.createAssetErr != nil {
		return model.Asset{}, r.createAssetErr
	}
	asset.ID = "asset-" + asset.Symbol
	r.assets[asset.ExchangeID] = append(r.assets[asset.ExchangeID], asset)
	return asset, nil
}

func (r *fakeRepo) UpdateAsset(ctx context.Context, asset model.Asset) (model.Asset, error) {
	if r.updateAssetErr != nil {
		return model.Asset{}, r.updateAssetErr
	}
	// The authoritative record carries a store-side timestamp the request
	// payload never had.
	asset.LastUpdated = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return asset, nil
}

func (r *fakeRepo) DeleteAsset(ctx context.Context, assetID string) error {
	return nil
}

type fakeCache struct {
	mu          sync.Mutex
	prices      map[string]decimal.Decimal
	quoteCalls  int
	invalidated int
	block       chan struct{}
}

func (c *fakeCache) Quotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	c.mu.Lock()
	c.quoteCalls++
	block := c.block
	c.mu.Unlock()

	if block != nil {
		<-block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	quotes := make(map[string]model.Quote, len(symbols))
	for _, symbol := range symbols {
		if price, ok := c.prices[symbol]; ok {
			quotes[symbol] = model.Quote{Symbol: symbol, CurrentPrice: price, AsOf: time.Now()}
		}
	}
	return quotes, nil
}

func (c *fakeCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
}

func (c *fakeCache) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quoteCalls
}

type fakeSettings struct {
	capital decimal.Decimal
	err     error
}

func (s *fakeSettings) InitialCapital(ctx context.Context) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.capital, nil
}

func (s *fakeSettings) UpdateInitialCapital(ctx context.Context, amount decimal.Decimal) error {
	if s.err != nil {
		return s.err
	}
	s.capital = amount
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Retry.MaxRetries = 1
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Portfolio.RefreshThrottle = time.Second
	return cfg
}

type fixture struct {
	svc      *PortfolioService
	repo     *fakeRepo
	cache    *fakeCache
	settings *fakeSettings
	clock    *fakeClock
	bus      *eventbus.Bus
}

func newFixture() *fixture {
	repo := &fakeRepo{assets: make(map[string][]model.Asset)}
	cache := &fakeCache{prices: make(map[string]decimal.Decimal)}
	settings := &fakeSettings{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	bus := eventbus.New()

	return &fixture{
		svc:      New(testConfig(), repo, cache, settings, bus, nil, clock.Now),
		repo:     repo,
		cache:    cache,
		settings: settings,
		clock:    clock,
		bus:      bus,
	}
}

func waitIdle(t *testing.T, svc *PortfolioService) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !svc.IsPricing()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLoadPortfolioDataBuildsSnapshotAndPrices(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	f.repo.assets["ex1"] = []model.Asset{{
		ID:               "a1",
		ExchangeID:       "ex1",
		Symbol:           "bitcoin",
		Quantity:         decimal.NewFromInt(2),
		PurchasePriceAvg: decimal.NewFromInt(40000),
	}}
	f.cache.prices["bitcoin"] = decimal.NewFromInt(60000)
	f.settings.capital = decimal.NewFromInt(80000)

	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	portfolio := f.svc.PortfolioWithPrices()
	require.Len(t, portfolio, 1)
	require.Len(t, portfolio[0].Assets, 1)
	assert.True(t, portfolio[0].Assets[0].CurrentPrice.Equal(decimal.NewFromInt(60000)))

	summary := f.svc.Summary()
	assert.True(t, summary.TotalValue.Equal(decimal.NewFromInt(120000)))
	assert.True(t, summary.TotalInvestment.Equal(decimal.NewFromInt(80000)))
	assert.True(t, summary.TotalProfitLoss.Equal(decimal.NewFromInt(40000)))
	assert.False(t, f.svc.IsLoading())
	assert.NoError(t, f.svc.Err())
}

func TestLoadPortfolioDataSecondCallAbsorbedWhileInFlight(t *testing.T) {
	f := newFixture()
	f.repo.blockGetExchanges = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.svc.LoadPortfolioData(context.Background()) }()

	require.Eventually(t, func() bool {
		f.repo.mu.Lock()
		defer f.repo.mu.Unlock()
		return f.repo.getExchangesCalls == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))

	close(f.repo.blockGetExchanges)
	require.NoError(t, <-done)

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	assert.Equal(t, 1, f.repo.getExchangesCalls)
}

func TestRefreshDataThrottled(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}

	require.NoError(t, f.svc.RefreshData(context.Background()))
	waitIdle(t, f.svc)

	// Burst inside the window: absorbed without touching the record store.
	require.NoError(t, f.svc.RefreshData(context.Background()))
	require.NoError(t, f.svc.RefreshData(context.Background()))

	f.repo.mu.Lock()
	calls := f.repo.getExchangesCalls
	f.repo.mu.Unlock()
	assert.Equal(t, 1, calls)

	f.clock.Advance(time.Second)

	require.NoError(t, f.svc.RefreshData(context.Background()))
	waitIdle(t, f.svc)

	f.repo.mu.Lock()
	calls = f.repo.getExchangesCalls
	f.repo.mu.Unlock()
	assert.Equal(t, 2, calls)
}

func TestRefreshDataAbsorbedByRunningLoadKeepsWindowOpen(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	f.repo.blockGetExchanges = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.svc.LoadPortfolioData(context.Background()) }()

	require.Eventually(t, func() bool {
		f.repo.mu.Lock()
		defer f.repo.mu.Unlock()
		return f.repo.getExchangesCalls == 1
	}, 2*time.Second, time.Millisecond)

	// Absorbed into the running load; must not consume the throttle window.
	require.NoError(t, f.svc.RefreshData(context.Background()))

	close(f.repo.blockGetExchanges)
	require.NoError(t, <-done)
	waitIdle(t, f.svc)

	f.repo.mu.Lock()
	f.repo.blockGetExchanges = nil
	f.repo.mu.Unlock()

	// Clock has not advanced: a refresh right after must still execute.
	require.NoError(t, f.svc.RefreshData(context.Background()))
	waitIdle(t, f.svc)

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	assert.Equal(t, 2, f.repo.getExchangesCalls)
}

func TestAddAssetRejectsDuplicateWithoutPersisting(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	f.repo.assets["ex1"] = []model.Asset{{ID: "a1", ExchangeID: "ex1", Symbol: "bitcoin", Quantity: decimal.NewFromInt(1)}}

	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	_, err := f.svc.AddAsset(context.Background(), "ex1", "BITCOIN", decimal.NewFromInt(2), decimal.NewFromInt(100))

	assert.ErrorIs(t, err, service.ErrDuplicateAsset)
	assert.Zero(t, f.repo.createAssetCalls)

	portfolio := f.svc.PortfolioWithPrices()
	require.Len(t, portfolio[0].Assets, 1)
	assert.True(t, portfolio[0].Assets[0].Quantity.Equal(decimal.NewFromInt(1)))
}

func TestAddAssetMapsStoreConflictToDuplicate(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	f.repo.createAssetErr = repository.ErrAlreadyExists

	_, err := f.svc.AddAsset(context.Background(), "ex1", "bitcoin", decimal.NewFromInt(1), decimal.NewFromInt(100))

	assert.ErrorIs(t, err, service.ErrDuplicateAsset)
	assert.Equal(t, 1, f.repo.createAssetCalls, "conflict is permanent, no retries")
}

func TestAddAssetPublishesEventAndAppliesRecord(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	var events []model.AssetAddedEvent
	var eventsMu sync.Mutex
	f.bus.Subscribe(eventbus.TopicAssetAdded, func(payload any) {
		eventsMu.Lock()
		defer eventsMu.Unlock()
		events = append(events, payload.(model.AssetAddedEvent))
	})

	created, err := f.svc.AddAsset(context.Background(), "ex1", "Bitcoin", decimal.NewFromInt(2), decimal.NewFromInt(100))
	require.NoError(t, err)
	waitIdle(t, f.svc)

	assert.Equal(t, "asset-bitcoin", created.ID, "store-assigned id applied")
	assert.Equal(t, "bitcoin", created.Symbol, "symbol normalized to lower case")

	eventsMu.Lock()
	defer eventsMu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, created, events[0].Asset)
}

func TestUpdateAssetAppliesAuthoritativeRecord(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	f.repo.assets["ex1"] = []model.Asset{{ID: "a1", ExchangeID: "ex1", Symbol: "bitcoin", Quantity: decimal.NewFromInt(1)}}
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	updated, err := f.svc.UpdateAsset(context.Background(), model.Asset{
		ID:         "a1",
		ExchangeID: "ex1",
		Symbol:     "bitcoin",
		Quantity:   decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	waitIdle(t, f.svc)

	assert.False(t, updated.LastUpdated.IsZero(), "store-side timestamp applied")

	portfolio := f.svc.PortfolioWithPrices()
	assert.True(t, portfolio[0].Assets[0].Quantity.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, updated.LastUpdated, portfolio[0].Assets[0].LastUpdated)
}

func TestFailedMutationLeavesStateUntouched(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	f.repo.createExchangeErr = repository.ErrAuthorizationDenied

	_, err := f.svc.AddExchange(context.Background(), "Kraken")

	assert.ErrorIs(t, err, repository.ErrAuthorizationDenied)
	assert.Len(t, f.svc.Exchanges(), 1)
}

func TestUpdateInitialCapitalRevaluesSummary(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	f.repo.assets["ex1"] = []model.Asset{{
		ID:               "a1",
		ExchangeID:       "ex1",
		Symbol:           "bitcoin",
		Quantity:         decimal.NewFromInt(1),
		PurchasePriceAvg: decimal.NewFromInt(50000),
	}}
	f.cache.prices["bitcoin"] = decimal.NewFromInt(50000)
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	require.NoError(t, f.svc.UpdateInitialCapital(context.Background(), decimal.NewFromInt(40000)))

	require.Eventually(t, func() bool {
		return f.svc.Summary().TotalInvestment.Equal(decimal.NewFromInt(40000))
	}, 2*time.Second, 5*time.Millisecond)

	summary := f.svc.Summary()
	assert.True(t, summary.TotalProfitLoss.Equal(decimal.NewFromInt(10000)))
	assert.True(t, f.svc.InitialCapital().Equal(decimal.NewFromInt(40000)))
}

func TestRefreshPricesInvalidatesCache(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	f.repo.assets["ex1"] = []model.Asset{{ID: "a1", ExchangeID: "ex1", Symbol: "bitcoin", Quantity: decimal.NewFromInt(1)}}
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	before := f.cache.calls()
	f.svc.RefreshPrices(context.Background())
	waitIdle(t, f.svc)

	f.cache.mu.Lock()
	invalidated := f.cache.invalidated
	f.cache.mu.Unlock()
	assert.Equal(t, 1, invalidated)
	assert.Greater(t, f.cache.calls(), before)
}

func TestRefreshPricesJobStandsDownWithoutAssets(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	before := f.cache.calls()
	require.NoError(t, f.svc.RefreshPricesJob(context.Background()))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, before, f.cache.calls())
}

func TestRefreshPricesJobStandsDownWhileOffline(t *testing.T) {
	repo := &fakeRepo{assets: map[string][]model.Asset{
		"ex1": {{ID: "a1", ExchangeID: "ex1", Symbol: "bitcoin", Quantity: decimal.NewFromInt(1)}},
	}, exchanges: []model.Exchange{{ID: "ex1", Name: "Binance"}}}
	cache := &fakeCache{prices: map[string]decimal.Decimal{}}
	svc := New(testConfig(), repo, cache, &fakeSettings{}, eventbus.New(), func() bool { return true }, nil)

	require.NoError(t, svc.RefreshPricesJob(context.Background()))
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, cache.calls())
}

func TestValuationRequestsCoalesceDuringRunningPass(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	f.repo.assets["ex1"] = []model.Asset{{ID: "a1", ExchangeID: "ex1", Symbol: "bitcoin", Quantity: decimal.NewFromInt(1)}}
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	baseline := f.cache.calls()

	release := make(chan struct{})
	f.cache.mu.Lock()
	f.cache.block = release
	f.cache.mu.Unlock()

	f.svc.RefreshPrices(context.Background())

	require.Eventually(t, func() bool {
		return f.cache.calls() == baseline+1
	}, 2*time.Second, time.Millisecond, "pass entered the blocked quote fetch")

	// A burst of requests against the running pass must collapse into a
	// single rerun, never a pass per request.
	for i := 0; i < 5; i++ {
		f.svc.RefreshPrices(context.Background())
	}

	close(release)
	waitIdle(t, f.svc)

	assert.Equal(t, baseline+2, f.cache.calls())
}

func TestCloseBarsFurtherRefreshes(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	f.svc.Close()

	assert.ErrorIs(t, f.svc.RefreshData(context.Background()), service.ErrClosed)
}

func TestPublishesPortfolioRefreshedAfterValuation(t *testing.T) {
	f := newFixture()
	f.repo.exchanges = []model.Exchange{{ID: "ex1", Name: "Binance"}}
	f.repo.assets["ex1"] = []model.Asset{{
		ID:               "a1",
		ExchangeID:       "ex1",
		Symbol:           "bitcoin",
		Quantity:         decimal.NewFromInt(1),
		PurchasePriceAvg: decimal.NewFromInt(100),
	}}
	f.cache.prices["bitcoin"] = decimal.NewFromInt(150)

	var mu sync.Mutex
	var got []model.PortfolioRefreshedEvent
	f.bus.Subscribe(eventbus.TopicPortfolioRefreshed, func(payload any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload.(model.PortfolioRefreshedEvent))
	})

	require.NoError(t, f.svc.LoadPortfolioData(context.Background()))
	waitIdle(t, f.svc)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.Summary.TotalValue.Equal(decimal.NewFromInt(150)))
}
