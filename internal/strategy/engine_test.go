package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sable-labs/crossarb/internal/bus"
	"github.com/sable-labs/crossarb/internal/cache/memory"
	"github.com/sable-labs/crossarb/internal/coordinator"
	"github.com/sable-labs/crossarb/internal/domain"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// fakeCEX records market sells and serves fixed balances.
type fakeCEX struct {
	mu       sync.Mutex
	balances domain.VenueBalances
	sells    []float64
}

func (f *fakeCEX) GetTicker(ctx context.Context, symbol string) (float64, float64, error) {
	return 0, 0, nil
}

func (f *fakeCEX) GetBookTicker(ctx context.Context, symbol string) (float64, float64, error) {
	return 0, 0, nil
}

func (f *fakeCEX) PlaceOrder(ctx context.Context, symbol string, side domain.OrderSide, typ string, qty, price float64) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sells = append(f.sells, qty)
	return domain.Order{ID: "ord-1", Status: domain.OrderStatusFilled, FilledQty: qty}, nil
}

func (f *fakeCEX) GetOrder(ctx context.Context, symbol, orderID string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}

func (f *fakeCEX) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }

func (f *fakeCEX) GetBalances(ctx context.Context) (domain.VenueBalances, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances, nil
}

// fakeDEX records swaps and serves fixed balances.
type fakeDEX struct {
	mu       sync.Mutex
	balances map[string]float64
	swaps    []float64
}

func (f *fakeDEX) GetReserves(ctx context.Context) (float64, float64, error) { return 0, 0, nil }

func (f *fakeDEX) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn, slippage float64) (float64, float64, error) {
	expected := amountIn * 0.05
	return expected, expected * (1 - slippage/100), nil
}

func (f *fakeDEX) Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, minOut float64) (domain.SwapResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swaps = append(f.swaps, amountIn)
	return domain.SwapResult{TxHash: "0xabc", AmountOut: amountIn * 0.05, Success: true}, nil
}

func (f *fakeDEX) GetBalance(ctx context.Context, token string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[token], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Symbol:               "WETH/USDC",
		BaseAsset:            "WETH",
		QuoteAsset:           "USDC",
		DivergenceSellPct:    2.0,
		DivergenceSplitPct:   0.8,
		AccumulateQuoteShare: 0.20,
		MinAmount:            1,
		MaxAmount:            100,
		MaxPortfolioPct:      0.20,
		ConfirmDelay:         0,
		MaxRetries:           2,
		RetryBackoff:         time.Second,
		SlippageTolerance:    0.5,
		Monitoring:           true,
	}
}

func newTestEngine(cfg Config, cexFake *fakeCEX, dexFake *fakeDEX) (*Engine, *memory.QuoteCache, *TrendTracker) {
	clock := &fakeClock{now: testTime}
	cache := memory.NewQuoteCache()
	trend := NewTrendTracker(3, 1.0)
	coord := coordinator.New(0, clock, testLogger())
	eventBus := bus.NewMemory(testLogger())
	e := NewEngine(cfg, cexFake, dexFake, cache, coord, trend, clock, eventBus, testLogger())
	return e, cache, trend
}

func snapshot(cexBase, dexBase, totalQuote, mid float64) domain.PortfolioSnapshot {
	snap := domain.PortfolioSnapshot{
		Timestamp: testTime,
		CEX:       domain.VenueBalances{"WETH": {Asset: "WETH", Free: cexBase}},
		DEX:       domain.VenueBalances{"WETH": {Asset: "WETH", Free: dexBase}},
	}
	snap.TotalBase = cexBase + dexBase
	snap.TotalQuote = totalQuote
	snap.TotalValueUSD = totalQuote + snap.TotalBase*mid
	return snap
}

func mkQuote(venue domain.Venue, bid, ask float64) domain.Quote {
	return domain.Quote{
		Venue: venue, Symbol: "WETH/USDC",
		BidPrice: bid, AskPrice: ask, Timestamp: testTime,
	}
}

func TestDecideSellHighVenue(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), &fakeCEX{}, &fakeDEX{})

	// DEX trades 4% above the CEX: dump base where it is dearest.
	cexQuote := mkQuote(domain.VenueCEX, 0.0498, 0.0502)
	dexQuote := mkQuote(domain.VenueDEX, 0.0518, 0.0522)
	snap := snapshot(50, 50, 100, 0.05)

	plan := e.decide(cexQuote, dexQuote, snap)
	assert.Equal(t, ActionSellHigh, plan.Action)
	require.Len(t, plan.Legs, 1)
	assert.Equal(t, domain.VenueDEX, plan.Legs[0].Venue)
	assert.InDelta(t, 20.0, plan.Legs[0].Amount, 1e-9) // 20% of 100 base
}

func TestDecideSplitSell(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), &fakeCEX{}, &fakeDEX{})

	// 1% divergence sits inside the split band.
	cexQuote := mkQuote(domain.VenueCEX, 0.0498, 0.0502)
	dexQuote := mkQuote(domain.VenueDEX, 0.0503, 0.0507)
	snap := snapshot(50, 50, 100, 0.05)

	plan := e.decide(cexQuote, dexQuote, snap)
	assert.Equal(t, ActionSplitSell, plan.Action)
	require.Len(t, plan.Legs, 2)

	var total float64
	for _, leg := range plan.Legs {
		total += leg.Amount
	}
	assert.InDelta(t, 10.0, total, 1e-9) // half the usual allocation
}

func TestDecideAccumulateOnRisingTrend(t *testing.T) {
	e, _, trend := newTestEngine(testConfig(), &fakeCEX{}, &fakeDEX{})
	feed(trend, 100, 100, 100, 103, 103, 103)

	// Prices agree, but quote share is thin and the market is rising.
	cexQuote := mkQuote(domain.VenueCEX, 0.0499, 0.0501)
	dexQuote := mkQuote(domain.VenueDEX, 0.0499, 0.0501)
	snap := snapshot(50, 50, 0.2, 0.05) // quote share ~4%

	plan := e.decide(cexQuote, dexQuote, snap)
	assert.Equal(t, ActionAccumulate, plan.Action)
	require.Len(t, plan.Legs, 1)
	assert.InDelta(t, 10.0, plan.Legs[0].Amount, 1e-9)
}

func TestDecideWait(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), &fakeCEX{}, &fakeDEX{})

	cexQuote := mkQuote(domain.VenueCEX, 0.0499, 0.0501)
	dexQuote := mkQuote(domain.VenueDEX, 0.0499, 0.0501)
	snap := snapshot(50, 50, 100, 0.05) // quote share well above floor

	plan := e.decide(cexQuote, dexQuote, snap)
	assert.Equal(t, ActionWait, plan.Action)
	assert.Empty(t, plan.Legs)
}

func TestDecideRespectsVenueBalance(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), &fakeCEX{}, &fakeDEX{})

	cexQuote := mkQuote(domain.VenueCEX, 0.0498, 0.0502)
	dexQuote := mkQuote(domain.VenueDEX, 0.0518, 0.0522)
	// The high venue only holds 3 base even though 20% of total is 20.
	snap := snapshot(97, 3, 100, 0.05)

	plan := e.decide(cexQuote, dexQuote, snap)
	assert.Equal(t, ActionSellHigh, plan.Action)
	require.Len(t, plan.Legs, 1)
	assert.InDelta(t, 3.0, plan.Legs[0].Amount, 1e-9)
}

func TestDecideBelowMinimumWaits(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), &fakeCEX{}, &fakeDEX{})

	cexQuote := mkQuote(domain.VenueCEX, 0.0498, 0.0502)
	dexQuote := mkQuote(domain.VenueDEX, 0.0518, 0.0522)
	snap := snapshot(1, 0.5, 100, 0.05) // 20% of 1.5 base is under MinAmount

	plan := e.decide(cexQuote, dexQuote, snap)
	assert.Equal(t, ActionWait, plan.Action)
}

func TestEvaluateExecutesSellHigh(t *testing.T) {
	cexFake := &fakeCEX{balances: domain.VenueBalances{
		"WETH": {Asset: "WETH", Free: 50},
		"USDC": {Asset: "USDC", Free: 100},
	}}
	dexFake := &fakeDEX{balances: map[string]float64{"WETH": 50, "USDC": 100}}
	e, cache, _ := newTestEngine(testConfig(), cexFake, dexFake)
	ctx := context.Background()

	require.NoError(t, cache.SetQuote(ctx, mkQuote(domain.VenueCEX, 0.0498, 0.0502)))
	require.NoError(t, cache.SetQuote(ctx, mkQuote(domain.VenueDEX, 0.0518, 0.0522)))

	require.NoError(t, e.Evaluate(ctx))

	// DEX is the expensive venue: exactly one swap, no CEX orders.
	require.Len(t, dexFake.swaps, 1)
	assert.InDelta(t, 20.0, dexFake.swaps[0], 1e-9)
	assert.Empty(t, cexFake.sells)
}

func TestEvaluateWaitsWithoutQuotes(t *testing.T) {
	e, _, _ := newTestEngine(testConfig(), &fakeCEX{}, &fakeDEX{})
	err := e.Evaluate(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
