package detector

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sable-labs/crossarb/internal/domain"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// fakeClock serves a fixed time and lets tests gate Sleep calls manually.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	release chan struct{}
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, release: make(chan struct{})}
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

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.release:
		return nil
	}
}

// Release unblocks every pending and future Sleep.
func (c *fakeClock) Release() { close(c.release) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		MinSpreadPct:       1.0,
		MaxSpreadPct:       10.0,
		MinProfitThreshold: 0.5,
		MinTradeSize:       10,
		MaxTradeSize:       500,
		OpportunityTTL:     30 * time.Second,
		StalenessThreshold: 10 * time.Second,
		CEXTakerFeePct:     0.10,
		DEXSwapFeePct:      0.30,
		GasEstimateUSD:     1.0,
	}
}

func quote(venue domain.Venue, bid, ask, volume float64, ts time.Time) domain.Quote {
	return domain.Quote{
		Venue:     venue,
		Symbol:    "WETH/USDC",
		BidPrice:  bid,
		AskPrice:  ask,
		Volume:    volume,
		Timestamp: ts,
	}
}

func TestDetectBuyCEXSellDEX(t *testing.T) {
	clock := newFakeClock(testTime)
	d := New(testConfig(), clock, testLogger())

	cexQuote := quote(domain.VenueCEX, 0.0495, 0.0500, 100000, testTime)
	dexQuote := quote(domain.VenueDEX, 0.0512, 0.0515, 0, testTime)

	opp, err := d.Detect(cexQuote, dexQuote)
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, domain.VenueCEX, opp.BuyVenue)
	assert.Equal(t, domain.VenueDEX, opp.SellVenue)
	// Buy at the CEX ask, sell at the DEX bid. Mid prices are never used.
	assert.Equal(t, 0.0500, opp.BuyPrice)
	assert.Equal(t, 0.0512, opp.SellPrice)
	assert.InDelta(t, 2.4, opp.SpreadPct, 0.001)

	// Fees: 0.10 buy + 0.30 sell + gas 1.0 over a 500 notional = 0.60.
	assert.InDelta(t, 0.60, opp.Fees.TotalPct, 0.001)
	assert.InDelta(t, 1.8, opp.NetProfitPct, 0.001)
	assert.Equal(t, 500.0, opp.MaxTradeSize)

	assert.Equal(t, domain.ConfidenceMedium, opp.Confidence)
	assert.Equal(t, domain.RiskMedium, opp.RiskLevel)
	assert.Equal(t, testTime.Add(30*time.Second), opp.ExpiresAt)
}

func TestDetectBuyDEXSellCEX(t *testing.T) {
	clock := newFakeClock(testTime)
	d := New(testConfig(), clock, testLogger())

	cexQuote := quote(domain.VenueCEX, 0.0512, 0.0515, 100000, testTime)
	dexQuote := quote(domain.VenueDEX, 0.0495, 0.0500, 0, testTime)

	opp, err := d.Detect(cexQuote, dexQuote)
	require.NoError(t, err)
	require.NotNil(t, opp)
	assert.Equal(t, domain.VenueDEX, opp.BuyVenue)
	assert.Equal(t, domain.VenueCEX, opp.SellVenue)
	assert.Equal(t, 0.0500, opp.BuyPrice)
	assert.Equal(t, 0.0512, opp.SellPrice)
}

func TestDetectStaleQuote(t *testing.T) {
	clock := newFakeClock(testTime)
	d := New(testConfig(), clock, testLogger())

	cexQuote := quote(domain.VenueCEX, 0.0495, 0.0500, 100000, testTime.Add(-15*time.Second))
	dexQuote := quote(domain.VenueDEX, 0.0512, 0.0515, 0, testTime)

	opp, err := d.Detect(cexQuote, dexQuote)
	require.ErrorIs(t, err, domain.ErrStalePrice)
	assert.Nil(t, opp)
	assert.Contains(t, err.Error(), "cex")
}

func TestDetectSpreadBelowMinimum(t *testing.T) {
	clock := newFakeClock(testTime)
	d := New(testConfig(), clock, testLogger())

	cexQuote := quote(domain.VenueCEX, 0.0499, 0.0500, 100000, testTime)
	dexQuote := quote(domain.VenueDEX, 0.0502, 0.0504, 0, testTime)

	opp, err := d.Detect(cexQuote, dexQuote)
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectSpreadAboveCeiling(t *testing.T) {
	clock := newFakeClock(testTime)
	d := New(testConfig(), clock, testLogger())

	// A 20% spread is treated as bad data, not free money.
	cexQuote := quote(domain.VenueCEX, 0.0495, 0.0500, 100000, testTime)
	dexQuote := quote(domain.VenueDEX, 0.0600, 0.0605, 0, testTime)

	opp, err := d.Detect(cexQuote, dexQuote)
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectVolumeCapsTradeSize(t *testing.T) {
	clock := newFakeClock(testTime)
	d := New(testConfig(), clock, testLogger())

	cexQuote := quote(domain.VenueCEX, 0.0495, 0.0500, 20000, testTime)
	dexQuote := quote(domain.VenueDEX, 0.0512, 0.0515, 0, testTime)

	opp, err := d.Detect(cexQuote, dexQuote)
	require.NoError(t, err)
	require.NotNil(t, opp)
	// 1% of 24h volume beats the configured maximum.
	assert.Equal(t, 200.0, opp.MaxTradeSize)
	assert.InDelta(t, 0.90, opp.Fees.TotalPct, 0.001)
}

func TestDetectRejectsLowConfidence(t *testing.T) {
	clock := newFakeClock(testTime)
	cfg := testConfig()
	cfg.MinProfitThreshold = 0.1
	d := New(cfg, clock, testLogger())

	// 1.4% spread clears the minimum but nets under 1%, which classifies
	// LOW and is filtered out.
	cexQuote := quote(domain.VenueCEX, 0.0495, 0.0500, 100000, testTime)
	dexQuote := quote(domain.VenueDEX, 0.0507, 0.0510, 0, testTime)

	opp, err := d.Detect(cexQuote, dexQuote)
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectMarginalSpreadClassifiesLow(t *testing.T) {
	clock := newFakeClock(testTime)
	d := New(testConfig(), clock, testLogger())

	// Buying the CEX ask 0.051 and selling the DEX bid 0.052 yields a
	// spread just under 2%: above the 1% floor and profitable net of fees,
	// but at most 2% it classifies LOW confidence and is dropped.
	cexQuote := quote(domain.VenueCEX, 0.049, 0.051, 100000, testTime)
	dexQuote := quote(domain.VenueDEX, 0.052, 0.054, 0, testTime)

	spread := (0.052 - 0.051) / 0.051 * 100
	assert.InDelta(t, 1.9608, spread, 0.001)
	assert.Equal(t, domain.ConfidenceLow, classifyConfidence(spread-0.60, spread))

	opp, err := d.Detect(cexQuote, dexQuote)
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestDetectInvalidQuote(t *testing.T) {
	clock := newFakeClock(testTime)
	d := New(testConfig(), clock, testLogger())

	cexQuote := quote(domain.VenueCEX, 0.0500, 0.0495, 100000, testTime) // crossed
	dexQuote := quote(domain.VenueDEX, 0.0512, 0.0515, 0, testTime)

	opp, err := d.Detect(cexQuote, dexQuote)
	require.ErrorIs(t, err, domain.ErrStalePrice)
	assert.Nil(t, opp)
}
