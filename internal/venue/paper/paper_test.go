package paper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sable-labs/crossarb/internal/domain"
)

// fixedMarket serves a constant order book.
type fixedMarket struct {
	bid, ask float64
}

func (m fixedMarket) GetTicker(ctx context.Context, symbol string) (float64, float64, error) {
	return (m.bid + m.ask) / 2, 100000, nil
}

func (m fixedMarket) GetBookTicker(ctx context.Context, symbol string) (float64, float64, error) {
	return m.bid, m.ask, nil
}

// fixedPool swaps at a constant rate.
type fixedPool struct {
	rate float64
}

func (p fixedPool) GetReserves(ctx context.Context) (float64, float64, error) {
	return 1000, 1000 * p.rate, nil
}

func (p fixedPool) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn, slippage float64) (float64, float64, error) {
	expected := amountIn * p.rate
	return expected, expected * (1 - slippage/100), nil
}

func seedBalances() domain.VenueBalances {
	return domain.VenueBalances{
		"WETH": {Asset: "WETH", Free: 10},
		"USDC": {Asset: "USDC", Free: 1000},
	}
}

func TestPaperCEXBuyFillsAtAsk(t *testing.T) {
	c := NewCEX(fixedMarket{bid: 0.049, ask: 0.051}, 0.10, seedBalances())

	order, err := c.PlaceOrder(context.Background(), "WETH/USDC", domain.SideBuy, "MARKET", 100, 0)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.Equal(t, 0.051, order.AvgPrice)
	assert.Equal(t, 100.0, order.FilledQty)
	assert.InDelta(t, 5.1*0.001, order.FeeUSD, 1e-9)

	balances, err := c.GetBalances(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 110.0, balances["WETH"].Free, 1e-9)
	assert.InDelta(t, 1000-5.1-order.FeeUSD, balances["USDC"].Free, 1e-9)
}

func TestPaperCEXSellFillsAtBid(t *testing.T) {
	c := NewCEX(fixedMarket{bid: 0.049, ask: 0.051}, 0.10, seedBalances())

	order, err := c.PlaceOrder(context.Background(), "WETH/USDC", domain.SideSell, "MARKET", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.049, order.AvgPrice)

	balances, _ := c.GetBalances(context.Background())
	assert.InDelta(t, 5.0, balances["WETH"].Free, 1e-9)
	assert.InDelta(t, 1000+5*0.049-order.FeeUSD, balances["USDC"].Free, 1e-9)
}

func TestPaperCEXInsufficientFunds(t *testing.T) {
	c := NewCEX(fixedMarket{bid: 0.049, ask: 0.051}, 0.10, seedBalances())

	_, err := c.PlaceOrder(context.Background(), "WETH/USDC", domain.SideSell, "MARKET", 50, 0)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The failed order must not touch balances.
	balances, _ := c.GetBalances(context.Background())
	assert.Equal(t, 10.0, balances["WETH"].Free)
	assert.Equal(t, 1000.0, balances["USDC"].Free)
}

func TestPaperCEXOrderLookup(t *testing.T) {
	c := NewCEX(fixedMarket{bid: 0.049, ask: 0.051}, 0.10, seedBalances())

	order, err := c.PlaceOrder(context.Background(), "WETH/USDC", domain.SideBuy, "MARKET", 1, 0)
	require.NoError(t, err)

	got, err := c.GetOrder(context.Background(), "WETH/USDC", order.ID)
	require.NoError(t, err)
	assert.Equal(t, order, got)

	_, err = c.GetOrder(context.Background(), "WETH/USDC", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Market orders fill instantly, so cancel always arrives too late.
	err = c.CancelOrder(context.Background(), "WETH/USDC", order.ID)
	assert.Error(t, err)
}

func dexSeed() domain.VenueBalances {
	return domain.VenueBalances{
		"WETH": {Asset: "WETH", Free: 10},
		"USDC": {Asset: "USDC", Free: 1000},
		"ETH":  {Asset: "ETH", Free: 0.5},
	}
}

func TestPaperDEXSwapMutatesBalances(t *testing.T) {
	d := NewDEX(fixedPool{rate: 0.0512}, "ETH", 0.002, dexSeed())

	result, err := d.Swap(context.Background(), "WETH", "USDC", 5, 0.25)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.InDelta(t, 5*0.0512, result.AmountOut, 1e-9)
	assert.Contains(t, result.TxHash, "sim-")

	weth, _ := d.GetBalance(context.Background(), "WETH")
	usdc, _ := d.GetBalance(context.Background(), "USDC")
	gas, _ := d.GetBalance(context.Background(), "ETH")
	assert.InDelta(t, 5.0, weth, 1e-9)
	assert.InDelta(t, 1000+5*0.0512, usdc, 1e-9)
	assert.InDelta(t, 0.498, gas, 1e-9)
}

func TestPaperDEXSwapRespectsMinOut(t *testing.T) {
	d := NewDEX(fixedPool{rate: 0.0512}, "ETH", 0.002, dexSeed())

	_, err := d.Swap(context.Background(), "WETH", "USDC", 5, 1.0)
	require.Error(t, err)

	// A reverted swap leaves every balance untouched.
	weth, _ := d.GetBalance(context.Background(), "WETH")
	gas, _ := d.GetBalance(context.Background(), "ETH")
	assert.Equal(t, 10.0, weth)
	assert.Equal(t, 0.5, gas)
}

func TestPaperDEXInsufficientGas(t *testing.T) {
	seed := dexSeed()
	seed["ETH"] = domain.Balance{Asset: "ETH", Free: 0.001}
	d := NewDEX(fixedPool{rate: 0.0512}, "ETH", 0.002, seed)

	_, err := d.Swap(context.Background(), "WETH", "USDC", 5, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestPaperDEXGasBalanceDefault(t *testing.T) {
	d := NewDEX(fixedPool{rate: 0.0512}, "ETH", 0.002, dexSeed())
	gas, err := d.GetBalance(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.5, gas)
}
